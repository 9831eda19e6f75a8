// Package agent implements the session client for the remote agent platform API.
package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"sync"
	"time"

	"agent-wallet-bridge/config"
	"agent-wallet-bridge/internal/metrics"
	"agent-wallet-bridge/pkg/logger"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"
)

const signInPath = "/api/v1/auth/signin"

// maxBodyBytes caps how much of a platform response is read.
const maxBodyBytes = 4 << 20

// Client holds one authenticated session with the agent platform.
// It is safe for concurrent use; concurrent callers share a single login.
type Client struct {
	cfg     config.AgentConfig
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	log     zerolog.Logger
	now     func() time.Time

	mu         sync.Mutex
	token      string
	userAgent  string
	validUntil time.Time
	generation uint64
}

// New creates a session client. No network traffic happens until the first call.
func New(cfg config.AgentConfig, log zerolog.Logger) (*Client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}

	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	burst := cfg.RateBurst
	if burst < 1 {
		burst = 1
	}
	if cfg.MaxRetries < 1 {
		cfg.MaxRetries = 1
	}
	if len(cfg.UserAgents) == 0 {
		cfg.UserAgents = []string{"Mozilla/5.0"}
	}

	return &Client{
		cfg:     cfg,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    &http.Client{Timeout: cfg.RequestTimeout, Jar: jar},
		limiter: rate.NewLimiter(limit, burst),
		log:     logger.Component(log, "agent"),
		now:     time.Now,
	}, nil
}

// Login signs in with the configured credentials and starts a new session.
// A failed login leaves the session invalid.
func (c *Client) Login(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loginLocked(ctx)
}

// EnsureLogin is a no-op while the session is valid.
func (c *Client) EnsureLogin(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.validLocked() {
		return nil
	}
	return c.loginLocked(ctx)
}

// Invalidate drops the current session; the next call logs in again.
func (c *Client) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidateLocked()
}

// Renew forces a fresh session. It is run on a schedule shortly before the
// platform would expire the current one.
func (c *Client) Renew(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidateLocked()
	return c.loginLocked(ctx)
}

// Ping reports whether a session is currently held. It never logs in, so
// health checks cannot add load to the platform.
func (c *Client) Ping(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.validLocked() {
		return ErrNoSession
	}
	return nil
}

func (c *Client) Name() string { return "agent" }

// Critical is false: operations queue up and log in again on their own.
func (c *Client) Critical() bool { return false }

func (c *Client) validLocked() bool {
	return !c.validUntil.IsZero() && c.now().Before(c.validUntil)
}

func (c *Client) invalidateLocked() {
	c.token = ""
	c.validUntil = time.Time{}
}

func (c *Client) loginLocked(ctx context.Context) error {
	c.invalidateLocked()
	c.userAgent = c.cfg.UserAgents[rand.IntN(len(c.cfg.UserAgents))]

	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	body, _ := json.Marshal(map[string]string{
		"username": c.cfg.Username,
		"password": c.cfg.Password,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+signInPath, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create sign-in request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	status, res, err := c.send(req)
	if err != nil {
		metrics.AgentLogins.WithLabelValues(metrics.OutcomeFailed).Inc()
		return fmt.Errorf("agent sign-in: %w", err)
	}
	if status < 200 || status >= 300 || !succeeded(res) {
		metrics.AgentLogins.WithLabelValues(metrics.OutcomeFailed).Inc()
		return fmt.Errorf("agent sign-in: status %d: %s", status, message(res, status))
	}

	// Some deployments only set a session cookie; the jar carries it then.
	c.token = res.Get("data.token").String()
	c.validUntil = c.now().Add(c.cfg.SessionTTL)
	c.generation++
	metrics.AgentLogins.WithLabelValues(metrics.OutcomeOK).Inc()

	c.log.Info().
		Bool("bearer", c.token != "").
		Time("valid_until", c.validUntil).
		Msg("Agent session established")
	return nil
}

// session returns what an attempt needs to authenticate.
func (c *Client) session() (token, userAgent string, generation uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token, c.userAgent, c.generation
}

// invalidateGeneration drops the session only if it is still the one the
// failed attempt used, so a 401 on a stale session does not discard a fresh one.
func (c *Client) invalidateGeneration(generation uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generation == generation {
		c.invalidateLocked()
	}
}

// Call performs an authenticated request and returns the response "data"
// object (or the whole body when there is none).
func (c *Client) Call(ctx context.Context, method, endpoint string, payload any) (gjson.Result, error) {
	label := endpoint
	if i := strings.IndexByte(label, '?'); i >= 0 {
		label = label[:i]
	}
	return c.call(ctx, label, method, endpoint, payload)
}

func (c *Client) call(ctx context.Context, op, method, endpoint string, payload any) (gjson.Result, error) {
	var body []byte
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return gjson.Result{}, fmt.Errorf("marshal %s payload: %w", op, err)
		}
		body = raw
	}

	var lastErr error
	for attempt := 1; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 1 {
			if err := c.wait(ctx, c.backoff(attempt-1)); err != nil {
				return gjson.Result{}, err
			}
		}

		res, err := c.attempt(ctx, method, endpoint, body)
		if err == nil {
			metrics.AgentCalls.WithLabelValues(op, metrics.OutcomeOK).Inc()
			return res, nil
		}

		var rej *RejectedError
		if errors.As(err, &rej) {
			metrics.AgentCalls.WithLabelValues(op, metrics.OutcomeRejected).Inc()
			return gjson.Result{}, err
		}
		if ctx.Err() != nil {
			return gjson.Result{}, ctx.Err()
		}

		lastErr = err
		reason := "transport"
		if errors.Is(err, errUnauthorized) {
			reason = "auth"
		}
		metrics.AgentRetries.WithLabelValues(op, reason).Inc()
		c.log.Warn().
			Err(err).
			Str("endpoint", op).
			Int("attempt", attempt).
			Int("max_attempts", c.cfg.MaxRetries).
			Msg("Agent call failed")
	}

	metrics.AgentCalls.WithLabelValues(op, metrics.OutcomeFailed).Inc()
	return gjson.Result{}, fmt.Errorf("%s %s: %w: %w", method, op, ErrRetriesExhausted, lastErr)
}

func (c *Client) attempt(ctx context.Context, method, endpoint string, body []byte) (gjson.Result, error) {
	if err := c.EnsureLogin(ctx); err != nil {
		return gjson.Result{}, err
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return gjson.Result{}, err
	}

	token, userAgent, generation := c.session()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, reader)
	if err != nil {
		return gjson.Result{}, &RejectedError{Endpoint: endpoint, Message: err.Error()}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	status, res, err := c.send(req)
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		c.invalidateGeneration(generation)
		return gjson.Result{}, errUnauthorized
	case err != nil:
		return gjson.Result{}, err
	case status >= 500 || status == http.StatusTooManyRequests:
		return gjson.Result{}, fmt.Errorf("%w: status %d", errServer, status)
	case status >= 400:
		return gjson.Result{}, &RejectedError{Endpoint: endpoint, Status: status, Message: message(res, status)}
	case !succeeded(res):
		return gjson.Result{}, &RejectedError{Endpoint: endpoint, Status: status, Message: message(res, status)}
	}

	if data := res.Get("data"); data.Exists() {
		return data, nil
	}
	return res, nil
}

// send executes req and parses the body. A non-JSON body on a 2xx is a
// retryable error; on other statuses the status code decides.
func (c *Client) send(req *http.Request) (int, gjson.Result, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, gjson.Result{}, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return resp.StatusCode, gjson.Result{}, fmt.Errorf("read response: %w", err)
	}
	if !gjson.ValidBytes(raw) {
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return resp.StatusCode, gjson.Result{}, errBadBody
		}
		return resp.StatusCode, gjson.Result{}, nil
	}
	return resp.StatusCode, gjson.ParseBytes(raw), nil
}

// backoff returns base * 2^(n-1), capped at the configured maximum.
func (c *Client) backoff(n int) time.Duration {
	d := c.cfg.BackoffBase
	for i := 1; i < n && d < c.cfg.BackoffMax; i++ {
		d *= 2
	}
	if c.cfg.BackoffMax > 0 && d > c.cfg.BackoffMax {
		d = c.cfg.BackoffMax
	}
	return d
}

func (c *Client) wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// succeeded evaluates the explicit status field of a platform response.
func succeeded(res gjson.Result) bool {
	if s := res.Get("success"); s.Exists() {
		return s.Bool()
	}
	if s := res.Get("status"); s.Exists() {
		switch strings.ToLower(s.String()) {
		case "ok", "success":
			return true
		default:
			return false
		}
	}
	return true
}

func message(res gjson.Result, status int) string {
	for _, path := range []string{"message", "error", "data.message"} {
		if m := res.Get(path).String(); m != "" {
			return m
		}
	}
	if status == 0 || status < 300 {
		return "request was not accepted"
	}
	return http.StatusText(status)
}
