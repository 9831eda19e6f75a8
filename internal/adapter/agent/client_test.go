package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"agent-wallet-bridge/config"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePlatform accepts only the most recently issued token.
type fakePlatform struct {
	mu       sync.Mutex
	current  string
	logins   atomic.Int32
	requests atomic.Int32
	agents   []string
	handler  http.HandlerFunc
}

func (f *fakePlatform) expire() {
	f.mu.Lock()
	f.current = ""
	f.mu.Unlock()
}

func (f *fakePlatform) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == signInPath {
		n := f.logins.Add(1)
		tok := fmt.Sprintf("tok-%d", n)
		f.mu.Lock()
		f.current = tok
		f.agents = append(f.agents, r.UserAgent())
		f.mu.Unlock()
		_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "data": map[string]any{"token": tok}})
		return
	}

	f.requests.Add(1)
	f.mu.Lock()
	ok := f.current != "" && r.Header.Get("Authorization") == "Bearer "+f.current
	f.mu.Unlock()
	if !ok {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	f.handler(w, r)
}

func testConfig(baseURL string) config.AgentConfig {
	return config.AgentConfig{
		BaseURL:        baseURL,
		Username:       "agent",
		Password:       "secret",
		SessionTTL:     250 * time.Second,
		RequestTimeout: 2 * time.Second,
		MaxRetries:     3,
		BackoffBase:    time.Millisecond,
		BackoffMax:     5 * time.Millisecond,
		UserAgents:     []string{"ua-one", "ua-two", "ua-three"},
	}
}

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *fakePlatform) {
	t.Helper()
	fp := &fakePlatform{handler: handler}
	srv := httptest.NewServer(fp)
	t.Cleanup(srv.Close)

	c, err := New(testConfig(srv.URL), zerolog.Nop())
	require.NoError(t, err)
	return c, fp
}

func okJSON(data any) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "data": data})
	}
}

func TestClient_LoginUsesIdentityPool(t *testing.T) {
	c, fp := newTestClient(t, okJSON(map[string]any{"balance": "10.00"}))

	_, err := c.GetPlayerBalance(context.Background(), "p1")
	require.NoError(t, err)

	assert.Equal(t, int32(1), fp.logins.Load())
	require.Len(t, fp.agents, 1)
	assert.Contains(t, []string{"ua-one", "ua-two", "ua-three"}, fp.agents[0])
}

func TestClient_InvalidSessionReloginsExactlyOnce(t *testing.T) {
	c, fp := newTestClient(t, okJSON(map[string]any{"balance": "42.50"}))
	ctx := context.Background()

	_, err := c.GetPlayerBalance(ctx, "p1")
	require.NoError(t, err)
	require.Equal(t, int32(1), fp.logins.Load())

	// The platform drops the session; the client still thinks it is valid.
	fp.expire()

	balance, err := c.GetPlayerBalance(ctx, "p1")
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.RequireFromString("42.50")))
	assert.Equal(t, int32(2), fp.logins.Load(), "exactly one re-login")
	assert.Equal(t, int32(3), fp.requests.Load())
}

func TestClient_ConcurrentCallersShareOneLogin(t *testing.T) {
	c, fp := newTestClient(t, okJSON(map[string]any{"balance": "1"}))

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.GetPlayerBalance(context.Background(), "p1")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), fp.logins.Load())
}

func TestClient_SessionExpiresAfterTTL(t *testing.T) {
	c, fp := newTestClient(t, okJSON(map[string]any{"balance": "1"}))
	now := time.Now()
	c.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, c.EnsureLogin(ctx))
	require.NoError(t, c.EnsureLogin(ctx))
	assert.Equal(t, int32(1), fp.logins.Load())

	now = now.Add(251 * time.Second)
	require.NoError(t, c.EnsureLogin(ctx))
	assert.Equal(t, int32(2), fp.logins.Load())
}

func TestClient_PingReflectsSession(t *testing.T) {
	c, fp := newTestClient(t, okJSON(nil))
	ctx := context.Background()

	assert.ErrorIs(t, c.Ping(ctx), ErrNoSession)
	assert.Equal(t, int32(0), fp.logins.Load())
	assert.False(t, c.Critical())

	require.NoError(t, c.EnsureLogin(ctx))
	assert.NoError(t, c.Ping(ctx))

	c.Invalidate()
	assert.ErrorIs(t, c.Ping(ctx), ErrNoSession)
}

func TestClient_RenewForcesLogin(t *testing.T) {
	c, fp := newTestClient(t, okJSON(nil))
	ctx := context.Background()

	require.NoError(t, c.EnsureLogin(ctx))
	require.NoError(t, c.Renew(ctx))
	assert.Equal(t, int32(2), fp.logins.Load())
}

func TestClient_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		okJSON(map[string]any{"balance": "5"})(w, r)
	})

	balance, err := c.GetPlayerBalance(context.Background(), "p1")
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.NewFromInt(5)))
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_RetriesExhausted(t *testing.T) {
	var calls atomic.Int32
	c, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte("<html>maintenance</html>"))
	})

	err := c.Deposit(context.Background(), "p1", decimal.NewFromInt(10))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRetriesExhausted))
	assert.True(t, errors.Is(err, errBadBody))
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_DomainRejectionIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	c, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		_ = json.NewEncoder(w).Encode(map[string]any{"success": false, "message": "insufficient cashier funds"})
	})

	err := c.Deposit(context.Background(), "p1", decimal.NewFromInt(10))
	require.Error(t, err)

	msg, ok := IsRejected(err)
	assert.True(t, ok)
	assert.Equal(t, "insufficient cashier funds", msg)
	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_StatusFieldRejection(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"status": "error", "error": "username taken"})
	})

	err := c.RegisterPlayer(context.Background(), "bob_a1b2", "pw")
	msg, ok := IsRejected(err)
	assert.True(t, ok)
	assert.Equal(t, "username taken", msg)
}

func TestClient_ClientErrorIsRejection(t *testing.T) {
	var calls atomic.Int32
	c, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]any{"message": "player not found"})
	})

	err := c.Withdraw(context.Background(), "nope", decimal.NewFromInt(10))
	msg, ok := IsRejected(err)
	assert.True(t, ok)
	assert.Equal(t, "player not found", msg)
	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_ContextCancelledDuringBackoff(t *testing.T) {
	fp := &fakePlatform{handler: func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}}
	srv := httptest.NewServer(fp)
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.BackoffBase = time.Hour
	cfg.BackoffMax = time.Hour
	c, err := New(cfg, zerolog.Nop())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err = c.GetPlayerBalance(ctx, "p1")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, int32(1), fp.requests.Load())
}

func TestClient_CookieOnlySession(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc(signInPath, func(w http.ResponseWriter, _ *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "sid", Value: "cookie-session", Path: "/"})
		_ = json.NewEncoder(w).Encode(map[string]any{"status": "ok"})
	})
	mux.HandleFunc("/api/v1/agent/wallets", func(w http.ResponseWriter, r *http.Request) {
		if ck, err := r.Cookie("sid"); err != nil || ck.Value != "cookie-session" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		assert.Empty(t, r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status": "ok",
			"data": map[string]any{"wallets": []map[string]any{
				{"type": "main", "balance": 9000},
				{"type": "cashier", "balance": "1250.75"},
			}},
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c, err := New(testConfig(srv.URL), zerolog.Nop())
	require.NoError(t, err)

	balance, err := c.GetCashierBalance(context.Background())
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.RequireFromString("1250.75")))
}

func TestClient_LoginFailure(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc(signInPath, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]any{"success": false, "message": "bad credentials"})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c, err := New(testConfig(srv.URL), zerolog.Nop())
	require.NoError(t, err)

	err = c.Login(context.Background())
	assert.ErrorContains(t, err, "bad credentials")

	_, err = c.GetPlayerBalance(context.Background(), "p1")
	assert.ErrorIs(t, err, ErrRetriesExhausted)
}

func TestClient_Backoff(t *testing.T) {
	c := &Client{cfg: config.AgentConfig{BackoffBase: 500 * time.Millisecond, BackoffMax: 3 * time.Second}}

	assert.Equal(t, 500*time.Millisecond, c.backoff(1))
	assert.Equal(t, time.Second, c.backoff(2))
	assert.Equal(t, 2*time.Second, c.backoff(3))
	assert.Equal(t, 3*time.Second, c.backoff(4))
	assert.Equal(t, 3*time.Second, c.backoff(10))
}
