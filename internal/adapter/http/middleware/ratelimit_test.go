package middleware_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"agent-wallet-bridge/internal/adapter/http/middleware"
	redisStore "agent-wallet-bridge/internal/adapter/storage/redis"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func setupRateLimitRouter(store middleware.Limiter) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	rule := middleware.RateLimitRule{Limit: 3, Window: time.Minute}

	// Simulates JWTAuth for requests that carry a client header.
	r.Use(func(c *gin.Context) {
		if id := c.GetHeader("X-Test-Client"); id != "" {
			c.Set(middleware.CtxClientID, id)
		}
	})
	r.GET("/test", middleware.RateLimiter(store, "test", rule, zerolog.Nop()), func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	return r
}

func newStore(t *testing.T) *redisStore.RateLimitStore {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return redisStore.NewRateLimitStore(client)
}

func doGet(router *gin.Engine, client string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req, _ := http.NewRequestWithContext(context.Background(), http.MethodGet, "/test", nil)
	if client != "" {
		req.Header.Set("X-Test-Client", client)
	}
	router.ServeHTTP(w, req)
	return w
}

func TestRateLimiter_AllowsWithinLimit(t *testing.T) {
	router := setupRateLimitRouter(newStore(t))

	for i := 0; i < 3; i++ {
		w := doGet(router, "")
		assert.Equal(t, 200, w.Code, "request %d should succeed", i+1)
		assert.NotEmpty(t, w.Header().Get("X-RateLimit-Limit"))
		assert.NotEmpty(t, w.Header().Get("X-RateLimit-Remaining"))
		assert.NotEmpty(t, w.Header().Get("X-RateLimit-Reset"))
	}
}

func TestRateLimiter_BlocksOverLimit(t *testing.T) {
	router := setupRateLimitRouter(newStore(t))

	for i := 0; i < 3; i++ {
		assert.Equal(t, 200, doGet(router, "").Code)
	}

	w := doGet(router, "")
	assert.Equal(t, 429, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
}

func TestRateLimiter_SeparatesClients(t *testing.T) {
	router := setupRateLimitRouter(newStore(t))

	for i := 0; i < 3; i++ {
		assert.Equal(t, 200, doGet(router, "ui").Code)
	}
	assert.Equal(t, 429, doGet(router, "ui").Code)

	assert.Equal(t, 200, doGet(router, "ops").Code)
}

type failingLimiter struct{}

func (failingLimiter) Allow(context.Context, string, int64, time.Duration) (*redisStore.RateLimitResult, error) {
	return nil, errors.New("redis down")
}

func TestRateLimiter_StoreErrorAllows(t *testing.T) {
	router := setupRateLimitRouter(failingLimiter{})

	w := doGet(router, "")
	assert.Equal(t, 200, w.Code)
	assert.Empty(t, w.Header().Get("X-RateLimit-Limit"))
}

func TestRateLimitRules(t *testing.T) {
	rules := middleware.RateLimitRules(middleware.RateLimitRule{Limit: 120, Window: time.Minute})
	assert.Equal(t, int64(10), rules[middleware.GroupAuth].Limit)
	assert.Equal(t, int64(60), rules[middleware.GroupTasks].Limit)
	assert.Equal(t, int64(120), rules[middleware.GroupWallets].Limit)
	assert.Equal(t, int64(20), rules[middleware.GroupAdjust].Limit)
	assert.Equal(t, int64(30), rules[middleware.GroupRequests].Limit)
	assert.Equal(t, int64(120), rules[middleware.GroupModeration].Limit)

	tiny := middleware.RateLimitRules(middleware.RateLimitRule{Limit: 3, Window: time.Second})
	assert.Equal(t, int64(1), tiny[middleware.GroupAuth].Limit)
	assert.Equal(t, time.Second, tiny[middleware.GroupAuth].Window)

	assert.Equal(t, middleware.RateLimitRules(middleware.RateLimitRule{}), middleware.DefaultRateLimitRules())
}
