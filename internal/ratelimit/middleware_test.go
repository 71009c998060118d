package ratelimit_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-pos/internal/ratelimit"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestMiddlewareEnforcesLimitPerClientIP(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	lim, err := ratelimit.New(client, "1-M", "pos:rl")
	require.NoError(t, err)
	handler := ratelimit.Handler{Limiter: lim}.Middleware(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/pos/sessions", nil)
	req.RemoteAddr = "10.0.0.1:5000"

	rr1 := httptest.NewRecorder()
	handler.ServeHTTP(rr1, req.Clone(req.Context()))
	require.Equal(t, http.StatusOK, rr1.Code)
	require.Equal(t, "1", rr1.Header().Get("X-RateLimit-Limit"))
	require.Equal(t, "0", rr1.Header().Get("X-RateLimit-Remaining"))

	rr2 := httptest.NewRecorder()
	handler.ServeHTTP(rr2, req.Clone(req.Context()))
	require.Equal(t, http.StatusTooManyRequests, rr2.Code)
	require.Contains(t, rr2.Body.String(), "RATE_LIMITED")
	require.NotEmpty(t, rr2.Header().Get("Retry-After"))

	other := req.Clone(req.Context())
	other.RemoteAddr = "10.0.0.2:5000"
	rr3 := httptest.NewRecorder()
	handler.ServeHTTP(rr3, other)
	require.Equal(t, http.StatusOK, rr3.Code)
}

func TestMiddlewareInMemoryStore(t *testing.T) {
	lim, err := ratelimit.New(nil, "2-S", "pos:rl")
	require.NoError(t, err)
	handler := ratelimit.Handler{Limiter: lim, Key: func(*http.Request) string { return "static" }}.Middleware(okHandler())

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
		codes = append(codes, rr.Code)
	}
	require.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestMiddlewareFailsOpenOnStoreError(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })

	lim, err := ratelimit.New(client, "1-M", "pos:rl")
	require.NoError(t, err)
	mr.Close()

	called := false
	handler := ratelimit.Handler{Limiter: lim, OnError: func(error) { called = true }}.Middleware(okHandler())

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.True(t, called)
}

func TestNewRejectsMalformedRate(t *testing.T) {
	_, err := ratelimit.New(nil, "lots", "pos:rl")
	require.Error(t, err)
}
