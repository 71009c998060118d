package common_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-pos/internal/common"
)

func newIdem(t *testing.T) (common.Idem, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return common.Idem{R: client, TTL: time.Minute}, mr
}

func TestIdempotencyReplaysStoredResponse(t *testing.T) {
	idem, _ := newIdem(t)
	calls := 0
	h := idem.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		common.JSON(w, http.StatusCreated, map[string]any{"receiptNumber": 42})
	}))

	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/pos/sessions/abc/finalize", nil)
		req.Header.Set("Idempotency-Key", "k-1")
		req = req.WithContext(common.WithCashierID(req.Context(), "cashier-1"))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	first := send()
	require.Equal(t, http.StatusCreated, first.Code)
	second := send()
	require.Equal(t, http.StatusCreated, second.Code)
	require.Equal(t, "true", second.Header().Get("Idempotent-Replayed"))
	require.JSONEq(t, first.Body.String(), second.Body.String())
	require.Equal(t, 1, calls)
}

func TestIdempotencyScopesKeysByCashier(t *testing.T) {
	idem, _ := newIdem(t)
	calls := 0
	h := idem.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		common.JSON(w, http.StatusOK, map[string]any{})
	}))
	for _, cashier := range []string{"a", "b"} {
		req := httptest.NewRequest(http.MethodPost, "/finalize", nil)
		req.Header.Set("Idempotency-Key", "same")
		req = req.WithContext(common.WithCashierID(req.Context(), cashier))
		h.ServeHTTP(httptest.NewRecorder(), req)
	}
	require.Equal(t, 2, calls)
}

func TestIdempotencyReleasesKeyOnServerError(t *testing.T) {
	idem, _ := newIdem(t)
	calls := 0
	h := idem.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "boom", nil)
			return
		}
		common.JSON(w, http.StatusOK, map[string]any{"ok": true})
	}))
	for range 2 {
		req := httptest.NewRequest(http.MethodPost, "/finalize", nil)
		req.Header.Set("Idempotency-Key", "retry")
		h.ServeHTTP(httptest.NewRecorder(), req)
	}
	require.Equal(t, 2, calls)
}

func TestIdempotencyReleasesKeyOnConflict(t *testing.T) {
	idem, mr := newIdem(t)
	calls := 0
	h := idem.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			common.JSONError(w, http.StatusConflict, "CHECKOUT_BUSY", "session is being finalized", nil)
			return
		}
		common.JSON(w, http.StatusCreated, map[string]any{"receiptNumber": 7})
	}))
	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/finalize", nil)
		req.Header.Set("Idempotency-Key", "later")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	require.Equal(t, http.StatusConflict, send().Code)
	require.Empty(t, mr.Keys())

	second := send()
	require.Equal(t, http.StatusCreated, second.Code)
	require.Empty(t, second.Header().Get("Idempotent-Replayed"))

	third := send()
	require.Equal(t, http.StatusCreated, third.Code)
	require.Equal(t, "true", third.Header().Get("Idempotent-Replayed"))
	require.Equal(t, 2, calls)
}

func TestIdempotencyInProgress(t *testing.T) {
	idem, _ := newIdem(t)
	var inner *httptest.ResponseRecorder
	var h http.Handler
	h = idem.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req := httptest.NewRequest(http.MethodPost, "/finalize", nil)
		req.Header.Set("Idempotency-Key", "busy")
		inner = httptest.NewRecorder()
		h.ServeHTTP(inner, req)
		common.JSON(w, http.StatusOK, map[string]any{})
	}))
	req := httptest.NewRequest(http.MethodPost, "/finalize", nil)
	req.Header.Set("Idempotency-Key", "busy")
	h.ServeHTTP(httptest.NewRecorder(), req)

	require.Equal(t, http.StatusConflict, inner.Code)
	require.Contains(t, inner.Body.String(), "IDEMPOTENT_IN_PROGRESS")
}

func TestIdempotencyWithoutHeader(t *testing.T) {
	idem, mr := newIdem(t)
	calls := 0
	h := idem.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { calls++ }))
	for range 2 {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/finalize", nil))
	}
	require.Equal(t, 2, calls)
	require.Empty(t, mr.Keys())
}
