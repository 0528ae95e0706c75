package ratelimit

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"planhub/modules/clock"
	rl "planhub/modules/ratelimit"
)

func newTestHandler(t *testing.T, policy rl.Policy, opts ...rl.LimiterOption) http.Handler {
	t.Helper()

	limiter, err := rl.NewLimiter(policy, clock.NewFake(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)), opts...)
	require.NoError(t, err)

	identify := func(r *http.Request) rl.Key {
		return rl.Key("ip:" + r.RemoteAddr)
	}

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return Middleware(limiter, identify)(next)
}

func hit(handler http.Handler, remoteAddr string) *httptest.ResponseRecorder {
	r := httptest.NewRequest("GET", "/v1/ping", nil)
	r.RemoteAddr = remoteAddr
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)
	return w
}

func TestMiddlewareStampsHeadersOnAllow(t *testing.T) {
	handler := newTestHandler(t, rl.Policy{Limit: 100, Period: time.Minute, MaxTrackedIdentities: 1000})

	var w *httptest.ResponseRecorder
	for i := 0; i < 37; i++ {
		w = hit(handler, "203.0.113.7")
	}

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "100", w.Header().Get(HeaderLimit))
	assert.Equal(t, "63", w.Header().Get(HeaderRemaining))

	reset, err := strconv.ParseInt(w.Header().Get(HeaderReset), 10, 64)
	require.NoError(t, err)
	wantReset := time.Date(2025, 6, 1, 12, 1, 0, 0, time.UTC).Unix()
	assert.Equal(t, wantReset, reset)
}

func TestMiddlewareDeniesOverLimit(t *testing.T) {
	handler := newTestHandler(t, rl.Policy{Limit: 100, Period: time.Minute, MaxTrackedIdentities: 1000})

	for i := 0; i < 100; i++ {
		w := hit(handler, "203.0.113.7")
		require.Equal(t, http.StatusOK, w.Code)
	}

	w := hit(handler, "203.0.113.7")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "60", w.Header().Get(HeaderRetry))
	assert.Equal(t, "0", w.Header().Get(HeaderRemaining))
	assert.Equal(t, "application/problem+json", w.Header().Get("Content-Type"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, ErrorCode, body["code"])
	assert.Equal(t, float64(http.StatusTooManyRequests), body["status"])
	assert.Equal(t, float64(100), body["limit"])
	assert.Equal(t, float64(60), body["window"])
	assert.Equal(t, float64(60), body["retryAfter"])
}

func TestMiddlewareIsolatesClients(t *testing.T) {
	handler := newTestHandler(t, rl.Policy{Limit: 2, Period: time.Minute, MaxTrackedIdentities: 1000})

	hit(handler, "203.0.113.7")
	hit(handler, "203.0.113.7")
	require.Equal(t, http.StatusTooManyRequests, hit(handler, "203.0.113.7").Code)

	// Another client is unaffected.
	assert.Equal(t, http.StatusOK, hit(handler, "198.51.100.9").Code)
}

func TestMiddlewareBypassAllowsEverything(t *testing.T) {
	handler := newTestHandler(t, rl.Policy{Limit: 1, Period: time.Minute, MaxTrackedIdentities: 1000},
		rl.WithBypass(true))

	for i := 0; i < 10; i++ {
		w := hit(handler, "203.0.113.7")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "1", w.Header().Get(HeaderRemaining))
	}
}
