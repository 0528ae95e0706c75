package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"planhub/modules/clock"
	rl "planhub/modules/ratelimit"
)

func TestEchoMiddlewareSharesResponseContract(t *testing.T) {
	limiter, err := rl.NewLimiter(
		rl.Policy{Limit: 2, Period: time.Minute, MaxTrackedIdentities: 1000},
		clock.NewFake(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)),
	)
	require.NoError(t, err)

	e := echo.New()
	e.Use(EchoMiddleware(limiter, func(r *http.Request) rl.Key {
		return rl.Key("ip:" + r.RemoteAddr)
	}))
	e.GET("/v1/ping", func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})

	send := func() *httptest.ResponseRecorder {
		r := httptest.NewRequest("GET", "/v1/ping", nil)
		r.RemoteAddr = "203.0.113.7:1234"
		w := httptest.NewRecorder()
		e.ServeHTTP(w, r)
		return w
	}

	w := send()
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "2", w.Header().Get(HeaderLimit))
	assert.Equal(t, "1", w.Header().Get(HeaderRemaining))

	send()
	w = send()
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "60", w.Header().Get(HeaderRetry))
	assert.Equal(t, "application/problem+json", w.Header().Get("Content-Type"))
}
