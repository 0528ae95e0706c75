// Package ratelimit is the HTTP-facing side of admission control: it wraps
// every endpoint, derives the client key, asks the limiter for a decision
// and enforces the response contract (informational headers on allow, a 429
// with a retry hint on deny).
package ratelimit

import (
	"net/http"
	"strconv"
	"time"

	"planhub/modules/middleware/problem"
	rl "planhub/modules/ratelimit"
)

const (
	HeaderLimit     = "X-RateLimit-Limit"
	HeaderRemaining = "X-RateLimit-Remaining"
	HeaderReset     = "X-RateLimit-Reset"
	HeaderRetry     = "Retry-After"
)

// ErrorCode is the machine-readable identifier carried in the 429 payload.
const ErrorCode = "rate_limit_exceeded"

// Middleware enforces the limiter in front of next. Denied requests are
// short-circuited before next ever runs; everything else passes through
// with rate-limit headers stamped on the response.
func Middleware(limiter *rl.Limiter, identify IdentifyFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			decision := limiter.Check(r.Context(), identify(r))
			stampHeaders(w, limiter.Policy(), decision)
			if !decision.Allowed {
				writeDenied(w, limiter.Policy())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func stampHeaders(w http.ResponseWriter, policy rl.Policy, decision rl.Decision) {
	h := w.Header()
	h.Set(HeaderLimit, strconv.Itoa(policy.Limit))
	h.Set(HeaderRemaining, strconv.Itoa(decision.Remaining))
	h.Set(HeaderReset, strconv.FormatInt(decision.ResetAt.Unix(), 10))
}

func writeDenied(w http.ResponseWriter, policy rl.Policy) {
	windowSeconds := int(policy.Period / time.Second)
	w.Header().Set(HeaderRetry, strconv.Itoa(windowSeconds))
	problem.Write(w, problem.TooManyRequests("rate limit exceeded, back off and retry",
		problem.WithCode(ErrorCode),
		problem.WithExtension("limit", policy.Limit),
		problem.WithExtension("window", windowSeconds),
		problem.WithExtension("retryAfter", windowSeconds),
	))
}
