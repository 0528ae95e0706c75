package ratelimit

import (
	"context"
	"net"
	"net/http"
	"strings"

	"planhub/modules/hmac"
	rl "planhub/modules/ratelimit"
)

// IdentifyFunc derives the rate-limit key for one request.
type IdentifyFunc func(*http.Request) rl.Key

// UnknownKey is the shared bucket used when no identity signal exists at
// all. Limiting degrades to one bucket for all anonymous traffic instead of
// the identifier ever failing a request.
const UnknownKey rl.Key = "unknown"

type principalCtxKey struct{}

// ContextWithPrincipal records the authenticated principal for the request.
// Called by the authentication layer upstream of the limiter.
func ContextWithPrincipal(ctx context.Context, principal string) context.Context {
	return context.WithValue(ctx, principalCtxKey{}, principal)
}

// PrincipalFromContext returns the principal set upstream, or "".
func PrincipalFromContext(ctx context.Context) string {
	principal, _ := ctx.Value(principalCtxKey{}).(string)
	return principal
}

// Identifier derives a stable key for the caller of a request using a fixed
// priority: authenticated principal, then API-key digest, then client IP.
// Exactly one form is chosen, never a combination, and identical requests
// always map to the same key so the window store can aggregate hits from the
// same caller across requests.
//
// Identify is a pure function of the request: no store or network access,
// and it cannot fail.
type Identifier struct {
	digester     *hmac.Digester
	apiKeyHeader string
}

func NewIdentifier(digester *hmac.Digester, apiKeyHeader string) *Identifier {
	if apiKeyHeader == "" {
		apiKeyHeader = "X-API-Key"
	}
	return &Identifier{
		digester:     digester,
		apiKeyHeader: apiKeyHeader,
	}
}

func (i *Identifier) Identify(r *http.Request) rl.Key {
	if principal := PrincipalFromContext(r.Context()); principal != "" {
		return rl.Key("principal:" + principal)
	}

	// Never the raw key: digests are what end up in Redis and in logs.
	if apiKey := r.Header.Get(i.apiKeyHeader); apiKey != "" && i.digester != nil {
		return rl.Key("apikey:" + i.digester.Digest([]byte(apiKey)))
	}

	if ip := clientIP(r); ip != "" {
		return rl.Key("ip:" + ip)
	}

	return UnknownKey
}

// clientIP prefers the first entry of a forwarded-for chain (the original
// caller as reported by the edge proxy) over the transport-level peer.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
