package ratelimit

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"planhub/modules/hmac"
	rl "planhub/modules/ratelimit"
)

func newTestIdentifier(t *testing.T) *Identifier {
	t.Helper()
	digester, err := hmac.NewDigester([]byte("test-secret"))
	require.NoError(t, err)
	return NewIdentifier(digester, "X-API-Key")
}

func TestIdentifyPrefersPrincipal(t *testing.T) {
	id := newTestIdentifier(t)

	r := httptest.NewRequest("GET", "/v1/ping", nil)
	r.Header.Set("X-API-Key", "some-key")
	r.RemoteAddr = "203.0.113.7:1234"
	r = r.WithContext(ContextWithPrincipal(r.Context(), "user-42"))

	assert.Equal(t, rl.Key("principal:user-42"), id.Identify(r))
}

func TestIdentifyDigestsAPIKey(t *testing.T) {
	id := newTestIdentifier(t)

	r := httptest.NewRequest("GET", "/v1/ping", nil)
	r.Header.Set("X-API-Key", "secret-api-key")
	r.RemoteAddr = "203.0.113.7:1234"

	key := id.Identify(r)
	assert.True(t, strings.HasPrefix(string(key), "apikey:"))
	assert.NotContains(t, string(key), "secret-api-key", "raw keys must never appear in limiter keys")

	// Same key, same digest.
	assert.Equal(t, key, id.Identify(r))
}

func TestIdentifyFallsBackToForwardedFor(t *testing.T) {
	id := newTestIdentifier(t)

	r := httptest.NewRequest("GET", "/v1/ping", nil)
	r.Header.Set("X-Forwarded-For", "198.51.100.9, 10.0.0.1, 10.0.0.2")
	r.RemoteAddr = "10.0.0.2:4567"

	// First entry is the original caller as reported by the edge.
	assert.Equal(t, rl.Key("ip:198.51.100.9"), id.Identify(r))
}

func TestIdentifyUsesRemoteAddrWithoutProxyHeaders(t *testing.T) {
	id := newTestIdentifier(t)

	r := httptest.NewRequest("GET", "/v1/ping", nil)
	r.RemoteAddr = "203.0.113.7:1234"

	assert.Equal(t, rl.Key("ip:203.0.113.7"), id.Identify(r))
}

func TestIdentifyUnknownWhenNoSignal(t *testing.T) {
	id := newTestIdentifier(t)

	r := httptest.NewRequest("GET", "/v1/ping", nil)
	r.RemoteAddr = ""

	assert.Equal(t, UnknownKey, id.Identify(r))
}

func TestIdentifySkipsDigestWithoutDigester(t *testing.T) {
	id := NewIdentifier(nil, "")

	r := httptest.NewRequest("GET", "/v1/ping", nil)
	r.Header.Set("X-API-Key", "some-key")
	r.RemoteAddr = "203.0.113.7:1234"

	// Without key material the API key cannot be digested safely; the
	// request falls through to IP identification.
	assert.Equal(t, rl.Key("ip:203.0.113.7"), id.Identify(r))
}
