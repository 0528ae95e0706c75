package hmac

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
)

type HMACConfig struct {
	Secret string `env:"SECRET,notEmpty"`
}

var ErrMissingKey = errors.New("missing hmac key")

// Digester produces keyed one-way digests of presented credentials.
//
// Rate limiting keys derived from API keys must never contain the raw key,
// since they end up in Redis and in logs. A keyed hash (as opposed to a plain
// SHA-256) also prevents an attacker who can read the store from confirming
// guesses against known key material.
type Digester struct {
	key []byte
}

func NewDigester(secret []byte) (*Digester, error) {
	if len(secret) == 0 {
		return nil, ErrMissingKey
	}
	return &Digester{key: secret}, nil
}

// Digest returns a URL-safe base64 HMAC-SHA256 of payload.
// Identical payloads always produce identical digests for a given secret.
func (d *Digester) Digest(payload []byte) string {
	mac := hmac.New(sha256.New, d.key)
	_, _ = mac.Write(payload)
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}
