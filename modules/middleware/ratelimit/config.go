package ratelimit

import (
	"time"

	rl "planhub/modules/ratelimit"
)

type Config struct {
	// Limit and Period define the admission policy: Limit hits per client
	// per trailing Period.
	Limit  int           `env:"LIMIT" envDefault:"100"`
	Period time.Duration `env:"PERIOD" envDefault:"60s"`

	// MaxTrackedIdentities bounds the in-process fallback store.
	MaxTrackedIdentities int `env:"MAX_TRACKED_IDENTITIES" envDefault:"10000"`

	// Bypass switches limiting off entirely. Development environments only.
	Bypass bool `env:"BYPASS"`

	// APIKeyHeader is where unauthenticated machine clients present a key.
	APIKeyHeader string `env:"API_KEY_HEADER" envDefault:"X-API-Key"`

	// KeyPrefix scopes Redis window keys, e.g. per environment.
	KeyPrefix string `env:"KEY_PREFIX" envDefault:"planhub:rl"`

	// StoreTimeout bounds each distributed-store round trip; StoreCooldown
	// is how long a failed store is skipped before being probed again.
	StoreTimeout  time.Duration `env:"STORE_TIMEOUT" envDefault:"150ms"`
	StoreCooldown time.Duration `env:"STORE_COOLDOWN" envDefault:"3s"`

	// Background janitor for the fallback store.
	SweepInterval time.Duration `env:"SWEEP_INTERVAL" envDefault:"1m"`
	SweepWorkers  int           `env:"SWEEP_WORKERS" envDefault:"4"`
}

func (c Config) Policy() rl.Policy {
	return rl.Policy{
		Limit:                c.Limit,
		Period:               c.Period,
		MaxTrackedIdentities: c.MaxTrackedIdentities,
	}
}
