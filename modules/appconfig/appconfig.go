// Package appconfig aggregates per-module configuration into one
// environment-driven struct parsed at startup.
package appconfig

import (
	"fmt"

	"github.com/caarlos0/env/v11"

	"planhub/modules/db/redis"
	"planhub/modules/hmac"
	ratelimitmw "planhub/modules/middleware/ratelimit"
	"planhub/modules/telemetry"
)

type Config struct {
	Env string `env:"ENV" envDefault:"dev"`

	HMAC      hmac.HMACConfig      `envPrefix:"HMAC_"`
	Redis     redis.RedisConfig    `envPrefix:"REDIS_"`
	RateLimit ratelimitmw.Config   `envPrefix:"RATE_LIMIT_"`
	Otel      telemetry.Config
}

func Load() (Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	return cfg, nil
}
