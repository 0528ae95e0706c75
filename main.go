// Copyright 2025 Nhat-Nguyen Nguyen
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"planhub/modules/appconfig"
	"planhub/modules/clock"
	"planhub/modules/db/redis"
	"planhub/modules/db/redis/window"
	hmac_sign "planhub/modules/hmac"
	"planhub/modules/middleware"
	"planhub/modules/middleware/problem"
	ratelimitmw "planhub/modules/middleware/ratelimit"
	rl "planhub/modules/ratelimit"
	"planhub/modules/server"
	"planhub/modules/services"
	"planhub/modules/telemetry"
)

func main() {
	exitCode := 0
	defer func() {
		if exitCode != 0 {
			os.Exit(exitCode)
		}
	}()

	// cancel the context when these signals occur
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGKILL, syscall.SIGTERM, os.Interrupt)
	defer cancel()

	// manual dependency injections, imo there's no need to over-engineer with DI frameworks like Fx or Wire
	slog.SetLogLoggerLevel(slog.LevelDebug)

	clk := clock.RealClock{}

	// --- application config ----
	appConfig, err := appconfig.Load()
	if err != nil {
		slog.ErrorContext(ctx, "failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	// --- infrastructure ---

	otelShutdown, err := telemetry.Init(ctx, appConfig.Otel)
	if err != nil {
		slog.ErrorContext(ctx, "telemetry not properly configured", slog.Any("error", err))
		exitCode = 1
		return
	}
	defer func() {
		if err := otelShutdown(ctx); err != nil {
			slog.ErrorContext(ctx, "telemetry shutdown error", slog.Any("error", err))
		}
	}()

	digester, err := hmac_sign.NewDigester([]byte(appConfig.HMAC.Secret))
	if err != nil {
		slog.ErrorContext(ctx, "hmac digester setup error", slog.Any("error", err))
		exitCode = 1
		return
	}

	// Redis being down must not keep the service from starting: the limiter
	// is a protective layer, and it degrades to its local store when the
	// distributed one is absent.
	var windowStore *window.Store
	redisClient, err := redis.NewRueidisClient(ctx, appConfig.Redis)
	if err != nil {
		slog.WarnContext(ctx, "redis unavailable, rate limiting falls back to local windows", slog.Any("error", err))
	} else {
		defer redisClient.Close()
		windowStore, err = window.New(
			redisClient,
			appConfig.RateLimit.Period,
			window.WithKeyPrefix(appConfig.RateLimit.KeyPrefix),
			window.WithCallTimeout(appConfig.RateLimit.StoreTimeout),
			window.WithCooldown(appConfig.RateLimit.StoreCooldown),
		)
		if err != nil {
			slog.ErrorContext(ctx, "window store setup error", slog.Any("error", err))
			exitCode = 1
			return
		}
	}

	limiterMetrics, err := telemetry.NewLimiterMetrics("planhub-api")
	if err != nil {
		slog.WarnContext(ctx, "failed to initialize limiter metrics, continuing without metrics", slog.Any("error", err))
		limiterMetrics = nil
	}

	slog.Debug("app rate limit config", slog.Any("rate_limit_config", appConfig.RateLimit))

	limiterOpts := []rl.LimiterOption{
		rl.WithBypass(appConfig.RateLimit.Bypass),
		rl.WithMetrics(limiterMetrics),
	}
	if windowStore != nil {
		// Guarded so a nil *Store never becomes a non-nil DistributedStore.
		limiterOpts = append(limiterOpts, rl.WithPrimary(windowStore))
	}

	limiter, err := rl.NewLimiter(appConfig.RateLimit.Policy(), clk, limiterOpts...)
	if err != nil {
		slog.ErrorContext(ctx, "ratelimit config not properly parsed", slog.Any("error", err))
		exitCode = 1
		return
	}

	identifier := ratelimitmw.NewIdentifier(digester, appConfig.RateLimit.APIKeyHeader)

	sweeper := rl.NewSweeper(
		limiter.Fallback(),
		clk,
		appConfig.RateLimit.SweepInterval,
		appConfig.RateLimit.SweepWorkers,
	)
	go sweeper.Run(ctx)

	// --- application layer ---

	httpMetrics, err := telemetry.NewHTTPMetrics("planhub-api")
	if err != nil {
		slog.WarnContext(ctx, "failed to initialize HTTP metrics, continuing without metrics", slog.Any("error", err))
		httpMetrics = nil
	}

	coreSvc := services.NewCoreAPIService(limiter.Degraded)

	server, err := server.New(
		"0.0.0.0", 8080,
		server.WithWriteTimeout(10*time.Second),
		server.WithServices(coreSvc),
		server.WithGlobalMiddlewares(
			middleware.Telemetry(httpMetrics),
			ratelimitmw.Middleware(limiter, identifier.Identify),
			middleware.Recovery(func(w http.ResponseWriter, r *http.Request, _ any) {
				problem.Write(w, problem.Internal("internal server error"))
			}),
		),
	)
	if err != nil {
		slog.ErrorContext(ctx, "init server error", slog.Any("error", err))
		exitCode = 1
		return
	}

	if err := server.Run(ctx); err != nil {
		slog.ErrorContext(ctx, "running server error", slog.Any("error", err))
		exitCode = 1
		return
	}
}
