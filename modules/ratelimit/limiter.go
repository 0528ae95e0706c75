package ratelimit

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"planhub/modules/clock"
	"planhub/modules/telemetry"
)

// Decision sources, reported on metrics and logs.
const (
	SourceDistributed = "distributed"
	SourceLocal       = "local"
	SourceBypass      = "bypass"
	SourceFailOpen    = "fail_open"
)

// Limiter orchestrates one admission decision per request: pick a store
// (distributed while healthy, local otherwise), evaluate the window and
// produce a Decision.
//
// The limiter is a protective layer, so its own failure must never take the
// service down: every internal fault, including a panicking store, converts
// to an allow. The only caller-visible outcome it ever produces is a denied
// Decision for a client that exceeded the policy.
type Limiter struct {
	policy   Policy
	clk      clock.Clock
	primary  DistributedStore
	fallback *LocalWindow
	bypass   bool
	metrics  *telemetry.LimiterMetrics

	// degraded throttles outage logging; one line per request during a
	// store outage would flood the logs exactly when the system hurts.
	degraded rate.Sometimes
}

type LimiterOption func(*Limiter)

// WithPrimary installs the shared distributed store. Without it the limiter
// runs on the local store alone.
func WithPrimary(store DistributedStore) LimiterOption {
	return func(l *Limiter) {
		l.primary = store
	}
}

// WithBypass disables evaluation entirely; every request is allowed with
// synthetic full-remaining headers. Meant for non-production environments.
func WithBypass(bypass bool) LimiterOption {
	return func(l *Limiter) {
		l.bypass = bypass
	}
}

func WithMetrics(m *telemetry.LimiterMetrics) LimiterOption {
	return func(l *Limiter) {
		l.metrics = m
	}
}

func NewLimiter(policy Policy, clk clock.Clock, opts ...LimiterOption) (*Limiter, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	if clk == nil {
		clk = clock.RealClockProvider()
	}
	l := &Limiter{
		policy:   policy,
		clk:      clk,
		fallback: NewLocalWindow(policy),
		degraded: rate.Sometimes{First: 3, Interval: 10 * time.Second},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}
	return l, nil
}

func (l *Limiter) Policy() Policy { return l.policy }

// Fallback exposes the local window store so a Sweeper can be pointed at it.
func (l *Limiter) Fallback() *LocalWindow { return l.fallback }

// Degraded reports whether the limiter would currently fall back to the
// local store. Exposed for readiness reporting.
func (l *Limiter) Degraded() bool {
	return l.primary == nil || !l.primary.Available(l.clk.Now())
}

// Check evaluates one request for key. It never returns an error: store
// failures fall back to the local window once, and anything unexpected
// (including panics below this frame) fails open.
func (l *Limiter) Check(ctx context.Context, key Key) (d Decision) {
	now := l.clk.Now()

	if l.bypass {
		l.metrics.RecordDecision(ctx, true, SourceBypass)
		return l.policy.bypassed(now)
	}

	defer func() {
		if rec := recover(); rec != nil {
			slog.ErrorContext(ctx, "rate limit evaluation panicked, failing open",
				slog.Any("panic", rec),
			)
			l.metrics.RecordFailOpen(ctx)
			l.metrics.RecordDecision(ctx, true, SourceFailOpen)
			d = l.policy.bypassed(now)
		}
	}()

	count, source := l.record(ctx, key, now)
	d = l.policy.decide(count, now)
	l.metrics.RecordDecision(ctx, d.Allowed, source)
	return d
}

// record runs the atomic count-and-record against the distributed store when
// it is believed healthy, falling back to the local store at most once. No
// retries: two concurrent requests double-counting briefly during a failover
// is an accepted approximation, an unbounded retry storm is not.
func (l *Limiter) record(ctx context.Context, key Key, now time.Time) (int, string) {
	if l.primary != nil && l.primary.Available(now) {
		count, err := l.primary.Record(ctx, key, now)
		if err == nil {
			return count, SourceDistributed
		}
		l.degraded.Do(func() {
			slog.WarnContext(ctx, "distributed window store unavailable, using local fallback",
				slog.Any("error", err),
			)
		})
		l.metrics.RecordFallback(ctx)
	}

	// LocalWindow.Record cannot fail.
	count, _ := l.fallback.Record(ctx, key, now)
	return count, SourceLocal
}
