package ratelimit

import (
	"context"
	"errors"
	"time"
)

type (
	// Key identifies the rate-limited subject of one request. It is derived
	// upstream (resolved principal, API key digest or client IP) and is only
	// ever used as a lookup key, never persisted as an entity.
	Key string

	// Policy is the process-wide admission policy. Set once at startup,
	// read-only afterwards.
	Policy struct {
		// Limit is the maximum number of hits per window.
		Limit int
		// Period is the length of the sliding window.
		Period time.Duration
		// MaxTrackedIdentities bounds how many distinct keys the local
		// fallback store may hold at once.
		MaxTrackedIdentities int
	}

	// Decision is the transient per-request outcome of an evaluation.
	Decision struct {
		Allowed   bool
		Count     int
		Remaining int
		ResetAt   time.Time
	}

	// WindowStore counts hits inside the trailing window.
	//
	// Record registers one hit at now for key, prunes hits older than
	// now minus the window and returns the count of hits remaining in the
	// window including the one just recorded. The count-and-record step must
	// be atomic with respect to concurrent calls for the same key; a caller
	// level read-then-write would let two concurrent requests both observe a
	// pre-increment count and both be admitted.
	WindowStore interface {
		Record(ctx context.Context, key Key, now time.Time) (int, error)
	}

	// DistributedStore is a WindowStore shared across service instances.
	// Available reports whether the backing store is believed reachable, so
	// the limiter can skip a known-dead store without paying a timeout on
	// every request.
	DistributedStore interface {
		WindowStore
		Available(now time.Time) bool
	}
)

var ErrInvalidPolicy = errors.New("ratelimit: invalid policy")

func (p Policy) Validate() error {
	if p.Limit <= 0 || p.Period <= 0 || p.MaxTrackedIdentities <= 0 {
		return ErrInvalidPolicy
	}
	return nil
}

// decide turns a window count into a Decision against this policy.
func (p Policy) decide(count int, now time.Time) Decision {
	remaining := p.Limit - count
	if remaining < 0 {
		remaining = 0
	}
	return Decision{
		Allowed:   count <= p.Limit,
		Count:     count,
		Remaining: remaining,
		ResetAt:   now.Add(p.Period),
	}
}

// bypassed is the synthetic full-remaining decision used when limiting is
// switched off or the evaluation failed and the limiter fails open.
func (p Policy) bypassed(now time.Time) Decision {
	return Decision{
		Allowed:   true,
		Count:     0,
		Remaining: p.Limit,
		ResetAt:   now.Add(p.Period),
	}
}
