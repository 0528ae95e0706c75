// Package window implements the distributed sliding-window store on a Redis
// sorted set, one key per client.
package window

import (
	"context"
	_ "embed"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/redis/rueidis"

	"planhub/modules/ratelimit"
)

var (
	_ ratelimit.DistributedStore = (*Store)(nil)

	//go:embed sliding_window.lua
	slidingWindowLua string

	// One script execution is the whole count-and-record step: prune, add,
	// count and TTL refresh happen server-side in a single atomic unit, so
	// concurrent hits for the same key serialize at Redis rather than racing
	// a read-modify-write across the network.
	luaSlidingWindow = rueidis.NewLuaScript(slidingWindowLua)
)

// Store records hits in a sorted set scored by epoch milliseconds. Members
// carry a UUID suffix so hits landing on the same millisecond coexist. The
// set is shared by every service instance pointing at the same Redis, which
// is what makes the counted window cluster-wide.
type Store struct {
	client   rueidis.Client
	window   time.Duration
	prefix   string
	timeout  time.Duration
	cooldown time.Duration

	// downUntil remembers a recent failure (unix nanos) so the limiter can
	// skip the store without paying the call timeout on every request.
	downUntil atomic.Int64
}

type StoreOption func(*Store)

// WithKeyPrefix scopes window keys, e.g. per environment.
func WithKeyPrefix(prefix string) StoreOption {
	return func(s *Store) {
		prefix = strings.TrimSpace(prefix)
		if prefix != "" && !strings.HasSuffix(prefix, ":") {
			prefix += ":"
		}
		s.prefix = prefix
	}
}

// WithCallTimeout bounds each Record round trip. A hung Redis must not stall
// the request pipeline, so keep this short.
func WithCallTimeout(d time.Duration) StoreOption {
	return func(s *Store) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithCooldown sets how long the store reports itself unavailable after a
// failed call before it is probed again.
func WithCooldown(d time.Duration) StoreOption {
	return func(s *Store) {
		if d > 0 {
			s.cooldown = d
		}
	}
}

func New(client rueidis.Client, window time.Duration, opts ...StoreOption) (*Store, error) {
	if client == nil {
		return nil, fmt.Errorf("window: client is required")
	}
	if window <= 0 {
		return nil, fmt.Errorf("window: window must be positive, got %v", window)
	}
	s := &Store{
		client:   client,
		window:   window,
		timeout:  150 * time.Millisecond,
		cooldown: 3 * time.Second,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

// Record implements ratelimit.WindowStore. Any failure (timeout, connection
// error, script error) marks the store unavailable for the cooldown and is
// returned to the caller; the caller decides to fall back, never to retry.
func (s *Store) Record(ctx context.Context, key ratelimit.Key, now time.Time) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	nowMs := strconv.FormatInt(now.UnixMilli(), 10)
	windowMs := strconv.FormatInt(s.window.Milliseconds(), 10)
	member := nowMs + "-" + uuid.Must(uuid.NewV4()).String()

	res := luaSlidingWindow.Exec(ctx, s.client,
		[]string{s.key(key)},
		[]string{nowMs, windowMs, member},
	)
	count, err := res.AsInt64()
	if err != nil {
		s.markUnavailable(now)
		return 0, fmt.Errorf("window: record %q: %w", key, err)
	}

	s.downUntil.Store(0)
	return int(count), nil
}

// Available implements ratelimit.DistributedStore.
func (s *Store) Available(now time.Time) bool {
	return now.UnixNano() >= s.downUntil.Load()
}

func (s *Store) markUnavailable(now time.Time) {
	s.downUntil.Store(now.Add(s.cooldown).UnixNano())
}

func (s *Store) key(key ratelimit.Key) string {
	return s.prefix + string(key)
}
