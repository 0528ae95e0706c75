package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"planhub/modules/clock"
)

// stubStore is a scriptable DistributedStore.
type stubStore struct {
	count     int
	err       error
	panicWith any
	available bool
	calls     int
}

func (s *stubStore) Record(_ context.Context, _ Key, _ time.Time) (int, error) {
	s.calls++
	if s.panicWith != nil {
		panic(s.panicWith)
	}
	return s.count, s.err
}

func (s *stubStore) Available(_ time.Time) bool { return s.available }

func newTestLimiter(t *testing.T, policy Policy, opts ...LimiterOption) *Limiter {
	t.Helper()
	l, err := NewLimiter(policy, clock.NewFake(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)), opts...)
	require.NoError(t, err)
	return l
}

func TestNewLimiterRejectsInvalidPolicy(t *testing.T) {
	_, err := NewLimiter(Policy{Limit: 0, Period: time.Minute, MaxTrackedIdentities: 10}, nil)
	assert.ErrorIs(t, err, ErrInvalidPolicy)

	_, err = NewLimiter(Policy{Limit: 10, Period: 0, MaxTrackedIdentities: 10}, nil)
	assert.ErrorIs(t, err, ErrInvalidPolicy)

	_, err = NewLimiter(Policy{Limit: 10, Period: time.Minute, MaxTrackedIdentities: 0}, nil)
	assert.ErrorIs(t, err, ErrInvalidPolicy)
}

func TestLimiterUsesPrimaryWhenHealthy(t *testing.T) {
	primary := &stubStore{count: 7, available: true}
	l := newTestLimiter(t, testPolicy(10, time.Minute, 100), WithPrimary(primary))

	d := l.Check(context.Background(), "client-a")
	assert.True(t, d.Allowed)
	assert.Equal(t, 7, d.Count)
	assert.Equal(t, 3, d.Remaining)
	assert.Equal(t, 1, primary.calls)
}

func TestLimiterDeniesOverLimit(t *testing.T) {
	primary := &stubStore{count: 11, available: true}
	l := newTestLimiter(t, testPolicy(10, time.Minute, 100), WithPrimary(primary))

	d := l.Check(context.Background(), "client-a")
	assert.False(t, d.Allowed)
	assert.Equal(t, 0, d.Remaining)
}

func TestLimiterFallsBackOnStoreError(t *testing.T) {
	primary := &stubStore{err: errors.New("connection refused"), available: true}
	l := newTestLimiter(t, testPolicy(10, time.Minute, 100), WithPrimary(primary))

	// The failure is absorbed: the caller sees an ordinary decision counted
	// by the local store.
	for i := 1; i <= 3; i++ {
		d := l.Check(context.Background(), "client-a")
		assert.True(t, d.Allowed)
		assert.Equal(t, i, d.Count)
	}
}

func TestLimiterSkipsUnavailablePrimary(t *testing.T) {
	primary := &stubStore{err: errors.New("down"), available: false}
	l := newTestLimiter(t, testPolicy(10, time.Minute, 100), WithPrimary(primary))

	d := l.Check(context.Background(), "client-a")
	assert.True(t, d.Allowed)
	assert.Equal(t, 1, d.Count)
	assert.Zero(t, primary.calls, "a store in cooldown must not be called at all")
	assert.True(t, l.Degraded())
}

func TestLimiterFailsOpenOnPanic(t *testing.T) {
	primary := &stubStore{panicWith: "boom", available: true}
	l := newTestLimiter(t, testPolicy(10, time.Minute, 100), WithPrimary(primary))

	d := l.Check(context.Background(), "client-a")
	assert.True(t, d.Allowed)
	assert.Equal(t, 10, d.Remaining, "fail-open decisions report a full window")
}

func TestLimiterRunsLocalOnlyWithoutPrimary(t *testing.T) {
	l := newTestLimiter(t, testPolicy(2, time.Minute, 100))
	assert.True(t, l.Degraded())

	assert.True(t, l.Check(context.Background(), "client-a").Allowed)
	assert.True(t, l.Check(context.Background(), "client-a").Allowed)
	assert.False(t, l.Check(context.Background(), "client-a").Allowed)
}

func TestLimiterBypassSkipsStores(t *testing.T) {
	primary := &stubStore{count: 999, available: true}
	l := newTestLimiter(t, testPolicy(10, time.Minute, 100), WithPrimary(primary), WithBypass(true))

	d := l.Check(context.Background(), "client-a")
	assert.True(t, d.Allowed)
	assert.Equal(t, 10, d.Remaining)
	assert.Zero(t, primary.calls)
}

func TestLimiterResetAtTracksClock(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	fake := clock.NewFake(start)
	l, err := NewLimiter(testPolicy(10, time.Minute, 100), fake)
	require.NoError(t, err)

	d := l.Check(context.Background(), "client-a")
	assert.Equal(t, start.Add(time.Minute), d.ResetAt)

	fake.Advance(30 * time.Second)
	d = l.Check(context.Background(), "client-a")
	assert.Equal(t, start.Add(90*time.Second), d.ResetAt)
}
