package ratelimit

import (
	"container/list"
	"context"
	"hash/fnv"
	"sync"
	"time"
)

// defaultShardCount spreads keys over independent locks so that the fallback
// path does not serialize every request behind one mutex exactly when the
// primary store is already degraded.
const defaultShardCount = 16

// LocalWindow is the in-process fallback WindowStore. It keeps a timestamp
// log per key, guarded per shard, and holds at most
// Policy.MaxTrackedIdentities keys in total. When a shard is full the
// oldest-last-seen key in that shard is evicted to make room, which resets
// the evicted client's window: overflow clients fail open rather than the
// store growing without bound under high-cardinality (e.g. spoofed IP) keys.
//
// State is local to one process. During a distributed-store outage a
// multi-instance deployment enforces the limit per instance only.
type LocalWindow struct {
	period time.Duration
	shards []*windowShard
}

type windowShard struct {
	mu       sync.Mutex
	capacity int
	entries  map[Key]*windowEntry
	// order tracks last-seen recency; front is the oldest.
	order *list.List
}

type windowEntry struct {
	key  Key
	hits []time.Time
	elem *list.Element
}

var _ WindowStore = (*LocalWindow)(nil)

func NewLocalWindow(policy Policy) *LocalWindow {
	n := defaultShardCount
	if policy.MaxTrackedIdentities < n {
		n = policy.MaxTrackedIdentities
	}
	if n < 1 {
		n = 1
	}

	shards := make([]*windowShard, n)
	base := policy.MaxTrackedIdentities / n
	rem := policy.MaxTrackedIdentities % n
	for i := range shards {
		capacity := base
		if i < rem {
			capacity++
		}
		shards[i] = &windowShard{
			capacity: capacity,
			entries:  make(map[Key]*windowEntry),
			order:    list.New(),
		}
	}

	return &LocalWindow{
		period: policy.Period,
		shards: shards,
	}
}

// Record implements WindowStore. The context is accepted for interface
// symmetry; no I/O happens here and the call never fails.
func (w *LocalWindow) Record(_ context.Context, key Key, now time.Time) (int, error) {
	sh := w.shard(key)

	sh.mu.Lock()
	defer sh.mu.Unlock()

	e, ok := sh.entries[key]
	if !ok {
		if len(sh.entries) >= sh.capacity {
			sh.evictOldest()
		}
		e = &windowEntry{key: key}
		e.elem = sh.order.PushBack(e)
		sh.entries[key] = e
	} else {
		sh.order.MoveToBack(e.elem)
	}

	e.prune(now.Add(-w.period))
	e.hits = append(e.hits, now)
	return len(e.hits), nil
}

// Len reports how many identities are currently tracked.
func (w *LocalWindow) Len() int {
	n := 0
	for _, sh := range w.shards {
		sh.mu.Lock()
		n += len(sh.entries)
		sh.mu.Unlock()
	}
	return n
}

// Sweep drops identities whose most recent hit is older than now minus the
// window; they no longer contribute to any count and only occupy capacity.
func (w *LocalWindow) Sweep(now time.Time) int {
	cutoff := now.Add(-w.period)
	removed := 0
	for _, sh := range w.shards {
		removed += sh.sweep(cutoff)
	}
	return removed
}

func (w *LocalWindow) shard(key Key) *windowShard {
	if len(w.shards) == 1 {
		return w.shards[0]
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return w.shards[h.Sum32()%uint32(len(w.shards))]
}

// evictOldest removes the least-recently-seen entry. Must hold sh.mu.
func (sh *windowShard) evictOldest() {
	front := sh.order.Front()
	if front == nil {
		return
	}
	victim := front.Value.(*windowEntry)
	sh.order.Remove(front)
	delete(sh.entries, victim.key)
}

func (sh *windowShard) sweep(cutoff time.Time) int {
	sh.mu.Lock()
	defer sh.mu.Unlock()

	removed := 0
	for el := sh.order.Front(); el != nil; {
		next := el.Next()
		e := el.Value.(*windowEntry)
		if n := len(e.hits); n == 0 || !e.hits[n-1].After(cutoff) {
			sh.order.Remove(el)
			delete(sh.entries, e.key)
			removed++
		}
		el = next
	}
	return removed
}

// prune drops hits at or before cutoff. Hits are appended in Record order,
// so expired ones always form a prefix.
func (e *windowEntry) prune(cutoff time.Time) {
	i := 0
	for i < len(e.hits) && !e.hits[i].After(cutoff) {
		i++
	}
	if i > 0 {
		e.hits = append(e.hits[:0], e.hits[i:]...)
	}
}
