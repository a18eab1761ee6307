package cache

import "sync/atomic"

// entryState is the LIVE/RETIRED/DEAD lifecycle flag.
type entryState int32

const (
	live entryState = iota
	retired
	dead
)

// region tags an entry's current position in the window/probation/protected
// segmentation used by the eviction engine.
type region uint8

const (
	regionWindow region = iota
	regionProbation
	regionProtected
	regionNone // not participating in the bounded eviction order
)

// entry is the uniquely-identified record backing one live mapping. Every
// live entry is reachable by key via the table substrate and, when
// eviction is configured, occupies exactly one position in the eviction
// order.
//
// Fields fall into two ownership classes:
//   - table-owned: key, value, state — mutated under the owning bin's lock.
//   - drain-owned: the three sets of intrusive links and the region tag —
//     mutated only by the single in-flight drain.
//
// writeTimeNanos, accessTimeNanos and varExpireNanos are updated
// synchronously outside the bin lock (plain atomics) so that expiry can be
// observed immediately on the hot Get/Put path, the way the teacher's
// shard.go checks expiredLocked on every Get without waiting for a
// maintenance pass.
type entry[K comparable, V any] struct {
	key K

	value atomic.Pointer[V]

	weight int32 // set under the bin lock; read by the drain for weight accounting

	writeTimeNanos  atomic.Int64
	accessTimeNanos atomic.Int64
	varExpireNanos  atomic.Int64 // 0 means "no variable expiry configured for this entry"

	state atomic.Int32 // entryState

	// drain-owned: write-order FIFO (after-write expiry index).
	writeOrderPrev, writeOrderNext *entry[K, V]
	// drain-owned: access-order LRU (after-access expiry index).
	accessOrderPrev, accessOrderNext *entry[K, V]
	// drain-owned: eviction order (window/probation/protected).
	evictPrev, evictNext *entry[K, V]
	evictRegion          region
	// drain-owned: hierarchical timer wheel link.
	wheelPrev, wheelNext *entry[K, V]
	wheelBucket          int // index into the owning wheel level's bucket array, -1 if unlinked

	// refreshInFlight guards at most one in-flight refresh per key.
	refreshInFlight atomic.Bool
}

func newEntry[K comparable, V any](key K, value V, nowNanos int64, weight int32) *entry[K, V] {
	e := &entry[K, V]{key: key, weight: weight, wheelBucket: -1}
	e.value.Store(&value)
	e.writeTimeNanos.Store(nowNanos)
	e.accessTimeNanos.Store(nowNanos)
	e.state.Store(int32(live))
	return e
}

func (e *entry[K, V]) loadValue() V {
	p := e.value.Load()
	var zero V
	if p == nil {
		return zero
	}
	return *p
}

func (e *entry[K, V]) storeValue(v V) { e.value.Store(&v) }

func (e *entry[K, V]) getState() entryState { return entryState(e.state.Load()) }

func (e *entry[K, V]) casState(from, to entryState) bool {
	return e.state.CompareAndSwap(int32(from), int32(to))
}

func (e *entry[K, V]) setState(to entryState) { e.state.Store(int32(to)) }
