package cache

import "context"

// Cache is a concurrent, policy-driven in-process key/value cache.
// All methods are safe for concurrent use by multiple goroutines.
//
// Typical complexity for operations is amortized O(1): a bin lookup plus
// constant-time list adjustments performed by the maintenance drain, on
// the Executor when one is configured and otherwise inline on the
// writing goroutine.
type Cache[K comparable, V any] interface {
	// Get returns the value for key and a presence flag. On hit, an
	// access event is recorded for the eviction/expiration bookkeeping
	// the drain performs.
	Get(key K) (V, bool)

	// GetOrLoad returns the value for key, loading it via the configured
	// Loader on miss. Concurrent loads for the same key are coalesced so
	// the loader runs at most once per miss. Returns a LoaderFailure error
	// (see IsLoaderFailure) if no Loader is configured or the loader
	// itself fails.
	GetOrLoad(ctx context.Context, key K) (V, error)

	// Put installs key→value, returning the value it replaced, if any.
	Put(key K, value V) (previous V, hadPrevious bool)

	// PutIfAbsent installs key→value only if key is unmapped, returning
	// the existing value on failure.
	PutIfAbsent(key K, value V) (existing V, installed bool)

	// Replace swaps the value of an existing entry, returning the value
	// it replaced. No-op (replaced=false) if key is absent.
	Replace(key K, value V) (previous V, replaced bool)

	// ReplaceExpected swaps the value of an existing entry only if its
	// current value deep-equals expected.
	ReplaceExpected(key K, expected, value V) bool

	// Remove deletes key unconditionally, returning the value removed,
	// if any.
	Remove(key K) (previous V, removed bool)

	// RemoveExpected deletes key only if its current value deep-equals
	// expected.
	RemoveExpected(key K, expected V) bool

	// Compute atomically reads and (possibly) rewrites the mapping for
	// key. remap sees a consistent snapshot (found reports whether key
	// was mapped) and its decision (newValue, write) takes effect
	// atomically: write=false removes/leaves-absent the key, write=true
	// installs newValue.
	Compute(key K, remap func(key K, oldValue V, found bool) (newValue V, write bool)) (result V, present bool, err error)

	// ComputeIfAbsent atomically installs a value for key if absent,
	// using mapFn to produce it. Returns IllegalState (see IsIllegalState)
	// if called reentrantly — from within another ComputeIfAbsent/
	// Compute/ComputeIfPresent/Merge callback already holding the same
	// internal bin lock, whether for the same key or a colliding one.
	ComputeIfAbsent(key K, mapFn func(key K) (V, bool)) (value V, err error)

	// ComputeIfPresent atomically rewrites key's value if present.
	ComputeIfPresent(key K, remap func(key K, oldValue V) (newValue V, write bool)) (value V, present bool, err error)

	// Merge combines value into the existing mapping for key (or installs
	// value if absent), using remap to combine old and new values.
	Merge(key K, value V, remap func(oldValue, newValue V) V) (result V, err error)

	// Size returns the number of live entries.
	Size() int64

	// Invalidate removes key, notifying any RemovalListener with cause
	// EXPLICIT.
	Invalidate(key K)

	// InvalidateAll removes the given keys, or every key when none are
	// given, each with cause EXPLICIT.
	InvalidateAll(keys ...K)

	// CleanUp forces a maintenance drain pass, applying pending
	// accesses/writes, running expiration and eviction, and dispatching
	// any resulting removal notifications.
	CleanUp()

	// Stats returns a snapshot of the lock-free statistics counters.
	// Returns the zero Stats if RecordStats was not enabled.
	Stats() Stats

	// Keys, Values and Entries return live, write-through views over the
	// cache.
	Keys() KeySet[K]
	Values() ValueCollection[K, V]
	Entries() EntrySet[K, V]
}

// LoadingCache is a Cache additionally backed by a Loader, exposing the
// refresh-after-write coordination described on Config.RefreshAfterWrite.
// Constructed by NewLoading, which requires a non-nil Config.Loader.
type LoadingCache[K comparable, V any] interface {
	Cache[K, V]

	// Refresh proactively triggers the same coalesced refresh Get would
	// trigger lazily for a stale entry, without requiring a read first.
	Refresh(ctx context.Context, key K)
}
