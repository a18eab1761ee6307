package cache

import "reflect"

// KeySet is a live, write-through view over a cache's keys: Remove
// writes through to the map, and Snapshot/ForEach are weakly consistent
// — they reflect the map's state at some point at or after the view was
// obtained, never panic on a concurrent modification, and visit each key
// at most once.
type KeySet[K comparable] interface {
	Len() int
	Contains(key K) bool
	Remove(key K) bool
	Snapshot() []K
	ForEach(fn func(key K) bool)
}

// ValueCollection is the values() counterpart to KeySet. Contains does a
// linear scan with reflect.DeepEqual, matching the teacher-absent but
// Caffeine-standard "not indexed by value" behavior of this view.
type ValueCollection[K comparable, V any] interface {
	Len() int
	Contains(value V) bool
	Snapshot() []V
	ForEach(fn func(value V) bool)
}

// Entry is one key/value pair as seen through an EntrySet snapshot or
// iteration.
type Entry[K comparable, V any] struct {
	Key   K
	Value V
}

// EntrySet is the entrySet() counterpart to KeySet: Put and Remove write
// through to the map.
type EntrySet[K comparable, V any] interface {
	Len() int
	Put(key K, value V) (previous V, hadPrevious bool)
	Remove(key K) bool
	Snapshot() []Entry[K, V]
	ForEach(fn func(e Entry[K, V]) bool)
}

type keySetView[K comparable, V any] struct{ c *impl[K, V] }

func (v keySetView[K, V]) Len() int { return int(v.c.Size()) }

func (v keySetView[K, V]) Contains(key K) bool {
	_, ok := v.c.Get(key)
	return ok
}

func (v keySetView[K, V]) Remove(key K) bool {
	_, removed := v.c.Remove(key)
	return removed
}

func (v keySetView[K, V]) Snapshot() []K {
	entries := v.c.tbl.snapshot()
	out := make([]K, len(entries))
	for i, e := range entries {
		out[i] = e.key
	}
	return out
}

func (v keySetView[K, V]) ForEach(fn func(key K) bool) {
	for _, e := range v.c.tbl.snapshot() {
		if !fn(e.key) {
			return
		}
	}
}

type valueCollectionView[K comparable, V any] struct{ c *impl[K, V] }

func (v valueCollectionView[K, V]) Len() int { return int(v.c.Size()) }

func (v valueCollectionView[K, V]) Contains(value V) bool {
	for _, e := range v.c.tbl.snapshot() {
		if reflect.DeepEqual(e.loadValue(), value) {
			return true
		}
	}
	return false
}

func (v valueCollectionView[K, V]) Snapshot() []V {
	entries := v.c.tbl.snapshot()
	out := make([]V, len(entries))
	for i, e := range entries {
		out[i] = e.loadValue()
	}
	return out
}

func (v valueCollectionView[K, V]) ForEach(fn func(value V) bool) {
	for _, e := range v.c.tbl.snapshot() {
		if !fn(e.loadValue()) {
			return
		}
	}
}

type entrySetView[K comparable, V any] struct{ c *impl[K, V] }

func (v entrySetView[K, V]) Len() int { return int(v.c.Size()) }

func (v entrySetView[K, V]) Put(key K, value V) (V, bool) { return v.c.Put(key, value) }

func (v entrySetView[K, V]) Remove(key K) bool {
	_, removed := v.c.Remove(key)
	return removed
}

func (v entrySetView[K, V]) Snapshot() []Entry[K, V] {
	entries := v.c.tbl.snapshot()
	out := make([]Entry[K, V], len(entries))
	for i, e := range entries {
		out[i] = Entry[K, V]{Key: e.key, Value: e.loadValue()}
	}
	return out
}

func (v entrySetView[K, V]) ForEach(fn func(e Entry[K, V]) bool) {
	for _, e := range v.c.tbl.snapshot() {
		if !fn(Entry[K, V]{Key: e.key, Value: e.loadValue()}) {
			return
		}
	}
}
