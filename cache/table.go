package cache

import (
	"sync"
	"sync/atomic"

	"github.com/IvanBrykalov/concache/internal/util"
)

// tableBin is one independently lockable partition of the hash table
// substrate. Structural mutation (insert/remove/replace and the compute
// family) takes the bin's mutex; plain reads do not block on writes to
// other bins, and a bin's own ownerGID lets compute operations detect
// same-goroutine reentrancy without a real reentrant lock.
type tableBin[K comparable, V any] struct {
	mu       sync.Mutex
	m        map[K]*entry[K, V]
	ownerGID atomic.Uint64 // 0 = unlocked; set only while mu is held by a compute call
}

// table is the concurrent hash table substrate. It is grown
// cooperatively: a resizing goroutine builds a fresh, larger bins slice
// and publishes it with a single atomic pointer swap. This approximates
// a true forwarding-sentinel migration: in-flight operations that loaded
// the old bins slice just before a swap simply finish against the old
// (smaller, still internally consistent) table.
type table[K comparable, V any] struct {
	bins     atomic.Pointer[[]*tableBin[K, V]]
	resizeMu sync.Mutex

	count       atomic.Int64 // live entry count
	totalWeight atomic.Int64 // live weight sum
}

const tableLoadFactor = 4 // average entries per bin before growth

func newTable[K comparable, V any](estimatedCapacity int64) *table[K, V] {
	n := util.ReasonableShardCount()
	if estimatedCapacity > 0 {
		want := util.NextPow2(uint64(estimatedCapacity) / tableLoadFactor)
		if want > uint64(n) {
			n = int(want)
		}
	}
	if n < 1 {
		n = 1
	}
	bins := make([]*tableBin[K, V], n)
	for i := range bins {
		bins[i] = &tableBin[K, V]{m: make(map[K]*entry[K, V])}
	}
	t := &table[K, V]{}
	t.bins.Store(&bins)
	return t
}

func (t *table[K, V]) binFor(hash uint64) (*tableBin[K, V], []*tableBin[K, V]) {
	bins := *t.bins.Load()
	idx := util.Rehash(hash) & uint64(len(bins)-1)
	return bins[idx], bins
}

func (t *table[K, V]) size() int64 { return t.count.Load() }

func (t *table[K, V]) weight() int64 { return t.totalWeight.Load() }

// get is the common read path: a single bin-map lookup under a very short
// critical section on the bin's mutex. It is not wait-free: it waits for
// any operation holding the same bin, including a compute callback on a
// different key of that bin.
func (t *table[K, V]) get(hash uint64, key K) (*entry[K, V], bool) {
	bin, _ := t.binFor(hash)
	bin.mu.Lock()
	e, ok := bin.m[key]
	bin.mu.Unlock()
	if !ok || e.getState() != live {
		return nil, false
	}
	return e, true
}

// putResult captures what a structural table mutation did, so the caller
// (cache.go) can enqueue the right write-buffer event and removal-listener
// dispatch without a second map lookup.
type putResult[K comparable, V any] struct {
	previous    *entry[K, V]
	hadPrevious bool
}

// put installs newEntry, replacing and returning any previous live entry.
func (t *table[K, V]) put(hash uint64, key K, newE *entry[K, V]) putResult[K, V] {
	bin, _ := t.binFor(hash)
	bin.mu.Lock()
	old, existed := bin.m[key]
	bin.m[key] = newE
	bin.mu.Unlock()

	if existed {
		old.setState(retired)
		t.totalWeight.Add(int64(newE.weight) - int64(old.weight))
		return putResult[K, V]{previous: old, hadPrevious: true}
	}
	t.count.Add(1)
	t.totalWeight.Add(int64(newE.weight))
	return putResult[K, V]{}
}

// putIfAbsent installs newEntry only if key is unmapped. Returns the
// existing live entry on failure.
func (t *table[K, V]) putIfAbsent(hash uint64, key K, newE *entry[K, V]) (existing *entry[K, V], installed bool) {
	bin, _ := t.binFor(hash)
	bin.mu.Lock()
	if old, ok := bin.m[key]; ok && old.getState() == live {
		bin.mu.Unlock()
		return old, false
	}
	bin.m[key] = newE
	bin.mu.Unlock()
	t.count.Add(1)
	t.totalWeight.Add(int64(newE.weight))
	return nil, true
}

// replace swaps the value of an existing live entry, returning the
// previous entry. If expected is non-nil, the swap only happens when the
// current entry equals expected (CAS-by-identity, backing
// Cache.ReplaceExpected and the refresh publish step).
func (t *table[K, V]) replace(hash uint64, key K, expected *entry[K, V], newE *entry[K, V]) (previous *entry[K, V], ok bool) {
	bin, _ := t.binFor(hash)
	bin.mu.Lock()
	cur, exists := bin.m[key]
	if !exists || cur.getState() != live {
		bin.mu.Unlock()
		return nil, false
	}
	if expected != nil && cur != expected {
		bin.mu.Unlock()
		return nil, false
	}
	bin.m[key] = newE
	bin.mu.Unlock()
	cur.setState(retired)
	t.totalWeight.Add(int64(newE.weight) - int64(cur.weight))
	return cur, true
}

// remove deletes key unconditionally, returning the removed live entry.
// If expected is non-nil, removal only happens when the current entry
// equals expected.
func (t *table[K, V]) remove(hash uint64, key K, expected *entry[K, V]) (removed *entry[K, V], ok bool) {
	bin, _ := t.binFor(hash)
	bin.mu.Lock()
	cur, exists := bin.m[key]
	if !exists {
		bin.mu.Unlock()
		return nil, false
	}
	if expected != nil && cur != expected {
		bin.mu.Unlock()
		return nil, false
	}
	delete(bin.m, key)
	bin.mu.Unlock()
	cur.setState(retired)
	t.count.Add(-1)
	t.totalWeight.Add(-int64(cur.weight))
	return cur, true
}

// withBinLocked runs fn with the owning bin's lock held for the entire
// duration of fn, implementing the compute family's atomicity contract:
// atomic compute operations hold the bin lock for the duration of the
// user function. If the current goroutine already holds this bin's lock
// — a reentrant computeIfAbsent-style call, whether on the same key
// (self-recursion) or a different key hashing to the same bin — fn is
// not run and reentrant is true.
func (t *table[K, V]) withBinLocked(hash uint64, fn func(bin map[K]*entry[K, V]) error) (reentrant bool, err error) {
	bin, _ := t.binFor(hash)
	gid := util.GoroutineID()
	if gid != 0 && bin.ownerGID.Load() == gid {
		return true, nil
	}
	bin.mu.Lock()
	bin.ownerGID.Store(gid)
	defer func() {
		bin.ownerGID.Store(0)
		bin.mu.Unlock()
	}()
	err = fn(bin.m)
	return false, err
}

// adjustAccounting updates the table's live-entry/weight counters for a
// structural change made inside withBinLocked (insert, remove, or
// in-place weight change), since that helper only grants access to the
// raw map.
func (t *table[K, V]) adjustAccounting(deltaCount int64, deltaWeight int64) {
	if deltaCount != 0 {
		t.count.Add(deltaCount)
	}
	if deltaWeight != 0 {
		t.totalWeight.Add(deltaWeight)
	}
}

// snapshot returns every live entry at some linearization point, backing
// weakly consistent views/iterators: they reflect the state of the map
// at some point at or after iterator creation, never throw on concurrent
// modification, and each key is visited at most once.
func (t *table[K, V]) snapshot() []*entry[K, V] {
	bins := *t.bins.Load()
	out := make([]*entry[K, V], 0, t.size())
	for _, bin := range bins {
		bin.mu.Lock()
		for _, e := range bin.m {
			if e.getState() == live {
				out = append(out, e)
			}
		}
		bin.mu.Unlock()
	}
	return out
}

// maybeGrow doubles the bin count when the average load factor is
// exceeded. Called opportunistically from the drain; growth is
// cooperative rather than forced on every mutation.
func (t *table[K, V]) maybeGrow() {
	bins := *t.bins.Load()
	if t.size() < int64(len(bins)*tableLoadFactor) {
		return
	}
	t.resizeMu.Lock()
	defer t.resizeMu.Unlock()
	bins = *t.bins.Load() // re-read: another goroutine may have already grown
	if t.size() < int64(len(bins)*tableLoadFactor) {
		return
	}
	newLen := len(bins) * 2
	newBins := make([]*tableBin[K, V], newLen)
	for i := range newBins {
		newBins[i] = &tableBin[K, V]{m: make(map[K]*entry[K, V])}
	}
	mask := uint64(newLen - 1)
	for _, old := range bins {
		old.mu.Lock()
		for k, e := range old.m {
			h := util.Rehash(util.HashKey(k))
			nb := newBins[h&mask]
			nb.m[k] = e
		}
		old.mu.Unlock()
	}
	t.bins.Store(&newBins)
}
