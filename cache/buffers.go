package cache

import (
	"sync"
	"sync/atomic"

	"github.com/IvanBrykalov/concache/internal/util"
)

// readBufferCapacity is the bounded ring size per stripe. Small and
// fixed: accesses are cheap to drop under pressure since a dropped
// access event only delays a promotion, never correctness.
const readBufferCapacity = 256

// readBufferStripe is one lock-free-on-the-producer-side bounded ring.
// Multiple producers race to claim a slot via an atomic counter; overflow
// (a producer that outruns the last drain) is simply dropped, since reads
// must never block on the drain catching up.
type readBufferStripe[K comparable, V any] struct {
	_       util.CacheLinePad
	writeAt atomic.Int64
	readAt  atomic.Int64
	ring    [readBufferCapacity]atomic.Pointer[entry[K, V]]
}

func (s *readBufferStripe[K, V]) offer(e *entry[K, V]) {
	at := s.writeAt.Add(1) - 1
	if at-s.readAt.Load() >= readBufferCapacity {
		s.writeAt.Add(-1) // undo: buffer is full, drop this event
		return
	}
	s.ring[at%readBufferCapacity].Store(e)
}

// drain hands every offered entry since the last drain to fn, in
// approximately offer order, then advances the read cursor. Weakly
// consistent: an offer that has claimed its slot but not yet stored into
// it when drain runs is skipped on this pass; its event may then be
// picked up on a later pass or overwritten, i.e. dropped like an
// overflow.
func (s *readBufferStripe[K, V]) drain(fn func(e *entry[K, V])) {
	write := s.writeAt.Load()
	read := s.readAt.Load()
	for i := read; i < write; i++ {
		slot := &s.ring[i%readBufferCapacity]
		if e := slot.Load(); e != nil {
			fn(e)
			slot.Store(nil)
		}
	}
	s.readAt.Store(write)
}

// readBuffer stripes the per-access bookkeeping across several rings so
// concurrent readers on different goroutines rarely contend for the same
// ring. Stripe selection uses a sync.Pool token: per-P pool locality
// gives cheap, approximate thread affinity without the cost of resolving
// a real goroutine id on every read (see internal/util.GoroutineID,
// reserved for the cold reentrancy-detection path instead).
type readBuffer[K comparable, V any] struct {
	stripes []readBufferStripe[K, V]
	mask    uint64
}

type stripeToken struct{ idx int }

func newReadBuffer[K comparable, V any]() *readBuffer[K, V] {
	n := util.ReasonableShardCount()
	rb := &readBuffer[K, V]{
		stripes: make([]readBufferStripe[K, V], n),
		mask:    uint64(n - 1),
	}
	return rb
}

func (rb *readBuffer[K, V]) stripeIndex() int {
	tok := stripeTokenPool.Get()
	t, ok := tok.(*stripeToken)
	if !ok || t == nil {
		t = &stripeToken{idx: int(stripeRoundRobin.Add(1))}
	}
	idx := uint64(t.idx) & rb.mask
	stripeTokenPool.Put(t)
	return int(idx)
}

var stripeTokenPool = sync.Pool{New: func() any { return &stripeToken{idx: int(stripeRoundRobin.Add(1))} }}
var stripeRoundRobin atomic.Int64

func (rb *readBuffer[K, V]) recordAccess(e *entry[K, V]) {
	rb.stripes[rb.stripeIndex()].offer(e)
}

func (rb *readBuffer[K, V]) drainAll(fn func(e *entry[K, V])) {
	for i := range rb.stripes {
		rb.stripes[i].drain(fn)
	}
}

// writeEventKind distinguishes the four write-buffer event shapes:
// INSERT, UPDATE, REMOVE, COMPUTE.
type writeEventKind int

const (
	writeInsert writeEventKind = iota
	writeUpdate
	writeRemove
	writeCompute
)

// writeEvent is one entry in the MPSC write buffer. Write events are
// never dropped, so unlike the read buffer this is an unbounded FIFO
// guarded by a plain mutex — correct and simple; the single drain is
// the only consumer, so contention is limited to producers enqueueing.
type writeEvent[K comparable, V any] struct {
	kind     writeEventKind
	current  *entry[K, V] // the entry now resident (nil for REMOVE, which carries the removed entry in previous)
	previous *entry[K, V] // the entry displaced, if any (REPLACED/removed)
	cause    RemovalCause // meaningful for writeRemove
}

type writeBuffer[K comparable, V any] struct {
	mu    sync.Mutex
	queue []writeEvent[K, V]
}

func newWriteBuffer[K comparable, V any]() *writeBuffer[K, V] {
	return &writeBuffer[K, V]{}
}

func (wb *writeBuffer[K, V]) offer(ev writeEvent[K, V]) (pending int) {
	wb.mu.Lock()
	wb.queue = append(wb.queue, ev)
	pending = len(wb.queue)
	wb.mu.Unlock()
	return pending
}

// drainAll atomically swaps out the whole pending queue and returns it,
// so the drain can process events without holding the lock.
func (wb *writeBuffer[K, V]) drainAll() []writeEvent[K, V] {
	wb.mu.Lock()
	events := wb.queue
	wb.queue = nil
	wb.mu.Unlock()
	return events
}

func (wb *writeBuffer[K, V]) approxLen() int {
	wb.mu.Lock()
	n := len(wb.queue)
	wb.mu.Unlock()
	return n
}
