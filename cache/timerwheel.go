package cache

import "math"

const wheelBucketsPerLevel = 64

// wheelSpans are the bucket widths (nanoseconds) of each wheel level, a
// coarse outer ring and finer inner rings approximating human-scale
// intervals: 1.07s, 1.14m, 1.22h, 1.30d, 6.5d.
var wheelSpans = [5]int64{
	1_070_000_000,
	68_400_000_000,
	4_392_000_000_000,
	112_320_000_000_000,
	561_600_000_000_000,
}

// timerWheel is the hierarchical timer wheel backing variable expiry.
// Drain-private.
type timerWheel[K comparable, V any] struct {
	buckets   [5][wheelBucketsPerLevel]orderedIndex[K, V]
	ticks     [5]int64 // current bucket-index position per level
	scheduled int64     // count of entries currently linked into some bucket
}

// hasScheduled reports whether any entry is currently linked into the
// wheel, so a caller deciding whether to arm a wakeup for variable expiry
// doesn't need to scan buckets.
func (w *timerWheel[K, V]) hasScheduled() bool { return w.scheduled > 0 }

func newTimerWheel[K comparable, V any]() *timerWheel[K, V] {
	w := &timerWheel[K, V]{}
	for lvl := range w.buckets {
		for b := range w.buckets[lvl] {
			w.buckets[lvl][b] = orderedIndex[K, V]{
				getPrev: func(e *entry[K, V]) *entry[K, V] { return e.wheelPrev },
				getNext: func(e *entry[K, V]) *entry[K, V] { return e.wheelNext },
				setPrev: func(e, p *entry[K, V]) { e.wheelPrev = p },
				setNext: func(e, n *entry[K, V]) { e.wheelNext = n },
			}
		}
	}
	return w
}

// init anchors the wheel's per-level tick counters to nowNanos so the
// first advance() call has no artificial backlog to cascade through.
func (w *timerWheel[K, V]) init(nowNanos int64) {
	for lvl, span := range wheelSpans {
		w.ticks[lvl] = nowNanos / span
	}
}

// levelAndBucket picks the coarsest level whose single bucket span still
// contains deadlineNanos relative to nowNanos, placing the entry in the
// coarsest bucket whose span contains the deadline. Deadlines beyond the
// wheel's total range go to the outermost ring, in the bucket given by
// the deadline modulo that ring's length, and are rescheduled when that
// bucket elapses.
func (w *timerWheel[K, V]) levelAndBucket(nowNanos, deadlineNanos int64) (level, bucket int) {
	if deadlineNanos <= nowNanos {
		return 0, int(w.ticks[0] % wheelBucketsPerLevel)
	}
	delay := deadlineNanos - nowNanos
	for lvl, span := range wheelSpans {
		if delay < span*wheelBucketsPerLevel {
			idx := (deadlineNanos / span) % wheelBucketsPerLevel
			return lvl, int(idx)
		}
	}
	last := len(wheelSpans) - 1
	idx := (deadlineNanos / wheelSpans[last]) % wheelBucketsPerLevel
	return last, int(idx)
}

// schedule links e into the wheel according to its current
// varExpireNanos, unlinking it from any previous bucket first.
func (w *timerWheel[K, V]) schedule(nowNanos int64, e *entry[K, V]) {
	w.unschedule(e)
	deadline := e.varExpireNanos.Load()
	if deadline <= 0 || deadline == math.MaxInt64 {
		return // no variable deadline, or "eternal"
	}
	lvl, bucket := w.levelAndBucket(nowNanos, deadline)
	w.buckets[lvl][bucket].pushBack(e)
	e.wheelBucket = lvl*wheelBucketsPerLevel + bucket
	w.scheduled++
}

func (w *timerWheel[K, V]) unschedule(e *entry[K, V]) {
	if e.wheelBucket < 0 {
		return
	}
	lvl, bucket := e.wheelBucket/wheelBucketsPerLevel, e.wheelBucket%wheelBucketsPerLevel
	w.buckets[lvl][bucket].remove(e)
	e.wheelBucket = -1
	w.scheduled--
}

// advance cascades buckets whose nominal time window has fully elapsed,
// calling expire for entries whose deadline has actually passed and
// rescheduling (cascading to a finer level) the rest as time progresses.
// The bucket containing nowNanos is also scanned, and its entries whose
// deadline has passed are expired. Bounded to a modest number of buckets
// per level per call so a long-idle cache catching up does not stall the
// caller's drain.
func (w *timerWheel[K, V]) advance(nowNanos int64, expire func(e *entry[K, V])) {
	const maxBucketsPerLevelPerPass = wheelBucketsPerLevel * 2
	for lvl, span := range wheelSpans {
		target := nowNanos / span
		steps := 0
		for w.ticks[lvl] < target && steps < maxBucketsPerLevelPerPass {
			bucket := int(w.ticks[lvl] % wheelBucketsPerLevel)
			idx := &w.buckets[lvl][bucket]
			w.ticks[lvl]++
			steps++
			for e := idx.peekFront(); e != nil; {
				next := idx.getNext(e)
				idx.remove(e)
				e.wheelBucket = -1
				w.scheduled--
				deadline := e.varExpireNanos.Load()
				if deadline <= nowNanos {
					expire(e)
				} else {
					w.schedule(nowNanos, e)
				}
				e = next
			}
		}
		if w.ticks[lvl] == target {
			idx := &w.buckets[lvl][int(target%wheelBucketsPerLevel)]
			for e := idx.peekFront(); e != nil; {
				next := idx.getNext(e)
				if e.varExpireNanos.Load() <= nowNanos {
					idx.remove(e)
					e.wheelBucket = -1
					w.scheduled--
					expire(e)
				}
				e = next
			}
		}
	}
}
