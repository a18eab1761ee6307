package cache

import (
	"math/rand"

	"github.com/IvanBrykalov/concache/internal/util"
)

// admissionTieBreakProbability is a small random tie-break with rare
// bias: on a frequency tie between a window overflow candidate and the
// probation victim, the victim normally wins (incumbent kept), but with
// this small probability the candidate is admitted anyway, preventing a
// once-popular incumbent from permanently blocking newcomers of equal
// estimated frequency.
const admissionTieBreakProbability = 0.01

// evictList is a drain-owned intrusive doubly linked list (MRU at head,
// LRU at tail) backing one of the window/probation/protected regions.
// totalUnits is either a live count or a live weight sum depending on
// the cache's bound mode.
type evictList[K comparable, V any] struct {
	head, tail *entry[K, V]
	totalUnits int64
}

func (l *evictList[K, V]) pushFront(e *entry[K, V], units int64) {
	e.evictPrev = nil
	e.evictNext = l.head
	if l.head != nil {
		l.head.evictPrev = e
	}
	l.head = e
	if l.tail == nil {
		l.tail = e
	}
	l.totalUnits += units
}

func (l *evictList[K, V]) moveToFront(e *entry[K, V]) {
	if l.head == e {
		return
	}
	l.unlink(e)
	e.evictPrev = nil
	e.evictNext = l.head
	if l.head != nil {
		l.head.evictPrev = e
	}
	l.head = e
	if l.tail == nil {
		l.tail = e
	}
}

func (l *evictList[K, V]) unlink(e *entry[K, V]) {
	if e.evictPrev != nil {
		e.evictPrev.evictNext = e.evictNext
	}
	if e.evictNext != nil {
		e.evictNext.evictPrev = e.evictPrev
	}
	if l.head == e {
		l.head = e.evictNext
	}
	if l.tail == e {
		l.tail = e.evictPrev
	}
	e.evictPrev, e.evictNext = nil, nil
}

func (l *evictList[K, V]) remove(e *entry[K, V], units int64) {
	l.unlink(e)
	l.totalUnits -= units
	if l.totalUnits < 0 {
		l.totalUnits = 0
	}
}

func (l *evictList[K, V]) peekTail() *entry[K, V] { return l.tail }

// admissionPolicy implements the window-TinyLFU-style eviction engine:
// admission via frequency sketch comparison, and the segmented
// window/probation/protected order maintained by the drain. Drain-private,
// like the rest of the maintenance state.
type admissionPolicy[K comparable, V any] struct {
	sketch *frequencySketch

	window, probation, protected evictList[K, V]

	windowCapUnits    int64
	protectedCapUnits int64
	maxCapUnits       int64

	weighted bool // true => units are entry weights; false => units are 1 per entry
	hashOf   func(K) uint64
	rng      *rand.Rand
}

// windowFraction and protectedFraction: the window has a fixed fraction
// of total capacity; the protected region has a fixed fraction of the
// main segment.
const (
	windowFraction    = 0.01
	protectedFraction = 0.80
)

func newAdmissionPolicy[K comparable, V any](maxCapUnits int64, weighted bool, hashOf func(K) uint64) *admissionPolicy[K, V] {
	windowCap := int64(float64(maxCapUnits) * windowFraction)
	if windowCap < 1 {
		windowCap = 1
	}
	mainCap := maxCapUnits - windowCap
	protectedCap := int64(float64(mainCap) * protectedFraction)
	return &admissionPolicy[K, V]{
		sketch:            newFrequencySketch(maxCapUnits),
		windowCapUnits:    windowCap,
		protectedCapUnits: protectedCap,
		maxCapUnits:       maxCapUnits,
		weighted:          weighted,
		hashOf:            hashOf,
		rng:               rand.New(rand.NewSource(0xC4FF1E)),
	}
}

func (ap *admissionPolicy[K, V]) unitOf(e *entry[K, V]) int64 {
	if ap.weighted {
		return int64(e.weight)
	}
	return 1
}

func (ap *admissionPolicy[K, V]) recordRead(key K) {
	ap.sketch.increment(util.Rehash(ap.hashOf(key)))
}

// onAdd admits a new arrival unconditionally into the window.
func (ap *admissionPolicy[K, V]) onAdd(e *entry[K, V]) {
	units := ap.unitOf(e)
	ap.window.pushFront(e, units)
	e.evictRegion = regionWindow
}

// onAccess promotes on hit: window entries simply reorder; probation
// entries promote to protected; protected entries reorder, demoting the
// protected LRU back to probation when protected overflows.
func (ap *admissionPolicy[K, V]) onAccess(e *entry[K, V]) {
	switch e.evictRegion {
	case regionWindow:
		ap.window.moveToFront(e)
	case regionProbation:
		units := ap.unitOf(e)
		ap.probation.remove(e, units)
		ap.protected.pushFront(e, units)
		e.evictRegion = regionProtected
		if ap.protected.totalUnits > ap.protectedCapUnits {
			if demoted := ap.protected.peekTail(); demoted != nil {
				dUnits := ap.unitOf(demoted)
				ap.protected.remove(demoted, dUnits)
				ap.probation.pushFront(demoted, dUnits)
				demoted.evictRegion = regionProbation
			}
		}
	case regionProtected:
		ap.protected.moveToFront(e)
	}
}

// onRemove detaches e from whichever region list it currently occupies;
// called for explicit removal, replace, and expiry so the eviction order
// never references a retired/dead entry.
func (ap *admissionPolicy[K, V]) onRemove(e *entry[K, V]) {
	units := ap.unitOf(e)
	switch e.evictRegion {
	case regionWindow:
		ap.window.remove(e, units)
	case regionProbation:
		ap.probation.remove(e, units)
	case regionProtected:
		ap.protected.remove(e, units)
	}
	e.evictRegion = regionNone
}

// evict runs admission/eviction until usage is within bound, invoking
// onEvict exactly once per departing entry with cause SIZE.
func (ap *admissionPolicy[K, V]) evict(currentUnits func() int64, onEvict func(e *entry[K, V])) {
	for currentUnits() > ap.maxCapUnits {
		if ap.window.totalUnits > ap.windowCapUnits {
			candidate := ap.window.peekTail()
			if candidate == nil {
				break
			}
			ap.window.remove(candidate, ap.unitOf(candidate))
			ap.admit(candidate, onEvict)
			continue
		}
		victim := ap.probation.peekTail()
		if victim == nil {
			victim = ap.protected.peekTail()
		}
		if victim == nil {
			victim = ap.window.peekTail()
		}
		if victim == nil {
			break
		}
		ap.onRemove(victim)
		onEvict(victim)
	}
}

// admit runs the admission competition between a window-overflow
// candidate and the probation victim.
func (ap *admissionPolicy[K, V]) admit(candidate *entry[K, V], onEvict func(e *entry[K, V])) {
	victim := ap.probation.peekTail()
	if victim == nil {
		units := ap.unitOf(candidate)
		ap.probation.pushFront(candidate, units)
		candidate.evictRegion = regionProbation
		return
	}

	candidateFreq := ap.sketch.frequency(util.Rehash(ap.hashOf(candidate.key)))
	victimFreq := ap.sketch.frequency(util.Rehash(ap.hashOf(victim.key)))

	admitCandidate := candidateFreq > victimFreq
	if candidateFreq == victimFreq && ap.rng.Float64() < admissionTieBreakProbability {
		admitCandidate = true
	}

	if admitCandidate {
		ap.probation.remove(victim, ap.unitOf(victim))
		onEvict(victim)
		units := ap.unitOf(candidate)
		ap.probation.pushFront(candidate, units)
		candidate.evictRegion = regionProbation
	} else {
		onEvict(candidate)
	}
}
