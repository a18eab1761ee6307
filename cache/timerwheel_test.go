package cache

import "testing"

func TestTimerWheel_ScheduleAndAdvanceExpires(t *testing.T) {
	w := newTimerWheel[string, int]()
	const start = int64(1_000_000_000)
	w.init(start)

	e := newEntry("a", 1, start, 1)
	e.varExpireNanos.Store(start + wheelSpans[0]/2) // well within the first level's span
	w.schedule(start, e)

	var expired []string
	w.advance(start+wheelSpans[0]/2+1, func(got *entry[string, int]) {
		expired = append(expired, got.key)
	})
	if len(expired) != 1 || expired[0] != "a" {
		t.Fatalf("expected entry 'a' to expire, got %v", expired)
	}
}

func TestTimerWheel_UnscheduleRemovesFromBucket(t *testing.T) {
	w := newTimerWheel[string, int]()
	const start = int64(1_000_000_000)
	w.init(start)

	e := newEntry("a", 1, start, 1)
	e.varExpireNanos.Store(start + wheelSpans[0]/2)
	w.schedule(start, e)
	w.unschedule(e)

	var expired []string
	w.advance(start+wheelSpans[0]*2, func(got *entry[string, int]) {
		expired = append(expired, got.key)
	})
	if len(expired) != 0 {
		t.Fatalf("unscheduled entry must not fire, got %v", expired)
	}
}

func TestTimerWheel_CascadesToFinerLevel(t *testing.T) {
	w := newTimerWheel[string, int]()
	const start = int64(0)
	w.init(start)

	e := newEntry("a", 1, start, 1)
	// Far enough out to land in a coarser level than level 0.
	e.varExpireNanos.Store(start + wheelSpans[1]*3)
	w.schedule(start, e)
	if e.wheelBucket < wheelBucketsPerLevel {
		t.Fatalf("a far-future deadline should land outside level 0, bucket=%d", e.wheelBucket)
	}

	var expired []string
	w.advance(start+wheelSpans[1]*3+1, func(got *entry[string, int]) {
		expired = append(expired, got.key)
	})
	if len(expired) != 1 {
		t.Fatalf("expected the entry to eventually expire after cascading, got %v", expired)
	}
}
