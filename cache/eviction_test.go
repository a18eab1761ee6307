package cache

import "testing"

func TestAdmissionPolicy_NewArrivalEntersWindow(t *testing.T) {
	ap := newAdmissionPolicy[int, int](10, false, func(k int) uint64 { return uint64(k) })
	e := newEntry(1, 1, 0, 1)
	ap.onAdd(e)
	if e.evictRegion != regionWindow {
		t.Fatalf("new arrival must enter the window, got region %v", e.evictRegion)
	}
	if ap.window.totalUnits != 1 {
		t.Fatalf("window totalUnits want 1, got %d", ap.window.totalUnits)
	}
}

func TestAdmissionPolicy_ProbationPromotesOnAccess(t *testing.T) {
	ap := newAdmissionPolicy[int, int](100, false, func(k int) uint64 { return uint64(k) })
	e := newEntry(1, 1, 0, 1)
	ap.probation.pushFront(e, 1)
	e.evictRegion = regionProbation

	ap.onAccess(e)
	if e.evictRegion != regionProtected {
		t.Fatalf("an accessed probation entry must promote to protected, got %v", e.evictRegion)
	}
}

func TestAdmissionPolicy_EvictRespectsCapacity(t *testing.T) {
	const cap = 8
	ap := newAdmissionPolicy[int, int](cap, false, func(k int) uint64 { return uint64(k) })

	entries := map[int]*entry[int, int]{}
	units := 0
	for i := 0; i < 64; i++ {
		e := newEntry(i, i, 0, 1)
		entries[i] = e
		ap.onAdd(e)
		units++
		ap.evict(func() int64 { return int64(units) }, func(victim *entry[int, int]) {
			units--
			delete(entries, victim.key)
		})
	}
	if int64(units) > cap {
		t.Fatalf("admission policy must keep usage within capacity, got %d units > cap %d", units, cap)
	}
	if len(entries) != units {
		t.Fatalf("tracked entry count %d must match units %d", len(entries), units)
	}
}

func TestAdmissionPolicy_OnRemoveDetachesFromCurrentRegion(t *testing.T) {
	ap := newAdmissionPolicy[int, int](100, false, func(k int) uint64 { return uint64(k) })
	e := newEntry(1, 1, 0, 1)
	ap.onAdd(e) // window
	ap.onRemove(e)
	if ap.window.totalUnits != 0 {
		t.Fatalf("onRemove must detach from the window, totalUnits=%d", ap.window.totalUnits)
	}
	if e.evictRegion != regionNone {
		t.Fatalf("onRemove must clear the region tag, got %v", e.evictRegion)
	}
}
