package cache

import "testing"

func TestViews_KeysValuesEntriesSnapshot(t *testing.T) {
	c, _ := New[string, int](Config[string, int]{})
	c.Put("a", 1)
	c.Put("b", 2)
	c.Put("c", 3)

	keys := c.Keys()
	if keys.Len() != 3 {
		t.Fatalf("KeySet.Len want 3, got %d", keys.Len())
	}
	if !keys.Contains("a") || keys.Contains("z") {
		t.Fatal("KeySet.Contains disagrees with cache membership")
	}

	values := c.Values()
	if !values.Contains(2) {
		t.Fatal("ValueCollection.Contains must find a present value")
	}

	entries := c.Entries()
	snap := entries.Snapshot()
	if len(snap) != 3 {
		t.Fatalf("EntrySet.Snapshot want 3 entries, got %d", len(snap))
	}
}

func TestViews_WriteThrough(t *testing.T) {
	c, _ := New[string, int](Config[string, int]{})
	c.Put("a", 1)

	keys := c.Keys()
	if !keys.Remove("a") {
		t.Fatal("KeySet.Remove must write through to the map")
	}
	if _, ok := c.Get("a"); ok {
		t.Fatal("removal through KeySet must be visible via the cache directly")
	}

	entries := c.Entries()
	entries.Put("b", 9)
	if v, ok := c.Get("b"); !ok || v != 9 {
		t.Fatalf("EntrySet.Put must write through, got v=%d ok=%v", v, ok)
	}
}

func TestViews_ForEachCanStopEarly(t *testing.T) {
	c, _ := New[int, int](Config[int, int]{})
	for i := 0; i < 10; i++ {
		c.Put(i, i)
	}
	visited := 0
	c.Keys().ForEach(func(int) bool {
		visited++
		return visited < 3
	})
	if visited != 3 {
		t.Fatalf("ForEach must stop once the callback returns false, visited=%d", visited)
	}
}
