package cache

import "testing"

func TestReadBuffer_RecordAndDrainAll(t *testing.T) {
	rb := newReadBuffer[string, int]()
	e1 := newEntry("a", 1, 0, 1)
	e2 := newEntry("b", 2, 0, 1)
	rb.recordAccess(e1)
	rb.recordAccess(e2)

	seen := map[string]bool{}
	rb.drainAll(func(e *entry[string, int]) { seen[e.key] = true })

	if !seen["a"] || !seen["b"] {
		t.Fatalf("drainAll must observe every offered entry, got %v", seen)
	}

	seen = map[string]bool{}
	rb.drainAll(func(e *entry[string, int]) { seen[e.key] = true })
	if len(seen) != 0 {
		t.Fatalf("a second drainAll with no new offers must see nothing, got %v", seen)
	}
}

func TestReadBufferStripe_OverflowDropsRatherThanBlocks(t *testing.T) {
	var s readBufferStripe[string, int]
	for i := 0; i < readBufferCapacity*2; i++ {
		s.offer(newEntry("k", i, 0, 1))
	}
	count := 0
	s.drain(func(*entry[string, int]) { count++ })
	if count > readBufferCapacity {
		t.Fatalf("stripe must never retain more than its capacity, got %d", count)
	}
}

func TestWriteBuffer_NeverDrops(t *testing.T) {
	wb := newWriteBuffer[string, int]()
	const n = 10_000
	for i := 0; i < n; i++ {
		wb.offer(writeEvent[string, int]{kind: writeInsert})
	}
	events := wb.drainAll()
	if len(events) != n {
		t.Fatalf("write buffer must retain every offered event, want %d got %d", n, len(events))
	}
	if wb.approxLen() != 0 {
		t.Fatalf("drainAll must empty the queue, approxLen=%d", wb.approxLen())
	}
}
