package cache

// orderedIndex is a drain-owned intrusive doubly linked list used by both
// fixed-expiration indices: the after-write FIFO (ordered by write
// timestamp) and the after-access LRU (ordered by access timestamp).
// head is the oldest entry (the next candidate for expiry), tail is the
// newest.
//
// The two indices differ only in which pair of intrusive link fields they
// thread through the shared *entry, so a single implementation is
// parameterized over accessor closures rather than duplicated.
type orderedIndex[K comparable, V any] struct {
	head, tail *entry[K, V]
	len        int

	getPrev func(*entry[K, V]) *entry[K, V]
	getNext func(*entry[K, V]) *entry[K, V]
	setPrev func(*entry[K, V], *entry[K, V])
	setNext func(*entry[K, V], *entry[K, V])
}

func newWriteOrderIndex[K comparable, V any]() *orderedIndex[K, V] {
	return &orderedIndex[K, V]{
		getPrev: func(e *entry[K, V]) *entry[K, V] { return e.writeOrderPrev },
		getNext: func(e *entry[K, V]) *entry[K, V] { return e.writeOrderNext },
		setPrev: func(e, p *entry[K, V]) { e.writeOrderPrev = p },
		setNext: func(e, n *entry[K, V]) { e.writeOrderNext = n },
	}
}

func newAccessOrderIndex[K comparable, V any]() *orderedIndex[K, V] {
	return &orderedIndex[K, V]{
		getPrev: func(e *entry[K, V]) *entry[K, V] { return e.accessOrderPrev },
		getNext: func(e *entry[K, V]) *entry[K, V] { return e.accessOrderNext },
		setPrev: func(e, p *entry[K, V]) { e.accessOrderPrev = p },
		setNext: func(e, n *entry[K, V]) { e.accessOrderNext = n },
	}
}

// linked reports whether e currently participates in this index: either
// it is the sole element (head==tail==e) or it has a neighbor.
func (idx *orderedIndex[K, V]) linked(e *entry[K, V]) bool {
	return idx.head == e || idx.tail == e || idx.getPrev(e) != nil || idx.getNext(e) != nil
}

func (idx *orderedIndex[K, V]) pushBack(e *entry[K, V]) {
	idx.setPrev(e, idx.tail)
	idx.setNext(e, nil)
	if idx.tail != nil {
		idx.setNext(idx.tail, e)
	}
	idx.tail = e
	if idx.head == nil {
		idx.head = e
	}
	idx.len++
}

func (idx *orderedIndex[K, V]) moveToBack(e *entry[K, V]) {
	if idx.tail == e {
		return
	}
	if idx.linked(e) {
		idx.unlink(e)
	} else {
		idx.len++
	}
	idx.setPrev(e, idx.tail)
	idx.setNext(e, nil)
	if idx.tail != nil {
		idx.setNext(idx.tail, e)
	}
	idx.tail = e
	if idx.head == nil {
		idx.head = e
	}
}

func (idx *orderedIndex[K, V]) unlink(e *entry[K, V]) {
	p, n := idx.getPrev(e), idx.getNext(e)
	if p != nil {
		idx.setNext(p, n)
	}
	if n != nil {
		idx.setPrev(n, p)
	}
	if idx.head == e {
		idx.head = n
	}
	if idx.tail == e {
		idx.tail = p
	}
	idx.setPrev(e, nil)
	idx.setNext(e, nil)
	idx.len--
	if idx.len < 0 {
		idx.len = 0
	}
}

func (idx *orderedIndex[K, V]) remove(e *entry[K, V]) {
	if !idx.linked(e) {
		return
	}
	idx.unlink(e)
}

func (idx *orderedIndex[K, V]) peekFront() *entry[K, V] { return idx.head }
