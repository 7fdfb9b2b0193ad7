package mm

// PageIter yields the start address of every page of a given size in the
// half-open range [start, end).
type PageIter struct {
	next, end uintptr
	step      Size
}

// NewPageIter returns an iterator over [start, end) in steps of pageSize. It
// returns false if either bound is not aligned to pageSize or if end < start.
func NewPageIter(start, end uintptr, pageSize Size) (PageIter, bool) {
	if !IsAligned(start, pageSize) || !IsAligned(end, pageSize) || end < start {
		return PageIter{}, false
	}

	return PageIter{next: start, end: end, step: pageSize}, true
}

// Next returns the next page address. The second return value is false once
// the iterator is exhausted.
func (it *PageIter) Next() (uintptr, bool) {
	if it.next >= it.end {
		return 0, false
	}

	addr := it.next
	it.next += uintptr(it.step)

	// guard against wrap-around at the top of the address space
	if it.next < addr {
		it.end = 0
	}
	return addr, true
}
