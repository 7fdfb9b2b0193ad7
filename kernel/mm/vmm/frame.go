package vmm

import (
	"gophermm/kernel"
	"gophermm/kernel/mm"
	"gophermm/kernel/mm/pfn"
)

var (
	// allocContiguousFn is used by tests to override frame allocations.
	allocContiguousFn = mm.AllocContiguous
)

// allocFrame allocates a page of size align, optionally clears it and takes
// the first reference to it.
func allocFrame(zeroed bool, align mm.Size) (uintptr, *kernel.Error) {
	page, err := allocContiguousFn(align.Pages(), align)
	if err != nil {
		return 0, errNoMemory
	}

	if zeroed {
		page.Zero()
	}

	pfn.IncRef(page.StartPaddr())
	return page.StartPaddr(), nil
}

// deallocFrame drops a reference to the page at paddr and returns it to the
// frame allocator when the last reference is gone. The caller must have
// removed its page table entry for the page.
func deallocFrame(paddr uintptr, align mm.Size) {
	if pfn.DecRef(paddr) == 1 {
		mm.ReleaseFrames(mm.FrameFromAddress(paddr), align.Pages())
	}
}

// copyFrame copies size bytes from the page at src to the page at dst.
func copyFrame(dst, src uintptr, size mm.Size) {
	copy(mm.PhysBytes(dst, uintptr(size)), mm.PhysBytes(src, uintptr(size)))
}
