package vmm

import (
	"fmt"

	"gophermm/kernel"
	"gophermm/kernel/mm"
)

// backendKind identifies the mapping strategy of a Backend.
type backendKind uint8

const (
	// allocBackend regions are backed by frames obtained from the frame
	// allocator, either when the region is mapped or on first access.
	allocBackend backendKind = iota + 1

	// linearBackend regions map a contiguous range of physical memory at
	// a fixed offset.
	linearBackend
)

var errUnknownBackend = &kernel.Error{Module: "vmm", Message: "unknown region backend"}

// Backend describes how the pages of a region are backed by physical memory.
// The zero value is not a valid backend; use NewAllocBackend or
// NewLinearBackend.
type Backend struct {
	kind backendKind

	// align is the page size used for the mappings of the region.
	align mm.Size

	// populate is set for alloc regions whose frames are allocated when
	// the region is mapped.
	populate bool

	// paVaOffset is the offset of linear mappings: paddr = vaddr - paVaOffset.
	paVaOffset uintptr
}

// NewAllocBackend returns a backend that allocates frames for the region. If
// populate is set, frames are allocated when the region is mapped, otherwise
// they are allocated on first access.
func NewAllocBackend(populate bool, align mm.Size) Backend {
	return Backend{kind: allocBackend, align: align, populate: populate}
}

// NewLinearBackend returns a backend that maps vaddr to vaddr - paVaOffset.
func NewLinearBackend(paVaOffset uintptr, align mm.Size) Backend {
	return Backend{kind: linearBackend, align: align, paVaOffset: paVaOffset}
}

// IsLinear returns true for linear backends.
func (b Backend) IsLinear() bool { return b.kind == linearBackend }

// Align returns the page size used by the backend.
func (b Backend) Align() mm.Size { return b.align }

// Populate returns true for alloc backends that populate on map.
func (b Backend) Populate() bool { return b.populate }

// String implements fmt.Stringer for Backend.
func (b Backend) String() string {
	switch b.kind {
	case allocBackend:
		return fmt.Sprintf("alloc(populate: %t, align: 0x%x)", b.populate, b.align)
	case linearBackend:
		return fmt.Sprintf("linear(offset: 0x%x, align: 0x%x)", b.paVaOffset, b.align)
	default:
		return "unknown"
	}
}

// mapRegion installs the initial mappings for [start, start+size).
func (b Backend) mapRegion(pt PageTable, start, size uintptr, flags mm.MappingFlags) *kernel.Error {
	switch b.kind {
	case allocBackend:
		return b.mapAlloc(pt, start, size, flags)
	case linearBackend:
		return b.mapLinear(pt, start, size, flags)
	default:
		panic(errUnknownBackend)
	}
}

// unmapRegion removes the mappings for [start, start+size) and releases the
// frame references held by them.
func (b Backend) unmapRegion(pt PageTable, start, size uintptr) {
	switch b.kind {
	case allocBackend:
		b.unmapAlloc(pt, start, size)
	case linearBackend:
		b.unmapLinear(pt, start, size)
	default:
		panic(errUnknownBackend)
	}
}

// protectRegion rewrites the flags of the mapped pages in [start, start+size).
func (b Backend) protectRegion(pt PageTable, start, size uintptr, flags mm.MappingFlags) {
	switch b.kind {
	case allocBackend, linearBackend:
		b.forEachPage(start, size, func(vaddr uintptr) bool {
			if _, _, flush, err := pt.Protect(vaddr, flags); err == nil {
				flush.Flush()
			}
			return true
		})
	default:
		panic(errUnknownBackend)
	}
}

// handlePageFault resolves a fault on an unmapped page of the region. It
// returns false if the fault cannot be resolved.
func (b Backend) handlePageFault(pt PageTable, vaddr uintptr, flags mm.MappingFlags) bool {
	switch b.kind {
	case allocBackend:
		return b.faultAlloc(pt, vaddr, flags)
	case linearBackend:
		return false
	default:
		panic(errUnknownBackend)
	}
}

// forEachPage calls fn with the address of each page of size b.align in
// [start, start+size) until fn returns false.
func (b Backend) forEachPage(start, size uintptr, fn func(uintptr) bool) {
	it, ok := mm.NewPageIter(start, start+size, b.align)
	if !ok {
		return
	}

	for vaddr, ok := it.Next(); ok; vaddr, ok = it.Next() {
		if !fn(vaddr) {
			return
		}
	}
}
