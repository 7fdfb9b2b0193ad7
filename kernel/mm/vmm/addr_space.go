package vmm

import (
	"fmt"
	"strings"

	"gophermm/kernel"
	"gophermm/kernel/mm"
)

// AddrSpace is a virtual address space: a range of virtual addresses, the
// regions mapped inside it and the page table that translates them.
//
// AddrSpace is not safe for concurrent use; see LockedAddrSpace.
type AddrSpace struct {
	vaRange mm.VirtRange
	regions regionSet
	pt      PageTable
}

// NewEmpty returns an address space covering [base, base+size) without any
// mappings.
func NewEmpty(base, size uintptr) (*AddrSpace, *kernel.Error) {
	vaRange, ok := mm.RangeFromStartSize(base, size)
	if !ok {
		return nil, errAddrOutOfRange
	}

	pt, err := newPageTableFn()
	if err != nil {
		return nil, errNoMemory
	}

	return &AddrSpace{
		vaRange: vaRange,
		regions: newRegionSet(),
		pt:      pt,
	}, nil
}

// Base returns the first address of the address space.
func (as *AddrSpace) Base() uintptr { return as.vaRange.Start }

// End returns the address immediately after the address space.
func (as *AddrSpace) End() uintptr { return as.vaRange.End }

// Size returns the size of the address space in bytes.
func (as *AddrSpace) Size() uintptr { return as.vaRange.Size() }

// PageTableRoot returns the physical address of the root page table.
func (as *AddrSpace) PageTableRoot() uintptr { return as.pt.RootPaddr() }

// Regions returns a snapshot of the mapped regions in ascending address order.
func (as *AddrSpace) Regions() []Region {
	regions := make([]Region, 0, as.regions.Len())
	as.regions.ascend(func(r *Region) bool {
		regions = append(regions, *r)
		return true
	})
	return regions
}

// ContainsRange returns true if [start, start+size) lies inside the address
// space.
func (as *AddrSpace) ContainsRange(start, size uintptr) bool {
	rng, ok := mm.RangeFromStartSize(start, size)
	return ok && as.vaRange.ContainsRange(rng)
}

// validateRegion checks that [start, start+size) is a non-empty range inside
// the address space whose bounds are aligned to align.
func (as *AddrSpace) validateRegion(start, size uintptr, align mm.Size) *kernel.Error {
	if size == 0 {
		return errEmptyRange
	}

	return as.validateRange(start, size, align)
}

// validateRange checks that [start, start+size) lies inside the address space
// and that its bounds are aligned to align. Empty ranges are accepted.
func (as *AddrSpace) validateRange(start, size uintptr, align mm.Size) *kernel.Error {
	if !as.ContainsRange(start, size) {
		return errAddrOutOfRange
	}

	if !mm.IsAligned(start, align) || !mm.IsAligned(size, align) {
		return errAddrNotAligned
	}

	return nil
}

// FindFreeArea returns the lowest address X aligned to align such that
// X >= max(hint, limit.Start), X+size <= limit.End and [X, X+size) does not
// intersect any mapped region. The second return value is false if no such
// address exists.
func (as *AddrSpace) FindFreeArea(hint, size uintptr, limit mm.VirtRange, align mm.Size) (uintptr, bool) {
	return as.regions.findFreeArea(hint, size, limit, align)
}

// MapLinear maps [vaddr, vaddr+size) to the physical range starting at
// paddr. The mappings are installed immediately.
func (as *AddrSpace) MapLinear(vaddr, paddr, size uintptr, flags mm.MappingFlags, align mm.Size) *kernel.Error {
	if err := as.validateRegion(vaddr, size, align); err != nil {
		return err
	}

	if !mm.IsAligned(paddr, align) {
		return errAddrNotAligned
	}

	return as.mapRegion(&Region{
		start:   vaddr,
		size:    size,
		flags:   flags,
		backend: NewLinearBackend(vaddr-paddr, align),
	})
}

// MapAlloc maps [vaddr, vaddr+size) to frames obtained from the frame
// allocator. If populate is set every page is allocated and mapped before
// MapAlloc returns and an allocation failure unmaps the whole range;
// otherwise pages are allocated when first accessed.
func (as *AddrSpace) MapAlloc(vaddr, size uintptr, flags mm.MappingFlags, populate bool, align mm.Size) *kernel.Error {
	if err := as.validateRegion(vaddr, size, align); err != nil {
		return err
	}

	return as.mapRegion(&Region{
		start:   vaddr,
		size:    size,
		flags:   flags,
		backend: NewAllocBackend(populate, align),
	})
}

func (as *AddrSpace) mapRegion(r *Region) *kernel.Error {
	if as.regions.overlaps(r.VirtRange()) {
		return errAddrInUse
	}

	return as.regions.mapRegion(r, as.pt)
}

// Unmap removes the mappings in [start, start+size). The range bounds must
// be aligned to the page size of every region they fall in. Unmapping an
// empty range is a no-op.
func (as *AddrSpace) Unmap(start, size uintptr) *kernel.Error {
	if err := as.checkRegionAlignment(start, size); err != nil || size == 0 {
		return err
	}

	as.regions.unmapRange(start, start+size, as.pt)
	return nil
}

// checkRegionAlignment validates [start, start+size) at page granularity and
// checks that its intersection with each region is aligned to the page size
// of that region.
func (as *AddrSpace) checkRegionAlignment(start, size uintptr) *kernel.Error {
	if err := as.validateRange(start, size, mm.Size4K); err != nil {
		return err
	}

	end := start + size
	for _, r := range as.regions.intersecting(start, end) {
		var (
			align     = r.backend.Align()
			partStart = start
			partEnd   = end
		)

		if r.start > partStart {
			partStart = r.start
		}
		if r.End() < partEnd {
			partEnd = r.End()
		}

		if !mm.IsAligned(partStart, align) || !mm.IsAligned(partEnd-partStart, align) {
			return errAddrNotAligned
		}
	}

	return nil
}

// UnmapUserAreas removes every region of the address space.
func (as *AddrSpace) UnmapUserAreas() {
	as.regions.clear(as.pt)
}

// Protect changes the flags of the mappings in [start, start+size). The
// range is populated first so that every page of an alloc region is mapped
// and no page that is shared with another address space becomes writable.
// Protecting an empty range is a no-op.
func (as *AddrSpace) Protect(start, size uintptr, flags mm.MappingFlags) *kernel.Error {
	if err := as.checkRegionAlignment(start, size); err != nil || size == 0 {
		return err
	}

	if err := as.PopulateArea(start, size, flags); err != nil {
		return err
	}

	as.regions.protectRange(start, start+size, flags, as.pt)
	return nil
}

// CanAccessRange returns true if [start, start+size) is covered by contiguous
// regions whose flags all include access.
func (as *AddrSpace) CanAccessRange(start, size uintptr, access mm.MappingFlags) bool {
	rng, ok := mm.RangeFromStartSize(start, size)
	if !ok {
		return false
	}

	var covered bool
	as.regions.ascend(func(r *Region) bool {
		if r.End() <= rng.Start {
			return true
		}

		if r.start > rng.Start || !r.flags.Contains(access) {
			return false
		}

		rng.Start = r.End()
		if rng.IsEmpty() {
			covered = true
			return false
		}
		return true
	})

	return covered
}

// Clear removes every region and releases the frames they own.
func (as *AddrSpace) Clear() {
	as.regions.clear(as.pt)
}

// Release clears the address space and frees its page table. The address
// space must not be used afterwards.
func (as *AddrSpace) Release() {
	as.Clear()
	as.pt.Release()
}

// CopyMappingsFrom shares the page table entries of other with this address
// space without copying its regions. It is used to make the kernel half of
// the virtual address space visible to user address spaces. The two address
// spaces must not overlap.
func (as *AddrSpace) CopyMappingsFrom(other *AddrSpace) *kernel.Error {
	if as.vaRange.Overlaps(other.vaRange) {
		return errAspaceOverlap
	}

	as.pt.CopyFrom(other.PageTableRoot(), other.Base(), other.Size())
	return nil
}

// ClearCopyRange drops the page table entries that CopyMappingsFrom shared
// for [start, start+size).
func (as *AddrSpace) ClearCopyRange(start, size uintptr) {
	as.pt.ClearCopyRange(start, size)
}

// String implements fmt.Stringer for AddrSpace.
func (as *AddrSpace) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "AddrSpace %s root: 0x%x\n", as.vaRange, as.PageTableRoot())
	as.regions.ascend(func(r *Region) bool {
		fmt.Fprintf(&sb, "  %s\n", r)
		return true
	})
	return sb.String()
}
