package vmm

import (
	"gophermm/kernel"
	"gophermm/kernel/mm"
)

// PopulateArea makes sure that every page of the alloc regions covering
// [start, start+size) is mapped. Unmapped pages of lazy regions are
// allocated and mapped; mapped pages that are not writable are made
// exclusive when access includes mm.FlagWrite. The range must be page-aligned
// and fully covered by regions.
//
// A failure may leave some pages of the range populated. Callers recover by
// unmapping the affected regions.
func (as *AddrSpace) PopulateArea(start, size uintptr, access mm.MappingFlags) *kernel.Error {
	if err := as.validateRegion(start, size, mm.Size4K); err != nil {
		return err
	}

	end := start + size
	for _, r := range as.regions.intersecting(start, end) {
		if r.start > start {
			break
		}

		if !r.backend.IsLinear() {
			regionEnd := r.End()
			if end < regionEnd {
				regionEnd = end
			}

			if err := as.populateRegion(r, start, regionEnd, access); err != nil {
				return err
			}
		}

		start = r.End()
		if start >= end {
			break
		}
	}

	if start < end {
		return errNoMemory
	}

	return nil
}

// populateRegion populates the pages of alloc region r that overlap [from, to).
func (as *AddrSpace) populateRegion(r *Region, from, to uintptr, access mm.MappingFlags) *kernel.Error {
	var (
		align     = r.backend.Align()
		pageStart = mm.AlignDown(from, align)
		pageEnd   = mm.AlignDown(to+uintptr(align)-1, align)
		err       *kernel.Error
	)

	r.backend.forEachPage(pageStart, pageEnd-pageStart, func(vaddr uintptr) bool {
		paddr, pteFlags, pageSize, queryErr := as.pt.Query(vaddr)
		switch {
		case queryErr == nil:
			if access&mm.FlagWrite != 0 && pteFlags&mm.FlagWrite == 0 {
				if !handleCOWFault(as.pt, vaddr, paddr, r.flags, pageSize) {
					err = errNoMemory
				}
			}
		case r.backend.Populate():
			err = errBadAddress
		case !r.backend.handlePageFault(as.pt, vaddr, r.flags):
			err = errNoMemory
		}

		return err == nil
	})

	return err
}

// EnsureRegionMapped populates every page that contains a byte of
// [start, start+size). Unlike PopulateArea the range does not need to be
// page-aligned.
func (as *AddrSpace) EnsureRegionMapped(start, size uintptr, access mm.MappingFlags) *kernel.Error {
	rng, ok := mm.RangeFromStartSize(start, size)
	if !ok {
		return errAddrOutOfRange
	}

	if rng.IsEmpty() {
		return nil
	}

	pageStart := mm.AlignDown(rng.Start, mm.Size4K)
	pageEnd, ok := mm.AlignUp(rng.End, mm.Size4K)
	if !ok {
		return errAddrOutOfRange
	}

	return as.PopulateArea(pageStart, pageEnd-pageStart, access)
}
