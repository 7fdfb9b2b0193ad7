package vmm

import (
	"fmt"

	"gophermm/kernel"
	"gophermm/kernel/mm"

	"github.com/google/btree"
)

// regionTreeDegree is the degree of the B-tree that stores the regions of an
// address space.
const regionTreeDegree = 16

// Region is a contiguous range of virtual memory with uniform access flags
// and a single backend.
type Region struct {
	start   uintptr
	size    uintptr
	flags   mm.MappingFlags
	backend Backend
}

// Start returns the first address of the region.
func (r *Region) Start() uintptr { return r.start }

// End returns the address immediately after the region.
func (r *Region) End() uintptr { return r.start + r.size }

// Size returns the size of the region in bytes.
func (r *Region) Size() uintptr { return r.size }

// Flags returns the access flags of the region.
func (r *Region) Flags() mm.MappingFlags { return r.flags }

// Backend returns the region backend.
func (r *Region) Backend() Backend { return r.backend }

// VirtRange returns the address range covered by the region.
func (r *Region) VirtRange() mm.VirtRange { return mm.VirtRange{Start: r.start, End: r.End()} }

// String implements fmt.Stringer for Region.
func (r *Region) String() string {
	return fmt.Sprintf("%s %s %s", r.VirtRange(), r.flags, r.backend)
}

// regionSet keeps the regions of an address space ordered by start address.
// Regions in the set never overlap.
type regionSet struct {
	tree *btree.BTreeG[*Region]
}

func newRegionSet() regionSet {
	return regionSet{
		tree: btree.NewG(regionTreeDegree, func(a, b *Region) bool { return a.start < b.start }),
	}
}

// Len returns the number of regions in the set.
func (s regionSet) Len() int { return s.tree.Len() }

// ascend calls fn for each region in ascending address order until fn
// returns false.
func (s regionSet) ascend(fn func(*Region) bool) {
	s.tree.Ascend(fn)
}

// all returns the regions in ascending address order.
func (s regionSet) all() []*Region {
	regions := make([]*Region, 0, s.tree.Len())
	s.ascend(func(r *Region) bool {
		regions = append(regions, r)
		return true
	})
	return regions
}

// find returns the region that contains vaddr or nil.
func (s regionSet) find(vaddr uintptr) *Region {
	var found *Region
	s.tree.DescendLessOrEqual(&Region{start: vaddr}, func(r *Region) bool {
		if vaddr < r.End() {
			found = r
		}
		return false
	})
	return found
}

// overlaps returns true if any region intersects rng.
func (s regionSet) overlaps(rng mm.VirtRange) bool {
	if rng.IsEmpty() {
		return false
	}

	var overlap bool
	s.tree.DescendLessOrEqual(&Region{start: rng.End - 1}, func(r *Region) bool {
		overlap = r.End() > rng.Start
		return false
	})
	return overlap
}

// intersecting returns the regions that intersect [start, end) in ascending
// address order.
func (s regionSet) intersecting(start, end uintptr) []*Region {
	var regions []*Region
	if start >= end {
		return regions
	}

	if r := s.find(start); r != nil && r.start < start {
		regions = append(regions, r)
	}

	s.tree.AscendRange(&Region{start: start}, &Region{start: end}, func(r *Region) bool {
		regions = append(regions, r)
		return true
	})
	return regions
}

// mapRegion populates r according to its backend and adds it to the set.
func (s regionSet) mapRegion(r *Region, pt PageTable) *kernel.Error {
	if s.overlaps(r.VirtRange()) {
		return errRegionOverlap
	}

	if err := r.backend.mapRegion(pt, r.start, r.size, r.flags); err != nil {
		return err
	}

	s.tree.ReplaceOrInsert(r)
	return nil
}

// unmapRange removes [start, end) from the set. Regions that straddle the
// range boundaries are shrunk and a region that contains the whole range is
// split in two.
func (s regionSet) unmapRange(start, end uintptr, pt PageTable) {
	for _, r := range s.intersecting(start, end) {
		regionEnd := r.End()
		switch {
		case r.start >= start && regionEnd <= end:
			s.tree.Delete(r)
			r.backend.unmapRegion(pt, r.start, r.size)

		case r.start < start && regionEnd > end:
			r.backend.unmapRegion(pt, start, end-start)
			r.size = start - r.start
			s.tree.ReplaceOrInsert(&Region{start: end, size: regionEnd - end, flags: r.flags, backend: r.backend})

		case r.start < start:
			r.backend.unmapRegion(pt, start, regionEnd-start)
			r.size = start - r.start

		default:
			r.backend.unmapRegion(pt, r.start, end-r.start)
			s.tree.Delete(r)
			r.start, r.size = end, regionEnd-end
			s.tree.ReplaceOrInsert(r)
		}
	}
}

// protectRange rewrites the flags of the part of each region that falls in
// [start, end). Regions are split so that the flags stay uniform within each
// region. Regions that already carry flags are left untouched.
func (s regionSet) protectRange(start, end uintptr, flags mm.MappingFlags, pt PageTable) {
	for _, r := range s.intersecting(start, end) {
		if r.flags == flags {
			continue
		}

		var (
			regionEnd = r.End()
			protStart = start
			protEnd   = end
			target    = r
		)

		if r.start > protStart {
			protStart = r.start
		}
		if regionEnd < protEnd {
			protEnd = regionEnd
		}

		r.backend.protectRegion(pt, protStart, protEnd-protStart, flags)

		if r.start < protStart {
			r.size = protStart - r.start
			target = &Region{start: protStart, flags: r.flags, backend: r.backend}
			s.tree.ReplaceOrInsert(target)
		}
		target.size = protEnd - protStart

		if protEnd < regionEnd {
			s.tree.ReplaceOrInsert(&Region{start: protEnd, size: regionEnd - protEnd, flags: r.flags, backend: r.backend})
		}

		target.flags = flags
	}
}

// clear unmaps every region and empties the set.
func (s regionSet) clear(pt PageTable) {
	for _, r := range s.all() {
		r.backend.unmapRegion(pt, r.start, r.size)
	}
	s.tree.Clear(false)
}

// findFreeArea returns the lowest address X aligned to align such that
// X >= max(hint, limit.Start), X+size <= limit.End and [X, X+size) does not
// intersect any region.
func (s regionSet) findFreeArea(hint, size uintptr, limit mm.VirtRange, align mm.Size) (uintptr, bool) {
	if hint < limit.Start {
		hint = limit.Start
	}

	candidate, ok := mm.AlignUp(hint, align)
	if !ok {
		return 0, false
	}

	// A region that starts before the candidate may still cover it.
	from := candidate
	if r := s.find(candidate); r != nil {
		from = r.start
	}

	fits := func(limitEnd uintptr) bool {
		end := candidate + size
		return end >= candidate && end <= limitEnd && end <= limit.End
	}

	var found bool
	s.tree.AscendGreaterOrEqual(&Region{start: from}, func(r *Region) bool {
		if r.End() <= candidate {
			return true
		}

		if r.start > candidate && fits(r.start) {
			found = true
			return false
		}

		if candidate, ok = mm.AlignUp(r.End(), align); !ok {
			return false
		}
		return true
	})

	if found {
		return candidate, true
	}

	if !ok || !fits(limit.End) {
		return 0, false
	}
	return candidate, true
}
