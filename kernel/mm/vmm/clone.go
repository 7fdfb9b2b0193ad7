package vmm

import (
	"gophermm/kernel"
	"gophermm/kernel/mm"
	"gophermm/kernel/mm/pfn"
)

// TryClone returns a copy of the address space that shares its mapped frames
// using copy-on-write. Linear regions are mapped again in the copy.
func (as *AddrSpace) TryClone() (*AddrSpace, *kernel.Error) {
	child, err := NewEmpty(as.Base(), as.Size())
	if err != nil {
		return nil, err
	}

	if err = as.cloneInto(child); err != nil {
		child.Release()
		return nil, err
	}

	return child, nil
}

// cloneInto recreates the regions of the address space in the empty address
// space child. Alloc regions become lazy in the child and every page mapped
// in the parent is shared read-only by both sides.
func (as *AddrSpace) cloneInto(child *AddrSpace) *kernel.Error {
	for _, r := range as.regions.all() {
		backend := r.backend
		if !backend.IsLinear() {
			backend = NewAllocBackend(false, backend.Align())
		}

		err := child.regions.mapRegion(&Region{start: r.start, size: r.size, flags: r.flags, backend: backend}, child.pt)
		if err != nil {
			return err
		}

		if backend.IsLinear() {
			continue
		}

		cowFlags := r.flags &^ mm.FlagWrite
		r.backend.forEachPage(r.start, r.size, func(vaddr uintptr) bool {
			paddr, _, pageSize, queryErr := as.pt.Query(vaddr)
			if queryErr != nil {
				return true
			}

			pfn.IncRef(paddr)

			childFlush, mapErr := child.pt.Map(vaddr, paddr, pageSize, cowFlags)
			if mapErr != nil {
				deallocFrame(paddr, pageSize)
				err = mapErr
				return false
			}
			childFlush.Flush()

			if _, _, flush, protectErr := as.pt.Protect(vaddr, cowFlags); protectErr == nil {
				flush.Flush()
			}
			return true
		})

		if err != nil {
			return err
		}
	}

	return nil
}
