package vmm

import (
	"gophermm/kernel"
	"gophermm/kernel/mm"
)

// mapAlloc allocates and maps every page of the region when the backend
// populates on map. A failed allocation releases the pages mapped so far.
func (b Backend) mapAlloc(pt PageTable, start, size uintptr, flags mm.MappingFlags) *kernel.Error {
	log.Debugf("map_alloc: [0x%x, 0x%x) %s (populate: %t)", start, start+size, flags, b.populate)
	if !b.populate {
		return nil
	}

	var err *kernel.Error
	b.forEachPage(start, size, func(vaddr uintptr) bool {
		var paddr uintptr
		if paddr, err = allocFrame(true, b.align); err != nil {
			b.unmapAlloc(pt, start, vaddr-start)
			return false
		}

		flush, mapErr := pt.Map(vaddr, paddr, b.align, flags)
		if mapErr != nil {
			deallocFrame(paddr, b.align)
			b.unmapAlloc(pt, start, vaddr-start)
			err = mapErr
			return false
		}
		flush.Ignore()
		return true
	})

	return err
}

// unmapAlloc removes the mapped pages in [start, start+size) and drops the
// references to their frames. Pages that were never faulted in are skipped.
func (b Backend) unmapAlloc(pt PageTable, start, size uintptr) {
	log.Debugf("unmap_alloc: [0x%x, 0x%x)", start, start+size)

	b.forEachPage(start, size, func(vaddr uintptr) bool {
		paddr, _, flush, err := pt.Unmap(vaddr)
		if err != nil {
			return true
		}

		flush.Flush()
		deallocFrame(paddr, b.align)
		return true
	})
}

// faultAlloc maps a zeroed frame at the page containing vaddr. Regions that
// populate on map never fault lazily.
func (b Backend) faultAlloc(pt PageTable, vaddr uintptr, flags mm.MappingFlags) bool {
	if b.populate {
		return false
	}

	paddr, err := allocFrame(true, b.align)
	if err != nil {
		return false
	}

	flush, err := pt.Map(mm.AlignDown(vaddr, b.align), paddr, b.align, flags)
	if err != nil {
		deallocFrame(paddr, b.align)
		return false
	}

	flush.Flush()
	return true
}
