package vmm

import (
	"gophermm/kernel"
	"gophermm/kernel/mm"
)

func (b Backend) mapLinear(pt PageTable, start, size uintptr, flags mm.MappingFlags) *kernel.Error {
	log.Debugf("map_linear: [0x%x, 0x%x) -> [0x%x, 0x%x) %s", start, start+size, start-b.paVaOffset, start+size-b.paVaOffset, flags)

	var err *kernel.Error
	b.forEachPage(start, size, func(vaddr uintptr) bool {
		flush, mapErr := pt.Map(vaddr, vaddr-b.paVaOffset, b.align, flags)
		if mapErr != nil {
			b.unmapLinear(pt, start, vaddr-start)
			err = mapErr
			return false
		}
		flush.Flush()
		return true
	})

	return err
}

func (b Backend) unmapLinear(pt PageTable, start, size uintptr) {
	log.Debugf("unmap_linear: [0x%x, 0x%x)", start, start+size)

	b.forEachPage(start, size, func(vaddr uintptr) bool {
		if _, _, flush, err := pt.Unmap(vaddr); err == nil {
			flush.Flush()
		}
		return true
	})
}
