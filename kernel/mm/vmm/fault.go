package vmm

import (
	"gophermm/kernel/mm"
	"gophermm/kernel/mm/pfn"
)

// HandlePageFault attempts to resolve a fault caused by an access of type
// access to vaddr. It returns true if the access can be retried and false if
// the fault must be reported to the faulting context.
func (as *AddrSpace) HandlePageFault(vaddr uintptr, access mm.MappingFlags) bool {
	if !as.vaRange.Contains(vaddr) {
		return false
	}

	r := as.regions.find(vaddr)
	if r == nil || !r.flags.Contains(access) {
		log.Debugf("unresolved %s fault at 0x%x", access, vaddr)
		return false
	}

	paddr, pteFlags, pageSize, err := as.pt.Query(vaddr)
	if err != nil {
		return r.backend.handlePageFault(as.pt, vaddr, r.flags)
	}

	if access&mm.FlagWrite == 0 {
		return true
	}

	// Linear mappings are shared and never copied.
	if r.backend.IsLinear() {
		return pteFlags&mm.FlagWrite != 0
	}

	return handleCOWFault(as.pt, vaddr, paddr, r.flags, pageSize)
}

// handleCOWFault gives the address space exclusive write access to the page
// of size pageSize at paddr that is mapped at vaddr. An exclusively owned
// page is remapped in place with flags; a shared page is copied to a new
// frame first and the reference to the shared frame is dropped once the new
// mapping is installed.
func handleCOWFault(pt PageTable, vaddr, paddr uintptr, flags mm.MappingFlags, pageSize mm.Size) bool {
	paddr = mm.AlignDown(paddr, pageSize)

	switch refs := pfn.RefCount(paddr); {
	case refs == 0:
		panic(errRefCountZero)

	case refs == 1:
		_, _, flush, err := pt.Protect(vaddr, flags)
		if err != nil {
			return false
		}
		flush.Flush()
		return true

	default:
		newPaddr, err := allocFrame(false, pageSize)
		if err != nil {
			return false
		}

		copyFrame(newPaddr, paddr, pageSize)

		_, flush, err := pt.Remap(vaddr, newPaddr, flags)
		if err != nil {
			deallocFrame(newPaddr, pageSize)
			return false
		}
		flush.Flush()

		deallocFrame(paddr, pageSize)
		return true
	}
}
