package vmm

import (
	"gophermm/kernel"
	"gophermm/kernel/mm"
)

// Read copies len(buf) bytes starting at virtual address start into buf.
// Lazy pages in the range are populated first. The copy goes through the
// physical memory behind each page and ignores the region flags; callers
// acting on behalf of a restricted context check CanAccessRange first.
func (as *AddrSpace) Read(start uintptr, buf []byte) *kernel.Error {
	if err := as.EnsureRegionMapped(start, uintptr(len(buf)), mm.FlagRead); err != nil {
		return err
	}

	return as.processAreaData(start, uintptr(len(buf)), func(mem []byte, offset uintptr) {
		copy(buf[offset:], mem)
	})
}

// Write copies buf to the address space starting at virtual address start.
// Pages in the range that are shared with another address space are copied
// first so the write is only visible in this address space. Like Read, Write
// does not check the region flags so read-only regions can be filled in.
func (as *AddrSpace) Write(start uintptr, buf []byte) *kernel.Error {
	if err := as.EnsureRegionMapped(start, uintptr(len(buf)), mm.FlagWrite); err != nil {
		return err
	}

	return as.processAreaData(start, uintptr(len(buf)), func(mem []byte, offset uintptr) {
		copy(mem, buf[offset:])
	})
}

// processAreaData calls fn with a slice overlaying the physical memory behind
// each page-bounded chunk of [start, start+size) and the offset of the chunk
// from start.
func (as *AddrSpace) processAreaData(start, size uintptr, fn func(mem []byte, offset uintptr)) *kernel.Error {
	if !as.ContainsRange(start, size) {
		return errAddrOutOfRange
	}

	for done := uintptr(0); done < size; {
		vaddr := start + done
		paddr, _, pageSize, err := as.pt.Query(vaddr)
		if err != nil {
			return errUnmappedAccess
		}

		chunk := uintptr(pageSize) - mm.AlignOffset(vaddr, pageSize)
		if chunk > size-done {
			chunk = size - done
		}

		mem := mm.PhysBytes(paddr, chunk)
		if mem == nil {
			return errUnmappedAccess
		}

		fn(mem, done)
		done += chunk
	}

	return nil
}
