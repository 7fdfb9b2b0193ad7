// Package vmm implements virtual address spaces: an ordered set of mapped
// regions on top of a page table, lazy and eager population of physical
// memory, page fault resolution and copy-on-write cloning.
package vmm

import (
	"gophermm/kernel"
	"gophermm/kernel/kfmt"
	"gophermm/kernel/mm"
	"gophermm/kernel/mm/pgtable"
)

// PageTable describes the page table operations used by an address space.
type PageTable interface {
	// RootPaddr returns the physical address of the top-level table.
	RootPaddr() uintptr

	// Map installs a mapping for the page of size pageSize at vaddr.
	Map(vaddr, paddr uintptr, pageSize mm.Size, flags mm.MappingFlags) (pgtable.Flush, *kernel.Error)

	// Unmap removes the mapping covering vaddr and returns the physical
	// address and size of the page it mapped.
	Unmap(vaddr uintptr) (uintptr, mm.Size, pgtable.Flush, *kernel.Error)

	// Query returns the translation, flags and page size for vaddr.
	Query(vaddr uintptr) (uintptr, mm.MappingFlags, mm.Size, *kernel.Error)

	// Protect replaces the flags of the mapping covering vaddr.
	Protect(vaddr uintptr, flags mm.MappingFlags) (mm.MappingFlags, mm.Size, pgtable.Flush, *kernel.Error)

	// Remap points the mapping covering vaddr to a different page.
	Remap(vaddr, paddr uintptr, flags mm.MappingFlags) (mm.Size, pgtable.Flush, *kernel.Error)

	// CopyFrom shares the top-level entries covering [base, base+size)
	// of the table rooted at srcRoot.
	CopyFrom(srcRoot, base, size uintptr)

	// ClearCopyRange drops top-level entries installed by CopyFrom.
	ClearCopyRange(base, size uintptr)

	// Release frees the page table frames.
	Release()
}

var (
	// newPageTableFn is used by tests to override the page table
	// implementation used by new address spaces.
	newPageTableFn = func() (PageTable, *kernel.Error) {
		pt, err := pgtable.New()
		if err != nil {
			return nil, err
		}
		return pt, nil
	}

	log = kfmt.Logger("vmm")

	errAddrOutOfRange = &kernel.Error{Module: "vmm", Message: "address out of range", Kind: kernel.InvalidInput}
	errAddrNotAligned = &kernel.Error{Module: "vmm", Message: "address not aligned", Kind: kernel.InvalidInput}
	errEmptyRange     = &kernel.Error{Module: "vmm", Message: "empty address range", Kind: kernel.InvalidInput}
	errAddrInUse      = &kernel.Error{Module: "vmm", Message: "address range overlaps an existing mapping", Kind: kernel.InvalidInput}
	errRegionOverlap  = &kernel.Error{Module: "vmm", Message: "region already exists", Kind: kernel.AlreadyExists}
	errAspaceOverlap  = &kernel.Error{Module: "vmm", Message: "address space overlap", Kind: kernel.InvalidInput}
	errNoMemory       = &kernel.Error{Module: "vmm", Message: "out of memory", Kind: kernel.NoMemory}
	errBadAddress     = &kernel.Error{Module: "vmm", Message: "page table state does not match the region backend", Kind: kernel.BadAddress}
	errUnmappedAccess = &kernel.Error{Module: "vmm", Message: "access to unmapped address", Kind: kernel.BadAddress}
	errRefCountZero   = &kernel.Error{Module: "vmm", Message: "mapped frame has a zero reference count"}
)
