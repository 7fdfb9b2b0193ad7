// Package pgtable implements a software multi-level page table whose tables
// live in physical frames obtained from the active frame allocator.
package pgtable

import (
	"unsafe"

	"gophermm/kernel"
	"gophermm/kernel/cpu"
	"gophermm/kernel/mm"
)

var (
	// allocTableFn is used by tests to override the allocation of
	// page table frames.
	allocTableFn = func() (mm.RawPage, *kernel.Error) {
		return mm.AllocContiguous(1, mm.Size4K)
	}

	// flushTLBEntryFn is used by tests to override calls to
	// cpu.FlushTLBEntry.
	flushTLBEntryFn = cpu.FlushTLBEntry

	// ErrNotMapped is returned when an operation targets a virtual
	// address without a leaf entry.
	ErrNotMapped = &kernel.Error{Module: "pgtable", Message: "virtual address is not mapped", Kind: kernel.BadAddress}

	// ErrAlreadyMapped is returned by Map when the target address is
	// already covered by a leaf entry.
	ErrAlreadyMapped = &kernel.Error{Module: "pgtable", Message: "virtual address is already mapped", Kind: kernel.AlreadyExists}

	// ErrUnaligned is returned when an address is not aligned to the
	// requested page size or the page size is not supported.
	ErrUnaligned = &kernel.Error{Module: "pgtable", Message: "address is not aligned to a supported page size", Kind: kernel.InvalidInput}

	errTableNotAccessible = &kernel.Error{Module: "pgtable", Message: "page table frame is not backed by physical memory", Kind: kernel.BadAddress}
)

// Flush is returned by the calls that modify a mapping. The caller must
// either call Flush to invalidate the stale TLB entry or Ignore when the
// entry cannot be cached (e.g. a freshly installed mapping).
type Flush struct {
	vaddr uintptr
	valid bool
}

// Flush invalidates the TLB entry for the modified address.
func (f Flush) Flush() {
	if f.valid {
		flushTLBEntryFn(f.vaddr)
	}
}

// Ignore discards the flush request.
func (f Flush) Ignore() {}

// PageTable is a 4-level page table.
type PageTable struct {
	root mm.RawPage

	// tables lists the frames allocated for this table, root included.
	// Top-level entries installed by CopyFrom point to tables owned by
	// another PageTable and are not tracked here.
	tables []mm.RawPage
}

// New allocates an empty page table.
func New() (*PageTable, *kernel.Error) {
	root, err := allocTable()
	if err != nil {
		return nil, err
	}

	return &PageTable{root: root, tables: []mm.RawPage{root}}, nil
}

// allocTable allocates and clears a frame for a page table.
func allocTable() (mm.RawPage, *kernel.Error) {
	page, err := allocTableFn()
	if err != nil {
		return page, err
	}

	page.Zero()
	return page, nil
}

// tableAt returns the table stored in the frame at physAddr.
func tableAt(physAddr uintptr) *[entriesPerTable]pageTableEntry {
	mem := mm.PhysBytes(physAddr, mm.PageSize)
	if mem == nil {
		panic(errTableNotAccessible)
	}

	return (*[entriesPerTable]pageTableEntry)(unsafe.Pointer(&mem[0]))
}

// RootPaddr returns the physical address of the top-level table.
func (pt *PageTable) RootPaddr() uintptr {
	return pt.root.StartPaddr()
}

// pageTableWalker is a function that can be passed to the walk method. The
// function receives the current page level and page table entry as its
// arguments. If the function returns false, then the page walk is aborted.
type pageTableWalker func(pteLevel uint8, pte *pageTableEntry) bool

// walk performs a page table walk for the given virtual address. It calls the
// suppplied walkFn with the page table entry that corresponds to each page
// table level. The next table is looked up after walkFn returns so walkFn
// may install missing tables.
func (pt *PageTable) walk(virtAddr uintptr, walkFn pageTableWalker) {
	tableAddr := pt.RootPaddr()
	for level := uint8(0); level < pageLevels; level++ {
		entryIndex := (virtAddr >> pageLevelShifts[level]) & ((1 << pageLevelBits[level]) - 1)
		pte := &tableAt(tableAddr)[entryIndex]

		if !walkFn(level, pte) {
			return
		}

		tableAddr = pte.Frame().Address()
	}
}

// leafLevel returns the level at which a page of the given size is mapped.
func leafLevel(pageSize mm.Size) (uint8, bool) {
	switch pageSize {
	case mm.Size4K:
		return 3, true
	case mm.Size2M:
		return 2, true
	case mm.Size1G:
		return 1, true
	default:
		return 0, false
	}
}

// levelPageSize returns the size of the page mapped by a leaf entry at level.
func levelPageSize(level uint8) mm.Size {
	return mm.Size(1) << pageLevelShifts[level]
}

// lookup returns the leaf entry that maps virtAddr together with the size of
// the page it maps.
func (pt *PageTable) lookup(virtAddr uintptr) (*pageTableEntry, mm.Size, *kernel.Error) {
	var (
		entry    *pageTableEntry
		pageSize mm.Size
	)

	pt.walk(virtAddr, func(pteLevel uint8, pte *pageTableEntry) bool {
		if pteLevel == pageLevels-1 || pte.HasFlags(FlagHugePage) {
			if *pte != 0 {
				entry, pageSize = pte, levelPageSize(pteLevel)
			}
			return false
		}

		return pte.HasFlags(FlagPresent)
	})

	if entry == nil {
		return nil, 0, ErrNotMapped
	}

	return entry, pageSize, nil
}

// setLeaf overwrites a leaf entry with a mapping of paddr.
func setLeaf(pte *pageTableEntry, paddr uintptr, flags mm.MappingFlags, pageSize mm.Size) {
	*pte = 0
	pte.SetFrame(mm.FrameFromAddress(paddr))
	pte.SetFlags(entryFlags(flags))
	if pageSize.IsHuge() {
		pte.SetFlags(FlagHugePage)
	}
}

// Map installs a mapping of the page of size pageSize that starts at vaddr to
// the physical page at paddr. Missing intermediate tables are allocated.
func (pt *PageTable) Map(vaddr, paddr uintptr, pageSize mm.Size, flags mm.MappingFlags) (Flush, *kernel.Error) {
	leaf, ok := leafLevel(pageSize)
	if !ok || !mm.IsAligned(vaddr, pageSize) || !mm.IsAligned(paddr, pageSize) {
		return Flush{}, ErrUnaligned
	}

	var err *kernel.Error
	pt.walk(vaddr, func(pteLevel uint8, pte *pageTableEntry) bool {
		if pteLevel == leaf {
			if *pte != 0 {
				err = ErrAlreadyMapped
				return false
			}

			setLeaf(pte, paddr, flags, pageSize)
			return false
		}

		if pte.HasFlags(FlagHugePage) {
			err = ErrAlreadyMapped
			return false
		}

		// Next table does not yet exist; we need to allocate a
		// physical frame for it and clear its contents.
		if !pte.HasFlags(FlagPresent) {
			var table mm.RawPage
			if table, err = allocTable(); err != nil {
				return false
			}
			pt.tables = append(pt.tables, table)

			*pte = 0
			pte.SetFrame(table.Frame())
			pte.SetFlags(FlagPresent | FlagRW | FlagUserAccessible)
		}

		return true
	})

	if err != nil {
		return Flush{}, err
	}

	return Flush{vaddr: vaddr, valid: true}, nil
}

// Unmap removes the mapping that covers vaddr and returns the physical
// address and size of the page it mapped.
func (pt *PageTable) Unmap(vaddr uintptr) (uintptr, mm.Size, Flush, *kernel.Error) {
	pte, pageSize, err := pt.lookup(vaddr)
	if err != nil {
		return 0, 0, Flush{}, err
	}

	paddr := pte.Frame().Address()
	*pte = 0
	return paddr, pageSize, Flush{vaddr: mm.AlignDown(vaddr, pageSize), valid: true}, nil
}

// Query returns the physical address that vaddr translates to, the flags of
// the mapping and the size of the page that contains it.
func (pt *PageTable) Query(vaddr uintptr) (uintptr, mm.MappingFlags, mm.Size, *kernel.Error) {
	pte, pageSize, err := pt.lookup(vaddr)
	if err != nil {
		return 0, 0, 0, err
	}

	return pte.Frame().Address() + mm.AlignOffset(vaddr, pageSize), pte.mappingFlags(), pageSize, nil
}

// Protect replaces the flags of the mapping that covers vaddr. It returns the
// previous flags and the size of the page.
func (pt *PageTable) Protect(vaddr uintptr, flags mm.MappingFlags) (mm.MappingFlags, mm.Size, Flush, *kernel.Error) {
	pte, pageSize, err := pt.lookup(vaddr)
	if err != nil {
		return 0, 0, Flush{}, err
	}

	oldFlags := pte.mappingFlags()
	setLeaf(pte, pte.Frame().Address(), flags, pageSize)
	return oldFlags, pageSize, Flush{vaddr: mm.AlignDown(vaddr, pageSize), valid: true}, nil
}

// Remap points the mapping that covers vaddr to the page at paddr using the
// supplied flags. paddr must be aligned to the size of the existing page.
func (pt *PageTable) Remap(vaddr, paddr uintptr, flags mm.MappingFlags) (mm.Size, Flush, *kernel.Error) {
	pte, pageSize, err := pt.lookup(vaddr)
	if err != nil {
		return 0, Flush{}, err
	}

	if !mm.IsAligned(paddr, pageSize) {
		return 0, Flush{}, ErrUnaligned
	}

	setLeaf(pte, paddr, flags, pageSize)
	return pageSize, Flush{vaddr: mm.AlignDown(vaddr, pageSize), valid: true}, nil
}

// topLevelSpan returns the range of top-level entry indices that cover
// [base, base+size).
func topLevelSpan(base, size uintptr) (int, int) {
	if size == 0 {
		return 0, 0
	}

	mask := uintptr(entriesPerTable - 1)
	first := (base >> pageLevelShifts[0]) & mask
	last := ((base + size - 1) >> pageLevelShifts[0]) & mask
	return int(first), int(last) + 1
}

// CopyFrom copies the top-level entries covering [base, base+size) from the
// page table whose root table is at srcRoot. The two tables share the
// lower-level tables afterwards; ClearCopyRange must be used to drop the
// shared entries before either table is released.
func (pt *PageTable) CopyFrom(srcRoot, base, size uintptr) {
	first, last := topLevelSpan(base, size)
	src, dst := tableAt(srcRoot), tableAt(pt.RootPaddr())
	copy(dst[first:last], src[first:last])
}

// ClearCopyRange clears the top-level entries covering [base, base+size)
// that were previously installed by CopyFrom.
func (pt *PageTable) ClearCopyRange(base, size uintptr) {
	first, last := topLevelSpan(base, size)
	dst := tableAt(pt.RootPaddr())
	for i := first; i < last; i++ {
		dst[i] = 0
	}
}

// Release returns every table frame owned by this page table to the frame
// allocator. The page table must not be used afterwards. Frames mapped by
// leaf entries are not released.
func (pt *PageTable) Release() {
	for _, table := range pt.tables {
		table.Release()
	}
	pt.tables = nil
}
