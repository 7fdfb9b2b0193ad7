package pgtable

import "gophermm/kernel/mm"

// PageTableEntryFlag describes a flag that can be applied to a page table entry.
type PageTableEntryFlag uint64

const (
	// FlagPresent is set when the page is available in memory and not swapped out.
	FlagPresent PageTableEntryFlag = 1 << iota

	// FlagRW is set if the page can be written to.
	FlagRW

	// FlagUserAccessible is set if user-mode processes can access this page. If
	// not set only kernel code can access this page.
	FlagUserAccessible

	// FlagWriteThroughCaching implies write-through caching when set and write-back
	// caching if cleared.
	FlagWriteThroughCaching

	// FlagDoNotCache prevents this page from being cached if set.
	FlagDoNotCache

	// FlagAccessed is set by the CPU when this page is accessed.
	FlagAccessed

	// FlagDirty is set by the CPU when this page is modified.
	FlagDirty

	// FlagHugePage is set on level 1 and 2 entries that map a 1G or 2M page
	// instead of pointing to the next table.
	FlagHugePage

	// FlagGlobal if set, prevents the TLB from flushing the cached memory address
	// for this page when the swapping page tables by updating the CR3 register.
	FlagGlobal

	// FlagValid is a software flag set on every leaf entry. It keeps entries
	// that grant no access (and are therefore not present) distinguishable
	// from unused ones.
	FlagValid PageTableEntryFlag = 1 << 9

	// FlagNoExecute if set, indicates that a page contains non-executable code.
	FlagNoExecute PageTableEntryFlag = 1 << 63
)

// pageTableEntry describes a page table entry. These entries encode
// a physical frame address and a set of flags. The actual format
// of the entry and flags is architecture-dependent.
type pageTableEntry uint64

// HasFlags returns true if this entry has all the input flags set.
func (pte pageTableEntry) HasFlags(flags PageTableEntryFlag) bool {
	return (uint64(pte) & uint64(flags)) == uint64(flags)
}

// HasAnyFlag returns true if this entry has at least one of the input flags set.
func (pte pageTableEntry) HasAnyFlag(flags PageTableEntryFlag) bool {
	return (uint64(pte) & uint64(flags)) != 0
}

// SetFlags sets the input list of flags to the page table entry.
func (pte *pageTableEntry) SetFlags(flags PageTableEntryFlag) {
	*pte = (pageTableEntry)(uint64(*pte) | uint64(flags))
}

// ClearFlags unsets the input list of flags from the page table entry.
func (pte *pageTableEntry) ClearFlags(flags PageTableEntryFlag) {
	*pte = (pageTableEntry)(uint64(*pte) &^ uint64(flags))
}

// Frame returns the physical page frame that this page table entry points to.
func (pte pageTableEntry) Frame() mm.Frame {
	return mm.Frame((uint64(pte) & ptePhysPageMask) >> mm.PageShift)
}

// SetFrame updates the page table entry to point the the given physical frame .
func (pte *pageTableEntry) SetFrame(frame mm.Frame) {
	*pte = (pageTableEntry)((uint64(*pte) &^ ptePhysPageMask) | uint64(frame.Address()))
}

// entryFlags converts architecture-independent mapping flags to the flags of
// a leaf entry. Mappings without any access permission are installed as
// valid but not present.
func entryFlags(flags mm.MappingFlags) PageTableEntryFlag {
	entry := FlagValid
	if flags&(mm.FlagRead|mm.FlagWrite|mm.FlagExecute) == 0 {
		return entry
	}

	entry |= FlagPresent
	if flags&mm.FlagWrite != 0 {
		entry |= FlagRW
	}
	if flags&mm.FlagExecute == 0 {
		entry |= FlagNoExecute
	}
	if flags&mm.FlagUser != 0 {
		entry |= FlagUserAccessible
	}
	switch {
	case flags&mm.FlagDevice != 0:
		entry |= FlagDoNotCache | FlagWriteThroughCaching
	case flags&mm.FlagUncached != 0:
		entry |= FlagDoNotCache
	}

	return entry
}

// mappingFlags converts the flags of a leaf entry back to
// architecture-independent mapping flags. Present entries are always
// readable.
func (pte pageTableEntry) mappingFlags() mm.MappingFlags {
	if !pte.HasFlags(FlagPresent) {
		return 0
	}

	flags := mm.FlagRead
	if pte.HasFlags(FlagRW) {
		flags |= mm.FlagWrite
	}
	if !pte.HasFlags(FlagNoExecute) {
		flags |= mm.FlagExecute
	}
	if pte.HasFlags(FlagUserAccessible) {
		flags |= mm.FlagUser
	}
	switch {
	case pte.HasFlags(FlagDoNotCache | FlagWriteThroughCaching):
		flags |= mm.FlagDevice
	case pte.HasFlags(FlagDoNotCache):
		flags |= mm.FlagUncached
	}

	return flags
}
