package pgtable

const (
	// pageLevels indicates the number of page levels supported by the page table.
	pageLevels = 4

	// ptePhysPageMask is a mask that allows us to extract the physical memory
	// address pointed to by a page table entry. Bits 12-51 contain the
	// physical memory address.
	ptePhysPageMask = uint64(0x000ffffffffff000)

	// entriesPerTable is the number of entries in a table at any level.
	entriesPerTable = 1 << 9
)

var (
	// pageLevelBits defines the number of virtual address bits that correspond
	// to each page level. Each level uses 9 bits which amounts to 512 entries
	// per table.
	pageLevelBits = [pageLevels]uint8{
		9,
		9,
		9,
		9,
	}

	// pageLevelShifts defines the shift required to access each page table component
	// of a virtual address.
	pageLevelShifts = [pageLevels]uint8{
		39,
		30,
		21,
		12,
	}
)
