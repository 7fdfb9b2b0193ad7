package mm

// Size represents a memory block size in bytes. It is also used to describe
// the alignment (and therefore the page size) of a mapping.
type Size uintptr

// Common memory block sizes.
const (
	Byte Size = 1
	Kb        = 1024 * Byte
	Mb        = 1024 * Kb
	Gb        = 1024 * Mb
)

// The page sizes supported by the page table.
const (
	Size4K = 4 * Kb
	Size2M = 2 * Mb
	Size1G = 1 * Gb
)

// IsHuge returns true if s is larger than the base page size.
func (s Size) IsHuge() bool {
	return uintptr(s) > PageSize
}

// Pages returns the number of base pages that fit in s, rounding up.
func (s Size) Pages() uintptr {
	return (uintptr(s) + PageSize - 1) >> PageShift
}

// AlignDown rounds addr down to the nearest multiple of align. align must be
// a power of two.
func AlignDown(addr uintptr, align Size) uintptr {
	return addr &^ (uintptr(align) - 1)
}

// AlignUp rounds addr up to the nearest multiple of align. align must be a
// power of two. The second return value is false if the result overflows.
func AlignUp(addr uintptr, align Size) (uintptr, bool) {
	aligned := (addr + uintptr(align) - 1) &^ (uintptr(align) - 1)
	return aligned, aligned >= addr
}

// IsAligned returns true if addr is a multiple of align.
func IsAligned(addr uintptr, align Size) bool {
	return addr&(uintptr(align)-1) == 0
}

// AlignOffset returns the offset of addr from the previous multiple of align.
func AlignOffset(addr uintptr, align Size) uintptr {
	return addr & (uintptr(align) - 1)
}
