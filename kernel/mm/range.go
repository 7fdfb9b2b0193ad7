package mm

import "fmt"

// VirtRange describes the half-open virtual address range [Start, End).
type VirtRange struct {
	Start uintptr
	End   uintptr
}

// RangeFromStartSize returns the range [start, start+size). The second
// return value is false if start+size overflows.
func RangeFromStartSize(start, size uintptr) (VirtRange, bool) {
	end := start + size
	return VirtRange{Start: start, End: end}, end >= start
}

// Size returns the number of bytes covered by the range.
func (r VirtRange) Size() uintptr {
	return r.End - r.Start
}

// IsEmpty returns true if the range covers no addresses.
func (r VirtRange) IsEmpty() bool {
	return r.End <= r.Start
}

// Contains returns true if addr lies inside the range.
func (r VirtRange) Contains(addr uintptr) bool {
	return r.Start <= addr && addr < r.End
}

// ContainsRange returns true if other lies entirely inside the range.
func (r VirtRange) ContainsRange(other VirtRange) bool {
	return r.Start <= other.Start && other.End <= r.End && other.Start <= other.End
}

// Overlaps returns true if the two ranges share at least one address.
func (r VirtRange) Overlaps(other VirtRange) bool {
	return r.Start < other.End && other.Start < r.End
}

// String implements fmt.Stringer for VirtRange.
func (r VirtRange) String() string {
	return fmt.Sprintf("[0x%x, 0x%x)", r.Start, r.End)
}
