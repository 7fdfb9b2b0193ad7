// Package pfn tracks per-frame metadata for the physical frames that back
// user and kernel mappings. The only tracked property is the number of
// mappings that share each frame, which drives copy-on-write.
package pfn

import (
	"sync/atomic"

	"gophermm/kernel"
	"gophermm/kernel/mm"
)

var (
	errFrameOutOfRange = &kernel.Error{Module: "pfn", Message: "frame is outside the tracked physical memory range", Kind: kernel.BadAddress}
	errRefUnderflow    = &kernel.Error{Module: "pfn", Message: "frame reference count underflow", Kind: kernel.InvalidInput}
	errNotInitialized  = &kernel.Error{Module: "pfn", Message: "frame reference table not initialized"}
)

// RefTable keeps an atomic reference count for every frame in a contiguous
// range of physical memory. Entry i tracks the frame at ramBase + i*PageSize.
type RefTable struct {
	ramBase uintptr
	counts  []atomic.Uint32
}

// NewRefTable returns a table tracking the frames in [ramBase, ramBase+ramSize).
// All counts start at zero.
func NewRefTable(ramBase, ramSize uintptr) *RefTable {
	return &RefTable{
		ramBase: mm.AlignDown(ramBase, mm.Size4K),
		counts:  make([]atomic.Uint32, mm.Size(ramSize).Pages()),
	}
}

// entry returns the counter for the frame containing paddr. It panics if paddr
// is not tracked by the table.
func (t *RefTable) entry(paddr uintptr) *atomic.Uint32 {
	if paddr < t.ramBase {
		panic(errFrameOutOfRange)
	}

	index := (paddr - t.ramBase) >> mm.PageShift
	if index >= uintptr(len(t.counts)) {
		panic(errFrameOutOfRange)
	}

	return &t.counts[index]
}

// IncRef increments the reference count of the frame containing paddr and
// returns the previous count.
func (t *RefTable) IncRef(paddr uintptr) uint32 {
	return t.entry(paddr).Add(1) - 1
}

// DecRef decrements the reference count of the frame containing paddr and
// returns the previous count. Decrementing a zero count panics. A return
// value of 1 means the caller dropped the last reference and now owns the
// frame.
func (t *RefTable) DecRef(paddr uintptr) uint32 {
	counter := t.entry(paddr)
	for {
		prev := counter.Load()
		if prev == 0 {
			panic(errRefUnderflow)
		}

		if counter.CompareAndSwap(prev, prev-1) {
			return prev
		}
	}
}

// RefCount returns the current reference count of the frame containing paddr.
func (t *RefTable) RefCount(paddr uintptr) uint32 {
	return t.entry(paddr).Load()
}

// frameRefs is the table used by the package-level helpers.
var frameRefs *RefTable

// Init sets up the global reference table for the RAM range of the platform.
// Any previous table is discarded.
func Init(ramBase, ramSize uintptr) {
	frameRefs = NewRefTable(ramBase, ramSize)
}

func table() *RefTable {
	if frameRefs == nil {
		panic(errNotInitialized)
	}
	return frameRefs
}

// IncRef increments the reference count of the frame containing paddr in the
// global table and returns the previous count.
func IncRef(paddr uintptr) uint32 { return table().IncRef(paddr) }

// DecRef decrements the reference count of the frame containing paddr in the
// global table and returns the previous count.
func DecRef(paddr uintptr) uint32 { return table().DecRef(paddr) }

// RefCount returns the reference count of the frame containing paddr in the
// global table.
func RefCount(paddr uintptr) uint32 { return table().RefCount(paddr) }
