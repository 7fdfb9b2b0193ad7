// Package mm defines the address, page and frame primitives shared by the
// memory management packages together with the hooks through which they reach
// the active physical frame allocator and physical memory.
package mm

import (
	"math"

	"gophermm/kernel"
)

// Frame describes a physical memory page index.
type Frame uintptr

const (
	// InvalidFrame is returned by page allocators when
	// they fail to reserve the requested frame.
	InvalidFrame = Frame(math.MaxUint64)
)

// Valid returns true if this is a valid frame.
func (f Frame) Valid() bool {
	return f != InvalidFrame
}

// Address returns a pointer to the physical memory address pointed to by this Frame.
func (f Frame) Address() uintptr {
	return uintptr(f << PageShift)
}

// FrameFromAddress returns a Frame that corresponds to
// the given physical address. This function can handle
// both page-aligned and not aligned addresses. in the
// latter case, the input address will be rounded down
// to the frame that contains it.
func FrameFromAddress(physAddr uintptr) Frame {
	return Frame((physAddr & ^(uintptr(PageSize - 1))) >> PageShift)
}

// Page describes a virtual memory page index.
type Page uintptr

// Address returns a pointer to the virtual memory address pointed to by this Page.
func (f Page) Address() uintptr {
	return uintptr(f << PageShift)
}

// PageFromAddress returns a Page that corresponds to the given virtual
// address. This function can handle both page-aligned and not aligned virtual
// addresses. in the latter case, the input address will be rounded down to the
// page that contains it.
func PageFromAddress(virtAddr uintptr) Page {
	return Page((virtAddr & ^(uintptr(PageSize - 1))) >> PageShift)
}

var (
	// frameAllocator points to a frame allocator function registered using
	// SetFrameAllocator.
	frameAllocator FrameAllocatorFn

	// frameReleaser points to the function that returns frames to the
	// allocator registered using SetFrameAllocator.
	frameReleaser FrameReleaseFn

	// physMemAccessor points to the function registered using
	// SetPhysMemAccessor.
	physMemAccessor PhysMemFn
)

// FrameAllocatorFn is a function that can allocate pageCount contiguous
// physical frames whose first frame is aligned to align.
type FrameAllocatorFn func(pageCount uintptr, align Size) (Frame, *kernel.Error)

// FrameReleaseFn is a function that returns pageCount contiguous frames
// starting at frame to the allocator.
type FrameReleaseFn func(frame Frame, pageCount uintptr)

// PhysMemFn is a function that returns a byte slice overlaying size bytes of
// physical memory starting at physAddr.
type PhysMemFn func(physAddr, size uintptr) []byte

// SetFrameAllocator registers the frame allocator functions that will be used
// by the vmm code when new physical frames need to be allocated or released.
func SetFrameAllocator(allocFn FrameAllocatorFn, releaseFn FrameReleaseFn) {
	frameAllocator = allocFn
	frameReleaser = releaseFn
}

// SetPhysMemAccessor registers the function used to access the contents of
// physical memory.
func SetPhysMemAccessor(fn PhysMemFn) { physMemAccessor = fn }

// ReleaseFrames returns pageCount contiguous frames starting at frame to the
// currently active physical frame allocator.
func ReleaseFrames(frame Frame, pageCount uintptr) { frameReleaser(frame, pageCount) }

// PhysBytes returns a byte slice overlaying size bytes of physical memory
// starting at physAddr.
func PhysBytes(physAddr, size uintptr) []byte { return physMemAccessor(physAddr, size) }

// RawPage describes a block of contiguous physical frames obtained from the
// active frame allocator.
type RawPage struct {
	frame     Frame
	pageCount uintptr
}

// AllocContiguous allocates pageCount contiguous physical frames whose start
// address is aligned to align.
func AllocContiguous(pageCount uintptr, align Size) (RawPage, *kernel.Error) {
	frame, err := frameAllocator(pageCount, align)
	if err != nil {
		return RawPage{frame: InvalidFrame}, err
	}

	return RawPage{frame: frame, pageCount: pageCount}, nil
}

// StartPaddr returns the physical address of the first byte of the page.
func (p RawPage) StartPaddr() uintptr {
	return p.frame.Address()
}

// Frame returns the first frame of the page.
func (p RawPage) Frame() Frame {
	return p.frame
}

// Size returns the size of the page in bytes.
func (p RawPage) Size() uintptr {
	return p.pageCount << PageShift
}

// Bytes returns a slice overlaying the contents of the page.
func (p RawPage) Bytes() []byte {
	return PhysBytes(p.StartPaddr(), p.Size())
}

// Zero clears the contents of the page.
func (p RawPage) Zero() {
	kernel.Memset(p.Bytes(), 0)
}

// Release returns the page frames to the active frame allocator.
func (p RawPage) Release() {
	ReleaseFrames(p.frame, p.pageCount)
}
