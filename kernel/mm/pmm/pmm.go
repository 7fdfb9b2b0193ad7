// Package pmm contains the physical frame allocator used by the kernel.
package pmm

import (
	"gophermm/kernel"
	"gophermm/kernel/mm"
)

// allocFrames is a helper that delegates allocation requests to the
// FrameAllocator instance. It is passed to mm.SetFrameAllocator instead of a
// method value so that the compiler does not move FrameAllocator to the heap.
func allocFrames(pageCount uintptr, align mm.Size) (mm.Frame, *kernel.Error) {
	return FrameAllocator.AllocContiguous(pageCount, align)
}

// releaseFrames returns frames to the FrameAllocator instance. Releasing
// frames that are not reserved indicates corrupted bookkeeping and panics.
func releaseFrames(frame mm.Frame, pageCount uintptr) {
	if err := FrameAllocator.FreeFrames(frame, pageCount); err != nil {
		panic(err)
	}
}

// Init sets up the kernel physical memory allocation sub-system using the
// memory map of the active platform and registers the frame allocator with
// the mm package.
func Init() *kernel.Error {
	if err := FrameAllocator.init(); err != nil {
		return err
	}

	mm.SetFrameAllocator(allocFrames, releaseFrames)
	return nil
}
