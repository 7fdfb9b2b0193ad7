package pmm

import (
	"unsafe"

	"gophermm/kernel"
	"gophermm/kernel/hal"
	"gophermm/kernel/kfmt"
	"gophermm/kernel/mm"
	"gophermm/kernel/sync"
)

var (
	// FrameAllocator is a BitmapAllocator instance that serves as the
	// primary allocator for reserving pages.
	FrameAllocator BitmapAllocator

	errOutOfMemory     = &kernel.Error{Module: "bitmap_alloc", Message: "out of memory", Kind: kernel.NoMemory}
	errNoFreeMemory    = &kernel.Error{Module: "bitmap_alloc", Message: "platform does not report any free memory", Kind: kernel.NoMemory}
	errInvalidRequest  = &kernel.Error{Module: "bitmap_alloc", Message: "invalid allocation request", Kind: kernel.InvalidInput}
	errFrameNotManaged = &kernel.Error{Module: "bitmap_alloc", Message: "frame not managed by this allocator", Kind: kernel.BadAddress}
	errDoubleFree      = &kernel.Error{Module: "bitmap_alloc", Message: "frame is already free", Kind: kernel.InvalidInput}
)

// markAs is used to indicate whether a frame should be marked as reserved or
// free by markFrame.
type markAs bool

const (
	markReserved markAs = false
	markFree            = true
)

type framePool struct {
	// startFrame is the frame number for the first page in this pool.
	// each free bitmap entry i corresponds to frame (startFrame + i).
	startFrame mm.Frame

	// endFrame tracks the last frame in the pool. The total number of
	// frames is given by: (endFrame - startFrame) + 1
	endFrame mm.Frame

	// freeCount tracks the available pages in this pool. The allocator
	// can use this field to skip fully allocated pools without the need
	// to scan the free bitmap.
	freeCount uint32

	// freeBitmap tracks used/free pages in the pool. A set bit marks a
	// reserved frame.
	freeBitmap []uint64
}

// BitmapAllocator implements a physical frame allocator that tracks frame
// reservations across the available memory pools using bitmaps.
type BitmapAllocator struct {
	mutex sync.Spinlock

	// totalPages tracks the total number of pages across all pools.
	totalPages uint32

	// reservedPages tracks the number of reserved pages across all pools.
	reservedPages uint32

	pools []framePool
}

// init discovers the free memory pools reported by the platform, carves the
// pool bitmaps out of the first pool that can hold them and flags the pages
// they occupy as reserved.
func (alloc *BitmapAllocator) init() *kernel.Error {
	alloc.totalPages = 0
	alloc.reservedPages = 0
	alloc.pools = nil

	bitmapAddr, bitmapPages, err := alloc.setupPoolBitmaps()
	if err != nil {
		return err
	}

	alloc.reserveBitmapFrames(bitmapAddr, bitmapPages)
	alloc.printStats()
	return nil
}

// setupPoolBitmaps scans the platform memory map for free regions, calculates
// the bitmap requirements for each one and places the bitmaps at the start of
// the first free region that is large enough to hold all of them. It returns
// the physical address and page count of the memory used for the bitmaps.
func (alloc *BitmapAllocator) setupPoolBitmaps() (uintptr, uintptr, *kernel.Error) {
	var (
		pageSizeMinus1      = uintptr(mm.PageSize - 1)
		requiredBitmapBytes uintptr
	)

	hal.VisitMemRegions(func(region *hal.MemRegion) bool {
		if !region.Free {
			return true
		}

		// Reported addresses may not be page-aligned; round up to get
		// the start frame and round down to get the end frame
		regionStartFrame := mm.Frame(((region.PhysAddr + pageSizeMinus1) & ^pageSizeMinus1) >> mm.PageShift)
		regionEndFrame := mm.Frame(((region.PhysAddr+region.Size) & ^pageSizeMinus1)>>mm.PageShift) - 1
		if regionEndFrame < regionStartFrame || regionEndFrame == mm.InvalidFrame {
			return true
		}

		pageCount := uint32(regionEndFrame - regionStartFrame + 1)
		alloc.totalPages += pageCount
		alloc.pools = append(alloc.pools, framePool{
			startFrame: regionStartFrame,
			endFrame:   regionEndFrame,
			freeCount:  pageCount,
		})

		// To represent the free page bitmap we need pageCount bits. Since our
		// slice uses uint64 for storing the bitmap we need to round up the
		// required bits so they are a multiple of 64 bits
		requiredBitmapBytes += uintptr(((pageCount + 63) &^ 63) >> 3)
		return true
	})

	if len(alloc.pools) == 0 {
		return 0, 0, errNoFreeMemory
	}

	requiredPages := (requiredBitmapBytes + pageSizeMinus1) >> mm.PageShift

	var hostPool = -1
	for poolIndex, pool := range alloc.pools {
		if uintptr(pool.freeCount) > requiredPages {
			hostPool = poolIndex
			break
		}
	}

	if hostPool == -1 {
		return 0, 0, errOutOfMemory
	}

	bitmapAddr := alloc.pools[hostPool].startFrame.Address()
	bitmapMem := mm.PhysBytes(bitmapAddr, requiredPages<<mm.PageShift)
	if bitmapMem == nil {
		return 0, 0, errOutOfMemory
	}
	kernel.Memset(bitmapMem, 0)

	// Run a second pass to initialize the free bitmap slices for all pools
	var offset uintptr
	for poolIndex := range alloc.pools {
		pool := &alloc.pools[poolIndex]
		blocks := uintptr((uint32(pool.endFrame-pool.startFrame+1) + 63) >> 6)
		pool.freeBitmap = unsafe.Slice((*uint64)(unsafe.Pointer(&bitmapMem[offset])), blocks)
		offset += blocks << 3
	}

	return bitmapAddr, requiredPages, nil
}

// reserveBitmapFrames flags the frames that hold the pool bitmaps as reserved.
func (alloc *BitmapAllocator) reserveBitmapFrames(bitmapAddr, pageCount uintptr) {
	startFrame := mm.FrameFromAddress(bitmapAddr)
	poolIndex := alloc.poolForFrame(startFrame)
	for frame := startFrame; frame < startFrame+mm.Frame(pageCount); frame++ {
		alloc.markFrame(poolIndex, frame, markReserved)
	}
}

// printStats logs the allocator pools and page counts.
func (alloc *BitmapAllocator) printStats() {
	log := kfmt.Logger("pmm")
	for poolIndex, pool := range alloc.pools {
		log.Debugf("pool %d: frames [0x%x - 0x%x], %d free", poolIndex, pool.startFrame, pool.endFrame, pool.freeCount)
	}
	log.Infof("system memory: %d KB free, %d KB reserved",
		(alloc.totalPages-alloc.reservedPages)*uint32(mm.PageSize/uintptr(mm.Kb)),
		alloc.reservedPages*uint32(mm.PageSize/uintptr(mm.Kb)),
	)
}

// markFrame updates the reservation flag for the bitmap entry that corresponds
// to the supplied frame.
func (alloc *BitmapAllocator) markFrame(poolIndex int, frame mm.Frame, flag markAs) {
	if poolIndex < 0 || frame > alloc.pools[poolIndex].endFrame || frame < alloc.pools[poolIndex].startFrame {
		return
	}

	// The offset in the block is given by: frame % 64. As the bitmap uses a
	// big-endian representation we need to set the bit at index: 63 - offset
	relFrame := frame - alloc.pools[poolIndex].startFrame
	block := relFrame >> 6
	mask := uint64(1 << (63 - (relFrame - block<<6)))
	switch flag {
	case markFree:
		alloc.pools[poolIndex].freeBitmap[block] &^= mask
		alloc.pools[poolIndex].freeCount++
		alloc.reservedPages--
	default:
		alloc.pools[poolIndex].freeBitmap[block] |= mask
		alloc.pools[poolIndex].freeCount--
		alloc.reservedPages++
	}
}

// isReserved returns true if the bitmap entry for frame is set.
func (alloc *BitmapAllocator) isReserved(poolIndex int, frame mm.Frame) bool {
	relFrame := frame - alloc.pools[poolIndex].startFrame
	block := relFrame >> 6
	mask := uint64(1 << (63 - (relFrame - block<<6)))
	return alloc.pools[poolIndex].freeBitmap[block]&mask != 0
}

// poolForFrame returns the index of the pool that contains frame or -1 if
// the frame is not contained in any of the available memory pools (e.g it
// points to a reserved memory region).
func (alloc *BitmapAllocator) poolForFrame(frame mm.Frame) int {
	for poolIndex, pool := range alloc.pools {
		if frame >= pool.startFrame && frame <= pool.endFrame {
			return poolIndex
		}
	}

	return -1
}

// AllocFrame reserves and returns a single physical memory frame. An error
// will be returned if no more memory can be allocated.
func (alloc *BitmapAllocator) AllocFrame() (mm.Frame, *kernel.Error) {
	return alloc.AllocContiguous(1, mm.Size4K)
}

// AllocContiguous reserves pageCount contiguous frames whose first frame is
// aligned to align and returns the first one. The pools are scanned in
// ascending address order and the first suitable run is used.
func (alloc *BitmapAllocator) AllocContiguous(pageCount uintptr, align mm.Size) (mm.Frame, *kernel.Error) {
	if pageCount == 0 || align < mm.Size4K || align&(align-1) != 0 {
		return mm.InvalidFrame, errInvalidRequest
	}

	alignFrames := mm.Frame(align.Pages())

	alloc.mutex.Acquire()
	defer alloc.mutex.Release()

	for poolIndex := range alloc.pools {
		pool := &alloc.pools[poolIndex]
		if uintptr(pool.freeCount) < pageCount {
			continue
		}

		candidate := (pool.startFrame + alignFrames - 1) &^ (alignFrames - 1)
	scan:
		for candidate >= pool.startFrame && candidate+mm.Frame(pageCount)-1 <= pool.endFrame {
			for frame := candidate; frame < candidate+mm.Frame(pageCount); frame++ {
				if alloc.isReserved(poolIndex, frame) {
					candidate = (frame + alignFrames) &^ (alignFrames - 1)
					continue scan
				}
			}

			for frame := candidate; frame < candidate+mm.Frame(pageCount); frame++ {
				alloc.markFrame(poolIndex, frame, markReserved)
			}
			return candidate, nil
		}
	}

	return mm.InvalidFrame, errOutOfMemory
}

// FreeFrame releases a frame previously allocated via a call to AllocFrame.
func (alloc *BitmapAllocator) FreeFrame(frame mm.Frame) *kernel.Error {
	return alloc.FreeFrames(frame, 1)
}

// FreeFrames releases pageCount contiguous frames starting at frame. Trying
// to release a free frame or a frame not managed by this allocator results
// in an error and leaves the allocator state untouched.
func (alloc *BitmapAllocator) FreeFrames(frame mm.Frame, pageCount uintptr) *kernel.Error {
	if pageCount == 0 {
		return errInvalidRequest
	}

	alloc.mutex.Acquire()
	defer alloc.mutex.Release()

	poolIndex := alloc.poolForFrame(frame)
	if poolIndex < 0 || frame+mm.Frame(pageCount)-1 > alloc.pools[poolIndex].endFrame {
		return errFrameNotManaged
	}

	for f := frame; f < frame+mm.Frame(pageCount); f++ {
		if !alloc.isReserved(poolIndex, f) {
			return errDoubleFree
		}
	}

	for f := frame; f < frame+mm.Frame(pageCount); f++ {
		alloc.markFrame(poolIndex, f, markFree)
	}

	return nil
}

// FreeCount returns the number of frames that are currently available.
func (alloc *BitmapAllocator) FreeCount() uint32 {
	alloc.mutex.Acquire()
	defer alloc.mutex.Release()
	return alloc.totalPages - alloc.reservedPages
}

// TotalCount returns the number of frames managed by the allocator.
func (alloc *BitmapAllocator) TotalCount() uint32 {
	return alloc.totalPages
}
