package hal

import (
	"gophermm/kernel"
	"gophermm/kernel/kfmt"
	"gophermm/kernel/mm"

	"golang.org/x/sys/unix"
)

var (
	// activePlatform is the platform passed to Init.
	activePlatform *Platform

	// physMem overlays the emulated RAM of the active platform.
	physMem []byte

	// memRegions caches the sorted memory map of the active platform.
	memRegions []MemRegion

	// The following functions are used by tests to mock calls to the
	// host memory mapping syscalls.
	mmapFn   = unix.Mmap
	munmapFn = unix.Munmap

	errAlreadyInitialized = &kernel.Error{Module: "hal", Message: "platform already initialized"}
	errMapPhysMem         = &kernel.Error{Module: "hal", Message: "unable to map physical memory", Kind: kernel.NoMemory}
)

// MemRegionVisitor defines a visitor function that gets invoked by
// VisitMemRegions for each memory region of the active platform. The visitor
// must return true to continue or false to abort the scan.
type MemRegionVisitor func(*MemRegion) bool

// Init validates the platform description, backs its RAM with an anonymous
// host mapping and registers the physical memory accessor with the mm package.
func Init(p *Platform) *kernel.Error {
	if activePlatform != nil {
		return errAlreadyInitialized
	}

	if err := p.Validate(); err != nil {
		return err
	}

	mem, err := mmapFn(-1, 0, int(p.PhysMemorySize), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		kfmt.Logger("hal").WithError(err).Error("mmap of physical memory failed")
		return errMapPhysMem
	}

	activePlatform = p
	physMem = mem
	memRegions = p.memRegions()
	mm.SetPhysMemAccessor(PhysBytes)

	log := kfmt.Logger("hal")
	log.Infof("RAM [0x%x - 0x%x], phys-virt offset 0x%x", p.PhysMemoryBase, p.PhysMemoryBase+p.PhysMemorySize, p.PhysVirtOffset)
	for _, r := range memRegions {
		log.Debugf("[0x%16x - 0x%16x] %-12s %s", r.PhysAddr, r.PhysAddr+r.Size, r.Name, r.Flags)
	}

	return nil
}

// Shutdown releases the emulated RAM of the active platform. It is a no-op if
// Init has not been called.
func Shutdown() {
	if activePlatform == nil {
		return
	}

	if err := munmapFn(physMem); err != nil {
		kfmt.Logger("hal").WithError(err).Warn("munmap of physical memory failed")
	}

	mm.SetPhysMemAccessor(nil)
	activePlatform = nil
	physMem = nil
	memRegions = nil
}

// ActivePlatform returns the platform passed to Init or nil if the platform
// has not been initialized.
func ActivePlatform() *Platform {
	return activePlatform
}

// VisitMemRegions invokes visitor for each memory region of the active
// platform in ascending physical address order.
func VisitMemRegions(visitor MemRegionVisitor) {
	for i := range memRegions {
		region := memRegions[i]
		if !visitor(&region) {
			return
		}
	}
}

// PhysBytes returns a slice overlaying size bytes of RAM starting at physAddr.
// It returns nil if the range is not fully backed by RAM.
func PhysBytes(physAddr, size uintptr) []byte {
	if activePlatform == nil || physAddr < activePlatform.PhysMemoryBase {
		return nil
	}

	offset := physAddr - activePlatform.PhysMemoryBase
	if offset > uintptr(len(physMem)) || size > uintptr(len(physMem))-offset {
		return nil
	}

	return physMem[offset : offset+size : offset+size]
}

// PhysToVirt returns the address at which paddr is visible in the kernel's
// linear mapping of physical memory.
func PhysToVirt(paddr uintptr) uintptr {
	return paddr + activePlatform.PhysVirtOffset
}

// VirtToPhys is the inverse of PhysToVirt.
func VirtToPhys(vaddr uintptr) uintptr {
	return vaddr - activePlatform.PhysVirtOffset
}
