package hal

import (
	"sort"

	"gophermm/kernel"
	"gophermm/kernel/mm"
)

var (
	errPlatformUnaligned = &kernel.Error{Module: "hal", Message: "platform memory layout is not page-aligned", Kind: kernel.InvalidInput}
	errPlatformNoRAM     = &kernel.Error{Module: "hal", Message: "platform does not declare any RAM", Kind: kernel.InvalidInput}
	errKernelImageSize   = &kernel.Error{Module: "hal", Message: "kernel image does not fit in RAM", Kind: kernel.InvalidInput}
	errRegionOverlap     = &kernel.Error{Module: "hal", Message: "physical memory regions overlap", Kind: kernel.InvalidInput}
)

// Section describes a kernel image section loaded at the beginning of RAM.
type Section struct {
	Name  string
	Size  uintptr
	Flags mm.MappingFlags
}

// MemRegion describes a range of physical memory reported by the platform.
type MemRegion struct {
	// The physical address where the region begins.
	PhysAddr uintptr

	// The size of the region in bytes.
	Size uintptr

	// The access flags used when mapping the region.
	Flags mm.MappingFlags

	// A human-readable description of the region.
	Name string

	// Free is set for RAM that can be handed out by the frame allocator.
	Free bool
}

// Platform describes the physical memory layout of the machine together with
// the layout of the kernel address space.
type Platform struct {
	PhysMemoryBase   uintptr
	PhysMemorySize   uintptr
	PhysVirtOffset   uintptr
	KernelAspaceBase uintptr
	KernelAspaceSize uintptr

	// KernelImage lists the sections of the kernel image in load order.
	// The image occupies the beginning of RAM.
	KernelImage []Section

	// MMIO lists device memory ranges. They are mapped with the device
	// flag and are never handed out by the frame allocator.
	MMIO []MemRegion
}

// DefaultPlatform returns the description of the default board.
func DefaultPlatform() *Platform {
	p := &Platform{
		PhysMemoryBase:   PhysMemoryBase,
		PhysMemorySize:   PhysMemorySize,
		PhysVirtOffset:   PhysVirtOffset,
		KernelAspaceBase: KernelAspaceBase,
		KernelAspaceSize: KernelAspaceSize,
	}
	p.KernelImage = append(p.KernelImage, defaultKernelImage...)
	p.MMIO = append(p.MMIO, defaultMMIO...)
	return p
}

// Validate checks that the platform layout is page-aligned and that none of
// its memory regions overlap.
func (p *Platform) Validate() *kernel.Error {
	if p.PhysMemorySize == 0 {
		return errPlatformNoRAM
	}

	if !mm.IsAligned(p.PhysMemoryBase, mm.Size4K) || !mm.IsAligned(p.PhysMemorySize, mm.Size4K) ||
		!mm.IsAligned(p.KernelAspaceBase, mm.Size4K) || !mm.IsAligned(p.KernelAspaceSize, mm.Size4K) ||
		!mm.IsAligned(p.PhysVirtOffset, mm.Size4K) {
		return errPlatformUnaligned
	}

	var imageSize uintptr
	for _, sec := range p.KernelImage {
		if !mm.IsAligned(sec.Size, mm.Size4K) {
			return errPlatformUnaligned
		}
		imageSize += sec.Size
	}

	if imageSize > p.PhysMemorySize {
		return errKernelImageSize
	}

	for _, r := range p.MMIO {
		if !mm.IsAligned(r.PhysAddr, mm.Size4K) || !mm.IsAligned(r.Size, mm.Size4K) {
			return errPlatformUnaligned
		}
	}

	regions := p.memRegions()
	for i := 1; i < len(regions); i++ {
		if regions[i-1].PhysAddr+regions[i-1].Size > regions[i].PhysAddr {
			return errRegionOverlap
		}
	}

	return nil
}

// memRegions returns the platform memory regions sorted by physical address:
// the kernel image sections, the remaining free RAM and the MMIO ranges.
func (p *Platform) memRegions() []MemRegion {
	var (
		regions []MemRegion
		next    = p.PhysMemoryBase
		ramEnd  = p.PhysMemoryBase + p.PhysMemorySize
	)

	for _, sec := range p.KernelImage {
		if sec.Size == 0 {
			continue
		}

		regions = append(regions, MemRegion{PhysAddr: next, Size: sec.Size, Flags: sec.Flags, Name: sec.Name})
		next += sec.Size
	}

	if next < ramEnd {
		regions = append(regions, MemRegion{
			PhysAddr: next,
			Size:     ramEnd - next,
			Flags:    mm.FlagRead | mm.FlagWrite,
			Name:     "free memory",
			Free:     true,
		})
	}

	for _, r := range p.MMIO {
		if r.Size == 0 {
			continue
		}

		r.Flags = mm.FlagRead | mm.FlagWrite | mm.FlagDevice
		r.Free = false
		regions = append(regions, r)
	}

	sort.Slice(regions, func(i, j int) bool { return regions[i].PhysAddr < regions[j].PhysAddr })
	return regions
}
