package hal

import "gophermm/kernel/mm"

// Board configuration for the default (qemu virt) platform.
const (
	// PhysMemoryBase is the physical address of the first byte of RAM.
	PhysMemoryBase = uintptr(0x8000_0000)

	// PhysMemorySize is the amount of RAM in bytes.
	PhysMemorySize = uintptr(128 * mm.Mb)

	// PhysVirtOffset is the offset of the kernel's linear mapping of
	// physical memory: vaddr = paddr + PhysVirtOffset.
	PhysVirtOffset = uintptr(0xffff_ffc0_0000_0000)

	// KernelAspaceBase is the first virtual address of the kernel
	// address space.
	KernelAspaceBase = uintptr(0xffff_ffc0_0000_0000)

	// KernelAspaceSize is the size of the kernel address space.
	KernelAspaceSize = uintptr(0x0000_003f_ffff_f000)
)

var (
	// defaultKernelImage lists the kernel image sections that are placed
	// at the beginning of RAM.
	defaultKernelImage = []Section{
		{Name: ".text", Size: uintptr(1 * mm.Mb), Flags: mm.FlagRead | mm.FlagExecute},
		{Name: ".rodata", Size: uintptr(512 * mm.Kb), Flags: mm.FlagRead},
		{Name: ".data .bss", Size: uintptr(512 * mm.Kb), Flags: mm.FlagRead | mm.FlagWrite},
		{Name: "boot stack", Size: uintptr(256 * mm.Kb), Flags: mm.FlagRead | mm.FlagWrite},
	}

	// defaultMMIO lists the device memory ranges of the platform.
	defaultMMIO = []MemRegion{
		{PhysAddr: 0x0c00_0000, Size: 0x21_0000, Name: "plic"},
		{PhysAddr: 0x1000_0000, Size: 0x1000, Name: "uart"},
		{PhysAddr: 0x1000_1000, Size: 0x8000, Name: "virtio-mmio"},
	}
)
