package vmm

import (
	"gophermm/kernel"
	"gophermm/kernel/cpu"
	"gophermm/kernel/hal"
	"gophermm/kernel/mm"

	"github.com/pkg/errors"
)

var (
	// kernelAspace is the address space shared by all kernel code. It is
	// set up once by InitMemoryManagement.
	kernelAspace *LockedAddrSpace

	// switchPDTFn is used by tests to override calls to cpu.SwitchPDT.
	switchPDTFn = cpu.SwitchPDT

	errKernelAspaceInitialized    = &kernel.Error{Module: "vmm", Message: "kernel address space already initialized"}
	errKernelAspaceNotInitialized = &kernel.Error{Module: "vmm", Message: "kernel address space not initialized"}
)

// NewKernelAddrSpace builds an address space covering the kernel half of the
// virtual address space in which every memory region of the active platform
// is linearly mapped at hal.PhysToVirt of its physical address.
func NewKernelAddrSpace() (*AddrSpace, *kernel.Error) {
	p := hal.ActivePlatform()
	aspace, err := NewEmpty(p.KernelAspaceBase, p.KernelAspaceSize)
	if err != nil {
		return nil, err
	}

	hal.VisitMemRegions(func(region *hal.MemRegion) bool {
		log.Debugf("mapping %-12s [0x%x - 0x%x] %s", region.Name, region.PhysAddr, region.PhysAddr+region.Size, region.Flags)
		err = aspace.MapLinear(hal.PhysToVirt(region.PhysAddr), region.PhysAddr, region.Size, region.Flags, mm.Size4K)
		return err == nil
	})

	if err != nil {
		aspace.Release()
		return nil, err
	}

	return aspace, nil
}

// InitMemoryManagement builds the kernel address space and activates its page
// table on the boot CPU. It must be called once, after the frame allocator
// and the frame reference table have been initialized.
func InitMemoryManagement() error {
	if kernelAspace != nil {
		return errKernelAspaceInitialized
	}

	aspace, err := NewKernelAddrSpace()
	if err != nil {
		return errors.Wrap(err, "unable to create kernel address space")
	}

	kernelAspace = NewLockedAddrSpace(aspace)
	switchPDTFn(aspace.PageTableRoot())

	log.Infof("kernel address space: [0x%x - 0x%x], %d regions, root 0x%x",
		aspace.Base(), aspace.End(), aspace.regions.Len(), aspace.PageTableRoot())
	return nil
}

// InitMemoryManagementSecondary activates the kernel page table on a
// secondary CPU.
func InitMemoryManagementSecondary() {
	switchPDTFn(KernelPageTableRoot())
}

// KernelAddrSpace returns the kernel address space. It panics if
// InitMemoryManagement has not been called.
func KernelAddrSpace() *LockedAddrSpace {
	if kernelAspace == nil {
		panic(errKernelAspaceNotInitialized)
	}
	return kernelAspace
}

// KernelPageTableRoot returns the physical address of the kernel page table.
func KernelPageTableRoot() uintptr {
	locked := KernelAddrSpace()
	aspace := locked.Lock()
	defer locked.Unlock()
	return aspace.PageTableRoot()
}

// HandleKernelPageFault resolves a fault on a kernel address.
func HandleKernelPageFault(vaddr uintptr, access mm.MappingFlags) bool {
	locked := KernelAddrSpace()
	aspace := locked.Lock()
	defer locked.Unlock()
	return aspace.HandlePageFault(vaddr, access)
}
