package kmain

import (
	"io"

	"gophermm/kernel"
	"gophermm/kernel/hal"
	"gophermm/kernel/kfmt"
	"gophermm/kernel/mm/pfn"
	"gophermm/kernel/mm/pmm"
	"gophermm/kernel/mm/vmm"

	"github.com/pkg/errors"
)

var (
	// panicFn is mocked by tests.
	panicFn = kfmt.Panic

	log = kfmt.Logger("kmain")

	errKmainReturned = &kernel.Error{Module: "kmain", Message: "Kmain returned"}
)

// Kmain is the kernel entrypoint. It routes the kernel log to w, brings up
// the physical memory described by p and initializes memory management on
// the boot CPU.
//
// Kmain is not expected to return. If it does, the CPU is halted.
//
//go:noinline
func Kmain(p *hal.Platform, w io.Writer) {
	kfmt.SetOutputSink(w)

	if err := boot(p); err != nil {
		panicFn(err)
		return
	}

	// Use panicFn instead of panic so the halt is logged like any other
	// unrecoverable error.
	panicFn(errKmainReturned)
}

// boot runs the memory management initialization sequence: the physical
// memory window, the frame allocator, the frame reference table and finally
// the kernel address space.
func boot(p *hal.Platform) error {
	if err := hal.Init(p); err != nil {
		return errors.Wrap(err, "unable to initialize physical memory")
	}

	if err := pmm.Init(); err != nil {
		return errors.Wrap(err, "unable to initialize frame allocator")
	}

	pfn.Init(p.PhysMemoryBase, p.PhysMemorySize)

	if err := vmm.InitMemoryManagement(); err != nil {
		return err
	}

	log.Infof("memory management initialized: %d/%d frames free",
		pmm.FrameAllocator.FreeCount(), pmm.FrameAllocator.TotalCount())
	return nil
}
