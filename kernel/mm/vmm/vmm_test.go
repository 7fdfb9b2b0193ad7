package vmm

import (
	"testing"

	"gophermm/kernel/hal"
	"gophermm/kernel/mm"
	"gophermm/kernel/mm/pfn"
	"gophermm/kernel/mm/pmm"
)

const (
	testBase = uintptr(0x1000_0000)
	testSize = uintptr(0x1_0000_0000)

	rw = mm.FlagRead | mm.FlagWrite
)

// setupTestMemory boots a small platform with mmap-backed RAM and initializes
// the frame allocator and the frame reference table.
func setupTestMemory(t *testing.T) *hal.Platform {
	t.Helper()

	p := hal.DefaultPlatform()
	p.PhysMemorySize = uintptr(8 * mm.Mb)
	p.KernelImage = []hal.Section{
		{Name: ".text", Size: uintptr(64 * mm.Kb), Flags: mm.FlagRead | mm.FlagExecute},
		{Name: ".data", Size: uintptr(64 * mm.Kb), Flags: rw},
	}

	if err := hal.Init(p); err != nil {
		t.Fatal(err)
	}

	if err := pmm.Init(); err != nil {
		hal.Shutdown()
		t.Fatal(err)
	}

	pfn.Init(p.PhysMemoryBase, p.PhysMemorySize)

	t.Cleanup(func() {
		mm.SetFrameAllocator(nil, nil)
		hal.Shutdown()
	})

	return p
}

// newTestAddrSpace returns an empty address space that is released when the
// test completes.
func newTestAddrSpace(t *testing.T, base, size uintptr) *AddrSpace {
	t.Helper()

	as, err := NewEmpty(base, size)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(as.Release)
	return as
}

func freeFrames() uint32 {
	return pmm.FrameAllocator.FreeCount()
}

// assertRegionInvariants checks that the regions of as are sorted, non-empty
// and pairwise disjoint.
func assertRegionInvariants(t *testing.T, as *AddrSpace) {
	t.Helper()

	regions := as.Regions()
	for i, r := range regions {
		if r.Size() == 0 {
			t.Fatalf("region %d (%s) is empty", i, &r)
		}

		if i > 0 && regions[i-1].End() > r.Start() {
			t.Fatalf("region %d (%s) overlaps region %d (%s)", i-1, &regions[i-1], i, &r)
		}
	}
}

// assertRegions checks the ranges and flags of the regions of as.
func assertRegions(t *testing.T, as *AddrSpace, exp []Region) {
	t.Helper()
	assertRegionInvariants(t, as)

	got := as.Regions()
	if len(got) != len(exp) {
		t.Fatalf("expected %d regions; got %d:\n%s", len(exp), len(got), as)
	}

	for i := range exp {
		if got[i].start != exp[i].start || got[i].size != exp[i].size || got[i].flags != exp[i].flags {
			t.Errorf("[region %d] expected %s %s; got %s %s", i, exp[i].VirtRange(), exp[i].flags, got[i].VirtRange(), got[i].flags)
		}
	}
}

// isMapped returns true if vaddr has a page table entry in as.
func isMapped(as *AddrSpace, vaddr uintptr) bool {
	_, _, _, err := as.pt.Query(vaddr)
	return err == nil
}

// mustQuery returns the translation and flags for vaddr or fails the test.
func mustQuery(t *testing.T, as *AddrSpace, vaddr uintptr) (uintptr, mm.MappingFlags) {
	t.Helper()

	paddr, flags, _, err := as.pt.Query(vaddr)
	if err != nil {
		t.Fatalf("expected 0x%x to be mapped; got %v", vaddr, err)
	}
	return paddr, flags
}
