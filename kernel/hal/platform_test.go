package hal

import (
	"testing"

	"gophermm/kernel/mm"
)

func TestDefaultPlatformLayout(t *testing.T) {
	p := DefaultPlatform()
	if err := p.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	regions := p.memRegions()
	for i := 1; i < len(regions); i++ {
		if regions[i-1].PhysAddr >= regions[i].PhysAddr {
			t.Fatalf("expected regions to be sorted; region %d starts at 0x%x, region %d at 0x%x", i-1, regions[i-1].PhysAddr, i, regions[i].PhysAddr)
		}
	}

	var (
		imageSize uintptr
		freeSeen  bool
	)
	for _, sec := range p.KernelImage {
		imageSize += sec.Size
	}

	for _, r := range regions {
		switch {
		case r.Free:
			freeSeen = true
			if exp := PhysMemoryBase + imageSize; r.PhysAddr != exp {
				t.Errorf("expected free memory to start at 0x%x; got 0x%x", exp, r.PhysAddr)
			}
			if exp := PhysMemorySize - imageSize; r.Size != exp {
				t.Errorf("expected free memory size to be 0x%x; got 0x%x", exp, r.Size)
			}
			if exp := mm.FlagRead | mm.FlagWrite; r.Flags != exp {
				t.Errorf("expected free memory flags to be %s; got %s", exp, r.Flags)
			}
		case r.Name == "uart":
			if !r.Flags.Contains(mm.FlagDevice) {
				t.Errorf("expected mmio region flags to include DEVICE; got %s", r.Flags)
			}
		}
	}

	if !freeSeen {
		t.Fatal("expected layout to include a free memory region")
	}
}

func TestPlatformValidate(t *testing.T) {
	specs := []struct {
		mutate func(*Platform)
		expErr error
	}{
		{func(p *Platform) {}, nil},
		{func(p *Platform) { p.PhysMemorySize = 0 }, errPlatformNoRAM},
		{func(p *Platform) { p.PhysMemoryBase += 1 }, errPlatformUnaligned},
		{func(p *Platform) { p.KernelAspaceSize -= 1 }, errPlatformUnaligned},
		{func(p *Platform) { p.KernelImage[0].Size = 123 }, errPlatformUnaligned},
		{func(p *Platform) { p.KernelImage[0].Size = p.PhysMemorySize + uintptr(mm.Size4K) }, errKernelImageSize},
		{func(p *Platform) { p.MMIO[0].PhysAddr = 0x123 }, errPlatformUnaligned},
		{func(p *Platform) { p.MMIO = append(p.MMIO, MemRegion{PhysAddr: PhysMemoryBase, Size: 0x1000, Name: "bogus"}) }, errRegionOverlap},
	}

	for specIndex, spec := range specs {
		p := DefaultPlatform()
		spec.mutate(p)

		err := p.Validate()
		if spec.expErr == nil {
			if err != nil {
				t.Errorf("[spec %d] expected no error; got %v", specIndex, err)
			}
			continue
		}

		if err != spec.expErr {
			t.Errorf("[spec %d] expected error %v; got %v", specIndex, spec.expErr, err)
		}
	}
}
