package mm

import (
	"testing"

	"gophermm/kernel"
)

func TestFrameMethods(t *testing.T) {
	for frameIndex := uint64(0); frameIndex < 128; frameIndex++ {
		frame := Frame(frameIndex)

		if !frame.Valid() {
			t.Errorf("expected frame %d to be valid", frameIndex)
		}

		if exp, got := uintptr(frameIndex<<PageShift), frame.Address(); got != exp {
			t.Errorf("expected frame (%d, index: %d) call to Address() to return %x; got %x", frame, frameIndex, exp, got)
		}
	}

	invalidFrame := InvalidFrame
	if invalidFrame.Valid() {
		t.Error("expected InvalidFrame.Valid() to return false")
	}
}

func TestFrameFromAddress(t *testing.T) {
	specs := []struct {
		input    uintptr
		expFrame Frame
	}{
		{0, Frame(0)},
		{4095, Frame(0)},
		{4096, Frame(1)},
		{4123, Frame(1)},
	}

	for specIndex, spec := range specs {
		if got := FrameFromAddress(spec.input); got != spec.expFrame {
			t.Errorf("[spec %d] expected returned frame to be %v; got %v", specIndex, spec.expFrame, got)
		}
	}
}

func TestPageFromAddress(t *testing.T) {
	specs := []struct {
		input   uintptr
		expPage Page
	}{
		{0, Page(0)},
		{4095, Page(0)},
		{4096, Page(1)},
		{4123, Page(1)},
	}

	for specIndex, spec := range specs {
		if got := PageFromAddress(spec.input); got != spec.expPage {
			t.Errorf("[spec %d] expected returned page to be %v; got %v", specIndex, spec.expPage, got)
		}

		if exp, got := uintptr(spec.expPage)<<PageShift, spec.expPage.Address(); got != exp {
			t.Errorf("[spec %d] expected page address to be %x; got %x", specIndex, exp, got)
		}
	}
}

func TestRawPage(t *testing.T) {
	defer SetFrameAllocator(nil, nil)
	defer SetPhysMemAccessor(nil)

	var (
		physMem      = make([]byte, 4*PageSize)
		releaseCalls int
		expErr       = &kernel.Error{Module: "test", Message: "out of memory", Kind: kernel.NoMemory}
		failAlloc    bool
	)

	for i := range physMem {
		physMem[i] = 0xfe
	}

	SetFrameAllocator(
		func(pageCount uintptr, align Size) (Frame, *kernel.Error) {
			if failAlloc {
				return InvalidFrame, expErr
			}
			return Frame(2), nil
		},
		func(frame Frame, pageCount uintptr) {
			if frame != Frame(2) || pageCount != 2 {
				t.Errorf("unexpected release of %d frames at %d", pageCount, frame)
			}
			releaseCalls++
		},
	)
	SetPhysMemAccessor(func(physAddr, size uintptr) []byte {
		return physMem[physAddr-2*PageSize : physAddr-2*PageSize+size]
	})

	page, err := AllocContiguous(2, Size4K)
	if err != nil {
		t.Fatal(err)
	}

	if exp, got := uintptr(2*PageSize), page.StartPaddr(); got != exp {
		t.Fatalf("expected start paddr to be 0x%x; got 0x%x", exp, got)
	}

	if exp, got := 2*PageSize, page.Size(); got != exp {
		t.Fatalf("expected page size to be %d; got %d", exp, got)
	}

	page.Zero()
	for i, b := range page.Bytes() {
		if b != 0 {
			t.Fatalf("expected byte %d to be cleared; got 0x%x", i, b)
		}
	}

	page.Release()
	if releaseCalls != 1 {
		t.Fatalf("expected release to be called once; got %d", releaseCalls)
	}

	failAlloc = true
	if _, err = AllocContiguous(1, Size4K); err != expErr {
		t.Fatalf("expected error %v; got %v", expErr, err)
	}
}
