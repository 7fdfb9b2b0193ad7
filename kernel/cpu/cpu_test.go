package cpu

import "testing"

func TestInterruptState(t *testing.T) {
	defer EnableInterrupts()

	EnableInterrupts()
	if !InterruptsEnabled() {
		t.Fatal("expected interrupts to be enabled")
	}

	if prev := SaveAndDisableInterrupts(); !prev {
		t.Fatal("expected SaveAndDisableInterrupts to report interrupts as previously enabled")
	}

	if InterruptsEnabled() {
		t.Fatal("expected interrupts to be disabled")
	}

	// nested save sees the disabled state
	if prev := SaveAndDisableInterrupts(); prev {
		t.Fatal("expected nested SaveAndDisableInterrupts to report interrupts as disabled")
	}

	RestoreInterrupts(true)
	if !InterruptsEnabled() {
		t.Fatal("expected RestoreInterrupts to re-enable interrupts")
	}

	DisableInterrupts()
	if InterruptsEnabled() {
		t.Fatal("expected DisableInterrupts to disable interrupts")
	}
}

func TestFlushTLBEntry(t *testing.T) {
	before := TLBFlushCount()
	FlushTLBEntry(0x1000)
	FlushTLBEntry(0x2000)

	if exp, got := before+2, TLBFlushCount(); got != exp {
		t.Fatalf("expected flush count to be %d; got %d", exp, got)
	}
}

func TestSwitchPDT(t *testing.T) {
	defer SwitchPDT(0)

	SwitchPDT(0xbadf000)
	if exp, got := uintptr(0xbadf000), ActivePDT(); got != exp {
		t.Fatalf("expected active PDT to be 0x%x; got 0x%x", exp, got)
	}
}

func TestHalt(t *testing.T) {
	defer func(orig func()) { haltFn = orig }(haltFn)

	halted := false
	haltFn = func() { halted = true }

	Halt()
	if !halted {
		t.Fatal("expected Halt to invoke haltFn")
	}
}
