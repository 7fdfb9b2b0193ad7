// Package cpu exposes the privileged CPU operations needed by the memory
// manager. The kernel runs hosted, so the interrupt flag, the TLB and the
// page-table root register are emulated rather than touched directly.
package cpu

import (
	"os"
	"sync/atomic"
)

var (
	// interruptsEnabled emulates the interrupt-enable flag.
	interruptsEnabled atomic.Bool

	// activePDT emulates the register holding the physical address of
	// the active root page table.
	activePDT atomic.Uintptr

	// tlbFlushes counts single-entry TLB invalidations.
	tlbFlushes atomic.Uint64

	// haltFn is invoked by Halt. Tests override it to observe halts.
	haltFn = func() { os.Exit(1) }
)

func init() {
	interruptsEnabled.Store(true)
}

// EnableInterrupts enables interrupt handling.
func EnableInterrupts() {
	interruptsEnabled.Store(true)
}

// DisableInterrupts disables interrupt handling.
func DisableInterrupts() {
	interruptsEnabled.Store(false)
}

// InterruptsEnabled returns true if interrupt handling is enabled.
func InterruptsEnabled() bool {
	return interruptsEnabled.Load()
}

// SaveAndDisableInterrupts disables interrupt handling and returns whether
// interrupts were enabled before the call.
func SaveAndDisableInterrupts() bool {
	return interruptsEnabled.Swap(false)
}

// RestoreInterrupts restores the interrupt state returned by a previous call
// to SaveAndDisableInterrupts.
func RestoreInterrupts(enabled bool) {
	interruptsEnabled.Store(enabled)
}

// Halt stops instruction execution. A hosted kernel has nothing to resume
// it, so the process exits.
func Halt() {
	haltFn()
}

// FlushTLBEntry flushes a TLB entry for a particular virtual address.
func FlushTLBEntry(virtAddr uintptr) {
	tlbFlushes.Add(1)
}

// TLBFlushCount returns the number of TLB entries flushed so far.
func TLBFlushCount() uint64 {
	return tlbFlushes.Load()
}

// SwitchPDT sets the root page table directory to point to the specified
// physical address and flushes the TLB.
func SwitchPDT(pdtPhysAddr uintptr) {
	activePDT.Store(pdtPhysAddr)
}

// ActivePDT returns the physical address of the currently active page table.
func ActivePDT() uintptr {
	return activePDT.Load()
}
