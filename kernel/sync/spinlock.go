// Package sync provides synchronization primitive implementations for
// spinlocks.
package sync

import (
	"runtime"
	"sync/atomic"

	"gophermm/kernel/cpu"
)

const attemptsBeforeYielding = 64

var (
	// yieldFn is invoked by a spinning task after attemptsBeforeYielding
	// failed acquisition attempts.
	yieldFn = runtime.Gosched

	// the following functions are mocked by tests.
	saveAndDisableInterruptsFn = cpu.SaveAndDisableInterrupts
	restoreInterruptsFn        = cpu.RestoreInterrupts
)

// Spinlock implements a lock where each task trying to acquire it busy-waits
// till the lock becomes available.
type Spinlock struct {
	state uint32
}

// Acquire blocks until the lock can be acquired by the currently active task.
// Any attempt to re-acquire a lock already held by the current task will cause
// a deadlock.
func (l *Spinlock) Acquire() {
	acquireSpinlock(&l.state, attemptsBeforeYielding)
}

// TryToAcquire attempts to acquire the lock and returns true if the lock could
// be acquired or false otherwise.
func (l *Spinlock) TryToAcquire() bool {
	return atomic.SwapUint32(&l.state, 1) == 0
}

// Release relinquishes a held lock allowing other tasks to acquire it. Calling
// Release while the lock is free has no effect.
func (l *Spinlock) Release() {
	atomic.StoreUint32(&l.state, 0)
}

func acquireSpinlock(state *uint32, attemptsBeforeYielding uint32) {
	for attempts := uint32(0); !atomic.CompareAndSwapUint32(state, 0, 1); attempts++ {
		if attempts >= attemptsBeforeYielding {
			yieldFn()
			attempts = 0
		}
	}
}

// IrqSpinlock is a Spinlock that also disables interrupts for as long as it
// is held. Holding it prevents an interrupt handler (e.g. the page fault
// handler) from re-entering code that needs the same lock on this CPU.
type IrqSpinlock struct {
	lock Spinlock

	// irqEnabled holds the interrupt state observed by Acquire and
	// restored by Release.
	irqEnabled bool
}

// Acquire disables interrupts and blocks until the lock can be acquired.
func (l *IrqSpinlock) Acquire() {
	enabled := saveAndDisableInterruptsFn()
	l.lock.Acquire()
	l.irqEnabled = enabled
}

// TryToAcquire attempts to acquire the lock. Interrupts remain disabled only
// if the lock was acquired.
func (l *IrqSpinlock) TryToAcquire() bool {
	enabled := saveAndDisableInterruptsFn()
	if !l.lock.TryToAcquire() {
		restoreInterruptsFn(enabled)
		return false
	}

	l.irqEnabled = enabled
	return true
}

// Release relinquishes the lock and restores the interrupt state that was
// active when it was acquired.
func (l *IrqSpinlock) Release() {
	enabled := l.irqEnabled
	l.lock.Release()
	restoreInterruptsFn(enabled)
}
