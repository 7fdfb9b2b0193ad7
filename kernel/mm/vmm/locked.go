package vmm

import (
	"gophermm/kernel"
	"gophermm/kernel/sync"
)

// LockedAddrSpace guards an AddrSpace with a spinlock that also disables
// interrupts while it is held.
type LockedAddrSpace struct {
	lock   sync.IrqSpinlock
	aspace *AddrSpace
}

// NewLockedAddrSpace wraps aspace.
func NewLockedAddrSpace(aspace *AddrSpace) *LockedAddrSpace {
	return &LockedAddrSpace{aspace: aspace}
}

// Lock acquires the lock and returns the guarded address space. The returned
// value must not be used after calling Unlock.
func (l *LockedAddrSpace) Lock() *AddrSpace {
	l.lock.Acquire()
	return l.aspace
}

// Unlock releases the lock.
func (l *LockedAddrSpace) Unlock() {
	l.lock.Release()
}

// TryClone clones the guarded address space. Both the source and the new
// address space stay locked until the clone is complete.
func (l *LockedAddrSpace) TryClone() (*LockedAddrSpace, *kernel.Error) {
	src := l.Lock()
	defer l.Unlock()

	child, err := NewEmpty(src.Base(), src.Size())
	if err != nil {
		return nil, err
	}

	locked := NewLockedAddrSpace(child)
	dst := locked.Lock()
	defer locked.Unlock()

	if err = src.cloneInto(dst); err != nil {
		dst.Release()
		return nil, err
	}

	return locked, nil
}
