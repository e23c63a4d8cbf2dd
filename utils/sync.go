// Package utils provides small synchronization primitives shared across the
// kernel core.
package utils

import "sync/atomic"

// IRQState captures the interrupt-enable flag as it was before a
// SpinLock.Lock call, so Unlock can restore it exactly.
type IRQState struct {
	wasEnabled bool
}

// InterruptController abstracts the two instructions a spinlock needs:
// disabling and restoring the interrupt-enable flag. cpu.Backend satisfies
// this interface; tests may supply a fake.
type InterruptController interface {
	InterruptsEnabled() bool
	DisableInterrupts()
	EnableInterrupts()
}

// SpinLock is a test-and-set lock whose contract requires interrupts to be
// disabled for the duration it is held (§5: "a small spinlock primitive
// exists (with IRQ save/restore) for data that may be touched by both IRQ
// and task context"). On a single CPU this never spins in practice — it
// exists to make the "interrupts disabled while held" invariant explicit
// and to detect reentrant locking, which would otherwise deadlock forever
// since there is no second CPU to release it.
type SpinLock struct {
	held uint32
	ic   InterruptController
}

// NewSpinLock returns a SpinLock guarded by ic's interrupt-enable flag.
func NewSpinLock(ic InterruptController) *SpinLock {
	return &SpinLock{ic: ic}
}

// Lock disables interrupts and acquires the lock, returning the IRQState to
// pass back to Unlock. Panics if already held by the current (sole) thread
// of control, since that can only mean a handler re-entered its own
// critical section.
func (l *SpinLock) Lock() IRQState {
	st := IRQState{wasEnabled: l.ic.InterruptsEnabled()}
	l.ic.DisableInterrupts()
	if !atomic.CompareAndSwapUint32(&l.held, 0, 1) {
		panic("spinlock: reentrant lock on single CPU")
	}
	return st
}

// Unlock releases the lock and restores the interrupt-enable flag captured
// by the matching Lock call.
func (l *SpinLock) Unlock(st IRQState) {
	if !atomic.CompareAndSwapUint32(&l.held, 1, 0) {
		panic("spinlock: unlock of unheld lock")
	}
	if st.wasEnabled {
		l.ic.EnableInterrupts()
	}
}

// Held reports whether the lock is currently held. Intended for assertions
// in tests, not for control flow.
func (l *SpinLock) Held() bool {
	return atomic.LoadUint32(&l.held) == 1
}
