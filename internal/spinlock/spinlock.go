// Package spinlock implements the kernel's only mutual-exclusion
// primitive: a single word spun on with atomic compare-and-swap. The
// caller is responsible for masking interrupts around any critical
// section a timer-driven handler could also enter; a preempted lock
// holder would otherwise deadlock the handler that spins on the same
// word.
package spinlock

import "sync/atomic"

// State values. Locked is 0 and Unlocked is 1, the inverse of the
// conventional "zero means unlocked" encoding, so the zero value of a
// SpinLock starts out held — construct with New.
const (
	Locked   int32 = 0
	Unlocked int32 = 1
)

// SpinLock is a single word protecting a critical section, spun on
// rather than parked on.
type SpinLock struct {
	state atomic.Int32
}

// New returns an unlocked SpinLock.
func New() *SpinLock {
	l := &SpinLock{}
	l.state.Store(Unlocked)
	return l
}

// Lock spins until the lock can be atomically claimed. Fairness between
// spinners is not guaranteed.
func (l *SpinLock) Lock() {
	for !l.state.CompareAndSwap(Unlocked, Locked) {
	}
}

// TryLock attempts to claim the lock without spinning, reporting
// whether it succeeded.
func (l *SpinLock) TryLock() bool {
	return l.state.CompareAndSwap(Unlocked, Locked)
}

// Unlock releases the lock. Unlocking an already-unlocked lock is a
// no-op.
func (l *SpinLock) Unlock() {
	l.state.Store(Unlocked)
}

// IRQMasker pauses and resumes interrupt delivery around a critical
// section. internal/timer's Timer satisfies it: stopping the PIT is the
// simulator's stand-in for masking interrupts with cli.
type IRQMasker interface {
	Stop()
	Start()
}

// LockIRQ masks interrupt delivery through m, then takes the lock. Use
// for any critical section a timer-driven handler could also enter. m
// may be nil when no interrupt source is live yet.
func (l *SpinLock) LockIRQ(m IRQMasker) {
	if m != nil {
		m.Stop()
	}
	l.Lock()
}

// UnlockIRQ releases the lock, then unmasks interrupt delivery again.
func (l *SpinLock) UnlockIRQ(m IRQMasker) {
	l.Unlock()
	if m != nil {
		m.Start()
	}
}
