package sched

import "github.com/ashutoshR112/protokernel/internal/spinlock"

// Semaphore is a counting semaphore built on the scheduler's own
// block/wake primitives and a FIFO waiter list, the natural complement
// to the spin lock for a preemptive scheduler: the scheduler already
// has everything a semaphore needs — a way to block a thread and a way
// to wake one.
type Semaphore struct {
	sched   *Scheduler
	lock    spinlock.SpinLock
	count   int
	waiters []*Thread
}

// NewSemaphore returns a Semaphore with the given initial count, bound
// to sched for blocking and waking threads.
func NewSemaphore(sched *Scheduler, initial int) *Semaphore {
	return &Semaphore{sched: sched, count: initial, lock: *spinlock.New()}
}

// Count reports the semaphore's current count, for monitor inspection.
func (sem *Semaphore) Count() int {
	sem.lock.Lock()
	defer sem.lock.Unlock()
	return sem.count
}

// Wait decrements the count and returns immediately if it was positive.
// Otherwise self is enqueued as a waiter and its goroutine blocks until
// a matching Signal wakes it and the scheduler gives it a turn again.
// self must be the thread calling Wait (there is no other way to
// identify "the current thread" from inside a plain function call in
// this simulator, since there is no real CPU register holding it).
func (sem *Semaphore) Wait(self *Thread) {
	sem.lock.Lock()
	if sem.count > 0 {
		sem.count--
		sem.lock.Unlock()
		return
	}
	sem.waiters = append(sem.waiters, self)
	sem.lock.Unlock()

	sem.sched.blockCurrent(self)
}

// Signal wakes the longest-waiting thread if any are blocked, otherwise
// increments the count for a future Wait to consume.
func (sem *Semaphore) Signal() {
	sem.lock.Lock()
	if len(sem.waiters) == 0 {
		sem.count++
		sem.lock.Unlock()
		return
	}
	w := sem.waiters[0]
	sem.waiters = sem.waiters[1:]
	sem.lock.Unlock()

	sem.sched.wake(w)
}
