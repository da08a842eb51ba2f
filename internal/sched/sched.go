// Package sched implements the kernel's round-robin scheduler and
// thread records: a FIFO ready queue plus a distinguished current
// thread, rotated by Schedule's append-current/pop-head sequence on
// every timer tick.
//
// There is no real CPU here to save registers into or iret out of, so
// "context switch" is realized as a handoff between one goroutine per
// thread, gated by a pair of per-thread signal channels: Schedule
// (invoked from the timer ISR) asks the outgoing thread's goroutine to
// pause at its next cooperative checkpoint and grants the incoming
// thread's goroutine its turn. Both signals are non-blocking sends, so
// the ISR path never waits on a goroutine that isn't listening. The
// Thread struct still carries the callee-saved register fields a
// hardware switch would preserve (esp, ebp, ebx, esi, edi, eflags, id)
// as an explicit, inspectable saved-context record, even though nothing
// here executes real machine instructions against them.
package sched

import (
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/ashutoshR112/protokernel/internal/kpanic"
	"github.com/ashutoshR112/protokernel/internal/physmem"
	"github.com/ashutoshR112/protokernel/internal/spinlock"
)

// Sentinel "addresses" pushed where a new thread's stack would carry
// the exit routine's and entry function's code addresses. Neither is a
// real code address under this simulator — Go closures carry fn and the
// exit path directly — but the push still happens so the bootstrap
// stack words are present and inspectable, e.g. from the "mem" monitor
// command.
const (
	threadExitSentinel uint32 = 0xFFFFFFFE
	fnEntrySentinel    uint32 = 0xFFFFFFFF
)

// State is a thread's scheduling state.
type State int

const (
	Ready State = iota
	Running
	Blocked
	Terminated
)

func (s State) String() string {
	switch s {
	case Ready:
		return "ready"
	case Running:
		return "running"
	case Blocked:
		return "blocked"
	case Terminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Thread is one schedulable thread of execution: the callee-saved
// register fields a context switch preserves, plus the bookkeeping this
// simulator needs to actually hand control between goroutines.
type Thread struct {
	ESP, EBP, EBX, ESI, EDI, EFlags uint32
	ID                              uint32

	fn    func(arg uint32) uint32
	arg   uint32
	state State

	pause  chan struct{} // Schedule asks this thread to yield its turn.
	resume chan struct{} // Schedule grants this thread its turn.
}

// State reports the thread's current scheduling state.
func (t *Thread) State() State { return t.state }

// Scheduler holds the FIFO ready queue and the currently running
// thread as fields of a value instead of package globals, so callers
// thread an explicit reference.
type Scheduler struct {
	log *slog.Logger

	lock  spinlock.SpinLock
	ready []*Thread // FIFO: index 0 is the head.
	cur   *Thread

	nextTID atomic.Uint32
	ticks   atomic.Uint64
}

// New initializes the scheduler with initial as the running thread and
// an empty ready queue. initial is typically the result of
// NewBootThread wrapping whatever goroutine called New — it is never
// itself wrapped in a managed goroutine. Newly created threads
// (NewThread) are numbered starting from 1; initial conventionally
// takes id 0.
func New(log *slog.Logger, initial *Thread) *Scheduler {
	initial.state = Running
	s := &Scheduler{log: log, cur: initial, lock: *spinlock.New()}
	s.nextTID.Store(1)
	return s
}

// NewBootThread builds the Thread record for the goroutine that is
// already running when the scheduler starts (boot/main): id 0, the same
// checkpoint channels a spawned thread gets so it cooperates with
// Schedule identically even though no goroutine was spawned for it. Pass
// the result to New.
func NewBootThread() *Thread {
	return &Thread{
		EFlags: 0x200,
		pause:  make(chan struct{}, 1),
		resume: make(chan struct{}, 1),
	}
}

// Current returns the currently running thread.
func (s *Scheduler) Current() *Thread {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.cur
}

// Ticks reports how many timer ticks Tick has observed.
func (s *Scheduler) Ticks() uint64 { return s.ticks.Load() }

// ReadyLen reports the number of threads waiting in the ready queue,
// for monitor inspection.
func (s *Scheduler) ReadyLen() int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return len(s.ready)
}

// ThreadIsReady appends t to the ready queue tail. Callers mutating the
// ready queue outside the timer ISR must already hold interrupts
// masked.
func (s *Scheduler) ThreadIsReady(t *Thread) {
	s.lock.Lock()
	defer s.lock.Unlock()
	t.state = Ready
	s.ready = append(s.ready, t)
}

// ThreadNotReady removes the first occurrence of t from the ready
// queue. A no-op if t is not queued.
func (s *Scheduler) ThreadNotReady(t *Thread) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.removeLocked(t)
}

func (s *Scheduler) removeLocked(t *Thread) {
	for i, q := range s.ready {
		if q == t {
			s.ready = append(s.ready[:i], s.ready[i+1:]...)
			return
		}
	}
}

// NewThread creates a new thread running fn(arg) on a simulated stack
// ending at stackTop. It pushes, descending from stackTop, arg then the
// exit-routine sentinel then the entry-function sentinel — if mem is
// non-nil those three words are actually written into simulated memory
// so the layout is inspectable and testable; mem may be nil when the
// caller only cares about the resulting Thread. esp ends at stackTop-12,
// ebp is 0, eflags is 0x200 (interrupts enabled), and the thread is
// enqueued ready to run.
func (s *Scheduler) NewThread(mem *physmem.RAM, fn func(arg uint32) uint32, arg uint32, stackTop uint32) *Thread {
	if stackTop < 12 {
		kpanic.Panic("sched: stack top %#x too small for thread bootstrap frame", stackTop)
	}

	t := &Thread{
		ID:     s.nextTID.Add(1) - 1,
		fn:     fn,
		arg:    arg,
		EBP:    0,
		EFlags: 0x200,
		pause:  make(chan struct{}, 1),
		resume: make(chan struct{}, 1),
	}

	if mem != nil {
		mem.Write32(stackTop-4, arg)
		mem.Write32(stackTop-8, threadExitSentinel)
		mem.Write32(stackTop-12, fnEntrySentinel)
	}
	t.ESP = stackTop - 12

	go s.run(t)

	s.ThreadIsReady(t)
	return t
}

// run is the managed goroutine body for every thread NewThread creates.
// It waits for its first grant of the turnstile, executes fn, and then
// retires the thread, freeing its ready-queue slot rather than spinning
// forever in a dead thread.
func (s *Scheduler) run(t *Thread) {
	<-t.resume
	result := t.fn(t.arg)
	s.retire(t, result)
}

// Schedule performs one round-robin rotation: if the ready queue is
// empty there is nothing to switch to and it returns immediately;
// otherwise the current thread is appended to the ready queue tail, the
// head of the queue becomes current, and a context switch hands the
// turnstile to the new current thread. Invoked from the timer ISR.
func (s *Scheduler) Schedule() {
	s.lock.Lock()
	if len(s.ready) == 0 {
		s.lock.Unlock()
		return
	}

	outgoing := s.cur
	outgoing.state = Ready
	s.ready = append(s.ready, outgoing)

	next := s.ready[0]
	s.ready = s.ready[1:]
	next.state = Running
	s.cur = next
	s.lock.Unlock()

	s.switchTo(outgoing, next)
}

// Tick is the timer handler registered on vector 32 (IRQ0): it
// increments the global tick counter and invokes the scheduler.
func (s *Scheduler) Tick() {
	s.ticks.Add(1)
	s.Schedule()
}

// switchTo signals outgoing to give up its turn at its next checkpoint
// and grants next its turn. Both sends are non-blocking (buffered
// channels, best-effort): interrupt context must never wait on a
// goroutine that isn't listening.
func (s *Scheduler) switchTo(outgoing, next *Thread) {
	if outgoing == next {
		return
	}
	if outgoing.pause != nil {
		select {
		case outgoing.pause <- struct{}{}:
		default:
		}
	}
	if next.resume != nil {
		select {
		case next.resume <- struct{}{}:
		default:
		}
	}
}

// CheckPoint is the cooperative preemption point a thread body calls on
// every loop iteration. If Schedule has asked this thread to yield since
// its last checkpoint, it blocks here until a later Schedule grants it
// the turnstile again; otherwise it returns immediately. This is the
// simulator's stand-in for "the timer interrupt may fire at any
// instruction," at checkpoint granularity instead.
func (t *Thread) CheckPoint() {
	select {
	case <-t.pause:
		<-t.resume
	default:
	}
}

// retire transitions t to Terminated, removes it from the ready queue,
// logs its exit value, and — if t was the running thread — switches to
// whatever is next so the scheduler never gets stuck with a dead
// current thread.
func (s *Scheduler) retire(t *Thread, result uint32) {
	if s.log != nil {
		s.log.Info(fmt.Sprintf("Thread exited with value %d", result), "id", t.ID)
	}

	s.lock.Lock()
	s.removeLocked(t)
	t.state = Terminated
	wasCurrent := s.cur == t
	var next *Thread
	if wasCurrent && len(s.ready) > 0 {
		next = s.ready[0]
		s.ready = s.ready[1:]
		next.state = Running
		s.cur = next
	}
	s.lock.Unlock()

	if next != nil {
		select {
		case next.resume <- struct{}{}:
		default:
		}
	}
}

// blockCurrent removes t from scheduling entirely (neither current nor
// ready) and switches to the next ready thread, then parks t's own
// goroutine until a later wake makes it ready again and a subsequent
// Schedule dequeues it. Used by Semaphore.Wait. Fatal if no other
// thread is ready to take over, since blocking here would otherwise
// wedge the whole simulated machine with nothing left to run.
func (s *Scheduler) blockCurrent(t *Thread) {
	s.lock.Lock()
	if len(s.ready) == 0 {
		s.lock.Unlock()
		kpanic.Panic("sched: thread %d blocked with no other thread ready to run", t.ID)
	}

	next := s.ready[0]
	s.ready = s.ready[1:]
	next.state = Running
	s.cur = next
	t.state = Blocked
	s.lock.Unlock()

	if next.resume != nil {
		select {
		case next.resume <- struct{}{}:
		default:
		}
	}
	<-t.resume
}

// wake makes a blocked thread ready again, identical to ThreadIsReady:
// the thread only actually resumes running once a later Schedule
// dequeues it.
func (s *Scheduler) wake(t *Thread) {
	s.ThreadIsReady(t)
}
