package sched

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/ashutoshR112/protokernel/internal/physmem"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newFakeThread(id uint32) *Thread {
	return &Thread{ID: id, pause: make(chan struct{}, 1), resume: make(chan struct{}, 1)}
}

func TestScheduleEmptyReadyQueueIsNoop(t *testing.T) {
	boot := newFakeThread(0)
	s := New(testLogger(), boot)

	s.Schedule()

	if got := s.Current(); got != boot {
		t.Errorf("Current() = %v, want boot thread unchanged", got)
	}
}

func TestScheduleRotatesReadyQueueFairly(t *testing.T) {
	boot := newFakeThread(0)
	s := New(testLogger(), boot)

	var threads []*Thread
	for i := uint32(1); i <= 3; i++ {
		th := newFakeThread(i)
		threads = append(threads, th)
		s.ThreadIsReady(th)
	}
	all := append([]*Thread{boot}, threads...)

	const k = 4
	runs := make(map[uint32]int)
	for i := 0; i < k*len(all); i++ {
		s.Schedule()
		runs[s.Current().ID]++
	}

	for _, th := range all {
		if runs[th.ID] < k {
			t.Errorf("thread %d ran %d times over %d ticks, want at least %d", th.ID, runs[th.ID], k*len(all), k)
		}
	}
}

func TestScheduleAppendsOutgoingToReadyTail(t *testing.T) {
	boot := newFakeThread(0)
	s := New(testLogger(), boot)
	t1 := newFakeThread(1)
	s.ThreadIsReady(t1)

	s.Schedule()
	if s.Current() != t1 {
		t.Fatalf("Current() = %v, want thread 1", s.Current())
	}
	if s.ReadyLen() != 1 {
		t.Fatalf("ReadyLen() = %d, want 1 (boot thread requeued)", s.ReadyLen())
	}

	s.Schedule()
	if s.Current() != boot {
		t.Fatalf("Current() = %v, want boot thread again", s.Current())
	}
}

func TestThreadNotReadyRemovesFromQueue(t *testing.T) {
	boot := newFakeThread(0)
	s := New(testLogger(), boot)
	t1 := newFakeThread(1)
	t2 := newFakeThread(2)
	s.ThreadIsReady(t1)
	s.ThreadIsReady(t2)

	s.ThreadNotReady(t1)
	if s.ReadyLen() != 1 {
		t.Fatalf("ReadyLen() = %d, want 1 after removing thread 1", s.ReadyLen())
	}

	s.Schedule()
	if s.Current() != t2 {
		t.Errorf("Current() = %v, want thread 2 (thread 1 was removed)", s.Current())
	}
}

func TestThreadNotReadyOnAbsentThreadIsNoop(t *testing.T) {
	boot := newFakeThread(0)
	s := New(testLogger(), boot)
	s.ThreadNotReady(newFakeThread(99))
	if s.ReadyLen() != 0 {
		t.Errorf("ReadyLen() = %d, want 0", s.ReadyLen())
	}
}

func TestNewThreadPushesStackLayout(t *testing.T) {
	boot := newFakeThread(0)
	s := New(testLogger(), boot)
	mem := physmem.New(0x2000)

	const stackTop = 0x1000
	ran := make(chan uint32, 1)
	s.NewThread(mem, func(arg uint32) uint32 {
		ran <- arg
		return arg * 2
	}, 42, stackTop)

	if mem.Read32(stackTop-4) != 42 {
		t.Errorf("pushed arg = %#x, want 42", mem.Read32(stackTop-4))
	}
	if mem.Read32(stackTop-8) != threadExitSentinel {
		t.Errorf("pushed exit-routine address = %#x, want %#x", mem.Read32(stackTop-8), threadExitSentinel)
	}
	if mem.Read32(stackTop-12) != fnEntrySentinel {
		t.Errorf("pushed fn address = %#x, want %#x", mem.Read32(stackTop-12), fnEntrySentinel)
	}

	s.Schedule() // hand the turnstile to the new thread.
	select {
	case got := <-ran:
		if got != 42 {
			t.Errorf("fn ran with arg %d, want 42", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("spawned thread never ran")
	}
}

func TestThreadExitRetiresAndFreesSlot(t *testing.T) {
	boot := newFakeThread(0)
	s := New(testLogger(), boot)
	mem := physmem.New(0x2000)

	ran := make(chan struct{})
	th := s.NewThread(mem, func(arg uint32) uint32 {
		close(ran)
		return arg
	}, 7, 0x1000)

	s.Schedule()
	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("thread never ran")
	}

	// Give the goroutine a chance to reach retire() after fn returns.
	deadline := time.After(2 * time.Second)
	for {
		if th.State() == Terminated {
			break
		}
		select {
		case <-deadline:
			t.Fatal("thread never transitioned to Terminated")
		case <-time.After(time.Millisecond):
		}
	}

	if s.ReadyLen() != 0 {
		t.Errorf("ReadyLen() = %d, want 0 (terminated thread must not occupy a ready slot)", s.ReadyLen())
	}
	if s.Current() != boot {
		t.Errorf("Current() = %v, want boot thread resumed after the only other thread exited", s.Current())
	}
}
