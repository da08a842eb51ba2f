package timer

import (
	"testing"
	"time"

	"github.com/ashutoshR112/protokernel/internal/ioport"
)

func TestConfigureSendsCommandAndDivisor(t *testing.T) {
	bus := ioport.New()
	var cmdBytes, dataBytes []byte
	bus.RegisterPort(pitCommandPort, func(v byte) { cmdBytes = append(cmdBytes, v) }, nil)
	bus.RegisterPort(pitChannel0Port, func(v byte) { dataBytes = append(dataBytes, v) }, nil)

	Configure(bus, 100)

	if len(cmdBytes) != 1 || cmdBytes[0] != 0x36 {
		t.Errorf("command bytes = %v, want [0x36]", cmdBytes)
	}
	wantDivisor := uint32(pitBaseFrequency / 100)
	if len(dataBytes) != 2 {
		t.Fatalf("data bytes = %v, want 2 bytes", dataBytes)
	}
	got := uint32(dataBytes[0]) | uint32(dataBytes[1])<<8
	if got != wantDivisor {
		t.Errorf("divisor = %d, want %d", got, wantDivisor)
	}
}

func TestTimerFiresWhileRunning(t *testing.T) {
	ticks := make(chan struct{}, 100)
	tm := New(1000, func() { ticks <- struct{}{} })
	defer tm.Shutdown()

	tm.Start()
	select {
	case <-ticks:
	case <-time.After(2 * time.Second):
		t.Fatal("timer did not fire within 2s at 1000Hz")
	}
}

func TestTimerDoesNotFireBeforeStart(t *testing.T) {
	ticks := make(chan struct{}, 100)
	tm := New(1000, func() { ticks <- struct{}{} })
	defer tm.Shutdown()

	select {
	case <-ticks:
		t.Fatal("timer fired before Start was called")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestTimerStopsDelivery(t *testing.T) {
	ticks := make(chan struct{}, 100)
	tm := New(1000, func() { ticks <- struct{}{} })
	defer tm.Shutdown()

	tm.Start()
	<-time.After(20 * time.Millisecond)
	tm.Stop()

	// Drain whatever already fired.
	drain := true
	for drain {
		select {
		case <-ticks:
		default:
			drain = false
		}
	}

	select {
	case <-ticks:
		t.Fatal("timer fired after Stop")
	case <-time.After(50 * time.Millisecond):
	}
}
