// Package timer simulates the 8253/8254 Programmable Interval Timer:
// programming its divisor over the I/O bus and firing IRQ0 at the
// configured frequency. A background goroutine built on time.Ticker
// stands in for the hardware oscillator, enabled and disabled over a
// buffered channel and torn down over a done channel.
package timer

import (
	"sync"
	"time"

	"github.com/ashutoshR112/protokernel/internal/ioport"
)

const (
	pitBaseFrequency = 1193180
	pitCommandPort   = 0x43
	pitChannel0Port  = 0x40
	pitCommandByte   = 0x36
)

// Configure programs the PIT to interrupt at freq Hz: command byte 0x36
// to port 0x43, then the divisor's low and high bytes to port 0x40.
func Configure(bus *ioport.Bus, freq uint32) {
	divisor := pitBaseFrequency / freq

	bus.Outb(pitCommandPort, pitCommandByte)
	bus.Outb(pitChannel0Port, byte(divisor&0xFF))
	bus.Outb(pitChannel0Port, byte((divisor>>8)&0xFF))
}

// Timer drives a ticker goroutine that invokes onTick (normally a
// function raising IRQ0 through the descriptor table) at the configured
// interval while running.
type Timer struct {
	wg      sync.WaitGroup
	running bool
	enable  chan bool
	done    chan struct{}
	ticker  *time.Ticker

	interval time.Duration
	onTick   func()
}

// New starts the timer's goroutine. It does not begin ticking until
// Start is called.
func New(freq uint32, onTick func()) *Timer {
	t := &Timer{
		enable:   make(chan bool, 1),
		done:     make(chan struct{}),
		interval: time.Second / time.Duration(freq),
		onTick:   onTick,
	}
	t.wg.Add(1)
	go t.run()
	return t
}

// Start enables tick delivery.
func (t *Timer) Start() {
	t.enable <- true
}

// Stop disables tick delivery without tearing down the goroutine.
func (t *Timer) Stop() {
	t.enable <- false
}

// Shutdown stops the timer's goroutine, waiting briefly for it to exit.
func (t *Timer) Shutdown() {
	close(t.done)
	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
	}
}

func (t *Timer) run() {
	defer t.wg.Done()
	t.ticker = time.NewTicker(t.interval)
	defer t.ticker.Stop()

	for {
		select {
		case <-t.ticker.C:
			if t.running && t.onTick != nil {
				t.onTick()
			}
		case t.running = <-t.enable:
			if t.running {
				t.ticker.Reset(t.interval)
			}
		case <-t.done:
			return
		}
	}
}
