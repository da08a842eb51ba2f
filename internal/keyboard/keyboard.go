// Package keyboard is a trivial IRQ1 handler for the PS/2 keyboard
// port: it drains scancodes from the controller's data port through a
// US layout table into a small ring buffer a reader can poll. It lives
// outside the kernel core; registering it exercises the handler
// registry the same way any dynamically installed vector does.
package keyboard

import "github.com/ashutoshR112/protokernel/internal/descriptor"

const dataPort = 0x60

// irq1Vector is where the keyboard's interrupt line lands once the PICs
// are remapped: vector 32 for IRQ0, plus one.
const irq1Vector = 32 + 1

// us maps set 1 make codes to ASCII for a US layout.
var us = [128]byte{
	0, 27, '1', '2', '3', '4', '5', '6', '7', '8', '9', '0', '-', '=', '\b',
	'\t', 'q', 'w', 'e', 'r', 't', 'y', 'u', 'i', 'o', 'p', '[', ']', '\n', 0,
	'a', 's', 'd', 'f', 'g', 'h', 'j', 'k', 'l', ';', '\'', '`', 0, '\\',
	'z', 'x', 'c', 'v', 'b', 'n', 'm', ',', '.', '/', 0, '*',
	0, ' ',
}

// Keyboard drains scancodes from the simulated data port into a small
// ring buffer, translating them through the US scancode table.
type Keyboard struct {
	bus ioportBus
	buf []byte
}

// ioportBus is the minimal surface Keyboard needs from *ioport.Bus,
// named locally so this package doesn't have to import ioport just to
// spell out the concrete type in its own field — callers pass the real
// *ioport.Bus, which satisfies this trivially.
type ioportBus interface {
	Inb(port uint16) byte
}

// New returns a Keyboard with an empty buffer.
func New() *Keyboard {
	return &Keyboard{}
}

// Register installs the keyboard's IRQ1 handler on dispatcher and
// wires it to read scancodes from bus. The PIC mask for IRQ1 is
// already cleared by descriptor.Table.RemapPIC's unmask-all step, so no
// separate unmask write is needed here.
func (k *Keyboard) Register(dispatcher *descriptor.Table, bus ioportBus) {
	k.bus = bus
	dispatcher.Register(irq1Vector, k.handle)
}

func (k *Keyboard) handle(_ *descriptor.Frame) {
	scancode := k.bus.Inb(dataPort)
	if scancode > 127 {
		return
	}
	if ch := us[scancode]; ch != 0 && len(k.buf) < 255 {
		k.buf = append(k.buf, ch)
	}
}

// ReadKey pops and returns the oldest buffered key, or (0, false) if the
// buffer is empty.
func (k *Keyboard) ReadKey() (byte, bool) {
	if len(k.buf) == 0 {
		return 0, false
	}
	ch := k.buf[0]
	k.buf = k.buf[1:]
	return ch, true
}

// Ready reports whether any key is buffered.
func (k *Keyboard) Ready() bool {
	return len(k.buf) > 0
}
