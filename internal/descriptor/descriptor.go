// Package descriptor models the CPU's descriptor tables and the common
// interrupt dispatch path: the GDT, the IDT's 256-entry handler
// registry, the PIC remap sequence, and the dispatcher that exception
// and IRQ trampolines funnel into. Under the simulator there is no
// assembly entry stub; Dispatch plays the stub's role, taking an
// already-built register frame and routing it by vector.
package descriptor

import (
	"github.com/ashutoshR112/protokernel/internal/ioport"
	"github.com/ashutoshR112/protokernel/internal/kpanic"
)

// Segment selectors used throughout the kernel.
const (
	KernelCodeSelector = 0x08
	KernelDataSelector = 0x10
	UserCodeSelector   = 0x18 | 3
	UserDataSelector   = 0x20 | 3
)

// SegmentEntry is one GDT descriptor, held as unpacked base, limit,
// access and granularity fields; Bytes produces the packed 8-byte form
// a real segment unit would consume.
type SegmentEntry struct {
	Base   uint32
	Limit  uint32
	Access uint8
	Gran   uint8
}

// Bytes encodes the descriptor into the architectural 8-byte layout:
// limit low word, base low word, base mid byte, access byte, granularity
// nibble merged with limit bits 16-19, base high byte.
func (e SegmentEntry) Bytes() [8]byte {
	var b [8]byte
	b[0] = byte(e.Limit)
	b[1] = byte(e.Limit >> 8)
	b[2] = byte(e.Base)
	b[3] = byte(e.Base >> 8)
	b[4] = byte(e.Base >> 16)
	b[5] = e.Access
	b[6] = byte(e.Limit>>16)&0x0F | e.Gran&0xF0
	b[7] = byte(e.Base >> 24)
	return b
}

// GDT is the kernel's five-entry global descriptor table: null, kernel
// code, kernel data, user code, user data. All four non-null segments
// are flat 4 GiB overlays differing only in access byte.
type GDT [5]SegmentEntry

// NewGDT builds the standard five-entry table.
func NewGDT() *GDT {
	return &GDT{
		{Base: 0, Limit: 0, Access: 0, Gran: 0},
		{Base: 0, Limit: 0xFFFFF, Access: 0x9A, Gran: 0xCF},
		{Base: 0, Limit: 0xFFFFF, Access: 0x92, Gran: 0xCF},
		{Base: 0, Limit: 0xFFFFFFFF, Access: 0xFA, Gran: 0xCF},
		{Base: 0, Limit: 0xFFFFFFFF, Access: 0xF2, Gran: 0xCF},
	}
}

// GateEntry is one IDT gate: a handler entry address, the code-segment
// selector a trampoline switches to, and the flags byte encoding gate
// type and privilege.
type GateEntry struct {
	Base     uint32
	Selector uint16
	Flags    uint8
}

// Bytes encodes the gate into the architectural 8-byte layout: base low
// half, selector, a reserved zero byte, flags, base high half.
func (g GateEntry) Bytes() [8]byte {
	var b [8]byte
	b[0] = byte(g.Base)
	b[1] = byte(g.Base >> 8)
	b[2] = byte(g.Selector)
	b[3] = byte(g.Selector >> 8)
	b[5] = g.Flags
	b[6] = byte(g.Base >> 16)
	b[7] = byte(g.Base >> 24)
	return b
}

// NewIDTGates builds the 256-gate vector table: vectors 0-31 bound to
// the exception trampolines, 32-47 to the remapped IRQ trampolines, the
// rest zero. Every populated gate uses the kernel code selector and
// flags 0x8E (present, ring 0, 32-bit interrupt gate). The simulator has
// no code addresses for trampolines to live at, so each gate's Base
// carries its own vector number — Dispatch routes by IntNo either way.
func NewIDTGates() *[numVectors]GateEntry {
	var gates [numVectors]GateEntry
	for v := 0; v < 48; v++ {
		gates[v] = GateEntry{Base: uint32(v), Selector: KernelCodeSelector, Flags: 0x8E}
	}
	return &gates
}

// Frame is the register snapshot a trampoline would push before handing
// control to the common dispatcher, in push order: data segment, edi,
// esi, ebp, esp, ebx, edx, ecx, eax, int_no, err_code, eip, cs, eflags,
// useresp, ss.
type Frame struct {
	DS                           uint32
	EDI, ESI, EBP, ESP           uint32
	EBX, EDX, ECX, EAX           uint32
	IntNo, ErrCode               uint32
	EIP, CS, EFlags, UserESP, SS uint32

	// FaultAddr carries the CR2 value for vector 14. Real hardware has a
	// dedicated register for this; the simulator has no MMU to read it
	// from, so the page-fault path stashes it here instead.
	FaultAddr uint32
}

// Handler processes one interrupt given the register frame.
type Handler func(f *Frame)

const (
	numExceptions = 32
	numVectors    = 256

	picMasterCommand = 0x20
	picMasterData    = 0x21
	picSlaveCommand  = 0xA0
	picSlaveData     = 0xA1
	picEOI           = 0x20
)

// Table is the kernel's interrupt descriptor table: a GDT, a 256-entry
// handler registry, and the I/O bus used to program and EOI the PICs.
type Table struct {
	gdt      *GDT
	idt      *[numVectors]GateEntry
	handlers [numVectors]Handler
	bus      *ioport.Bus
}

// New builds a Table wired to bus. Construction alone does not touch the
// PIC; call RemapPIC during boot once the bus's ports answer.
func New(bus *ioport.Bus) *Table {
	return &Table{gdt: NewGDT(), idt: NewIDTGates(), bus: bus}
}

// GDT returns the table's segment descriptors.
func (t *Table) GDT() *GDT { return t.gdt }

// Gate returns vector n's IDT gate.
func (t *Table) Gate(n uint8) GateEntry { return t.idt[n] }

// RemapPIC reprograms the master/slave 8259 PICs so hardware IRQs 0-15
// land on vectors 32-47 instead of colliding with CPU exceptions 8-15:
// init words, vector offsets, cascade wiring, 8086 mode, then unmask
// all lines.
func (t *Table) RemapPIC() {
	t.bus.Outb(picMasterCommand, 0x11)
	t.bus.Outb(picSlaveCommand, 0x11)
	t.bus.Outb(picMasterData, 0x20)
	t.bus.Outb(picSlaveData, 0x28)
	t.bus.Outb(picMasterData, 0x04)
	t.bus.Outb(picSlaveData, 0x02)
	t.bus.Outb(picMasterData, 0x01)
	t.bus.Outb(picSlaveData, 0x01)
	t.bus.Outb(picMasterData, 0x00)
	t.bus.Outb(picSlaveData, 0x00)
}

// Register installs h as the handler for vector n, replacing whatever
// was there before.
func (t *Table) Register(n uint8, h Handler) {
	t.handlers[n] = h
}

// Dispatch is the common interrupt path every trampoline calls into.
// For exception vectors (0-31) an unregistered handler is fatal; for
// IRQ vectors (32-47 and above) it is not, but EOI is still issued
// before the handler runs, so a handler that never returns to this
// frame — a scheduler-initiated context switch — cannot leave a PIC
// acknowledgement pending.
func (t *Table) Dispatch(f *Frame) {
	if f.IntNo >= 32 {
		if f.IntNo >= 40 {
			t.bus.Outb(picSlaveCommand, picEOI)
		}
		t.bus.Outb(picMasterCommand, picEOI)
	}

	h := t.handlers[f.IntNo]
	if h == nil {
		if f.IntNo < numExceptions {
			kpanic.Panic("Unhandled interrupt: %d", f.IntNo)
		}
		return
	}
	h(f)
}
