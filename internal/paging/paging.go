// Package paging implements the two-level x86 page table walk: page
// directories and tables, a find-or-create page lookup, and the
// page-fault handler. There is no MMU under the simulator, so the
// registered fault handler reads the faulting address and access bits
// out of the trapped frame rather than a CR2 read.
package paging

import (
	"fmt"

	"github.com/ashutoshR112/protokernel/internal/bump"
	"github.com/ashutoshR112/protokernel/internal/descriptor"
	"github.com/ashutoshR112/protokernel/internal/frame"
	"github.com/ashutoshR112/protokernel/internal/kpanic"
)

const entriesPerTable = 1024

// Table is one page table: 1024 page entries, each mapping one 4 KiB
// virtual page.
type Table struct {
	Pages [entriesPerTable]frame.PageEntry
}

// Directory is a page directory: 1024 page table slots plus the
// synthetic "physical address" entries a real CPU would load into cr3
// for each table. Callers pair each Directory with a page-aligned bump
// allocation so the placement accounting matches what the table would
// occupy on a real machine.
type Directory struct {
	Tables  [entriesPerTable]*Table
	TblPhys [entriesPerTable]uint32
}

// NewDirectory returns a zeroed page directory.
func NewDirectory() *Directory {
	return &Directory{}
}

// GetPage returns the page entry backing the given virtual address,
// creating the containing page table via alloc if it doesn't exist and
// create is true. Returns nil if the table is absent and create is
// false.
func (d *Directory) GetPage(address uint32, create bool, alloc *bump.Allocator) *frame.PageEntry {
	pageIdx := address / 0x1000
	tableIdx := pageIdx / entriesPerTable

	if d.Tables[tableIdx] == nil {
		if !create {
			return nil
		}
		phys := alloc.Alloc(uint32(entriesPerTable*4), true)
		d.Tables[tableIdx] = &Table{}
		d.TblPhys[tableIdx] = phys | 0x7 // present, rw, user
	}

	return &d.Tables[tableIdx].Pages[pageIdx%entriesPerTable]
}

// CPU tracks which directory is active, standing in for cr3/cr0. A real
// directory switch loads cr3 and sets the paging bit in cr0; with no
// silicon to execute against, it just records the active directory so
// Translate has something to walk.
type CPU struct {
	current *Directory
}

// NewCPU returns a CPU with no active directory.
func NewCPU() *CPU { return &CPU{} }

// SwitchPageDirectory makes dir the active directory.
func (c *CPU) SwitchPageDirectory(dir *Directory) {
	c.current = dir
}

// Current returns the active directory, or nil before the first switch.
func (c *CPU) Current() *Directory {
	return c.current
}

// Fault error-code bits, as the CPU pushes them on a page fault.
const (
	ErrPresent  = 0x1
	ErrWrite    = 0x2
	ErrUser     = 0x4
	ErrReserved = 0x8
	ErrFetch    = 0x10
)

// Translate resolves a virtual address to its backing page entry against
// the CPU's active directory, without creating missing page tables. It
// reports ok=false if no table covers the address or its page entry is
// not present, the condition that triggers a page fault on real
// hardware.
func (c *CPU) Translate(address uint32) (*frame.PageEntry, bool) {
	if c.current == nil {
		return nil, false
	}
	p := c.current.GetPage(address, false, nil)
	if p == nil || !p.Present {
		return nil, false
	}
	return p, true
}

// FaultHandler builds the registered vector-14 handler: it decodes the
// error code and logs "Page fault (rw=N, us=N) at ADDR" before halting
// fatally. There is no recoverable page fault in this kernel (no demand
// paging, no swap).
func FaultHandler(logf func(string, ...any)) descriptor.Handler {
	return func(f *descriptor.Frame) {
		rw := 0
		if f.ErrCode&ErrWrite != 0 {
			rw = 1
		}
		us := 0
		if f.ErrCode&ErrUser != 0 {
			us = 1
		}

		msg := fmt.Sprintf("Page fault (rw=%d, us=%d) at %#x", rw, us, f.FaultAddr)
		if logf != nil {
			logf("%s", msg)
		}
		kpanic.Panic("Page fault")
	}
}
