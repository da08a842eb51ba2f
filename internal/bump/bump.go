// Package bump implements the placement allocator used before the kernel
// heap exists. Every early boot allocation — the frame bitset, the page
// directory, the page tables, the heap record — comes from here, handed out
// as an ever-increasing address with no way to free: a monotonic cursor,
// optionally rounded up to a page boundary first.
package bump

const pageSize = 0x1000

// Allocator is a monotonic placement allocator starting at some base
// address, typically the end of the kernel image.
type Allocator struct {
	next uint32
}

// New returns an Allocator whose first allocation begins at base.
func New(base uint32) *Allocator {
	return &Allocator{next: base}
}

// Next reports the address the next allocation would start at, without
// consuming it.
func (a *Allocator) Next() uint32 {
	return a.next
}

// Alloc reserves size bytes and returns the starting address. If aligned
// is set and the cursor is not already on a page boundary, it is
// advanced to the next one first.
func (a *Allocator) Alloc(size uint32, aligned bool) uint32 {
	if aligned && a.next&(pageSize-1) != 0 {
		a.next = (a.next &^ (pageSize - 1)) + pageSize
	}
	addr := a.next
	a.next += size
	return addr
}
