// Package physmem simulates the kernel's flat physical address space: a
// fixed-size backing array with bounds-checked 8/32-bit accessors. An
// out-of-range access is the fatal condition a real machine would raise
// as an addressing exception.
package physmem

import "github.com/ashutoshR112/protokernel/internal/kpanic"

// RAM is the kernel's simulated physical memory.
type RAM struct {
	bytes []byte
}

// New allocates size bytes of zeroed physical memory.
func New(size uint32) *RAM {
	return &RAM{bytes: make([]byte, size)}
}

// Size reports the total number of bytes of physical memory.
func (r *RAM) Size() uint32 {
	return uint32(len(r.bytes))
}

// Contains reports whether addr is a valid physical address.
func (r *RAM) Contains(addr uint32) bool {
	return addr < uint32(len(r.bytes))
}

func (r *RAM) checkRange(addr uint32, n uint32) {
	if uint64(addr)+uint64(n) > uint64(len(r.bytes)) {
		kpanic.Panic("physmem: access [%#x,%#x) out of range (size %#x)", addr, uint64(addr)+uint64(n), len(r.bytes))
	}
}

// Read8 returns the byte at addr.
func (r *RAM) Read8(addr uint32) byte {
	r.checkRange(addr, 1)
	return r.bytes[addr]
}

// Write8 stores value at addr.
func (r *RAM) Write8(addr uint32, value byte) {
	r.checkRange(addr, 1)
	r.bytes[addr] = value
}

// Read32 returns the little-endian 32-bit word at addr.
func (r *RAM) Read32(addr uint32) uint32 {
	r.checkRange(addr, 4)
	b := r.bytes[addr : addr+4]
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

// Write32 stores value as a little-endian 32-bit word at addr.
func (r *RAM) Write32(addr uint32, value uint32) {
	r.checkRange(addr, 4)
	b := r.bytes[addr : addr+4]
	b[0] = byte(value)
	b[1] = byte(value >> 8)
	b[2] = byte(value >> 16)
	b[3] = byte(value >> 24)
}

// Zero clears n bytes starting at addr.
func (r *RAM) Zero(addr, n uint32) {
	r.checkRange(addr, n)
	clear(r.bytes[addr : addr+n])
}

// Slice returns the live backing bytes in [addr, addr+n). Callers that
// hold onto the result observe subsequent writes through this RAM.
func (r *RAM) Slice(addr, n uint32) []byte {
	r.checkRange(addr, n)
	return r.bytes[addr : addr+n]
}
