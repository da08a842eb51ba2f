// Package frame implements the physical frame bitset allocator, a
// bit-per-4-KiB-frame vector where a set bit means "allocated." The
// free scan skips fully-set words before probing individual bits.
package frame

import "github.com/ashutoshR112/protokernel/internal/kpanic"

const (
	frameSize     = 0x1000
	bitsPerWord   = 32
)

// PageEntry is the part of a virtual page table entry Alloc and Free
// touch: presence, permissions, and the backing frame index.
// internal/paging builds its tables out of these so the two packages
// can share the entry without a circular import.
type PageEntry struct {
	Present bool
	RW      bool
	User    bool
	Frame   uint32 // Alloc and Free read 0 as "no frame", although frame index 0 can itself be handed out
}

// Bitset is the kernel's physical frame allocator.
type Bitset struct {
	bits    []uint32
	nframes uint32
}

// New builds a Bitset able to track memEnd bytes of physical memory,
// i.e. memEnd/4096 frames, with every frame initially free.
func New(memEnd uint32) *Bitset {
	nframes := memEnd / frameSize
	nwords := (nframes + bitsPerWord - 1) / bitsPerWord
	return &Bitset{bits: make([]uint32, nwords), nframes: nframes}
}

// NFrames reports the total number of frames tracked.
func (b *Bitset) NFrames() uint32 { return b.nframes }

func (b *Bitset) set(idx uint32) {
	b.bits[idx/bitsPerWord] |= 1 << (idx % bitsPerWord)
}

func (b *Bitset) clear(idx uint32) {
	b.bits[idx/bitsPerWord] &^= 1 << (idx % bitsPerWord)
}

// Test reports whether frame idx is currently allocated.
func (b *Bitset) Test(idx uint32) bool {
	return b.bits[idx/bitsPerWord]&(1<<(idx%bitsPerWord)) != 0
}

// firstFree scans word by word, skipping fully-set words, for the first
// clear bit. Returns the frame index, or false if none remain.
func (b *Bitset) firstFree() (uint32, bool) {
	for i, word := range b.bits {
		if word == 0xFFFFFFFF {
			continue
		}
		for j := uint32(0); j < bitsPerWord; j++ {
			if word&(1<<j) == 0 {
				idx := uint32(i)*bitsPerWord + j
				if idx >= b.nframes {
					return 0, false
				}
				return idx, true
			}
		}
	}
	return 0, false
}

// Alloc backs p with a free frame; a page that already has one is left
// untouched. kernelFlag and writableFlag feed the assignments below
// verbatim — including the inversion of kernelFlag into the User bit,
// an accepted quirk callers must already account for: callers that
// identity-map kernel memory pass kernelFlag=false, which this produces
// as User=true.
func (b *Bitset) Alloc(p *PageEntry, kernelFlag, writableFlag bool) {
	if p.Frame != 0 {
		return
	}

	idx, ok := b.firstFree()
	if !ok {
		kpanic.Panic("No free frame.")
	}

	b.set(idx)
	p.Present = true
	p.Frame = idx
	p.RW = writableFlag
	p.User = !kernelFlag
}

// Free releases the frame backing p, if any. No other field of p is
// altered.
func (b *Bitset) Free(p *PageEntry) {
	if p.Frame == 0 {
		return
	}
	b.clear(p.Frame)
	p.Frame = 0
}
