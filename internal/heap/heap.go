// Package heap implements the kernel's first-fit coalescing allocator:
// a sorted index of free holes, headers and footers carrying magic
// numbers for corruption detection, splitting on allocation and
// coalescing on free. Block metadata is read and written as explicit
// little-endian byte fields over a growable backing slice rather than a
// struct overlaid on a raw pointer. The sorted index of holes is an
// ordinary internal/sortedindex value — a heap hosted by a working Go
// runtime has no allocator-bootstrap problem forcing the index into the
// front of its own arena.
package heap

import (
	"github.com/ashutoshR112/protokernel/internal/bump"
	"github.com/ashutoshR112/protokernel/internal/frame"
	"github.com/ashutoshR112/protokernel/internal/kpanic"
	"github.com/ashutoshR112/protokernel/internal/paging"
	"github.com/ashutoshR112/protokernel/internal/sortedindex"
)

// Magic numbers and sizing constants.
const (
	HdrMagic    = 0x123890AB
	FtrMagic    = 0xBA098321
	MinSize     = 0x70000
	IndexCap    = 0x20000
	pageSize    = 0x1000
	headerSize  = 12 // magic(4) + isHole(1, padded to 4) + size(4)
	footerSize  = 8  // magic(4) + headerAddr(4)
)

// Heap is a first-fit allocator over a contiguous virtual range whose
// free holes are indexed in ascending size order, backed by on-demand
// physical frames.
type Heap struct {
	space []byte // space[0] is byte address addrStart
	index *sortedindex.Index[uint32]

	addrStart, addrEnd, addrMax uint32
	su, ro                      bool

	dir       *paging.Directory
	frames    *frame.Bitset
	allocator *bump.Allocator
}

// New builds a heap over [start, end) able to grow up to max, backed by
// frames drawn from frames and page tables created via alloc. start and
// end must be page-aligned. su/ro are passed through verbatim as the
// kernelFlag/writableFlag pair of every frame allocation expand makes,
// without reinterpreting them.
func New(start, end, max uint32, su, ro bool, dir *paging.Directory, frames *frame.Bitset, alloc *bump.Allocator) *Heap {
	if start%pageSize != 0 {
		kpanic.Panic("heap: start %#x is not page aligned", start)
	}
	if end%pageSize != 0 {
		kpanic.Panic("heap: end %#x is not page aligned", end)
	}

	h := &Heap{
		addrStart: start,
		addrEnd:   end,
		addrMax:   max,
		su:        su,
		ro:        ro,
		dir:       dir,
		frames:    frames,
		allocator: alloc,
		space:     make([]byte, end-start),
	}
	cmp := func(a, b uint32) int { return int(h.sizeOf(a)) - int(h.sizeOf(b)) }
	h.index = sortedindex.New[uint32](IndexCap, cmp)

	h.writeHeader(start, HdrMagic, true, end-start)
	h.index.Insert(start)

	return h
}

// Start, End, and Max report the heap's current virtual range.
func (h *Heap) Start() uint32 { return h.addrStart }
func (h *Heap) End() uint32   { return h.addrEnd }
func (h *Heap) Max() uint32   { return h.addrMax }

func (h *Heap) off(addr uint32) uint32 { return addr - h.addrStart }

func (h *Heap) sizeOf(addr uint32) uint32 {
	_, _, size := h.readHeader(addr)
	return size
}

func (h *Heap) readHeader(addr uint32) (magic uint32, isHole bool, size uint32) {
	o := h.off(addr)
	b := h.space[o : o+headerSize]
	magic = le32(b[0:4])
	isHole = b[4] != 0
	size = le32(b[8:12])
	return
}

func (h *Heap) writeHeader(addr uint32, magic uint32, isHole bool, size uint32) {
	o := h.off(addr)
	b := h.space[o : o+headerSize]
	putLe32(b[0:4], magic)
	if isHole {
		b[4] = 1
	} else {
		b[4] = 0
	}
	putLe32(b[8:12], size)
}

func (h *Heap) setHeaderSize(addr uint32, size uint32) {
	magic, isHole, _ := h.readHeader(addr)
	h.writeHeader(addr, magic, isHole, size)
}

func (h *Heap) setHeaderHole(addr uint32, isHole bool) {
	magic, _, size := h.readHeader(addr)
	h.writeHeader(addr, magic, isHole, size)
}

func (h *Heap) readFooter(addr uint32) (magic uint32, headerAddr uint32) {
	o := h.off(addr)
	b := h.space[o : o+footerSize]
	return le32(b[0:4]), le32(b[4:8])
}

func (h *Heap) writeFooter(addr uint32, magic uint32, headerAddr uint32) {
	o := h.off(addr)
	b := h.space[o : o+footerSize]
	putLe32(b[0:4], magic)
	putLe32(b[4:8], headerAddr)
}

func le32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

func putLe32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}

func (h *Heap) indexOf(addr uint32) int {
	return h.index.IndexOf(addr, func(a, b uint32) bool { return a == b })
}

// findSmallestHole returns the index-position of the smallest hole that
// fits size bytes (and, if pageAlign is set, whose usable region starts
// on a page boundary after its header), or ok=false.
func (h *Heap) findSmallestHole(size uint32, pageAlign bool) (pos int, ok bool) {
	for i := 0; i < h.index.Len(); i++ {
		addr := h.index.At(i)
		_, _, holeSize := h.readHeader(addr)

		if pageAlign {
			location := addr
			var offset uint32
			if (location+headerSize)&0xFFFFF000 != 0 {
				offset = pageSize - (location+headerSize)%pageSize
			}
			if int64(holeSize)-int64(offset) >= int64(size) {
				return i, true
			}
			continue
		}

		if holeSize >= size {
			return i, true
		}
	}
	return 0, false
}

// expand grows the heap so its length is at least newSize, rounded up
// past the next page boundary, allocating a physical frame for every
// new page. Fatal if the grown heap would pass the max address.
func (h *Heap) expand(newSize uint32) {
	if newSize&0xFFFFF000 != 0 {
		newSize = (newSize &^ 0xFFF) + pageSize
	}
	if h.addrStart+newSize > h.addrMax {
		kpanic.Panic("heap: expand would exceed max address %#x", h.addrMax)
	}

	oldSize := h.addrEnd - h.addrStart
	h.space = append(h.space, make([]byte, newSize-oldSize)...)

	for i := oldSize; i < newSize; i += pageSize {
		page := h.dir.GetPage(h.addrStart+i, true, h.allocator)
		h.frames.Alloc(page, h.su, h.ro)
	}

	h.addrEnd = h.addrStart + newSize
}

// contract shrinks the heap to newSize, rounded up to the next 4 KiB
// multiple and floored at MinSize, freeing the frame backing every page
// dropped.
func (h *Heap) contract(newSize uint32) uint32 {
	if newSize&0xFFF != 0 {
		newSize = (newSize + 0xFFF) &^ 0xFFF
	}
	if newSize < MinSize {
		newSize = MinSize
	}

	oldSize := h.addrEnd - h.addrStart
	for i := oldSize - pageSize; newSize <= i; i -= pageSize {
		if page := h.dir.GetPage(h.addrStart+i, false, nil); page != nil {
			h.frames.Free(page)
		}
	}

	h.addrEnd = h.addrStart + newSize
	h.space = h.space[:newSize]
	return newSize
}

// Alloc returns a pointer (a virtual address) to a newly allocated
// block of size bytes, page-aligned if pageAlign is set. If no hole
// fits, the heap is grown and the search retried; a chosen hole is then
// split, with a leading hole carved off for page alignment and a
// trailing hole for any remainder big enough to carry its own metadata.
func (h *Heap) Alloc(size uint32, pageAlign bool) uint32 {
	newSize := size + headerSize + footerSize

	pos, ok := h.findSmallestHole(newSize, pageAlign)
	if !ok {
		oldLength := h.addrEnd - h.addrStart
		oldEndAddress := h.addrEnd

		h.expand(oldLength + newSize)
		newLength := h.addrEnd - h.addrStart

		idx := -1
		var maxAddr uint32
		for i := 0; i < h.index.Len(); i++ {
			addr := h.index.At(i)
			if idx == -1 || addr > maxAddr {
				maxAddr, idx = addr, i
			}
		}

		if idx == -1 {
			header := oldEndAddress
			h.writeHeader(header, HdrMagic, true, newLength-oldLength)
			footer := header + (newLength - oldLength) - footerSize
			h.writeFooter(footer, FtrMagic, header)
			h.index.Insert(header)
		} else {
			header := maxAddr
			_, _, curSize := h.readHeader(header)
			h.setHeaderSize(header, curSize+(newLength-oldLength))
			_, _, grown := h.readHeader(header)
			footer := header + grown - footerSize
			h.writeFooter(footer, FtrMagic, header)
		}

		return h.Alloc(size, pageAlign)
	}

	origHolePos := h.index.At(pos)
	_, _, origHoleSize := h.readHeader(origHolePos)

	if origHoleSize-newSize < headerSize+footerSize {
		size += origHoleSize - newSize
		newSize = origHoleSize
	}

	if pageAlign && origHolePos&0xFFFFF000 != 0 {
		newLocation := origHolePos + pageSize - (origHolePos & 0xFFF) - headerSize
		leadingSize := pageSize - (origHolePos & 0xFFF) - headerSize
		h.writeHeader(origHolePos, HdrMagic, true, leadingSize)

		holeFooter := newLocation - footerSize
		h.writeFooter(holeFooter, FtrMagic, origHolePos)

		origHoleSize -= leadingSize
		origHolePos = newLocation
	} else {
		h.index.Remove(pos)
	}

	blockHeader := origHolePos
	h.writeHeader(blockHeader, HdrMagic, false, newSize)

	blockFooter := origHolePos + headerSize + size
	h.writeFooter(blockFooter, FtrMagic, blockHeader)

	if origHoleSize-newSize > 0 {
		holeHeader := origHolePos + headerSize + size + footerSize
		holeSize := origHoleSize - newSize
		h.writeHeader(holeHeader, HdrMagic, true, holeSize)

		holeFooterAddr := holeHeader + holeSize - footerSize
		if holeFooterAddr < h.addrEnd {
			h.writeFooter(holeFooterAddr, FtrMagic, holeHeader)
		}
		h.index.Insert(holeHeader)
	}

	return blockHeader + headerSize
}

// Free releases a block previously returned by Alloc, coalescing with
// free neighbours on either side and, if the freed space touches the
// end of the heap, contracting it.
func (h *Heap) Free(addr uint32) {
	if addr == 0 {
		return
	}

	header := addr - headerSize
	hmagic, _, size := h.readHeader(header)
	footer := header + size - footerSize
	fmagic, _ := h.readFooter(footer)

	if hmagic != HdrMagic {
		kpanic.Panic("heap: corrupt block header at %#x", header)
	}
	if fmagic != FtrMagic {
		kpanic.Panic("heap: corrupt block footer at %#x", footer)
	}

	h.setHeaderHole(header, true)
	doAdd := true

	if header >= h.addrStart+footerSize {
		testFooterAddr := header - footerSize
		tfMagic, tfHeaderAddr := h.readFooter(testFooterAddr)
		if tfMagic == FtrMagic {
			if _, isHole, _ := h.readHeader(tfHeaderAddr); isHole {
				_, _, curSize := h.readHeader(header)
				_, _, leftSize := h.readHeader(tfHeaderAddr)
				h.setHeaderSize(tfHeaderAddr, leftSize+curSize)
				header = tfHeaderAddr
				h.writeFooter(footer, FtrMagic, header)
				doAdd = false
			}
		}
	}

	testHeaderAddr := footer + footerSize
	if testHeaderAddr+headerSize <= h.addrEnd {
		thMagic, thIsHole, thSize := h.readHeader(testHeaderAddr)
		if thMagic == HdrMagic && thIsHole {
			_, _, curSize := h.readHeader(header)
			h.setHeaderSize(header, curSize+thSize)

			newFooter := testHeaderAddr + thSize - footerSize
			footer = newFooter
			h.writeFooter(footer, FtrMagic, header)

			if pos := h.indexOf(testHeaderAddr); pos != -1 {
				h.index.Remove(pos)
			}
		}
	}

	if footer+footerSize == h.addrEnd {
		oldLength := h.addrEnd - h.addrStart
		newLength := h.contract(header - h.addrStart)

		_, _, curSize := h.readHeader(header)
		shrinkBy := oldLength - newLength
		if curSize > shrinkBy {
			h.setHeaderSize(header, curSize-shrinkBy)
			footer = header + (curSize - shrinkBy) - footerSize
			h.writeFooter(footer, FtrMagic, header)
		} else {
			if pos := h.indexOf(header); pos != -1 {
				h.index.Remove(pos)
			}
			doAdd = false
		}
	}

	if doAdd {
		h.index.Insert(header)
	}
}
