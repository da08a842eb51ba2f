package heap

import (
	"testing"

	"github.com/ashutoshR112/protokernel/internal/bump"
	"github.com/ashutoshR112/protokernel/internal/frame"
	"github.com/ashutoshR112/protokernel/internal/paging"
)

const (
	testStart = 0xC0000000
	testEnd   = testStart + 0x100000
	testMax   = testStart + 0x400000
)

func newTestHeap() *Heap {
	dir := paging.NewDirectory()
	frames := frame.New(16 * 1024 * 1024)
	alloc := bump.New(0x200000)
	return New(testStart, testEnd, testMax, false, false, dir, frames, alloc)
}

func TestNewHeapStartsWithOneHole(t *testing.T) {
	h := newTestHeap()
	if h.index.Len() != 1 {
		t.Fatalf("index.Len() = %d, want 1", h.index.Len())
	}
	addr := h.index.At(0)
	if addr != testStart {
		t.Errorf("initial hole address = %#x, want %#x", addr, testStart)
	}
	magic, isHole, size := h.readHeader(addr)
	if magic != HdrMagic || !isHole || size != testEnd-testStart {
		t.Errorf("initial hole header = magic %#x isHole %v size %#x", magic, isHole, size)
	}
}

func TestAllocFreeRoundTrip(t *testing.T) {
	h := newTestHeap()

	p := h.Alloc(128, false)
	if p < h.addrStart || p >= h.addrEnd {
		t.Fatalf("Alloc returned out-of-range address %#x", p)
	}

	h.Free(p)

	// After freeing the only block, the heap should be back to a single
	// hole (left/right coalescing plus end-of-heap contraction).
	if h.index.Len() != 1 {
		t.Errorf("index.Len() after Free = %d, want 1", h.index.Len())
	}
}

func TestAllocDoesNotOverlap(t *testing.T) {
	h := newTestHeap()

	a := h.Alloc(64, false)
	b := h.Alloc(64, false)

	if a == b {
		t.Fatal("two allocations returned the same address")
	}
	_, _, sizeA := h.readHeader(a - headerSize)
	if b >= a && b < a+sizeA {
		t.Errorf("allocation b=%#x overlaps allocation a=%#x (size %#x)", b, a, sizeA)
	}
}

func TestAllocPageAligned(t *testing.T) {
	h := newTestHeap()
	p := h.Alloc(64, true)
	if p%pageSize != 0 {
		t.Errorf("page-aligned Alloc returned %#x, not page aligned", p)
	}
}

func TestFreeCorruptHeaderPanics(t *testing.T) {
	h := newTestHeap()
	p := h.Alloc(64, false)

	h.writeHeader(p-headerSize, 0xDEAD, false, 64)

	defer func() {
		if recover() == nil {
			t.Fatal("Free with corrupt header magic did not panic")
		}
	}()
	h.Free(p)
}

func TestFreeNilIsNoOp(t *testing.T) {
	h := newTestHeap()
	h.Free(0) // must not panic
}

func TestAllocGrowsHeapWhenExhausted(t *testing.T) {
	h := newTestHeap()
	initialEnd := h.addrEnd

	// Exhaust the initial hole with oversized allocations until the
	// heap must expand to satisfy one.
	for i := 0; i < 128; i++ {
		h.Alloc(16384, false)
		if h.addrEnd > initialEnd {
			return
		}
	}
	t.Fatal("heap never expanded past its initial end address")
}

func TestAllocBeyondMaxPanics(t *testing.T) {
	h := New(testStart, testStart+pageSize, testStart+pageSize, false, false,
		paging.NewDirectory(), frame.New(16*1024*1024), bump.New(0x200000))

	defer func() {
		if recover() == nil {
			t.Fatal("Alloc that would exceed addrMax did not panic")
		}
	}()
	h.Alloc(1<<20, false)
}
