package bump

import "testing"

func TestAllocAdvancesCursor(t *testing.T) {
	a := New(0x1000)
	addr1 := a.Alloc(16, false)
	addr2 := a.Alloc(16, false)

	if addr1 != 0x1000 {
		t.Errorf("first alloc = %#x, want 0x1000", addr1)
	}
	if addr2 != 0x1010 {
		t.Errorf("second alloc = %#x, want 0x1010", addr2)
	}
	if got := a.Next(); got != 0x1020 {
		t.Errorf("Next() = %#x, want 0x1020", got)
	}
}

func TestAlignedAllocRoundsUp(t *testing.T) {
	a := New(0x1234)
	addr := a.Alloc(8, true)
	if addr != 0x2000 {
		t.Errorf("aligned alloc = %#x, want 0x2000", addr)
	}
}

func TestAlignedAllocNoOpWhenAlreadyAligned(t *testing.T) {
	a := New(0x2000)
	addr := a.Alloc(8, true)
	if addr != 0x2000 {
		t.Errorf("aligned alloc from already-aligned base = %#x, want 0x2000", addr)
	}
}
