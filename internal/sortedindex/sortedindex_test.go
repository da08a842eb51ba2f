package sortedindex

import "testing"

func intCmp(a, b int) int { return a - b }

func TestInsertKeepsOrder(t *testing.T) {
	idx := New[int](8, intCmp)
	for _, v := range []int{5, 1, 4, 2, 3} {
		idx.Insert(v)
	}

	want := []int{1, 2, 3, 4, 5}
	if idx.Len() != len(want) {
		t.Fatalf("Len() = %d, want %d", idx.Len(), len(want))
	}
	for i, w := range want {
		if got := idx.At(i); got != w {
			t.Errorf("At(%d) = %d, want %d", i, got, w)
		}
	}
}

func TestInsertOfEqualKeyLandsBeforeExisting(t *testing.T) {
	idx := New[int](4, intCmp)
	idx.Insert(2)
	pos := idx.Insert(2)
	if pos != 0 {
		t.Errorf("Insert of equal key landed at %d, want 0 (first position where existing does not precede)", pos)
	}
}

func TestRemoveShiftsDown(t *testing.T) {
	idx := New[int](8, intCmp)
	for _, v := range []int{1, 2, 3, 4} {
		idx.Insert(v)
	}
	idx.Remove(1) // remove the 2

	want := []int{1, 3, 4}
	if idx.Len() != len(want) {
		t.Fatalf("Len() = %d, want %d", idx.Len(), len(want))
	}
	for i, w := range want {
		if got := idx.At(i); got != w {
			t.Errorf("At(%d) = %d, want %d", i, got, w)
		}
	}
}

func TestInsertAtCapacityPanics(t *testing.T) {
	idx := New[int](2, intCmp)
	idx.Insert(1)
	idx.Insert(2)

	defer func() {
		if recover() == nil {
			t.Fatal("Insert at capacity did not panic")
		}
	}()
	idx.Insert(3)
}

func TestAtOutOfRangePanics(t *testing.T) {
	idx := New[int](2, intCmp)
	idx.Insert(1)

	defer func() {
		if recover() == nil {
			t.Fatal("At out of range did not panic")
		}
	}()
	idx.At(5)
}

func TestIndexOf(t *testing.T) {
	idx := New[int](4, intCmp)
	idx.Insert(10)
	idx.Insert(20)
	idx.Insert(30)

	eq := func(a, b int) bool { return a == b }
	if pos := idx.IndexOf(20, eq); pos != 1 {
		t.Errorf("IndexOf(20) = %d, want 1", pos)
	}
	if pos := idx.IndexOf(99, eq); pos != -1 {
		t.Errorf("IndexOf(99) = %d, want -1", pos)
	}
}

func TestMakeInPlaceRejectsNilCmp(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("MakeInPlace with nil cmp did not panic")
		}
	}()
	MakeInPlace(make([]int, 0, 4), nil)
}
