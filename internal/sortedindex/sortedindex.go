// Package sortedindex implements the kernel's fixed-capacity sorted
// container of opaque handles. Insert places an element at the first
// position where the existing element does not precede it, shifting the
// tail up one slot; remove shifts the tail down. The container never
// grows past the capacity it was built with — that is a precondition
// callers must hold, because this is the data structure the heap relies
// on before it can allocate anything else.
package sortedindex

import "github.com/ashutoshR112/protokernel/internal/kpanic"

// Cmp compares two elements: negative if a sorts before b, zero if equal,
// positive if a sorts after b.
type Cmp[T any] func(a, b T) int

// Index is a sorted, fixed-capacity slice of T ordered by a Cmp.
type Index[T any] struct {
	buf []T
	cmp Cmp[T]
}

// New allocates a fresh backing slice able to hold max elements.
func New[T any](max int, cmp Cmp[T]) *Index[T] {
	return MakeInPlace(make([]T, 0, max), cmp)
}

// MakeInPlace builds an Index over caller-provided storage, exactly the
// way the heap places its index at the base of its own arena instead of
// allocating a separate buffer for it. buf's capacity is the index's
// maxsize; its initial length must be 0.
func MakeInPlace[T any](buf []T, cmp Cmp[T]) *Index[T] {
	if cmp == nil {
		kpanic.Panic("sortedindex: no comparator")
	}
	return &Index[T]{buf: buf[:0], cmp: cmp}
}

// Len reports the current number of elements.
func (idx *Index[T]) Len() int { return len(idx.buf) }

// Cap reports the maximum number of elements the index can hold.
func (idx *Index[T]) Cap() int { return cap(idx.buf) }

// At returns the element at position i.
func (idx *Index[T]) At(i int) T {
	if i < 0 || i >= len(idx.buf) {
		kpanic.Panic("sortedindex: index %d out of range [0,%d)", i, len(idx.buf))
	}
	return idx.buf[i]
}

// Insert places e at the first position where cmp(existing, e) >= 0,
// shifting subsequent elements up one slot. Fatal if the index is full.
func (idx *Index[T]) Insert(e T) int {
	if len(idx.buf) == cap(idx.buf) {
		kpanic.Panic("sortedindex: insert at capacity %d", cap(idx.buf))
	}

	pos := len(idx.buf)
	for i, existing := range idx.buf {
		if idx.cmp(existing, e) >= 0 {
			pos = i
			break
		}
	}

	idx.buf = append(idx.buf, e)
	copy(idx.buf[pos+1:], idx.buf[pos:])
	idx.buf[pos] = e
	return pos
}

// Remove deletes the element at position i, shifting the tail down.
func (idx *Index[T]) Remove(i int) {
	if i < 0 || i >= len(idx.buf) {
		kpanic.Panic("sortedindex: remove index %d out of range [0,%d)", i, len(idx.buf))
	}
	copy(idx.buf[i:], idx.buf[i+1:])
	idx.buf = idx.buf[:len(idx.buf)-1]
}

// IndexOf returns the position of the first element for which
// equal(existing, e) holds, or -1. Used by the heap when it must remove a specific block rather
// than the smallest-fitting one (coalescing a right-hand neighbour).
func (idx *Index[T]) IndexOf(e T, equal func(a, b T) bool) int {
	for i, existing := range idx.buf {
		if equal(existing, e) {
			return i
		}
	}
	return -1
}
