// Package container implements the typed container layer: list variants,
// a ring-buffered deque, dict, set, and a declarative struct wrapper,
// all as thin facades over the heap allocator and the hashtable
// primitive. Every container's pointers live entirely inside the heap;
// the Go types in this package are non-owning views constructed by
// wrapping an existing heap offset or by allocating a fresh one.
package container

import (
	"encoding/binary"
	"fmt"

	"github.com/antocuni/cffi-shm/internal/heap"
)

// Kind distinguishes the three list variants, which share the same
// on-heap layout and differ only in which mutations are legal.
type Kind int

const (
	// Immutable lists expose only read operations.
	Immutable Kind = iota
	// FixedSize lists additionally allow in-place element replacement.
	FixedSize
	// Resizable lists additionally allow Append, with amortised
	// capacity doubling.
	Resizable
)

// listHeaderSize is the byte size of the {size, length, offset,
// items_ptr} header, matching the host API's List ABI.
const listHeaderSize = 32

const (
	hdrSize    = 0  // capacity, in elements
	hdrLength  = 8  // current length, in elements
	hdrOffset  = 16 // ring-buffer start (0 for non-deque lists)
	hdrItems   = 24 // pointer to the item buffer
)

// List is a handle to a heap-resident list of fixed-stride elements.
// Elements are opaque byte ranges; converters above this package give
// them type.
type List struct {
	h          *heap.Heap
	headerOff  uint64
	itemStride uint64
	kind       Kind
}

// New allocates a fresh, empty list with the given item stride and
// initial capacity (in elements; rounded up to at least 1). Writer only.
func New(h *heap.Heap, itemStride uint64, kind Kind, capacity int) (*List, error) {
	if capacity < 1 {
		capacity = 1
	}

	headerOff, err := h.Allocate(listHeaderSize)
	if err != nil {
		return nil, fmt.Errorf("allocate list header: %w", err)
	}

	itemsOff, err := h.AllocateArray(int(itemStride), capacity) //nolint:gosec
	if err != nil {
		return nil, fmt.Errorf("allocate list items: %w", err)
	}

	l := &List{h: h, headerOff: headerOff, itemStride: itemStride, kind: kind}
	l.setCap(uint64(capacity)) //nolint:gosec
	l.setLength(0)
	l.setOffset(0)
	l.setItems(itemsOff)

	return l, nil
}

// FromOffset wraps an existing list given its header offset and the
// item stride/kind the registry recorded for its element type.
func FromOffset(h *heap.Heap, headerOff uint64, itemStride uint64, kind Kind) *List {
	return &List{h: h, headerOff: headerOff, itemStride: itemStride, kind: kind}
}

// Offset returns the list's header offset.
func (l *List) Offset() uint64 { return l.headerOff }

func (l *List) u64(off uint64) uint64 {
	return binary.LittleEndian.Uint64(l.h.Bytes()[off : off+8])
}

func (l *List) setU64(off uint64, v uint64) {
	binary.LittleEndian.PutUint64(l.h.Bytes()[off:off+8], v)
}

func (l *List) cap() uint64       { return l.u64(l.headerOff + hdrSize) }
func (l *List) setCap(v uint64)   { l.setU64(l.headerOff+hdrSize, v) }
func (l *List) length() uint64    { return l.u64(l.headerOff + hdrLength) }
func (l *List) setLength(v uint64) { l.setU64(l.headerOff+hdrLength, v) }
func (l *List) offset() uint64    { return l.u64(l.headerOff + hdrOffset) }
func (l *List) setOffset(v uint64) { l.setU64(l.headerOff+hdrOffset, v) }
func (l *List) items() uint64     { return l.u64(l.headerOff + hdrItems) }
func (l *List) setItems(v uint64) { l.setU64(l.headerOff+hdrItems, v) }

// Len returns the current number of elements.
func (l *List) Len() int { return int(l.length()) } //nolint:gosec

// Cap returns the current item-buffer capacity, in elements.
func (l *List) Cap() int { return int(l.cap()) } //nolint:gosec

func (l *List) physicalOffset(i uint64) uint64 {
	return l.items() + i*l.itemStride
}

// At returns a view of the itemStride bytes backing logical index i.
// The slice aliases heap memory directly; callers must copy before the
// next mutating call if they need a stable snapshot.
func (l *List) At(i int) ([]byte, error) {
	if i < 0 || uint64(i) >= l.length() { //nolint:gosec
		return nil, fmt.Errorf("%w: index %d, length %d", ErrIndexOutOfRange, i, l.length())
	}

	off := l.physicalOffset(uint64(i)) //nolint:gosec

	return l.h.Bytes()[off : off+l.itemStride], nil
}

// SetAt overwrites the element at logical index i. Legal for FixedSize
// and Resizable lists only.
func (l *List) SetAt(i int, data []byte) error {
	if l.kind == Immutable {
		return ErrImmutable
	}

	if i < 0 || uint64(i) >= l.length() { //nolint:gosec
		return fmt.Errorf("%w: index %d, length %d", ErrIndexOutOfRange, i, l.length())
	}

	off := l.physicalOffset(uint64(i)) //nolint:gosec
	copy(l.h.Bytes()[off:off+l.itemStride], data)

	return nil
}

// Append adds data as a new final element, growing the item buffer by
// doubling capacity when full. Resizable lists only.
func (l *List) Append(data []byte) error {
	if l.kind != Resizable {
		return ErrNotResizable
	}

	if l.length() == l.cap() {
		if err := l.grow(); err != nil {
			return err
		}
	}

	i := l.length()
	off := l.physicalOffset(i)
	copy(l.h.Bytes()[off:off+l.itemStride], data)
	l.setLength(i + 1)

	return nil
}

// grow doubles the item buffer's capacity, copying existing elements in
// logical order starting at physical offset 0 (plain lists have no ring
// wraparound; Deque overrides this to linearise first).
func (l *List) grow() error {
	newCap := l.cap() * 2
	if newCap == 0 {
		newCap = 1
	}

	newOff, err := l.h.AllocateArray(int(l.itemStride), int(newCap)) //nolint:gosec
	if err != nil {
		return fmt.Errorf("grow list: %w", err)
	}

	n := l.length()
	copy(l.h.Bytes()[newOff:newOff+n*l.itemStride], l.h.Bytes()[l.items():l.items()+n*l.itemStride])

	l.setItems(newOff)
	l.setCap(newCap)

	return nil
}
