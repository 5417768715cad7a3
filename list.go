package shm

import (
	"fmt"

	"github.com/antocuni/cffi-shm/internal/container"
	"github.com/antocuni/cffi-shm/internal/heap"
)

// ListKind selects a list's mutation discipline.
type ListKind = container.Kind

const (
	Immutable = container.Immutable
	FixedSize = container.FixedSize
	Resizable = container.Resizable
)

// List is a handle to a heap-resident list of fixed-stride elements.
type List struct {
	inner *container.List
}

// NewList allocates a fresh, empty list whose elements are itemStride
// bytes wide. Writer only.
func NewList(itemStride uint64, kind ListKind, capacity int) (*List, error) {
	h, err := theHeap()
	if err != nil {
		return nil, err
	}

	l, err := container.New(h, itemStride, kind, capacity)
	if err != nil {
		return nil, err
	}

	return &List{inner: l}, nil
}

// ListFromPointer wraps an existing list given its header offset.
func ListFromPointer(raw uint64, itemStride uint64, kind ListKind) (*List, error) {
	h, err := theHeap()
	if err != nil {
		return nil, err
	}

	return &List{inner: container.FromOffset(h, raw, itemStride, kind)}, nil
}

// AsRaw returns the list's header offset.
func (l *List) AsRaw() uint64 { return l.inner.Offset() }

// Len returns the current number of elements.
func (l *List) Len() int { return l.inner.Len() }

// Cap returns the current item-buffer capacity, in elements.
func (l *List) Cap() int { return l.inner.Cap() }

// At returns the itemStride raw bytes backing logical index i.
func (l *List) At(i int) ([]byte, error) { return l.inner.At(i) }

// SetAt overwrites the element at logical index i. FixedSize/Resizable
// only.
func (l *List) SetAt(i int, data []byte) error { return l.inner.SetAt(i, data) }

// Append adds data as a new final element. Resizable only.
func (l *List) Append(data []byte) error { return l.inner.Append(data) }

// RegisterList registers cAlias as an opaque C alias for a List of the
// given item stride and mutation kind, so a struct field can refer to
// the list type (via a schema "container_ptr:" field, or
// [ContainerPtrField]) before any concrete list with that layout has
// ever been allocated.
func RegisterList(cAlias string, itemStride uint64, kind ListKind) {
	registerContainer(cAlias, kindList, containerEntry{
		wrap: func(h *heap.Heap, ptr uint64) any {
			return &List{inner: container.FromOffset(h, ptr, itemStride, kind)}
		},
		unwrap: func(host any) (uint64, error) {
			l, ok := host.(*List)
			if !ok {
				return 0, fmt.Errorf("%w: expected *List, got %T", ErrBadHostValue, host)
			}

			return l.AsRaw(), nil
		},
	})
}
