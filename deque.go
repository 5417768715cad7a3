package shm

import (
	"fmt"

	"github.com/antocuni/cffi-shm/internal/container"
	"github.com/antocuni/cffi-shm/internal/heap"
)

// Deque is a ring-buffered, appendable, pop-from-front sequence.
type Deque struct {
	inner *container.Deque
}

// NewDeque allocates a fresh, empty deque over elements itemStride
// bytes wide. zeroOnPop should be true when the element type is itself
// a heap pointer, so popped slots don't keep an object artificially
// reachable for the conservative collector. Writer only.
func NewDeque(itemStride uint64, capacity int, zeroOnPop bool) (*Deque, error) {
	h, err := theHeap()
	if err != nil {
		return nil, err
	}

	l, err := container.New(h, itemStride, container.Resizable, capacity)
	if err != nil {
		return nil, err
	}

	d, err := container.NewDeque(l, zeroOnPop)
	if err != nil {
		return nil, err
	}

	return &Deque{inner: d}, nil
}

// DequeFromPointer wraps an existing deque given its header offset.
func DequeFromPointer(raw uint64, itemStride uint64, zeroOnPop bool) (*Deque, error) {
	h, err := theHeap()
	if err != nil {
		return nil, err
	}

	return &Deque{inner: container.DequeFromOffset(h, raw, itemStride, zeroOnPop)}, nil
}

// AsRaw returns the deque's header offset.
func (d *Deque) AsRaw() uint64 { return d.inner.Offset() }

// Len returns the number of elements currently in the deque.
func (d *Deque) Len() int { return d.inner.Len() }

// At returns the raw bytes backing logical index i.
func (d *Deque) At(i int) ([]byte, error) { return d.inner.At(i) }

// Append adds data at the logical back of the deque.
func (d *Deque) Append(data []byte) error { return d.inner.Append(data) }

// PopLeft removes and returns the logically-oldest element.
func (d *Deque) PopLeft() ([]byte, error) { return d.inner.PopLeft() }

// RegisterDeque registers cAlias as an opaque C alias for a Deque of
// the given item stride, so a struct field can refer to the deque type
// (via a schema "container_ptr:" field, or [ContainerPtrField]) before
// any concrete deque with that layout has ever been allocated.
func RegisterDeque(cAlias string, itemStride uint64, zeroOnPop bool) {
	registerContainer(cAlias, kindDeque, containerEntry{
		wrap: func(h *heap.Heap, ptr uint64) any {
			return &Deque{inner: container.DequeFromOffset(h, ptr, itemStride, zeroOnPop)}
		},
		unwrap: func(host any) (uint64, error) {
			d, ok := host.(*Deque)
			if !ok {
				return 0, fmt.Errorf("%w: expected *Deque, got %T", ErrBadHostValue, host)
			}

			return d.AsRaw(), nil
		},
	})
}
