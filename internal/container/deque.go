package container

import (
	"fmt"

	"github.com/antocuni/cffi-shm/internal/heap"
)

// Deque is a Resizable list whose item buffer is treated as a ring:
// logical index i maps to physical (offset+i) mod cap. Growth
// linearises the ring into the new buffer before resetting offset to 0.
type Deque struct {
	list *List
	// zeroOnPop, when true, clears a popped slot to NUL before
	// advancing offset — required when the item stride stores a heap
	// pointer, to avoid the conservative collector treating a stale
	// slot as still reachable.
	zeroOnPop bool
}

// NewDeque allocates a fresh, empty deque.
func NewDeque(l *List, zeroOnPop bool) (*Deque, error) {
	if l.kind != Resizable {
		return nil, fmt.Errorf("%w: deque requires a resizable backing list", ErrNotResizable)
	}

	return &Deque{list: l, zeroOnPop: zeroOnPop}, nil
}

// Len returns the number of elements currently in the deque.
func (d *Deque) Len() int { return d.list.Len() }

// Offset returns the deque's backing list header offset.
func (d *Deque) Offset() uint64 { return d.list.Offset() }

// DequeFromOffset wraps an existing deque given its header offset and
// the item stride the registry recorded for its element type.
func DequeFromOffset(h *heap.Heap, headerOff uint64, itemStride uint64, zeroOnPop bool) *Deque {
	return &Deque{list: FromOffset(h, headerOff, itemStride, Resizable), zeroOnPop: zeroOnPop}
}

func (d *Deque) physical(i uint64) uint64 {
	cap := d.list.cap()

	return (d.list.offset() + i) % cap
}

// At returns a view of the element at logical index i.
func (d *Deque) At(i int) ([]byte, error) {
	if i < 0 || i >= d.list.Len() {
		return nil, fmt.Errorf("%w: index %d, length %d", ErrIndexOutOfRange, i, d.list.Len())
	}

	phys := d.physical(uint64(i)) //nolint:gosec
	off := d.list.items() + phys*d.list.itemStride

	return d.list.h.Bytes()[off : off+d.list.itemStride], nil
}

// Append adds data at the logical back of the deque.
func (d *Deque) Append(data []byte) error {
	if d.list.length() == d.list.cap() {
		if err := d.grow(); err != nil {
			return err
		}
	}

	phys := d.physical(d.list.length())
	off := d.list.items() + phys*d.list.itemStride
	copy(d.list.h.Bytes()[off:off+d.list.itemStride], data)
	d.list.setLength(d.list.length() + 1)

	return nil
}

// PopLeft removes and returns the logically-oldest element. When
// zeroOnPop is set, the vacated slot is zeroed before offset advances,
// preventing the conservative collector from treating a stale pointer
// as a live reference.
func (d *Deque) PopLeft() ([]byte, error) {
	if d.list.Len() == 0 {
		return nil, ErrEmpty
	}

	phys := d.list.offset()
	off := d.list.items() + phys*d.list.itemStride

	out := make([]byte, d.list.itemStride)
	copy(out, d.list.h.Bytes()[off:off+d.list.itemStride])

	if d.zeroOnPop {
		zero(d.list.h.Bytes()[off : off+d.list.itemStride])
	}

	d.list.setOffset((phys + 1) % d.list.cap())
	d.list.setLength(d.list.length() - 1)

	return out, nil
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// grow doubles the deque's capacity, linearising the ring into the new
// buffer in logical order and resetting offset to 0.
func (d *Deque) grow() error {
	l := d.list

	newCap := l.cap() * 2
	if newCap == 0 {
		newCap = 1
	}

	newOff, err := l.h.AllocateArray(int(l.itemStride), int(newCap)) //nolint:gosec
	if err != nil {
		return fmt.Errorf("grow deque: %w", err)
	}

	n := l.length()

	for i := uint64(0); i < n; i++ {
		src := l.items() + d.physical(i)*l.itemStride
		dst := newOff + i*l.itemStride
		copy(l.h.Bytes()[dst:dst+l.itemStride], l.h.Bytes()[src:src+l.itemStride])
	}

	l.setItems(newOff)
	l.setCap(newCap)
	l.setOffset(0)

	return nil
}
