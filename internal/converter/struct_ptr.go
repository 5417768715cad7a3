package converter

import "github.com/antocuni/cffi-shm/internal/heap"

// StructPtr wraps a pointer field into a struct handle via Wrap, and
// unwraps a struct handle back into its heap address via Unwrap. A NUL
// pointer round-trips to/from a nil host value. Wrap/Unwrap are
// supplied by the type registry so this package never depends on the
// concrete struct-handle type.
type StructPtr struct {
	Wrap   func(h *heap.Heap, ptr uint64) any
	Unwrap func(host any) (ptr uint64, err error)
}

func (c StructPtr) ToHeap(_ *heap.Heap, host any) (uint64, error) {
	if host == nil {
		return 0, nil
	}

	return c.Unwrap(host)
}

func (c StructPtr) ToHost(h *heap.Heap, raw uint64) (any, error) {
	if raw == 0 {
		return nil, nil
	}

	return c.Wrap(h, raw), nil
}

// StructByVal wraps a pointer to an already-materialised struct. The
// field holds the struct's address, not the struct inline; unlike
// StructPtr there is no NUL/nil mapping, so the raw value is always
// wrapped and the host value is always unwrapped.
type StructByVal struct {
	Wrap   func(h *heap.Heap, ptr uint64) any
	Unwrap func(host any) (ptr uint64, err error)
}

func (c StructByVal) ToHeap(_ *heap.Heap, host any) (uint64, error) { return c.Unwrap(host) }

func (c StructByVal) ToHost(h *heap.Heap, raw uint64) (any, error) {
	return c.Wrap(h, raw), nil
}

// GenericTypePtr behaves like StructPtr but models a field declared
// through an opaque C type alias, so a struct field can refer to a
// container registered under that alias (see shm.ContainerPtrField).
type GenericTypePtr struct {
	Wrap   func(h *heap.Heap, ptr uint64) any
	Unwrap func(host any) (ptr uint64, err error)
}

func (c GenericTypePtr) ToHeap(_ *heap.Heap, host any) (uint64, error) {
	if host == nil {
		return 0, nil
	}

	return c.Unwrap(host)
}

func (c GenericTypePtr) ToHost(h *heap.Heap, raw uint64) (any, error) {
	if raw == 0 {
		return nil, nil
	}

	return c.Wrap(h, raw), nil
}
