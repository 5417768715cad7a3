package shm

import (
	"fmt"

	"github.com/antocuni/cffi-shm/internal/container"
	"github.com/antocuni/cffi-shm/internal/heap"
)

// Set is a Dict-backed collection of unique pointer-width members.
type Set struct {
	inner *container.Set
}

// NewSet allocates a fresh, empty set. keyKind/keyStructType follow the
// same rules as [NewDict]. Writer only.
func NewSet(keyKind DictKeyKind, keyStructType string) (*Set, error) {
	d, err := NewDict(keyKind, keyStructType)
	if err != nil {
		return nil, err
	}

	return &Set{inner: container.NewSet(d.inner)}, nil
}

// AsRaw returns the set's underlying table header offset.
func (s *Set) AsRaw() uint64 { return s.inner.Offset() }

// Add inserts ptr into the set.
func (s *Set) Add(ptr uint64) error { return s.inner.Add(ptr) }

// Contains reports whether ptr is a member.
func (s *Set) Contains(ptr uint64) bool { return s.inner.Contains(ptr) }

// Remove removes ptr, failing with [ErrKeyNotFound] if absent.
func (s *Set) Remove(ptr uint64) error { return s.inner.Remove(ptr) }

// Discard removes ptr if present; absence is not an error.
func (s *Set) Discard(ptr uint64) { s.inner.Discard(ptr) }

// Iter returns a snapshot array of every member.
func (s *Set) Iter() []uint64 { return s.inner.Iter() }

// Len returns the number of members.
func (s *Set) Len() int { return s.inner.Len() }

// RegisterSet registers cAlias as an opaque C alias for a Set of the
// given key discipline, so a struct field can refer to the set type
// (via a schema "container_ptr:" field, or [ContainerPtrField]) before
// any concrete set with that key discipline has ever been allocated.
func RegisterSet(cAlias string, keyKind DictKeyKind, keyStructType string) error {
	spec, err := keySpecFor(keyKind, keyStructType)
	if err != nil {
		return err
	}

	registerContainer(cAlias, kindSet, containerEntry{
		wrap: func(h *heap.Heap, ptr uint64) any {
			d := container.DictFromOffset(h, ptr, keyKind, spec)
			return &Set{inner: container.NewSet(d)}
		},
		unwrap: func(host any) (uint64, error) {
			s, ok := host.(*Set)
			if !ok {
				return 0, fmt.Errorf("%w: expected *Set, got %T", ErrBadHostValue, host)
			}

			return s.AsRaw(), nil
		},
	})

	return nil
}
