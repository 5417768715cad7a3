package shm

import (
	"fmt"

	"github.com/antocuni/cffi-shm/internal/container"
	"github.com/antocuni/cffi-shm/internal/fieldspec"
	"github.com/antocuni/cffi-shm/internal/heap"
)

// DictKeyKind selects the key discipline a dict hashes/compares with.
type DictKeyKind = container.KeyKind

const (
	KeyString          = container.KeyString
	KeyStructByValue   = container.KeyStructByValue
	KeyStructByPointer = container.KeyStructByPointer
	KeyPrimitive       = container.KeyPrimitive
)

// Dict is a handle to a heap-resident string/struct/primitive-keyed
// map to a pointer-width value.
type Dict struct {
	inner *container.Dict
}

// NewDict allocates a fresh, empty dict. keyStructType is required (and
// must name an immutable struct registered via [DefineStruct]) for
// [KeyStructByValue]/[KeyStructByPointer] keys, and ignored otherwise.
// Writer only.
func NewDict(keyKind DictKeyKind, keyStructType string) (*Dict, error) {
	h, err := theHeap()
	if err != nil {
		return nil, err
	}

	spec, err := keySpecFor(keyKind, keyStructType)
	if err != nil {
		return nil, err
	}

	d, err := container.NewDict(h, keyKind, spec)
	if err != nil {
		return nil, err
	}

	return &Dict{inner: d}, nil
}

// keySpecFor resolves the field-spec a struct-keyed dict/set hashes and
// compares with, given the struct type keyStructType was registered
// under via [DefineStruct]. Ignored for non-struct key kinds.
func keySpecFor(keyKind DictKeyKind, keyStructType string) (*fieldspec.Spec, error) {
	if keyKind != KeyStructByValue && keyKind != KeyStructByPointer {
		return nil, nil
	}

	sd, err := lookupStruct(keyStructType)
	if err != nil {
		return nil, err
	}

	spec := sd.inner.FieldSpec()
	if spec == nil {
		return nil, ErrNonHashableKey
	}

	return spec, nil
}

// RegisterDict registers cAlias as an opaque C alias for a Dict of the
// given key discipline, so a struct field can refer to the dict type
// (via a schema "container_ptr:" field, or [ContainerPtrField]) before
// any concrete dict with that key discipline has ever been allocated.
func RegisterDict(cAlias string, keyKind DictKeyKind, keyStructType string) error {
	spec, err := keySpecFor(keyKind, keyStructType)
	if err != nil {
		return err
	}

	registerContainer(cAlias, kindDict, containerEntry{
		wrap: func(h *heap.Heap, ptr uint64) any {
			return &Dict{inner: container.DictFromOffset(h, ptr, keyKind, spec)}
		},
		unwrap: func(host any) (uint64, error) {
			d, ok := host.(*Dict)
			if !ok {
				return 0, fmt.Errorf("%w: expected *Dict, got %T", ErrBadHostValue, host)
			}

			return d.AsRaw(), nil
		},
	})

	return nil
}

// AsRaw returns the dict's underlying table header offset.
func (d *Dict) AsRaw() uint64 { return d.inner.Offset() }

// Get returns the value stored for the key at keyPtr.
func (d *Dict) Get(keyPtr uint64) (uint64, bool) { return d.inner.Get(keyPtr) }

// Contains reports whether keyPtr is present.
func (d *Dict) Contains(keyPtr uint64) bool { return d.inner.Contains(keyPtr) }

// Set inserts or overwrites the value for the key at keyPtr.
func (d *Dict) Set(keyPtr uint64, value uint64) error { return d.inner.Set(keyPtr, value) }

// Delete removes the key at keyPtr, reporting whether it was present.
func (d *Dict) Delete(keyPtr uint64) bool { return d.inner.Delete(keyPtr) }

// Keys returns a snapshot array of every live key pointer.
func (d *Dict) Keys() []uint64 { return d.inner.Keys() }

// Len returns the number of entries.
func (d *Dict) Len() int { return d.inner.Len() }

// DefaultDict wraps a Dict with a zero-argument factory invoked on a
// missing-key read.
type DefaultDict struct {
	inner *container.DefaultDict
}

// NewDefaultDict wraps dict with factory, invoked on a missing-key Get.
func NewDefaultDict(dict *Dict, factory func() uint64) *DefaultDict {
	return &DefaultDict{inner: container.NewDefaultDict(dict.inner, factory)}
}

// Get returns the existing value for keyPtr, or invokes the factory,
// installs its result, and returns that.
func (d *DefaultDict) Get(keyPtr uint64) (uint64, error) { return d.inner.Get(keyPtr) }

// Contains reports whether keyPtr is present, without invoking the
// factory.
func (d *DefaultDict) Contains(keyPtr uint64) bool { return d.inner.Contains(keyPtr) }
