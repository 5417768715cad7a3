package container

import (
	"fmt"

	"github.com/antocuni/cffi-shm/internal/fieldspec"
	"github.com/antocuni/cffi-shm/internal/heap"
	"github.com/antocuni/cffi-shm/internal/htable"
)

// KeyKind selects the key discipline a Dict hashes and compares with,
// one per key type.
type KeyKind int

const (
	// KeyString keys are NUL-terminated strings, copied into the table.
	KeyString KeyKind = iota
	// KeyStructByValue keys are immutable structs stored inline; the
	// key pointer is the struct's own address, compared deeply via its
	// field-spec, and never copied (the struct already lives in the
	// heap).
	KeyStructByValue
	// KeyStructByPointer keys are pointers to an immutable struct;
	// compared deeply via the pointee's field-spec.
	KeyStructByPointer
	// KeyPrimitive keys are primitive values stored as-if they were a
	// pointer (e.g. an integer widened to pointer width), compared by
	// identity.
	KeyPrimitive
)

// Dict is a handle to a heap-resident hashtable plus the key discipline
// it was constructed with.
type Dict struct {
	table   *htable.Table
	keyKind KeyKind
}

// NewDict allocates a fresh, empty dict. spec is required for
// KeyStructByValue/KeyStructByPointer keys and ignored otherwise.
func NewDict(h *heap.Heap, keyKind KeyKind, spec *fieldspec.Spec) (*Dict, error) {
	if (keyKind == KeyStructByValue || keyKind == KeyStructByPointer) && spec == nil {
		return nil, fmt.Errorf("%w: struct key requires a field-spec (is the struct declared immutable?)",
			ErrNonHashableKey)
	}

	strategy := htable.DefaultStrategy()
	if keyKind == KeyStructByValue || keyKind == KeyStructByPointer {
		strategy = htable.FieldSpecStrategy(spec)
	}

	table, err := htable.New(h, strategy)
	if err != nil {
		return nil, fmt.Errorf("allocate dict: %w", err)
	}

	return &Dict{table: table, keyKind: keyKind}, nil
}

// DictFromOffset wraps an existing dict given its table header offset.
func DictFromOffset(h *heap.Heap, headerOff uint64, keyKind KeyKind, spec *fieldspec.Spec) *Dict {
	strategy := htable.DefaultStrategy()
	if keyKind == KeyStructByValue || keyKind == KeyStructByPointer {
		strategy = htable.FieldSpecStrategy(spec)
	}

	return &Dict{table: htable.FromOffset(h, headerOff, strategy), keyKind: keyKind}
}

// Offset returns the dict's underlying table header offset.
func (d *Dict) Offset() uint64 { return d.table.Offset() }

func (d *Dict) keySize() int64 {
	if d.keyKind == KeyString {
		return htable.SizeString
	}

	return htable.SizeBorrowed
}

func (d *Dict) nocopy() bool {
	return d.keyKind != KeyString
}

// Get returns the value stored for the key at keyPtr.
func (d *Dict) Get(keyPtr uint64) (value uint64, ok bool) {
	return d.table.Get(keyPtr, d.keySize())
}

// Contains reports whether keyPtr is present.
func (d *Dict) Contains(keyPtr uint64) bool {
	return d.table.Exists(keyPtr, d.keySize())
}

// Set inserts or overwrites the value for the key at keyPtr.
func (d *Dict) Set(keyPtr uint64, value uint64) error {
	if d.keyKind == KeyString && keyPtr == 0 {
		return fmt.Errorf("%w: NUL string pointer is not a valid dict key", ErrNonHashableKey)
	}

	return d.table.Put(keyPtr, d.keySize(), value, d.nocopy())
}

// Delete removes the key at keyPtr, reporting whether it was present.
func (d *Dict) Delete(keyPtr uint64) bool {
	return d.table.Delete(keyPtr, d.keySize())
}

// Keys returns a snapshot array of every live key pointer.
func (d *Dict) Keys() []uint64 { return d.table.Keys() }

// Len returns the number of entries.
func (d *Dict) Len() int { return int(d.table.Len()) } //nolint:gosec

// DefaultDict wraps a Dict with a zero-argument factory invoked on a
// missing-key read; the produced value is installed and returned, so a
// subsequent pure lookup on the same key sees it as present.
type DefaultDict struct {
	*Dict
	factory func() uint64
}

// NewDefaultDict wraps dict with factory.
func NewDefaultDict(dict *Dict, factory func() uint64) *DefaultDict {
	return &DefaultDict{Dict: dict, factory: factory}
}

// Get returns the existing value for keyPtr, or invokes the factory,
// installs its result, and returns that.
func (d *DefaultDict) Get(keyPtr uint64) (uint64, error) {
	if v, ok := d.Dict.Get(keyPtr); ok {
		return v, nil
	}

	v := d.factory()
	if err := d.Dict.Set(keyPtr, v); err != nil {
		return 0, err
	}

	return v, nil
}
