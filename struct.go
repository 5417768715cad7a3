package shm

import (
	"github.com/antocuni/cffi-shm/internal/container"
	"github.com/antocuni/cffi-shm/internal/converter"
	"github.com/antocuni/cffi-shm/internal/fieldspec"
)

// FieldDef re-exports the container package's field descriptor so
// callers assembling a struct type never need to import internal
// packages directly.
type FieldDef = container.FieldDef

// StructDef describes a struct type: its size, fields, and whether it
// is immutable (and therefore hashable/comparable as a dict key).
type StructDef struct {
	inner *container.StructDef
}

// DefineStruct registers cName as a struct type with the given layout.
// Immutable structs additionally derive a field-spec from fields,
// enabling [Struct.Hash] / [Struct.Equal] and use as a dict key.
func DefineStruct(cName string, size uint64, fields []FieldDef, immutable bool) *StructDef {
	sd := &StructDef{inner: container.NewStructDef(size, fields, immutable)}
	registerStruct(cName, sd)

	return sd
}

// StructTypeOf looks up a struct type previously registered with
// [DefineStruct].
func StructTypeOf(cName string) (*StructDef, error) {
	return lookupStruct(cName)
}

// New allocates a fresh, zero-valued instance. Writer only.
func (sd *StructDef) New() (*Struct, error) {
	h, err := theHeap()
	if err != nil {
		return nil, err
	}

	inst, err := sd.inner.New(h)
	if err != nil {
		return nil, err
	}

	return &Struct{def: sd, inner: inst}, nil
}

// NewWithValues allocates a fresh instance and initializes every named
// field from values. Required for immutable structs, since their fields
// have no write accessor once constructed; mutable structs may use it
// as a convenience constructor too.
func (sd *StructDef) NewWithValues(values map[string]any) (*Struct, error) {
	h, err := theHeap()
	if err != nil {
		return nil, err
	}

	inst, err := sd.inner.NewWithValues(h, values)
	if err != nil {
		return nil, err
	}

	return &Struct{def: sd, inner: inst}, nil
}

// FromPointer wraps an existing instance given its heap address.
func (sd *StructDef) FromPointer(raw uint64) (*Struct, error) {
	h, err := theHeap()
	if err != nil {
		return nil, err
	}

	return &Struct{def: sd, inner: sd.inner.FromOffset(h, raw)}, nil
}

// Struct is a handle to one instance of a [StructDef].
type Struct struct {
	def   *StructDef
	inner *container.Struct
}

// AsRaw returns the instance's heap address.
func (s *Struct) AsRaw() uint64 { return s.inner.Offset() }

// Get reads field name through its converter.
func (s *Struct) Get(name string) (any, error) { return s.inner.Get(name) }

// Set writes value to field name. Fails with [ErrImmutable] on an
// immutable struct.
func (s *Struct) Set(name string, value any) error { return s.inner.Set(name, value) }

// Hash returns the struct's deep hash. Immutable structs only.
func (s *Struct) Hash() (uint64, error) { return s.inner.Hash() }

// Equal reports whether s and other are deeply equal. Immutable structs
// only.
func (s *Struct) Equal(other *Struct) (bool, error) { return s.inner.Equal(other.inner) }

// ContainerPtrField builds a FieldDef for a struct field that refers to
// a List, Deque, Dict, or Set registered under cAlias via
// [RegisterList], [RegisterDeque], [RegisterDict], or [RegisterSet] —
// the hand-built equivalent of a schema "container_ptr:" field, for a
// caller assembling a []FieldDef directly instead of through a sidecar
// schema. A NUL pointer round-trips to/from a nil host value, the same
// as schema "struct_ptr:" fields. The referenced container need not exist yet;
// only its registration does, which is what lets struct types nest a
// container before that container is ever allocated.
func ContainerPtrField(name string, offset uint64, cAlias string) (FieldDef, error) {
	entry, err := lookupContainer(cAlias)
	if err != nil {
		return FieldDef{}, err
	}

	return FieldDef{
		Name: name, Offset: offset,
		Converter: converter.GenericTypePtr{Wrap: entry.wrap, Unwrap: entry.unwrap},
		SpecKind:  fieldspec.KindPrimitive,
		ItemSize:  8,
	}, nil
}
