package container

import (
	"encoding/binary"
	"fmt"

	"github.com/antocuni/cffi-shm/internal/converter"
	"github.com/antocuni/cffi-shm/internal/fieldspec"
	"github.com/antocuni/cffi-shm/internal/heap"
)

// FieldDef declares one struct field: its byte offset, the converter
// that reads/writes it, and (for immutable structs) enough of the
// field-spec vocabulary to contribute to the struct's automatically
// derived deep-hash/compare descriptor.
type FieldDef struct {
	Name      string
	Offset    uint64
	Converter converter.Converter

	// SpecKind, ItemSize, Sub, Length, LengthOffset describe this
	// field's contribution to the owning struct's field-spec. Only
	// consulted when the struct is declared immutable.
	SpecKind     fieldspec.Kind
	ItemSize     uint32
	Sub          *fieldspec.Spec
	Length       uint32
	LengthOffset uint32
}

// StructDef is a declarative mapping between a fixed-layout heap record
// and a host value, shared by every instance of that struct type.
// Immutable struct defs additionally carry an auto-derived field-spec,
// rejecting fields that would make deep hash/compare ill-defined is the
// registry's job, not this type's — StructDef trusts its caller.
type StructDef struct {
	Size      uint64
	Fields    []FieldDef
	Immutable bool

	spec *fieldspec.Spec
}

// NewStructDef builds a StructDef. When immutable is true, a field-spec
// is derived from fields automatically, enabling Hash/Equal on
// instances.
func NewStructDef(size uint64, fields []FieldDef, immutable bool) *StructDef {
	sd := &StructDef{Size: size, Fields: fields, Immutable: immutable}

	if immutable {
		fsFields := make([]fieldspec.Field, len(fields))
		for i, f := range fields {
			fsFields[i] = fieldspec.Field{
				Name:         f.Name,
				Kind:         f.SpecKind,
				Offset:       uint32(f.Offset), //nolint:gosec
				ItemSize:     f.ItemSize,
				Sub:          f.Sub,
				Length:       f.Length,
				LengthOffset: f.LengthOffset,
			}
		}

		sd.spec = &fieldspec.Spec{Fields: fsFields}
	}

	return sd
}

// FieldSpec returns the struct's derived field-spec, or nil for mutable
// structs.
func (sd *StructDef) FieldSpec() *fieldspec.Spec { return sd.spec }

func (sd *StructDef) field(name string) (FieldDef, bool) {
	for _, f := range sd.Fields {
		if f.Name == name {
			return f, true
		}
	}

	return FieldDef{}, false
}

// New allocates a fresh, zeroed instance. Writer only.
func (sd *StructDef) New(h *heap.Heap) (*Struct, error) {
	off, err := h.Allocate(int(sd.Size)) //nolint:gosec
	if err != nil {
		return nil, fmt.Errorf("allocate struct: %w", err)
	}

	return &Struct{def: sd, h: h, off: off}, nil
}

// FromOffset wraps an existing instance given its heap address.
func (sd *StructDef) FromOffset(h *heap.Heap, off uint64) *Struct {
	return &Struct{def: sd, h: h, off: off}
}

// NewWithValues allocates an instance and initializes every field named
// in values through its converter. Immutable structs have no write
// accessor once constructed (Set always fails on them), so this is the
// only way to give one a non-zero value — mutable structs may use it
// too, as a convenience constructor equivalent to New plus a Set per
// field. Writer only.
func (sd *StructDef) NewWithValues(h *heap.Heap, values map[string]any) (*Struct, error) {
	s, err := sd.New(h)
	if err != nil {
		return nil, err
	}

	for _, f := range sd.Fields {
		v, ok := values[f.Name]
		if !ok {
			continue
		}

		raw, err := f.Converter.ToHeap(h, v)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", f.Name, err)
		}

		s.setRawAt(s.off+f.Offset, raw)
	}

	return s, nil
}

// Struct is a non-owning handle to one instance of a StructDef.
type Struct struct {
	def *StructDef
	h   *heap.Heap
	off uint64
}

// Offset returns the instance's heap address.
func (s *Struct) Offset() uint64 { return s.off }

// Def returns the struct's shared type descriptor.
func (s *Struct) Def() *StructDef { return s.def }

func (s *Struct) rawAt(off uint64) uint64 {
	return binary.LittleEndian.Uint64(s.h.Bytes()[off : off+8])
}

func (s *Struct) setRawAt(off uint64, v uint64) {
	binary.LittleEndian.PutUint64(s.h.Bytes()[off:off+8], v)
}

// Get reads field name through its converter.
func (s *Struct) Get(name string) (any, error) {
	f, ok := s.def.field(name)
	if !ok {
		return nil, fmt.Errorf("%w: no such field %q", ErrNoSuchField, name)
	}

	return f.Converter.ToHost(s.h, s.rawAt(s.off+f.Offset))
}

// Set writes value to field name through its converter. Fails with
// [ErrImmutable] if the struct was declared immutable.
func (s *Struct) Set(name string, value any) error {
	if s.def.Immutable {
		return ErrImmutable
	}

	f, ok := s.def.field(name)
	if !ok {
		return fmt.Errorf("%w: no such field %q", ErrNoSuchField, name)
	}

	raw, err := f.Converter.ToHeap(s.h, value)
	if err != nil {
		return fmt.Errorf("field %q: %w", name, err)
	}

	s.setRawAt(s.off+f.Offset, raw)

	return nil
}

type heapSource struct{ h *heap.Heap }

func (hs heapSource) ReadAt(offset uint64, n int) []byte {
	b := hs.h.Bytes()

	return b[offset : offset+uint64(n)] //nolint:gosec
}

// Hash returns the struct's deep hash. Immutable structs only.
func (s *Struct) Hash() (uint64, error) {
	if !s.def.Immutable {
		return 0, ErrNonHashableKey
	}

	return fieldspec.Hash(heapSource{s.h}, s.off, s.def.spec), nil
}

// Equal reports whether s and other are deeply equal. Immutable structs
// only; both must share the same StructDef.
func (s *Struct) Equal(other *Struct) (bool, error) {
	if !s.def.Immutable {
		return false, ErrNonHashableKey
	}

	return fieldspec.Compare(heapSource{s.h}, s.off, other.off, s.def.spec) == 0, nil
}
