package shm

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/antocuni/cffi-shm/internal/converter"
	"github.com/antocuni/cffi-shm/internal/fieldspec"
	"github.com/antocuni/cffi-shm/internal/heap"
	"github.com/antocuni/cffi-shm/internal/schema"
)

// byteRecordSpec is the field-spec for one element of a fixed-width
// byte array field (the "char:N" schema type) — a single one-byte
// primitive, walked Length times by the owning KindPointer field.
var byteRecordSpec = &fieldspec.Spec{
	Fields: []fieldspec.Field{{Kind: fieldspec.KindPrimitive, ItemSize: 1}},
}

// LoadSchema resolves the .shmschema.json sidecar for workDir (global
// user file, then workDir's project file or explicitPath, see
// [schema.Load]) and registers every primitive alias and struct type it
// declares that a prior explicit [RegisterType]/[DefineStruct] call
// hasn't already claimed — explicit calls always take precedence over
// the sidecar, the same way CLI overrides win over a project config
// file.
func LoadSchema(workDir, explicitPath string) error {
	f, _, err := schema.Load(workDir, explicitPath, nil)
	if err != nil {
		return err
	}

	return applySchema(f)
}

func applySchema(f *schema.File) error {
	for cName, hostType := range f.Primitives {
		if isRegistered(cName) {
			continue
		}

		RegisterType(cName, hostType)
	}

	pending := make(map[string]schema.StructSchema, len(f.Structs))

	for cName, ss := range f.Structs {
		if isRegistered(cName) {
			continue
		}

		pending[cName] = ss
	}

	// Struct fields can reference other schema-declared struct types
	// (struct_ptr:/struct_by_val:), and map iteration order is random,
	// so resolve in repeated alphabetical passes until nothing more
	// can be defined; this lets a schema list its struct types in any
	// order as long as there's no cycle.
	for len(pending) > 0 {
		names := make([]string, 0, len(pending))
		for n := range pending {
			names = append(names, n)
		}

		sort.Strings(names)

		progressed := false

		for _, cName := range names {
			ss := pending[cName]

			fields, err := resolveFields(ss.Fields)
			if err != nil {
				continue
			}

			DefineStruct(cName, ss.Size, fields, ss.Immutable)
			delete(pending, cName)

			progressed = true
		}

		if !progressed {
			unresolved := make([]string, 0, len(pending))
			for n := range pending {
				unresolved = append(unresolved, n)
			}

			sort.Strings(unresolved)

			return fmt.Errorf("%w: schema struct(s) %v reference an undefined or invalid type", ErrUnknownType, unresolved)
		}
	}

	return nil
}

func resolveFields(fields []schema.FieldSchema) ([]FieldDef, error) {
	out := make([]FieldDef, len(fields))

	for i, fs := range fields {
		fd, err := resolveField(fs)
		if err != nil {
			return nil, err
		}

		out[i] = fd
	}

	return out, nil
}

//nolint:cyclop
func resolveField(fs schema.FieldSchema) (FieldDef, error) {
	switch {
	case fs.Type == "dummy":
		return primitiveField(fs, converter.Dummy{}), nil
	case fs.Type == "int64":
		return primitiveField(fs, converter.Primitive{Signed: true}), nil
	case fs.Type == "uint64":
		return primitiveField(fs, converter.Primitive{}), nil
	case fs.Type == "double":
		return primitiveField(fs, converter.Double{}), nil
	case fs.Type == "double_or_none":
		return primitiveField(fs, converter.DoubleOrNone{}), nil
	case fs.Type == "long_or_none":
		return primitiveField(fs, converter.LongOrNone{}), nil
	case fs.Type == "bool_or_none":
		return primitiveField(fs, converter.BoolOrNone{}), nil
	case fs.Type == "datetime":
		return primitiveField(fs, converter.DateTime{}), nil
	case fs.Type == "date":
		return primitiveField(fs, converter.Date{}), nil
	case fs.Type == "string":
		return FieldDef{
			Name: fs.Name, Offset: fs.Offset,
			Converter: converter.String{},
			SpecKind:  fieldspec.KindString,
			ItemSize:  8,
		}, nil
	case strings.HasPrefix(fs.Type, "char:"):
		return charField(fs)
	case strings.HasPrefix(fs.Type, "struct_ptr:"):
		return structField(fs, strings.TrimPrefix(fs.Type, "struct_ptr:"), false)
	case strings.HasPrefix(fs.Type, "struct_by_val:"):
		return structField(fs, strings.TrimPrefix(fs.Type, "struct_by_val:"), true)
	case strings.HasPrefix(fs.Type, "container_ptr:"):
		return ContainerPtrField(fs.Name, fs.Offset, strings.TrimPrefix(fs.Type, "container_ptr:"))
	default:
		return FieldDef{}, fmt.Errorf("%w: unknown field type %q", ErrUnknownType, fs.Type)
	}
}

func primitiveField(fs schema.FieldSchema, c converter.Converter) FieldDef {
	return FieldDef{
		Name: fs.Name, Offset: fs.Offset,
		Converter: c,
		SpecKind:  fieldspec.KindPrimitive,
		ItemSize:  8,
	}
}

func charField(fs schema.FieldSchema) (FieldDef, error) {
	width, err := strconv.Atoi(strings.TrimPrefix(fs.Type, "char:"))
	if err != nil || width <= 0 {
		return FieldDef{}, fmt.Errorf("%w: bad char width in field %q", ErrUnknownType, fs.Name)
	}

	return FieldDef{
		Name: fs.Name, Offset: fs.Offset,
		Converter: converter.ArrayOfChar{Width: width},
		SpecKind:  fieldspec.KindPointer,
		ItemSize:  1,
		Length:    uint32(width), //nolint:gosec
		Sub:       byteRecordSpec,
	}, nil
}

func structField(fs schema.FieldSchema, structName string, byVal bool) (FieldDef, error) {
	sd, err := lookupStruct(structName)
	if err != nil {
		return FieldDef{}, err
	}

	wrap := func(h *heap.Heap, ptr uint64) any {
		return &Struct{def: sd, inner: sd.inner.FromOffset(h, ptr)}
	}

	unwrap := func(host any) (uint64, error) {
		s, ok := host.(*Struct)
		if !ok {
			return 0, fmt.Errorf("%w: expected *Struct, got %T", ErrBadHostValue, host)
		}

		return s.AsRaw(), nil
	}

	var c converter.Converter
	if byVal {
		c = converter.StructByVal{Wrap: wrap, Unwrap: unwrap}
	} else {
		c = converter.StructPtr{Wrap: wrap, Unwrap: unwrap}
	}

	return FieldDef{
		Name: fs.Name, Offset: fs.Offset,
		Converter: c,
		SpecKind:  fieldspec.KindPointer,
		ItemSize:  uint32(sd.inner.Size), //nolint:gosec
		Length:    1,
		Sub:       sd.inner.FieldSpec(),
	}, nil
}
