// Package schema parses the .shmschema.json sidecar: an optional,
// tolerant-JSON (HuJSON, so comments and trailing commas are allowed)
// description of struct field layouts and primitive type aliases. It
// lets a reader process register the same types a writer process built
// without recompiling the writer's Go struct definitions in, the same
// way the registry's RegisterType/DefineStruct calls do, just data-driven
// instead of code-driven.
//
// This package only parses and merges sidecar files; translating a
// FieldSchema's Type string into a concrete converter and deriving a
// field-spec is the caller's job, since that translation needs the
// container/converter/fieldspec packages this one must not depend on.
package schema

import (
	"encoding/json"
	"fmt"

	"github.com/tailscale/hujson"
)

// FieldSchema describes one struct field in the sidecar file.
type FieldSchema struct {
	Name   string `json:"name"`
	Offset uint64 `json:"offset"`
	Type   string `json:"type"`
}

// StructSchema describes one struct type in the sidecar file.
type StructSchema struct {
	Size      uint64        `json:"size"`
	Immutable bool          `json:"immutable,omitempty"`
	Fields    []FieldSchema `json:"fields"`
}

// File is the parsed contents of a .shmschema.json sidecar.
type File struct {
	// Primitives maps a C type alias to the host-type label it stands
	// for, the same pairing [RegisterType] takes.
	Primitives map[string]string `json:"primitives,omitempty"`

	// Structs maps a C struct name to its layout.
	Structs map[string]StructSchema `json:"structs,omitempty"`
}

// Parse standardizes HuJSON to plain JSON and unmarshals it into a File.
func Parse(data []byte) (*File, error) {
	standardized, err := hujson.Standardize(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSchemaInvalid, err)
	}

	var f File

	if err := json.Unmarshal(standardized, &f); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSchemaInvalid, err)
	}

	return &f, nil
}

// Merge overlays overlay onto base, overlay's entries winning on key
// collision. Neither argument is mutated.
func Merge(base, overlay *File) *File {
	out := &File{
		Primitives: make(map[string]string, len(base.Primitives)+len(overlay.Primitives)),
		Structs:    make(map[string]StructSchema, len(base.Structs)+len(overlay.Structs)),
	}

	for k, v := range base.Primitives {
		out.Primitives[k] = v
	}

	for k, v := range base.Structs {
		out.Structs[k] = v
	}

	for k, v := range overlay.Primitives {
		out.Primitives[k] = v
	}

	for k, v := range overlay.Structs {
		out.Structs[k] = v
	}

	return out
}
