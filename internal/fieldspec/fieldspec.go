// Package fieldspec implements a data-driven description of how to walk
// a struct/pointer/array/string tree to compute a deep hash and a deep
// lexicographic comparison. It is the key discipline the container
// package's Dict uses for struct keys.
package fieldspec

import "bytes"

// Kind identifies how a field descriptor's bytes should be interpreted.
type Kind uint8

const (
	// KindPrimitive fields are inline bytes of ItemSize, hashed raw and
	// compared memcmp-style.
	KindPrimitive Kind = iota
	// KindString fields hold a pointer to a NUL-terminated byte buffer.
	// A NUL pointer hashes to 0 and orders before any non-NUL value.
	KindString
	// KindPointer fields hold a pointer to a fixed-length (Length, at
	// least 1) run of Sub-typed records.
	KindPointer
	// KindArray fields hold a pointer plus a length read from
	// LengthOffset within the owning struct.
	KindArray
	// KindStop terminates a field-descriptor sequence early. A Spec
	// whose Fields slice simply ends needs no explicit KindStop entry;
	// it exists so specs translated from a true null-terminated C array
	// can carry a trailing sentinel without meaning anything.
	KindStop
)

// Field is one descriptor in a Spec: {name, kind, byte-offset, item-size,
// sub-spec, length | length-offset}.
type Field struct {
	Name string
	Kind Kind

	// Offset is the byte offset of this field within the owning record.
	Offset uint32

	// ItemSize is the size in bytes of one primitive value, or of one
	// Sub record for KindPointer/KindArray.
	ItemSize uint32

	// Sub describes the pointed-to record type for KindPointer/KindArray.
	Sub *Spec

	// Length is the fixed record count for KindPointer.
	Length uint32

	// LengthOffset is the byte offset, within the owning record, of a
	// uint32 holding the element count for KindArray.
	LengthOffset uint32
}

// Spec is a field-spec: an ordered sequence of descriptors.
type Spec struct {
	Fields []Field
}

// Source abstracts the byte-addressable memory a Spec walks over — in
// production this is the mapped heap, via internal/container's adapter; tests
// use a plain in-process byte slice.
type Source interface {
	// ReadAt returns n bytes starting at offset. Offset 0 with n>0 must
	// not be dereferenced by callers (see CString for the NUL-pointer
	// convention).
	ReadAt(offset uint64, n int) []byte
}

// CString reads a NUL-terminated string at offset from src. Offset 0
// means "no string" and returns (nil, false).
func CString(src Source, offset uint64) ([]byte, bool) {
	if offset == 0 {
		return nil, false
	}

	const chunk = 64

	var out []byte

	pos := offset

	for {
		buf := src.ReadAt(pos, chunk)

		idx := bytes.IndexByte(buf, 0)
		if idx >= 0 {
			out = append(out, buf[:idx]...)

			return out, true
		}

		out = append(out, buf...)
		pos += chunk
	}
}

func leUint64(b []byte) uint64 {
	var v uint64
	for i := 7; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}

	return v
}

func leUint32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

func readPtr(src Source, base uint64, field Field) uint64 {
	return leUint64(src.ReadAt(base+uint64(field.Offset), 8))
}
