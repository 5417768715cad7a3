package fieldspec

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

// byteSource is an in-process Source backed by a single growable buffer,
// used by tests in place of the mapped heap.
type byteSource struct {
	buf []byte
}

func newByteSource() *byteSource {
	return &byteSource{buf: make([]byte, 1)} // offset 0 reserved as NUL
}

func (s *byteSource) ReadAt(offset uint64, n int) []byte {
	end := int(offset) + n
	if end > len(s.buf) {
		grown := make([]byte, end)
		copy(grown, s.buf)
		s.buf = grown
	}

	return s.buf[offset:end]
}

func (s *byteSource) putUint64(offset uint64, v uint64) {
	b := s.ReadAt(offset, 8)
	for i := range 8 {
		b[i] = byte(v >> (8 * i))
	}
}

func (s *byteSource) putCString(str string) uint64 {
	off := uint64(len(s.buf))
	s.buf = append(s.buf, []byte(str)...)
	s.buf = append(s.buf, 0)

	return off
}

func TestHashPrimitiveField(t *testing.T) {
	t.Parallel()

	src := newByteSource()
	src.ReadAt(0, 16)
	src.buf[8] = 42

	spec := &Spec{Fields: []Field{{Kind: KindPrimitive, Offset: 8, ItemSize: 1}}}

	h1 := Hash(src, 0, spec)

	src2 := newByteSource()
	src2.ReadAt(0, 16)
	src2.buf[8] = 42

	h2 := Hash(src2, 0, spec)

	if h1 != h2 {
		t.Fatalf("identical records hashed differently: %d != %d", h1, h2)
	}

	src.buf[8] = 43

	h3 := Hash(src, 0, spec)
	if h3 == h1 {
		t.Fatalf("differing records hashed identically")
	}
}

func TestHashAndCompareString(t *testing.T) {
	t.Parallel()

	spec := &Spec{Fields: []Field{{Kind: KindString, Offset: 0, ItemSize: 8}}}

	src := newByteSource()
	src.buf = make([]byte, 8)
	off := src.putCString("hello")
	src.putUint64(0, off)

	src2 := newByteSource()
	src2.buf = make([]byte, 8)
	off2 := src2.putCString("hello")
	src2.putUint64(0, off2)

	if Hash(src, 0, spec) != Hash(src2, 0, spec) {
		t.Fatalf("equal strings at different offsets hashed differently")
	}

	if Compare(src, 0, 0, spec) != 0 {
		t.Fatalf("equal strings did not compare equal")
	}

	srcNil := newByteSource()
	srcNil.buf = make([]byte, 8)
	srcNil.putUint64(0, 0)

	if c := Compare(srcNil, 0, 0, spec); c != 0 {
		t.Fatalf("NUL string did not compare equal to itself, got %d", c)
	}

	if c := Compare(srcNil, 0, 0, spec); c > 0 {
		t.Fatalf("unexpected positive compare")
	}

	// NUL must sort before a non-NUL string.
	combined := newByteSource()
	combined.buf = make([]byte, 16)
	combined.putUint64(0, 0) // a: NUL
	bOff := combined.putCString("x")
	combined.putUint64(8, bOff)

	if c := Compare(combined, 0, 8, spec); c >= 0 {
		t.Fatalf("NUL string did not sort before non-NUL, got %d", c)
	}
}

func TestComparePointerRunComparesElementsInOrder(t *testing.T) {
	t.Parallel()

	sub := &Spec{Fields: []Field{{Kind: KindPrimitive, Offset: 0, ItemSize: 1}}}
	f := Field{Kind: KindPointer, Offset: 0, ItemSize: 1, Sub: sub, Length: 2}
	spec := &Spec{Fields: []Field{f}}

	src := newByteSource()
	src.buf = make([]byte, 32)
	// a points to {1,2}, b points to {1,3}
	aData := uint64(16)
	bData := uint64(20)
	src.buf[aData], src.buf[aData+1] = 1, 2
	src.buf[bData], src.buf[bData+1] = 1, 3
	src.putUint64(0, aData)
	src.putUint64(8, bData)

	if c := Compare(src, 0, 8, spec); c >= 0 {
		t.Fatalf("expected a < b, got %d", c)
	}
}

func TestCompareArrayShorterPrefixSortsFirst(t *testing.T) {
	t.Parallel()

	sub := &Spec{Fields: []Field{{Kind: KindPrimitive, Offset: 0, ItemSize: 1}}}
	f := Field{Kind: KindArray, Offset: 0, ItemSize: 1, Sub: sub, LengthOffset: 16}
	spec := &Spec{Fields: []Field{f}}

	src := newByteSource()
	src.buf = make([]byte, 40)

	aData := uint64(32)
	bData := uint64(36)
	src.buf[aData] = 5
	src.buf[bData], src.buf[bData+1] = 5, 9

	src.putUint64(0, aData)
	src.putUint64(8, bData)
	// LengthOffset is relative to the owning record's base: a's base is 0
	// so its length lives at absolute offset 16; b's base is 8 so its
	// length lives at absolute offset 24.
	src.buf[16] = 1 // aLen = 1
	src.buf[24] = 2 // bLen = 2

	if c := Compare(src, 0, 8, spec); c >= 0 {
		t.Fatalf("expected shorter-but-equal-prefix array to sort first, got %d", c)
	}
}

func TestByteSourceGrowsWithoutDisturbingExistingBytes(t *testing.T) {
	t.Parallel()

	src := newByteSource()
	src.putUint64(0, 0xdeadbeef)

	before := append([]byte(nil), src.ReadAt(0, 8)...)

	src.ReadAt(64, 8) // forces a grow well past the existing bytes

	after := src.ReadAt(0, 8)

	if !cmp.Equal(before, after) {
		t.Fatalf("growing the backing buffer disturbed earlier bytes: before=%v after=%v", before, after)
	}
}

func TestCStringNULOffsetMeansAbsent(t *testing.T) {
	t.Parallel()

	src := newByteSource()

	if _, ok := CString(src, 0); ok {
		t.Fatalf("offset 0 should mean absent")
	}
}
