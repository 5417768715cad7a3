// Package converter implements the per-field bidirectional translators
// between host values and raw heap words that the struct wrapper and
// typed containers compose into field accessors. Every converter reads
// and writes a fixed-width "raw" uint64 slot — for types narrower than a
// pointer (bool, a single byte) the low bits carry the value; for
// pointer-shaped fields the raw value is a heap offset.
package converter

import (
	"fmt"
	"math"
	"time"

	"github.com/antocuni/cffi-shm/internal/fieldspec"
	"github.com/antocuni/cffi-shm/internal/heap"
)

// Converter translates one struct field between its host representation
// and the raw heap word stored in the field's slot.
type Converter interface {
	// ToHeap encodes host into a raw slot value, allocating heap storage
	// if the field is itself pointer-shaped (string, struct, array).
	ToHeap(h *heap.Heap, host any) (raw uint64, err error)
	// ToHost decodes a raw slot value back into a host value.
	ToHost(h *heap.Heap, raw uint64) (host any, err error)
}

// Dummy passes the raw word through unchanged in both directions.
type Dummy struct{}

func (Dummy) ToHeap(_ *heap.Heap, host any) (uint64, error) {
	v, ok := host.(uint64)
	if !ok {
		return 0, fmt.Errorf("%w: dummy converter wants uint64, got %T", ErrBadHostValue, host)
	}

	return v, nil
}

func (Dummy) ToHost(_ *heap.Heap, raw uint64) (any, error) { return raw, nil }

// String converts a Go string to/from a heap-allocated NUL-terminated
// buffer. A NUL pointer round-trips to the host as an absent value
// (nil).
type String struct{}

func (String) ToHeap(h *heap.Heap, host any) (uint64, error) {
	if host == nil {
		return 0, nil
	}

	s, ok := host.(string)
	if !ok {
		return 0, fmt.Errorf("%w: string converter wants string, got %T", ErrBadHostValue, host)
	}

	off, err := h.AllocateString([]byte(s))
	if err != nil {
		return 0, fmt.Errorf("allocate string field: %w", err)
	}

	return off, nil
}

func (String) ToHost(h *heap.Heap, raw uint64) (any, error) {
	if raw == 0 {
		return nil, nil
	}

	b, _ := fieldspec.CString(heapSource{h}, raw)

	return string(b), nil
}

// ArrayOfChar copies the string into a separately allocated Width-byte
// heap block and returns that block's offset as the field's raw value;
// the bytes are not stored inline in the field. Strings of Width bytes
// or longer are rejected, so the stored copy is always NUL-terminated.
type ArrayOfChar struct{ Width int }

func (c ArrayOfChar) ToHeap(h *heap.Heap, host any) (uint64, error) {
	s, ok := host.(string)
	if !ok {
		return 0, fmt.Errorf("%w: array-of-char converter wants string, got %T", ErrBadHostValue, host)
	}

	if len(s) >= c.Width {
		return 0, fmt.Errorf("%w: string of length %d does not fit in %d-byte field", ErrBadHostValue, len(s), c.Width)
	}

	off, err := h.Allocate(c.Width)
	if err != nil {
		return 0, fmt.Errorf("allocate array-of-char field: %w", err)
	}

	copy(h.Bytes()[off:off+uint64(c.Width)], s) //nolint:gosec

	return off, nil
}

func (c ArrayOfChar) ToHost(h *heap.Heap, raw uint64) (any, error) {
	b, _ := fieldspec.CString(heapSource{h}, raw)

	return string(b), nil
}

// Primitive widens/narrows an integer through a scratch cell; the raw
// slot always holds the value zero/sign-extended to 64 bits.
type Primitive struct{ Signed bool }

func (p Primitive) ToHeap(_ *heap.Heap, host any) (uint64, error) {
	switch v := host.(type) {
	case int64:
		return uint64(v), nil //nolint:gosec
	case uint64:
		return v, nil
	case int:
		return uint64(int64(v)), nil //nolint:gosec
	default:
		return 0, fmt.Errorf("%w: primitive converter wants an integer, got %T", ErrBadHostValue, host)
	}
}

func (p Primitive) ToHost(_ *heap.Heap, raw uint64) (any, error) {
	if p.Signed {
		return int64(raw), nil //nolint:gosec
	}

	return raw, nil
}

// Double bit-unions a float64 into a pointer-width slot and back.
type Double struct{}

func (Double) ToHeap(_ *heap.Heap, host any) (uint64, error) {
	f, ok := host.(float64)
	if !ok {
		return 0, fmt.Errorf("%w: double converter wants float64, got %T", ErrBadHostValue, host)
	}

	return math.Float64bits(f), nil
}

func (Double) ToHost(_ *heap.Heap, raw uint64) (any, error) {
	return math.Float64frombits(raw), nil
}

// DoubleOrNone reinterprets a NaN payload as the host's "absent" value.
type DoubleOrNone struct{}

func (DoubleOrNone) ToHeap(_ *heap.Heap, host any) (uint64, error) {
	if host == nil {
		return math.Float64bits(math.NaN()), nil
	}

	f, ok := host.(float64)
	if !ok {
		return 0, fmt.Errorf("%w: double-or-none converter wants float64 or nil, got %T", ErrBadHostValue, host)
	}

	return math.Float64bits(f), nil
}

func (DoubleOrNone) ToHost(_ *heap.Heap, raw uint64) (any, error) {
	f := math.Float64frombits(raw)
	if math.IsNaN(f) {
		return nil, nil
	}

	return f, nil
}

// LongOrNone reserves math.MinInt64 as the sentinel "absent" value.
type LongOrNone struct{}

const longNoneSentinel = int64(math.MinInt64)

func (LongOrNone) ToHeap(_ *heap.Heap, host any) (uint64, error) {
	if host == nil {
		return uint64(longNoneSentinel), nil //nolint:gosec
	}

	v, ok := host.(int64)
	if !ok {
		return 0, fmt.Errorf("%w: long-or-none converter wants int64 or nil, got %T", ErrBadHostValue, host)
	}

	return uint64(v), nil //nolint:gosec
}

func (LongOrNone) ToHost(_ *heap.Heap, raw uint64) (any, error) {
	v := int64(raw) //nolint:gosec
	if v == longNoneSentinel {
		return nil, nil
	}

	return v, nil
}

// BoolOrNone stores 0/1/absent in the slot, absent encoded the same way
// the original's "signed char" sentinel of -1 is: all bits set,
// sign-extended to the field's full width.
type BoolOrNone struct{}

const (
	boolNoneSentinel = ^uint64(0)
)

func (BoolOrNone) ToHeap(_ *heap.Heap, host any) (uint64, error) {
	if host == nil {
		return boolNoneSentinel, nil
	}

	b, ok := host.(bool)
	if !ok {
		return 0, fmt.Errorf("%w: bool-or-none converter wants bool or nil, got %T", ErrBadHostValue, host)
	}

	if b {
		return 1, nil
	}

	return 0, nil
}

func (BoolOrNone) ToHost(_ *heap.Heap, raw uint64) (any, error) {
	switch raw {
	case boolNoneSentinel:
		return nil, nil
	case 0:
		return false, nil
	default:
		return true, nil
	}
}

// DateTime stores seconds-since-epoch in a double; NaN means absent.
type DateTime struct{}

func (DateTime) ToHeap(_ *heap.Heap, host any) (uint64, error) {
	if host == nil {
		return math.Float64bits(math.NaN()), nil
	}

	t, ok := host.(time.Time)
	if !ok {
		return 0, fmt.Errorf("%w: datetime converter wants time.Time or nil, got %T", ErrBadHostValue, host)
	}

	return math.Float64bits(float64(t.Unix()) + float64(t.Nanosecond())/1e9), nil
}

func (DateTime) ToHost(_ *heap.Heap, raw uint64) (any, error) {
	f := math.Float64frombits(raw)
	if math.IsNaN(f) {
		return nil, nil
	}

	sec := int64(f)
	nsec := int64((f - float64(sec)) * 1e9)

	return time.Unix(sec, nsec).UTC(), nil
}

// Date is DateTime truncated to a calendar day at construction/read
// time.
type Date struct{}

func (Date) ToHeap(h *heap.Heap, host any) (uint64, error) {
	if host == nil {
		return (DateTime{}).ToHeap(h, nil) //nolint:errcheck
	}

	t, ok := host.(time.Time)
	if !ok {
		return 0, fmt.Errorf("%w: date converter wants time.Time or nil, got %T", ErrBadHostValue, host)
	}

	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)

	return (DateTime{}).ToHeap(h, day)
}

func (Date) ToHost(h *heap.Heap, raw uint64) (any, error) {
	v, err := (DateTime{}).ToHost(h, raw)
	if err != nil || v == nil {
		return v, err
	}

	t := v.(time.Time) //nolint:forcetypeassert

	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
}

type heapSource struct{ h *heap.Heap }

func (s heapSource) ReadAt(offset uint64, n int) []byte {
	b := s.h.Bytes()

	return b[offset : offset+uint64(n)] //nolint:gosec
}
