package converter

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/antocuni/cffi-shm/internal/heap"
)

func newTestHeap(t *testing.T) *heap.Heap {
	t.Helper()

	path := filepath.Join(t.TempDir(), "heap.bin")

	h, err := heap.Init(path, heap.InitOptions{TotalSize: 1 << 20, RWArenaSize: 1 << 16})
	if err != nil {
		t.Fatalf("heap.Init: %v", err)
	}

	t.Cleanup(func() { _ = h.Close() })

	return h
}

func TestDummyRoundTrip(t *testing.T) {
	t.Parallel()

	h := (*heap.Heap)(nil)

	c := Dummy{}

	raw, err := c.ToHeap(h, uint64(123))
	if err != nil {
		t.Fatalf("ToHeap: %v", err)
	}

	host, err := c.ToHost(h, raw)
	if err != nil {
		t.Fatalf("ToHost: %v", err)
	}

	if host != uint64(123) {
		t.Fatalf("round-trip mismatch: got %v", host)
	}
}

func TestStringRoundTripAndNilSentinel(t *testing.T) {
	h := newTestHeap(t)

	c := String{}

	raw, err := c.ToHeap(h, "hello")
	if err != nil {
		t.Fatalf("ToHeap: %v", err)
	}

	host, err := c.ToHost(h, raw)
	if err != nil {
		t.Fatalf("ToHost: %v", err)
	}

	if host != "hello" {
		t.Fatalf("expected %q, got %v", "hello", host)
	}

	nilRaw, err := c.ToHeap(h, nil)
	if err != nil {
		t.Fatalf("ToHeap(nil): %v", err)
	}

	if nilRaw != 0 {
		t.Fatalf("nil string must encode as NUL pointer, got %d", nilRaw)
	}

	nilHost, err := c.ToHost(h, 0)
	if err != nil {
		t.Fatalf("ToHost(0): %v", err)
	}

	if nilHost != nil {
		t.Fatalf("NUL pointer must decode back to nil, got %v", nilHost)
	}
}

func TestArrayOfCharRejectsOverflow(t *testing.T) {
	h := newTestHeap(t)

	c := ArrayOfChar{Width: 4}

	if _, err := c.ToHeap(h, "abcd"); err == nil {
		t.Fatalf("expected overflow rejection for a string with no room for NUL")
	}

	raw, err := c.ToHeap(h, "abc")
	if err != nil {
		t.Fatalf("ToHeap: %v", err)
	}

	host, err := c.ToHost(h, raw)
	if err != nil {
		t.Fatalf("ToHost: %v", err)
	}

	if host != "abc" {
		t.Fatalf("expected %q, got %v", "abc", host)
	}
}

func TestPrimitiveSignedRoundTrip(t *testing.T) {
	t.Parallel()

	c := Primitive{Signed: true}

	raw, err := c.ToHeap(nil, int64(-7))
	if err != nil {
		t.Fatalf("ToHeap: %v", err)
	}

	host, err := c.ToHost(nil, raw)
	if err != nil {
		t.Fatalf("ToHost: %v", err)
	}

	if host != int64(-7) {
		t.Fatalf("expected -7, got %v", host)
	}
}

func TestDoubleOrNoneNaNSentinel(t *testing.T) {
	t.Parallel()

	c := DoubleOrNone{}

	raw, err := c.ToHeap(nil, nil)
	if err != nil {
		t.Fatalf("ToHeap(nil): %v", err)
	}

	host, err := c.ToHost(nil, raw)
	if err != nil {
		t.Fatalf("ToHost: %v", err)
	}

	if host != nil {
		t.Fatalf("NaN sentinel must decode to nil, got %v", host)
	}

	raw2, err := c.ToHeap(nil, 3.5)
	if err != nil {
		t.Fatalf("ToHeap(3.5): %v", err)
	}

	host2, err := c.ToHost(nil, raw2)
	if err != nil {
		t.Fatalf("ToHost: %v", err)
	}

	if host2 != 3.5 {
		t.Fatalf("expected 3.5, got %v", host2)
	}
}

func TestLongOrNoneSentinel(t *testing.T) {
	t.Parallel()

	c := LongOrNone{}

	raw, err := c.ToHeap(nil, nil)
	if err != nil {
		t.Fatalf("ToHeap(nil): %v", err)
	}

	host, err := c.ToHost(nil, raw)
	if err != nil {
		t.Fatalf("ToHost: %v", err)
	}

	if host != nil {
		t.Fatalf("sentinel must decode to nil, got %v", host)
	}

	raw2, _ := c.ToHeap(nil, int64(42))

	host2, err := c.ToHost(nil, raw2)
	if err != nil {
		t.Fatalf("ToHost: %v", err)
	}

	if host2 != int64(42) {
		t.Fatalf("expected 42, got %v", host2)
	}
}

func TestBoolOrNoneSentinel(t *testing.T) {
	t.Parallel()

	c := BoolOrNone{}

	for _, tc := range []struct {
		in   any
		want any
	}{
		{nil, nil},
		{true, true},
		{false, false},
	} {
		raw, err := c.ToHeap(nil, tc.in)
		if err != nil {
			t.Fatalf("ToHeap(%v): %v", tc.in, err)
		}

		host, err := c.ToHost(nil, raw)
		if err != nil {
			t.Fatalf("ToHost: %v", err)
		}

		if host != tc.want {
			t.Fatalf("ToHeap/ToHost(%v) round-tripped to %v, want %v", tc.in, host, tc.want)
		}
	}
}

func TestDateTimeRoundTripAndNilSentinel(t *testing.T) {
	t.Parallel()

	c := DateTime{}

	in := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)

	raw, err := c.ToHeap(nil, in)
	if err != nil {
		t.Fatalf("ToHeap: %v", err)
	}

	host, err := c.ToHost(nil, raw)
	if err != nil {
		t.Fatalf("ToHost: %v", err)
	}

	got, ok := host.(time.Time)
	if !ok || !got.Equal(in) {
		t.Fatalf("expected %v, got %v", in, host)
	}

	nilRaw, _ := c.ToHeap(nil, nil)

	nilHost, err := c.ToHost(nil, nilRaw)
	if err != nil {
		t.Fatalf("ToHost(nil): %v", err)
	}

	if nilHost != nil {
		t.Fatalf("expected nil, got %v", nilHost)
	}
}

func TestDateTruncatesToCalendarDay(t *testing.T) {
	t.Parallel()

	c := Date{}

	in := time.Date(2026, 3, 4, 23, 59, 59, 0, time.UTC)

	raw, err := c.ToHeap(nil, in)
	if err != nil {
		t.Fatalf("ToHeap: %v", err)
	}

	host, err := c.ToHost(nil, raw)
	if err != nil {
		t.Fatalf("ToHost: %v", err)
	}

	got, ok := host.(time.Time)
	if !ok {
		t.Fatalf("expected time.Time, got %T", host)
	}

	want := time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("expected truncation to %v, got %v", want, got)
	}
}

func TestStructPtrNilRoundTrip(t *testing.T) {
	t.Parallel()

	c := StructPtr{
		Wrap:   func(_ *heap.Heap, ptr uint64) any { return ptr },
		Unwrap: func(host any) (uint64, error) { return host.(uint64), nil }, //nolint:forcetypeassert
	}

	raw, err := c.ToHeap(nil, nil)
	if err != nil {
		t.Fatalf("ToHeap(nil): %v", err)
	}

	if raw != 0 {
		t.Fatalf("nil struct pointer must encode as 0, got %d", raw)
	}

	host, err := c.ToHost(nil, 0)
	if err != nil {
		t.Fatalf("ToHost(0): %v", err)
	}

	if host != nil {
		t.Fatalf("NUL pointer must decode to nil, got %v", host)
	}
}
