// Package htable implements an open-addressed, linear-probed hashtable
// allocated entirely inside a shared-memory heap: header and bucket
// array are heap blocks, so the table's state is reader-visible the
// moment the writer publishes its pointer. Keys are addressed by
// (pointer, size) with two size sentinels: SizeString means "pointer to
// a NUL-terminated byte buffer", SizeBorrowed means "compare by pointer
// identity, no bytes involved". Hash/compare is pluggable per table via
// a [Strategy]: [DefaultStrategy] does byte-wise hashing over the key
// range, [FieldSpecStrategy] delegates to a field-spec's deep hash and
// compare for struct keys.
package htable

import (
	"encoding/binary"
	"fmt"

	"github.com/antocuni/cffi-shm/internal/heap"
)

// Key size sentinels, following the addressing convention keyed tables
// share with the container layer above them.
const (
	SizeString   int64 = -1 // pointer to a NUL-terminated byte buffer
	SizeBorrowed int64 = 0  // compare/hash by pointer identity, no copy
)

const (
	keyStateEmpty     int64 = -2
	keyStateTombstone int64 = -3
)

const bucketSize = 32 // hash(8) + keyPtr(8) + keySize(8) + value(8)

const headerSize = 32 // bucketCount(8) + occupied(8) + tombstones(8) + bucketsPtr(8)

const (
	hdrBucketCount = 0
	hdrOccupied    = 8
	hdrTombstones  = 16
	hdrBucketsPtr  = 24
)

const (
	bucketHash  = 0
	bucketKey   = 8
	bucketSzOff = 16
	bucketValue = 24
)

// minBuckets is the smallest bucket array a freshly created table gets.
const minBuckets = 16

// Table is a handle to a hashtable living inside h, rooted at headerOff.
type Table struct {
	h          *heap.Heap
	headerOff  uint64
	strategy   Strategy
	rootSlot   int
	rooted     bool
}

// New allocates a fresh, empty table in h using strategy. Writer only
// (allocation is always a writer operation).
func New(h *heap.Heap, strategy Strategy) (*Table, error) {
	headerOff, err := h.Allocate(headerSize)
	if err != nil {
		return nil, fmt.Errorf("allocate table header: %w", err)
	}

	t := &Table{h: h, headerOff: headerOff, strategy: strategy}

	if err := t.allocateBuckets(minBuckets); err != nil {
		return nil, err
	}

	slot, err := h.RootAdd(headerOff)
	if err != nil {
		return nil, fmt.Errorf("root table header: %w", err)
	}

	t.rootSlot = slot
	t.rooted = true

	return t, nil
}

// FromOffset wraps an existing table given its header offset — used by
// readers attaching to a table a writer already published (e.g. via a
// dict's own heap pointer).
func FromOffset(h *heap.Heap, headerOff uint64, strategy Strategy) *Table {
	return &Table{h: h, headerOff: headerOff, strategy: strategy}
}

// Offset returns the table's header offset, for embedding inside other
// heap-resident structures (Dict, Set).
func (t *Table) Offset() uint64 { return t.headerOff }

// Destroy releases the table's root-table registration. The heap blocks
// themselves are reclaimed by the next collection once nothing else
// references them.
func (t *Table) Destroy() {
	if t.rooted {
		t.h.RootRelease(t.rootSlot)
		t.rooted = false
	}
}

func (t *Table) u64(off uint64) uint64 {
	return binary.LittleEndian.Uint64(t.h.Bytes()[off : off+8])
}

func (t *Table) setU64(off uint64, v uint64) {
	binary.LittleEndian.PutUint64(t.h.Bytes()[off:off+8], v)
}

func (t *Table) i64(off uint64) int64 { return int64(t.u64(off)) } //nolint:gosec

func (t *Table) setI64(off uint64, v int64) { t.setU64(off, uint64(v)) } //nolint:gosec

func (t *Table) bucketCount() uint64  { return t.u64(t.headerOff + hdrBucketCount) }
func (t *Table) occupied() uint64     { return t.u64(t.headerOff + hdrOccupied) }
func (t *Table) tombstones() uint64   { return t.u64(t.headerOff + hdrTombstones) }
func (t *Table) bucketsPtr() uint64   { return t.u64(t.headerOff + hdrBucketsPtr) }

func (t *Table) setBucketCount(v uint64) { t.setU64(t.headerOff+hdrBucketCount, v) }
func (t *Table) setOccupied(v uint64)    { t.setU64(t.headerOff+hdrOccupied, v) }
func (t *Table) setTombstones(v uint64)  { t.setU64(t.headerOff+hdrTombstones, v) }
func (t *Table) setBucketsPtr(v uint64)  { t.setU64(t.headerOff+hdrBucketsPtr, v) }

func (t *Table) bucketOff(i uint64) uint64 {
	return t.bucketsPtr() + i*bucketSize
}

func (t *Table) bucketState(i uint64) int64 {
	return t.i64(t.bucketOff(i) + bucketSzOff)
}

func (t *Table) allocateBuckets(count uint64) error {
	off, err := t.h.AllocateArray(bucketSize, int(count)) //nolint:gosec
	if err != nil {
		return fmt.Errorf("allocate bucket array: %w", err)
	}

	for i := uint64(0); i < count; i++ {
		t.setI64(off+i*bucketSize+bucketSzOff, keyStateEmpty)
	}

	t.setBucketsPtr(off)
	t.setBucketCount(count)
	t.setOccupied(0)
	t.setTombstones(0)

	return nil
}

// Len returns the number of live entries.
func (t *Table) Len() uint64 { return t.occupied() }
