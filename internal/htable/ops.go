package htable

import (
	"fmt"

	"github.com/antocuni/cffi-shm/internal/fieldspec"
	"github.com/antocuni/cffi-shm/internal/heap"
)

const maxLoadFactor = 0.75

// find returns the index of the bucket holding key, or the first empty
// slot on the probe chain if absent. found reports which case applied.
func (t *Table) find(ptr uint64, size int64) (idx uint64, found bool) {
	count := t.bucketCount()
	mask := count - 1
	hash := t.strategy.Hash(t.h, ptr, size)
	start := hash & mask

	for probe := uint64(0); probe < count; probe++ {
		i := (start + probe) & mask

		state := t.bucketState(i)
		if state == keyStateEmpty {
			return i, false
		}

		if state == keyStateTombstone {
			continue
		}

		if t.u64(t.bucketOff(i)+bucketHash) != hash {
			continue
		}

		storedPtr := t.u64(t.bucketOff(i) + bucketKey)
		if t.strategy.Cmp(t.h, storedPtr, state, ptr, size) {
			return i, true
		}
	}

	return 0, false
}

// Get returns the value stored for key, if present.
func (t *Table) Get(ptr uint64, size int64) (value uint64, ok bool) {
	i, found := t.find(ptr, size)
	if !found {
		return 0, false
	}

	return t.u64(t.bucketOff(i) + bucketValue), true
}

// Exists reports whether key is present.
func (t *Table) Exists(ptr uint64, size int64) bool {
	_, found := t.find(ptr, size)

	return found
}

// Put inserts or overwrites the value for key. When nocopy is false and
// size indicates a copyable key (a fixed byte range or a NUL-terminated
// string), the key bytes are copied into a fresh heap allocation first;
// when nocopy is true the caller-owned ptr is stored directly and must
// remain valid for the table's lifetime. Writer only (allocation).
func (t *Table) Put(ptr uint64, size int64, value uint64, nocopy bool) error {
	storedPtr, storedSize, err := t.materializeKey(ptr, size, nocopy)
	if err != nil {
		return err
	}

	if i, found := t.find(ptr, size); found {
		t.setU64(t.bucketOff(i)+bucketValue, value)

		return nil
	}

	if float64(t.occupied()+t.tombstones()+1) > maxLoadFactor*float64(t.bucketCount()) {
		if err := t.grow(); err != nil {
			return err
		}
	}

	hash := t.strategy.Hash(t.h, ptr, size)
	count := t.bucketCount()
	mask := count - 1
	start := hash & mask

	for probe := uint64(0); probe < count; probe++ {
		i := (start + probe) & mask

		state := t.bucketState(i)
		if state == keyStateEmpty || state == keyStateTombstone {
			off := t.bucketOff(i)
			t.setU64(off+bucketHash, hash)
			t.setU64(off+bucketKey, storedPtr)
			t.setI64(off+bucketSzOff, storedSize)
			t.setU64(off+bucketValue, value)
			t.setOccupied(t.occupied() + 1)

			return nil
		}
	}

	return fmt.Errorf("htable: probe exhausted bucket array of size %d", count)
}

func (t *Table) materializeKey(ptr uint64, size int64, nocopy bool) (storedPtr uint64, storedSize int64, err error) {
	if nocopy || size == SizeBorrowed {
		return ptr, size, nil
	}

	if size == SizeString {
		s, _ := stringAt(t.h, ptr)

		off, err := t.h.AllocateString(s)
		if err != nil {
			return 0, 0, fmt.Errorf("copy string key: %w", err)
		}

		return off, SizeString, nil
	}

	off, err := t.h.Allocate(int(size)) //nolint:gosec
	if err != nil {
		return 0, 0, fmt.Errorf("copy key: %w", err)
	}

	copy(t.h.Bytes()[off:off+uint64(size)], t.h.Bytes()[ptr:ptr+uint64(size)]) //nolint:gosec

	return off, size, nil
}

func stringAt(h *heap.Heap, ptr uint64) ([]byte, bool) {
	return fieldspec.CString(heapSource{h}, ptr)
}

// Delete removes key, if present. Reports whether a key was removed.
func (t *Table) Delete(ptr uint64, size int64) bool {
	i, found := t.find(ptr, size)
	if !found {
		return false
	}

	off := t.bucketOff(i)
	t.setI64(off+bucketSzOff, keyStateTombstone)
	t.setU64(off+bucketKey, 0)
	t.setU64(off+bucketValue, 0)
	t.setOccupied(t.occupied() - 1)
	t.setTombstones(t.tombstones() + 1)

	return true
}

// Keys returns a snapshot array of every live key pointer.
func (t *Table) Keys() []uint64 {
	out := make([]uint64, 0, t.occupied())

	count := t.bucketCount()
	for i := uint64(0); i < count; i++ {
		if t.bucketState(i) == keyStateEmpty || t.bucketState(i) == keyStateTombstone {
			continue
		}

		out = append(out, t.u64(t.bucketOff(i)+bucketKey))
	}

	return out
}

// grow doubles the bucket array and reinserts every live entry,
// dropping tombstones — the same rehash-on-threshold idea as a
// from-scratch rebuild, just triggered by load factor instead of a
// tombstone ratio.
func (t *Table) grow() error {
	oldCount := t.bucketCount()
	oldBucketsPtr := t.bucketsPtr()

	type entry struct {
		hash, key uint64
		size      int64
		value     uint64
	}

	live := make([]entry, 0, t.occupied())

	for i := uint64(0); i < oldCount; i++ {
		off := oldBucketsPtr + i*bucketSize

		size := int64(t.u64(off + bucketSzOff)) //nolint:gosec
		if size == keyStateEmpty || size == keyStateTombstone {
			continue
		}

		live = append(live, entry{
			hash:  t.u64(off + bucketHash),
			key:   t.u64(off + bucketKey),
			size:  size,
			value: t.u64(off + bucketValue),
		})
	}

	if err := t.allocateBuckets(oldCount * 2); err != nil {
		return err
	}

	newCount := t.bucketCount()
	mask := newCount - 1

	for _, e := range live {
		start := e.hash & mask

		for probe := uint64(0); probe < newCount; probe++ {
			i := (start + probe) & mask

			if t.bucketState(i) == keyStateEmpty {
				off := t.bucketOff(i)
				t.setU64(off+bucketHash, e.hash)
				t.setU64(off+bucketKey, e.key)
				t.setI64(off+bucketSzOff, e.size)
				t.setU64(off+bucketValue, e.value)

				break
			}
		}
	}

	t.setOccupied(uint64(len(live)))
	t.setTombstones(0)

	return nil
}
