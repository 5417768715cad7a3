package htable

import (
	"bytes"

	"github.com/antocuni/cffi-shm/internal/fieldspec"
	"github.com/antocuni/cffi-shm/internal/heap"
)

// Strategy supplies a table's hash and compare functions over
// (pointer, size) keys.
type Strategy struct {
	Hash func(h *heap.Heap, ptr uint64, size int64) uint64
	Cmp  func(h *heap.Heap, aPtr uint64, aSize int64, bPtr uint64, bSize int64) bool
}

type heapSource struct{ h *heap.Heap }

func (s heapSource) ReadAt(offset uint64, n int) []byte {
	b := s.h.Bytes()

	return b[offset : offset+uint64(n)] //nolint:gosec
}

func keyBytes(h *heap.Heap, ptr uint64, size int64) []byte {
	switch {
	case size == SizeString:
		s, _ := fieldspec.CString(heapSource{h}, ptr)

		return s
	case size == SizeBorrowed:
		return nil
	default:
		return h.Bytes()[ptr : ptr+uint64(size)] //nolint:gosec
	}
}

const (
	fnvOffset = 14695981039346656037
	fnvPrime  = 1099511628211
)

// fnv1a64 is the default byte-wise key hash.
func fnv1a64(key []byte) uint64 {
	hash := uint64(fnvOffset)

	for _, b := range key {
		hash ^= uint64(b)
		hash *= fnvPrime
	}

	return hash
}

// DefaultStrategy hashes/compares keys byte-wise over their (pointer,
// size) range. SizeBorrowed keys are compared and hashed by pointer
// identity, matching the NOCOPY/pointer-identity convention for
// primitive-sized-as-pointer keys.
func DefaultStrategy() Strategy {
	return Strategy{
		Hash: func(h *heap.Heap, ptr uint64, size int64) uint64 {
			if size == SizeBorrowed {
				return fnv1a64(binaryLE(ptr))
			}

			return fnv1a64(keyBytes(h, ptr, size))
		},
		Cmp: func(h *heap.Heap, aPtr uint64, aSize int64, bPtr uint64, bSize int64) bool {
			if aSize == SizeBorrowed || bSize == SizeBorrowed {
				return aSize == bSize && aPtr == bPtr
			}

			return bytes.Equal(keyBytes(h, aPtr, aSize), keyBytes(h, bPtr, bSize))
		},
	}
}

// FieldSpecStrategy hashes/compares struct keys deeply, via spec. ptr is
// the base address of the struct instance (by-value keys) or of the
// pointee (by-pointer keys); size is informational only and ignored by
// the comparison, which always walks the full field-spec.
func FieldSpecStrategy(spec *fieldspec.Spec) Strategy {
	return Strategy{
		Hash: func(h *heap.Heap, ptr uint64, _ int64) uint64 {
			return fieldspec.Hash(heapSource{h}, ptr, spec)
		},
		Cmp: func(h *heap.Heap, aPtr uint64, _ int64, bPtr uint64, _ int64) bool {
			return fieldspec.Compare(heapSource{h}, aPtr, bPtr, spec) == 0
		},
	}
}

func binaryLE(v uint64) []byte {
	b := make([]byte, 8)
	for i := range b {
		b[i] = byte(v >> (8 * i)) //nolint:gosec
	}

	return b
}
