package lock

import (
	"unsafe"

	"github.com/antocuni/cffi-shm/internal/heap"
)

// ptrAt returns an *int32 aliasing the 4 bytes at offset off within h's
// mapped region, so lock state can be mutated with sync/atomic directly
// against shared memory rather than through a copy.
func ptrAt(h *heap.Heap, off uint64) *int32 {
	b := h.Bytes()

	return (*int32)(unsafe.Pointer(&b[off])) //nolint:gosec
}
