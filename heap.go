package shm

import (
	"fmt"
	"sync"

	"github.com/antocuni/cffi-shm/internal/heap"
)

// current is the process-wide heap handle. Only one may exist per
// process, enforced by guard below.
var (
	guardMu sync.Mutex
	current *heap.Heap
)

// InitOptions configures [Init].
type InitOptions = heap.InitOptions

// Init creates (or truncates) the backing file at path and transitions
// this process into the writer role. A second call with the same path
// is a no-op; a second call with a different path, or any call after
// [OpenReadonly], fails with [ErrWrongRole].
func Init(path string, opts InitOptions) error {
	guardMu.Lock()
	defer guardMu.Unlock()

	if current != nil {
		if current.Role() == heap.RoleWriter && current.Path() == path {
			return nil
		}

		return ErrWrongRole
	}

	h, err := heap.Init(path, opts)
	if err != nil {
		return err
	}

	current = h

	return nil
}

// OpenReadonly maps the backing file at path and transitions this
// process into the reader role. A second call with the same path is a
// no-op; any other call fails with [ErrWrongRole].
func OpenReadonly(path string) error {
	guardMu.Lock()
	defer guardMu.Unlock()

	if current != nil {
		if current.Role() == heap.RoleReader && current.Path() == path {
			return nil
		}

		return ErrWrongRole
	}

	h, err := heap.OpenReadonly(path)
	if err != nil {
		return err
	}

	current = h

	return nil
}

// Close unmaps the heap and resets the process back to the
// uninitialised role. Intended for tests; production readers/writers
// typically hold the mapping for the process's lifetime.
func Close() error {
	guardMu.Lock()
	defer guardMu.Unlock()

	if current == nil {
		return nil
	}

	err := current.Close()
	current = nil

	return err
}

func requireHeap() (*heap.Heap, error) {
	if current == nil {
		return nil, fmt.Errorf("%w: heap not initialised", ErrWrongRole)
	}

	return current, nil
}

// Allocate returns the offset of a zero-initialised block of at least n
// bytes. Writer only.
func Allocate(n int) (uint64, error) {
	h, err := requireHeap()
	if err != nil {
		return 0, err
	}

	return h.Allocate(n)
}

// AllocateArray returns the offset of a zero-initialised array of count
// elements of elemSize bytes each. Writer only.
func AllocateArray(elemSize, count int) (uint64, error) {
	h, err := requireHeap()
	if err != nil {
		return 0, err
	}

	return h.AllocateArray(elemSize, count)
}

// AllocateString copies data into a new NUL-terminated heap string.
// Writer only.
func AllocateString(data []byte) (uint64, error) {
	h, err := requireHeap()
	if err != nil {
		return 0, err
	}

	return h.AllocateString(data)
}

// AllocateRW bump-allocates n bytes from the RW sub-arena. Writer only.
func AllocateRW(n int) (uint64, error) {
	h, err := requireHeap()
	if err != nil {
		return 0, err
	}

	return h.AllocateRW(n)
}

// Collect runs one mark/sweep cycle. Writer only.
func Collect() error {
	h, err := requireHeap()
	if err != nil {
		return err
	}

	return h.Collect()
}

// Enable re-enables the collector, matching a prior [Disable]. Writer
// only.
func Enable() error {
	h, err := requireHeap()
	if err != nil {
		return err
	}

	return h.Enable()
}

// Disable nests one level of "collector disabled". Writer only.
func Disable() error {
	h, err := requireHeap()
	if err != nil {
		return err
	}

	return h.Disable()
}

// TotalCollections returns the number of completed Collect cycles.
func TotalCollections() (uint64, error) {
	h, err := requireHeap()
	if err != nil {
		return 0, err
	}

	return h.TotalCollections(), nil
}

// Protect marks the object arena no-access, for both roles.
func Protect() error {
	h, err := requireHeap()
	if err != nil {
		return err
	}

	return h.Protect()
}

// Unprotect restores the object arena to its role-appropriate
// protection.
func Unprotect() error {
	h, err := requireHeap()
	if err != nil {
		return err
	}

	return h.Unprotect()
}

// IsHeapPointer reports whether offset falls within the mapped heap.
func IsHeapPointer(offset uint64) (bool, error) {
	h, err := requireHeap()
	if err != nil {
		return false, err
	}

	return h.IsHeapPointer(offset), nil
}

// Root is a released-once handle to a root-table registration.
type Root struct {
	slot     int
	released bool
}

// RootAdd registers ptr in the root table, keeping it reachable across
// collections until the returned handle is released. Writer only.
func RootAdd(ptr uint64) (*Root, error) {
	h, err := requireHeap()
	if err != nil {
		return nil, err
	}

	slot, err := h.RootAdd(ptr)
	if err != nil {
		return nil, err
	}

	return &Root{slot: slot}, nil
}

// Release clears the root-table slot. Safe to call once; a second call
// is a no-op.
func (r *Root) Release() {
	if r == nil || r.released {
		return
	}

	if h, err := requireHeap(); err == nil {
		h.RootRelease(r.slot)
	}

	r.released = true
}

// theHeap exposes the current heap to sibling files in this package
// (registry.go, locks.go) without re-deriving the nil check everywhere.
func theHeap() (*heap.Heap, error) { return requireHeap() }
