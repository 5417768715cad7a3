package heap

import (
	"fmt"
	"os"
	"runtime"
	"time"
	"unsafe"

	"github.com/antocuni/cffi-shm/pkg/shmfs"
)

// Heap is a process-wide handle to the mapped backing file. Exactly one
// Heap is meant to exist per process; the root shm package enforces that
// by holding a single package-level instance and refusing a second
// Init/OpenReadonly (ErrWrongRole).
type Heap struct {
	role Role
	path string

	data []byte
	fd   int

	totalSize     uintptr
	rwArenaOffset uintptr
	rwArenaSize   uintptr

	// blockIndex is writer-local GC bookkeeping: sorted payload-start
	// offsets of every block ever bump-allocated. Readers never allocate
	// or collect, so this never needs to live in shared memory.
	blockIndex []uint64
}

// InitOptions configures [Init].
type InitOptions struct {
	// TotalSize is the fixed size of the backing file/mapping. Defaults
	// to [DefaultTotalSize].
	TotalSize uintptr
	// RWArenaSize is the fixed size of the RW sub-arena. Defaults to
	// [DefaultRWArenSize].
	RWArenaSize uintptr
}

// Init creates (or truncates) the backing file at path, maps it
// read-write at Base, and transitions the role to Writer. Only legal
// from RoleUninitialised.
func Init(path string, opts InitOptions) (*Heap, error) {
	if opts.TotalSize == 0 {
		opts.TotalSize = DefaultTotalSize
	}

	if opts.RWArenaSize == 0 {
		opts.RWArenaSize = DefaultRWArenSize
	}

	if opts.TotalSize <= uintptr(objectArenaOffset)+opts.RWArenaSize {
		return nil, fmt.Errorf("%w: total size %d too small for layout", ErrMapFailed, opts.TotalSize)
	}

	fsys := shmfs.NewReal()

	file, err := fsys.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("%w: open backing file: %w", ErrMapFailed, err)
	}
	defer func() { _ = file.Close() }()

	if err := file.Truncate(int64(opts.TotalSize)); err != nil { //nolint:gosec
		return nil, fmt.Errorf("%w: truncate backing file: %w", ErrMapFailed, err)
	}

	data, err := mmapFixed(int(file.Fd()), Base, opts.TotalSize, protReadWrite)
	if err != nil {
		return nil, err
	}

	h := &Heap{
		role:          RoleWriter,
		path:          path,
		data:          data,
		fd:            int(file.Fd()),
		totalSize:     opts.TotalSize,
		rwArenaOffset: opts.TotalSize - opts.RWArenaSize,
		rwArenaSize:   opts.RWArenaSize,
	}

	if err := assertNoLinkerDrift(); err != nil {
		_ = munmap(data)

		return nil, err
	}

	h.setArenaTop(uint64(objectArenaOffset))
	h.setRWArenaTop(uint64(h.rwArenaOffset))

	pathOff, err := h.allocateLocked(uint64(len(path) + 1))
	if err != nil {
		_ = munmap(data)

		return nil, fmt.Errorf("allocate path string: %w", err)
	}

	copy(h.data[pathOff:pathOff+uint64(len(path))], path)
	h.data[pathOff+uint64(len(path))] = 0

	h.writeHeapInfo(heapInfo{
		Magic:     Magic,
		PathPtr:   int64(pathOff), //nolint:gosec
		RWMemPtr:  int64(h.rwArenaOffset),
		RWMemSize: uint64(h.rwArenaSize),
	})

	if err := shmfs.WriteManifest(path, shmfs.Manifest{
		Magic:      Magic,
		Path:       path,
		SizeBytes:  int64(opts.TotalSize), //nolint:gosec
		CreatedAt:  time.Now().Unix(),
		RWMemBytes: uint64(opts.RWArenaSize),
	}); err != nil {
		_ = munmap(data)

		return nil, fmt.Errorf("%w: write manifest: %w", ErrMapFailed, err)
	}

	runtime.SetFinalizer(h, (*Heap).finalize)

	return h, nil
}

// OpenReadonly maps an existing backing file at Base with read-only
// protection, verifies HeapInfo.Magic, and transitions the role to
// Reader. The RW sub-arena is re-marked read-write immediately after so
// locks stay usable — only the object arena and GC metadata stay
// read-only. Only legal from RoleUninitialised.
func OpenReadonly(path string) (*Heap, error) {
	fsys := shmfs.NewReal()

	if m, ok, err := shmfs.ReadManifest(path); err == nil && ok && m.Magic != Magic {
		return nil, ErrBadBackingFile
	}

	// Opened read-write so the shared mapping may later be mprotect'ed
	// writable for the RW sub-arena; the mapping itself starts read-only.
	file, err := fsys.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: open backing file: %w", ErrMapFailed, err)
	}
	defer func() { _ = file.Close() }()

	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("%w: stat backing file: %w", ErrMapFailed, err)
	}

	size := uintptr(info.Size()) //nolint:gosec
	if size < uintptr(objectArenaOffset) {
		return nil, ErrBadBackingFile
	}

	data, err := mmapFixed(int(file.Fd()), Base, size, protReadOnly)
	if err != nil {
		return nil, err
	}

	h := &Heap{
		role:      RoleReader,
		path:      path,
		data:      data,
		fd:        int(file.Fd()),
		totalSize: size,
	}

	info2 := h.readHeapInfo()
	if info2.Magic != Magic {
		_ = munmap(data)

		return nil, ErrBadBackingFile
	}

	h.rwArenaOffset = uintptr(info2.RWMemPtr) //nolint:gosec
	h.rwArenaSize = uintptr(info2.RWMemSize)  //nolint:gosec

	if h.rwArenaOffset+h.rwArenaSize > size {
		_ = munmap(data)

		return nil, ErrBadBackingFile
	}

	if err := mprotectRange(h.rwArenaOffset, h.rwArenaSize, protReadWrite); err != nil {
		_ = munmap(data)

		return nil, fmt.Errorf("%w: %w", ErrMapFailed, err)
	}

	runtime.SetFinalizer(h, (*Heap).finalize)

	return h, nil
}

// Close unmaps the heap. Safe to call multiple times.
func (h *Heap) Close() error {
	if h.data == nil {
		return nil
	}

	err := munmap(h.data)
	h.data = nil
	runtime.SetFinalizer(h, nil)

	return err
}

func (h *Heap) finalize() {
	_ = h.Close()
}

// Role reports the current role state.
func (h *Heap) Role() Role { return h.role }

// Path returns the backing-file path the heap was opened with.
func (h *Heap) Path() string { return h.path }

// IsHeapPointer is a constant-time predicate: any offset that falls
// within the mapped range is considered a heap pointer. This is
// intentionally weaker than the conservative collector's
// isLiveBlockStart check — IsHeapPointer answers "could this
// conceivably be a pointer into this heap", not "is this a currently
// live object".
func (h *Heap) IsHeapPointer(offset uint64) bool {
	return offset != 0 && offset < uint64(h.totalSize)
}

// Protect marks the object arena and GC metadata no-access. Available to
// both writer and reader roles — readers use it to assert quiescence in
// tests, the writer uses it to catch stray mutation bugs.
func (h *Heap) Protect() error {
	if h.role == RoleUninitialised {
		return ErrWrongRole
	}

	return mprotectRange(0, h.rwArenaOffset, protNone)
}

// Unprotect restores the object arena and GC metadata to their
// role-appropriate protection (read-write for the writer, read-only for
// readers).
func (h *Heap) Unprotect() error {
	prot := protReadOnly
	if h.role == RoleWriter {
		prot = protReadWrite
	}

	switch h.role {
	case RoleUninitialised:
		return ErrWrongRole
	case RoleWriter, RoleReader:
		return mprotectRange(0, h.rwArenaOffset, prot)
	default:
		return ErrWrongRole
	}
}

// Bytes exposes the raw mapped region for components (containers,
// field-spec engine, hashtable) that need direct byte access. Offsets
// into it are relative to Base.
func (h *Heap) Bytes() []byte { return h.data }

// RWArenaBounds returns the RW sub-arena's [offset, offset+size) range.
func (h *Heap) RWArenaBounds() (offset, size uintptr) {
	return h.rwArenaOffset, h.rwArenaSize
}

// assertNoLinkerDrift is a load-time sanity check that guards against
// the fixed heap range colliding with addresses the Go runtime has
// already reserved for itself: it confirms the address of a stack-local
// variable (a proxy for "where Go's own address space currently lives")
// falls well outside [Base, Base+maxHeapSpan).
func assertNoLinkerDrift() error {
	var probe byte

	addr := uintptr(unsafe.Pointer(&probe))

	const maxHeapSpan = uintptr(1) << 32 // generous upper bound across all configs

	if addr >= Base && addr < Base+maxHeapSpan {
		return errLinkerDriftGuard
	}

	return nil
}
