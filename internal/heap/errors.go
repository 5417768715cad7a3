package heap

import "errors"

// Sentinel errors. These are re-exported by the root shm package under
// matching exported names (shm.ErrWrongRole, etc.) — kept here, not
// duplicated, so errors.Is works across the package boundary.
var (
	// ErrWrongRole is returned when an operation is attempted from a role
	// that is not permitted to perform it.
	ErrWrongRole = errors.New("heap: wrong role")

	// ErrMapFailed is returned when the backing file could not be mapped
	// at Base, or the mapping otherwise could not be established.
	ErrMapFailed = errors.New("heap: mmap failed")

	// ErrOutOfMemory is returned when the allocator cannot satisfy a
	// request from the object arena or the RW sub-arena.
	ErrOutOfMemory = errors.New("heap: out of memory")

	// ErrNoRootSpace is returned when every root-table slot is occupied.
	ErrNoRootSpace = errors.New("heap: no root table space")

	// ErrBadBackingFile is returned when the backing file's HeapInfo
	// magic does not match Magic, or the file is too small to contain a
	// valid header.
	ErrBadBackingFile = errors.New("heap: bad backing file")

	// errLinkerDriftGuard is the internal sentinel for the load-time
	// code-address sanity assertion. See assertNoLinkerDrift.
	errLinkerDriftGuard = errors.New("heap: allocator code address sanity check failed")
)
