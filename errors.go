// Package shm is the single public entry point: a typed,
// garbage-collected, cross-process shared-memory heap. A writer process
// calls [Init] to create and map the backing file; reader processes
// call [OpenReadonly] to attach to it read-only. Both then build typed
// containers — structs, lists, deques, dicts, sets — through the type
// registry ([RegisterType], [TypeOf], [DefineStruct], [NewList], ...),
// whose pointers live entirely inside the mapped heap and therefore
// remain valid, at the same address, in every attached process.
package shm

import (
	"errors"

	"github.com/antocuni/cffi-shm/internal/container"
	"github.com/antocuni/cffi-shm/internal/converter"
	"github.com/antocuni/cffi-shm/internal/heap"
	"github.com/antocuni/cffi-shm/internal/lock"
)

// Sentinel errors, the same taxonomy the host API surface promises.
// These are literal aliases onto the owning internal package's sentinel,
// so errors.Is works whether a caller compares against shm.ErrWrongRole
// or (if it ever reaches through) the internal error directly.
var (
	ErrWrongRole      = heap.ErrWrongRole
	ErrMapFailed      = heap.ErrMapFailed
	ErrOutOfMemory    = heap.ErrOutOfMemory
	ErrNoRootSpace    = heap.ErrNoRootSpace
	ErrBadBackingFile = heap.ErrBadBackingFile

	ErrKeyNotFound    = container.ErrKeyNotFound
	ErrNonHashableKey = container.ErrNonHashableKey
	ErrImmutable      = container.ErrImmutable
	ErrIndexOutOfRange = container.ErrIndexOutOfRange
	ErrEmpty          = container.ErrEmpty

	ErrOwnerDead      = lock.ErrOwnerDead
	ErrNotRecoverable = lock.ErrNotRecoverable

	ErrBadHostValue = converter.ErrBadHostValue
)

// ErrUnknownType is returned when a type name is referenced before
// being registered with [RegisterType] or [DefineStruct].
var ErrUnknownType = errors.New("shm: unknown type")
