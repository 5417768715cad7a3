package container

import "errors"

var (
	// ErrImmutable is returned when a mutating operation targets an
	// Immutable list or an immutable struct.
	ErrImmutable = errors.New("container: target is immutable")

	// ErrNotResizable is returned when Append targets a non-Resizable
	// list.
	ErrNotResizable = errors.New("container: list is not resizable")

	// ErrIndexOutOfRange is returned by index-based accessors.
	ErrIndexOutOfRange = errors.New("container: index out of range")

	// ErrKeyNotFound is returned by Set.Remove when the member is absent.
	ErrKeyNotFound = errors.New("container: key not found")

	// ErrNonHashableKey is returned when a dict is asked to key on a
	// mutable struct type, which carries no field-spec, and by Dict.Set
	// for a string key whose pointer is NUL.
	ErrNonHashableKey = errors.New("container: key type is not hashable")

	// ErrEmpty is returned by Deque.PopLeft on an empty deque.
	ErrEmpty = errors.New("container: deque is empty")

	// ErrNoSuchField is returned by Struct.Get/Set for an unknown field
	// name.
	ErrNoSuchField = errors.New("container: no such field")
)
