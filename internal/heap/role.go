package heap

import "fmt"

// Role is the writer/reader process-role state machine. A process
// starts Uninitialised and transitions exactly once, on the first
// successful Init or OpenReadonly call.
type Role int

const (
	// RoleUninitialised is the initial state of every process.
	RoleUninitialised Role = iota
	// RoleWriter is entered by a successful Init.
	RoleWriter
	// RoleReader is entered by a successful OpenReadonly.
	RoleReader
)

// String implements fmt.Stringer for diagnostics.
func (r Role) String() string {
	switch r {
	case RoleUninitialised:
		return "uninitialised"
	case RoleWriter:
		return "writer"
	case RoleReader:
		return "reader"
	default:
		return fmt.Sprintf("role(%d)", int(r))
	}
}

// requireRole returns ErrWrongRole unless the heap is currently in want.
func (h *Heap) requireRole(want Role) error {
	if h.role != want {
		return fmt.Errorf("%w: need %s, have %s", ErrWrongRole, want, h.role)
	}

	return nil
}
