package shm

import (
	"errors"

	"github.com/antocuni/cffi-shm/internal/lock"
)

// Mutex is a recursive, cross-process, robust mutex living in the
// heap's RW sub-arena.
type Mutex struct {
	inner *lock.Mutex
}

// NewMutex allocates a fresh, unlocked mutex. Writer only.
func NewMutex() (*Mutex, error) {
	h, err := theHeap()
	if err != nil {
		return nil, err
	}

	m, err := lock.NewMutex(h)
	if err != nil {
		return nil, err
	}

	return &Mutex{inner: m}, nil
}

// MutexFromOffset wraps a mutex previously created with [NewMutex],
// given its RW-sub-arena offset.
func MutexFromOffset(off uint64) (*Mutex, error) {
	h, err := theHeap()
	if err != nil {
		return nil, err
	}

	return &Mutex{inner: lock.FromOffset(h, off)}, nil
}

// Offset returns the mutex's RW-sub-arena offset.
func (m *Mutex) Offset() uint64 { return m.inner.Offset() }

// Acquire blocks until held by this process. May return [ErrOwnerDead]
// (recoverable via [Mutex.MakeConsistent]) or [ErrNotRecoverable].
func (m *Mutex) Acquire() error { return m.inner.Acquire() }

// Release unlocks the mutex.
func (m *Mutex) Release() error { return m.inner.Release() }

// MakeConsistent clears the inconsistent flag after recovering from
// [ErrOwnerDead].
func (m *Mutex) MakeConsistent() { m.inner.MakeConsistent() }

// Enter is a scoped-acquisition helper: acquire, run fn, always
// release. A recovered [ErrOwnerDead] is made consistent automatically
// before fn runs.
func (m *Mutex) Enter(fn func() error) error {
	err := m.Acquire()

	switch {
	case err == nil:
	case errorsIsOwnerDead(err):
		m.MakeConsistent()
	default:
		return err
	}

	defer func() { _ = m.Release() }()

	return fn()
}

// RWLock is a cross-process reader/writer lock: writers exclude readers
// and other writers; readers exclude only writers.
type RWLock struct {
	inner *lock.RWLock
}

// NewRWLock allocates a fresh RWLock. Writer only.
func NewRWLock() (*RWLock, error) {
	h, err := theHeap()
	if err != nil {
		return nil, err
	}

	rw, err := lock.NewRWLock(h)
	if err != nil {
		return nil, err
	}

	return &RWLock{inner: rw}, nil
}

func (l *RWLock) RdAcquire() error { return l.inner.RdAcquire() }
func (l *RWLock) RdRelease() error { return l.inner.RdRelease() }
func (l *RWLock) WrAcquire() error { return l.inner.WrAcquire() }
func (l *RWLock) WrRelease() error { return l.inner.WrRelease() }

// RdEnter is a scoped-acquisition helper for the read side.
func (l *RWLock) RdEnter(fn func() error) error {
	if err := l.RdAcquire(); err != nil {
		return err
	}

	defer func() { _ = l.RdRelease() }()

	return fn()
}

// WrEnter is a scoped-acquisition helper for the write side.
func (l *RWLock) WrEnter(fn func() error) error {
	if err := l.WrAcquire(); err != nil {
		return err
	}

	defer func() { _ = l.WrRelease() }()

	return fn()
}

func errorsIsOwnerDead(err error) bool {
	return errors.Is(err, ErrOwnerDead)
}
