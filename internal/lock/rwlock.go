package lock

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/antocuni/cffi-shm/internal/heap"
)

// RWLock pairs a write mutex with a reader-count mutex and an atomic
// reader counter. The reader path locks the reader-count mutex,
// increments the counter, locks the write mutex on the 0→1 transition,
// and releases the reader-count mutex; the symmetric unlock path
// releases the write mutex on the 1→0 transition. Starvation of writers
// by a continuous stream of readers is explicitly not prevented — that
// is contract, not a bug.
type RWLock struct {
	h          *heap.Heap
	writeMu    *Mutex
	countMu    *Mutex
	counterOff uint64
}

// NewRWLock allocates a fresh RWLock in h's RW sub-arena.
func NewRWLock(h *heap.Heap) (*RWLock, error) {
	writeMu, err := NewMutex(h)
	if err != nil {
		return nil, fmt.Errorf("allocate write mutex: %w", err)
	}

	countMu, err := NewMutex(h)
	if err != nil {
		return nil, fmt.Errorf("allocate reader-count mutex: %w", err)
	}

	counterOff, err := h.AllocateRW(4)
	if err != nil {
		return nil, fmt.Errorf("allocate reader counter: %w", err)
	}

	return &RWLock{h: h, writeMu: writeMu, countMu: countMu, counterOff: counterOff}, nil
}

// lockRobust acquires mu, transparently recovering from ErrOwnerDead.
// The sub-mutexes backing an RWLock are an implementation detail, not
// exposed directly to callers, so self-healing here is safe: nothing
// about the RWLock's external contract depends on the caller seeing
// ErrOwnerDead for its internal bookkeeping locks.
func lockRobust(mu *Mutex) error {
	err := mu.Acquire()
	if err == nil {
		return nil
	}

	if errors.Is(err, ErrOwnerDead) {
		mu.MakeConsistent()

		return nil
	}

	return err
}

func (l *RWLock) counter() *int32 {
	return ptrAt(l.h, l.counterOff)
}

// RdAcquire acquires the lock for reading.
func (l *RWLock) RdAcquire() error {
	if err := lockRobust(l.countMu); err != nil {
		return err
	}

	n := atomic.AddInt32(l.counter(), 1)
	if n == 1 {
		if err := lockRobust(l.writeMu); err != nil {
			_ = l.countMu.Release()

			return err
		}
	}

	return l.countMu.Release()
}

// RdRelease releases a read acquisition.
func (l *RWLock) RdRelease() error {
	if err := lockRobust(l.countMu); err != nil {
		return err
	}

	n := atomic.AddInt32(l.counter(), -1)
	if n == 0 {
		if err := l.writeMu.Release(); err != nil {
			_ = l.countMu.Release()

			return err
		}
	}

	return l.countMu.Release()
}

// WrAcquire acquires the lock for writing.
func (l *RWLock) WrAcquire() error {
	return lockRobust(l.writeMu)
}

// WrRelease releases a write acquisition.
func (l *RWLock) WrRelease() error {
	return l.writeMu.Release()
}
