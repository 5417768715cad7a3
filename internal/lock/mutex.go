// Package lock implements the robust, recursive, cross-process mutex and
// the reader/writer lock built on top of it. Both live entirely inside
// the heap's RW sub-arena so their state is reachable at the same fixed
// address in every attached process.
//
// Neither type uses a real pthread mutex (no cgo): ownership and
// recursion are tracked in plain shared words, contention is resolved by
// spin + exponential backoff, and "owner death" is detected the
// POSIX-robust-mutex way — by checking liveness of the recorded owner
// pid with a signal-0 kill(2), the standard pure-Go substitute for
// PTHREAD_MUTEX_ROBUST (see DESIGN.md).
package lock

import (
	"errors"
	"fmt"
	"runtime"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"

	"github.com/antocuni/cffi-shm/internal/heap"
)

// ErrOwnerDead is returned by [Mutex.Acquire] when the previous owner
// died while holding the lock. The caller now owns the lock but must
// call [Mutex.MakeConsistent] before releasing it.
var ErrOwnerDead = errors.New("lock: owner died")

// ErrNotRecoverable is returned by [Mutex.Acquire] when a prior
// ErrOwnerDead was never resolved with MakeConsistent.
var ErrNotRecoverable = errors.New("lock: not recoverable")

// MutexSize is the number of RW-sub-arena bytes a Mutex occupies.
const MutexSize = 16

const (
	offState     = 0 // 0 = unlocked, 1 = locked
	offOwnerPID  = 4
	offRecursion = 8
	offConsist   = 12 // 1 = consistent, 0 = inconsistent (after owner death)
)

// Mutex is a recursive, pshared, robust mutex allocated in the RW
// sub-arena.
type Mutex struct {
	h   *heap.Heap
	off uint64
}

// NewMutex allocates a fresh, unlocked Mutex in h's RW sub-arena. Writer
// only (RW-sub-arena allocation is a writer operation).
func NewMutex(h *heap.Heap) (*Mutex, error) {
	off, err := h.AllocateRW(MutexSize)
	if err != nil {
		return nil, fmt.Errorf("allocate mutex: %w", err)
	}

	atomic.StoreInt32(ptrAt(h, off+offConsist), 1)

	return &Mutex{h: h, off: off}, nil
}

// FromOffset wraps an existing Mutex previously created with NewMutex,
// given its RW-sub-arena offset. Used when a container/struct pointer
// embeds a mutex whose storage was allocated elsewhere.
func FromOffset(h *heap.Heap, off uint64) *Mutex {
	return &Mutex{h: h, off: off}
}

// Offset returns the mutex's offset in the heap, for embedding inside
// other shared structures.
func (m *Mutex) Offset() uint64 { return m.off }

func statePtr(h *heap.Heap, off uint64) *int32 {
	return ptrAt(h, off)
}

// Acquire blocks until the mutex is held by this process. Returns
// [ErrOwnerDead] if the previous owner died while holding it — the
// caller now owns the lock and must call [MakeConsistent] before
// [Release]. Returns [ErrNotRecoverable] if a previous ErrOwnerDead was
// never resolved.
func (m *Mutex) Acquire() error {
	self := int32(unix.Getpid()) //nolint:gosec

	state := statePtr(m.h, m.off)
	owner := ptrAt(m.h, m.off+offOwnerPID)
	recursion := ptrAt(m.h, m.off+offRecursion)

	attempt := 0

	for {
		if atomic.CompareAndSwapInt32(state, 0, 1) {
			atomic.StoreInt32(owner, self)
			atomic.StoreInt32(recursion, 1)

			return m.checkConsistency()
		}

		// Recursive re-entry: same owner already holds the lock.
		if atomic.LoadInt32(owner) == self && atomic.LoadInt32(state) == 1 {
			atomic.AddInt32(recursion, 1)

			return m.checkConsistency()
		}

		ownerPID := atomic.LoadInt32(owner)
		if ownerPID != 0 && !pidAlive(ownerPID) {
			// Previous owner died while holding the lock. Seize it by CASing
			// the owner field itself (expected == the dead pid we just
			// observed), so of several racing seizers only one wins; the
			// rest fall through to respin and re-check.
			if atomic.CompareAndSwapInt32(owner, ownerPID, self) {
				atomic.StoreInt32(recursion, 1)
				atomic.StoreInt32(ptrAt(m.h, m.off+offConsist), 0)

				return ErrOwnerDead
			}
		}

		spinBackoff(attempt)
		attempt++
	}
}

// checkConsistency returns ErrNotRecoverable if the mutex was left
// inconsistent by a prior unresolved owner death.
func (m *Mutex) checkConsistency() error {
	if atomic.LoadInt32(ptrAt(m.h, m.off+offConsist)) == 0 {
		return ErrNotRecoverable
	}

	return nil
}

// MakeConsistent clears the inconsistent flag after recovering from
// [ErrOwnerDead]. Must be called by the new owner before [Release].
func (m *Mutex) MakeConsistent() {
	atomic.StoreInt32(ptrAt(m.h, m.off+offConsist), 1)
}

// Release unlocks the mutex. Briefly yields the scheduler afterward to
// discourage starving waiting peers.
func (m *Mutex) Release() error {
	recursion := ptrAt(m.h, m.off+offRecursion)

	if left := atomic.AddInt32(recursion, -1); left > 0 {
		return nil
	}

	atomic.StoreInt32(ptrAt(m.h, m.off+offOwnerPID), 0)
	atomic.StoreInt32(statePtr(m.h, m.off), 0)

	runtime.Gosched()

	return nil
}

// spinBackoff sleeps for an exponentially increasing duration based on
// the attempt number.
func spinBackoff(attempt int) {
	if attempt == 0 {
		return
	}

	const (
		initial = 20 * time.Microsecond
		maxWait = 2 * time.Millisecond
	)

	backoff := initial << min(attempt-1, 16)
	if backoff > maxWait || backoff <= 0 {
		backoff = maxWait
	}

	time.Sleep(backoff)
}

// pidAlive reports whether pid still exists via a signal-0 kill(2),
// the standard way to probe process liveness without actually signaling
// it.
func pidAlive(pid int32) bool {
	if pid == 0 {
		return false
	}

	return unix.Kill(int(pid), 0) == nil
}
