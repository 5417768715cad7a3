package lock

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"github.com/antocuni/cffi-shm/internal/heap"
)

func newTestHeap(t *testing.T) *heap.Heap {
	t.Helper()

	path := filepath.Join(t.TempDir(), "heap.bin")

	h, err := heap.Init(path, heap.InitOptions{TotalSize: 1 << 20, RWArenaSize: 1 << 16})
	if err != nil {
		t.Fatalf("heap.Init: %v", err)
	}

	t.Cleanup(func() { _ = h.Close() })

	return h
}

func TestMutexAcquireReleaseRoundTrip(t *testing.T) {
	h := newTestHeap(t)

	m, err := NewMutex(h)
	if err != nil {
		t.Fatalf("NewMutex: %v", err)
	}

	if err := m.Acquire(); err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	if err := m.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}

	if err := m.Acquire(); err != nil {
		t.Fatalf("second Acquire: %v", err)
	}

	if err := m.Release(); err != nil {
		t.Fatalf("second Release: %v", err)
	}
}

func TestMutexIsRecursive(t *testing.T) {
	h := newTestHeap(t)

	m, err := NewMutex(h)
	if err != nil {
		t.Fatalf("NewMutex: %v", err)
	}

	if err := m.Acquire(); err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	// Same goroutine == same pid, so this must re-enter, not deadlock.
	if err := m.Acquire(); err != nil {
		t.Fatalf("recursive Acquire: %v", err)
	}

	if err := m.Release(); err != nil {
		t.Fatalf("first Release: %v", err)
	}

	if err := m.Release(); err != nil {
		t.Fatalf("second Release: %v", err)
	}
}

func TestMutexSamePIDGoroutineAcquireDoesNotError(t *testing.T) {
	h := newTestHeap(t)

	m, err := NewMutex(h)
	if err != nil {
		t.Fatalf("NewMutex: %v", err)
	}

	if err := m.Acquire(); err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	var order []string

	var mu sync.Mutex

	done := make(chan struct{})

	go func() {
		defer close(done)

		// This goroutine shares the test's pid, so the recursive
		// same-owner fast path would wrongly let it re-enter; this
		// exercise only proves Acquire doesn't error out, since pid-level
		// recursion detection cannot distinguish goroutines.
		if err := m.Acquire(); err != nil {
			t.Errorf("goroutine Acquire: %v", err)
		}

		mu.Lock()
		order = append(order, "goroutine")
		mu.Unlock()

		_ = m.Release()
	}()

	time.Sleep(10 * time.Millisecond)

	mu.Lock()
	order = append(order, "main")
	mu.Unlock()

	if err := m.Release(); err != nil {
		t.Fatalf("main Release: %v", err)
	}

	<-done

	if len(order) != 2 {
		t.Fatalf("expected 2 recorded events, got %d", len(order))
	}
}

func TestRWLockAllowsConcurrentReaders(t *testing.T) {
	h := newTestHeap(t)

	l, err := NewRWLock(h)
	if err != nil {
		t.Fatalf("NewRWLock: %v", err)
	}

	if err := l.RdAcquire(); err != nil {
		t.Fatalf("first RdAcquire: %v", err)
	}

	if err := l.RdAcquire(); err != nil {
		t.Fatalf("second RdAcquire: %v", err)
	}

	if err := l.RdRelease(); err != nil {
		t.Fatalf("first RdRelease: %v", err)
	}

	if err := l.RdRelease(); err != nil {
		t.Fatalf("second RdRelease: %v", err)
	}
}

func TestRWLockReadSucceedsAfterWriteRelease(t *testing.T) {
	h := newTestHeap(t)

	l, err := NewRWLock(h)
	if err != nil {
		t.Fatalf("NewRWLock: %v", err)
	}

	if err := l.WrAcquire(); err != nil {
		t.Fatalf("WrAcquire: %v", err)
	}

	if err := l.WrRelease(); err != nil {
		t.Fatalf("WrRelease: %v", err)
	}

	// After release, reading must succeed again.
	if err := l.RdAcquire(); err != nil {
		t.Fatalf("RdAcquire after write release: %v", err)
	}

	if err := l.RdRelease(); err != nil {
		t.Fatalf("RdRelease: %v", err)
	}
}

func TestOwnerDeathRecoveryMarksConsistent(t *testing.T) {
	h := newTestHeap(t)

	m, err := NewMutex(h)
	if err != nil {
		t.Fatalf("NewMutex: %v", err)
	}

	// Simulate a dead owner by forging a PID that cannot be alive (well
	// past any plausible live PID on the test host), then marking the
	// mutex locked under that PID.
	const deadPID = int32(99999991)

	if int32(unix.Getpid()) == deadPID { //nolint:gosec
		t.Skip("test pid collided with the forged dead pid")
	}

	atomic.StoreInt32(ptrAt(h, m.Offset()+offState), 1)
	atomic.StoreInt32(ptrAt(h, m.Offset()+offOwnerPID), deadPID)
	atomic.StoreInt32(ptrAt(h, m.Offset()+offConsist), 1)

	err = m.Acquire()
	if err == nil {
		t.Fatalf("expected ErrOwnerDead when seizing a dead owner's mutex")
	}

	m.MakeConsistent()

	if err := m.Release(); err != nil {
		t.Fatalf("Release after recovery: %v", err)
	}
}

// TestCrossProcessOwnerDeathIsRecovered re-invokes this test binary as a
// subprocess (the same os/exec-with-env-var-switch trick
// pkg/slotcache/concurrency_test.go uses): the subprocess acquires the
// mutex and exits without releasing it, leaving a real, now-dead pid
// recorded as owner. The parent then proves Acquire notices the owner is
// actually gone and seizes the lock, rather than exercising the recovery
// path against a forged pid that was never really alive.
func TestCrossProcessOwnerDeathIsRecovered(t *testing.T) {
	if os.Getenv("CFFI_SHM_LOCK_XPROC_HELPER") == "1" {
		path := os.Getenv("CFFI_SHM_LOCK_XPROC_PATH")

		off, err := strconv.ParseUint(os.Getenv("CFFI_SHM_LOCK_XPROC_OFFSET"), 10, 64)
		if err != nil {
			t.Fatalf("subprocess: parse offset: %v", err)
		}

		h, err := heap.OpenReadonly(path)
		if err != nil {
			t.Fatalf("subprocess OpenReadonly: %v", err)
		}

		defer func() { _ = h.Close() }()

		m := FromOffset(h, off)

		if err := m.Acquire(); err != nil {
			t.Fatalf("subprocess Acquire: %v", err)
		}

		// Deliberately exit without Release: the process dies while
		// still the recorded owner.
		return
	}

	h := newTestHeap(t)

	m, err := NewMutex(h)
	if err != nil {
		t.Fatalf("NewMutex: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, os.Args[0],
		"-test.run=^TestCrossProcessOwnerDeathIsRecovered$", "-test.v")
	cmd.Env = append(os.Environ(),
		"CFFI_SHM_LOCK_XPROC_HELPER=1",
		"CFFI_SHM_LOCK_XPROC_PATH="+h.Path(),
		"CFFI_SHM_LOCK_XPROC_OFFSET="+strconv.FormatUint(m.Offset(), 10),
	)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	runErr := cmd.Run()

	if ctx.Err() == context.DeadlineExceeded {
		t.Fatal("subprocess timed out acquiring the mutex")
	}

	if runErr != nil {
		t.Fatalf("subprocess failed: %v", runErr)
	}

	err = m.Acquire()
	if !errors.Is(err, ErrOwnerDead) {
		t.Fatalf("expected ErrOwnerDead after subprocess died holding the mutex, got %v", err)
	}

	m.MakeConsistent()

	if err := m.Release(); err != nil {
		t.Fatalf("Release after cross-process recovery: %v", err)
	}
}
