package shmfs

import (
	"errors"
	"fmt"
	"syscall"
	"time"
)

// ErrWouldBlock is returned by [Locker.TryLock] when another process (or
// file descriptor) already holds the lock.
var ErrWouldBlock = errors.New("shmfs: lock would block")

// Locker acquires advisory exclusive locks on `<path>.lock` files, a
// separate-lockfile convention that keeps the locking protocol
// independent of the backing file's own open mode.
type Locker struct {
	fsys FS
}

// NewLocker returns a [Locker] backed by fsys.
func NewLocker(fsys FS) *Locker {
	return &Locker{fsys: fsys}
}

// Lock represents a held advisory lock. Release with [Lock.Close].
type Lock struct {
	file File
}

// TryLock attempts a non-blocking exclusive lock on path+".lock". Returns
// [ErrWouldBlock] if another holder is active.
func (l *Locker) TryLock(path string) (*Lock, error) {
	lockPath := path + ".lock"

	file, err := l.fsys.OpenFile(lockPath, syscall.O_CREAT|syscall.O_RDWR, filePerms)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}

	flockErr := syscall.Flock(int(file.Fd()), syscall.LOCK_EX|syscall.LOCK_NB)
	if flockErr != nil {
		_ = file.Close()

		if errors.Is(flockErr, syscall.EWOULDBLOCK) {
			return nil, ErrWouldBlock
		}

		return nil, fmt.Errorf("flock: %w", flockErr)
	}

	return &Lock{file: file}, nil
}

// LockWithTimeout retries [Locker.TryLock] until it succeeds or timeout
// elapses.
func (l *Locker) LockWithTimeout(path string, timeout time.Duration) (*Lock, error) {
	deadline := time.Now().Add(timeout)

	const retryInterval = 10 * time.Millisecond

	for {
		lock, err := l.TryLock(path)
		if err == nil {
			return lock, nil
		}

		if !errors.Is(err, ErrWouldBlock) {
			return nil, err
		}

		if time.Now().After(deadline) {
			return nil, fmt.Errorf("%w: %s", errLockTimeout, path)
		}

		time.Sleep(retryInterval)
	}
}

var errLockTimeout = errors.New("shmfs: lock timeout")

// Close releases the lock. It does not delete the lock file — the lock
// file persists across releases.
func (lk *Lock) Close() error {
	if lk == nil || lk.file == nil {
		return nil
	}

	_ = syscall.Flock(int(lk.file.Fd()), syscall.LOCK_UN)

	return lk.file.Close()
}

// filePerms is the mode used for created lock/manifest files.
const filePerms = 0o644
