package shmfs

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestRealExists(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "file.txt")

	fsys := NewReal()

	ok, err := fsys.Exists(path)
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}

	if ok {
		t.Fatalf("expected Exists to be false before creation")
	}

	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil { //nolint:gosec
		t.Fatalf("WriteFile: %v", err)
	}

	ok, err = fsys.Exists(path)
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}

	if !ok {
		t.Fatalf("expected Exists to be true after creation")
	}
}

func TestLockerTryLockExcludesSecondHolder(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "heap.bin")

	locker := NewLocker(NewReal())

	lock1, err := locker.TryLock(path)
	if err != nil {
		t.Fatalf("first TryLock: %v", err)
	}

	defer func() { _ = lock1.Close() }()

	if _, err := locker.TryLock(path); err == nil {
		t.Fatalf("expected second TryLock to fail while the first holds the lock")
	}

	if err := lock1.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	lock2, err := locker.TryLock(path)
	if err != nil {
		t.Fatalf("TryLock after release: %v", err)
	}

	defer func() { _ = lock2.Close() }()
}

func TestLockWithTimeoutFailsWhenStillHeld(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "heap.bin")

	locker := NewLocker(NewReal())

	lock1, err := locker.TryLock(path)
	if err != nil {
		t.Fatalf("TryLock: %v", err)
	}

	defer func() { _ = lock1.Close() }()

	start := time.Now()

	if _, err := locker.LockWithTimeout(path, 30*time.Millisecond); err == nil {
		t.Fatalf("expected timeout error while lock is held")
	}

	if time.Since(start) < 30*time.Millisecond {
		t.Fatalf("LockWithTimeout returned before its timeout elapsed")
	}
}

func TestManifestWriteReadRoundTrip(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "heap.bin")

	want := Manifest{
		Magic:      0x1234,
		Path:       path,
		SizeBytes:  4096,
		CreatedAt:  1700000000,
		RWMemBytes: 1024,
	}

	if err := WriteManifest(path, want); err != nil {
		t.Fatalf("WriteManifest: %v", err)
	}

	got, ok, err := ReadManifest(path)
	if err != nil {
		t.Fatalf("ReadManifest: %v", err)
	}

	if !ok {
		t.Fatalf("expected manifest to be found")
	}

	if got != want {
		t.Fatalf("round-trip mismatch: got %+v, want %+v", got, want)
	}
}

func TestReadManifestMissingReturnsFalse(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "never-written.bin")

	_, ok, err := ReadManifest(path)
	if err != nil {
		t.Fatalf("ReadManifest: %v", err)
	}

	if ok {
		t.Fatalf("expected ok=false for a manifest that was never written")
	}
}
