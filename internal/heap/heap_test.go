package heap

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"testing"
	"time"
)

// Init/OpenReadonly both map at the fixed Base address, so these tests
// must never run in parallel with each other within this package.

func smallOpts() InitOptions {
	return InitOptions{TotalSize: 1 << 20, RWArenaSize: 1 << 16}
}

func TestInitThenAllocateThenClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "heap.bin")

	h, err := Init(path, smallOpts())
	if err != nil {
		t.Fatalf("Init: %v", err)
	}

	defer func() { _ = h.Close() }()

	if h.Role() != RoleWriter {
		t.Fatalf("expected RoleWriter, got %s", h.Role())
	}

	off, err := h.Allocate(64)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}

	if off == 0 {
		t.Fatalf("allocation returned NUL offset")
	}

	copy(h.Bytes()[off:off+5], []byte("hello"))

	if got := string(h.Bytes()[off : off+5]); got != "hello" {
		t.Fatalf("round-trip through Bytes() failed, got %q", got)
	}

	if !h.IsHeapPointer(off) {
		t.Fatalf("allocated offset should be a heap pointer")
	}

	if h.IsHeapPointer(0) {
		t.Fatalf("offset 0 must never be a heap pointer")
	}
}

func TestAllocateZerosFreedBlocksOnReuse(t *testing.T) {
	path := filepath.Join(t.TempDir(), "heap.bin")

	h, err := Init(path, smallOpts())
	if err != nil {
		t.Fatalf("Init: %v", err)
	}

	defer func() { _ = h.Close() }()

	off, err := h.Allocate(32)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}

	for i := range h.Bytes()[off : off+32] {
		h.Bytes()[off+uint64(i)] = 0xff //nolint:gosec
	}

	slot, err := h.RootAdd(off)
	if err != nil {
		t.Fatalf("RootAdd: %v", err)
	}

	h.RootRelease(slot)

	if err := h.Collect(); err != nil {
		t.Fatalf("Collect: %v", err)
	}

	off2, err := h.Allocate(32)
	if err != nil {
		t.Fatalf("second Allocate: %v", err)
	}

	for _, b := range h.Bytes()[off2 : off2+32] {
		if b != 0 {
			t.Fatalf("reused block from free list was not zeroed")
		}
	}
}

func TestCollectKeepsRootedBlocksAlive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "heap.bin")

	h, err := Init(path, smallOpts())
	if err != nil {
		t.Fatalf("Init: %v", err)
	}

	defer func() { _ = h.Close() }()

	off, err := h.Allocate(16)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}

	h.Bytes()[off] = 7

	if _, err := h.RootAdd(off); err != nil {
		t.Fatalf("RootAdd: %v", err)
	}

	if err := h.Collect(); err != nil {
		t.Fatalf("Collect: %v", err)
	}

	if h.Bytes()[off] != 7 {
		t.Fatalf("rooted block was reclaimed or corrupted by Collect")
	}
}

func TestDisableSuppressesCollection(t *testing.T) {
	path := filepath.Join(t.TempDir(), "heap.bin")

	h, err := Init(path, smallOpts())
	if err != nil {
		t.Fatalf("Init: %v", err)
	}

	defer func() { _ = h.Close() }()

	if err := h.Disable(); err != nil {
		t.Fatalf("Disable: %v", err)
	}

	before := h.TotalCollections()

	if err := h.Collect(); err != nil {
		t.Fatalf("Collect: %v", err)
	}

	if h.TotalCollections() != before {
		t.Fatalf("Collect ran while collector was disabled")
	}

	if err := h.Enable(); err != nil {
		t.Fatalf("Enable: %v", err)
	}

	if err := h.Collect(); err != nil {
		t.Fatalf("Collect: %v", err)
	}

	if h.TotalCollections() != before+1 {
		t.Fatalf("Collect did not run once re-enabled")
	}
}

func TestWriterOnlyOperationsRejectReaderRole(t *testing.T) {
	path := filepath.Join(t.TempDir(), "heap.bin")

	w, err := Init(path, smallOpts())
	if err != nil {
		t.Fatalf("Init: %v", err)
	}

	if err := w.Close(); err != nil {
		t.Fatalf("Close writer: %v", err)
	}

	r, err := OpenReadonly(path)
	if err != nil {
		t.Fatalf("OpenReadonly: %v", err)
	}

	defer func() { _ = r.Close() }()

	if r.Role() != RoleReader {
		t.Fatalf("expected RoleReader, got %s", r.Role())
	}

	if _, err := r.Allocate(8); err == nil {
		t.Fatalf("expected Allocate to fail for a reader")
	}

	if _, err := r.RootAdd(1); err == nil {
		t.Fatalf("expected RootAdd to fail for a reader")
	}
}

func TestOpenReadonlyRejectsBadMagic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "not-a-heap.bin")

	if err := writeJunkFile(path, int(objectArenaOffset)+4096); err != nil {
		t.Fatalf("writeJunkFile: %v", err)
	}

	if _, err := OpenReadonly(path); err == nil {
		t.Fatalf("expected OpenReadonly to reject a file with no valid magic")
	}
}

func writeJunkFile(path string, size int) error {
	buf := make([]byte, size)

	return os.WriteFile(path, buf, 0o644) //nolint:gosec
}

// TestCrossProcessReaderSeesWriterData re-invokes this test binary as a
// subprocess (the same os/exec-with-env-var-switch trick
// pkg/slotcache/concurrency_test.go uses) to prove a genuinely separate
// reader process observes bytes a writer process allocated and wrote,
// rather than two roles faked out in one process.
func TestCrossProcessReaderSeesWriterData(t *testing.T) {
	if os.Getenv("CFFI_SHM_HEAP_XPROC_HELPER") == "1" {
		path := os.Getenv("CFFI_SHM_HEAP_XPROC_PATH")

		off, err := strconv.ParseUint(os.Getenv("CFFI_SHM_HEAP_XPROC_OFFSET"), 10, 64)
		if err != nil {
			t.Fatalf("subprocess: parse offset: %v", err)
		}

		r, err := OpenReadonly(path)
		if err != nil {
			t.Fatalf("subprocess OpenReadonly: %v", err)
		}

		defer func() { _ = r.Close() }()

		if r.Role() != RoleReader {
			t.Fatalf("subprocess: expected RoleReader, got %s", r.Role())
		}

		if got := string(r.Bytes()[off : off+5]); got != "hello" {
			t.Fatalf("subprocess read %q, want %q", got, "hello")
		}

		return
	}

	path := filepath.Join(t.TempDir(), "heap.bin")

	w, err := Init(path, smallOpts())
	if err != nil {
		t.Fatalf("Init: %v", err)
	}

	defer func() { _ = w.Close() }()

	off, err := w.Allocate(64)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}

	copy(w.Bytes()[off:off+5], []byte("hello"))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, os.Args[0],
		"-test.run=^TestCrossProcessReaderSeesWriterData$", "-test.v")
	cmd.Env = append(os.Environ(),
		"CFFI_SHM_HEAP_XPROC_HELPER=1",
		"CFFI_SHM_HEAP_XPROC_PATH="+path,
		"CFFI_SHM_HEAP_XPROC_OFFSET="+strconv.FormatUint(off, 10),
	)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	runErr := cmd.Run()

	if ctx.Err() == context.DeadlineExceeded {
		t.Fatal("subprocess timed out reading writer-produced data")
	}

	if runErr != nil {
		t.Fatalf("subprocess failed: %v", runErr)
	}
}
