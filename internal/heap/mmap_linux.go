//go:build linux

package heap

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// mmapFixed maps size bytes of fd at exactly addr. Unlike [unix.Mmap],
// which always lets the kernel choose the address, this goes straight to
// the mmap(2) syscall with MAP_FIXED so the mapping lands at a
// compile-time-known address in every attached process — the
// precondition the rest of the package relies on for storing raw
// pointers inside shared objects.
//
// Returns ErrMapFailed if the kernel honored MAP_FIXED but picked a
// different page (should not happen) or if the syscall itself failed.
func mmapFixed(fd int, addr, size uintptr, prot int) ([]byte, error) {
	ret, _, errno := unix.Syscall6(
		unix.SYS_MMAP,
		addr,
		size,
		uintptr(prot),
		uintptr(unix.MAP_SHARED|unix.MAP_FIXED),
		uintptr(fd),
		0,
	)
	if errno != 0 {
		return nil, fmt.Errorf("%w: mmap: %w", ErrMapFailed, errno)
	}

	if ret != addr {
		// MAP_FIXED is documented to either land exactly at addr or fail;
		// this branch is a defensive double-check of that contract.
		_, _, _ = unix.Syscall(unix.SYS_MUNMAP, ret, size, 0)

		return nil, fmt.Errorf("%w: mapped at %#x, wanted %#x", ErrMapFailed, ret, addr)
	}

	return unsafe.Slice((*byte)(unsafe.Pointer(addr)), int(size)), nil //nolint:gosec // size is caller-controlled
}

// munmap releases a mapping previously returned by mmapFixed.
func munmap(data []byte) error {
	if len(data) == 0 {
		return nil
	}

	addr := uintptr(unsafe.Pointer(&data[0]))

	err := unix.Munmap(unsafe.Slice((*byte)(unsafe.Pointer(addr)), len(data)))
	if err != nil {
		return fmt.Errorf("munmap: %w", err)
	}

	return nil
}

// mprotectRange changes protection on the page range starting at
// Base+offset spanning length bytes.
func mprotectRange(offset, length uintptr, prot int) error {
	data := unsafe.Slice((*byte)(unsafe.Pointer(Base+offset)), int(length)) //nolint:gosec

	err := unix.Mprotect(data, prot)
	if err != nil {
		return fmt.Errorf("mprotect: %w", err)
	}

	return nil
}

// protReadWrite and protReadOnly name the two protection modes the
// package ever requests, plus protNone used by readers to assert
// quiescence — page-protection is available to readers too, not just
// the writer.
const (
	protReadWrite = unix.PROT_READ | unix.PROT_WRITE
	protReadOnly  = unix.PROT_READ
	protNone      = unix.PROT_NONE
)

// pidAlive reports whether pid still exists. kill(pid, 0) delivers no
// signal but still performs the existence check. The robust mutex in
// internal/lock uses its own copy of this check, not this function.
func pidAlive(pid int32) bool {
	err := unix.Kill(int(pid), 0)

	return err == nil
}
