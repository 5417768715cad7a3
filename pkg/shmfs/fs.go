// Package shmfs provides the filesystem abstraction the heap uses to
// create/open its backing file and its sidecar manifest, plus advisory
// flock-based locking of a path (the heap itself takes no such lock).
//
// The main types are:
//   - [FS]: interface for filesystem operations
//   - [File]: interface for open files (satisfied by [os.File])
//   - [Real]: production implementation using the [os] package
//   - [Locker]/[Lock]: advisory flock-based mutual exclusion for a path
//
// Unlike a general-purpose filesystem abstraction, this package has no
// fault-injection or crash-simulation layer: the heap never performs an
// atomic-rename write workflow against its backing file (it mmaps the file
// directly and mutates through the mapping), so there is nothing here for
// a chaos/crash harness to exercise.
package shmfs

import (
	"io"
	"os"
)

// File represents an OS-backed open file descriptor.
//
// This interface is satisfied by [os.File]. The intent is os-like
// behavior: implementations must behave like [os.File], including that
// [File.Fd] returns a valid OS file descriptor usable with syscalls (for
// example [syscall.Flock] or `mmap`) until the file is closed.
//
// Implementations must be safe for concurrent use by multiple goroutines.
type File interface {
	io.ReadWriteCloser
	io.Seeker

	// Fd returns the file descriptor, used for mmap/flock.
	Fd() uintptr

	// Stat returns the [os.FileInfo] for this file.
	Stat() (os.FileInfo, error)

	// Truncate resizes the file. See [os.File.Truncate].
	Truncate(size int64) error
}

// FS defines the filesystem operations needed to create and open a heap
// backing file.
//
// Implementations must be safe for concurrent use by multiple goroutines.
type FS interface {
	// Open opens a file for reading. See [os.Open].
	Open(path string) (File, error)

	// OpenFile opens a file with specified flags and permissions. See
	// [os.OpenFile].
	OpenFile(path string, flag int, perm os.FileMode) (File, error)

	// Stat returns file info. See [os.Stat].
	Stat(path string) (os.FileInfo, error)

	// Exists reports whether a file exists.
	Exists(path string) (bool, error)

	// Remove deletes a file. See [os.Remove].
	Remove(path string) error
}

// Compile-time interface check.
var _ File = (*os.File)(nil)
