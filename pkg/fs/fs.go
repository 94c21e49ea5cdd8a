// Package fs provides the filesystem abstraction used by walstore.
//
// The main types are:
//   - [FS]: interface for filesystem operations
//   - [File]: interface for open files (satisfied by [os.File] and afero files)
//   - [Real]: production implementation using the [os] package
//   - [Afero]: adapter over any [afero.Fs], in-memory filesystems in tests
//   - [Chaos]: testing implementation that injects failures
//
// Example usage:
//
//	fsys := fs.NewReal()
//	err := fsys.WriteFileAtomic("notes.json", data, 0o644)
//	if err != nil {
//	    return err
//	}
package fs

import (
	"errors"
	"io"
	"os"
)

// Access modes for [FS.Access]. Values match access(2).
const (
	AccessRead  uint32 = 0x4
	AccessWrite uint32 = 0x2
)

// ErrPermission is returned by [FS.Access] when the requested access is not granted.
var ErrPermission = errors.New("permission denied")

// File represents an open file.
//
// This interface is satisfied by [os.File] and by afero files, and can be
// used with all standard library functions that accept [io.Reader],
// [io.Writer] or [io.Closer].
type File interface {
	io.ReadWriteCloser

	// Stat returns the [os.FileInfo] for this file. See [os.File.Stat].
	Stat() (os.FileInfo, error)

	// Sync commits the file's contents to disk. See [os.File.Sync].
	Sync() error
}

// FS defines the filesystem operations needed to keep a snapshot file and its
// WAL sidecar durable.
//
// Paths use OS semantics (like the os package and path/filepath), not the
// slash-separated paths used by the standard library io/fs package.
//
// Implementations must be safe for concurrent use by multiple goroutines.
type FS interface {
	// Open opens a file for reading. See [os.Open].
	Open(path string) (File, error)

	// OpenFile opens a file with specified flags and permissions. See [os.OpenFile].
	// The WAL writer uses os.O_WRONLY|os.O_CREATE|os.O_APPEND.
	OpenFile(path string, flag int, perm os.FileMode) (File, error)

	// ReadFile reads an entire file into memory. See [os.ReadFile].
	ReadFile(path string) ([]byte, error)

	// WriteFileAtomic replaces path with data so that readers observe either
	// the old or the new content, never a truncated mix.
	WriteFileAtomic(path string, data []byte, perm os.FileMode) error

	// MkdirAll creates a directory and all parents. See [os.MkdirAll].
	MkdirAll(path string, perm os.FileMode) error

	// Stat returns file info. See [os.Stat].
	// Returns [os.ErrNotExist] if file doesn't exist.
	Stat(path string) (os.FileInfo, error)

	// Exists reports whether a file or directory exists.
	// Returns (false, nil) if not found, (false, err) on other errors.
	Exists(path string) (bool, error)

	// Remove deletes a file or empty directory. See [os.Remove].
	Remove(path string) error

	// Rename moves/renames a file. See [os.Rename].
	Rename(oldpath, newpath string) error

	// Access checks whether the calling process may read and/or write path.
	// mode is a combination of [AccessRead] and [AccessWrite].
	// Returns an error wrapping [ErrPermission] if access is denied.
	Access(path string, mode uint32) error
}

// Compile-time interface check.
var _ File = (*os.File)(nil)
