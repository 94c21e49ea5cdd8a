package fs

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"golang.org/x/sys/unix"
)

// ErrWouldBlock is returned by [TryLockFile] when another process holds the lock.
var ErrWouldBlock = errors.New("lock would block")

// FileLock is a held exclusive flock(2) on a lock file.
//
// flock is advisory and applies to the open file, not the pathname. The lock
// file is never removed, so every owner locks the same inode.
type FileLock struct {
	mu   sync.Mutex
	file *os.File
}

// TryLockFile takes a non-blocking exclusive lock on path, creating the file if
// needed. Returns [ErrWouldBlock] if the lock is held elsewhere.
//
// This operates on the real filesystem only; in-memory filesystems have no
// other processes to exclude.
func TryLockFile(path string) (*FileLock, error) {
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}

	for {
		err = unix.Flock(int(file.Fd()), unix.LOCK_EX|unix.LOCK_NB)
		if !errors.Is(err, unix.EINTR) {
			break
		}
	}

	if err != nil {
		_ = file.Close()

		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, fmt.Errorf("%w: %s", ErrWouldBlock, path)
		}

		return nil, fmt.Errorf("flock %s: %w", path, err)
	}

	return &FileLock{file: file}, nil
}

// Close releases the lock and closes the file descriptor. Idempotent.
func (lk *FileLock) Close() error {
	lk.mu.Lock()
	defer lk.mu.Unlock()

	if lk.file == nil {
		return nil
	}

	unlockErr := unix.Flock(int(lk.file.Fd()), unix.LOCK_UN)
	closeErr := lk.file.Close()
	lk.file = nil

	if unlockErr != nil {
		unlockErr = fmt.Errorf("unlocking lock: %w", unlockErr)
	}

	if closeErr != nil {
		closeErr = fmt.Errorf("closing lock fd: %w", closeErr)
	}

	return errors.Join(unlockErr, closeErr)
}
