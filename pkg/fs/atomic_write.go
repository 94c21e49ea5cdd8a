package fs

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
)

const atomicWriteMaxAttempts = 10000

var atomicWriteCounter atomic.Uint64

// writeViaRename writes data to a temp file next to path, syncs it and
// renames it over path. The temp file is removed on every failure path.
func writeViaRename(fsys FS, path string, data []byte, perm os.FileMode) error {
	if path == "" {
		return errors.New("path is empty")
	}

	if perm == 0 {
		return errors.New("perm must be non-zero")
	}

	dir, base := filepath.Split(path)
	if base == "" || base == "." {
		return fmt.Errorf("path is invalid: %q", path)
	}

	if dir == "" {
		dir = "."
	}

	dir = filepath.Clean(dir)

	tmpFile, tmpPath, err := createAtomicTempFile(fsys, dir, base, perm)
	if err != nil {
		return err
	}

	cleanup := func() error {
		return removeTempFile(fsys, tmpPath)
	}

	_, writeErr := tmpFile.Write(data)
	if writeErr != nil {
		_ = tmpFile.Close()

		return errors.Join(fmt.Errorf("write temp file %q: %w", tmpPath, writeErr), cleanup())
	}

	syncErr := tmpFile.Sync()
	if syncErr != nil {
		_ = tmpFile.Close()

		return errors.Join(fmt.Errorf("sync temp file %q: %w", tmpPath, syncErr), cleanup())
	}

	closeErr := tmpFile.Close()
	if closeErr != nil {
		return errors.Join(fmt.Errorf("close temp file %q: %w", tmpPath, closeErr), cleanup())
	}

	renameErr := fsys.Rename(tmpPath, path)
	if renameErr != nil {
		return errors.Join(fmt.Errorf("rename: %w", renameErr), cleanup())
	}

	return nil
}

func createAtomicTempFile(fsys FS, dir, base string, perm os.FileMode) (File, string, error) {
	for range atomicWriteMaxAttempts {
		seq := atomicWriteCounter.Add(1)
		path := filepath.Join(dir, fmt.Sprintf(".%s.tmp-%d", base, seq))

		file, err := fsys.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, perm)
		if err == nil {
			return file, path, nil
		}

		if os.IsExist(err) {
			continue
		}

		return nil, "", fmt.Errorf("create temp file: %w", err)
	}

	return nil, "", fmt.Errorf("exhausted temp file attempts in %q", dir)
}

func removeTempFile(fsys FS, path string) error {
	err := fsys.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove temp file %q: %w", path, err)
	}

	return nil
}
