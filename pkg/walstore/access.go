package walstore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/calvinalkan/recdb/pkg/fs"
)

// FileAccess is the set of file operations a [Store] performs on its
// snapshot and WAL sidecar.
type FileAccess interface {
	// Resolve maps a configured filename to the path used on disk.
	Resolve(filename string) string
	EnsureParentDir(path string) error
	CanRead(path string) bool
	CanWrite(path string) bool
	// Delete removes path. A missing file is not an error.
	Delete(path string) error
	Stat(path string) (os.FileInfo, error)
	ReadFile(path string) ([]byte, error)
	// WriteFile replaces path atomically.
	WriteFile(path string, data []byte) error
	OpenAppend(path string) (fs.File, error)
	Open(path string) (fs.File, error)
}

// DataRoot resolves relative filenames against a root directory on an [fs.FS].
type DataRoot struct {
	root     string
	fs       fs.FS
	filePerm os.FileMode
	dirPerm  os.FileMode
}

// NewDataRoot returns a DataRoot below root. A nil fsys uses the real
// filesystem.
func NewDataRoot(root string, fsys fs.FS) *DataRoot {
	if fsys == nil {
		fsys = fs.NewReal()
	}

	if root == "" {
		root = "."
	}

	return &DataRoot{root: filepath.Clean(root), fs: fsys, filePerm: 0o644, dirPerm: 0o755}
}

// Root returns the cleaned root directory.
func (d *DataRoot) Root() string { return d.root }

// FS returns the underlying filesystem.
func (d *DataRoot) FS() fs.FS { return d.fs }

func (d *DataRoot) Resolve(filename string) string {
	if filepath.IsAbs(filename) {
		return filepath.Clean(filename)
	}

	return filepath.Join(d.root, filename)
}

func (d *DataRoot) EnsureParentDir(path string) error {
	dir := filepath.Dir(path)

	err := d.fs.MkdirAll(dir, d.dirPerm)
	if err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}

	return nil
}

func (d *DataRoot) CanRead(path string) bool {
	return d.fs.Access(path, fs.AccessRead) == nil
}

func (d *DataRoot) CanWrite(path string) bool {
	return d.fs.Access(path, fs.AccessWrite) == nil
}

func (d *DataRoot) Delete(path string) error {
	err := d.fs.Remove(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}

	return nil
}

func (d *DataRoot) Stat(path string) (os.FileInfo, error) {
	return d.fs.Stat(path)
}

func (d *DataRoot) ReadFile(path string) ([]byte, error) {
	return d.fs.ReadFile(path)
}

func (d *DataRoot) WriteFile(path string, data []byte) error {
	return d.fs.WriteFileAtomic(path, data, d.filePerm)
}

func (d *DataRoot) OpenAppend(path string) (fs.File, error) {
	return d.fs.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, d.filePerm)
}

func (d *DataRoot) Open(path string) (fs.File, error) {
	return d.fs.Open(path)
}

var _ FileAccess = (*DataRoot)(nil)
