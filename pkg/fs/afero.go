package fs

import (
	"fmt"
	"os"

	"github.com/spf13/afero"
)

// Afero implements [FS] on top of an [afero.Fs].
//
// Tests use it with [afero.NewMemMapFs] to keep store fixtures in memory.
// Atomic writes go through a temp file and [afero.Fs.Rename], which is atomic
// for the in-memory and OS backends.
type Afero struct {
	fs afero.Fs
}

// NewAfero wraps fsys. Panics if fsys is nil.
func NewAfero(fsys afero.Fs) *Afero {
	if fsys == nil {
		panic("fs is nil")
	}

	return &Afero{fs: fsys}
}

// NewMemory returns an [Afero] backed by a fresh in-memory filesystem.
func NewMemory() *Afero {
	return NewAfero(afero.NewMemMapFs())
}

// Unwrap returns the wrapped [afero.Fs].
func (a *Afero) Unwrap() afero.Fs {
	return a.fs
}

func (a *Afero) Open(path string) (File, error) {
	f, err := a.fs.Open(path)
	if err != nil {
		return nil, err
	}

	return f, nil
}

func (a *Afero) OpenFile(path string, flag int, perm os.FileMode) (File, error) {
	f, err := a.fs.OpenFile(path, flag, perm)
	if err != nil {
		return nil, err
	}

	return f, nil
}

func (a *Afero) ReadFile(path string) ([]byte, error) {
	return afero.ReadFile(a.fs, path)
}

func (a *Afero) WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	return writeViaRename(a, path, data, perm)
}

func (a *Afero) MkdirAll(path string, perm os.FileMode) error {
	return a.fs.MkdirAll(path, perm)
}

func (a *Afero) Stat(path string) (os.FileInfo, error) {
	return a.fs.Stat(path)
}

func (a *Afero) Exists(path string) (bool, error) {
	return afero.Exists(a.fs, path)
}

func (a *Afero) Remove(path string) error {
	return a.fs.Remove(path)
}

func (a *Afero) Rename(oldpath, newpath string) error {
	return a.fs.Rename(oldpath, newpath)
}

// Access derives permissions from the owner bits of the file mode, which is
// all an in-memory filesystem can offer.
func (a *Afero) Access(path string, mode uint32) error {
	info, err := a.fs.Stat(path)
	if err != nil {
		return err
	}

	perm := info.Mode().Perm()

	if mode&AccessRead != 0 && perm&0o400 == 0 {
		return fmt.Errorf("%w: %s", ErrPermission, path)
	}

	if mode&AccessWrite != 0 && perm&0o200 == 0 {
		return fmt.Errorf("%w: %s", ErrPermission, path)
	}

	return nil
}

// Compile-time interface check.
var _ FS = (*Afero)(nil)
