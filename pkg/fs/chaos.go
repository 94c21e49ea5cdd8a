package fs

import (
	"math/rand/v2"
	"os"
	"sync"
	"sync/atomic"
	"syscall"
)

// ChaosConfig controls fault injection probabilities.
// Each rate is a float64 from 0.0 (never) to 1.0 (always).
//
// The zero value disables all fault injection. Partially initialized configs
// only inject faults for the specified rates; unset fields default to 0.0.
type ChaosConfig struct {
	// OpenFailRate controls how often FS.Open and FS.OpenFile fail.
	// Returns EACCES for reads, ENOSPC for write opens.
	OpenFailRate float64

	// ReadFailRate controls how often FS.ReadFile fails with EIO.
	ReadFailRate float64

	// WriteFailRate controls how often FS.WriteFileAtomic and File.Write fail
	// with ENOSPC. A failed atomic write leaves the previous file untouched.
	WriteFailRate float64

	// RemoveFailRate controls how often FS.Remove fails with EBUSY.
	RemoveFailRate float64

	// StatFailRate controls how often FS.Stat and FS.Exists fail with EIO.
	StatFailRate float64

	// MkdirAllFailRate controls how often FS.MkdirAll fails with EACCES.
	MkdirAllFailRate float64

	// Match restricts injection to paths for which it returns true.
	// Nil matches every path.
	Match func(path string) bool
}

// ChaosMode controls how [Chaos] behaves.
type ChaosMode uint8

const (
	// ChaosModeActive injects faults according to [ChaosConfig].
	ChaosModeActive ChaosMode = iota
	// ChaosModeNoOp passes every operation through untouched.
	ChaosModeNoOp
)

// Chaos wraps an [FS] and injects failures.
//
// Injected errors are *os.PathError values wrapping a [syscall.Errno], so
// callers see the same shapes as real failures.
type Chaos struct {
	fs       FS
	mu       sync.Mutex
	cfg      ChaosConfig
	rng      *rand.Rand
	mode     atomic.Uint32
	injected atomic.Int64
}

// NewChaos wraps fsys. seed makes injection deterministic across runs.
func NewChaos(fsys FS, seed uint64, cfg ChaosConfig) *Chaos {
	if fsys == nil {
		panic("fs is nil")
	}

	return &Chaos{
		fs:  fsys,
		cfg: cfg,
		rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

// SetMode switches between injecting and passing through.
func (c *Chaos) SetMode(mode ChaosMode) {
	c.mode.Store(uint32(mode))
}

// SetConfig replaces the fault configuration.
func (c *Chaos) SetConfig(cfg ChaosConfig) {
	c.mu.Lock()
	c.cfg = cfg
	c.mu.Unlock()
}

// Injected returns how many faults were injected so far.
func (c *Chaos) Injected() int64 {
	return c.injected.Load()
}

func (c *Chaos) should(path string, rate func(ChaosConfig) float64) bool {
	if ChaosMode(c.mode.Load()) == ChaosModeNoOp {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	r := rate(c.cfg)
	if r <= 0 {
		return false
	}

	if c.cfg.Match != nil && !c.cfg.Match(path) {
		return false
	}

	if r < 1 && c.rng.Float64() >= r {
		return false
	}

	c.injected.Add(1)

	return true
}

func (c *Chaos) Open(path string) (File, error) {
	if c.should(path, func(cfg ChaosConfig) float64 { return cfg.OpenFailRate }) {
		return nil, &os.PathError{Op: "open", Path: path, Err: syscall.EACCES}
	}

	return c.fs.Open(path)
}

func (c *Chaos) OpenFile(path string, flag int, perm os.FileMode) (File, error) {
	if c.should(path, func(cfg ChaosConfig) float64 { return cfg.OpenFailRate }) {
		errno := syscall.EACCES
		if flag&(os.O_WRONLY|os.O_RDWR) != 0 {
			errno = syscall.ENOSPC
		}

		return nil, &os.PathError{Op: "open", Path: path, Err: errno}
	}

	f, err := c.fs.OpenFile(path, flag, perm)
	if err != nil {
		return nil, err
	}

	return &chaosFile{File: f, chaos: c, path: path}, nil
}

func (c *Chaos) ReadFile(path string) ([]byte, error) {
	if c.should(path, func(cfg ChaosConfig) float64 { return cfg.ReadFailRate }) {
		return nil, &os.PathError{Op: "read", Path: path, Err: syscall.EIO}
	}

	return c.fs.ReadFile(path)
}

func (c *Chaos) WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	if c.should(path, func(cfg ChaosConfig) float64 { return cfg.WriteFailRate }) {
		return &os.PathError{Op: "write", Path: path, Err: syscall.ENOSPC}
	}

	return c.fs.WriteFileAtomic(path, data, perm)
}

func (c *Chaos) MkdirAll(path string, perm os.FileMode) error {
	if c.should(path, func(cfg ChaosConfig) float64 { return cfg.MkdirAllFailRate }) {
		return &os.PathError{Op: "mkdir", Path: path, Err: syscall.EACCES}
	}

	return c.fs.MkdirAll(path, perm)
}

func (c *Chaos) Stat(path string) (os.FileInfo, error) {
	if c.should(path, func(cfg ChaosConfig) float64 { return cfg.StatFailRate }) {
		return nil, &os.PathError{Op: "stat", Path: path, Err: syscall.EIO}
	}

	return c.fs.Stat(path)
}

func (c *Chaos) Exists(path string) (bool, error) {
	if c.should(path, func(cfg ChaosConfig) float64 { return cfg.StatFailRate }) {
		return false, &os.PathError{Op: "stat", Path: path, Err: syscall.EIO}
	}

	return c.fs.Exists(path)
}

func (c *Chaos) Remove(path string) error {
	if c.should(path, func(cfg ChaosConfig) float64 { return cfg.RemoveFailRate }) {
		return &os.PathError{Op: "remove", Path: path, Err: syscall.EBUSY}
	}

	return c.fs.Remove(path)
}

func (c *Chaos) Rename(oldpath, newpath string) error {
	return c.fs.Rename(oldpath, newpath)
}

func (c *Chaos) Access(path string, mode uint32) error {
	return c.fs.Access(path, mode)
}

type chaosFile struct {
	File

	chaos *Chaos
	path  string
}

func (f *chaosFile) Write(p []byte) (int, error) {
	if f.chaos.should(f.path, func(cfg ChaosConfig) float64 { return cfg.WriteFailRate }) {
		return 0, &os.PathError{Op: "write", Path: f.path, Err: syscall.ENOSPC}
	}

	return f.File.Write(p)
}

// Compile-time interface check.
var _ FS = (*Chaos)(nil)
