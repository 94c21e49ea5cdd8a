package walstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/calvinalkan/recdb/pkg/metrics"
)

// Config configures a [Store].
type Config[T any] struct {
	// Name identifies the store in logs, metrics and scheduler keys.
	// Defaults to the dynamic type of Hooks.
	Name string

	// Filename supplies the snapshot filename. Nil, or an empty name, makes
	// the store memory-only.
	Filename FilenameProvider

	// Access performs file I/O. Defaults to the real filesystem below the
	// working directory.
	Access FileAccess

	// Hooks and Codec are required.
	Hooks Hooks[T]
	Codec RecordCodec[T]

	// Scheduler runs deferred snapshot writes. Nil disables batching.
	Scheduler Scheduler

	// WaitingTime is the batching window. Zero disables batching: every
	// mutation rewrites the snapshot synchronously. See DefaultWaitingTime.
	WaitingTime time.Duration

	// Observers receives read and write failures. May be nil.
	Observers *Observers

	// Logger defaults to the logrus standard logger.
	Logger logrus.FieldLogger

	// Now defaults to time.Now.
	Now func() time.Time
}

// MarkFunc records a mutation of the given records. It must only be called
// inside [Store.Mutate].
type MarkFunc[T any] func(action Action, records ...T) error

// Store makes a collection durable. See the package documentation.
//
// A single RWMutex guards the collection and all store state: reads share it,
// mutations and snapshot writes hold it exclusively.
type Store[T any] struct {
	name      string
	filename  FilenameProvider
	access    FileAccess
	hooks     Hooks[T]
	codec     RecordCodec[T]
	scheduler Scheduler
	observers *Observers
	log       logrus.FieldLogger
	now       func() time.Time

	mu            sync.RWMutex
	pending       bool
	autoSave      bool
	autoSaveStack []bool
	canWriteWAL   bool
	waitingTime   time.Duration
	lastFilename  string
	closed        bool
	stats         Stats
}

// Open creates a store and loads its collection: the snapshot is read (or
// the collection initialized if there is none) and any WAL sidecar left by a
// previous process is replayed.
//
// Open fails if the snapshot cannot be read or the WAL cannot be replayed.
// A failure to write the recovered state is only logged; the WAL then stays
// on disk and the store reports pending changes.
func Open[T any](ctx context.Context, cfg Config[T]) (*Store[T], error) {
	if cfg.Hooks == nil {
		return nil, errors.New("walstore: hooks are nil")
	}

	if cfg.Codec == nil {
		return nil, errors.New("walstore: codec is nil")
	}

	if cfg.WaitingTime < 0 {
		return nil, fmt.Errorf("walstore: negative waiting time %s", cfg.WaitingTime)
	}

	s := &Store[T]{
		name:        cfg.Name,
		filename:    cfg.Filename,
		access:      cfg.Access,
		hooks:       cfg.Hooks,
		codec:       cfg.Codec,
		scheduler:   cfg.Scheduler,
		observers:   cfg.Observers,
		log:         cfg.Logger,
		now:         cfg.Now,
		waitingTime: cfg.WaitingTime,
		autoSave:    true,
		canWriteWAL: true,
	}

	if s.name == "" {
		s.name = fmt.Sprintf("%T", cfg.Hooks)
	}

	if s.filename == nil {
		s.filename = ConstantFilename("")
	}

	if s.access == nil {
		s.access = NewDataRoot(".", nil)
	}

	if s.log == nil {
		s.log = logrus.StandardLogger()
	}

	s.log = s.log.WithField("store", s.name)

	if s.now == nil {
		s.now = time.Now
	}

	err := s.initialRead(ctx)
	if err != nil {
		return nil, err
	}

	return s, nil
}

// Name returns the store name.
func (s *Store[T]) Name() string { return s.name }

// Mutate runs fn with the exclusive lock held. fn changes the collection and
// reports each change through mark, in order. The first error from fn is
// returned; mark errors are returned to fn, which decides whether to abort.
func (s *Store[T]) Mutate(fn func(mark MarkFunc[T]) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	return fn(func(action Action, records ...T) error {
		return s.markAsChanged(action, records)
	})
}

// View runs fn with the shared lock held.
func (s *Store[T]) View(fn func()) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	fn()
}

// HasPendingChanges reports whether memory diverged from the last snapshot.
func (s *Store[T]) HasPendingChanges() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.pending
}

// IsAutoSaveEnabled reports whether mutations currently persist.
func (s *Store[T]) IsAutoSaveEnabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.autoSave
}

// Stats returns a copy of the lifetime counters.
func (s *Store[T]) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.stats
}

// LastFilename returns the filename of the last write attempt, empty before
// the first one.
func (s *Store[T]) LastFilename() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.lastFilename
}

// WaitingTime returns the current batching window.
func (s *Store[T]) WaitingTime() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.waitingTime
}

// SetWaitingTime changes the batching window for subsequent mutations.
// Zero disables batching.
func (s *Store[T]) SetWaitingTime(d time.Duration) error {
	if d < 0 {
		return fmt.Errorf("walstore: negative waiting time %s", d)
	}

	s.mu.Lock()
	s.waitingTime = d
	s.mu.Unlock()

	return nil
}

// WriteToFileOnPendingChanges writes the snapshot if there are pending
// changes. Returns Unchanged if there was nothing to write.
func (s *Store[T]) WriteToFileOnPendingChanges() (Change, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.flushLocked("flush")
}

// Close flushes pending changes and deletes the WAL sidecar. Subsequent
// mutations fail with [ErrClosed]; reads keep working. Close is idempotent.
// If the flush fails, the WAL is kept for the next Open and the error is
// returned.
func (s *Store[T]) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.closed = true

	_, err := s.flushLocked("close")
	if err != nil {
		return err
	}

	if wal := s.walPath(); wal != "" {
		s.deleteWAL(wal)
	}

	return nil
}

func (s *Store[T]) flushLocked(caller string) (Change, error) {
	if !s.pending {
		return Unchanged, nil
	}

	err := s.persist(caller)
	if err != nil {
		return Unchanged, err
	}

	return Changed, nil
}

// persist writes the snapshot and deletes the WAL, whose frames the snapshot
// now covers.
func (s *Store[T]) persist(caller string) error {
	err := s.writeAndResetPending(caller)
	if err != nil {
		return err
	}

	if wal := s.walPath(); wal != "" {
		s.deleteWAL(wal)
	}

	return nil
}

// markAsChanged persists one mutation. Caller holds mu exclusively.
func (s *Store[T]) markAsChanged(action Action, records []T) error {
	s.setPending(true)

	if !s.autoSave {
		return nil
	}

	wal := s.walPath()

	if s.canWriteWAL && s.waitingTime > 0 && s.scheduler != nil && wal != "" {
		err := s.appendWAL(wal, action, records)
		if err == nil {
			err = s.scheduler.Register(s.jobKey(wal), s.waitingTime, s.scheduledWrite(wal))
			if err == nil {
				return nil
			}

			s.log.WithError(err).Warn("failed to schedule deferred write, writing directly")
		} else {
			s.log.WithError(err).WithField("wal", wal).Warn("failed to append to WAL, writing directly")
			s.observers.notifyWrite(s.log, err, wal, nil)
		}
	}

	return s.persist("markAsChanged(" + action.String() + ")")
}

func (s *Store[T]) appendWAL(path string, action Action, records []T) (err error) {
	defer func() {
		metrics.WALFramesTotal.WithLabelValues(s.name, action.String(), metrics.Result(err)).Inc()
	}()

	payloads := make([][]byte, 0, len(records))

	for _, rec := range records {
		data, err := s.codec.MarshalRecord(rec)
		if err != nil {
			return fmt.Errorf("marshal %s record: %w", action, err)
		}

		payloads = append(payloads, data)
	}

	var buf bytes.Buffer
	encodeFrame(&buf, action, payloads)

	f, err := s.access.OpenAppend(path)
	if err != nil {
		return fmt.Errorf("open wal: %w", err)
	}

	_, writeErr := f.Write(buf.Bytes())
	if writeErr == nil {
		writeErr = f.Sync()
	}

	closeErr := f.Close()

	if err := errors.Join(writeErr, closeErr); err != nil {
		return fmt.Errorf("append wal: %w", err)
	}

	s.stats.WALFrames++

	return nil
}

// scheduledWrite is the deferred task for one store/WAL pair. It keeps the
// WAL if the snapshot write fails.
func (s *Store[T]) scheduledWrite(wal string) func() {
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()

		if s.pending {
			err := s.writeAndResetPending("scheduled write")
			if err != nil {
				return
			}
		}

		s.deleteWAL(wal)
	}
}

func (s *Store[T]) jobKey(wal string) string {
	return s.name + "::" + wal
}

func (s *Store[T]) walPath() string {
	filename := s.filename.Filename()
	if filename == "" {
		return ""
	}

	return walPathFor(s.access.Resolve(filename))
}

func (s *Store[T]) deleteWAL(path string) {
	err := s.access.Delete(path)
	if err != nil {
		s.log.WithError(err).WithField("wal", path).Error("failed to delete WAL file")
	}
}

func (s *Store[T]) setPending(v bool) {
	s.pending = v

	g := 0.0
	if v {
		g = 1
	}

	metrics.StorePendingChanges.WithLabelValues(s.name).Set(g)
}

// writeAndResetPending writes the snapshot and clears pending on success.
// A memory-only store keeps pending set and reports no error.
func (s *Store[T]) writeAndResetPending(caller string) error {
	err := s.writeToFile()
	if err == nil {
		s.setPending(false)

		return nil
	}

	if errors.Is(err, errMemoryOnly) {
		return nil
	}

	s.log.WithError(err).WithField("caller", caller).Error("store still has pending changes")

	return fmt.Errorf("%w: %w", ErrNotPersisted, err)
}

func (s *Store[T]) writeToFile() (err error) {
	filename := s.filename.Filename()
	if filename == "" {
		s.log.Debug("store has no filename, not writing")

		return errMemoryOnly
	}

	if filename != s.lastFilename {
		if h, ok := s.hooks.(FilenameChangeHook); ok {
			h.OnFilenameChange(s.lastFilename, filename)
		}

		s.lastFilename = filename
	}

	start := s.now()
	path := s.access.Resolve(filename)

	var data []byte

	defer func() {
		metrics.StoreWriteTotal.WithLabelValues(s.name, metrics.Result(err)).Inc()

		if err != nil {
			s.stats.WriteFailures++
			s.log.WithError(err).WithField("path", path).Error("failed to write snapshot")
			s.observers.notifyWrite(s.log, err, path, data)

			return
		}

		took := s.now().Sub(start)
		s.stats.WriteCount++
		s.stats.LastWrite = s.now()
		s.stats.LastWriteTook = took
		metrics.StoreWriteSeconds.WithLabelValues(s.name).Observe(took.Seconds())
		metrics.StoreWriteBytesTotal.WithLabelValues(s.name).Add(float64(len(data)))
	}()

	path, err = s.safePath(filename, false)
	if err != nil {
		return err
	}

	data, err = s.hooks.CreateWriteData()
	if err != nil {
		return fmt.Errorf("create write data: %w", err)
	}

	if h, ok := s.hooks.(BeforeWriteHook); ok {
		err = h.BeforeWrite(filename, path)
		if err != nil {
			return fmt.Errorf("before write: %w", err)
		}
	}

	err = s.access.WriteFile(path, data)
	if err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}

	s.log.WithField("path", path).WithField("bytes", len(data)).Debug("wrote snapshot")

	return nil
}

// safePath resolves filename and checks it can be read (or written). A
// missing file is fine; its parent directory is created.
func (s *Store[T]) safePath(filename string, read bool) (string, error) {
	path := s.access.Resolve(filename)

	info, err := s.access.Stat(path)

	switch {
	case err == nil:
		if info.IsDir() {
			return path, fmt.Errorf("%w: %s", ErrNotAFile, path)
		}

		if read && !s.access.CanRead(path) {
			return path, fmt.Errorf("%w: cannot read %s", ErrAccessDenied, path)
		}

		if !read && !s.access.CanWrite(path) {
			return path, fmt.Errorf("%w: cannot write %s", ErrAccessDenied, path)
		}
	case errors.Is(err, os.ErrNotExist):
		err = s.access.EnsureParentDir(path)
		if err != nil {
			return path, err
		}
	default:
		return path, fmt.Errorf("stat %s: %w", path, err)
	}

	return path, nil
}
