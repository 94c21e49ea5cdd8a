package walstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/calvinalkan/recdb/pkg/metrics"
)

func (s *Store[T]) initialRead(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.canWriteWAL = false

	defer func() { s.canWriteWAL = true }()

	filename := s.filename.Filename()
	if filename == "" {
		s.log.Warn("store has no filename; data is kept in memory only")

		return s.initialize("")
	}

	path, err := s.safePath(filename, true)
	if err != nil {
		s.observers.notifyRead(s.log, err, false, path)

		return fmt.Errorf("open store %s: %w", s.name, err)
	}

	_, err = s.access.Stat(path)

	switch {
	case errors.Is(err, os.ErrNotExist):
		err = s.initialize(path)
	case err == nil:
		err = s.read(path)
	default:
		err = fmt.Errorf("stat %s: %w", path, err)
		s.observers.notifyRead(s.log, err, false, path)
	}

	if err != nil {
		return fmt.Errorf("open store %s: %w", s.name, err)
	}

	return s.recoverWAL(ctx, walPathFor(path))
}

// initialize seeds a collection that has no snapshot yet.
func (s *Store[T]) initialize(path string) (err error) {
	defer func() {
		metrics.StoreInitTotal.WithLabelValues(s.name, metrics.Result(err)).Inc()

		if err != nil {
			s.observers.notifyRead(s.log, err, true, path)
		}
	}()

	depth := s.beginLocked()
	change, err := s.hooks.OnInit()
	s.endLocked(depth)

	if err != nil {
		return fmt.Errorf("init: %w", err)
	}

	s.stats.InitCount++
	s.stats.LastInit = s.now()

	if change.IsChanged() {
		s.setPending(true)
		s.persistLoaded("init")
	}

	s.log.Debug("initialized store")

	return nil
}

func (s *Store[T]) read(path string) (err error) {
	defer func() {
		metrics.StoreReadTotal.WithLabelValues(s.name, metrics.Result(err)).Inc()

		if err != nil {
			s.observers.notifyRead(s.log, err, false, path)
		}
	}()

	data, err := s.access.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	depth := s.beginLocked()
	change, err := s.hooks.OnRead(data)
	s.endLocked(depth)

	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	s.stats.ReadCount++
	s.stats.LastRead = s.now()

	if change.IsChanged() {
		s.setPending(true)
		s.persistLoaded("read")
	}

	s.log.WithField("path", path).WithField("bytes", len(data)).Debug("read snapshot")

	return nil
}

// persistLoaded writes state produced while opening. Failure is not fatal:
// pending stays set and the next mutation or flush retries.
func (s *Store[T]) persistLoaded(caller string) {
	err := s.writeAndResetPending(caller)
	if err != nil {
		s.log.WithError(err).Warn("store has pending changes after opening")
	}
}

func (s *Store[T]) recoverWAL(ctx context.Context, wal string) error {
	_, err := s.access.Stat(wal)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}

	if err != nil {
		err = fmt.Errorf("%w: stat %s: %w", ErrRecovery, wal, err)
		s.observers.notifyRead(s.log, err, false, wal)

		return err
	}

	log := s.log.WithField("wal", wal)
	log.Info("recovering from WAL file")

	replayed, err := s.replayWAL(ctx, wal)
	if err != nil {
		err = fmt.Errorf("%w: %s: %w", ErrRecovery, wal, err)
		log.WithError(err).Error("failed to recover from WAL file")
		s.observers.notifyRead(s.log, err, false, wal)

		return err
	}

	if replayed > 0 {
		s.setPending(true)

		err = s.writeAndResetPending("recovery")
		if err != nil {
			log.WithError(err).Error("failed to write recovered state; keeping WAL file")

			return nil
		}
	}

	s.deleteWAL(wal)
	log.WithField("records", replayed).Info("finished recovery from WAL file")

	return nil
}

func (s *Store[T]) replayWAL(ctx context.Context, wal string) (int, error) {
	f, err := s.access.Open(wal)
	if err != nil {
		return 0, fmt.Errorf("open: %w", err)
	}

	defer func() { _ = f.Close() }()

	r := newWALReader(f)
	replayed := 0

	for frameNo := 0; ; frameNo++ {
		if err := ctx.Err(); err != nil {
			return replayed, fmt.Errorf("canceled: %w", context.Cause(ctx))
		}

		frame, err := r.next()
		if errors.Is(err, io.EOF) {
			return replayed, nil
		}

		if errors.Is(err, errTornFrame) {
			s.log.WithField("wal", wal).WithField("frame", frameNo).
				Warn("WAL ends with an incomplete frame; ignoring it")

			return replayed, nil
		}

		if err != nil {
			return replayed, fmt.Errorf("frame %d: %w", frameNo, err)
		}

		for i, payload := range frame.records {
			rec, err := s.codec.UnmarshalRecord(payload)
			if err != nil {
				return replayed, fmt.Errorf("%w: frame %d (%s) record %d: %w", ErrWALCorrupt, frameNo, frame.action, i, err)
			}

			switch frame.action {
			case ActionCreate:
				err = s.hooks.OnRecoveryCreate(rec)
			case ActionUpdate:
				err = s.hooks.OnRecoveryUpdate(rec)
			case ActionDelete:
				err = s.hooks.OnRecoveryDelete(rec)
			}

			if err != nil {
				return replayed, fmt.Errorf("frame %d (%s) record %d: %w", frameNo, frame.action, i, err)
			}

			replayed++
			s.stats.ReplayedRecords++
			metrics.WALReplayedRecordsTotal.WithLabelValues(s.name, frame.action.String()).Inc()
		}
	}
}
