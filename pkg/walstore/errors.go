package walstore

import "errors"

var (
	// ErrClosed indicates a mutation was attempted on a closed store.
	ErrClosed = errors.New("walstore closed")

	// ErrDuplicateID is returned by create operations when the ID is already
	// present. The collection is left untouched.
	ErrDuplicateID = errors.New("duplicate id")

	// ErrEmptyID is returned when a record reports an empty ID.
	ErrEmptyID = errors.New("id is empty")

	// ErrNotAFile reports that the snapshot path exists but is not a regular file.
	ErrNotAFile = errors.New("path is not a file")

	// ErrAccessDenied reports missing read or write permission on the snapshot path.
	ErrAccessDenied = errors.New("access denied")

	// ErrWALCorrupt reports a WAL frame that cannot be interpreted: an
	// unknown action tag, an oversized length or an undecodable record.
	ErrWALCorrupt = errors.New("wal corrupt")

	// ErrRecovery wraps every failure of the startup WAL replay.
	ErrRecovery = errors.New("wal recovery")

	// ErrNotPersisted is returned by mutations whose change is applied in
	// memory but could not be made durable (neither via the WAL nor via a
	// direct snapshot write). The store keeps reporting pending changes and
	// retries on the next flush.
	ErrNotPersisted = errors.New("change not persisted")

	// ErrSchedulerClosed is returned by [DeferredScheduler.Register] after
	// [DeferredScheduler.Shutdown] started.
	ErrSchedulerClosed = errors.New("scheduler closed")

	// errMemoryOnly is the internal result of a write attempt on a store
	// without filename.
	errMemoryOnly = errors.New("store has no filename")
)
