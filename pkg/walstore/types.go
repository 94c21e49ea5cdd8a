package walstore

import (
	"fmt"
	"time"
)

// DefaultWaitingTime is the batching window used when callers have no
// opinion. Config.WaitingTime itself treats zero as "batching disabled".
const DefaultWaitingTime = 10 * time.Second

// Action is the kind of mutation recorded in a WAL frame.
type Action uint8

const (
	ActionCreate Action = iota + 1
	ActionUpdate
	ActionDelete
)

// String returns the tag written to WAL frames.
func (a Action) String() string {
	switch a {
	case ActionCreate:
		return "create"
	case ActionUpdate:
		return "update"
	case ActionDelete:
		return "delete"
	default:
		return fmt.Sprintf("action(%d)", uint8(a))
	}
}

func parseAction(tag string) (Action, error) {
	switch tag {
	case "create":
		return ActionCreate, nil
	case "update":
		return ActionUpdate, nil
	case "delete":
		return ActionDelete, nil
	default:
		return 0, fmt.Errorf("%w: unknown action tag %q", ErrWALCorrupt, tag)
	}
}

// Change reports whether an operation modified state.
type Change bool

const (
	Unchanged Change = false
	Changed   Change = true
)

// IsChanged reports c == Changed.
func (c Change) IsChanged() bool { return bool(c) }

// Or returns Changed if either c or other is Changed.
func (c Change) Or(other Change) Change { return c || other }

// RecordCodec serializes a single record into a WAL payload and back.
type RecordCodec[T any] interface {
	MarshalRecord(rec T) ([]byte, error)
	UnmarshalRecord(data []byte) (T, error)
}

// Hooks are the collection-specific callbacks of a [Store].
//
// All hooks run with the store's exclusive lock held and must not call back
// into the store.
type Hooks[T any] interface {
	// OnInit seeds a collection when no snapshot file exists yet.
	// Return Changed to have the seed written immediately.
	OnInit() (Change, error)

	// OnRead loads the collection from the snapshot document. Return Changed
	// if loading modified the data (e.g. a migration) so it is written back.
	OnRead(doc []byte) (Change, error)

	// CreateWriteData serializes the whole collection into a snapshot document.
	CreateWriteData() ([]byte, error)

	// OnRecoveryCreate, OnRecoveryUpdate and OnRecoveryDelete apply replayed
	// WAL records. They must be idempotent upserts/removals keyed by ID: a
	// crash between the recovery rewrite and the WAL delete replays the same
	// frames against a snapshot that already contains them.
	OnRecoveryCreate(rec T) error
	OnRecoveryUpdate(rec T) error
	OnRecoveryDelete(rec T) error
}

// FilenameChangeHook is implemented by hooks that want to know when the
// snapshot filename changes. It fires before the first write under the new
// name. previous is empty for the very first write.
type FilenameChangeHook interface {
	OnFilenameChange(previous, current string)
}

// BeforeWriteHook is implemented by hooks that act on the old snapshot right
// before it is replaced, e.g. to keep a backup. An error aborts the write.
type BeforeWriteHook interface {
	BeforeWrite(filename, path string) error
}

// FilenameProvider supplies the snapshot filename. The name may change at
// runtime; an empty name makes the store memory-only.
type FilenameProvider interface {
	Filename() string
}

// ConstantFilename is a FilenameProvider that never changes.
type ConstantFilename string

// Filename implements [FilenameProvider].
func (c ConstantFilename) Filename() string { return string(c) }

// FilenameFunc adapts a function to [FilenameProvider].
type FilenameFunc func() string

// Filename implements [FilenameProvider].
func (f FilenameFunc) Filename() string { return f() }
