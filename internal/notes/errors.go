package notes

import "errors"

// Error variables for note operations.
var (
	ErrNoteNotFound       = errors.New("note not found")
	ErrAmbiguousID        = errors.New("id prefix matches more than one note")
	ErrIDRequired         = errors.New("note ID is required")
	ErrTitleRequired      = errors.New("note title is required")
	ErrInvalidTag         = errors.New("invalid tag")
	ErrIDGenerationFailed = errors.New("no unique id after repeated attempts")
	ErrNothingToEdit      = errors.New("nothing to edit")
)
