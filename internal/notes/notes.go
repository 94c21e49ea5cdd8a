// Package notes is the note collection behind the recdb CLI. It is a thin
// domain layer over a walstore.MapStore: validation, ID generation, prefix
// lookup, tags and timestamps.
package notes

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/calvinalkan/recdb/pkg/codec"
	"github.com/calvinalkan/recdb/pkg/walstore"
)

// DefaultBasename is the snapshot name without extension. The codec picks
// the extension.
const DefaultBasename = "notes"

// StoreName labels the note store in logs and metrics.
const StoreName = "notes"

const maxIDAttempts = 8

// Config configures [Open].
type Config struct {
	// Filename of the snapshot below the data root. Defaults to
	// DefaultBasename plus the codec extension.
	Filename string

	Access      walstore.FileAccess
	Codec       string
	Scheduler   walstore.Scheduler
	WaitingTime time.Duration
	Observers   *walstore.Observers
	Logger      logrus.FieldLogger

	// Now and NewID default to time.Now and [NewID].
	Now   func() time.Time
	NewID func() (string, error)

	// NoWelcome skips the welcome note of a fresh collection.
	NoWelcome bool
}

// Store holds the notes.
type Store struct {
	notes *walstore.MapStore[*Note]
	now   func() time.Time
	newID func() (string, error)
	file  string
}

// Open opens the note collection, replaying a leftover WAL if needed.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	newID := cfg.NewID
	if newID == nil {
		newID = NewID
	}

	c, err := codec.New[*Note](cfg.Codec, now)
	if err != nil {
		return nil, err
	}

	file := cfg.Filename
	if file == "" {
		file = DefaultBasename + c.Extension()
	}

	s := &Store{now: now, newID: newID, file: file}

	mapCfg := walstore.MapConfig[*Note]{
		Name:        StoreName,
		Filename:    walstore.ConstantFilename(file),
		Access:      cfg.Access,
		Codec:       c,
		Scheduler:   cfg.Scheduler,
		WaitingTime: cfg.WaitingTime,
		Observers:   cfg.Observers,
		Logger:      cfg.Logger,
		Now:         now,
		Migrate:     migrate,
	}

	if !cfg.NoWelcome {
		mapCfg.Seed = s.welcome
	}

	s.notes, err = walstore.OpenMap(ctx, mapCfg)
	if err != nil {
		return nil, fmt.Errorf("open notes: %w", err)
	}

	return s, nil
}

// Filename returns the snapshot filename.
func (s *Store) Filename() string { return s.file }

func (s *Store) welcome() ([]*Note, error) {
	id, err := s.newID()
	if err != nil {
		return nil, fmt.Errorf("welcome note: %w", err)
	}

	ts := s.now().UTC()

	return []*Note{{
		NoteID:  id,
		Title:   "Welcome to recdb",
		Body:    "Notes live in one snapshot file next to a write-ahead log.\nRun `recdb add <title>` to create one.",
		Tags:    []string{"welcome"},
		Created: ts,
		Updated: ts,
	}}, nil
}

// migrate repairs notes written by hand or by older versions.
func migrate(n *Note) (*Note, walstore.Change) {
	tags, err := NormalizeTags(n.Tags)
	if err != nil {
		return n, walstore.Unchanged
	}

	change := walstore.Unchanged

	if !slices.Equal(tags, n.Tags) {
		n.Tags = tags
		change = walstore.Changed
	}

	if n.Updated.IsZero() && !n.Created.IsZero() {
		n.Updated = n.Created
		change = walstore.Changed
	}

	return n, change
}

// Add creates a note. If the note is kept in memory but could not be
// persisted, the note is returned together with an error wrapping
// walstore.ErrNotPersisted.
func (s *Store) Add(title, body string, tags []string) (*Note, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, ErrTitleRequired
	}

	tags, err := NormalizeTags(tags)
	if err != nil {
		return nil, err
	}

	ts := s.now().UTC()

	for range maxIDAttempts {
		id, err := s.newID()
		if err != nil {
			return nil, err
		}

		n := &Note{NoteID: id, Title: title, Body: body, Tags: tags, Created: ts, Updated: ts}

		err = s.notes.Create(n)
		if errors.Is(err, walstore.ErrDuplicateID) {
			continue
		}

		if err != nil && !errors.Is(err, walstore.ErrNotPersisted) {
			return nil, err
		}

		return n.Clone(), err
	}

	return nil, ErrIDGenerationFailed
}

// Patch describes an edit. Nil fields are left alone.
type Patch struct {
	Title      *string
	Body       *string
	Tags       *[]string
	AddTags    []string
	RemoveTags []string
}

func (p Patch) empty() bool {
	return p.Title == nil && p.Body == nil && p.Tags == nil && len(p.AddTags) == 0 && len(p.RemoveTags) == 0
}

// Edit applies p to the note identified by id (or a unique ID prefix).
func (s *Store) Edit(id string, p Patch) (*Note, error) {
	if p.empty() {
		return nil, ErrNothingToEdit
	}

	n, err := s.lookup(id)
	if err != nil {
		return nil, err
	}

	n = n.Clone()

	if p.Title != nil {
		title := strings.TrimSpace(*p.Title)
		if title == "" {
			return nil, ErrTitleRequired
		}

		n.Title = title
	}

	if p.Body != nil {
		n.Body = *p.Body
	}

	tags := n.Tags
	if p.Tags != nil {
		tags = *p.Tags
	}

	tags = append(slices.Clone(tags), p.AddTags...)

	remove, err := NormalizeTags(p.RemoveTags)
	if err != nil {
		return nil, err
	}

	tags, err = NormalizeTags(tags)
	if err != nil {
		return nil, err
	}

	n.Tags = slices.DeleteFunc(tags, func(t string) bool { return slices.Contains(remove, t) })
	if len(n.Tags) == 0 {
		n.Tags = nil
	}

	n.Updated = s.now().UTC()

	change, err := s.notes.Update(n)
	if err != nil && !errors.Is(err, walstore.ErrNotPersisted) {
		return nil, err
	}

	if !change.IsChanged() {
		return nil, fmt.Errorf("%w: %s", ErrNoteNotFound, n.NoteID)
	}

	return n.Clone(), err
}

// Remove deletes the note identified by id (or a unique ID prefix) and
// returns it.
func (s *Store) Remove(id string) (*Note, error) {
	n, err := s.lookup(id)
	if err != nil {
		return nil, err
	}

	change, err := s.notes.Delete(n.NoteID)
	if err != nil && !errors.Is(err, walstore.ErrNotPersisted) {
		return nil, err
	}

	if !change.IsChanged() {
		return nil, fmt.Errorf("%w: %s", ErrNoteNotFound, n.NoteID)
	}

	return n.Clone(), err
}

// Get returns a copy of the note identified by id (or a unique ID prefix).
func (s *Store) Get(id string) (*Note, error) {
	n, err := s.lookup(id)
	if err != nil {
		return nil, err
	}

	return n.Clone(), nil
}

// Resolve maps an ID or a unique, case-insensitive ID prefix to the full ID.
func (s *Store) Resolve(id string) (string, error) {
	n, err := s.lookup(id)
	if err != nil {
		return "", err
	}

	return n.NoteID, nil
}

func (s *Store) lookup(id string) (*Note, error) {
	id = strings.ToUpper(strings.TrimSpace(id))
	if id == "" {
		return nil, ErrIDRequired
	}

	if n, ok := s.notes.Get(id); ok {
		return n, nil
	}

	matches := s.notes.Filtered(func(n *Note) bool { return strings.HasPrefix(n.NoteID, id) })

	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("%w: %s", ErrNoteNotFound, id)
	case 1:
		return matches[0], nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrAmbiguousID, id)
	}
}

// Filter selects notes. The zero Filter matches everything.
type Filter struct {
	// Tag matches notes carrying the tag.
	Tag string
	// Query matches notes whose title or body contains it, case-insensitively.
	Query string
}

func (f Filter) match(n *Note) bool {
	if f.Tag != "" && !n.HasTag(strings.ToLower(f.Tag)) {
		return false
	}

	if f.Query != "" {
		q := strings.ToLower(f.Query)
		if !strings.Contains(strings.ToLower(n.Title), q) && !strings.Contains(strings.ToLower(n.Body), q) {
			return false
		}
	}

	return true
}

// List returns copies of the matching notes, oldest first.
func (s *Store) List(f Filter) []*Note {
	matches := s.notes.Filtered(f.match)

	out := make([]*Note, len(matches))
	for i, n := range matches {
		out[i] = n.Clone()
	}

	slices.SortStableFunc(out, func(a, b *Note) int {
		return a.Created.Compare(b.Created)
	})

	return out
}

// Tagged returns the notes carrying tag, oldest first.
func (s *Store) Tagged(tag string) []*Note {
	return s.List(Filter{Tag: tag})
}

// Count returns the number of matching notes.
func (s *Store) Count(f Filter) int {
	return s.notes.CountWhere(f.match)
}

// TagCount is the number of notes carrying Tag.
type TagCount struct {
	Tag   string
	Count int
}

// Tags returns all tags in use, by name.
func (s *Store) Tags() []TagCount {
	counts := map[string]int{}

	for _, n := range s.notes.All() {
		for _, tag := range n.Tags {
			counts[tag]++
		}
	}

	out := make([]TagCount, 0, len(counts))
	for tag, n := range counts {
		out = append(out, TagCount{Tag: tag, Count: n})
	}

	slices.SortFunc(out, func(a, b TagCount) int { return strings.Compare(a.Tag, b.Tag) })

	return out
}

// Import adds notes as one mutation. Missing IDs and timestamps are filled
// in. Either all notes are added or none.
func (s *Store) Import(in []*Note) (int, error) {
	if len(in) == 0 {
		return 0, nil
	}

	ts := s.now().UTC()
	batch := make([]*Note, 0, len(in))

	for i, n := range in {
		n = n.Clone()
		n.Title = strings.TrimSpace(n.Title)

		if n.Title == "" {
			return 0, fmt.Errorf("note %d: %w", i, ErrTitleRequired)
		}

		tags, err := NormalizeTags(n.Tags)
		if err != nil {
			return 0, fmt.Errorf("note %d: %w", i, err)
		}

		n.Tags = tags

		if n.NoteID == "" {
			n.NoteID, err = s.newID()
			if err != nil {
				return 0, err
			}
		}

		n.NoteID = strings.ToUpper(n.NoteID)

		if n.Created.IsZero() {
			n.Created = ts
		}

		if n.Updated.IsZero() {
			n.Updated = n.Created
		}

		batch = append(batch, n)
	}

	err := s.notes.CreateAll(batch...)
	if err != nil && !errors.Is(err, walstore.ErrNotPersisted) {
		return 0, err
	}

	return len(batch), err
}

// Batch runs fn without persisting intermediate changes and writes the
// snapshot once at the end.
func (s *Store) Batch(fn func() error) error {
	return s.notes.PerformWithoutAutoSave(fn)
}

// Flush writes pending changes now.
func (s *Store) Flush() (walstore.Change, error) {
	return s.notes.WriteToFileOnPendingChanges()
}

// HasPendingChanges reports whether changes are not yet in the snapshot.
func (s *Store) HasPendingChanges() bool { return s.notes.HasPendingChanges() }

// Stats returns the walstore counters.
func (s *Store) Stats() walstore.Stats { return s.notes.Stats() }

// Close flushes and closes the store.
func (s *Store) Close() error { return s.notes.Close() }
