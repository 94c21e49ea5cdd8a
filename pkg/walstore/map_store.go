package walstore

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Record is an element of a [MapStore].
type Record interface {
	ID() string
}

// DocumentCodec serializes single records for the WAL and the whole
// collection for the snapshot.
type DocumentCodec[T any] interface {
	RecordCodec[T]
	MarshalDocument(records []T) ([]byte, error)
	UnmarshalDocument(data []byte) ([]T, error)
}

// MapConfig configures a [MapStore]. The fields shared with [Config] have
// the same meaning.
type MapConfig[T Record] struct {
	Name        string
	Filename    FilenameProvider
	Access      FileAccess
	Codec       DocumentCodec[T]
	Scheduler   Scheduler
	WaitingTime time.Duration
	Observers   *Observers
	Logger      logrus.FieldLogger
	Now         func() time.Time

	// Seed returns the records of a fresh collection. Called only when no
	// snapshot exists. An error fails Open.
	Seed func() ([]T, error)

	// Migrate is applied to every record read from the snapshot. Returning
	// Changed triggers a rewrite after loading.
	Migrate func(rec T) (T, Change)

	// OnFilenameChange is called before the first write under a new filename.
	OnFilenameChange func(previous, current string)
}

// MapStore is an ID-keyed collection backed by a [Store].
//
// Values are stored as given; if T is a pointer type, records returned by the
// read operations are shared and must be changed only through [MapStore.Update]
// or [Store.Mutate].
type MapStore[T Record] struct {
	*Store[T]

	codec    DocumentCodec[T]
	seed     func() ([]T, error)
	migrate  func(T) (T, Change)
	onRename func(previous, current string)
	items    map[string]T
}

// OpenMap opens a MapStore. See [Open].
func OpenMap[T Record](ctx context.Context, cfg MapConfig[T]) (*MapStore[T], error) {
	if cfg.Codec == nil {
		return nil, errors.New("walstore: codec is nil")
	}

	m := &MapStore[T]{
		codec:    cfg.Codec,
		seed:     cfg.Seed,
		migrate:  cfg.Migrate,
		onRename: cfg.OnFilenameChange,
		items:    make(map[string]T),
	}

	name := cfg.Name
	if name == "" {
		var zero T
		name = strings.TrimPrefix(fmt.Sprintf("%T", zero), "*")
	}

	store, err := Open(ctx, Config[T]{
		Name:        name,
		Filename:    cfg.Filename,
		Access:      cfg.Access,
		Hooks:       mapHooks[T]{m},
		Codec:       cfg.Codec,
		Scheduler:   cfg.Scheduler,
		WaitingTime: cfg.WaitingTime,
		Observers:   cfg.Observers,
		Logger:      cfg.Logger,
		Now:         cfg.Now,
	})
	if err != nil {
		return nil, err
	}

	m.Store = store

	return m, nil
}

// Create adds rec. Returns [ErrDuplicateID] if its ID is taken.
func (m *MapStore[T]) Create(rec T) error {
	return m.CreateAll(rec)
}

// CreateAll adds all records as one mutation. Either all IDs are new and
// distinct, or nothing changes.
func (m *MapStore[T]) CreateAll(recs ...T) error {
	if len(recs) == 0 {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}

	seen := make(map[string]struct{}, len(recs))

	for _, rec := range recs {
		id := rec.ID()
		if id == "" {
			return ErrEmptyID
		}

		if _, ok := m.items[id]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicateID, id)
		}

		if _, ok := seen[id]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicateID, id)
		}

		seen[id] = struct{}{}
	}

	for _, rec := range recs {
		m.items[rec.ID()] = rec
	}

	return m.markAsChanged(ActionCreate, recs)
}

// Update replaces the record with rec's ID. Returns Unchanged if no such
// record exists.
func (m *MapStore[T]) Update(rec T) (Change, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return Unchanged, ErrClosed
	}

	id := rec.ID()
	if _, ok := m.items[id]; !ok {
		return Unchanged, nil
	}

	m.items[id] = rec

	return Changed, m.markAsChanged(ActionUpdate, []T{rec})
}

// Delete removes the record with id. Returns Unchanged if no such record
// exists.
func (m *MapStore[T]) Delete(id string) (Change, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return Unchanged, ErrClosed
	}

	rec, ok := m.items[id]
	if !ok {
		return Unchanged, nil
	}

	delete(m.items, id)

	return Changed, m.markAsChanged(ActionDelete, []T{rec})
}

// Get returns the record with id.
func (m *MapStore[T]) Get(id string) (T, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.items[id]

	return rec, ok
}

// ContainsID reports whether a record with id exists.
func (m *MapStore[T]) ContainsID(id string) bool {
	_, ok := m.Get(id)

	return ok
}

// All returns every record ordered by ID.
func (m *MapStore[T]) All() []T {
	return m.Filtered(nil)
}

// Filtered returns the records matching keep, ordered by ID. A nil keep
// matches all.
func (m *MapStore[T]) Filtered(keep func(T) bool) []T {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]T, 0, len(m.items))

	for _, rec := range m.items {
		if keep == nil || keep(rec) {
			out = append(out, rec)
		}
	}

	sortByID(out)

	return out
}

// First returns the record with the smallest ID matching keep.
func (m *MapStore[T]) First(keep func(T) bool) (T, bool) {
	matches := m.Filtered(keep)
	if len(matches) == 0 {
		var zero T

		return zero, false
	}

	return matches[0], true
}

// Count returns the number of records.
func (m *MapStore[T]) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.items)
}

// CountWhere returns the number of records matching keep.
func (m *MapStore[T]) CountWhere(keep func(T) bool) int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := 0

	for _, rec := range m.items {
		if keep(rec) {
			n++
		}
	}

	return n
}

// IDs returns all IDs in ascending order.
func (m *MapStore[T]) IDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.items))
	for id := range m.items {
		ids = append(ids, id)
	}

	slices.Sort(ids)

	return ids
}

func sortByID[T Record](recs []T) {
	slices.SortFunc(recs, func(a, b T) int {
		return strings.Compare(a.ID(), b.ID())
	})
}

// mapHooks keeps the Hooks methods off the MapStore API.
type mapHooks[T Record] struct {
	m *MapStore[T]
}

func (h mapHooks[T]) OnInit() (Change, error) {
	if h.m.seed == nil {
		return Unchanged, nil
	}

	recs, err := h.m.seed()
	if err != nil {
		return Unchanged, fmt.Errorf("seed: %w", err)
	}

	for _, rec := range recs {
		if _, ok := h.m.items[rec.ID()]; ok {
			return Unchanged, fmt.Errorf("seed: %w: %s", ErrDuplicateID, rec.ID())
		}

		h.m.items[rec.ID()] = rec
	}

	return Change(len(recs) > 0), nil
}

func (h mapHooks[T]) OnRead(doc []byte) (Change, error) {
	recs, err := h.m.codec.UnmarshalDocument(doc)
	if err != nil {
		return Unchanged, fmt.Errorf("decode document: %w", err)
	}

	clear(h.m.items)

	change := Unchanged

	for _, rec := range recs {
		if h.m.migrate != nil {
			var c Change
			rec, c = h.m.migrate(rec)
			change = change.Or(c)
		}

		id := rec.ID()
		if id == "" {
			return Unchanged, fmt.Errorf("decode document: %w", ErrEmptyID)
		}

		if _, ok := h.m.items[id]; ok {
			return Unchanged, fmt.Errorf("decode document: %w: %s", ErrDuplicateID, id)
		}

		h.m.items[id] = rec
	}

	return change, nil
}

func (h mapHooks[T]) CreateWriteData() ([]byte, error) {
	recs := make([]T, 0, len(h.m.items))
	for _, rec := range h.m.items {
		recs = append(recs, rec)
	}

	sortByID(recs)

	return h.m.codec.MarshalDocument(recs)
}

func (h mapHooks[T]) OnRecoveryCreate(rec T) error {
	h.m.items[rec.ID()] = rec

	return nil
}

func (h mapHooks[T]) OnRecoveryUpdate(rec T) error {
	h.m.items[rec.ID()] = rec

	return nil
}

func (h mapHooks[T]) OnRecoveryDelete(rec T) error {
	delete(h.m.items, rec.ID())

	return nil
}

func (h mapHooks[T]) OnFilenameChange(previous, current string) {
	if h.m.onRename != nil {
		h.m.onRename(previous, current)
	}
}

var _ FilenameChangeHook = mapHooks[Record]{}
