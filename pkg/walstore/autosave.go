package walstore

import (
	"errors"
	"sync"
)

// AutoSave is a scope in which mutations only set the pending flag. Scopes
// nest; ending the outermost one writes the snapshot once if anything changed.
// End must be called exactly once, in LIFO order with other scopes of the
// same store. End is idempotent; ending scopes out of order panics.
type AutoSave struct {
	once sync.Once
	end  func() error
	err  error
}

// End closes the scope.
func (a *AutoSave) End() error {
	a.once.Do(func() { a.err = a.end() })

	return a.err
}

// BeginWithoutAutoSave disables persistence until the returned scope ends.
func (s *Store[T]) BeginWithoutAutoSave() *AutoSave {
	s.mu.Lock()
	depth := s.beginLocked()
	s.mu.Unlock()

	return &AutoSave{end: func() error {
		s.mu.Lock()
		defer s.mu.Unlock()

		if s.endLocked(depth) && !s.closed {
			_, err := s.flushLocked("end of AutoSave scope")

			return err
		}

		return nil
	}}
}

// PerformWithoutAutoSave runs fn inside an [AutoSave] scope. fn must not hold
// the store lock when it returns.
func (s *Store[T]) PerformWithoutAutoSave(fn func() error) (err error) {
	scope := s.BeginWithoutAutoSave()

	defer func() {
		err = errors.Join(err, scope.End())
	}()

	return fn()
}

// beginLocked pushes the current auto-save state and disables it. Returns
// the stack depth the matching endLocked must see.
func (s *Store[T]) beginLocked() int {
	s.autoSaveStack = append(s.autoSaveStack, s.autoSave)
	s.autoSave = false

	return len(s.autoSaveStack)
}

// endLocked pops the state pushed by beginLocked and reports whether auto-save
// is enabled again.
func (s *Store[T]) endLocked(depth int) bool {
	if len(s.autoSaveStack) != depth {
		panic("walstore: AutoSave scopes ended out of order")
	}

	s.autoSave = s.autoSaveStack[depth-1]
	s.autoSaveStack = s.autoSaveStack[:depth-1]

	return s.autoSave
}
