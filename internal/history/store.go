// Package history keeps the per-session log of analysis results, newest
// first, plus the result currently being viewed.
package history

import (
	"errors"
	"sync"

	"github.com/tbourn/go-content-review/internal/domain"
)

var (
	// ErrNotFound is returned when no result with the given id exists.
	ErrNotFound = errors.New("analysis not found")
	// ErrNotInHistory is returned by Select for a result that was never appended.
	ErrNotInHistory = errors.New("analysis is not in history")
)

// Store is safe for concurrent use. The selection is always nil or a member
// of the history.
type Store struct {
	mu       sync.RWMutex
	items    []domain.AnalysisResult
	selected *domain.AnalysisResult
}

// New returns an empty Store.
func New() *Store { return &Store{} }

// Append records r as the newest entry.
func (s *Store) Append(r domain.AnalysisResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append([]domain.AnalysisResult{r}, s.items...)
}

// List returns a copy of the history, newest first.
func (s *Store) List() []domain.AnalysisResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.AnalysisResult, len(s.items))
	copy(out, s.items)
	return out
}

// Len returns the number of recorded results.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Get looks a result up by id.
func (s *Store) Get(id string) (domain.AnalysisResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := s.indexOf(id); i >= 0 {
		return s.items[i], nil
	}
	return domain.AnalysisResult{}, ErrNotFound
}

// Select makes r the current result. A nil r clears the selection; a result
// that is not in the history is rejected with ErrNotInHistory.
func (s *Store) Select(r *domain.AnalysisResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r == nil {
		s.selected = nil
		return nil
	}
	i := s.indexOf(r.ID)
	if i < 0 {
		return ErrNotInHistory
	}
	sel := s.items[i]
	s.selected = &sel
	return nil
}

// SelectID is Select by id. An empty id clears the selection.
func (s *Store) SelectID(id string) error {
	if id == "" {
		return s.Select(nil)
	}
	return s.Select(&domain.AnalysisResult{ID: id})
}

// Selected returns the current result, if any.
func (s *Store) Selected() (domain.AnalysisResult, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.selected == nil {
		return domain.AnalysisResult{}, false
	}
	return *s.selected, true
}

// Clear drops every result and the selection.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = nil
	s.selected = nil
}

func (s *Store) indexOf(id string) int {
	for i := range s.items {
		if s.items[i].ID == id {
			return i
		}
	}
	return -1
}
