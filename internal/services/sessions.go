package services

import (
	"sync"

	"github.com/tbourn/go-content-review/internal/domain"
	"github.com/tbourn/go-content-review/internal/session"
)

// UserSession pairs a signed-in identity with its own pipeline.
type UserSession struct {
	Session  *session.Session
	Analysis *AnalysisService
}

// Sessions keeps one UserSession per user id for the process lifetime, or
// until End is called.
type Sessions struct {
	store       session.Store
	newAnalysis func() *AnalysisService

	mu     sync.Mutex
	byUser map[string]*UserSession
}

// NewSessions returns an empty registry. newAnalysis builds a fresh pipeline
// for each new session.
func NewSessions(store session.Store, newAnalysis func() *AnalysisService) *Sessions {
	return &Sessions{store: store, newAnalysis: newAnalysis, byUser: map[string]*UserSession{}}
}

// Open returns the session for u, creating it on first use. An existing
// session keeps its in-memory identity and history.
func (s *Sessions) Open(u domain.User) *UserSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	if us, ok := s.byUser[u.ID]; ok {
		return us
	}
	us := &UserSession{Session: session.New(u, s.store), Analysis: s.newAnalysis()}
	s.byUser[u.ID] = us
	return us
}

// Lookup returns the open session for userID.
func (s *Sessions) Lookup(userID string) (*UserSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	us, ok := s.byUser[userID]
	return us, ok
}

// End drops the session for userID, discarding its history. It reports
// whether a session existed.
func (s *Sessions) End(userID string) bool {
	s.mu.Lock()
	us, ok := s.byUser[userID]
	delete(s.byUser, userID)
	s.mu.Unlock()
	if ok {
		us.Analysis.History.Clear()
	}
	return ok
}

// Len returns the number of open sessions.
func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byUser)
}
