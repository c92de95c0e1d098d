// Package session holds the identity of one signed-in user and republishes
// it to subscribers whenever usage or plan changes. It is passed explicitly
// to the analysis pipeline instead of living in a global.
package session

import (
	"context"
	"errors"
	"sync"

	"github.com/tbourn/go-content-review/internal/domain"
)

// ErrNegativeUsage is returned for a usage count below zero.
var ErrNegativeUsage = errors.New("usage count must be non-negative")

// Store persists identity changes.
type Store interface {
	UpdateUsageCount(ctx context.Context, userID string, count int) error
	UpdatePlan(ctx context.Context, userID string, plan domain.Plan, limit int) error
}

// Listener is called with a snapshot after every change.
type Listener func(domain.User)

// Session is safe for concurrent use.
type Session struct {
	mu     sync.RWMutex
	user   domain.User
	store  Store
	nextID int
	subs   map[int]Listener
}

// New wraps user. store may be nil for a session that is never persisted.
func New(user domain.User, store Store) *Session {
	return &Session{user: user, store: store, subs: map[int]Listener{}}
}

// User returns a snapshot of the current identity.
func (s *Session) User() domain.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user
}

// ID returns the user id.
func (s *Session) ID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user.ID
}

// Usage returns the current quota state.
func (s *Session) Usage() domain.UsageState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user.Usage()
}

// Update replaces the in-memory quota state without persisting it.
func (s *Session) Update(u domain.UsageState) {
	s.mu.Lock()
	s.user.UsageCount = u.UsageCount
	s.user.UsageLimit = u.UsageLimit
	snap := s.user
	subs := s.listeners()
	s.mu.Unlock()
	publish(subs, snap)
}

// SetUsageCount applies count, republishes the identity and persists it.
// The in-memory count moves even when the store fails, so a failed
// write-back never reopens the usage gate; the store error is returned.
func (s *Session) SetUsageCount(ctx context.Context, count int) error {
	if count < 0 {
		return ErrNegativeUsage
	}
	s.mu.Lock()
	s.user.UsageCount = count
	snap := s.user
	subs := s.listeners()
	s.mu.Unlock()
	publish(subs, snap)

	if s.store == nil {
		return nil
	}
	return s.store.UpdateUsageCount(ctx, snap.ID, count)
}

// SetPlan persists plan with its usage limit; the usage count is kept.
func (s *Session) SetPlan(ctx context.Context, plan domain.Plan, limit int) error {
	id := s.ID()
	if s.store != nil {
		if err := s.store.UpdatePlan(ctx, id, plan, limit); err != nil {
			return err
		}
	}
	s.mu.Lock()
	s.user.Plan = plan
	s.user.UsageLimit = limit
	snap := s.user
	subs := s.listeners()
	s.mu.Unlock()
	publish(subs, snap)
	return nil
}

// Subscribe registers fn and returns a function that removes it.
func (s *Session) Subscribe(fn Listener) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// listeners must be called with mu held.
func (s *Session) listeners() []Listener {
	out := make([]Listener, 0, len(s.subs))
	for _, fn := range s.subs {
		out = append(out, fn)
	}
	return out
}

func publish(subs []Listener, u domain.User) {
	for _, fn := range subs {
		fn(u)
	}
}
