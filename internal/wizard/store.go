package wizard

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Lllllllleong/solarleadcapture/internal/errs"
)

// Store keeps live wizard sessions in memory. Sessions are never persisted;
// an abandoned session is dropped after maxAge of inactivity.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*Session
	steps    []StepDefinition
	maxAge   time.Duration
	now      func() time.Time
}

// NewStore creates a store whose sessions walk through steps.
func NewStore(steps []StepDefinition, maxAge time.Duration) *Store {
	return &Store{
		sessions: make(map[string]*Session),
		steps:    steps,
		maxAge:   maxAge,
		now:      time.Now,
	}
}

// Create opens a new session for owner.
func (s *Store) Create(owner string) (*Session, error) {
	if owner == "" {
		return nil, errs.Newf(errs.Unauthorized, "sign in to start onboarding")
	}
	s.Prune()

	sess := newSession(uuid.NewString(), owner, s.steps, s.now())
	s.mu.Lock()
	s.sessions[sess.id] = sess
	s.mu.Unlock()
	return sess, nil
}

// Get returns session id if it belongs to owner.
func (s *Store) Get(id, owner string) (*Session, error) {
	if owner == "" {
		return nil, errs.Newf(errs.Unauthorized, "sign in to continue onboarding")
	}
	s.mu.Lock()
	sess, ok := s.sessions[id]
	s.mu.Unlock()
	if !ok {
		return nil, errs.Newf(errs.NotFound, "onboarding session %s not found", id)
	}
	if sess.owner != owner {
		return nil, errs.Newf(errs.Forbidden, "onboarding session %s belongs to another user", id)
	}
	sess.touch(s.now())
	return sess, nil
}

// Delete drops a session.
func (s *Store) Delete(id string) {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
}

// Len returns the number of live sessions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Prune drops sessions idle for longer than maxAge and returns how many were
// dropped.
func (s *Store) Prune() int {
	if s.maxAge <= 0 {
		return 0
	}
	cutoff := s.now().Add(-s.maxAge)
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, sess := range s.sessions {
		if sess.idleSince().Before(cutoff) {
			delete(s.sessions, id)
			n++
		}
	}
	return n
}
