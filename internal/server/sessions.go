package server

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/YuminosukeSato/scigo-workbench/pkg/errors"
	"github.com/YuminosukeSato/scigo-workbench/visualizer"
)

// session is one user's wizard. The visualizer guards its own state.
type session struct {
	id       string
	path     []string
	vis      visualizer.Visualizer
	created  time.Time
	lastUsed time.Time
}

// sessionStore は有効期限付きのセッションを管理する
type sessionStore struct {
	mu    sync.Mutex
	items map[string]*session
	ttl   time.Duration
	now   func() time.Time
}

func newSessionStore(ttl time.Duration) *sessionStore {
	return &sessionStore{
		items: make(map[string]*session),
		ttl:   ttl,
		now:   time.Now,
	}
}

// Create registers a new session under a random UUID.
func (s *sessionStore) Create(path []string, vis visualizer.Visualizer) *session {
	now := s.now()
	sess := &session{
		id:       uuid.NewString(),
		path:     append([]string(nil), path...),
		vis:      vis,
		created:  now,
		lastUsed: now,
	}
	s.mu.Lock()
	s.items[sess.id] = sess
	s.mu.Unlock()
	return sess
}

// Get returns a live session and marks it used. Expired sessions are
// removed and reported as not found.
func (s *sessionStore) Get(id string) (*session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.items[id]
	if !ok {
		return nil, errors.Wrapf(errors.ErrNotFound, "session %q", id)
	}
	now := s.now()
	if now.Sub(sess.lastUsed) > s.ttl {
		delete(s.items, id)
		return nil, errors.Wrapf(errors.ErrNotFound, "session %q expired", id)
	}
	sess.lastUsed = now
	return sess, nil
}

// Delete removes a session.
func (s *sessionStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[id]; !ok {
		return errors.Wrapf(errors.ErrNotFound, "session %q", id)
	}
	delete(s.items, id)
	return nil
}

// Sweep removes expired sessions and returns how many were dropped.
func (s *sessionStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	n := 0
	for id, sess := range s.items {
		if now.Sub(sess.lastUsed) > s.ttl {
			delete(s.items, id)
			n++
		}
	}
	return n
}

// Len returns the number of sessions, expired ones included until swept.
func (s *sessionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}
