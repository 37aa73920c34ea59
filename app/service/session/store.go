package session

import (
	"sync"

	"github.com/samber/do"
)

// Store is the process-wide registry of live conversations. The registry map
// has its own RWMutex held only for lookups, each session carries a separate
// mutex so unrelated conversations never contend.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

func New(_ *do.Injector) (*Store, error) {
	return NewStore(), nil
}

func NewStore() *Store {
	return &Store{
		sessions: make(map[string]*Session),
	}
}

// GetOrCreate lazily inserts an empty session. It never fails.
func (s *Store) GetOrCreate(id string) *Session {
	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()

	if ok {
		return sess
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if sess, ok = s.sessions[id]; ok {
		return sess
	}

	sess = newSession(id)
	s.sessions[id] = sess

	return sess
}

// WithLock runs fn with exclusive access to the session, creating it if
// absent. Turns for the same conversation id serialize here, the registry
// lock is released before fn runs.
func (s *Store) WithLock(id string, fn func(sess *Session)) {
	sess := s.GetOrCreate(id)

	sess.mu.Lock()
	defer sess.mu.Unlock()

	fn(sess)
}

// WithTurnLock runs fn holding the conversation's turn lock. Unlike WithLock
// it is meant to span an entire turn, external calls included, so concurrent
// turns for one conversation run one at a time in arrival order. fn may call
// WithLock for the same id, never the other way around.
func (s *Store) WithTurnLock(id string, fn func()) {
	sess := s.GetOrCreate(id)

	sess.turnMu.Lock()
	defer sess.turnMu.Unlock()

	fn()
}

func (s *Store) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, id)
}

// SnapshotIDs copies the current id set under a read lock so sweeps iterate
// without holding the registry lock.
func (s *Store) SnapshotIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}

	return ids
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.sessions)
}
