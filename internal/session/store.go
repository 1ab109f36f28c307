package session

import (
	"maps"
	"sync"
	"sync/atomic"
)

// sessionMap is the copy-on-write snapshot held inside Store.value. A
// new map is built and swapped in on every write; reads never lock.
type sessionMap map[string]*Session

// Store holds every known session, keyed by client id. Reads are
// lock-free; writes take turns under mu so concurrent writers don't
// race building the next snapshot.
type Store struct {
	mu    sync.Mutex
	value atomic.Value
}

// NewStore returns an empty session store.
func NewStore() *Store {
	s := &Store{}
	s.value.Store(make(sessionMap))
	return s
}

// Put inserts or replaces the session for sess.ClientID.
func (s *Store) Put(sess *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.value.Load().(sessionMap)
	updated := make(sessionMap, len(current)+1)
	maps.Copy(updated, current)
	updated[sess.ClientID] = sess
	s.value.Store(updated)
}

// Get returns the session for clientID, if one is present.
func (s *Store) Get(clientID string) (*Session, bool) {
	current := s.value.Load().(sessionMap)
	sess, ok := current[clientID]
	return sess, ok
}

// Delete removes clientID's session, used when a clean-session client
// disconnects.
func (s *Store) Delete(clientID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.value.Load().(sessionMap)
	if _, ok := current[clientID]; !ok {
		return
	}
	updated := make(sessionMap, len(current))
	maps.Copy(updated, current)
	delete(updated, clientID)
	s.value.Store(updated)
}

// Len reports how many sessions are currently stored.
func (s *Store) Len() int {
	return len(s.value.Load().(sessionMap))
}

// All returns a snapshot of every currently stored session, used by
// the broker's QoS retry sweep to walk pending deliveries across all
// clients without holding any lock for the duration of the walk.
func (s *Store) All() []*Session {
	current := s.value.Load().(sessionMap)
	out := make([]*Session, 0, len(current))
	for _, sess := range current {
		out = append(out, sess)
	}
	return out
}
