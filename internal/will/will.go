// Package will stores each connected client's last-will message,
// separate from internal/session so that the spec's will lifecycle —
// set on CONNECT, fired on connection loss or ungraceful drop, cleared
// on graceful DISCONNECT — doesn't get tangled with ordinary session
// reconnect bookkeeping.
package will

import (
	"sync"

	"github.com/vexmq/broker/internal/packet"
)

// Message is the will a client registered at CONNECT time.
type Message struct {
	Topic   string
	Payload []byte
	QoS     packet.QoS
	Retain  bool
}

// Store maps client id to its registered will.
type Store struct {
	mu    sync.RWMutex
	wills map[string]Message
}

// New returns an empty will store.
func New() *Store {
	return &Store{wills: make(map[string]Message)}
}

// Set registers clientID's will, replacing any previous one.
func (s *Store) Set(clientID string, msg Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.wills[clientID] = msg
}

// Lookup returns clientID's registered will, if any.
func (s *Store) Lookup(clientID string) (Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msg, ok := s.wills[clientID]
	return msg, ok
}

// Clear removes clientID's will, used on graceful DISCONNECT.
func (s *Store) Clear(clientID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.wills, clientID)
}
