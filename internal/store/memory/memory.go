// Package memory is the in-process MessageStore: two maps guarded by a
// mutex, with ids synthesized by google/uuid the same way the teacher
// synthesizes an anonymous client id.
package memory

import (
	"sync"

	"github.com/google/uuid"
	"github.com/vexmq/broker/internal/er"
	"github.com/vexmq/broker/internal/store"
)

// Store is a non-durable store.MessageStore; everything is lost on
// restart. It's the default store for a clean-session-only deployment.
type Store struct {
	mu       sync.RWMutex
	messages map[string]store.Message
	retained map[string]store.Message // topic -> message
}

// New returns an empty in-memory message store.
func New() *Store {
	return &Store{
		messages: make(map[string]store.Message),
		retained: make(map[string]store.Message),
	}
}

func (s *Store) StorePublishForFuture(msg store.Message) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages[msg.ID] = msg
	return nil
}

func (s *Store) Retrieve(id string) (*store.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msg, ok := s.messages[id]
	if !ok {
		return nil, &er.Err{Context: "memory store, retrieve", Message: er.ErrMessageNotFound}
	}
	return &msg, nil
}

func (s *Store) StoreRetained(topicName string, msg store.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(msg.Payload) == 0 {
		delete(s.retained, topicName)
		return nil
	}
	msg.Topic = topicName
	msg.Retain = true
	s.retained[topicName] = msg
	return nil
}

func (s *Store) CleanRetained(topicName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.retained, topicName)
	return nil
}

func (s *Store) SearchMatching(filter string) ([]store.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return store.MatchRetained(s.retained, filter), nil
}
