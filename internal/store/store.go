// Package store defines the message store contract: where retained
// messages and QoS 1/2 in-flight payloads live once they leave the
// wire. internal/store/memory and internal/store/sqlite implement it.
package store

import (
	"time"

	"github.com/vexmq/broker/internal/packet"
	"github.com/vexmq/broker/internal/topic"
)

// Message is a stored application message, content-addressed by ID so
// the same payload can be referenced from more than one session's
// in-flight queue without copying it.
type Message struct {
	ID       string
	Topic    string
	Payload  []byte
	QoS      packet.QoS
	Retain   bool
	StoredAt time.Time
}

// MessageStore persists retained messages and messages awaiting
// delivery. Implementations must be safe for concurrent use.
type MessageStore interface {
	// StorePublishForFuture saves msg so it can be Retrieve'd later by
	// a session replaying its offline queue after a reconnect.
	StorePublishForFuture(msg Message) error

	// Retrieve returns the message previously stored under id.
	Retrieve(id string) (*Message, error)

	// StoreRetained sets the retained message for topic, replacing any
	// previous one. A zero-length payload clears it, per spec.
	StoreRetained(topicName string, msg Message) error

	// CleanRetained removes the retained message for topic, if any.
	CleanRetained(topicName string) error

	// SearchMatching returns every retained message whose topic
	// matches filter, for replay to a new subscriber.
	SearchMatching(filter string) ([]Message, error)
}

// MatchRetained filters a slice of retained (topic, message) pairs down
// to the ones filter matches; shared by every MessageStore
// implementation's SearchMatching so the matching rule lives in one
// place.
func MatchRetained(retained map[string]Message, filter string) []Message {
	out := make([]Message, 0)
	for t, msg := range retained {
		if topic.Match(filter, t) {
			out = append(out, msg)
		}
	}
	return out
}
