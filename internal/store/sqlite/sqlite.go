// Package sqlite is the durable MessageStore, grounded in the same
// database/sql query style the teacher uses for its auth store.
// Retained messages and stored payloads survive a broker restart.
package sqlite

import (
	"database/sql"
	"errors"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/vexmq/broker/internal/er"
	"github.com/vexmq/broker/internal/packet"
	"github.com/vexmq/broker/internal/store"
	"github.com/vexmq/broker/internal/topic"
)

// Store is a sqlite-backed store.MessageStore.
type Store struct {
	db *sql.DB
}

// Open wraps an already-open sqlite handle, migrating the messages and
// retained tables if they don't exist.
func Open(db *sql.DB) (*Store, error) {
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			topic TEXT NOT NULL,
			payload BLOB NOT NULL,
			qos INTEGER NOT NULL,
			retain INTEGER NOT NULL,
			stored_at INTEGER NOT NULL
		);
		CREATE TABLE IF NOT EXISTS retained (
			topic TEXT PRIMARY KEY,
			payload BLOB NOT NULL,
			qos INTEGER NOT NULL,
			stored_at INTEGER NOT NULL
		);
	`)
	return err
}

func (s *Store) StorePublishForFuture(msg store.Message) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}

	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO messages (id, topic, payload, qos, retain, stored_at) VALUES (?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.Topic, msg.Payload, int(msg.QoS), boolToInt(msg.Retain), msg.StoredAt.Unix(),
	)
	if err != nil {
		return &er.Err{Context: "sqlite store, store publish", Message: err}
	}
	return nil
}

func (s *Store) Retrieve(id string) (*store.Message, error) {
	row := s.db.QueryRow(`SELECT topic, payload, qos, retain, stored_at FROM messages WHERE id = ?`, id)

	var msg store.Message
	var qos, retain int
	var storedAt int64
	if err := row.Scan(&msg.Topic, &msg.Payload, &qos, &retain, &storedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &er.Err{Context: "sqlite store, retrieve", Message: er.ErrMessageNotFound}
		}
		return nil, &er.Err{Context: "sqlite store, retrieve", Message: err}
	}

	msg.ID = id
	msg.QoS = packet.QoS(qos)
	msg.Retain = retain != 0
	return &msg, nil
}

func (s *Store) StoreRetained(topicName string, msg store.Message) error {
	if len(msg.Payload) == 0 {
		return s.CleanRetained(topicName)
	}

	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO retained (topic, payload, qos, stored_at) VALUES (?, ?, ?, ?)`,
		topicName, msg.Payload, int(msg.QoS), msg.StoredAt.Unix(),
	)
	if err != nil {
		return &er.Err{Context: "sqlite store, store retained", Message: err}
	}
	return nil
}

func (s *Store) CleanRetained(topicName string) error {
	_, err := s.db.Exec(`DELETE FROM retained WHERE topic = ?`, topicName)
	if err != nil {
		return &er.Err{Context: "sqlite store, clean retained", Message: err}
	}
	return nil
}

func (s *Store) SearchMatching(filter string) ([]store.Message, error) {
	rows, err := s.db.Query(`SELECT topic, payload, qos, stored_at FROM retained`)
	if err != nil {
		return nil, &er.Err{Context: "sqlite store, search matching", Message: err}
	}
	defer rows.Close()

	var out []store.Message
	for rows.Next() {
		var msg store.Message
		var qos int
		var storedAt int64
		if err := rows.Scan(&msg.Topic, &msg.Payload, &qos, &storedAt); err != nil {
			return nil, &er.Err{Context: "sqlite store, search matching", Message: err}
		}
		msg.QoS = packet.QoS(qos)
		msg.Retain = true
		if topic.Match(filter, msg.Topic) {
			out = append(out, msg)
		}
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
