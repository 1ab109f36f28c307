// Package sqlite is a sqlite-backed auth.Authenticator, grounded
// directly in the teacher's internal/auth/auth.go database/sql query
// shape plus its pkg/hash bcrypt helpers, adapted to return a CONNACK
// return code instead of a bare error.
package sqlite

import (
	"database/sql"
	"errors"

	_ "github.com/mattn/go-sqlite3"
	"github.com/vexmq/broker/internal/auth"
	"github.com/vexmq/broker/internal/packet"
)

// Authenticator checks CONNECT credentials against a users table.
type Authenticator struct {
	db *sql.DB
}

// New wraps an already-open sqlite handle, migrating the users table
// if it doesn't exist.
func New(db *sql.DB) (*Authenticator, error) {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS users (username TEXT PRIMARY KEY, secret TEXT NOT NULL)`); err != nil {
		return nil, err
	}
	return &Authenticator{db: db}, nil
}

func (a *Authenticator) CheckValid(username, password string) byte {
	var hash string
	err := a.db.QueryRow(`SELECT secret FROM users WHERE username = ?`, username).Scan(&hash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return packet.BadUsernameOrPassword
		}
		return packet.ServerUnavailable
	}

	if !auth.VerifyPassword(hash, password) {
		return packet.BadUsernameOrPassword
	}
	return packet.ConnectionAccepted
}

// AddUser registers username with the given plaintext password,
// hashing it with bcrypt before storing it.
func (a *Authenticator) AddUser(username, password string) error {
	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}
	_, err = a.db.Exec(`INSERT OR REPLACE INTO users (username, secret) VALUES (?, ?)`, username, hash)
	return err
}
