// Package memory is an in-process auth.Authenticator backed by a plain
// username/password map, used for tests and by auth mode "memory".
package memory

import (
	"sync"

	"github.com/vexmq/broker/internal/auth"
	"github.com/vexmq/broker/internal/packet"
)

// Authenticator checks credentials against an in-memory bcrypt-hashed
// username/password map.
type Authenticator struct {
	mu    sync.RWMutex
	users map[string]string // username -> bcrypt hash
}

// New returns an Authenticator with no registered users.
func New() *Authenticator {
	return &Authenticator{users: make(map[string]string)}
}

// AddUser registers username with the given plaintext password,
// hashing it with bcrypt before storing it.
func (a *Authenticator) AddUser(username, password string) error {
	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.users[username] = hash
	return nil
}

func (a *Authenticator) CheckValid(username, password string) byte {
	a.mu.RLock()
	hash, ok := a.users[username]
	a.mu.RUnlock()

	if !ok {
		return packet.BadUsernameOrPassword
	}
	if !auth.VerifyPassword(hash, password) {
		return packet.BadUsernameOrPassword
	}
	return packet.ConnectionAccepted
}
