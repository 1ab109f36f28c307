// Package auth defines the broker's pluggable authentication and
// authorization contracts. Authenticator decides whether a CONNECT's
// credentials are good; Authorizator decides whether an already-
// connected client may read or write a given topic.
package auth

import (
	"github.com/vexmq/broker/internal/er"
	"golang.org/x/crypto/bcrypt"
)

// Authenticator validates CONNECT credentials and returns the CONNACK
// return code to send back: packet.ConnectionAccepted on success, or
// one of the rejection codes otherwise.
type Authenticator interface {
	CheckValid(username, password string) byte
}

// Authorizator decides per-topic read/write access for an already
// authenticated client.
type Authorizator interface {
	CanRead(clientID, topicName string) bool
	CanWrite(clientID, topicName string) bool
}

// HashPassword produces a bcrypt hash suitable for storing alongside a
// username.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", &er.Err{Context: "auth, hash password", Message: er.ErrHashFailed}
	}
	return string(hash), nil
}

// VerifyPassword reports whether password matches the stored bcrypt
// hash.
func VerifyPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
