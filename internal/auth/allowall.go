package auth

import "github.com/vexmq/broker/internal/packet"

// AllowAllAuthenticator accepts every CONNECT regardless of the
// credentials supplied; the default for a deployment with no access
// control configured.
type AllowAllAuthenticator struct{}

func (AllowAllAuthenticator) CheckValid(string, string) byte {
	return packet.ConnectionAccepted
}

// AllowAllAuthorizator grants every client read and write access to
// every topic.
type AllowAllAuthorizator struct{}

func (AllowAllAuthorizator) CanRead(string, string) bool  { return true }
func (AllowAllAuthorizator) CanWrite(string, string) bool { return true }
