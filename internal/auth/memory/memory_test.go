package memory

import (
	"testing"

	"github.com/vexmq/broker/internal/packet"
)

func TestAuthenticatorCheckValid(t *testing.T) {
	a := New()
	if err := a.AddUser("alice", "hunter2"); err != nil {
		t.Fatalf("AddUser: %v", err)
	}

	if code := a.CheckValid("alice", "hunter2"); code != packet.ConnectionAccepted {
		t.Errorf("expected ConnectionAccepted, got %x", code)
	}
	if code := a.CheckValid("alice", "wrong"); code != packet.BadUsernameOrPassword {
		t.Errorf("expected BadUsernameOrPassword, got %x", code)
	}
	if code := a.CheckValid("bob", "anything"); code != packet.BadUsernameOrPassword {
		t.Errorf("expected BadUsernameOrPassword for unknown user, got %x", code)
	}
}
