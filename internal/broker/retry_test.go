package broker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vexmq/broker/internal/packet"
	"github.com/vexmq/broker/internal/session"
)

func TestSweepRetriesStalePending(t *testing.T) {
	p := newTestProcessor()
	p.Retry.Min = time.Millisecond
	p.Retry.MaxRetries = 2

	sess := session.New("sub1", false)
	sess.Activate()
	sess.AddPending(&session.Pending{
		PacketID: 1,
		Topic:    "t",
		Payload:  []byte("x"),
		QoS:      packet.QoSAtLeastOnce,
		SentAt:   time.Now().Add(-time.Hour),
	})
	p.Sessions.Put(sess)

	p.sweepOnce()

	pending, ok := sess.Pending(1)
	require.True(t, ok)
	assert.Equal(t, 1, pending.Attempts)
}

func TestSweepSkipsRetryForInactiveSession(t *testing.T) {
	p := newTestProcessor()
	p.Retry.Min = time.Millisecond
	p.Retry.MaxRetries = 1

	sess := session.New("sub1", false) // never activated: offline persistent session
	sess.AddPending(&session.Pending{
		PacketID: 1,
		Topic:    "t",
		Payload:  []byte("x"),
		QoS:      packet.QoSAtLeastOnce,
		SentAt:   time.Now().Add(-time.Hour),
	})
	p.Sessions.Put(sess)

	p.sweepOnce()

	pending, ok := sess.Pending(1)
	require.True(t, ok, "an offline session's in-flight delivery must not be given up on")
	assert.Equal(t, 0, pending.Attempts, "an offline session must not be retried")
}

func TestSweepGivesUpAfterMaxRetries(t *testing.T) {
	p := newTestProcessor()
	p.Retry.Min = time.Millisecond
	p.Retry.MaxRetries = 1

	sess := session.New("sub1", false)
	sess.Activate()
	sess.AddPending(&session.Pending{
		PacketID: 1,
		Topic:    "t",
		Payload:  []byte("x"),
		QoS:      packet.QoSAtLeastOnce,
		Attempts: 1,
		SentAt:   time.Now().Add(-time.Hour),
	})
	p.Sessions.Put(sess)

	p.sweepOnce()

	_, ok := sess.Pending(1)
	assert.False(t, ok)
}
