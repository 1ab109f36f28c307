package broker

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vexmq/broker/internal/interceptor"
	"github.com/vexmq/broker/internal/logger"
	"github.com/vexmq/broker/internal/packet"
	"github.com/vexmq/broker/internal/registry"
	"github.com/vexmq/broker/internal/session"
	"github.com/vexmq/broker/internal/store/memory"
	"github.com/vexmq/broker/internal/subscription"
	"github.com/vexmq/broker/internal/will"
)

func newTestProcessor() *Processor {
	return New(
		session.NewStore(),
		subscription.New(),
		registry.New(),
		will.New(),
		memory.New(),
		nil,
		nil,
		interceptor.New(),
		logger.New(logger.DevelopmentConfig()),
	)
}

func connectClient(t *testing.T, p *Processor, clientID string, cleanSession bool) (*registry.Descriptor, net.Conn) {
	t.Helper()
	server, client := net.Pipe()
	t.Cleanup(func() { client.Close() })

	desc := registry.NewDescriptor(clientID, server, 60, cleanSession, 0)
	ack := p.HandleConnect(&packet.Connect{ClientID: clientID, CleanSession: cleanSession, KeepAlive: 60}, desc)
	require.Equal(t, packet.ConnectionAccepted, ack.ReturnCode)
	// Mirrors transport.handshake: activate (and replay any queued
	// offline deliveries) only after the CONNACK has notionally gone out.
	p.ReplayOffline(clientID)
	return desc, client
}

func TestHandleConnectGrantsSessionPresentOnResume(t *testing.T) {
	p := newTestProcessor()

	desc1, client1 := connectClient(t, p, "c1", false)
	client1.Close()
	p.HandleDisconnect("c1", desc1)

	server2, client2 := net.Pipe()
	defer client2.Close()
	desc2 := registry.NewDescriptor("c1", server2, 60, false, 0)
	ack := p.HandleConnect(&packet.Connect{ClientID: "c1", CleanSession: false, KeepAlive: 60}, desc2)

	assert.True(t, ack.SessionPresent)
}

func TestHandleConnectRejectsBadCredentials(t *testing.T) {
	p := newTestProcessor()
	p.Authenticator = rejectingAuthenticator{}

	server, client := net.Pipe()
	defer client.Close()
	desc := registry.NewDescriptor("c1", server, 60, true, 0)

	ack := p.HandleConnect(&packet.Connect{ClientID: "c1", CleanSession: true}, desc)
	assert.Equal(t, packet.BadUsernameOrPassword, ack.ReturnCode)

	_, ok := p.Registry.Get("c1")
	assert.False(t, ok)
}

func TestSubscribeThenPublishDelivers(t *testing.T) {
	p := newTestProcessor()
	_, subConn := connectClient(t, p, "sub1", true)
	connectClient(t, p, "pub1", true)

	suback, err := p.HandleSubscribe("sub1", &packet.Subscribe{
		PacketID: 1,
		Filters:  []packet.Filter{{Topic: "a/b", QoS: packet.QoSAtMostOnce}},
	})
	require.NoError(t, err)
	require.Len(t, suback.ReturnCodes, 1)
	assert.Equal(t, byte(packet.QoSAtMostOnce), suback.ReturnCodes[0])

	go func() {
		p.HandlePublish("pub1", &packet.Publish{Topic: "a/b", Payload: []byte("hi"), QoS: packet.QoSAtMostOnce})
	}()

	buf := make([]byte, 64)
	n, err := subConn.Read(buf)
	require.NoError(t, err)

	got, err := packet.Decode(buf[:n])
	require.NoError(t, err)
	publish, ok := got.(*packet.Publish)
	require.True(t, ok)
	assert.Equal(t, "a/b", publish.Topic)
	assert.Equal(t, []byte("hi"), publish.Payload)
}

func TestPublishRetainedDeliveredOnSubscribe(t *testing.T) {
	p := newTestProcessor()
	connectClient(t, p, "pub1", true)

	ack := p.HandlePublish("pub1", &packet.Publish{Topic: "r/t", Payload: []byte("retained"), QoS: packet.QoSAtMostOnce, Retain: true})
	assert.Nil(t, ack)

	_, subConn := connectClient(t, p, "sub1", true)
	go func() {
		p.HandleSubscribe("sub1", &packet.Subscribe{
			PacketID: 1,
			Filters:  []packet.Filter{{Topic: "r/t", QoS: packet.QoSAtMostOnce}},
		})
	}()

	buf := make([]byte, 64)
	n, err := subConn.Read(buf)
	require.NoError(t, err)

	got, err := packet.Decode(buf[:n])
	require.NoError(t, err)
	publish := got.(*packet.Publish)
	assert.True(t, publish.Retain)
	assert.Equal(t, []byte("retained"), publish.Payload)
}

func TestQoS1RoundTrip(t *testing.T) {
	p := newTestProcessor()
	p.Sessions.Put(session.New("sub1", false))
	p.ReplayOffline("sub1") // mirrors a live connection: no queued deliveries yet, just activates
	p.HandleSubscribe("sub1", &packet.Subscribe{
		PacketID: 1,
		Filters:  []packet.Filter{{Topic: "q1", QoS: packet.QoSAtLeastOnce}},
	})

	p.HandlePublish("pub1", &packet.Publish{Topic: "q1", Payload: []byte("x"), QoS: packet.QoSAtLeastOnce, PacketID: 5})

	sess, ok := p.Sessions.Get("sub1")
	require.True(t, ok)
	require.Len(t, sess.AllPending(), 1)

	pending := sess.AllPending()[0]
	p.HandlePubAck("sub1", packet.NewPubAck(pending.PacketID))
	assert.Empty(t, sess.AllPending())
}

func TestQoS2Handshake(t *testing.T) {
	p := newTestProcessor()

	ack := p.HandlePublish("pub1", &packet.Publish{Topic: "q2", Payload: []byte("x"), QoS: packet.QoSExactlyOnce, PacketID: 9})
	rec, ok := ack.(*packet.PubRec)
	require.True(t, ok)
	assert.Equal(t, uint16(9), rec.PacketID)

	rel := p.HandlePubRec("sub-does-not-exist", packet.NewPubRec(9))
	assert.Equal(t, uint16(9), rel.PacketID)

	comp := p.HandlePubRel("pub1", packet.NewPubRel(9))
	assert.Equal(t, uint16(9), comp.PacketID)
}

func TestUnauthorizedPublishStillAcksButDoesNotRoute(t *testing.T) {
	p := newTestProcessor()
	p.Authorizator = denyAllAuthorizator{}
	_, subConn := connectClient(t, p, "sub1", true)
	p.HandleSubscribe("sub1", &packet.Subscribe{
		PacketID: 1,
		Filters:  []packet.Filter{{Topic: "x", QoS: packet.QoSAtLeastOnce}},
	})

	ack := p.HandlePublish("pub1", &packet.Publish{Topic: "x", Payload: []byte("y"), QoS: packet.QoSAtLeastOnce, PacketID: 3})
	_, ok := ack.(*packet.PubAck)
	assert.True(t, ok, "denied publish must still be acknowledged")

	subConn.SetReadDeadline(deadlineSoon())
	buf := make([]byte, 16)
	_, err := subConn.Read(buf)
	assert.Error(t, err, "denied publish must not be routed to subscribers")
}

func TestQoS2RoutesAtPubrelNotPublish(t *testing.T) {
	p := newTestProcessor()
	_, subConn := connectClient(t, p, "sub1", true)
	connectClient(t, p, "pub1", true)

	_, err := p.HandleSubscribe("sub1", &packet.Subscribe{
		PacketID: 1,
		Filters:  []packet.Filter{{Topic: "q2", QoS: packet.QoSExactlyOnce}},
	})
	require.NoError(t, err)

	ack := p.HandlePublish("pub1", &packet.Publish{Topic: "q2", Payload: []byte("x"), QoS: packet.QoSExactlyOnce, PacketID: 9})
	_, ok := ack.(*packet.PubRec)
	require.True(t, ok)

	subConn.SetReadDeadline(deadlineSoon())
	buf := make([]byte, 16)
	_, err = subConn.Read(buf)
	assert.Error(t, err, "subscriber must not receive anything before PUBREL")

	// net.Pipe is unbuffered: the routed PUBLISH write blocks until the
	// read below drains it, so PUBREL is handled in the background.
	compCh := make(chan *packet.PubComp, 1)
	go func() { compCh <- p.HandlePubRel("pub1", packet.NewPubRel(9)) }()

	subConn.SetReadDeadline(deadlineSoon())
	n, err := subConn.Read(buf)
	require.NoError(t, err, "subscriber must receive the message once PUBREL arrives")

	comp := <-compCh
	require.Equal(t, uint16(9), comp.PacketID)

	got, err := packet.Decode(buf[:n])
	require.NoError(t, err)
	publish, ok := got.(*packet.Publish)
	require.True(t, ok)
	assert.Equal(t, "q2", publish.Topic)
	assert.Equal(t, []byte("x"), publish.Payload)
}

func TestOfflineDeliveriesReplayInOrderOnReconnect(t *testing.T) {
	p := newTestProcessor()
	_, subConn := connectClient(t, p, "sub1", false)
	_, err := p.HandleSubscribe("sub1", &packet.Subscribe{
		PacketID: 1,
		Filters:  []packet.Filter{{Topic: "q1", QoS: packet.QoSAtLeastOnce}},
	})
	require.NoError(t, err)
	subConn.Close()
	desc, _ := p.Registry.Get("sub1")
	p.HandleDisconnect("sub1", desc)

	connectClient(t, p, "pub1", true)
	p.HandlePublish("pub1", &packet.Publish{Topic: "q1", Payload: []byte("m1"), QoS: packet.QoSAtLeastOnce, PacketID: 101})
	p.HandlePublish("pub1", &packet.Publish{Topic: "q1", Payload: []byte("m2"), QoS: packet.QoSAtLeastOnce, PacketID: 102})
	p.HandlePublish("pub1", &packet.Publish{Topic: "q1", Payload: []byte("m3"), QoS: packet.QoSAtLeastOnce, PacketID: 103})

	sess, ok := p.Sessions.Get("sub1")
	require.True(t, ok)
	assert.False(t, sess.IsActive())

	server2, reconnConn := net.Pipe()
	defer reconnConn.Close()
	desc2 := registry.NewDescriptor("sub1", server2, 60, false, 0)
	ack := p.HandleConnect(&packet.Connect{ClientID: "sub1", CleanSession: false, KeepAlive: 60}, desc2)
	require.Equal(t, packet.ConnectionAccepted, ack.ReturnCode)
	// net.Pipe is unbuffered: replay in the background so the reads
	// below can drain each queued PUBLISH as it is written.
	go p.ReplayOffline("sub1")

	for _, want := range []string{"m1", "m2", "m3"} {
		reconnConn.SetReadDeadline(deadlineSoon())
		buf := make([]byte, 64)
		n, err := reconnConn.Read(buf)
		require.NoError(t, err)
		got, err := packet.Decode(buf[:n])
		require.NoError(t, err)
		publish, ok := got.(*packet.Publish)
		require.True(t, ok)
		assert.Equal(t, want, string(publish.Payload))
	}
}

func TestSubscribeMalformedFilterReturnsError(t *testing.T) {
	p := newTestProcessor()
	connectClient(t, p, "sub1", true)

	_, err := p.HandleSubscribe("sub1", &packet.Subscribe{
		PacketID: 1,
		Filters:  []packet.Filter{{Topic: "a/#/b", QoS: packet.QoSAtMostOnce}},
	})
	assert.Error(t, err, "a multi-level wildcard not in the final position must be rejected")

	resp, err := p.HandlePacket("sub1", nil, &packet.Subscribe{
		PacketID: 2,
		Filters:  []packet.Filter{{Topic: "a/#/b", QoS: packet.QoSAtMostOnce}},
	})
	assert.Error(t, err)
	assert.Nil(t, resp)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	p := newTestProcessor()
	_, subConn := connectClient(t, p, "sub1", true)
	p.HandleSubscribe("sub1", &packet.Subscribe{PacketID: 1, Filters: []packet.Filter{{Topic: "t", QoS: packet.QoSAtMostOnce}}})
	p.HandleUnsubscribe("sub1", &packet.Unsubscribe{PacketID: 2, TopicFilters: []string{"t"}})

	p.HandlePublish("pub1", &packet.Publish{Topic: "t", Payload: []byte("z"), QoS: packet.QoSAtMostOnce})

	subConn.SetReadDeadline(deadlineSoon())
	buf := make([]byte, 16)
	_, err := subConn.Read(buf)
	assert.Error(t, err)
}

func deadlineSoon() time.Time {
	return time.Now().Add(50 * time.Millisecond)
}

type rejectingAuthenticator struct{}

func (rejectingAuthenticator) CheckValid(username, password string) byte {
	return packet.BadUsernameOrPassword
}

type denyAllAuthorizator struct{}

func (denyAllAuthorizator) CanRead(clientID, topicName string) bool  { return true }
func (denyAllAuthorizator) CanWrite(clientID, topicName string) bool { return false }
