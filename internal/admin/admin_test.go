package admin

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vexmq/broker/internal/auth"
	"github.com/vexmq/broker/internal/broker"
	"github.com/vexmq/broker/internal/interceptor"
	"github.com/vexmq/broker/internal/logger"
	"github.com/vexmq/broker/internal/packet"
	"github.com/vexmq/broker/internal/registry"
	"github.com/vexmq/broker/internal/session"
	"github.com/vexmq/broker/internal/store/memory"
	"github.com/vexmq/broker/internal/subscription"
	"github.com/vexmq/broker/internal/will"
)

func newTestProcessor() *broker.Processor {
	return broker.New(
		session.NewStore(),
		subscription.New(),
		registry.New(),
		will.New(),
		memory.New(),
		auth.AllowAllAuthenticator{},
		auth.AllowAllAuthorizator{},
		interceptor.New(),
		logger.New(logger.DevelopmentConfig()),
	)
}

func dialAndSend(t *testing.T, addr net.Addr, cmd string) map[string]any {
	t.Helper()
	conn, err := net.DialTimeout("tcp", addr.String(), time.Second)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte(cmd + "\n"))
	require.NoError(t, err)

	line, err := bufio.NewReader(conn).ReadString('\n')
	require.NoError(t, err)

	var resp map[string]any
	require.NoError(t, json.Unmarshal([]byte(line), &resp))
	return resp
}

func TestStatsReflectsSessionsAndInFlight(t *testing.T) {
	p := newTestProcessor()
	server, client := net.Pipe()
	defer client.Close()
	desc := registry.NewDescriptor("c1", server, 60, true, 0)
	p.HandleConnect(&packet.Connect{ClientID: "c1", CleanSession: true, KeepAlive: 60}, desc)

	sess, ok := p.Sessions.Get("c1")
	require.True(t, ok)
	sess.AddPending(&session.Pending{PacketID: 1, Topic: "t", Payload: []byte("x"), QoS: packet.QoSAtLeastOnce})

	srv := New(p)
	require.NoError(t, srv.Start(context.Background(), "tcp", "127.0.0.1:0"))
	defer srv.Stop()

	resp := dialAndSend(t, srv.listener.Addr(), "stats")
	assert.EqualValues(t, 1, resp["sessions"])
	assert.EqualValues(t, 1, resp["connected"])
	assert.EqualValues(t, 1, resp["in_flight"])
}

func TestUnknownCommandReturnsError(t *testing.T) {
	p := newTestProcessor()
	srv := New(p)
	require.NoError(t, srv.Start(context.Background(), "tcp", "127.0.0.1:0"))
	defer srv.Stop()

	resp := dialAndSend(t, srv.listener.Addr(), "bogus")
	assert.Contains(t, resp["error"], "unknown command")
}
