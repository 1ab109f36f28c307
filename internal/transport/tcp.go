// Package transport accepts MQTT connections over TCP and WebSocket and
// feeds decoded packets to a broker.Processor; it owns framing and
// connection lifecycle, nothing about MQTT semantics itself.
package transport

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync/atomic"
	"time"

	"gopkg.in/tomb.v2"

	"github.com/vexmq/broker/internal/broker"
	"github.com/vexmq/broker/internal/config"
	"github.com/vexmq/broker/internal/er"
	"github.com/vexmq/broker/internal/packet"
	"github.com/vexmq/broker/internal/registry"
)

// errGracefulDisconnect marks a connection that ended because the
// client sent DISCONNECT; the processor has already torn it down by
// the time the supervisor observes it, so no HandleConnectionLost call
// follows.
var errGracefulDisconnect = errors.New("client sent DISCONNECT")

// TCPServer accepts plain-TCP MQTT connections. Each connection runs a
// read-loop goroutine and a keepalive-watch goroutine, supervised
// together by a tomb.Tomb so either one dying tears the other down.
type TCPServer struct {
	addr           string
	listener       net.Listener
	processor      *broker.Processor
	maxConnections int32
	rateLimit      config.RateLimit

	shuttingDown atomic.Bool
	connCount    atomic.Int32
}

// NewTCP returns a TCPServer that dispatches decoded packets to processor.
func NewTCP(addr string, processor *broker.Processor, maxConnections int, rl config.RateLimit) *TCPServer {
	return &TCPServer{
		addr:           addr,
		processor:      processor,
		maxConnections: int32(maxConnections),
		rateLimit:      rl,
	}
}

// newFromListener builds a server around an already-listening
// net.Listener, used by NewWebSocket to reuse the same accept/framing
// machinery over an HTTP upgrade instead of a raw TCP listen.
func newFromListener(listener net.Listener, processor *broker.Processor, maxConnections int, rl config.RateLimit) *TCPServer {
	return &TCPServer{
		addr:           listener.Addr().String(),
		listener:       listener,
		processor:      processor,
		maxConnections: int32(maxConnections),
		rateLimit:      rl,
	}
}

// Start begins accepting connections in the background. If the server
// was built from an already-bound listener (the WebSocket case), it is
// reused as-is.
func (srv *TCPServer) Start(ctx context.Context) error {
	if srv.listener == nil {
		listener, err := net.Listen("tcp", srv.addr)
		if err != nil {
			return fmt.Errorf("transport: listen %s: %w", srv.addr, err)
		}
		srv.listener = listener
	}
	go srv.accept(ctx)
	return nil
}

// Addr returns the listener's bound address; only valid after Start.
func (srv *TCPServer) Addr() net.Addr {
	return srv.listener.Addr()
}

// Stop closes the listener; connections already accepted run to
// completion on their own.
func (srv *TCPServer) Stop() error {
	srv.shuttingDown.Store(true)
	if srv.listener == nil {
		return nil
	}
	return srv.listener.Close()
}

func (srv *TCPServer) accept(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		conn, err := srv.listener.Accept()
		if err != nil {
			if srv.shuttingDown.Load() {
				return
			}
			srv.processor.Logger.LogError(err, "tcp accept failed")
			continue
		}
		go srv.handleConnection(conn)
	}
}

func (srv *TCPServer) handleConnection(conn net.Conn) {
	defer conn.Close()

	if srv.connCount.Load() >= srv.maxConnections {
		ack := packet.NewConnAck(false, packet.ServerUnavailable)
		conn.Write(ack.Encode())
		return
	}
	srv.connCount.Add(1)
	defer srv.connCount.Add(-1)

	limited := rateLimitedReader(conn, srv.rateLimit.BytesPerSecond, srv.rateLimit.Burst)
	reader := bufio.NewReader(limited)

	clientID, desc, err := srv.handshake(conn, reader)
	if err != nil {
		return
	}

	activity := &atomic.Int64{}
	activity.Store(time.Now().UnixNano())

	var t tomb.Tomb
	t.Go(func() error { return srv.readLoop(&t, clientID, desc, reader, activity) })
	t.Go(func() error { return srv.watchKeepAlive(&t, desc, activity) })

	t.Wait()

	if walkErr := t.Err(); walkErr != nil && !errors.Is(walkErr, errGracefulDisconnect) {
		srv.processor.HandleConnectionLost(clientID, desc, walkErr)
	}
}

// handshake reads the mandatory first CONNECT packet, authenticates
// and registers the connection, and writes back the CONNACK. A framing
// failure closes the connection with no reply. A CONNECT that fails to
// decode gets a CONNACK carrying the return code connectErrorCode maps
// its error to, and a decodable but rejected CONNECT gets the
// authenticator's CONNACK; either way the connection then closes.
//
// On acceptance, it also replays the session's queued offline
// deliveries (if any) in order, right here, after the CONNACK write
// and before returning — so those packets land on the wire after the
// CONNACK and before the connection's read loop starts processing
// anything else.
func (srv *TCPServer) handshake(conn net.Conn, reader *bufio.Reader) (string, *registry.Descriptor, error) {
	raw, err := readPacket(reader)
	if err != nil {
		return "", nil, err
	}

	cp, err := packet.DecodeConnect(raw)
	if err != nil {
		srv.processor.Logger.LogError(err, "malformed CONNECT")
		conn.Write(packet.NewConnAck(false, connectErrorCode(err)).Encode())
		return "", nil, err
	}

	desc := registry.NewDescriptor(cp.ClientID, conn, cp.KeepAlive, cp.CleanSession, time.Now().Unix())
	ack := srv.processor.HandleConnect(cp, desc)

	if _, werr := conn.Write(ack.Encode()); werr != nil {
		return "", nil, werr
	}
	if ack.ReturnCode != packet.ConnectionAccepted {
		return "", nil, fmt.Errorf("transport: connect rejected: code %d", ack.ReturnCode)
	}

	srv.processor.ReplayOffline(cp.ClientID)

	return cp.ClientID, desc, nil
}

// connectErrorCode maps a CONNECT decode failure to the CONNACK return
// code the MQTT spec prescribes for it.
func connectErrorCode(err error) byte {
	switch {
	case errors.Is(err, er.ErrUnsupportedProtocolLevel), errors.Is(err, er.ErrUnsupportedProtocolName):
		return packet.UnacceptableProtocolVersion
	case errors.Is(err, er.ErrInvalidCharsClientID),
		errors.Is(err, er.ErrClientIDLengthExceed),
		errors.Is(err, er.ErrIdentifierRejected):
		return packet.IdentifierRejected
	case errors.Is(err, er.ErrPasswordWithoutUsername),
		errors.Is(err, er.ErrMalformedUsernameField),
		errors.Is(err, er.ErrMalformedPasswordField):
		return packet.BadUsernameOrPassword
	default:
		return packet.ServerUnavailable
	}
}

func (srv *TCPServer) readLoop(t *tomb.Tomb, clientID string, desc *registry.Descriptor, reader *bufio.Reader, activity *atomic.Int64) error {
	for {
		select {
		case <-t.Dying():
			return nil
		default:
		}

		raw, err := readPacket(reader)
		if err != nil {
			return err
		}
		activity.Store(time.Now().UnixNano())

		pkt, err := packet.Decode(raw)
		if err != nil {
			return err
		}

		resp, err := srv.processor.HandlePacket(clientID, desc, pkt)
		if err != nil {
			return err
		}
		if resp != nil {
			if werr := desc.Write(resp.Encode()); werr != nil {
				return werr
			}
		}
		if _, ok := pkt.(*packet.Disconnect); ok {
			return errGracefulDisconnect
		}
	}
}

// watchKeepAlive closes the connection once no packet has been read
// for 1.5x the client's negotiated keepalive interval, the grace
// period MQTT allows before treating a silent client as gone. A zero
// KeepAlive disables the check.
func (srv *TCPServer) watchKeepAlive(t *tomb.Tomb, desc *registry.Descriptor, activity *atomic.Int64) error {
	if desc.KeepAlive == 0 {
		<-t.Dying()
		return nil
	}

	timeout := time.Duration(float64(desc.KeepAlive) * 1.5 * float64(time.Second))
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-t.Dying():
			return nil
		case <-ticker.C:
			last := time.Unix(0, activity.Load())
			if time.Since(last) > timeout {
				desc.Close()
				return fmt.Errorf("transport: keepalive timeout after %s", timeout)
			}
		}
	}
}

// readPacket reads exactly one MQTT packet (fixed header, remaining
// length, body) from r without over-reading into the next packet.
func readPacket(r *bufio.Reader) ([]byte, error) {
	for n := 2; n <= 5; n++ {
		peeked, err := r.Peek(n)
		if err != nil {
			if len(peeked) == 0 && errors.Is(err, io.EOF) {
				return nil, io.EOF
			}
			return nil, err
		}

		total, _, ferr := packet.ReadFixedHeader(peeked)
		if ferr == nil {
			buf := make([]byte, total)
			if _, err := io.ReadFull(r, buf); err != nil {
				return nil, err
			}
			return buf, nil
		}
		if !errors.Is(ferr, er.ErrShortBuffer) {
			return nil, ferr
		}
	}
	return nil, fmt.Errorf("transport: remaining length field too long")
}
