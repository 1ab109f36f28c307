package transport

import (
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vexmq/broker/internal/broker"
	"github.com/vexmq/broker/internal/config"
)

// NewWebSocket builds a TCPServer that accepts MQTT-over-WebSocket
// connections on path, reusing the same framing and HandlePacket
// dispatch as the plain TCP listener — a wsConn satisfies net.Conn, so
// nothing downstream of Accept needs to know the transport differs.
func NewWebSocket(addr, path string, processor *broker.Processor, maxConnections int, rl config.RateLimit) (*TCPServer, error) {
	if path == "" {
		path = "/mqtt"
	}

	listener, err := newWSListener(addr, path)
	if err != nil {
		return nil, err
	}
	return newFromListener(listener, processor, maxConnections, rl), nil
}

// wsListener implements net.Listener by running an http.Server that
// upgrades every request on path to a WebSocket, handing each upgraded
// connection to Accept's caller as a net.Conn.
type wsListener struct {
	tcp       net.Listener
	server    *http.Server
	upgrader  websocket.Upgrader
	connCh    chan net.Conn
	errCh     chan error
	closeOnce sync.Once
	closeCh   chan struct{}
}

func newWSListener(addr, path string) (*wsListener, error) {
	tcp, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	l := &wsListener{
		tcp:     tcp,
		connCh:  make(chan net.Conn, 64),
		errCh:   make(chan error, 1),
		closeCh: make(chan struct{}),
		upgrader: websocket.Upgrader{
			Subprotocols: []string{"mqtt"},
			CheckOrigin:  func(r *http.Request) bool { return true },
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc(path, l.handleUpgrade)
	l.server = &http.Server{Handler: mux}

	go func() {
		if err := l.server.Serve(tcp); err != nil && err != http.ErrServerClosed {
			select {
			case l.errCh <- err:
			default:
			}
		}
	}()

	return l, nil
}

func (l *wsListener) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	ws, err := l.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	conn := &wsConn{ws: ws}
	select {
	case l.connCh <- conn:
	case <-l.closeCh:
		conn.Close()
	}
}

func (l *wsListener) Accept() (net.Conn, error) {
	select {
	case conn := <-l.connCh:
		return conn, nil
	case err := <-l.errCh:
		return nil, err
	case <-l.closeCh:
		return nil, net.ErrClosed
	}
}

func (l *wsListener) Close() error {
	l.closeOnce.Do(func() {
		close(l.closeCh)
		l.server.Close()
	})
	return nil
}

func (l *wsListener) Addr() net.Addr {
	return l.tcp.Addr()
}

// wsConn adapts a *websocket.Conn to net.Conn so the broker's framing
// reader can treat it exactly like a plain TCP socket. MQTT packets
// are carried as binary WebSocket messages; a message boundary has no
// meaning to the MQTT framing, so a message that doesn't exactly
// contain one packet is buffered across Read calls.
type wsConn struct {
	ws      *websocket.Conn
	pending []byte
	writeMu sync.Mutex
}

func (c *wsConn) Read(b []byte) (int, error) {
	if len(c.pending) > 0 {
		n := copy(b, c.pending)
		c.pending = c.pending[n:]
		return n, nil
	}

	_, data, err := c.ws.ReadMessage()
	if err != nil {
		return 0, err
	}
	n := copy(b, data)
	if n < len(data) {
		c.pending = data[n:]
	}
	return n, nil
}

func (c *wsConn) Write(b []byte) (int, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.ws.WriteMessage(websocket.BinaryMessage, b); err != nil {
		return 0, err
	}
	return len(b), nil
}

func (c *wsConn) Close() error                       { return c.ws.Close() }
func (c *wsConn) LocalAddr() net.Addr                { return c.ws.LocalAddr() }
func (c *wsConn) RemoteAddr() net.Addr               { return c.ws.RemoteAddr() }
func (c *wsConn) SetDeadline(t time.Time) error {
	if err := c.ws.SetReadDeadline(t); err != nil {
		return err
	}
	return c.ws.SetWriteDeadline(t)
}
func (c *wsConn) SetReadDeadline(t time.Time) error  { return c.ws.SetReadDeadline(t) }
func (c *wsConn) SetWriteDeadline(t time.Time) error { return c.ws.SetWriteDeadline(t) }

var _ net.Conn = (*wsConn)(nil)
