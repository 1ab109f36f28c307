// Package registry tracks the live connections currently attached to
// the broker: one Descriptor per connected client, keyed by client id.
// It is distinct from internal/session, which tracks durable state
// that outlives any one connection.
package registry

import (
	"net"
	"sync"
	"sync/atomic"
)

// Descriptor is the live-connection handle the broker uses to write
// outbound packets and to decide whether an incoming connection is
// stealing an already-connected client's identity.
type Descriptor struct {
	ClientID     string
	Conn         net.Conn
	KeepAlive    uint16
	CleanSession bool
	ConnectedAt  int64

	// writeMu serializes writes to Conn; the processor and the QoS
	// retry sweep can both want to write to the same connection.
	writeMu sync.Mutex
	closed  atomic.Bool
}

// NewDescriptor wraps a freshly accepted connection.
func NewDescriptor(clientID string, conn net.Conn, keepAlive uint16, cleanSession bool, connectedAt int64) *Descriptor {
	return &Descriptor{
		ClientID:     clientID,
		Conn:         conn,
		KeepAlive:    keepAlive,
		CleanSession: cleanSession,
		ConnectedAt:  connectedAt,
	}
}

// Write sends raw bytes to the client, serialized against any other
// writer using the same descriptor.
func (d *Descriptor) Write(b []byte) error {
	d.writeMu.Lock()
	defer d.writeMu.Unlock()
	_, err := d.Conn.Write(b)
	return err
}

// Close marks the descriptor closed and closes the underlying
// connection. Safe to call more than once.
func (d *Descriptor) Close() error {
	if d.closed.Swap(true) {
		return nil
	}
	return d.Conn.Close()
}

// Closed reports whether Close has already run.
func (d *Descriptor) Closed() bool {
	return d.closed.Load()
}

// Registry is the set of currently connected clients, keyed by client
// id. Backed by sync.Map: connect/disconnect churn (one write per
// connection lifecycle) fits its amortized-lock-free read path better
// than a copy-on-write snapshot, which internal/session reserves for
// its lower-churn session map.
type Registry struct {
	conns sync.Map // clientID -> *Descriptor
}

// New returns an empty connection registry.
func New() *Registry {
	return &Registry{}
}

// Put registers desc under its client id, returning the previous
// descriptor for that client id if one was already connected (the
// "new connection steals an old one" case).
func (r *Registry) Put(desc *Descriptor) (previous *Descriptor, existed bool) {
	old, loaded := r.conns.Swap(desc.ClientID, desc)
	if !loaded {
		return nil, false
	}
	return old.(*Descriptor), true
}

// Get returns the descriptor currently registered for clientID.
func (r *Registry) Get(clientID string) (*Descriptor, bool) {
	v, ok := r.conns.Load(clientID)
	if !ok {
		return nil, false
	}
	return v.(*Descriptor), true
}

// Remove drops clientID's descriptor entirely.
func (r *Registry) Remove(clientID string) {
	r.conns.Delete(clientID)
}

// RemoveIfMatches removes clientID's descriptor only if it is still
// desc — guards against a disconnect handler racing a newer connection
// that already replaced the descriptor via Put.
func (r *Registry) RemoveIfMatches(clientID string, desc *Descriptor) bool {
	return r.conns.CompareAndDelete(clientID, desc)
}

// Range calls fn for every currently registered descriptor, stopping
// early if fn returns false.
func (r *Registry) Range(fn func(clientID string, desc *Descriptor) bool) {
	r.conns.Range(func(k, v any) bool {
		return fn(k.(string), v.(*Descriptor))
	})
}
