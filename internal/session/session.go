// Package session tracks per-client broker state: the client's
// outstanding QoS 1/2 deliveries and the packet-id counter used to
// number them. The broker keeps wills in internal/will and never sets
// Session.Will. Subscriptions themselves live in internal/subscription;
// a session only remembers the filter strings so a resumed session can
// be reinstated into the subscription tree.
package session

import (
	"sync"
	"time"

	"github.com/vexmq/broker/internal/packet"
)

// Will is the message the broker publishes on the client's behalf if
// the connection drops without a clean DISCONNECT.
type Will struct {
	Topic   string
	Message []byte
	QoS     packet.QoS
	Retain  bool
}

// Pending is an outgoing QoS 1/2 message awaiting acknowledgement, or
// (PacketID == 0) still sitting in the offline queue waiting for the
// client to reconnect.
type Pending struct {
	PacketID uint16
	Topic    string
	Payload  []byte
	QoS      packet.QoS
	Retained bool
	Attempts int
	SentAt   time.Time
	// GUID references the payload in the message store instead of
	// carrying it inline; used for offline-queued deliveries. Each
	// queued delivery is stored under its own GUID, so a broadcast to
	// many disconnected subscribers stores one copy of the payload per
	// queue entry.
	GUID string
	// PubrecReceived marks a QoS 2 delivery that reached the PUBREL
	// stage; the broker is now waiting on PUBCOMP, not PUBREC.
	PubrecReceived bool
}

// Incoming is an inbound QoS 2 publish held between PUBREC and PUBREL:
// the broker has acknowledged it but must not route it to subscribers
// until the publisher sends PUBREL.
type Incoming struct {
	Topic   string
	Payload []byte
	QoS     packet.QoS
	Retain  bool
}

// Session is one client's durable state, independent of any particular
// TCP/WebSocket connection. A reconnecting client with CleanSession
// false is reunited with the same Session.
type Session struct {
	ClientID     string
	CleanSession bool
	Will         *Will
	KeepAlive    uint16
	ConnectedAt  int64

	Filters map[string]packet.QoS

	mu       sync.Mutex
	active   bool
	nextID   uint16
	outgoing map[uint16]*Pending  // in-flight QoS 1/2 deliveries awaiting ack
	enqueued []*Pending           // ordered offline queue, no packet id assigned yet
	incoming map[uint16]*Incoming // inbound QoS 2 publishes awaiting PUBREL
}

// New creates an empty session for clientID.
func New(clientID string, cleanSession bool) *Session {
	return &Session{
		ClientID:     clientID,
		CleanSession: cleanSession,
		Filters:      make(map[string]packet.QoS),
		outgoing:     make(map[uint16]*Pending),
		incoming:     make(map[uint16]*Incoming),
		nextID:       1,
	}
}

func (s *Session) nextPacketIDLocked() uint16 {
	for {
		id := s.nextID
		s.nextID++
		if s.nextID == 0 {
			s.nextID = 1
		}
		if _, inFlight := s.outgoing[id]; inFlight {
			continue
		}
		if _, midHandshake := s.incoming[id]; midHandshake {
			continue
		}
		return id
	}
}

// NextPacketID returns the next packet id for an outgoing QoS 1/2
// message: skips 0 (reserved), wraps at 16 bits, and skips any id
// still in flight or mid QoS-2 handshake so a wrapped counter never
// hands out an id that is still outstanding.
func (s *Session) NextPacketID() uint16 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextPacketIDLocked()
}

// AddPending records an outgoing delivery awaiting acknowledgement.
func (s *Session) AddPending(p *Pending) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outgoing[p.PacketID] = p
}

// Pending returns the outgoing delivery for packetID, if any.
func (s *Session) Pending(packetID uint16) (*Pending, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.outgoing[packetID]
	return p, ok
}

// ResolvePending removes an outgoing delivery once it is fully
// acknowledged (PUBACK for QoS 1, PUBCOMP for QoS 2).
func (s *Session) ResolvePending(packetID uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.outgoing, packetID)
}

// MarkPubrecReceived transitions a QoS 2 outgoing delivery from
// awaiting-PUBREC to awaiting-PUBCOMP.
func (s *Session) MarkPubrecReceived(packetID uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.outgoing[packetID]; ok {
		p.PubrecReceived = true
	}
}

// AllPending returns every in-flight delivery still awaiting
// acknowledgement, used by the retry sweep. It does not include
// offline-queued deliveries, which have no packet id yet.
func (s *Session) AllPending() []*Pending {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Pending, 0, len(s.outgoing))
	for _, p := range s.outgoing {
		out = append(out, p)
	}
	return out
}

// IsActive reports whether the session currently has a live
// connection, per the last Activate/Deactivate call.
func (s *Session) IsActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Route decides, atomically with the session's active flag, how a
// QoS>0 delivery proceeds:
//   - active session: pending is assigned a fresh packet id, recorded
//     as in-flight, and returned so the caller can write it out live.
//   - inactive, persistent session: pending is appended to the ordered
//     offline queue (no packet id yet) and nil is returned.
//   - inactive, clean session: pending is dropped (no delivery
//     guarantee for offline clean-session peers) and nil is returned.
//
// Deciding the active flag and the enqueue-vs-send choice under the
// same lock that Activate uses is what keeps a reconnect's replay
// ahead of any publish that arrives for this client right as it goes
// live: either this call is serialized before Activate (so it lands
// in the batch Activate drains and replays first) or after (so it
// only runs once the session is already marked active).
func (s *Session) Route(pending *Pending) *Pending {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.active {
		if s.CleanSession {
			return nil
		}
		s.enqueued = append(s.enqueued, pending)
		return nil
	}

	pending.PacketID = s.nextPacketIDLocked()
	s.outgoing[pending.PacketID] = pending
	return pending
}

// Activate marks the session live and returns, in order, every
// delivery queued while it was offline. Callers must send these, in
// order, before treating the session as caught up — typically right
// after writing the CONNACK for the new connection, and before its
// read loop starts processing further traffic.
func (s *Session) Activate() []*Pending {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = true
	out := s.enqueued
	s.enqueued = nil
	return out
}

// Deactivate marks the session offline; subsequent QoS>0 deliveries
// queue in order instead of sending live.
func (s *Session) Deactivate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = false
}

// MarkReceiving records that packetID's PUBLISH has been PUBREC'd and
// the broker is now waiting for the client's PUBREL before the
// message can be routed to subscribers, keeping the payload so PUBREL
// can recover it.
func (s *Session) MarkReceiving(packetID uint16, in Incoming) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.incoming[packetID] = &in
}

// IsReceiving reports whether packetID is mid-QoS-2-handshake on the
// inbound side.
func (s *Session) IsReceiving(packetID uint16) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.incoming[packetID]
	return ok
}

// ResolveReceiving completes the inbound QoS 2 handshake for packetID,
// returning the publish that was held since PUBREC so the caller can
// route it now.
func (s *Session) ResolveReceiving(packetID uint16) (*Incoming, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	in, ok := s.incoming[packetID]
	delete(s.incoming, packetID)
	return in, ok
}

// Reset clears all per-connection state while keeping the session's
// identity. The broker does not call it: a clean-session CONNECT
// replaces the session with a new one instead.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Filters = make(map[string]packet.QoS)
	s.outgoing = make(map[uint16]*Pending)
	s.incoming = make(map[uint16]*Incoming)
	s.enqueued = nil
	s.nextID = 1
}
