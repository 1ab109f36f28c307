package broker

import (
	"time"

	"github.com/google/uuid"

	"github.com/vexmq/broker/internal/logger"
	"github.com/vexmq/broker/internal/packet"
	"github.com/vexmq/broker/internal/session"
	"github.com/vexmq/broker/internal/store"
	"github.com/vexmq/broker/internal/will"
)

// HandlePublish processes an inbound PUBLISH from clientID and returns
// the packet to acknowledge it with, if any (PUBACK for QoS 1, PUBREC
// for QoS 2, nil for QoS 0). A client denied write access to pub.Topic
// still gets its acknowledgement — the spec requires the handshake to
// complete — but the message is neither stored nor routed.
//
// QoS 2 is special: the broker PUBRECs and holds the payload in the
// publisher's session, but does not route it to subscribers yet.
// Routing happens when the publisher's PUBREL arrives (HandlePubRel),
// not here.
func (p *Processor) HandlePublish(clientID string, pub *packet.Publish) packet.Packet {
	if pub.QoS == packet.QoSExactlyOnce {
		if sess, ok := p.Sessions.Get(clientID); ok && sess.IsReceiving(pub.PacketID) {
			// duplicate delivery mid-handshake: re-ack without re-routing
			return packet.NewPubRec(pub.PacketID)
		}
	}

	if !p.Authorizator.CanWrite(clientID, pub.Topic) {
		p.Logger.LogPublish(clientID, pub.Topic, int(pub.QoS), pub.Retain, len(pub.Payload),
			logger.String("outcome", "denied"))
		return p.ackFor(pub)
	}

	if pub.QoS == packet.QoSExactlyOnce {
		if sess, ok := p.Sessions.Get(clientID); ok {
			sess.MarkReceiving(pub.PacketID, session.Incoming{
				Topic:   pub.Topic,
				Payload: pub.Payload,
				QoS:     pub.QoS,
				Retain:  pub.Retain,
			})
		}
		p.Logger.LogPublish(clientID, pub.Topic, int(pub.QoS), pub.Retain, len(pub.Payload))
		p.Observers.FirePublish(clientID, pub)
		return p.ackFor(pub)
	}

	if pub.Retain {
		p.storeRetained(pub.Topic, pub.Payload, pub.QoS)
	}

	p.route2Subscribers(pub)
	p.Logger.LogPublish(clientID, pub.Topic, int(pub.QoS), pub.Retain, len(pub.Payload))
	p.Observers.FirePublish(clientID, pub)

	return p.ackFor(pub)
}

func (p *Processor) ackFor(pub *packet.Publish) packet.Packet {
	switch pub.QoS {
	case packet.QoSAtLeastOnce:
		return packet.NewPubAck(pub.PacketID)
	case packet.QoSExactlyOnce:
		return packet.NewPubRec(pub.PacketID)
	default:
		return nil
	}
}

func (p *Processor) storeRetained(topicName string, payload []byte, qos packet.QoS) {
	if len(payload) == 0 {
		_ = p.Messages.CleanRetained(topicName)
		p.Logger.LogRetainedMessage(topicName, "removed", 0)
		return
	}
	_ = p.Messages.StoreRetained(topicName, store.Message{
		Topic:    topicName,
		Payload:  payload,
		QoS:      qos,
		Retain:   true,
		StoredAt: time.Now(),
	})
	p.Logger.LogRetainedMessage(topicName, "stored", len(payload))
}

// route2Subscribers fans pub out to every subscriber whose filter
// matches pub.Topic, delivering at the minimum of the published and
// subscribed QoS.
func (p *Processor) route2Subscribers(pub *packet.Publish) {
	matches := p.Subscriptions.Match(pub.Topic)
	for _, sub := range matches {
		p.deliver(sub.ClientID, pub.Topic, pub.Payload, minQoS(pub.QoS, sub.QoS), false)
	}
}

// deliver routes a PUBLISH for (topicName, payload) to clientID at
// qos. A QoS 0 delivery is fire-and-forget: sent if the client is
// live, dropped otherwise. A QoS>0 delivery is handed to the session's
// Route, which — atomically with the session's active flag — either
// sends it immediately (live session) or appends it to the session's
// ordered offline queue for replay at the client's next CONNECT
// (persistent, currently-disconnected session). A disconnected
// clean-session subscriber gets neither: there is no delivery
// guarantee for an offline clean-session peer.
func (p *Processor) deliver(clientID, topicName string, payload []byte, qos packet.QoS, retained bool) {
	sess, ok := p.Sessions.Get(clientID)
	if !ok {
		return
	}

	if qos == packet.QoSAtMostOnce {
		out := &packet.Publish{Topic: topicName, Payload: payload, QoS: qos, Retain: retained}
		p.writeTo(clientID, out.Encode())
		return
	}

	pending := &session.Pending{Topic: topicName, QoS: qos, Retained: retained, SentAt: time.Now()}

	if sess.IsActive() {
		pending.Payload = payload
	} else {
		id := uuid.NewString()
		if err := p.Messages.StorePublishForFuture(store.Message{
			ID:       id,
			Topic:    topicName,
			Payload:  payload,
			QoS:      qos,
			Retain:   retained,
			StoredAt: time.Now(),
		}); err != nil {
			p.Logger.LogError(err, "failed to store offline delivery", logger.ClientID(clientID))
			return
		}
		pending.GUID = id
	}

	sent := sess.Route(pending)
	if sent == nil {
		return
	}
	out := &packet.Publish{Topic: sent.Topic, Payload: sent.Payload, QoS: sent.QoS, Retain: sent.Retained, PacketID: sent.PacketID}
	p.writeTo(clientID, out.Encode())
}

// ReplayOffline activates clientID's session and sends every delivery
// queued while it was offline, in order, over its now-live connection.
// Callers must invoke this only after the CONNACK for the new
// connection has already been written — and before the connection's
// read loop starts processing further traffic — so replayed messages
// never arrive ahead of the CONNACK or race a freshly-arriving publish.
func (p *Processor) ReplayOffline(clientID string) {
	sess, ok := p.Sessions.Get(clientID)
	if !ok {
		return
	}

	for _, pending := range sess.Activate() {
		payload := pending.Payload
		if pending.GUID != "" {
			if msg, err := p.Messages.Retrieve(pending.GUID); err == nil {
				payload = msg.Payload
			} else {
				p.Logger.LogError(err, "failed to retrieve queued delivery", logger.ClientID(clientID))
				continue
			}
		}

		pending.PacketID = sess.NextPacketID()
		pending.Payload = payload
		sess.AddPending(pending)

		out := &packet.Publish{Topic: pending.Topic, Payload: payload, QoS: pending.QoS, Retain: pending.Retained, PacketID: pending.PacketID}
		p.writeTo(clientID, out.Encode())
	}
}

// writeTo writes raw bytes to clientID's live connection, if any. An
// unknown-client race — the descriptor vanished mid fan-out — is not
// fatal; a QoS>0 message stays in the session's pending set, while a
// QoS 0 message is simply dropped.
func (p *Processor) writeTo(clientID string, data []byte) {
	desc, ok := p.Registry.Get(clientID)
	if !ok {
		return
	}
	if err := desc.Write(data); err != nil {
		p.Logger.LogError(err, "write failed", logger.ClientID(clientID))
	}
}

// publishWill delivers a disconnected client's registered will message
// exactly as an ordinary PUBLISH from that client would be routed.
func (p *Processor) publishWill(clientID string, msg will.Message) {
	pub := &packet.Publish{Topic: msg.Topic, Payload: msg.Payload, QoS: msg.QoS, Retain: msg.Retain}
	if msg.Retain {
		p.storeRetained(msg.Topic, msg.Payload, msg.QoS)
	}
	p.route2Subscribers(pub)
	p.Logger.LogPublish(clientID, msg.Topic, int(msg.QoS), msg.Retain, len(msg.Payload),
		logger.String("source", "will"))
}
