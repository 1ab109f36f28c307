package broker

import (
	"github.com/vexmq/broker/internal/packet"
)

// HandlePubAck resolves a QoS 1 delivery once the receiving client
// confirms it.
func (p *Processor) HandlePubAck(clientID string, ack *packet.PubAck) {
	sess, ok := p.Sessions.Get(clientID)
	if !ok {
		return
	}
	sess.ResolvePending(ack.PacketID)
	p.Logger.LogQoSFlow(clientID, ack.PacketID, int(packet.QoSAtLeastOnce), "PUBACK_RECEIVED")
	p.Observers.FirePuback(clientID, ack.PacketID)
}

// HandlePubRec advances a QoS 2 outgoing delivery from "awaiting
// PUBREC" to "awaiting PUBCOMP" and returns the PUBREL to send back.
func (p *Processor) HandlePubRec(clientID string, rec *packet.PubRec) *packet.PubRel {
	if sess, ok := p.Sessions.Get(clientID); ok {
		sess.MarkPubrecReceived(rec.PacketID)
	}
	p.Logger.LogQoSFlow(clientID, rec.PacketID, int(packet.QoSExactlyOnce), "PUBREC_RECEIVED")
	return packet.NewPubRel(rec.PacketID)
}

// HandlePubRel completes the inbound half of a QoS 2 handshake —
// clientID published, the broker PUBREC'd, and the client now releases
// it — and returns the PUBCOMP to send back. This is when the message
// is finally routed to subscribers and (if retained) applied to the
// retained-message store; HandlePublish only held it. Per the spec, a
// PUBCOMP is always sent, even if the broker has no memory of the
// packet id (a retransmitted PUBREL after the broker already completed
// it), in which case there is nothing left to route.
func (p *Processor) HandlePubRel(clientID string, rel *packet.PubRel) *packet.PubComp {
	if sess, ok := p.Sessions.Get(clientID); ok {
		if in, found := sess.ResolveReceiving(rel.PacketID); found {
			if in.Retain {
				p.storeRetained(in.Topic, in.Payload, in.QoS)
			}
			p.route2Subscribers(&packet.Publish{Topic: in.Topic, Payload: in.Payload, QoS: in.QoS, Retain: in.Retain})
		}
	}
	p.Logger.LogQoSFlow(clientID, rel.PacketID, int(packet.QoSExactlyOnce), "PUBREL_RECEIVED")
	return packet.NewPubComp(rel.PacketID)
}

// HandlePubComp resolves a QoS 2 outgoing delivery once the receiving
// client confirms the release.
func (p *Processor) HandlePubComp(clientID string, comp *packet.PubComp) {
	sess, ok := p.Sessions.Get(clientID)
	if !ok {
		return
	}
	sess.ResolvePending(comp.PacketID)
	p.Logger.LogQoSFlow(clientID, comp.PacketID, int(packet.QoSExactlyOnce), "PUBCOMP_RECEIVED")
	p.Observers.FirePuback(clientID, comp.PacketID)
}
