package broker

import (
	"github.com/vexmq/broker/internal/packet"
	"github.com/vexmq/broker/internal/registry"
)

// HandlePacket dispatches a single decoded packet for an already
// connected client and returns whatever should be written back to it.
// A nil response with a nil error means the packet needs no reply
// (QoS 0 publishes, PUBACK, PUBCOMP, DISCONNECT — callers should still
// check the concrete handler methods when they need typed results). CONNECT is handled separately
// by HandleConnect, since it precedes the existence of an authenticated
// clientID.
func (p *Processor) HandlePacket(clientID string, desc *registry.Descriptor, pkt packet.Packet) (packet.Packet, error) {
	switch pp := pkt.(type) {
	case *packet.Publish:
		return p.HandlePublish(clientID, pp), nil
	case *packet.PubAck:
		p.HandlePubAck(clientID, pp)
		return nil, nil
	case *packet.PubRec:
		return p.HandlePubRec(clientID, pp), nil
	case *packet.PubRel:
		return p.HandlePubRel(clientID, pp), nil
	case *packet.PubComp:
		p.HandlePubComp(clientID, pp)
		return nil, nil
	case *packet.Subscribe:
		return p.HandleSubscribe(clientID, pp)
	case *packet.Unsubscribe:
		return p.HandleUnsubscribe(clientID, pp), nil
	case *packet.PingReq:
		return packet.NewPingResp(), nil
	case *packet.Disconnect:
		p.HandleDisconnect(clientID, desc)
		return nil, nil
	default:
		return nil, &unsupportedPacketError{pkt: pkt}
	}
}

// unsupportedPacketError marks a packet type the processor never
// expects post-CONNECT (another CONNECT, or anything malformed enough
// to decode as an unknown variant); the transport treats it as a
// protocol violation and closes the connection without a reply.
type unsupportedPacketError struct {
	pkt packet.Packet
}

func (e *unsupportedPacketError) Error() string {
	if e.pkt == nil {
		return "broker: unsupported packet"
	}
	return "broker: unsupported packet type " + e.pkt.Type().String()
}
