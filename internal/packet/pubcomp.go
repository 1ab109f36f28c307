package packet

// PubComp completes the QoS 2 handshake.
type PubComp struct {
	PacketID uint16
}

func (p *PubComp) Type() PacketType { return PUBCOMP }

func (p *PubComp) Encode() []byte {
	return encodeHeader(PUBCOMP, 0, encodePacketID(p.PacketID))
}

// NewPubComp is a convenience constructor used by the broker's PUBREL
// handler.
func NewPubComp(packetID uint16) *PubComp {
	return &PubComp{PacketID: packetID}
}

// DecodePubComp decodes a PUBCOMP sent by a client.
func DecodePubComp(raw []byte) (*PubComp, error) {
	id, err := decodeAckPacketID(raw, PUBCOMP)
	if err != nil {
		return nil, err
	}
	return &PubComp{PacketID: id}, nil
}
