package packet

// PubRel is the QoS 2 release step, sent by whichever side just received
// a PUBREC. Its fixed header flags are fixed at 0010 per the spec.
type PubRel struct {
	PacketID uint16
}

func (p *PubRel) Type() PacketType { return PUBREL }

func (p *PubRel) Encode() []byte {
	return encodeHeader(PUBREL, 0x02, encodePacketID(p.PacketID))
}

// NewPubRel is a convenience constructor used by the broker's QoS
// retry manager.
func NewPubRel(packetID uint16) *PubRel {
	return &PubRel{PacketID: packetID}
}

// DecodePubRel decodes a PUBREL sent by a client.
func DecodePubRel(raw []byte) (*PubRel, error) {
	id, err := decodeAckPacketID(raw, PUBREL)
	if err != nil {
		return nil, err
	}
	return &PubRel{PacketID: id}, nil
}
