package packet

import "github.com/vexmq/broker/internal/er"

// PubAck acknowledges a QoS 1 PUBLISH.
type PubAck struct {
	PacketID uint16
}

func (p *PubAck) Type() PacketType { return PUBACK }

func (p *PubAck) Encode() []byte {
	return encodeHeader(PUBACK, 0, encodePacketID(p.PacketID))
}

// NewPubAck is a convenience constructor used by the broker's publish
// handler.
func NewPubAck(packetID uint16) *PubAck {
	return &PubAck{PacketID: packetID}
}

// DecodePubAck decodes a PUBACK sent by a client.
func DecodePubAck(raw []byte) (*PubAck, error) {
	id, err := decodeAckPacketID(raw, PUBACK)
	if err != nil {
		return nil, err
	}
	return &PubAck{PacketID: id}, nil
}

func decodeAckPacketID(raw []byte, want PacketType) (uint16, error) {
	if len(raw) < 4 {
		return 0, &er.Err{Context: want.String(), Message: er.ErrInvalidPacketLength}
	}
	if PacketType(raw[0]&0xF0) != want {
		return 0, &er.Err{Context: want.String(), Message: er.ErrInvalidPacketType}
	}
	_, n, err := decodeRemainingLength(raw[1:])
	if err != nil {
		return 0, err
	}
	offset := 1 + n
	if offset+2 > len(raw) {
		return 0, &er.Err{Context: want.String(), Message: er.ErrInvalidPacketLength}
	}
	return uint16(raw[offset])<<8 | uint16(raw[offset+1]), nil
}
