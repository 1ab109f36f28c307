package packet

// UnsubAck confirms an UNSUBSCRIBE.
type UnsubAck struct {
	PacketID uint16
}

func (u *UnsubAck) Type() PacketType { return UNSUBACK }

// NewUnsubAck is a convenience constructor used by the broker's
// unsubscribe handler.
func NewUnsubAck(packetID uint16) *UnsubAck {
	return &UnsubAck{PacketID: packetID}
}

func (u *UnsubAck) Encode() []byte {
	return encodeHeader(UNSUBACK, 0, encodePacketID(u.PacketID))
}
