package packet

import "github.com/vexmq/broker/internal/er"

// SubAck grants (or refuses) each filter requested in a SUBSCRIBE, in
// the same order.
type SubAck struct {
	PacketID    uint16
	ReturnCodes []byte
}

func (s *SubAck) Type() PacketType { return SUBACK }

// NewSubAck is a convenience constructor used by the broker's subscribe
// handler.
func NewSubAck(packetID uint16, returnCodes []byte) *SubAck {
	return &SubAck{PacketID: packetID, ReturnCodes: returnCodes}
}

func (s *SubAck) Encode() []byte {
	body := make([]byte, 0, 2+len(s.ReturnCodes))
	body = append(body, encodePacketID(s.PacketID)...)
	body = append(body, s.ReturnCodes...)
	return encodeHeader(SUBACK, 0, body)
}

// DecodeSubAck decodes a SUBACK as a client receives it. Decode does
// not dispatch to it.
func DecodeSubAck(raw []byte) (*SubAck, error) {
	if len(raw) < 5 {
		return nil, &er.Err{Context: "SUBACK", Message: er.ErrInvalidPacketLength}
	}
	if PacketType(raw[0]&0xF0) != SUBACK {
		return nil, &er.Err{Context: "SUBACK", Message: er.ErrInvalidPacketType}
	}
	_, n, err := decodeRemainingLength(raw[1:])
	if err != nil {
		return nil, err
	}
	offset := 1 + n
	if offset+2 > len(raw) {
		return nil, &er.Err{Context: "SUBACK", Message: er.ErrInvalidPacketLength}
	}
	s := &SubAck{PacketID: uint16(raw[offset])<<8 | uint16(raw[offset+1])}
	offset += 2
	s.ReturnCodes = append([]byte(nil), raw[offset:]...)
	return s, nil
}
