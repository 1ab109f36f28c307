package packet

import (
	"encoding/binary"

	"github.com/vexmq/broker/internal/er"
	"github.com/vexmq/broker/internal/topic"
)

// Unsubscribe removes one or more topic filters from the session.
type Unsubscribe struct {
	PacketID     uint16
	TopicFilters []string
}

func (u *Unsubscribe) Type() PacketType { return UNSUBSCRIBE }

// DecodeUnsubscribe parses an UNSUBSCRIBE packet.
func DecodeUnsubscribe(raw []byte) (*Unsubscribe, error) {
	if len(raw) < 2 {
		return nil, &er.Err{Context: "UNSUBSCRIBE", Message: er.ErrInvalidUnsubscribePacket}
	}
	if PacketType(raw[0]&0xF0) != UNSUBSCRIBE {
		return nil, &er.Err{Context: "UNSUBSCRIBE", Message: er.ErrInvalidUnsubscribePacket}
	}
	if raw[0]&0x0F != 0x02 {
		return nil, &er.Err{Context: "UNSUBSCRIBE, fixed header", Message: er.ErrInvalidUnsubscribeFlags}
	}

	remainingLength, rlOffset, err := decodeRemainingLength(raw[1:])
	if err != nil {
		return nil, err
	}
	offset := 1 + rlOffset
	if len(raw) != offset+remainingLength {
		return nil, &er.Err{Context: "UNSUBSCRIBE, length", Message: er.ErrInvalidPacketLength}
	}
	if remainingLength < 4 {
		return nil, &er.Err{Context: "UNSUBSCRIBE", Message: er.ErrInvalidUnsubscribePacket}
	}

	if offset+2 > len(raw) {
		return nil, &er.Err{Context: "UNSUBSCRIBE, packet id", Message: er.ErrMissingPacketID}
	}
	up := &Unsubscribe{PacketID: binary.BigEndian.Uint16(raw[offset : offset+2])}
	if up.PacketID == 0 {
		return nil, &er.Err{Context: "UNSUBSCRIBE, packet id", Message: er.ErrInvalidPacketID}
	}
	offset += 2

	for offset < len(raw) {
		topicFilter, n, err := decodeString(raw[offset:])
		if err != nil {
			return nil, &er.Err{Context: "UNSUBSCRIBE, topic filter", Message: er.ErrInvalidUnsubscribePacket}
		}
		offset += n

		if err := topic.ValidFilter(topicFilter); err != nil {
			return nil, err
		}

		up.TopicFilters = append(up.TopicFilters, topicFilter)
	}

	if len(up.TopicFilters) == 0 {
		return nil, &er.Err{Context: "UNSUBSCRIBE", Message: er.ErrNoTopicFilters}
	}

	return up, nil
}

func (u *Unsubscribe) Encode() []byte {
	body := make([]byte, 0, 2+4*len(u.TopicFilters))
	body = append(body, encodePacketID(u.PacketID)...)
	for _, f := range u.TopicFilters {
		body = append(body, encodeString(f)...)
	}
	return encodeHeader(UNSUBSCRIBE, 0x02, body)
}
