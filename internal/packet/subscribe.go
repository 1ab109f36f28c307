package packet

import (
	"encoding/binary"

	"github.com/vexmq/broker/internal/er"
	"github.com/vexmq/broker/internal/topic"
)

// Filter is one (topic filter, requested QoS) pair in a SUBSCRIBE payload.
type Filter struct {
	Topic string
	QoS   QoS
}

// Subscribe registers one or more topic filters for the session.
type Subscribe struct {
	PacketID uint16
	Filters  []Filter
}

func (s *Subscribe) Type() PacketType { return SUBSCRIBE }

// DecodeSubscribe parses a SUBSCRIBE packet. raw includes the fixed header.
func DecodeSubscribe(raw []byte) (*Subscribe, error) {
	if len(raw) < 2 {
		return nil, &er.Err{Context: "SUBSCRIBE", Message: er.ErrInvalidSubscribePacket}
	}
	if PacketType(raw[0]&0xF0) != SUBSCRIBE {
		return nil, &er.Err{Context: "SUBSCRIBE", Message: er.ErrInvalidSubscribePacket}
	}
	if raw[0]&0x0F != 0x02 {
		return nil, &er.Err{Context: "SUBSCRIBE, fixed header", Message: er.ErrInvalidSubscribeFlags}
	}

	remainingLength, rlOffset, err := decodeRemainingLength(raw[1:])
	if err != nil {
		return nil, err
	}
	offset := 1 + rlOffset
	if len(raw) != offset+remainingLength {
		return nil, &er.Err{Context: "SUBSCRIBE, length", Message: er.ErrInvalidPacketLength}
	}
	if remainingLength < 6 {
		return nil, &er.Err{Context: "SUBSCRIBE", Message: er.ErrInvalidSubscribePacket}
	}

	if offset+2 > len(raw) {
		return nil, &er.Err{Context: "SUBSCRIBE, packet id", Message: er.ErrMissingPacketID}
	}
	sp := &Subscribe{PacketID: binary.BigEndian.Uint16(raw[offset : offset+2])}
	if sp.PacketID == 0 {
		return nil, &er.Err{Context: "SUBSCRIBE, packet id", Message: er.ErrInvalidPacketID}
	}
	offset += 2

	for offset < len(raw) {
		topicFilter, n, err := decodeString(raw[offset:])
		if err != nil {
			return nil, &er.Err{Context: "SUBSCRIBE, topic filter", Message: er.ErrInvalidSubscribePacket}
		}
		offset += n

		if err := topic.ValidFilter(topicFilter); err != nil {
			return nil, err
		}

		if offset >= len(raw) {
			return nil, &er.Err{Context: "SUBSCRIBE, qos", Message: er.ErrMissingQoSByte}
		}
		qosByte := raw[offset]
		if qosByte&0xFC != 0 {
			return nil, &er.Err{Context: "SUBSCRIBE, qos", Message: er.ErrInvalidQoSReservedBits}
		}
		qos := QoS(qosByte & 0x03)
		if byte(qos) > byte(QoSExactlyOnce) {
			return nil, &er.Err{Context: "SUBSCRIBE, qos", Message: er.ErrInvalidQoSLevel}
		}
		offset++

		sp.Filters = append(sp.Filters, Filter{Topic: topicFilter, QoS: qos})
	}

	if len(sp.Filters) == 0 {
		return nil, &er.Err{Context: "SUBSCRIBE", Message: er.ErrNoTopicFilters}
	}

	return sp, nil
}

func (s *Subscribe) Encode() []byte {
	body := make([]byte, 0, 2+4*len(s.Filters))
	body = append(body, encodePacketID(s.PacketID)...)
	for _, f := range s.Filters {
		body = append(body, encodeString(f.Topic)...)
		body = append(body, byte(f.QoS))
	}
	return encodeHeader(SUBSCRIBE, 0x02, body)
}
