package packet

import (
	"encoding/binary"

	"github.com/vexmq/broker/internal/er"
	"github.com/vexmq/broker/internal/topic"
)

// Publish carries an application message from publisher to broker, or
// from broker to a matched subscriber.
type Publish struct {
	DUP    bool
	QoS    QoS
	Retain bool

	Topic    string
	PacketID uint16 // 0 for QoS 0

	Payload []byte
}

func (p *Publish) Type() PacketType { return PUBLISH }

// DecodePublish parses a PUBLISH packet. raw includes the fixed header.
func DecodePublish(raw []byte) (*Publish, error) {
	if len(raw) < 2 {
		return nil, &er.Err{Context: "PUBLISH", Message: er.ErrInvalidPublishPacket}
	}
	if PacketType(raw[0]&0xF0) != PUBLISH {
		return nil, &er.Err{Context: "PUBLISH", Message: er.ErrInvalidPublishPacket}
	}

	remainingLength, rlOffset, err := decodeRemainingLength(raw[1:])
	if err != nil {
		return nil, err
	}

	offset := 1 + rlOffset
	if len(raw) != offset+remainingLength {
		return nil, &er.Err{Context: "PUBLISH, length", Message: er.ErrInvalidPacketLength}
	}

	fixedHeader := raw[0]
	p := &Publish{
		DUP:    fixedHeader&0x08 != 0,
		QoS:    QoS((fixedHeader & 0x06) >> 1),
		Retain: fixedHeader&0x01 != 0,
	}

	if byte(p.QoS) > byte(QoSExactlyOnce) {
		return nil, &er.Err{Context: "PUBLISH, QoS", Message: er.ErrInvalidQoSLevel}
	}
	if p.DUP && p.QoS == QoSAtMostOnce {
		return nil, &er.Err{Context: "PUBLISH, DUP", Message: er.ErrInvalidDUPFlag}
	}

	t, n, err := decodeString(raw[offset:])
	if err != nil {
		return nil, &er.Err{Context: "PUBLISH, topic", Message: er.ErrInvalidPublishPacket}
	}
	p.Topic = t
	offset += n

	if err := topic.ValidTopicName(p.Topic); err != nil {
		return nil, err
	}

	if p.QoS != QoSAtMostOnce {
		if offset+2 > len(raw) {
			return nil, &er.Err{Context: "PUBLISH, packet id", Message: er.ErrMissingPacketID}
		}
		id := binary.BigEndian.Uint16(raw[offset : offset+2])
		if id == 0 {
			return nil, &er.Err{Context: "PUBLISH, packet id", Message: er.ErrInvalidPacketID}
		}
		p.PacketID = id
		offset += 2
	}

	if offset < len(raw) {
		p.Payload = append([]byte(nil), raw[offset:]...)
	}

	return p, nil
}

func (p *Publish) Encode() []byte {
	body := make([]byte, 0, len(p.Topic)+len(p.Payload)+4)
	body = append(body, encodeString(p.Topic)...)
	if p.QoS != QoSAtMostOnce {
		body = append(body, encodePacketID(p.PacketID)...)
	}
	body = append(body, p.Payload...)

	var flags byte
	if p.DUP {
		flags |= 0x08
	}
	flags |= byte(p.QoS) << 1
	if p.Retain {
		flags |= 0x01
	}

	return encodeHeader(PUBLISH, flags, body)
}
