package packet

import "github.com/vexmq/broker/internal/er"

// Decode dispatches on the fixed header's packet type and returns the
// fully decoded Packet. raw must hold exactly one packet, fixed header
// included, as framed by the transport's reader.
func Decode(raw []byte) (Packet, error) {
	if len(raw) < 2 {
		return nil, &er.Err{Context: "decode", Message: er.ErrInvalidPacketLength}
	}

	switch PacketType(raw[0] & 0xF0) {
	case CONNECT:
		return DecodeConnect(raw)
	case CONNACK:
		if len(raw) != 4 {
			return nil, &er.Err{Context: "CONNACK", Message: er.ErrInvalidPacketLength}
		}
		return &ConnAck{SessionPresent: raw[2]&0x01 != 0, ReturnCode: raw[3]}, nil
	case PUBLISH:
		return DecodePublish(raw)
	case PUBACK:
		return DecodePubAck(raw)
	case PUBREC:
		return DecodePubRec(raw)
	case PUBREL:
		return DecodePubRel(raw)
	case PUBCOMP:
		return DecodePubComp(raw)
	case SUBSCRIBE:
		return DecodeSubscribe(raw)
	case UNSUBSCRIBE:
		return DecodeUnsubscribe(raw)
	case PINGREQ:
		return DecodePingReq(raw)
	case DISCONNECT:
		return DecodeDisconnect(raw)
	default:
		return nil, &er.Err{Context: "decode", Message: er.ErrInvalidPacketType}
	}
}

// ReadFixedHeader reads the packet type/flags byte and the remaining
// length from the front of a stream buffer, returning the total number
// of bytes the full packet will occupy (header + remaining length field
// + body) so the transport knows how much more to read.
func ReadFixedHeader(buf []byte) (total int, headerLen int, err error) {
	if len(buf) < 1 {
		return 0, 0, &er.Err{Context: "fixed header", Message: er.ErrShortBuffer}
	}
	remainingLength, n, err := decodeRemainingLength(buf[1:])
	if err != nil {
		return 0, 0, err
	}
	headerLen = 1 + n
	return headerLen + remainingLength, headerLen, nil
}
