package packet

import (
	"encoding/binary"
	"unicode/utf8"

	"github.com/vexmq/broker/internal/er"
)

// encodeRemainingLength encodes the remaining-length field: 1-4 base-128
// bytes with a continuation bit, per the MQTT fixed header spec.
func encodeRemainingLength(length int) []byte {
	if length < 0 {
		return []byte{0}
	}

	var encoded []byte
	for {
		b := byte(length % 128)
		length /= 128
		if length > 0 {
			b |= 0x80
		}
		encoded = append(encoded, b)
		if length == 0 {
			break
		}
		if len(encoded) >= 4 {
			break
		}
	}
	return encoded
}

// decodeRemainingLength reads the remaining-length field starting at
// data[0]. It returns the decoded value and the number of bytes consumed.
func decodeRemainingLength(data []byte) (int, int, error) {
	var length, multiplier, offset int
	multiplier = 1

	for {
		if offset >= len(data) {
			return 0, 0, &er.Err{Context: "remaining length", Message: er.ErrShortBuffer}
		}
		if offset >= 4 {
			return 0, 0, &er.Err{Context: "remaining length", Message: er.ErrRemainingLengthExceeded}
		}

		b := data[offset]
		length += int(b&0x7F) * multiplier
		if length > MaxRemainingLength {
			return 0, 0, &er.Err{Context: "remaining length", Message: er.ErrRemainingLengthExceeded}
		}

		multiplier *= 128
		offset++

		if b&0x80 == 0 {
			break
		}
	}

	return length, offset, nil
}

// decodeString reads a 2-byte-length-prefixed UTF-8 string and returns it
// along with the number of bytes consumed (2 + length).
func decodeString(b []byte) (string, int, error) {
	if len(b) < 2 {
		return "", 0, &er.Err{Context: "decode string", Message: er.ErrShortBuffer}
	}

	length := int(binary.BigEndian.Uint16(b[:2]))
	if len(b) < 2+length {
		return "", 0, &er.Err{Context: "decode string", Message: er.ErrRemainingLenMissmatch}
	}

	s := string(b[2 : 2+length])
	if !utf8.ValidString(s) {
		return "", 0, &er.Err{Context: "decode string", Message: er.ErrInvalidUTF8String}
	}

	return s, 2 + length, nil
}

func encodeString(s string) []byte {
	b := make([]byte, 2+len(s))
	binary.BigEndian.PutUint16(b, uint16(len(s)))
	copy(b[2:], s)
	return b
}

// encodeHeader prepends the fixed header (type|flags, remaining length) to
// the given variable-header+payload body.
func encodeHeader(t PacketType, flags byte, body []byte) []byte {
	rl := encodeRemainingLength(len(body))
	out := make([]byte, 0, 1+len(rl)+len(body))
	out = append(out, byte(t)|flags)
	out = append(out, rl...)
	out = append(out, body...)
	return out
}

// encodePacketID encodes a 16-bit packet id as two big-endian bytes.
func encodePacketID(id uint16) []byte {
	b := make([]byte, 2)
	binary.BigEndian.PutUint16(b, id)
	return b
}
