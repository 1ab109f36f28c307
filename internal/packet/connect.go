package packet

import (
	"encoding/binary"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/vexmq/broker/internal/er"
)

// Connect is the CONNECT packet a client opens a session with.
type Connect struct {
	ProtocolName  string
	ProtocolLevel byte
	UsernameFlag  bool
	PasswordFlag  bool
	WillRetain    bool
	WillQoS       QoS
	WillFlag      bool
	CleanSession  bool
	KeepAlive     uint16

	ClientID    string
	WillTopic   string
	WillMessage []byte
	Username    string
	Password    string
}

func (c *Connect) Type() PacketType { return CONNECT }

// DecodeConnect parses the variable header and payload of a CONNECT
// packet. raw includes the fixed header.
func DecodeConnect(raw []byte) (*Connect, error) {
	if len(raw) < 10 {
		return nil, &er.Err{Context: "CONNECT", Message: er.ErrInvalidConnPacket}
	}
	if PacketType(raw[0]&0xF0) != CONNECT {
		return nil, &er.Err{Context: "CONNECT", Message: er.ErrInvalidConnPacket}
	}

	_, rlOffset, err := decodeRemainingLength(raw[1:])
	if err != nil {
		return nil, err
	}
	offset := 1 + rlOffset

	cp := &Connect{}

	name, n, err := decodeString(raw[offset:])
	if err != nil {
		return nil, &er.Err{Context: "CONNECT, ProtocolName", Message: er.ErrInvalidConnPacket}
	}
	cp.ProtocolName = name
	offset += n

	if cp.ProtocolName != "MQTT" && cp.ProtocolName != "MQIsdp" {
		return nil, &er.Err{Context: "CONNECT, ProtocolName", Message: er.ErrUnsupportedProtocolName}
	}

	if offset >= len(raw) {
		return nil, &er.Err{Context: "CONNECT", Message: er.ErrInvalidConnPacket}
	}
	cp.ProtocolLevel = raw[offset]
	offset++
	if cp.ProtocolLevel != 3 && cp.ProtocolLevel != 4 {
		return nil, &er.Err{Context: "CONNECT, ProtocolLevel", Message: er.ErrUnsupportedProtocolLevel}
	}

	if offset >= len(raw) {
		return nil, &er.Err{Context: "CONNECT", Message: er.ErrInvalidConnPacket}
	}
	flags := raw[offset]
	offset++

	cp.UsernameFlag = flags&0x80 != 0
	cp.PasswordFlag = flags&0x40 != 0
	cp.WillRetain = flags&0x20 != 0
	cp.WillQoS = QoS((flags & 0x18) >> 3)
	cp.WillFlag = flags&0x04 != 0
	cp.CleanSession = flags&0x02 != 0

	if cp.WillFlag && byte(cp.WillQoS) > byte(QoSExactlyOnce) {
		return nil, &er.Err{Context: "CONNECT, WillQoS", Message: er.ErrInvalidWillQos}
	}

	if offset+2 > len(raw) {
		return nil, &er.Err{Context: "CONNECT", Message: er.ErrInvalidConnPacket}
	}
	cp.KeepAlive = binary.BigEndian.Uint16(raw[offset : offset+2])
	offset += 2

	clientID, n, err := decodeString(raw[offset:])
	if err != nil {
		return nil, &er.Err{Context: "CONNECT, ClientID", Message: er.ErrInvalidConnPacket}
	}
	cp.ClientID = clientID
	offset += n

	if verr := cp.validateClientID(); verr != nil {
		switch {
		case errors.Is(verr, er.ErrEmptyClientID):
			cp.ClientID = uuid.NewString()
		case errors.Is(verr, er.ErrEmptyAndCleanSessionClientID):
			return nil, &er.Err{Context: "CONNECT, ClientID", Message: er.ErrIdentifierRejected}
		default:
			return nil, verr
		}
	}

	if cp.WillFlag {
		topic, n, err := decodeString(raw[offset:])
		if err != nil {
			return nil, &er.Err{Context: "CONNECT, WillTopic", Message: er.ErrInvalidConnPacket}
		}
		cp.WillTopic = topic
		offset += n

		if offset+2 > len(raw) {
			return nil, &er.Err{Context: "CONNECT, WillMessage", Message: er.ErrInvalidConnPacket}
		}
		msgLen := int(binary.BigEndian.Uint16(raw[offset : offset+2]))
		offset += 2
		if offset+msgLen > len(raw) {
			return nil, &er.Err{Context: "CONNECT, WillMessage", Message: er.ErrInvalidConnPacket}
		}
		cp.WillMessage = append([]byte(nil), raw[offset:offset+msgLen]...)
		offset += msgLen
	}

	if !cp.UsernameFlag && cp.PasswordFlag {
		return nil, &er.Err{Context: "CONNECT, flags", Message: er.ErrPasswordWithoutUsername}
	}

	if cp.UsernameFlag {
		username, n, err := decodeString(raw[offset:])
		if err != nil {
			return nil, &er.Err{Context: "CONNECT, Username", Message: er.ErrMalformedUsernameField}
		}
		cp.Username = username
		offset += n
	}

	if cp.PasswordFlag {
		password, n, err := decodeString(raw[offset:])
		if err != nil {
			return nil, &er.Err{Context: "CONNECT, Password", Message: er.ErrMalformedPasswordField}
		}
		cp.Password = password
		offset += n
	}

	return cp, nil
}

func (c *Connect) validateClientID() error {
	if len(c.ClientID) == 0 {
		if !c.CleanSession {
			return &er.Err{Context: "CONNECT, ClientID", Message: er.ErrEmptyAndCleanSessionClientID}
		}
		return &er.Err{Context: "CONNECT, ClientID", Message: er.ErrEmptyClientID}
	}

	if len(c.ClientID) > 23 {
		return &er.Err{Context: "CONNECT, ClientID", Message: er.ErrClientIDLengthExceed}
	}

	const allowed = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"
	for _, r := range c.ClientID {
		if !strings.ContainsRune(allowed, r) {
			return &er.Err{Context: "CONNECT, ClientID", Message: er.ErrInvalidCharsClientID}
		}
	}

	return nil
}

// Encode is provided so Connect satisfies Packet for use by tests that
// round-trip a fabricated CONNECT; the broker itself never sends one.
func (c *Connect) Encode() []byte {
	body := make([]byte, 0, 32)
	body = append(body, encodeString(c.ProtocolName)...)
	body = append(body, c.ProtocolLevel)

	var flags byte
	if c.UsernameFlag {
		flags |= 0x80
	}
	if c.PasswordFlag {
		flags |= 0x40
	}
	if c.WillRetain {
		flags |= 0x20
	}
	flags |= byte(c.WillQoS) << 3
	if c.WillFlag {
		flags |= 0x04
	}
	if c.CleanSession {
		flags |= 0x02
	}
	body = append(body, flags)

	ka := make([]byte, 2)
	binary.BigEndian.PutUint16(ka, c.KeepAlive)
	body = append(body, ka...)
	body = append(body, encodeString(c.ClientID)...)

	if c.WillFlag {
		body = append(body, encodeString(c.WillTopic)...)
		msgLen := make([]byte, 2)
		binary.BigEndian.PutUint16(msgLen, uint16(len(c.WillMessage)))
		body = append(body, msgLen...)
		body = append(body, c.WillMessage...)
	}
	if c.UsernameFlag {
		body = append(body, encodeString(c.Username)...)
	}
	if c.PasswordFlag {
		body = append(body, encodeString(c.Password)...)
	}

	return encodeHeader(CONNECT, 0, body)
}
