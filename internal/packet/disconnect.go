package packet

import "github.com/vexmq/broker/internal/er"

// Disconnect is the client's graceful connection teardown; it carries no
// variable header or payload.
type Disconnect struct{}

func (d *Disconnect) Type() PacketType { return DISCONNECT }

func (d *Disconnect) Encode() []byte { return []byte{byte(DISCONNECT), 0x00} }

// DecodeDisconnect validates a DISCONNECT packet's fixed header.
func DecodeDisconnect(raw []byte) (*Disconnect, error) {
	if len(raw) < 2 {
		return nil, &er.Err{Context: "DISCONNECT", Message: er.ErrInvalidPacketLength}
	}
	if PacketType(raw[0]) != DISCONNECT {
		return nil, &er.Err{Context: "DISCONNECT", Message: er.ErrInvalidPacketType}
	}
	if raw[1] != 0x00 {
		return nil, &er.Err{Context: "DISCONNECT", Message: er.ErrInvalidPacketLength}
	}
	return &Disconnect{}, nil
}
