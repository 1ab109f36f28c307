package packet

import "github.com/vexmq/broker/internal/er"

// PingReq carries no data beyond the fixed header; it is how a client
// tells the broker it is still alive between publishes.
type PingReq struct{}

func (p *PingReq) Type() PacketType { return PINGREQ }

func (p *PingReq) Encode() []byte { return []byte{byte(PINGREQ), 0x00} }

// DecodePingReq validates a PINGREQ's fixed header; it has no variable
// header or payload.
func DecodePingReq(raw []byte) (*PingReq, error) {
	if len(raw) != 2 {
		return nil, &er.Err{Context: "PINGREQ", Message: er.ErrInvalidPacketLength}
	}
	if PacketType(raw[0]&0xF0) != PINGREQ || raw[0]&0x0F != 0 {
		return nil, &er.Err{Context: "PINGREQ", Message: er.ErrInvalidPacketType}
	}
	if raw[1] != 0x00 {
		return nil, &er.Err{Context: "PINGREQ", Message: er.ErrInvalidPacketLength}
	}
	return &PingReq{}, nil
}

// PingResp is the broker's reply to PINGREQ.
type PingResp struct{}

func (p *PingResp) Type() PacketType { return PINGRESP }

func (p *PingResp) Encode() []byte { return []byte{byte(PINGRESP), 0x00} }

// NewPingResp is a convenience constructor used by the broker's keepalive
// handler.
func NewPingResp() *PingResp { return &PingResp{} }
