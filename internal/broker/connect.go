package broker

import (
	"time"

	"github.com/vexmq/broker/internal/logger"
	"github.com/vexmq/broker/internal/packet"
	"github.com/vexmq/broker/internal/registry"
	"github.com/vexmq/broker/internal/session"
	"github.com/vexmq/broker/internal/will"
)

// HandleConnect authenticates cp, resolves or creates clientID's
// session, registers the connection, and returns the CONNACK to send
// back. desc is the caller's live-connection handle; HandleConnect
// registers it under cp.ClientID, stealing any previous connection for
// that client id.
func (p *Processor) HandleConnect(cp *packet.Connect, desc *registry.Descriptor) *packet.ConnAck {
	if code := p.Authenticator.CheckValid(cp.Username, cp.Password); code != packet.ConnectionAccepted {
		p.Logger.LogAuth(cp.ClientID, cp.Username, false, "rejected")
		return packet.NewConnAck(false, code)
	}

	if prev, existed := p.Registry.Put(desc); existed {
		prev.Close()
	}

	sessionPresent := p.resolveSession(cp)

	if cp.WillFlag {
		p.Wills.Set(cp.ClientID, will.Message{
			Topic:   cp.WillTopic,
			Payload: cp.WillMessage,
			QoS:     cp.WillQoS,
			Retain:  cp.WillRetain,
		})
	} else {
		p.Wills.Clear(cp.ClientID)
	}

	p.Logger.LogClientConnection(cp.ClientID, desc.Conn.RemoteAddr().String(), "connected",
		logger.Bool("session_present", sessionPresent), logger.Bool("clean_session", cp.CleanSession))
	p.Observers.FireConnect(cp.ClientID, sessionPresent)

	return packet.NewConnAck(sessionPresent, packet.ConnectionAccepted)
}

// resolveSession finds or creates cp.ClientID's session per the
// CleanSession flag, reinstating its filters into the subscription
// index when an existing session is resumed, and reports whether the
// broker already held session state for this client (the CONNACK
// Session Present flag).
func (p *Processor) resolveSession(cp *packet.Connect) bool {
	existing, hadSession := p.Sessions.Get(cp.ClientID)

	if cp.CleanSession {
		if hadSession {
			p.Subscriptions.RemoveClient(cp.ClientID)
		}
		sess := session.New(cp.ClientID, true)
		sess.KeepAlive = cp.KeepAlive
		sess.ConnectedAt = time.Now().Unix()
		p.Sessions.Put(sess)
		return false
	}

	if hadSession {
		existing.KeepAlive = cp.KeepAlive
		existing.ConnectedAt = time.Now().Unix()
		for filter, qos := range existing.Filters {
			p.Subscriptions.Add(cp.ClientID, filter, qos)
		}
		return true
	}

	sess := session.New(cp.ClientID, false)
	sess.KeepAlive = cp.KeepAlive
	sess.ConnectedAt = time.Now().Unix()
	p.Sessions.Put(sess)
	return false
}
