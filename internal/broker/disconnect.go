package broker

import (
	"github.com/vexmq/broker/internal/logger"
	"github.com/vexmq/broker/internal/registry"
)

// HandleDisconnect processes a graceful DISCONNECT: per the spec, the
// client's will must not be fired, so it is cleared before the
// connection and (if CleanSession) the session itself are torn down.
func (p *Processor) HandleDisconnect(clientID string, desc *registry.Descriptor) {
	p.Wills.Clear(clientID)
	p.teardown(clientID, desc)
	p.Logger.LogClientConnection(clientID, "", "disconnected")
	p.Observers.FireDisconnect(clientID)
}

// HandleConnectionLost processes an ungraceful disconnect — a read
// error, EOF, or keepalive timeout detected by the transport. Unlike
// HandleDisconnect, any registered will is published before teardown.
// If a newer CONNECT has already replaced desc in the registry (the
// session was stolen), neither the will nor the session is touched:
// both belong to the new connection.
func (p *Processor) HandleConnectionLost(clientID string, desc *registry.Descriptor, cause error) {
	if current, ok := p.Registry.Get(clientID); ok && current != desc {
		p.Logger.LogError(cause, "connection lost", logger.ClientID(clientID))
		p.Observers.FireConnectionLost(clientID, cause)
		return
	}
	if msg, ok := p.Wills.Lookup(clientID); ok {
		p.publishWill(clientID, msg)
		p.Wills.Clear(clientID)
	}
	p.teardown(clientID, desc)
	p.Logger.LogError(cause, "connection lost", logger.ClientID(clientID))
	p.Observers.FireConnectionLost(clientID, cause)
}

// teardown removes desc from the registry (only if it is still the
// current descriptor for clientID, guarding against a race with a
// newer connection that already replaced it). A clean-session client
// has its session and subscriptions dropped entirely; a persistent
// session is instead marked inactive, so any further QoS>0 deliveries
// addressed to it queue in order for replay at its next CONNECT.
func (p *Processor) teardown(clientID string, desc *registry.Descriptor) {
	p.Registry.RemoveIfMatches(clientID, desc)

	sess, ok := p.Sessions.Get(clientID)
	if !ok {
		return
	}
	if sess.CleanSession {
		p.Subscriptions.RemoveClient(clientID)
		p.Sessions.Delete(clientID)
		return
	}
	sess.Deactivate()
}
