package broker

import "github.com/vexmq/broker/internal/packet"

// HandleUnsubscribe drops clientID's subscriptions to each listed
// filter and returns the UNSUBACK to send back.
func (p *Processor) HandleUnsubscribe(clientID string, unsub *packet.Unsubscribe) *packet.UnsubAck {
	for _, filter := range unsub.TopicFilters {
		p.Subscriptions.Remove(clientID, filter)
		if sess, ok := p.Sessions.Get(clientID); ok {
			delete(sess.Filters, filter)
		}
		p.Logger.LogSubscription(clientID, filter, 0, "unsubscribe")
	}
	p.Observers.FireUnsubscribe(clientID, unsub.TopicFilters)
	return packet.NewUnsubAck(unsub.PacketID)
}
