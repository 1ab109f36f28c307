package broker

import (
	"github.com/vexmq/broker/internal/packet"
	"github.com/vexmq/broker/internal/topic"
)

// HandleSubscribe processes a SUBSCRIBE, granting or refusing each
// requested filter, and returns the SUBACK to send back. A granted
// filter is added to both the subscription index and the session's
// own filter set (so a resumed session can reinstate it), then every
// matching retained message is delivered immediately. A malformed
// filter is a protocol violation, not a refusal: it is never inserted
// into the index, and the caller must close the connection instead of
// sending any SUBACK at all.
func (p *Processor) HandleSubscribe(clientID string, sub *packet.Subscribe) (*packet.SubAck, error) {
	codes := make([]byte, len(sub.Filters))

	for i, f := range sub.Filters {
		if err := topic.ValidFilter(f.Topic); err != nil {
			p.Logger.LogSubscription(clientID, f.Topic, int(f.QoS), "malformed")
			return nil, err
		}

		if !p.Authorizator.CanRead(clientID, f.Topic) {
			codes[i] = packet.QoSFailure
			p.Logger.LogSubscription(clientID, f.Topic, int(f.QoS), "denied")
			continue
		}

		p.Subscriptions.Add(clientID, f.Topic, f.QoS)
		if sess, ok := p.Sessions.Get(clientID); ok {
			sess.Filters[f.Topic] = f.QoS
		}
		codes[i] = byte(f.QoS)

		p.Logger.LogSubscription(clientID, f.Topic, int(f.QoS), "subscribe")
		p.deliverRetained(clientID, f.Topic, f.QoS)
	}

	p.Observers.FireSubscribe(clientID, sub.Filters)
	return packet.NewSubAck(sub.PacketID, codes), nil
}

// deliverRetained replays every retained message matching filter to
// clientID, at the minimum of the retained message's QoS and the
// granted subscription QoS, as required when a client first subscribes
// to a filter with existing retained publications.
func (p *Processor) deliverRetained(clientID, filter string, grantedQoS packet.QoS) {
	msgs, err := p.Messages.SearchMatching(filter)
	if err != nil {
		p.Logger.LogError(err, "retained search failed")
		return
	}
	for _, msg := range msgs {
		p.deliver(clientID, msg.Topic, msg.Payload, minQoS(msg.QoS, grantedQoS), true)
	}
}
