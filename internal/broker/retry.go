package broker

import (
	"context"
	"time"

	"github.com/vexmq/broker/internal/logger"
	"github.com/vexmq/broker/internal/packet"
	"github.com/vexmq/broker/internal/session"
)

// RunRetrySweep periodically resends every session's pending QoS 1/2
// deliveries that have waited longer than their backoff schedule
// allows, until ctx is cancelled. It is meant to run as its own
// supervised goroutine, one per Processor, not one per connection.
func (p *Processor) RunRetrySweep(ctx context.Context) {
	ticker := time.NewTicker(p.Retry.SweepEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.sweepOnce()
		}
	}
}

func (p *Processor) sweepOnce() {
	now := time.Now()

	for _, sess := range p.Sessions.All() {
		for _, pending := range sess.AllPending() {
			p.maybeRetry(sess.ClientID, sess, pending, now)
		}
	}
}

// backoffDue reports whether a delivery sent Attempts times, most
// recently at sentAt, has waited long enough under the configured
// backoff schedule to be retried again.
func (p *Processor) backoffDue(attempts int, sentAt time.Time, now time.Time) bool {
	b := p.newBackoff()
	var wait time.Duration
	for i := 0; i <= attempts; i++ {
		wait = b.Duration()
	}
	return now.Sub(sentAt) >= wait
}

func (p *Processor) maybeRetry(clientID string, sess *session.Session, pending *session.Pending, now time.Time) {
	if !sess.IsActive() {
		// Nothing to retransmit to: the client is offline and this
		// delivery is already recorded as in-flight from before the
		// disconnect. It will be picked up again once the client
		// reconnects and the normal PUBACK/PUBREC flow resumes.
		return
	}
	if !p.backoffDue(pending.Attempts, pending.SentAt, now) {
		return
	}
	if pending.Attempts >= p.Retry.MaxRetries {
		sess.ResolvePending(pending.PacketID)
		p.Logger.LogQoSFlow(clientID, pending.PacketID, int(pending.QoS), "RETRY_GIVEUP")
		return
	}

	pending.Attempts++
	pending.SentAt = now

	if pending.PubrecReceived {
		rel := packet.NewPubRel(pending.PacketID)
		p.writeTo(clientID, rel.Encode())
	} else {
		out := &packet.Publish{
			DUP:      true,
			Topic:    pending.Topic,
			Payload:  pending.Payload,
			QoS:      pending.QoS,
			Retain:   pending.Retained,
			PacketID: pending.PacketID,
		}
		p.writeTo(clientID, out.Encode())
	}
	p.Logger.LogQoSFlow(clientID, pending.PacketID, int(pending.QoS), "RETRY_SENT", logger.Int("attempt", pending.Attempts))
}
