// Package broker is the MQTT protocol processor: it turns decoded
// packets into session, subscription, and store mutations, and decides
// what to write back. It owns no transport of its own — internal/transport
// hands it packets and writes back whatever it returns.
package broker

import (
	"time"

	"github.com/jpillora/backoff"

	"github.com/vexmq/broker/internal/auth"
	"github.com/vexmq/broker/internal/interceptor"
	"github.com/vexmq/broker/internal/logger"
	"github.com/vexmq/broker/internal/packet"
	"github.com/vexmq/broker/internal/registry"
	"github.com/vexmq/broker/internal/session"
	"github.com/vexmq/broker/internal/store"
	"github.com/vexmq/broker/internal/subscription"
	"github.com/vexmq/broker/internal/will"
)

// RetryConfig tunes the QoS 1/2 retransmission sweep.
type RetryConfig struct {
	Min        time.Duration
	Max        time.Duration
	Factor     float64
	MaxRetries int
	SweepEvery time.Duration
}

// DefaultRetryConfig mirrors a conservative client-friendly schedule:
// first retry after ~1s, backing off to 30s, giving up after 5 tries.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		Min:        time.Second,
		Max:        30 * time.Second,
		Factor:     2,
		MaxRetries: 5,
		SweepEvery: 5 * time.Second,
	}
}

// Processor is the broker's single point of packet handling. One
// Processor serves every connection; per-client state lives in its
// Sessions/Subscriptions/Registry/Wills/Messages fields, not here.
type Processor struct {
	Sessions      *session.Store
	Subscriptions *subscription.Index
	Registry      *registry.Registry
	Wills         *will.Store
	Messages      store.MessageStore
	Authenticator auth.Authenticator
	Authorizator  auth.Authorizator
	Observers     *interceptor.Registry
	Logger        *logger.Logger

	Retry RetryConfig
}

// New constructs a Processor. Any nil Authenticator/Authorizator is
// replaced by an allow-all policy so a broker can be stood up without
// configuring access control.
func New(
	sessions *session.Store,
	subs *subscription.Index,
	reg *registry.Registry,
	wills *will.Store,
	messages store.MessageStore,
	authenticator auth.Authenticator,
	authorizator auth.Authorizator,
	observers *interceptor.Registry,
	log *logger.Logger,
) *Processor {
	if authenticator == nil {
		authenticator = auth.AllowAllAuthenticator{}
	}
	if authorizator == nil {
		authorizator = auth.AllowAllAuthorizator{}
	}
	return &Processor{
		Sessions:      sessions,
		Subscriptions: subs,
		Registry:      reg,
		Wills:         wills,
		Messages:      messages,
		Authenticator: authenticator,
		Authorizator:  authorizator,
		Observers:     observers,
		Logger:        log,
		Retry:         DefaultRetryConfig(),
	}
}

func (p *Processor) newBackoff() *backoff.Backoff {
	return &backoff.Backoff{
		Min:    p.Retry.Min,
		Max:    p.Retry.Max,
		Factor: p.Retry.Factor,
		Jitter: true,
	}
}

// minQoS returns the lower of two QoS levels, used when delivering a
// message at the minimum of what was published and what was
// subscribed for.
func minQoS(a, b packet.QoS) packet.QoS {
	if a < b {
		return a
	}
	return b
}
