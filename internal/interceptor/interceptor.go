// Package interceptor lets external code observe broker events without
// being on the hot path: every Fire* call dispatches to each
// registered Observer on its own goroutine, so a slow or panicking
// observer can never stall the protocol processor.
package interceptor

import "github.com/vexmq/broker/internal/packet"

// Observer receives broker lifecycle and message events. Implementations
// should return quickly; Registry does not wait for them.
type Observer interface {
	OnConnect(clientID string, sessionPresent bool)
	OnDisconnect(clientID string)
	OnConnectionLost(clientID string, err error)
	OnPublish(clientID string, p *packet.Publish)
	OnSubscribe(clientID string, filters []packet.Filter)
	OnUnsubscribe(clientID string, filters []string)
	OnPuback(clientID string, packetID uint16)
}

// Registry fans every event out to its registered observers.
type Registry struct {
	observers []Observer
}

// New returns a Registry with no observers attached.
func New() *Registry {
	return &Registry{}
}

// Register adds obs to the fan-out set.
func (r *Registry) Register(obs Observer) {
	r.observers = append(r.observers, obs)
}

func (r *Registry) fire(fn func(Observer)) {
	for _, obs := range r.observers {
		go func(o Observer) {
			defer recoverObserverPanic()
			fn(o)
		}(obs)
	}
}

func recoverObserverPanic() {
	// an observer's bug must not take down the connection that
	// triggered it; swallow and move on.
	recover()
}

func (r *Registry) FireConnect(clientID string, sessionPresent bool) {
	r.fire(func(o Observer) { o.OnConnect(clientID, sessionPresent) })
}

func (r *Registry) FireDisconnect(clientID string) {
	r.fire(func(o Observer) { o.OnDisconnect(clientID) })
}

func (r *Registry) FireConnectionLost(clientID string, err error) {
	r.fire(func(o Observer) { o.OnConnectionLost(clientID, err) })
}

func (r *Registry) FirePublish(clientID string, p *packet.Publish) {
	r.fire(func(o Observer) { o.OnPublish(clientID, p) })
}

func (r *Registry) FireSubscribe(clientID string, filters []packet.Filter) {
	r.fire(func(o Observer) { o.OnSubscribe(clientID, filters) })
}

func (r *Registry) FireUnsubscribe(clientID string, filters []string) {
	r.fire(func(o Observer) { o.OnUnsubscribe(clientID, filters) })
}

func (r *Registry) FirePuback(clientID string, packetID uint16) {
	r.fire(func(o Observer) { o.OnPuback(clientID, packetID) })
}
