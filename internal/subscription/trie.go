// Package subscription indexes client topic-filter subscriptions in a
// trie keyed by topic level, so a PUBLISH can find its matching
// subscribers without scanning every registered filter.
package subscription

import (
	"strings"
	"sync"

	"github.com/vexmq/broker/internal/packet"
)

// Subscription is one client's subscription to a filter.
type Subscription struct {
	ClientID string
	Filter   string
	QoS      packet.QoS
}

// node is one level of the filter trie. children holds literal-segment
// branches; plus and hash are the single '+' and terminal '#'
// branches, kept as dedicated pointers rather than ordinary map entries
// since Match walks them on every call.
type node struct {
	mu       sync.RWMutex
	children map[string]*node
	plus     *node
	hash     *node
	subs     map[string]Subscription // clientID -> Subscription, filters ending at this node
}

func newNode() *node {
	return &node{
		children: make(map[string]*node),
		subs:     make(map[string]Subscription),
	}
}

// Index is a concurrency-safe trie of topic filter subscriptions. Each
// node holds its own lock so unrelated branches don't contend.
type Index struct {
	root *node
}

// New returns an empty subscription index.
func New() *Index {
	return &Index{root: newNode()}
}

func levels(filter string) []string {
	return strings.Split(filter, "/")
}

func (n *node) childFor(level string) **node {
	switch level {
	case "+":
		return &n.plus
	case "#":
		return &n.hash
	default:
		return nil
	}
}

func (n *node) descend(level string) *node {
	if slot := n.childFor(level); slot != nil {
		n.mu.Lock()
		if *slot == nil {
			*slot = newNode()
		}
		child := *slot
		n.mu.Unlock()
		return child
	}

	n.mu.Lock()
	child, ok := n.children[level]
	if !ok {
		child = newNode()
		n.children[level] = child
	}
	n.mu.Unlock()
	return child
}

func (n *node) peek(level string) *node {
	if slot := n.childFor(level); slot != nil {
		n.mu.RLock()
		defer n.mu.RUnlock()
		return *slot
	}

	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.children[level]
}

// Add registers clientID's subscription to filter at the given QoS,
// replacing any existing subscription by the same client to the same
// filter.
func (idx *Index) Add(clientID, filter string, qos packet.QoS) {
	n := idx.root
	for _, lvl := range levels(filter) {
		n = n.descend(lvl)
	}

	n.mu.Lock()
	n.subs[clientID] = Subscription{ClientID: clientID, Filter: filter, QoS: qos}
	n.mu.Unlock()
}

// Remove drops clientID's subscription to filter, if present. It does
// not prune now-empty nodes; the tree trades a little memory for not
// needing a second locking pass on the unsubscribe path.
func (idx *Index) Remove(clientID, filter string) {
	n := idx.root
	for _, lvl := range levels(filter) {
		child := n.peek(lvl)
		if child == nil {
			return
		}
		n = child
	}

	n.mu.Lock()
	delete(n.subs, clientID)
	n.mu.Unlock()
}

// RemoveClient removes clientID's subscriptions everywhere in the
// index. It is called when a clean-session client disconnects, and when
// a client connects with a clean session while an earlier session for
// it still exists.
func (idx *Index) RemoveClient(clientID string) {
	removeClientFrom(idx.root, clientID)
}

func removeClientFrom(n *node, clientID string) {
	n.mu.Lock()
	delete(n.subs, clientID)
	children := make([]*node, 0, len(n.children)+2)
	for _, c := range n.children {
		children = append(children, c)
	}
	if n.plus != nil {
		children = append(children, n.plus)
	}
	if n.hash != nil {
		children = append(children, n.hash)
	}
	n.mu.Unlock()

	for _, c := range children {
		removeClientFrom(c, clientID)
	}
}

// Match walks the index following topic's levels plus any '+'/'#'
// branches, and returns every subscription that matches topic. When the
// same client subscribed through more than one matching filter, the
// highest granted QoS wins, per the spec's "deliver at the maximum QoS
// the client subscribed for" rule.
func (idx *Index) Match(topic string) []Subscription {
	byClient := make(map[string]Subscription)
	matchNode(idx.root, levels(topic), byClient)

	out := make([]Subscription, 0, len(byClient))
	for _, s := range byClient {
		out = append(out, s)
	}
	return out
}

func matchNode(n *node, remaining []string, out map[string]Subscription) {
	n.mu.RLock()
	hash := n.hash
	plus := n.plus
	var exact *node
	if len(remaining) > 0 {
		exact = n.children[remaining[0]]
	}
	n.mu.RUnlock()

	if hash != nil {
		collect(hash, out)
	}

	if len(remaining) == 0 {
		collect(n, out)
		return
	}

	if plus != nil {
		matchNode(plus, remaining[1:], out)
	}
	if exact != nil {
		matchNode(exact, remaining[1:], out)
	}
}

func collect(n *node, out map[string]Subscription) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	for clientID, sub := range n.subs {
		if existing, ok := out[clientID]; !ok || sub.QoS > existing.QoS {
			out[clientID] = sub
		}
	}
}
