// Package bus is an in-process publish/subscribe hub. Topics are token
// paths; subscription filters may use "+" for exactly one token and a
// trailing "#" for any remainder, including none.
package bus

import (
	"context"
	"strings"
	"sync"
)

const (
	SingleWild = "+"
	MultiWild  = "#"
)

// Topic is a sequence of tokens.
type Topic []string

func T(tokens ...string) Topic { return Topic(tokens) }

func (t Topic) String() string { return strings.Join(t, "/") }

type Message struct {
	Topic    Topic
	Payload  any
	Retained bool
}

type Subscription struct {
	filter Topic
	ch     chan *Message
	conn   *Connection
}

func (s *Subscription) Topic() Topic             { return s.filter }
func (s *Subscription) Channel() <-chan *Message { return s.ch }
func (s *Subscription) Unsubscribe()             { s.conn.Unsubscribe(s) }

// node is one trie level. Filters and retained messages share the trie;
// wildcard tokens are stored as ordinary children.
type node struct {
	children map[string]*node
	subs     []*Subscription
	retained *Message
}

func (n *node) child(tok string, create bool) *node {
	c := n.children[tok]
	if c == nil && create {
		if n.children == nil {
			n.children = make(map[string]*node)
		}
		c = &node{}
		n.children[tok] = c
	}
	return c
}

// matchSubs appends subscriptions whose filter matches topic[i:].
func (n *node) matchSubs(topic Topic, i int, out []*Subscription) []*Subscription {
	if c := n.children[MultiWild]; c != nil {
		out = append(out, c.subs...)
	}
	if i == len(topic) {
		return append(out, n.subs...)
	}
	if c := n.children[topic[i]]; c != nil {
		out = c.matchSubs(topic, i+1, out)
	}
	if c := n.children[SingleWild]; c != nil {
		out = c.matchSubs(topic, i+1, out)
	}
	return out
}

// matchRetained appends retained messages whose topic matches filter[i:].
func (n *node) matchRetained(filter Topic, i int, out []*Message) []*Message {
	if i == len(filter) {
		if n.retained != nil {
			out = append(out, n.retained)
		}
		return out
	}
	switch filter[i] {
	case MultiWild:
		return n.allRetained(out)
	case SingleWild:
		for tok, c := range n.children {
			if tok != SingleWild && tok != MultiWild {
				out = c.matchRetained(filter, i+1, out)
			}
		}
		return out
	}
	if c := n.children[filter[i]]; c != nil {
		out = c.matchRetained(filter, i+1, out)
	}
	return out
}

func (n *node) allRetained(out []*Message) []*Message {
	if n.retained != nil {
		out = append(out, n.retained)
	}
	for _, c := range n.children {
		out = c.allRetained(out)
	}
	return out
}

type Bus struct {
	mu   sync.RWMutex
	root node
	qLen int
}

// New creates a bus whose subscriptions queue up to queueLen messages.
func New(queueLen int) *Bus {
	if queueLen <= 0 {
		queueLen = 8
	}
	return &Bus{qLen: queueLen}
}

// offer queues m on s, dropping the oldest queued message when full.
func offer(s *Subscription, m *Message) {
	for {
		select {
		case s.ch <- m:
			return
		default:
		}
		select {
		case <-s.ch:
		default:
		}
	}
}

func (b *Bus) publish(m *Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if m.Retained {
		n := &b.root
		for _, tok := range m.Topic {
			n = n.child(tok, true)
		}
		if m.Payload == nil {
			n.retained = nil
		} else {
			n.retained = m
		}
	}
	for _, s := range b.root.matchSubs(m.Topic, 0, nil) {
		offer(s, m)
	}
}

// deliver blocks until every matching subscriber has queued m or ctx ends.
func (b *Bus) deliver(ctx context.Context, m *Message) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, s := range b.root.matchSubs(m.Topic, 0, nil) {
		select {
		case s.ch <- m:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (b *Bus) subscribe(s *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := &b.root
	for _, tok := range s.filter {
		n = n.child(tok, true)
	}
	n.subs = append(n.subs, s)
	for _, m := range b.root.matchRetained(s.filter, 0, nil) {
		offer(s, m)
	}
}

func (b *Bus) unsubscribe(s *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	path := []*node{&b.root}
	n := &b.root
	for _, tok := range s.filter {
		if n = n.child(tok, false); n == nil {
			return
		}
		path = append(path, n)
	}
	for i, x := range n.subs {
		if x == s {
			n.subs = append(n.subs[:i], n.subs[i+1:]...)
			break
		}
	}
	for i := len(s.filter) - 1; i >= 0; i-- {
		c := path[i+1]
		if len(c.subs) > 0 || len(c.children) > 0 || c.retained != nil {
			break
		}
		delete(path[i].children, s.filter[i])
	}
}

// Connection groups the subscriptions of one client so they can be
// dropped together.
type Connection struct {
	bus  *Bus
	id   string
	mu   sync.Mutex
	subs []*Subscription
}

func (b *Bus) NewConnection(id string) *Connection {
	return &Connection{bus: b, id: id}
}

func (c *Connection) ID() string { return c.id }

// Publish sends payload to every matching subscriber without blocking.
// A retained message is also kept for later subscribers; a nil retained
// payload clears it.
func (c *Connection) Publish(topic Topic, payload any, retained bool) {
	c.bus.publish(&Message{Topic: topic, Payload: payload, Retained: retained})
}

// Deliver is the lossless form of Publish: it waits for queue space.
func (c *Connection) Deliver(ctx context.Context, topic Topic, payload any) error {
	return c.bus.deliver(ctx, &Message{Topic: topic, Payload: payload})
}

func (c *Connection) Subscribe(filter Topic) *Subscription {
	s := &Subscription{
		filter: filter,
		ch:     make(chan *Message, c.bus.qLen),
		conn:   c,
	}
	c.mu.Lock()
	c.subs = append(c.subs, s)
	c.mu.Unlock()
	c.bus.subscribe(s)
	return s
}

// Unsubscribe removes s and closes its channel.
func (c *Connection) Unsubscribe(s *Subscription) {
	c.mu.Lock()
	found := false
	for i, x := range c.subs {
		if x == s {
			c.subs = append(c.subs[:i], c.subs[i+1:]...)
			found = true
			break
		}
	}
	c.mu.Unlock()
	if !found {
		return
	}
	c.bus.unsubscribe(s)
	close(s.ch)
}

func (c *Connection) Disconnect() {
	c.mu.Lock()
	subs := c.subs
	c.subs = nil
	c.mu.Unlock()
	for _, s := range subs {
		c.bus.unsubscribe(s)
		close(s.ch)
	}
}
