// bus.go
package bus

import (
	"context"
	"errors"
	"sync"
)

// -----------------------------------------------------------------------------
// Topics
// -----------------------------------------------------------------------------

// Topic is an ordered list of comparable tokens, most significant first,
// e.g. Topic{"motor", "control", "stop"}. Tokens are usually strings but any
// comparable value works (ints for pin numbers, enums, ...). The wildcard
// tokens (by default "+" for one level, "#" for the rest) are only
// meaningful in subscription topics.
type Topic []any

// T builds a Topic and panics if any token is not comparable. Prefer it over
// a raw literal when tokens come from outside the package.
func T(parts ...any) Topic {
	for _, p := range parts {
		assertComparable(p)
	}
	return Topic(parts)
}

// Append returns a new Topic with extra tokens appended.
func (t Topic) Append(parts ...any) Topic {
	out := make(Topic, 0, len(t)+len(parts))
	out = append(out, t...)
	for _, p := range parts {
		assertComparable(p)
		out = append(out, p)
	}
	return out
}

// Equal reports token-wise equality.
func (t Topic) Equal(o Topic) bool {
	if len(t) != len(o) {
		return false
	}
	for i := range t {
		if t[i] != o[i] {
			return false
		}
	}
	return true
}

func assertComparable(v any) {
	// Map insertion panics at runtime for unhashable tokens, which is the
	// contract: fail loudly at construction, not at match time.
	_ = map[any]struct{}{v: {}}
}

// -----------------------------------------------------------------------------
// Messages
// -----------------------------------------------------------------------------

type Message struct {
	Topic    Topic
	Payload  any
	Retained bool
	// ReplyTo is set by Request/RequestWait; responders publish there via Reply.
	ReplyTo Topic
}

// -----------------------------------------------------------------------------
// Bus
// -----------------------------------------------------------------------------

// Bus is an in-process broker with MQTT-like topic matching, retained
// messages and request/reply. Subscriber channels are buffered with the
// queue length given to NewBus; a full subscriber silently drops (slow
// consumers must not stall the publisher).
type Bus struct {
	mu       sync.Mutex
	queueLen int
	single   any // one-level wildcard token
	multi    any // rest-of-topic wildcard token
	subs     []*Subscription
	retained []retainedEntry
	replySeq uint64
}

type retainedEntry struct {
	topic Topic
	msg   *Message
}

// NewBus creates a bus with the given per-subscription queue length.
// Optional arguments override the wildcard tokens: first the single-level
// token (default "+"), then the multi-level token (default "#").
func NewBus(queueLen int, wildcards ...any) *Bus {
	if queueLen <= 0 {
		queueLen = 1
	}
	b := &Bus{queueLen: queueLen, single: "+", multi: "#"}
	if len(wildcards) > 0 {
		b.single = wildcards[0]
	}
	if len(wildcards) > 1 {
		b.multi = wildcards[1]
	}
	return b
}

// NewMessage builds a message. Also available on Connection for call sites
// that only hold a connection.
func (b *Bus) NewMessage(topic Topic, payload any, retained bool) *Message {
	return &Message{Topic: topic, Payload: payload, Retained: retained}
}

// NewConnection registers a named client on the bus. The name feeds reply
// topic generation and debugging; it need not be unique.
func (b *Bus) NewConnection(name string) *Connection {
	return &Connection{bus: b, name: name}
}

// matches reports whether a concrete topic matches a subscription pattern.
// The multi-level wildcard matches zero or more remaining tokens, so
// pattern {"a", "#"} matches topic {"a"}.
func (b *Bus) matches(pattern, topic Topic) bool {
	for {
		if len(pattern) == 0 {
			return len(topic) == 0
		}
		if pattern[0] == b.multi {
			return true
		}
		if len(topic) == 0 {
			return false
		}
		if pattern[0] != b.single && pattern[0] != topic[0] {
			return false
		}
		pattern, topic = pattern[1:], topic[1:]
	}
}

// publish routes msg to matching subscriptions and updates the retained
// store. Caller must not hold b.mu.
func (b *Bus) publish(msg *Message) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if msg.Retained {
		b.storeRetainedLocked(msg)
	}
	for _, s := range b.subs {
		if b.matches(s.topic, msg.Topic) {
			s.deliverLocked(msg)
		}
	}
}

// storeRetainedLocked keeps the latest retained message per exact topic.
// A nil payload clears the slot.
func (b *Bus) storeRetainedLocked(msg *Message) {
	for i, e := range b.retained {
		if e.topic.Equal(msg.Topic) {
			if msg.Payload == nil {
				b.retained = append(b.retained[:i], b.retained[i+1:]...)
			} else {
				b.retained[i].msg = msg
			}
			return
		}
	}
	if msg.Payload != nil {
		b.retained = append(b.retained, retainedEntry{topic: msg.Topic, msg: msg})
	}
}

// -----------------------------------------------------------------------------
// Connections
// -----------------------------------------------------------------------------

type Connection struct {
	bus  *Bus
	name string
}

func (c *Connection) Name() string { return c.name }

func (c *Connection) NewMessage(topic Topic, payload any, retained bool) *Message {
	return c.bus.NewMessage(topic, payload, retained)
}

// Publish routes the message to every matching subscription, including the
// publisher's own.
func (c *Connection) Publish(msg *Message) {
	c.bus.publish(msg)
}

// Subscribe registers interest in a topic pattern. Matching retained
// messages are queued immediately.
func (c *Connection) Subscribe(topic Topic) *Subscription {
	b := c.bus
	s := &Subscription{
		topic: topic,
		ch:    make(chan *Message, b.queueLen),
	}
	b.mu.Lock()
	b.subs = append(b.subs, s)
	for _, e := range b.retained {
		if b.matches(topic, e.topic) {
			s.deliverLocked(e.msg)
		}
	}
	b.mu.Unlock()
	return s
}

// Unsubscribe removes the subscription and closes its channel.
func (c *Connection) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	b := c.bus
	b.mu.Lock()
	for i, s := range b.subs {
		if s == sub {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			close(s.ch)
			break
		}
	}
	b.mu.Unlock()
}

// -----------------------------------------------------------------------------
// Request–Reply
// -----------------------------------------------------------------------------

// Request assigns msg a fresh ReplyTo topic, subscribes to it and publishes
// the request. The caller reads the reply from the returned subscription and
// must Unsubscribe it when done.
func (c *Connection) Request(msg *Message) *Subscription {
	b := c.bus
	b.mu.Lock()
	b.replySeq++
	seq := b.replySeq
	b.mu.Unlock()

	msg.ReplyTo = Topic{"$reply", c.name, seq}
	sub := c.Subscribe(msg.ReplyTo)
	c.Publish(msg)
	return sub
}

// ErrClosed is returned by RequestWait when the reply subscription closes
// before a reply arrives.
var ErrClosed = errors.New("bus: subscription closed")

// RequestWait performs Request and blocks for the first reply or ctx expiry.
func (c *Connection) RequestWait(ctx context.Context, msg *Message) (*Message, error) {
	sub := c.Request(msg)
	defer c.Unsubscribe(sub)
	select {
	case m, ok := <-sub.Channel():
		if !ok {
			return nil, ErrClosed
		}
		return m, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Reply publishes a response to the request's ReplyTo topic. Requests
// without a ReplyTo are silently ignored.
func (c *Connection) Reply(req *Message, payload any, retained bool) {
	if req == nil || len(req.ReplyTo) == 0 {
		return
	}
	c.Publish(c.NewMessage(req.ReplyTo, payload, retained))
}

// -----------------------------------------------------------------------------
// Subscriptions
// -----------------------------------------------------------------------------

type Subscription struct {
	topic Topic
	ch    chan *Message
}

// Channel returns the delivery channel. It closes on Unsubscribe.
func (s *Subscription) Channel() <-chan *Message { return s.ch }

// Topic returns the subscription's pattern.
func (s *Subscription) Topic() Topic { return s.topic }

// deliverLocked enqueues without blocking; the bus lock is held, so the
// channel cannot be concurrently closed.
func (s *Subscription) deliverLocked(msg *Message) {
	select {
	case s.ch <- msg:
	default:
		// Queue full: drop. Subscribers size their queue via NewBus.
	}
}
