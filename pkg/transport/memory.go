package transport

import (
	"context"
	"fmt"
	"sync"
)

// Broker is an in-process pub/sub broker for tests and offline simulation.
// It implements Dialer and enforces a simple credential table the way the
// venue broker does: anonymous sessions are allowed (provisioning relies on
// them), named sessions must present a registered username/password pair.
type Broker struct {
	mu        sync.Mutex
	creds     map[string]string
	dialErr   error
	conns     map[*memConn]struct{}
	subs      map[string]map[*memConn]MessageHandler
	published map[string][][]byte
}

// NewBroker creates an empty in-memory broker.
func NewBroker() *Broker {
	return &Broker{
		creds:     make(map[string]string),
		conns:     make(map[*memConn]struct{}),
		subs:      make(map[string]map[*memConn]MessageHandler),
		published: make(map[string][][]byte),
	}
}

// RegisterUser adds a credential pair to the broker's auth table.
func (b *Broker) RegisterUser(username, password string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.creds[username] = password
}

// SetDialError makes every subsequent Dial fail with err until reset
// with nil. Used to simulate an unreachable broker.
func (b *Broker) SetDialError(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dialErr = err
}

// Dial opens an in-memory connection.
func (b *Broker) Dial(ctx context.Context, opts DialOptions) (Connection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.dialErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectFailed, b.dialErr)
	}

	if !opts.Anonymous() {
		pass, known := b.creds[opts.Username]
		if !known || pass != opts.Password {
			return nil, fmt.Errorf("%w: user %q", ErrNotAuthorized, opts.Username)
		}
	}

	conn := &memConn{broker: b, clientID: opts.ClientID}
	b.conns[conn] = struct{}{}
	return conn, nil
}

// Publish injects a message as if the server published it.
func (b *Broker) Publish(topic string, payload []byte) {
	b.dispatch(topic, payload)
}

// Published returns every payload published on a topic, in order.
func (b *Broker) Published(topic string) [][]byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([][]byte, len(b.published[topic]))
	copy(out, b.published[topic])
	return out
}

// ConnectionCount returns the number of open connections.
func (b *Broker) ConnectionCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.conns)
}

// SubscriberCount returns the number of live subscriptions on a topic.
// Tests use it to wait for a cart to finish subscribing before injecting
// a server message.
func (b *Broker) SubscriberCount(topic string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[topic])
}

// dispatch records a payload and delivers it to subscribed handlers.
// Handlers run without the broker lock held, so a handler may publish.
func (b *Broker) dispatch(topic string, payload []byte) {
	b.mu.Lock()
	b.published[topic] = append(b.published[topic], payload)
	handlers := make([]MessageHandler, 0, len(b.subs[topic]))
	for _, h := range b.subs[topic] {
		handlers = append(handlers, h)
	}
	b.mu.Unlock()

	for _, h := range handlers {
		h(topic, payload)
	}
}

func (b *Broker) closeConn(c *memConn) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.conns, c)
	for _, conns := range b.subs {
		delete(conns, c)
	}
}

// memConn is a Connection backed by a Broker.
type memConn struct {
	broker   *Broker
	clientID string

	mu     sync.Mutex
	closed bool
}

func (c *memConn) Publish(topic string, payload []byte) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return ErrClosed
	}
	c.broker.dispatch(topic, payload)
	return nil
}

func (c *memConn) Subscribe(topic string, handler MessageHandler) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return ErrClosed
	}

	c.broker.mu.Lock()
	defer c.broker.mu.Unlock()
	if c.broker.subs[topic] == nil {
		c.broker.subs[topic] = make(map[*memConn]MessageHandler)
	}
	c.broker.subs[topic][c] = handler
	return nil
}

func (c *memConn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.broker.closeConn(c)
	return nil
}

// Compile-time interface satisfaction checks.
var (
	_ Dialer     = (*Broker)(nil)
	_ Connection = (*memConn)(nil)
)
