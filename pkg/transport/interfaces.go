package transport

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// Transport errors.
var (
	// ErrConnectFailed indicates the broker could not be reached.
	ErrConnectFailed = errors.New("connect failed")

	// ErrNotAuthorized indicates the broker rejected the credentials.
	ErrNotAuthorized = errors.New("not authorized")

	// ErrClosed indicates an operation on a closed connection.
	ErrClosed = errors.New("connection closed")
)

// MessageHandler receives inbound messages for a subscription.
// Handlers must tolerate messages arriving after the component stopped
// caring about them; only the first matching message has a defined effect.
type MessageHandler func(topic string, payload []byte)

// Connection is a live pub/sub session with the broker.
type Connection interface {
	// Publish sends a payload on a topic. Fire-and-forget.
	Publish(topic string, payload []byte) error

	// Subscribe registers a handler for a topic. It returns only after
	// the broker has acknowledged the subscription.
	Subscribe(topic string, handler MessageHandler) error

	// Close tears down the session. Safe to call more than once.
	Close() error
}

// DialOptions configures a single dial attempt.
type DialOptions struct {
	// ClientID identifies this session to the broker.
	ClientID string

	// Username and Password authenticate the session.
	// Both empty means an anonymous session.
	Username string
	Password string
}

// Anonymous reports whether the dial carries no credentials.
func (o DialOptions) Anonymous() bool {
	return o.Username == "" && o.Password == ""
}

// Dialer opens connections to the broker.
// Implemented by MQTTDialer and memory.Broker.
type Dialer interface {
	// Dial opens a connection. Auth failures surface ErrNotAuthorized,
	// unreachable brokers ErrConnectFailed; both are wrapped.
	Dial(ctx context.Context, opts DialOptions) (Connection, error)
}

// Client id conventions carried over from the cart firmware: the short
// provisioning sessions embed the MAC, the session embeds the cart id.

// AnnounceClientID returns the client id for the announce session.
func AnnounceClientID(macAddress string) string {
	return "announce-" + macAddress
}

// WaitClientID returns the client id for the claim-wait session.
func WaitClientID(macAddress string) string {
	return "wait-" + macAddress
}

// CartClientID returns the client id for the shopping session.
func CartClientID(deviceID string) string {
	return "cart-" + deviceID
}

// RandomClientID returns a prefixed random client id for sessions with no
// natural identity yet.
func RandomClientID(prefix string) string {
	return prefix + "-" + uuid.NewString()
}
