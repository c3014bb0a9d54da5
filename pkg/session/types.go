package session

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"time"

	"github.com/smartcart-labs/smartcart-go/pkg/catalog"
	"github.com/smartcart-labs/smartcart-go/pkg/identity"
	"github.com/smartcart-labs/smartcart-go/pkg/log"
	"github.com/smartcart-labs/smartcart-go/pkg/transport"
	"github.com/smartcart-labs/smartcart-go/pkg/wire"
)

// Session errors.
var (
	ErrCommandTimeout = errors.New("timed out waiting for server command")
	ErrInvalidConfig  = errors.New("invalid configuration")
)

// Outcome is the session's terminal result as reported by the server.
type Outcome uint8

const (
	// OutcomeSuccess - server sent paymentInfo.
	OutcomeSuccess Outcome = iota

	// OutcomeFailed - server sent paymentFailed.
	OutcomeFailed

	// OutcomeUnknown - server sent an unrecognized command. The session
	// still shuts down; one command ends it regardless of content.
	OutcomeUnknown
)

// String returns the outcome name.
func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "SUCCESS"
	case OutcomeFailed:
		return "FAILED"
	case OutcomeUnknown:
		return "UNKNOWN"
	default:
		return "INVALID"
	}
}

// EventType identifies a session event.
type EventType uint8

const (
	// EventConnected - authenticated session established, commands subscribed.
	EventConnected EventType = iota

	// EventItemAdded - an item was picked and its event published.
	EventItemAdded

	// EventPaymentRequested - the payment request was published.
	EventPaymentRequested

	// EventCommandReceived - the server command arrived.
	EventCommandReceived

	// EventShutdown - grace period elapsed, session closing.
	EventShutdown
)

// Event is a session progress notification.
type Event struct {
	// Type is the event type.
	Type EventType

	// Item is the picked item (EventItemAdded).
	Item wire.CartItem

	// Amount is the payment amount in minor units (EventPaymentRequested).
	Amount int64

	// Command is the raw command tag (EventCommandReceived).
	Command string

	// PaymentURL accompanies paymentInfo commands (EventCommandReceived).
	PaymentURL string

	// Outcome is the session result (EventCommandReceived, EventShutdown).
	Outcome Outcome
}

// EventHandler observes session events. Handlers run on the session
// goroutine; keep them fast.
type EventHandler func(Event)

// Receipt summarizes a finished session.
type Receipt struct {
	// Items are the picks, in order.
	Items []wire.CartItem

	// TotalMinorUnits is the amount of the payment request.
	TotalMinorUnits int64

	// Outcome is the server's verdict.
	Outcome Outcome

	// Command is the raw command tag that ended the session.
	Command string

	// PaymentURL is set when the server sent paymentInfo.
	PaymentURL string
}

// Config configures a session Controller.
type Config struct {
	// Dialer opens the broker session.
	Dialer transport.Dialer

	// Identity is the cart's persisted identity.
	Identity *identity.DeviceIdentity

	// Catalog supplies the items the simulated customer picks from.
	Catalog catalog.Provider

	// Rand drives item picks and browse pacing. Seeded from the clock
	// when nil; inject a fixed seed for deterministic scenarios.
	Rand *rand.Rand

	// MinItems and MaxItems bound the number of picks (inclusive).
	MinItems int
	MaxItems int

	// BrowseDelayMin and BrowseDelayMax bound the randomized pause after
	// each pick, modeling human browsing pace.
	BrowseDelayMin time.Duration
	BrowseDelayMax time.Duration

	// CommandTimeout bounds the wait for the server command. The cart
	// firmware waited forever here; a silent server now fails the
	// session instead.
	CommandTimeout time.Duration

	// GracePeriod is the pause between handling the command and closing
	// the connection, modeling the customer finishing checkout.
	GracePeriod time.Duration

	// Logger is the optional logger for debug output.
	// If nil, logging is disabled.
	Logger *slog.Logger

	// ProtocolLogger captures lifecycle events (optional).
	ProtocolLogger log.Logger
}

// DefaultConfig returns a Config with the standard simulation timings.
func DefaultConfig() Config {
	return Config{
		MinItems:       3,
		MaxItems:       4,
		BrowseDelayMin: 9 * time.Second,
		BrowseDelayMax: 15 * time.Second,
		CommandTimeout: 15 * time.Minute,
		GracePeriod:    10 * time.Second,
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Dialer == nil {
		return fmt.Errorf("%w: nil dialer", ErrInvalidConfig)
	}
	if c.Identity == nil {
		return fmt.Errorf("%w: nil identity", ErrInvalidConfig)
	}
	if err := c.Identity.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if c.Catalog == nil {
		return fmt.Errorf("%w: nil catalog", ErrInvalidConfig)
	}
	if c.MinItems < 1 || c.MaxItems < c.MinItems {
		return fmt.Errorf("%w: item count bounds %d..%d", ErrInvalidConfig, c.MinItems, c.MaxItems)
	}
	if c.BrowseDelayMin < 0 || c.BrowseDelayMax < c.BrowseDelayMin {
		return fmt.Errorf("%w: browse delay bounds", ErrInvalidConfig)
	}
	if c.CommandTimeout <= 0 {
		return fmt.Errorf("%w: command timeout must be positive", ErrInvalidConfig)
	}
	if c.GracePeriod < 0 {
		return fmt.Errorf("%w: negative grace period", ErrInvalidConfig)
	}
	return nil
}

// TotalMinorUnits converts a list of catalog prices to a single integer
// amount in minor units, rounding half-up on the cents boundary. Prices
// carry at most two decimal digits.
func TotalMinorUnits(items []wire.CartItem) int64 {
	var sum float64
	for _, item := range items {
		sum += item.Price
	}
	return int64(math.Floor(sum*100 + 0.5))
}
