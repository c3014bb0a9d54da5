package provisioning

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/smartcart-labs/smartcart-go/pkg/identity"
	"github.com/smartcart-labs/smartcart-go/pkg/log"
	"github.com/smartcart-labs/smartcart-go/pkg/transport"
)

// Provisioning errors.
var (
	ErrVenueIDRequired = errors.New("venue id is required")
	ErrFieldsRequired  = errors.New("device id, username and password are required")
	ErrClaimTimeout    = errors.New("timed out waiting for claim confirmation")
	ErrInvalidConfig   = errors.New("invalid configuration")
)

// State represents a provisioning flow state.
type State uint8

const (
	// StateAnnounce - publishing the cart's presence to the venue.
	StateAnnounce State = iota

	// StateAwaitClaim - waiting for an operator to claim the cart.
	StateAwaitClaim

	// StateActivate - proving the issued credentials against the broker.
	StateActivate

	// StateProvisioned - terminal; identity persisted.
	StateProvisioned

	// StateAborted - terminal; nothing persisted.
	StateAborted
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateAnnounce:
		return "ANNOUNCE"
	case StateAwaitClaim:
		return "AWAIT_CLAIM"
	case StateActivate:
		return "ACTIVATE"
	case StateProvisioned:
		return "PROVISIONED"
	case StateAborted:
		return "ABORTED"
	default:
		return "UNKNOWN"
	}
}

// OperatorInput supplies the operator-provided values the flow needs.
// Implementations may prompt a console, read a config file, or return
// canned values in tests.
type OperatorInput interface {
	// VenueID returns the venue identifier, requested at Announce.
	VenueID(ctx context.Context) (string, error)

	// ActivationDetails returns the cart id and credential pair issued
	// by the venue admin, requested at Activate.
	ActivationDetails(ctx context.Context) (deviceID, username, password string, err error)
}

// StaticInput is an OperatorInput with fixed answers.
type StaticInput struct {
	Venue    string
	DeviceID string
	Username string
	Password string
}

// VenueID returns the fixed venue id.
func (s StaticInput) VenueID(context.Context) (string, error) {
	return s.Venue, nil
}

// ActivationDetails returns the fixed activation values.
func (s StaticInput) ActivationDetails(context.Context) (string, string, string, error) {
	return s.DeviceID, s.Username, s.Password, nil
}

// MACGenerator produces the cart's locally-unique hardware address.
type MACGenerator func() string

// RandomMAC generates a plausible hardware address in the cart vendor's
// 00:AA:BB prefix.
func RandomMAC() string {
	b := make([]byte, 3)
	_, _ = rand.Read(b)
	return fmt.Sprintf("00:AA:BB:%02x:%02x:%02x", b[0], b[1], b[2])
}

// Config configures a provisioning Flow.
type Config struct {
	// Dialer opens broker sessions.
	Dialer transport.Dialer

	// Store receives the identity at the commit point.
	Store identity.Store

	// Input supplies operator-provided values.
	Input OperatorInput

	// ClaimTimeout bounds the AwaitClaim wait. The cart firmware waited
	// forever here; a stuck wait now aborts instead.
	ClaimTimeout time.Duration

	// AnnounceSettle is how long the announce session stays open after
	// publishing, giving the broker time to flush before disconnect.
	AnnounceSettle time.Duration

	// GenerateMAC produces the hardware address. Defaults to RandomMAC.
	GenerateMAC MACGenerator

	// Logger is the optional logger for debug output.
	// If nil, logging is disabled.
	Logger *slog.Logger

	// ProtocolLogger captures lifecycle events (optional).
	ProtocolLogger log.Logger
}

// DefaultConfig returns a Config with the standard timings.
func DefaultConfig() Config {
	return Config{
		ClaimTimeout:   10 * time.Minute,
		AnnounceSettle: time.Second,
	}
}

// Validate checks that the required collaborators are set.
func (c *Config) Validate() error {
	if c.Dialer == nil {
		return fmt.Errorf("%w: nil dialer", ErrInvalidConfig)
	}
	if c.Store == nil {
		return fmt.Errorf("%w: nil identity store", ErrInvalidConfig)
	}
	if c.Input == nil {
		return fmt.Errorf("%w: nil operator input", ErrInvalidConfig)
	}
	if c.ClaimTimeout <= 0 {
		return fmt.Errorf("%w: claim timeout must be positive", ErrInvalidConfig)
	}
	return nil
}
