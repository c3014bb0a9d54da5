package provisioning

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/smartcart-labs/smartcart-go/pkg/identity"
	"github.com/smartcart-labs/smartcart-go/pkg/log"
	"github.com/smartcart-labs/smartcart-go/pkg/transport"
	"github.com/smartcart-labs/smartcart-go/pkg/wire"
)

// Flow drives one provisioning attempt. A Flow is single-use: create a
// new one for every attempt.
type Flow struct {
	config Config

	mu    sync.Mutex
	state State

	// mac is set once at Announce and identifies the cart until the
	// operator assigns a device id.
	mac string

	sessionID string
}

// NewFlow creates a provisioning flow.
func NewFlow(config Config) (*Flow, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if config.GenerateMAC == nil {
		config.GenerateMAC = RandomMAC
	}
	return &Flow{
		config:    config,
		state:     StateAnnounce,
		sessionID: uuid.NewString(),
	}, nil
}

// State returns the current flow state.
func (f *Flow) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// MACAddress returns the hardware address generated at Announce, or ""
// before Announce ran.
func (f *Flow) MACAddress() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.mac
}

// Run walks the machine to a terminal state. On success it returns the
// persisted identity; on any failure it returns the abort cause with the
// store untouched.
func (f *Flow) Run(ctx context.Context) (*identity.DeviceIdentity, error) {
	venueID, err := f.announce(ctx)
	if err != nil {
		return nil, f.abort(err)
	}
	f.setState(StateAwaitClaim)

	if err := f.awaitClaim(ctx); err != nil {
		return nil, f.abort(err)
	}
	f.setState(StateActivate)

	id, err := f.activate(ctx, venueID)
	if err != nil {
		return nil, f.abort(err)
	}
	f.setState(StateProvisioned)
	return id, nil
}

// announce publishes the cart's presence on the venue announce topic over
// a short-lived anonymous session.
func (f *Flow) announce(ctx context.Context) (string, error) {
	venueID, err := f.config.Input.VenueID(ctx)
	if err != nil {
		return "", fmt.Errorf("read venue id: %w", err)
	}
	if venueID == "" {
		return "", ErrVenueIDRequired
	}

	mac := f.config.GenerateMAC()
	f.mu.Lock()
	f.mac = mac
	f.mu.Unlock()

	f.debugLog("announcing presence", "venueID", venueID, "mac", mac)

	conn, err := f.config.Dialer.Dial(ctx, transport.DialOptions{
		ClientID: transport.AnnounceClientID(mac),
	})
	if err != nil {
		return "", fmt.Errorf("announce connect: %w", err)
	}
	defer conn.Close()

	payload, err := wire.Encode(wire.ClaimAnnouncement{MACAddress: mac})
	if err != nil {
		return "", err
	}

	topic := wire.AnnounceTopic(venueID)
	if err := conn.Publish(topic, payload); err != nil {
		return "", fmt.Errorf("announce publish: %w", err)
	}
	f.logMessage(log.DirectionOut, topic, "")

	// Let the broker flush the publish before the session drops.
	if f.config.AnnounceSettle > 0 {
		select {
		case <-time.After(f.config.AnnounceSettle):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	return venueID, nil
}

// awaitClaim blocks until the server confirms the operator's claim, the
// claim timeout elapses, or ctx is cancelled.
func (f *Flow) awaitClaim(ctx context.Context) error {
	mac := f.MACAddress()

	conn, err := f.config.Dialer.Dial(ctx, transport.DialOptions{
		ClientID: transport.WaitClientID(mac),
	})
	if err != nil {
		return fmt.Errorf("claim wait connect: %w", err)
	}
	defer conn.Close()

	// Only the first matching confirmation is acted on; later messages on
	// the topic are dropped by the buffered send.
	claimed := make(chan struct{}, 1)
	topic := wire.ClaimedTopic(mac)
	err = conn.Subscribe(topic, func(_ string, payload []byte) {
		if _, err := wire.DecodeClaimConfirmation(payload); err != nil {
			f.debugLog("ignoring non-claim payload", "topic", topic)
			return
		}
		select {
		case claimed <- struct{}{}:
		default:
		}
	})
	if err != nil {
		return fmt.Errorf("claim wait subscribe: %w", err)
	}

	f.debugLog("waiting for claim", "topic", topic, "timeout", f.config.ClaimTimeout)

	timer := time.NewTimer(f.config.ClaimTimeout)
	defer timer.Stop()

	select {
	case <-claimed:
		f.logMessage(log.DirectionIn, topic, wire.StatusClaimed)
		return nil
	case <-timer.C:
		return ErrClaimTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}

// activate proves the operator-issued credentials against the broker and,
// only on success, persists the identity. This is the single commit point.
func (f *Flow) activate(ctx context.Context, venueID string) (*identity.DeviceIdentity, error) {
	deviceID, username, password, err := f.config.Input.ActivationDetails(ctx)
	if err != nil {
		return nil, fmt.Errorf("read activation details: %w", err)
	}
	if deviceID == "" || username == "" || password == "" {
		return nil, ErrFieldsRequired
	}

	f.debugLog("activating", "deviceID", deviceID, "username", username)

	conn, err := f.config.Dialer.Dial(ctx, transport.DialOptions{
		ClientID: transport.CartClientID(deviceID),
		Username: username,
		Password: password,
	})
	if err != nil {
		return nil, fmt.Errorf("activation connect: %w", err)
	}
	conn.Close()

	id := &identity.DeviceIdentity{
		VenueID:    venueID,
		DeviceID:   deviceID,
		MACAddress: f.MACAddress(),
		Credentials: identity.Credentials{
			Username: username,
			Password: password,
		},
	}
	if err := f.config.Store.Save(id); err != nil {
		return nil, fmt.Errorf("persist identity: %w", err)
	}

	f.debugLog("identity persisted", "venueID", venueID, "deviceID", deviceID)
	return id, nil
}

// abort transitions to the terminal ABORTED state and records the cause.
func (f *Flow) abort(cause error) error {
	f.setState(StateAborted)
	if f.config.ProtocolLogger != nil {
		f.config.ProtocolLogger.Log(log.Event{
			Timestamp:  time.Now(),
			SessionID:  f.sessionID,
			Kind:       log.KindError,
			MACAddress: f.MACAddress(),
			Err:        cause.Error(),
		})
	}
	f.debugLog("provisioning aborted", "error", cause)
	return cause
}

func (f *Flow) setState(next State) {
	f.mu.Lock()
	prev := f.state
	f.state = next
	f.mu.Unlock()

	if f.config.ProtocolLogger != nil {
		f.config.ProtocolLogger.Log(log.Event{
			Timestamp:  time.Now(),
			SessionID:  f.sessionID,
			Kind:       log.KindStateChange,
			MACAddress: f.MACAddress(),
			OldState:   prev.String(),
			NewState:   next.String(),
		})
	}
	f.debugLog("state transition", "from", prev.String(), "to", next.String())
}

func (f *Flow) logMessage(dir log.Direction, topic, reason string) {
	if f.config.ProtocolLogger == nil {
		return
	}
	f.config.ProtocolLogger.Log(log.Event{
		Timestamp:  time.Now(),
		SessionID:  f.sessionID,
		Kind:       log.KindMessage,
		Direction:  dir,
		Topic:      topic,
		MACAddress: f.MACAddress(),
		Reason:     reason,
	})
}

func (f *Flow) debugLog(msg string, args ...any) {
	if f.config.Logger != nil {
		f.config.Logger.Debug(msg, args...)
	}
}
