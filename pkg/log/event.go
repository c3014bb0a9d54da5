package log

import "time"

// Event is one recorded lifecycle event.
// CBOR encoding uses integer keys for compactness.
type Event struct {
	// Timestamp when the event occurred (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// SessionID groups the events of one transport session (UUID).
	SessionID string `cbor:"2,keyasint,omitempty"`

	// Kind classifies the event.
	Kind Kind `cbor:"3,keyasint"`

	// Direction indicates message flow, for message events.
	Direction Direction `cbor:"4,keyasint,omitempty"`

	// Topic is the broker topic, for message events.
	Topic string `cbor:"5,keyasint,omitempty"`

	// MACAddress is the cart hardware address, once generated.
	MACAddress string `cbor:"6,keyasint,omitempty"`

	// DeviceID is the cart identifier, once assigned.
	DeviceID string `cbor:"7,keyasint,omitempty"`

	// OldState and NewState describe a state transition.
	OldState string `cbor:"8,keyasint,omitempty"`
	NewState string `cbor:"9,keyasint,omitempty"`

	// Reason carries free-form detail (command tag, abort cause, ...).
	Reason string `cbor:"10,keyasint,omitempty"`

	// Amount is the payment amount in minor units, for payment events.
	Amount int64 `cbor:"11,keyasint,omitempty"`

	// Err is the error text for error events.
	Err string `cbor:"12,keyasint,omitempty"`
}

// Kind classifies a lifecycle event.
type Kind uint8

const (
	// KindStateChange records a provisioning or session state transition.
	KindStateChange Kind = 0

	// KindMessage records a published or received broker message.
	KindMessage Kind = 1

	// KindError records a failure on any path.
	KindError Kind = 2
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindStateChange:
		return "STATE_CHANGE"
	case KindMessage:
		return "MESSAGE"
	case KindError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Direction indicates the direction of message flow.
type Direction uint8

const (
	// DirectionIn indicates an incoming message.
	DirectionIn Direction = 0
	// DirectionOut indicates an outgoing message.
	DirectionOut Direction = 1
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "IN"
	case DirectionOut:
		return "OUT"
	default:
		return "UNKNOWN"
	}
}
