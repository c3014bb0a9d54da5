package identity

import "errors"

// Store errors.
var (
	ErrIncomplete = errors.New("identity record incomplete")
)

// Credentials is the broker credential pair issued at claim time.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// DeviceIdentity is the persisted identity of a provisioned cart.
// Once saved, venue id, device id and credentials are immutable for the
// life of the device unless the store is cleared.
type DeviceIdentity struct {
	// VenueID is the venue (mall) the cart was announced to.
	VenueID string `json:"venue_id"`

	// DeviceID is the operator-assigned cart identifier.
	DeviceID string `json:"device_id"`

	// MACAddress is the hardware address generated at announce time.
	MACAddress string `json:"mac_address,omitempty"`

	// Credentials authenticate the cart's broker sessions.
	Credentials Credentials `json:"credentials"`
}

// Validate checks that every required field is present.
func (id *DeviceIdentity) Validate() error {
	if id.VenueID == "" || id.DeviceID == "" ||
		id.Credentials.Username == "" || id.Credentials.Password == "" {
		return ErrIncomplete
	}
	return nil
}

// Store persists a single cart identity.
// Implemented by FileStore, MemoryStore and RedisStore.
type Store interface {
	// Load returns the persisted identity, or (nil, nil) if none exists.
	Load() (*DeviceIdentity, error)

	// Save persists the identity. Rejects incomplete records.
	Save(id *DeviceIdentity) error

	// Clear removes the persisted identity. Clearing an empty store is
	// not an error.
	Clear() error
}
