package wire

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNoMatch indicates a payload that does not decode to the expected
// message kind. Waiting states treat it as "no matching message yet".
var ErrNoMatch = errors.New("no matching message")

// StatusClaimed is the only ClaimConfirmation status that completes a claim.
const StatusClaimed = "claimed"

// Server command names.
const (
	CommandPaymentInfo   = "paymentInfo"
	CommandPaymentFailed = "paymentFailed"
)

// ClaimAnnouncement is published once per provisioning attempt on the
// venue announce topic. Ephemeral; never persisted.
type ClaimAnnouncement struct {
	// MACAddress is the cart's locally generated hardware address.
	MACAddress string `json:"macAddress"`
}

// ClaimConfirmation is sent by the server on the per-MAC claimed topic
// after an operator binds the cart to a venue account.
type ClaimConfirmation struct {
	// Status is "claimed" on success. Other values are ignored.
	Status string `json:"status"`
}

// ServerCommand is a tagged command sent on the per-account commands topic.
// Exactly one command ends a shopping session regardless of its tag.
type ServerCommand struct {
	// Command is the command tag (paymentInfo, paymentFailed, ...).
	Command string `json:"command"`

	// PaymentURL accompanies paymentInfo commands.
	PaymentURL string `json:"paymentUrl,omitempty"`
}

// CartItem is a catalog entry carried in item_added events.
// Value object; identity is the product id.
type CartItem struct {
	ProductID   string  `json:"product_id"`
	ProductName string  `json:"product_name"`
	Price       float64 `json:"price"`
}

// ItemAdded is published on the item_added event topic for each pick.
type ItemAdded struct {
	Item CartItem `json:"item"`
}

// PaymentRequest is published exactly once per session, after all
// item_added events. Amount is in minor units (paise/cents).
type PaymentRequest struct {
	Amount int64 `json:"amount"`
}

// Encode serializes a message to its JSON wire form.
func Encode(msg any) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}
	return data, nil
}

// DecodeClaimConfirmation decodes a claimed-topic payload. Malformed JSON
// or a status other than "claimed" returns ErrNoMatch.
func DecodeClaimConfirmation(data []byte) (*ClaimConfirmation, error) {
	var msg ClaimConfirmation
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoMatch, err)
	}
	if msg.Status != StatusClaimed {
		return nil, fmt.Errorf("%w: status %q", ErrNoMatch, msg.Status)
	}
	return &msg, nil
}

// DecodeClaimAnnouncement decodes an announce-topic payload. Malformed
// JSON or a missing hardware address returns ErrNoMatch.
func DecodeClaimAnnouncement(data []byte) (*ClaimAnnouncement, error) {
	var msg ClaimAnnouncement
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoMatch, err)
	}
	if msg.MACAddress == "" {
		return nil, fmt.Errorf("%w: missing mac address", ErrNoMatch)
	}
	return &msg, nil
}

// DecodeServerCommand decodes a commands-topic payload. Malformed JSON or
// an empty command tag returns ErrNoMatch. Unknown tags are NOT an error;
// the session layer decides how to react to them.
func DecodeServerCommand(data []byte) (*ServerCommand, error) {
	var msg ServerCommand
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoMatch, err)
	}
	if msg.Command == "" {
		return nil, fmt.Errorf("%w: missing command tag", ErrNoMatch)
	}
	return &msg, nil
}
