package session

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/smartcart-labs/smartcart-go/pkg/catalog"
	"github.com/smartcart-labs/smartcart-go/pkg/log"
	"github.com/smartcart-labs/smartcart-go/pkg/transport"
	"github.com/smartcart-labs/smartcart-go/pkg/wire"
)

// Controller runs one shopping session. A Controller is single-use.
type Controller struct {
	config        Config
	eventHandlers []EventHandler
	sessionID     string
}

// NewController creates a session controller.
func NewController(config Config) (*Controller, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if config.Rand == nil {
		config.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Controller{
		config:    config,
		sessionID: uuid.NewString(),
	}, nil
}

// OnEvent registers an event handler. Must be called before Run.
func (c *Controller) OnEvent(handler EventHandler) {
	c.eventHandlers = append(c.eventHandlers, handler)
}

// Run executes the session to completion. The broker connection is closed
// on every return path, success or not.
func (c *Controller) Run(ctx context.Context) (*Receipt, error) {
	id := c.config.Identity
	user := id.Credentials.Username

	conn, err := c.config.Dialer.Dial(ctx, transport.DialOptions{
		ClientID: transport.CartClientID(id.DeviceID),
		Username: user,
		Password: id.Credentials.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("session connect: %w", err)
	}
	defer conn.Close()

	// Subscribe before any publish so a fast server reply cannot be
	// missed. Only the first command is acted on; the buffered send
	// drops anything after it.
	commands := make(chan *wire.ServerCommand, 1)
	cmdTopic := wire.CommandsTopic(user)
	err = conn.Subscribe(cmdTopic, func(_ string, payload []byte) {
		cmd, err := wire.DecodeServerCommand(payload)
		if err != nil {
			c.debugLog("ignoring malformed command payload", "topic", cmdTopic)
			return
		}
		select {
		case commands <- cmd:
		default:
		}
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe commands: %w", err)
	}

	c.debugLog("session started", "deviceID", id.DeviceID, "commandTopic", cmdTopic)
	c.emitEvent(Event{Type: EventConnected})

	items, err := c.shop(ctx, conn, user)
	if err != nil {
		return nil, err
	}

	total := TotalMinorUnits(items)
	if err := c.requestPayment(conn, user, total); err != nil {
		return nil, err
	}

	cmd, err := c.awaitCommand(ctx, commands)
	if err != nil {
		return nil, err
	}

	receipt := &Receipt{
		Items:           items,
		TotalMinorUnits: total,
		Command:         cmd.Command,
		PaymentURL:      cmd.PaymentURL,
	}
	switch cmd.Command {
	case wire.CommandPaymentInfo:
		receipt.Outcome = OutcomeSuccess
	case wire.CommandPaymentFailed:
		receipt.Outcome = OutcomeFailed
	default:
		receipt.Outcome = OutcomeUnknown
	}

	c.logMessage(log.DirectionIn, cmdTopic, cmd.Command, 0)
	c.emitEvent(Event{
		Type:       EventCommandReceived,
		Command:    cmd.Command,
		PaymentURL: cmd.PaymentURL,
		Outcome:    receipt.Outcome,
	})
	c.debugLog("server command handled", "command", cmd.Command, "outcome", receipt.Outcome.String())

	// Customer finishes checkout before the cart drops off the broker.
	if err := c.pause(ctx, c.config.GracePeriod); err != nil {
		return nil, err
	}
	c.emitEvent(Event{Type: EventShutdown, Outcome: receipt.Outcome})

	return receipt, nil
}

// shop simulates the customer picking items, publishing an item_added
// event per pick with a randomized browsing pause after each one.
func (c *Controller) shop(ctx context.Context, conn transport.Connection, user string) ([]wire.CartItem, error) {
	picker := catalog.NewPicker(c.config.Catalog, c.config.Rand)
	count := c.config.MinItems + c.config.Rand.Intn(c.config.MaxItems-c.config.MinItems+1)
	topic := wire.ItemAddedTopic(user)

	items := make([]wire.CartItem, 0, count)
	for i := 0; i < count; i++ {
		item, err := picker.Pick()
		if err != nil {
			return nil, err
		}
		items = append(items, item)

		payload, err := wire.Encode(wire.ItemAdded{Item: item})
		if err != nil {
			return nil, err
		}
		if err := conn.Publish(topic, payload); err != nil {
			return nil, fmt.Errorf("publish item event: %w", err)
		}

		c.logMessage(log.DirectionOut, topic, item.ProductID, 0)
		c.emitEvent(Event{Type: EventItemAdded, Item: item})
		c.debugLog("item added", "productID", item.ProductID, "name", item.ProductName)

		if err := c.pause(ctx, c.browseDelay()); err != nil {
			return nil, err
		}
	}
	return items, nil
}

// requestPayment publishes the single payment request for the session.
func (c *Controller) requestPayment(conn transport.Connection, user string, total int64) error {
	payload, err := wire.Encode(wire.PaymentRequest{Amount: total})
	if err != nil {
		return err
	}
	topic := wire.PaymentRequestTopic(user)
	if err := conn.Publish(topic, payload); err != nil {
		return fmt.Errorf("publish payment request: %w", err)
	}

	c.logMessage(log.DirectionOut, topic, "", total)
	c.emitEvent(Event{Type: EventPaymentRequested, Amount: total})
	c.debugLog("payment requested", "amountMinorUnits", total)
	return nil
}

// awaitCommand blocks for the single server command that ends the session.
func (c *Controller) awaitCommand(ctx context.Context, commands <-chan *wire.ServerCommand) (*wire.ServerCommand, error) {
	timer := time.NewTimer(c.config.CommandTimeout)
	defer timer.Stop()

	select {
	case cmd := <-commands:
		return cmd, nil
	case <-timer.C:
		return nil, ErrCommandTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// browseDelay draws a randomized pause from the configured bounds.
func (c *Controller) browseDelay() time.Duration {
	span := c.config.BrowseDelayMax - c.config.BrowseDelayMin
	if span <= 0 {
		return c.config.BrowseDelayMin
	}
	return c.config.BrowseDelayMin + time.Duration(c.config.Rand.Int63n(int64(span)+1))
}

// pause waits for d or until ctx is cancelled.
func (c *Controller) pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Controller) emitEvent(event Event) {
	for _, handler := range c.eventHandlers {
		handler(event)
	}
}

func (c *Controller) logMessage(dir log.Direction, topic, reason string, amount int64) {
	if c.config.ProtocolLogger == nil {
		return
	}
	c.config.ProtocolLogger.Log(log.Event{
		Timestamp: time.Now(),
		SessionID: c.sessionID,
		Kind:      log.KindMessage,
		Direction: dir,
		Topic:     topic,
		DeviceID:  c.config.Identity.DeviceID,
		Reason:    reason,
		Amount:    amount,
	})
}

func (c *Controller) debugLog(msg string, args ...any) {
	if c.config.Logger != nil {
		c.config.Logger.Debug(msg, args...)
	}
}
