package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/eclipse/paho.mqtt.golang/packets"
)

// DefaultDisconnectQuiesce is how long Close waits for in-flight messages.
const DefaultDisconnectQuiesce = 250 * time.Millisecond

// MQTTDialer dials an MQTT broker.
type MQTTDialer struct {
	// BrokerURL is the broker address, e.g. "tcp://localhost:1883".
	BrokerURL string

	// ConnectTimeout bounds each dial attempt. Zero means the paho default.
	ConnectTimeout time.Duration

	// Logger is the optional logger for debug output.
	// If nil, logging is disabled.
	Logger *slog.Logger
}

// Dial opens an MQTT connection.
// There is no automatic reconnect: a lost connection ends the owning
// workflow, matching the cart's one-shot session model.
func (d *MQTTDialer) Dial(ctx context.Context, opts DialOptions) (Connection, error) {
	cfg := mqtt.NewClientOptions().
		AddBroker(d.BrokerURL).
		SetClientID(opts.ClientID).
		SetCleanSession(true).
		SetAutoReconnect(false)

	if !opts.Anonymous() {
		cfg.SetUsername(opts.Username)
		cfg.SetPassword(opts.Password)
	}
	if d.ConnectTimeout > 0 {
		cfg.SetConnectTimeout(d.ConnectTimeout)
	}

	client := mqtt.NewClient(cfg)

	token := client.Connect()
	if err := waitToken(ctx, token); err != nil {
		client.Disconnect(0)
		if isAuthRefused(err) {
			return nil, fmt.Errorf("%w: %v", ErrNotAuthorized, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrConnectFailed, err)
	}

	d.debugLog("mqtt connected", "clientID", opts.ClientID, "anonymous", opts.Anonymous())

	return &mqttConn{client: client, logger: d.Logger}, nil
}

func (d *MQTTDialer) debugLog(msg string, args ...any) {
	if d.Logger != nil {
		d.Logger.Debug(msg, args...)
	}
}

// mqttConn adapts a paho client to the Connection interface.
type mqttConn struct {
	client mqtt.Client
	logger *slog.Logger
}

// Publish sends a payload at QoS 1.
func (c *mqttConn) Publish(topic string, payload []byte) error {
	if !c.client.IsConnected() {
		return ErrClosed
	}
	token := c.client.Publish(topic, 1, false, payload)
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// Subscribe registers a handler and waits for the broker's SUBACK.
func (c *mqttConn) Subscribe(topic string, handler MessageHandler) error {
	if !c.client.IsConnected() {
		return ErrClosed
	}
	token := c.client.Subscribe(topic, 1, func(_ mqtt.Client, msg mqtt.Message) {
		handler(msg.Topic(), msg.Payload())
	})
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("subscribe %s: %w", topic, err)
	}
	return nil
}

// Close disconnects from the broker.
func (c *mqttConn) Close() error {
	c.client.Disconnect(uint(DefaultDisconnectQuiesce.Milliseconds()))
	return nil
}

// waitToken waits for a paho token with context cancellation support.
func waitToken(ctx context.Context, token mqtt.Token) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-token.Done():
		return token.Error()
	}
}

// isAuthRefused reports whether a connect error is a credential rejection
// (CONNACK 4 or 5) rather than a reachability problem.
func isAuthRefused(err error) bool {
	return errors.Is(err, packets.ErrorRefusedBadUsernameOrPassword) ||
		errors.Is(err, packets.ErrorRefusedNotAuthorised)
}

// Compile-time interface satisfaction checks.
var (
	_ Dialer     = (*MQTTDialer)(nil)
	_ Connection = (*mqttConn)(nil)
)
