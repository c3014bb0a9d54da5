package session_test

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/smartcart-labs/smartcart-go/pkg/catalog"
	"github.com/smartcart-labs/smartcart-go/pkg/identity"
	"github.com/smartcart-labs/smartcart-go/pkg/session"
	"github.com/smartcart-labs/smartcart-go/pkg/transport"
	"github.com/smartcart-labs/smartcart-go/pkg/wire"
)

func testIdentity() *identity.DeviceIdentity {
	return &identity.DeviceIdentity{
		VenueID:    "MALL1",
		DeviceID:   "C1",
		MACAddress: "00:AA:BB:01:02:03",
		Credentials: identity.Credentials{
			Username: "u1",
			Password: "p1",
		},
	}
}

func testConfig(broker *transport.Broker) session.Config {
	cfg := session.DefaultConfig()
	cfg.Dialer = broker
	cfg.Identity = testIdentity()
	cfg.Catalog = catalog.Default()
	cfg.Rand = rand.New(rand.NewSource(7))
	cfg.BrowseDelayMin = 0
	cfg.BrowseDelayMax = 0
	cfg.GracePeriod = 0
	cfg.CommandTimeout = 2 * time.Second
	return cfg
}

// testServer watches the cart's event topics over its own broker
// connection and optionally replies to the payment request.
type testServer struct {
	mu    sync.Mutex
	order []string // topic names in publish order
	reply []byte
}

func startServer(t *testing.T, broker *transport.Broker, reply []byte) *testServer {
	t.Helper()

	broker.RegisterUser("u1", "p1")
	conn, err := broker.Dial(context.Background(), transport.DialOptions{ClientID: "server"})
	if err != nil {
		t.Fatalf("server dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	srv := &testServer{reply: reply}
	record := func(topic string, _ []byte) {
		srv.mu.Lock()
		srv.order = append(srv.order, topic)
		srv.mu.Unlock()
	}
	if err := conn.Subscribe(wire.ItemAddedTopic("u1"), record); err != nil {
		t.Fatalf("server subscribe items: %v", err)
	}
	if err := conn.Subscribe(wire.PaymentRequestTopic("u1"), func(topic string, payload []byte) {
		record(topic, payload)
		if srv.reply != nil {
			_ = conn.Publish(wire.CommandsTopic("u1"), srv.reply)
		}
	}); err != nil {
		t.Fatalf("server subscribe payment: %v", err)
	}
	return srv
}

func (s *testServer) publishOrder() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

func TestTotalMinorUnits(t *testing.T) {
	cases := []struct {
		name   string
		prices []float64
		want   int64
	}{
		{"ReferenceBasket", []float64{180.00, 62.00, 50.00}, 29200},
		{"Empty", nil, 0},
		{"SingleItem", []float64{1.15}, 115},
		{"CentsSum", []float64{0.01, 0.02}, 3},
		{"ThirdsSum", []float64{33.33, 33.33, 33.34}, 10000},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			items := make([]wire.CartItem, len(tc.prices))
			for i, p := range tc.prices {
				items[i] = wire.CartItem{ProductID: "X", Price: p}
			}
			if got := session.TotalMinorUnits(items); got != tc.want {
				t.Errorf("TotalMinorUnits(%v) = %d, want %d", tc.prices, got, tc.want)
			}
		})
	}
}

func TestSessionPaymentSuccess(t *testing.T) {
	broker := transport.NewBroker()
	srv := startServer(t, broker, []byte(`{"command":"paymentInfo","paymentUrl":"https://pay.example/ord-1"}`))

	ctrl, err := session.NewController(testConfig(broker))
	if err != nil {
		t.Fatalf("NewController() error = %v", err)
	}

	var events []session.Event
	ctrl.OnEvent(func(e session.Event) { events = append(events, e) })

	receipt, err := ctrl.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if receipt.Outcome != session.OutcomeSuccess {
		t.Errorf("Outcome = %v, want SUCCESS", receipt.Outcome)
	}
	if receipt.PaymentURL != "https://pay.example/ord-1" {
		t.Errorf("PaymentURL = %q", receipt.PaymentURL)
	}
	if n := len(receipt.Items); n < 3 || n > 4 {
		t.Errorf("item count = %d, want 3..4", n)
	}
	if receipt.TotalMinorUnits <= 0 {
		t.Errorf("TotalMinorUnits = %d, want positive", receipt.TotalMinorUnits)
	}
	if receipt.TotalMinorUnits != session.TotalMinorUnits(receipt.Items) {
		t.Errorf("receipt total inconsistent with items")
	}

	// Exactly one payment request, published after every item event
	order := srv.publishOrder()
	if len(order) != len(receipt.Items)+1 {
		t.Fatalf("observed %d publishes, want %d", len(order), len(receipt.Items)+1)
	}
	payTopic := wire.PaymentRequestTopic("u1")
	for i, topic := range order[:len(order)-1] {
		if topic == payTopic {
			t.Errorf("payment request at position %d, before all item events", i)
		}
	}
	if order[len(order)-1] != payTopic {
		t.Errorf("last publish = %s, want payment request", order[len(order)-1])
	}
	var req wire.PaymentRequest
	if err := json.Unmarshal(broker.Published(payTopic)[0], &req); err != nil {
		t.Fatalf("payment payload: %v", err)
	}
	if req.Amount != receipt.TotalMinorUnits {
		t.Errorf("published amount = %d, want %d", req.Amount, receipt.TotalMinorUnits)
	}

	// Only the server's connection remains open
	if broker.ConnectionCount() != 1 {
		t.Errorf("ConnectionCount() = %d after session, want 1 (server only)", broker.ConnectionCount())
	}

	// Event sequence: connected, items, payment, command, shutdown
	if events[0].Type != session.EventConnected {
		t.Errorf("first event = %v, want EventConnected", events[0].Type)
	}
	wantLen := 1 + len(receipt.Items) + 3
	if len(events) != wantLen {
		t.Fatalf("event count = %d, want %d", len(events), wantLen)
	}
	if events[len(events)-2].Type != session.EventCommandReceived {
		t.Errorf("penultimate event = %v, want EventCommandReceived", events[len(events)-2].Type)
	}
	if events[len(events)-1].Type != session.EventShutdown {
		t.Errorf("last event = %v, want EventShutdown", events[len(events)-1].Type)
	}
}

func TestSessionPaymentFailed(t *testing.T) {
	broker := transport.NewBroker()
	startServer(t, broker, []byte(`{"command":"paymentFailed"}`))

	ctrl, _ := session.NewController(testConfig(broker))
	receipt, err := ctrl.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if receipt.Outcome != session.OutcomeFailed {
		t.Errorf("Outcome = %v, want FAILED", receipt.Outcome)
	}
	// No automatic retry: exactly one payment request went out
	if n := len(broker.Published(wire.PaymentRequestTopic("u1"))); n != 1 {
		t.Errorf("payment requests = %d, want 1", n)
	}
}

func TestSessionUnknownCommandStillShutsDown(t *testing.T) {
	broker := transport.NewBroker()
	startServer(t, broker, []byte(`{"command":"fleetInventoryAudit"}`))

	ctrl, _ := session.NewController(testConfig(broker))
	receipt, err := ctrl.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if receipt.Outcome != session.OutcomeUnknown {
		t.Errorf("Outcome = %v, want UNKNOWN", receipt.Outcome)
	}
	if receipt.Command != "fleetInventoryAudit" {
		t.Errorf("Command = %q", receipt.Command)
	}
	if broker.ConnectionCount() != 1 {
		t.Errorf("ConnectionCount() = %d, want 1 (session closed)", broker.ConnectionCount())
	}
}

func TestSessionFirstCommandWins(t *testing.T) {
	broker := transport.NewBroker()
	broker.RegisterUser("u1", "p1")

	conn, err := broker.Dial(context.Background(), transport.DialOptions{ClientID: "server"})
	if err != nil {
		t.Fatalf("server dial: %v", err)
	}
	defer conn.Close()
	if err := conn.Subscribe(wire.PaymentRequestTopic("u1"), func(string, []byte) {
		_ = conn.Publish(wire.CommandsTopic("u1"), []byte(`{"command":"paymentFailed"}`))
		_ = conn.Publish(wire.CommandsTopic("u1"), []byte(`{"command":"paymentInfo"}`))
	}); err != nil {
		t.Fatalf("server subscribe: %v", err)
	}

	ctrl, _ := session.NewController(testConfig(broker))
	receipt, err := ctrl.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if receipt.Outcome != session.OutcomeFailed {
		t.Errorf("Outcome = %v, want FAILED (first command wins)", receipt.Outcome)
	}
}

func TestSessionMalformedCommandsIgnored(t *testing.T) {
	broker := transport.NewBroker()
	broker.RegisterUser("u1", "p1")

	conn, _ := broker.Dial(context.Background(), transport.DialOptions{ClientID: "server"})
	defer conn.Close()
	_ = conn.Subscribe(wire.PaymentRequestTopic("u1"), func(string, []byte) {
		_ = conn.Publish(wire.CommandsTopic("u1"), []byte(`garbage`))
		_ = conn.Publish(wire.CommandsTopic("u1"), []byte(`{"noCommand":1}`))
		_ = conn.Publish(wire.CommandsTopic("u1"), []byte(`{"command":"paymentInfo"}`))
	})

	ctrl, _ := session.NewController(testConfig(broker))
	receipt, err := ctrl.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if receipt.Outcome != session.OutcomeSuccess {
		t.Errorf("Outcome = %v, want SUCCESS (malformed payloads skipped)", receipt.Outcome)
	}
}

func TestSessionCommandTimeout(t *testing.T) {
	broker := transport.NewBroker()
	broker.RegisterUser("u1", "p1")
	// No server: nothing ever answers the payment request.

	cfg := testConfig(broker)
	cfg.CommandTimeout = 30 * time.Millisecond
	ctrl, _ := session.NewController(cfg)

	_, err := ctrl.Run(context.Background())
	if !errors.Is(err, session.ErrCommandTimeout) {
		t.Errorf("Run() error = %v, want ErrCommandTimeout", err)
	}
	if broker.ConnectionCount() != 0 {
		t.Errorf("ConnectionCount() = %d after timeout, want 0", broker.ConnectionCount())
	}
}

func TestSessionAuthFailure(t *testing.T) {
	broker := transport.NewBroker()
	broker.RegisterUser("u1", "other-password")

	ctrl, _ := session.NewController(testConfig(broker))
	_, err := ctrl.Run(context.Background())
	if !errors.Is(err, transport.ErrNotAuthorized) {
		t.Errorf("Run() error = %v, want ErrNotAuthorized", err)
	}
}

func TestSessionCancelledMidBrowse(t *testing.T) {
	broker := transport.NewBroker()
	broker.RegisterUser("u1", "p1")

	cfg := testConfig(broker)
	cfg.BrowseDelayMin = time.Hour
	cfg.BrowseDelayMax = time.Hour
	ctrl, _ := session.NewController(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := ctrl.Run(ctx)
		done <- err
	}()

	// Wait for the first item event, then interrupt the browse pause.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(broker.Published(wire.ItemAddedTopic("u1"))) > 0 {
			break
		}
		time.Sleep(time.Millisecond)
	}
	cancel()

	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Run() error = %v, want context.Canceled", err)
	}
	if broker.ConnectionCount() != 0 {
		t.Errorf("ConnectionCount() = %d after cancel, want 0 (disconnect on every exit path)", broker.ConnectionCount())
	}
	if n := len(broker.Published(wire.PaymentRequestTopic("u1"))); n != 0 {
		t.Errorf("payment requests = %d after cancel mid-browse, want 0", n)
	}
}

func TestNewControllerValidation(t *testing.T) {
	if _, err := session.NewController(session.Config{}); !errors.Is(err, session.ErrInvalidConfig) {
		t.Errorf("NewController(zero config) error = %v, want ErrInvalidConfig", err)
	}

	broker := transport.NewBroker()
	cfg := testConfig(broker)
	cfg.Identity = &identity.DeviceIdentity{VenueID: "MALL1"}
	if _, err := session.NewController(cfg); !errors.Is(err, session.ErrInvalidConfig) {
		t.Errorf("NewController(incomplete identity) error = %v, want ErrInvalidConfig", err)
	}

	cfg = testConfig(broker)
	cfg.MinItems, cfg.MaxItems = 4, 3
	if _, err := session.NewController(cfg); !errors.Is(err, session.ErrInvalidConfig) {
		t.Errorf("NewController(bad item bounds) error = %v, want ErrInvalidConfig", err)
	}
}
