package provisioning_test

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/smartcart-labs/smartcart-go/pkg/identity"
	"github.com/smartcart-labs/smartcart-go/pkg/log"
	"github.com/smartcart-labs/smartcart-go/pkg/provisioning"
	"github.com/smartcart-labs/smartcart-go/pkg/transport"
	"github.com/smartcart-labs/smartcart-go/pkg/wire"
)

var macPattern = regexp.MustCompile(`^00:AA:BB:[0-9a-f]{2}:[0-9a-f]{2}:[0-9a-f]{2}$`)

func testConfig(broker *transport.Broker, store identity.Store, input provisioning.OperatorInput) provisioning.Config {
	cfg := provisioning.DefaultConfig()
	cfg.Dialer = broker
	cfg.Store = store
	cfg.Input = input
	cfg.AnnounceSettle = 0
	cfg.ClaimTimeout = 2 * time.Second
	cfg.GenerateMAC = func() string { return "00:AA:BB:01:02:03" }
	return cfg
}

func fullInput() provisioning.StaticInput {
	return provisioning.StaticInput{
		Venue:    "MALL1",
		DeviceID: "C1",
		Username: "u1",
		Password: "p1",
	}
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", msg)
}

// claimWhenWaiting confirms the claim as soon as the cart subscribes.
func claimWhenWaiting(t *testing.T, broker *transport.Broker, mac string) {
	t.Helper()
	go func() {
		topic := wire.ClaimedTopic(mac)
		deadline := time.Now().Add(2 * time.Second)
		for time.Now().Before(deadline) {
			if broker.SubscriberCount(topic) > 0 {
				broker.Publish(topic, []byte(`{"status":"claimed"}`))
				return
			}
			time.Sleep(time.Millisecond)
		}
	}()
}

func TestRandomMAC(t *testing.T) {
	for i := 0; i < 10; i++ {
		mac := provisioning.RandomMAC()
		if !macPattern.MatchString(mac) {
			t.Fatalf("RandomMAC() = %q, not a valid hardware address", mac)
		}
	}
}

func TestFlowAnnounce(t *testing.T) {
	t.Run("EmptyVenueAborts", func(t *testing.T) {
		broker := transport.NewBroker()
		store := identity.NewMemoryStore()

		flow, err := provisioning.NewFlow(testConfig(broker, store, provisioning.StaticInput{}))
		if err != nil {
			t.Fatalf("NewFlow() error = %v", err)
		}

		_, err = flow.Run(context.Background())
		if !errors.Is(err, provisioning.ErrVenueIDRequired) {
			t.Errorf("Run() error = %v, want ErrVenueIDRequired", err)
		}
		if flow.State() != provisioning.StateAborted {
			t.Errorf("State() = %v, want ABORTED", flow.State())
		}
		if got, _ := store.Load(); got != nil {
			t.Errorf("identity persisted on abort: %+v", got)
		}
	})

	t.Run("PublishesOneAnnouncement", func(t *testing.T) {
		broker := transport.NewBroker()
		store := identity.NewMemoryStore()

		cfg := testConfig(broker, store, fullInput())
		cfg.GenerateMAC = provisioning.RandomMAC
		cfg.ClaimTimeout = 50 * time.Millisecond // let AwaitClaim expire
		flow, _ := provisioning.NewFlow(cfg)

		_, err := flow.Run(context.Background())
		if !errors.Is(err, provisioning.ErrClaimTimeout) {
			t.Fatalf("Run() error = %v, want ErrClaimTimeout", err)
		}

		published := broker.Published(wire.AnnounceTopic("MALL1"))
		if len(published) != 1 {
			t.Fatalf("announce publishes = %d, want 1", len(published))
		}
		var ann wire.ClaimAnnouncement
		if err := json.Unmarshal(published[0], &ann); err != nil {
			t.Fatalf("announcement payload: %v", err)
		}
		if !macPattern.MatchString(ann.MACAddress) {
			t.Errorf("announced MAC = %q, not a valid hardware address", ann.MACAddress)
		}
		if broker.ConnectionCount() != 0 {
			t.Errorf("ConnectionCount() = %d after abort, want 0 (no dangling session)", broker.ConnectionCount())
		}
	})

	t.Run("ConnectFailureAborts", func(t *testing.T) {
		broker := transport.NewBroker()
		broker.SetDialError(errors.New("broker down"))

		flow, _ := provisioning.NewFlow(testConfig(broker, identity.NewMemoryStore(), fullInput()))

		_, err := flow.Run(context.Background())
		if !errors.Is(err, transport.ErrConnectFailed) {
			t.Errorf("Run() error = %v, want ErrConnectFailed", err)
		}
		if flow.State() != provisioning.StateAborted {
			t.Errorf("State() = %v, want ABORTED", flow.State())
		}
	})
}

func TestFlowAwaitClaim(t *testing.T) {
	t.Run("ClaimedProceeds", func(t *testing.T) {
		broker := transport.NewBroker()
		broker.RegisterUser("u1", "p1")
		store := identity.NewMemoryStore()

		flow, _ := provisioning.NewFlow(testConfig(broker, store, fullInput()))
		claimWhenWaiting(t, broker, "00:AA:BB:01:02:03")

		id, err := flow.Run(context.Background())
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if id == nil {
			t.Fatal("Run() returned nil identity")
		}
		if flow.State() != provisioning.StateProvisioned {
			t.Errorf("State() = %v, want PROVISIONED", flow.State())
		}
	})

	t.Run("OtherPayloadsIgnored", func(t *testing.T) {
		broker := transport.NewBroker()
		broker.RegisterUser("u1", "p1")
		store := identity.NewMemoryStore()

		flow, _ := provisioning.NewFlow(testConfig(broker, store, fullInput()))

		go func() {
			topic := wire.ClaimedTopic("00:AA:BB:01:02:03")
			deadline := time.Now().Add(2 * time.Second)
			for time.Now().Before(deadline) {
				if broker.SubscriberCount(topic) > 0 {
					// None of these may complete the claim
					broker.Publish(topic, []byte(`{"status":"pending"}`))
					broker.Publish(topic, []byte(`not json at all`))
					broker.Publish(topic, []byte(`{"unrelated":true}`))
					// The real confirmation
					broker.Publish(topic, []byte(`{"status":"claimed","by":"admin"}`))
					return
				}
				time.Sleep(time.Millisecond)
			}
		}()

		if _, err := flow.Run(context.Background()); err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if flow.State() != provisioning.StateProvisioned {
			t.Errorf("State() = %v, want PROVISIONED", flow.State())
		}
	})

	t.Run("Timeout", func(t *testing.T) {
		broker := transport.NewBroker()
		cfg := testConfig(broker, identity.NewMemoryStore(), fullInput())
		cfg.ClaimTimeout = 30 * time.Millisecond
		flow, _ := provisioning.NewFlow(cfg)

		_, err := flow.Run(context.Background())
		if !errors.Is(err, provisioning.ErrClaimTimeout) {
			t.Errorf("Run() error = %v, want ErrClaimTimeout", err)
		}
		if broker.ConnectionCount() != 0 {
			t.Errorf("ConnectionCount() = %d, want 0", broker.ConnectionCount())
		}
	})

	t.Run("Cancellation", func(t *testing.T) {
		broker := transport.NewBroker()
		flow, _ := provisioning.NewFlow(testConfig(broker, identity.NewMemoryStore(), fullInput()))

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() {
			_, err := flow.Run(ctx)
			done <- err
		}()

		waitFor(t, func() bool {
			return broker.SubscriberCount(wire.ClaimedTopic("00:AA:BB:01:02:03")) > 0
		}, "claim subscription")
		cancel()

		err := <-done
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run() error = %v, want context.Canceled", err)
		}
		if broker.ConnectionCount() != 0 {
			t.Errorf("ConnectionCount() = %d after cancel, want 0", broker.ConnectionCount())
		}
	})
}

func TestFlowActivate(t *testing.T) {
	t.Run("MissingFieldsAbort", func(t *testing.T) {
		broker := transport.NewBroker()
		store := identity.NewMemoryStore()

		input := fullInput()
		input.Password = ""
		flow, _ := provisioning.NewFlow(testConfig(broker, store, input))
		claimWhenWaiting(t, broker, "00:AA:BB:01:02:03")

		_, err := flow.Run(context.Background())
		if !errors.Is(err, provisioning.ErrFieldsRequired) {
			t.Errorf("Run() error = %v, want ErrFieldsRequired", err)
		}
		if got, _ := store.Load(); got != nil {
			t.Errorf("identity persisted despite missing fields: %+v", got)
		}
	})

	t.Run("AuthFailureLeavesStoreUntouched", func(t *testing.T) {
		broker := transport.NewBroker()
		broker.RegisterUser("u1", "correct")
		store := identity.NewMemoryStore()

		flow, _ := provisioning.NewFlow(testConfig(broker, store, fullInput())) // password p1, wrong
		claimWhenWaiting(t, broker, "00:AA:BB:01:02:03")

		_, err := flow.Run(context.Background())
		if !errors.Is(err, transport.ErrNotAuthorized) {
			t.Errorf("Run() error = %v, want ErrNotAuthorized", err)
		}
		if flow.State() != provisioning.StateAborted {
			t.Errorf("State() = %v, want ABORTED", flow.State())
		}
		if got, _ := store.Load(); got != nil {
			t.Errorf("identity persisted on auth failure: %+v", got)
		}
	})

	t.Run("SuccessPersistsIdentity", func(t *testing.T) {
		broker := transport.NewBroker()
		broker.RegisterUser("u1", "p1")
		store := identity.NewMemoryStore()
		recorder := log.NewMemoryLogger()

		cfg := testConfig(broker, store, fullInput())
		cfg.ProtocolLogger = recorder
		flow, _ := provisioning.NewFlow(cfg)
		claimWhenWaiting(t, broker, "00:AA:BB:01:02:03")

		id, err := flow.Run(context.Background())
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}

		want := &identity.DeviceIdentity{
			VenueID:    "MALL1",
			DeviceID:   "C1",
			MACAddress: "00:AA:BB:01:02:03",
			Credentials: identity.Credentials{
				Username: "u1",
				Password: "p1",
			},
		}
		if *id != *want {
			t.Errorf("Run() identity = %+v, want %+v", id, want)
		}

		stored, err := store.Load()
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if stored == nil || *stored != *want {
			t.Errorf("stored identity = %+v, want %+v", stored, want)
		}

		if broker.ConnectionCount() != 0 {
			t.Errorf("ConnectionCount() = %d after provisioning, want 0", broker.ConnectionCount())
		}

		// State transitions were recorded in order
		var transitions []string
		for _, e := range recorder.OfKind(log.KindStateChange) {
			transitions = append(transitions, e.NewState)
		}
		want2 := []string{"AWAIT_CLAIM", "ACTIVATE", "PROVISIONED"}
		if len(transitions) != len(want2) {
			t.Fatalf("transitions = %v, want %v", transitions, want2)
		}
		for i := range want2 {
			if transitions[i] != want2[i] {
				t.Errorf("transition %d = %s, want %s", i, transitions[i], want2[i])
			}
		}
	})
}

func TestNewFlowValidation(t *testing.T) {
	_, err := provisioning.NewFlow(provisioning.Config{})
	if !errors.Is(err, provisioning.ErrInvalidConfig) {
		t.Errorf("NewFlow(zero config) error = %v, want ErrInvalidConfig", err)
	}
}
