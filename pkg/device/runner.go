package device

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/smartcart-labs/smartcart-go/pkg/catalog"
	"github.com/smartcart-labs/smartcart-go/pkg/identity"
	"github.com/smartcart-labs/smartcart-go/pkg/log"
	"github.com/smartcart-labs/smartcart-go/pkg/provisioning"
	"github.com/smartcart-labs/smartcart-go/pkg/session"
	"github.com/smartcart-labs/smartcart-go/pkg/transport"
)

// ErrInvalidConfig is returned when the runner configuration is incomplete.
var ErrInvalidConfig = errors.New("invalid configuration")

// StartMode reports how a device run began.
type StartMode uint8

const (
	// ModeCold - no persisted identity, provisioning ran first.
	ModeCold StartMode = iota

	// ModeWarm - identity loaded from the store, provisioning skipped.
	ModeWarm
)

// String returns the start mode name.
func (m StartMode) String() string {
	switch m {
	case ModeCold:
		return "COLD"
	case ModeWarm:
		return "WARM"
	default:
		return "UNKNOWN"
	}
}

// Config configures a device Runner.
type Config struct {
	// Dialer opens all broker sessions for the device.
	Dialer transport.Dialer

	// Store persists the cart identity across runs.
	Store identity.Store

	// Input supplies operator answers during a cold start.
	Input provisioning.OperatorInput

	// Provisioning is the flow configuration template. Dialer, Store,
	// Input and the loggers are filled in by the runner.
	Provisioning provisioning.Config

	// Session is the session configuration template. Dialer, Identity
	// and the loggers are filled in by the runner. A nil Catalog falls
	// back to the built-in one.
	Session session.Config

	// Logger is the optional logger for debug output.
	// If nil, logging is disabled.
	Logger *slog.Logger

	// ProtocolLogger captures lifecycle events (optional).
	ProtocolLogger log.Logger
}

// DefaultConfig returns a Config with the standard flow and session timings.
func DefaultConfig() Config {
	return Config{
		Provisioning: provisioning.DefaultConfig(),
		Session:      session.DefaultConfig(),
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
	return nil
}

// Runner executes full device lifecycles. A Runner may be reused; each
// Run call is an independent power cycle against the shared store.
type Runner struct {
	config          Config
	sessionHandlers []session.EventHandler
}

// NewRunner creates a device runner.
func NewRunner(config Config) (*Runner, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if config.Session.Catalog == nil {
		config.Session.Catalog = catalog.Default()
	}
	return &Runner{config: config}, nil
}

// OnSessionEvent registers a handler for session events of subsequent
// runs. Must be called before Run.
func (r *Runner) OnSessionEvent(handler session.EventHandler) {
	r.sessionHandlers = append(r.sessionHandlers, handler)
}

// Run executes one device lifecycle: provision if the store is empty,
// then run a shopping session with the resulting identity.
func (r *Runner) Run(ctx context.Context) (*session.Receipt, error) {
	id, err := r.config.Store.Load()
	if err != nil {
		return nil, fmt.Errorf("load identity: %w", err)
	}

	mode := ModeWarm
	if id == nil {
		mode = ModeCold
		if id, err = r.provision(ctx); err != nil {
			return nil, err
		}
	}
	r.debugLog("device starting", "mode", mode.String(), "deviceID", id.DeviceID)

	return r.runSession(ctx, id)
}

func (r *Runner) provision(ctx context.Context) (*identity.DeviceIdentity, error) {
	cfg := r.config.Provisioning
	cfg.Dialer = r.config.Dialer
	cfg.Store = r.config.Store
	cfg.Input = r.config.Input
	if cfg.Logger == nil {
		cfg.Logger = r.config.Logger
	}
	if cfg.ProtocolLogger == nil {
		cfg.ProtocolLogger = r.config.ProtocolLogger
	}

	flow, err := provisioning.NewFlow(cfg)
	if err != nil {
		return nil, err
	}
	id, err := flow.Run(ctx)
	if err != nil {
		return nil, fmt.Errorf("provisioning: %w", err)
	}
	return id, nil
}

func (r *Runner) runSession(ctx context.Context, id *identity.DeviceIdentity) (*session.Receipt, error) {
	cfg := r.config.Session
	cfg.Dialer = r.config.Dialer
	cfg.Identity = id
	if cfg.Logger == nil {
		cfg.Logger = r.config.Logger
	}
	if cfg.ProtocolLogger == nil {
		cfg.ProtocolLogger = r.config.ProtocolLogger
	}

	ctrl, err := session.NewController(cfg)
	if err != nil {
		return nil, err
	}
	for _, handler := range r.sessionHandlers {
		ctrl.OnEvent(handler)
	}
	return ctrl.Run(ctx)
}

func (r *Runner) debugLog(msg string, args ...any) {
	if r.config.Logger != nil {
		r.config.Logger.Debug(msg, args...)
	}
}
