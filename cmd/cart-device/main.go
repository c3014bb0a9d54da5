// Command cart-device is a reference smart shopping cart implementation.
//
// This command runs one full cart lifecycle against an MQTT broker:
//   - CLI argument parsing and configuration file support
//   - Cold-start provisioning with operator prompts
//   - Warm-start from a persisted identity (file or Redis)
//   - Simulated shopping session with payment request
//   - Structured and protocol event logging
//
// Usage:
//
//	cart-device [flags]
//
// Flags:
//
//	-broker string       MQTT broker URL (default "tcp://localhost:1883")
//	-config string       Configuration file path (YAML)
//	-state string        Identity state file path (default "cart-identity.json")
//	-redis string        Redis address; store identity in Redis instead of a file
//	-redis-key string    Redis key for the identity (default "smartcart:identity")
//	-venue string        Venue id; skips the venue prompt
//	-device-id string    Cart id; with -username/-password skips activation prompts
//	-username string     Issued MQTT username
//	-password string     Issued MQTT password
//	-seed int            Random seed for the shopping simulation (0 = clock)
//	-protocol-log string Protocol event log file path (CBOR)
//	-log-level string    Log level: debug, info, warn, error (default "info")
//
// Examples:
//
//	# First boot: interactive provisioning, identity saved to file
//	cart-device -broker tcp://broker.local:1883
//
//	# Scripted provisioning against a shared Redis state store
//	cart-device -redis localhost:6379 -venue MALL1 -device-id C7 \
//	    -username cart7 -password s3cret
//
//	# Reproducible session for debugging
//	cart-device -seed 42 -log-level debug -protocol-log cart.cborlog
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/smartcart-labs/smartcart-go/pkg/device"
	"github.com/smartcart-labs/smartcart-go/pkg/identity"
	"github.com/smartcart-labs/smartcart-go/pkg/log"
	"github.com/smartcart-labs/smartcart-go/pkg/provisioning"
	"github.com/smartcart-labs/smartcart-go/pkg/session"
	"github.com/smartcart-labs/smartcart-go/pkg/transport"
)

func main() {
	cfg := parseFlags()

	logger, err := setupLogging(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "cart-device: %v\n", err)
		os.Exit(1)
	}

	if err := run(cfg, logger); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Info("interrupted, shutting down")
			return
		}
		logger.Error("cart run failed", "error", err)
		os.Exit(1)
	}
}

func parseFlags() *Config {
	cfg := DefaultCLIConfig()

	flag.StringVar(&cfg.BrokerURL, "broker", cfg.BrokerURL, "MQTT broker URL")
	flag.StringVar(&cfg.ConfigFile, "config", "", "Configuration file path (YAML)")
	flag.StringVar(&cfg.StateFile, "state", cfg.StateFile, "Identity state file path")
	flag.StringVar(&cfg.RedisAddr, "redis", "", "Redis address; store identity in Redis instead of a file")
	flag.StringVar(&cfg.RedisKey, "redis-key", cfg.RedisKey, "Redis key for the identity")
	flag.StringVar(&cfg.Venue, "venue", "", "Venue id; skips the venue prompt")
	flag.StringVar(&cfg.DeviceID, "device-id", "", "Cart id; with -username/-password skips activation prompts")
	flag.StringVar(&cfg.Username, "username", "", "Issued MQTT username")
	flag.StringVar(&cfg.Password, "password", "", "Issued MQTT password")
	flag.Int64Var(&cfg.Seed, "seed", 0, "Random seed for the shopping simulation (0 = clock)")
	flag.StringVar(&cfg.ProtocolLog, "protocol-log", "", "Protocol event log file path (CBOR)")
	flag.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level: debug, info, warn, error")
	flag.Parse()

	return cfg
}

func run(cfg *Config, logger *slog.Logger) error {
	if cfg.ConfigFile != "" {
		if err := cfg.MergeFile(cfg.ConfigFile); err != nil {
			return fmt.Errorf("load config file: %w", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	input, closeInput, err := operatorInput(cfg)
	if err != nil {
		return err
	}
	defer closeInput()

	runnerCfg := device.DefaultConfig()
	runnerCfg.Dialer = &transport.MQTTDialer{
		BrokerURL: cfg.BrokerURL,
		Logger:    logger,
	}
	runnerCfg.Store = store
	runnerCfg.Input = input
	runnerCfg.Logger = logger
	if cfg.Seed != 0 {
		runnerCfg.Session.Rand = rand.New(rand.NewSource(cfg.Seed))
	}

	if cfg.ProtocolLog != "" {
		protoLog, err := log.NewFileLogger(cfg.ProtocolLog)
		if err != nil {
			return fmt.Errorf("open protocol log: %w", err)
		}
		defer protoLog.Close()
		runnerCfg.ProtocolLogger = log.NewMultiLogger(protoLog, log.NewSlogAdapter(logger))
	} else {
		runnerCfg.ProtocolLogger = log.NewSlogAdapter(logger)
	}

	runner, err := device.NewRunner(runnerCfg)
	if err != nil {
		return err
	}
	runner.OnSessionEvent(func(e session.Event) { printSessionEvent(logger, e) })

	logger.Info("cart starting", "broker", cfg.BrokerURL)
	receipt, err := runner.Run(ctx)
	if err != nil {
		if errors.Is(err, provisioning.ErrClaimTimeout) {
			logger.Error("no claim arrived; is the venue admin online?")
		}
		return err
	}

	logger.Info("cart run complete",
		"outcome", receipt.Outcome.String(),
		"items", len(receipt.Items),
		"totalMinorUnits", receipt.TotalMinorUnits,
	)
	if receipt.PaymentURL != "" {
		fmt.Printf("Payment link: %s\n", receipt.PaymentURL)
	}
	return nil
}

// openStore picks the identity store: Redis when an address is given,
// a JSON state file otherwise.
func openStore(cfg *Config) (identity.Store, func(), error) {
	if cfg.RedisAddr == "" {
		return identity.NewFileStore(cfg.StateFile), func() {}, nil
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	store := identity.NewRedisStore(client, cfg.RedisKey)
	return store, func() { _ = client.Close() }, nil
}

// operatorInput returns fixed answers when the flags cover them, an
// interactive console prompt otherwise.
func operatorInput(cfg *Config) (provisioning.OperatorInput, func(), error) {
	if cfg.Venue != "" && cfg.DeviceID != "" && cfg.Username != "" && cfg.Password != "" {
		return provisioning.StaticInput{
			Venue:    cfg.Venue,
			DeviceID: cfg.DeviceID,
			Username: cfg.Username,
			Password: cfg.Password,
		}, func() {}, nil
	}
	prompt, err := newConsoleInput(cfg)
	if err != nil {
		return nil, nil, err
	}
	return prompt, prompt.Close, nil
}

func setupLogging(level string) (*slog.Logger, error) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		return nil, fmt.Errorf("unknown log level: %s", level)
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})), nil
}

func printSessionEvent(logger *slog.Logger, e session.Event) {
	switch e.Type {
	case session.EventConnected:
		logger.Info("session connected")
	case session.EventItemAdded:
		logger.Info("item added",
			"productID", e.Item.ProductID,
			"name", e.Item.ProductName,
			"price", e.Item.Price,
		)
	case session.EventPaymentRequested:
		logger.Info("payment requested", "amountMinorUnits", e.Amount)
	case session.EventCommandReceived:
		logger.Info("server command", "command", e.Command, "outcome", e.Outcome.String())
	case session.EventShutdown:
		logger.Info("session shutting down", "outcome", e.Outcome.String())
	}
}
