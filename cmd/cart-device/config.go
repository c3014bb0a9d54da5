package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds the resolved cart-device configuration. Flags win over
// config file values; file values win over defaults.
type Config struct {
	BrokerURL   string `yaml:"broker"`
	ConfigFile  string `yaml:"-"`
	StateFile   string `yaml:"state"`
	RedisAddr   string `yaml:"redis"`
	RedisKey    string `yaml:"redisKey"`
	Venue       string `yaml:"venue"`
	DeviceID    string `yaml:"deviceId"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	Seed        int64  `yaml:"seed"`
	ProtocolLog string `yaml:"protocolLog"`
	LogLevel    string `yaml:"logLevel"`
}

// DefaultCLIConfig returns the built-in defaults.
func DefaultCLIConfig() *Config {
	return &Config{
		BrokerURL: "tcp://localhost:1883",
		StateFile: "cart-identity.json",
		RedisKey:  "smartcart:identity",
		LogLevel:  "info",
	}
}

// MergeFile overlays values from a YAML config file onto c, keeping any
// value already set by a flag.
func (c *Config) MergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var file Config
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	defaults := DefaultCLIConfig()
	mergeString(&c.BrokerURL, file.BrokerURL, defaults.BrokerURL)
	mergeString(&c.StateFile, file.StateFile, defaults.StateFile)
	mergeString(&c.RedisAddr, file.RedisAddr, "")
	mergeString(&c.RedisKey, file.RedisKey, defaults.RedisKey)
	mergeString(&c.Venue, file.Venue, "")
	mergeString(&c.DeviceID, file.DeviceID, "")
	mergeString(&c.Username, file.Username, "")
	mergeString(&c.Password, file.Password, "")
	mergeString(&c.ProtocolLog, file.ProtocolLog, "")
	mergeString(&c.LogLevel, file.LogLevel, defaults.LogLevel)
	if c.Seed == 0 {
		c.Seed = file.Seed
	}
	return nil
}

// mergeString takes the file value when the current value is still the
// default, i.e. no flag overrode it.
func mergeString(current *string, fileValue, defaultValue string) {
	if fileValue != "" && *current == defaultValue {
		*current = fileValue
	}
}
