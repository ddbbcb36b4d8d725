// Package config loads and validates the server settings file.
package config

import (
	"fmt"

	"github.com/BurntSushi/toml"
)

// Settings is the TOML-backed server configuration.
type Settings struct {
	// ListenPort is the TCP port panels connect to.
	ListenPort int `toml:"listen_port"`
	// Type1AccessCode seeds Type1 session key derivation.
	Type1AccessCode string `toml:"type1_access_code"`
	// Type2AccessCode seeds Type2 session key derivation.
	Type2AccessCode string `toml:"type2_access_code"`
	// QuietGateMillis is the inbound silence window before the first
	// outbound command.
	QuietGateMillis int `toml:"quiet_gate_millis"`
	// HeartbeatSeconds is the ConnectionPoll cadence.
	HeartbeatSeconds int `toml:"heartbeat_seconds"`
	// CommandResponseTimeoutSeconds bounds command transaction waits.
	CommandResponseTimeoutSeconds int `toml:"command_response_timeout_seconds"`
	// LogLevel is a logrus level name (debug, info, warn, error).
	LogLevel string `toml:"log_level"`
}

// Default returns the settings applied when the file leaves a knob unset.
func Default() Settings {
	return Settings{
		ListenPort:                    3062,
		QuietGateMillis:               2000,
		HeartbeatSeconds:              100,
		CommandResponseTimeoutSeconds: 60,
		LogLevel:                      "info",
	}
}

// Load reads a TOML settings file, fills defaults, and validates.
func Load(path string) (Settings, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Settings{}, fmt.Errorf("loading settings from %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Settings{}, err
	}
	return cfg, nil
}

// Validate rejects unusable settings.
func (s Settings) Validate() error {
	if s.ListenPort <= 0 || s.ListenPort > 65535 {
		return fmt.Errorf("listen_port %d outside 1-65535", s.ListenPort)
	}
	if s.Type1AccessCode == "" && s.Type2AccessCode == "" {
		return fmt.Errorf("at least one access code must be configured")
	}
	if s.QuietGateMillis < 0 || s.HeartbeatSeconds < 0 || s.CommandResponseTimeoutSeconds < 0 {
		return fmt.Errorf("timeouts must not be negative")
	}
	return nil
}
