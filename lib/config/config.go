// Copyright 2026 The SMSWire Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/smswire/smswire/lib/ref"
)

// Environment represents the deployment environment.
type Environment string

const (
	// Development is for local development machines.
	Development Environment = "development"
	// Staging is for pre-production testing.
	Staging Environment = "staging"
	// Production is for production deployments.
	Production Environment = "production"
)

// Config is the master configuration for the bridge.
type Config struct {
	// Environment identifies the deployment type (development, staging, production).
	Environment Environment `yaml:"environment"`

	// Homeserver configures the Matrix connection.
	Homeserver HomeserverConfig `yaml:"homeserver"`

	// Bot configures the bridge bot account.
	Bot BotConfig `yaml:"bot"`

	// Relay configures the SMS relay boundary.
	Relay RelayConfig `yaml:"relay"`

	// State is the directory for bridge runtime state (outbox database,
	// saved sessions).
	State string `yaml:"state"`

	// TransportTimeout bounds individual Matrix API calls made during
	// room classification (member fetches, joins, room creation). Zero
	// uses the 15s default.
	TransportTimeout time.Duration `yaml:"transport_timeout"`

	// EnvironmentOverrides contains per-environment overrides.
	// These are applied after the base config is loaded.
	Development *ConfigOverrides `yaml:"development,omitempty"`
	Staging     *ConfigOverrides `yaml:"staging,omitempty"`
	Production  *ConfigOverrides `yaml:"production,omitempty"`
}

// ConfigOverrides contains fields that can be overridden per environment.
type ConfigOverrides struct {
	Homeserver *HomeserverConfig `yaml:"homeserver,omitempty"`
	Relay      *RelayConfig      `yaml:"relay,omitempty"`
	State      string            `yaml:"state,omitempty"`
}

// HomeserverConfig configures the Matrix homeserver connection.
type HomeserverConfig struct {
	// URL is the base URL of the homeserver (e.g., "http://localhost:8008").
	URL string `yaml:"url"`

	// ServerName is the Matrix server name that appears in user IDs
	// (e.g., "example.org"). Virtual SMS identities are scoped to this
	// server.
	ServerName string `yaml:"server_name"`
}

// BotConfig configures the bridge bot account.
type BotConfig struct {
	// Localpart is the bot account's localpart (e.g., "smswire" for
	// "@smswire:example.org").
	Localpart string `yaml:"localpart"`

	// DisplayName is set on the bot's profile at startup.
	DisplayName string `yaml:"display_name"`

	// TokenFile is the path to a file holding the bot's access token.
	// Read via lib/secret so the token never appears in argv or the
	// environment.
	TokenFile string `yaml:"token_file"`
}

// RelayConfig configures the SMS relay boundary.
type RelayConfig struct {
	// OutboxPath is the SQLite database file for the durable outbox.
	// Default: ${SMSWIRE_STATE}/outbox.db
	OutboxPath string `yaml:"outbox_path"`

	// RetryInterval is the base delay between delivery attempts for a
	// failed message. Backoff doubles per attempt from this base.
	RetryInterval time.Duration `yaml:"retry_interval"`

	// MaxAttempts is the number of delivery attempts before a message
	// is marked failed. Zero uses the default of 8.
	MaxAttempts int `yaml:"max_attempts"`
}

// Default returns the default configuration. These defaults are used as
// a base before loading the config file. They exist primarily to ensure
// all fields have sensible zero-values, not as a fallback — the config
// file is required.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	defaultState := filepath.Join(homeDir, ".local", "share", "smswire")

	return &Config{
		Environment: Development,
		Homeserver: HomeserverConfig{
			URL:        "http://localhost:8008",
			ServerName: "localhost",
		},
		Bot: BotConfig{
			Localpart:   "smswire",
			DisplayName: "SMSWire Bridge",
		},
		Relay: RelayConfig{
			OutboxPath:    filepath.Join(defaultState, "outbox.db"),
			RetryInterval: 30 * time.Second,
			MaxAttempts:   8,
		},
		State:            defaultState,
		TransportTimeout: 15 * time.Second,
	}
}

// Load loads configuration from the SMSWIRE_CONFIG environment variable.
//
// This is the only way to load configuration without an explicit path.
// There are no fallbacks or defaults — if SMSWIRE_CONFIG is not set,
// this fails. This ensures deterministic, auditable configuration.
func Load() (*Config, error) {
	configPath := os.Getenv("SMSWIRE_CONFIG")
	if configPath == "" {
		return nil, fmt.Errorf("SMSWIRE_CONFIG environment variable not set; " +
			"set it to the path of your smswire.yaml config file, or use --config flag")
	}

	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path.
//
// The config file is the single source of truth. Environment variables
// do not override config values. The only expansion performed is ${HOME}
// and similar path variables for portability.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	cfg.applyEnvironmentOverrides()
	cfg.expandVariables()

	return cfg, nil
}

// applyEnvironmentOverrides applies the environment-specific overrides.
func (c *Config) applyEnvironmentOverrides() {
	var overrides *ConfigOverrides

	switch c.Environment {
	case Development:
		overrides = c.Development
	case Staging:
		overrides = c.Staging
	case Production:
		overrides = c.Production
	}

	if overrides == nil {
		return
	}

	if overrides.Homeserver != nil {
		if overrides.Homeserver.URL != "" {
			c.Homeserver.URL = overrides.Homeserver.URL
		}
		if overrides.Homeserver.ServerName != "" {
			c.Homeserver.ServerName = overrides.Homeserver.ServerName
		}
	}

	if overrides.Relay != nil {
		if overrides.Relay.OutboxPath != "" {
			c.Relay.OutboxPath = overrides.Relay.OutboxPath
		}
		if overrides.Relay.RetryInterval != 0 {
			c.Relay.RetryInterval = overrides.Relay.RetryInterval
		}
		if overrides.Relay.MaxAttempts != 0 {
			c.Relay.MaxAttempts = overrides.Relay.MaxAttempts
		}
	}

	if overrides.State != "" {
		c.State = overrides.State
	}
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in paths.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"SMSWIRE_STATE": c.State,
		"HOME":          os.Getenv("HOME"),
	}

	c.State = expandVars(c.State, vars)
	vars["SMSWIRE_STATE"] = c.State // Update for dependent paths.

	c.Relay.OutboxPath = expandVars(c.Relay.OutboxPath, vars)
	c.Bot.TokenFile = expandVars(c.Bot.TokenFile, vars)
}

// expandVars expands ${VAR} and ${VAR:-default} patterns.
var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		// Check provided vars first, then environment.
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Environment != Development && c.Environment != Staging && c.Environment != Production {
		errs = append(errs, fmt.Errorf("invalid environment: %s", c.Environment))
	}

	if c.Homeserver.URL == "" {
		errs = append(errs, fmt.Errorf("homeserver.url is required"))
	}
	if _, err := ref.ParseServerName(c.Homeserver.ServerName); err != nil {
		errs = append(errs, fmt.Errorf("homeserver.server_name: %w", err))
	}
	if c.Bot.Localpart == "" {
		errs = append(errs, fmt.Errorf("bot.localpart is required"))
	}
	if c.State == "" {
		errs = append(errs, fmt.Errorf("state is required"))
	}
	if c.Relay.RetryInterval < 0 {
		errs = append(errs, fmt.Errorf("relay.retry_interval must not be negative"))
	}
	if c.Relay.MaxAttempts < 0 {
		errs = append(errs, fmt.Errorf("relay.max_attempts must not be negative"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// ServerName returns the parsed homeserver server name. Call Validate
// first; this panics on an invalid name.
func (c *Config) ServerName() ref.ServerName {
	return ref.MustParseServerName(c.Homeserver.ServerName)
}

// BotUserID returns the bot's fully-qualified Matrix user ID.
func (c *Config) BotUserID() ref.UserID {
	return ref.MatrixUserID(c.Bot.Localpart, c.ServerName())
}

// EnsureState creates the state directory if it does not exist.
func (c *Config) EnsureState() error {
	if err := os.MkdirAll(c.State, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", c.State, err)
	}
	return nil
}
