// Copyright 2026 The ChatKit Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for ChatKit commands.
//
// Configuration is loaded from a single file specified by:
//   - CHATKIT_CONFIG environment variable, or
//   - --config flag passed to the command
//
// There are no fallbacks or automatic discovery. This ensures deterministic,
// auditable configuration with no hidden overrides.
//
// The config file may contain environment-specific sections (development,
// staging, production) that override base values when the environment matches.
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
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

// Config is the master configuration for ChatKit.
type Config struct {
	// Environment identifies the deployment type (development, staging, production).
	Environment Environment `yaml:"environment"`

	// Server configures the backend endpoints.
	Server ServerConfig `yaml:"server"`

	// Auth configures how the bearer credential is obtained.
	Auth AuthConfig `yaml:"auth"`

	// Engine configures synchronization timing.
	Engine EngineConfig `yaml:"engine"`

	// Notifications configures system notification delivery.
	Notifications NotificationsConfig `yaml:"notifications"`

	// Logging configures structured log output.
	Logging LoggingConfig `yaml:"logging"`

	// EnvironmentOverrides contains per-environment overrides.
	// These are applied after the base config is loaded.
	Development *ConfigOverrides `yaml:"development,omitempty"`
	Staging     *ConfigOverrides `yaml:"staging,omitempty"`
	Production  *ConfigOverrides `yaml:"production,omitempty"`
}

// ConfigOverrides contains fields that can be overridden per environment.
type ConfigOverrides struct {
	Server        *ServerConfig        `yaml:"server,omitempty"`
	Auth          *AuthConfig          `yaml:"auth,omitempty"`
	Engine        *EngineConfig        `yaml:"engine,omitempty"`
	Notifications *NotificationsConfig `yaml:"notifications,omitempty"`
	Logging       *LoggingConfig       `yaml:"logging,omitempty"`
}

// ServerConfig configures the backend endpoints.
type ServerConfig struct {
	// APIBaseURL is the base URL of the REST API.
	// Default: http://localhost:8080
	APIBaseURL string `yaml:"api_base_url"`

	// ChannelURL is the websocket endpoint of the live channel.
	// Default: ws://localhost:8080/channel
	ChannelURL string `yaml:"channel_url"`
}

// AuthConfig configures how the bearer credential is obtained.
type AuthConfig struct {
	// TokenFile is a file whose trimmed contents are used as the
	// bearer token. Preferred over Token so credentials stay out of
	// the config file itself.
	TokenFile string `yaml:"token_file"`

	// Token is an inline bearer token. Development convenience only.
	Token string `yaml:"token"`
}

// EngineConfig configures synchronization timing.
type EngineConfig struct {
	// TypingExpiry is how long a peer's typing indicator survives
	// without a follow-up event. Default: 3s
	TypingExpiry string `yaml:"typing_expiry"`

	// TypingIdle is how long after the last local keystroke the
	// outbound typing indicator is withdrawn. Default: 1s
	TypingIdle string `yaml:"typing_idle"`
}

// Durations parses the engine timing fields.
func (e EngineConfig) Durations() (expiry, idle time.Duration, err error) {
	expiry, err = time.ParseDuration(e.TypingExpiry)
	if err != nil {
		return 0, 0, fmt.Errorf("engine.typing_expiry: %w", err)
	}
	idle, err = time.ParseDuration(e.TypingIdle)
	if err != nil {
		return 0, 0, fmt.Errorf("engine.typing_idle: %w", err)
	}
	return expiry, idle, nil
}

// NotificationsConfig configures system notification delivery.
type NotificationsConfig struct {
	// System enables operating-system notifications for incoming
	// notifications. Default: true
	System bool `yaml:"system"`
}

// LoggingConfig configures structured log output.
type LoggingConfig struct {
	// Level is the minimum level emitted: debug, info, warn, error.
	// Default: info
	Level string `yaml:"level"`

	// Format selects the output encoding: text or json.
	// Default: text
	Format string `yaml:"format"`
}

// Default returns the default configuration.
// These defaults are used as a base before loading the config file.
// They exist primarily to ensure all fields have sensible zero-values,
// not as a fallback - the config file is required.
func Default() *Config {
	return &Config{
		Environment: Development,
		Server: ServerConfig{
			APIBaseURL: "http://localhost:8080",
			ChannelURL: "ws://localhost:8080/channel",
		},
		Engine: EngineConfig{
			TypingExpiry: "3s",
			TypingIdle:   "1s",
		},
		Notifications: NotificationsConfig{
			System: true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load loads configuration from the CHATKIT_CONFIG environment variable.
//
// This is the only way to load configuration without an explicit path.
// There are no fallbacks or defaults - if CHATKIT_CONFIG is not set, this fails.
// This ensures deterministic, auditable configuration with no hidden overrides.
func Load() (*Config, error) {
	configPath := os.Getenv("CHATKIT_CONFIG")
	if configPath == "" {
		return nil, fmt.Errorf("CHATKIT_CONFIG environment variable not set; " +
			"set it to the path of your chatkit.yaml config file, or use --config flag")
	}

	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path.
//
// The config file is the single source of truth. Environment variables do not
// override config values - this ensures deterministic, auditable configuration.
// The only expansion performed is ${HOME} and similar path variables for portability.
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
		// Production defaults: never carry an inline token.
		if overrides == nil && c.Auth.Token != "" {
			overrides = &ConfigOverrides{Auth: &AuthConfig{Token: ""}}
		}
	}

	if overrides == nil {
		return
	}

	if overrides.Server != nil {
		if overrides.Server.APIBaseURL != "" {
			c.Server.APIBaseURL = overrides.Server.APIBaseURL
		}
		if overrides.Server.ChannelURL != "" {
			c.Server.ChannelURL = overrides.Server.ChannelURL
		}
	}

	if overrides.Auth != nil {
		if overrides.Auth.TokenFile != "" {
			c.Auth.TokenFile = overrides.Auth.TokenFile
		}
		c.Auth.Token = overrides.Auth.Token
	}

	if overrides.Engine != nil {
		if overrides.Engine.TypingExpiry != "" {
			c.Engine.TypingExpiry = overrides.Engine.TypingExpiry
		}
		if overrides.Engine.TypingIdle != "" {
			c.Engine.TypingIdle = overrides.Engine.TypingIdle
		}
	}

	if overrides.Notifications != nil {
		// System is a bool, so it is always applied from overrides.
		c.Notifications.System = overrides.Notifications.System
	}

	if overrides.Logging != nil {
		if overrides.Logging.Level != "" {
			c.Logging.Level = overrides.Logging.Level
		}
		if overrides.Logging.Format != "" {
			c.Logging.Format = overrides.Logging.Format
		}
	}
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in paths.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"HOME": os.Getenv("HOME"),
	}

	c.Auth.TokenFile = expandVars(c.Auth.TokenFile, vars)
	c.Server.APIBaseURL = expandVars(c.Server.APIBaseURL, vars)
	c.Server.ChannelURL = expandVars(c.Server.ChannelURL, vars)
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

	if c.Server.APIBaseURL == "" {
		errs = append(errs, fmt.Errorf("server.api_base_url is required"))
	}
	if c.Server.ChannelURL == "" {
		errs = append(errs, fmt.Errorf("server.channel_url is required"))
	}

	if expiry, idle, err := c.Engine.Durations(); err != nil {
		errs = append(errs, err)
	} else if expiry <= 0 || idle <= 0 {
		errs = append(errs, fmt.Errorf("engine typing durations must be positive"))
	}

	levels := []string{"debug", "info", "warn", "error"}
	if !contains(levels, c.Logging.Level) {
		errs = append(errs, fmt.Errorf("logging.level must be one of: %v", levels))
	}
	formats := []string{"text", "json"}
	if !contains(formats, c.Logging.Format) {
		errs = append(errs, fmt.Errorf("logging.format must be one of: %v", formats))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// BearerToken resolves the configured credential: the token file wins
// over an inline token. An empty result is valid - the backend may not
// require authentication in development.
func (c *Config) BearerToken() (string, error) {
	if c.Auth.TokenFile != "" {
		data, err := os.ReadFile(c.Auth.TokenFile)
		if err != nil {
			return "", fmt.Errorf("reading auth.token_file: %w", err)
		}
		return trimToken(string(data)), nil
	}
	return c.Auth.Token, nil
}

func trimToken(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r' || s[len(s)-1] == ' ') {
		s = s[:len(s)-1]
	}
	return s
}

func contains(slice []string, s string) bool {
	for _, v := range slice {
		if v == s {
			return true
		}
	}
	return false
}
