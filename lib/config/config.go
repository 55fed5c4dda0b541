// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvVar names the environment variable holding the config file path.
const EnvVar = "POKER_CONFIG"

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

// Tracker authentication modes.
const (
	TrackerAuthBasic = "basic"
	TrackerAuthOAuth = "oauth"
)

// Config is the master configuration for the poker binaries.
type Config struct {
	// Environment selects which override section applies.
	Environment Environment `yaml:"environment"`

	Paths   PathsConfig   `yaml:"paths"`
	Store   StoreConfig   `yaml:"store"`
	Session SessionConfig `yaml:"session"`
	Tracker TrackerConfig `yaml:"tracker"`

	Development *ConfigOverrides `yaml:"development,omitempty"`
	Staging     *ConfigOverrides `yaml:"staging,omitempty"`
	Production  *ConfigOverrides `yaml:"production,omitempty"`
}

// ConfigOverrides contains environment-specific overrides. Only
// non-empty fields replace base values.
type ConfigOverrides struct {
	Paths   *PathsConfig   `yaml:"paths,omitempty"`
	Store   *StoreConfig   `yaml:"store,omitempty"`
	Session *SessionConfig `yaml:"session,omitempty"`
	Tracker *TrackerConfig `yaml:"tracker,omitempty"`
}

// PathsConfig locates the files the binaries share.
type PathsConfig struct {
	// Root is the state directory. Other paths default to entries
	// beneath it via ${POKER_ROOT}.
	Root string `yaml:"root"`

	// Socket is the store service's Unix socket.
	Socket string `yaml:"socket"`

	// Database is the SQLite file the store service owns.
	Database string `yaml:"database"`

	// Identity is the file mapping rooms to remembered player ids.
	Identity string `yaml:"identity"`
}

// StoreConfig configures the store service.
type StoreConfig struct {
	// PoolSize is the SQLite connection count. Zero picks a default
	// from the CPU count.
	PoolSize int `yaml:"pool_size"`

	// LeaveGrace is how long a departed player's row survives before
	// it is deleted.
	// Default: 30s
	LeaveGrace string `yaml:"leave_grace"`

	// Heartbeat is the interval between keepalive frames on an idle
	// subscription stream.
	// Default: 30s
	Heartbeat string `yaml:"heartbeat"`
}

// SessionConfig configures room sessions started by the CLI.
type SessionConfig struct {
	// PlayerName is the display name used when joining without --name.
	PlayerName string `yaml:"player_name"`

	// Deck is the card deck for rooms created by a join. Empty selects
	// the built-in Fibonacci deck.
	Deck []string `yaml:"deck"`

	// AutoAdvanceDelay is the pause between saving a score and moving
	// to the next ticket.
	// Default: 300ms
	AutoAdvanceDelay string `yaml:"auto_advance_delay"`

	// LeaderReconcileDelay is how long a duplicate leader waits before
	// stepping down.
	// Default: 1s
	LeaderReconcileDelay string `yaml:"leader_reconcile_delay"`
}

// TrackerConfig configures the issue tracker integration. The
// integration is disabled when Auth is empty.
type TrackerConfig struct {
	// Auth is "basic" (email plus API token against BaseURL) or
	// "oauth" (bearer token against the cloud gateway).
	Auth string `yaml:"auth"`

	// BaseURL is the site URL, e.g. https://example.atlassian.net.
	// Required for basic auth.
	BaseURL string `yaml:"base_url"`

	// Email is the account for basic auth.
	Email string `yaml:"email"`

	// TokenEnv names the environment variable holding the API token
	// (basic) or access token (oauth). Secrets never live in the file.
	// Default: POKER_TRACKER_TOKEN
	TokenEnv string `yaml:"token_env"`

	// CloudID identifies the site for oauth.
	CloudID string `yaml:"cloud_id"`

	// JQL is the default search used by imports.
	JQL string `yaml:"jql"`
}

// Default returns the default configuration, before variable
// expansion. LoadFile merges the config file over it.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()

	return &Config{
		Environment: Development,
		Paths: PathsConfig{
			Root:     filepath.Join(homeDir, ".local", "state", "poker"),
			Socket:   "${POKER_ROOT}/store.sock",
			Database: "${POKER_ROOT}/poker.db",
			Identity: "${POKER_ROOT}/identity.json",
		},
		Store: StoreConfig{
			LeaveGrace: "30s",
			Heartbeat:  "30s",
		},
		Session: SessionConfig{
			AutoAdvanceDelay:     "300ms",
			LeaderReconcileDelay: "1s",
		},
		Tracker: TrackerConfig{
			TokenEnv: "POKER_TRACKER_TOKEN",
		},
	}
}

// Load loads configuration from the POKER_CONFIG environment variable.
// It fails when the variable is not set.
func Load() (*Config, error) {
	configPath := os.Getenv(EnvVar)
	if configPath == "" {
		return nil, fmt.Errorf("%s environment variable not set; "+
			"set it to the path of your poker.yaml config file, or use --config flag", EnvVar)
	}

	return LoadFile(configPath)
}

// Resolve picks the configuration for a command: an explicit path
// wins, then POKER_CONFIG, then the expanded defaults. The store
// service uses Load or LoadFile instead, since it owns state on disk.
func Resolve(path string) (*Config, error) {
	if path != "" {
		return LoadFile(path)
	}
	if os.Getenv(EnvVar) != "" {
		return Load()
	}
	cfg := Default()
	cfg.expandVariables()
	return cfg, nil
}

// LoadFile loads configuration from a specific file path.
//
// Environment variables do not override config values. The only
// expansion performed is ${POKER_ROOT}, ${HOME} and similar path
// variables.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}

	cfg.applyEnvironmentOverrides()
	cfg.expandVariables()

	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

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

	if overrides.Paths != nil {
		override(&c.Paths.Root, overrides.Paths.Root)
		override(&c.Paths.Socket, overrides.Paths.Socket)
		override(&c.Paths.Database, overrides.Paths.Database)
		override(&c.Paths.Identity, overrides.Paths.Identity)
	}

	if overrides.Store != nil {
		if overrides.Store.PoolSize != 0 {
			c.Store.PoolSize = overrides.Store.PoolSize
		}
		override(&c.Store.LeaveGrace, overrides.Store.LeaveGrace)
		override(&c.Store.Heartbeat, overrides.Store.Heartbeat)
	}

	if overrides.Session != nil {
		override(&c.Session.PlayerName, overrides.Session.PlayerName)
		if len(overrides.Session.Deck) > 0 {
			c.Session.Deck = overrides.Session.Deck
		}
		override(&c.Session.AutoAdvanceDelay, overrides.Session.AutoAdvanceDelay)
		override(&c.Session.LeaderReconcileDelay, overrides.Session.LeaderReconcileDelay)
	}

	if overrides.Tracker != nil {
		override(&c.Tracker.Auth, overrides.Tracker.Auth)
		override(&c.Tracker.BaseURL, overrides.Tracker.BaseURL)
		override(&c.Tracker.Email, overrides.Tracker.Email)
		override(&c.Tracker.TokenEnv, overrides.Tracker.TokenEnv)
		override(&c.Tracker.CloudID, overrides.Tracker.CloudID)
		override(&c.Tracker.JQL, overrides.Tracker.JQL)
	}
}

func override(field *string, value string) {
	if value != "" {
		*field = value
	}
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in paths.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"HOME": os.Getenv("HOME"),
	}

	c.Paths.Root = expandVars(c.Paths.Root, vars)
	vars["POKER_ROOT"] = c.Paths.Root

	c.Paths.Socket = expandVars(c.Paths.Socket, vars)
	c.Paths.Database = expandVars(c.Paths.Database, vars)
	c.Paths.Identity = expandVars(c.Paths.Identity, vars)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandVars expands ${VAR} and ${VAR:-default} patterns, preferring
// vars over the process environment.
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

		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration for errors. Every problem is
// reported, joined.
func (c *Config) Validate() error {
	var errs []error

	if c.Environment != Development && c.Environment != Staging && c.Environment != Production {
		errs = append(errs, fmt.Errorf("invalid environment: %s", c.Environment))
	}

	if c.Paths.Root == "" {
		errs = append(errs, errors.New("paths.root is required"))
	}
	if c.Paths.Socket == "" {
		errs = append(errs, errors.New("paths.socket is required"))
	}
	if c.Paths.Database == "" {
		errs = append(errs, errors.New("paths.database is required"))
	}

	if c.Store.PoolSize < 0 {
		errs = append(errs, fmt.Errorf("store.pool_size must not be negative, got %d", c.Store.PoolSize))
	}
	for name, value := range map[string]string{
		"store.leave_grace":              c.Store.LeaveGrace,
		"store.heartbeat":                c.Store.Heartbeat,
		"session.auto_advance_delay":     c.Session.AutoAdvanceDelay,
		"session.leader_reconcile_delay": c.Session.LeaderReconcileDelay,
	} {
		if _, err := parseDuration(value); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}

	for i, card := range c.Session.Deck {
		if strings.TrimSpace(card) == "" {
			errs = append(errs, fmt.Errorf("session.deck[%d] is empty", i))
		}
	}

	switch c.Tracker.Auth {
	case "":
	case TrackerAuthBasic:
		if c.Tracker.BaseURL == "" {
			errs = append(errs, errors.New("tracker.base_url is required for basic auth"))
		}
		if c.Tracker.Email == "" {
			errs = append(errs, errors.New("tracker.email is required for basic auth"))
		}
	case TrackerAuthOAuth:
		if c.Tracker.CloudID == "" {
			errs = append(errs, errors.New("tracker.cloud_id is required for oauth"))
		}
	default:
		errs = append(errs, fmt.Errorf("tracker.auth must be %q or %q, got %q", TrackerAuthBasic, TrackerAuthOAuth, c.Tracker.Auth))
	}
	if c.Tracker.Auth != "" && c.Tracker.TokenEnv == "" {
		errs = append(errs, errors.New("tracker.token_env is required"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// parseDuration accepts an empty string as zero, which callers treat
// as "use the package default".
func parseDuration(value string) (time.Duration, error) {
	if value == "" {
		return 0, nil
	}
	duration, err := time.ParseDuration(value)
	if err != nil {
		return 0, err
	}
	if duration < 0 {
		return 0, fmt.Errorf("negative duration %s", value)
	}
	return duration, nil
}

// LeaveGraceDuration returns Store.LeaveGrace, or zero when unset.
func (c *Config) LeaveGraceDuration() time.Duration {
	duration, _ := parseDuration(c.Store.LeaveGrace)
	return duration
}

// HeartbeatDuration returns Store.Heartbeat, or zero when unset.
func (c *Config) HeartbeatDuration() time.Duration {
	duration, _ := parseDuration(c.Store.Heartbeat)
	return duration
}

// AutoAdvanceDuration returns Session.AutoAdvanceDelay, or zero when unset.
func (c *Config) AutoAdvanceDuration() time.Duration {
	duration, _ := parseDuration(c.Session.AutoAdvanceDelay)
	return duration
}

// LeaderReconcileDuration returns Session.LeaderReconcileDelay, or
// zero when unset.
func (c *Config) LeaderReconcileDuration() time.Duration {
	duration, _ := parseDuration(c.Session.LeaderReconcileDelay)
	return duration
}

// TrackerToken reads the tracker secret from the variable named by
// Tracker.TokenEnv.
func (c *Config) TrackerToken() (string, error) {
	if c.Tracker.Auth == "" {
		return "", errors.New("tracker integration is not configured (set tracker.auth)")
	}
	token := os.Getenv(c.Tracker.TokenEnv)
	if token == "" {
		return "", fmt.Errorf("%s is not set", c.Tracker.TokenEnv)
	}
	return token, nil
}

// EnsurePaths creates the state directory and the parent directories
// of every configured file.
func (c *Config) EnsurePaths() error {
	dirs := []string{c.Paths.Root}
	for _, path := range []string{c.Paths.Socket, c.Paths.Database, c.Paths.Identity} {
		if path != "" {
			dirs = append(dirs, filepath.Dir(path))
		}
	}

	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}

	return nil
}
