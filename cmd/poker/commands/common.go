// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/poker/cmd/poker/cli"
	"github.com/bureau-foundation/poker/lib/config"
	"github.com/bureau-foundation/poker/lib/storeclient"
	"github.com/bureau-foundation/poker/lib/tracker"
	"github.com/bureau-foundation/poker/lib/version"
)

const statusTimeout = 5 * time.Second

// connectionFlags are shared by every command that talks to the store
// service or the tracker.
type connectionFlags struct {
	configPath string
	socket     string
	verbose    bool
}

func (f *connectionFlags) register(flagSet *pflag.FlagSet) {
	flagSet.StringVar(&f.configPath, "config", "", "config file (default $"+config.EnvVar+", then built-in defaults)")
	flagSet.StringVar(&f.socket, "socket", "", "store service socket (overrides paths.socket)")
	flagSet.BoolVarP(&f.verbose, "verbose", "v", false, "log debug output to stderr")
}

// load resolves and validates the configuration, applying --socket.
func (f *connectionFlags) load() (*config.Config, error) {
	cfg, err := config.Resolve(f.configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if f.socket != "" {
		cfg.Paths.Socket = f.socket
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func (f *connectionFlags) logger(command string) *slog.Logger {
	return cli.NewCommandLogger(f.verbose).With("command", command)
}

// connectStore returns a client for the configured socket after
// checking that the service answers. An incompatible service version
// is logged, not refused.
func connectStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*storeclient.Client, error) {
	client := storeclient.New(cfg.Paths.Socket, logger)

	statusCtx, cancel := context.WithTimeout(ctx, statusTimeout)
	defer cancel()
	status, err := client.Status(statusCtx)
	if err != nil {
		return nil, fmt.Errorf("store service at %s is not answering (is poker-store-service running?): %w",
			cfg.Paths.Socket, err)
	}
	if !version.Compatible(status.Version) {
		logger.Warn("store service version may be incompatible",
			"service_version", status.Version,
			"client_version", version.Short())
	}
	return client, nil
}

// issueTracker is the part of tracker.Client the commands use.
type issueTracker interface {
	Search(ctx context.Context, jql string, maxResults int) ([]tracker.Issue, error)
	PostComment(ctx context.Context, issueKey, text string) error
}

// newTracker builds a tracker client from cfg. It returns nil, nil
// when the integration is not configured.
func newTracker(cfg *config.Config, logger *slog.Logger) (*tracker.Client, error) {
	if cfg.Tracker.Auth == "" {
		return nil, nil
	}
	token, err := cfg.TrackerToken()
	if err != nil {
		return nil, err
	}

	trackerConfig := tracker.Config{Logger: logger}
	switch cfg.Tracker.Auth {
	case config.TrackerAuthBasic:
		trackerConfig.BaseURL = cfg.Tracker.BaseURL
		trackerConfig.Email = cfg.Tracker.Email
		trackerConfig.Token = token
	case config.TrackerAuthOAuth:
		trackerConfig.AccessToken = token
		trackerConfig.CloudID = cfg.Tracker.CloudID
	}
	return tracker.NewClient(trackerConfig)
}

// requireTracker is newTracker for commands that cannot run without
// the integration.
func requireTracker(cfg *config.Config, logger *slog.Logger) (*tracker.Client, error) {
	client, err := newTracker(cfg, logger)
	if err != nil {
		return nil, err
	}
	if client == nil {
		return nil, fmt.Errorf("tracker integration is not configured (set tracker.auth in the config file)")
	}
	return client, nil
}
