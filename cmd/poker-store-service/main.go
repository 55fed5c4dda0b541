// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// poker-store-service owns the room database and serves it to poker
// clients over a Unix socket: CRUD actions, per-room change streams,
// and the leave/rejoin signals that drive delayed player removal.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/poker/lib/clock"
	"github.com/bureau-foundation/poker/lib/config"
	"github.com/bureau-foundation/poker/lib/presence"
	"github.com/bureau-foundation/poker/lib/replication"
	"github.com/bureau-foundation/poker/lib/service"
	"github.com/bureau-foundation/poker/lib/store/sqlitestore"
	"github.com/bureau-foundation/poker/lib/storeservice"
	"github.com/bureau-foundation/poker/lib/version"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	var (
		configPath  string
		verbose     bool
		showVersion bool
	)
	flagSet := pflag.NewFlagSet("poker-store-service", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "config file (default $"+config.EnvVar+")")
	flagSet.BoolVarP(&verbose, "verbose", "v", false, "log at debug level")
	flagSet.BoolVar(&showVersion, "version", false, "print version information and exit")
	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	if showVersion {
		fmt.Printf("poker-store-service %s\n", version.Info())
		return nil
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if err := cfg.EnsurePaths(); err != nil {
		return err
	}

	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	d, err := newDaemon(cfg, clock.Real(), logger)
	if err != nil {
		return err
	}
	defer d.Close()

	logger.Info("store service starting",
		"version", version.Short(),
		"socket", cfg.Paths.Socket,
		"database", cfg.Paths.Database,
	)
	return d.Serve(ctx)
}

// loadConfig reads --config, or POKER_CONFIG when the flag is absent.
// Unlike the poker commands it never falls back to built-in defaults.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}

// daemon is the wired service: database, change hub, departure
// reaper and socket server.
type daemon struct {
	store  *sqlitestore.Store
	reaper *presence.Reaper
	socket *service.SocketServer
	logger *slog.Logger
}

func newDaemon(cfg *config.Config, clk clock.Clock, logger *slog.Logger) (*daemon, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	hub := replication.NewHub(0)
	roomStore, err := sqlitestore.Open(sqlitestore.Config{
		Path:     cfg.Paths.Database,
		PoolSize: cfg.Store.PoolSize,
		Logger:   logger,
		Clock:    clk,
		Hub:      hub,
	})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	reaper, err := presence.NewReaper(presence.Config{
		Store:  roomStore,
		Clock:  clk,
		Logger: logger,
		Grace:  cfg.LeaveGraceDuration(),
	})
	if err != nil {
		roomStore.Close()
		return nil, err
	}

	server, err := storeservice.New(storeservice.Config{
		Store:     roomStore,
		Presence:  reaper,
		Clock:     clk,
		Logger:    logger,
		Heartbeat: cfg.HeartbeatDuration(),
	})
	if err != nil {
		reaper.Close()
		roomStore.Close()
		return nil, err
	}

	socket := service.NewSocketServer(cfg.Paths.Socket, logger)
	server.Register(socket)

	return &daemon{
		store:  roomStore,
		reaper: reaper,
		socket: socket,
		logger: logger,
	}, nil
}

// Serve blocks until ctx is cancelled.
func (d *daemon) Serve(ctx context.Context) error {
	if err := d.socket.Serve(ctx); err != nil {
		return fmt.Errorf("serving: %w", err)
	}
	d.logger.Info("store service stopped")
	return nil
}

// Close cancels pending departures and closes the database. Players
// whose grace period had not run out stay in their rooms.
func (d *daemon) Close() error {
	d.reaper.Close()
	return d.store.Close()
}
