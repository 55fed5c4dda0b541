// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bureau-foundation/poker/lib/clock"
	"github.com/bureau-foundation/poker/lib/config"
	"github.com/bureau-foundation/poker/lib/schema"
	"github.com/bureau-foundation/poker/lib/store"
	"github.com/bureau-foundation/poker/lib/storeclient"
	"github.com/bureau-foundation/poker/lib/testutil"
	"github.com/bureau-foundation/poker/lib/version"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Paths.Root = t.TempDir()
	cfg.Paths.Socket = filepath.Join(testutil.SocketDir(t), "store.sock")
	cfg.Paths.Database = filepath.Join(cfg.Paths.Root, "poker.db")
	cfg.Paths.Identity = filepath.Join(cfg.Paths.Root, "identity.json")
	cfg.Store.LeaveGrace = "10s"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	return cfg
}

// startDaemon serves a daemon for cfg until the test ends.
func startDaemon(t *testing.T, cfg *config.Config, clk clock.Clock) *storeclient.Client {
	t.Helper()
	d, err := newDaemon(cfg, clk, nil)
	if err != nil {
		t.Fatalf("newDaemon: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Serve(ctx) }()
	t.Cleanup(func() {
		cancel()
		if err := <-done; err != nil {
			t.Errorf("Serve: %v", err)
		}
		if err := d.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	testutil.RequireClosed(t, d.socket.Ready(), 5*time.Second, "socket ready")
	return storeclient.New(cfg.Paths.Socket, nil)
}

func TestDaemonServesStore(t *testing.T) {
	ctx := context.Background()
	fakeClock := clock.Fake(time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC))
	cfg := testConfig(t)
	client := startDaemon(t, cfg, fakeClock)

	status, err := client.Status(ctx)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status.Version != version.Short() {
		t.Errorf("service version = %q, want %q", status.Version, version.Short())
	}

	if _, err := client.CreateRoom(ctx, "sprint-42", nil); err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}
	player, err := client.CreatePlayer(ctx, schema.PlayerDraft{RoomID: "sprint-42", Name: "Ana"})
	if err != nil {
		t.Fatalf("CreatePlayer: %v", err)
	}
	if err := client.Leave(ctx, "sprint-42", player.ID); err != nil {
		t.Fatalf("Leave: %v", err)
	}

	fakeClock.Advance(cfg.LeaveGraceDuration())

	if _, err := client.GetPlayer(ctx, player.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("GetPlayer after grace = %v, want ErrNotFound", err)
	}
	if _, err := os.Stat(cfg.Paths.Database); err != nil {
		t.Errorf("database file: %v", err)
	}
}

func TestDaemonKeepsRoomsAcrossRestarts(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)

	first, err := newDaemon(cfg, clock.Real(), nil)
	if err != nil {
		t.Fatalf("newDaemon: %v", err)
	}
	if _, err := first.store.CreateRoom(ctx, "sprint-42", []string{"S", "M", "L"}); err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	client := startDaemon(t, cfg, clock.Real())
	room, err := client.GetRoom(ctx, "sprint-42")
	if err != nil {
		t.Fatalf("GetRoom after restart: %v", err)
	}
	if got := room.Deck(nil); len(got) != 3 || got[0] != "S" {
		t.Errorf("deck after restart = %v, want [S M L]", got)
	}
}

func TestLoadConfigRequiresSource(t *testing.T) {
	t.Setenv(config.EnvVar, "")
	if _, err := loadConfig(""); err == nil {
		t.Fatal("loadConfig without --config or POKER_CONFIG succeeded")
	}

	path := filepath.Join(t.TempDir(), "poker.yaml")
	if err := os.WriteFile(path, []byte("paths:\n  root: /srv/poker\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := loadConfig(path)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Paths.Database != "/srv/poker/poker.db" {
		t.Errorf("database = %q, want it under the configured root", cfg.Paths.Database)
	}
}
