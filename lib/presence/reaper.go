// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package presence removes players who leave a room and do not come
// back within a grace period.
//
// A client that closes its tab or its CLI session calls Leave. The
// Reaper waits out the grace period and then deletes the player row,
// which every other participant observes as a player delete. A
// Rejoin inside the grace period (a page reload, a reconnect)
// cancels the pending delete, so the player keeps its identity,
// vote, and leadership.
package presence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bureau-foundation/poker/lib/clock"
	"github.com/bureau-foundation/poker/lib/store"
)

// DefaultGrace is how long a departed player's row survives.
const DefaultGrace = 30 * time.Second

// PlayerDeleter is the store capability the Reaper needs.
type PlayerDeleter interface {
	DeletePlayer(ctx context.Context, playerID string) error
}

// Config configures a Reaper.
type Config struct {
	Store  PlayerDeleter
	Clock  clock.Clock
	Logger *slog.Logger

	// Grace defaults to DefaultGrace.
	Grace time.Duration
}

// Reaper schedules deletion of departed players.
type Reaper struct {
	store  PlayerDeleter
	clock  clock.Clock
	logger *slog.Logger
	grace  time.Duration

	mu      sync.Mutex
	pending map[string]*departure
	closed  bool
}

type departure struct {
	timer *clock.Timer
}

// NewReaper returns a Reaper. Store is required.
func NewReaper(config Config) (*Reaper, error) {
	if config.Store == nil {
		return nil, errors.New("presence: Store is required")
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.Logger == nil {
		config.Logger = slog.New(slog.DiscardHandler)
	}
	if config.Grace <= 0 {
		config.Grace = DefaultGrace
	}
	return &Reaper{
		store:   config.Store,
		clock:   config.Clock,
		logger:  config.Logger,
		grace:   config.Grace,
		pending: make(map[string]*departure),
	}, nil
}

// Leave schedules playerID for deletion after the grace period. A
// second Leave for the same player restarts the period.
func (r *Reaper) Leave(_ context.Context, roomID, playerID string) error {
	if playerID == "" {
		return fmt.Errorf("presence: player id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return errors.New("presence: reaper is closed")
	}
	if previous, ok := r.pending[playerID]; ok {
		previous.timer.Stop()
	}

	entry := &departure{}
	r.pending[playerID] = entry
	entry.timer = r.clock.AfterFunc(r.grace, func() { r.expire(roomID, playerID, entry) })
	r.logger.Info("player left", "room_id", roomID, "player_id", playerID, "grace", r.grace)
	return nil
}

// Rejoin cancels a pending deletion. It is not an error to rejoin
// without a pending Leave.
func (r *Reaper) Rejoin(_ context.Context, roomID, playerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.pending[playerID]
	if !ok {
		return nil
	}
	entry.timer.Stop()
	delete(r.pending, playerID)
	r.logger.Info("player rejoined", "room_id", roomID, "player_id", playerID)
	return nil
}

// Pending returns the number of scheduled deletions.
func (r *Reaper) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// Close cancels every scheduled deletion.
func (r *Reaper) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for playerID, entry := range r.pending {
		entry.timer.Stop()
		delete(r.pending, playerID)
	}
	r.closed = true
}

func (r *Reaper) expire(roomID, playerID string, entry *departure) {
	r.mu.Lock()
	current, ok := r.pending[playerID]
	if !ok || current != entry {
		r.mu.Unlock()
		return
	}
	delete(r.pending, playerID)
	r.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := r.store.DeletePlayer(ctx, playerID)
	switch {
	case err == nil:
		r.logger.Info("departed player removed", "room_id", roomID, "player_id", playerID)
	case errors.Is(err, store.ErrNotFound):
		r.logger.Debug("departed player already gone", "room_id", roomID, "player_id", playerID)
	default:
		r.logger.Error("removing departed player failed", "room_id", roomID, "player_id", playerID, "error", err)
	}
}
