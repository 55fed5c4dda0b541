// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package session is the room session controller: one participant's
// view of a planning poker room and the actions that participant can
// take in it.
//
// Join runs the join protocol against a store.Store and returns a
// Controller that mirrors the room's rows locally. The mirror is
// kept current by the store's change stream; every action writes to
// the store and lets the resulting change update the mirror, so all
// participants converge on the store's state. Two local exceptions
// exist: the participant's own card selection, and the optimistic
// flags of a leadership transfer.
//
// There is no coordinator. When concurrent first joins leave a room
// with several leaders, each controller that holds leadership but is
// not the lowest id demotes itself after a short delay.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/bureau-foundation/poker/lib/clock"
	"github.com/bureau-foundation/poker/lib/identity"
	"github.com/bureau-foundation/poker/lib/schema"
	"github.com/bureau-foundation/poker/lib/store"
)

const (
	// DefaultAutoAdvanceDelay is the pause between saving a score and
	// moving to the next unscored ticket.
	DefaultAutoAdvanceDelay = 300 * time.Millisecond

	// DefaultLeaderReconcileDelay is how long a duplicate leader
	// waits before demoting itself. A leadership transfer briefly
	// leaves two leaders; the delay lets the transferring player's
	// demotion land before anyone reacts.
	DefaultLeaderReconcileDelay = time.Second

	noticeBufferSize = 64
	writeTimeout     = 10 * time.Second
)

// Presence receives best-effort departure signals. storeclient.Client
// and presence.Reaper both satisfy it.
type Presence interface {
	Leave(ctx context.Context, roomID, playerID string) error
	Rejoin(ctx context.Context, roomID, playerID string) error
}

// Config configures Join. Store, RoomID and PlayerName are required;
// PlayerName is only used when a new player is created.
type Config struct {
	Store    store.Store
	Identity identity.Store
	Presence Presence
	Clock    clock.Clock
	Logger   *slog.Logger

	RoomID     string
	PlayerName string
	Spectator  bool

	// DefaultDeck is the deck for a room this join creates, and the
	// deck shown for rooms without one. Nil selects
	// schema.DefaultDeck.
	DefaultDeck []string

	// AutoAdvanceDelay defaults to DefaultAutoAdvanceDelay.
	AutoAdvanceDelay time.Duration

	// LeaderReconcileDelay defaults to DefaultLeaderReconcileDelay.
	LeaderReconcileDelay time.Duration

	// OnNotice, if set, is called for every notice in addition to
	// the Notices channel. It runs on the controller's goroutines and
	// must not block.
	OnNotice func(Notice)
}

// Controller is a joined participant. All methods are safe for
// concurrent use.
type Controller struct {
	store            store.Store
	identity         identity.Store
	presence         Presence
	clock            clock.Clock
	logger           *slog.Logger
	roomID           string
	playerID         string
	defaultDeck      []string
	autoAdvanceDelay time.Duration
	reconcileDelay   time.Duration
	onNotice         func(Notice)

	subscription store.Subscription
	notices      chan Notice

	// ctx bounds background writes (auto-advance, leadership
	// reconciliation, resync reads) and the run loop.
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	closeOnce sync.Once

	mu       sync.Mutex
	mirror   *mirror
	selected *string

	// selfRevision is a lower bound on the revision of the local
	// player's row as of the latest local write. Older changes to the
	// row do not move the selection.
	selfRevision int64

	evicted        bool
	closed         bool
	needsResync    bool
	changed        chan struct{}
	advanceTimer   *clock.Timer
	reconcileTimer *clock.Timer
}

// Join runs the join protocol for config.RoomID:
//
//  1. read the room, creating it with the default deck if absent and
//     re-reading if the create loses a race;
//  2. subscribe to the room's change stream;
//  3. read the room, its players and its tickets into the mirror;
//  4. reuse the remembered player id if it still names a player of
//     this room, otherwise create a player, granting leadership when
//     the room was empty, and remember its id;
//  5. start consuming changes and reconcile duplicate leadership.
//
// Subscribing before the snapshot read means no committed change is
// missed; revisions let the mirror discard changes the snapshot has
// already superseded.
//
// Every failure is wrapped in ErrJoinFailed and leaves nothing
// running.
func Join(ctx context.Context, config Config) (*Controller, error) {
	if config.Store == nil {
		return nil, errors.New("session: Store is required")
	}
	if config.RoomID == "" {
		return nil, errors.New("session: RoomID is required")
	}
	if config.Identity == nil {
		config.Identity = identity.NewMemory()
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.Logger == nil {
		config.Logger = slog.New(slog.DiscardHandler)
	}
	if config.DefaultDeck == nil {
		config.DefaultDeck = schema.DefaultDeck()
	}
	if config.AutoAdvanceDelay <= 0 {
		config.AutoAdvanceDelay = DefaultAutoAdvanceDelay
	}
	if config.LeaderReconcileDelay <= 0 {
		config.LeaderReconcileDelay = DefaultLeaderReconcileDelay
	}
	logger := config.Logger.With("room_id", config.RoomID)

	if err := ensureRoom(ctx, config.Store, config.RoomID, config.DefaultDeck); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrJoinFailed, err)
	}

	subscription, err := config.Store.Subscribe(ctx, config.RoomID)
	if err != nil {
		return nil, fmt.Errorf("%w: subscribing to room %s: %w", ErrJoinFailed, config.RoomID, err)
	}

	room, players, tickets, err := readRoom(ctx, config.Store, config.RoomID)
	if err != nil {
		subscription.Close()
		return nil, fmt.Errorf("%w: %w", ErrJoinFailed, err)
	}
	roomMirror := newMirror(room)
	roomMirror.merge(room, players, tickets)

	self, reused, err := resolvePlayer(ctx, config, roomMirror, logger)
	if err != nil {
		subscription.Close()
		return nil, fmt.Errorf("%w: %w", ErrJoinFailed, err)
	}
	roomMirror.upsertPlayer(self)

	if reused && config.Presence != nil {
		if err := config.Presence.Rejoin(ctx, config.RoomID, self.ID); err != nil {
			logger.Warn("cancelling pending departure failed", "player_id", self.ID, "error", err)
		}
	}

	runCtx, cancel := context.WithCancel(context.Background())
	controller := &Controller{
		store:            config.Store,
		identity:         config.Identity,
		presence:         config.Presence,
		clock:            config.Clock,
		logger:           logger.With("player_id", self.ID),
		roomID:           config.RoomID,
		playerID:         self.ID,
		defaultDeck:      slices.Clone(config.DefaultDeck),
		autoAdvanceDelay: config.AutoAdvanceDelay,
		reconcileDelay:   config.LeaderReconcileDelay,
		onNotice:         config.OnNotice,
		subscription:     subscription,
		notices:          make(chan Notice, noticeBufferSize),
		ctx:              runCtx,
		cancel:           cancel,
		done:             make(chan struct{}),
		mirror:           roomMirror,
		selected:         cloneVote(self.Vote),
		selfRevision:     self.Revision,
		changed:          make(chan struct{}),
	}
	controller.logger.Info("joined room", "reused_identity", reused, "leader", self.IsLeader, "players", len(roomMirror.players))

	controller.mu.Lock()
	controller.reconcileLeadershipLocked()
	controller.mu.Unlock()

	go controller.run()
	return controller, nil
}

// ensureRoom makes sure roomID exists. A create that fails, whether
// to a concurrent creator or otherwise, is followed by one more read.
func ensureRoom(ctx context.Context, s store.Store, roomID string, deck []string) error {
	_, err := s.GetRoom(ctx, roomID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("reading room %s: %w", roomID, err)
	}
	_, createErr := s.CreateRoom(ctx, roomID, deck)
	if createErr == nil {
		return nil
	}
	if _, err := s.GetRoom(ctx, roomID); err != nil {
		return fmt.Errorf("creating room %s: %w (re-read: %v)", roomID, createErr, err)
	}
	return nil
}

func readRoom(ctx context.Context, s store.Store, roomID string) (schema.Room, []schema.Player, []schema.Ticket, error) {
	room, err := s.GetRoom(ctx, roomID)
	if err != nil {
		return schema.Room{}, nil, nil, fmt.Errorf("reading room %s: %w", roomID, err)
	}
	players, err := s.ListPlayers(ctx, roomID)
	if err != nil {
		return schema.Room{}, nil, nil, fmt.Errorf("listing players of room %s: %w", roomID, err)
	}
	tickets, err := s.ListTickets(ctx, roomID)
	if err != nil {
		return schema.Room{}, nil, nil, fmt.Errorf("listing tickets of room %s: %w", roomID, err)
	}
	return room, players, tickets, nil
}

// resolvePlayer reuses the remembered player or creates a new one.
func resolvePlayer(ctx context.Context, config Config, roomMirror *mirror, logger *slog.Logger) (schema.Player, bool, error) {
	playerID, ok, err := config.Identity.Load(config.RoomID)
	if err != nil {
		logger.Warn("loading stored identity failed, joining as a new player", "error", err)
		ok = false
	}
	if ok {
		if player, found := roomMirror.player(playerID); found {
			return player, true, nil
		}
		player, err := config.Store.GetPlayer(ctx, playerID)
		switch {
		case err == nil && player.RoomID == config.RoomID:
			return player, true, nil
		case err == nil, errors.Is(err, store.ErrNotFound):
			logger.Info("stored identity no longer in room", "stale_player_id", playerID)
		default:
			return schema.Player{}, false, fmt.Errorf("reading player %s: %w", playerID, err)
		}
	}

	name := strings.TrimSpace(config.PlayerName)
	if name == "" {
		return schema.Player{}, false, errors.New("player name is required")
	}
	count, err := config.Store.CountPlayers(ctx, config.RoomID)
	if err != nil {
		return schema.Player{}, false, fmt.Errorf("counting players of room %s: %w", config.RoomID, err)
	}
	player, err := config.Store.CreatePlayer(ctx, schema.PlayerDraft{
		RoomID:      config.RoomID,
		Name:        name,
		IsLeader:    count == 0,
		IsSpectator: config.Spectator,
	})
	if err != nil {
		return schema.Player{}, false, fmt.Errorf("creating player: %w", err)
	}
	if err := config.Identity.Save(config.RoomID, player.ID); err != nil {
		logger.Warn("storing identity failed, a rejoin will create a new player", "player_id", player.ID, "error", err)
	}
	return player, false, nil
}

// PlayerID returns the local player's id.
func (c *Controller) PlayerID() string { return c.playerID }

// RoomID returns the room this controller joined.
func (c *Controller) RoomID() string { return c.roomID }

// Notices delivers user-facing notices. The channel is never closed;
// notices are dropped when nobody reads it.
func (c *Controller) Notices() <-chan Notice { return c.notices }

// Done is closed when the controller stops following the room: after
// Close, eviction, or loss of the change stream.
func (c *Controller) Done() <-chan struct{} { return c.done }

// View returns the current derived state.
func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewLocked()
}

// WaitForView blocks until predicate accepts the view or ctx ends.
// It returns the last view examined.
func (c *Controller) WaitForView(ctx context.Context, predicate func(View) bool) (View, error) {
	for {
		c.mu.Lock()
		view := c.viewLocked()
		changed := c.changed
		c.mu.Unlock()

		if predicate(view) {
			return view, nil
		}
		select {
		case <-ctx.Done():
			return view, ctx.Err()
		case <-changed:
		}
	}
}

// signalLocked wakes WaitForView callers.
func (c *Controller) signalLocked() {
	close(c.changed)
	c.changed = make(chan struct{})
}

// Close stops following the room, cancels pending timers, and sends
// a best-effort leave signal. Safe to call more than once.
func (c *Controller) Close() error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		evicted := c.evicted
		c.stopTimersLocked()
		c.signalLocked()
		c.mu.Unlock()

		c.cancel()
		c.subscription.Close()
		<-c.done

		if c.presence != nil && !evicted {
			ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
			defer cancel()
			if err := c.presence.Leave(ctx, c.roomID, c.playerID); err != nil {
				c.logger.Debug("leave signal failed", "error", err)
			}
		}
		c.logger.Info("left room")
	})
	return nil
}

func (c *Controller) stopTimersLocked() {
	if c.advanceTimer != nil {
		c.advanceTimer.Stop()
		c.advanceTimer = nil
	}
	if c.reconcileTimer != nil {
		c.reconcileTimer.Stop()
		c.reconcileTimer = nil
	}
}

// run consumes the change stream until the controller closes, the
// local player is evicted, or the stream ends.
func (c *Controller) run() {
	defer close(c.done)
	defer c.subscription.Close()
	for {
		select {
		case <-c.ctx.Done():
			return

		case <-c.subscription.Done():
			if err := c.subscription.Err(); err != nil && c.ctx.Err() == nil {
				c.logger.Error("change stream lost", "error", err)
				c.notify(Notice{Kind: NoticeDisconnected, Message: "lost connection to the room", Err: err})
			}
			return

		case change := <-c.subscription.Events():
			c.mu.Lock()
			retry := c.needsResync
			c.mu.Unlock()
			if change.Kind == schema.ChangeResync || c.subscription.TakeResync() || retry {
				c.drain()
				c.resync()
				continue
			}
			if stop := c.applyChange(change); stop {
				return
			}
		}
	}
}

// drain discards buffered changes ahead of a full re-read.
func (c *Controller) drain() {
	for {
		select {
		case <-c.subscription.Events():
		default:
			return
		}
	}
}

// resync re-reads the room and merges it into the mirror. A failed
// re-read is retried on the next change.
func (c *Controller) resync() {
	ctx, cancel := context.WithTimeout(c.ctx, writeTimeout)
	defer cancel()
	room, players, tickets, err := readRoom(ctx, c.store, c.roomID)

	c.mu.Lock()
	if err != nil {
		c.needsResync = true
		c.mu.Unlock()
		if !IsSilent(err) {
			c.logger.Warn("resync failed", "error", err)
			c.notify(Notice{Kind: NoticeActionFailed, Message: "refreshing the room failed", Err: err})
		}
		return
	}
	c.needsResync = false
	result := c.mirror.merge(room, players, tickets)
	notices := c.afterMergeLocked(result)
	c.mu.Unlock()

	c.logger.Info("resynced room", "players", len(players), "tickets", len(tickets))
	for _, notice := range notices {
		c.notify(notice)
	}
}

// applyChange merges one change and reports whether the run loop
// should stop.
func (c *Controller) applyChange(change schema.Change) bool {
	c.mu.Lock()
	result := c.mirror.apply(change)
	notices := c.afterMergeLocked(result)
	evicted := c.evicted
	c.mu.Unlock()

	for _, notice := range notices {
		c.notify(notice)
	}
	return evicted
}

// afterMergeLocked updates local state that follows from a merge and
// returns the notices to send once the lock is released.
func (c *Controller) afterMergeLocked(result mergeResult) []Notice {
	if !result.any() {
		return nil
	}
	defer c.signalLocked()

	if result.players {
		self, ok := c.mirror.player(c.playerID)
		if !ok && c.mirror.deletedPlayers[c.playerID] && !c.evicted {
			return []Notice{c.evictLocked()}
		}
		if ok && self.Revision >= c.selfRevision {
			c.selfRevision = self.Revision
			c.selected = cloneVote(self.Vote)
		}
		c.reconcileLeadershipLocked()
	}
	return nil
}

// wroteRoom folds a committed room patch into the mirror.
func (c *Controller) wroteRoom(patch schema.RoomPatch) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mirror.patchRoom(patch)
	c.signalLocked()
}

// wroteTicket folds a committed ticket patch into the mirror.
func (c *Controller) wroteTicket(ticketID string, patch schema.TicketPatch) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mirror.patchTicket(ticketID, patch) {
		c.signalLocked()
	}
}

// wroteSelf folds a committed patch of the local player's row into
// the mirror and the selection.
func (c *Controller) wroteSelf(patch schema.PlayerPatch) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mirror.patchPlayer(c.playerID, patch)
	c.noteOwnWriteLocked(patch)
}

// clearedVotes records a committed room-wide vote clear.
func (c *Controller) clearedVotes() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mirror.patchPlayers(schema.ClearVotes)
	if _, ok := c.mirror.players[c.playerID]; ok {
		c.noteOwnWriteLocked(schema.ClearVotes)
		return
	}
	c.signalLocked()
}

// noteOwnWriteLocked records a committed write to the local player's
// row. The mirror row must already carry the patch.
func (c *Controller) noteOwnWriteLocked(patch schema.PlayerPatch) {
	held := c.mirror.players[c.playerID].Revision
	c.selfRevision = max(c.selfRevision+1, held)
	switch {
	case patch.Vote != nil:
		c.selected = cloneVote(patch.Vote)
	case patch.ClearVote:
		c.selected = nil
	}
	c.signalLocked()
}

// evictLocked makes the controller terminal after the local player's
// row was deleted.
func (c *Controller) evictLocked() Notice {
	c.evicted = true
	c.selected = nil
	c.stopTimersLocked()
	if err := c.identity.Forget(c.roomID); err != nil {
		c.logger.Warn("forgetting identity failed", "error", err)
	}
	c.logger.Warn("removed from room")
	return Notice{Kind: NoticeEvicted, Message: "you have been removed from the room"}
}

// notify delivers a notice without blocking. Callers must not hold
// c.mu.
func (c *Controller) notify(notice Notice) {
	if c.onNotice != nil {
		c.onNotice(notice)
	}
	select {
	case c.notices <- notice:
	default:
		c.logger.Debug("notice dropped", "kind", notice.Kind)
	}
}

func cloneVote(vote *string) *string {
	if vote == nil {
		return nil
	}
	value := *vote
	return &value
}
