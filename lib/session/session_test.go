// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/bureau-foundation/poker/lib/clock"
	"github.com/bureau-foundation/poker/lib/identity"
	"github.com/bureau-foundation/poker/lib/replication"
	"github.com/bureau-foundation/poker/lib/schema"
	"github.com/bureau-foundation/poker/lib/store"
	"github.com/bureau-foundation/poker/lib/testutil"
)

const (
	testRoom    = "sprint-42"
	waitTimeout = 5 * time.Second
)

var epoch = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

// fixture is a room backed by an in-memory store with deterministic
// ids ("id-01", "id-02", ...) and a fake clock.
type fixture struct {
	t        *testing.T
	clock    *clock.FakeClock
	hub      *replication.Hub
	memory   *store.Memory
	injector *store.Injector
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clk := clock.Fake(epoch)
	hub := replication.NewHub(0)
	next := 0
	memory := store.NewMemory(store.MemoryConfig{
		Clock: clk,
		Hub:   hub,
		NewID: func() string {
			next++
			return fmt.Sprintf("id-%02d", next)
		},
	})
	return &fixture{
		t:        t,
		clock:    clk,
		hub:      hub,
		memory:   memory,
		injector: store.NewInjector(memory),
	}
}

func (f *fixture) config(name string) Config {
	return Config{
		Store:      f.injector,
		Identity:   identity.NewMemory(),
		Clock:      f.clock,
		RoomID:     testRoom,
		PlayerName: name,
	}
}

func (f *fixture) joinWith(config Config) *Controller {
	f.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	controller, err := Join(ctx, config)
	if err != nil {
		f.t.Fatalf("Join(%q): %v", config.PlayerName, err)
	}
	f.t.Cleanup(func() { controller.Close() })
	return controller
}

func (f *fixture) join(name string) *Controller {
	f.t.Helper()
	return f.joinWith(f.config(name))
}

func (f *fixture) player(playerID string) schema.Player {
	f.t.Helper()
	player, err := f.memory.GetPlayer(context.Background(), playerID)
	if err != nil {
		f.t.Fatalf("GetPlayer(%s): %v", playerID, err)
	}
	return player
}

func (f *fixture) ticket(ticketID string) schema.Ticket {
	f.t.Helper()
	ticket, err := f.memory.GetTicket(context.Background(), ticketID)
	if err != nil {
		f.t.Fatalf("GetTicket(%s): %v", ticketID, err)
	}
	return ticket
}

func (f *fixture) room() schema.Room {
	f.t.Helper()
	room, err := f.memory.GetRoom(context.Background(), testRoom)
	if err != nil {
		f.t.Fatalf("GetRoom: %v", err)
	}
	return room
}

func waitView(t *testing.T, c *Controller, description string, predicate func(View) bool) View {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	view, err := c.WaitForView(ctx, predicate)
	if err != nil {
		t.Fatalf("waiting for %s: %v (phase %s, %d players, %d tickets)",
			description, err, view.Phase, len(view.Players), len(view.Tickets))
	}
	return view
}

func waitNotice(t *testing.T, c *Controller, kind NoticeKind) Notice {
	t.Helper()
	for {
		notice := testutil.RequireReceive(t, c.Notices(), waitTimeout, "waiting for %s notice", kind)
		if notice.Kind == kind {
			return notice
		}
	}
}

func hasPlayers(n int) func(View) bool {
	return func(view View) bool { return len(view.Players) == n }
}

func activeIs(ticketID string, phase Phase) func(View) bool {
	return func(view View) bool {
		return view.ActiveTicket != nil && view.ActiveTicket.ID == ticketID && view.Phase == phase
	}
}

func ticketIn(view View, ticketID string) (schema.Ticket, bool) {
	for _, ticket := range view.Tickets {
		if ticket.ID == ticketID {
			return ticket, true
		}
	}
	return schema.Ticket{}, false
}

func requireActionError(t *testing.T, err error, target error) {
	t.Helper()
	if !errors.Is(err, target) {
		t.Fatalf("error = %v, want %v", err, target)
	}
	var actionErr *ActionError
	if !errors.As(err, &actionErr) {
		t.Fatalf("error %v is not an *ActionError", err)
	}
}

func ptr(value string) *string { return &value }

// recordingPresence records departure signals.
type recordingPresence struct {
	mu       sync.Mutex
	left     []string
	rejoined []string
}

func (p *recordingPresence) Leave(_ context.Context, _, playerID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.left = append(p.left, playerID)
	return nil
}

func (p *recordingPresence) Rejoin(_ context.Context, _, playerID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rejoined = append(p.rejoined, playerID)
	return nil
}

func (p *recordingPresence) snapshot() (left, rejoined []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.left), slices.Clone(p.rejoined)
}

func TestJoinCreatesRoomAndGrantsLeadership(t *testing.T) {
	f := newFixture(t)
	ana := f.join("Ana")

	room := f.room()
	if !slices.Equal(room.CardDeck, schema.DefaultDeck()) {
		t.Errorf("room deck = %v, want default deck", room.CardDeck)
	}
	view := ana.View()
	if !view.IsLeader {
		t.Error("first player is not leader")
	}
	if view.Phase != PhaseNoActiveTicket {
		t.Errorf("phase = %s, want %s", view.Phase, PhaseNoActiveTicket)
	}

	ben := f.join("Ben")
	if ben.View().IsLeader {
		t.Error("second player is leader")
	}
	view = waitView(t, ana, "Ben to appear", hasPlayers(2))
	if view.Leader == nil || view.Leader.ID != ana.PlayerID() {
		t.Errorf("leader = %v, want %s", view.Leader, ana.PlayerID())
	}
	if view.Players[1].Name != "Ben" {
		t.Errorf("players[1] = %q, want Ben", view.Players[1].Name)
	}
}

func TestJoinUsesRoomDeck(t *testing.T) {
	f := newFixture(t)
	if _, err := f.memory.CreateRoom(context.Background(), testRoom, []string{"S", "M", "L"}); err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}
	view := f.join("Ana").View()
	if !slices.Equal(view.Deck, []string{"S", "M", "L"}) {
		t.Errorf("deck = %v, want [S M L]", view.Deck)
	}
	if f.injector.Calls(store.OpCreateRoom) != 0 {
		t.Error("Join created a room that already existed")
	}
}

func TestJoinReusesIdentity(t *testing.T) {
	f := newFixture(t)
	presence := &recordingPresence{}
	config := f.config("Ana")
	config.Presence = presence

	first := f.joinWith(config)
	playerID := first.PlayerID()
	first.Close()

	left, _ := presence.snapshot()
	if !slices.Equal(left, []string{playerID}) {
		t.Fatalf("leave signals = %v, want [%s]", left, playerID)
	}

	config.PlayerName = ""
	second := f.joinWith(config)
	if second.PlayerID() != playerID {
		t.Errorf("rejoined as %s, want %s", second.PlayerID(), playerID)
	}
	if !second.View().IsLeader {
		t.Error("rejoined player lost leadership")
	}
	count, err := f.memory.CountPlayers(context.Background(), testRoom)
	if err != nil {
		t.Fatalf("CountPlayers: %v", err)
	}
	if count != 1 {
		t.Errorf("player rows = %d, want 1", count)
	}
	_, rejoined := presence.snapshot()
	if !slices.Equal(rejoined, []string{playerID}) {
		t.Errorf("rejoin signals = %v, want [%s]", rejoined, playerID)
	}
}

func TestJoinReplacesStaleIdentity(t *testing.T) {
	f := newFixture(t)
	config := f.config("Ana")
	if err := config.Identity.Save(testRoom, "deleted-player"); err != nil {
		t.Fatalf("Save: %v", err)
	}

	ana := f.joinWith(config)
	if ana.PlayerID() == "deleted-player" {
		t.Fatal("joined with a stale identity")
	}
	stored, ok, err := config.Identity.Load(testRoom)
	if err != nil || !ok || stored != ana.PlayerID() {
		t.Errorf("stored identity = %q, %v, %v; want %q", stored, ok, err, ana.PlayerID())
	}
}

func TestJoinIgnoresIdentityFromAnotherRoom(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.memory.CreateRoom(ctx, "other-room", nil); err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}
	stranger, err := f.memory.CreatePlayer(ctx, schema.PlayerDraft{RoomID: "other-room", Name: "Stranger"})
	if err != nil {
		t.Fatalf("CreatePlayer: %v", err)
	}
	config := f.config("Ana")
	config.Identity.Save(testRoom, stranger.ID)

	ana := f.joinWith(config)
	if ana.PlayerID() == stranger.ID {
		t.Fatal("joined as a player of another room")
	}
}

func TestJoinFailures(t *testing.T) {
	storeDown := errors.New("store unavailable")
	tests := []struct {
		name   string
		inject func(*fixture)
		config func(*Config)
	}{
		{
			name:   "room read fails",
			inject: func(f *fixture) { f.injector.Fail(store.OpGetRoom, storeDown) },
		},
		{
			name:   "room create fails",
			inject: func(f *fixture) { f.injector.Fail(store.OpCreateRoom, storeDown) },
		},
		{
			name:   "snapshot read fails",
			inject: func(f *fixture) { f.injector.Fail(store.OpListPlayers, storeDown) },
		},
		{
			name:   "player create fails",
			inject: func(f *fixture) { f.injector.Fail(store.OpCreatePlayer, storeDown) },
		},
		{
			name:   "no name for a new player",
			config: func(c *Config) { c.PlayerName = "  " },
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			f := newFixture(t)
			if test.inject != nil {
				test.inject(f)
			}
			config := f.config("Ana")
			if test.config != nil {
				test.config(&config)
			}
			controller, err := Join(context.Background(), config)
			if err == nil {
				controller.Close()
				t.Fatal("Join succeeded")
			}
			if !errors.Is(err, ErrJoinFailed) {
				t.Errorf("error = %v, want ErrJoinFailed", err)
			}
			if subscribers := f.hub.Subscribers(testRoom); subscribers != 0 {
				t.Errorf("%d subscriptions left open", subscribers)
			}
		})
	}
}

func TestJoinSurvivesLostCreateRace(t *testing.T) {
	f := newFixture(t)
	if _, err := f.memory.CreateRoom(context.Background(), testRoom, nil); err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}
	// The first read misses the room, as if another participant
	// created it in between.
	f.injector.FailNext(store.OpGetRoom, 1, fmt.Errorf("room %q: %w", testRoom, store.ErrNotFound))

	ana := f.join("Ana")
	if calls := f.injector.Calls(store.OpCreateRoom); calls != 1 {
		t.Errorf("CreateRoom calls = %d, want 1", calls)
	}
	if !ana.View().IsLeader {
		t.Error("first player is not leader")
	}
}

func TestCastVoteToggles(t *testing.T) {
	f := newFixture(t)
	ana := f.join("Ana")
	ctx := context.Background()

	for _, card := range schema.DefaultDeck() {
		if err := ana.CastVote(ctx, card); err != nil {
			t.Fatalf("CastVote(%q): %v", card, err)
		}
		if vote := f.player(ana.PlayerID()).Vote; vote == nil || *vote != card {
			t.Fatalf("stored vote after CastVote(%q) = %v", card, vote)
		}
		if selected := ana.View().Selected; selected == nil || *selected != card {
			t.Fatalf("selected after CastVote(%q) = %v", card, selected)
		}

		if err := ana.CastVote(ctx, card); err != nil {
			t.Fatalf("second CastVote(%q): %v", card, err)
		}
		if vote := f.player(ana.PlayerID()).Vote; vote != nil {
			t.Fatalf("stored vote after toggling %q = %q, want none", card, *vote)
		}
		if selected := ana.View().Selected; selected != nil {
			t.Fatalf("selected after toggling %q = %q, want none", card, *selected)
		}
	}
}

func TestCastVoteSwitchesCard(t *testing.T) {
	f := newFixture(t)
	ana := f.join("Ana")
	ctx := context.Background()

	if err := ana.CastVote(ctx, "3"); err != nil {
		t.Fatalf("CastVote: %v", err)
	}
	if err := ana.CastVote(ctx, "8"); err != nil {
		t.Fatalf("CastVote: %v", err)
	}
	if vote := f.player(ana.PlayerID()).Vote; vote == nil || *vote != "8" {
		t.Errorf("stored vote = %v, want 8", vote)
	}
}

func TestCastVoteRefusals(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ana := f.join("Ana")

	spectatorConfig := f.config("Sam")
	spectatorConfig.Spectator = true
	sam := f.joinWith(spectatorConfig)

	writes := func() int { return f.injector.Calls(store.OpUpdatePlayer) }

	before := writes()
	requireActionError(t, sam.CastVote(ctx, "5"), ErrSpectator)
	requireActionError(t, ana.CastVote(ctx, "4"), ErrUnknownCard)
	if writes() != before {
		t.Fatal("refused votes reached the store")
	}

	if _, _, err := ana.Reveal(ctx); err != nil {
		t.Fatalf("Reveal: %v", err)
	}
	waitView(t, ana, "reveal", func(view View) bool { return view.Room.IsRevealed })
	before = writes()
	requireActionError(t, ana.CastVote(ctx, "5"), ErrRevealed)
	if writes() != before {
		t.Fatal("vote after reveal reached the store")
	}

	ticket, err := ana.AddTicket(ctx, "Checkout flow")
	if err != nil {
		t.Fatalf("AddTicket: %v", err)
	}
	if err := ana.SetActiveTicket(ctx, ticket.ID, true); err != nil {
		t.Fatalf("SetActiveTicket: %v", err)
	}
	if err := ana.SaveScore(ctx, "5"); err != nil {
		t.Fatalf("SaveScore: %v", err)
	}
	waitView(t, ana, "completed ticket", activeIs(ticket.ID, PhaseViewOnlyCompleted))
	before = writes()
	requireActionError(t, ana.CastVote(ctx, "5"), ErrViewOnly)
	if writes() != before {
		t.Fatal("vote on a completed ticket reached the store")
	}
}

func TestViewHidesOtherVotesUntilReveal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ana := f.join("Ana")
	ben := f.join("Ben")

	ticket, err := ana.AddTicket(ctx, "Search")
	if err != nil {
		t.Fatalf("AddTicket: %v", err)
	}
	if err := ana.SetActiveTicket(ctx, ticket.ID, false); err != nil {
		t.Fatalf("SetActiveTicket: %v", err)
	}
	waitView(t, ben, "active ticket", activeIs(ticket.ID, PhaseVotingHidden))
	if err := ana.CastVote(ctx, "5"); err != nil {
		t.Fatalf("CastVote: %v", err)
	}
	if err := ben.CastVote(ctx, "8"); err != nil {
		t.Fatalf("CastVote: %v", err)
	}

	view := waitView(t, ben, "both votes", func(view View) bool {
		return len(view.Votes) == 2 && view.Votes[0].Voted && view.Votes[1].Voted
	})
	if !view.Votes[0].Hidden || view.Votes[0].Vote != "" {
		t.Errorf("Ana's vote visible to Ben before reveal: %+v", view.Votes[0])
	}
	if view.Votes[1].Hidden || view.Votes[1].Vote != "8" {
		t.Errorf("Ben's own vote = %+v, want visible 8", view.Votes[1])
	}
	if view.HasAverage {
		t.Error("average shown before reveal")
	}

	if _, _, err := ana.Reveal(ctx); err != nil {
		t.Fatalf("Reveal: %v", err)
	}
	view = waitView(t, ben, "reveal", func(view View) bool { return view.Phase == PhaseVotingRevealed })
	if view.Votes[0].Vote != "5" {
		t.Errorf("Ana's vote after reveal = %+v", view.Votes[0])
	}
	if view.Average != "6.5" {
		t.Errorf("average = %q, want 6.5", view.Average)
	}
}

func TestRevealAverage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	leader := f.join("Ana")
	votes := map[string]string{"Ana": "3", "Ben": "5", "Cy": "8", "Dee": "?", "Eli": "0"}

	controllers := map[string]*Controller{"Ana": leader}
	for _, name := range []string{"Ben", "Cy", "Dee", "Eli"} {
		controllers[name] = f.join(name)
	}
	ticket, err := leader.AddTicket(ctx, "Estimate me")
	if err != nil {
		t.Fatalf("AddTicket: %v", err)
	}
	if err := leader.SetActiveTicket(ctx, ticket.ID, false); err != nil {
		t.Fatalf("SetActiveTicket: %v", err)
	}
	for name, card := range votes {
		if err := controllers[name].CastVote(ctx, card); err != nil {
			t.Fatalf("%s CastVote(%q): %v", name, card, err)
		}
	}
	waitView(t, leader, "five votes", func(view View) bool {
		voted := 0
		for _, vote := range view.Votes {
			if vote.Voted {
				voted++
			}
		}
		return voted == 5
	})

	average, ok, err := leader.Reveal(ctx)
	if err != nil {
		t.Fatalf("Reveal: %v", err)
	}
	if !ok || average != "5.3" {
		t.Errorf("Reveal = %q, %v; want 5.3, true", average, ok)
	}
	if !f.room().IsRevealed {
		t.Error("room not revealed")
	}
}

func TestRevealWithoutNumericVotes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ana := f.join("Ana")
	if err := ana.CastVote(ctx, "☕"); err != nil {
		t.Fatalf("CastVote: %v", err)
	}
	average, ok, err := ana.Reveal(ctx)
	if err != nil {
		t.Fatalf("Reveal: %v", err)
	}
	if ok || average != "" {
		t.Errorf("Reveal = %q, %v; want no average", average, ok)
	}
}

func TestActionsSeeOwnWritesBeforeTheirChanges(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	gated := &gatedStore{Store: f.injector}
	config := f.config("Ana")
	config.Store = gated
	ana := f.joinWith(config)

	// None of Ana's writes come back on the change stream.
	gated.gate.drop(true)

	ticket, err := ana.AddTicket(ctx, "Login page")
	if err != nil {
		t.Fatalf("AddTicket: %v", err)
	}
	if err := ana.SetActiveTicket(ctx, ticket.ID, false); err != nil {
		t.Fatalf("SetActiveTicket: %v", err)
	}
	if err := ana.CastVote(ctx, "5"); err != nil {
		t.Fatalf("CastVote: %v", err)
	}
	if view := ana.View(); view.Self.Vote == nil || *view.Self.Vote != "5" {
		t.Errorf("own row vote = %v, want 5", view.Self.Vote)
	}

	average, ok, err := ana.Reveal(ctx)
	if err != nil {
		t.Fatalf("Reveal: %v", err)
	}
	if !ok || average != "5.0" {
		t.Errorf("Reveal = %q, %v; want 5.0, true", average, ok)
	}
	if view := ana.View(); view.Phase != PhaseVotingRevealed {
		t.Errorf("phase after reveal = %s", view.Phase)
	}

	if err := ana.SaveScore(ctx, "5"); err != nil {
		t.Fatalf("SaveScore: %v", err)
	}
	saved := f.ticket(ticket.ID)
	if !saved.IsCompleted() || len(saved.VotesSnapshot) != 1 || saved.VotesSnapshot[0].Vote != "5" {
		t.Errorf("saved ticket = %+v, want completed with Ana's vote", saved)
	}
	view := ana.View()
	if view.Phase != PhaseViewOnlyCompleted || view.ActiveTicket == nil || view.ActiveTicket.ID != ticket.ID {
		t.Errorf("view after save = phase %s, active %+v", view.Phase, view.ActiveTicket)
	}

	if err := ana.Revote(ctx, ticket.ID); err != nil {
		t.Fatalf("Revote: %v", err)
	}
	view = ana.View()
	if view.Phase != PhaseVotingHidden || view.Selected != nil || view.Self.Vote != nil {
		t.Errorf("view after revote = phase %s, selected %v, vote %v", view.Phase, view.Selected, view.Self.Vote)
	}
}

func TestFailedRoundChangeKeepsSelection(t *testing.T) {
	tests := []struct {
		name string
		act  func(ctx context.Context, c *Controller, done, next schema.Ticket) error
	}{
		{
			name: "reset",
			act: func(ctx context.Context, c *Controller, _, _ schema.Ticket) error {
				return c.Reset(ctx)
			},
		},
		{
			name: "set active ticket",
			act: func(ctx context.Context, c *Controller, _, next schema.Ticket) error {
				return c.SetActiveTicket(ctx, next.ID, true)
			},
		},
		{
			name: "revote",
			act: func(ctx context.Context, c *Controller, done, _ schema.Ticket) error {
				return c.Revote(ctx, done.ID)
			},
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			ana := f.join("Ana")

			done, _ := ana.AddTicket(ctx, "Scored")
			current, _ := ana.AddTicket(ctx, "Current")
			next, _ := ana.AddTicket(ctx, "Next")
			if err := ana.SetActiveTicket(ctx, done.ID, true); err != nil {
				t.Fatalf("SetActiveTicket: %v", err)
			}
			if err := ana.SaveScore(ctx, "3"); err != nil {
				t.Fatalf("SaveScore: %v", err)
			}
			if err := ana.SetActiveTicket(ctx, current.ID, true); err != nil {
				t.Fatalf("SetActiveTicket: %v", err)
			}
			if err := ana.CastVote(ctx, "5"); err != nil {
				t.Fatalf("CastVote: %v", err)
			}

			f.injector.FailNext(store.OpUpdateRoom, 1, errors.New("store down"))
			if err := test.act(ctx, ana, done, next); err == nil {
				t.Fatal("action succeeded despite the failed write")
			}
			if vote := f.player(ana.PlayerID()).Vote; vote == nil || *vote != "5" {
				t.Fatalf("stored vote = %v, want 5", vote)
			}
			if selected := ana.View().Selected; selected == nil || *selected != "5" {
				t.Fatalf("selection after the failed write = %v, want 5", selected)
			}

			// The selection still matches the store, so the same card
			// withdraws the vote.
			if err := ana.CastVote(ctx, "5"); err != nil {
				t.Fatalf("CastVote: %v", err)
			}
			if vote := f.player(ana.PlayerID()).Vote; vote != nil {
				t.Errorf("stored vote after toggling = %q, want none", *vote)
			}
		})
	}
}

func TestResetClearsRound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ana := f.join("Ana")
	ben := f.join("Ben")

	if err := ana.CastVote(ctx, "3"); err != nil {
		t.Fatalf("CastVote: %v", err)
	}
	if err := ben.CastVote(ctx, "5"); err != nil {
		t.Fatalf("CastVote: %v", err)
	}
	if _, _, err := ana.Reveal(ctx); err != nil {
		t.Fatalf("Reveal: %v", err)
	}
	if err := ana.Reset(ctx); err != nil {
		t.Fatalf("Reset: %v", err)
	}

	if f.room().IsRevealed {
		t.Error("room still revealed after reset")
	}
	for _, controller := range []*Controller{ana, ben} {
		if vote := f.player(controller.PlayerID()).Vote; vote != nil {
			t.Errorf("player %s still has vote %q", controller.PlayerID(), *vote)
		}
	}
	waitView(t, ben, "cleared selection", func(view View) bool {
		return view.Selected == nil && !view.Room.IsRevealed
	})
	if ana.View().Selected != nil {
		t.Error("Ana's selection survived reset")
	}
}

func TestSetActiveTicketStartsFreshRound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ana := f.join("Ana")

	ticket, err := ana.AddTicket(ctx, "Login page")
	if err != nil {
		t.Fatalf("AddTicket: %v", err)
	}
	if err := ana.CastVote(ctx, "13"); err != nil {
		t.Fatalf("CastVote: %v", err)
	}
	if err := ana.SetActiveTicket(ctx, ticket.ID, false); err != nil {
		t.Fatalf("SetActiveTicket: %v", err)
	}

	room := f.room()
	if room.ActiveTicketID != ticket.ID || room.IsRevealed {
		t.Errorf("room = %+v, want active %s and hidden", room, ticket.ID)
	}
	if status := f.ticket(ticket.ID).Status; status != schema.TicketActive {
		t.Errorf("status = %s, want active", status)
	}
	if vote := f.player(ana.PlayerID()).Vote; vote != nil {
		t.Errorf("vote survived the switch: %q", *vote)
	}
	view := waitView(t, ana, "active ticket", activeIs(ticket.ID, PhaseVotingHidden))
	if view.Selected != nil {
		t.Error("selection survived the switch")
	}
}

func TestSetActiveTicketAutoSavesRevealedRound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ana := f.join("Ana")
	ben := f.join("Ben")

	first, err := ana.AddTicket(ctx, "PROJ-1: Login")
	if err != nil {
		t.Fatalf("AddTicket: %v", err)
	}
	second, err := ana.AddTicket(ctx, "PROJ-2: Logout")
	if err != nil {
		t.Fatalf("AddTicket: %v", err)
	}
	if err := ana.SetActiveTicket(ctx, first.ID, false); err != nil {
		t.Fatalf("SetActiveTicket: %v", err)
	}
	waitView(t, ben, "first ticket", activeIs(first.ID, PhaseVotingHidden))
	if err := ana.CastVote(ctx, "5"); err != nil {
		t.Fatalf("CastVote: %v", err)
	}
	if err := ben.CastVote(ctx, "8"); err != nil {
		t.Fatalf("CastVote: %v", err)
	}
	waitView(t, ana, "both votes", func(view View) bool {
		return len(view.Votes) == 2 && view.Votes[0].Voted && view.Votes[1].Voted
	})
	if _, _, err := ana.Reveal(ctx); err != nil {
		t.Fatalf("Reveal: %v", err)
	}
	waitView(t, ana, "reveal", func(view View) bool { return view.Room.IsRevealed })

	if err := ana.SetActiveTicket(ctx, second.ID, false); err != nil {
		t.Fatalf("SetActiveTicket: %v", err)
	}
	saved := f.ticket(first.ID)
	if !saved.IsCompleted() || saved.Score == nil || *saved.Score != "6.5" {
		t.Fatalf("first ticket = %+v, want completed with score 6.5", saved)
	}
	if len(saved.VotesSnapshot) != 2 {
		t.Errorf("snapshot = %+v, want two votes", saved.VotesSnapshot)
	}
	waitView(t, ben, "second ticket", activeIs(second.ID, PhaseVotingHidden))

	// Returning to the completed ticket shows its snapshot and leaves
	// the live votes alone.
	if err := ben.CastVote(ctx, "3"); err != nil {
		t.Fatalf("CastVote: %v", err)
	}
	waitView(t, ana, "first ticket completed", func(view View) bool {
		saved, ok := ticketIn(view, first.ID)
		return ok && saved.IsCompleted()
	})
	updates := f.injector.Calls(store.OpUpdateRoomPlayers)
	if err := ana.SetActiveTicket(ctx, first.ID, false); err != nil {
		t.Fatalf("SetActiveTicket: %v", err)
	}
	if f.injector.Calls(store.OpUpdateRoomPlayers) != updates {
		t.Error("activating a completed ticket cleared votes")
	}
	view := waitView(t, ana, "view-only ticket", activeIs(first.ID, PhaseViewOnlyCompleted))
	if len(view.Votes) != 2 || view.Average != "6.5" {
		t.Errorf("view-only votes = %+v average %q, want snapshot with 6.5", view.Votes, view.Average)
	}
}

func TestSetActiveTicketSkipsAutoSave(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ana := f.join("Ana")

	first, _ := ana.AddTicket(ctx, "One")
	second, _ := ana.AddTicket(ctx, "Two")
	if err := ana.SetActiveTicket(ctx, first.ID, false); err != nil {
		t.Fatalf("SetActiveTicket: %v", err)
	}
	if err := ana.CastVote(ctx, "5"); err != nil {
		t.Fatalf("CastVote: %v", err)
	}
	if _, _, err := ana.Reveal(ctx); err != nil {
		t.Fatalf("Reveal: %v", err)
	}
	waitView(t, ana, "reveal", func(view View) bool { return view.Room.IsRevealed })

	if err := ana.SetActiveTicket(ctx, second.ID, true); err != nil {
		t.Fatalf("SetActiveTicket: %v", err)
	}
	if saved := f.ticket(first.ID); saved.IsCompleted() || saved.HasScore() {
		t.Errorf("first ticket = %+v, want unscored", saved)
	}
}

func TestSetActiveTicketUnknown(t *testing.T) {
	f := newFixture(t)
	ana := f.join("Ana")
	requireActionError(t, ana.SetActiveTicket(context.Background(), "no-such-ticket", false), ErrUnknownTicket)
}

func TestSaveScoreValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ana := f.join("Ana")

	requireActionError(t, ana.SaveScore(ctx, "5"), ErrNoActiveTicket)

	ticket, _ := ana.AddTicket(ctx, "Billing")
	if err := ana.SetActiveTicket(ctx, ticket.ID, false); err != nil {
		t.Fatalf("SetActiveTicket: %v", err)
	}
	waitView(t, ana, "active ticket", activeIs(ticket.ID, PhaseVotingHidden))
	requireActionError(t, ana.SaveScore(ctx, "   "), ErrEmptyScore)
	if f.ticket(ticket.ID).IsCompleted() {
		t.Error("empty score completed the ticket")
	}
}

func TestSaveScoreAdvancesToNextUnscored(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ana := f.join("Ana")
	ben := f.join("Ben")

	done, _ := ana.AddTicket(ctx, "Done already")
	pending, _ := ana.AddTicket(ctx, "Up next")
	current, _ := ana.AddTicket(ctx, "Current")
	if err := f.memory.UpdateTicket(ctx, done.ID, schema.TicketPatch{Status: schema.TicketCompleted, Score: ptr("3")}); err != nil {
		t.Fatalf("UpdateTicket: %v", err)
	}
	if err := ana.SetActiveTicket(ctx, current.ID, false); err != nil {
		t.Fatalf("SetActiveTicket: %v", err)
	}
	waitView(t, ana, "current ticket", func(view View) bool {
		first, ok := ticketIn(view, done.ID)
		return ok && first.IsCompleted() && activeIs(current.ID, PhaseVotingHidden)(view)
	})
	if err := ben.CastVote(ctx, "8"); err != nil {
		t.Fatalf("CastVote: %v", err)
	}
	waitView(t, ana, "Ben's vote", func(view View) bool {
		return len(view.Votes) == 2 && view.Votes[1].Voted
	})

	if err := ana.SaveScore(ctx, "8"); err != nil {
		t.Fatalf("SaveScore: %v", err)
	}
	waitNotice(t, ana, NoticeScoreSaved)
	saved := f.ticket(current.ID)
	if !saved.IsCompleted() || *saved.Score != "8" {
		t.Fatalf("saved ticket = %+v", saved)
	}
	if len(saved.VotesSnapshot) != 1 || saved.VotesSnapshot[0].Name != "Ben" || saved.VotesSnapshot[0].Vote != "8" {
		t.Errorf("snapshot = %+v, want Ben's 8", saved.VotesSnapshot)
	}
	if f.room().ActiveTicketID != current.ID {
		t.Fatal("advanced before the delay")
	}

	f.clock.Advance(DefaultAutoAdvanceDelay)
	notice := waitNotice(t, ana, NoticeAdvanced)
	if notice.Message != "next up: Up next" {
		t.Errorf("advance notice = %q", notice.Message)
	}
	waitView(t, ben, "next ticket", activeIs(pending.ID, PhaseVotingHidden))
	if status := f.ticket(pending.ID).Status; status != schema.TicketActive {
		t.Errorf("next ticket status = %s, want active", status)
	}
}

func TestSaveScoreAdvanceWraps(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ana := f.join("Ana")

	first, _ := ana.AddTicket(ctx, "First")
	second, _ := ana.AddTicket(ctx, "Second")
	if err := ana.SetActiveTicket(ctx, second.ID, false); err != nil {
		t.Fatalf("SetActiveTicket: %v", err)
	}
	waitView(t, ana, "second ticket", activeIs(second.ID, PhaseVotingHidden))

	if err := ana.SaveScore(ctx, "2"); err != nil {
		t.Fatalf("SaveScore: %v", err)
	}
	f.clock.Advance(DefaultAutoAdvanceDelay)
	waitView(t, ana, "wrap to first", activeIs(first.ID, PhaseVotingHidden))
}

func TestSaveScoreStaysWhenNothingLeft(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ana := f.join("Ana")

	only, _ := ana.AddTicket(ctx, "Only")
	if err := ana.SetActiveTicket(ctx, only.ID, false); err != nil {
		t.Fatalf("SetActiveTicket: %v", err)
	}
	waitView(t, ana, "active ticket", activeIs(only.ID, PhaseVotingHidden))
	if err := ana.SaveScore(ctx, "1"); err != nil {
		t.Fatalf("SaveScore: %v", err)
	}
	if pending := f.clock.PendingCount(); pending != 0 {
		t.Errorf("%d timers pending, want none", pending)
	}
	waitView(t, ana, "view-only ticket", activeIs(only.ID, PhaseViewOnlyCompleted))
}

func TestUpdateScore(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ana := f.join("Ana")

	ticket, _ := ana.AddTicket(ctx, "Reports")
	requireActionError(t, ana.UpdateScore(ctx, ticket.ID, "5"), ErrNotCompleted)

	if err := ana.SetActiveTicket(ctx, ticket.ID, false); err != nil {
		t.Fatalf("SetActiveTicket: %v", err)
	}
	if err := ana.CastVote(ctx, "3"); err != nil {
		t.Fatalf("CastVote: %v", err)
	}
	waitView(t, ana, "own vote", func(view View) bool {
		return len(view.Votes) == 1 && view.Votes[0].Voted
	})
	if err := ana.SaveScore(ctx, "3"); err != nil {
		t.Fatalf("SaveScore: %v", err)
	}
	waitView(t, ana, "completed ticket", activeIs(ticket.ID, PhaseViewOnlyCompleted))

	requireActionError(t, ana.UpdateScore(ctx, ticket.ID, ""), ErrEmptyScore)
	if err := ana.UpdateScore(ctx, ticket.ID, "13"); err != nil {
		t.Fatalf("UpdateScore: %v", err)
	}
	updated := f.ticket(ticket.ID)
	if *updated.Score != "13" || !updated.IsCompleted() || len(updated.VotesSnapshot) != 1 {
		t.Errorf("updated ticket = %+v, want completed 13 with its snapshot", updated)
	}
}

func TestRevoteReopensTicket(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ana := f.join("Ana")

	ticket, _ := ana.AddTicket(ctx, "Exports")
	requireActionError(t, ana.Revote(ctx, ticket.ID), ErrNotCompleted)

	if err := ana.SetActiveTicket(ctx, ticket.ID, false); err != nil {
		t.Fatalf("SetActiveTicket: %v", err)
	}
	if err := ana.CastVote(ctx, "5"); err != nil {
		t.Fatalf("CastVote: %v", err)
	}
	if err := ana.SaveScore(ctx, "5"); err != nil {
		t.Fatalf("SaveScore: %v", err)
	}
	waitView(t, ana, "completed ticket", activeIs(ticket.ID, PhaseViewOnlyCompleted))

	if err := ana.Revote(ctx, ticket.ID); err != nil {
		t.Fatalf("Revote: %v", err)
	}
	reopened := f.ticket(ticket.ID)
	if reopened.Status != schema.TicketActive || reopened.Score != nil || reopened.VotesSnapshot != nil {
		t.Errorf("reopened ticket = %+v", reopened)
	}
	if vote := f.player(ana.PlayerID()).Vote; vote != nil {
		t.Errorf("vote survived revote: %q", *vote)
	}
	waitView(t, ana, "voting again", activeIs(ticket.ID, PhaseVotingHidden))
	if err := ana.CastVote(ctx, "8"); err != nil {
		t.Errorf("CastVote after revote: %v", err)
	}
}

func TestTicketEditing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ana := f.join("Ana")
	ben := f.join("Ben")

	if _, err := ana.AddTicket(ctx, "  "); err == nil {
		t.Error("AddTicket accepted a blank title")
	}
	ticket, err := ana.AddTicket(ctx, "  Onboarding  ")
	if err != nil {
		t.Fatalf("AddTicket: %v", err)
	}
	if ticket.Title != "Onboarding" || ticket.Status != schema.TicketPending {
		t.Errorf("ticket = %+v, want pending Onboarding", ticket)
	}
	if _, ok := ticketIn(ana.View(), ticket.ID); !ok {
		t.Error("added ticket missing from the adder's view")
	}

	waitView(t, ben, "new ticket", func(view View) bool {
		_, ok := ticketIn(view, ticket.ID)
		return ok
	})
	if err := ben.RenameTicket(ctx, ticket.ID, "Onboarding v2"); err != nil {
		t.Fatalf("RenameTicket: %v", err)
	}
	waitView(t, ana, "rename", func(view View) bool {
		renamed, ok := ticketIn(view, ticket.ID)
		return ok && renamed.Title == "Onboarding v2"
	})
	requireActionError(t, ben.RenameTicket(ctx, "missing", "x"), ErrUnknownTicket)
}

func TestDeleteActiveTicketClearsRoom(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ana := f.join("Ana")

	ticket, _ := ana.AddTicket(ctx, "Doomed")
	if err := ana.SetActiveTicket(ctx, ticket.ID, false); err != nil {
		t.Fatalf("SetActiveTicket: %v", err)
	}
	if _, _, err := ana.Reveal(ctx); err != nil {
		t.Fatalf("Reveal: %v", err)
	}
	waitView(t, ana, "reveal", activeIs(ticket.ID, PhaseVotingRevealed))

	if err := ana.DeleteTicket(ctx, ticket.ID); err != nil {
		t.Fatalf("DeleteTicket: %v", err)
	}
	room := f.room()
	if room.ActiveTicketID != "" || room.IsRevealed {
		t.Errorf("room = %+v, want no active ticket and hidden votes", room)
	}
	view := waitView(t, ana, "ticket gone", func(view View) bool {
		_, ok := ticketIn(view, ticket.ID)
		return !ok
	})
	if view.Phase != PhaseNoActiveTicket {
		t.Errorf("phase = %s, want %s", view.Phase, PhaseNoActiveTicket)
	}
}

func TestImportTicketsSkipsDuplicates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ana := f.join("Ana")

	if _, err := ana.AddTicket(ctx, "PROJ-1: Login"); err != nil {
		t.Fatalf("AddTicket: %v", err)
	}
	created, err := ana.ImportTickets(ctx, []string{
		"PROJ-1: Login page",
		"Setup CI",
		"Setup CI",
		"",
		"PROJ-2: Logout",
	})
	if err != nil {
		t.Fatalf("ImportTickets: %v", err)
	}
	var titles []string
	for _, ticket := range created {
		titles = append(titles, ticket.Title)
	}
	if !slices.Equal(titles, []string{"Setup CI", "PROJ-2: Logout"}) {
		t.Errorf("imported %v", titles)
	}
	tickets, _ := f.memory.ListTickets(ctx, testRoom)
	if len(tickets) != 3 {
		t.Errorf("store holds %d tickets, want 3", len(tickets))
	}
}

func TestUpdateDeck(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ana := f.join("Ana")

	if err := ana.UpdateDeck(ctx, []string{"XS", " S ", "M"}); err != nil {
		t.Fatalf("UpdateDeck: %v", err)
	}
	view := waitView(t, ana, "new deck", func(view View) bool { return len(view.Deck) == 3 })
	if !slices.Equal(view.Deck, []string{"XS", "S", "M"}) {
		t.Errorf("deck = %v", view.Deck)
	}
	if err := ana.CastVote(ctx, "S"); err != nil {
		t.Errorf("CastVote on the new deck: %v", err)
	}
	if err := ana.UpdateDeck(ctx, nil); err == nil {
		t.Error("UpdateDeck accepted an empty deck")
	}
}

func TestSetSpectatorWithdrawsVote(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ana := f.join("Ana")

	if err := ana.CastVote(ctx, "5"); err != nil {
		t.Fatalf("CastVote: %v", err)
	}
	if err := ana.SetSpectator(ctx, true); err != nil {
		t.Fatalf("SetSpectator: %v", err)
	}
	player := f.player(ana.PlayerID())
	if !player.IsSpectator || player.Vote != nil {
		t.Errorf("player = %+v, want spectator without vote", player)
	}
	view := waitView(t, ana, "spectator", func(view View) bool { return view.Self.IsSpectator })
	if view.Selected != nil || len(view.Votes) != 0 {
		t.Errorf("spectator view selected %v votes %+v", view.Selected, view.Votes)
	}
	requireActionError(t, ana.CastVote(ctx, "5"), ErrSpectator)

	if err := ana.SetSpectator(ctx, false); err != nil {
		t.Fatalf("SetSpectator: %v", err)
	}
	waitView(t, ana, "voter", func(view View) bool { return !view.Self.IsSpectator })
	if err := ana.CastVote(ctx, "5"); err != nil {
		t.Errorf("CastVote after rejoining the vote: %v", err)
	}
}

func TestDuplicateLeadersConverge(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.memory.CreateRoom(ctx, testRoom, nil); err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}
	// Two first joins raced: both rows were created as leader.
	var configs []Config
	for _, name := range []string{"Ana", "Ben"} {
		player, err := f.memory.CreatePlayer(ctx, schema.PlayerDraft{RoomID: testRoom, Name: name, IsLeader: true})
		if err != nil {
			t.Fatalf("CreatePlayer: %v", err)
		}
		config := f.config(name)
		config.Identity.Save(testRoom, player.ID)
		configs = append(configs, config)
	}
	ana := f.joinWith(configs[0])
	ben := f.joinWith(configs[1])
	if ana.PlayerID() >= ben.PlayerID() {
		t.Fatalf("ids %s, %s not ordered", ana.PlayerID(), ben.PlayerID())
	}

	f.clock.WaitForTimers(1)
	f.clock.Advance(DefaultLeaderReconcileDelay)
	waitNotice(t, ben, NoticeLeadershipResolved)

	for _, controller := range []*Controller{ana, ben} {
		view := waitView(t, controller, "single leader", func(view View) bool {
			leaders := 0
			for _, player := range view.Players {
				if player.IsLeader {
					leaders++
				}
			}
			return leaders == 1
		})
		if view.Leader == nil || view.Leader.ID != ana.PlayerID() {
			t.Errorf("%s sees leader %v, want %s", controller.PlayerID(), view.Leader, ana.PlayerID())
		}
	}
	if !f.player(ana.PlayerID()).IsLeader || f.player(ben.PlayerID()).IsLeader {
		t.Error("store does not hold exactly the lower id as leader")
	}
}

func TestTransferLeadership(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ana := f.join("Ana")
	ben := f.join("Ben")
	waitView(t, ana, "Ben", hasPlayers(2))

	if err := ana.TransferLeadership(ctx, ben.PlayerID()); err != nil {
		t.Fatalf("TransferLeadership: %v", err)
	}
	waitNotice(t, ana, NoticeLeadershipTransferred)
	if view := ana.View(); view.IsLeader || view.Leader == nil || view.Leader.ID != ben.PlayerID() {
		t.Errorf("Ana's view after transfer: leader %v, self leader %v", view.Leader, view.IsLeader)
	}
	waitView(t, ben, "transfer", func(view View) bool {
		demoted := false
		for _, player := range view.Players {
			if player.ID == ana.PlayerID() {
				demoted = !player.IsLeader
			}
		}
		return view.IsLeader && demoted
	})

	// The reconciler must not undo a settled transfer.
	f.clock.Advance(DefaultLeaderReconcileDelay)
	if !f.player(ben.PlayerID()).IsLeader || f.player(ana.PlayerID()).IsLeader {
		t.Error("leadership moved after the transfer settled")
	}

	requireActionError(t, ana.TransferLeadership(ctx, ben.PlayerID()), ErrNotLeader)
	requireActionError(t, ben.TransferLeadership(ctx, "nobody"), ErrUnknownPlayer)
}

func TestTransferLeadershipRevertsFailedPromotion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ana := f.join("Ana")
	ben := f.join("Ben")
	waitView(t, ana, "Ben", hasPlayers(2))

	f.injector.FailNext(store.OpUpdatePlayer, 1, errors.New("write rejected"))
	err := ana.TransferLeadership(ctx, ben.PlayerID())
	var actionErr *ActionError
	if !errors.As(err, &actionErr) || actionErr.Action != "transfer leadership" {
		t.Fatalf("error = %v, want a transfer leadership ActionError", err)
	}

	view := ana.View()
	if !view.IsLeader {
		t.Error("Ana lost leadership after a failed transfer")
	}
	for _, player := range view.Players {
		if player.ID == ben.PlayerID() && player.IsLeader {
			t.Error("Ben still shown as leader after a failed transfer")
		}
	}
	if f.player(ben.PlayerID()).IsLeader {
		t.Error("Ben promoted in the store")
	}
}

func TestKickPlayerEvicts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ana := f.join("Ana")

	presence := &recordingPresence{}
	benConfig := f.config("Ben")
	benConfig.Presence = presence
	ben := f.joinWith(benConfig)
	waitView(t, ana, "Ben", hasPlayers(2))

	requireActionError(t, ben.KickPlayer(ctx, ana.PlayerID()), ErrNotLeader)
	requireActionError(t, ana.KickPlayer(ctx, ana.PlayerID()), ErrKickSelf)

	if err := ana.KickPlayer(ctx, ben.PlayerID()); err != nil {
		t.Fatalf("KickPlayer: %v", err)
	}
	waitNotice(t, ben, NoticeEvicted)
	testutil.RequireClosed(t, ben.Done(), waitTimeout, "evicted controller still running")

	view := ben.View()
	if !view.Evicted || view.Selected != nil {
		t.Errorf("evicted view = %+v", view)
	}
	if _, ok, _ := benConfig.Identity.Load(testRoom); ok {
		t.Error("identity kept after eviction")
	}
	requireActionError(t, ben.CastVote(ctx, "5"), ErrEvicted)
	waitView(t, ana, "Ben gone", hasPlayers(1))

	ben.Close()
	if left, _ := presence.snapshot(); len(left) != 0 {
		t.Errorf("evicted player sent leave signals %v", left)
	}
}

func TestCloseStopsController(t *testing.T) {
	f := newFixture(t)
	presence := &recordingPresence{}
	config := f.config("Ana")
	config.Presence = presence
	ana := f.joinWith(config)

	if err := ana.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := ana.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	testutil.RequireClosed(t, ana.Done(), waitTimeout, "controller still running after Close")
	if subscribers := f.hub.Subscribers(testRoom); subscribers != 0 {
		t.Errorf("%d subscriptions open after Close", subscribers)
	}
	left, _ := presence.snapshot()
	if len(left) != 1 {
		t.Errorf("leave signals = %v, want one", left)
	}
	requireActionError(t, ana.CastVote(context.Background(), "5"), ErrNotJoined)
}

func TestActionErrorsReachNoticeHook(t *testing.T) {
	f := newFixture(t)
	var (
		mu      sync.Mutex
		notices []Notice
	)
	config := f.config("Ana")
	config.OnNotice = func(notice Notice) {
		mu.Lock()
		notices = append(notices, notice)
		mu.Unlock()
	}
	ana := f.joinWith(config)
	ctx := context.Background()

	ticket, _ := ana.AddTicket(ctx, "Hooked")
	if err := ana.SetActiveTicket(ctx, ticket.ID, false); err != nil {
		t.Fatalf("SetActiveTicket: %v", err)
	}
	if err := ana.SaveScore(ctx, "3"); err != nil {
		t.Fatalf("SaveScore: %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(notices) != 1 || notices[0].Kind != NoticeScoreSaved {
		t.Errorf("hook saw %+v, want one score_saved notice", notices)
	}
}

// gatedStore hands out subscriptions that the test can stall, mark
// for resync, or fail.
type gatedStore struct {
	store.Store
	gate *gatedSubscription
}

func (s *gatedStore) Subscribe(ctx context.Context, roomID string) (store.Subscription, error) {
	inner, err := s.Store.Subscribe(ctx, roomID)
	if err != nil {
		return nil, err
	}
	s.gate = newGatedSubscription(inner)
	return s.gate, nil
}

type gatedSubscription struct {
	inner  store.Subscription
	events chan schema.Change
	done   chan struct{}

	mu       sync.Mutex
	dropping bool
	err      error
	once     sync.Once
}

func newGatedSubscription(inner store.Subscription) *gatedSubscription {
	gate := &gatedSubscription{
		inner:  inner,
		events: make(chan schema.Change, replication.DefaultBufferSize),
		done:   make(chan struct{}),
	}
	go gate.forward()
	return gate
}

func (g *gatedSubscription) forward() {
	for {
		select {
		case change := <-g.inner.Events():
			g.mu.Lock()
			dropping := g.dropping
			g.mu.Unlock()
			if dropping {
				continue
			}
			select {
			case g.events <- change:
			case <-g.done:
				return
			}
		case <-g.done:
			return
		}
	}
}

func (g *gatedSubscription) drop(dropping bool) {
	g.mu.Lock()
	g.dropping = dropping
	g.mu.Unlock()
}

func (g *gatedSubscription) fail(err error) {
	g.mu.Lock()
	g.err = err
	g.mu.Unlock()
	g.Close()
}

func (g *gatedSubscription) Events() <-chan schema.Change { return g.events }
func (g *gatedSubscription) Done() <-chan struct{}        { return g.done }
func (g *gatedSubscription) TakeResync() bool             { return g.inner.TakeResync() }

func (g *gatedSubscription) Err() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.err
}

func (g *gatedSubscription) Close() error {
	g.once.Do(func() {
		close(g.done)
		g.inner.Close()
	})
	return nil
}

func TestResyncRecoversDroppedChanges(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	gated := &gatedStore{Store: f.injector}
	config := f.config("Ana")
	config.Store = gated
	ana := f.joinWith(config)

	doomed, err := f.memory.CreateTicket(ctx, testRoom, "Doomed")
	if err != nil {
		t.Fatalf("CreateTicket: %v", err)
	}
	waitView(t, ana, "first ticket", func(view View) bool { return len(view.Tickets) == 1 })

	gated.gate.drop(true)
	kept, err := f.memory.CreateTicket(ctx, testRoom, "Arrives while stalled")
	if err != nil {
		t.Fatalf("CreateTicket: %v", err)
	}
	if err := f.memory.DeleteTicket(ctx, doomed.ID); err != nil {
		t.Fatalf("DeleteTicket: %v", err)
	}
	if _, err := f.memory.CreatePlayer(ctx, schema.PlayerDraft{RoomID: testRoom, Name: "Ben"}); err != nil {
		t.Fatalf("CreatePlayer: %v", err)
	}

	testutil.RequireSend(t, gated.gate.events, schema.Change{Kind: schema.ChangeResync, RoomID: testRoom}, waitTimeout)
	view := waitView(t, ana, "resynced room", func(view View) bool {
		_, hasKept := ticketIn(view, kept.ID)
		_, hasDoomed := ticketIn(view, doomed.ID)
		return hasKept && !hasDoomed && len(view.Players) == 2
	})
	if view.Players[1].Name != "Ben" {
		t.Errorf("players[1] = %q, want Ben", view.Players[1].Name)
	}
}

func TestLostStreamEndsController(t *testing.T) {
	f := newFixture(t)
	gated := &gatedStore{Store: f.injector}
	config := f.config("Ana")
	config.Store = gated
	ana := f.joinWith(config)

	gated.gate.fail(errors.New("connection reset"))
	notice := waitNotice(t, ana, NoticeDisconnected)
	if notice.Err == nil {
		t.Error("disconnect notice carries no error")
	}
	testutil.RequireClosed(t, ana.Done(), waitTimeout, "controller still running after stream loss")
}
