// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package storetest is the behavioural contract every store.Store
// implementation runs in its tests.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bureau-foundation/poker/lib/schema"
	"github.com/bureau-foundation/poker/lib/store"
	"github.com/bureau-foundation/poker/lib/testutil"
)

// Factory opens an empty store for one subtest. Cleanup is the
// factory's responsibility (via t.Cleanup).
type Factory func(t *testing.T) store.Store

const receiveTimeout = 5 * time.Second

// Run executes the contract against stores produced by open.
func Run(t *testing.T, open Factory) {
	t.Run("Rooms", func(t *testing.T) { testRooms(t, open(t)) })
	t.Run("Players", func(t *testing.T) { testPlayers(t, open(t)) })
	t.Run("FieldLevelMerge", func(t *testing.T) { testFieldLevelMerge(t, open(t)) })
	t.Run("Tickets", func(t *testing.T) { testTickets(t, open(t)) })
	t.Run("VotesSnapshot", func(t *testing.T) { testVotesSnapshot(t, open(t)) })
	t.Run("ChangeStream", func(t *testing.T) { testChangeStream(t, open(t)) })
	t.Run("RoomWideVoteClear", func(t *testing.T) { testRoomWideVoteClear(t, open(t)) })
}

func ptr[T any](v T) *T { return &v }

func requireErrorIs(t *testing.T, err, target error, operation string) {
	t.Helper()
	if !errors.Is(err, target) {
		t.Fatalf("%s: error = %v, want %v", operation, err, target)
	}
}

func testRooms(t *testing.T, s store.Store) {
	ctx := context.Background()

	_, err := s.GetRoom(ctx, "missing")
	requireErrorIs(t, err, store.ErrNotFound, "GetRoom(missing)")

	room, err := s.CreateRoom(ctx, "sprint-42", nil)
	if err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}
	if room.ID != "sprint-42" || room.IsRevealed || room.ActiveTicketID != "" {
		t.Fatalf("new room = %+v", room)
	}

	_, err = s.CreateRoom(ctx, "sprint-42", nil)
	requireErrorIs(t, err, store.ErrConflict, "CreateRoom(duplicate)")

	_, err = s.CreateRoom(ctx, "bad-deck", []string{"1", "1"})
	requireErrorIs(t, err, store.ErrInvalid, "CreateRoom(duplicate cards)")

	if err := s.UpdateRoom(ctx, "sprint-42", schema.RoomPatch{
		IsRevealed:     ptr(true),
		ActiveTicketID: ptr("ticket-1"),
		CardDeck:       []string{"S", "M", "L"},
	}); err != nil {
		t.Fatalf("UpdateRoom: %v", err)
	}
	room, err = s.GetRoom(ctx, "sprint-42")
	if err != nil {
		t.Fatalf("GetRoom: %v", err)
	}
	if !room.IsRevealed || room.ActiveTicketID != "ticket-1" || len(room.CardDeck) != 3 {
		t.Fatalf("updated room = %+v", room)
	}

	if err := s.UpdateRoom(ctx, "sprint-42", schema.RoomPatch{ClearActiveTicket: true}); err != nil {
		t.Fatalf("UpdateRoom(clear): %v", err)
	}
	room, _ = s.GetRoom(ctx, "sprint-42")
	if room.ActiveTicketID != "" || !room.IsRevealed {
		t.Fatalf("after clear = %+v", room)
	}

	err = s.UpdateRoom(ctx, "missing", schema.RoomPatch{IsRevealed: ptr(true)})
	requireErrorIs(t, err, store.ErrNotFound, "UpdateRoom(missing)")

	err = s.UpdateRoom(ctx, "sprint-42", schema.RoomPatch{ActiveTicketID: ptr("t"), ClearActiveTicket: true})
	requireErrorIs(t, err, store.ErrInvalid, "UpdateRoom(contradictory)")
}

func testPlayers(t *testing.T, s store.Store) {
	ctx := context.Background()

	_, err := s.CreatePlayer(ctx, schema.PlayerDraft{RoomID: "missing", Name: "Ana"})
	requireErrorIs(t, err, store.ErrNotFound, "CreatePlayer(missing room)")

	if _, err := s.CreateRoom(ctx, "room", nil); err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}

	_, err = s.CreatePlayer(ctx, schema.PlayerDraft{RoomID: "room", Name: " "})
	requireErrorIs(t, err, store.ErrInvalid, "CreatePlayer(blank name)")

	ana, err := s.CreatePlayer(ctx, schema.PlayerDraft{RoomID: "room", Name: "Ana", IsLeader: true})
	if err != nil {
		t.Fatalf("CreatePlayer(Ana): %v", err)
	}
	ben, err := s.CreatePlayer(ctx, schema.PlayerDraft{RoomID: "room", Name: "Ben", IsSpectator: true})
	if err != nil {
		t.Fatalf("CreatePlayer(Ben): %v", err)
	}
	if ana.ID == "" || ana.ID == ben.ID {
		t.Fatalf("player ids %q and %q", ana.ID, ben.ID)
	}
	if !ana.IsLeader || ana.HasVoted() || !ben.IsSpectator {
		t.Fatalf("created players = %+v, %+v", ana, ben)
	}

	count, err := s.CountPlayers(ctx, "room")
	if err != nil || count != 2 {
		t.Fatalf("CountPlayers = %d, %v; want 2", count, err)
	}
	count, err = s.CountPlayers(ctx, "empty-room")
	if err != nil || count != 0 {
		t.Fatalf("CountPlayers(empty-room) = %d, %v; want 0", count, err)
	}

	players, err := s.ListPlayers(ctx, "room")
	if err != nil {
		t.Fatalf("ListPlayers: %v", err)
	}
	if len(players) != 2 || players[0].ID != ana.ID || players[1].ID != ben.ID {
		t.Fatalf("ListPlayers order = %+v", players)
	}

	if err := s.UpdatePlayer(ctx, ana.ID, schema.PlayerPatch{Vote: ptr("8")}); err != nil {
		t.Fatalf("UpdatePlayer(vote): %v", err)
	}
	got, err := s.GetPlayer(ctx, ana.ID)
	if err != nil {
		t.Fatalf("GetPlayer: %v", err)
	}
	if got.Vote == nil || *got.Vote != "8" {
		t.Fatalf("vote = %v, want 8", got.Vote)
	}

	if err := s.DeletePlayer(ctx, ben.ID); err != nil {
		t.Fatalf("DeletePlayer: %v", err)
	}
	_, err = s.GetPlayer(ctx, ben.ID)
	requireErrorIs(t, err, store.ErrNotFound, "GetPlayer(deleted)")
	err = s.DeletePlayer(ctx, ben.ID)
	requireErrorIs(t, err, store.ErrNotFound, "DeletePlayer(deleted)")
	err = s.UpdatePlayer(ctx, ben.ID, schema.PlayerPatch{ClearVote: true})
	requireErrorIs(t, err, store.ErrNotFound, "UpdatePlayer(deleted)")
}

func testFieldLevelMerge(t *testing.T, s store.Store) {
	ctx := context.Background()
	if _, err := s.CreateRoom(ctx, "room", nil); err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}
	player, err := s.CreatePlayer(ctx, schema.PlayerDraft{RoomID: "room", Name: "Ana"})
	if err != nil {
		t.Fatalf("CreatePlayer: %v", err)
	}

	if err := s.UpdatePlayer(ctx, player.ID, schema.PlayerPatch{Vote: ptr("3")}); err != nil {
		t.Fatalf("UpdatePlayer(vote): %v", err)
	}
	if err := s.UpdatePlayer(ctx, player.ID, schema.PlayerPatch{IsLeader: ptr(true)}); err != nil {
		t.Fatalf("UpdatePlayer(leader): %v", err)
	}
	got, _ := s.GetPlayer(ctx, player.ID)
	if got.Vote == nil || *got.Vote != "3" || !got.IsLeader {
		t.Fatalf("merged player = %+v, want vote 3 and leader", got)
	}
	if got.Revision != player.Revision+2 {
		t.Fatalf("player revision = %d after two updates, want %d", got.Revision, player.Revision+2)
	}

	if err := s.UpdateRoom(ctx, "room", schema.RoomPatch{IsRevealed: ptr(true)}); err != nil {
		t.Fatalf("UpdateRoom(reveal): %v", err)
	}
	if err := s.UpdateRoom(ctx, "room", schema.RoomPatch{ActiveTicketID: ptr("t1")}); err != nil {
		t.Fatalf("UpdateRoom(activate): %v", err)
	}
	room, _ := s.GetRoom(ctx, "room")
	if !room.IsRevealed || room.ActiveTicketID != "t1" {
		t.Fatalf("merged room = %+v", room)
	}
	if room.Revision != 2 {
		t.Fatalf("room revision = %d after two updates, want 2", room.Revision)
	}
}

func testTickets(t *testing.T, s store.Store) {
	ctx := context.Background()

	_, err := s.CreateTicket(ctx, "missing", "ABC-1: thing")
	requireErrorIs(t, err, store.ErrNotFound, "CreateTicket(missing room)")

	if _, err := s.CreateRoom(ctx, "room", nil); err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}
	_, err = s.CreateTicket(ctx, "room", "   ")
	requireErrorIs(t, err, store.ErrInvalid, "CreateTicket(blank)")

	var ids []string
	for _, title := range []string{"ABC-1: login", "ABC-2: logout", "Write docs"} {
		ticket, err := s.CreateTicket(ctx, "room", title)
		if err != nil {
			t.Fatalf("CreateTicket(%q): %v", title, err)
		}
		if ticket.Status != schema.TicketPending || ticket.HasScore() {
			t.Fatalf("new ticket = %+v", ticket)
		}
		ids = append(ids, ticket.ID)
	}

	tickets, err := s.ListTickets(ctx, "room")
	if err != nil {
		t.Fatalf("ListTickets: %v", err)
	}
	if len(tickets) != 3 {
		t.Fatalf("ListTickets len = %d, want 3", len(tickets))
	}
	for i, ticket := range tickets {
		if ticket.ID != ids[i] {
			t.Fatalf("ticket %d = %s, want %s (creation order)", i, ticket.ID, ids[i])
		}
	}

	if err := s.UpdateTicket(ctx, ids[1], schema.TicketPatch{
		Title:  ptr("ABC-2: log out"),
		Status: schema.TicketCompleted,
		Score:  ptr("5"),
	}); err != nil {
		t.Fatalf("UpdateTicket: %v", err)
	}
	ticket, err := s.GetTicket(ctx, ids[1])
	if err != nil {
		t.Fatalf("GetTicket: %v", err)
	}
	if ticket.Title != "ABC-2: log out" || !ticket.IsCompleted() || *ticket.Score != "5" {
		t.Fatalf("updated ticket = %+v", ticket)
	}

	if err := s.UpdateTicket(ctx, ids[1], schema.TicketPatch{ClearScore: true, Status: schema.TicketActive}); err != nil {
		t.Fatalf("UpdateTicket(clear): %v", err)
	}
	ticket, _ = s.GetTicket(ctx, ids[1])
	if ticket.Score != nil || ticket.Status != schema.TicketActive {
		t.Fatalf("cleared ticket = %+v", ticket)
	}

	err = s.UpdateTicket(ctx, ids[0], schema.TicketPatch{Status: "archived"})
	requireErrorIs(t, err, store.ErrInvalid, "UpdateTicket(bad status)")

	if err := s.DeleteTicket(ctx, ids[0]); err != nil {
		t.Fatalf("DeleteTicket: %v", err)
	}
	err = s.DeleteTicket(ctx, ids[0])
	requireErrorIs(t, err, store.ErrNotFound, "DeleteTicket(deleted)")
	tickets, _ = s.ListTickets(ctx, "room")
	if len(tickets) != 2 {
		t.Fatalf("after delete len = %d, want 2", len(tickets))
	}
}

func testVotesSnapshot(t *testing.T, s store.Store) {
	ctx := context.Background()
	if _, err := s.CreateRoom(ctx, "room", nil); err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}
	ticket, err := s.CreateTicket(ctx, "room", "ABC-9: export")
	if err != nil {
		t.Fatalf("CreateTicket: %v", err)
	}
	if ticket.VotesSnapshot != nil {
		t.Fatalf("new ticket snapshot = %v, want nil", ticket.VotesSnapshot)
	}

	snapshot := []schema.VoteSnapshot{
		{PlayerID: "p1", Name: "Ana", Vote: "5"},
		{PlayerID: "p2", Name: "Ben", Vote: "8"},
	}
	if err := s.UpdateTicket(ctx, ticket.ID, schema.TicketPatch{
		Score:           ptr("6.5"),
		Status:          schema.TicketCompleted,
		VotesSnapshot:   snapshot,
		ReplaceSnapshot: true,
	}); err != nil {
		t.Fatalf("UpdateTicket(save): %v", err)
	}
	saved, _ := s.GetTicket(ctx, ticket.ID)
	if len(saved.VotesSnapshot) != 2 || saved.VotesSnapshot[1] != snapshot[1] {
		t.Fatalf("saved snapshot = %+v", saved.VotesSnapshot)
	}

	if err := s.UpdateTicket(ctx, ticket.ID, schema.TicketPatch{Title: ptr("ABC-9: export csv")}); err != nil {
		t.Fatalf("UpdateTicket(rename): %v", err)
	}
	renamed, _ := s.GetTicket(ctx, ticket.ID)
	if len(renamed.VotesSnapshot) != 2 {
		t.Fatalf("rename dropped snapshot: %+v", renamed)
	}

	if err := s.UpdateTicket(ctx, ticket.ID, schema.TicketPatch{ReplaceSnapshot: true}); err != nil {
		t.Fatalf("UpdateTicket(clear snapshot): %v", err)
	}
	cleared, _ := s.GetTicket(ctx, ticket.ID)
	if cleared.VotesSnapshot != nil {
		t.Fatalf("cleared snapshot = %v, want nil", cleared.VotesSnapshot)
	}
}

func testChangeStream(t *testing.T, s store.Store) {
	ctx := context.Background()
	if _, err := s.CreateRoom(ctx, "room", nil); err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}
	if _, err := s.CreateRoom(ctx, "other", nil); err != nil {
		t.Fatalf("CreateRoom(other): %v", err)
	}

	subscription, err := s.Subscribe(ctx, "room")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer subscription.Close()

	if _, err := s.CreatePlayer(ctx, schema.PlayerDraft{RoomID: "other", Name: "Elsewhere"}); err != nil {
		t.Fatalf("CreatePlayer(other): %v", err)
	}
	player, err := s.CreatePlayer(ctx, schema.PlayerDraft{RoomID: "room", Name: "Ana"})
	if err != nil {
		t.Fatalf("CreatePlayer: %v", err)
	}
	if err := s.UpdatePlayer(ctx, player.ID, schema.PlayerPatch{Vote: ptr("13")}); err != nil {
		t.Fatalf("UpdatePlayer: %v", err)
	}
	if err := s.UpdateRoom(ctx, "room", schema.RoomPatch{IsRevealed: ptr(true)}); err != nil {
		t.Fatalf("UpdateRoom: %v", err)
	}
	if err := s.DeletePlayer(ctx, player.ID); err != nil {
		t.Fatalf("DeletePlayer: %v", err)
	}

	want := []struct {
		kind  schema.ChangeKind
		table schema.Table
		id    string
	}{
		{schema.ChangeInsert, schema.TablePlayers, player.ID},
		{schema.ChangeUpdate, schema.TablePlayers, player.ID},
		{schema.ChangeUpdate, schema.TableRooms, "room"},
		{schema.ChangeDelete, schema.TablePlayers, player.ID},
	}
	for i, expected := range want {
		change := testutil.RequireReceive(t, subscription.Events(), receiveTimeout, "change %d", i)
		if change.Kind != expected.kind || change.Table != expected.table || change.RowID() != expected.id {
			t.Fatalf("change %d = %s %s %s, want %s %s %s", i,
				change.Kind, change.Table, change.RowID(),
				expected.kind, expected.table, expected.id)
		}
		if change.RoomID != "room" {
			t.Fatalf("change %d room = %q", i, change.RoomID)
		}
	}
}

func testRoomWideVoteClear(t *testing.T, s store.Store) {
	ctx := context.Background()
	if _, err := s.CreateRoom(ctx, "room", nil); err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}
	var ids []string
	for _, name := range []string{"Ana", "Ben", "Cy"} {
		player, err := s.CreatePlayer(ctx, schema.PlayerDraft{RoomID: "room", Name: name})
		if err != nil {
			t.Fatalf("CreatePlayer(%s): %v", name, err)
		}
		if err := s.UpdatePlayer(ctx, player.ID, schema.PlayerPatch{Vote: ptr("3")}); err != nil {
			t.Fatalf("UpdatePlayer(%s): %v", name, err)
		}
		ids = append(ids, player.ID)
	}

	subscription, err := s.Subscribe(ctx, "room")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer subscription.Close()

	if err := s.UpdateRoomPlayers(ctx, "room", schema.ClearVotes); err != nil {
		t.Fatalf("UpdateRoomPlayers: %v", err)
	}

	seen := make(map[string]bool)
	for range ids {
		change := testutil.RequireReceive(t, subscription.Events(), receiveTimeout, "vote clear")
		if change.Kind != schema.ChangeUpdate || change.Player == nil || change.Player.HasVoted() {
			t.Fatalf("vote clear change = %+v", change)
		}
		seen[change.Player.ID] = true
	}
	for _, id := range ids {
		if !seen[id] {
			t.Fatalf("no clear event for %s", id)
		}
	}

	players, _ := s.ListPlayers(ctx, "room")
	for _, player := range players {
		if player.HasVoted() {
			t.Fatalf("player %s still has vote %q", player.Name, *player.Vote)
		}
	}
}
