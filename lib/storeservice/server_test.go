// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package storeservice

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/bureau-foundation/poker/lib/clock"
	"github.com/bureau-foundation/poker/lib/schema"
	"github.com/bureau-foundation/poker/lib/service"
	"github.com/bureau-foundation/poker/lib/store"
	"github.com/bureau-foundation/poker/lib/testutil"
	"github.com/bureau-foundation/poker/lib/version"
)

var epoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type fakePresence struct {
	mu     sync.Mutex
	left   []string
	rejoin []string
}

func (p *fakePresence) Leave(_ context.Context, roomID, playerID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.left = append(p.left, roomID+"/"+playerID)
	return nil
}

func (p *fakePresence) Rejoin(_ context.Context, roomID, playerID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rejoin = append(p.rejoin, roomID+"/"+playerID)
	return nil
}

func (p *fakePresence) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.left) - len(p.rejoin)
}

type harness struct {
	store    store.Store
	clock    *clock.FakeClock
	presence *fakePresence
	client   *service.ServiceClient
}

func startHarness(t *testing.T) *harness {
	t.Helper()
	fakeClock := clock.Fake(epoch)
	memory := store.NewMemory(store.MemoryConfig{Clock: fakeClock})
	presence := &fakePresence{}
	server, err := New(Config{Store: memory, Presence: presence, Clock: fakeClock})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	socketPath := filepath.Join(testutil.SocketDir(t), "store.sock")
	socketServer := service.NewSocketServer(socketPath, nil)
	server.Register(socketServer)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := socketServer.Serve(ctx); err != nil {
			t.Errorf("Serve: %v", err)
		}
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	testutil.RequireClosed(t, socketServer.Ready(), 5*time.Second, "server ready")

	return &harness{
		store:    memory,
		clock:    fakeClock,
		presence: presence,
		client:   service.NewServiceClient(socketPath),
	}
}

func requireCode(t *testing.T, err error, code string) {
	t.Helper()
	var serviceError *service.ServiceError
	if !errors.As(err, &serviceError) {
		t.Fatalf("error = %v (%T), want *service.ServiceError", err, err)
	}
	if serviceError.Code != code {
		t.Fatalf("code = %q, want %q (message %q)", serviceError.Code, code, serviceError.Message)
	}
}

func TestNewRequiresStore(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatal("New without Store succeeded")
	}
}

func TestStatus(t *testing.T) {
	h := startHarness(t)
	h.clock.Advance(90 * time.Second)
	if err := h.client.Call(context.Background(), ActionLeave, map[string]any{"room": "r", "player": "p"}, nil); err != nil {
		t.Fatalf("leave: %v", err)
	}

	var status StatusResponse
	if err := h.client.Call(context.Background(), ActionStatus, nil, &status); err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.UptimeSeconds != 90 {
		t.Errorf("uptime = %d, want 90", status.UptimeSeconds)
	}
	if status.PendingDepartures != 1 {
		t.Errorf("pending departures = %d, want 1", status.PendingDepartures)
	}
	if status.Version != version.Short() {
		t.Errorf("version = %q, want %q", status.Version, version.Short())
	}
}

func TestMissingFields(t *testing.T) {
	h := startHarness(t)
	ctx := context.Background()

	for _, action := range []string{ActionGetRoom, ActionListPlayers, ActionGetPlayer, ActionGetTicket, ActionCreatePlayer, ActionUpdateRoom} {
		err := h.client.Call(ctx, action, nil, nil)
		requireCode(t, err, service.CodeInvalid)
	}
}

func TestStoreErrorsCarryCodes(t *testing.T) {
	h := startHarness(t)
	ctx := context.Background()

	err := h.client.Call(ctx, ActionGetRoom, map[string]any{"room": "missing"}, nil)
	requireCode(t, err, service.CodeNotFound)

	if err := h.client.Call(ctx, ActionCreateRoom, map[string]any{"room": "r"}, nil); err != nil {
		t.Fatalf("create_room: %v", err)
	}
	err = h.client.Call(ctx, ActionCreateRoom, map[string]any{"room": "r"}, nil)
	requireCode(t, err, service.CodeConflict)

	err = h.client.Call(ctx, ActionCreateTicket, map[string]any{"room": "r", "title": " "}, nil)
	requireCode(t, err, service.CodeInvalid)
}

func TestCreateAndCount(t *testing.T) {
	h := startHarness(t)
	ctx := context.Background()

	if err := h.client.Call(ctx, ActionCreateRoom, map[string]any{"room": "r"}, nil); err != nil {
		t.Fatalf("create_room: %v", err)
	}
	var player schema.Player
	draft := schema.PlayerDraft{RoomID: "r", Name: "Ana", IsLeader: true}
	if err := h.client.Call(ctx, ActionCreatePlayer, map[string]any{"draft": draft}, &player); err != nil {
		t.Fatalf("create_player: %v", err)
	}
	if player.ID == "" || !player.IsLeader || player.Name != "Ana" {
		t.Fatalf("player = %+v", player)
	}

	var count CountResponse
	if err := h.client.Call(ctx, ActionCountPlayers, map[string]any{"room": "r"}, &count); err != nil {
		t.Fatalf("count_players: %v", err)
	}
	if count.Count != 1 {
		t.Fatalf("count = %d, want 1", count.Count)
	}
}

func TestLeaveAndRejoinReachPresence(t *testing.T) {
	h := startHarness(t)
	ctx := context.Background()
	fields := map[string]any{"room": "r", "player": "p1"}

	if err := h.client.Call(ctx, ActionLeave, fields, nil); err != nil {
		t.Fatalf("leave: %v", err)
	}
	if err := h.client.Call(ctx, ActionRejoin, fields, nil); err != nil {
		t.Fatalf("rejoin: %v", err)
	}
	h.presence.mu.Lock()
	defer h.presence.mu.Unlock()
	if len(h.presence.left) != 1 || h.presence.left[0] != "r/p1" {
		t.Fatalf("left = %v", h.presence.left)
	}
	if len(h.presence.rejoin) != 1 || h.presence.rejoin[0] != "r/p1" {
		t.Fatalf("rejoin = %v", h.presence.rejoin)
	}
}

func TestSubscribeStreamsChanges(t *testing.T) {
	h := startHarness(t)
	ctx := context.Background()
	if _, err := h.store.CreateRoom(ctx, "r", nil); err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}

	stream, err := h.client.OpenStream(ctx, ActionSubscribe, map[string]any{"room": "r"})
	if err != nil {
		t.Fatalf("OpenStream: %v", err)
	}
	defer stream.Close()

	var frame Frame
	if err := stream.Recv(&frame); err != nil {
		t.Fatalf("Recv(caught_up): %v", err)
	}
	if frame.Type != FrameCaughtUp {
		t.Fatalf("first frame = %q, want %q", frame.Type, FrameCaughtUp)
	}

	player, err := h.store.CreatePlayer(ctx, schema.PlayerDraft{RoomID: "r", Name: "Ana"})
	if err != nil {
		t.Fatalf("CreatePlayer: %v", err)
	}

	frame = Frame{}
	if err := stream.Recv(&frame); err != nil {
		t.Fatalf("Recv(change): %v", err)
	}
	if frame.Type != FrameChange || frame.Change == nil {
		t.Fatalf("frame = %+v, want change", frame)
	}
	if frame.Change.Kind != schema.ChangeInsert || frame.Change.RowID() != player.ID {
		t.Fatalf("change = %s %s, want insert %s", frame.Change.Kind, frame.Change.RowID(), player.ID)
	}
	if frame.Change.Player == nil || frame.Change.Player.Name != "Ana" {
		t.Fatalf("change player = %+v", frame.Change.Player)
	}
}

func TestSubscribeRequiresRoom(t *testing.T) {
	h := startHarness(t)
	stream, err := h.client.OpenStream(context.Background(), ActionSubscribe, nil)
	if err != nil {
		t.Fatalf("OpenStream: %v", err)
	}
	defer stream.Close()

	var frame Frame
	if err := stream.Recv(&frame); err != nil {
		t.Fatalf("Recv: %v", err)
	}
	if frame.Type != FrameError {
		t.Fatalf("frame type = %q, want %q", frame.Type, FrameError)
	}
}
