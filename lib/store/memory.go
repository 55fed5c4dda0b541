// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/bureau-foundation/poker/lib/clock"
	"github.com/bureau-foundation/poker/lib/replication"
	"github.com/bureau-foundation/poker/lib/schema"
)

// MemoryConfig configures a Memory store. Zero values select the
// real clock, a default hub, and random UUIDs.
type MemoryConfig struct {
	Clock clock.Clock
	Hub   *replication.Hub
	NewID func() string
}

// Memory is a Store held entirely in process memory. A single mutex
// serializes all writes, and changes are published before it is
// released.
type Memory struct {
	clock clock.Clock
	hub   *replication.Hub
	newID func() string

	mu      sync.Mutex
	seq     int64
	rooms   map[string]schema.Room
	players map[string]schema.Player
	tickets map[string]schema.Ticket
}

var _ Store = (*Memory)(nil)

// NewMemory returns an empty Memory store.
func NewMemory(config MemoryConfig) *Memory {
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.Hub == nil {
		config.Hub = replication.NewHub(0)
	}
	if config.NewID == nil {
		config.NewID = uuid.NewString
	}
	return &Memory{
		clock:   config.Clock,
		hub:     config.Hub,
		newID:   config.NewID,
		rooms:   make(map[string]schema.Room),
		players: make(map[string]schema.Player),
		tickets: make(map[string]schema.Ticket),
	}
}

func (m *Memory) GetRoom(_ context.Context, roomID string) (schema.Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	room, ok := m.rooms[roomID]
	if !ok {
		return schema.Room{}, fmt.Errorf("room %q: %w", roomID, ErrNotFound)
	}
	return room.Clone(), nil
}

func (m *Memory) CreateRoom(_ context.Context, roomID string, deck []string) (schema.Room, error) {
	if roomID == "" {
		return schema.Room{}, fmt.Errorf("room id is required: %w", ErrInvalid)
	}
	if deck != nil {
		if err := schema.ValidateDeck(deck); err != nil {
			return schema.Room{}, fmt.Errorf("%v: %w", err, ErrInvalid)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.rooms[roomID]; exists {
		return schema.Room{}, fmt.Errorf("room %q: %w", roomID, ErrConflict)
	}
	room := schema.Room{
		ID:        roomID,
		CardDeck:  slices.Clone(deck),
		CreatedAt: m.clock.Now().UTC(),
	}
	m.rooms[roomID] = room
	m.hub.Publish(schema.RoomChange(schema.ChangeInsert, room))
	return room.Clone(), nil
}

func (m *Memory) UpdateRoom(_ context.Context, roomID string, patch schema.RoomPatch) error {
	if err := patch.Validate(); err != nil {
		return fmt.Errorf("%v: %w", err, ErrInvalid)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	room, ok := m.rooms[roomID]
	if !ok {
		return fmt.Errorf("room %q: %w", roomID, ErrNotFound)
	}
	patch.Apply(&room)
	m.rooms[roomID] = room
	m.hub.Publish(schema.RoomChange(schema.ChangeUpdate, room))
	return nil
}

func (m *Memory) ListPlayers(_ context.Context, roomID string) ([]schema.Player, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.roomPlayersLocked(roomID), nil
}

func (m *Memory) roomPlayersLocked(roomID string) []schema.Player {
	players := []schema.Player{}
	for _, player := range m.players {
		if player.RoomID == roomID {
			players = append(players, player.Clone())
		}
	}
	schema.SortPlayers(players)
	return players
}

func (m *Memory) CountPlayers(_ context.Context, roomID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, player := range m.players {
		if player.RoomID == roomID {
			count++
		}
	}
	return count, nil
}

func (m *Memory) GetPlayer(_ context.Context, playerID string) (schema.Player, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	player, ok := m.players[playerID]
	if !ok {
		return schema.Player{}, fmt.Errorf("player %q: %w", playerID, ErrNotFound)
	}
	return player.Clone(), nil
}

func (m *Memory) CreatePlayer(_ context.Context, draft schema.PlayerDraft) (schema.Player, error) {
	if err := draft.Validate(); err != nil {
		return schema.Player{}, fmt.Errorf("%v: %w", err, ErrInvalid)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rooms[draft.RoomID]; !ok {
		return schema.Player{}, fmt.Errorf("room %q: %w", draft.RoomID, ErrNotFound)
	}
	m.seq++
	player := schema.Player{
		ID:          m.newID(),
		RoomID:      draft.RoomID,
		Name:        draft.Name,
		IsLeader:    draft.IsLeader,
		IsSpectator: draft.IsSpectator,
		CreatedAt:   m.clock.Now().UTC(),
		Seq:         m.seq,
	}
	if _, exists := m.players[player.ID]; exists {
		return schema.Player{}, fmt.Errorf("player %q: %w", player.ID, ErrConflict)
	}
	m.players[player.ID] = player
	m.hub.Publish(schema.PlayerChange(schema.ChangeInsert, player))
	return player.Clone(), nil
}

func (m *Memory) UpdatePlayer(_ context.Context, playerID string, patch schema.PlayerPatch) error {
	if err := patch.Validate(); err != nil {
		return fmt.Errorf("%v: %w", err, ErrInvalid)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	player, ok := m.players[playerID]
	if !ok {
		return fmt.Errorf("player %q: %w", playerID, ErrNotFound)
	}
	patch.Apply(&player)
	m.players[playerID] = player
	m.hub.Publish(schema.PlayerChange(schema.ChangeUpdate, player))
	return nil
}

func (m *Memory) UpdateRoomPlayers(_ context.Context, roomID string, patch schema.PlayerPatch) error {
	if err := patch.Validate(); err != nil {
		return fmt.Errorf("%v: %w", err, ErrInvalid)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, player := range m.roomPlayersLocked(roomID) {
		patch.Apply(&player)
		m.players[player.ID] = player
		m.hub.Publish(schema.PlayerChange(schema.ChangeUpdate, player))
	}
	return nil
}

func (m *Memory) DeletePlayer(_ context.Context, playerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	player, ok := m.players[playerID]
	if !ok {
		return fmt.Errorf("player %q: %w", playerID, ErrNotFound)
	}
	delete(m.players, playerID)
	m.hub.Publish(schema.DeleteChange(schema.TablePlayers, player.RoomID, playerID))
	return nil
}

func (m *Memory) ListTickets(_ context.Context, roomID string) ([]schema.Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tickets := []schema.Ticket{}
	for _, ticket := range m.tickets {
		if ticket.RoomID == roomID {
			tickets = append(tickets, ticket.Clone())
		}
	}
	schema.SortTickets(tickets)
	return tickets, nil
}

func (m *Memory) GetTicket(_ context.Context, ticketID string) (schema.Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ticket, ok := m.tickets[ticketID]
	if !ok {
		return schema.Ticket{}, fmt.Errorf("ticket %q: %w", ticketID, ErrNotFound)
	}
	return ticket.Clone(), nil
}

func (m *Memory) CreateTicket(_ context.Context, roomID, title string) (schema.Ticket, error) {
	if err := schema.ValidateTitle(title); err != nil {
		return schema.Ticket{}, fmt.Errorf("%v: %w", err, ErrInvalid)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rooms[roomID]; !ok {
		return schema.Ticket{}, fmt.Errorf("room %q: %w", roomID, ErrNotFound)
	}
	m.seq++
	ticket := schema.Ticket{
		ID:        m.newID(),
		RoomID:    roomID,
		Title:     title,
		Status:    schema.TicketPending,
		CreatedAt: m.clock.Now().UTC(),
		Seq:       m.seq,
	}
	if _, exists := m.tickets[ticket.ID]; exists {
		return schema.Ticket{}, fmt.Errorf("ticket %q: %w", ticket.ID, ErrConflict)
	}
	m.tickets[ticket.ID] = ticket
	m.hub.Publish(schema.TicketChange(schema.ChangeInsert, ticket))
	return ticket.Clone(), nil
}

func (m *Memory) UpdateTicket(_ context.Context, ticketID string, patch schema.TicketPatch) error {
	if err := patch.Validate(); err != nil {
		return fmt.Errorf("%v: %w", err, ErrInvalid)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	ticket, ok := m.tickets[ticketID]
	if !ok {
		return fmt.Errorf("ticket %q: %w", ticketID, ErrNotFound)
	}
	patch.Apply(&ticket)
	m.tickets[ticketID] = ticket
	m.hub.Publish(schema.TicketChange(schema.ChangeUpdate, ticket))
	return nil
}

func (m *Memory) DeleteTicket(_ context.Context, ticketID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ticket, ok := m.tickets[ticketID]
	if !ok {
		return fmt.Errorf("ticket %q: %w", ticketID, ErrNotFound)
	}
	delete(m.tickets, ticketID)
	m.hub.Publish(schema.DeleteChange(schema.TableTickets, ticket.RoomID, ticketID))
	return nil
}

func (m *Memory) Subscribe(_ context.Context, roomID string) (Subscription, error) {
	if roomID == "" {
		return nil, fmt.Errorf("room id is required: %w", ErrInvalid)
	}
	return m.hub.Subscribe(roomID), nil
}
