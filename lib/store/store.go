// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"errors"

	"github.com/bureau-foundation/poker/lib/schema"
)

var (
	// ErrNotFound is returned when the addressed row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when a create collides with an
	// existing row.
	ErrConflict = errors.New("already exists")

	// ErrInvalid is returned for malformed arguments and patches.
	ErrInvalid = errors.New("invalid argument")
)

// Store is the shared persistence layer every participant reads and
// writes. All methods are safe for concurrent use.
type Store interface {
	GetRoom(ctx context.Context, roomID string) (schema.Room, error)
	CreateRoom(ctx context.Context, roomID string, deck []string) (schema.Room, error)
	UpdateRoom(ctx context.Context, roomID string, patch schema.RoomPatch) error

	// ListPlayers returns the room's players ordered by join time.
	ListPlayers(ctx context.Context, roomID string) ([]schema.Player, error)
	CountPlayers(ctx context.Context, roomID string) (int, error)
	GetPlayer(ctx context.Context, playerID string) (schema.Player, error)
	CreatePlayer(ctx context.Context, draft schema.PlayerDraft) (schema.Player, error)
	UpdatePlayer(ctx context.Context, playerID string, patch schema.PlayerPatch) error

	// UpdateRoomPlayers applies patch to every player in the room
	// and publishes one update per player.
	UpdateRoomPlayers(ctx context.Context, roomID string, patch schema.PlayerPatch) error
	DeletePlayer(ctx context.Context, playerID string) error

	// ListTickets returns the room's tickets ordered by creation.
	ListTickets(ctx context.Context, roomID string) ([]schema.Ticket, error)
	GetTicket(ctx context.Context, ticketID string) (schema.Ticket, error)

	// CreateTicket inserts a pending ticket.
	CreateTicket(ctx context.Context, roomID, title string) (schema.Ticket, error)
	UpdateTicket(ctx context.Context, ticketID string, patch schema.TicketPatch) error
	DeleteTicket(ctx context.Context, ticketID string) error

	// Subscribe opens a change stream for roomID. Changes committed
	// after Subscribe returns are delivered. The caller must Close
	// the subscription.
	Subscribe(ctx context.Context, roomID string) (Subscription, error)
}

// Subscription is an open change stream for one room.
type Subscription interface {
	// Events delivers changes in commit order. It is not closed
	// when the subscription ends; select on Done as well.
	Events() <-chan schema.Change

	// Done is closed when the subscription ends, either through
	// Close or because the underlying transport failed.
	Done() <-chan struct{}

	// TakeResync reports, and clears, whether changes were dropped
	// since the last call. When true, the receiver's copy of the
	// room is stale and must be re-read.
	TakeResync() bool

	// Err returns the transport failure that ended the
	// subscription, or nil.
	Err() error

	Close() error
}
