// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"sync"

	"github.com/bureau-foundation/poker/lib/schema"
)

// Operation names accepted by Injector.Fail.
const (
	OpGetRoom           = "GetRoom"
	OpCreateRoom        = "CreateRoom"
	OpUpdateRoom        = "UpdateRoom"
	OpListPlayers       = "ListPlayers"
	OpCountPlayers      = "CountPlayers"
	OpGetPlayer         = "GetPlayer"
	OpCreatePlayer      = "CreatePlayer"
	OpUpdatePlayer      = "UpdatePlayer"
	OpUpdateRoomPlayers = "UpdateRoomPlayers"
	OpDeletePlayer      = "DeletePlayer"
	OpListTickets       = "ListTickets"
	OpGetTicket         = "GetTicket"
	OpCreateTicket      = "CreateTicket"
	OpUpdateTicket      = "UpdateTicket"
	OpDeleteTicket      = "DeleteTicket"
	OpSubscribe         = "Subscribe"
)

// Injector wraps a Store and fails selected operations on demand.
// Operations without an injected failure pass through. Tests use it
// to exercise the partial-failure paths of multi-write actions.
type Injector struct {
	inner Store

	mu       sync.Mutex
	failures map[string]injectedFailure
	calls    map[string]int
}

type injectedFailure struct {
	err error
	// remaining is the number of calls still to fail; -1 fails
	// every call until Clear.
	remaining int
}

var _ Store = (*Injector)(nil)

// NewInjector wraps inner.
func NewInjector(inner Store) *Injector {
	return &Injector{
		inner:    inner,
		failures: make(map[string]injectedFailure),
		calls:    make(map[string]int),
	}
}

// Fail makes every subsequent call to op return err.
func (i *Injector) Fail(op string, err error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.failures[op] = injectedFailure{err: err, remaining: -1}
}

// FailNext makes the next count calls to op return err.
func (i *Injector) FailNext(op string, count int, err error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.failures[op] = injectedFailure{err: err, remaining: count}
}

// Clear removes any injected failure for op.
func (i *Injector) Clear(op string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	delete(i.failures, op)
}

// Calls returns how many times op has been invoked, failed or not.
func (i *Injector) Calls(op string) int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.calls[op]
}

func (i *Injector) check(op string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.calls[op]++
	failure, ok := i.failures[op]
	if !ok {
		return nil
	}
	if failure.remaining > 0 {
		failure.remaining--
		if failure.remaining == 0 {
			delete(i.failures, op)
		} else {
			i.failures[op] = failure
		}
	}
	return failure.err
}

func (i *Injector) GetRoom(ctx context.Context, roomID string) (schema.Room, error) {
	if err := i.check(OpGetRoom); err != nil {
		return schema.Room{}, err
	}
	return i.inner.GetRoom(ctx, roomID)
}

func (i *Injector) CreateRoom(ctx context.Context, roomID string, deck []string) (schema.Room, error) {
	if err := i.check(OpCreateRoom); err != nil {
		return schema.Room{}, err
	}
	return i.inner.CreateRoom(ctx, roomID, deck)
}

func (i *Injector) UpdateRoom(ctx context.Context, roomID string, patch schema.RoomPatch) error {
	if err := i.check(OpUpdateRoom); err != nil {
		return err
	}
	return i.inner.UpdateRoom(ctx, roomID, patch)
}

func (i *Injector) ListPlayers(ctx context.Context, roomID string) ([]schema.Player, error) {
	if err := i.check(OpListPlayers); err != nil {
		return nil, err
	}
	return i.inner.ListPlayers(ctx, roomID)
}

func (i *Injector) CountPlayers(ctx context.Context, roomID string) (int, error) {
	if err := i.check(OpCountPlayers); err != nil {
		return 0, err
	}
	return i.inner.CountPlayers(ctx, roomID)
}

func (i *Injector) GetPlayer(ctx context.Context, playerID string) (schema.Player, error) {
	if err := i.check(OpGetPlayer); err != nil {
		return schema.Player{}, err
	}
	return i.inner.GetPlayer(ctx, playerID)
}

func (i *Injector) CreatePlayer(ctx context.Context, draft schema.PlayerDraft) (schema.Player, error) {
	if err := i.check(OpCreatePlayer); err != nil {
		return schema.Player{}, err
	}
	return i.inner.CreatePlayer(ctx, draft)
}

func (i *Injector) UpdatePlayer(ctx context.Context, playerID string, patch schema.PlayerPatch) error {
	if err := i.check(OpUpdatePlayer); err != nil {
		return err
	}
	return i.inner.UpdatePlayer(ctx, playerID, patch)
}

func (i *Injector) UpdateRoomPlayers(ctx context.Context, roomID string, patch schema.PlayerPatch) error {
	if err := i.check(OpUpdateRoomPlayers); err != nil {
		return err
	}
	return i.inner.UpdateRoomPlayers(ctx, roomID, patch)
}

func (i *Injector) DeletePlayer(ctx context.Context, playerID string) error {
	if err := i.check(OpDeletePlayer); err != nil {
		return err
	}
	return i.inner.DeletePlayer(ctx, playerID)
}

func (i *Injector) ListTickets(ctx context.Context, roomID string) ([]schema.Ticket, error) {
	if err := i.check(OpListTickets); err != nil {
		return nil, err
	}
	return i.inner.ListTickets(ctx, roomID)
}

func (i *Injector) GetTicket(ctx context.Context, ticketID string) (schema.Ticket, error) {
	if err := i.check(OpGetTicket); err != nil {
		return schema.Ticket{}, err
	}
	return i.inner.GetTicket(ctx, ticketID)
}

func (i *Injector) CreateTicket(ctx context.Context, roomID, title string) (schema.Ticket, error) {
	if err := i.check(OpCreateTicket); err != nil {
		return schema.Ticket{}, err
	}
	return i.inner.CreateTicket(ctx, roomID, title)
}

func (i *Injector) UpdateTicket(ctx context.Context, ticketID string, patch schema.TicketPatch) error {
	if err := i.check(OpUpdateTicket); err != nil {
		return err
	}
	return i.inner.UpdateTicket(ctx, ticketID, patch)
}

func (i *Injector) DeleteTicket(ctx context.Context, ticketID string) error {
	if err := i.check(OpDeleteTicket); err != nil {
		return err
	}
	return i.inner.DeleteTicket(ctx, ticketID)
}

func (i *Injector) Subscribe(ctx context.Context, roomID string) (Subscription, error) {
	if err := i.check(OpSubscribe); err != nil {
		return nil, err
	}
	return i.inner.Subscribe(ctx, roomID)
}
