// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package storeclient is a store.Store that forwards every operation
// to a poker-store-service socket. It also implements the session
// Presence hooks through the service's leave and rejoin actions.
package storeclient

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/bureau-foundation/poker/lib/schema"
	"github.com/bureau-foundation/poker/lib/service"
	"github.com/bureau-foundation/poker/lib/store"
	"github.com/bureau-foundation/poker/lib/storeservice"
)

// Client talks to one store socket.
type Client struct {
	service *service.ServiceClient
	logger  *slog.Logger
}

var _ store.Store = (*Client)(nil)

// New returns a client for socketPath. A nil logger discards.
func New(socketPath string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Client{
		service: service.NewServiceClient(socketPath),
		logger:  logger,
	}
}

// call performs action and translates coded failures back into the
// store sentinels.
func (c *Client) call(ctx context.Context, action string, request storeservice.Request, result any) error {
	fields := map[string]any{}
	if request.Room != "" {
		fields["room"] = request.Room
	}
	if request.Player != "" {
		fields["player"] = request.Player
	}
	if request.Ticket != "" {
		fields["ticket"] = request.Ticket
	}
	if request.Title != "" {
		fields["title"] = request.Title
	}
	if request.Deck != nil {
		fields["deck"] = request.Deck
	}
	if request.Draft != nil {
		fields["draft"] = request.Draft
	}
	if request.RoomPatch != nil {
		fields["room_patch"] = request.RoomPatch
	}
	if request.PlayerPatch != nil {
		fields["player_patch"] = request.PlayerPatch
	}
	if request.TicketPatch != nil {
		fields["ticket_patch"] = request.TicketPatch
	}

	err := c.service.Call(ctx, action, fields, result)
	if err == nil {
		return nil
	}
	var serviceError *service.ServiceError
	if !errors.As(err, &serviceError) {
		return err
	}
	switch serviceError.Code {
	case service.CodeNotFound:
		return fmt.Errorf("%s: %w", serviceError.Message, store.ErrNotFound)
	case service.CodeConflict:
		return fmt.Errorf("%s: %w", serviceError.Message, store.ErrConflict)
	case service.CodeInvalid:
		return fmt.Errorf("%s: %w", serviceError.Message, store.ErrInvalid)
	}
	return err
}

// Status reports service uptime and pending departures.
func (c *Client) Status(ctx context.Context) (storeservice.StatusResponse, error) {
	var status storeservice.StatusResponse
	err := c.call(ctx, storeservice.ActionStatus, storeservice.Request{}, &status)
	return status, err
}

func (c *Client) GetRoom(ctx context.Context, roomID string) (schema.Room, error) {
	var room schema.Room
	err := c.call(ctx, storeservice.ActionGetRoom, storeservice.Request{Room: roomID}, &room)
	return room, err
}

func (c *Client) CreateRoom(ctx context.Context, roomID string, deck []string) (schema.Room, error) {
	var room schema.Room
	err := c.call(ctx, storeservice.ActionCreateRoom, storeservice.Request{Room: roomID, Deck: deck}, &room)
	return room, err
}

func (c *Client) UpdateRoom(ctx context.Context, roomID string, patch schema.RoomPatch) error {
	return c.call(ctx, storeservice.ActionUpdateRoom, storeservice.Request{Room: roomID, RoomPatch: &patch}, nil)
}

func (c *Client) ListPlayers(ctx context.Context, roomID string) ([]schema.Player, error) {
	players := []schema.Player{}
	err := c.call(ctx, storeservice.ActionListPlayers, storeservice.Request{Room: roomID}, &players)
	return players, err
}

func (c *Client) CountPlayers(ctx context.Context, roomID string) (int, error) {
	var response storeservice.CountResponse
	err := c.call(ctx, storeservice.ActionCountPlayers, storeservice.Request{Room: roomID}, &response)
	return response.Count, err
}

func (c *Client) GetPlayer(ctx context.Context, playerID string) (schema.Player, error) {
	var player schema.Player
	err := c.call(ctx, storeservice.ActionGetPlayer, storeservice.Request{Player: playerID}, &player)
	return player, err
}

func (c *Client) CreatePlayer(ctx context.Context, draft schema.PlayerDraft) (schema.Player, error) {
	var player schema.Player
	err := c.call(ctx, storeservice.ActionCreatePlayer, storeservice.Request{Draft: &draft}, &player)
	return player, err
}

func (c *Client) UpdatePlayer(ctx context.Context, playerID string, patch schema.PlayerPatch) error {
	return c.call(ctx, storeservice.ActionUpdatePlayer, storeservice.Request{Player: playerID, PlayerPatch: &patch}, nil)
}

func (c *Client) UpdateRoomPlayers(ctx context.Context, roomID string, patch schema.PlayerPatch) error {
	return c.call(ctx, storeservice.ActionUpdateRoomPlayers, storeservice.Request{Room: roomID, PlayerPatch: &patch}, nil)
}

func (c *Client) DeletePlayer(ctx context.Context, playerID string) error {
	return c.call(ctx, storeservice.ActionDeletePlayer, storeservice.Request{Player: playerID}, nil)
}

func (c *Client) ListTickets(ctx context.Context, roomID string) ([]schema.Ticket, error) {
	tickets := []schema.Ticket{}
	err := c.call(ctx, storeservice.ActionListTickets, storeservice.Request{Room: roomID}, &tickets)
	return tickets, err
}

func (c *Client) GetTicket(ctx context.Context, ticketID string) (schema.Ticket, error) {
	var ticket schema.Ticket
	err := c.call(ctx, storeservice.ActionGetTicket, storeservice.Request{Ticket: ticketID}, &ticket)
	return ticket, err
}

func (c *Client) CreateTicket(ctx context.Context, roomID, title string) (schema.Ticket, error) {
	var ticket schema.Ticket
	err := c.call(ctx, storeservice.ActionCreateTicket, storeservice.Request{Room: roomID, Title: title}, &ticket)
	return ticket, err
}

func (c *Client) UpdateTicket(ctx context.Context, ticketID string, patch schema.TicketPatch) error {
	return c.call(ctx, storeservice.ActionUpdateTicket, storeservice.Request{Ticket: ticketID, TicketPatch: &patch}, nil)
}

func (c *Client) DeleteTicket(ctx context.Context, ticketID string) error {
	return c.call(ctx, storeservice.ActionDeleteTicket, storeservice.Request{Ticket: ticketID}, nil)
}

// Leave asks the service to remove playerID after its grace period.
func (c *Client) Leave(ctx context.Context, roomID, playerID string) error {
	return c.call(ctx, storeservice.ActionLeave, storeservice.Request{Room: roomID, Player: playerID}, nil)
}

// Rejoin cancels a pending removal of playerID.
func (c *Client) Rejoin(ctx context.Context, roomID, playerID string) error {
	return c.call(ctx, storeservice.ActionRejoin, storeservice.Request{Room: roomID, Player: playerID}, nil)
}
