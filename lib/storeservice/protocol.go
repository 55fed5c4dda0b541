// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package storeservice

import "github.com/bureau-foundation/poker/lib/schema"

// Actions served on the store socket.
const (
	ActionStatus            = "status"
	ActionGetRoom           = "get_room"
	ActionCreateRoom        = "create_room"
	ActionUpdateRoom        = "update_room"
	ActionListPlayers       = "list_players"
	ActionCountPlayers      = "count_players"
	ActionGetPlayer         = "get_player"
	ActionCreatePlayer      = "create_player"
	ActionUpdatePlayer      = "update_player"
	ActionUpdateRoomPlayers = "update_room_players"
	ActionDeletePlayer      = "delete_player"
	ActionListTickets       = "list_tickets"
	ActionGetTicket         = "get_ticket"
	ActionCreateTicket      = "create_ticket"
	ActionUpdateTicket      = "update_ticket"
	ActionDeleteTicket      = "delete_ticket"
	ActionLeave             = "leave"
	ActionRejoin            = "rejoin"
	ActionSubscribe         = "subscribe"
)

// Request carries the fields of every action. Each action reads only
// the fields it needs.
type Request struct {
	Room   string `cbor:"room,omitempty"`
	Player string `cbor:"player,omitempty"`
	Ticket string `cbor:"ticket,omitempty"`
	Title  string `cbor:"title,omitempty"`

	Deck        []string            `cbor:"deck,omitempty"`
	Draft       *schema.PlayerDraft `cbor:"draft,omitempty"`
	RoomPatch   *schema.RoomPatch   `cbor:"room_patch,omitempty"`
	PlayerPatch *schema.PlayerPatch `cbor:"player_patch,omitempty"`
	TicketPatch *schema.TicketPatch `cbor:"ticket_patch,omitempty"`
}

// CountResponse is the reply to count_players.
type CountResponse struct {
	Count int `cbor:"count"`
}

// StatusResponse is the reply to status.
type StatusResponse struct {
	Version           string `cbor:"version"`
	UptimeSeconds     int64  `cbor:"uptime_seconds"`
	PendingDepartures int    `cbor:"pending_departures"`
}

// Subscribe stream frame types.
const (
	// FrameCaughtUp is the first frame: the subscription is
	// registered and every later commit will be delivered.
	FrameCaughtUp = "caught_up"

	// FrameChange carries one committed change.
	FrameChange = "change"

	// FrameResync reports dropped changes. The receiver must re-read
	// the room.
	FrameResync = "resync"

	// FrameHeartbeat keeps idle streams observably alive.
	FrameHeartbeat = "heartbeat"

	// FrameError is terminal; the server closes the stream after it.
	FrameError = "error"
)

// Frame is one CBOR value on the subscribe stream.
type Frame struct {
	Type    string         `cbor:"type"`
	Change  *schema.Change `cbor:"change,omitempty"`
	Message string         `cbor:"message,omitempty"`
}
