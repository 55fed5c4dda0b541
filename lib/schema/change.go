// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package schema

// Table names the row type a Change applies to.
type Table string

const (
	TableRooms   Table = "rooms"
	TablePlayers Table = "players"
	TableTickets Table = "tickets"
)

// ChangeKind is the mutation a Change describes.
type ChangeKind string

const (
	ChangeInsert ChangeKind = "insert"
	ChangeUpdate ChangeKind = "update"
	ChangeDelete ChangeKind = "delete"

	// ChangeResync tells the receiver that events were dropped
	// before delivery and its copy of the room must be re-read.
	// Resync changes carry no row.
	ChangeResync ChangeKind = "resync"
)

// Change is one committed row mutation within a room. Inserts and
// updates carry the full row after the change in the field matching
// Table. Deletes carry only OldID.
type Change struct {
	Kind   ChangeKind `json:"kind"`
	Table  Table      `json:"table"`
	RoomID string     `json:"room_id"`

	Room   *Room   `json:"room,omitempty"`
	Player *Player `json:"player,omitempty"`
	Ticket *Ticket `json:"ticket,omitempty"`

	OldID string `json:"old_id,omitempty"`
}

// RowID returns the identifier of the row the change touches.
func (c Change) RowID() string {
	if c.Kind == ChangeDelete {
		return c.OldID
	}
	switch {
	case c.Room != nil:
		return c.Room.ID
	case c.Player != nil:
		return c.Player.ID
	case c.Ticket != nil:
		return c.Ticket.ID
	}
	return ""
}

// RoomChange builds a change carrying a copy of room.
func RoomChange(kind ChangeKind, room Room) Change {
	room = room.Clone()
	return Change{Kind: kind, Table: TableRooms, RoomID: room.ID, Room: &room}
}

// PlayerChange builds a change carrying a copy of player.
func PlayerChange(kind ChangeKind, player Player) Change {
	player = player.Clone()
	return Change{Kind: kind, Table: TablePlayers, RoomID: player.RoomID, Player: &player}
}

// TicketChange builds a change carrying a copy of ticket.
func TicketChange(kind ChangeKind, ticket Ticket) Change {
	ticket = ticket.Clone()
	return Change{Kind: kind, Table: TableTickets, RoomID: ticket.RoomID, Ticket: &ticket}
}

// DeleteChange builds a delete change for the row id in table.
func DeleteChange(table Table, roomID, id string) Change {
	return Change{Kind: ChangeDelete, Table: table, RoomID: roomID, OldID: id}
}
