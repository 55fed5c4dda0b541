// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"github.com/bureau-foundation/poker/lib/schema"
)

// mirror is the controller's local copy of one room. Every row,
// whether it arrives in the join snapshot, a resync, or a live
// change, is merged by identity: a row replaces the held copy unless
// the held copy carries a higher revision. Deleted ids are remembered
// so a late update cannot bring a row back.
type mirror struct {
	room    schema.Room
	players map[string]schema.Player
	tickets map[string]schema.Ticket

	deletedPlayers map[string]bool
	deletedTickets map[string]bool
}

func newMirror(room schema.Room) *mirror {
	return &mirror{
		room:           room,
		players:        make(map[string]schema.Player),
		tickets:        make(map[string]schema.Ticket),
		deletedPlayers: make(map[string]bool),
		deletedTickets: make(map[string]bool),
	}
}

// mergeResult says which parts of the mirror a merge touched.
type mergeResult struct {
	room    bool
	players bool
	tickets bool
}

func (r mergeResult) any() bool { return r.room || r.players || r.tickets }

func (m *mirror) setRoom(room schema.Room) bool {
	if room.Revision < m.room.Revision {
		return false
	}
	m.room = room.Clone()
	return true
}

func (m *mirror) upsertPlayer(player schema.Player) bool {
	if m.deletedPlayers[player.ID] {
		return false
	}
	if held, ok := m.players[player.ID]; ok && held.Revision > player.Revision {
		return false
	}
	m.players[player.ID] = player.Clone()
	return true
}

func (m *mirror) removePlayer(playerID string) bool {
	m.deletedPlayers[playerID] = true
	if _, ok := m.players[playerID]; !ok {
		return false
	}
	delete(m.players, playerID)
	return true
}

func (m *mirror) upsertTicket(ticket schema.Ticket) bool {
	if m.deletedTickets[ticket.ID] {
		return false
	}
	if held, ok := m.tickets[ticket.ID]; ok && held.Revision > ticket.Revision {
		return false
	}
	m.tickets[ticket.ID] = ticket.Clone()
	return true
}

func (m *mirror) removeTicket(ticketID string) bool {
	m.deletedTickets[ticketID] = true
	if _, ok := m.tickets[ticketID]; !ok {
		return false
	}
	delete(m.tickets, ticketID)
	return true
}

// The patch helpers fold a write the local client has committed into
// the held rows. Apply bumps each revision past the held one, so
// changes older than the write no longer replace it; the store's own
// change for the write arrives at the same or a higher revision.

func (m *mirror) patchRoom(patch schema.RoomPatch) {
	patch.Apply(&m.room)
}

func (m *mirror) patchPlayer(playerID string, patch schema.PlayerPatch) bool {
	player, ok := m.players[playerID]
	if !ok {
		return false
	}
	patch.Apply(&player)
	m.players[playerID] = player
	return true
}

// patchPlayers applies patch to every held player, as a room-wide
// player update does in the store.
func (m *mirror) patchPlayers(patch schema.PlayerPatch) {
	for id, player := range m.players {
		patch.Apply(&player)
		m.players[id] = player
	}
}

func (m *mirror) patchTicket(ticketID string, patch schema.TicketPatch) bool {
	ticket, ok := m.tickets[ticketID]
	if !ok {
		return false
	}
	patch.Apply(&ticket)
	m.tickets[ticketID] = ticket
	return true
}

// merge folds a fetched snapshot into the mirror. Rows missing from
// the snapshot were deleted since they were last seen.
func (m *mirror) merge(room schema.Room, players []schema.Player, tickets []schema.Ticket) mergeResult {
	var result mergeResult
	result.room = m.setRoom(room)

	present := make(map[string]bool, len(players))
	for _, player := range players {
		present[player.ID] = true
		if m.upsertPlayer(player) {
			result.players = true
		}
	}
	for id := range m.players {
		if !present[id] && m.removePlayer(id) {
			result.players = true
		}
	}

	present = make(map[string]bool, len(tickets))
	for _, ticket := range tickets {
		present[ticket.ID] = true
		if m.upsertTicket(ticket) {
			result.tickets = true
		}
	}
	for id := range m.tickets {
		if !present[id] && m.removeTicket(id) {
			result.tickets = true
		}
	}
	return result
}

// apply folds one live change into the mirror.
func (m *mirror) apply(change schema.Change) mergeResult {
	var result mergeResult
	switch change.Table {
	case schema.TableRooms:
		if change.Room != nil && change.Kind != schema.ChangeDelete {
			result.room = m.setRoom(*change.Room)
		}
	case schema.TablePlayers:
		switch {
		case change.Kind == schema.ChangeDelete:
			result.players = m.removePlayer(change.RowID())
		case change.Player != nil:
			result.players = m.upsertPlayer(*change.Player)
		}
	case schema.TableTickets:
		switch {
		case change.Kind == schema.ChangeDelete:
			result.tickets = m.removeTicket(change.RowID())
		case change.Ticket != nil:
			result.tickets = m.upsertTicket(*change.Ticket)
		}
	}
	return result
}

func (m *mirror) player(playerID string) (schema.Player, bool) {
	player, ok := m.players[playerID]
	return player, ok
}

func (m *mirror) ticket(ticketID string) (schema.Ticket, bool) {
	ticket, ok := m.tickets[ticketID]
	return ticket, ok
}

// activeTicket returns the ticket the room points at, if the mirror
// holds it.
func (m *mirror) activeTicket() (schema.Ticket, bool) {
	if m.room.ActiveTicketID == "" {
		return schema.Ticket{}, false
	}
	return m.ticket(m.room.ActiveTicketID)
}

// playerList returns the players in join order.
func (m *mirror) playerList() []schema.Player {
	players := make([]schema.Player, 0, len(m.players))
	for _, player := range m.players {
		players = append(players, player.Clone())
	}
	schema.SortPlayers(players)
	return players
}

// ticketList returns the tickets in creation order.
func (m *mirror) ticketList() []schema.Ticket {
	tickets := make([]schema.Ticket, 0, len(m.tickets))
	for _, ticket := range m.tickets {
		tickets = append(tickets, ticket.Clone())
	}
	schema.SortTickets(tickets)
	return tickets
}

// leaderWinner returns the id that keeps leadership when several
// players hold it: the lowest id. contested is false when at most one
// player is leader.
func (m *mirror) leaderWinner() (winner string, contested bool) {
	leaders := 0
	for _, player := range m.players {
		if !player.IsLeader {
			continue
		}
		leaders++
		if winner == "" || player.ID < winner {
			winner = player.ID
		}
	}
	return winner, leaders > 1
}
