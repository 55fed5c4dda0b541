// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"github.com/bureau-foundation/poker/lib/schema"
)

// Phase is the voting state of the room's active ticket.
type Phase int

const (
	// PhaseNoActiveTicket: the room points at no ticket, or at one
	// that no longer exists.
	PhaseNoActiveTicket Phase = iota

	// PhaseVotingHidden: players are voting; only each player's own
	// card is visible to them.
	PhaseVotingHidden

	// PhaseVotingRevealed: all votes are visible.
	PhaseVotingRevealed

	// PhaseViewOnlyCompleted: the active ticket is scored. Votes come
	// from its snapshot and cannot change.
	PhaseViewOnlyCompleted
)

func (p Phase) String() string {
	switch p {
	case PhaseNoActiveTicket:
		return "no active ticket"
	case PhaseVotingHidden:
		return "voting"
	case PhaseVotingRevealed:
		return "revealed"
	case PhaseViewOnlyCompleted:
		return "completed"
	}
	return "unknown"
}

// DisplayVote is one row of the vote table.
type DisplayVote struct {
	PlayerID string
	Name     string

	// Voted is true when the player has cast a vote.
	Voted bool

	// Vote is the card, empty when it is hidden or not cast.
	Vote string

	// Hidden is true when the player voted but the card is not yet
	// revealed to the viewer.
	Hidden bool
}

// View is the derived state of the room as the local participant
// sees it. It is a copy; callers may keep it.
type View struct {
	RoomID   string
	PlayerID string
	Phase    Phase

	Room    schema.Room
	Deck    []string
	Players []schema.Player
	Tickets []schema.Ticket

	// ActiveTicket is nil in PhaseNoActiveTicket.
	ActiveTicket *schema.Ticket

	// Self is the local player. It is the zero Player once evicted.
	Self     schema.Player
	IsLeader bool

	// Leader is the lowest-id leader, nil when the room has none.
	Leader *schema.Player

	// Selected is the local player's card, nil when none is chosen.
	Selected *string

	// Votes lists the votes for the active ticket: the snapshot for
	// a completed ticket, the live votes of non-spectators otherwise.
	Votes []DisplayVote

	// Average is the average of the visible votes, set only once the
	// votes are revealed or the ticket is completed.
	Average    string
	HasAverage bool

	Evicted bool
}

func (c *Controller) viewLocked() View {
	m := c.mirror
	view := View{
		RoomID:   c.roomID,
		PlayerID: c.playerID,
		Room:     m.room.Clone(),
		Deck:     m.room.Deck(c.defaultDeck),
		Players:  m.playerList(),
		Tickets:  m.ticketList(),
		Selected: cloneVote(c.selected),
		Evicted:  c.evicted,
	}
	if self, ok := m.player(c.playerID); ok {
		view.Self = self.Clone()
		view.IsLeader = self.IsLeader
	}
	if winner, _ := m.leaderWinner(); winner != "" {
		leader, _ := m.player(winner)
		view.Leader = &leader
	}

	active, ok := m.activeTicket()
	if !ok {
		view.Phase = PhaseNoActiveTicket
		return view
	}
	view.ActiveTicket = &active

	switch {
	case active.IsCompleted():
		view.Phase = PhaseViewOnlyCompleted
		for _, entry := range active.VotesSnapshot {
			view.Votes = append(view.Votes, DisplayVote{
				PlayerID: entry.PlayerID,
				Name:     entry.Name,
				Voted:    true,
				Vote:     entry.Vote,
			})
		}
	case m.room.IsRevealed:
		view.Phase = PhaseVotingRevealed
	default:
		view.Phase = PhaseVotingHidden
	}

	if view.Phase != PhaseViewOnlyCompleted {
		for _, player := range view.Players {
			if player.IsSpectator {
				continue
			}
			vote := DisplayVote{PlayerID: player.ID, Name: player.Name, Voted: player.HasVoted()}
			if vote.Voted {
				if view.Phase == PhaseVotingRevealed || player.ID == c.playerID {
					vote.Vote = *player.Vote
				} else {
					vote.Hidden = true
				}
			}
			view.Votes = append(view.Votes, vote)
		}
	}

	if view.Phase != PhaseVotingHidden {
		var values []string
		for _, vote := range view.Votes {
			if vote.Voted && !vote.Hidden {
				values = append(values, vote.Vote)
			}
		}
		view.Average, view.HasAverage = Average(values)
	}
	return view
}

// PlayerByName finds a player in the view by id or, failing that, by
// case-sensitive name.
func (v View) PlayerByName(key string) (schema.Player, bool) {
	for _, player := range v.Players {
		if player.ID == key {
			return player, true
		}
	}
	for _, player := range v.Players {
		if player.Name == key {
			return player, true
		}
	}
	return schema.Player{}, false
}

// TicketByRef finds a ticket by id, by issue key, or by 1-based
// position in the agenda.
func (v View) TicketByRef(ref string) (schema.Ticket, bool) {
	for _, ticket := range v.Tickets {
		if ticket.ID == ref {
			return ticket, true
		}
	}
	for _, ticket := range v.Tickets {
		if key, ok := ticket.IssueKey(); ok && key == ref {
			return ticket, true
		}
	}
	position := 0
	for _, r := range ref {
		if r < '0' || r > '9' {
			return schema.Ticket{}, false
		}
		position = position*10 + int(r-'0')
		if position > len(v.Tickets) {
			return schema.Ticket{}, false
		}
	}
	if position >= 1 && position <= len(v.Tickets) {
		return v.Tickets[position-1], true
	}
	return schema.Ticket{}, false
}
