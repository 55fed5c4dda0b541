// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import (
	"cmp"
	"errors"
	"slices"
	"strings"
	"time"
)

// Player is one participant's membership in a room.
type Player struct {
	ID     string `json:"id"`
	RoomID string `json:"room_id"`
	Name   string `json:"name"`

	// Vote is the card this player selected for the active ticket,
	// or nil when they have not voted.
	Vote *string `json:"vote"`

	IsLeader    bool `json:"is_leader"`
	IsSpectator bool `json:"is_spectator"`

	CreatedAt time.Time `json:"created_at"`

	// Seq is assigned by the store in join order.
	Seq int64 `json:"seq"`

	// Revision counts the updates applied to the row.
	Revision int64 `json:"revision"`
}

// HasVoted reports whether the player holds a vote.
func (p Player) HasVoted() bool {
	return p.Vote != nil
}

// PlayerDraft carries the caller-supplied fields of a new player.
type PlayerDraft struct {
	RoomID      string `json:"room_id"`
	Name        string `json:"name"`
	IsLeader    bool   `json:"is_leader,omitempty"`
	IsSpectator bool   `json:"is_spectator,omitempty"`
}

// Validate requires a room and a non-blank name.
func (d PlayerDraft) Validate() error {
	if d.RoomID == "" {
		return errors.New("player: room_id is required")
	}
	if strings.TrimSpace(d.Name) == "" {
		return errors.New("player: name is required")
	}
	return nil
}

// PlayerPatch is a partial update to a Player.
type PlayerPatch struct {
	Name        *string `json:"name,omitempty"`
	Vote        *string `json:"vote,omitempty"`
	ClearVote   bool    `json:"clear_vote,omitempty"`
	IsLeader    *bool   `json:"is_leader,omitempty"`
	IsSpectator *bool   `json:"is_spectator,omitempty"`
}

// ClearVotes is the patch the reset, revote and ticket-switch
// operations apply to every player in a room.
var ClearVotes = PlayerPatch{ClearVote: true}

// IsEmpty reports whether the patch changes nothing.
func (p PlayerPatch) IsEmpty() bool {
	return p.Name == nil && p.Vote == nil && !p.ClearVote && p.IsLeader == nil && p.IsSpectator == nil
}

// Validate rejects contradictory or malformed patches.
func (p PlayerPatch) Validate() error {
	if p.Vote != nil && p.ClearVote {
		return errors.New("player patch: vote and clear_vote are mutually exclusive")
	}
	if p.Vote != nil && *p.Vote == "" {
		return errors.New("player patch: vote is empty (use clear_vote)")
	}
	if p.Name != nil && strings.TrimSpace(*p.Name) == "" {
		return errors.New("player patch: name is blank")
	}
	return nil
}

// Apply writes the patch's fields into player and bumps its Revision.
func (p PlayerPatch) Apply(player *Player) {
	if p.Name != nil {
		player.Name = *p.Name
	}
	if p.Vote != nil {
		vote := *p.Vote
		player.Vote = &vote
	}
	if p.ClearVote {
		player.Vote = nil
	}
	if p.IsLeader != nil {
		player.IsLeader = *p.IsLeader
	}
	if p.IsSpectator != nil {
		player.IsSpectator = *p.IsSpectator
	}
	player.Revision++
}

// SortPlayers orders players by join sequence.
func SortPlayers(players []Player) {
	slices.SortStableFunc(players, func(a, b Player) int {
		return cmp.Compare(a.Seq, b.Seq)
	})
}

// Clone returns a deep copy of p.
func (p Player) Clone() Player {
	if p.Vote != nil {
		vote := *p.Vote
		p.Vote = &vote
	}
	return p
}
