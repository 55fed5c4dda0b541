// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import (
	"errors"
	"slices"
	"time"
)

// defaultDeck is used when a room is created without a deck and when
// a room row carries an empty one.
var defaultDeck = []string{"0", "1", "2", "3", "5", "8", "13", "21", "34", "55", "89", "?", "☕"}

// DefaultDeck returns a fresh copy of the default card deck.
func DefaultDeck() []string {
	return slices.Clone(defaultDeck)
}

// Room is one planning session, addressed by a caller-chosen
// identifier (typically the last path segment of a shared URL).
type Room struct {
	ID string `json:"id"`

	// IsRevealed is true once the votes for the active ticket have
	// been shown to everyone.
	IsRevealed bool `json:"is_revealed"`

	// CardDeck lists the vote values offered to players. Empty means
	// the caller's default deck applies.
	CardDeck []string `json:"card_deck,omitempty"`

	// ActiveTicketID is the ticket currently being estimated, or ""
	// when no ticket is active.
	ActiveTicketID string `json:"active_ticket_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`

	// Revision counts the updates applied to the row. A reader
	// holding a higher revision already has everything a lower one
	// carries.
	Revision int64 `json:"revision"`
}

// Deck returns the room's card deck, falling back to fallback when
// the room has none, and to DefaultDeck when both are empty.
func (r Room) Deck(fallback []string) []string {
	switch {
	case len(r.CardDeck) > 0:
		return slices.Clone(r.CardDeck)
	case len(fallback) > 0:
		return slices.Clone(fallback)
	}
	return DefaultDeck()
}

// RoomPatch is a partial update to a Room.
type RoomPatch struct {
	IsRevealed *bool    `json:"is_revealed,omitempty"`
	CardDeck   []string `json:"card_deck,omitempty"`

	ActiveTicketID    *string `json:"active_ticket_id,omitempty"`
	ClearActiveTicket bool    `json:"clear_active_ticket,omitempty"`
}

// IsEmpty reports whether the patch changes nothing.
func (p RoomPatch) IsEmpty() bool {
	return p.IsRevealed == nil && p.CardDeck == nil && p.ActiveTicketID == nil && !p.ClearActiveTicket
}

// Validate rejects contradictory or malformed patches.
func (p RoomPatch) Validate() error {
	if p.ActiveTicketID != nil && p.ClearActiveTicket {
		return errors.New("room patch: active_ticket_id and clear_active_ticket are mutually exclusive")
	}
	if p.ActiveTicketID != nil && *p.ActiveTicketID == "" {
		return errors.New("room patch: active_ticket_id is empty (use clear_active_ticket)")
	}
	if p.CardDeck != nil {
		if err := ValidateDeck(p.CardDeck); err != nil {
			return err
		}
	}
	return nil
}

// Apply writes the patch's fields into room and bumps its Revision.
func (p RoomPatch) Apply(room *Room) {
	if p.IsRevealed != nil {
		room.IsRevealed = *p.IsRevealed
	}
	if p.CardDeck != nil {
		room.CardDeck = slices.Clone(p.CardDeck)
	}
	if p.ActiveTicketID != nil {
		room.ActiveTicketID = *p.ActiveTicketID
	}
	if p.ClearActiveTicket {
		room.ActiveTicketID = ""
	}
	room.Revision++
}

// ValidateDeck checks that a deck has at least one card, no blank
// cards, and no duplicates.
func ValidateDeck(deck []string) error {
	if len(deck) == 0 {
		return errors.New("card deck is empty")
	}
	seen := make(map[string]bool, len(deck))
	for _, card := range deck {
		if card == "" {
			return errors.New("card deck contains a blank card")
		}
		if seen[card] {
			return errors.New("card deck contains duplicate card " + card)
		}
		seen[card] = true
	}
	return nil
}

// Clone returns a deep copy of r.
func (r Room) Clone() Room {
	r.CardDeck = slices.Clone(r.CardDeck)
	return r
}
