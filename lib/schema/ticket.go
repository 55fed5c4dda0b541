// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import (
	"cmp"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"
	"time"
)

// TicketStatus is the lifecycle state of a ticket.
type TicketStatus string

const (
	TicketPending   TicketStatus = "pending"
	TicketActive    TicketStatus = "active"
	TicketCompleted TicketStatus = "completed"
)

// IsKnown reports whether s is one of the defined statuses.
func (s TicketStatus) IsKnown() bool {
	switch s {
	case TicketPending, TicketActive, TicketCompleted:
		return true
	}
	return false
}

// Ticket is one work item in a room's agenda.
type Ticket struct {
	ID     string       `json:"id"`
	RoomID string       `json:"room_id"`
	Title  string       `json:"title"`
	Status TicketStatus `json:"status"`

	// Score is the agreed estimate, or nil while unscored.
	Score *string `json:"score"`

	// VotesSnapshot holds the individual votes captured when the
	// score was saved. Nil when no snapshot was taken.
	VotesSnapshot []VoteSnapshot `json:"votes_snapshot"`

	CreatedAt time.Time `json:"created_at"`

	// Seq is assigned by the store in creation order and fixes the
	// agenda order.
	Seq int64 `json:"seq"`

	// Revision counts the updates applied to the row.
	Revision int64 `json:"revision"`
}

// IsCompleted reports whether the ticket is completed.
func (t Ticket) IsCompleted() bool {
	return t.Status == TicketCompleted
}

// HasScore reports whether the ticket carries a non-empty score.
func (t Ticket) HasScore() bool {
	return t.Score != nil && *t.Score != ""
}

// IssueKey returns the tracker issue key prefixed to the title, if
// any. See ParseIssueKey.
func (t Ticket) IssueKey() (string, bool) {
	return ParseIssueKey(t.Title)
}

// VoteSnapshot is one player's vote as recorded at save time.
type VoteSnapshot struct {
	PlayerID string `json:"id"`
	Name     string `json:"name"`
	Vote     string `json:"vote"`
}

// TicketPatch is a partial update to a Ticket.
type TicketPatch struct {
	Title  *string      `json:"title,omitempty"`
	Status TicketStatus `json:"status,omitempty"`

	Score      *string `json:"score,omitempty"`
	ClearScore bool    `json:"clear_score,omitempty"`

	// When ReplaceSnapshot is set, VotesSnapshot replaces the stored
	// snapshot. A nil VotesSnapshot clears it.
	VotesSnapshot   []VoteSnapshot `json:"votes_snapshot,omitempty"`
	ReplaceSnapshot bool           `json:"replace_snapshot,omitempty"`
}

// IsEmpty reports whether the patch changes nothing.
func (p TicketPatch) IsEmpty() bool {
	return p.Title == nil && p.Status == "" && p.Score == nil && !p.ClearScore && !p.ReplaceSnapshot
}

// Validate rejects contradictory or malformed patches.
func (p TicketPatch) Validate() error {
	if p.Title != nil && strings.TrimSpace(*p.Title) == "" {
		return errors.New("ticket patch: title is blank")
	}
	if p.Status != "" && !p.Status.IsKnown() {
		return fmt.Errorf("ticket patch: unknown status %q", p.Status)
	}
	if p.Score != nil && p.ClearScore {
		return errors.New("ticket patch: score and clear_score are mutually exclusive")
	}
	if p.VotesSnapshot != nil && !p.ReplaceSnapshot {
		return errors.New("ticket patch: votes_snapshot requires replace_snapshot")
	}
	return nil
}

// Apply writes the patch's fields into ticket and bumps its Revision.
func (p TicketPatch) Apply(ticket *Ticket) {
	if p.Title != nil {
		ticket.Title = *p.Title
	}
	if p.Status != "" {
		ticket.Status = p.Status
	}
	if p.Score != nil {
		score := *p.Score
		ticket.Score = &score
	}
	if p.ClearScore {
		ticket.Score = nil
	}
	if p.ReplaceSnapshot {
		ticket.VotesSnapshot = slices.Clone(p.VotesSnapshot)
	}
	ticket.Revision++
}

// SortTickets orders tickets by creation sequence. CreatedAt is wall
// time and may step backwards, so it does not take part.
func SortTickets(tickets []Ticket) {
	slices.SortStableFunc(tickets, func(a, b Ticket) int {
		return cmp.Compare(a.Seq, b.Seq)
	})
}

// ValidateTitle requires a non-blank ticket title.
func ValidateTitle(title string) error {
	if strings.TrimSpace(title) == "" {
		return errors.New("ticket: title is required")
	}
	return nil
}

var issueKeyPattern = regexp.MustCompile(`^([A-Z]+-\d+):`)

// ParseIssueKey extracts an issue tracker key from a title of the
// form "ABC-123: summary". Titles without that prefix return false.
func ParseIssueKey(title string) (string, bool) {
	match := issueKeyPattern.FindStringSubmatch(title)
	if match == nil {
		return "", false
	}
	return match[1], true
}

// Clone returns a deep copy of t.
func (t Ticket) Clone() Ticket {
	if t.Score != nil {
		score := *t.Score
		t.Score = &score
	}
	t.VotesSnapshot = slices.Clone(t.VotesSnapshot)
	return t
}
