// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/bureau-foundation/poker/lib/schema"
)

// usableLocked rejects actions once the controller is terminal.
func (c *Controller) usableLocked() error {
	switch {
	case c.evicted:
		return ErrEvicted
	case c.closed:
		return ErrNotJoined
	}
	return nil
}

// selfLocked returns the local player's row.
func (c *Controller) selfLocked() (schema.Player, error) {
	if err := c.usableLocked(); err != nil {
		return schema.Player{}, err
	}
	self, ok := c.mirror.player(c.playerID)
	if !ok {
		return schema.Player{}, ErrEvicted
	}
	return self, nil
}

func (c *Controller) knownTicketLocked(ticketID string) (schema.Ticket, error) {
	if err := c.usableLocked(); err != nil {
		return schema.Ticket{}, err
	}
	ticket, ok := c.mirror.ticket(ticketID)
	if !ok {
		return schema.Ticket{}, fmt.Errorf("%w: %s", ErrUnknownTicket, ticketID)
	}
	return ticket, nil
}

func (c *Controller) viewOnlyLocked() bool {
	active, ok := c.mirror.activeTicket()
	return ok && active.IsCompleted()
}

func (c *Controller) fail(action string, err error) error {
	if !IsSilent(err) {
		c.logger.Warn("action failed", "action", action, "error", err)
	}
	return &ActionError{Action: action, Err: err}
}

// CastVote selects card for the active ticket, or clears the vote if
// card is already selected. Votes are refused on a completed ticket,
// after reveal, and for spectators.
func (c *Controller) CastVote(ctx context.Context, card string) error {
	const action = "cast vote"
	c.mu.Lock()
	self, err := c.selfLocked()
	if err == nil {
		switch {
		case self.IsSpectator:
			err = ErrSpectator
		case c.viewOnlyLocked():
			err = ErrViewOnly
		case c.mirror.room.IsRevealed:
			err = ErrRevealed
		case !slices.Contains(c.mirror.room.Deck(c.defaultDeck), card):
			err = fmt.Errorf("%w: %q", ErrUnknownCard, card)
		}
	}
	clearing := c.selected != nil && *c.selected == card
	c.mu.Unlock()
	if err != nil {
		return c.fail(action, err)
	}

	patch := schema.PlayerPatch{Vote: &card}
	if clearing {
		patch = schema.PlayerPatch{ClearVote: true}
	}
	if err := c.store.UpdatePlayer(ctx, c.playerID, patch); err != nil {
		return c.fail(action, err)
	}
	c.wroteSelf(patch)
	return nil
}

// Reveal shows every vote and returns the average of the numeric
// votes as the suggested score. ok is false when no vote is numeric.
// Nothing is saved until SaveScore.
func (c *Controller) Reveal(ctx context.Context) (average string, ok bool, err error) {
	const action = "reveal"
	c.mu.Lock()
	err = c.usableLocked()
	if err == nil && c.viewOnlyLocked() {
		err = ErrViewOnly
	}
	players := c.mirror.playerList()
	c.mu.Unlock()
	if err != nil {
		return "", false, c.fail(action, err)
	}

	revealed := true
	patch := schema.RoomPatch{IsRevealed: &revealed}
	if err := c.store.UpdateRoom(ctx, c.roomID, patch); err != nil {
		return "", false, c.fail(action, err)
	}
	c.wroteRoom(patch)
	average, ok = Average(liveVotes(players))
	return average, ok, nil
}

// Reset hides the votes again and clears every player's vote.
func (c *Controller) Reset(ctx context.Context) error {
	const action = "reset"
	c.mu.Lock()
	err := c.usableLocked()
	c.mu.Unlock()
	if err != nil {
		return c.fail(action, err)
	}

	revealed := false
	patch := schema.RoomPatch{IsRevealed: &revealed}
	if err := c.store.UpdateRoom(ctx, c.roomID, patch); err != nil {
		return c.fail(action, err)
	}
	c.wroteRoom(patch)
	if err := c.store.UpdateRoomPlayers(ctx, c.roomID, schema.ClearVotes); err != nil {
		return c.fail(action, err)
	}
	c.clearedVotes()
	return nil
}

// AddTicket appends a pending ticket to the agenda.
func (c *Controller) AddTicket(ctx context.Context, title string) (schema.Ticket, error) {
	const action = "add ticket"
	title = strings.TrimSpace(title)
	c.mu.Lock()
	err := c.usableLocked()
	c.mu.Unlock()
	if err == nil {
		err = schema.ValidateTitle(title)
	}
	if err != nil {
		return schema.Ticket{}, c.fail(action, err)
	}

	ticket, err := c.store.CreateTicket(ctx, c.roomID, title)
	if err != nil {
		return schema.Ticket{}, c.fail(action, err)
	}
	c.mu.Lock()
	if c.mirror.upsertTicket(ticket) {
		c.signalLocked()
	}
	c.mu.Unlock()
	return ticket, nil
}

// ImportTickets adds each title not already on the agenda, matching
// by exact title or by issue key. It stops at the first failure and
// returns the tickets created so far.
func (c *Controller) ImportTickets(ctx context.Context, titles []string) ([]schema.Ticket, error) {
	c.mu.Lock()
	err := c.usableLocked()
	seenTitles := make(map[string]bool)
	seenKeys := make(map[string]bool)
	for _, ticket := range c.mirror.tickets {
		seenTitles[ticket.Title] = true
		if key, ok := ticket.IssueKey(); ok {
			seenKeys[key] = true
		}
	}
	c.mu.Unlock()
	if err != nil {
		return nil, c.fail("import tickets", err)
	}

	var created []schema.Ticket
	for _, title := range titles {
		title = strings.TrimSpace(title)
		if title == "" || seenTitles[title] {
			continue
		}
		key, hasKey := schema.ParseIssueKey(title)
		if hasKey && seenKeys[key] {
			continue
		}
		ticket, err := c.AddTicket(ctx, title)
		if err != nil {
			return created, err
		}
		created = append(created, ticket)
		seenTitles[title] = true
		if hasKey {
			seenKeys[key] = true
		}
	}
	return created, nil
}

// RenameTicket changes a ticket's title.
func (c *Controller) RenameTicket(ctx context.Context, ticketID, title string) error {
	const action = "rename ticket"
	title = strings.TrimSpace(title)
	c.mu.Lock()
	_, err := c.knownTicketLocked(ticketID)
	c.mu.Unlock()
	if err == nil {
		err = schema.ValidateTitle(title)
	}
	if err != nil {
		return c.fail(action, err)
	}
	patch := schema.TicketPatch{Title: &title}
	if err := c.store.UpdateTicket(ctx, ticketID, patch); err != nil {
		return c.fail(action, err)
	}
	c.wroteTicket(ticketID, patch)
	return nil
}

// DeleteTicket removes a ticket. Deleting the active ticket first
// detaches it from the room and hides the votes.
func (c *Controller) DeleteTicket(ctx context.Context, ticketID string) error {
	const action = "delete ticket"
	c.mu.Lock()
	_, err := c.knownTicketLocked(ticketID)
	active := c.mirror.room.ActiveTicketID == ticketID
	c.mu.Unlock()
	if err != nil {
		return c.fail(action, err)
	}

	if active {
		revealed := false
		patch := schema.RoomPatch{ClearActiveTicket: true, IsRevealed: &revealed}
		if err := c.store.UpdateRoom(ctx, c.roomID, patch); err != nil {
			return c.fail(action, err)
		}
		c.wroteRoom(patch)
	}
	if err := c.store.DeleteTicket(ctx, ticketID); err != nil {
		return c.fail(action, err)
	}
	c.mu.Lock()
	if c.mirror.removeTicket(ticketID) {
		c.signalLocked()
	}
	c.mu.Unlock()
	return nil
}

// SetActiveTicket points the room at ticketID.
//
// Unless skipAutoSave is set, leaving a revealed, unscored ticket
// with numeric votes first saves their average as its score. An
// unfinished target starts a fresh round: votes hidden, its status
// active, every vote cleared. A completed target is shown view-only
// and votes are left alone.
func (c *Controller) SetActiveTicket(ctx context.Context, ticketID string, skipAutoSave bool) error {
	const action = "set active ticket"
	c.mu.Lock()
	target, err := c.knownTicketLocked(ticketID)
	var (
		saveID       string
		saveScore    string
		saveSnapshot []schema.VoteSnapshot
	)
	room := c.mirror.room
	if err == nil && !skipAutoSave && room.IsRevealed && room.ActiveTicketID != "" && room.ActiveTicketID != ticketID {
		if previous, ok := c.mirror.ticket(room.ActiveTicketID); ok && !previous.IsCompleted() {
			players := c.mirror.playerList()
			if average, ok := Average(liveVotes(players)); ok {
				saveID, saveScore, saveSnapshot = previous.ID, average, snapshotVotes(players)
			}
		}
	}
	c.mu.Unlock()
	if err != nil {
		return c.fail(action, err)
	}

	if saveID != "" {
		if err := c.writeScore(ctx, saveID, saveScore, saveSnapshot); err != nil {
			return c.fail(action, err)
		}
		c.logger.Info("auto-saved score", "ticket_id", saveID, "score", saveScore)
	}

	completed := target.IsCompleted()
	patch := schema.RoomPatch{ActiveTicketID: &ticketID}
	if !completed {
		revealed := false
		patch.IsRevealed = &revealed
	}
	if err := c.store.UpdateRoom(ctx, c.roomID, patch); err != nil {
		return c.fail(action, err)
	}
	c.wroteRoom(patch)
	if completed {
		return nil
	}
	activate := schema.TicketPatch{Status: schema.TicketActive}
	if err := c.store.UpdateTicket(ctx, ticketID, activate); err != nil {
		return c.fail(action, err)
	}
	c.wroteTicket(ticketID, activate)
	if err := c.store.UpdateRoomPlayers(ctx, c.roomID, schema.ClearVotes); err != nil {
		return c.fail(action, err)
	}
	c.clearedVotes()
	return nil
}

// writeScore completes ticketID with score and the given snapshot.
func (c *Controller) writeScore(ctx context.Context, ticketID, score string, snapshot []schema.VoteSnapshot) error {
	patch := schema.TicketPatch{
		Score:           &score,
		Status:          schema.TicketCompleted,
		VotesSnapshot:   snapshot,
		ReplaceSnapshot: true,
	}
	if err := c.store.UpdateTicket(ctx, ticketID, patch); err != nil {
		return err
	}
	c.wroteTicket(ticketID, patch)
	return nil
}

// SaveScore completes the active ticket with score and a snapshot of
// the current votes, then schedules a move to the next unscored
// ticket after the auto-advance delay. With no such ticket the room
// stays on the completed one.
func (c *Controller) SaveScore(ctx context.Context, score string) error {
	const action = "save score"
	score = strings.TrimSpace(score)
	c.mu.Lock()
	err := c.usableLocked()
	activeID := c.mirror.room.ActiveTicketID
	switch {
	case err != nil:
	case score == "":
		err = ErrEmptyScore
	case activeID == "":
		err = ErrNoActiveTicket
	default:
		if _, ok := c.mirror.ticket(activeID); !ok {
			err = ErrNoActiveTicket
		}
	}
	players := c.mirror.playerList()
	c.mu.Unlock()
	if err != nil {
		return c.fail(action, err)
	}

	if err := c.writeScore(ctx, activeID, score, snapshotVotes(players)); err != nil {
		return c.fail(action, err)
	}
	c.logger.Info("score saved", "ticket_id", activeID, "score", score)
	c.notify(Notice{Kind: NoticeScoreSaved, Message: "score saved: " + score})

	c.mu.Lock()
	if next, ok := nextTicket(c.mirror.ticketList(), activeID); ok && c.usableLocked() == nil {
		c.scheduleAdvanceLocked(next.ID)
	}
	c.mu.Unlock()
	return nil
}

func (c *Controller) scheduleAdvanceLocked(ticketID string) {
	if c.advanceTimer != nil {
		c.advanceTimer.Stop()
	}
	c.advanceTimer = c.clock.AfterFunc(c.autoAdvanceDelay, func() { c.advance(ticketID) })
}

func (c *Controller) advance(ticketID string) {
	c.mu.Lock()
	c.advanceTimer = nil
	stopped := c.usableLocked() != nil
	c.mu.Unlock()
	if stopped {
		return
	}

	ctx, cancel := context.WithTimeout(c.ctx, writeTimeout)
	defer cancel()
	if err := c.SetActiveTicket(ctx, ticketID, true); err != nil {
		if c.ctx.Err() != nil {
			return
		}
		c.notify(Notice{Kind: NoticeActionFailed, Message: "moving to the next ticket failed", Err: err})
		return
	}

	title := ticketID
	c.mu.Lock()
	if ticket, ok := c.mirror.ticket(ticketID); ok {
		title = ticket.Title
	}
	c.mu.Unlock()
	c.notify(Notice{Kind: NoticeAdvanced, Message: "next up: " + title})
}

// UpdateScore corrects the score of a completed ticket. Its status
// and vote snapshot are kept.
func (c *Controller) UpdateScore(ctx context.Context, ticketID, score string) error {
	const action = "update score"
	score = strings.TrimSpace(score)
	c.mu.Lock()
	ticket, err := c.knownTicketLocked(ticketID)
	c.mu.Unlock()
	switch {
	case err != nil:
	case score == "":
		err = ErrEmptyScore
	case !ticket.IsCompleted():
		err = fmt.Errorf("%w: %s", ErrNotCompleted, ticketID)
	}
	if err != nil {
		return c.fail(action, err)
	}
	patch := schema.TicketPatch{Score: &score}
	if err := c.store.UpdateTicket(ctx, ticketID, patch); err != nil {
		return c.fail(action, err)
	}
	c.wroteTicket(ticketID, patch)
	return nil
}

// Revote reopens a completed ticket: its score and snapshot are
// cleared, it becomes the active ticket with votes hidden, and every
// vote is cleared.
func (c *Controller) Revote(ctx context.Context, ticketID string) error {
	const action = "revote"
	c.mu.Lock()
	ticket, err := c.knownTicketLocked(ticketID)
	if err == nil && !ticket.IsCompleted() {
		err = fmt.Errorf("%w: %s", ErrNotCompleted, ticketID)
	}
	c.mu.Unlock()
	if err != nil {
		return c.fail(action, err)
	}

	revealed := false
	patch := schema.RoomPatch{ActiveTicketID: &ticketID, IsRevealed: &revealed}
	if err := c.store.UpdateRoom(ctx, c.roomID, patch); err != nil {
		return c.fail(action, err)
	}
	c.wroteRoom(patch)
	reopen := schema.TicketPatch{Status: schema.TicketActive, ClearScore: true, ReplaceSnapshot: true}
	if err := c.store.UpdateTicket(ctx, ticketID, reopen); err != nil {
		return c.fail(action, err)
	}
	c.wroteTicket(ticketID, reopen)
	if err := c.store.UpdateRoomPlayers(ctx, c.roomID, schema.ClearVotes); err != nil {
		return c.fail(action, err)
	}
	c.clearedVotes()
	c.logger.Info("revoting", "ticket_id", ticketID)
	return nil
}

// TransferLeadership hands leadership from the local player to
// playerID. The local flags flip at once; the target is promoted
// before the local player is demoted, so a failure in between leaves
// two leaders rather than none. A failed promotion reverts the flags.
func (c *Controller) TransferLeadership(ctx context.Context, playerID string) error {
	const action = "transfer leadership"
	c.mu.Lock()
	self, err := c.selfLocked()
	var target schema.Player
	if err == nil && !self.IsLeader {
		err = ErrNotLeader
	}
	if err == nil {
		var ok bool
		if target, ok = c.mirror.player(playerID); !ok {
			err = fmt.Errorf("%w: %s", ErrUnknownPlayer, playerID)
		}
	}
	if err != nil {
		c.mu.Unlock()
		return c.fail(action, err)
	}
	if playerID == c.playerID {
		c.mu.Unlock()
		return nil
	}
	optimisticSelf, optimisticTarget := self.Clone(), target.Clone()
	optimisticSelf.IsLeader, optimisticTarget.IsLeader = false, true
	c.mirror.players[self.ID] = optimisticSelf
	c.mirror.players[target.ID] = optimisticTarget
	c.signalLocked()
	c.mu.Unlock()

	promote, demote := true, false
	if err := c.store.UpdatePlayer(ctx, playerID, schema.PlayerPatch{IsLeader: &promote}); err != nil {
		c.mu.Lock()
		c.revertLocked(self)
		c.revertLocked(target)
		c.signalLocked()
		c.mu.Unlock()
		return c.fail(action, err)
	}
	if err := c.store.UpdatePlayer(ctx, c.playerID, schema.PlayerPatch{IsLeader: &demote}); err != nil {
		c.mu.Lock()
		c.revertLocked(self)
		c.reconcileLeadershipLocked()
		c.signalLocked()
		c.mu.Unlock()
		return c.fail(action, err)
	}
	c.logger.Info("leadership transferred", "to_player_id", playerID)
	c.notify(Notice{Kind: NoticeLeadershipTransferred, Message: "leadership transferred to " + target.Name})
	return nil
}

// revertLocked restores a row overwritten optimistically, unless a
// newer revision has arrived since.
func (c *Controller) revertLocked(previous schema.Player) {
	held, ok := c.mirror.players[previous.ID]
	if ok && held.Revision == previous.Revision {
		c.mirror.players[previous.ID] = previous
	}
}

// KickPlayer removes another player from the room. Leader only.
func (c *Controller) KickPlayer(ctx context.Context, playerID string) error {
	const action = "kick player"
	c.mu.Lock()
	self, err := c.selfLocked()
	switch {
	case err != nil:
	case !self.IsLeader:
		err = ErrNotLeader
	case playerID == c.playerID:
		err = ErrKickSelf
	default:
		if _, ok := c.mirror.player(playerID); !ok {
			err = fmt.Errorf("%w: %s", ErrUnknownPlayer, playerID)
		}
	}
	c.mu.Unlock()
	if err != nil {
		return c.fail(action, err)
	}
	if err := c.store.DeletePlayer(ctx, playerID); err != nil {
		return c.fail(action, err)
	}
	c.mu.Lock()
	if c.mirror.removePlayer(playerID) {
		c.signalLocked()
	}
	c.mu.Unlock()
	c.logger.Info("player kicked", "kicked_player_id", playerID)
	return nil
}

// UpdateDeck replaces the room's card deck.
func (c *Controller) UpdateDeck(ctx context.Context, deck []string) error {
	const action = "update deck"
	cards := make([]string, 0, len(deck))
	for _, card := range deck {
		cards = append(cards, strings.TrimSpace(card))
	}
	c.mu.Lock()
	err := c.usableLocked()
	c.mu.Unlock()
	if err == nil {
		err = schema.ValidateDeck(cards)
	}
	if err != nil {
		return c.fail(action, err)
	}
	patch := schema.RoomPatch{CardDeck: cards}
	if err := c.store.UpdateRoom(ctx, c.roomID, patch); err != nil {
		return c.fail(action, err)
	}
	c.wroteRoom(patch)
	return nil
}

// SetSpectator switches the local player between voting and
// watching. Becoming a spectator withdraws any vote.
func (c *Controller) SetSpectator(ctx context.Context, spectator bool) error {
	const action = "set spectator"
	c.mu.Lock()
	self, err := c.selfLocked()
	c.mu.Unlock()
	if err != nil {
		return c.fail(action, err)
	}
	if self.IsSpectator == spectator {
		return nil
	}

	patch := schema.PlayerPatch{IsSpectator: &spectator, ClearVote: spectator}
	if err := c.store.UpdatePlayer(ctx, c.playerID, patch); err != nil {
		return c.fail(action, err)
	}
	c.wroteSelf(patch)
	return nil
}
