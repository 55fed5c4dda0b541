// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"math"
	"strconv"
	"strings"

	"github.com/bureau-foundation/poker/lib/schema"
)

// Average returns the mean of the numeric, positive votes formatted
// to one decimal place. Cards such as "?", "☕" and "0" do not count.
// ok is false when no vote qualifies.
func Average(votes []string) (average string, ok bool) {
	var sum float64
	count := 0
	for _, vote := range votes {
		value, err := strconv.ParseFloat(strings.TrimSpace(vote), 64)
		if err != nil || math.IsNaN(value) || math.IsInf(value, 0) || value <= 0 {
			continue
		}
		sum += value
		count++
	}
	if count == 0 {
		return "", false
	}
	return strconv.FormatFloat(sum/float64(count), 'f', 1, 64), true
}

// liveVotes collects the votes of voting (non-spectator) players.
func liveVotes(players []schema.Player) []string {
	var votes []string
	for _, player := range players {
		if player.IsSpectator || player.Vote == nil {
			continue
		}
		votes = append(votes, *player.Vote)
	}
	return votes
}

// snapshotVotes captures who voted what, for saving with a score.
func snapshotVotes(players []schema.Player) []schema.VoteSnapshot {
	snapshot := []schema.VoteSnapshot{}
	for _, player := range players {
		if player.IsSpectator || player.Vote == nil {
			continue
		}
		snapshot = append(snapshot, schema.VoteSnapshot{
			PlayerID: player.ID,
			Name:     player.Name,
			Vote:     *player.Vote,
		})
	}
	return snapshot
}

// nextTicket finds the ticket to advance to after currentID is
// scored: the first unscored, non-completed ticket after it in
// creation order, wrapping around to the start.
func nextTicket(tickets []schema.Ticket, currentID string) (schema.Ticket, bool) {
	current := -1
	for i, ticket := range tickets {
		if ticket.ID == currentID {
			current = i
			break
		}
	}
	if current == -1 {
		return schema.Ticket{}, false
	}
	for offset := 1; offset < len(tickets); offset++ {
		candidate := tickets[(current+offset)%len(tickets)]
		if !candidate.IsCompleted() && !candidate.HasScore() {
			return candidate, true
		}
	}
	return schema.Ticket{}, false
}
