// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sqlitestore

import (
	"fmt"
	"time"

	"zombiezen.com/go/sqlite"

	"github.com/bureau-foundation/poker/lib/codec"
	"github.com/bureau-foundation/poker/lib/schema"
)

func scanRoom(stmt *sqlite.Stmt) (schema.Room, error) {
	room := schema.Room{
		ID:             stmt.ColumnText(0),
		IsRevealed:     stmt.ColumnBool(1),
		ActiveTicketID: stmt.ColumnText(3),
		CreatedAt:      time.Unix(0, stmt.ColumnInt64(4)).UTC(),
		Revision:       stmt.ColumnInt64(5),
	}
	if blob := columnBlob(stmt, 2); blob != nil {
		if err := codec.Unmarshal(blob, &room.CardDeck); err != nil {
			return schema.Room{}, fmt.Errorf("decoding card deck of room %s: %w", room.ID, err)
		}
	}
	return room, nil
}

func scanPlayer(stmt *sqlite.Stmt) schema.Player {
	return schema.Player{
		ID:          stmt.ColumnText(0),
		RoomID:      stmt.ColumnText(1),
		Name:        stmt.ColumnText(2),
		Vote:        columnNullableText(stmt, 3),
		IsLeader:    stmt.ColumnBool(4),
		IsSpectator: stmt.ColumnBool(5),
		CreatedAt:   time.Unix(0, stmt.ColumnInt64(6)).UTC(),
		Seq:         stmt.ColumnInt64(7),
		Revision:    stmt.ColumnInt64(8),
	}
}

func scanTicket(stmt *sqlite.Stmt) (schema.Ticket, error) {
	ticket := schema.Ticket{
		ID:        stmt.ColumnText(0),
		RoomID:    stmt.ColumnText(1),
		Title:     stmt.ColumnText(2),
		Status:    schema.TicketStatus(stmt.ColumnText(3)),
		Score:     columnNullableText(stmt, 4),
		CreatedAt: time.Unix(0, stmt.ColumnInt64(6)).UTC(),
		Seq:       stmt.ColumnInt64(7),
		Revision:  stmt.ColumnInt64(8),
	}
	if blob := columnBlob(stmt, 5); blob != nil {
		if err := codec.Unmarshal(blob, &ticket.VotesSnapshot); err != nil {
			return schema.Ticket{}, fmt.Errorf("decoding votes snapshot of ticket %s: %w", ticket.ID, err)
		}
		if ticket.VotesSnapshot == nil {
			ticket.VotesSnapshot = []schema.VoteSnapshot{}
		}
	}
	return ticket, nil
}

func columnNullableText(stmt *sqlite.Stmt, col int) *string {
	if stmt.ColumnType(col) == sqlite.TypeNull {
		return nil
	}
	text := stmt.ColumnText(col)
	return &text
}

func columnBlob(stmt *sqlite.Stmt, col int) []byte {
	if stmt.ColumnType(col) == sqlite.TypeNull {
		return nil
	}
	data := make([]byte, stmt.ColumnLen(col))
	stmt.ColumnBytes(col, data)
	return data
}

// nullableText converts an optional string to a bind argument.
func nullableText(value *string) any {
	if value == nil {
		return nil
	}
	return *value
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func encodeDeck(deck []string) (any, error) {
	if deck == nil {
		return nil, nil
	}
	return codec.Marshal(deck)
}

func encodeSnapshot(snapshot []schema.VoteSnapshot) (any, error) {
	if snapshot == nil {
		return nil, nil
	}
	return codec.Marshal(snapshot)
}

func boolArg(value bool) int {
	if value {
		return 1
	}
	return 0
}
