// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sqlitestore

const schemaSQL = `
CREATE TABLE IF NOT EXISTS rooms (
	id               TEXT PRIMARY KEY,
	is_revealed      INTEGER NOT NULL DEFAULT 0,
	card_deck        BLOB,
	active_ticket_id TEXT,
	created_at       INTEGER NOT NULL,
	revision         INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS players (
	id           TEXT PRIMARY KEY,
	room_id      TEXT NOT NULL,
	name         TEXT NOT NULL,
	vote         TEXT,
	is_leader    INTEGER NOT NULL DEFAULT 0,
	is_spectator INTEGER NOT NULL DEFAULT 0,
	created_at   INTEGER NOT NULL,
	seq          INTEGER NOT NULL,
	revision     INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_players_room_seq ON players (room_id, seq);

CREATE TABLE IF NOT EXISTS tickets (
	id             TEXT PRIMARY KEY,
	room_id        TEXT NOT NULL,
	title          TEXT NOT NULL,
	status         TEXT NOT NULL,
	score          TEXT,
	votes_snapshot BLOB,
	created_at     INTEGER NOT NULL,
	seq            INTEGER NOT NULL,
	revision       INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_tickets_room_seq ON tickets (room_id, seq);
`

const (
	roomColumns   = "id, is_revealed, card_deck, active_ticket_id, created_at, revision"
	playerColumns = "id, room_id, name, vote, is_leader, is_spectator, created_at, seq, revision"
	ticketColumns = "id, room_id, title, status, score, votes_snapshot, created_at, seq, revision"
)
