// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sqlitestore

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/bureau-foundation/poker/lib/clock"
	"github.com/bureau-foundation/poker/lib/replication"
	"github.com/bureau-foundation/poker/lib/schema"
	"github.com/bureau-foundation/poker/lib/sqlitepool"
	"github.com/bureau-foundation/poker/lib/store"
)

// Config configures a Store. Path is required.
type Config struct {
	Path     string
	PoolSize int
	Logger   *slog.Logger

	// Clock stamps created_at. Defaults to the real clock.
	Clock clock.Clock

	// Hub receives committed changes. Defaults to a private hub.
	Hub *replication.Hub

	// NewID generates row identifiers. Defaults to random UUIDs.
	NewID func() string
}

// Store is a store.Store backed by SQLite.
type Store struct {
	pool   *sqlitepool.Pool
	hub    *replication.Hub
	clock  clock.Clock
	newID  func() string
	logger *slog.Logger

	writeMu sync.Mutex
}

var _ store.Store = (*Store)(nil)

// Open opens (creating if needed) the database at cfg.Path.
func Open(cfg Config) (*Store, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("poker store: Path is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.Hub == nil {
		cfg.Hub = replication.NewHub(0)
	}
	if cfg.NewID == nil {
		cfg.NewID = uuid.NewString
	}

	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:     cfg.Path,
		PoolSize: cfg.PoolSize,
		Logger:   cfg.Logger,
		OnConnect: func(conn *sqlite.Conn) error {
			return sqlitex.ExecuteScript(conn, schemaSQL, nil)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("poker store: %w", err)
	}

	return &Store{
		pool:   pool,
		hub:    cfg.Hub,
		clock:  cfg.Clock,
		newID:  cfg.NewID,
		logger: cfg.Logger,
	}, nil
}

// Close closes the connection pool.
func (s *Store) Close() error {
	return s.pool.Close()
}

// write runs fn in an immediate transaction and publishes the
// changes it returns once the transaction commits.
func (s *Store) write(ctx context.Context, fn func(conn *sqlite.Conn) ([]schema.Change, error)) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	var changes []schema.Change
	err := s.pool.Immediate(ctx, func(conn *sqlite.Conn) error {
		var err error
		changes, err = fn(conn)
		return err
	})
	if err != nil {
		return err
	}
	for _, change := range changes {
		s.hub.Publish(change)
	}
	return nil
}

func isConstraintConflict(err error) bool {
	switch sqlite.ErrCode(err) {
	case sqlite.ResultConstraintPrimaryKey, sqlite.ResultConstraintUnique:
		return true
	}
	return false
}

// --- Rooms ---

func (s *Store) GetRoom(ctx context.Context, roomID string) (schema.Room, error) {
	var room schema.Room
	err := s.pool.Read(ctx, func(conn *sqlite.Conn) error {
		var err error
		room, err = getRoom(conn, roomID)
		return err
	})
	return room, err
}

func getRoom(conn *sqlite.Conn, roomID string) (schema.Room, error) {
	var (
		room  schema.Room
		found bool
	)
	err := sqlitex.Execute(conn, "SELECT "+roomColumns+" FROM rooms WHERE id = ?", &sqlitex.ExecOptions{
		Args: []any{roomID},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			var err error
			room, err = scanRoom(stmt)
			found = true
			return err
		},
	})
	if err != nil {
		return schema.Room{}, fmt.Errorf("poker store: reading room %s: %w", roomID, err)
	}
	if !found {
		return schema.Room{}, fmt.Errorf("room %q: %w", roomID, store.ErrNotFound)
	}
	return room, nil
}

func (s *Store) CreateRoom(ctx context.Context, roomID string, deck []string) (schema.Room, error) {
	if roomID == "" {
		return schema.Room{}, fmt.Errorf("room id is required: %w", store.ErrInvalid)
	}
	if deck != nil {
		if err := schema.ValidateDeck(deck); err != nil {
			return schema.Room{}, fmt.Errorf("%v: %w", err, store.ErrInvalid)
		}
	}
	deckBlob, err := encodeDeck(deck)
	if err != nil {
		return schema.Room{}, fmt.Errorf("poker store: encoding deck: %w", err)
	}

	room := schema.Room{
		ID:        roomID,
		CardDeck:  deck,
		CreatedAt: s.clock.Now().UTC(),
	}
	err = s.write(ctx, func(conn *sqlite.Conn) ([]schema.Change, error) {
		err := sqlitex.Execute(conn,
			"INSERT INTO rooms (id, is_revealed, card_deck, active_ticket_id, created_at) VALUES (?, 0, ?, NULL, ?)",
			&sqlitex.ExecOptions{Args: []any{roomID, deckBlob, room.CreatedAt.UnixNano()}})
		if err != nil {
			if isConstraintConflict(err) {
				return nil, fmt.Errorf("room %q: %w", roomID, store.ErrConflict)
			}
			return nil, fmt.Errorf("poker store: inserting room %s: %w", roomID, err)
		}
		return []schema.Change{schema.RoomChange(schema.ChangeInsert, room)}, nil
	})
	if err != nil {
		return schema.Room{}, err
	}
	return room.Clone(), nil
}

func (s *Store) UpdateRoom(ctx context.Context, roomID string, patch schema.RoomPatch) error {
	if err := patch.Validate(); err != nil {
		return fmt.Errorf("%v: %w", err, store.ErrInvalid)
	}
	return s.write(ctx, func(conn *sqlite.Conn) ([]schema.Change, error) {
		room, err := getRoom(conn, roomID)
		if err != nil {
			return nil, err
		}
		patch.Apply(&room)
		deckBlob, err := encodeDeck(room.CardDeck)
		if err != nil {
			return nil, fmt.Errorf("poker store: encoding deck: %w", err)
		}
		err = sqlitex.Execute(conn,
			"UPDATE rooms SET is_revealed = ?, card_deck = ?, active_ticket_id = ?, revision = ? WHERE id = ?",
			&sqlitex.ExecOptions{Args: []any{
				boolArg(room.IsRevealed), deckBlob, nullableString(room.ActiveTicketID), room.Revision, roomID,
			}})
		if err != nil {
			return nil, fmt.Errorf("poker store: updating room %s: %w", roomID, err)
		}
		return []schema.Change{schema.RoomChange(schema.ChangeUpdate, room)}, nil
	})
}

// --- Players ---

func (s *Store) ListPlayers(ctx context.Context, roomID string) ([]schema.Player, error) {
	var players []schema.Player
	err := s.pool.Read(ctx, func(conn *sqlite.Conn) error {
		var err error
		players, err = listPlayers(conn, roomID)
		return err
	})
	return players, err
}

func listPlayers(conn *sqlite.Conn, roomID string) ([]schema.Player, error) {
	players := []schema.Player{}
	err := sqlitex.Execute(conn,
		"SELECT "+playerColumns+" FROM players WHERE room_id = ? ORDER BY seq",
		&sqlitex.ExecOptions{
			Args: []any{roomID},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				players = append(players, scanPlayer(stmt))
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("poker store: listing players of %s: %w", roomID, err)
	}
	return players, nil
}

func (s *Store) CountPlayers(ctx context.Context, roomID string) (int, error) {
	var count int
	err := s.pool.Read(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, "SELECT COUNT(*) FROM players WHERE room_id = ?", &sqlitex.ExecOptions{
			Args: []any{roomID},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				count = stmt.ColumnInt(0)
				return nil
			},
		})
	})
	if err != nil {
		return 0, fmt.Errorf("poker store: counting players of %s: %w", roomID, err)
	}
	return count, nil
}

func (s *Store) GetPlayer(ctx context.Context, playerID string) (schema.Player, error) {
	var player schema.Player
	err := s.pool.Read(ctx, func(conn *sqlite.Conn) error {
		var err error
		player, err = getPlayer(conn, playerID)
		return err
	})
	return player, err
}

func getPlayer(conn *sqlite.Conn, playerID string) (schema.Player, error) {
	var (
		player schema.Player
		found  bool
	)
	err := sqlitex.Execute(conn, "SELECT "+playerColumns+" FROM players WHERE id = ?", &sqlitex.ExecOptions{
		Args: []any{playerID},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			player = scanPlayer(stmt)
			found = true
			return nil
		},
	})
	if err != nil {
		return schema.Player{}, fmt.Errorf("poker store: reading player %s: %w", playerID, err)
	}
	if !found {
		return schema.Player{}, fmt.Errorf("player %q: %w", playerID, store.ErrNotFound)
	}
	return player, nil
}

func (s *Store) CreatePlayer(ctx context.Context, draft schema.PlayerDraft) (schema.Player, error) {
	if err := draft.Validate(); err != nil {
		return schema.Player{}, fmt.Errorf("%v: %w", err, store.ErrInvalid)
	}

	var player schema.Player
	err := s.write(ctx, func(conn *sqlite.Conn) ([]schema.Change, error) {
		if _, err := getRoom(conn, draft.RoomID); err != nil {
			return nil, err
		}
		seq, err := nextSeq(conn, "players")
		if err != nil {
			return nil, err
		}
		player = schema.Player{
			ID:          s.newID(),
			RoomID:      draft.RoomID,
			Name:        draft.Name,
			IsLeader:    draft.IsLeader,
			IsSpectator: draft.IsSpectator,
			CreatedAt:   s.clock.Now().UTC(),
			Seq:         seq,
		}
		err = sqlitex.Execute(conn,
			"INSERT INTO players ("+playerColumns+") VALUES (?, ?, ?, NULL, ?, ?, ?, ?, 0)",
			&sqlitex.ExecOptions{Args: []any{
				player.ID, player.RoomID, player.Name,
				boolArg(player.IsLeader), boolArg(player.IsSpectator),
				player.CreatedAt.UnixNano(), player.Seq,
			}})
		if err != nil {
			if isConstraintConflict(err) {
				return nil, fmt.Errorf("player %q: %w", player.ID, store.ErrConflict)
			}
			return nil, fmt.Errorf("poker store: inserting player: %w", err)
		}
		return []schema.Change{schema.PlayerChange(schema.ChangeInsert, player)}, nil
	})
	if err != nil {
		return schema.Player{}, err
	}
	return player, nil
}

func writePlayer(conn *sqlite.Conn, player schema.Player) error {
	err := sqlitex.Execute(conn,
		"UPDATE players SET name = ?, vote = ?, is_leader = ?, is_spectator = ?, revision = ? WHERE id = ?",
		&sqlitex.ExecOptions{Args: []any{
			player.Name, nullableText(player.Vote),
			boolArg(player.IsLeader), boolArg(player.IsSpectator), player.Revision, player.ID,
		}})
	if err != nil {
		return fmt.Errorf("poker store: updating player %s: %w", player.ID, err)
	}
	return nil
}

func (s *Store) UpdatePlayer(ctx context.Context, playerID string, patch schema.PlayerPatch) error {
	if err := patch.Validate(); err != nil {
		return fmt.Errorf("%v: %w", err, store.ErrInvalid)
	}
	return s.write(ctx, func(conn *sqlite.Conn) ([]schema.Change, error) {
		player, err := getPlayer(conn, playerID)
		if err != nil {
			return nil, err
		}
		patch.Apply(&player)
		if err := writePlayer(conn, player); err != nil {
			return nil, err
		}
		return []schema.Change{schema.PlayerChange(schema.ChangeUpdate, player)}, nil
	})
}

func (s *Store) UpdateRoomPlayers(ctx context.Context, roomID string, patch schema.PlayerPatch) error {
	if err := patch.Validate(); err != nil {
		return fmt.Errorf("%v: %w", err, store.ErrInvalid)
	}
	return s.write(ctx, func(conn *sqlite.Conn) ([]schema.Change, error) {
		players, err := listPlayers(conn, roomID)
		if err != nil {
			return nil, err
		}
		changes := make([]schema.Change, 0, len(players))
		for _, player := range players {
			patch.Apply(&player)
			if err := writePlayer(conn, player); err != nil {
				return nil, err
			}
			changes = append(changes, schema.PlayerChange(schema.ChangeUpdate, player))
		}
		return changes, nil
	})
}

func (s *Store) DeletePlayer(ctx context.Context, playerID string) error {
	return s.write(ctx, func(conn *sqlite.Conn) ([]schema.Change, error) {
		player, err := getPlayer(conn, playerID)
		if err != nil {
			return nil, err
		}
		if err := sqlitex.Execute(conn, "DELETE FROM players WHERE id = ?", &sqlitex.ExecOptions{
			Args: []any{playerID},
		}); err != nil {
			return nil, fmt.Errorf("poker store: deleting player %s: %w", playerID, err)
		}
		return []schema.Change{schema.DeleteChange(schema.TablePlayers, player.RoomID, playerID)}, nil
	})
}

// --- Tickets ---

func (s *Store) ListTickets(ctx context.Context, roomID string) ([]schema.Ticket, error) {
	tickets := []schema.Ticket{}
	err := s.pool.Read(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn,
			"SELECT "+ticketColumns+" FROM tickets WHERE room_id = ? ORDER BY seq",
			&sqlitex.ExecOptions{
				Args: []any{roomID},
				ResultFunc: func(stmt *sqlite.Stmt) error {
					ticket, err := scanTicket(stmt)
					if err != nil {
						return err
					}
					tickets = append(tickets, ticket)
					return nil
				},
			})
	})
	if err != nil {
		return nil, fmt.Errorf("poker store: listing tickets of %s: %w", roomID, err)
	}
	return tickets, nil
}

func (s *Store) GetTicket(ctx context.Context, ticketID string) (schema.Ticket, error) {
	var ticket schema.Ticket
	err := s.pool.Read(ctx, func(conn *sqlite.Conn) error {
		var err error
		ticket, err = getTicket(conn, ticketID)
		return err
	})
	return ticket, err
}

func getTicket(conn *sqlite.Conn, ticketID string) (schema.Ticket, error) {
	var (
		ticket schema.Ticket
		found  bool
	)
	err := sqlitex.Execute(conn, "SELECT "+ticketColumns+" FROM tickets WHERE id = ?", &sqlitex.ExecOptions{
		Args: []any{ticketID},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			var err error
			ticket, err = scanTicket(stmt)
			found = true
			return err
		},
	})
	if err != nil {
		return schema.Ticket{}, fmt.Errorf("poker store: reading ticket %s: %w", ticketID, err)
	}
	if !found {
		return schema.Ticket{}, fmt.Errorf("ticket %q: %w", ticketID, store.ErrNotFound)
	}
	return ticket, nil
}

func (s *Store) CreateTicket(ctx context.Context, roomID, title string) (schema.Ticket, error) {
	if err := schema.ValidateTitle(title); err != nil {
		return schema.Ticket{}, fmt.Errorf("%v: %w", err, store.ErrInvalid)
	}

	var ticket schema.Ticket
	err := s.write(ctx, func(conn *sqlite.Conn) ([]schema.Change, error) {
		if _, err := getRoom(conn, roomID); err != nil {
			return nil, err
		}
		seq, err := nextSeq(conn, "tickets")
		if err != nil {
			return nil, err
		}
		ticket = schema.Ticket{
			ID:        s.newID(),
			RoomID:    roomID,
			Title:     title,
			Status:    schema.TicketPending,
			CreatedAt: s.clock.Now().UTC(),
			Seq:       seq,
		}
		err = sqlitex.Execute(conn,
			"INSERT INTO tickets ("+ticketColumns+") VALUES (?, ?, ?, ?, NULL, NULL, ?, ?, 0)",
			&sqlitex.ExecOptions{Args: []any{
				ticket.ID, ticket.RoomID, ticket.Title, string(ticket.Status),
				ticket.CreatedAt.UnixNano(), ticket.Seq,
			}})
		if err != nil {
			if isConstraintConflict(err) {
				return nil, fmt.Errorf("ticket %q: %w", ticket.ID, store.ErrConflict)
			}
			return nil, fmt.Errorf("poker store: inserting ticket: %w", err)
		}
		return []schema.Change{schema.TicketChange(schema.ChangeInsert, ticket)}, nil
	})
	if err != nil {
		return schema.Ticket{}, err
	}
	return ticket, nil
}

func (s *Store) UpdateTicket(ctx context.Context, ticketID string, patch schema.TicketPatch) error {
	if err := patch.Validate(); err != nil {
		return fmt.Errorf("%v: %w", err, store.ErrInvalid)
	}
	return s.write(ctx, func(conn *sqlite.Conn) ([]schema.Change, error) {
		ticket, err := getTicket(conn, ticketID)
		if err != nil {
			return nil, err
		}
		patch.Apply(&ticket)
		snapshotBlob, err := encodeSnapshot(ticket.VotesSnapshot)
		if err != nil {
			return nil, fmt.Errorf("poker store: encoding votes snapshot: %w", err)
		}
		err = sqlitex.Execute(conn,
			"UPDATE tickets SET title = ?, status = ?, score = ?, votes_snapshot = ?, revision = ? WHERE id = ?",
			&sqlitex.ExecOptions{Args: []any{
				ticket.Title, string(ticket.Status), nullableText(ticket.Score), snapshotBlob, ticket.Revision, ticketID,
			}})
		if err != nil {
			return nil, fmt.Errorf("poker store: updating ticket %s: %w", ticketID, err)
		}
		return []schema.Change{schema.TicketChange(schema.ChangeUpdate, ticket)}, nil
	})
}

func (s *Store) DeleteTicket(ctx context.Context, ticketID string) error {
	return s.write(ctx, func(conn *sqlite.Conn) ([]schema.Change, error) {
		ticket, err := getTicket(conn, ticketID)
		if err != nil {
			return nil, err
		}
		if err := sqlitex.Execute(conn, "DELETE FROM tickets WHERE id = ?", &sqlitex.ExecOptions{
			Args: []any{ticketID},
		}); err != nil {
			return nil, fmt.Errorf("poker store: deleting ticket %s: %w", ticketID, err)
		}
		return []schema.Change{schema.DeleteChange(schema.TableTickets, ticket.RoomID, ticketID)}, nil
	})
}

func (s *Store) Subscribe(_ context.Context, roomID string) (store.Subscription, error) {
	if roomID == "" {
		return nil, fmt.Errorf("room id is required: %w", store.ErrInvalid)
	}
	return s.hub.Subscribe(roomID), nil
}

// nextSeq returns the next ordering sequence for table. Callers hold
// the write transaction, so the value cannot be handed out twice.
func nextSeq(conn *sqlite.Conn, table string) (int64, error) {
	var seq int64
	err := sqlitex.Execute(conn, "SELECT COALESCE(MAX(seq), 0) + 1 FROM "+table, &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			seq = stmt.ColumnInt64(0)
			return nil
		},
	})
	if err != nil {
		return 0, fmt.Errorf("poker store: next %s seq: %w", table, err)
	}
	return seq, nil
}

