// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package storeservice exposes a store.Store on a service socket so
// that every participant's session shares one store and one change
// stream. lib/storeclient is the matching client.
package storeservice

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"time"

	"github.com/bureau-foundation/poker/lib/clock"
	"github.com/bureau-foundation/poker/lib/codec"
	"github.com/bureau-foundation/poker/lib/netutil"
	"github.com/bureau-foundation/poker/lib/service"
	"github.com/bureau-foundation/poker/lib/store"
	"github.com/bureau-foundation/poker/lib/version"
)

// DefaultHeartbeat is the interval between heartbeat frames on an
// idle subscribe stream.
const DefaultHeartbeat = 30 * time.Second

const frameWriteTimeout = 10 * time.Second

// Presence schedules and cancels removal of departed players.
type Presence interface {
	Leave(ctx context.Context, roomID, playerID string) error
	Rejoin(ctx context.Context, roomID, playerID string) error
	Pending() int
}

// Config configures a Server. Store is required.
type Config struct {
	Store    store.Store
	Presence Presence
	Clock    clock.Clock
	Logger   *slog.Logger

	// Heartbeat defaults to DefaultHeartbeat.
	Heartbeat time.Duration
}

// Server adapts a store.Store to socket actions.
type Server struct {
	store     store.Store
	presence  Presence
	clock     clock.Clock
	logger    *slog.Logger
	heartbeat time.Duration
	started   time.Time
}

// New returns a Server.
func New(config Config) (*Server, error) {
	if config.Store == nil {
		return nil, errors.New("storeservice: Store is required")
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.Logger == nil {
		config.Logger = slog.New(slog.DiscardHandler)
	}
	if config.Heartbeat <= 0 {
		config.Heartbeat = DefaultHeartbeat
	}
	return &Server{
		store:     config.Store,
		presence:  config.Presence,
		clock:     config.Clock,
		logger:    config.Logger,
		heartbeat: config.Heartbeat,
		started:   config.Clock.Now(),
	}, nil
}

// Register installs every action on socketServer.
func (s *Server) Register(socketServer *service.SocketServer) {
	socketServer.Handle(ActionStatus, s.handleStatus)
	socketServer.Handle(ActionGetRoom, s.withRequest(s.getRoom))
	socketServer.Handle(ActionCreateRoom, s.withRequest(s.createRoom))
	socketServer.Handle(ActionUpdateRoom, s.withRequest(s.updateRoom))
	socketServer.Handle(ActionListPlayers, s.withRequest(s.listPlayers))
	socketServer.Handle(ActionCountPlayers, s.withRequest(s.countPlayers))
	socketServer.Handle(ActionGetPlayer, s.withRequest(s.getPlayer))
	socketServer.Handle(ActionCreatePlayer, s.withRequest(s.createPlayer))
	socketServer.Handle(ActionUpdatePlayer, s.withRequest(s.updatePlayer))
	socketServer.Handle(ActionUpdateRoomPlayers, s.withRequest(s.updateRoomPlayers))
	socketServer.Handle(ActionDeletePlayer, s.withRequest(s.deletePlayer))
	socketServer.Handle(ActionListTickets, s.withRequest(s.listTickets))
	socketServer.Handle(ActionGetTicket, s.withRequest(s.getTicket))
	socketServer.Handle(ActionCreateTicket, s.withRequest(s.createTicket))
	socketServer.Handle(ActionUpdateTicket, s.withRequest(s.updateTicket))
	socketServer.Handle(ActionDeleteTicket, s.withRequest(s.deleteTicket))
	socketServer.Handle(ActionLeave, s.withRequest(s.leave))
	socketServer.Handle(ActionRejoin, s.withRequest(s.rejoin))
	socketServer.HandleStream(ActionSubscribe, s.handleSubscribe)
}

type requestFunc func(ctx context.Context, request Request) (any, error)

func (s *Server) withRequest(handler requestFunc) service.ActionFunc {
	return func(ctx context.Context, raw []byte) (any, error) {
		var request Request
		if err := codec.Unmarshal(raw, &request); err != nil {
			return nil, service.Errorf(service.CodeInvalid, "invalid request: %v", err)
		}
		result, err := handler(ctx, request)
		if err != nil {
			return nil, codedError(err)
		}
		return result, nil
	}
}

// codedError attaches the wire code matching a store sentinel.
func codedError(err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return &service.Error{Code: service.CodeNotFound, Message: err.Error()}
	case errors.Is(err, store.ErrConflict):
		return &service.Error{Code: service.CodeConflict, Message: err.Error()}
	case errors.Is(err, store.ErrInvalid):
		return &service.Error{Code: service.CodeInvalid, Message: err.Error()}
	}
	return err
}

func requireField(value, name string) error {
	if value == "" {
		return service.Errorf(service.CodeInvalid, "missing required field: %s", name)
	}
	return nil
}

func (s *Server) handleStatus(ctx context.Context, raw []byte) (any, error) {
	response := StatusResponse{
		Version:       version.Short(),
		UptimeSeconds: int64(s.clock.Now().Sub(s.started) / time.Second),
	}
	if s.presence != nil {
		response.PendingDepartures = s.presence.Pending()
	}
	return response, nil
}

func (s *Server) getRoom(ctx context.Context, request Request) (any, error) {
	if err := requireField(request.Room, "room"); err != nil {
		return nil, err
	}
	return s.store.GetRoom(ctx, request.Room)
}

func (s *Server) createRoom(ctx context.Context, request Request) (any, error) {
	if err := requireField(request.Room, "room"); err != nil {
		return nil, err
	}
	room, err := s.store.CreateRoom(ctx, request.Room, request.Deck)
	if err != nil {
		return nil, err
	}
	s.logger.Info("room created", "room_id", room.ID)
	return room, nil
}

func (s *Server) updateRoom(ctx context.Context, request Request) (any, error) {
	if err := requireField(request.Room, "room"); err != nil {
		return nil, err
	}
	if request.RoomPatch == nil {
		return nil, service.Errorf(service.CodeInvalid, "missing required field: room_patch")
	}
	return nil, s.store.UpdateRoom(ctx, request.Room, *request.RoomPatch)
}

func (s *Server) listPlayers(ctx context.Context, request Request) (any, error) {
	if err := requireField(request.Room, "room"); err != nil {
		return nil, err
	}
	return s.store.ListPlayers(ctx, request.Room)
}

func (s *Server) countPlayers(ctx context.Context, request Request) (any, error) {
	if err := requireField(request.Room, "room"); err != nil {
		return nil, err
	}
	count, err := s.store.CountPlayers(ctx, request.Room)
	if err != nil {
		return nil, err
	}
	return CountResponse{Count: count}, nil
}

func (s *Server) getPlayer(ctx context.Context, request Request) (any, error) {
	if err := requireField(request.Player, "player"); err != nil {
		return nil, err
	}
	return s.store.GetPlayer(ctx, request.Player)
}

func (s *Server) createPlayer(ctx context.Context, request Request) (any, error) {
	if request.Draft == nil {
		return nil, service.Errorf(service.CodeInvalid, "missing required field: draft")
	}
	player, err := s.store.CreatePlayer(ctx, *request.Draft)
	if err != nil {
		return nil, err
	}
	s.logger.Info("player joined", "room_id", player.RoomID, "player_id", player.ID, "leader", player.IsLeader)
	return player, nil
}

func (s *Server) updatePlayer(ctx context.Context, request Request) (any, error) {
	if err := requireField(request.Player, "player"); err != nil {
		return nil, err
	}
	if request.PlayerPatch == nil {
		return nil, service.Errorf(service.CodeInvalid, "missing required field: player_patch")
	}
	return nil, s.store.UpdatePlayer(ctx, request.Player, *request.PlayerPatch)
}

func (s *Server) updateRoomPlayers(ctx context.Context, request Request) (any, error) {
	if err := requireField(request.Room, "room"); err != nil {
		return nil, err
	}
	if request.PlayerPatch == nil {
		return nil, service.Errorf(service.CodeInvalid, "missing required field: player_patch")
	}
	return nil, s.store.UpdateRoomPlayers(ctx, request.Room, *request.PlayerPatch)
}

func (s *Server) deletePlayer(ctx context.Context, request Request) (any, error) {
	if err := requireField(request.Player, "player"); err != nil {
		return nil, err
	}
	return nil, s.store.DeletePlayer(ctx, request.Player)
}

func (s *Server) listTickets(ctx context.Context, request Request) (any, error) {
	if err := requireField(request.Room, "room"); err != nil {
		return nil, err
	}
	return s.store.ListTickets(ctx, request.Room)
}

func (s *Server) getTicket(ctx context.Context, request Request) (any, error) {
	if err := requireField(request.Ticket, "ticket"); err != nil {
		return nil, err
	}
	return s.store.GetTicket(ctx, request.Ticket)
}

func (s *Server) createTicket(ctx context.Context, request Request) (any, error) {
	if err := requireField(request.Room, "room"); err != nil {
		return nil, err
	}
	return s.store.CreateTicket(ctx, request.Room, request.Title)
}

func (s *Server) updateTicket(ctx context.Context, request Request) (any, error) {
	if err := requireField(request.Ticket, "ticket"); err != nil {
		return nil, err
	}
	if request.TicketPatch == nil {
		return nil, service.Errorf(service.CodeInvalid, "missing required field: ticket_patch")
	}
	return nil, s.store.UpdateTicket(ctx, request.Ticket, *request.TicketPatch)
}

func (s *Server) deleteTicket(ctx context.Context, request Request) (any, error) {
	if err := requireField(request.Ticket, "ticket"); err != nil {
		return nil, err
	}
	return nil, s.store.DeleteTicket(ctx, request.Ticket)
}

func (s *Server) leave(ctx context.Context, request Request) (any, error) {
	if s.presence == nil {
		return nil, errors.New("presence tracking is disabled")
	}
	if err := requireField(request.Player, "player"); err != nil {
		return nil, err
	}
	return nil, s.presence.Leave(ctx, request.Room, request.Player)
}

func (s *Server) rejoin(ctx context.Context, request Request) (any, error) {
	if s.presence == nil {
		return nil, nil
	}
	if err := requireField(request.Player, "player"); err != nil {
		return nil, err
	}
	return nil, s.presence.Rejoin(ctx, request.Room, request.Player)
}

// handleSubscribe registers a store subscription, confirms it with a
// caught_up frame, then forwards changes until the client goes away
// or the server shuts down.
func (s *Server) handleSubscribe(ctx context.Context, raw []byte, conn net.Conn) {
	encoder := codec.NewEncoder(conn)
	write := func(frame Frame) error {
		conn.SetWriteDeadline(time.Now().Add(frameWriteTimeout))
		return encoder.Encode(frame)
	}

	var request Request
	if err := codec.Unmarshal(raw, &request); err != nil {
		write(Frame{Type: FrameError, Message: "invalid request: " + err.Error()})
		return
	}
	if request.Room == "" {
		write(Frame{Type: FrameError, Message: "missing required field: room"})
		return
	}

	subscription, err := s.store.Subscribe(ctx, request.Room)
	if err != nil {
		write(Frame{Type: FrameError, Message: err.Error()})
		return
	}
	defer subscription.Close()

	s.logger.Info("subscribe stream started", "room_id", request.Room)
	defer s.logger.Info("subscribe stream ended", "room_id", request.Room)

	if err := write(Frame{Type: FrameCaughtUp}); err != nil {
		return
	}

	heartbeat := s.clock.NewTicker(s.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-subscription.Done():
			if err := subscription.Err(); err != nil {
				write(Frame{Type: FrameError, Message: err.Error()})
			}
			return

		case change := <-subscription.Events():
			if subscription.TakeResync() {
				for len(subscription.Events()) > 0 {
					<-subscription.Events()
				}
				s.logger.Warn("subscriber fell behind, requesting resync", "room_id", request.Room)
				if err := write(Frame{Type: FrameResync}); err != nil {
					return
				}
				continue
			}
			if err := write(Frame{Type: FrameChange, Change: &change}); err != nil {
				if !netutil.IsExpectedCloseError(err) {
					s.logger.Warn("subscribe stream write failed", "room_id", request.Room, "error", err)
				}
				return
			}

		case <-heartbeat.C:
			if err := write(Frame{Type: FrameHeartbeat}); err != nil {
				return
			}
		}
	}
}
