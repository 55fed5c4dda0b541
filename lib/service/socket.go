// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/bureau-foundation/poker/lib/codec"
)

// ActionFunc handles one request. raw is the complete CBOR request,
// action field included. A nil result yields {ok: true}; a non-nil
// result is encoded into Response.Data.
type ActionFunc func(ctx context.Context, raw []byte) (any, error)

// StreamFunc handles a long-lived request. It owns conn until it
// returns; the server closes conn afterwards. ctx is cancelled when
// the server shuts down.
type StreamFunc func(ctx context.Context, raw []byte, conn net.Conn)

// Response is the envelope for every non-stream reply.
type Response struct {
	OK    bool             `cbor:"ok"`
	Error string           `cbor:"error,omitempty"`
	Code  string           `cbor:"code,omitempty"`
	Data  codec.RawMessage `cbor:"data,omitempty"`
}

// SocketServer dispatches CBOR requests arriving on a Unix socket.
// Register handlers before calling Serve.
type SocketServer struct {
	socketPath string
	logger     *slog.Logger
	handlers   map[string]ActionFunc
	streams    map[string]StreamFunc

	ready     chan struct{}
	readyOnce sync.Once

	activeConnections sync.WaitGroup
}

// NewSocketServer returns a server that will listen on socketPath.
func NewSocketServer(socketPath string, logger *slog.Logger) *SocketServer {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &SocketServer{
		socketPath: socketPath,
		logger:     logger,
		handlers:   make(map[string]ActionFunc),
		streams:    make(map[string]StreamFunc),
		ready:      make(chan struct{}),
	}
}

// Handle registers a request-response action. Panics on duplicates.
func (s *SocketServer) Handle(action string, handler ActionFunc) {
	s.checkUnregistered(action)
	s.handlers[action] = handler
}

// HandleStream registers a stream action. Panics on duplicates.
func (s *SocketServer) HandleStream(action string, handler StreamFunc) {
	s.checkUnregistered(action)
	s.streams[action] = handler
}

func (s *SocketServer) checkUnregistered(action string) {
	_, plain := s.handlers[action]
	_, stream := s.streams[action]
	if plain || stream {
		panic(fmt.Sprintf("service.SocketServer: duplicate handler for action %q", action))
	}
}

// Ready is closed once the socket is accepting connections.
func (s *SocketServer) Ready() <-chan struct{} { return s.ready }

// Serve listens until ctx is cancelled, then waits for in-flight
// handlers (streams included) to return. A stale socket file at the
// path is replaced; the socket file is removed on return.
func (s *SocketServer) Serve(ctx context.Context) error {
	if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing stale socket %s: %w", s.socketPath, err)
	}

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.socketPath, err)
	}
	defer func() {
		listener.Close()
		os.Remove(s.socketPath)
	}()

	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	s.logger.Info("socket server listening", "path", s.socketPath)
	s.readyOnce.Do(func() { close(s.ready) })

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			s.logger.Error("accept failed", "error", err)
			continue
		}

		s.activeConnections.Add(1)
		go func() {
			defer s.activeConnections.Done()
			s.handleConnection(ctx, conn)
		}()
	}

	s.activeConnections.Wait()
	return nil
}

const (
	readTimeout    = 30 * time.Second
	writeTimeout   = 10 * time.Second
	maxRequestSize = 1024 * 1024
)

func (s *SocketServer) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(readTimeout))

	var raw codec.RawMessage
	if err := codec.NewDecoder(io.LimitReader(conn, maxRequestSize)).Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			return
		}
		s.writeError(conn, CodeInvalid, fmt.Sprintf("invalid request: %v", err))
		return
	}

	var header struct {
		Action string `cbor:"action"`
	}
	if err := codec.Unmarshal(raw, &header); err != nil {
		s.writeError(conn, CodeInvalid, fmt.Sprintf("invalid request: %v", err))
		return
	}
	if header.Action == "" {
		s.writeError(conn, CodeInvalid, "missing required field: action")
		return
	}

	if stream, ok := s.streams[header.Action]; ok {
		conn.SetReadDeadline(time.Time{})
		streamCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		// The client closing its end is the normal way a stream ends.
		go func() {
			io.Copy(io.Discard, conn)
			cancel()
		}()
		stream(streamCtx, raw, conn)
		return
	}

	handler, ok := s.handlers[header.Action]
	if !ok {
		s.writeError(conn, CodeInvalid, fmt.Sprintf("unknown action %q", header.Action))
		return
	}

	result, err := handler(ctx, raw)
	if err != nil {
		s.logger.Debug("action failed", "action", header.Action, "error", err)
		code := ""
		var coded *Error
		if errors.As(err, &coded) {
			code = coded.Code
		}
		s.writeError(conn, code, err.Error())
		return
	}
	s.writeSuccess(conn, result)
}

func (s *SocketServer) writeError(conn net.Conn, code, message string) {
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := codec.NewEncoder(conn).Encode(Response{Error: message, Code: code}); err != nil {
		s.logger.Debug("failed to write error response", "error", err)
	}
}

func (s *SocketServer) writeSuccess(conn net.Conn, result any) {
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))

	response := Response{OK: true}
	if result != nil {
		data, err := codec.Marshal(result)
		if err != nil {
			s.writeError(conn, "", fmt.Sprintf("internal: marshaling response: %v", err))
			return
		}
		response.Data = data
	}
	if err := codec.NewEncoder(conn).Encode(response); err != nil {
		s.logger.Debug("failed to write success response", "error", err)
	}
}
