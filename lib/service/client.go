// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/bureau-foundation/poker/lib/codec"
)

const (
	dialTimeout         = 5 * time.Second
	responseReadTimeout = 45 * time.Second
	maxResponseSize     = 4 * 1024 * 1024
)

// ServiceClient calls actions on a service socket. Every Call uses a
// fresh connection.
type ServiceClient struct {
	socketPath string
}

// NewServiceClient returns a client for the socket at socketPath.
func NewServiceClient(socketPath string) *ServiceClient {
	return &ServiceClient{socketPath: socketPath}
}

// SocketPath returns the socket the client dials.
func (c *ServiceClient) SocketPath() string { return c.socketPath }

// Call sends action with fields and decodes Response.Data into result
// when both are non-nil. A server-side failure is returned as
// *ServiceError; transport failures are returned as plain errors.
func (c *ServiceClient) Call(ctx context.Context, action string, fields map[string]any, result any) error {
	conn, err := c.dial(ctx, action, fields)
	if err != nil {
		return err
	}
	defer conn.Close()

	if unixConn, ok := conn.(*net.UnixConn); ok {
		unixConn.CloseWrite()
	}

	deadline := time.Now().Add(responseReadTimeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	conn.SetReadDeadline(deadline)

	var response Response
	if err := codec.NewDecoder(io.LimitReader(conn, maxResponseSize)).Decode(&response); err != nil {
		return fmt.Errorf("calling %q on %s: reading response: %w", action, c.socketPath, err)
	}
	if !response.OK {
		return &ServiceError{Action: action, Code: response.Code, Message: response.Error}
	}
	if result != nil && len(response.Data) > 0 {
		if err := codec.Unmarshal(response.Data, result); err != nil {
			return fmt.Errorf("decoding response data for %q: %w", action, err)
		}
	}
	return nil
}

// OpenStream starts a stream action and returns the frame reader.
// Cancelling ctx closes the stream.
func (c *ServiceClient) OpenStream(ctx context.Context, action string, fields map[string]any) (*Stream, error) {
	conn, err := c.dial(ctx, action, fields)
	if err != nil {
		return nil, err
	}

	stream := &Stream{
		conn:    conn,
		decoder: codec.NewDecoder(conn),
		closed:  make(chan struct{}),
	}
	go func() {
		select {
		case <-ctx.Done():
			stream.Close()
		case <-stream.closed:
		}
	}()
	return stream, nil
}

func (c *ServiceClient) dial(ctx context.Context, action string, fields map[string]any) (net.Conn, error) {
	request := make(map[string]any, len(fields)+1)
	for key, value := range fields {
		request[key] = value
	}
	request["action"] = action

	dialer := net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(ctx, "unix", c.socketPath)
	if err != nil {
		return nil, fmt.Errorf("calling %q on %s: connecting: %w", action, c.socketPath, err)
	}
	if err := codec.NewEncoder(conn).Encode(request); err != nil {
		conn.Close()
		return nil, fmt.Errorf("calling %q on %s: writing request: %w", action, c.socketPath, err)
	}
	return conn, nil
}

// Stream reads the frames of an open stream action.
type Stream struct {
	conn    net.Conn
	decoder *codec.Decoder

	closeOnce sync.Once
	closed    chan struct{}
}

// Recv decodes the next frame into v. It returns an error once the
// stream is closed from either side.
func (s *Stream) Recv(v any) error {
	return s.decoder.Decode(v)
}

// Close ends the stream. Safe to call more than once.
func (s *Stream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.closed)
		err = s.conn.Close()
	})
	return err
}
