// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package storeclient

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/bureau-foundation/poker/lib/schema"
	"github.com/bureau-foundation/poker/lib/service"
	"github.com/bureau-foundation/poker/lib/store"
	"github.com/bureau-foundation/poker/lib/storeservice"
)

const eventBufferSize = 256

// Subscribe opens a subscribe stream and returns once the service has
// confirmed registration with its caught_up frame. ctx bounds only
// that handshake; the stream lives until Close.
func (c *Client) Subscribe(ctx context.Context, roomID string) (store.Subscription, error) {
	streamCtx, cancel := context.WithCancel(context.Background())
	stream, err := c.service.OpenStream(streamCtx, storeservice.ActionSubscribe, map[string]any{"room": roomID})
	if err != nil {
		cancel()
		return nil, err
	}

	handshakeDone := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-handshakeDone:
		}
	}()
	var first storeservice.Frame
	err = stream.Recv(&first)
	close(handshakeDone)
	if err != nil {
		cancel()
		stream.Close()
		return nil, fmt.Errorf("subscribing to room %s: %w", roomID, err)
	}
	if first.Type != storeservice.FrameCaughtUp {
		cancel()
		stream.Close()
		if first.Type == storeservice.FrameError {
			return nil, fmt.Errorf("subscribing to room %s: %s", roomID, first.Message)
		}
		return nil, fmt.Errorf("subscribing to room %s: unexpected first frame %q", roomID, first.Type)
	}

	subscription := &subscription{
		roomID: roomID,
		stream: stream,
		cancel: cancel,
		logger: c.logger,
		events: make(chan schema.Change, eventBufferSize),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go subscription.run()
	return subscription, nil
}

type subscription struct {
	roomID string
	stream *service.Stream
	cancel context.CancelFunc
	logger *slog.Logger

	events chan schema.Change
	resync atomic.Bool

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}

	mu  sync.Mutex
	err error
}

func (s *subscription) Events() <-chan schema.Change { return s.events }
func (s *subscription) Done() <-chan struct{}        { return s.done }

func (s *subscription) TakeResync() bool {
	return s.resync.CompareAndSwap(true, false)
}

func (s *subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *subscription) Close() error {
	s.stopOnce.Do(func() {
		close(s.stop)
		s.cancel()
		s.stream.Close()
	})
	<-s.done
	return nil
}

func (s *subscription) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func (s *subscription) deliver(change schema.Change) bool {
	select {
	case s.events <- change:
		return true
	case <-s.stop:
		return false
	}
}

func (s *subscription) run() {
	defer close(s.done)
	for {
		var frame storeservice.Frame
		if err := s.stream.Recv(&frame); err != nil {
			select {
			case <-s.stop:
			default:
				s.fail(fmt.Errorf("subscribe stream for room %s: %w", s.roomID, err))
				s.logger.Warn("subscribe stream lost", "room_id", s.roomID, "error", err)
			}
			return
		}

		switch frame.Type {
		case storeservice.FrameChange:
			if frame.Change == nil {
				continue
			}
			if !s.deliver(*frame.Change) {
				return
			}
		case storeservice.FrameResync:
			s.resync.Store(true)
			if !s.deliver(schema.Change{Kind: schema.ChangeResync, RoomID: s.roomID}) {
				return
			}
		case storeservice.FrameHeartbeat:
		case storeservice.FrameError:
			s.fail(fmt.Errorf("subscribe stream for room %s: %s", s.roomID, frame.Message))
			return
		default:
			s.logger.Debug("unknown subscribe frame type", "type", frame.Type, "room_id", s.roomID)
		}
	}
}
