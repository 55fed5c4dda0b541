// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package replication

import (
	"sync"
	"sync/atomic"

	"github.com/bureau-foundation/poker/lib/schema"
)

// DefaultBufferSize is the per-subscription event buffer. It absorbs
// a room-wide vote reset (one update per player) with room to spare.
const DefaultBufferSize = 256

// Hub routes changes to per-room subscriptions. The zero value is not
// usable; call NewHub.
type Hub struct {
	bufferSize int

	mu    sync.Mutex
	rooms map[string][]*Subscription
}

// NewHub returns a hub whose subscriptions buffer bufferSize events.
// A non-positive bufferSize selects DefaultBufferSize.
func NewHub(bufferSize int) *Hub {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	return &Hub{
		bufferSize: bufferSize,
		rooms:      make(map[string][]*Subscription),
	}
}

// Subscribe registers a subscription for roomID. Changes published
// after Subscribe returns are delivered on its Events channel.
func (h *Hub) Subscribe(roomID string) *Subscription {
	subscription := &Subscription{
		hub:    h,
		roomID: roomID,
		events: make(chan schema.Change, h.bufferSize),
		done:   make(chan struct{}),
	}
	h.mu.Lock()
	h.rooms[roomID] = append(h.rooms[roomID], subscription)
	h.mu.Unlock()
	return subscription
}

// Publish delivers change to every live subscription of its room.
// Full subscriptions drop the change and are marked for resync.
func (h *Hub) Publish(change schema.Change) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subscriptions := h.rooms[change.RoomID]
	for _, subscription := range subscriptions {
		select {
		case subscription.events <- change:
		default:
			subscription.resync.Store(true)
		}
	}
}

// Subscribers returns the number of open subscriptions for roomID.
func (h *Hub) Subscribers(roomID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms[roomID])
}

func (h *Hub) remove(subscription *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subscriptions := h.rooms[subscription.roomID]
	for i, existing := range subscriptions {
		if existing == subscription {
			subscriptions = append(subscriptions[:i], subscriptions[i+1:]...)
			break
		}
	}
	if len(subscriptions) == 0 {
		delete(h.rooms, subscription.roomID)
	} else {
		h.rooms[subscription.roomID] = subscriptions
	}
}

// Subscription is one consumer's view of a room's change stream.
// Events is never closed; select on Done to observe Close.
type Subscription struct {
	hub    *Hub
	roomID string
	events chan schema.Change
	resync atomic.Bool

	done      chan struct{}
	closeOnce sync.Once
}

// Events delivers changes in commit order.
func (s *Subscription) Events() <-chan schema.Change { return s.events }

// Done is closed once the subscription is closed.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// TakeResync reports whether changes were dropped since the last call
// and clears the flag.
func (s *Subscription) TakeResync() bool {
	return s.resync.CompareAndSwap(true, false)
}

// Err always returns nil: an in-process subscription only ends when
// it is closed.
func (s *Subscription) Err() error { return nil }

// Close unregisters the subscription. Safe to call more than once.
func (s *Subscription) Close() error {
	s.closeOnce.Do(func() {
		s.hub.remove(s)
		close(s.done)
	})
	return nil
}
