// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package identity remembers which player a client created in each
// room, so that rejoining after a reconnect reuses the same player
// instead of adding a duplicate participant.
//
// An identity is an opaque player id. It is not a credential: anyone
// who knows a player id can act as that player.
package identity

import "sync"

// Store maps room ids to the local player id for that room.
type Store interface {
	// Load returns the remembered player id for roomID. ok is false
	// when nothing is remembered.
	Load(roomID string) (playerID string, ok bool, err error)

	// Save remembers playerID for roomID, replacing any previous id.
	Save(roomID, playerID string) error

	// Forget drops the entry for roomID. Forgetting an unknown room
	// is not an error.
	Forget(roomID string) error
}

// Key returns the name under which a room's identity is stored.
func Key(roomID string) string {
	return "poker-player:" + roomID
}

// Memory is a Store that lives as long as the process.
type Memory struct {
	mu      sync.Mutex
	players map[string]string
}

// NewMemory returns an empty Memory store.
func NewMemory() *Memory {
	return &Memory{players: make(map[string]string)}
}

func (m *Memory) Load(roomID string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	playerID, ok := m.players[Key(roomID)]
	return playerID, ok, nil
}

func (m *Memory) Save(roomID, playerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.players[Key(roomID)] = playerID
	return nil
}

func (m *Memory) Forget(roomID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.players, Key(roomID))
	return nil
}
