// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package replication fans committed row changes out to the
// subscribers of a room.
//
// A store calls Hub.Publish after each committed mutation, while it
// still holds whatever lock serializes its writes, so every
// subscriber of a room sees that room's changes in commit order.
// Publish never blocks: each subscription has a bounded buffer, and
// a subscriber that falls behind loses events and is flagged for
// resync instead of stalling the writer. The consumer checks
// TakeResync on every receive; when it reports true, buffered events
// are stale and the consumer must re-read the room.
package replication
