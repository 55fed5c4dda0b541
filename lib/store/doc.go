// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package store defines the persistence contract for rooms, players,
// and tickets, and provides an in-memory implementation.
//
// Every committed mutation is published as a schema.Change to the
// subscribers of the row's room, in commit order. A Store does not
// interpret game rules: it validates patches for internal
// consistency and applies them field by field. Which writes are
// allowed, and in what order, is decided by lib/session.
//
// Implementations:
//
//   - Memory, for tests and single-process use.
//   - sqlitestore.Store, durable storage on SQLite.
//   - storeclient.Client, a remote Store behind the
//     poker-store-service socket.
//
// Injector wraps any Store to force failures in tests.
package store
