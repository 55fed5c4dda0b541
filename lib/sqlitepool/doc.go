// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package sqlitepool opens zombiezen SQLite connection pools with the
// pragmas the poker store relies on.
//
// Every connection gets WAL journaling (readers never block the
// writer), NORMAL synchronous, a five second busy timeout, and an
// in-memory temp store. OnConnect runs after the pragmas, once per
// connection, and is where callers create their schema.
//
// Read borrows a connection for queries. Immediate borrows one and
// wraps the callback in BEGIN IMMEDIATE, so read-modify-write
// sequences hold the write lock from their first read and two writers
// can never interleave.
package sqlitepool
