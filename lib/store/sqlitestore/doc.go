// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package sqlitestore is the durable store.Store, kept in one SQLite
// database opened through lib/sqlitepool.
//
// Every mutation runs as a read-modify-write inside BEGIN IMMEDIATE:
// the current row is read, the patch is applied in Go, and the whole
// row is written back. The store's write mutex is held across the
// transaction and the publication of the resulting changes, so
// subscribers observe changes in commit order.
//
// Card decks and vote snapshots are stored as CBOR blobs (lib/codec).
// Timestamps are stored as Unix nanoseconds.
package sqlitestore
