// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package schema defines the rows shared by every planning-poker
// participant: rooms, players, tickets, and the change events that
// carry row mutations to subscribers.
//
// Rows use `json` struct tags. They are printed by the CLI as JSON
// and travel over the store socket as CBOR (see lib/codec).
//
// Mutations are expressed as patches. A nil pointer field in a patch
// leaves the column unchanged; the Clear* flags set nullable columns
// back to null. Stores apply patches field by field, so concurrent
// patches touching different fields both take effect and patches
// touching the same field resolve last-writer-wins.
package schema
