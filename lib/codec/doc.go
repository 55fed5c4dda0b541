// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec holds the one CBOR configuration shared by the store
// socket protocol and the SQLite store's serialized columns (card
// decks and vote snapshots).
//
// Encoding is Core Deterministic (RFC 8949 §4.2), so equal values
// always produce equal bytes. Decoding into an any-typed target
// yields map[string]any rather than CBOR's default
// map[interface{}]interface{}.
//
// Buffers:
//
//	data, err := codec.Marshal(deck)
//	err = codec.Unmarshal(data, &deck)
//
// Streams:
//
//	encoder := codec.NewEncoder(conn)
//	decoder := codec.NewDecoder(conn)
//
// Types that only ever cross the socket carry `cbor` struct tags.
// Types that are also printed by `poker ... --json` carry `json` tags,
// which fxamacker/cbor honours when no `cbor` tag is present.
package codec
