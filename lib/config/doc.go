// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides YAML configuration loading for the poker
// binaries.
//
// Configuration is loaded from a single file specified by either the
// POKER_CONFIG environment variable (via [Load]) or a --config flag
// (via [LoadFile]). Interactive commands may instead call [Resolve],
// which falls back to the built-in defaults when neither is given.
//
// The configuration file supports environment-specific sections
// (development, staging, production) that override base values when
// [Config].Environment matches.
//
// Variable expansion is performed on path fields after loading:
// ${HOME}, ${POKER_ROOT}, and ${VAR:-default} patterns are expanded.
// No other environment variables override config values. Tracker
// secrets are the exception by construction: the file names the
// variable holding the token, never the token itself.
//
// Key exports:
//
//   - [Config] -- master struct with Paths, Store, Session, Tracker
//   - [Default] -- returns a Config with development defaults
//   - [Load], [LoadFile] and [Resolve] -- the entry points for loading
//
// This package depends on no other poker packages.
package config
