// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli is the command framework for the poker binary: a tree of
// [Command] values with pflag-parsed flags, generated help, and "did
// you mean" suggestions for mistyped commands and flags.
//
// Commands receive the process context, which the entry point cancels
// on SIGINT or SIGTERM. A command that has already reported its own
// failure returns an [ExitError] so the entry point exits without a
// second message.
package cli
