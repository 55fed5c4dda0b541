// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil holds helpers shared by the poker test suites:
// bounded channel sends and receives, and short socket directories.
package testutil
