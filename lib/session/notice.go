// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package session

// NoticeKind classifies a Notice.
type NoticeKind string

const (
	// NoticeEvicted: the local player was removed from the room. The
	// controller is terminal.
	NoticeEvicted NoticeKind = "evicted"

	// NoticeLeadershipResolved: the local player gave up a duplicate
	// leadership.
	NoticeLeadershipResolved NoticeKind = "leadership_resolved"

	NoticeScoreSaved NoticeKind = "score_saved"

	// NoticeAdvanced: the room moved to the next unscored ticket
	// after a save.
	NoticeAdvanced NoticeKind = "advanced"

	NoticeLeadershipTransferred NoticeKind = "leadership_transferred"

	// NoticeActionFailed reports a failure of work the controller did
	// on its own, such as auto-advance. Failures of caller-invoked
	// actions are returned, not noticed.
	NoticeActionFailed NoticeKind = "action_failed"

	// NoticeDisconnected: the change stream ended. The controller is
	// terminal; join again to continue.
	NoticeDisconnected NoticeKind = "disconnected"
)

// Notice is a user-facing message from the controller.
type Notice struct {
	Kind    NoticeKind
	Message string
	Err     error
}
