// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"errors"
)

// ErrJoinFailed is fatal to the session: the room could be neither
// read nor created, or the local player could not be established.
var ErrJoinFailed = errors.New("joining room failed")

// Action preconditions. Actions return these wrapped in *ActionError
// without touching the store.
var (
	ErrNotJoined      = errors.New("session is closed")
	ErrEvicted        = errors.New("removed from the room")
	ErrNoActiveTicket = errors.New("no active ticket")
	ErrEmptyScore     = errors.New("score is empty")
	ErrViewOnly       = errors.New("active ticket is completed and view-only")
	ErrRevealed       = errors.New("votes are already revealed")
	ErrSpectator      = errors.New("spectators cannot vote")
	ErrUnknownCard    = errors.New("card is not in the deck")
	ErrUnknownTicket  = errors.New("unknown ticket")
	ErrUnknownPlayer  = errors.New("unknown player")
	ErrNotLeader      = errors.New("only the room leader can do that")
	ErrNotCompleted   = errors.New("ticket is not completed")
	ErrKickSelf       = errors.New("cannot kick yourself")
)

// ActionError is returned by every Controller action that fails. The
// local mirror is left as it was before the action, apart from the
// documented optimistic leadership transfer, which is reverted.
type ActionError struct {
	// Action names the failed operation ("cast vote", "save score").
	Action string
	Err    error
}

func (e *ActionError) Error() string {
	return e.Action + ": " + e.Err.Error()
}

func (e *ActionError) Unwrap() error { return e.Err }

// IsSilent reports whether err comes from a cancelled context, as
// when a view is torn down with calls still in flight. Such errors
// are not shown to the user.
func IsSilent(err error) bool {
	return errors.Is(err, context.Canceled)
}
