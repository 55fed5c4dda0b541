// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"

	"github.com/bureau-foundation/poker/lib/schema"
)

// reconcileLeadershipLocked schedules the local player's demotion
// when it shares leadership and is not the lowest id. Only the local
// player's own flag is ever written.
func (c *Controller) reconcileLeadershipLocked() {
	if !c.mustYieldLocked() || c.reconcileTimer != nil {
		return
	}
	c.logger.Warn("duplicate leader detected, yielding", "delay", c.reconcileDelay)
	c.reconcileTimer = c.clock.AfterFunc(c.reconcileDelay, c.yieldLeadership)
}

func (c *Controller) mustYieldLocked() bool {
	if c.evicted || c.closed {
		return false
	}
	self, ok := c.mirror.player(c.playerID)
	if !ok || !self.IsLeader {
		return false
	}
	winner, contested := c.mirror.leaderWinner()
	return contested && winner != c.playerID
}

// yieldLeadership runs when the reconcile delay expires. The mirror
// is checked again: a transfer in progress may have settled.
func (c *Controller) yieldLeadership() {
	c.mu.Lock()
	c.reconcileTimer = nil
	yield := c.mustYieldLocked()
	c.mu.Unlock()
	if !yield {
		return
	}

	ctx, cancel := context.WithTimeout(c.ctx, writeTimeout)
	defer cancel()
	demote := false
	err := c.store.UpdatePlayer(ctx, c.playerID, schema.PlayerPatch{IsLeader: &demote})
	if err != nil {
		if c.ctx.Err() != nil {
			return
		}
		c.logger.Error("yielding duplicate leadership failed", "error", err)
		c.notify(Notice{Kind: NoticeActionFailed, Message: "resolving duplicate leadership failed", Err: err})
		return
	}
	c.logger.Info("duplicate leadership resolved")
	c.notify(Notice{Kind: NoticeLeadershipResolved, Message: "leadership race resolved: you are now a member"})
}
