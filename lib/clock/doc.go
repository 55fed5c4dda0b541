// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock abstracts the timers the poker services depend on:
// the auto-advance delay after a score is saved, the leadership
// reconcile delay, presence grace periods, and subscription
// heartbeats.
//
// Production code holds a Clock and calls Real(). Tests call Fake()
// and drive time explicitly:
//
//	fake := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	reaper := presence.NewReaper(presence.Config{Clock: fake, ...})
//	reaper.Leave(ctx, roomID, playerID)
//	fake.WaitForTimers(1)
//	fake.Advance(30 * time.Second)
//
// AfterFunc callbacks on a FakeClock run synchronously inside
// Advance, so a test observes their side effects as soon as Advance
// returns.
package clock
