// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package commands defines the poker command tree.
package commands

import (
	"github.com/bureau-foundation/poker/cmd/poker/cli"
)

// Root returns the top-level poker command.
func Root() *cli.Command {
	return &cli.Command{
		Name: "poker",
		Description: `Planning poker in the terminal.

Every participant runs "poker join" against the same store service
(poker-store-service). Votes, reveals and the agenda replicate to
everyone in the room as they happen.`,
		Subcommands: []*cli.Command{
			joinCommand(),
			ticketsCommand(),
			postScoreCommand(),
			statusCommand(),
			versionCommand(),
		},
		Examples: []cli.Example{
			{
				Description: "Join a room as Ana",
				Command:     "poker join sprint-42 --name Ana",
			},
			{
				Description: "Show a room's agenda without joining",
				Command:     "poker tickets list sprint-42",
			},
		},
	}
}
