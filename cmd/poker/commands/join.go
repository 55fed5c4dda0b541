// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/user"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/poker/cmd/poker/cli"
	"github.com/bureau-foundation/poker/lib/identity"
	"github.com/bureau-foundation/poker/lib/session"
)

const (
	joinTimeout  = 15 * time.Second
	defaultWidth = 72
)

func joinCommand() *cli.Command {
	var (
		connection connectionFlags
		name       string
		spectator  bool
		deck       string
	)

	return &cli.Command{
		Name:    "join",
		Summary: "Join a room and play",
		Description: `Join a planning poker room, creating it if it does not exist, and
open the room prompt. Type "help" at the prompt for its commands.

The player id is remembered per room in the identity file, so joining
again resumes the same seat. The first player in an empty room leads it.`,
		Usage: "poker join <room> [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("join", pflag.ContinueOnError)
			connection.register(flagSet)
			flagSet.StringVarP(&name, "name", "n", "", "display name (default session.player_name, then $USER)")
			flagSet.BoolVar(&spectator, "spectator", false, "join without voting")
			flagSet.StringVar(&deck, "deck", "", "comma-separated deck for a room this join creates")
			return flagSet
		},
		Examples: []cli.Example{
			{Description: "Join as Ana", Command: "poker join sprint-42 --name Ana"},
			{Description: "Create a t-shirt sized room", Command: "poker join sizing --deck XS,S,M,L,XL,?"},
		},
		Run: func(ctx context.Context, args []string) error {
			if len(args) != 1 {
				return cli.UsageErrorf("join takes exactly one room id")
			}
			roomID := args[0]

			cfg, err := connection.load()
			if err != nil {
				return err
			}
			logger := connection.logger("join").With("room_id", roomID)

			playerName := firstNonEmpty(name, cfg.Session.PlayerName, currentUsername())
			if playerName == "" {
				return cli.UsageErrorf("no display name: pass --name or set session.player_name")
			}
			defaultDeck := cfg.Session.Deck
			if deck != "" {
				defaultDeck = strings.Split(deck, ",")
			}

			if err := cfg.EnsurePaths(); err != nil {
				return err
			}
			client, err := connectStore(ctx, cfg, logger)
			if err != nil {
				return err
			}
			issues, err := newTracker(cfg, logger)
			if err != nil {
				logger.Warn("tracker integration disabled", "error", err)
			}

			out := &lockedWriter{w: os.Stdout}
			joinCtx, cancel := context.WithTimeout(ctx, joinTimeout)
			controller, err := session.Join(joinCtx, session.Config{
				Store:                client,
				Identity:             identity.NewFile(cfg.Paths.Identity),
				Presence:             client,
				Logger:               logger,
				RoomID:               roomID,
				PlayerName:           playerName,
				Spectator:            spectator,
				DefaultDeck:          defaultDeck,
				AutoAdvanceDelay:     cfg.AutoAdvanceDuration(),
				LeaderReconcileDelay: cfg.LeaderReconcileDuration(),
			})
			cancel()
			if err != nil {
				return err
			}
			defer controller.Close()

			go printNotices(ctx, controller, out)

			prompt := &repl{
				controller: controller,
				jql:        cfg.Tracker.JQL,
				out:        out,
				width:      cli.TerminalWidth(os.Stdout, defaultWidth),
			}
			if issues != nil {
				prompt.tracker = issues
			}
			return prompt.run(ctx, os.Stdin)
		},
	}
}

// printNotices writes controller notices until the session ends,
// including those queued as it ended.
func printNotices(ctx context.Context, controller *session.Controller, out io.Writer) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-controller.Done():
			for {
				select {
				case notice := <-controller.Notices():
					fmt.Fprintln(out, formatNotice(notice))
				default:
					return
				}
			}
		case notice := <-controller.Notices():
			fmt.Fprintln(out, formatNotice(notice))
		}
	}
}

func formatNotice(notice session.Notice) string {
	switch {
	case notice.Err != nil && notice.Message != "":
		return fmt.Sprintf("! %s: %v", notice.Message, notice.Err)
	case notice.Err != nil:
		return fmt.Sprintf("! %v", notice.Err)
	default:
		return "* " + notice.Message
	}
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value = strings.TrimSpace(value); value != "" {
			return value
		}
	}
	return ""
}

func currentUsername() string {
	if name := os.Getenv("USER"); name != "" {
		return name
	}
	if current, err := user.Current(); err == nil {
		return current.Username
	}
	return ""
}
