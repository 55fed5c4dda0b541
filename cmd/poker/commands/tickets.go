// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/poker/cmd/poker/cli"
	"github.com/bureau-foundation/poker/lib/schema"
	"github.com/bureau-foundation/poker/lib/session"
	"github.com/bureau-foundation/poker/lib/tracker"
)

// ticketLister is the store capability the read-only commands need.
type ticketLister interface {
	ListTickets(ctx context.Context, roomID string) ([]schema.Ticket, error)
}

func ticketsCommand() *cli.Command {
	return &cli.Command{
		Name:    "tickets",
		Summary: "Inspect agendas and search the tracker",
		Subcommands: []*cli.Command{
			ticketsListCommand(),
			ticketsSearchCommand(),
		},
	}
}

func ticketsListCommand() *cli.Command {
	var connection connectionFlags
	return &cli.Command{
		Name:    "list",
		Summary: "Print a room's agenda without joining it",
		Usage:   "poker tickets list <room> [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("list", pflag.ContinueOnError)
			connection.register(flagSet)
			return flagSet
		},
		Run: func(ctx context.Context, args []string) error {
			if len(args) != 1 {
				return cli.UsageErrorf("list takes exactly one room id")
			}
			cfg, err := connection.load()
			if err != nil {
				return err
			}
			client, err := connectStore(ctx, cfg, connection.logger("tickets/list"))
			if err != nil {
				return err
			}
			return listTickets(ctx, client, args[0], os.Stdout)
		},
	}
}

func listTickets(ctx context.Context, tickets ticketLister, roomID string, w io.Writer) error {
	agenda, err := tickets.ListTickets(ctx, roomID)
	if err != nil {
		return fmt.Errorf("listing tickets of %s: %w", roomID, err)
	}
	if len(agenda) == 0 {
		fmt.Fprintf(w, "%s has no tickets\n", roomID)
		return nil
	}

	tw := tabwriter.NewWriter(w, 2, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tSTATUS\tSCORE\tTITLE")
	for i, ticket := range agenda {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", i+1, ticket.Status, scoreOf(ticket), ticket.Title)
	}
	return tw.Flush()
}

func ticketsSearchCommand() *cli.Command {
	var (
		connection connectionFlags
		jql        string
		maxResults int
	)
	return &cli.Command{
		Name:    "search",
		Summary: "Search the tracker for issues to estimate",
		Description: `Search the issue tracker with tracker.jql (or --jql), narrowed by the
optional text, and print the ticket titles an import would add.`,
		Usage: "poker tickets search [text] [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("search", pflag.ContinueOnError)
			connection.register(flagSet)
			flagSet.StringVar(&jql, "jql", "", "base query (default tracker.jql)")
			flagSet.IntVar(&maxResults, "max", tracker.DefaultMaxResults, "maximum number of issues")
			return flagSet
		},
		Run: func(ctx context.Context, args []string) error {
			if len(args) > 1 {
				return cli.UsageErrorf("search takes at most one text argument (quote it)")
			}
			cfg, err := connection.load()
			if err != nil {
				return err
			}
			issues, err := requireTracker(cfg, connection.logger("tickets/search"))
			if err != nil {
				return err
			}
			text := ""
			if len(args) == 1 {
				text = args[0]
			}
			return searchIssues(ctx, issues, firstNonEmpty(jql, cfg.Tracker.JQL), text, maxResults, os.Stdout)
		},
	}
}

func searchIssues(ctx context.Context, issues issueTracker, jql, text string, maxResults int, w io.Writer) error {
	found, err := issues.Search(ctx, tracker.FilterJQL(jql, text), maxResults)
	if err != nil {
		return fmt.Errorf("searching tracker: %w", err)
	}
	if len(found) == 0 {
		fmt.Fprintln(w, "no matching issues")
		return nil
	}
	tw := tabwriter.NewWriter(w, 2, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TYPE\tSTATUS\tTITLE")
	for _, issue := range found {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", issue.Type, issue.Status, issue.TicketTitle())
	}
	return tw.Flush()
}

func postScoreCommand() *cli.Command {
	var connection connectionFlags
	return &cli.Command{
		Name:    "post-score",
		Summary: "Post a ticket's recorded score to the tracker",
		Description: `Post the recorded score of a completed ticket, with the votes that
produced it, as a comment on the ticket's tracker issue. The ticket title
must start with the issue key, e.g. "PROJ-123: Login page".`,
		Usage: "poker post-score <room> <ticket> [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("post-score", pflag.ContinueOnError)
			connection.register(flagSet)
			return flagSet
		},
		Examples: []cli.Example{
			{Description: "Post by issue key", Command: "poker post-score sprint-42 PROJ-123"},
			{Description: "Post by agenda number", Command: "poker post-score sprint-42 3"},
		},
		Run: func(ctx context.Context, args []string) error {
			if len(args) != 2 {
				return cli.UsageErrorf("post-score takes a room id and a ticket")
			}
			cfg, err := connection.load()
			if err != nil {
				return err
			}
			logger := connection.logger("post-score").With("room_id", args[0])
			issues, err := requireTracker(cfg, logger)
			if err != nil {
				return err
			}
			client, err := connectStore(ctx, cfg, logger)
			if err != nil {
				return err
			}
			return postScore(ctx, client, issues, args[0], args[1], os.Stdout)
		},
	}
}

func postScore(ctx context.Context, tickets ticketLister, issues issueTracker, roomID, ref string, w io.Writer) error {
	agenda, err := tickets.ListTickets(ctx, roomID)
	if err != nil {
		return fmt.Errorf("listing tickets of %s: %w", roomID, err)
	}
	ticket, ok := session.View{Tickets: agenda}.TicketByRef(ref)
	if !ok {
		return fmt.Errorf("%s has no ticket %q", roomID, ref)
	}
	key, text, err := scoreComment(ticket)
	if err != nil {
		return err
	}
	if err := issues.PostComment(ctx, key, text); err != nil {
		if tracker.IsUnauthorized(err) {
			return fmt.Errorf("posting to %s: tracker refused the credentials: %w", key, err)
		}
		return fmt.Errorf("posting to %s: %w", key, err)
	}
	fmt.Fprintf(w, "posted score %s to %s\n", *ticket.Score, key)
	return nil
}
