// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"text/tabwriter"

	"github.com/bureau-foundation/poker/cmd/poker/cli"
	"github.com/bureau-foundation/poker/lib/boardview"
	"github.com/bureau-foundation/poker/lib/schema"
	"github.com/bureau-foundation/poker/lib/session"
	"github.com/bureau-foundation/poker/lib/tracker"
)

var (
	errConnectionLost = errors.New("connection to the store service was lost")
	errRemoved        = errors.New("you have been removed from the room")
)

// repl reads room commands line by line and runs them against a
// joined controller.
type repl struct {
	controller *session.Controller
	tracker    issueTracker
	jql        string
	out        io.Writer
	width      int
}

// replCommand is one verb of the room prompt. run receives the text
// after the verb, trimmed.
type replCommand struct {
	name    string
	args    string
	summary string
	run     func(r *repl, ctx context.Context, rest string) (quit bool, err error)
}

var replCommands []replCommand

func init() {
	replCommands = []replCommand{
		{name: "vote", args: "<card>", summary: "select a card; the same card again withdraws it", run: action((*repl).vote)},
		{name: "reveal", summary: "show everyone's votes", run: action((*repl).reveal)},
		{name: "reset", summary: "hide and clear every vote", run: action((*repl).reset)},
		{name: "add", args: "<title>", summary: "add a ticket to the agenda", run: action((*repl).add)},
		{name: "import", args: "[text]", summary: "import matching tracker issues", run: action((*repl).importIssues)},
		{name: "rename", args: "<ticket> <title>", summary: "retitle a ticket", run: action((*repl).rename)},
		{name: "delete", args: "<ticket>", summary: "remove a ticket", run: action((*repl).deleteTicket)},
		{name: "activate", args: "<ticket> [--no-save]", summary: "vote on a ticket", run: action((*repl).activate)},
		{name: "save", args: "<score>", summary: "record the score of the active ticket", run: action((*repl).save)},
		{name: "score", args: "<ticket> <score>", summary: "correct a recorded score", run: action((*repl).score)},
		{name: "revote", args: "<ticket>", summary: "reopen a completed ticket", run: action((*repl).revote)},
		{name: "post", args: "[ticket]", summary: "post a recorded score to the tracker", run: action((*repl).post)},
		{name: "transfer", args: "<player>", summary: "hand leadership to a player", run: action((*repl).transfer)},
		{name: "kick", args: "<player>", summary: "remove a player (leader only)", run: action((*repl).kick)},
		{name: "deck", args: "<cards...>|default", summary: "replace the card deck", run: action((*repl).deck)},
		{name: "spectate", args: "[on|off]", summary: "toggle watching without voting", run: action((*repl).spectate)},
		{name: "show", summary: "draw the board", run: action((*repl).show)},
		{name: "help", summary: "list commands", run: action((*repl).help)},
		{name: "quit", summary: "leave the room", run: func(*repl, context.Context, string) (bool, error) { return true, nil }},
	}
}

func action(run func(r *repl, ctx context.Context, rest string) error) func(*repl, context.Context, string) (bool, error) {
	return func(r *repl, ctx context.Context, rest string) (bool, error) {
		return false, run(r, ctx, rest)
	}
}

// run prompts until quit, end of input, cancellation of ctx, or the
// end of the session.
func (r *repl) run(ctx context.Context, in io.Reader) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	r.show(ctx, "")
	for {
		fmt.Fprint(r.out, "> ")
		select {
		case <-ctx.Done():
			return nil
		case <-r.controller.Done():
			if r.controller.View().Evicted {
				return errRemoved
			}
			return errConnectionLost
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			quit, err := r.execute(ctx, line)
			if err != nil {
				fmt.Fprintf(r.out, "error: %v\n", err)
			}
			if quit {
				return nil
			}
		}
	}
}

// execute runs one line. Blank lines do nothing.
func (r *repl) execute(ctx context.Context, line string) (quit bool, err error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return false, nil
	}
	name, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)
	if name == "exit" {
		name = "quit"
	}

	names := make([]string, len(replCommands))
	for i, command := range replCommands {
		if command.name == name {
			return command.run(r, ctx, rest)
		}
		names[i] = command.name
	}
	if suggestion := cli.Closest(name, names); suggestion != "" {
		return false, fmt.Errorf("unknown command %q (did you mean %q?)", name, suggestion)
	}
	return false, fmt.Errorf("unknown command %q (type help)", name)
}

func (r *repl) printf(format string, args ...any) {
	fmt.Fprintf(r.out, format+"\n", args...)
}

func (r *repl) ticket(ref string) (schema.Ticket, error) {
	if ref == "" {
		return schema.Ticket{}, errors.New("ticket required: use its number, issue key or id")
	}
	ticket, ok := r.controller.View().TicketByRef(ref)
	if !ok {
		return schema.Ticket{}, fmt.Errorf("no ticket %q", ref)
	}
	return ticket, nil
}

func (r *repl) player(ref string) (schema.Player, error) {
	if ref == "" {
		return schema.Player{}, errors.New("player required: use a name or id")
	}
	player, ok := r.controller.View().PlayerByName(ref)
	if !ok {
		return schema.Player{}, fmt.Errorf("no player %q", ref)
	}
	return player, nil
}

// splitRef separates the leading ticket reference from the rest.
func splitRef(rest string) (ref, remainder string) {
	ref, remainder, _ = strings.Cut(rest, " ")
	return ref, strings.TrimSpace(remainder)
}

func (r *repl) vote(ctx context.Context, card string) error {
	if card == "" {
		return errors.New("card required, one of: " + strings.Join(r.controller.View().Deck, " "))
	}
	if err := r.controller.CastVote(ctx, card); err != nil {
		return err
	}
	if selected := r.controller.View().Selected; selected != nil {
		r.printf("voted %s", *selected)
	} else {
		r.printf("vote withdrawn")
	}
	return nil
}

func (r *repl) reveal(ctx context.Context, _ string) error {
	average, ok, err := r.controller.Reveal(ctx)
	if err != nil {
		return err
	}
	if ok {
		r.printf("revealed; average %s (save it with: save %s)", average, average)
	} else {
		r.printf("revealed; no numeric votes")
	}
	return nil
}

func (r *repl) reset(ctx context.Context, _ string) error {
	if err := r.controller.Reset(ctx); err != nil {
		return err
	}
	r.printf("votes cleared")
	return nil
}

func (r *repl) add(ctx context.Context, title string) error {
	ticket, err := r.controller.AddTicket(ctx, title)
	if err != nil {
		return err
	}
	r.printf("added %q", ticket.Title)
	return nil
}

func (r *repl) importIssues(ctx context.Context, text string) error {
	if r.tracker == nil {
		return errors.New("tracker integration is not configured (set tracker.auth in the config file)")
	}
	issues, err := r.tracker.Search(ctx, tracker.FilterJQL(r.jql, text), 0)
	if err != nil {
		return fmt.Errorf("searching tracker: %w", err)
	}
	titles := make([]string, len(issues))
	for i, issue := range issues {
		titles[i] = issue.TicketTitle()
	}
	created, err := r.controller.ImportTickets(ctx, titles)
	r.printf("imported %d of %d issues", len(created), len(issues))
	return err
}

func (r *repl) rename(ctx context.Context, rest string) error {
	ref, title := splitRef(rest)
	ticket, err := r.ticket(ref)
	if err != nil {
		return err
	}
	return r.controller.RenameTicket(ctx, ticket.ID, title)
}

func (r *repl) deleteTicket(ctx context.Context, ref string) error {
	ticket, err := r.ticket(ref)
	if err != nil {
		return err
	}
	if err := r.controller.DeleteTicket(ctx, ticket.ID); err != nil {
		return err
	}
	r.printf("deleted %q", ticket.Title)
	return nil
}

func (r *repl) activate(ctx context.Context, rest string) error {
	skipAutoSave := false
	var refs []string
	for _, field := range strings.Fields(rest) {
		if field == "--no-save" {
			skipAutoSave = true
			continue
		}
		refs = append(refs, field)
	}
	if len(refs) > 1 {
		return fmt.Errorf("activate takes one ticket, got %d", len(refs))
	}
	ticket, err := r.ticket(strings.Join(refs, ""))
	if err != nil {
		return err
	}
	if err := r.controller.SetActiveTicket(ctx, ticket.ID, skipAutoSave); err != nil {
		return err
	}
	if ticket.IsCompleted() {
		r.printf("showing %q (completed, score %s)", ticket.Title, scoreOf(ticket))
	} else {
		r.printf("voting on %q", ticket.Title)
	}
	return nil
}

func (r *repl) save(ctx context.Context, score string) error {
	if err := r.controller.SaveScore(ctx, score); err != nil {
		return err
	}
	r.printf("saved score %s", score)
	return nil
}

func (r *repl) score(ctx context.Context, rest string) error {
	ref, score := splitRef(rest)
	ticket, err := r.ticket(ref)
	if err != nil {
		return err
	}
	if err := r.controller.UpdateScore(ctx, ticket.ID, score); err != nil {
		return err
	}
	r.printf("score of %q is now %s", ticket.Title, score)
	return nil
}

func (r *repl) revote(ctx context.Context, ref string) error {
	ticket, err := r.ticket(ref)
	if err != nil {
		return err
	}
	if err := r.controller.Revote(ctx, ticket.ID); err != nil {
		return err
	}
	r.printf("revoting %q", ticket.Title)
	return nil
}

func (r *repl) post(ctx context.Context, ref string) error {
	if r.tracker == nil {
		return errors.New("tracker integration is not configured (set tracker.auth in the config file)")
	}
	var ticket schema.Ticket
	if ref == "" {
		active := r.controller.View().ActiveTicket
		if active == nil {
			return errors.New("no active ticket; name one: post <ticket>")
		}
		ticket = *active
	} else {
		var err error
		if ticket, err = r.ticket(ref); err != nil {
			return err
		}
	}
	key, text, err := scoreComment(ticket)
	if err != nil {
		return err
	}
	if err := r.tracker.PostComment(ctx, key, text); err != nil {
		return fmt.Errorf("posting to %s: %w", key, err)
	}
	r.printf("posted score %s to %s", *ticket.Score, key)
	return nil
}

// scoreComment returns the issue key and comment text for a scored
// ticket: the score line followed by who voted what.
func scoreComment(ticket schema.Ticket) (key, text string, err error) {
	key, ok := ticket.IssueKey()
	if !ok {
		return "", "", fmt.Errorf("%q has no issue key (titles look like \"PROJ-123: ...\")", ticket.Title)
	}
	if ticket.Score == nil {
		return "", "", fmt.Errorf("%q has no recorded score", ticket.Title)
	}
	lines := []string{tracker.ScoreComment(*ticket.Score)}
	if len(ticket.VotesSnapshot) > 0 {
		lines = append(lines, "")
		for _, vote := range ticket.VotesSnapshot {
			lines = append(lines, vote.Name+": "+vote.Vote)
		}
	}
	return key, strings.Join(lines, "\n"), nil
}

func (r *repl) transfer(ctx context.Context, ref string) error {
	player, err := r.player(ref)
	if err != nil {
		return err
	}
	if err := r.controller.TransferLeadership(ctx, player.ID); err != nil {
		return err
	}
	r.printf("%s now leads the room", player.Name)
	return nil
}

func (r *repl) kick(ctx context.Context, ref string) error {
	player, err := r.player(ref)
	if err != nil {
		return err
	}
	if err := r.controller.KickPlayer(ctx, player.ID); err != nil {
		return err
	}
	r.printf("removed %s", player.Name)
	return nil
}

func (r *repl) deck(ctx context.Context, rest string) error {
	var cards []string
	if rest == "default" {
		cards = schema.DefaultDeck()
	} else {
		cards = strings.FieldsFunc(rest, func(c rune) bool { return c == ',' || c == ' ' })
	}
	if err := r.controller.UpdateDeck(ctx, cards); err != nil {
		return err
	}
	r.printf("deck: %s", strings.Join(cards, " "))
	return nil
}

func (r *repl) spectate(ctx context.Context, rest string) error {
	var spectator bool
	switch rest {
	case "":
		spectator = !r.controller.View().Self.IsSpectator
	case "on":
		spectator = true
	case "off":
	default:
		return fmt.Errorf("spectate takes on or off, got %q", rest)
	}
	if err := r.controller.SetSpectator(ctx, spectator); err != nil {
		return err
	}
	if spectator {
		r.printf("watching")
	} else {
		r.printf("voting")
	}
	return nil
}

func (r *repl) show(context.Context, string) error {
	fmt.Fprintln(r.out, boardview.Render(r.controller.View(), r.width))
	return nil
}

func (r *repl) help(context.Context, string) error {
	tw := tabwriter.NewWriter(r.out, 2, 0, 3, ' ', 0)
	for _, command := range replCommands {
		fmt.Fprintf(tw, "  %s %s\t%s\n", command.name, command.args, command.summary)
	}
	fmt.Fprintln(tw, "  \tTickets are named by agenda number, issue key or id.")
	return tw.Flush()
}

func scoreOf(ticket schema.Ticket) string {
	if ticket.Score == nil {
		return "none"
	}
	return *ticket.Score
}

// lockedWriter serializes writes from the prompt and the notice
// printer.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}
