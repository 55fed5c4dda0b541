// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package boardview renders a session.View as a bordered text board
// for the terminal: the active ticket, the vote table, the deck and
// the agenda.
package boardview

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/bureau-foundation/poker/lib/schema"
	"github.com/bureau-foundation/poker/lib/session"
)

// MinWidth is the narrowest board Render produces.
const MinWidth = 40

// Render draws view with DefaultTheme.
func Render(view session.View, width int) string {
	return DefaultTheme.Render(view, width)
}

// Render draws view as a board at most width columns wide, border
// included. Widths below MinWidth are raised to it.
func (theme Theme) Render(view session.View, width int) string {
	width = max(width, MinWidth)
	// Two border columns and one column of padding on each side.
	inner := width - 4

	var sections []string
	sections = append(sections, theme.header(view, inner))

	if view.Evicted {
		sections = append(sections, lipgloss.NewStyle().Foreground(theme.Warning).Bold(true).
			Render("You were removed from this room."))
		return theme.frame(sections, width)
	}

	sections = append(sections, theme.activeTicket(view, inner))
	if view.ActiveTicket != nil {
		sections = append(sections, theme.voteTable(view, inner), theme.summary(view))
		if deck := theme.deck(view, inner); deck != "" {
			sections = append(sections, deck)
		}
	}
	if spectators := theme.spectators(view, inner); spectators != "" {
		sections = append(sections, spectators)
	}
	sections = append(sections, theme.agenda(view, inner))

	return theme.frame(sections, width)
}

func (theme Theme) frame(sections []string, width int) string {
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(theme.BorderColor).
		Padding(0, 1).
		Width(width - 2).
		Render(strings.Join(sections, "\n\n"))
}

func (theme Theme) header(view session.View, inner int) string {
	title := lipgloss.NewStyle().Bold(true).Foreground(theme.HeaderForeground).
		Render(ansi.Truncate("Room "+view.RoomID, inner, "…"))

	leader := "none"
	if view.Leader != nil {
		leader = view.Leader.Name
	}
	faint := lipgloss.NewStyle().Foreground(theme.FaintText)
	status := faint.Render(ansi.Truncate(fmt.Sprintf("%s · leader %s", view.Phase, leader), inner, "…"))
	return title + "\n" + status
}

func (theme Theme) activeTicket(view session.View, inner int) string {
	if view.ActiveTicket == nil {
		return lipgloss.NewStyle().Foreground(theme.FaintText).Render("No active ticket.")
	}
	ticket := view.ActiveTicket
	label := "Voting on"
	if view.Phase == session.PhaseViewOnlyCompleted {
		label = "Completed"
	}
	line := label + ": " + ticket.Title
	if ticket.Score != nil {
		line += " (score " + *ticket.Score + ")"
	}
	return lipgloss.NewStyle().Foreground(theme.StatusColor(ticket.Status)).Bold(true).
		Render(ansi.Truncate(line, inner, "…"))
}

func (theme Theme) voteTable(view session.View, inner int) string {
	if len(view.Votes) == 0 {
		return lipgloss.NewStyle().Foreground(theme.FaintText).Render("No voters.")
	}

	leaders := make(map[string]bool)
	for _, player := range view.Players {
		if player.IsLeader {
			leaders[player.ID] = true
		}
	}

	names := make([]string, len(view.Votes))
	nameWidth := 0
	for i, vote := range view.Votes {
		name := vote.Name
		if vote.PlayerID == view.PlayerID {
			name += " (you)"
		}
		names[i] = name
		nameWidth = max(nameWidth, lipgloss.Width(name))
	}
	// Marker, space, name column, two spaces, then the vote cell.
	nameWidth = min(nameWidth, max(inner-12, 8))

	rows := make([]string, len(view.Votes))
	for i, vote := range view.Votes {
		marker := " "
		if leaders[vote.PlayerID] {
			marker = lipgloss.NewStyle().Foreground(theme.Leader).Render("★")
		}
		name := ansi.Truncate(names[i], nameWidth, "…")
		name += strings.Repeat(" ", nameWidth-lipgloss.Width(name))

		var cell string
		switch {
		case !vote.Voted:
			cell = lipgloss.NewStyle().Foreground(theme.Waiting).Render("waiting")
		case vote.Hidden:
			cell = lipgloss.NewStyle().Foreground(theme.Voted).Render("voted")
		default:
			cell = lipgloss.NewStyle().Foreground(theme.NormalText).Bold(true).Render(vote.Vote)
		}
		rows[i] = marker + " " + name + "  " + cell
	}
	return strings.Join(rows, "\n")
}

func (theme Theme) summary(view session.View) string {
	style := lipgloss.NewStyle().Foreground(theme.Average)
	switch {
	case view.HasAverage:
		return style.Bold(true).Render("Average: " + view.Average)
	case view.Phase == session.PhaseVotingHidden:
		voted := 0
		for _, vote := range view.Votes {
			if vote.Voted {
				voted++
			}
		}
		return style.Render(fmt.Sprintf("%d of %d voted", voted, len(view.Votes)))
	default:
		return style.Render("Average: n/a")
	}
}

// deck renders the selectable cards, wrapping to inner. Spectators
// and view-only tickets get no deck.
func (theme Theme) deck(view session.View, inner int) string {
	if view.Phase != session.PhaseVotingHidden || view.Self.IsSpectator {
		return ""
	}
	selected := lipgloss.NewStyle().Bold(true).
		Foreground(theme.SelectedForeground).Background(theme.SelectedBackground)
	normal := lipgloss.NewStyle().Foreground(theme.NormalText)

	var lines []string
	line := "Cards:"
	for _, card := range view.Deck {
		var rendered string
		if view.Selected != nil && *view.Selected == card {
			rendered = selected.Render("[" + card + "]")
		} else {
			rendered = normal.Render(" " + card + " ")
		}
		if lipgloss.Width(line)+1+lipgloss.Width(rendered) > inner {
			lines = append(lines, line)
			line = "      "
		}
		line += " " + rendered
	}
	lines = append(lines, line)
	return strings.Join(lines, "\n")
}

func (theme Theme) spectators(view session.View, inner int) string {
	var names []string
	for _, player := range view.Players {
		if player.IsSpectator {
			names = append(names, player.Name)
		}
	}
	if len(names) == 0 {
		return ""
	}
	return lipgloss.NewStyle().Foreground(theme.FaintText).
		Render(ansi.Truncate("Spectators: "+strings.Join(names, ", "), inner, "…"))
}

func (theme Theme) agenda(view session.View, inner int) string {
	heading := lipgloss.NewStyle().Bold(true).Foreground(theme.HeaderForeground).Render("Agenda")
	if len(view.Tickets) == 0 {
		return heading + "\n" + lipgloss.NewStyle().Foreground(theme.FaintText).Render("(empty)")
	}

	numberWidth := len(fmt.Sprint(len(view.Tickets)))
	rows := []string{heading}
	for i, ticket := range view.Tickets {
		number := fmt.Sprintf("%*d. ", numberWidth, i+1)
		state := ticketState(ticket)
		titleWidth := max(inner-len(number)-lipgloss.Width(state)-2, 4)
		title := ansi.Truncate(ticket.Title, titleWidth, "…")
		title += strings.Repeat(" ", titleWidth-lipgloss.Width(title))

		style := lipgloss.NewStyle().Foreground(theme.StatusColor(ticket.Status))
		if view.ActiveTicket != nil && view.ActiveTicket.ID == ticket.ID {
			style = style.Bold(true)
		}
		rows = append(rows, number+title+"  "+style.Render(state))
	}
	return strings.Join(rows, "\n")
}

func ticketState(ticket schema.Ticket) string {
	if ticket.Score != nil {
		return string(ticket.Status) + " " + *ticket.Score
	}
	return string(ticket.Status)
}
