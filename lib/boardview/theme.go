// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package boardview

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/bureau-foundation/poker/lib/schema"
)

// Theme defines the color palette for the board. All colors use
// lipgloss ANSI 256-color codes for broad terminal compatibility.
type Theme struct {
	// Text colors.
	NormalText lipgloss.Color
	FaintText  lipgloss.Color

	// Selected card.
	SelectedBackground lipgloss.Color
	SelectedForeground lipgloss.Color

	// Ticket status colors.
	StatusPending   lipgloss.Color
	StatusActive    lipgloss.Color
	StatusCompleted lipgloss.Color

	// Vote states.
	Voted   lipgloss.Color
	Waiting lipgloss.Color
	Leader  lipgloss.Color

	// Average is the color of the revealed average.
	Average lipgloss.Color

	// UI chrome.
	HeaderForeground lipgloss.Color
	BorderColor      lipgloss.Color
	Warning          lipgloss.Color
}

// StatusColor returns the color for a ticket status, FaintText for
// unknown values.
func (theme Theme) StatusColor(status schema.TicketStatus) lipgloss.Color {
	switch status {
	case schema.TicketPending:
		return theme.StatusPending
	case schema.TicketActive:
		return theme.StatusActive
	case schema.TicketCompleted:
		return theme.StatusCompleted
	default:
		return theme.FaintText
	}
}

// DefaultTheme is the built-in dark-terminal color scheme.
var DefaultTheme = Theme{
	NormalText: lipgloss.Color("252"),
	FaintText:  lipgloss.Color("245"),

	SelectedBackground: lipgloss.Color("75"),
	SelectedForeground: lipgloss.Color("16"),

	StatusPending:   lipgloss.Color("245"), // gray
	StatusActive:    lipgloss.Color("220"), // yellow/amber
	StatusCompleted: lipgloss.Color("114"), // green

	Voted:   lipgloss.Color("114"),
	Waiting: lipgloss.Color("240"),
	Leader:  lipgloss.Color("208"),

	Average: lipgloss.Color("141"),

	HeaderForeground: lipgloss.Color("255"),
	BorderColor:      lipgloss.Color("240"),
	Warning:          lipgloss.Color("196"),
}
