// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/spf13/pflag"
)

func TestExecuteDispatchesToSubcommand(t *testing.T) {
	var called string
	var receivedArgs []string

	root := &Command{
		Name: "poker",
		Subcommands: []*Command{
			{
				Name: "tickets",
				Subcommands: []*Command{
					{
						Name: "import",
						Run: func(_ context.Context, args []string) error {
							called = "tickets import"
							receivedArgs = args
							return nil
						},
					},
				},
			},
			{
				Name: "version",
				Run: func(context.Context, []string) error {
					called = "version"
					return nil
				},
			},
		},
	}

	if err := root.Execute(context.Background(), []string{"tickets", "import", "sprint-42"}); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if called != "tickets import" {
		t.Errorf("dispatched to %q, want %q", called, "tickets import")
	}
	if len(receivedArgs) != 1 || receivedArgs[0] != "sprint-42" {
		t.Errorf("args = %v, want [sprint-42]", receivedArgs)
	}
}

func TestExecutePassesContext(t *testing.T) {
	type key struct{}
	ctx := context.WithValue(context.Background(), key{}, "marker")
	var seen any
	command := &Command{
		Name: "join",
		Run: func(ctx context.Context, _ []string) error {
			seen = ctx.Value(key{})
			return nil
		},
	}
	if err := command.Execute(ctx, nil); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if seen != "marker" {
		t.Errorf("context value = %v, want marker", seen)
	}
}

func TestExecuteFlagParsing(t *testing.T) {
	var name string
	var room string

	command := &Command{
		Name: "join",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("join", pflag.ContinueOnError)
			flagSet.StringVarP(&name, "name", "n", "", "display name")
			return flagSet
		},
		Run: func(_ context.Context, args []string) error {
			if len(args) > 0 {
				room = args[0]
			}
			return nil
		},
	}

	if err := command.Execute(context.Background(), []string{"-n", "Ana", "sprint-42"}); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if name != "Ana" || room != "sprint-42" {
		t.Errorf("name = %q room = %q", name, room)
	}
}

func TestExecuteUnknownFlagSuggestion(t *testing.T) {
	command := &Command{
		Name: "join",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("join", pflag.ContinueOnError)
			flagSet.Bool("spectator", false, "join without voting")
			flagSet.String("name", "", "display name")
			return flagSet
		},
		Run: func(context.Context, []string) error { return nil },
	}

	err := command.Execute(context.Background(), []string{"--spectater"})
	if err == nil {
		t.Fatal("Execute() = nil, want error for unknown flag")
	}
	for _, want := range []string{"spectater", "did you mean --spectator", "--help"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error = %q, want it to contain %q", err.Error(), want)
		}
	}

	err = command.Execute(context.Background(), []string{"--zzzzzzzzz"})
	if err == nil || strings.Contains(err.Error(), "did you mean") {
		t.Errorf("error = %v, want an error without a suggestion", err)
	}
}

func TestExecuteUnknownSubcommand(t *testing.T) {
	root := &Command{
		Name: "poker",
		Subcommands: []*Command{
			{Name: "join"},
			{Name: "tickets"},
			{Name: "version"},
		},
	}

	err := root.Execute(context.Background(), []string{"tickts"})
	if err == nil || !strings.Contains(err.Error(), `did you mean "tickets"`) {
		t.Errorf("error = %v, want suggestion for tickets", err)
	}

	err = root.Execute(context.Background(), []string{"zzzzzzz"})
	if err == nil || strings.Contains(err.Error(), "did you mean") {
		t.Errorf("error = %v, want an error without a suggestion", err)
	}
}

func TestExecuteHelpAndMissingSubcommand(t *testing.T) {
	var help bytes.Buffer
	root := &Command{
		Name:       "poker",
		Summary:    "Planning poker",
		HelpOutput: &help,
		Subcommands: []*Command{
			{Name: "join", Summary: "Join a room"},
		},
	}

	for _, helpArg := range []string{"-h", "--help", "help"} {
		help.Reset()
		if err := root.Execute(context.Background(), []string{helpArg}); err != nil {
			t.Errorf("Execute(%q) error: %v", helpArg, err)
		}
		if !strings.Contains(help.String(), "Join a room") {
			t.Errorf("Execute(%q) help = %q", helpArg, help.String())
		}
	}

	err := root.Execute(context.Background(), nil)
	if err == nil || !strings.Contains(err.Error(), "subcommand required") {
		t.Errorf("error = %v, want subcommand required", err)
	}
}

func TestExecuteUsageErrorPointsToHelp(t *testing.T) {
	root := &Command{Name: "poker", HelpOutput: io.Discard}
	root.Subcommands = []*Command{{
		Name: "join",
		Run: func(context.Context, []string) error {
			return UsageErrorf("join takes a room id")
		},
	}}

	err := root.Execute(context.Background(), []string{"join"})
	if !errors.Is(err, ErrUsage) {
		t.Fatalf("error = %v, want ErrUsage", err)
	}
	if !strings.Contains(err.Error(), "Run 'poker join --help'") {
		t.Errorf("error = %q, want a pointer to help", err.Error())
	}
}

func TestPrintHelp(t *testing.T) {
	command := &Command{
		Name:        "poker",
		Description: "Planning poker rooms in the terminal.",
		Subcommands: []*Command{
			{Name: "join", Summary: "Join a room and play"},
			{Name: "version", Summary: "Print version information"},
		},
		Examples: []Example{
			{Description: "Join the sprint room", Command: "poker join sprint-42 --name Ana"},
		},
	}

	var buffer bytes.Buffer
	command.PrintHelp(&buffer)
	output := buffer.String()

	for _, want := range []string{
		"Planning poker rooms in the terminal.",
		"poker <command> [flags]",
		"Commands:",
		"Join a room and play",
		"Examples:",
		"# Join the sprint room",
		"poker join sprint-42 --name Ana",
		"Run 'poker <command> --help'",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("help output missing %q\n\nFull output:\n%s", want, output)
		}
	}
}

func TestPrintHelpWithFlags(t *testing.T) {
	command := &Command{
		Name:  "join",
		Usage: "poker join <room> [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("join", pflag.ContinueOnError)
			flagSet.String("name", "", "display name")
			flagSet.Bool("spectator", false, "join without voting")
			return flagSet
		},
	}

	var buffer bytes.Buffer
	command.PrintHelp(&buffer)
	for _, want := range []string{"poker join <room> [flags]", "Flags:", "--name", "--spectator"} {
		if !strings.Contains(buffer.String(), want) {
			t.Errorf("help output missing %q\n\nFull output:\n%s", want, buffer.String())
		}
	}
}

func TestFullName(t *testing.T) {
	root := &Command{Name: "poker"}
	tickets := &Command{Name: "tickets", parent: root}
	importCommand := &Command{Name: "import", parent: tickets}

	if got := importCommand.fullName(); got != "poker tickets import" {
		t.Errorf("fullName() = %q", got)
	}
	if got := root.fullName(); got != "poker" {
		t.Errorf("root.fullName() = %q", got)
	}
}
