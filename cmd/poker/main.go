// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Poker is the planning poker client: it joins rooms served by
// poker-store-service and inspects their agendas.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/bureau-foundation/poker/cmd/poker/commands"
)

func main() {
	if err := run(); err != nil {
		// Commands that print their own output return an error with
		// the desired exit code; don't repeat it.
		if coder, ok := err.(interface{ ExitCode() int }); ok {
			os.Exit(coder.ExitCode())
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return commands.Root().Execute(ctx, os.Args[1:])
}
