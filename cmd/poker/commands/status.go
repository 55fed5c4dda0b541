// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/poker/cmd/poker/cli"
	"github.com/bureau-foundation/poker/lib/storeservice"
	"github.com/bureau-foundation/poker/lib/version"
)

func statusCommand() *cli.Command {
	var connection connectionFlags
	return &cli.Command{
		Name:    "status",
		Summary: "Check the store service",
		Description: `Ask the store service for its version, uptime and pending player
departures. Exits 1 without further output when the service does not answer.`,
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("status", pflag.ContinueOnError)
			connection.register(flagSet)
			return flagSet
		},
		Run: func(ctx context.Context, args []string) error {
			if len(args) != 0 {
				return cli.UsageErrorf("status takes no arguments")
			}
			cfg, err := connection.load()
			if err != nil {
				return err
			}
			client, err := connectStore(ctx, cfg, connection.logger("status"))
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				return &cli.ExitError{Code: 1}
			}
			statusCtx, cancel := context.WithTimeout(ctx, statusTimeout)
			defer cancel()
			status, err := client.Status(statusCtx)
			if err != nil {
				return err
			}
			writeStatus(os.Stdout, cfg.Paths.Socket, status)
			return nil
		},
	}
}

func writeStatus(w io.Writer, socket string, status storeservice.StatusResponse) {
	fmt.Fprintf(w, "socket:             %s\n", socket)
	fmt.Fprintf(w, "service version:    %s\n", status.Version)
	fmt.Fprintf(w, "client version:     %s\n", version.Short())
	if !version.Compatible(status.Version) {
		fmt.Fprintln(w, "                    (incompatible release; upgrade one side)")
	}
	fmt.Fprintf(w, "uptime:             %s\n", time.Duration(status.UptimeSeconds)*time.Second)
	fmt.Fprintf(w, "pending departures: %d\n", status.PendingDepartures)
}
