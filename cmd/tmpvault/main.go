// SPDX-FileCopyrightText: Copyright 2025 Carabiner Systems, Inc
// SPDX-License-Identifier: Apache-2.0

// Package main is the tmpvault command line. It talks to the tmpvault
// daemon, starting it when needed, and can run the daemon itself with the
// server subcommand.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/chainguard-dev/clog"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/carabiner-dev/tmpvault"
	ioptions "github.com/carabiner-dev/tmpvault/internal/options"
	"github.com/carabiner-dev/tmpvault/internal/telemetry"
	"github.com/carabiner-dev/tmpvault/options"
)

const (
	outputText = "text"
	outputJSON = "json"
)

// globalFlags are the persistent flags shared by every subcommand.
type globalFlags struct {
	socket     string
	configFile string
	output     string
	debug      bool
	local      bool
}

func main() {
	flags := &globalFlags{}

	rootCmd := &cobra.Command{
		Use:           "tmpvault",
		Short:         "Ephemeral secret and session store",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// A missing .env file is fine, existing variables win
			_ = godotenv.Load() //nolint:errcheck

			if flags.output != outputText && flags.output != outputJSON {
				return fmt.Errorf("unknown output format %q", flags.output)
			}

			level := "warn"
			if flags.debug {
				level = "debug"
			}
			logger, err := telemetry.NewLogger(os.Stderr, options.Log{Level: level, Format: "text"})
			if err != nil {
				return err
			}
			cmd.SetContext(clog.WithLogger(cmd.Context(), logger))
			return nil
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flags.socket, "socket", "", "Unix socket path of the daemon (or set TMPVAULT_SOCKET_PATH)")
	pf.StringVar(&flags.configFile, "config", "", "YAML configuration file")
	pf.StringVar(&flags.output, "output", outputText, "Output format: text, json")
	pf.BoolVar(&flags.debug, "debug", false, "Enable debug output")
	pf.BoolVar(&flags.local, "local", false, "Run the store in-process, data is gone when the command exits")

	rootCmd.AddCommand(
		serverCmd(flags),
		pingCmd(flags),
		infoCmd(flags),
		sessionCmd(flags),
		secretCmd(flags),
	)

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// clientOptions loads the client settings and applies the flags the user
// set on the command line.
func (f *globalFlags) clientOptions(cmd *cobra.Command) (*options.Client, error) {
	opts, err := ioptions.LoadClient(f.configFile)
	if err != nil {
		return nil, err
	}
	pf := cmd.Flags()
	if pf.Changed("socket") {
		opts.SocketPath = f.socket
	}
	if pf.Changed("debug") {
		opts.Debug = f.debug
	}
	if pf.Changed("local") {
		opts.NoServer = f.local
	}
	return opts, nil
}

// connect returns a connected client. The caller closes it.
func (f *globalFlags) connect(cmd *cobra.Command) (*tmpvault.Client, error) {
	opts, err := f.clientOptions(cmd)
	if err != nil {
		return nil, err
	}
	c := tmpvault.NewClient(opts)
	if err := c.Connect(cmd.Context()); err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}
	return c, nil
}

// print writes v as JSON or calls text to write the plain version.
func (f *globalFlags) print(cmd *cobra.Command, v any, text func()) error {
	if f.output == outputJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	text()
	return nil
}

func pingCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check that the daemon is running",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := flags.connect(cmd)
			if err != nil {
				return err
			}
			defer c.Close() //nolint:errcheck

			if err := c.Ping(cmd.Context()); err != nil {
				return err
			}
			mode := "daemon at " + c.SocketPath()
			if c.Local() {
				mode = "in-process"
			}
			return flags.print(cmd, map[string]any{"alive": true, "local": c.Local()}, func() {
				fmt.Fprintf(cmd.OutOrStdout(), "Server is alive (%s)\n", mode)
			})
		},
	}
}

func infoCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show where the store keeps its data",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := flags.connect(cmd)
			if err != nil {
				return err
			}
			defer c.Close() //nolint:errcheck

			info, err := c.SecurityInfo(cmd.Context())
			if err != nil {
				return err
			}
			return flags.print(cmd, info, func() {
				w := cmd.OutOrStdout()
				fmt.Fprintf(w, "Backend:          %s\n", info.Backend)
				if info.Location != "" {
					fmt.Fprintf(w, "Location:         %s\n", info.Location)
				}
				fmt.Fprintf(w, "Volatile:         %t\n", info.Volatile)
				fmt.Fprintf(w, "Cipher:           %s\n", info.Cipher)
				fmt.Fprintf(w, "Active sessions:  %d\n", info.ActiveSessions)
				fmt.Fprintf(w, "Secrets:          %d\n", info.Secrets)
				fmt.Fprintf(w, "Pending expiries: %d\n", info.PendingExpiries)
			})
		},
	}
}
