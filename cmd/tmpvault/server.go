// SPDX-FileCopyrightText: Copyright 2025 Carabiner Systems, Inc
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	ioptions "github.com/carabiner-dev/tmpvault/internal/options"
	"github.com/carabiner-dev/tmpvault/internal/server"
)

func serverCmd(flags *globalFlags) *cobra.Command {
	var (
		httpAddr string
		backend  string
		dir      string
	)
	cmd := &cobra.Command{
		Use:   "server",
		Short: "Run the tmpvault daemon in the foreground",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts, err := ioptions.LoadServer(flags.configFile)
			if err != nil {
				return err
			}

			fl := cmd.Flags()
			if fl.Changed("socket") {
				opts.SocketPath = flags.socket
			}
			if fl.Changed("debug") {
				opts.Debug = flags.debug
			}
			if fl.Changed("http") {
				opts.HTTPAddress = httpAddr
			}
			if fl.Changed("backend") {
				opts.Storage.Backend = backend
			}
			if fl.Changed("dir") {
				opts.Storage.Dir = dir
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return server.ListenAndServe(ctx, opts)
		},
	}

	cmd.Flags().StringVar(&httpAddr, "http", "", "Address of the HTTP gateway, empty disables it")
	cmd.Flags().StringVar(&backend, "backend", "", "Storage backend: auto, memory, dir, keyring, badger")
	cmd.Flags().StringVar(&dir, "dir", "", "Root directory of the dir backend")
	return cmd
}
