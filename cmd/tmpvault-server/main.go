// SPDX-FileCopyrightText: Copyright 2025 Carabiner Systems, Inc
// SPDX-License-Identifier: Apache-2.0

// Package main provides a minimal server-only entry point for the tmpvault
// dæmon. Settings come from the TMPVAULT_* environment and, when
// TMPVAULT_CONFIG names one, a YAML file.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	ioptions "github.com/carabiner-dev/tmpvault/internal/options"
	"github.com/carabiner-dev/tmpvault/internal/server"
)

func main() {
	// A missing .env file is fine, existing variables win
	_ = godotenv.Load() //nolint:errcheck

	opts, err := ioptions.LoadServer(os.Getenv("TMPVAULT_CONFIG"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := server.ListenAndServe(ctx, opts); err != nil {
		fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
		stop()
		os.Exit(1) //nolint:gocritic
	}
}
