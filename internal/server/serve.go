// SPDX-FileCopyrightText: Copyright 2025 Carabiner Systems, Inc
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"context"
	"fmt"
	"os"

	"github.com/chainguard-dev/clog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/carabiner-dev/tmpvault/internal/common"
	"github.com/carabiner-dev/tmpvault/internal/telemetry"
	"github.com/carabiner-dev/tmpvault/internal/vault"
	"github.com/carabiner-dev/tmpvault/options"
)

// ListenAndServe assembles the logger, tracer, metrics registry and vault
// from opts and serves them on the configured socket until ctx is done.
func ListenAndServe(ctx context.Context, opts *options.Server) error {
	logOpts := opts.Log
	if opts.Debug {
		logOpts.Level = "debug"
	}
	logger, err := telemetry.NewLogger(os.Stderr, logOpts)
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}
	ctx = clog.WithLogger(ctx, logger)

	tp, err := telemetry.InitTracer(ctx, opts.Telemetry)
	if err != nil {
		return fmt.Errorf("initializing tracer: %w", err)
	}
	if tp != nil {
		defer func() {
			if err := tp.Shutdown(context.WithoutCancel(ctx)); err != nil {
				logger.Warnf("flushing traces: %v", err)
			}
		}()
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	v, err := vault.New(ctx, opts, vault.WithRegisterer(reg))
	if err != nil {
		return fmt.Errorf("opening vault: %w", err)
	}
	defer func() {
		if err := v.Close(context.WithoutCancel(ctx)); err != nil {
			logger.Warnf("closing vault: %v", err)
		}
	}()

	if hash, err := common.GetCurrentBinaryHash(); err == nil {
		logger.Debug("server binary", "hash", shortHash(hash))
	}

	return NewServer(ctx, opts, v, reg).Run(ctx)
}
