// SPDX-FileCopyrightText: Copyright 2025 Carabiner Systems, Inc
// SPDX-License-Identifier: Apache-2.0

// Package telemetry builds the logger, tracer and metrics used by the
// tmpvault daemon.
package telemetry

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/chainguard-dev/clog"
	"go.opentelemetry.io/otel/trace"

	"github.com/carabiner-dev/tmpvault/options"
)

// redacted replaces the value of sensitive attributes.
const redacted = "***REDACTED***"

// sensitiveKeys are attribute names whose values never reach the log.
var sensitiveKeys = map[string]struct{}{
	"value":            {},
	"key":              {},
	"verification_key": {},
	"payload":          {},
	"iv":               {},
	"plaintext":        {},
}

// NewLogger returns a clog logger writing to w with the configured level
// and format. Trace and span ids are added to records logged with a
// context holding a valid span.
func NewLogger(w io.Writer, opts options.Log) (*clog.Logger, error) {
	var level slog.Level
	if opts.Level != "" {
		if err := level.UnmarshalText([]byte(opts.Level)); err != nil {
			return nil, fmt.Errorf("parsing log level: %w", err)
		}
	}

	hopts := &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: redactAttr,
	}

	var handler slog.Handler
	switch strings.ToLower(opts.Format) {
	case "", "json":
		handler = slog.NewJSONHandler(w, hopts)
	case "text":
		handler = slog.NewTextHandler(w, hopts)
	default:
		return nil, fmt.Errorf("unknown log format %q", opts.Format)
	}

	return clog.New(NewTraceHandler(handler)), nil
}

// redactAttr hides the values of sensitive attributes. Empty values are
// left alone so a missing field is still visible in the output.
func redactAttr(_ []string, a slog.Attr) slog.Attr {
	if _, ok := sensitiveKeys[strings.ToLower(a.Key)]; !ok {
		return a
	}
	if a.Value.Kind() == slog.KindString && a.Value.String() == "" {
		return a
	}
	return slog.String(a.Key, redacted)
}

// TraceHandler adds the active trace and span ids to every record.
type TraceHandler struct {
	handler slog.Handler
}

// NewTraceHandler wraps handler.
func NewTraceHandler(handler slog.Handler) *TraceHandler {
	return &TraceHandler{handler: handler}
}

func (h *TraceHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.handler.Enabled(ctx, level)
}

func (h *TraceHandler) Handle(ctx context.Context, r slog.Record) error {
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		r.AddAttrs(
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	return h.handler.Handle(ctx, r)
}

func (h *TraceHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &TraceHandler{handler: h.handler.WithAttrs(attrs)}
}

func (h *TraceHandler) WithGroup(name string) slog.Handler {
	return &TraceHandler{handler: h.handler.WithGroup(name)}
}
