// SPDX-FileCopyrightText: Copyright 2025 Carabiner Systems, Inc
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.opentelemetry.io/otel/trace"

	"github.com/carabiner-dev/tmpvault/options"
)

func TestLoggerRedactsSensitiveAttributes(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger(&buf, options.Log{Level: "debug", Format: "json"})
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}

	logger.Info("stored", "name", "db-pass", "value", "hunter2", "verification_key", "abc123", "iv", "")

	out := buf.String()
	if strings.Contains(out, "hunter2") || strings.Contains(out, "abc123") {
		t.Fatalf("Sensitive value leaked into the log: %s", out)
	}

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("Log line is not JSON: %v", err)
	}
	if rec["name"] != "db-pass" {
		t.Errorf("Expected name to be kept, got %v", rec["name"])
	}
	if rec["value"] != redacted {
		t.Errorf("Expected value to be redacted, got %v", rec["value"])
	}
	if rec["iv"] != "" {
		t.Errorf("Expected empty iv to be kept as is, got %v", rec["iv"])
	}
}

func TestLoggerLevelAndFormat(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger(&buf, options.Log{Level: "warn", Format: "text"})
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}

	logger.Infof("quiet")
	logger.Warnf("loud %d", 1)

	out := buf.String()
	if strings.Contains(out, "quiet") {
		t.Errorf("Info record logged at warn level: %s", out)
	}
	if !strings.Contains(out, "level=WARN") || !strings.Contains(out, "loud 1") {
		t.Errorf("Expected text warn record, got: %s", out)
	}

	if _, err := NewLogger(&buf, options.Log{Level: "chatty"}); err == nil {
		t.Errorf("Expected error for unknown level")
	}
	if _, err := NewLogger(&buf, options.Log{Format: "xml"}); err == nil {
		t.Errorf("Expected error for unknown format")
	}
}

func TestTraceHandlerAddsIDs(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger(&buf, options.Log{Level: "info"})
	if err != nil {
		t.Fatal(err)
	}

	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{0x01, 0x02},
		SpanID:     trace.SpanID{0x03},
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	logger.InfoContext(ctx, "traced")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("Log line is not JSON: %v", err)
	}
	if rec["trace_id"] != sc.TraceID().String() {
		t.Errorf("Expected trace id %s, got %v", sc.TraceID(), rec["trace_id"])
	}
	if rec["span_id"] != sc.SpanID().String() {
		t.Errorf("Expected span id %s, got %v", sc.SpanID(), rec["span_id"])
	}
}

func TestInitTracerDisabled(t *testing.T) {
	tp, err := InitTracer(context.Background(), options.Telemetry{Enabled: false})
	if err != nil {
		t.Fatalf("InitTracer failed: %v", err)
	}
	if tp != nil {
		t.Errorf("Expected no provider when tracing is disabled")
	}
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.SessionCreated()
	m.SessionCreated()
	m.SessionDeleted()
	m.SessionVerified(VerificationOK)
	m.SessionVerified(VerificationBad)
	m.SessionVerified(VerificationBad)
	m.SecretStored()
	m.SecretExpired(ExpiredByTimer)
	m.SecretExpired(ExpiredOnList)
	m.SetPending(3)

	if got := testutil.ToFloat64(m.SessionsActive); got != 1 {
		t.Errorf("Expected 1 active session, got %v", got)
	}
	if got := testutil.ToFloat64(m.SessionsCreated); got != 2 {
		t.Errorf("Expected 2 created sessions, got %v", got)
	}
	if got := testutil.ToFloat64(m.SessionVerifications.WithLabelValues(VerificationBad)); got != 2 {
		t.Errorf("Expected 2 failed verifications, got %v", got)
	}
	if got := testutil.ToFloat64(m.SecretsExpired.WithLabelValues(ExpiredByTimer)); got != 1 {
		t.Errorf("Expected 1 timer expiry, got %v", got)
	}
	if got := testutil.ToFloat64(m.ExpiryPending); got != 3 {
		t.Errorf("Expected 3 pending, got %v", got)
	}

	if n, err := testutil.GatherAndCount(reg); err != nil || n == 0 {
		t.Errorf("Expected registered metrics, got %d (%v)", n, err)
	}
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	m.SessionCreated()
	m.SessionDeleted()
	m.SessionVerified(VerificationOK)
	m.SecretStored()
	m.SecretExpired(ExpiredOnGet)
	m.SetPending(1)
}
