// SPDX-FileCopyrightText: Copyright 2025 Carabiner Systems, Inc
// SPDX-License-Identifier: Apache-2.0

package options

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tmpvault.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}
	return path
}

func TestLoadServerDefaults(t *testing.T) {
	opts, err := LoadServer("")
	if err != nil {
		t.Fatalf("LoadServer failed: %v", err)
	}
	if opts.Storage.Backend != "auto" {
		t.Errorf("Expected default backend, got %s", opts.Storage.Backend)
	}
	if opts.DefaultTTL != 5*time.Minute {
		t.Errorf("Expected default ttl, got %v", opts.DefaultTTL)
	}
}

func TestLoadServerFile(t *testing.T) {
	path := writeConfig(t, `
socket: /run/tmpvault.sock
ttl: 10m
cipher: chacha20-poly1305
http: 127.0.0.1:3000
maxsecrets: 5
storage:
  backend: dir
  dir: /app/secrets
  tmpfs: true
log:
  level: debug
  format: text
otel:
  enabled: true
  sampling: 0.5
`)

	opts, err := LoadServer(path)
	if err != nil {
		t.Fatalf("LoadServer failed: %v", err)
	}

	if opts.SocketPath != "/run/tmpvault.sock" {
		t.Errorf("Expected socket from file, got %s", opts.SocketPath)
	}
	if opts.DefaultTTL != 10*time.Minute {
		t.Errorf("Expected ttl of 10m, got %v", opts.DefaultTTL)
	}
	if opts.Cipher != "chacha20-poly1305" {
		t.Errorf("Expected cipher from file, got %s", opts.Cipher)
	}
	if opts.HTTPAddress != "127.0.0.1:3000" {
		t.Errorf("Expected http address from file, got %s", opts.HTTPAddress)
	}
	if opts.MaxSecrets != 5 {
		t.Errorf("Expected 5 max secrets, got %d", opts.MaxSecrets)
	}
	if opts.Storage.Backend != "dir" || !opts.Storage.RequireTmpfs {
		t.Errorf("Unexpected storage options: %+v", opts.Storage)
	}
	if opts.Log.Level != "debug" || opts.Log.Format != "text" {
		t.Errorf("Unexpected log options: %+v", opts.Log)
	}
	if !opts.Telemetry.Enabled || opts.Telemetry.SamplingRate != 0.5 {
		t.Errorf("Unexpected telemetry options: %+v", opts.Telemetry)
	}

	// Keys absent from the file keep their defaults
	if opts.MaxSecretSize != 1024*1024 {
		t.Errorf("Expected default max secret size, got %d", opts.MaxSecretSize)
	}
	if opts.Telemetry.ServiceName != "tmpvault" {
		t.Errorf("Expected default service name, got %s", opts.Telemetry.ServiceName)
	}
}

func TestLoadServerEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "storage:\n  backend: dir\n")

	t.Setenv("TMPVAULT_STORAGE_BACKEND", "badger")
	t.Setenv("TMPVAULT_LOG_LEVEL", "warn")
	t.Setenv("TMPVAULT_SOCKET_PATH", "/tmp/env.sock")
	t.Setenv("TMPVAULT_DEBUG", "true")
	t.Setenv("TMPVAULT_TTL", "90s")

	opts, err := LoadServer(path)
	if err != nil {
		t.Fatalf("LoadServer failed: %v", err)
	}

	if opts.Storage.Backend != "badger" {
		t.Errorf("Expected env to override file, got %s", opts.Storage.Backend)
	}
	if opts.Log.Level != "warn" {
		t.Errorf("Expected log level from env, got %s", opts.Log.Level)
	}
	if opts.SocketPath != "/tmp/env.sock" {
		t.Errorf("Expected socket from env, got %s", opts.SocketPath)
	}
	if !opts.Debug {
		t.Errorf("Expected debug from env")
	}
	if opts.DefaultTTL != 90*time.Second {
		t.Errorf("Expected ttl from env, got %v", opts.DefaultTTL)
	}
}

func TestLoadClient(t *testing.T) {
	t.Setenv("TMPVAULT_LOCAL", "true")
	t.Setenv("TMPVAULT_BINARY", "/usr/bin/tmpvault")

	opts, err := LoadClient("")
	if err != nil {
		t.Fatalf("LoadClient failed: %v", err)
	}
	if !opts.NoServer {
		t.Errorf("Expected local mode from env")
	}
	if opts.ServerBinary != "/usr/bin/tmpvault" {
		t.Errorf("Expected server binary from env, got %s", opts.ServerBinary)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := LoadServer(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Expected error for missing config file")
	}
}
