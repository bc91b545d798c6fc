// SPDX-FileCopyrightText: Copyright 2025 Carabiner Systems, Inc
// SPDX-License-Identifier: Apache-2.0

//go:build linux

package volatile

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/carabiner-dev/tmpvault/volatile"
)

func TestKeyringArea(t *testing.T) {
	area, err := NewKeyringArea()
	if err != nil {
		t.Skipf("Skipping keyring test: %v", err)
	}
	// Probe the keyring, some sandboxes deny add_key even when the ring exists.
	if err := area.Put(context.Background(), "probe/key", []byte("x")); err != nil {
		t.Skipf("Skipping keyring test: %v", err)
	}
	_ = area.Delete(context.Background(), "probe/key") //nolint:errcheck

	testArea(t, area)
}

func TestKeyringAreaStoreAndGet(t *testing.T) {
	area, err := NewKeyringArea()
	if err != nil {
		t.Skipf("Skipping keyring test: %v", err)
	}

	ctx := context.Background()
	payload := []byte(`{"name":"db-pass","encrypted":"00ff"}`)

	if err := area.Put(ctx, "secrets/test-secret", payload); err != nil {
		t.Skipf("Skipping keyring test, cannot add keys: %v", err)
	}

	retrieved, err := area.Get(ctx, "secrets/test-secret")
	if err != nil {
		t.Fatalf("Failed to get value: %v", err)
	}
	if !bytes.Equal(retrieved, payload) {
		t.Errorf("Payload mismatch: got %s, want %s", retrieved, payload)
	}

	if err := area.Delete(ctx, "secrets/test-secret"); err != nil {
		t.Fatalf("Failed to delete value: %v", err)
	}

	if _, err := area.Get(ctx, "secrets/test-secret"); !errors.Is(err, volatile.ErrNotFound) {
		t.Errorf("Expected ErrNotFound after delete, got %v", err)
	}
}
