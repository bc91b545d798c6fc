// SPDX-FileCopyrightText: Copyright 2025 Carabiner Systems, Inc
// SPDX-License-Identifier: Apache-2.0

package volatile

import (
	"bytes"
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/carabiner-dev/tmpvault/options"
	"github.com/carabiner-dev/tmpvault/volatile"
)

// testArea runs the behavior every volatile.Area driver must share.
func testArea(t *testing.T, area volatile.Area) {
	t.Helper()
	ctx := context.Background()

	t.Run("PutGet", func(t *testing.T) {
		if err := area.Put(ctx, "secrets/one", []byte("value-1")); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		got, err := area.Get(ctx, "secrets/one")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if !bytes.Equal(got, []byte("value-1")) {
			t.Errorf("Expected value-1, got %q", got)
		}
	})

	t.Run("Overwrite", func(t *testing.T) {
		if err := area.Put(ctx, "secrets/over", []byte("version-1")); err != nil {
			t.Fatalf("Put v1 failed: %v", err)
		}
		if err := area.Put(ctx, "secrets/over", []byte("version-2")); err != nil {
			t.Fatalf("Put v2 failed: %v", err)
		}
		got, err := area.Get(ctx, "secrets/over")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if string(got) != "version-2" {
			t.Errorf("Expected version-2, got %s", got)
		}
	})

	t.Run("GetMissing", func(t *testing.T) {
		_, err := area.Get(ctx, "secrets/missing")
		if !errors.Is(err, volatile.ErrNotFound) {
			t.Errorf("Expected ErrNotFound, got %v", err)
		}
	})

	t.Run("DeleteIdempotent", func(t *testing.T) {
		if err := area.Put(ctx, "secrets/del", []byte("x")); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		for i := range 2 {
			if err := area.Delete(ctx, "secrets/del"); err != nil {
				t.Fatalf("Delete #%d failed: %v", i+1, err)
			}
		}
		if _, err := area.Get(ctx, "secrets/del"); !errors.Is(err, volatile.ErrNotFound) {
			t.Errorf("Expected ErrNotFound after delete, got %v", err)
		}
	})

	t.Run("ListByPrefix", func(t *testing.T) {
		for _, k := range []string{"list-a/2", "list-a/1", "list-b/1"} {
			if err := area.Put(ctx, k, []byte(k)); err != nil {
				t.Fatalf("Put %s failed: %v", k, err)
			}
		}
		keys, err := area.List(ctx, "list-a/")
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		if !slices.Equal(keys, []string{"list-a/1", "list-a/2"}) {
			t.Errorf("Unexpected keys: %v", keys)
		}

		keys, err = area.List(ctx, "list-none/")
		if err != nil {
			t.Fatalf("List of empty namespace failed: %v", err)
		}
		if len(keys) != 0 {
			t.Errorf("Expected no keys, got %v", keys)
		}
	})

	t.Run("InvalidKey", func(t *testing.T) {
		for _, k := range []string{"", "../escape", "secrets//x", "secrets/./x"} {
			if err := area.Put(ctx, k, []byte("x")); err == nil {
				t.Errorf("Expected error storing key %q", k)
			}
		}
	})
}

func TestMemoryArea(t *testing.T) {
	testArea(t, NewMemoryArea())
}

func TestMemoryAreaCopiesValues(t *testing.T) {
	ctx := context.Background()
	area := NewMemoryArea()

	value := []byte("original")
	if err := area.Put(ctx, "ns/k", value); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	value[0] = 'X'

	got, err := area.Get(ctx, "ns/k")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(got) != "original" {
		t.Errorf("Stored value was modified through caller slice: %q", got)
	}
}

func TestBadgerArea(t *testing.T) {
	area, err := NewBadgerArea()
	if err != nil {
		t.Fatalf("NewBadgerArea failed: %v", err)
	}
	defer area.Close() //nolint:errcheck

	testArea(t, area)
}

func TestOpenBackends(t *testing.T) {
	ctx := context.Background()

	for _, tc := range []struct {
		name    string
		opts    options.Storage
		backend string
		wantErr bool
	}{
		{"memory", options.Storage{Backend: BackendMemory}, BackendMemory, false},
		{"dir", options.Storage{Backend: BackendDir, Dir: t.TempDir()}, BackendDir, false},
		{"dir-no-root", options.Storage{Backend: BackendDir}, "", true},
		{"unknown", options.Storage{Backend: "floppy"}, "", true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			area, err := Open(ctx, &tc.opts)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("Expected error opening %q", tc.opts.Backend)
				}
				return
			}
			if err != nil {
				t.Fatalf("Open failed: %v", err)
			}
			d, ok := area.(volatile.Describer)
			if !ok {
				t.Fatalf("%T does not implement Describer", area)
			}
			if d.Describe().Backend != tc.backend {
				t.Errorf("Expected backend %s, got %s", tc.backend, d.Describe().Backend)
			}
		})
	}
}

func TestOpenAutoFallsBack(t *testing.T) {
	area, err := Open(context.Background(), &options.Storage{Backend: BackendAuto})
	if err != nil {
		t.Fatalf("Open auto failed: %v", err)
	}
	backend := area.(volatile.Describer).Describe().Backend
	if backend != BackendKeyring && backend != BackendMemory {
		t.Errorf("Unexpected auto backend %s", backend)
	}
}
