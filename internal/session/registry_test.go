// SPDX-FileCopyrightText: Copyright 2025 Carabiner Systems, Inc
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/carabiner-dev/tmpvault/internal/common"
	"github.com/carabiner-dev/tmpvault/internal/expiry"
	"github.com/carabiner-dev/tmpvault/internal/telemetry"
	ivolatile "github.com/carabiner-dev/tmpvault/internal/volatile"
	"github.com/carabiner-dev/tmpvault/volatile"
)

// failingArea wraps a memory area and fails writes while failPut is set.
// beforeGet, when set, runs before every read.
type failingArea struct {
	*ivolatile.MemoryArea
	failPut   bool
	beforeGet func(key string)
}

func (f *failingArea) Get(ctx context.Context, key string) ([]byte, error) {
	if f.beforeGet != nil {
		f.beforeGet(key)
	}
	return f.MemoryArea.Get(ctx, key)
}

func (f *failingArea) Put(ctx context.Context, key string, value []byte) error {
	if f.failPut {
		return errors.New("disk full")
	}
	return f.MemoryArea.Put(ctx, key, value)
}

var _ volatile.Area = (*failingArea)(nil)

func newTestRegistry(t *testing.T) (*Registry, *failingArea, *telemetry.Metrics) {
	t.Helper()
	area := &failingArea{MemoryArea: ivolatile.NewMemoryArea()}
	metrics := telemetry.NewMetrics(prometheus.NewRegistry())
	clock := expiry.NewManualClock(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	return NewRegistry(area, clock, metrics), area, metrics
}

func TestCreateAndGet(t *testing.T) {
	ctx := context.Background()
	reg, area, _ := newTestRegistry(t)

	id, err := reg.Create(ctx, "u1", []byte(`{"role":"admin"}`))
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if len(id) != 2*idBytes {
		t.Errorf("Expected %d char id, got %q", 2*idBytes, id)
	}

	s, err := reg.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if s.ID != id || s.UserID != "u1" {
		t.Errorf("Unexpected session: %+v", s)
	}
	if string(s.Payload) != `{"role":"admin"}` {
		t.Errorf("Expected payload to round trip, got %s", s.Payload)
	}
	if s.CreatedAt.IsZero() {
		t.Errorf("Expected creation time to be set")
	}

	// The key lives in the area under the session namespace
	keys, err := area.List(ctx, KeyPrefix)
	if err != nil {
		t.Fatal(err)
	}
	if len(keys) != 1 || keys[0] != KeyPrefix+id {
		t.Errorf("Expected key %s in area, got %v", KeyPrefix+id, keys)
	}
}

func TestGetNotFound(t *testing.T) {
	reg, _, _ := newTestRegistry(t)
	_, err := reg.Get(context.Background(), "nonexistent")
	if !errors.Is(err, common.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestGetUnauthorized(t *testing.T) {
	ctx := context.Background()

	for _, tc := range []struct {
		name   string
		mutate func(area volatile.Area, id string) error
	}{
		{"key-deleted", func(area volatile.Area, id string) error {
			return area.Delete(ctx, KeyPrefix+id)
		}},
		{"key-tampered", func(area volatile.Area, id string) error {
			return area.Put(ctx, KeyPrefix+id, []byte("0000000000000000000000000000000000000000000000000000000000000000"))
		}},
		{"key-truncated", func(area volatile.Area, id string) error {
			return area.Put(ctx, KeyPrefix+id, []byte("00"))
		}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			reg, area, metrics := newTestRegistry(t)
			id, err := reg.Create(ctx, "u1", nil)
			if err != nil {
				t.Fatal(err)
			}
			if err := tc.mutate(area, id); err != nil {
				t.Fatal(err)
			}

			_, err = reg.Get(ctx, id)
			if !errors.Is(err, common.ErrUnauthorized) {
				t.Errorf("Expected ErrUnauthorized, got %v", err)
			}

			// The in-memory record is still there
			if reg.Len() != 1 {
				t.Errorf("Expected the session to remain registered")
			}
			if got := testutil.ToFloat64(metrics.SessionVerifications.WithLabelValues(telemetry.VerificationBad)); got != 1 {
				t.Errorf("Expected 1 failed verification, got %v", got)
			}
		})
	}
}

func TestCreateStorageFailureLeavesNothing(t *testing.T) {
	ctx := context.Background()
	reg, area, metrics := newTestRegistry(t)
	area.failPut = true

	id, err := reg.Create(ctx, "u1", []byte("x"))
	if !errors.Is(err, common.ErrStorage) {
		t.Fatalf("Expected ErrStorage, got %v", err)
	}
	if id != "" {
		t.Errorf("Expected no id on failure, got %s", id)
	}
	if reg.Len() != 0 {
		t.Errorf("Expected no session after failed write, got %d", reg.Len())
	}
	keys, err := area.List(ctx, KeyPrefix)
	if err != nil {
		t.Fatal(err)
	}
	if len(keys) != 0 {
		t.Errorf("Expected no keys after failed write, got %v", keys)
	}
	if got := testutil.ToFloat64(metrics.SessionsActive); got != 0 {
		t.Errorf("Expected 0 active sessions, got %v", got)
	}
}

func TestGetRacingDeleteIsNotFound(t *testing.T) {
	ctx := context.Background()
	reg, area, metrics := newTestRegistry(t)

	id, err := reg.Create(ctx, "u1", nil)
	if err != nil {
		t.Fatal(err)
	}

	// The session goes away between the map lookup and the key read
	area.beforeGet = func(string) {
		area.beforeGet = nil
		if err := reg.Delete(ctx, id); err != nil {
			t.Errorf("Delete failed: %v", err)
		}
	}

	if _, err := reg.Get(ctx, id); !errors.Is(err, common.ErrNotFound) {
		t.Errorf("Expected ErrNotFound for a session deleted during Get, got %v", err)
	}
	if got := testutil.ToFloat64(metrics.SessionVerifications.WithLabelValues(telemetry.VerificationBad)); got != 0 {
		t.Errorf("Expected no failed verification, got %v", got)
	}
}

func TestCreateRequiresUser(t *testing.T) {
	reg, _, _ := newTestRegistry(t)
	if _, err := reg.Create(context.Background(), "", nil); !errors.Is(err, common.ErrInvalidArgument) {
		t.Errorf("Expected ErrInvalidArgument, got %v", err)
	}
}

func TestPayloadIsCopied(t *testing.T) {
	ctx := context.Background()
	reg, _, _ := newTestRegistry(t)

	payload := []byte("original")
	id, err := reg.Create(ctx, "u1", payload)
	if err != nil {
		t.Fatal(err)
	}
	payload[0] = 'X'

	s, err := reg.Get(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	s.Payload[1] = 'Y'

	again, err := reg.Get(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if string(again.Payload) != "original" {
		t.Errorf("Expected stored payload to be immutable, got %s", again.Payload)
	}
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	reg, area, metrics := newTestRegistry(t)

	id, err := reg.Create(ctx, "u1", nil)
	if err != nil {
		t.Fatal(err)
	}

	if err := reg.Delete(ctx, id); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := reg.Get(ctx, id); !errors.Is(err, common.ErrNotFound) {
		t.Errorf("Expected ErrNotFound after delete, got %v", err)
	}
	if _, err := area.Get(ctx, KeyPrefix+id); !errors.Is(err, volatile.ErrNotFound) {
		t.Errorf("Expected key to be removed from the area, got %v", err)
	}
	if err := reg.Delete(ctx, id); !errors.Is(err, common.ErrNotFound) {
		t.Errorf("Expected ErrNotFound on second delete, got %v", err)
	}
	if got := testutil.ToFloat64(metrics.SessionsActive); got != 0 {
		t.Errorf("Expected 0 active sessions, got %v", got)
	}
}

func TestClose(t *testing.T) {
	ctx := context.Background()
	reg, area, _ := newTestRegistry(t)

	for _, u := range []string{"a", "b", "c"} {
		if _, err := reg.Create(ctx, u, nil); err != nil {
			t.Fatal(err)
		}
	}
	if got := len(reg.IDs()); got != 3 {
		t.Fatalf("Expected 3 ids, got %d", got)
	}

	if err := reg.Close(ctx); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if reg.Len() != 0 {
		t.Errorf("Expected empty registry after close")
	}
	keys, err := area.List(ctx, KeyPrefix)
	if err != nil {
		t.Fatal(err)
	}
	if len(keys) != 0 {
		t.Errorf("Expected no keys after close, got %v", keys)
	}
}

func TestConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	reg, _, _ := newTestRegistry(t)

	const n = 50
	ids := make([]string, n)
	var wg sync.WaitGroup
	errs := make(chan error, 2*n)

	for i := range n {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id, err := reg.Create(ctx, "user", []byte{byte(i)})
			if err != nil {
				errs <- err
				return
			}
			ids[i] = id
			if _, err := reg.Get(ctx, id); err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("Concurrent operation failed: %v", err)
	}
	if reg.Len() != n {
		t.Errorf("Expected %d sessions, got %d", n, reg.Len())
	}

	seen := map[string]bool{}
	for _, id := range ids {
		if seen[id] {
			t.Errorf("Duplicate session id %s", id)
		}
		seen[id] = true
	}
}
