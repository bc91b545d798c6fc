// SPDX-FileCopyrightText: Copyright 2025 Carabiner Systems, Inc
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"bytes"
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/test/bufconn"

	"github.com/carabiner-dev/tmpvault/internal/common"
	"github.com/carabiner-dev/tmpvault/internal/expiry"
	"github.com/carabiner-dev/tmpvault/internal/rpc"
	"github.com/carabiner-dev/tmpvault/internal/secret"
	"github.com/carabiner-dev/tmpvault/internal/vault"
	ivolatile "github.com/carabiner-dev/tmpvault/internal/volatile"
	"github.com/carabiner-dev/tmpvault/options"
)

type fixture struct {
	server *Server
	client *rpc.Client
	clock  *expiry.ManualClock
	area   *ivolatile.MemoryArea
	errc   chan error
}

func newFixture(t *testing.T, opts *options.Server) *fixture {
	t.Helper()
	ctx := context.Background()

	if opts == nil {
		opts = options.NewServer()
	}
	area := ivolatile.NewMemoryArea()
	clock := expiry.NewManualClock(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))

	v, err := vault.New(ctx, opts, vault.WithArea(area), vault.WithClock(clock), vault.WithoutWorker())
	if err != nil {
		t.Fatalf("creating vault: %v", err)
	}

	srv := NewServer(ctx, opts, v, nil)
	lis := bufconn.Listen(1 << 20)
	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ctx, lis) }()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(NewPeerCredentials()),
	)
	if err != nil {
		t.Fatalf("dialing: %v", err)
	}

	t.Cleanup(func() {
		conn.Close() //nolint:errcheck,gosec
		srv.Shutdown()
		v.Close(ctx) //nolint:errcheck,gosec
	})

	return &fixture{server: srv, client: rpc.NewClient(conn), clock: clock, area: area, errc: errc}
}

func TestPing(t *testing.T) {
	f := newFixture(t, nil)
	if err := f.client.Ping(context.Background()); err != nil {
		t.Fatalf("Ping failed: %v", err)
	}
}

func TestSessionRoundTrip(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	id, err := f.client.CreateSession(ctx, "u1", []byte(`{"role": "admin"}`))
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	sess, err := f.client.GetSession(ctx, id)
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if sess.ID != id || sess.UserID != "u1" || string(sess.Payload) != `{"role": "admin"}` {
		t.Errorf("Unexpected session: %+v", sess)
	}
	if sess.CreatedAt.IsZero() {
		t.Errorf("Expected creation time to travel over the wire")
	}

	if err := f.client.DeleteSession(ctx, id); err != nil {
		t.Fatalf("DeleteSession failed: %v", err)
	}
	if _, err := f.client.GetSession(ctx, id); !errors.Is(err, common.ErrNotFound) {
		t.Errorf("Expected ErrNotFound after delete, got %v", err)
	}
}

func TestSessionPayloadIsOpaque(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	for _, payload := range [][]byte{
		[]byte(`{"id":9007199254740993}`),
		[]byte(`{"b":1,"a":2}`),
		[]byte("not json"),
		{0x00, 0xff, 0x10},
	} {
		id, err := f.client.CreateSession(ctx, "u1", payload)
		if err != nil {
			t.Fatalf("CreateSession(%q) failed: %v", payload, err)
		}
		sess, err := f.client.GetSession(ctx, id)
		if err != nil {
			t.Fatalf("GetSession failed: %v", err)
		}
		if !bytes.Equal(sess.Payload, payload) {
			t.Errorf("Expected payload %q, got %q", payload, sess.Payload)
		}
	}
}

func TestStoreSecretTTLBounds(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	if _, err := f.client.StoreSecret(ctx, "big", []byte("v"), 10_000_000_000); !errors.Is(err, common.ErrInvalidArgument) {
		t.Errorf("Expected ErrInvalidArgument for huge ttl, got %v", err)
	}
	if _, err := f.client.StoreSecret(ctx, "neg", []byte("v"), -5); !errors.Is(err, common.ErrInvalidArgument) {
		t.Errorf("Expected ErrInvalidArgument for negative ttl, got %v", err)
	}
	if _, err := f.client.StoreSecret(ctx, "max", []byte("v"), rpc.MaxTTLSeconds); err != nil {
		t.Errorf("Expected the largest ttl to be accepted, got %v", err)
	}
}

func TestErrorKindsOverRPC(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	if _, err := f.client.CreateSession(ctx, "", nil); !errors.Is(err, common.ErrInvalidArgument) {
		t.Errorf("Expected ErrInvalidArgument for empty user, got %v", err)
	}
	if _, err := f.client.GetSession(ctx, "missing"); !errors.Is(err, common.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
	if _, err := f.client.StoreSecret(ctx, "", []byte("v"), 10); !errors.Is(err, common.ErrInvalidArgument) {
		t.Errorf("Expected ErrInvalidArgument for empty name, got %v", err)
	}
	if err := f.client.DeleteSecret(ctx, uuid.NewString()); !errors.Is(err, common.ErrNotFound) {
		t.Errorf("Expected ErrNotFound deleting unknown secret, got %v", err)
	}
}

func TestSecretRoundTrip(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	value := []byte{0x00, 's', 0xff}
	id, err := f.client.StoreSecret(ctx, "db-pass", value, 60)
	if err != nil {
		t.Fatalf("StoreSecret failed: %v", err)
	}

	var infos []secret.Info
	for info, err := range f.client.ListSecrets(ctx) {
		if err != nil {
			t.Fatalf("ListSecrets failed: %v", err)
		}
		infos = append(infos, info)
	}
	if len(infos) != 1 || infos[0].ID != id || infos[0].Name != "db-pass" {
		t.Fatalf("Unexpected listing: %+v", infos)
	}
	if got := infos[0].ExpiresAt.Sub(infos[0].CreatedAt); got != time.Minute {
		t.Errorf("Expected a 60s lifetime, got %v", got)
	}

	sec, err := f.client.GetSecret(ctx, id)
	if err != nil {
		t.Fatalf("GetSecret failed: %v", err)
	}
	if string(sec.Value) != string(value) {
		t.Errorf("Expected %q, got %q", value, sec.Value)
	}

	if err := f.client.DeleteSecret(ctx, id); err != nil {
		t.Fatalf("DeleteSecret failed: %v", err)
	}
	if _, err := f.client.GetSecret(ctx, id); !errors.Is(err, common.ErrNotFound) {
		t.Errorf("Expected ErrNotFound after delete, got %v", err)
	}
}

func TestListSecretsExpiresAndSkipsCorrupt(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	if _, err := f.client.StoreSecret(ctx, "short", []byte("a"), 1); err != nil {
		t.Fatal(err)
	}
	long, err := f.client.StoreSecret(ctx, "long", []byte("b"), 60)
	if err != nil {
		t.Fatal(err)
	}
	if err := f.area.Put(ctx, secret.KeyPrefix+uuid.NewString(), []byte("garbage")); err != nil {
		t.Fatal(err)
	}

	f.clock.Advance(2 * time.Second)

	var ids []string
	for info, err := range f.client.ListSecrets(ctx) {
		if err != nil {
			t.Fatalf("Expected corrupt records to be skipped, got %v", err)
		}
		ids = append(ids, info.ID)
	}
	if len(ids) != 1 || ids[0] != long {
		t.Errorf("Expected only the live secret, got %v", ids)
	}
}

func TestSecurityInfoRPC(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	if _, err := f.client.CreateSession(ctx, "u1", nil); err != nil {
		t.Fatal(err)
	}
	if _, err := f.client.StoreSecret(ctx, "a", []byte("v"), 60); err != nil {
		t.Fatal(err)
	}

	info, err := f.client.SecurityInfo(ctx)
	if err != nil {
		t.Fatalf("SecurityInfo failed: %v", err)
	}
	if info.Backend != ivolatile.BackendMemory || !info.Volatile {
		t.Errorf("Unexpected backend: %+v", info)
	}
	if info.ActiveSessions != 1 || info.Secrets != 1 || info.PendingExpiries != 1 {
		t.Errorf("Unexpected counts: %+v", info)
	}
}

func TestInactivityShutdown(t *testing.T) {
	opts := options.NewServer()
	opts.InactivityTimeout = 100 * time.Millisecond
	f := newFixture(t, opts)

	if err := f.client.Ping(context.Background()); err != nil {
		t.Fatal(err)
	}
	before := f.server.LastActivity()

	select {
	case err := <-f.errc:
		if err != nil {
			t.Errorf("Expected clean shutdown, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Server did not shut down after the inactivity timeout")
	}

	if before.IsZero() {
		t.Errorf("Expected activity to be recorded")
	}
}

func TestContextCancelStopsServer(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	opts := options.NewServer()

	v, err := vault.New(ctx, opts, vault.WithArea(ivolatile.NewMemoryArea()), vault.WithoutWorker())
	if err != nil {
		t.Fatal(err)
	}
	defer v.Close(context.Background()) //nolint:errcheck

	srv := NewServer(ctx, opts, v, nil)
	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ctx, bufconn.Listen(1<<16)) }()

	cancel()
	select {
	case err := <-errc:
		if err != nil {
			t.Errorf("Expected clean shutdown, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Server did not stop on context cancel")
	}

	select {
	case <-srv.Done():
	default:
		t.Errorf("Expected Done to be closed")
	}
}

func TestRunUnixSocket(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix sockets are not available")
	}

	dir, err := os.MkdirTemp("", "tv")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir) //nolint:errcheck

	opts := options.NewServer()
	opts.SocketPath = filepath.Join(dir, "s.sock")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	v, err := vault.New(ctx, opts, vault.WithArea(ivolatile.NewMemoryArea()), vault.WithoutWorker())
	if err != nil {
		t.Fatal(err)
	}
	defer v.Close(context.Background()) //nolint:errcheck

	srv := NewServer(ctx, opts, v, nil)
	errc := make(chan error, 1)
	go func() { errc <- srv.Run(ctx) }()

	conn, err := grpc.NewClient("passthrough:///unix",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, "unix", opts.SocketPath)
		}),
		grpc.WithTransportCredentials(NewPeerCredentials()),
	)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close() //nolint:errcheck

	client := rpc.NewClient(conn)
	deadline := time.Now().Add(5 * time.Second)
	for {
		pctx, pcancel := context.WithTimeout(ctx, 200*time.Millisecond)
		err := client.Ping(pctx)
		pcancel()
		if err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("Server never answered: %v", err)
		}
		time.Sleep(20 * time.Millisecond)
	}

	st, err := os.Stat(opts.SocketPath)
	if err != nil {
		t.Fatal(err)
	}
	if perm := st.Mode().Perm(); perm != 0o600 {
		t.Errorf("Expected socket mode 0600, got %o", perm)
	}

	cancel()
	select {
	case err := <-errc:
		if err != nil {
			t.Errorf("Expected clean shutdown, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Server did not stop")
	}

	if _, err := os.Stat(opts.SocketPath); !os.IsNotExist(err) {
		t.Errorf("Expected socket to be removed, got %v", err)
	}
}

func TestGatewayBodyLimit(t *testing.T) {
	for _, tc := range []struct {
		maxSecret int64
		want      int64
	}{
		{0, 0},
		{-1, 0},
		{1024, 2*1024 + 4096},
	} {
		if got := gatewayBodyLimit(tc.maxSecret); got != tc.want {
			t.Errorf("gatewayBodyLimit(%d) = %d, want %d", tc.maxSecret, got, tc.want)
		}
	}
}
