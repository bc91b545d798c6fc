// SPDX-FileCopyrightText: Copyright 2025 Carabiner Systems, Inc
// SPDX-License-Identifier: Apache-2.0

package tmpvault

import (
	"context"
	"fmt"
	"iter"
	"net"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/chainguard-dev/clog"
	"google.golang.org/grpc"

	"github.com/carabiner-dev/tmpvault/internal/common"
	"github.com/carabiner-dev/tmpvault/internal/rpc"
	"github.com/carabiner-dev/tmpvault/internal/server"
	"github.com/carabiner-dev/tmpvault/internal/vault"
	"github.com/carabiner-dev/tmpvault/options"
)

const (
	callTimeout   = 5 * time.Second
	startAttempts = 20
	startInterval = 100 * time.Millisecond
)

// store is the set of operations served either by the daemon or by an
// in-process vault.
type store interface {
	CreateSession(ctx context.Context, userID string, payload []byte) (string, error)
	GetSession(ctx context.Context, id string) (*Session, error)
	DeleteSession(ctx context.Context, id string) error
	StoreSecret(ctx context.Context, name string, value []byte, ttlSeconds int64) (string, error)
	ListSecrets(ctx context.Context) iter.Seq2[SecretInfo, error]
	GetSecret(ctx context.Context, id string) (*Secret, error)
	DeleteSecret(ctx context.Context, id string) error
	SecurityInfo(ctx context.Context) (*SecurityInfo, error)
}

// Client is the tmpvault client.
//
// This is the library that applications use to talk to the tmpvault daemon,
// spinning it up when it is not running. When the daemon cannot be reached
// or NoServer is set, the client runs the vault in-process.
type Client struct {
	options *options.Client
	conn    *grpc.ClientConn
	rpc     *rpc.Client
	store   store
	local   *vault.Vault
}

// NewClient creates a new client instance. A nil opts uses the defaults.
func NewClient(opts *options.Client) *Client {
	if opts == nil {
		opts = options.NewClient()
	}
	return &Client{
		options: opts,
	}
}

// SocketPath returns the daemon socket the client talks to.
func (c *Client) SocketPath() string {
	return common.SocketPath(c.options.SocketPath)
}

// Local reports whether the client runs the vault in-process.
func (c *Client) Local() bool {
	return c.local != nil
}

// Connect establishes the connection to the server.
// If the server is not running, this function spawns the
// daemon process and waits for it to listen.
func (c *Client) Connect(ctx context.Context) error {
	if c.store != nil {
		return nil
	}

	if c.options.NoServer {
		return c.startLocal(ctx)
	}

	// Check if server is already running
	if c.IsServerRunning(ctx) {
		return c.dial()
	}

	// Server is not running, start it
	if err := c.startServer(ctx); err != nil {
		clog.FromContext(ctx).Warnf("starting server: %v, running in-process", err)
		return c.startLocal(ctx)
	}

	// Wait for the server to be ready
	for range startAttempts {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(startInterval):
		}
		if c.IsServerRunning(ctx) {
			return c.dial()
		}
	}

	clog.FromContext(ctx).Warnf("server failed to start within timeout, running in-process")
	return c.startLocal(ctx)
}

// IsServerRunning checks if the server is responding
func (c *Client) IsServerRunning(ctx context.Context) bool {
	d := net.Dialer{Timeout: 1 * time.Second}
	conn, err := d.DialContext(ctx, "unix", c.SocketPath())
	if err != nil {
		return false
	}
	conn.Close() //nolint:errcheck,gosec
	return true
}

// dial connects to the gRPC server through the unix socket
func (c *Client) dial() error {
	socketPath := c.SocketPath()
	dialer := func(ctx context.Context, _ string) (net.Conn, error) {
		var d net.Dialer
		return d.DialContext(ctx, "unix", socketPath)
	}

	// Use "passthrough" as the scheme and a dummy address,
	// the actual connection is made by the custom dialer
	conn, err := grpc.NewClient(
		"passthrough:///unix",
		grpc.WithTransportCredentials(server.NewPeerCredentials()),
		grpc.WithContextDialer(dialer),
	)
	if err != nil {
		return fmt.Errorf("failed to dial server: %w", err)
	}

	c.conn = conn
	c.rpc = rpc.NewClient(conn)
	c.store = c.rpc
	return nil
}

// serverCommand returns the command that starts the daemon. Without a
// configured server binary the current executable is run with the
// "server" subcommand.
func (c *Client) serverCommand() (*exec.Cmd, error) {
	if c.options.ServerBinary != "" {
		return exec.Command(c.options.ServerBinary), nil //nolint:gosec,noctx
	}

	self, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("getting the executable path: %w", err)
	}
	return exec.Command(self, "server"), nil //nolint:gosec,noctx
}

// startServer launches the server as a detached daemon. The client
// settings travel in the environment.
func (c *Client) startServer(ctx context.Context) error {
	cmd, err := c.serverCommand()
	if err != nil {
		return err
	}

	cmd.Env = append(os.Environ(),
		options.EnvPrefix+"SOCKET="+c.SocketPath(),
		options.EnvPrefix+"TTL="+c.options.DefaultTTL.String(),
		fmt.Sprintf("%sMAXSIZE=%d", options.EnvPrefix, c.options.MaxSecretSize),
	)
	if c.options.Debug {
		cmd.Env = append(cmd.Env, options.EnvPrefix+"DEBUG=1")
	}

	// Detach from parent process
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setsid: true, // Create new session (detach from terminal)
	}

	if c.options.Debug {
		// In debug mode, we inherit stdout/stderr so that
		// we can see the output on the calling application
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
	} else {
		devNull, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
		if err != nil {
			return fmt.Errorf("failed to open /dev/null: %w", err)
		}
		defer devNull.Close() //nolint:errcheck
		cmd.Stdin = devNull
		cmd.Stdout = devNull
		cmd.Stderr = devNull
	}

	clog.FromContext(ctx).Debugf("starting server: %s", cmd.String())
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start server process: %w", err)
	}

	// Release the process and don't wait for it so it doesn't become a zombie
	go cmd.Wait() //nolint:errcheck

	return nil
}

// Ping checks if the server is alive. An in-process vault is always alive.
func (c *Client) Ping(ctx context.Context) error {
	if c.local != nil {
		return nil
	}
	if c.rpc == nil {
		return fmt.Errorf("not connected to server")
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := c.rpc.Ping(ctx); err != nil {
		return fmt.Errorf("pinging server: %w", err)
	}
	return nil
}

// Close closes the connection to the server or shuts the in-process vault
// down, dropping everything it holds.
func (c *Client) Close() error {
	c.store = nil
	if c.local != nil {
		err := c.local.Close(context.Background())
		c.local = nil
		return err
	}
	if c.conn != nil {
		err := c.conn.Close()
		c.conn, c.rpc = nil, nil
		return err
	}
	return nil
}

// connected returns the active store.
func (c *Client) connected() (store, error) {
	if c.store == nil {
		return nil, fmt.Errorf("not connected to server")
	}
	return c.store, nil
}
