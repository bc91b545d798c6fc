// SPDX-FileCopyrightText: Copyright 2025 Carabiner Systems, Inc
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/chainguard-dev/clog"
	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/carabiner-dev/tmpvault/internal/common"
	"github.com/carabiner-dev/tmpvault/internal/gateway"
	"github.com/carabiner-dev/tmpvault/internal/rpc"
	"github.com/carabiner-dev/tmpvault/internal/vault"
	"github.com/carabiner-dev/tmpvault/options"
)

const shutdownTimeout = 5 * time.Second

// Server serves a vault over gRPC on a Unix socket and, optionally, over
// HTTP.
type Server struct {
	// Server options
	options *options.Server

	vault    *vault.Vault
	logger   *clog.Logger
	gatherer prometheus.Gatherer

	mu         sync.Mutex
	grpcServer *grpc.Server
	httpServer *http.Server

	lastActivity    time.Time
	activityMu      sync.Mutex
	inactivityTimer *time.Timer

	shutdownOnce sync.Once
	shutdownChan chan struct{}
}

// NewServer creates a server for v. The logger is taken from ctx. The
// gatherer, when not nil, is exposed on the gateway /metrics route.
func NewServer(ctx context.Context, opts *options.Server, v *vault.Vault, gatherer prometheus.Gatherer) *Server {
	return &Server{
		options:      opts,
		vault:        v,
		logger:       clog.FromContext(ctx),
		gatherer:     gatherer,
		lastActivity: time.Now(),
		shutdownChan: make(chan struct{}),
	}
}

// Run listens on the configured Unix socket and blocks until shutdown.
func (s *Server) Run(ctx context.Context) error {
	socketPath := common.SocketPath(s.options.SocketPath)

	// Remove existing socket file if it already exists
	if err := os.RemoveAll(socketPath); err != nil {
		return fmt.Errorf("failed to remove existing socket: %w", err)
	}

	lc := net.ListenConfig{}
	listener, err := lc.Listen(ctx, "unix", socketPath)
	if err != nil {
		return fmt.Errorf("failed to listen on socket: %w", err)
	}
	defer os.Remove(socketPath) //nolint:errcheck

	// Set socket permissions to be restrictive (owner only)
	if err := os.Chmod(socketPath, 0o600); err != nil {
		listener.Close() //nolint:errcheck,gosec
		return fmt.Errorf("failed to set socket permissions: %w", err)
	}

	s.logger.Infof("Server listening on %s", socketPath)
	return s.Serve(ctx, listener)
}

// Serve serves gRPC on lis until ctx is cancelled, the inactivity timeout
// fires or Shutdown is called.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	grpcServer := grpc.NewServer(
		grpc.Creds(NewPeerCredentials()),
		grpc.ChainUnaryInterceptor(s.activityInterceptor, auditInterceptor(s.logger)),
	)
	rpc.RegisterVaultServer(grpcServer, s)

	s.mu.Lock()
	s.grpcServer = grpcServer
	s.mu.Unlock()

	if s.options.HTTPAddress != "" {
		if err := s.startGateway(ctx); err != nil {
			lis.Close() //nolint:errcheck,gosec
			return err
		}
	}

	if s.options.InactivityTimeout > 0 {
		s.activityMu.Lock()
		s.inactivityTimer = time.AfterFunc(s.options.InactivityTimeout, func() {
			s.logger.Infof("Inactivity timeout reached, shutting down")
			s.Shutdown()
		})
		s.activityMu.Unlock()
	}

	go func() {
		select {
		case <-ctx.Done():
			s.logger.Infof("Context done, shutting down")
			s.Shutdown()
		case <-s.shutdownChan:
		}
	}()

	if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return fmt.Errorf("failed to serve: %w", err)
	}
	return nil
}

// startGateway starts the HTTP gateway in the background.
func (s *Server) startGateway(ctx context.Context) error {
	lc := net.ListenConfig{}
	lis, err := lc.Listen(ctx, "tcp", s.options.HTTPAddress)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.options.HTTPAddress, err)
	}

	router := gateway.NewRouter(s.vault, gateway.Config{
		Logger:       s.logger,
		Gatherer:     s.gatherer,
		RateLimit:    s.options.HTTPRateLimit,
		MaxBodyBytes: gatewayBodyLimit(s.options.MaxSecretSize),
	})

	httpServer := &http.Server{
		Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			s.updateActivity()
			router.ServeHTTP(w, r)
		}),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return clog.WithLogger(context.WithoutCancel(ctx), s.logger) },
	}

	s.mu.Lock()
	s.httpServer = httpServer
	s.mu.Unlock()

	go func() {
		s.logger.Infof("HTTP gateway listening on %s", lis.Addr())
		if err := httpServer.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Errorf("HTTP gateway stopped: %v", err)
		}
	}()
	return nil
}

// gatewayBodyLimit sizes HTTP bodies for the largest secret. The value is
// JSON escaped so it can take up to twice its size. Without a secret limit
// the router default applies.
func gatewayBodyLimit(maxSecretSize int64) int64 {
	if maxSecretSize <= 0 {
		return 0
	}
	return 2*maxSecretSize + 4096
}

// Shutdown stops both transports. It is safe to call more than once.
func (s *Server) Shutdown() {
	s.shutdownOnce.Do(func() {
		close(s.shutdownChan)

		s.activityMu.Lock()
		if s.inactivityTimer != nil {
			s.inactivityTimer.Stop()
		}
		s.activityMu.Unlock()

		s.mu.Lock()
		httpServer, grpcServer := s.httpServer, s.grpcServer
		s.mu.Unlock()

		if httpServer != nil {
			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			if err := httpServer.Shutdown(ctx); err != nil {
				s.logger.Warnf("HTTP gateway shutdown: %v", err)
			}
			cancel()
		}
		if grpcServer != nil {
			grpcServer.GracefulStop()
		}
	})
}

// Done is closed when the server starts shutting down.
func (s *Server) Done() <-chan struct{} {
	return s.shutdownChan
}

// updateActivity updates the last activity timestamp of the server.
func (s *Server) updateActivity() {
	s.activityMu.Lock()
	defer s.activityMu.Unlock()

	s.lastActivity = time.Now()

	// Reset the inactivity timer
	if s.inactivityTimer != nil {
		s.inactivityTimer.Reset(s.options.InactivityTimeout)
	}
}

// LastActivity returns the time of the last served request.
func (s *Server) LastActivity() time.Time {
	s.activityMu.Lock()
	defer s.activityMu.Unlock()
	return s.lastActivity
}

func (s *Server) activityInterceptor(ctx context.Context, req any, _ *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	s.updateActivity()
	return handler(ctx, req)
}

// Ping implements the Ping RPC
func (s *Server) Ping(context.Context, *emptypb.Empty) (*wrapperspb.BoolValue, error) {
	return wrapperspb.Bool(true), nil
}

// SecurityInfo implements the SecurityInfo RPC
func (s *Server) SecurityInfo(ctx context.Context, _ *emptypb.Empty) (*rpc.SecurityInfo, error) {
	info, err := s.vault.SecurityInfo(ctx)
	if err != nil {
		return nil, rpc.ToStatus(err)
	}
	return rpc.SecurityInfoMessage(info), nil
}
