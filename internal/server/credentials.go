// SPDX-FileCopyrightText: Copyright 2025 Carabiner Systems, Inc
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/chainguard-dev/clog"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"github.com/carabiner-dev/tmpvault/internal/common"
	"github.com/carabiner-dev/tmpvault/internal/telemetry"
)

// peerCredentials implements GRPC's credentials.TransportCredentials for
// Unix sockets. The server side reads the peer credentials of every new
// connection and refuses processes running as another user.
type peerCredentials struct {
	uid int
}

// NewPeerCredentials creates transport credentials that extract peer info
func NewPeerCredentials() credentials.TransportCredentials {
	return &peerCredentials{uid: os.Getuid()}
}

func (c *peerCredentials) ClientHandshake(_ context.Context, _ string, rawConn net.Conn) (net.Conn, credentials.AuthInfo, error) {
	return rawConn, &peerAuthInfo{}, nil
}

// ServerHandshake extracts the peer credentials of the connecting process
// and resolves the path of its executable. Connections that are not Unix
// sockets carry an empty peer.
func (c *peerCredentials) ServerHandshake(rawConn net.Conn) (net.Conn, credentials.AuthInfo, error) {
	unixConn, ok := rawConn.(*net.UnixConn)
	if !ok {
		return rawConn, &peerAuthInfo{}, nil
	}

	pid, uid, gid, err := GetPeerCredentials(unixConn)
	if err != nil {
		// Platforms without peer credentials still get served, the
		// socket permissions already restrict access to the owner.
		return rawConn, &peerAuthInfo{}, nil
	}

	if c.uid != 0 && int(uid) != c.uid {
		rawConn.Close() //nolint:errcheck,gosec
		return nil, nil, fmt.Errorf("refusing connection from uid %d", uid)
	}

	info := &peerAuthInfo{PID: pid, UID: uid, GID: gid}
	if pid > 0 {
		// Best effort, the binary only feeds the audit log
		info.BinaryPath, _ = common.GetClientBinaryPath(pid) //nolint:errcheck
	}
	return rawConn, info, nil
}

func (c *peerCredentials) Info() credentials.ProtocolInfo {
	return credentials.ProtocolInfo{
		SecurityProtocol: "unix",
		SecurityVersion:  "1.0",
	}
}

func (c *peerCredentials) Clone() credentials.TransportCredentials {
	return &peerCredentials{uid: c.uid}
}

func (c *peerCredentials) OverrideServerName(string) error {
	return nil
}

// peerAuthInfo contains authentication info from peer credentials
type peerAuthInfo struct {
	PID        int32
	UID        uint32
	GID        uint32
	BinaryPath string

	hashOnce sync.Once
	hash     string
}

// BinaryHash returns the SHA-256 of the peer executable. It is computed on
// the first call and shared by every call on the connection.
func (a *peerAuthInfo) BinaryHash() string {
	a.hashOnce.Do(func() {
		if a.BinaryPath == "" {
			return
		}
		a.hash, _ = common.HashFile(a.BinaryPath) //nolint:errcheck
	})
	return a.hash
}

func (a *peerAuthInfo) AuthType() string {
	return "unix-peercred"
}

// GetPeerAuthInfo extracts peerAuthInfo from context
func GetPeerAuthInfo(ctx context.Context) (*peerAuthInfo, error) {
	p, ok := peer.FromContext(ctx)
	if !ok {
		return nil, fmt.Errorf("no peer in context")
	}

	authInfo, ok := p.AuthInfo.(*peerAuthInfo)
	if !ok {
		return nil, fmt.Errorf("auth info is not peerAuthInfo, got %T", p.AuthInfo)
	}

	return authInfo, nil
}

// auditInterceptor scopes the logger of every call to the calling process
// and logs the outcome at debug level. The peer binary is only hashed when
// debug logging is on.
func auditInterceptor(base *clog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		logger := base.With("method", info.FullMethod)
		if p, err := GetPeerAuthInfo(ctx); err == nil && p.PID > 0 {
			logger = logger.With("peer_pid", p.PID, "peer_uid", p.UID)
			if p.BinaryPath != "" {
				logger = logger.With("peer_binary", p.BinaryPath)
				if base.Handler().Enabled(ctx, slog.LevelDebug) {
					logger = logger.With("peer_hash", shortHash(p.BinaryHash()))
				}
			}
		}

		ctx, span := telemetry.Tracer().Start(ctx, info.FullMethod, trace.WithSpanKind(trace.SpanKindServer))
		defer span.End()
		ctx = clog.WithLogger(ctx, logger)

		start := time.Now()
		resp, err := handler(ctx, req)
		code := status.Code(err)
		if err != nil {
			span.SetStatus(otelcodes.Error, code.String())
		}
		clog.FromContext(ctx).DebugContext(ctx, "rpc", "code", code.String(), "duration", time.Since(start))
		return resp, err
	}
}

func shortHash(h string) string {
	if len(h) > 16 {
		return h[:16]
	}
	return h
}
