// SPDX-FileCopyrightText: Copyright 2025 Carabiner Systems, Inc
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"context"

	"github.com/chainguard-dev/clog"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/carabiner-dev/tmpvault/internal/rpc"
)

// CreateSession implements the CreateSession RPC
func (s *Server) CreateSession(ctx context.Context, req *rpc.CreateSessionRequest) (*wrapperspb.StringValue, error) {
	userID := req.GetUserID()
	id, err := s.vault.CreateSession(ctx, userID, req.GetPayload())
	if err != nil {
		clog.FromContext(ctx).Warnf("creating session for %q: %v", userID, err)
		return nil, rpc.ToStatus(err)
	}

	clog.FromContext(ctx).Debugf("Created session %s for user %q", id, userID)
	return wrapperspb.String(id), nil
}

// GetSession implements the GetSession RPC
func (s *Server) GetSession(ctx context.Context, req *wrapperspb.StringValue) (*rpc.Session, error) {
	sess, err := s.vault.GetSession(ctx, req.GetValue())
	if err != nil {
		clog.FromContext(ctx).Debugf("reading session %s: %v", req.GetValue(), err)
		return nil, rpc.ToStatus(err)
	}
	return rpc.SessionMessage(sess), nil
}

// DeleteSession implements the DeleteSession RPC
func (s *Server) DeleteSession(ctx context.Context, req *wrapperspb.StringValue) (*emptypb.Empty, error) {
	if err := s.vault.DeleteSession(ctx, req.GetValue()); err != nil {
		return nil, rpc.ToStatus(err)
	}
	clog.FromContext(ctx).Debugf("Deleted session %s", req.GetValue())
	return &emptypb.Empty{}, nil
}
