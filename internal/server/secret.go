// SPDX-FileCopyrightText: Copyright 2025 Carabiner Systems, Inc
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"context"
	"errors"

	"github.com/chainguard-dev/clog"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/carabiner-dev/tmpvault/internal/rpc"
	"github.com/carabiner-dev/tmpvault/internal/secret"
)

// StoreSecret implements the StoreSecret RPC
func (s *Server) StoreSecret(ctx context.Context, req *rpc.StoreSecretRequest) (*wrapperspb.StringValue, error) {
	ttl, err := req.GetTTLSeconds()
	if err != nil {
		return nil, rpc.ToStatus(err)
	}
	name, value := req.GetName(), req.GetValue()

	clog.FromContext(ctx).Debugf("Store request for secret: %s", name)
	id, err := s.vault.StoreSecret(ctx, name, value, ttl)
	if err != nil {
		clog.FromContext(ctx).Warnf("storing secret %q: %v", name, err)
		return nil, rpc.ToStatus(err)
	}
	return wrapperspb.String(id), nil
}

// ListSecrets implements the ListSecrets RPC. Records that cannot be read
// are left out of the listing.
func (s *Server) ListSecrets(ctx context.Context, _ *emptypb.Empty) (*rpc.SecretList, error) {
	list := rpc.NewSecretList()
	for info, err := range s.vault.ListSecrets(ctx) {
		if err != nil {
			var recErr *secret.RecordError
			if errors.As(err, &recErr) {
				clog.FromContext(ctx).Warnf("skipping unreadable secret %s: %v", recErr.ID, recErr.Err)
				continue
			}
			return nil, rpc.ToStatus(err)
		}
		list.Append(&info)
	}
	return list, nil
}

// GetSecret implements the GetSecret RPC
func (s *Server) GetSecret(ctx context.Context, req *wrapperspb.StringValue) (*rpc.Secret, error) {
	sec, err := s.vault.GetSecret(ctx, req.GetValue())
	if err != nil {
		clog.FromContext(ctx).Debugf("reading secret %s: %v", req.GetValue(), err)
		return nil, rpc.ToStatus(err)
	}
	return rpc.SecretMessage(sec), nil
}

// DeleteSecret implements the DeleteSecret RPC
func (s *Server) DeleteSecret(ctx context.Context, req *wrapperspb.StringValue) (*emptypb.Empty, error) {
	if err := s.vault.DeleteSecret(ctx, req.GetValue()); err != nil {
		return nil, rpc.ToStatus(err)
	}
	clog.FromContext(ctx).Debugf("Deleted secret %s", req.GetValue())
	return &emptypb.Empty{}, nil
}
