// SPDX-FileCopyrightText: Copyright 2025 Carabiner Systems, Inc
// SPDX-License-Identifier: Apache-2.0

package rpc

import (
	"context"
	"fmt"
	"iter"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/carabiner-dev/tmpvault/internal/secret"
	"github.com/carabiner-dev/tmpvault/internal/session"
	"github.com/carabiner-dev/tmpvault/internal/vault"
)

// Client calls the vault service over a gRPC connection.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps a connection.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func invoke(ctx context.Context, cc grpc.ClientConnInterface, method string, in, out proto.Message) error {
	if err := cc.Invoke(ctx, FullMethod(method), in, out); err != nil {
		return FromStatus(err)
	}
	return nil
}

// Ping checks that the server is alive.
func (c *Client) Ping(ctx context.Context) error {
	resp := &wrapperspb.BoolValue{}
	if err := invoke(ctx, c.cc, MethodPing, newEmpty(), resp); err != nil {
		return err
	}
	if !resp.GetValue() {
		return fmt.Errorf("server is not alive")
	}
	return nil
}

func (c *Client) CreateSession(ctx context.Context, userID string, payload []byte) (string, error) {
	resp := newID()
	if err := invoke(ctx, c.cc, MethodCreateSession, NewCreateSessionRequest(userID, payload), resp); err != nil {
		return "", err
	}
	return resp.GetValue(), nil
}

func (c *Client) GetSession(ctx context.Context, id string) (*session.Session, error) {
	resp := newSession()
	if err := invoke(ctx, c.cc, MethodGetSession, wrapperspb.String(id), resp); err != nil {
		return nil, err
	}
	return resp.ToSession(), nil
}

func (c *Client) DeleteSession(ctx context.Context, id string) error {
	return invoke(ctx, c.cc, MethodDeleteSession, wrapperspb.String(id), newEmpty())
}

func (c *Client) StoreSecret(ctx context.Context, name string, value []byte, ttlSeconds int64) (string, error) {
	resp := newID()
	if err := invoke(ctx, c.cc, MethodStoreSecret, NewStoreSecretRequest(name, value, ttlSeconds), resp); err != nil {
		return "", err
	}
	return resp.GetValue(), nil
}

// ListSecrets fetches the listing when the sequence is iterated. Each
// iteration issues a new call.
func (c *Client) ListSecrets(ctx context.Context) iter.Seq2[secret.Info, error] {
	return func(yield func(secret.Info, error) bool) {
		resp := NewSecretList()
		if err := invoke(ctx, c.cc, MethodListSecrets, newEmpty(), resp); err != nil {
			yield(secret.Info{}, err)
			return
		}
		for _, info := range resp.Infos() {
			if !yield(info, nil) {
				return
			}
		}
	}
}

func (c *Client) GetSecret(ctx context.Context, id string) (*secret.Secret, error) {
	resp := newSecret()
	if err := invoke(ctx, c.cc, MethodGetSecret, wrapperspb.String(id), resp); err != nil {
		return nil, err
	}
	return resp.ToSecret(), nil
}

func (c *Client) DeleteSecret(ctx context.Context, id string) error {
	return invoke(ctx, c.cc, MethodDeleteSecret, wrapperspb.String(id), newEmpty())
}

func (c *Client) SecurityInfo(ctx context.Context) (*vault.SecurityInfo, error) {
	resp := newSecurityInfo()
	if err := invoke(ctx, c.cc, MethodSecurityInfo, newEmpty(), resp); err != nil {
		return nil, err
	}
	return resp.ToSecurityInfo(), nil
}
