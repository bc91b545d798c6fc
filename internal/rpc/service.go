// SPDX-FileCopyrightText: Copyright 2025 Carabiner Systems, Inc
// SPDX-License-Identifier: Apache-2.0

// Package rpc defines the tmpvault gRPC service. The message schema is
// built at init from descriptors matching proto/tmpvault/v1/vault.proto, so
// the service needs no generated code.
package rpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "tmpvault.v1.Vault"

// Method names.
const (
	MethodPing          = "Ping"
	MethodCreateSession = "CreateSession"
	MethodGetSession    = "GetSession"
	MethodDeleteSession = "DeleteSession"
	MethodStoreSecret   = "StoreSecret"
	MethodListSecrets   = "ListSecrets"
	MethodGetSecret     = "GetSecret"
	MethodDeleteSecret  = "DeleteSecret"
	MethodSecurityInfo  = "SecurityInfo"
)

// VaultServer is the server API of the vault service.
type VaultServer interface {
	Ping(context.Context, *emptypb.Empty) (*wrapperspb.BoolValue, error)
	CreateSession(context.Context, *CreateSessionRequest) (*wrapperspb.StringValue, error)
	GetSession(context.Context, *wrapperspb.StringValue) (*Session, error)
	DeleteSession(context.Context, *wrapperspb.StringValue) (*emptypb.Empty, error)
	StoreSecret(context.Context, *StoreSecretRequest) (*wrapperspb.StringValue, error)
	ListSecrets(context.Context, *emptypb.Empty) (*SecretList, error)
	GetSecret(context.Context, *wrapperspb.StringValue) (*Secret, error)
	DeleteSecret(context.Context, *wrapperspb.StringValue) (*emptypb.Empty, error)
	SecurityInfo(context.Context, *emptypb.Empty) (*SecurityInfo, error)
}

// FullMethod returns the gRPC path of a method.
func FullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

func newEmpty() *emptypb.Empty { return &emptypb.Empty{} }

func newID() *wrapperspb.StringValue { return &wrapperspb.StringValue{} }

// handler adapts a typed server method to a grpc.MethodHandler. newReq
// returns the empty request message the call is decoded into.
func handler[Req, Resp proto.Message](method string, newReq func() Req, call func(VaultServer, context.Context, Req) (Resp, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := newReq()
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(VaultServer), ctx, in) //nolint:forcetypeassert
		}
		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: FullMethod(method),
		}
		return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
			return call(srv.(VaultServer), ctx, req.(Req)) //nolint:forcetypeassert
		})
	}
}

// ServiceDesc describes the vault service for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*VaultServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: MethodPing, Handler: handler(MethodPing, newEmpty, VaultServer.Ping)},
		{MethodName: MethodCreateSession, Handler: handler(MethodCreateSession, newCreateSessionRequest, VaultServer.CreateSession)},
		{MethodName: MethodGetSession, Handler: handler(MethodGetSession, newID, VaultServer.GetSession)},
		{MethodName: MethodDeleteSession, Handler: handler(MethodDeleteSession, newID, VaultServer.DeleteSession)},
		{MethodName: MethodStoreSecret, Handler: handler(MethodStoreSecret, newStoreSecretRequest, VaultServer.StoreSecret)},
		{MethodName: MethodListSecrets, Handler: handler(MethodListSecrets, newEmpty, VaultServer.ListSecrets)},
		{MethodName: MethodGetSecret, Handler: handler(MethodGetSecret, newID, VaultServer.GetSecret)},
		{MethodName: MethodDeleteSecret, Handler: handler(MethodDeleteSecret, newID, VaultServer.DeleteSecret)},
		{MethodName: MethodSecurityInfo, Handler: handler(MethodSecurityInfo, newEmpty, VaultServer.SecurityInfo)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: ProtoFile,
}

// RegisterVaultServer registers srv with s.
func RegisterVaultServer(s grpc.ServiceRegistrar, srv VaultServer) {
	s.RegisterService(&ServiceDesc, srv)
}
