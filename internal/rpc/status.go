// SPDX-FileCopyrightText: Copyright 2025 Carabiner Systems, Inc
// SPDX-License-Identifier: Apache-2.0

package rpc

import (
	"context"
	"errors"
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/carabiner-dev/tmpvault/internal/common"
)

var kindCodes = []struct {
	kind error
	code codes.Code
}{
	{common.ErrNotFound, codes.NotFound},
	{common.ErrUnauthorized, codes.Unauthenticated},
	{common.ErrInvalidArgument, codes.InvalidArgument},
	{common.ErrStorage, codes.Unavailable},
	{common.ErrDecryption, codes.DataLoss},
}

// ToStatus converts a store error into a gRPC status error. The message
// keeps the kind prefix so the client can rebuild the same error.
func ToStatus(err error) error {
	if err == nil {
		return nil
	}

	kind := common.Kind(err)
	for _, kc := range kindCodes {
		if kc.kind == kind { //nolint:errorlint
			return status.Error(kc.code, err.Error())
		}
	}

	switch {
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	}

	if _, ok := status.FromError(err); ok {
		return err
	}
	return status.Error(codes.Internal, err.Error())
}

// FromStatus maps a gRPC status error back to the store error kinds.
// Transport failures without a kind prefix are returned untouched, an
// unreachable server is not a storage error.
func FromStatus(err error) error {
	if err == nil {
		return nil
	}

	st, ok := status.FromError(err)
	if !ok {
		return err
	}

	for _, kc := range kindCodes {
		if st.Code() != kc.code {
			continue
		}
		prefix := kc.kind.Error() + ": "
		if !strings.HasPrefix(st.Message(), prefix) {
			break
		}
		return common.Errorf(kc.kind, "%s", strings.TrimPrefix(st.Message(), prefix))
	}
	return err
}
