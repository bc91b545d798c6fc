// SPDX-FileCopyrightText: Copyright 2025 Carabiner Systems, Inc
// SPDX-License-Identifier: Apache-2.0

//go:build !linux && !darwin

package server

import (
	"errors"
	"net"
)

// GetPeerCredentials is not supported on this platform.
func GetPeerCredentials(*net.UnixConn) (pid int32, uid, gid uint32, err error) {
	return 0, 0, 0, errors.New("peer credentials are not supported on this platform")
}
