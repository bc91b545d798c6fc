// SPDX-FileCopyrightText: Copyright 2025 Carabiner Systems, Inc
// SPDX-License-Identifier: Apache-2.0

//go:build linux

package server

import (
	"fmt"
	"net"

	"golang.org/x/sys/unix"
)

// GetPeerCredentials reads SO_PEERCRED from the client connection.
func GetPeerCredentials(conn *net.UnixConn) (pid int32, uid, gid uint32, err error) {
	rawConn, err := conn.SyscallConn()
	if err != nil {
		return 0, 0, 0, fmt.Errorf("getting raw connection: %w", err)
	}

	var ucred *unix.Ucred
	var credErr error
	if err := rawConn.Control(func(fd uintptr) {
		ucred, credErr = unix.GetsockoptUcred(int(fd), unix.SOL_SOCKET, unix.SO_PEERCRED)
	}); err != nil {
		return 0, 0, 0, fmt.Errorf("trying to control raw connection: %w", err)
	}
	if credErr != nil {
		return 0, 0, 0, fmt.Errorf("failed to get peer credentials: %w", credErr)
	}

	return ucred.Pid, ucred.Uid, ucred.Gid, nil
}
