// SPDX-FileCopyrightText: Copyright 2025 Carabiner Systems, Inc
// SPDX-License-Identifier: Apache-2.0

//go:build darwin

package common

import (
	"bytes"
	"fmt"

	"golang.org/x/sys/unix"
)

// getBinaryPath gets the binary path for a process on macOS. The
// kern.procargs2 sysctl returns argc as a 32 bit int followed by the
// NUL terminated executable path.
func getBinaryPath(pid int32) (string, error) {
	buf, err := unix.SysctlRaw("kern.procargs2", int(pid))
	if err != nil {
		return "", fmt.Errorf("reading process arguments: %w", err)
	}

	if len(buf) < 5 {
		return "", fmt.Errorf("no path returned for pid %d", pid)
	}

	path := buf[4:]
	if i := bytes.IndexByte(path, 0); i >= 0 {
		path = path[:i]
	}
	if len(path) == 0 {
		return "", fmt.Errorf("no path returned for pid %d", pid)
	}

	return string(path), nil
}
