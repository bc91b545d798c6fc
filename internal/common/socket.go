// SPDX-FileCopyrightText: Copyright 2025 Carabiner Systems, Inc
// SPDX-License-Identifier: Apache-2.0

package common

import (
	"fmt"
	"os"
	"path/filepath"
)

// DefaultSocketPath returns the per user socket used when none is
// configured. Every client run by the same user reaches the same daemon.
func DefaultSocketPath() string {
	return filepath.Join(os.TempDir(), fmt.Sprintf("tmpvault-%d.sock", os.Getuid()))
}

// SocketPath returns path, or the default socket when path is empty.
func SocketPath(path string) string {
	if path != "" {
		return path
	}
	return DefaultSocketPath()
}
