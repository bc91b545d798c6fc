// SPDX-FileCopyrightText: Copyright 2025 Carabiner Systems, Inc
// SPDX-License-Identifier: Apache-2.0

//go:build !linux && !darwin

package common

import "fmt"

// getBinaryPath is not implemented on this platform.
func getBinaryPath(pid int32) (string, error) {
	return "", fmt.Errorf("resolving the binary of pid %d is not supported on this platform", pid)
}
