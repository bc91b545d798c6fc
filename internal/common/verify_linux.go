// SPDX-FileCopyrightText: Copyright 2025 Carabiner Systems, Inc
// SPDX-License-Identifier: Apache-2.0

//go:build linux

package common

import (
	"fmt"
	"os"
	"strings"
)

// getBinaryPath reads the /proc/[pid]/exe symlink of a process. If the
// binary was replaced after the process started the kernel appends
// " (deleted)" to the link target, which we strip.
func getBinaryPath(pid int32) (string, error) {
	binaryPath, err := os.Readlink(fmt.Sprintf("/proc/%d/exe", pid))
	if err != nil {
		return "", err
	}
	return strings.TrimSuffix(binaryPath, " (deleted)"), nil
}
