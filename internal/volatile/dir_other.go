// SPDX-FileCopyrightText: Copyright 2025 Carabiner Systems, Inc
// SPDX-License-Identifier: Apache-2.0

//go:build !linux

package volatile

// isTmpfs always returns false outside of Linux, we have no reliable way to
// tell if a path is memory backed.
func isTmpfs(string) (bool, error) {
	return false, nil
}
