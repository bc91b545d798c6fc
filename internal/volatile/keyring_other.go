// SPDX-FileCopyrightText: Copyright 2025 Carabiner Systems, Inc
// SPDX-License-Identifier: Apache-2.0

//go:build !linux

package volatile

import (
	"fmt"

	"github.com/carabiner-dev/tmpvault/volatile"
)

// NewKeyringArea always returns an error on non-Linux platforms.
func NewKeyringArea() (volatile.Area, error) {
	return nil, fmt.Errorf("kernel keyring storage is only supported on Linux")
}
