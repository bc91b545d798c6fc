// SPDX-FileCopyrightText: Copyright 2025 Carabiner Systems, Inc
// SPDX-License-Identifier: Apache-2.0

package tmpvault

import (
	"context"
	"fmt"
)

// SecurityInfo describes the storage backend and counts live objects.
func (c *Client) SecurityInfo(ctx context.Context) (*SecurityInfo, error) {
	s, err := c.connected()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	info, err := s.SecurityInfo(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading security info: %w", err)
	}
	return info, nil
}
