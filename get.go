// SPDX-FileCopyrightText: Copyright 2025 Carabiner Systems, Inc
// SPDX-License-Identifier: Apache-2.0

package tmpvault

import (
	"context"
	"fmt"
)

// Get decrypts the secret with id. Expired secrets are reported as
// ErrNotFound.
func (c *Client) Get(ctx context.Context, id string) (*Secret, error) {
	s, err := c.connected()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	sec, err := s.GetSecret(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("getting secret: %w", err)
	}
	return sec, nil
}
