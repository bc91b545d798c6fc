// SPDX-FileCopyrightText: Copyright 2025 Carabiner Systems, Inc
// SPDX-License-Identifier: Apache-2.0

package tmpvault

import (
	"context"
	"fmt"
)

// Delete removes a secret before it expires.
func (c *Client) Delete(ctx context.Context, id string) error {
	s, err := c.connected()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	if err := s.DeleteSecret(ctx, id); err != nil {
		return fmt.Errorf("deleting secret: %w", err)
	}
	return nil
}
