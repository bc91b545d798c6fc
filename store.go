// SPDX-FileCopyrightText: Copyright 2025 Carabiner Systems, Inc
// SPDX-License-Identifier: Apache-2.0

package tmpvault

import (
	"context"
	"fmt"

	"github.com/carabiner-dev/tmpvault/options"
)

// Store encrypts and stores a secret, returning its id. Without WithTTL the
// secret lives for the vault default TTL.
func (c *Client) Store(ctx context.Context, name string, value []byte, fns ...options.StoreOptsFn) (string, error) {
	opts := &options.Store{}
	for _, fn := range fns {
		if err := fn(opts); err != nil {
			return "", fmt.Errorf("%w: %w", ErrInvalidArgument, err)
		}
	}

	s, err := c.connected()
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	id, err := s.StoreSecret(ctx, name, value, opts.TtlSeconds)
	if err != nil {
		return "", fmt.Errorf("storing secret: %w", err)
	}
	return id, nil
}
