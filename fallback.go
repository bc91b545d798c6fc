// SPDX-FileCopyrightText: Copyright 2025 Carabiner Systems, Inc
// SPDX-License-Identifier: Apache-2.0

package tmpvault

import (
	"context"
	"fmt"

	"github.com/carabiner-dev/tmpvault/internal/vault"
	ivolatile "github.com/carabiner-dev/tmpvault/internal/volatile"
	"github.com/carabiner-dev/tmpvault/options"
)

// startLocal runs the vault inside the calling process. Everything it
// holds lives in process memory and is gone when the client closes.
func (c *Client) startLocal(ctx context.Context) error {
	opts := options.NewServer()
	opts.Common = c.options.Common
	opts.Storage.Backend = ivolatile.BackendMemory

	v, err := vault.New(ctx, opts)
	if err != nil {
		return fmt.Errorf("starting in-process vault: %w", err)
	}

	c.local = v
	c.store = v
	return nil
}
