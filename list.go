// SPDX-FileCopyrightText: Copyright 2025 Carabiner Systems, Inc
// SPDX-License-Identifier: Apache-2.0

package tmpvault

import (
	"context"
	"errors"
	"fmt"

	"github.com/chainguard-dev/clog"

	"github.com/carabiner-dev/tmpvault/internal/secret"
)

// List returns the metadata of the live secrets. Values are never listed.
// Records that cannot be read are skipped.
func (c *Client) List(ctx context.Context) ([]SecretInfo, error) {
	s, err := c.connected()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	infos := []SecretInfo{}
	for info, err := range s.ListSecrets(ctx) {
		if err != nil {
			var recErr *secret.RecordError
			if errors.As(err, &recErr) {
				clog.FromContext(ctx).Warnf("skipping unreadable secret %s: %v", recErr.ID, recErr.Err)
				continue
			}
			return nil, fmt.Errorf("listing secrets: %w", err)
		}
		infos = append(infos, info)
	}
	return infos, nil
}
