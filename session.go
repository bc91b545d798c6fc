// SPDX-FileCopyrightText: Copyright 2025 Carabiner Systems, Inc
// SPDX-License-Identifier: Apache-2.0

package tmpvault

import (
	"context"
	"fmt"
)

// CreateSession opens a session for userID holding payload and returns its
// id. Sessions stay until deleted or until the vault goes away. The payload
// is opaque and comes back byte for byte.
func (c *Client) CreateSession(ctx context.Context, userID string, payload []byte) (string, error) {
	s, err := c.connected()
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	id, err := s.CreateSession(ctx, userID, payload)
	if err != nil {
		return "", fmt.Errorf("creating session: %w", err)
	}
	return id, nil
}

// GetSession returns the session with id after checking its verification
// key. It fails with ErrNotFound or ErrUnauthorized.
func (c *Client) GetSession(ctx context.Context, id string) (*Session, error) {
	s, err := c.connected()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	sess, err := s.GetSession(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("getting session: %w", err)
	}
	return sess, nil
}

// DeleteSession removes a session and its verification key.
func (c *Client) DeleteSession(ctx context.Context, id string) error {
	s, err := c.connected()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	if err := s.DeleteSession(ctx, id); err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	return nil
}
