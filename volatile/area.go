// SPDX-FileCopyrightText: Copyright 2025 Carabiner Systems, Inc
// SPDX-License-Identifier: Apache-2.0

// Package volatile exposes the public interface for the storage areas that
// hold session keys and secret records. Every implementation is expected to
// lose its contents when the process (or the container hosting it) goes away:
// a tmpfs directory, the process keyring or plain memory.
package volatile

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when the key is not in the area.
var ErrNotFound = errors.New("key not found")

// Area defines a byte-addressable key value store backed by volatile
// storage. Keys are slash separated, the first segment being the namespace
// (eg "secrets/<id>"). Implementations must be safe for concurrent use but
// are not required to support multi-key transactions.
type Area interface {
	// Put writes the value under key, replacing any previous value.
	Put(context.Context, string, []byte) error

	// Get reads the value stored under key. Returns ErrNotFound when absent.
	Get(context.Context, string) ([]byte, error)

	// Delete removes a key. Deleting an absent key is not an error.
	Delete(context.Context, string) error

	// List returns the sorted keys that start with prefix.
	List(context.Context, string) ([]string, error)
}

// Description reports where an area keeps its data.
type Description struct {
	Backend  string `json:"backend"`  // Driver name (memory, dir, keyring, badger)
	Location string `json:"location"` // Path or keyring reference
	Volatile bool   `json:"volatile"` // True when the data is known to vanish with the process/host
}

// Describer is implemented by areas that can report their backing storage.
type Describer interface {
	Describe() Description
}
