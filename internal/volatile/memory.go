// SPDX-FileCopyrightText: Copyright 2025 Carabiner Systems, Inc
// SPDX-License-Identifier: Apache-2.0

package volatile

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/carabiner-dev/tmpvault/volatile"
)

var _ volatile.Area = &MemoryArea{}

// MemoryArea is an in-memory implementation of the volatile.Area interface.
// It stores values in a map protected by a mutex for thread safety.
type MemoryArea struct {
	data map[string][]byte
	mu   sync.RWMutex
}

// NewMemoryArea creates a new in-memory area.
func NewMemoryArea() *MemoryArea {
	return &MemoryArea{
		data: make(map[string][]byte),
	}
}

// Put stores a copy of value in memory.
func (m *MemoryArea) Put(_ context.Context, key string, value []byte) error {
	if err := validateKey(key); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.data[key] = slices.Clone(value)
	return nil
}

// Get retrieves a copy of the value stored under key.
func (m *MemoryArea) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	value, exists := m.data[key]
	if !exists {
		return nil, volatile.ErrNotFound
	}

	return slices.Clone(value), nil
}

// Delete removes a key from memory.
func (m *MemoryArea) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.data, key)
	return nil
}

// List returns the sorted keys starting with prefix.
func (m *MemoryArea) List(_ context.Context, prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := []string{}
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)
	return keys, nil
}

// Describe implements volatile.Describer.
func (m *MemoryArea) Describe() volatile.Description {
	return volatile.Description{
		Backend:  BackendMemory,
		Location: "process memory",
		Volatile: true,
	}
}
