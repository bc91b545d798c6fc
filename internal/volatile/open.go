// SPDX-FileCopyrightText: Copyright 2025 Carabiner Systems, Inc
// SPDX-License-Identifier: Apache-2.0

// Package volatile implements the storage drivers for the volatile.Area
// interface.
package volatile

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/chainguard-dev/clog"

	"github.com/carabiner-dev/tmpvault/options"
	"github.com/carabiner-dev/tmpvault/volatile"
)

// Backend names accepted in the storage options.
const (
	BackendAuto    = "auto"
	BackendMemory  = "memory"
	BackendDir     = "dir"
	BackendKeyring = "keyring"
	BackendBadger  = "badger"
)

// Open initializes the storage driver selected in the options. The "auto"
// backend tries the kernel keyring first and falls back to memory when it is
// not available.
func Open(ctx context.Context, opts *options.Storage) (volatile.Area, error) {
	switch opts.Backend {
	case BackendMemory:
		return NewMemoryArea(), nil
	case BackendDir:
		area, err := NewDirArea(opts.Dir, opts.RequireTmpfs)
		if err != nil {
			return nil, err
		}
		return area, nil
	case BackendKeyring:
		area, err := NewKeyringArea()
		if err != nil {
			return nil, err
		}
		return area, nil
	case BackendBadger:
		area, err := NewBadgerArea()
		if err != nil {
			return nil, err
		}
		return area, nil
	case BackendAuto, "":
		// In Linux, try to use the kernel keyring driver to store the data.
		keyring, err := NewKeyringArea()
		if err == nil {
			clog.FromContext(ctx).Debugf("Using kernel keyring storage")
			return keyring, nil
		}

		// .. but fall back to memory storage if not available
		clog.FromContext(ctx).Debugf("Kernel keyring not available, using memory storage: %v", err)
		return NewMemoryArea(), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", opts.Backend)
	}
}

// validateKey checks that a key is a relative slash separated path with no
// empty, "." or ".." segments. Keys double as file names in the dir driver.
func validateKey(key string) error {
	if key == "" {
		return fmt.Errorf("empty key")
	}
	if strings.ContainsAny(key, "\\\x00") {
		return fmt.Errorf("invalid character in key %q", key)
	}
	for _, seg := range strings.Split(key, "/") {
		if seg == "" || seg == "." || seg == ".." {
			return fmt.Errorf("invalid key %q", key)
		}
	}
	if !filepath.IsLocal(filepath.FromSlash(key)) {
		return fmt.Errorf("key %q is not a local path", key)
	}
	return nil
}
