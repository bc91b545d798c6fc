// SPDX-FileCopyrightText: Copyright 2025 Carabiner Systems, Inc
// SPDX-License-Identifier: Apache-2.0

package common

import (
	"errors"
	"fmt"
)

// Error kinds returned by the store. Callers test for them with errors.Is,
// every error surfaced by the registries wraps exactly one of these.
var (
	ErrNotFound        = errors.New("not found")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrStorage         = errors.New("storage error")
	ErrDecryption      = errors.New("decryption error")
)

// Errorf wraps kind with a formatted message.
func Errorf(kind error, format string, args ...any) error {
	return fmt.Errorf("%w: %s", kind, fmt.Sprintf(format, args...))
}

// Kind returns the error kind wrapped in err or nil if err is not one of
// the store error kinds.
func Kind(err error) error {
	for _, kind := range []error{ErrNotFound, ErrUnauthorized, ErrInvalidArgument, ErrStorage, ErrDecryption} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}
