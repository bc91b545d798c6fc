// SPDX-FileCopyrightText: Copyright 2025 Carabiner Systems, Inc
// SPDX-License-Identifier: Apache-2.0

//go:build linux

package volatile

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"slices"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/carabiner-dev/tmpvault/volatile"
)

// Ensure the driver implements the area interface
var _ volatile.Area = &KeyringArea{}

// keyType is the kernel key type used for all entries.
const keyType = "user"

// KeyringArea is a Linux kernel keyring implementation of the volatile.Area
// interface. Values are stored as "user" keys in the process keyring, which
// the kernel destroys when the process exits.
type KeyringArea struct {
	ringID int
}

// NewKeyringArea creates a new kernel keyring area.
// It uses the process keyring (KEY_SPEC_PROCESS_KEYRING) which is
// isolated per-process.
func NewKeyringArea() (*KeyringArea, error) {
	// Request the process keyring, creating it if it doesn't exist
	// The second parameter (true) tells the kernel to create it if needed
	ringID, err := unix.KeyctlGetKeyringID(unix.KEY_SPEC_PROCESS_KEYRING, true)
	if err != nil {
		return nil, fmt.Errorf("failed to access/create process keyring: %w", err)
	}

	return &KeyringArea{ringID: ringID}, nil
}

// search looks up a key by its description in the process keyring.
func (k *KeyringArea) search(key string) (int, error) {
	keyID, err := unix.KeyctlSearch(unix.KEY_SPEC_PROCESS_KEYRING, keyType, key, 0)
	if err != nil {
		if errors.Is(err, unix.ENOKEY) || errors.Is(err, unix.EKEYEXPIRED) || errors.Is(err, unix.EKEYREVOKED) {
			return 0, volatile.ErrNotFound
		}
		return 0, fmt.Errorf("looking up key: %w", err)
	}
	return keyID, nil
}

// Put stores the value in the kernel keyring.
func (k *KeyringArea) Put(_ context.Context, key string, value []byte) error {
	if err := validateKey(key); err != nil {
		return err
	}

	// Check if key already exists and delete it first
	// This ensures we're always creating a fresh key
	if existingKeyID, err := k.search(key); err == nil {
		//nolint:errcheck // Don't err if key can't be removed it will be overwritten anyway.
		_, _ = unix.KeyctlInt(unix.KEYCTL_UNLINK, existingKeyID, unix.KEY_SPEC_PROCESS_KEYRING, 0, 0)
	}

	// Add the key to the process keyring
	keyID, err := unix.AddKey(keyType, key, value, unix.KEY_SPEC_PROCESS_KEYRING)
	if err != nil {
		return fmt.Errorf("adding key to keyring: %w", err)
	}

	// Set a permission that only allows the owner to access
	if err := unix.KeyctlSetperm(keyID, 0x3f000000); err != nil {
		return fmt.Errorf("setting key permissions: %w", err)
	}

	return nil
}

// Get retrieves a value from the kernel keyring.
func (k *KeyringArea) Get(_ context.Context, key string) ([]byte, error) {
	keyID, err := k.search(key)
	if err != nil {
		return nil, err
	}

	// First, get the size of the key data
	size, err := unix.KeyctlBuffer(unix.KEYCTL_READ, keyID, nil, 0)
	if err != nil {
		return nil, fmt.Errorf("getting key size: %w", err)
	}

	// Allocate buffer and read the key data
	buf := make([]byte, size)
	n, err := unix.KeyctlBuffer(unix.KEYCTL_READ, keyID, buf, 0)
	if err != nil {
		return nil, fmt.Errorf("reading key from keyring: %w", err)
	}

	return buf[:min(n, size)], nil
}

// Delete unlinks a key from the process keyring.
func (k *KeyringArea) Delete(_ context.Context, key string) error {
	keyID, err := k.search(key)
	if errors.Is(err, volatile.ErrNotFound) {
		// Key not found is not an error
		return nil
	}
	if err != nil {
		return err
	}

	if _, err := unix.KeyctlInt(unix.KEYCTL_UNLINK, keyID, unix.KEY_SPEC_PROCESS_KEYRING, 0, 0); err != nil {
		return fmt.Errorf("unlinking key from keyring: %w", err)
	}

	return nil
}

// List reads the key serials linked in the process keyring and returns the
// descriptions of the user keys that start with prefix.
func (k *KeyringArea) List(_ context.Context, prefix string) ([]string, error) {
	size, err := unix.KeyctlBuffer(unix.KEYCTL_READ, k.ringID, nil, 0)
	if err != nil {
		return nil, fmt.Errorf("getting keyring size: %w", err)
	}

	buf := make([]byte, size)
	n, err := unix.KeyctlBuffer(unix.KEYCTL_READ, k.ringID, buf, 0)
	if err != nil {
		return nil, fmt.Errorf("reading keyring: %w", err)
	}
	buf = buf[:min(n, size)]

	keys := []string{}
	for i := 0; i+4 <= len(buf); i += 4 {
		serial := int(int32(binary.NativeEndian.Uint32(buf[i : i+4]))) //nolint:gosec

		// Description format is "type;uid;gid;perm;description"
		desc, err := unix.KeyctlString(unix.KEYCTL_DESCRIBE, serial)
		if err != nil {
			// The key may have been unlinked since we read the ring
			continue
		}
		parts := strings.SplitN(desc, ";", 5)
		if len(parts) != 5 || parts[0] != keyType {
			continue
		}
		if strings.HasPrefix(parts[4], prefix) {
			keys = append(keys, parts[4])
		}
	}
	slices.Sort(keys)
	return keys, nil
}

// Describe implements volatile.Describer.
func (k *KeyringArea) Describe() volatile.Description {
	return volatile.Description{
		Backend:  BackendKeyring,
		Location: fmt.Sprintf("process keyring %d", k.ringID),
		Volatile: true,
	}
}
