// SPDX-FileCopyrightText: Copyright 2025 Carabiner Systems, Inc
// SPDX-License-Identifier: Apache-2.0

// Package tmpvault is the client library of the tmpvault ephemeral secret
// and session store.
package tmpvault

import (
	"github.com/carabiner-dev/tmpvault/internal/common"
	"github.com/carabiner-dev/tmpvault/internal/secret"
	"github.com/carabiner-dev/tmpvault/internal/session"
	"github.com/carabiner-dev/tmpvault/internal/vault"
)

type (
	// Session is a verified session as returned by GetSession.
	Session = session.Session

	// SecretInfo is the metadata of a stored secret.
	SecretInfo = secret.Info

	// Secret is a decrypted secret.
	Secret = secret.Secret

	// SecurityInfo describes the storage backing the vault.
	SecurityInfo = vault.SecurityInfo
)

// Errors returned by the client. Test for them with errors.Is.
var (
	ErrNotFound        = common.ErrNotFound
	ErrUnauthorized    = common.ErrUnauthorized
	ErrInvalidArgument = common.ErrInvalidArgument
	ErrStorage         = common.ErrStorage
	ErrDecryption      = common.ErrDecryption
)
