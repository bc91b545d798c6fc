// SPDX-FileCopyrightText: Copyright 2025 Carabiner Systems, Inc
// SPDX-License-Identifier: Apache-2.0

// Package envelope encrypts secret values with a fresh key and nonce per
// secret. The key and IV travel with the ciphertext, so the envelope only
// protects against partial reads of the storage area (eg a listing that
// does not fetch the key), not against someone who can read whole records.
package envelope

import (
	"crypto/aes"
	"crypto/cipher"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/carabiner-dev/tmpvault/internal/common"
)

// Cipher identifies the AEAD used to seal an envelope.
type Cipher string

const (
	AES256GCM        Cipher = "aes-256-gcm"
	ChaCha20Poly1305 Cipher = "chacha20-poly1305"
)

// KeySize is the size of the per-secret key, both ciphers use 256 bit keys.
const KeySize = 32

// Envelope is an encrypted value plus the material needed to open it.
type Envelope struct {
	Cipher     Cipher
	Ciphertext []byte
	Key        []byte
	IV         []byte
}

// Sealer encrypts values with the configured cipher.
type Sealer struct {
	cipher Cipher
}

// NewSealer returns a sealer for the named cipher. An empty name selects
// AES-256-GCM.
func NewSealer(name string) (*Sealer, error) {
	c := Cipher(name)
	if c == "" {
		c = AES256GCM
	}
	if _, err := newAEAD(c, make([]byte, KeySize)); err != nil {
		return nil, err
	}
	return &Sealer{cipher: c}, nil
}

// Cipher returns the cipher used by the sealer.
func (s *Sealer) Cipher() Cipher {
	return s.cipher
}

func newAEAD(c Cipher, key []byte) (cipher.AEAD, error) {
	switch c {
	case AES256GCM:
		block, err := aes.NewCipher(key)
		if err != nil {
			return nil, fmt.Errorf("creating cipher: %w", err)
		}
		return cipher.NewGCM(block)
	case ChaCha20Poly1305:
		return chacha20poly1305.New(key)
	default:
		return nil, fmt.Errorf("unknown cipher %q", c)
	}
}

// Seal encrypts plaintext under a freshly generated key and IV. The
// additional data is authenticated but not stored, the same value must be
// passed to Open.
func (s *Sealer) Seal(plaintext, additionalData []byte) (*Envelope, error) {
	key, err := common.RandomBytes(KeySize)
	if err != nil {
		return nil, fmt.Errorf("generating key: %w", err)
	}

	aead, err := newAEAD(s.cipher, key)
	if err != nil {
		return nil, err
	}

	iv, err := common.RandomBytes(aead.NonceSize())
	if err != nil {
		return nil, fmt.Errorf("generating iv: %w", err)
	}

	return &Envelope{
		Cipher:     s.cipher,
		Ciphertext: aead.Seal(nil, iv, plaintext, additionalData),
		Key:        key,
		IV:         iv,
	}, nil
}

// Open decrypts an envelope. Any inconsistency between the ciphertext, key,
// IV and additional data is reported as common.ErrDecryption.
func Open(env *Envelope, additionalData []byte) ([]byte, error) {
	if env == nil {
		return nil, common.Errorf(common.ErrDecryption, "nil envelope")
	}

	if len(env.Key) != KeySize {
		return nil, common.Errorf(common.ErrDecryption, "invalid key size %d", len(env.Key))
	}

	aead, err := newAEAD(env.Cipher, env.Key)
	if err != nil {
		return nil, common.Errorf(common.ErrDecryption, "%v", err)
	}

	if len(env.IV) != aead.NonceSize() {
		return nil, common.Errorf(common.ErrDecryption, "invalid iv size %d", len(env.IV))
	}

	plaintext, err := aead.Open(nil, env.IV, env.Ciphertext, additionalData)
	if err != nil {
		return nil, common.Errorf(common.ErrDecryption, "%v", err)
	}

	return plaintext, nil
}
