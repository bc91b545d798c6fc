// SPDX-FileCopyrightText: Copyright 2025 Carabiner Systems, Inc
// SPDX-License-Identifier: Apache-2.0

package secret

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/carabiner-dev/tmpvault/internal/common"
	"github.com/carabiner-dev/tmpvault/internal/envelope"
)

// StatusActive is the only status a listed secret can have, expired
// secrets are never listed.
const StatusActive = "active"

// Info is the metadata of a stored secret. It never carries the value or
// the material needed to decrypt it.
type Info struct {
	ID        string
	Name      string
	CreatedAt time.Time
	ExpiresAt time.Time
	Status    string
}

// Secret is a decrypted secret.
type Secret struct {
	Info
	Value []byte
}

// RecordError reports a record that could not be read while walking the
// area. It unwraps to the error kind of the failure.
type RecordError struct {
	ID  string
	Err error
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("secret %s: %v", e.ID, e.Err)
}

func (e *RecordError) Unwrap() error {
	return e.Err
}

// record is the JSON document written to the area for each secret.
type record struct {
	Name      string    `json:"name"`
	Cipher    string    `json:"cipher"`
	Encrypted string    `json:"encrypted"`
	Key       string    `json:"key"`
	IV        string    `json:"iv"`
	Created   time.Time `json:"created"`
	Expires   time.Time `json:"expires"`
}

func newRecord(name string, env *envelope.Envelope, created, expires time.Time) *record {
	return &record{
		Name:      name,
		Cipher:    string(env.Cipher),
		Encrypted: hex.EncodeToString(env.Ciphertext),
		Key:       hex.EncodeToString(env.Key),
		IV:        hex.EncodeToString(env.IV),
		Created:   created,
		Expires:   expires,
	}
}

func parseRecord(data []byte) (*record, error) {
	rec := &record{}
	if err := json.Unmarshal(data, rec); err != nil {
		return nil, common.Errorf(common.ErrStorage, "decoding secret record: %v", err)
	}
	if rec.Expires.IsZero() {
		return nil, common.Errorf(common.ErrStorage, "secret record has no expiration")
	}
	return rec, nil
}

// expired reports whether the record is past its deadline at now. A
// secret is gone at exactly createdAt + ttl.
func (r *record) expired(now time.Time) bool {
	return !now.Before(r.Expires)
}

func (r *record) info(id string) Info {
	return Info{
		ID:        id,
		Name:      r.Name,
		CreatedAt: r.Created,
		ExpiresAt: r.Expires,
		Status:    StatusActive,
	}
}

func (r *record) envelope() (*envelope.Envelope, error) {
	ciphertext, err := hex.DecodeString(r.Encrypted)
	if err != nil {
		return nil, common.Errorf(common.ErrDecryption, "decoding ciphertext: %v", err)
	}
	key, err := hex.DecodeString(r.Key)
	if err != nil {
		return nil, common.Errorf(common.ErrDecryption, "decoding key: %v", err)
	}
	iv, err := hex.DecodeString(r.IV)
	if err != nil {
		return nil, common.Errorf(common.ErrDecryption, "decoding iv: %v", err)
	}
	return &envelope.Envelope{
		Cipher:     envelope.Cipher(r.Cipher),
		Ciphertext: ciphertext,
		Key:        key,
		IV:         iv,
	}, nil
}
