// SPDX-FileCopyrightText: Copyright 2025 Carabiner Systems, Inc
// SPDX-License-Identifier: Apache-2.0

package volatile

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v3"

	"github.com/carabiner-dev/tmpvault/volatile"
)

var _ volatile.Area = &BadgerArea{}

// BadgerArea runs badger in in-memory mode: nothing is written to disk and
// the whole database goes away when it is closed or the process exits.
type BadgerArea struct {
	db *badger.DB
}

// NewBadgerArea opens an in-memory badger database.
func NewBadgerArea() (*BadgerArea, error) {
	opts := badger.DefaultOptions("").
		WithInMemory(true).
		WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening in-memory badger: %w", err)
	}
	return &BadgerArea{db: db}, nil
}

// Put stores the value under key.
func (b *BadgerArea) Put(_ context.Context, key string, value []byte) error {
	if err := validateKey(key); err != nil {
		return err
	}

	if err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), value)
	}); err != nil {
		return fmt.Errorf("writing key: %w", err)
	}
	return nil
}

// Get returns a copy of the value stored under key.
func (b *BadgerArea) Get(_ context.Context, key string) ([]byte, error) {
	var value []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, volatile.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading key: %w", err)
	}
	return value, nil
}

// Delete removes key from the database.
func (b *BadgerArea) Delete(_ context.Context, key string) error {
	if err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	}); err != nil {
		return fmt.Errorf("deleting key: %w", err)
	}
	return nil
}

// List iterates the keys under prefix. Badger iterates in byte order so
// the result is already sorted.
func (b *BadgerArea) List(_ context.Context, prefix string) ([]string, error) {
	keys := []string{}
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(prefix)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek([]byte(prefix)); it.ValidForPrefix([]byte(prefix)); it.Next() {
			keys = append(keys, string(it.Item().KeyCopy(nil)))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing keys: %w", err)
	}
	return keys, nil
}

// Close releases the database, dropping all its contents.
func (b *BadgerArea) Close() error {
	return b.db.Close()
}

// Describe implements volatile.Describer.
func (b *BadgerArea) Describe() volatile.Description {
	return volatile.Description{
		Backend:  BackendBadger,
		Location: "badger in-memory",
		Volatile: true,
	}
}
