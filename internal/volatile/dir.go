// SPDX-FileCopyrightText: Copyright 2025 Carabiner Systems, Inc
// SPDX-License-Identifier: Apache-2.0

package volatile

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/carabiner-dev/tmpvault/volatile"
)

const tmpFilePrefix = ".tmpvault-tmp-"

var _ volatile.Area = &DirArea{}

// DirArea stores each key as a file under a root directory. The first key
// segment maps to a subdirectory so a key like "secrets/abc" ends up in
// <root>/secrets/abc. The directory is meant to be a tmpfs mount.
type DirArea struct {
	root  string
	tmpfs bool
}

// NewDirArea creates the directory driver. When requireTmpfs is set, the
// root directory must live on a tmpfs filesystem.
func NewDirArea(root string, requireTmpfs bool) (*DirArea, error) {
	if root == "" {
		return nil, fmt.Errorf("dir storage requires a root directory")
	}

	if err := os.MkdirAll(root, 0o700); err != nil {
		return nil, fmt.Errorf("creating storage directory: %w", err)
	}

	tmpfs, err := isTmpfs(root)
	if err != nil {
		return nil, fmt.Errorf("checking filesystem type: %w", err)
	}

	if requireTmpfs && !tmpfs {
		return nil, fmt.Errorf("%s is not mounted as tmpfs", root)
	}

	return &DirArea{root: root, tmpfs: tmpfs}, nil
}

func (d *DirArea) path(key string) string {
	return filepath.Join(d.root, filepath.FromSlash(key))
}

// Put writes the value to a temp file then renames it into place.
func (d *DirArea) Put(_ context.Context, key string, value []byte) error {
	if err := validateKey(key); err != nil {
		return err
	}

	filePath := d.path(key)
	if err := os.MkdirAll(filepath.Dir(filePath), 0o700); err != nil {
		return fmt.Errorf("creating namespace directory: %w", err)
	}

	tmpFile, err := os.CreateTemp(filepath.Dir(filePath), tmpFilePrefix+"*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	if _, err := tmpFile.Write(value); err != nil {
		tmpFile.Close()    //nolint:errcheck,gosec
		os.Remove(tmpPath) //nolint:errcheck,gosec
		return fmt.Errorf("writing file: %w", err)
	}

	if err := tmpFile.Close(); err != nil {
		os.Remove(tmpPath) //nolint:errcheck,gosec
		return fmt.Errorf("closing temp file: %w", err)
	}

	// Make file read/write for owner only
	if err := os.Chmod(tmpPath, 0o600); err != nil {
		os.Remove(tmpPath) //nolint:errcheck,gosec
		return fmt.Errorf("setting permissions: %w", err)
	}

	if err := os.Rename(tmpPath, filePath); err != nil {
		os.Remove(tmpPath) //nolint:errcheck,gosec
		return fmt.Errorf("renaming file: %w", err)
	}

	return nil
}

// Get reads the file backing key.
func (d *DirArea) Get(_ context.Context, key string) ([]byte, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(d.path(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, volatile.ErrNotFound
		}
		return nil, fmt.Errorf("reading file: %w", err)
	}
	return data, nil
}

// Delete removes the file backing key.
func (d *DirArea) Delete(_ context.Context, key string) error {
	if err := validateKey(key); err != nil {
		return err
	}

	if err := os.Remove(d.path(key)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("deleting file: %w", err)
	}
	return nil
}

// List reads the directory named by the prefix up to its last slash and
// returns the files whose key starts with prefix. In-flight temp files are
// skipped.
func (d *DirArea) List(_ context.Context, prefix string) ([]string, error) {
	dir, _ := path.Split(prefix)

	entries, err := os.ReadDir(filepath.Join(d.root, filepath.FromSlash(dir)))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("reading storage directory: %w", err)
	}

	keys := []string{}
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), tmpFilePrefix) {
			continue
		}
		key := dir + entry.Name()
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	slices.Sort(keys)
	return keys, nil
}

// Describe implements volatile.Describer. The area is reported as volatile
// only when the root is on tmpfs.
func (d *DirArea) Describe() volatile.Description {
	return volatile.Description{
		Backend:  BackendDir,
		Location: d.root,
		Volatile: d.tmpfs,
	}
}
