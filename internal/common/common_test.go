// SPDX-FileCopyrightText: Copyright 2025 Carabiner Systems, Inc
// SPDX-License-Identifier: Apache-2.0

package common

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func TestKind(t *testing.T) {
	for _, tc := range []struct {
		name string
		err  error
		want error
	}{
		{"not-found", Errorf(ErrNotFound, "session %s", "abc"), ErrNotFound},
		{"double-wrapped", fmt.Errorf("handling: %w", Errorf(ErrStorage, "disk")), ErrStorage},
		{"decryption", Errorf(ErrDecryption, "bad tag"), ErrDecryption},
		{"plain", errors.New("boom"), nil},
		{"nil", nil, nil},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if got := Kind(tc.err); got != tc.want { //nolint:errorlint
				t.Errorf("Expected kind %v, got %v", tc.want, got)
			}
		})
	}
}

func TestErrorfMessage(t *testing.T) {
	err := Errorf(ErrUnauthorized, "key mismatch for %q", "s1")
	if err.Error() != `unauthorized: key mismatch for "s1"` {
		t.Errorf("Unexpected message: %s", err)
	}
}

func TestGenerateToken(t *testing.T) {
	a, err := GenerateToken(16)
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}
	b, err := GenerateToken(16)
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}

	if len(a) != 32 {
		t.Errorf("Expected 32 hex chars, got %d", len(a))
	}
	if a == b {
		t.Errorf("Expected different tokens, got %s twice", a)
	}
}

func TestZeroBytes(t *testing.T) {
	b := []byte("key-material")
	ZeroBytes(b)
	for i, c := range b {
		if c != 0 {
			t.Fatalf("Byte %d not zeroed", i)
		}
	}
}

func TestHashFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data")
	if err := os.WriteFile(path, []byte("hello"), 0o600); err != nil {
		t.Fatal(err)
	}

	hash, err := HashFile(path)
	if err != nil {
		t.Fatalf("HashFile failed: %v", err)
	}

	// sha256("hello")
	want := "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"
	if hash != want {
		t.Errorf("Expected %s, got %s", want, hash)
	}
}

func TestGetClientBinaryPathSelf(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("process binary lookup test only runs on linux")
	}

	path, err := GetClientBinaryPath(int32(os.Getpid())) //nolint:gosec
	if err != nil {
		t.Fatalf("GetClientBinaryPath failed: %v", err)
	}
	hash, err := HashFile(path)
	if err != nil {
		t.Fatalf("HashFile failed: %v", err)
	}

	self, err := GetCurrentBinaryHash()
	if err != nil {
		t.Fatalf("GetCurrentBinaryHash failed: %v", err)
	}

	if hash != self {
		t.Errorf("Expected hash of own binary %s, got %s", self, hash)
	}
}

func TestSocketPath(t *testing.T) {
	if got := SocketPath("/run/custom.sock"); got != "/run/custom.sock" {
		t.Errorf("Expected configured path, got %s", got)
	}
	def := SocketPath("")
	if def != DefaultSocketPath() {
		t.Errorf("Expected default path, got %s", def)
	}
	if filepath.Dir(def) != filepath.Clean(os.TempDir()) {
		t.Errorf("Expected default socket in the temp dir, got %s", def)
	}
}
