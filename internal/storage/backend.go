// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// ErrNotFound is returned by Load when nothing is stored under a key.
var ErrNotFound = errors.New("storage: key not found")

// ErrInvalidKey is returned for keys that are empty or contain characters
// outside [A-Za-z0-9._-].
var ErrInvalidKey = errors.New("storage: invalid key")

var validKey = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// Backend stores snapshots by key.
type Backend interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Save(ctx context.Context, key string, data []byte) error
	Delete(ctx context.Context, key string) error
	Keys(ctx context.Context) ([]string, error)
	Close() error
}

// Kind selects a backend implementation.
type Kind string

const (
	KindFile   Kind = "file"
	KindSQLite Kind = "sqlite"
)

// Open creates the backend of the given kind rooted at path. For KindFile
// path is a directory; for KindSQLite it is the database file. A leading
// "~/" expands to the home directory.
func Open(kind Kind, path string) (Backend, error) {
	path, err := ExpandHome(path)
	if err != nil {
		return nil, err
	}
	switch kind {
	case KindFile, "":
		return NewFileBackend(path)
	case KindSQLite:
		return NewSQLiteBackend(path)
	default:
		return nil, fmt.Errorf("storage: unknown backend %q", kind)
	}
}

// ExpandHome replaces a leading "~/" with the user's home directory.
func ExpandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}

func checkKey(key string) error {
	if !validKey.MatchString(key) {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return nil
}
