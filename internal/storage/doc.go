// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage persists named snapshots for the chat client.
//
// Snapshots are opaque JSON documents stored under a key, e.g.
// "chat-app-storage" for conversations and "app-config-storage" for model
// settings. Two backends are available:
//
//   - FileBackend: one JSON file per key, written atomically
//   - SQLiteBackend: a single key/value table in a SQLite database
//
// Usage:
//
//	backend, err := storage.Open(storage.KindFile, "~/.mockchat/data")
//	if err != nil {
//	    return err
//	}
//	defer backend.Close()
//	data, err := backend.Load(ctx, "chat-app-storage")
//	if errors.Is(err, storage.ErrNotFound) {
//	    // first run
//	}
package storage
