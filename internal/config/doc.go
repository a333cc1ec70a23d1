// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for mockchat.
//
// Configuration is read from TOML, with sensible defaults, .env support,
// environment variable overrides, and validation.
//
// # Configuration Precedence
//
// Configuration is loaded from (in order of precedence):
//   - Environment variables (MOCKCHAT_*), including those set by ./.env
//   - ~/.mockchat/config.toml
//   - Built-in defaults
//
// # Usage
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	addr := cfg.Server.Addr
//
// A Watcher reloads the file when it changes on disk:
//
//	w, err := config.NewWatcher(path, func(cfg *config.Config) { ... }, logger)
//	defer w.Close()
package config
