// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides loading, validation and live updates of the
// forgechat connection configuration.
//
// # Key Types
//
//   - Config: Connection settings (URL, key, sampling) plus client tuning
//   - Store: Goroutine-safe holder of the active Config with change subscribers
//   - Watcher: Reloads the Store when the config file changes on disk
//
// # Configuration Precedence
//
// Configuration is loaded from (in order of precedence):
//   - Environment variables (FORGECHAT_*), including values from .env files
//   - ~/.forgechat/config.toml (or a .json file passed explicitly)
//   - Built-in defaults
//
// # Usage
//
//	cfg, err := config.Load("")
//	if err != nil {
//	    return err
//	}
//	store := config.NewStore(cfg, path)
//	store.Subscribe(func(old, cur *config.Config) { ... })
package config
