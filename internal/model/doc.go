// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for threads, messages, files and
// backend health.
//
// The types mirror the JSON shapes of the inference backend so they can be
// decoded directly from responses.
//
// # Key Types
//
//   - Thread: A conversation session with its own message history
//   - Message: Single message with role, content and timestamp
//   - FileRecord: An uploaded file usable as retrieval context
//   - HealthStatus: Result of the last liveness check
//   - Timestamp: Milliseconds since the Unix epoch, leniently decoded
//
// # Usage
//
//	msg := model.NewUserMessage("Hello!")
//	title := model.TitleFromPrompt(msg.Content)
package model
