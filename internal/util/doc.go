// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides small helpers shared across forgechat.
//
// # Key Functions
//
// String Utilities:
//   - TruncateRunes: UTF-8 safe truncation with ellipsis
//   - TruncateRunesNoEllipsis: UTF-8 safe hard cut
//   - TruncateWidth, PadWidth, StringWidth: terminal-column aware layout helpers
//
// File Operations:
//   - AtomicWriteFileWithDir: Crash-safe file writing with fsync
package util
