// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli provides the forgechat command line.
//
// The root command starts the interactive chat. Everything else is a
// one-shot command against the same session wiring:
//
//	forgechat                         interactive chat (same as "chat")
//	forgechat ask "question" --file 3 one-shot send
//	forgechat health                  backend status
//	forgechat threads | files         list threads or files
//	forgechat upload report.pdf       upload a file
//	forgechat config show|get|set|path
//
// Persistent flags (--config, --demo, --api-url, --log-level) outrank the
// config file and FORGECHAT_* variables, including across live reloads.
//
// # Interactive Commands
//
//	/threads /new [title] /open <id>
//	/files /upload <path> /rm <id> /attach <id> /detach <id> /preview <id>
//	/status /demo on|off /config /help /quit
package cli
