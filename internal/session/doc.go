// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session wires the client components into one running session.
//
// A Session owns the configuration store, the demo mode flag, the transport
// gateway and simulation behind a mode router, the typed client, the health
// monitor, the thread/message store, the conversation orchestrator and the
// file manager.
//
// # Usage
//
//	sess := session.New(cfg, path, log)
//	defer sess.Close()
//	sess.Initialize(ctx)
//
//	res, err := sess.Chat.Send(ctx, "hello")
//
// # Reconfiguration
//
// Any change of the active configuration, whether from Reconfigure,
// SetDemoMode or a reload of the watched config file, is applied in place.
// When the base URL, the API key or demo mode changed, the health monitor is
// restarted, the store is reset and the session is initialized again.
package session
