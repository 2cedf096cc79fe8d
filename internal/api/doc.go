// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package api is the forgechat transport layer.
//
// Every backend call goes through a Caller. Two implementations exist:
//
//   - Gateway: real HTTP with per-endpoint timeouts, API key injection and
//     content negotiation of both success and failure bodies
//   - Simulation: an in-memory backend used in demo mode
//
// Backend picks one of them per call from the shared Mode flag, and Client
// layers typed, defensively decoded endpoint methods on top.
//
// # Errors
//
// Non-2xx responses fail with *RequestError, expired budgets and cancelled
// contexts with *AbortError. Responses whose shape does not match the
// endpoint contract fail with ErrMalformedResponse.
package api
