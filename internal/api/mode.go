// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"context"
	"sync"
)

// Mode is the process-wide demo flag. When set, every call is answered by
// the simulation and no network traffic happens.
type Mode struct {
	mu   sync.RWMutex
	demo bool
	subs []func(demo bool)
}

// NewMode creates a mode flag.
func NewMode(demo bool) *Mode {
	return &Mode{demo: demo}
}

// Demo reports whether demo mode is on.
func (m *Mode) Demo() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.demo
}

// Set changes the flag and reports whether it changed. Subscribers run only
// on an actual change, outside the lock.
func (m *Mode) Set(demo bool) bool {
	m.mu.Lock()
	if m.demo == demo {
		m.mu.Unlock()
		return false
	}
	m.demo = demo
	subs := make([]func(bool), len(m.subs))
	copy(subs, m.subs)
	m.mu.Unlock()

	for _, fn := range subs {
		fn(demo)
	}
	return true
}

// OnChange registers fn to run after every change of the flag.
func (m *Mode) OnChange(fn func(demo bool)) {
	m.mu.Lock()
	m.subs = append(m.subs, fn)
	m.mu.Unlock()
}

// Badge returns a short status marker, or "" outside demo mode.
func (m *Mode) Badge() string {
	if m.Demo() {
		return "[DEMO]"
	}
	return ""
}

// Backend routes each call to the simulation or the live gateway, reading
// the mode once per call.
type Backend struct {
	mode *Mode
	live Caller
	sim  Caller
}

// NewBackend creates a router over live and sim.
func NewBackend(mode *Mode, live, sim Caller) *Backend {
	return &Backend{mode: mode, live: live, sim: sim}
}

// Call implements Caller.
func (b *Backend) Call(ctx context.Context, endpoint string, req *Request) (*Body, error) {
	if b.mode.Demo() {
		return b.sim.Call(ctx, endpoint, req)
	}
	return b.live.Call(ctx, endpoint, req)
}
