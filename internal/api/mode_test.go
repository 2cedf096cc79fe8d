// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingCaller struct {
	calls []string
	body  *Body
}

func (c *countingCaller) Call(_ context.Context, endpoint string, _ *Request) (*Body, error) {
	c.calls = append(c.calls, endpoint)
	return c.body, nil
}

func TestMode_SetNotifiesOnChangeOnly(t *testing.T) {
	m := NewMode(false)
	var seen []bool
	m.OnChange(func(demo bool) { seen = append(seen, demo) })

	assert.True(t, m.Set(true))
	assert.False(t, m.Set(true))
	assert.True(t, m.Set(false))

	assert.Equal(t, []bool{true, false}, seen)
}

func TestMode_Badge(t *testing.T) {
	m := NewMode(true)
	assert.Equal(t, "[DEMO]", m.Badge())
	m.Set(false)
	assert.Empty(t, m.Badge())
}

func TestBackend_RoutesOnMode(t *testing.T) {
	live := &countingCaller{body: TextBody("live")}
	sim := &countingCaller{body: TextBody("sim")}
	mode := NewMode(false)
	b := NewBackend(mode, live, sim)

	body, err := b.Call(context.Background(), EndpointHealth, nil)
	require.NoError(t, err)
	assert.Equal(t, "live", body.Text())

	mode.Set(true)
	body, err = b.Call(context.Background(), EndpointHealth, nil)
	require.NoError(t, err)
	assert.Equal(t, "sim", body.Text())

	assert.Len(t, live.calls, 1)
	assert.Len(t, sim.calls, 1)
	assert.Same(t, mode, b.mode)
}
