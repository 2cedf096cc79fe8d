// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/forgechat/internal/config"
)

func newTestSimulation(delay time.Duration) *Simulation {
	cfg := config.Default()
	cfg.Simulation.Delay = config.Duration(delay)
	return NewSimulation(config.NewStore(cfg, ""))
}

func TestSimulation_Health(t *testing.T) {
	c := NewClient(newTestSimulation(time.Millisecond))

	h, err := c.Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ok", h.Status)
	require.NotNil(t, h.ModelLoaded)
	assert.True(t, *h.ModelLoaded)
	require.NotNil(t, h.Timestamp)
	assert.False(t, h.Timestamp.IsZero())
}

func TestSimulation_ChatEchoesPrompt(t *testing.T) {
	c := NewClient(newTestSimulation(time.Millisecond))

	prompt := `say "hi" to ünïcode`
	res, err := c.Chat(context.Background(), EndpointChat, ChatRequest{Prompt: prompt})
	require.NoError(t, err)
	assert.Equal(t, `(Demo) You said: "`+prompt+`"`, res.Answer)
	assert.Equal(t, DemoThreadID, res.ThreadID.Int64(0))

	id := int64(42)
	res, err = c.Chat(context.Background(), EndpointFileChat, ChatRequest{Prompt: "x", ThreadID: &id})
	require.NoError(t, err)
	assert.Equal(t, int64(42), res.ThreadID.Int64(0))
}

func TestSimulation_ThreadsAreStateful(t *testing.T) {
	c := NewClient(newTestSimulation(time.Millisecond))
	ctx := context.Background()

	threads, err := c.ListThreads(ctx)
	require.NoError(t, err)
	require.Len(t, threads, 1)
	assert.Equal(t, DemoThreadTitle, threads[0].Title)

	created, err := c.CreateThread(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "New Conversation", created.Title)

	threads, err = c.ListThreads(ctx)
	require.NoError(t, err)
	require.Len(t, threads, 2)
	assert.Equal(t, created.ID, threads[0].ID)

	msgs, err := c.ThreadMessages(ctx, created.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, DemoWelcome, msgs[0].Content)
	assert.False(t, msgs[0].Timestamp.IsZero())
}

func TestSimulation_FilesAreStateful(t *testing.T) {
	c := NewClient(newTestSimulation(time.Millisecond))
	ctx := context.Background()

	res, err := c.Upload(ctx, "report.md", "", strings.NewReader("# Report"))
	require.NoError(t, err)
	require.NotNil(t, res.ID)
	assert.Equal(t, "report.md", res.Filename)

	files, err := c.ListFiles(ctx)
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, int64(*res.ID), files[0].ID)
	assert.Equal(t, DemoFileID, files[1].ID)

	body, err := c.FileContent(ctx, int64(*res.ID))
	require.NoError(t, err)
	assert.Equal(t, KindText, body.Kind)
	assert.Contains(t, body.Text(), "report.md")

	require.NoError(t, c.DeleteFile(ctx, int64(*res.ID)))
	files, err = c.ListFiles(ctx)
	require.NoError(t, err)
	require.Len(t, files, 1)
}

func TestSimulation_UnknownEndpoint(t *testing.T) {
	sim := newTestSimulation(0)
	body, err := sim.Call(context.Background(), "/api/models", nil)
	require.NoError(t, err)
	assert.Equal(t, KindJSON, body.Kind)
	assert.Equal(t, "{}", string(body.Raw))
}

func TestSimulation_DelayHonorsCancel(t *testing.T) {
	sim := newTestSimulation(time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := sim.Call(ctx, EndpointHealth, nil)
	require.Error(t, err)
	assert.True(t, IsAbort(err))
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestSimulation_AppliesDelay(t *testing.T) {
	sim := newTestSimulation(40 * time.Millisecond)

	start := time.Now()
	_, err := sim.Call(context.Background(), EndpointThreads, nil)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
}
