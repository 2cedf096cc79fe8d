// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/forgechat/internal/api"
	"github.com/jeranaias/forgechat/internal/config"
	"github.com/jeranaias/forgechat/internal/model"
	"github.com/jeranaias/forgechat/internal/store"
)

type recordedChat struct {
	endpoint string
	req      api.ChatRequest
}

type fakeChat struct {
	mu    sync.Mutex
	calls []recordedChat
	res   *api.ChatResponse
	err   error
	gate  chan struct{}
}

func (f *fakeChat) Chat(_ context.Context, endpoint string, req api.ChatRequest) (*api.ChatResponse, error) {
	f.mu.Lock()
	f.calls = append(f.calls, recordedChat{endpoint: endpoint, req: req})
	gate := f.gate
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	return f.res, f.err
}

func (f *fakeChat) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type emptyBackend struct {
	files []model.FileRecord
}

func (e *emptyBackend) ListThreads(context.Context) ([]model.Thread, error) { return nil, nil }
func (e *emptyBackend) CreateThread(_ context.Context, title string) (*model.Thread, error) {
	return &model.Thread{ID: 900, Title: title}, nil
}
func (e *emptyBackend) ThreadMessages(context.Context, int64) ([]model.Message, error) {
	return []model.Message{}, nil
}
func (e *emptyBackend) ListFiles(context.Context) ([]model.FileRecord, error) { return e.files, nil }

func answerID(id int64) *api.ID {
	v := api.ID(id)
	return &v
}

func newTestOrchestrator(t *testing.T, fc *fakeChat, mutate func(*config.Config)) (*Orchestrator, *store.Store) {
	t.Helper()
	cfg := config.Default()
	if mutate != nil {
		mutate(cfg)
	}
	st := store.New(&emptyBackend{files: []model.FileRecord{{ID: 10, Filename: "a.pdf"}, {ID: 11, Filename: "b.txt"}}}, nil)
	require.NoError(t, st.RefreshFiles(context.Background()))
	return New(fc, st, config.NewStore(cfg, ""), nil), st
}

func TestSend_NothingToSend(t *testing.T) {
	fc := &fakeChat{}
	o, st := newTestOrchestrator(t, fc, nil)

	for _, input := range []string{"", "   ", "\n\t"} {
		res, err := o.Send(context.Background(), input)
		assert.ErrorIs(t, err, ErrNothingToSend)
		assert.Nil(t, res)
	}
	assert.Empty(t, st.View(), "no optimistic message")
	assert.Zero(t, fc.callCount(), "no backend call")
}

func TestSend_ExistingThread(t *testing.T) {
	fc := &fakeChat{res: &api.ChatResponse{Answer: "Paris", ThreadID: answerID(7)}}
	o, st := newTestOrchestrator(t, fc, func(c *config.Config) {
		c.UseRAG = true
		c.Temperature = 0.3
		c.MaxTokens = 512
	})
	require.NoError(t, st.SelectThread(context.Background(), 7))

	res, err := o.Send(context.Background(), "  capital of France?  ")
	require.NoError(t, err)
	assert.False(t, res.Failed)
	assert.Nil(t, res.Thread)

	require.Equal(t, 1, fc.callCount())
	call := fc.calls[0]
	assert.Equal(t, api.EndpointChat, call.endpoint)
	assert.Equal(t, "capital of France?", call.req.Prompt)
	require.NotNil(t, call.req.ThreadID)
	assert.Equal(t, int64(7), *call.req.ThreadID)
	assert.True(t, call.req.UseRAG)
	assert.Equal(t, 0.3, call.req.Temperature)
	assert.Equal(t, 512, call.req.MaxTokens)
	assert.Empty(t, call.req.FileIDs)

	view := st.View()
	require.Len(t, view, 2)
	assert.Equal(t, model.RoleUser, view[0].Role)
	assert.Equal(t, "capital of France?", view[0].Content)
	assert.Equal(t, "Paris", view[1].Content)

	cached, _ := st.Cached(7)
	assert.Len(t, cached, 2)
}

func TestSend_StagedFilesUseFileChat(t *testing.T) {
	fc := &fakeChat{res: &api.ChatResponse{Answer: "summary", ThreadID: answerID(3)}}
	o, st := newTestOrchestrator(t, fc, func(c *config.Config) { c.UseRAG = false })
	require.NoError(t, st.Stage(11))
	require.NoError(t, st.Stage(10))

	_, err := o.Send(context.Background(), "summarize")
	require.NoError(t, err)

	call := fc.calls[0]
	assert.Equal(t, api.EndpointFileChat, call.endpoint)
	assert.True(t, call.req.UseRAG)
	assert.Equal(t, []int64{10, 11}, call.req.FileIDs)
	assert.Empty(t, st.StagedFiles())
}

func TestSend_FilesWithoutPrompt(t *testing.T) {
	fc := &fakeChat{res: &api.ChatResponse{Answer: "ok", ThreadID: answerID(3)}}
	o, st := newTestOrchestrator(t, fc, nil)
	require.NoError(t, st.Stage(10))

	res, err := o.Send(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, api.EndpointFileChat, fc.calls[0].endpoint)
	require.NotNil(t, res.Thread)
	assert.Equal(t, model.DefaultThreadTitle, res.Thread.Title)
}

func TestSend_FailureShowsOneErrorAndSkipsCache(t *testing.T) {
	fc := &fakeChat{err: &api.RequestError{Endpoint: api.EndpointFileChat, Status: 500, Message: "boom"}}
	o, st := newTestOrchestrator(t, fc, nil)
	require.NoError(t, st.SelectThread(context.Background(), 5))
	require.NoError(t, st.Stage(10))

	res, err := o.Send(context.Background(), "hello")
	require.Error(t, err)
	assert.Equal(t, 500, api.StatusOf(err))
	require.NotNil(t, res)
	assert.True(t, res.Failed)

	view := st.View()
	require.Len(t, view, 2)
	assert.Equal(t, ErrorReply, view[1].Content)
	assert.Equal(t, model.RoleAssistant, view[1].Role)

	cached, _ := st.Cached(5)
	require.Len(t, cached, 1)
	assert.Equal(t, "hello", cached[0].Content)

	assert.Empty(t, st.StagedFiles(), "staged files are cleared even on failure")

	_, err = o.Send(context.Background(), "retry")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrBusy, "the in-flight flag is released")
	assert.Equal(t, 2, fc.callCount())
}

func TestSend_TimeoutIsRejected(t *testing.T) {
	fc := &fakeChat{err: &api.AbortError{Endpoint: api.EndpointChat, Timeout: true, Budget: time.Second}}
	o, st := newTestOrchestrator(t, fc, nil)

	_, err := o.Send(context.Background(), "slow")
	assert.True(t, api.IsAbort(err))
	view := st.View()
	require.Len(t, view, 2)
	assert.Equal(t, ErrorReply, view[1].Content)
}

func TestSend_NewThreadFromFirstMessage(t *testing.T) {
	fc := &fakeChat{res: &api.ChatResponse{Answer: "Paris", ThreadID: answerID(42)}}
	o, st := newTestOrchestrator(t, fc, nil)

	res, err := o.Send(context.Background(), "What is the capital of France?")
	require.NoError(t, err)
	assert.Nil(t, fc.calls[0].req.ThreadID)

	require.NotNil(t, res.Thread)
	assert.True(t, res.NewThread)
	assert.Equal(t, "What is the capital ...", res.Thread.Title)

	threads := st.Threads()
	require.Len(t, threads, 1)
	assert.Equal(t, int64(42), threads[0].ID)

	cur, ok := st.Current()
	require.True(t, ok)
	assert.Equal(t, int64(42), cur.ID)
	assert.Len(t, st.View(), 2)
}

func TestSend_FalsyThreadIDCreatesNoThread(t *testing.T) {
	for _, id := range []int64{0, -3} {
		fc := &fakeChat{res: &api.ChatResponse{Answer: "hi", ThreadID: answerID(id)}}
		o, st := newTestOrchestrator(t, fc, nil)

		res, err := o.Send(context.Background(), "hello there")
		require.NoError(t, err)
		assert.False(t, res.NewThread)
		assert.Nil(t, res.Thread)
		assert.Nil(t, res.ThreadID)
		assert.Empty(t, st.Threads())
		_, ok := st.Current()
		assert.False(t, ok)
		assert.Len(t, st.View(), 2)

		_, err = o.Send(context.Background(), "again")
		require.NoError(t, err)
		assert.Nil(t, fc.calls[1].req.ThreadID, "later sends carry no thread id")
	}
}

func TestSend_FalsyThreadIDKeepsCurrentThread(t *testing.T) {
	fc := &fakeChat{res: &api.ChatResponse{Answer: "hi", ThreadID: answerID(0)}}
	o, st := newTestOrchestrator(t, fc, nil)
	require.NoError(t, st.SelectThread(context.Background(), 7))

	res, err := o.Send(context.Background(), "hello")
	require.NoError(t, err)
	require.NotNil(t, res.ThreadID)
	assert.Equal(t, int64(7), *res.ThreadID)
	cached, _ := st.Cached(7)
	assert.Len(t, cached, 2)
}

func TestSend_EmptyAnswer(t *testing.T) {
	fc := &fakeChat{res: &api.ChatResponse{Answer: "", ThreadID: answerID(1)}}
	o, st := newTestOrchestrator(t, fc, nil)

	res, err := o.Send(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, NoAnswer, res.Reply.Content)
	assert.Equal(t, NoAnswer, st.View()[1].Content)
}

func TestSend_SecondSendRejectedWhileInFlight(t *testing.T) {
	gate := make(chan struct{})
	fc := &fakeChat{res: &api.ChatResponse{Answer: "a", ThreadID: answerID(1)}, gate: gate}
	o, st := newTestOrchestrator(t, fc, nil)

	done := make(chan error)
	go func() {
		_, err := o.Send(context.Background(), "first")
		done <- err
	}()
	require.Eventually(t, o.inFlight.Load, 2*time.Second, time.Millisecond)

	_, err := o.Send(context.Background(), "second")
	assert.ErrorIs(t, err, ErrBusy)

	close(gate)
	require.NoError(t, <-done)
	assert.Equal(t, 1, fc.callCount())
	for _, m := range st.View() {
		assert.NotEqual(t, "second", m.Content)
	}

	fc.gate = nil
	_, err = o.Send(context.Background(), "third")
	assert.NoError(t, err, "flag is released after completion")
}

func TestSend_DemoModeEndToEnd(t *testing.T) {
	cfg := config.Default()
	cfg.DemoMode = true
	cfg.Simulation.Delay = config.Duration(time.Millisecond)
	cs := config.NewStore(cfg, "")

	mode := api.NewMode(true)
	backend := api.NewBackend(mode, api.NewGateway(cs), api.NewSimulation(cs))
	client := api.NewClient(backend)
	st := store.New(client, nil)
	o := New(client, st, cs, nil)

	require.NoError(t, st.RefreshThreads(context.Background()))
	require.NoError(t, st.SelectThread(context.Background(), api.DemoThreadID))

	prompt := "tell me about forges"
	res, err := o.Send(context.Background(), prompt)
	require.NoError(t, err)
	assert.True(t, strings.Contains(res.Reply.Content, `"`+prompt+`"`))

	view := st.View()
	require.Len(t, view, 3)
	assert.Equal(t, api.DemoWelcome, view[0].Content)
}

func TestSend_ContextCancelledBeforeReply(t *testing.T) {
	fc := &fakeChat{err: errors.New("context canceled")}
	o, _ := newTestOrchestrator(t, fc, nil)

	res, err := o.Send(context.Background(), "x")
	require.Error(t, err)
	assert.True(t, res.Failed)
}
