// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/forgechat/internal/api"
	"github.com/jeranaias/forgechat/internal/api/apitest"
	"github.com/jeranaias/forgechat/internal/chat"
	"github.com/jeranaias/forgechat/internal/config"
	"github.com/jeranaias/forgechat/internal/model"
	"github.com/jeranaias/forgechat/internal/session"
	"github.com/jeranaias/forgechat/internal/store"
	"github.com/jeranaias/forgechat/internal/util"
)

func newTestRepl(t *testing.T) (*Repl, *bytes.Buffer, *apitest.Server) {
	t.Helper()
	srv := apitest.NewServer()
	t.Cleanup(srv.Close)
	srv.AddThread(model.Thread{ID: 7, Title: "Budget review"},
		model.NewUserMessage("what changed?"), model.NewAssistantMessage("Travel went **up**."))
	srv.AddFile(model.FileRecord{ID: 40, Filename: "notes.txt"}, "text/plain", []byte("the notes body"))

	cfg := config.Default()
	cfg.APIURL = srv.URL
	cfg.Simulation.Delay = config.Duration(time.Millisecond)
	cfg.Health.Interval = config.Duration(time.Hour)

	sess := session.New(cfg, "", nil)
	sess.Files.TempDir = t.TempDir()
	t.Cleanup(func() { _ = sess.Close() })
	sess.Initialize(context.Background())

	var out bytes.Buffer
	return newRepl(sess, &out), &out, srv
}

func TestRepl_Threads(t *testing.T) {
	repl, out, _ := newTestRepl(t)

	require.NoError(t, repl.Handle(context.Background(), "/threads"))
	assert.Contains(t, out.String(), "* ")
	assert.Contains(t, out.String(), "Budget review")
}

func TestRepl_OpenShowsMessages(t *testing.T) {
	repl, out, _ := newTestRepl(t)

	require.NoError(t, repl.Handle(context.Background(), "/open 7"))
	assert.Contains(t, out.String(), "what changed?")
	assert.Contains(t, out.String(), "Travel went **up**.")

	err := repl.Handle(context.Background(), "/open seven")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid id")
}

func TestRepl_NewThreadThenSend(t *testing.T) {
	repl, out, srv := newTestRepl(t)
	ctx := context.Background()

	require.NoError(t, repl.Handle(ctx, "/new Quarterly plan"))
	assert.Contains(t, out.String(), "Quarterly plan")
	cur, ok := repl.sess.Store.Current()
	require.True(t, ok)
	assert.Equal(t, "Quarterly plan", cur.Title)

	out.Reset()
	require.NoError(t, repl.Handle(ctx, "draft the agenda"))
	assert.Contains(t, out.String(), "echo: draft the agenda")

	recs := srv.RequestsTo(api.EndpointChat)
	require.Len(t, recs, 1)
	assert.Contains(t, string(recs[0].Body), `"thread_id":`)
}

func TestRepl_AttachSendsFileChat(t *testing.T) {
	repl, out, srv := newTestRepl(t)
	ctx := context.Background()

	require.NoError(t, repl.Handle(ctx, "/attach 40"))
	assert.Equal(t, "forgechat +1> ", repl.prompt())

	require.NoError(t, repl.Handle(ctx, "/files"))
	assert.Contains(t, out.String(), "[x]")

	require.NoError(t, repl.Handle(ctx, "what is in it?"))
	recs := srv.RequestsTo(api.EndpointFileChat)
	require.Len(t, recs, 1)
	assert.Contains(t, string(recs[0].Body), `"file_ids":[40]`)
	assert.Empty(t, repl.sess.Store.StagedFiles())
}

func TestRepl_AttachUnknownFile(t *testing.T) {
	repl, _, _ := newTestRepl(t)

	err := repl.Handle(context.Background(), "/attach 999")
	require.Error(t, err)
	assert.ErrorIs(t, err, store.ErrUnknownFile)
}

func TestRepl_DetachAndBlankInput(t *testing.T) {
	repl, _, srv := newTestRepl(t)
	ctx := context.Background()

	require.NoError(t, repl.Handle(ctx, "/attach 40"))
	require.NoError(t, repl.Handle(ctx, "/detach 40"))
	require.NoError(t, repl.Handle(ctx, "   "))

	assert.Empty(t, srv.RequestsTo(api.EndpointChat))
	assert.Empty(t, srv.RequestsTo(api.EndpointFileChat))
}

func TestRepl_SendFailureShowsInlineError(t *testing.T) {
	repl, out, srv := newTestRepl(t)
	srv.Override(api.EndpointChat, apitest.Override{Status: 502})

	require.NoError(t, repl.Handle(context.Background(), "hello"))
	assert.Contains(t, out.String(), chat.ErrorReply)
}

func TestRepl_UploadPreviewRemove(t *testing.T) {
	repl, out, srv := newTestRepl(t)
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "todo.md")
	require.NoError(t, os.WriteFile(path, []byte("- ship it\n"), 0600))

	require.NoError(t, repl.Handle(ctx, "/upload "+path))
	assert.Contains(t, out.String(), "Uploaded todo.md")

	out.Reset()
	require.NoError(t, repl.Handle(ctx, "/preview 40"))
	assert.Contains(t, out.String(), "notes.txt")
	assert.Contains(t, out.String(), "the notes body")

	out.Reset()
	require.NoError(t, repl.Handle(ctx, "/rm 40"))
	assert.Contains(t, out.String(), "Deleted file 40")
	for _, f := range srv.Files() {
		assert.NotEqual(t, int64(40), f.ID)
	}
	_, ok := repl.sess.Store.File(40)
	assert.False(t, ok)
}

func TestRepl_DemoToggle(t *testing.T) {
	repl, out, _ := newTestRepl(t)
	ctx := context.Background()

	require.NoError(t, repl.Handle(ctx, "/demo on"))
	assert.True(t, repl.sess.Mode.Demo())
	assert.Contains(t, out.String(), "[DEMO]")
	assert.Contains(t, out.String(), "suspended", "no health polling in demo mode")
	assert.Equal(t, "forgechat [DEMO]> ", repl.prompt())

	out.Reset()
	require.NoError(t, repl.Handle(ctx, "ping"))
	assert.Contains(t, out.String(), api.DemoAnswer("ping"))

	require.NoError(t, repl.Handle(ctx, "/demo off"))
	assert.False(t, repl.sess.Mode.Demo())

	assert.Error(t, repl.Handle(ctx, "/demo maybe"))
}

func TestRepl_MiscCommands(t *testing.T) {
	repl, out, _ := newTestRepl(t)
	ctx := context.Background()

	require.NoError(t, repl.Handle(ctx, "/status"))
	assert.Contains(t, out.String(), "[ONLINE]")
	assert.Contains(t, out.String(), "Budget review")
	assert.Contains(t, out.String(), "Assistant: ")
	assert.Contains(t, out.String(), "Travel went **up**.")
	assert.Contains(t, out.String(), "every 1h0m0s")

	out.Reset()
	require.NoError(t, repl.Handle(ctx, "/config"))
	assert.Contains(t, out.String(), `"api_url"`)

	out.Reset()
	require.NoError(t, repl.Handle(ctx, "/help"))
	for _, sc := range slashCommands {
		assert.Contains(t, out.String(), sc.name)
	}
	// "/upload <path>" is the widest usage.
	assert.Contains(t, out.String(), "  "+util.PadWidth("/quit", util.StringWidth("/upload <path>"))+" Exit")

	err := repl.Handle(ctx, "/bogus")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown command")

	assert.Equal(t, errQuit, repl.Handle(ctx, "/quit"))
}

func TestRenderer_EmptyMessage(t *testing.T) {
	var out bytes.Buffer
	r := newRenderer(&out)

	got := r.Message(model.NewAssistantMessage(""))
	assert.Contains(t, got, "Assistant")
	assert.Contains(t, got, "(empty)")
}

func TestCompleteSlash(t *testing.T) {
	assert.Equal(t, []string{"/threads"}, completeSlash("/th"))
	assert.ElementsMatch(t, []string{"/demo", "/detach"}, completeSlash("/de"))
	assert.Nil(t, completeSlash("hello"))
	assert.Nil(t, completeSlash("/open 3"))
}
