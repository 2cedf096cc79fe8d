// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/forgechat/internal/api/apitest"
	"github.com/jeranaias/forgechat/internal/config"
)

func newTestGateway(t *testing.T, mutate func(*config.Config)) (*Gateway, *apitest.Server, *config.Store) {
	t.Helper()
	srv := apitest.NewServer()
	t.Cleanup(srv.Close)

	cfg := config.Default()
	cfg.APIURL = srv.URL
	cfg.APIKey = "test-key"
	if mutate != nil {
		mutate(cfg)
	}
	store := config.NewStore(cfg, "")
	return NewGateway(store), srv, store
}

func TestGateway_HeadersMerged(t *testing.T) {
	gw, srv, _ := newTestGateway(t, nil)

	req := Get()
	req.Header = http.Header{"X-Client": []string{"forgechat-test"}}
	_, err := gw.Call(context.Background(), EndpointHealth, req)
	require.NoError(t, err)

	recs := srv.RequestsTo(EndpointHealth)
	require.Len(t, recs, 1)
	assert.Equal(t, "test-key", recs[0].Header.Get(HeaderAPIKey))
	assert.Equal(t, "forgechat-test", recs[0].Header.Get("X-Client"))
	assert.NotEmpty(t, recs[0].Header.Get(HeaderRequestID))
}

func TestGateway_CallerMayOverrideKey(t *testing.T) {
	gw, srv, _ := newTestGateway(t, nil)

	req := Get()
	req.Header = http.Header{HeaderAPIKey: []string{"explicit"}, HeaderRequestID: []string{"req-1"}}
	_, err := gw.Call(context.Background(), EndpointThreads, req)
	require.NoError(t, err)

	rec := srv.RequestsTo(EndpointThreads)[0]
	assert.Equal(t, []string{"explicit"}, rec.Header.Values(HeaderAPIKey))
	assert.Equal(t, "req-1", rec.Header.Get(HeaderRequestID))
}

func TestGateway_ReadsConfigPerCall(t *testing.T) {
	gw, srv, store := newTestGateway(t, nil)

	_, err := gw.Call(context.Background(), EndpointHealth, nil)
	require.NoError(t, err)

	_, err = store.Update(func(c *config.Config) { c.APIKey = "rotated" })
	require.NoError(t, err)

	_, err = gw.Call(context.Background(), EndpointHealth, nil)
	require.NoError(t, err)

	recs := srv.RequestsTo(EndpointHealth)
	require.Len(t, recs, 2)
	assert.Equal(t, "test-key", recs[0].Header.Get(HeaderAPIKey))
	assert.Equal(t, "rotated", recs[1].Header.Get(HeaderAPIKey))
}

func TestGateway_SuccessNegotiation(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		body        []byte
		want        Kind
	}{
		{"json", "application/json", []byte(`{"a":1}`), KindJSON},
		{"json charset", "application/json; charset=utf-8", []byte(`[1]`), KindJSON},
		{"problem json", "application/problem+json", []byte(`{}`), KindJSON},
		{"plain text", "text/plain", []byte("hello"), KindText},
		{"html", "text/html; charset=utf-8", []byte("<p>x</p>"), KindText},
		{"xml", "application/xml", []byte("<a/>"), KindText},
		{"pdf", "application/pdf", []byte("%PDF-1.4 \x00\x01\x02"), KindBinary},
		{"octet", "application/octet-stream", []byte{0xff, 0xfe, 0x00}, KindBinary},
		{"empty", "application/json", nil, KindEmpty},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw, srv, _ := newTestGateway(t, nil)
			srv.Override("/api/files/7/content", apitest.Override{ContentType: tt.contentType, Body: tt.body})

			body, err := gw.Call(context.Background(), FileContentPath(7), nil)
			require.NoError(t, err)
			assert.Equal(t, tt.want, body.Kind)
			if tt.want == KindBinary {
				assert.Equal(t, tt.body, body.Raw)
				assert.Empty(t, body.Text())
			}
		})
	}
}

func TestGateway_FailureMessages(t *testing.T) {
	long := strings.Repeat("é", 1000)

	tests := []struct {
		name        string
		status      int
		contentType string
		body        string
		wantMsg     string
	}{
		{"detail string", 404, "application/json", `{"detail":"File not found"}`, "File not found"},
		{"detail object", 422, "application/json", `{"detail":[{"loc":["body"],"msg":"bad"}]}`, `[{"loc":["body"],"msg":"bad"}]`},
		{"json without detail", 500, "application/json", `{"error": "boom"}`, `{"error":"boom"}`},
		{"invalid json", 500, "application/json", `{oops`, "HTTP 500"},
		{"plain text", 503, "text/plain", "overloaded", "overloaded"},
		{"empty", 502, "", "", "HTTP 502"},
		{"long text", 500, "text/html", long, strings.Repeat("é", 400)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw, srv, _ := newTestGateway(t, nil)
			srv.Override(EndpointThreads, apitest.Override{Status: tt.status, ContentType: tt.contentType, Body: []byte(tt.body)})

			_, err := gw.Call(context.Background(), EndpointThreads, nil)
			require.Error(t, err)

			var reqErr *RequestError
			require.True(t, errors.As(err, &reqErr))
			assert.Equal(t, tt.status, reqErr.Status)
			assert.Equal(t, tt.wantMsg, reqErr.Message)
			assert.True(t, strings.HasPrefix(err.Error(), "HTTP "))
			assert.LessOrEqual(t, utf8.RuneCountInString(reqErr.Message), 400)
			assert.Equal(t, tt.status, StatusOf(err))
		})
	}
}

func TestGateway_ErrorRendering(t *testing.T) {
	err := &RequestError{Endpoint: EndpointChat, Status: 401, Message: "Invalid API key"}
	assert.Equal(t, "HTTP 401: Invalid API key", err.Error())
}

func TestGateway_TimeoutIsAbort(t *testing.T) {
	gw, srv, _ := newTestGateway(t, func(c *config.Config) {
		c.Timeouts.Default = config.Duration(50 * time.Millisecond)
	})
	srv.Override(EndpointThreads, apitest.Override{Delay: time.Second, ContentType: "application/json", Body: []byte(`[]`)})

	_, err := gw.Call(context.Background(), EndpointThreads, nil)
	require.Error(t, err)

	var abort *AbortError
	require.True(t, errors.As(err, &abort))
	assert.True(t, abort.Timeout)
	assert.Equal(t, 50*time.Millisecond, abort.Budget)
	assert.True(t, IsAbort(err))
	assert.Zero(t, StatusOf(err))
}

func TestGateway_HealthBudgetShorterThanFileChat(t *testing.T) {
	gw, srv, _ := newTestGateway(t, func(c *config.Config) {
		c.Timeouts.Default = config.Duration(50 * time.Millisecond)
		c.Timeouts.FileChat = config.Duration(5 * time.Second)
	})
	slow := apitest.Override{Delay: 200 * time.Millisecond, ContentType: "application/json", Body: []byte(`{"answer":"ok","thread_id":1}`)}
	srv.Override(EndpointHealth, slow)
	srv.Override(EndpointFileChat, slow)

	_, err := gw.Call(context.Background(), EndpointHealth, nil)
	assert.True(t, IsAbort(err), "health should exceed its budget")

	body, err := gw.Call(context.Background(), EndpointFileChat, PostJSON(map[string]string{"prompt": "x"}))
	require.NoError(t, err)
	assert.Equal(t, KindJSON, body.Kind)
}

func TestGateway_ParentCancelIsAbort(t *testing.T) {
	gw, srv, _ := newTestGateway(t, nil)
	srv.Override(EndpointChat, apitest.Override{Delay: time.Second, Body: []byte(`{}`)})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()

	_, err := gw.Call(ctx, EndpointChat, PostJSON(map[string]string{}))
	var abort *AbortError
	require.True(t, errors.As(err, &abort))
	assert.False(t, abort.Timeout)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestGateway_HealthSideChannel(t *testing.T) {
	gw, srv, _ := newTestGateway(t, nil)
	mode := NewMode(false)
	gw.mode = mode

	var failures int32
	gw.OnHealthFailure(func(error) { atomic.AddInt32(&failures, 1) })

	srv.Override(EndpointHealth, apitest.Override{Status: 500})
	srv.Override(EndpointThreads, apitest.Override{Status: 500})

	_, err := gw.Call(context.Background(), EndpointHealth, nil)
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&failures))

	_, err = gw.Call(context.Background(), EndpointThreads, nil)
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&failures), "only health failures are reported")

	mode.Set(true)
	_, err = gw.Call(context.Background(), EndpointHealth, nil)
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&failures), "suppressed while simulating")
}

func TestGateway_HealthSideChannelSkipsCancelledCalls(t *testing.T) {
	gw, srv, _ := newTestGateway(t, func(c *config.Config) {
		c.Timeouts.Default = config.Duration(50 * time.Millisecond)
	})
	srv.Override(EndpointHealth, apitest.Override{Delay: 300 * time.Millisecond, Body: []byte(`{}`)})

	var failures int32
	gw.OnHealthFailure(func(error) { atomic.AddInt32(&failures, 1) })

	_, err := gw.Call(context.Background(), EndpointHealth, nil)
	require.True(t, IsAbort(err))
	assert.Equal(t, int32(1), atomic.LoadInt32(&failures), "an exceeded budget is a failure")

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	_, err = gw.Call(ctx, EndpointHealth, nil)
	require.True(t, IsAbort(err))
	assert.Equal(t, int32(1), atomic.LoadInt32(&failures), "a cancelled caller is not a failure")
}

func TestGateway_ConnectionRefused(t *testing.T) {
	gw, srv, _ := newTestGateway(t, nil)
	srv.Close()

	_, err := gw.Call(context.Background(), EndpointThreads, nil)
	require.Error(t, err)
	assert.False(t, IsAbort(err))
	assert.Zero(t, StatusOf(err))
}

func TestGateway_JSONAndMultipartBodies(t *testing.T) {
	gw, srv, _ := newTestGateway(t, nil)

	_, err := gw.Call(context.Background(), EndpointChat, PostJSON(ChatRequest{Prompt: "hi", FileIDs: []int64{}}))
	require.NoError(t, err)
	rec := srv.RequestsTo(EndpointChat)[0]
	assert.Equal(t, "application/json", rec.Header.Get("Content-Type"))
	assert.JSONEq(t, `{"prompt":"hi","thread_id":null,"file_ids":[],"temperature":0,"max_tokens":0,"use_rag":false}`, string(rec.Body))

	_, err = gw.Call(context.Background(), EndpointUpload, PostForm(&Form{
		File: &FormFile{Name: "notes.txt", Content: strings.NewReader("some notes")},
	}))
	require.NoError(t, err)
	rec = srv.RequestsTo(EndpointUpload)[0]
	assert.True(t, strings.HasPrefix(rec.Header.Get("Content-Type"), "multipart/form-data"))
	assert.Contains(t, string(rec.Body), `filename="notes.txt"`)
	assert.Contains(t, string(rec.Body), "text/plain")

	files := srv.Files()
	require.Len(t, files, 1)
	assert.Equal(t, "notes.txt", files[0].Filename)
}

func TestReadResponse_Limit(t *testing.T) {
	_, err := readResponse(bytes.NewReader(make([]byte, MaxResponseSize+1)))
	assert.ErrorIs(t, err, ErrResponseTooLarge)

	raw, err := readResponse(bytes.NewReader([]byte("ok")))
	require.NoError(t, err)
	assert.Equal(t, "ok", string(raw))
}

func TestNegotiate_SniffsMissingContentType(t *testing.T) {
	assert.Equal(t, KindJSON, negotiate("", []byte(`{"status":"ok"}`)).Kind)
	assert.Equal(t, KindText, negotiate("", []byte("just some words")).Kind)
	assert.Equal(t, KindBinary, negotiate("", []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")).Kind)
	assert.Equal(t, KindEmpty, negotiate("", nil).Kind)
}

func TestBudget(t *testing.T) {
	timeouts := config.Default().Timeouts

	assert.Equal(t, 60*time.Second, Budget(EndpointFileChat, timeouts))
	assert.Equal(t, 30*time.Second, Budget(EndpointChat, timeouts))
	assert.Equal(t, 60*time.Second, Budget(EndpointUpload, timeouts))
	assert.Equal(t, 10*time.Second, Budget(EndpointHealth, timeouts))
	assert.Equal(t, 10*time.Second, Budget(ThreadPath(3), timeouts))
	assert.Equal(t, 10*time.Second, Budget(EndpointThreads+"?limit=5", timeouts))
}
