// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/jeranaias/forgechat/internal/model"
)

// Client offers one method per backend endpoint on top of a Caller and
// checks every response against the shape its endpoint promises.
type Client struct {
	caller Caller
}

// NewClient creates a typed client.
func NewClient(caller Caller) *Client {
	return &Client{caller: caller}
}

// =============================================================================
// WIRE TYPES
// =============================================================================

// HealthResponse is the body of /api/health. Absent fields stay nil.
type HealthResponse struct {
	Status      string           `json:"status"`
	Timestamp   *model.Timestamp `json:"timestamp"`
	ModelLoaded *bool            `json:"hf_model_loaded"`
}

// ChatRequest is the body of /api/chat and /api/filechat.
type ChatRequest struct {
	Prompt      string  `json:"prompt"`
	ThreadID    *int64  `json:"thread_id"`
	FileIDs     []int64 `json:"file_ids"`
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens"`
	UseRAG      bool    `json:"use_rag"`
}

// ChatResponse is the reply to a chat call.
type ChatResponse struct {
	Answer   string `json:"answer"`
	ThreadID *ID    `json:"thread_id"`
}

// UploadResult is the reply to an upload. ID is nil when the backend did
// not assign one.
type UploadResult struct {
	ID       *ID    `json:"id"`
	Filename string `json:"filename"`
}

// ID is a backend identifier that decodes from a JSON number or a numeric
// string. Anything else (false, "abc", an object) decodes as 0, which is
// never a valid id.
type ID int64

// UnmarshalJSON implements json.Unmarshaler.
func (id *ID) UnmarshalJSON(data []byte) error {
	*id = 0
	s := strings.Trim(string(bytes.TrimSpace(data)), `"`)
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		f, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil {
			return nil
		}
		n = int64(f)
	}
	*id = ID(n)
	return nil
}

// Valid reports whether id was sent and is a positive integer.
func (id *ID) Valid() bool {
	return id != nil && *id > 0
}

// Int64 returns the id, or fallback when id is not valid.
func (id *ID) Int64(fallback int64) int64 {
	if !id.Valid() {
		return fallback
	}
	return int64(*id)
}

type wireMessage struct {
	ID        ID              `json:"id"`
	Role      model.Role      `json:"role"`
	Content   string          `json:"content"`
	CreatedAt model.Timestamp `json:"created_at"`
	Timestamp model.Timestamp `json:"timestamp"`
}

type threadMessages struct {
	Messages json.RawMessage `json:"messages"`
}

// =============================================================================
// ENDPOINTS
// =============================================================================

// Health calls /api/health.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	body, err := c.caller.Call(ctx, EndpointHealth, Get())
	if err != nil {
		return nil, err
	}
	var h HealthResponse
	if body.IsObject() {
		if err := body.Decode(&h); err != nil {
			return nil, err
		}
	}
	return &h, nil
}

// ListThreads returns every thread. A non-array body is ErrMalformedResponse.
func (c *Client) ListThreads(ctx context.Context) ([]model.Thread, error) {
	body, err := c.caller.Call(ctx, EndpointThreads, Get())
	if err != nil {
		return nil, err
	}
	if !body.IsArray() {
		return nil, ErrMalformedResponse
	}
	var threads []model.Thread
	if err := body.Decode(&threads); err != nil {
		return nil, err
	}
	return threads, nil
}

// CreateThread asks the backend to mint a thread.
func (c *Client) CreateThread(ctx context.Context, title string) (*model.Thread, error) {
	if title == "" {
		title = model.DefaultThreadTitle
	}
	body, err := c.caller.Call(ctx, EndpointThreads, PostForm(&Form{
		Fields: map[string]string{"title": title},
	}))
	if err != nil {
		return nil, err
	}
	if !body.IsObject() {
		return nil, ErrMalformedResponse
	}
	var t model.Thread
	if err := body.Decode(&t); err != nil {
		return nil, err
	}
	if t.Title == "" {
		t.Title = title
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = model.Now()
	}
	return &t, nil
}

// ThreadMessages loads the message list of a thread. The body must be an
// object whose messages field is an array. Missing timestamps become now.
func (c *Client) ThreadMessages(ctx context.Context, id int64) ([]model.Message, error) {
	body, err := c.caller.Call(ctx, ThreadPath(id), Get())
	if err != nil {
		return nil, err
	}
	if !body.IsObject() {
		return nil, ErrMalformedResponse
	}
	var wrapper threadMessages
	if err := body.Decode(&wrapper); err != nil {
		return nil, err
	}
	raw := bytes.TrimSpace(wrapper.Messages)
	if len(raw) == 0 || raw[0] != '[' {
		return nil, ErrMalformedResponse
	}

	var wire []wireMessage
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, errors.Wrap(ErrMalformedResponse, err.Error())
	}

	now := model.Now()
	msgs := make([]model.Message, 0, len(wire))
	for _, w := range wire {
		ts := w.CreatedAt
		if ts.IsZero() {
			ts = w.Timestamp
		}
		if ts.IsZero() {
			ts = now
		}
		msgs = append(msgs, model.Message{ID: int64(w.ID), Role: w.Role, Content: w.Content, Timestamp: ts})
	}
	return msgs, nil
}

// ListFiles returns every uploaded file. A non-array body is
// ErrMalformedResponse.
func (c *Client) ListFiles(ctx context.Context) ([]model.FileRecord, error) {
	body, err := c.caller.Call(ctx, EndpointFiles, Get())
	if err != nil {
		return nil, err
	}
	if !body.IsArray() {
		return nil, ErrMalformedResponse
	}
	var files []model.FileRecord
	if err := body.Decode(&files); err != nil {
		return nil, err
	}
	return files, nil
}

// Upload sends content as the multipart "file" part.
func (c *Client) Upload(ctx context.Context, name, contentType string, content io.Reader) (*UploadResult, error) {
	body, err := c.caller.Call(ctx, EndpointUpload, PostForm(&Form{
		File: &FormFile{Field: "file", Name: name, ContentType: contentType, Content: content},
	}))
	if err != nil {
		return nil, err
	}
	// Some backends reply to uploads with JSON served as text/plain.
	body = body.AsJSON()
	var res UploadResult
	if body.IsObject() {
		if err := body.Decode(&res); err != nil {
			return nil, err
		}
	}
	return &res, nil
}

// DeleteFile deletes a file. The response body is ignored.
func (c *Client) DeleteFile(ctx context.Context, id int64) error {
	_, err := c.caller.Call(ctx, FileDeletePath(id), Post())
	return err
}

// FileContent fetches the raw content of a file.
func (c *Client) FileContent(ctx context.Context, id int64) (*Body, error) {
	return c.caller.Call(ctx, FileContentPath(id), Get())
}

// Chat posts req to endpoint (EndpointChat or EndpointFileChat).
func (c *Client) Chat(ctx context.Context, endpoint string, req ChatRequest) (*ChatResponse, error) {
	if req.FileIDs == nil {
		req.FileIDs = []int64{}
	}
	body, err := c.caller.Call(ctx, endpoint, PostJSON(req))
	if err != nil {
		return nil, err
	}
	var res ChatResponse
	if body.IsObject() {
		if err := body.Decode(&res); err != nil {
			return nil, err
		}
	}
	return &res, nil
}
