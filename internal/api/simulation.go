// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jeranaias/forgechat/internal/model"
)

// Demo fixtures.
const (
	DemoThreadID    int64 = 1
	DemoThreadTitle       = "Demo Conversation"
	DemoFileID      int64 = 101
	DemoFileName          = "demo_doc.pdf"
	DemoWelcome           = "Welcome to Demo Mode! Backend is bypassed."
)

// DemoAnswer is the simulated reply to prompt.
func DemoAnswer(prompt string) string {
	return `(Demo) You said: "` + prompt + `"`
}

// Simulation is an in-memory backend honoring the same contract as the
// Gateway. Threads and files created through it are remembered for the life
// of the process.
type Simulation struct {
	cfg ConfigSource

	mu      sync.Mutex
	threads []model.Thread
	files   []model.FileRecord
}

// NewSimulation creates a simulation seeded with one thread and one file.
// The artificial delay is read from cfg on every call.
func NewSimulation(cfg ConfigSource) *Simulation {
	now := model.Now()
	return &Simulation{
		cfg: cfg,
		threads: []model.Thread{
			{ID: DemoThreadID, Title: DemoThreadTitle, CreatedAt: now},
		},
		files: []model.FileRecord{
			{ID: DemoFileID, Filename: DemoFileName, CreatedAt: now},
		},
	}
}

// Call implements Caller.
func (s *Simulation) Call(ctx context.Context, endpoint string, req *Request) (*Body, error) {
	if err := s.wait(ctx, endpoint); err != nil {
		return nil, err
	}
	return s.route(endpoint, req)
}

func (s *Simulation) wait(ctx context.Context, endpoint string) error {
	delay := s.cfg.Get().Simulation.Delay.D()
	if delay <= 0 {
		return nil
	}
	t := time.NewTimer(delay)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return &AbortError{
			Endpoint: endpoint,
			Timeout:  ctx.Err() == context.DeadlineExceeded,
			Budget:   delay,
			Cause:    ctx.Err(),
		}
	}
}

func (s *Simulation) route(endpoint string, req *Request) (*Body, error) {
	path := pathOf(endpoint)
	method := req.method()
	segs := strings.Split(strings.Trim(path, "/"), "/")

	switch {
	case path == EndpointHealth:
		return JSONBody(map[string]any{
			"status":          "ok",
			"hf_model_loaded": true,
			"timestamp":       model.Now(),
		})

	case path == EndpointThreads && method == http.MethodPost:
		return JSONBody(s.createThread(req.field("title")))

	case path == EndpointThreads:
		return JSONBody(s.listThreads())

	case len(segs) == 3 && segs[0] == "api" && segs[1] == "threads":
		return JSONBody(map[string]any{
			"messages": []map[string]any{{
				"id":         1,
				"role":       "assistant",
				"content":    DemoWelcome,
				"created_at": model.Now(),
			}},
		})

	case path == EndpointFiles:
		return JSONBody(s.listFiles())

	case path == EndpointUpload:
		return JSONBody(s.upload(req))

	case len(segs) == 4 && segs[1] == "files" && segs[3] == "delete":
		id, _ := strconv.ParseInt(segs[2], 10, 64)
		s.deleteFile(id)
		return JSONBody(map[string]string{"status": "deleted"})

	case len(segs) == 4 && segs[1] == "files" && segs[3] == "content":
		id, _ := strconv.ParseInt(segs[2], 10, 64)
		return TextBody(s.fileContent(id)), nil

	case path == EndpointChat || path == EndpointFileChat:
		return JSONBody(s.chat(req))

	default:
		return JSONBody(map[string]any{})
	}
}

func (s *Simulation) createThread(title string) model.Thread {
	if title == "" {
		title = model.DefaultThreadTitle
	}
	t := model.Thread{ID: model.NextLocalID(), Title: title, CreatedAt: model.Now()}

	s.mu.Lock()
	s.threads = append([]model.Thread{t}, s.threads...)
	s.mu.Unlock()
	return t
}

func (s *Simulation) listThreads() []model.Thread {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Thread, len(s.threads))
	copy(out, s.threads)
	return out
}

func (s *Simulation) listFiles() []model.FileRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.FileRecord, len(s.files))
	copy(out, s.files)
	return out
}

func (s *Simulation) upload(req *Request) map[string]any {
	name := "upload"
	if req != nil && req.Form != nil && req.Form.File != nil {
		if req.Form.File.Name != "" {
			name = req.Form.File.Name
		}
		if req.Form.File.Content != nil {
			_, _ = io.Copy(io.Discard, req.Form.File.Content)
		}
	}
	rec := model.FileRecord{ID: model.NextLocalID(), Filename: name, CreatedAt: model.Now()}

	s.mu.Lock()
	s.files = append([]model.FileRecord{rec}, s.files...)
	s.mu.Unlock()

	return map[string]any{"id": rec.ID, "filename": rec.Filename}
}

func (s *Simulation) deleteFile(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, f := range s.files {
		if f.ID == id {
			s.files = append(s.files[:i], s.files[i+1:]...)
			return
		}
	}
}

func (s *Simulation) fileContent(id int64) string {
	name := fmt.Sprintf("file %d", id)
	s.mu.Lock()
	for _, f := range s.files {
		if f.ID == id {
			name = f.Filename
			break
		}
	}
	s.mu.Unlock()
	return fmt.Sprintf("Demo content of %s.\n\nThe backend is bypassed in demo mode.\n", name)
}

type simChatRequest struct {
	Prompt   string `json:"prompt"`
	ThreadID *int64 `json:"thread_id"`
}

func (s *Simulation) chat(req *Request) map[string]any {
	var in simChatRequest
	if req != nil && req.JSON != nil {
		if raw, err := json.Marshal(req.JSON); err == nil {
			_ = json.Unmarshal(raw, &in)
		}
	}
	threadID := DemoThreadID
	if in.ThreadID != nil {
		threadID = *in.ThreadID
	}
	return map[string]any{
		"answer":    DemoAnswer(in.Prompt),
		"thread_id": threadID,
	}
}
