// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package apitest provides an in-memory fake of the inference backend for
// tests.
package apitest

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jeranaias/forgechat/internal/model"
)

// Recorded is one request seen by the server.
type Recorded struct {
	Method string
	Path   string
	Header http.Header
	Body   []byte
}

// Override replaces the normal handling of a path.
type Override struct {
	Status      int
	ContentType string
	Body        []byte
	Delay       time.Duration
}

// Server is a stateful fake backend.
type Server struct {
	*httptest.Server

	mu        sync.Mutex
	threads   []model.Thread
	messages  map[int64][]map[string]any
	files     []model.FileRecord
	contents  map[int64][]byte
	types     map[int64]string
	overrides map[string]Override
	requests  []Recorded
	nextID    int64

	// Answer builds the chat reply for a prompt.
	Answer func(prompt string) string
}

// NewServer starts a fake backend. It is closed on test cleanup by the caller.
func NewServer() *Server {
	s := &Server{
		messages:  make(map[int64][]map[string]any),
		contents:  make(map[int64][]byte),
		types:     make(map[int64]string),
		overrides: make(map[string]Override),
		nextID:    1000,
		Answer:    func(p string) string { return "echo: " + p },
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	return s
}

// AddThread seeds a thread with messages.
func (s *Server) AddThread(t model.Thread, msgs ...model.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.threads = append(s.threads, t)
	for _, m := range msgs {
		s.messages[t.ID] = append(s.messages[t.ID], map[string]any{
			"id": m.ID, "role": m.Role, "content": m.Content, "created_at": m.Timestamp,
		})
	}
}

// AddFile seeds a file with content.
func (s *Server) AddFile(f model.FileRecord, contentType string, content []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files = append(s.files, f)
	s.contents[f.ID] = content
	s.types[f.ID] = contentType
}

// Override makes every request to path answer with o.
func (s *Server) Override(path string, o Override) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.overrides[path] = o
}

// ClearOverride restores normal handling of path.
func (s *Server) ClearOverride(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.overrides, path)
}

// Requests returns a copy of every request seen so far.
func (s *Server) Requests() []Recorded {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Recorded, len(s.requests))
	copy(out, s.requests)
	return out
}

// RequestsTo returns the requests made to path.
func (s *Server) RequestsTo(path string) []Recorded {
	var out []Recorded
	for _, r := range s.Requests() {
		if r.Path == path {
			out = append(out, r)
		}
	}
	return out
}

// Files returns the files the server currently knows.
func (s *Server) Files() []model.FileRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.FileRecord, len(s.files))
	copy(out, s.files)
	return out
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	raw, _ := io.ReadAll(r.Body)

	s.mu.Lock()
	s.requests = append(s.requests, Recorded{Method: r.Method, Path: r.URL.Path, Header: r.Header.Clone(), Body: raw})
	o, overridden := s.overrides[r.URL.Path]
	s.mu.Unlock()

	if overridden {
		if o.Delay > 0 {
			select {
			case <-time.After(o.Delay):
			case <-r.Context().Done():
				return
			}
		}
		if o.ContentType != "" {
			w.Header().Set("Content-Type", o.ContentType)
		}
		status := o.Status
		if status == 0 {
			status = http.StatusOK
		}
		w.WriteHeader(status)
		_, _ = w.Write(o.Body)
		return
	}

	segs := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	switch {
	case r.URL.Path == "/api/health":
		writeJSON(w, map[string]any{"status": "ok", "hf_model_loaded": true, "timestamp": time.Now().UnixMilli()})

	case r.URL.Path == "/api/threads" && r.Method == http.MethodPost:
		title := formValue(r, raw, "title")
		s.mu.Lock()
		s.nextID++
		t := model.Thread{ID: s.nextID, Title: title, CreatedAt: model.Now()}
		s.threads = append([]model.Thread{t}, s.threads...)
		s.mu.Unlock()
		writeJSON(w, t)

	case r.URL.Path == "/api/threads":
		s.mu.Lock()
		threads := append([]model.Thread{}, s.threads...)
		s.mu.Unlock()
		writeJSON(w, threads)

	case len(segs) == 3 && segs[1] == "threads":
		id, _ := strconv.ParseInt(segs[2], 10, 64)
		s.mu.Lock()
		msgs := append([]map[string]any{}, s.messages[id]...)
		s.mu.Unlock()
		writeJSON(w, map[string]any{"messages": msgs})

	case r.URL.Path == "/api/files":
		writeJSON(w, s.Files())

	case r.URL.Path == "/api/upload":
		s.upload(w, r, raw)

	case len(segs) == 4 && segs[1] == "files" && segs[3] == "delete":
		id, _ := strconv.ParseInt(segs[2], 10, 64)
		s.mu.Lock()
		for i, f := range s.files {
			if f.ID == id {
				s.files = append(s.files[:i], s.files[i+1:]...)
				break
			}
		}
		s.mu.Unlock()
		writeJSON(w, map[string]string{"status": "deleted"})

	case len(segs) == 4 && segs[1] == "files" && segs[3] == "content":
		id, _ := strconv.ParseInt(segs[2], 10, 64)
		s.mu.Lock()
		content, ok := s.contents[id]
		ct := s.types[id]
		s.mu.Unlock()
		if !ok {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"detail":"File not found"}`))
			return
		}
		w.Header().Set("Content-Type", ct)
		_, _ = w.Write(content)

	case r.URL.Path == "/api/chat" || r.URL.Path == "/api/filechat":
		var in struct {
			Prompt   string `json:"prompt"`
			ThreadID *int64 `json:"thread_id"`
		}
		_ = json.Unmarshal(raw, &in)
		s.mu.Lock()
		id := int64(0)
		if in.ThreadID != nil {
			id = *in.ThreadID
		} else {
			s.nextID++
			id = s.nextID
		}
		s.mu.Unlock()
		writeJSON(w, map[string]any{"answer": s.Answer(in.Prompt), "thread_id": id})

	default:
		writeJSON(w, map[string]any{})
	}
}

func (s *Server) upload(w http.ResponseWriter, r *http.Request, raw []byte) {
	r.Body = io.NopCloser(strings.NewReader(string(raw)))
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"detail":"expected multipart form"}`))
		return
	}
	f, hdr, err := r.FormFile("file")
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"detail":"missing file"}`))
		return
	}
	defer f.Close()
	content, _ := io.ReadAll(f)

	s.mu.Lock()
	s.nextID++
	rec := model.FileRecord{ID: s.nextID, Filename: hdr.Filename, CreatedAt: model.Now()}
	s.files = append([]model.FileRecord{rec}, s.files...)
	s.contents[rec.ID] = content
	s.types[rec.ID] = hdr.Header.Get("Content-Type")
	s.mu.Unlock()

	writeJSON(w, map[string]any{"id": rec.ID, "filename": rec.Filename})
}

func formValue(r *http.Request, raw []byte, name string) string {
	r.Body = io.NopCloser(strings.NewReader(string(raw)))
	if err := r.ParseMultipartForm(1 << 20); err != nil {
		return ""
	}
	return r.FormValue(name)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
