// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"context"
	"io"
	"net/http"

	"github.com/jeranaias/forgechat/internal/config"
)

// Caller performs one backend call. Gateway, Simulation and Backend all
// implement it.
type Caller interface {
	Call(ctx context.Context, endpoint string, req *Request) (*Body, error)
}

// ConfigSource supplies the connection settings current at call time.
// *config.Store satisfies it.
type ConfigSource interface {
	Get() *config.Config
}

// Request describes the non-URL parts of a call. At most one of JSON and
// Form is set. A nil *Request is a plain GET.
type Request struct {
	Method string
	Header http.Header
	JSON   any
	Form   *Form
}

// Form is a multipart/form-data payload.
type Form struct {
	Fields map[string]string
	File   *FormFile
}

// FormFile is the single file part of a Form.
type FormFile struct {
	// Field is the form field name ("file" when empty).
	Field string
	// Name is the filename sent to the backend.
	Name string
	// ContentType is detected from the content when empty.
	ContentType string
	Content     io.Reader
}

// Get returns a GET request.
func Get() *Request {
	return &Request{Method: http.MethodGet}
}

// PostJSON returns a POST request with a JSON body.
func PostJSON(v any) *Request {
	return &Request{Method: http.MethodPost, JSON: v}
}

// PostForm returns a POST request with a multipart body.
func PostForm(f *Form) *Request {
	return &Request{Method: http.MethodPost, Form: f}
}

// Post returns a POST request without a body.
func Post() *Request {
	return &Request{Method: http.MethodPost}
}

func (r *Request) method() string {
	if r == nil || r.Method == "" {
		return http.MethodGet
	}
	return r.Method
}

// field returns a form field value, or "".
func (r *Request) field(name string) string {
	if r == nil || r.Form == nil {
		return ""
	}
	return r.Form.Fields[name]
}
