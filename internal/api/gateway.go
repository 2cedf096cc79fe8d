// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/jeranaias/forgechat/internal/util"
)

const (
	// MaxResponseSize caps how much of a response body is read.
	MaxResponseSize = 10 * 1024 * 1024

	// maxErrorRunes caps the text of a non-JSON error body.
	maxErrorRunes = 400

	// HeaderAPIKey carries the backend key on every request.
	HeaderAPIKey = "X-API-Key"
	// HeaderRequestID correlates a request with the log.
	HeaderRequestID = "X-Request-ID"
)

// Gateway is the single chokepoint for real backend calls.
//
// It reads the connection settings on every call, so a changed URL, key or
// budget applies to the next call without rebuilding anything.
type Gateway struct {
	cfg        ConfigSource
	httpClient *http.Client
	mode       *Mode
	log        logrus.FieldLogger

	mu              sync.RWMutex
	onHealthFailure func(error)
}

// GatewayOption configures a Gateway.
type GatewayOption func(*Gateway)

// WithHTTPClient sets the underlying HTTP client. Budgets are enforced with
// contexts, so the client should not carry its own timeout.
func WithHTTPClient(c *http.Client) GatewayOption {
	return func(g *Gateway) { g.httpClient = c }
}

// WithLogger sets the logger.
func WithLogger(log logrus.FieldLogger) GatewayOption {
	return func(g *Gateway) { g.log = log }
}

// WithMode lets the gateway suppress the health side channel while the
// simulation is active.
func WithMode(m *Mode) GatewayOption {
	return func(g *Gateway) { g.mode = m }
}

// NewGateway creates a gateway reading its settings from cfg.
func NewGateway(cfg ConfigSource, opts ...GatewayOption) *Gateway {
	g := &Gateway{
		cfg: cfg,
		httpClient: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		g.log = l
	}
	g.log = g.log.WithField("component", "gateway")
	return g
}

// OnHealthFailure registers fn to be told about every failed health call.
// It runs in addition to the error being returned to the caller. Calls
// whose caller context was cancelled are not reported.
func (g *Gateway) OnHealthFailure(fn func(error)) {
	g.mu.Lock()
	g.onHealthFailure = fn
	g.mu.Unlock()
}

// Call performs one request against the configured backend.
func (g *Gateway) Call(ctx context.Context, endpoint string, req *Request) (*Body, error) {
	body, err := g.call(ctx, endpoint, req)
	if err != nil && ctx.Err() == nil && pathOf(endpoint) == EndpointHealth && !g.simulating() {
		g.mu.RLock()
		fn := g.onHealthFailure
		g.mu.RUnlock()
		if fn != nil {
			fn(err)
		}
	}
	return body, err
}

func (g *Gateway) simulating() bool {
	return g.mode != nil && g.mode.Demo()
}

func (g *Gateway) call(ctx context.Context, endpoint string, req *Request) (*Body, error) {
	cfg := g.cfg.Get()
	budget := Budget(endpoint, cfg.Timeouts)

	ctx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	payload, contentType, err := encodeRequest(req)
	if err != nil {
		return nil, errors.Wrapf(err, "encode %s", endpoint)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method(), cfg.BaseURL()+endpoint, payload)
	if err != nil {
		return nil, errors.Wrapf(err, "build %s", endpoint)
	}

	httpReq.Header.Set(HeaderAPIKey, cfg.APIKey)
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	if req != nil {
		for k, vs := range req.Header {
			httpReq.Header.Del(k)
			for _, v := range vs {
				httpReq.Header.Add(k, v)
			}
		}
	}
	requestID := httpReq.Header.Get(HeaderRequestID)
	if requestID == "" {
		requestID = uuid.NewString()
		httpReq.Header.Set(HeaderRequestID, requestID)
	}

	entry := g.log.WithFields(logrus.Fields{
		"method":     httpReq.Method,
		"path":       endpoint,
		"request_id": requestID,
	})

	start := time.Now()
	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		if abort := abortFrom(ctx, endpoint, budget); abort != nil {
			entry.WithError(err).Warn("request aborted")
			return nil, abort
		}
		entry.WithError(err).Warn("request failed")
		return nil, errors.Wrapf(err, "%s %s", httpReq.Method, endpoint)
	}
	defer resp.Body.Close()

	raw, err := readResponse(resp.Body)
	if err != nil {
		if abort := abortFrom(ctx, endpoint, budget); abort != nil {
			entry.WithError(err).Warn("response aborted")
			return nil, abort
		}
		return nil, errors.Wrapf(err, "read %s", endpoint)
	}

	entry = entry.WithFields(logrus.Fields{
		"status":   resp.StatusCode,
		"duration": time.Since(start).Round(time.Millisecond),
	})

	ct := resp.Header.Get("Content-Type")
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		reqErr := &RequestError{
			Endpoint: endpoint,
			Status:   resp.StatusCode,
			Message:  failureMessage(resp.StatusCode, ct, raw),
		}
		entry.WithError(reqErr).Warn("request rejected")
		return nil, reqErr
	}

	entry.Debug("request completed")
	return negotiate(ct, raw), nil
}

// abortFrom converts an expired or cancelled call context into an AbortError.
func abortFrom(ctx context.Context, endpoint string, budget time.Duration) *AbortError {
	cause := ctx.Err()
	if cause == nil {
		return nil
	}
	return &AbortError{
		Endpoint: endpoint,
		Timeout:  errors.Is(cause, context.DeadlineExceeded),
		Budget:   budget,
		Cause:    cause,
	}
}

func readResponse(r io.Reader) ([]byte, error) {
	raw, err := io.ReadAll(io.LimitReader(r, MaxResponseSize+1))
	if err != nil {
		return nil, err
	}
	if len(raw) > MaxResponseSize {
		return nil, errors.Wrapf(ErrResponseTooLarge, "limit %d bytes", MaxResponseSize)
	}
	return raw, nil
}

// failureMessage extracts a human-readable message from an error body.
func failureMessage(status int, contentType string, raw []byte) string {
	fallback := fmt.Sprintf("HTTP %d", status)
	if len(bytes.TrimSpace(raw)) == 0 {
		return fallback
	}

	if classify(contentType) == KindJSON {
		var decoded any
		if err := json.Unmarshal(raw, &decoded); err != nil {
			return fallback
		}
		if obj, ok := decoded.(map[string]any); ok {
			if detail, ok := obj["detail"]; ok && detail != nil {
				if s, ok := detail.(string); ok {
					return s
				}
				if b, err := json.Marshal(detail); err == nil {
					return string(b)
				}
			}
		}
		b, err := json.Marshal(decoded)
		if err != nil {
			return fallback
		}
		return string(b)
	}

	return util.TruncateRunesNoEllipsis(string(raw), maxErrorRunes)
}

// encodeRequest builds the request body and its content type.
func encodeRequest(req *Request) (io.Reader, string, error) {
	if req == nil {
		return nil, "", nil
	}
	switch {
	case req.Form != nil:
		return encodeForm(req.Form)
	case req.JSON != nil:
		raw, err := json.Marshal(req.JSON)
		if err != nil {
			return nil, "", err
		}
		return bytes.NewReader(raw), "application/json", nil
	default:
		return nil, "", nil
	}
}

func encodeForm(f *Form) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	keys := make([]string, 0, len(f.Fields))
	for k := range f.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := w.WriteField(k, f.Fields[k]); err != nil {
			return nil, "", err
		}
	}

	if f.File != nil {
		content, err := io.ReadAll(f.File.Content)
		if err != nil {
			return nil, "", errors.Wrap(err, "read upload")
		}
		field := f.File.Field
		if field == "" {
			field = "file"
		}
		ct := f.File.ContentType
		if ct == "" {
			ct = mimetype.Detect(content).String()
		}

		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
			escapeQuotes(field), escapeQuotes(f.File.Name)))
		h.Set("Content-Type", ct)
		part, err := w.CreatePart(h)
		if err != nil {
			return nil, "", err
		}
		if _, err := part.Write(content); err != nil {
			return nil, "", err
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}
