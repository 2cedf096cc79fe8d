// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"bytes"
	"encoding/json"
	"mime"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/pkg/errors"
)

// Kind is the negotiated representation of a response body.
type Kind int

const (
	KindEmpty Kind = iota
	KindJSON
	KindText
	KindBinary
)

func (k Kind) String() string {
	switch k {
	case KindJSON:
		return "json"
	case KindText:
		return "text"
	case KindBinary:
		return "binary"
	default:
		return "empty"
	}
}

// Body is a successful response. Binary bodies keep their raw bytes and are
// never decoded as text.
type Body struct {
	Kind        Kind
	ContentType string
	Raw         []byte
}

// Decode unmarshals a JSON body into v. Non-JSON bodies fail with
// ErrMalformedResponse.
func (b *Body) Decode(v any) error {
	if b == nil || b.Kind != KindJSON {
		return ErrMalformedResponse
	}
	if err := json.Unmarshal(b.Raw, v); err != nil {
		return errors.Wrap(ErrMalformedResponse, err.Error())
	}
	return nil
}

// IsArray reports whether the body is a JSON array.
func (b *Body) IsArray() bool {
	if b == nil || b.Kind != KindJSON {
		return false
	}
	trimmed := bytes.TrimSpace(b.Raw)
	return len(trimmed) > 0 && trimmed[0] == '['
}

// IsObject reports whether the body is a JSON object.
func (b *Body) IsObject() bool {
	if b == nil || b.Kind != KindJSON {
		return false
	}
	trimmed := bytes.TrimSpace(b.Raw)
	return len(trimmed) > 0 && trimmed[0] == '{'
}

// AsJSON returns a JSON view of a text body whose content is valid JSON.
// Any other body is returned unchanged.
func (b *Body) AsJSON() *Body {
	if b == nil || b.Kind != KindText || !json.Valid(b.Raw) {
		return b
	}
	return &Body{Kind: KindJSON, ContentType: b.ContentType, Raw: b.Raw}
}

// Text returns the body as a string. Binary bodies return "".
func (b *Body) Text() string {
	if b == nil || b.Kind == KindBinary {
		return ""
	}
	return string(b.Raw)
}

// JSONBody encodes v as a JSON body.
func JSONBody(v any) (*Body, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(err, "encode body")
	}
	return &Body{Kind: KindJSON, ContentType: "application/json", Raw: raw}, nil
}

// TextBody wraps s as a plain-text body.
func TextBody(s string) *Body {
	return &Body{Kind: KindText, ContentType: "text/plain; charset=utf-8", Raw: []byte(s)}
}

// negotiate classifies raw by its declared content type, sniffing one when
// the header is missing.
func negotiate(contentType string, raw []byte) *Body {
	if len(raw) == 0 {
		return &Body{Kind: KindEmpty, ContentType: contentType}
	}
	if contentType == "" {
		contentType = mimetype.Detect(raw).String()
	}
	return &Body{Kind: classify(contentType), ContentType: contentType, Raw: raw}
}

func classify(contentType string) Kind {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.ToLower(strings.TrimSpace(contentType))
	}

	switch {
	case mediaType == "application/json" || strings.HasSuffix(mediaType, "+json"):
		return KindJSON
	case strings.HasPrefix(mediaType, "text/"),
		mediaType == "application/xml",
		strings.HasSuffix(mediaType, "+xml"):
		return KindText
	default:
		return KindBinary
	}
}

// ExtensionFor returns a filename extension (with dot) for a content type,
// falling back to sniffing raw.
func ExtensionFor(contentType string, raw []byte) string {
	if mediaType, _, err := mime.ParseMediaType(contentType); err == nil {
		if m := mimetype.Lookup(mediaType); m != nil && m.Extension() != "" {
			return m.Extension()
		}
	}
	return mimetype.Detect(raw).Extension()
}
