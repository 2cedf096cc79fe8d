// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package files implements upload, delete and preview of backend files.
package files

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/gabriel-vasile/mimetype"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/jeranaias/forgechat/internal/api"
	"github.com/jeranaias/forgechat/internal/model"
	"github.com/jeranaias/forgechat/internal/store"
)

// API is the file endpoints. *api.Client satisfies it.
type API interface {
	Upload(ctx context.Context, name, contentType string, content io.Reader) (*api.UploadResult, error)
	DeleteFile(ctx context.Context, id int64) error
	FileContent(ctx context.Context, id int64) (*api.Body, error)
}

// PreviewKind says how a preview should be shown.
type PreviewKind int

const (
	// PreviewText is raw text.
	PreviewText PreviewKind = iota
	// PreviewBinary was written to a local file; Content is a note.
	PreviewBinary
	// PreviewStructured is pretty-printed JSON.
	PreviewStructured
)

// Preview is the displayable form of a file's content.
type Preview struct {
	Name        string
	Kind        PreviewKind
	ContentType string
	Content     string
	// Path is the local copy of a binary preview.
	Path string
}

// Manager performs file operations and keeps the store in step.
type Manager struct {
	api   API
	store *store.Store
	log   logrus.FieldLogger

	// TempDir holds binary previews ("" = os.TempDir()).
	TempDir string

	mu    sync.Mutex
	temps []string
}

// New creates a file manager.
func New(client API, st *store.Store, log logrus.FieldLogger) *Manager {
	if log == nil {
		l := logrus.New()
		l.SetLevel(logrus.PanicLevel)
		log = l
	}
	return &Manager{api: client, store: st, log: log.WithField("component", "files")}
}

// UploadPath uploads the file at path under its base name.
func (m *Manager) UploadPath(ctx context.Context, path string) (*model.FileRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open upload")
	}
	defer f.Close()
	return m.Upload(ctx, filepath.Base(path), f)
}

// Upload sends content as name. On success the new record is prepended to
// the file list. A response without a valid id is not an error but adds nothing;
// the returned record is then nil.
func (m *Manager) Upload(ctx context.Context, name string, content io.Reader) (*model.FileRecord, error) {
	data, err := io.ReadAll(content)
	if err != nil {
		return nil, errors.Wrap(err, "read upload")
	}
	contentType := mimetype.Detect(data).String()

	res, err := m.api.Upload(ctx, name, contentType, bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrapf(err, "upload %s", name)
	}
	if !res.ID.Valid() {
		m.log.WithField("filename", name).Warn("upload response carried no id")
		return nil, nil
	}

	rec := model.FileRecord{ID: int64(*res.ID), Filename: res.Filename, CreatedAt: model.Now()}
	if rec.Filename == "" {
		rec.Filename = name
	}
	m.store.AddFile(rec)
	m.log.WithFields(logrus.Fields{
		"file_id":      rec.ID,
		"filename":     rec.Filename,
		"content_type": contentType,
		"bytes":        len(data),
	}).Info("file uploaded")
	return &rec, nil
}

// Delete removes a file on the backend, then from the list and the staged set.
func (m *Manager) Delete(ctx context.Context, id int64) error {
	if err := m.api.DeleteFile(ctx, id); err != nil {
		return errors.Wrapf(err, "delete file %d", id)
	}
	m.store.RemoveFile(id)
	m.log.WithField("file_id", id).Info("file deleted")
	return nil
}

// Preview fetches a file's content. Text is returned as is, JSON is
// pretty-printed and binary content is written to a temporary file which
// Cleanup removes.
func (m *Manager) Preview(ctx context.Context, id int64) (*Preview, error) {
	body, err := m.api.FileContent(ctx, id)
	if err != nil {
		return nil, errors.Wrapf(err, "preview file %d", id)
	}

	name := fmt.Sprintf("file-%d", id)
	if rec, ok := m.store.File(id); ok && rec.Filename != "" {
		name = rec.Filename
	}
	p := &Preview{Name: name, ContentType: body.ContentType}

	switch body.Kind {
	case api.KindText:
		p.Kind = PreviewText
		p.Content = body.Text()

	case api.KindBinary:
		path, err := m.writeTemp(name, body)
		if err != nil {
			return nil, err
		}
		p.Kind = PreviewBinary
		p.Path = path
		p.Content = fmt.Sprintf("Opened %s in %s.", name, path)

	default:
		p.Kind = PreviewStructured
		p.Content = prettyJSON(body.Raw)
	}
	return p, nil
}

func (m *Manager) writeTemp(name string, body *api.Body) (string, error) {
	ext := filepath.Ext(name)
	if ext == "" {
		ext = api.ExtensionFor(body.ContentType, body.Raw)
	}

	f, err := os.CreateTemp(m.TempDir, "forgechat-preview-*"+ext)
	if err != nil {
		return "", errors.Wrap(err, "create preview file")
	}
	if _, err := f.Write(body.Raw); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", errors.Wrap(err, "write preview file")
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", errors.Wrap(err, "close preview file")
	}

	m.mu.Lock()
	m.temps = append(m.temps, f.Name())
	m.mu.Unlock()
	return f.Name(), nil
}

func prettyJSON(raw []byte) string {
	if len(bytes.TrimSpace(raw)) == 0 {
		return ""
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return string(raw)
	}
	return buf.String()
}

// Cleanup removes every preview file written so far.
func (m *Manager) Cleanup() error {
	m.mu.Lock()
	temps := m.temps
	m.temps = nil
	m.mu.Unlock()

	var firstErr error
	for _, p := range temps {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
