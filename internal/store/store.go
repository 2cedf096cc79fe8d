// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package store holds the client-side conversation state: the thread and
// file lists, the staged file selection, the per-thread message cache and
// the active view.
//
// The mutex is never held across a backend call. Loads read the current
// thread again when their response arrives and only touch the view if it
// still belongs to the thread they were issued for.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/pkg/errors"
	"github.com/scylladb/go-set/i64set"
	"github.com/sirupsen/logrus"

	"github.com/jeranaias/forgechat/internal/model"
)

// ErrUnknownFile is returned when staging an id that is not in the file list.
var ErrUnknownFile = errors.New("unknown file")

// API is the subset of the backend the store needs. *api.Client satisfies it.
type API interface {
	ListThreads(ctx context.Context) ([]model.Thread, error)
	CreateThread(ctx context.Context, title string) (*model.Thread, error)
	ThreadMessages(ctx context.Context, id int64) ([]model.Message, error)
	ListFiles(ctx context.Context) ([]model.FileRecord, error)
}

// Store is the conversation state shared by the orchestrator, file
// operations and the terminal surface.
type Store struct {
	api API
	log logrus.FieldLogger

	mu      sync.RWMutex
	threads []model.Thread
	files   []model.FileRecord
	staged  *i64set.Set
	cache   MessageCache
	current *model.Thread
	view    []model.Message
}

// New creates an empty store.
func New(backend API, log logrus.FieldLogger) *Store {
	if log == nil {
		l := logrus.New()
		l.SetLevel(logrus.PanicLevel)
		log = l
	}
	return &Store{
		api:    backend,
		log:    log.WithField("component", "store"),
		staged: i64set.New(),
		cache:  make(MessageCache),
	}
}

// =============================================================================
// LOADS
// =============================================================================

// RefreshThreads replaces the thread list. A failed or malformed response
// leaves the list untouched and is returned.
func (s *Store) RefreshThreads(ctx context.Context) error {
	threads, err := s.api.ListThreads(ctx)
	if err != nil {
		return errors.Wrap(err, "list threads")
	}

	s.mu.Lock()
	s.threads = append([]model.Thread(nil), threads...)
	s.mu.Unlock()
	return nil
}

// RefreshFiles replaces the file list and unstages ids no longer present.
func (s *Store) RefreshFiles(ctx context.Context) error {
	files, err := s.api.ListFiles(ctx)
	if err != nil {
		return errors.Wrap(err, "list files")
	}

	s.mu.Lock()
	s.files = append([]model.FileRecord(nil), files...)
	known := i64set.New(model.FileIDs(files)...)
	for _, id := range s.staged.List() {
		if !known.Has(id) {
			s.staged.Remove(id)
		}
	}
	s.mu.Unlock()
	return nil
}

// SelectThread makes id current, shows its cached messages (or nothing)
// and loads the thread from the backend. The loaded list always replaces
// the cache entry. It replaces the view only if id is still current when
// the response arrives.
func (s *Store) SelectThread(ctx context.Context, id int64) error {
	s.mu.Lock()
	t := model.Thread{ID: id}
	for _, known := range s.threads {
		if known.ID == id {
			t = known
			break
		}
	}
	s.current = &t
	s.view, _ = s.cache.Get(id)
	if s.view == nil {
		s.view = []model.Message{}
	}
	s.mu.Unlock()

	msgs, err := s.api.ThreadMessages(ctx, id)
	if err != nil {
		return errors.Wrapf(err, "load thread %d", id)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache.Replace(id, msgs)
	if s.current != nil && s.current.ID == id {
		s.view = model.CloneMessages(msgs)
	} else {
		s.log.WithField("thread_id", id).Debug("discarding stale thread load for view")
	}
	return nil
}

// CreateThread asks the backend for a new thread, prepends it and selects it.
func (s *Store) CreateThread(ctx context.Context, title string) (*model.Thread, error) {
	t, err := s.api.CreateThread(ctx, title)
	if err != nil {
		return nil, errors.Wrap(err, "create thread")
	}
	s.AddThread(*t)
	if err := s.SelectThread(ctx, t.ID); err != nil {
		return t, err
	}
	return t, nil
}

// =============================================================================
// THREADS
// =============================================================================

// AddThread prepends t unless a thread with its id is already known.
func (s *Store) AddThread(t model.Thread) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addThreadLocked(t)
}

func (s *Store) addThreadLocked(t model.Thread) bool {
	for _, known := range s.threads {
		if known.ID == t.ID {
			return false
		}
	}
	s.threads = append([]model.Thread{t}, s.threads...)
	return true
}

// Threads returns a copy of the thread list.
func (s *Store) Threads() []model.Thread {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.Thread(nil), s.threads...)
}

// Current returns the current thread, if any.
func (s *Store) Current() (model.Thread, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return model.Thread{}, false
	}
	return *s.current, true
}

// CurrentID returns the id of the current thread, or nil.
func (s *Store) CurrentID() *int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentIDLocked()
}

func (s *Store) currentIDLocked() *int64 {
	if s.current == nil {
		return nil
	}
	id := s.current.ID
	return &id
}

// View returns a copy of the messages currently displayed.
func (s *Store) View() []model.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return model.CloneMessages(s.view)
}

// Cached returns a copy of the cache entry for id.
func (s *Store) Cached(id int64) ([]model.Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cache.Get(id)
}

// Reset drops every thread, file and message. Used when the backend changes.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.threads = nil
	s.files = nil
	s.staged.Clear()
	s.cache = make(MessageCache)
	s.current = nil
	s.view = nil
}

// =============================================================================
// SEND RECONCILIATION
// =============================================================================

// Propose shows an optimistic user message. It is appended to the view and,
// when a thread is current, to that thread's cache entry. It returns the
// thread the send belongs to (nil for none).
func (s *Store) Propose(msg model.Message) *int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.view = append(s.view, msg)
	id := s.currentIDLocked()
	if id != nil {
		s.cache.Append(*id, msg)
	}
	return id
}

// Confirmation is the outcome of a successful send.
type Confirmation struct {
	// SentThread is the thread current when the send started (nil for none).
	SentThread *int64
	// ThreadID is the thread the backend filed the exchange under. Nil when
	// neither the response nor the send named one; the reply is then shown
	// but not cached.
	ThreadID *int64
	// User is the optimistic message shown by Propose.
	User model.Message
	// Reply is the assistant message.
	Reply model.Message
	// NewTitle titles the thread materialized when SentThread is nil.
	NewTitle string
}

// Confirm reconciles a successful send. When the send started without a
// current thread it returns the thread the exchange now belongs to, and
// whether that thread was new to the list.
func (s *Store) Confirm(c Confirmation) (*model.Thread, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sameThread(s.currentIDLocked(), c.SentThread) {
		s.view = append(s.view, c.Reply)
	}

	if c.ThreadID == nil {
		return nil, false
	}
	id := *c.ThreadID

	// The user message is only cached under the thread that was current at
	// send time, so any other entry is seeded with it.
	if c.SentThread != nil && *c.SentThread == id {
		s.cache.Append(id, c.Reply)
	} else {
		s.cache.Append(id, c.User, c.Reply)
	}

	if c.SentThread != nil {
		return nil, false
	}

	t := model.Thread{ID: id, Title: c.NewTitle, CreatedAt: model.Now()}
	created := s.addThreadLocked(t)
	if !created {
		for _, known := range s.threads {
			if known.ID == t.ID {
				t = known
				break
			}
		}
	}
	if s.current == nil {
		s.current = &t
	}
	return &t, created
}

// Reject shows a failed send's error message in the view only. The cache is
// never given error placeholders.
func (s *Store) Reject(msg model.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.view = append(s.view, msg)
}

func sameThread(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// =============================================================================
// FILES & STAGING
// =============================================================================

// Files returns a copy of the file list.
func (s *Store) Files() []model.FileRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.FileRecord(nil), s.files...)
}

// File returns the record for id.
func (s *Store) File(id int64) (model.FileRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, f := range s.files {
		if f.ID == id {
			return f, true
		}
	}
	return model.FileRecord{}, false
}

// AddFile prepends rec, replacing any record with the same id.
func (s *Store) AddFile(rec model.FileRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	files := make([]model.FileRecord, 0, len(s.files)+1)
	files = append(files, rec)
	for _, f := range s.files {
		if f.ID != rec.ID {
			files = append(files, f)
		}
	}
	s.files = files
}

// RemoveFile drops id from the file list and the staged set.
func (s *Store) RemoveFile(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	files := s.files[:0:0]
	for _, f := range s.files {
		if f.ID != id {
			files = append(files, f)
		}
	}
	s.files = files
	s.staged.Remove(id)
}

// Stage adds id to the selection used by the next send.
func (s *Store) Stage(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range s.files {
		if f.ID == id {
			s.staged.Add(id)
			return nil
		}
	}
	return errors.Wrapf(ErrUnknownFile, "file %d", id)
}

// Unstage removes id from the selection.
func (s *Store) Unstage(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.staged.Remove(id)
}

// IsStaged reports whether id is staged.
func (s *Store) IsStaged(id int64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.staged.Has(id)
}

// StagedFiles returns the staged ids in ascending order.
func (s *Store) StagedFiles() []int64 {
	s.mu.RLock()
	ids := s.staged.List()
	s.mu.RUnlock()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// ClearStaged empties the selection.
func (s *Store) ClearStaged() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.staged.Clear()
}
