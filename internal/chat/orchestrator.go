// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat sends prompts with optimistic local updates.
//
// A send is two-phase. The user message is shown immediately (propose),
// then the backend reply either confirms it by adding the answer, or
// rejects it by adding a single inline error. Error placeholders are never
// cached, so reselecting the thread shows only what the backend knows.
package chat

import (
	"context"
	"strings"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/jeranaias/forgechat/internal/api"
	"github.com/jeranaias/forgechat/internal/model"
	"github.com/jeranaias/forgechat/internal/store"
)

const (
	// ErrorReply is shown in place of an answer when a send fails.
	ErrorReply = "**Error:** Failed to get response. Check your connection and settings."
	// NoAnswer is shown when the backend answered with an empty string.
	NoAnswer = "No answer"
)

var (
	// ErrNothingToSend is returned for blank input with no staged files.
	ErrNothingToSend = errors.New("nothing to send")
	// ErrBusy is returned while another send is in flight.
	ErrBusy = errors.New("a message is already being sent")
)

// API is the chat endpoint. *api.Client satisfies it.
type API interface {
	Chat(ctx context.Context, endpoint string, req api.ChatRequest) (*api.ChatResponse, error)
}

// Result describes a finished send.
type Result struct {
	User  model.Message
	Reply model.Message
	// ThreadID is the thread the exchange was filed under, if any.
	ThreadID *int64
	// Thread is set when the send started without a current thread and the
	// backend named one.
	Thread *model.Thread
	// NewThread reports whether Thread was added to the list by this send.
	NewThread bool
	// Failed is true when Reply is the inline error.
	Failed bool
}

// Orchestrator serializes sends: a second Send while one is in flight is
// rejected, not queued.
type Orchestrator struct {
	api   API
	store *store.Store
	cfg   api.ConfigSource
	log   logrus.FieldLogger

	inFlight atomic.Bool
}

// New creates an orchestrator.
func New(client API, st *store.Store, cfg api.ConfigSource, log logrus.FieldLogger) *Orchestrator {
	if log == nil {
		l := logrus.New()
		l.SetLevel(logrus.PanicLevel)
		log = l
	}
	return &Orchestrator{api: client, store: st, cfg: cfg, log: log.WithField("component", "chat")}
}

// Send submits input together with the staged files.
//
// On a backend failure the inline error is already in the view; the
// returned Result has Failed set and the error is returned alongside it.
func (o *Orchestrator) Send(ctx context.Context, input string) (*Result, error) {
	prompt := strings.TrimSpace(input)
	files := o.store.StagedFiles()
	if prompt == "" && len(files) == 0 {
		return nil, ErrNothingToSend
	}
	if !o.inFlight.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	defer o.inFlight.Store(false)

	// Staged files are consumed by the attempt whether or not it succeeds.
	if len(files) > 0 {
		defer o.store.ClearStaged()
	}

	user := model.NewUserMessage(prompt)
	sent := o.store.Propose(user)

	cfg := o.cfg.Get()
	endpoint, useRAG := api.EndpointChat, cfg.UseRAG
	if len(files) > 0 {
		endpoint, useRAG = api.EndpointFileChat, true
	}

	entry := o.log.WithFields(logrus.Fields{
		"endpoint": endpoint,
		"files":    len(files),
	})
	if sent != nil {
		entry = entry.WithField("thread_id", *sent)
	}

	res, err := o.api.Chat(ctx, endpoint, api.ChatRequest{
		Prompt:      prompt,
		ThreadID:    sent,
		FileIDs:     files,
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
		UseRAG:      useRAG,
	})
	if err != nil {
		entry.WithError(err).WithField("aborted", api.IsAbort(err)).Warn("send failed")
		reply := model.NewAssistantMessage(ErrorReply)
		o.store.Reject(reply)
		return &Result{User: user, Reply: reply, ThreadID: sent, Failed: true}, errors.Wrap(err, "send")
	}

	answer := res.Answer
	if answer == "" {
		answer = NoAnswer
	}
	reply := model.NewAssistantMessage(answer)

	threadID := sent
	if res.ThreadID.Valid() {
		id := int64(*res.ThreadID)
		threadID = &id
	}

	thread, created := o.store.Confirm(store.Confirmation{
		SentThread: sent,
		ThreadID:   threadID,
		User:       user,
		Reply:      reply,
		NewTitle:   titleFor(prompt),
	})
	if created {
		entry.WithField("new_thread_id", thread.ID).Info("thread created by first message")
	}
	entry.Debug("send completed")

	return &Result{
		User:      user,
		Reply:     reply,
		ThreadID:  threadID,
		Thread:    thread,
		NewThread: created,
	}, nil
}

func titleFor(prompt string) string {
	if prompt == "" {
		return model.DefaultThreadTitle
	}
	return model.TitleFromPrompt(prompt)
}
