// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"sync"
	"time"

	"github.com/jeranaias/forgechat/internal/util"
)

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role represents the sender of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// DisplayName returns a human-readable name for the role.
func (r Role) DisplayName() string {
	switch r {
	case RoleUser:
		return "You"
	case RoleAssistant:
		return "Assistant"
	default:
		return string(r)
	}
}

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// Message represents a single message in a thread.
//
// Optimistic user messages and assistant replies get locally generated ids;
// messages loaded from the backend keep the server-assigned id.
type Message struct {
	ID        int64     `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp Timestamp `json:"timestamp"`
}

// NewMessage creates a message with a locally generated id and the current time.
func NewMessage(role Role, content string) Message {
	return Message{
		ID:        NextLocalID(),
		Role:      role,
		Content:   content,
		Timestamp: Now(),
	}
}

// NewUserMessage creates a new user message.
func NewUserMessage(content string) Message {
	return NewMessage(RoleUser, content)
}

// NewAssistantMessage creates a new assistant message.
func NewAssistantMessage(content string) Message {
	return NewMessage(RoleAssistant, content)
}

// Preview returns a truncated preview of the message content.
func (m Message) Preview(maxLen int) string {
	return util.TruncateRunes(m.Content, maxLen)
}

// IsEmpty returns true if the message has no content.
func (m Message) IsEmpty() bool {
	return len(m.Content) == 0
}

// CloneMessages returns a copy of msgs that shares no backing array.
func CloneMessages(msgs []Message) []Message {
	if msgs == nil {
		return nil
	}
	out := make([]Message, len(msgs))
	copy(out, msgs)
	return out
}

// =============================================================================
// LOCAL IDS
// =============================================================================

var (
	localIDMu   sync.Mutex
	lastLocalID int64
)

// NextLocalID returns a millisecond-based id that is strictly greater than
// every id returned before it, even when called twice in the same millisecond.
func NextLocalID() int64 {
	localIDMu.Lock()
	defer localIDMu.Unlock()

	id := time.Now().UnixMilli()
	if id <= lastLocalID {
		id = lastLocalID + 1
	}
	lastLocalID = id
	return id
}
