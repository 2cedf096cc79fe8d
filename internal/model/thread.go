// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"github.com/jeranaias/forgechat/internal/util"
)

// DefaultThreadTitle is used when creating a thread without an explicit title.
const DefaultThreadTitle = "New Conversation"

// TitlePrefixRunes is how much of the first prompt becomes the title of a
// thread the backend created implicitly.
const TitlePrefixRunes = 20

// Thread is a conversation session with its own message history.
type Thread struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	CreatedAt Timestamp `json:"created_at"`
}

// TitleFromPrompt derives a thread title from the prompt that created it:
// the first 20 characters followed by an ellipsis.
func TitleFromPrompt(prompt string) string {
	return util.TruncateRunesNoEllipsis(prompt, TitlePrefixRunes) + "..."
}

// DisplayTitle returns the title, or a placeholder for untitled threads.
func (t Thread) DisplayTitle() string {
	if t.Title == "" {
		return DefaultThreadTitle
	}
	return t.Title
}
