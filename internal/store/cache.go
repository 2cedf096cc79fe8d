// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package store

import "github.com/jeranaias/forgechat/internal/model"

// MessageCache maps a thread id to its known messages.
//
// It has exactly two mutations. Replace installs a full load from the
// backend, which is ground truth. Append adds messages produced by a send
// after whatever is already cached. Readers get copies.
type MessageCache map[int64][]model.Message

// Replace sets the entry for id to a copy of msgs.
func (c MessageCache) Replace(id int64, msgs []model.Message) {
	out := make([]model.Message, len(msgs))
	copy(out, msgs)
	c[id] = out
}

// Append adds msgs after the existing entry for id, creating it if needed.
func (c MessageCache) Append(id int64, msgs ...model.Message) {
	existing := c[id]
	out := make([]model.Message, 0, len(existing)+len(msgs))
	out = append(out, existing...)
	out = append(out, msgs...)
	c[id] = out
}

// Get returns a copy of the entry for id.
func (c MessageCache) Get(id int64) ([]model.Message, bool) {
	msgs, ok := c[id]
	if !ok {
		return nil, false
	}
	return model.CloneMessages(msgs), true
}
