// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

// FileRecord is an uploaded file that can be staged as retrieval context.
type FileRecord struct {
	ID        int64     `json:"id"`
	Filename  string    `json:"filename"`
	CreatedAt Timestamp `json:"created_at"`
}

// FileIDs returns the ids of files in order.
func FileIDs(files []FileRecord) []int64 {
	ids := make([]int64, 0, len(files))
	for _, f := range files {
		ids = append(ids, f.ID)
	}
	return ids
}
