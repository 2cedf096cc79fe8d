// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package store

import "time"

const (
	testWait = 2 * time.Second
	testTick = time.Millisecond
)

func ptr(v int64) *int64 { return &v }
