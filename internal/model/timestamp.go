// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// Timestamp is a point in time expressed in milliseconds since the Unix epoch.
//
// Backends disagree on how they encode times, so decoding accepts JSON
// numbers (seconds or milliseconds), numeric strings and RFC 3339 strings.
// Encoding always produces a JSON number of milliseconds.
type Timestamp int64

// secondsCutoff separates second-resolution epochs from millisecond ones.
// Any value below it is treated as seconds (it is year 2286 in seconds and
// early 1973 in milliseconds).
const secondsCutoff = 10_000_000_000

// Now returns the current time as a Timestamp.
func Now() Timestamp {
	return FromTime(time.Now())
}

// FromTime converts a time.Time to a Timestamp.
func FromTime(t time.Time) Timestamp {
	return Timestamp(t.UnixMilli())
}

// Time converts the timestamp back to a time.Time.
func (ts Timestamp) Time() time.Time {
	return time.UnixMilli(int64(ts))
}

// IsZero reports whether the timestamp is unset.
func (ts Timestamp) IsZero() bool {
	return ts == 0
}

// String formats the timestamp for display.
func (ts Timestamp) String() string {
	if ts.IsZero() {
		return "-"
	}
	return ts.Time().Local().Format("2006-01-02 15:04")
}

// MarshalJSON encodes the timestamp as a number of milliseconds.
func (ts Timestamp) MarshalJSON() ([]byte, error) {
	return []byte(strconv.FormatInt(int64(ts), 10)), nil
}

// UnmarshalJSON decodes numbers, numeric strings and RFC 3339 strings.
// Unparseable values decode to zero rather than failing the whole document.
func (ts *Timestamp) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*ts = 0
		return nil
	}

	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*ts = ParseTimestamp(s)
		return nil
	}

	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		*ts = 0
		return nil
	}
	*ts = fromEpoch(f)
	return nil
}

// ParseTimestamp parses a numeric or RFC 3339 string. Returns zero on failure.
func ParseTimestamp(s string) Timestamp {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return fromEpoch(f)
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return FromTime(t)
		}
	}
	return 0
}

func fromEpoch(f float64) Timestamp {
	if f <= 0 {
		return 0
	}
	if f < secondsCutoff {
		return Timestamp(f * 1000)
	}
	return Timestamp(f)
}
