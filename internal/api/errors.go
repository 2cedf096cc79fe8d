// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"errors"
	"fmt"
	"time"
)

// ErrMalformedResponse indicates a successful response whose body does not
// have the shape the endpoint promises. Callers treat it as a no-op.
var ErrMalformedResponse = errors.New("malformed response")

// ErrResponseTooLarge is returned when a body exceeds MaxResponseSize.
var ErrResponseTooLarge = errors.New("response exceeded maximum size")

// RequestError is a non-2xx response from the backend.
type RequestError struct {
	Endpoint string
	Status   int
	Message  string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.Status, e.Message)
}

// AbortError is a call that was cut short, either because its time budget
// expired or because the caller's context was cancelled.
type AbortError struct {
	Endpoint string
	// Timeout is true when the per-endpoint budget (or a parent deadline)
	// expired rather than an explicit cancel.
	Timeout bool
	Budget  time.Duration
	Cause   error
}

func (e *AbortError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("%s aborted: no response within %s", e.Endpoint, e.Budget)
	}
	return fmt.Sprintf("%s aborted: %v", e.Endpoint, e.Cause)
}

func (e *AbortError) Unwrap() error {
	return e.Cause
}

// IsAbort reports whether err is (or wraps) an *AbortError.
func IsAbort(err error) bool {
	var ae *AbortError
	return errors.As(err, &ae)
}

// StatusOf returns the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var re *RequestError
	if errors.As(err, &re) {
		return re.Status
	}
	return 0
}
