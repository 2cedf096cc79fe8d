// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

// HealthState is the liveness state of the backend. Besides the three client
// states the backend may report its own status string, which is kept as is.
type HealthState string

const (
	HealthChecking HealthState = "checking"
	HealthOK       HealthState = "ok"
	HealthError    HealthState = "error"
)

// HealthStatus is the result of the most recent liveness check.
type HealthStatus struct {
	Status      HealthState `json:"status"`
	Timestamp   *int64      `json:"timestamp"`
	ModelLoaded bool        `json:"model_loaded"`
}

// CheckingStatus is the state before the first check completes.
func CheckingStatus() HealthStatus {
	return HealthStatus{Status: HealthChecking}
}

// ErrorStatus is the state after a failed check.
func ErrorStatus() HealthStatus {
	return HealthStatus{Status: HealthError}
}

// IsError reports whether the last check failed.
func (h HealthStatus) IsError() bool {
	return h.Status == HealthError
}
