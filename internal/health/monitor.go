// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package health polls backend liveness and projects it onto a status
// indicator.
package health

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jeranaias/forgechat/internal/api"
	"github.com/jeranaias/forgechat/internal/model"
)

// Indicator is the user-facing projection of the health state.
type Indicator string

const (
	IndicatorDemo       Indicator = "demo"
	IndicatorConnecting Indicator = "connecting"
	IndicatorOnline     Indicator = "online"
	IndicatorLoading    Indicator = "loading"
	IndicatorOffline    Indicator = "offline"
)

// Checker performs one liveness call. *api.Client satisfies it.
type Checker interface {
	Health(ctx context.Context) (*api.HealthResponse, error)
}

// Monitor polls the health endpoint on a fixed interval. There is no backoff
// and no retry budget: the next tick is the retry.
type Monitor struct {
	checker Checker
	mode    *api.Mode
	cfg     api.ConfigSource
	log     logrus.FieldLogger

	mu     sync.RWMutex
	status model.HealthStatus
	subs   []func(model.HealthStatus)

	runMu  sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewMonitor creates a stopped monitor in the checking state. The polling
// interval is read from cfg each time polling starts.
func NewMonitor(checker Checker, mode *api.Mode, cfg api.ConfigSource, log logrus.FieldLogger) *Monitor {
	if log == nil {
		l := logrus.New()
		l.SetLevel(logrus.PanicLevel)
		log = l
	}
	return &Monitor{
		checker: checker,
		mode:    mode,
		cfg:     cfg,
		log:     log.WithField("component", "health"),
		status:  model.CheckingStatus(),
	}
}

// Status returns the latest health status.
func (m *Monitor) Status() model.HealthStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

// OnChange registers fn to run after every status update.
func (m *Monitor) OnChange(fn func(model.HealthStatus)) {
	m.mu.Lock()
	m.subs = append(m.subs, fn)
	m.mu.Unlock()
}

// Indicator projects the status onto the indicator shown to the user.
func (m *Monitor) Indicator() Indicator {
	if m.mode != nil && m.mode.Demo() {
		return IndicatorDemo
	}
	return Project(m.Status())
}

// Project maps a status to an indicator outside demo mode.
func Project(s model.HealthStatus) Indicator {
	switch s.Status {
	case model.HealthChecking, "":
		return IndicatorConnecting
	case model.HealthError:
		return IndicatorOffline
	}
	if s.ModelLoaded {
		return IndicatorOnline
	}
	return IndicatorLoading
}

// Check performs one health call and records the result. A check cut short
// by ctx (Stop, Restart, shutdown) records nothing and returns the previous
// status.
func (m *Monitor) Check(ctx context.Context) model.HealthStatus {
	res, err := m.checker.Health(ctx)
	if err != nil {
		if ctx.Err() != nil {
			m.log.WithError(err).Debug("health check abandoned")
			return m.Status()
		}
		m.log.WithError(err).Debug("health check failed")
		st := model.ErrorStatus()
		m.set(func(s *model.HealthStatus) { *s = st })
		return st
	}

	st := model.HealthStatus{Status: model.HealthOK, ModelLoaded: true}
	if res.Status != "" {
		st.Status = model.HealthState(res.Status)
	}
	if res.ModelLoaded != nil {
		st.ModelLoaded = *res.ModelLoaded
	}
	if res.Timestamp != nil {
		ts := int64(*res.Timestamp)
		st.Timestamp = &ts
	}
	m.set(func(s *model.HealthStatus) { *s = st })
	return st
}

// MarkError flips only the status to error, leaving the rest of the last
// result in place. The gateway calls it for every failed health request.
func (m *Monitor) MarkError(err error) {
	m.log.WithError(err).Debug("health failure reported by transport")
	m.set(func(s *model.HealthStatus) { s.Status = model.HealthError })
}

// Reset returns the status to checking.
func (m *Monitor) Reset() {
	m.set(func(s *model.HealthStatus) { *s = model.CheckingStatus() })
}

func (m *Monitor) set(fn func(*model.HealthStatus)) {
	m.mu.Lock()
	fn(&m.status)
	st := m.status
	subs := make([]func(model.HealthStatus), len(m.subs))
	copy(subs, m.subs)
	m.mu.Unlock()

	for _, sub := range subs {
		sub(st)
	}
}

// Start begins polling. It does nothing while demo mode is on or when the
// monitor is already running. The first check happens one interval after
// Start; callers wanting an immediate result call Check themselves.
func (m *Monitor) Start(ctx context.Context) {
	m.runMu.Lock()
	defer m.runMu.Unlock()

	if m.cancel != nil {
		return
	}
	if m.mode != nil && m.mode.Demo() {
		m.log.Debug("demo mode: health polling suspended")
		return
	}

	interval := m.cfg.Get().Health.Interval.D()
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	m.cancel = cancel
	m.done = done

	go m.loop(ctx, interval, done)
	m.log.WithField("interval", interval).Debug("health polling started")
}

func (m *Monitor) loop(ctx context.Context, interval time.Duration, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if m.mode != nil && m.mode.Demo() {
				continue
			}
			m.Check(ctx)
		}
	}
}

// Stop halts polling and waits for the loop to exit.
func (m *Monitor) Stop() {
	m.runMu.Lock()
	cancel, done := m.cancel, m.done
	m.cancel, m.done = nil, nil
	m.runMu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Running reports whether the poll loop is active.
func (m *Monitor) Running() bool {
	m.runMu.Lock()
	defer m.runMu.Unlock()
	return m.cancel != nil
}

// Restart stops polling, resets the status and starts again with the
// current interval and mode.
func (m *Monitor) Restart(ctx context.Context) {
	m.Stop()
	m.Reset()
	m.Start(ctx)
}
