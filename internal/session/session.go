// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"net/http"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/jeranaias/forgechat/internal/api"
	"github.com/jeranaias/forgechat/internal/chat"
	"github.com/jeranaias/forgechat/internal/config"
	"github.com/jeranaias/forgechat/internal/files"
	"github.com/jeranaias/forgechat/internal/health"
	"github.com/jeranaias/forgechat/internal/model"
	"github.com/jeranaias/forgechat/internal/store"
)

// Option customizes a Session.
type Option func(*options)

type options struct {
	httpClient *http.Client
}

// WithHTTPClient sets the HTTP client used by the live gateway.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// Session is one running client.
type Session struct {
	Config  *config.Store
	Mode    *api.Mode
	Gateway *api.Gateway
	Backend *api.Backend
	Client  *api.Client
	Health  *health.Monitor
	Store   *store.Store
	Chat    *chat.Orchestrator
	Files   *files.Manager

	log logrus.FieldLogger

	// ctx bounds background work (polling, reinitialization after a
	// config change) and is cancelled by Close.
	ctx    context.Context
	cancel context.CancelFunc

	// reMu serializes reinitialization.
	reMu sync.Mutex

	watchMu sync.Mutex
	watcher *config.Watcher
	closed  bool
}

// New builds a session around cfg. path is the config file that Save, Reload
// and WatchConfig use; it may be empty.
func New(cfg *config.Config, path string, log logrus.FieldLogger, opts ...Option) *Session {
	if cfg == nil {
		cfg = config.Default()
	}
	if log == nil {
		l := logrus.New()
		l.SetLevel(logrus.PanicLevel)
		log = l
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	cfgStore := config.NewStore(cfg, path)
	mode := api.NewMode(cfg.DemoMode)

	gwOpts := []api.GatewayOption{api.WithLogger(log), api.WithMode(mode)}
	if o.httpClient != nil {
		gwOpts = append(gwOpts, api.WithHTTPClient(o.httpClient))
	}
	gw := api.NewGateway(cfgStore, gwOpts...)
	backend := api.NewBackend(mode, gw, api.NewSimulation(cfgStore))
	client := api.NewClient(backend)

	monitor := health.NewMonitor(client, mode, cfgStore, log)
	gw.OnHealthFailure(monitor.MarkError)

	st := store.New(client, log)
	ctx, cancel := context.WithCancel(context.Background())

	s := &Session{
		Config:  cfgStore,
		Mode:    mode,
		Gateway: gw,
		Backend: backend,
		Client:  client,
		Health:  monitor,
		Store:   st,
		Chat:    chat.New(client, st, cfgStore, log),
		Files:   files.New(client, st, log),
		log:     log.WithField("component", "session"),
		ctx:     ctx,
		cancel:  cancel,
	}
	cfgStore.Subscribe(s.onConfigChange)
	mode.OnChange(func(demo bool) {
		s.log.WithField("demo", demo).Info("demo mode switched")
	})
	monitor.OnChange(func(st model.HealthStatus) {
		s.log.WithFields(logrus.Fields{
			"status":       st.Status,
			"model_loaded": st.ModelLoaded,
		}).Debug("health status updated")
	})
	return s
}

// Initialize performs the startup loads: a health check, the thread and
// file lists, then the first thread's messages. Failures are logged and
// leave the affected part empty.
func (s *Session) Initialize(ctx context.Context) {
	st := s.Health.Check(ctx)
	s.log.WithField("status", st.Status).Debug("initial health check")
	s.Health.Start(s.ctx)

	if err := s.Store.RefreshThreads(ctx); err != nil {
		s.log.WithError(err).Warn("failed to load threads")
	}
	if err := s.Store.RefreshFiles(ctx); err != nil {
		s.log.WithError(err).Warn("failed to load files")
	}

	threads := s.Store.Threads()
	if len(threads) == 0 {
		return
	}
	if err := s.Store.SelectThread(ctx, threads[0].ID); err != nil {
		s.log.WithError(err).WithField("thread_id", threads[0].ID).Warn("failed to load thread")
	}
}

// Reconfigure validates cfg and makes it active. A connection change
// (base URL, API key or demo mode) restarts the session before returning.
func (s *Session) Reconfigure(cfg *config.Config) error {
	if err := s.Config.Set(cfg); err != nil {
		return errors.Wrap(err, "reconfigure")
	}
	return nil
}

// SetDemoMode switches demo mode on or off.
func (s *Session) SetDemoMode(on bool) error {
	_, err := s.Config.Update(func(c *config.Config) { c.DemoMode = on })
	return errors.Wrap(err, "set demo mode")
}

func (s *Session) onConfigChange(old, cur *config.Config) {
	if !config.ConnectionChanged(old, cur) {
		return
	}
	if s.ctx.Err() != nil {
		return
	}

	s.reMu.Lock()
	defer s.reMu.Unlock()

	s.log.WithFields(logrus.Fields{
		"api_url": cur.BaseURL(),
		"demo":    cur.DemoMode,
	}).Info("connection settings changed; reinitializing")

	s.Mode.Set(cur.DemoMode)
	s.Health.Restart(s.ctx)
	s.Store.Reset()
	s.Initialize(s.ctx)
}

// WatchConfig reloads the session whenever the config file changes on disk.
func (s *Session) WatchConfig() error {
	if s.Config.Path() == "" {
		return errors.New("session has no config file to watch")
	}

	s.watchMu.Lock()
	defer s.watchMu.Unlock()
	if s.closed {
		return errors.New("session closed")
	}
	if s.watcher != nil {
		return nil
	}

	w, err := config.NewWatcher(s.Config, 0, s.log)
	if err != nil {
		return errors.Wrap(err, "create config watcher")
	}
	if err := w.Watch(); err != nil {
		w.Close()
		return errors.Wrap(err, "watch config")
	}
	s.watcher = w
	return nil
}

// Close stops background work and removes preview files.
func (s *Session) Close() error {
	s.watchMu.Lock()
	if s.closed {
		s.watchMu.Unlock()
		return nil
	}
	s.closed = true
	w := s.watcher
	s.watcher = nil
	s.watchMu.Unlock()

	s.cancel()
	s.Health.Stop()

	var firstErr error
	if w != nil {
		if err := w.Close(); err != nil {
			firstErr = errors.Wrap(err, "close config watcher")
		}
	}
	if err := s.Files.Cleanup(); err != nil && firstErr == nil {
		firstErr = errors.Wrap(err, "remove preview files")
	}
	return firstErr
}
