// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package logging sets up the forgechat file logger.
//
// The terminal belongs to the chat UI, so log output goes to a file
// (~/.forgechat/forgechat.log by default) and never to stdout.
package logging

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/jeranaias/forgechat/internal/config"
)

// Level maps a configured level name onto a logrus level. Unknown names map
// to error. "silent" only lets panics through.
func Level(name string) logrus.Level {
	switch strings.ToLower(name) {
	case "silent":
		return logrus.PanicLevel
	case "error":
		return logrus.ErrorLevel
	case "warn":
		return logrus.WarnLevel
	case "info":
		return logrus.InfoLevel
	case "debug":
		return logrus.DebugLevel
	default:
		return logrus.ErrorLevel
	}
}

// DefaultPath returns ~/.forgechat/forgechat.log.
func DefaultPath() (string, error) {
	dir, err := config.ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "forgechat.log"), nil
}

// FileLogger opens (appending) the log file at path and returns a logger
// writing to it. The returned file must be closed by the caller.
func FileLogger(level logrus.Level, path string) (*os.File, *logrus.Logger, error) {
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, nil, err
		}
		path = p
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, nil, errors.Wrap(err, "failed to create log directory")
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "failed to open log file %s", path)
	}

	logger := New(f, level)
	return f, logger, nil
}

// New returns a logger writing plain text records to w.
func New(w io.Writer, level logrus.Level) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(w)
	logger.SetLevel(level)
	logger.SetFormatter(&logrus.TextFormatter{
		DisableColors:   true,
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05.000",
	})
	return logger
}

// Discard returns a logger that drops everything. Used by tests and by
// components constructed without a logger.
func Discard() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

// Setup builds the process logger from the log section of the config.
// When the file cannot be opened the logger falls back to discarding output
// and the error is returned for the caller to report.
func Setup(cfg config.LogConfig) (*logrus.Logger, io.Closer, error) {
	f, logger, err := FileLogger(Level(cfg.Level), cfg.Path)
	if err != nil {
		return Discard(), io.NopCloser(nil), err
	}
	return logger, f, nil
}
