// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/jeranaias/forgechat/internal/config"
	"github.com/jeranaias/forgechat/internal/logging"
	"github.com/jeranaias/forgechat/internal/session"
)

// Version information (set at build time).
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// globalFlags are the persistent flags shared by every command.
type globalFlags struct {
	configPath string
	demo       bool
	apiURL     string
	logLevel   string
}

// overlay returns a function applying the flags the user set explicitly.
func (g *globalFlags) overlay(cmd *cobra.Command) func(*config.Config) {
	demoSet := cmd.Flags().Changed("demo")
	demo, apiURL, logLevel := g.demo, g.apiURL, g.logLevel
	return func(c *config.Config) {
		if demoSet {
			c.DemoMode = demo
		}
		if apiURL != "" {
			c.APIURL = apiURL
		}
		if logLevel != "" {
			c.Log.Level = logLevel
		}
	}
}

func (g *globalFlags) path() (string, error) {
	if g.configPath != "" {
		return g.configPath, nil
	}
	return config.DefaultPath()
}

// loadConfig reads the config file, environment and flags, in rising order
// of precedence.
func (g *globalFlags) loadConfig(cmd *cobra.Command) (*config.Config, string, error) {
	path, err := g.path()
	if err != nil {
		return nil, "", err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	g.overlay(cmd)(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, "", errors.Wrap(err, "invalid flags")
	}
	return cfg, path, nil
}

// app is a session bound to a command's output streams.
type app struct {
	sess   *session.Session
	out    io.Writer
	errOut io.Writer
	r      *renderer

	logCloser io.Closer
}

func (g *globalFlags) open(cmd *cobra.Command) (*app, error) {
	cfg, path, err := g.loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	log, closer, err := logging.Setup(cfg.Log)
	if err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), WarningStyle.Render("Warning:"), err)
	}

	sess := session.New(cfg, path, log)
	sess.Config.Overlay(g.overlay(cmd))

	return &app{
		sess:      sess,
		out:       cmd.OutOrStdout(),
		errOut:    cmd.ErrOrStderr(),
		r:         newRenderer(cmd.OutOrStdout()),
		logCloser: closer,
	}, nil
}

func (a *app) Close() {
	_ = a.sess.Close()
	_ = a.logCloser.Close()
}

// NewRootCmd builds the command tree. Running it without a subcommand
// starts the interactive chat.
func NewRootCmd() *cobra.Command {
	g := &globalFlags{}

	root := &cobra.Command{
		Use:           "forgechat",
		Short:         "Terminal client for a document-aware chat backend",
		Version:       fmt.Sprintf("%s (commit %s, built %s)", Version, GitCommit, BuildDate),
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runChat(cmd, g)
		},
	}

	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &UsageError{Err: err}
	})

	pf := root.PersistentFlags()
	pf.StringVar(&g.configPath, "config", "", "config file (default ~/.forgechat/config.toml)")
	pf.BoolVar(&g.demo, "demo", false, "answer from the built-in simulation instead of the backend")
	pf.StringVar(&g.apiURL, "api-url", "", "backend base URL")
	pf.StringVar(&g.logLevel, "log-level", "", "log level: silent, error, warn, info, debug")

	root.AddCommand(
		newChatCmd(g),
		newAskCmd(g),
		newHealthCmd(g),
		newThreadsCmd(g),
		newFilesCmd(g),
		newUploadCmd(g),
		newConfigCmd(g),
	)
	return root
}

// Execute runs the command line and returns the process exit code.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := NewRootCmd().ExecuteContext(ctx); err != nil {
		printError(os.Stderr, err)
		return ExitCode(err)
	}
	return ExitSuccess
}
