// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/jeranaias/forgechat/internal/chat"
	"github.com/jeranaias/forgechat/internal/config"
	"github.com/jeranaias/forgechat/internal/health"
)

func newAskCmd(g *globalFlags) *cobra.Command {
	var (
		fileIDs  []int64
		threadID int64
	)

	cmd := &cobra.Command{
		Use:   "ask <prompt>",
		Short: "Send one message and print the answer",
		Example: `  forgechat ask "What does the contract say about renewals?" --file 12
  forgechat ask --thread 4 "And the termination clause?"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			prompt := strings.Join(args, " ")
			if strings.TrimSpace(prompt) == "" && len(fileIDs) == 0 {
				return errors.New("nothing to ask: give a prompt or --file")
			}

			a, err := g.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			ctx := cmd.Context()

			if threadID != 0 {
				if err := a.sess.Store.SelectThread(ctx, threadID); err != nil {
					return errors.Wrapf(err, "open thread %d", threadID)
				}
			}
			if len(fileIDs) > 0 {
				if err := a.sess.Store.RefreshFiles(ctx); err != nil {
					return errors.Wrap(err, "load files")
				}
				for _, id := range fileIDs {
					if err := a.sess.Store.Stage(id); err != nil {
						return errors.Wrapf(err, "attach file %d", id)
					}
				}
			}

			var res *chat.Result
			err = withSpinner(ctx, a.errOut, "Thinking", a.sess.Health.Indicator, func(ctx context.Context) error {
				var err error
				res, err = a.sess.Chat.Send(ctx, prompt)
				return err
			})
			if res == nil {
				return err
			}
			fmt.Fprint(a.out, a.r.Markdown(res.Reply.Content))
			if res.Failed {
				return err
			}
			if res.ThreadID != nil {
				fmt.Fprintln(a.errOut, DimStyle.Render(fmt.Sprintf("thread %d", *res.ThreadID)))
			}
			return nil
		},
	}

	cmd.Flags().Int64SliceVarP(&fileIDs, "file", "f", nil, "attach an uploaded file by id (repeatable)")
	cmd.Flags().Int64Var(&threadID, "thread", 0, "continue an existing thread")
	return cmd
}

func newHealthCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check the backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := g.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			st := a.sess.Health.Check(cmd.Context())
			ind := a.sess.Health.Indicator()
			cfg := a.sess.Config.Get()

			fmt.Fprintf(a.out, "%s %s\n", RenderLabel("Backend"), ValueStyle.Render(cfg.BaseURL()))
			fmt.Fprintf(a.out, "%s %s\n", RenderLabel("Status"), RenderIndicator(ind))
			if !st.IsError() {
				fmt.Fprintf(a.out, "%s %t\n", RenderLabel("Model"), st.ModelLoaded)
			}

			if ind == health.IndicatorOffline {
				return errors.New("backend is offline")
			}
			return nil
		},
	}
}

func newThreadsCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "threads",
		Short: "List conversation threads",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := g.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.sess.Store.RefreshThreads(cmd.Context()); err != nil {
				return errors.Wrap(err, "load threads")
			}
			fmt.Fprint(a.out, a.r.Threads(a.sess.Store.Threads(), nil))
			return nil
		},
	}
}

func newFilesCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "files",
		Short: "List uploaded files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := g.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.sess.Store.RefreshFiles(cmd.Context()); err != nil {
				return errors.Wrap(err, "load files")
			}
			fmt.Fprint(a.out, a.r.Files(a.sess.Store.Files(), nil))
			return nil
		},
	}
}

func newUploadCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "upload <path>...",
		Short: "Upload files for file-augmented chat",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := g.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			for _, path := range args {
				rec, err := a.sess.Files.UploadPath(cmd.Context(), path)
				if err != nil {
					return err
				}
				if rec == nil {
					fmt.Fprintln(a.errOut, WarningStyle.Render("Uploaded "+path+" but the backend returned no id"))
					continue
				}
				fmt.Fprintf(a.out, "%s %s (id %d)\n", SuccessStyle.Render("Uploaded"), rec.Filename, rec.ID)
			}
			return nil
		},
	}
}

func newConfigCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or change settings",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "show",
			Short: "Print the effective configuration",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				cfg, _, err := g.loadConfig(cmd)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), cfg.String())
				return nil
			},
		},
		&cobra.Command{
			Use:   "get <key>",
			Short: "Print one effective setting",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, _, err := g.loadConfig(cmd)
				if err != nil {
					return err
				}
				v, err := cfg.GetValue(args[0])
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), v)
				return nil
			},
		},
		&cobra.Command{
			Use:   "set <key> <value>",
			Short: "Change one setting in the config file",
			Long: "Change one setting in the config file. Keys use dotted TOML names:\n  " +
				strings.Join(config.Keys(), "\n  "),
			Args: cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				path, err := g.path()
				if err != nil {
					return err
				}
				cfg := config.Default()
				if _, err := os.Stat(path); err == nil {
					if cfg, err = config.LoadFile(path); err != nil {
						return err
					}
				}
				if err := cfg.SetValue(args[0], args[1]); err != nil {
					return err
				}
				if err := cfg.Validate(); err != nil {
					return err
				}
				if err := config.Save(cfg, path); err != nil {
					return err
				}
				v, _ := cfg.GetValue(args[0])
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s = %s\n", SuccessStyle.Render("Set"), args[0], v)
				return nil
			},
		},
		&cobra.Command{
			Use:   "path",
			Short: "Print the config file location",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				path, err := g.path()
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), path)
				return nil
			},
		},
	)
	return cmd
}
