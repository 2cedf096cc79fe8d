// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/peterh/liner"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/jeranaias/forgechat/internal/chat"
	"github.com/jeranaias/forgechat/internal/config"
	"github.com/jeranaias/forgechat/internal/session"
	"github.com/jeranaias/forgechat/internal/util"
)

// errQuit ends the REPL.
var errQuit = errors.New("quit")

// statusPreviewLen caps the last-message preview in /status.
const statusPreviewLen = 60

var slashCommands = []struct {
	name string
	args string
	desc string
}{
	{"/threads", "", "List threads"},
	{"/new", "[title]", "Start a new thread"},
	{"/open", "<id>", "Switch to a thread"},
	{"/files", "", "List files ([x] = attached to the next message)"},
	{"/upload", "<path>", "Upload a file"},
	{"/rm", "<id>", "Delete a file"},
	{"/attach", "<id>", "Attach a file to the next message"},
	{"/detach", "<id>", "Detach a file"},
	{"/preview", "<id>", "Show a file's content"},
	{"/status", "", "Show connection status"},
	{"/demo", "on|off", "Switch demo mode"},
	{"/config", "", "Show the active configuration"},
	{"/help", "", "Show this help"},
	{"/quit", "", "Exit"},
}

func newChatCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runChat(cmd, g)
		},
	}
}

func runChat(cmd *cobra.Command, g *globalFlags) error {
	a, err := g.open(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	if err := a.sess.WatchConfig(); err != nil {
		fmt.Fprintln(a.errOut, DimStyle.Render("Live config reload unavailable: "+err.Error()))
	}
	a.sess.Initialize(ctx)

	repl := newRepl(a.sess, a.out)
	return repl.Run(ctx)
}

// Repl is the interactive chat loop.
type Repl struct {
	sess *session.Session
	out  io.Writer
	r    *renderer
}

func newRepl(sess *session.Session, out io.Writer) *Repl {
	return &Repl{sess: sess, out: out, r: newRenderer(out)}
}

// Run reads lines until /quit, EOF or cancellation.
func (c *Repl) Run(ctx context.Context) error {
	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)
	line.SetCompleter(completeSlash)

	// Piped input gets no banner and leaves the history alone.
	if IsTTY() {
		history := historyPath()
		if f, err := os.Open(history); err == nil {
			_, _ = line.ReadHistory(f)
			f.Close()
		}
		defer saveHistory(line, history)
		c.printWelcome()
	}
	for {
		input, err := line.Prompt(c.prompt())
		if err != nil {
			// Ctrl+C at the prompt or EOF.
			fmt.Fprintln(c.out)
			return nil
		}
		if strings.TrimSpace(input) != "" {
			line.AppendHistory(input)
		}

		if err := c.Handle(ctx, input); err != nil {
			if err == errQuit {
				return nil
			}
			fmt.Fprintf(c.out, "%s %v\n", ErrorStyle.Render("[Error]"), err)
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

func (c *Repl) prompt() string {
	// liner measures the prompt itself, so it stays unstyled.
	p := "forgechat"
	if badge := c.sess.Mode.Badge(); badge != "" {
		p += " " + badge
	}
	if n := len(c.sess.Store.StagedFiles()); n > 0 {
		p += fmt.Sprintf(" +%d", n)
	}
	return p + "> "
}

// Handle processes one line of input: a slash command or a message.
// It returns errQuit when the session should end.
func (c *Repl) Handle(ctx context.Context, input string) error {
	input = strings.TrimSpace(input)
	if strings.HasPrefix(input, "/") {
		return c.command(ctx, input)
	}
	if input == "" && len(c.sess.Store.StagedFiles()) == 0 {
		return nil
	}
	return c.send(ctx, input)
}

func (c *Repl) send(ctx context.Context, input string) error {
	var res *chat.Result
	err := withSpinner(ctx, c.out, "Thinking", c.sess.Health.Indicator, func(ctx context.Context) error {
		var err error
		res, err = c.sess.Chat.Send(ctx, input)
		return err
	})
	switch {
	case errors.Is(err, chat.ErrNothingToSend):
		return nil
	case res == nil:
		return err
	}

	fmt.Fprintln(c.out)
	fmt.Fprint(c.out, c.r.Message(res.Reply))
	if res.NewThread && res.Thread != nil {
		fmt.Fprintln(c.out, DimStyle.Render(fmt.Sprintf("Started thread %d: %s", res.Thread.ID, res.Thread.DisplayTitle())))
	}
	fmt.Fprintln(c.out)
	// The inline error is already shown.
	return nil
}

func (c *Repl) command(ctx context.Context, input string) error {
	fields := strings.Fields(input)
	name, args := strings.ToLower(fields[0]), fields[1:]
	st := c.sess.Store

	switch name {
	case "/threads":
		if err := st.RefreshThreads(ctx); err != nil {
			return errors.Wrap(err, "load threads")
		}
		fmt.Fprint(c.out, c.r.Threads(st.Threads(), st.CurrentID()))

	case "/new":
		title := strings.TrimSpace(strings.TrimPrefix(input, fields[0]))
		t, err := st.CreateThread(ctx, title)
		if err != nil {
			return errors.Wrap(err, "create thread")
		}
		fmt.Fprintln(c.out, SuccessStyle.Render("Started")+" "+fmt.Sprintf("thread %d: %s", t.ID, t.DisplayTitle()))

	case "/open":
		id, err := idArg(args)
		if err != nil {
			return err
		}
		if err := st.SelectThread(ctx, id); err != nil {
			return errors.Wrapf(err, "open thread %d", id)
		}
		c.printView()

	case "/files":
		if err := st.RefreshFiles(ctx); err != nil {
			return errors.Wrap(err, "load files")
		}
		fmt.Fprint(c.out, c.r.Files(st.Files(), st))

	case "/upload":
		if len(args) == 0 {
			return errors.New("usage: /upload <path>")
		}
		path := strings.TrimSpace(strings.TrimPrefix(input, fields[0]))
		rec, err := c.sess.Files.UploadPath(ctx, path)
		if err != nil {
			return err
		}
		if rec == nil {
			fmt.Fprintln(c.out, WarningStyle.Render("Uploaded, but the backend returned no id."))
			return nil
		}
		fmt.Fprintf(c.out, "%s %s (id %d)\n", SuccessStyle.Render("Uploaded"), rec.Filename, rec.ID)

	case "/rm":
		id, err := idArg(args)
		if err != nil {
			return err
		}
		if err := c.sess.Files.Delete(ctx, id); err != nil {
			return err
		}
		fmt.Fprintf(c.out, "%s file %d\n", SuccessStyle.Render("Deleted"), id)

	case "/attach":
		id, err := idArg(args)
		if err != nil {
			return err
		}
		if err := st.Stage(id); err != nil {
			return errors.Wrapf(err, "attach file %d", id)
		}
		fmt.Fprintf(c.out, "Attached file %d to the next message.\n", id)

	case "/detach":
		id, err := idArg(args)
		if err != nil {
			return err
		}
		st.Unstage(id)
		fmt.Fprintf(c.out, "Detached file %d.\n", id)

	case "/preview":
		id, err := idArg(args)
		if err != nil {
			return err
		}
		p, err := c.sess.Files.Preview(ctx, id)
		if err != nil {
			return err
		}
		fmt.Fprintln(c.out, TitleStyle.Render(p.Name))
		fmt.Fprint(c.out, c.r.Preview(p))

	case "/status":
		c.printStatus()

	case "/demo":
		if len(args) != 1 || (args[0] != "on" && args[0] != "off") {
			return errors.New("usage: /demo on|off")
		}
		if err := c.sess.SetDemoMode(args[0] == "on"); err != nil {
			return err
		}
		c.printStatus()

	case "/config":
		fmt.Fprintln(c.out, c.sess.Config.Get().String())

	case "/help", "/?":
		c.printHelp()

	case "/quit", "/q", "/exit":
		return errQuit

	default:
		return errors.Errorf("unknown command: %s (type /help for commands)", name)
	}
	return nil
}

func idArg(args []string) (int64, error) {
	if len(args) != 1 {
		return 0, errors.New("expected one id")
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return 0, errors.Errorf("invalid id %q", args[0])
	}
	return id, nil
}

func (c *Repl) printView() {
	t, ok := c.sess.Store.Current()
	if ok {
		fmt.Fprintln(c.out, TitleStyle.Render(t.DisplayTitle()))
	}
	view := c.sess.Store.View()
	if len(view) == 0 {
		fmt.Fprintln(c.out, DimStyle.Render("No messages yet."))
		return
	}
	for _, m := range view {
		fmt.Fprint(c.out, c.r.Message(m))
		fmt.Fprintln(c.out)
	}
}

func (c *Repl) printStatus() {
	cfg := c.sess.Config.Get()
	fmt.Fprintf(c.out, "%s %s\n", RenderLabel("Status"), RenderIndicator(c.sess.Health.Indicator()))
	fmt.Fprintf(c.out, "%s %s\n", RenderLabel("Backend"), cfg.BaseURL())
	if t, ok := c.sess.Store.Current(); ok {
		fmt.Fprintf(c.out, "%s %d %s\n", RenderLabel("Thread"), t.ID, t.DisplayTitle())
	} else {
		fmt.Fprintf(c.out, "%s %s\n", RenderLabel("Thread"), DimStyle.Render("none (next message starts one)"))
	}
	fmt.Fprintf(c.out, "%s %v\n", RenderLabel("Attached"), c.sess.Store.StagedFiles())
	if view := c.sess.Store.View(); len(view) > 0 {
		last := view[len(view)-1]
		fmt.Fprintf(c.out, "%s %s: %s\n", RenderLabel("Last"), last.Role.DisplayName(), DimStyle.Render(last.Preview(statusPreviewLen)))
	}
	polling := DimStyle.Render("suspended")
	if c.sess.Health.Running() {
		polling = "every " + cfg.Health.Interval.D().String()
	}
	fmt.Fprintf(c.out, "%s %s\n", RenderLabel("Health poll"), polling)
}

func (c *Repl) printWelcome() {
	fmt.Fprintln(c.out, TitleStyle.Render("forgechat"))
	fmt.Fprintln(c.out, RenderSeparator(30))
	c.printStatus()
	fmt.Fprintln(c.out, DimStyle.Render("Type a message and press Enter. /help lists commands."))
	fmt.Fprintln(c.out)
}

func (c *Repl) printHelp() {
	fmt.Fprintln(c.out, TitleStyle.Render("Commands"))
	width := 0
	for _, sc := range slashCommands {
		width = max(width, util.StringWidth(sc.name+" "+sc.args))
	}
	for _, sc := range slashCommands {
		usage := strings.TrimSpace(sc.name + " " + sc.args)
		fmt.Fprintf(c.out, "  %s %s\n", util.PadWidth(usage, width), DimStyle.Render(sc.desc))
	}
}

func completeSlash(line string) []string {
	if !strings.HasPrefix(line, "/") || strings.Contains(line, " ") {
		return nil
	}
	var out []string
	for _, sc := range slashCommands {
		if strings.HasPrefix(sc.name, line) {
			out = append(out, sc.name)
		}
	}
	return out
}

func historyPath() string {
	dir, err := config.ConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "history")
}

func saveHistory(line *liner.State, path string) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return
	}
	defer f.Close()
	_, _ = line.WriteHistory(f)
}
