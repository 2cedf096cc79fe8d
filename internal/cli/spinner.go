// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/forgechat/internal/health"
)

// workDoneMsg tells the wait model the background call returned.
type workDoneMsg struct{}

// waitModel is a one-line "Thinking" spinner shown while a send is in
// flight. It quits as soon as the work finishes and leaves nothing behind.
type waitModel struct {
	spinner   spinner.Model
	label     string
	indicator func() health.Indicator
	start     time.Time
	done      <-chan struct{}
	finished  bool
}

func newWaitModel(label string, indicator func() health.Indicator, done <-chan struct{}) waitModel {
	s := spinner.New()
	s.Spinner = spinner.Spinner{
		Frames: []string{"|", "/", "-", "\\"},
		FPS:    time.Second / 10,
	}
	s.Style = AccentStyle
	return waitModel{
		spinner:   s,
		label:     label,
		indicator: indicator,
		start:     time.Now(),
		done:      done,
	}
}

func (m waitModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.wait)
}

func (m waitModel) wait() tea.Msg {
	<-m.done
	return workDoneMsg{}
}

func (m waitModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case workDoneMsg:
		m.finished = true
		return m, tea.Quit
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			return m, tea.Quit
		}
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m waitModel) View() string {
	if m.finished {
		return ""
	}
	line := fmt.Sprintf("%s %s... %s", m.spinner.View(), m.label, DimStyle.Render(time.Since(m.start).Truncate(time.Second).String()))
	if m.indicator != nil {
		line += " " + RenderIndicator(m.indicator())
	}
	return line
}

// withSpinner runs work, animating a spinner on out while it runs. When out
// is not a terminal the work runs plainly.
func withSpinner(ctx context.Context, out io.Writer, label string, indicator func() health.Indicator, work func(context.Context) error) error {
	if !isTerminal(out) {
		return work(ctx)
	}

	done := make(chan struct{})
	var err error
	go func() {
		defer close(done)
		err = work(ctx)
	}()

	p := tea.NewProgram(newWaitModel(label, indicator, done),
		tea.WithOutput(out),
		tea.WithInput(nil),
		tea.WithContext(ctx),
	)
	// The spinner is cosmetic; a failed or killed program still waits for work.
	_, _ = p.Run()
	<-done
	return err
}
