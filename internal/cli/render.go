// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/quick"
	"github.com/charmbracelet/glamour"
	glamourstyles "github.com/charmbracelet/glamour/styles"

	"github.com/jeranaias/forgechat/internal/files"
	"github.com/jeranaias/forgechat/internal/model"
	"github.com/jeranaias/forgechat/internal/store"
	"github.com/jeranaias/forgechat/internal/util"
)

// renderer formats session data for one output stream. Markdown and syntax
// highlighting only apply when that stream is a terminal.
type renderer struct {
	out   io.Writer
	width int
	fancy bool

	md *glamour.TermRenderer
}

func newRenderer(out io.Writer) *renderer {
	return &renderer{out: out, width: TerminalWidth(), fancy: isTerminal(out) && ColorsEnabled()}
}

// Markdown renders assistant content. Plain output keeps the raw text.
func (r *renderer) Markdown(content string) string {
	if !r.fancy {
		return strings.TrimRight(content, "\n") + "\n"
	}
	if r.md == nil {
		style := glamourstyles.DarkStyle
		if !DarkBackground() {
			style = glamourstyles.LightStyle
		}
		md, err := glamour.NewTermRenderer(
			glamour.WithStandardStyle(style),
			glamour.WithWordWrap(r.width-4),
		)
		if err != nil {
			return content + "\n"
		}
		r.md = md
	}
	out, err := r.md.Render(content)
	if err != nil {
		return content + "\n"
	}
	return out
}

// Highlight colors content by the lexer matching name, falling back to
// content analysis.
func (r *renderer) Highlight(name, content string) string {
	if !r.fancy {
		return content
	}
	lexer := lexers.Match(name)
	if lexer == nil {
		lexer = lexers.Analyse(content)
	}
	if lexer == nil {
		return content
	}

	var buf strings.Builder
	if err := quick.Highlight(&buf, content, lexer.Config().Name, "terminal256", "monokai"); err != nil {
		return content
	}
	return buf.String()
}

// Preview renders a file preview.
func (r *renderer) Preview(p *files.Preview) string {
	switch p.Kind {
	case files.PreviewBinary:
		return DimStyle.Render(p.Content) + "\n"
	case files.PreviewStructured:
		return r.Highlight(p.Name+".json", p.Content) + "\n"
	default:
		return r.Highlight(p.Name, p.Content) + "\n"
	}
}

// Message renders one chat message with its role header.
func (r *renderer) Message(m model.Message) string {
	header := assistantStyle.Render(m.Role.DisplayName())
	if m.Role == model.RoleUser {
		header = userStyle.Render(m.Role.DisplayName())
	}
	var body string
	switch {
	case m.IsEmpty():
		body = DimStyle.Render("(empty)") + "\n"
	case m.Role == model.RoleAssistant:
		body = r.Markdown(m.Content)
	default:
		body = strings.TrimRight(m.Content, "\n") + "\n"
	}
	return header + "\n" + body
}

// Threads renders the thread list, marking current.
func (r *renderer) Threads(threads []model.Thread, current *int64) string {
	if len(threads) == 0 {
		return DimStyle.Render("No threads yet.") + "\n"
	}
	titleWidth := r.width - 34
	if titleWidth < 10 {
		titleWidth = 10
	}

	var b strings.Builder
	for _, t := range threads {
		marker := "  "
		if current != nil && *current == t.ID {
			marker = AccentStyle.Render("*") + " "
		}
		title := util.PadWidth(util.TruncateWidth(t.DisplayTitle(), titleWidth), titleWidth)
		fmt.Fprintf(&b, "%s%8d  %s  %s\n", marker, t.ID, title, DimStyle.Render(t.CreatedAt.String()))
	}
	return b.String()
}

// Files renders the file list with staged files checked.
func (r *renderer) Files(recs []model.FileRecord, st *store.Store) string {
	if len(recs) == 0 {
		return DimStyle.Render("No files uploaded.") + "\n"
	}
	nameWidth := r.width - 36
	if nameWidth < 10 {
		nameWidth = 10
	}

	var b strings.Builder
	for _, f := range recs {
		box := "[ ]"
		if st != nil && st.IsStaged(f.ID) {
			box = AccentStyle.Render("[x]")
		}
		name := util.PadWidth(util.TruncateWidth(f.Filename, nameWidth), nameWidth)
		fmt.Fprintf(&b, "%s %8d  %s  %s\n", box, f.ID, name, DimStyle.Render(f.CreatedAt.String()))
	}
	return b.String()
}
