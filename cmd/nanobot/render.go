// ABOUTME: Terminal rendering for the CLI: styled labels, markdown replies, aligned tables
// ABOUTME: Falls back to plain text when stdout is not a terminal or --plain is set

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
	"golang.org/x/term"

	"github.com/mauromedda/nanobot-go/internal/chat"
	"github.com/mauromedda/nanobot-go/internal/content"
	"github.com/mauromedda/nanobot-go/internal/log"
)

const defaultWidth = 80

var (
	userStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("4"))
	assistantStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("5"))
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	dimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	headerStyle    = lipgloss.NewStyle().Bold(true).Underline(true)
)

type renderer struct {
	out   io.Writer
	rich  bool
	width int
	md    *glamour.TermRenderer
}

// newRenderer writes to out. Rich output needs out to be a terminal.
func newRenderer(out io.Writer, plain bool) *renderer {
	r := &renderer{out: out, width: defaultWidth}
	if f, ok := out.(*os.File); ok && !plain && term.IsTerminal(int(f.Fd())) {
		r.rich = true
		if w, _, err := term.GetSize(int(f.Fd())); err == nil && w > 0 {
			r.width = w
		}
	}
	return r
}

func (r *renderer) style(s lipgloss.Style, text string) string {
	if !r.rich {
		return text
	}
	return s.Render(text)
}

func (r *renderer) printf(format string, args ...any) {
	fmt.Fprintf(r.out, format, args...)
}

// markdown renders md for the terminal, or returns it unchanged in plain mode.
func (r *renderer) markdown(md string) string {
	if !r.rich || md == "" {
		return md
	}
	if r.md == nil {
		tr, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(r.width),
		)
		if err != nil {
			log.Debug("markdown renderer: %v", err)
			return md
		}
		r.md = tr
	}
	out, err := r.md.Render(md)
	if err != nil {
		return md
	}
	return strings.Trim(out, "\n")
}

func (r *renderer) label(role chat.Role) string {
	if role == chat.RoleUser {
		return r.style(userStyle, "you")
	}
	return r.style(assistantStyle, "assistant")
}

// message prints one chat message with its role label.
func (r *renderer) message(m chat.Message) {
	r.printf("%s\n", r.label(m.Role))
	body := r.blocks(m.Content)
	if m.Status == chat.StatusError {
		body = r.style(errorStyle, body)
	}
	r.printf("%s\n\n", body)
}

// blocks renders content blocks: text as markdown, everything else as a
// one-line summary.
func (r *renderer) blocks(blocks content.List) string {
	var parts []string
	var text strings.Builder
	flush := func() {
		if text.Len() > 0 {
			parts = append(parts, r.markdown(text.String()))
			text.Reset()
		}
	}
	for _, b := range blocks {
		if t, ok := b.(content.Text); ok {
			text.WriteString(t.Text)
			continue
		}
		flush()
		parts = append(parts, r.style(dimStyle, summarize(b, r.width)))
	}
	flush()
	return strings.Join(parts, "\n")
}

func summarize(b content.Block, width int) string {
	var s string
	switch v := b.(type) {
	case content.Image:
		s = fmt.Sprintf("[image %s, %d bytes base64]", v.MimeType, len(v.Data))
	case content.ToolCall:
		in, _ := json.Marshal(v.Input)
		s = fmt.Sprintf("> %s %s", v.Name, in)
	case content.ToolResult:
		out, _ := json.Marshal(v.Output)
		prefix := "<"
		if v.IsError {
			prefix = "< error"
		}
		s = fmt.Sprintf("%s %s: %s", prefix, v.Name, out)
	case content.Resource:
		s = fmt.Sprintf("[resource %s]", v.URI)
	default:
		s = fmt.Sprintf("[%s]", b.Kind())
	}
	return truncate(s, width)
}

// truncate cuts s to width terminal cells, marking the cut.
func truncate(s string, width int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if width <= 0 || runewidth.StringWidth(s) <= width {
		return s
	}
	return runewidth.Truncate(s, width, "…")
}

// table prints rows with columns padded to their display width. The last
// column is truncated to fit the terminal.
func (r *renderer) table(header []string, rows [][]string) {
	if len(rows) == 0 {
		return
	}
	widths := make([]int, len(header))
	for i, h := range header {
		widths[i] = runewidth.StringWidth(h)
	}
	for _, row := range rows {
		for i := 0; i < len(row) && i < len(widths)-1; i++ {
			widths[i] = max(widths[i], runewidth.StringWidth(row[i]))
		}
	}

	line := func(cells []string, style *lipgloss.Style) {
		var b strings.Builder
		used := 0
		for i, c := range cells {
			if i < len(cells)-1 {
				cell := runewidth.FillRight(c, widths[i])
				b.WriteString(cell + "  ")
				used += widths[i] + 2
				continue
			}
			b.WriteString(truncate(c, r.width-used))
		}
		out := b.String()
		if style != nil {
			out = r.style(*style, out)
		}
		r.printf("%s\n", strings.TrimRight(out, " "))
	}

	line(header, &headerStyle)
	for _, row := range rows {
		line(row, nil)
	}
}
