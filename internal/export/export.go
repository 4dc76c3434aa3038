// ABOUTME: Conversation export to Markdown and standalone HTML
// ABOUTME: HTML uses html/template with role indicators and collapsible tool results

package export

import (
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"strings"
	"time"

	"github.com/mauromedda/nanobot-go/internal/chat"
	"github.com/mauromedda/nanobot-go/internal/content"
)

// Format selects the export output.
type Format string

const (
	FormatMarkdown Format = "markdown"
	FormatHTML     Format = "html"
)

// ParseFormat accepts "md", "markdown", or "html".
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "md", "markdown":
		return FormatMarkdown, nil
	case "html":
		return FormatHTML, nil
	}
	return "", fmt.Errorf("unknown export format %q (want markdown or html)", s)
}

// Write renders the conversation in format f.
func Write(w io.Writer, f Format, title string, msgs []chat.Message) error {
	if f == FormatHTML {
		return HTML(w, title, msgs)
	}
	return Markdown(w, title, msgs)
}

// Markdown writes the conversation as a Markdown document. Tool calls and
// results become fenced JSON blocks.
func Markdown(w io.Writer, title string, msgs []chat.Message) error {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", title)
	for _, m := range msgs {
		fmt.Fprintf(&b, "## %s", roleLabel(m))
		if !m.Timestamp.IsZero() {
			fmt.Fprintf(&b, " (%s)", m.Timestamp.UTC().Format(time.RFC3339))
		}
		b.WriteString("\n\n")
		for _, blk := range m.Content {
			switch v := blk.(type) {
			case content.Text:
				b.WriteString(v.Text)
				b.WriteString("\n\n")
			case content.ToolCall:
				fmt.Fprintf(&b, "Tool call `%s`:\n\n```json\n%s\n```\n\n", v.Name, jsonString(v.Input))
			case content.ToolResult:
				fmt.Fprintf(&b, "Tool result `%s`:\n\n```json\n%s\n```\n\n", v.Name, jsonString(v.Output))
			case content.Image:
				fmt.Fprintf(&b, "_[image %s]_\n\n", v.MimeType)
			case content.Resource:
				fmt.Fprintf(&b, "_[resource %s]_\n\n", v.URI)
			}
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// HTML writes the conversation as a self-contained dark-themed page.
func HTML(w io.Writer, title string, msgs []chat.Message) error {
	page := htmlPage{Title: title}
	for _, m := range msgs {
		pm := htmlMessage{Class: roleClass(m), Role: roleLabel(m)}
		if !m.Timestamp.IsZero() {
			pm.Time = m.Timestamp.UTC().Format(time.RFC3339)
		}
		for _, blk := range m.Content {
			pm.Blocks = append(pm.Blocks, viewBlock(blk))
		}
		page.Messages = append(page.Messages, pm)
	}
	return htmlTmpl.Execute(w, page)
}

type htmlPage struct {
	Title    string
	Messages []htmlMessage
}

type htmlMessage struct {
	Class  string
	Role   string
	Time   string
	Blocks []htmlBlock
}

type htmlBlock struct {
	Kind    string
	Text    string
	Name    string
	IsError bool
}

func viewBlock(blk content.Block) htmlBlock {
	switch v := blk.(type) {
	case content.Text:
		return htmlBlock{Kind: string(v.Kind()), Text: v.Text}
	case content.ToolCall:
		return htmlBlock{Kind: string(v.Kind()), Name: v.Name, Text: jsonString(v.Input)}
	case content.ToolResult:
		return htmlBlock{Kind: string(v.Kind()), Name: v.Name, Text: jsonString(v.Output), IsError: v.IsError}
	case content.Image:
		return htmlBlock{Kind: string(v.Kind()), Text: "[image " + v.MimeType + "]"}
	case content.Resource:
		return htmlBlock{Kind: string(v.Kind()), Text: "[resource " + v.URI + "]"}
	}
	return htmlBlock{Kind: string(blk.Kind())}
}

func roleLabel(m chat.Message) string {
	if m.Role == chat.RoleUser {
		return "User"
	}
	return "Assistant"
}

func roleClass(m chat.Message) string {
	switch {
	case m.Status == chat.StatusError:
		return "error"
	case m.Role == chat.RoleUser:
		return "user"
	default:
		return "assistant"
	}
}

func jsonString(v any) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}

// escapeNewlines converts newlines to <br> for HTML rendering.
func escapeNewlines(s string) template.HTML {
	escaped := template.HTMLEscapeString(s)
	return template.HTML(strings.ReplaceAll(escaped, "\n", "<br>\n"))
}

var htmlTmpl = template.Must(template.New("conversation").Funcs(template.FuncMap{
	"escapeNewlines": escapeNewlines,
}).Parse(htmlTemplate))

const htmlTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<title>{{ .Title }}</title>
<style>
  * { margin: 0; padding: 0; box-sizing: border-box; }
  body {
    background: #1e1e2e;
    color: #cdd6f4;
    font-family: 'SF Mono', 'Cascadia Code', 'Fira Code', monospace;
    font-size: 14px;
    line-height: 1.6;
    padding: 24px;
    max-width: 900px;
    margin: 0 auto;
  }
  .message {
    margin-bottom: 16px;
    padding: 12px 16px;
    border-radius: 8px;
    border-left: 4px solid;
  }
  .message.user {
    border-left-color: #89b4fa;
    background: #1e1e2e;
  }
  .message.assistant {
    border-left-color: #a6e3a1;
    background: #1e1e2e;
  }
  .message.error {
    border-left-color: #f38ba8;
    background: #1e1e2e;
  }
  .role-badge {
    display: inline-block;
    font-size: 11px;
    font-weight: 600;
    text-transform: uppercase;
    letter-spacing: 0.5px;
    padding: 2px 8px;
    border-radius: 4px;
    margin-bottom: 8px;
  }
  .user .role-badge { background: #89b4fa22; color: #89b4fa; }
  .assistant .role-badge { background: #a6e3a122; color: #a6e3a1; }
  .error .role-badge { background: #f38ba822; color: #f38ba8; }
  .timestamp { color: #6c7086; font-size: 11px; margin-left: 8px; }
  .content-block { margin-top: 8px; }
  .tool-use {
    background: #313244;
    padding: 8px 12px;
    border-radius: 6px;
    margin-top: 8px;
  }
  .tool-name {
    color: #cba6f7;
    font-weight: 600;
  }
  .tool-input {
    color: #a6adc8;
    font-size: 12px;
    white-space: pre-wrap;
    word-break: break-all;
    margin-top: 4px;
  }
  details {
    background: #313244;
    padding: 8px 12px;
    border-radius: 6px;
    margin-top: 8px;
  }
  details summary {
    cursor: pointer;
    color: #9399b2;
    font-size: 12px;
    font-weight: 600;
  }
  details .result-content {
    margin-top: 8px;
    color: #a6adc8;
    font-size: 12px;
    white-space: pre-wrap;
    word-break: break-all;
  }
  .error-result summary { color: #f38ba8; }
  .error-result .result-content { color: #f38ba8; }
</style>
</head>
<body>
{{- range .Messages }}
<div class="message {{ .Class }}">
  <span class="role-badge">{{ .Role }}</span>{{ if .Time }}<span class="timestamp">{{ .Time }}</span>{{ end }}
  {{- range .Blocks }}
    {{- if eq .Kind "text" }}
  <div class="content-block">{{ escapeNewlines .Text }}</div>
    {{- else if eq .Kind "tool_use" }}
  <div class="tool-use">
    <span class="tool-name">{{ .Name }}</span>
    <div class="tool-input">{{ .Text }}</div>
  </div>
    {{- else if eq .Kind "tool_result" }}
  <details{{ if .IsError }} class="error-result"{{ end }}>
    <summary>{{ .Name }} result{{ if .IsError }} (error){{ end }}</summary>
    <div class="result-content">{{ .Text }}</div>
  </details>
    {{- else }}
  <div class="content-block">{{ .Text }}</div>
    {{- end }}
  {{- end }}
</div>
{{- end }}
</body>
</html>
`
