// ABOUTME: Tests for title derivation, history conversion, and thread search
// ABOUTME: Grapheme-aware truncation and NFC-normalized fuzzy matching

package chat

import (
	"strings"
	"testing"
	"time"

	"github.com/mauromedda/nanobot-go/internal/content"
	"github.com/mauromedda/nanobot-go/internal/mcp"
)

func TestDeriveTitle(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"short", "hello", "hello"},
		{"exactly thirty", strings.Repeat("x", 30), strings.Repeat("x", 30)},
		{"thirty one", strings.Repeat("x", 31), strings.Repeat("x", 30) + "..."},
		{"empty", "", ""},
		{"emoji clusters", strings.Repeat("👍🏽", 31), strings.Repeat("👍🏽", 30) + "..."},
		{"multibyte", strings.Repeat("é", 32), strings.Repeat("é", 30) + "..."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := DeriveTitle(tt.in); got != tt.want {
				t.Errorf("DeriveTitle = %q; want %q", got, tt.want)
			}
		})
	}
}

func TestHistoryMessages(t *testing.T) {
	t.Parallel()

	now := time.Unix(1000, 0)
	raw := []mcp.ThreadMessage{
		{Role: "user", Content: "plain"},
		{Role: "assistant", Content: []any{
			map[string]any{"type": "tool_result", "name": "calc", "content": "4"},
		}},
		{Role: "system", Content: 7.0},
		{Role: "assistant", Content: []any{
			map[string]any{"type": "text", "text": "before "},
			map[string]any{"type": "thinking", "text": "hidden"},
			map[string]any{"type": "text", "text": "after"},
		}},
	}

	msgs := historyMessages("t", raw, now)
	if len(msgs) != 4 {
		t.Fatalf("messages = %+v", msgs)
	}
	if msgs[0].Text() != "plain" || msgs[0].Role != RoleUser {
		t.Errorf("msg 0 = %+v", msgs[0])
	}
	res, ok := msgs[1].Content[0].(content.ToolResult)
	if !ok || res.Name != "calc" || res.Output != "4" {
		t.Errorf("msg 1 block = %+v", msgs[1].Content[0])
	}
	if msgs[2].Role != RoleAssistant || msgs[2].Text() != "7" {
		t.Errorf("msg 2 = %+v", msgs[2])
	}
	if len(msgs[3].Content) != 2 || msgs[3].Text() != "before after" {
		t.Errorf("msg 3 lost blocks around an unknown kind: %+v", msgs[3].Content)
	}
	for _, m := range msgs {
		if m.Status != StatusSent {
			t.Errorf("status = %q", m.Status)
		}
	}
}

func TestSearchThreads(t *testing.T) {
	t.Parallel()

	s := NewStore(nil)
	s.threads = []Thread{
		{ID: "1", Title: "Grocery list"},
		{ID: "2", Title: "Café recommendations"},
		{ID: "3", Title: "Trip planning"},
	}

	if got := s.SearchThreads(""); len(got) != 3 {
		t.Errorf("empty query = %d results", len(got))
	}

	got := s.SearchThreads("grcry")
	if len(got) != 1 || got[0].ID != "1" {
		t.Errorf("grcry = %+v", got)
	}

	got = s.SearchThreads("cafe\u0301")
	if len(got) != 1 || got[0].ID != "2" {
		t.Errorf("decomposed café = %+v", got)
	}

	if got := s.SearchThreads("zzz"); len(got) != 0 {
		t.Errorf("zzz = %+v", got)
	}
}
