// ABOUTME: Conversation catalog entries and title derivation
// ABOUTME: Titles are the first 30 grapheme clusters of the first message, "..." when cut

package chat

import (
	"strings"
	"time"

	"github.com/rivo/uniseg"

	"github.com/mauromedda/nanobot-go/internal/mcp"
)

// DefaultTitle marks a conversation that has not been renamed yet.
const DefaultTitle = "New Chat"

const (
	titleLength = 30
	ellipsis    = "..."
)

// Thread is one conversation of the catalog.
type Thread struct {
	ID        string
	Title     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// DeriveTitle shortens text to a conversation title. Length is counted in
// grapheme clusters, so a title never ends in half an emoji.
func DeriveTitle(text string) string {
	var b strings.Builder
	rest := text
	state := -1
	for n := 0; rest != ""; n++ {
		if n == titleLength {
			return b.String() + ellipsis
		}
		var cluster string
		cluster, rest, _, state = uniseg.FirstGraphemeClusterInString(rest, state)
		b.WriteString(cluster)
	}
	return b.String()
}

func threadFromSummary(s mcp.ThreadSummary) Thread {
	title := s.Title
	if title == "" {
		title = DefaultTitle
	}
	at := time.UnixMilli(s.UpdatedAt)
	return Thread{
		ID:        s.ID,
		Title:     title,
		CreatedAt: at,
		UpdatedAt: at,
	}
}
