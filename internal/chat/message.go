// ABOUTME: Message model of a conversation: role, ordered content blocks, timestamp, status
// ABOUTME: Converts stored thread history into displayable messages

package chat

import (
	"fmt"
	"slices"
	"time"

	"github.com/mauromedda/nanobot-go/internal/content"
	"github.com/mauromedda/nanobot-go/internal/log"
	"github.com/mauromedda/nanobot-go/internal/mcp"
)

// Role identifies who authored a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Status is the delivery state of a message.
type Status string

const (
	StatusSending   Status = "sending"
	StatusStreaming Status = "streaming"
	StatusSent      Status = "sent"
	StatusError     Status = "error"
)

// Message is one entry of the visible conversation.
type Message struct {
	ID        string
	Role      Role
	Content   content.List
	Timestamp time.Time
	Status    Status
}

// Text returns the concatenated text blocks of the message.
func (m Message) Text() string {
	return content.PlainText(m.Content)
}

func (m Message) clone() Message {
	m.Content = slices.Clone(m.Content)
	return m
}

// historyMessages converts stored messages of threadID. Ids are
// "<threadID>-<index>" and timestamps are spaced one second apart, ending
// one second before now.
func historyMessages(threadID string, raw []mcp.ThreadMessage, now time.Time) []Message {
	out := make([]Message, 0, len(raw))
	n := len(raw)
	for i, m := range raw {
		blocks, err := content.DecodeList(m.Content)
		if err != nil {
			log.Debug("thread %s message %d: %v", threadID, i, err)
		}
		role := Role(m.Role)
		if role != RoleUser {
			role = RoleAssistant
		}
		out = append(out, Message{
			ID:        fmt.Sprintf("%s-%d", threadID, i),
			Role:      role,
			Content:   blocks,
			Timestamp: now.Add(-time.Duration(n-i) * time.Second),
			Status:    StatusSent,
		})
	}
	return out
}
