// ABOUTME: Conversation state machine: connection, thread catalog, messages, agents, streaming sends
// ABOUTME: Applies stream events to the trailing assistant message and publishes changes on a bus

package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mauromedda/nanobot-go/internal/content"
	"github.com/mauromedda/nanobot-go/internal/eventbus"
	"github.com/mauromedda/nanobot-go/internal/log"
	"github.com/mauromedda/nanobot-go/internal/mcp"
)

// ErrSendInProgress is returned by SendMessage while a reply is still streaming.
var ErrSendInProgress = errors.New("chat: a message is already being sent")

// Backend is the protocol surface the store drives. *mcp.Client satisfies it.
type Backend interface {
	Connect(ctx context.Context) (*mcp.InitializeResult, error)
	Disconnect() error
	ListAgents(ctx context.Context) []mcp.Agent
	ListThreads(ctx context.Context) []mcp.ThreadSummary
	GetThreadMessages(ctx context.Context, threadID string) []mcp.ThreadMessage
	DeleteThread(ctx context.Context, threadID string) error
	SendMessage(ctx context.Context, prompt, threadID, agentID string, attachments []mcp.Attachment) (*mcp.CallToolResult, error)
	Subscribe(ctx context.Context, threadID string) (*mcp.Subscription, error)
}

// ConnState is the connection status shown to the user.
type ConnState int

const (
	Disconnected ConnState = iota
	Connecting
	Connected
	Failed
)

func (c ConnState) String() string {
	switch c {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Failed:
		return "failed"
	default:
		return "disconnected"
	}
}

// ChangeKind names the part of the state that changed.
type ChangeKind int

const (
	ChangeConnection ChangeKind = iota
	ChangeThreads
	ChangeMessages
	ChangeAgents
	ChangeSending
)

// Change is published after every state mutation.
type Change struct {
	Kind     ChangeKind
	ThreadID string
}

// Option configures a Store.
type Option func(*Store)

// WithIDGenerator replaces the uuid generator for thread and message ids.
func WithIDGenerator(fn func() string) Option {
	return func(s *Store) { s.newID = fn }
}

// WithClock replaces time.Now.
func WithClock(fn func() time.Time) Option {
	return func(s *Store) { s.now = fn }
}

// WithDefaultAgent prefers the agent with this id or name when agents load.
func WithDefaultAgent(idOrName string) Option {
	return func(s *Store) { s.defaultAgent = idOrName }
}

// activeStream is the subscription owned by the in-flight send.
type activeStream struct {
	threadID  string
	messageID string
	sub       *mcp.Subscription
}

// Store holds the conversation state of one client. All methods are safe
// for concurrent use; observers learn about mutations through Changes.
type Store struct {
	backend      Backend
	newID        func() string
	now          func() time.Time
	defaultAgent string
	changes      *eventbus.Bus[Change]

	mu            sync.Mutex
	conn          ConnState
	connErr       string
	threads       []Thread
	currentThread string
	messages      []Message
	agents        []mcp.Agent
	currentAgent  string
	loading       bool
	sending       bool
	stream        *activeStream
}

// NewStore creates a store driving backend.
func NewStore(backend Backend, opts ...Option) *Store {
	s := &Store{
		backend: backend,
		newID:   uuid.NewString,
		now:     time.Now,
		changes: eventbus.New[Change](),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Changes returns the bus the store publishes on. Handlers run on the
// goroutine that made the change and must not block.
func (s *Store) Changes() *eventbus.Bus[Change] { return s.changes }

func (s *Store) publish(kind ChangeKind, threadID string) {
	s.changes.Publish(Change{Kind: kind, ThreadID: threadID})
}

// Connect performs the handshake and then loads agents and threads.
func (s *Store) Connect(ctx context.Context) error {
	s.mu.Lock()
	s.conn = Connecting
	s.connErr = ""
	s.mu.Unlock()
	s.publish(ChangeConnection, "")

	if _, err := s.backend.Connect(ctx); err != nil {
		s.mu.Lock()
		s.conn = Failed
		s.connErr = err.Error()
		s.mu.Unlock()
		s.publish(ChangeConnection, "")
		return fmt.Errorf("connecting: %w", err)
	}

	s.mu.Lock()
	s.conn = Connected
	s.mu.Unlock()
	s.publish(ChangeConnection, "")

	s.LoadAgents(ctx)
	s.LoadThreads(ctx)
	return nil
}

// Disconnect stops any stream, forgets the session, and clears the catalog.
func (s *Store) Disconnect() {
	if err := s.backend.Disconnect(); err != nil {
		log.Warn("disconnecting: %v", err)
	}

	s.mu.Lock()
	s.stopStreamLocked()
	s.conn = Disconnected
	s.connErr = ""
	s.threads = nil
	s.messages = nil
	s.currentThread = ""
	s.mu.Unlock()
	s.publish(ChangeConnection, "")
}

// LoadThreads replaces the catalog with the server's thread list.
func (s *Store) LoadThreads(ctx context.Context) {
	s.setLoading(true)
	summaries := s.backend.ListThreads(ctx)

	threads := make([]Thread, 0, len(summaries))
	for _, sum := range summaries {
		threads = append(threads, threadFromSummary(sum))
	}

	s.mu.Lock()
	s.threads = threads
	s.loading = false
	s.mu.Unlock()
	s.publish(ChangeThreads, "")
}

// SelectThread makes threadID current and loads its history. A reply still
// streaming into the previous conversation is cancelled.
func (s *Store) SelectThread(ctx context.Context, threadID string) {
	s.mu.Lock()
	s.stopStreamLocked()
	s.currentThread = threadID
	s.messages = nil
	s.loading = true
	s.mu.Unlock()
	s.publish(ChangeMessages, threadID)

	raw := s.backend.GetThreadMessages(ctx, threadID)
	msgs := historyMessages(threadID, raw, s.now())

	s.mu.Lock()
	if s.currentThread != threadID {
		// Switched again while loading.
		s.mu.Unlock()
		return
	}
	s.messages = msgs
	s.loading = false
	s.mu.Unlock()
	s.publish(ChangeMessages, threadID)
}

// CreateThread starts a local conversation at the head of the catalog and
// makes it current. Nothing is sent to the server.
func (s *Store) CreateThread() string {
	s.mu.Lock()
	id := s.createThreadLocked()
	s.mu.Unlock()
	s.publish(ChangeThreads, id)
	return id
}

func (s *Store) createThreadLocked() string {
	s.stopStreamLocked()
	now := s.now()
	id := s.newID()
	s.threads = slices.Insert(s.threads, 0, Thread{
		ID:        id,
		Title:     DefaultTitle,
		CreatedAt: now,
		UpdatedAt: now,
	})
	s.currentThread = id
	s.messages = nil
	return id
}

// DeleteThread removes threadID locally and then on the server. The local
// removal stands even when the server call fails; that error is returned.
func (s *Store) DeleteThread(ctx context.Context, threadID string) error {
	s.mu.Lock()
	s.threads = slices.DeleteFunc(s.threads, func(t Thread) bool { return t.ID == threadID })
	if s.currentThread == threadID {
		s.stopStreamLocked()
		s.currentThread = ""
		s.messages = nil
	}
	s.mu.Unlock()
	s.publish(ChangeThreads, threadID)

	if err := s.backend.DeleteThread(ctx, threadID); err != nil {
		log.Warn("deleting thread %s on server: %v", threadID, err)
		return fmt.Errorf("deleting thread %s: %w", threadID, err)
	}
	return nil
}

// LoadAgents refreshes the agent list. When no agent is selected the
// configured default is picked, falling back to the first one listed.
func (s *Store) LoadAgents(ctx context.Context) {
	agents := s.backend.ListAgents(ctx)

	s.mu.Lock()
	s.agents = agents
	if s.currentAgent == "" && len(agents) > 0 {
		s.currentAgent = agents[0].ID
		for _, a := range agents {
			if s.defaultAgent != "" && (a.ID == s.defaultAgent || a.Name == s.defaultAgent) {
				s.currentAgent = a.ID
				break
			}
		}
	}
	s.mu.Unlock()
	s.publish(ChangeAgents, "")
}

// SelectAgent scopes subsequent sends to agentID.
func (s *Store) SelectAgent(agentID string) {
	s.mu.Lock()
	s.currentAgent = agentID
	s.mu.Unlock()
	s.publish(ChangeAgents, "")
}

// SendMessage appends the user message and a streaming assistant
// placeholder, subscribes to the conversation's events, and starts the
// run. It returns once the run is acknowledged; the reply keeps streaming
// into the placeholder until a done or error event arrives. A conversation
// is created first when none is current.
func (s *Store) SendMessage(ctx context.Context, text string, attachments []mcp.Attachment) error {
	s.mu.Lock()
	if s.sending {
		s.mu.Unlock()
		return ErrSendInProgress
	}
	threadID := s.currentThread
	if threadID == "" {
		threadID = s.createThreadLocked()
	}
	agentID := s.currentAgent
	now := s.now()

	user := Message{
		ID:        s.newID(),
		Role:      RoleUser,
		Content:   userContent(text, attachments),
		Timestamp: now,
		Status:    StatusSent,
	}
	reply := Message{
		ID:        s.newID(),
		Role:      RoleAssistant,
		Content:   content.List{},
		Timestamp: now,
		Status:    StatusStreaming,
	}
	s.messages = append(s.messages, user, reply)
	s.sending = true
	s.mu.Unlock()
	s.publish(ChangeMessages, threadID)
	s.publish(ChangeSending, threadID)

	// The stream must outlive the request context of the send call itself.
	sub, err := s.backend.Subscribe(context.WithoutCancel(ctx), threadID)
	if err != nil {
		s.fail(reply.ID, "Failed to send message: "+err.Error())
		return fmt.Errorf("subscribing to thread %s: %w", threadID, err)
	}

	st := &activeStream{threadID: threadID, messageID: reply.ID, sub: sub}
	s.mu.Lock()
	if s.isStreamingLocked(reply.ID) {
		s.stream = st
		s.mu.Unlock()
		go s.consume(st)
	} else {
		// Switched away before the stream opened; the run still goes out and
		// its reply shows up in the thread history.
		s.mu.Unlock()
		sub.Cancel()
	}

	if _, err := s.backend.SendMessage(ctx, text, threadID, agentID, attachments); err != nil {
		s.fail(reply.ID, "Failed to send message: "+err.Error())
		return fmt.Errorf("sending message: %w", err)
	}

	s.touchThread(threadID, text)
	return nil
}

func userContent(text string, attachments []mcp.Attachment) content.List {
	blocks := content.List{content.Text{Text: text}}
	for _, a := range attachments {
		if a.Type == "image" || strings.HasPrefix(a.MimeType, "image/") {
			blocks = append(blocks, content.Image{Data: a.Data, MimeType: a.MimeType})
		}
	}
	return blocks
}

// touchThread records a new message in threadID: UpdatedAt moves forward to
// now, and a default title is replaced by one derived from text.
func (s *Store) touchThread(threadID, text string) {
	s.mu.Lock()
	i := slices.IndexFunc(s.threads, func(t Thread) bool { return t.ID == threadID })
	if i < 0 {
		s.mu.Unlock()
		return
	}
	th := &s.threads[i]
	if now := s.now(); now.After(th.UpdatedAt) {
		th.UpdatedAt = now
	}
	if th.Title == DefaultTitle {
		th.Title = DeriveTitle(text)
	}
	s.mu.Unlock()
	s.publish(ChangeThreads, threadID)
}

// consume feeds the subscription's events to the state machine until the
// stream ends.
func (s *Store) consume(st *activeStream) {
	for ev := range st.sub.Events() {
		s.applyEvent(st, ev)
	}

	err := st.sub.Err()
	s.mu.Lock()
	if s.stream != st {
		s.mu.Unlock()
		return
	}
	i := s.streamingIndexLocked(st.messageID)
	if err != nil {
		log.Warn("event stream for thread %s: %v", st.threadID, err)
		if i >= 0 {
			s.messages[i].Status = StatusError
			s.messages[i].Content = content.List{content.Text{Text: "Error: " + err.Error()}}
		}
	} else if i >= 0 {
		// The server closed the stream without a done event.
		log.Debug("event stream for thread %s ended without done", st.threadID)
		s.messages[i].Status = StatusSent
	}
	s.sending = false
	s.stream = nil
	s.mu.Unlock()
	s.publish(ChangeMessages, st.threadID)
	s.publish(ChangeSending, st.threadID)
}

// applyEvent folds one stream event into the trailing streaming message.
// Events for a stream that is no longer active are ignored.
func (s *Store) applyEvent(st *activeStream, ev mcp.Event) {
	s.mu.Lock()
	if s.stream != st {
		s.mu.Unlock()
		return
	}
	i := s.streamingIndexLocked(st.messageID)
	if i < 0 {
		s.mu.Unlock()
		return
	}

	sendingChanged := false
	switch ev.Type {
	case mcp.EventMessage, mcp.EventToolResult:
		b, err := content.DecodeJSON(ev.Data)
		if err != nil {
			log.Debug("skipping %s event: %v", ev.Type, err)
			s.mu.Unlock()
			return
		}
		if t, ok := b.(content.Text); ok && t.Text == "" {
			s.mu.Unlock()
			return
		}
		s.messages[i].Content = content.AppendStreamed(s.messages[i].Content, b)
	case mcp.EventDone:
		s.messages[i].Status = StatusSent
		s.stopStreamLocked()
		sendingChanged = true
	case mcp.EventError:
		s.messages[i].Status = StatusError
		s.messages[i].Content = content.List{content.Text{Text: "Error: " + eventErrorText(ev.Data)}}
		s.stopStreamLocked()
		sendingChanged = true
	default:
		// tool_call events carry nothing the message list shows.
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	s.publish(ChangeMessages, st.threadID)
	if sendingChanged {
		s.publish(ChangeSending, st.threadID)
	}
}

// fail moves the placeholder messageID to error with text, if it is still
// streaming, and ends the send.
func (s *Store) fail(messageID, text string) {
	s.mu.Lock()
	i := s.streamingIndexLocked(messageID)
	if i < 0 {
		s.mu.Unlock()
		return
	}
	s.messages[i].Status = StatusError
	s.messages[i].Content = content.List{content.Text{Text: text}}
	threadID := s.currentThread
	s.stopStreamLocked()
	s.mu.Unlock()
	s.publish(ChangeMessages, threadID)
	s.publish(ChangeSending, threadID)
}

// CancelStream abandons the reply in flight. What has streamed so far is
// kept and the message is marked sent.
func (s *Store) CancelStream() {
	s.mu.Lock()
	if s.stream == nil {
		s.mu.Unlock()
		return
	}
	threadID := s.stream.threadID
	if i := s.streamingIndexLocked(s.stream.messageID); i >= 0 {
		s.messages[i].Status = StatusSent
	}
	s.stopStreamLocked()
	s.mu.Unlock()
	s.publish(ChangeMessages, threadID)
	s.publish(ChangeSending, threadID)
}

// stopStreamLocked cancels the active subscription and clears the sending
// flag. Cancel only signals the read loop, so it is safe under s.mu.
func (s *Store) stopStreamLocked() {
	if s.stream != nil {
		s.stream.sub.Cancel()
		s.stream = nil
	}
	s.sending = false
}

// streamingIndexLocked returns the index of messageID when it is the last
// message and still streaming, or -1.
func (s *Store) streamingIndexLocked(messageID string) int {
	n := len(s.messages)
	if n == 0 {
		return -1
	}
	last := s.messages[n-1]
	if last.ID != messageID || last.Status != StatusStreaming {
		return -1
	}
	return n - 1
}

func (s *Store) isStreamingLocked(messageID string) bool {
	return s.streamingIndexLocked(messageID) >= 0
}

func (s *Store) setLoading(v bool) {
	s.mu.Lock()
	s.loading = v
	s.mu.Unlock()
}

// eventErrorText renders the data of an error event.
func eventErrorText(data json.RawMessage) string {
	var msg string
	if err := json.Unmarshal(data, &msg); err == nil {
		return msg
	}
	var obj struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(data, &obj); err == nil {
		if obj.Message != "" {
			return obj.Message
		}
		if obj.Error != "" {
			return obj.Error
		}
	}
	raw := strings.TrimSpace(string(data))
	if raw == "" || raw == "null" {
		return "unknown error"
	}
	return raw
}

// ConnState returns the connection status.
func (s *Store) ConnState() ConnState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn
}

// ConnectionError returns the message of the last failed Connect, or "".
func (s *Store) ConnectionError() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connErr
}

// Threads returns a copy of the catalog, newest first as listed.
func (s *Store) Threads() []Thread {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.threads)
}

// Thread returns the catalog entry for id.
func (s *Store) Thread(id string) (Thread, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := slices.IndexFunc(s.threads, func(t Thread) bool { return t.ID == id })
	if i < 0 {
		return Thread{}, false
	}
	return s.threads[i], true
}

// CurrentThreadID returns the current conversation id, or "".
func (s *Store) CurrentThreadID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentThread
}

// Messages returns a copy of the visible message list.
func (s *Store) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.messages))
	for i, m := range s.messages {
		out[i] = m.clone()
	}
	return out
}

// Agents returns the loaded agents.
func (s *Store) Agents() []mcp.Agent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.agents)
}

// CurrentAgentID returns the selected agent id, or "".
func (s *Store) CurrentAgentID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentAgent
}

// IsSending reports whether a reply is in flight.
func (s *Store) IsSending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sending
}

// IsLoading reports whether threads or history are being fetched.
func (s *Store) IsLoading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}
