// ABOUTME: Protocol client facade: typed operations over the session and stream subscriber
// ABOUTME: Tools, resources, prompts, and the nanobot chat tools (agents, threads, run, uploads)

package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/mitchellh/mapstructure"

	"github.com/mauromedda/nanobot-go/internal/log"
	"github.com/mauromedda/nanobot-go/internal/securestore"
)

// DefaultEndpointPath is appended to the server base URL.
const DefaultEndpointPath = "/mcp/ui"

// Tool names of the nanobot chat surface.
const (
	ToolListAgents     = "list_agents"
	ToolRun            = "run"
	ToolCreateResource = "create_resource"
	ToolListThreads    = "list_threads"
	ToolGetThread      = "get_thread"
	ToolDeleteThread   = "delete_thread"
)

const metaAsyncKey = "ai.nanobot.async"

// Client is the typed facade over one server. All operations go through the
// same Session, so they share its id and its reconnect rule.
type Client struct {
	baseURL    string
	session    *Session
	subscriber *Subscriber
}

type clientOptions struct {
	httpClient     *http.Client
	endpointPath   string
	authToken      string
	info           ClientInfo
	store          securestore.Store
	requestTimeout time.Duration
	idleTimeout    time.Duration
}

// Option configures a Client.
type Option func(*clientOptions)

// WithHTTPClient sets the HTTP client used for exchanges and streams.
func WithHTTPClient(c *http.Client) Option {
	return func(o *clientOptions) { o.httpClient = c }
}

// WithEndpointPath overrides the endpoint path appended to the base URL.
func WithEndpointPath(p string) Option {
	return func(o *clientOptions) { o.endpointPath = p }
}

// WithAuthToken sends the token as a Bearer credential on every request.
func WithAuthToken(token string) Option {
	return func(o *clientOptions) { o.authToken = token }
}

// WithClientInfo sets the name and version announced in initialize.
func WithClientInfo(name, version string) Option {
	return func(o *clientOptions) { o.info = ClientInfo{Name: name, Version: version} }
}

// WithStore sets where the session id is persisted.
func WithStore(s securestore.Store) Option {
	return func(o *clientOptions) { o.store = s }
}

// WithRequestTimeout bounds each individual exchange.
func WithRequestTimeout(d time.Duration) Option {
	return func(o *clientOptions) { o.requestTimeout = d }
}

// WithStreamIdleTimeout ends a subscription that receives no bytes for d.
func WithStreamIdleTimeout(d time.Duration) Option {
	return func(o *clientOptions) { o.idleTimeout = d }
}

// New creates a client for the server at baseURL.
func New(baseURL string, opts ...Option) *Client {
	o := clientOptions{
		endpointPath: DefaultEndpointPath,
		info:         ClientInfo{Name: "nanobot-go", Version: "1.0.0"},
	}
	for _, opt := range opts {
		opt(&o)
	}

	base := strings.TrimRight(baseURL, "/")
	endpoint := base + o.endpointPath

	x := NewExchanger(endpoint, o.httpClient, o.authToken)
	x.timeout = o.requestTimeout

	return &Client{
		baseURL:    base,
		session:    NewSession(x, o.store, o.info),
		subscriber: NewSubscriber(endpoint, o.httpClient, o.authToken, o.idleTimeout),
	}
}

// BaseURL returns the server base URL without a trailing slash.
func (c *Client) BaseURL() string { return c.baseURL }

// Connect performs the initialize handshake.
func (c *Client) Connect(ctx context.Context) (*InitializeResult, error) {
	return c.session.Connect(ctx)
}

// Resume adopts a persisted session id without a handshake. It reports
// whether one was found.
func (c *Client) Resume() (bool, error) {
	return c.session.Resume()
}

// Disconnect forgets the session locally and in storage. The server is not
// notified.
func (c *Client) Disconnect() error {
	return c.session.Disconnect()
}

// SessionID returns the current session id, or "".
func (c *Client) SessionID() string { return c.session.ID() }

// IsConnected reports whether the session is initialized.
func (c *Client) IsConnected() bool { return c.session.Initialized() }

// ServerInfo returns the last initialize result, or nil.
func (c *Client) ServerInfo() *InitializeResult { return c.session.ServerInfo() }

// ListTools returns the tools the server exposes.
func (c *Client) ListTools(ctx context.Context) ([]Tool, error) {
	var out struct {
		Tools []Tool `json:"tools"`
	}
	if err := c.call(ctx, "tools/list", nil, &out); err != nil {
		return nil, fmt.Errorf("tools/list: %w", err)
	}
	return out.Tools, nil
}

// CallTool invokes a tool. The _meta block is sent only when opts requests
// async execution or carries a progress token.
func (c *Client) CallTool(ctx context.Context, name string, args map[string]any, opts CallToolOptions) (*CallToolResult, error) {
	if args == nil {
		args = map[string]any{}
	}
	params := map[string]any{
		"name":      name,
		"arguments": args,
	}
	if meta := buildMeta(opts); meta != nil {
		params["_meta"] = meta
	}

	var out CallToolResult
	if err := c.call(ctx, "tools/call", params, &out); err != nil {
		return nil, fmt.Errorf("tools/call %s: %w", name, err)
	}
	return &out, nil
}

func buildMeta(opts CallToolOptions) map[string]any {
	if !opts.Async && opts.ProgressToken == "" {
		return nil
	}
	meta := map[string]any{}
	if opts.Async {
		meta[metaAsyncKey] = true
	}
	if opts.ProgressToken != "" {
		meta["progressToken"] = opts.ProgressToken
	}
	return meta
}

// ListResources returns the server's resources.
func (c *Client) ListResources(ctx context.Context) ([]Resource, error) {
	var out struct {
		Resources []Resource `json:"resources"`
	}
	if err := c.call(ctx, "resources/list", nil, &out); err != nil {
		return nil, fmt.Errorf("resources/list: %w", err)
	}
	return out.Resources, nil
}

// ReadResource returns the contents of the resource at uri.
func (c *Client) ReadResource(ctx context.Context, uri string) ([]ResourceContents, error) {
	var out struct {
		Contents []ResourceContents `json:"contents"`
	}
	if err := c.call(ctx, "resources/read", map[string]any{"uri": uri}, &out); err != nil {
		return nil, fmt.Errorf("resources/read %s: %w", uri, err)
	}
	return out.Contents, nil
}

// ListPrompts returns the server's prompt templates.
func (c *Client) ListPrompts(ctx context.Context) ([]Prompt, error) {
	var out struct {
		Prompts []Prompt `json:"prompts"`
	}
	if err := c.call(ctx, "prompts/list", nil, &out); err != nil {
		return nil, fmt.Errorf("prompts/list: %w", err)
	}
	return out.Prompts, nil
}

// ListAgents returns the available agents. Failures are logged and yield an
// empty list.
func (c *Client) ListAgents(ctx context.Context) []Agent {
	var agents []Agent
	if err := c.callToolJSON(ctx, ToolListAgents, nil, &agents); err != nil {
		log.Warn("listing agents: %v", err)
		return []Agent{}
	}
	if agents == nil {
		agents = []Agent{}
	}
	return agents
}

// ListThreads returns the thread summaries. Failures are logged and yield an
// empty list.
func (c *Client) ListThreads(ctx context.Context) []ThreadSummary {
	var threads []ThreadSummary
	if err := c.callToolJSON(ctx, ToolListThreads, nil, &threads); err != nil {
		log.Warn("listing threads: %v", err)
		return []ThreadSummary{}
	}
	if threads == nil {
		threads = []ThreadSummary{}
	}
	return threads
}

// GetThreadMessages returns the stored messages of a thread. Failures are
// logged and yield an empty list.
func (c *Client) GetThreadMessages(ctx context.Context, threadID string) []ThreadMessage {
	var thread struct {
		Messages []ThreadMessage `mapstructure:"messages"`
	}
	if err := c.callToolJSON(ctx, ToolGetThread, map[string]any{"thread_id": threadID}, &thread); err != nil {
		log.Warn("getting thread %s: %v", threadID, err)
		return []ThreadMessage{}
	}
	if thread.Messages == nil {
		return []ThreadMessage{}
	}
	return thread.Messages
}

// SendMessage starts an asynchronous run of prompt on threadID. The reply
// content arrives on the thread's event stream. agentID and attachments are
// omitted from the arguments when empty.
func (c *Client) SendMessage(ctx context.Context, prompt, threadID, agentID string, attachments []Attachment) (*CallToolResult, error) {
	args := map[string]any{
		"prompt":    prompt,
		"thread_id": threadID,
	}
	if agentID != "" {
		args["agent"] = agentID
	}
	if len(attachments) > 0 {
		args["attachments"] = attachments
	}
	return c.CallTool(ctx, ToolRun, args, CallToolOptions{Async: true})
}

// CreateResource uploads data (base64) and returns the URI the server
// assigned to it.
func (c *Client) CreateResource(ctx context.Context, name, data, mimeType string) (string, error) {
	result, err := c.CallTool(ctx, ToolCreateResource, map[string]any{
		"name":     name,
		"data":     data,
		"mimeType": mimeType,
	}, CallToolOptions{})
	if err != nil {
		return "", err
	}
	text, ok := result.FirstText()
	if !ok {
		return "", fmt.Errorf("create_resource: %w", ErrNoContent)
	}

	var out struct {
		URI string `json:"uri"`
	}
	if err := json.Unmarshal([]byte(text), &out); err != nil {
		return "", fmt.Errorf("parsing create_resource result: %w", err)
	}
	return out.URI, nil
}

// DeleteThread deletes a thread on the server.
func (c *Client) DeleteThread(ctx context.Context, threadID string) error {
	result, err := c.CallTool(ctx, ToolDeleteThread, map[string]any{"thread_id": threadID}, CallToolOptions{})
	if err != nil {
		return err
	}
	if result.IsError {
		text, _ := result.FirstText()
		return fmt.Errorf("delete_thread %s: %s", threadID, text)
	}
	return nil
}

// Subscribe opens the event stream of threadID with the current session id.
func (c *Client) Subscribe(ctx context.Context, threadID string) (*Subscription, error) {
	return c.subscriber.Subscribe(ctx, c.session.ID(), threadID)
}

// SubscribeFunc runs a subscription in the background and delivers events to
// onEvent in arrival order. onError (optional) receives an opening or read
// failure; it is never called because of the returned cancel func. cancel
// may be called from inside onEvent or onError, in which case it returns
// without waiting and the running callback is the last one. Called from
// anywhere else it waits for the delivery goroutine to exit unless a
// callback is already running; no callback starts after cancel returns.
func (c *Client) SubscribeFunc(ctx context.Context, threadID string, onEvent func(Event), onError func(error)) (cancel func()) {
	ctx, stop := context.WithCancel(ctx)
	done := make(chan struct{})
	var inCallback atomic.Bool

	// deliver runs fn unless the subscription was cancelled. The flag is
	// raised before the check so a concurrent cancel either sees it or
	// prevents fn from starting.
	deliver := func(fn func()) bool {
		inCallback.Store(true)
		defer inCallback.Store(false)
		if ctx.Err() != nil {
			return false
		}
		fn()
		return true
	}

	go func() {
		defer close(done)

		sub, err := c.Subscribe(ctx, threadID)
		if err != nil {
			if onError != nil {
				deliver(func() { onError(err) })
			}
			return
		}
		defer sub.Cancel()

		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-sub.Events():
				if !ok {
					if err := sub.Err(); err != nil && onError != nil {
						deliver(func() { onError(err) })
					}
					return
				}
				if !deliver(func() { onEvent(ev) }) {
					return
				}
			}
		}
	}()

	return func() {
		stop()
		if inCallback.Load() {
			return
		}
		<-done
	}
}

// call runs method through the session and decodes its result into out.
func (c *Client) call(ctx context.Context, method string, params any, out any) error {
	raw, err := c.session.Exchange(ctx, method, params)
	if err != nil {
		return err
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("parsing %s result: %w", method, err)
	}
	return nil
}

// callToolJSON calls a chat tool whose first text content is a JSON document
// and decodes it into out. Field names are matched loosely so servers that
// send numbers as strings or timestamps as RFC 3339 still decode.
func (c *Client) callToolJSON(ctx context.Context, tool string, args map[string]any, out any) error {
	result, err := c.CallTool(ctx, tool, args, CallToolOptions{})
	if err != nil {
		return err
	}
	text, ok := result.FirstText()
	if !ok {
		return ErrNoContent
	}

	var doc any
	if err := json.Unmarshal([]byte(text), &doc); err != nil {
		return fmt.Errorf("parsing %s result: %w", tool, err)
	}

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		DecodeHook:       timestampHook,
		TagName:          "mapstructure",
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(doc); err != nil {
		return fmt.Errorf("decoding %s result: %w", tool, err)
	}
	return nil
}

// timestampHook turns RFC 3339 or numeric-string timestamps into Unix
// milliseconds when the target is an int64.
func timestampHook(from, to reflect.Type, data any) (any, error) {
	if to.Kind() != reflect.Int64 || from.Kind() != reflect.String {
		return data, nil
	}
	s := data.(string)
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UnixMilli(), nil
	}
	return data, nil
}
