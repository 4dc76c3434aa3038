// ABOUTME: Public SDK for programmatic use of a nanobot server
// ABOUTME: App bundles the protocol client and chat store built from settings and secure storage

package sdk

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/mauromedda/nanobot-go/internal/chat"
	"github.com/mauromedda/nanobot-go/internal/config"
	"github.com/mauromedda/nanobot-go/internal/mcp"
	"github.com/mauromedda/nanobot-go/internal/securestore"
)

const pollInterval = 250 * time.Millisecond

// ErrNoServerURL is returned when no server URL is configured anywhere.
var ErrNoServerURL = errors.New("no server URL configured")

// App is the single client context of a process: one protocol client and
// the conversation store driving it. Build it once and pass it around.
type App struct {
	settings   config.Settings
	secure     securestore.Store
	httpClient *http.Client

	mu        sync.RWMutex
	serverURL string
	client    *mcp.Client
	store     *chat.Store
}

// Option configures an App.
type Option func(*appConfig)

type appConfig struct {
	settings   *config.Settings
	secure     securestore.Store
	serverURL  string
	httpClient *http.Client
}

// WithSettings uses s instead of defaults.
func WithSettings(s *config.Settings) Option {
	return func(c *appConfig) { c.settings = s }
}

// WithSecureStore sets where the session id and server URL persist.
func WithSecureStore(s securestore.Store) Option {
	return func(c *appConfig) { c.secure = s }
}

// WithServerURL overrides the configured and stored server URL.
func WithServerURL(url string) Option {
	return func(c *appConfig) { c.serverURL = url }
}

// WithHTTPClient sets the HTTP client (for tests or custom transports).
func WithHTTPClient(h *http.Client) Option {
	return func(c *appConfig) { c.httpClient = h }
}

// New builds the app. The server URL is taken from WithServerURL, then
// settings, then secure storage.
func New(opts ...Option) (*App, error) {
	cfg := &appConfig{}
	for _, o := range opts {
		o(cfg)
	}
	if cfg.settings == nil {
		cfg.settings = &config.Settings{}
	}
	if cfg.secure == nil {
		cfg.secure = securestore.NewMemory()
	}

	url := cfg.serverURL
	if url == "" {
		url = cfg.settings.ServerURL
	}
	if url == "" {
		stored, ok, err := cfg.secure.Get(securestore.ServerURLKey)
		if err != nil {
			return nil, fmt.Errorf("reading stored server URL: %w", err)
		}
		if ok {
			url = stored
		}
	}
	if url == "" {
		return nil, ErrNoServerURL
	}

	a := &App{
		settings:   *cfg.settings,
		secure:     cfg.secure,
		httpClient: cfg.httpClient,
	}
	a.build(url)
	return a, nil
}

func (a *App) build(url string) {
	s := a.settings
	opts := []mcp.Option{
		mcp.WithStore(a.secure),
		mcp.WithAuthToken(s.AuthToken),
		mcp.WithRequestTimeout(s.RequestTimeout.Std()),
		mcp.WithStreamIdleTimeout(s.StreamIdleTimeout.Std()),
	}
	if s.EndpointPath != "" {
		opts = append(opts, mcp.WithEndpointPath(s.EndpointPath))
	}
	if s.ClientName != "" {
		opts = append(opts, mcp.WithClientInfo(s.ClientName, s.ClientVersion))
	}
	if a.httpClient != nil {
		opts = append(opts, mcp.WithHTTPClient(a.httpClient))
	}

	client := mcp.New(url, opts...)
	store := chat.NewStore(client, chat.WithDefaultAgent(s.DefaultAgent))

	a.mu.Lock()
	a.serverURL = client.BaseURL()
	a.client = client
	a.store = store
	a.mu.Unlock()
}

// Client returns the protocol client.
func (a *App) Client() *mcp.Client {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.client
}

// Store returns the conversation store.
func (a *App) Store() *chat.Store {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.store
}

// ServerURL returns the base URL in use.
func (a *App) ServerURL() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.serverURL
}

// SetServerURL persists url and replaces the client and store with fresh
// ones pointed at it. The previous session is forgotten.
func (a *App) SetServerURL(url string) error {
	url = strings.TrimSpace(url)
	if url == "" {
		return ErrNoServerURL
	}
	if err := a.secure.Set(securestore.ServerURLKey, url); err != nil {
		return fmt.Errorf("saving server URL: %w", err)
	}
	a.Store().Disconnect()
	a.build(url)
	return nil
}

// Connect reuses a stored session when one exists and otherwise performs
// the handshake, then loads agents and threads.
func (a *App) Connect(ctx context.Context) error {
	return a.Store().Connect(ctx)
}

// Resume adopts a stored session without any network call. Later calls
// recover through reconnect if the server has forgotten it.
func (a *App) Resume() (bool, error) {
	return a.Client().Resume()
}

// Prompt sends text to the current conversation (creating one if needed)
// and blocks until the reply has finished streaming. It returns the final
// assistant message, which may carry StatusError.
func (a *App) Prompt(ctx context.Context, text string, attachments []mcp.Attachment) (chat.Message, error) {
	store := a.Store()
	changes, unsub := store.Changes().Chan(64)
	defer unsub()

	if err := store.SendMessage(ctx, text, attachments); err != nil {
		return lastAssistant(store.Messages()), err
	}

	// The change channel drops when full, so the state is also polled.
	tick := time.NewTicker(pollInterval)
	defer tick.Stop()
	for store.IsSending() {
		select {
		case <-changes:
		case <-tick.C:
		case <-ctx.Done():
			return lastAssistant(store.Messages()), ctx.Err()
		}
	}
	return lastAssistant(store.Messages()), nil
}

func lastAssistant(msgs []chat.Message) chat.Message {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == chat.RoleAssistant {
			return msgs[i]
		}
	}
	return chat.Message{}
}

// OnChange registers handler for store changes and returns the unsubscribe
// function. Replacing the server URL drops existing registrations.
func (a *App) OnChange(handler func(chat.Change)) func() {
	return a.Store().Changes().Subscribe(handler)
}

// Close abandons any reply still streaming. The persisted session is kept.
func (a *App) Close() error {
	a.Store().CancelStream()
	return nil
}
