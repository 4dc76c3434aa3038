// ABOUTME: Session manager owning the Mcp-Session-Id lifecycle
// ABOUTME: Connect/resume/disconnect, persistence, and one reconnect-and-retry on session expiry

package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/mauromedda/nanobot-go/internal/log"
	"github.com/mauromedda/nanobot-go/internal/securestore"
)

// Session holds the single session identifier of a client and routes every
// call through a guarded exchange. Concurrent Connect calls coalesce into one
// initialize round trip.
type Session struct {
	exchanger  *Exchanger
	store      securestore.Store
	initParams InitializeParams
	authToken  string

	mu          sync.RWMutex
	id          string
	initialized bool
	info        *InitializeResult

	connecting singleflight.Group
}

// NewSession creates a session manager persisting through store.
func NewSession(x *Exchanger, store securestore.Store, info ClientInfo) *Session {
	if store == nil {
		store = securestore.NewMemory()
	}
	return &Session{
		exchanger: x,
		store:     store,
		authToken: x.authToken,
		initParams: InitializeParams{
			ProtocolVersion: ProtocolVersion,
			Capabilities: map[string]any{
				"roots": map[string]any{"listChanged": true},
			},
			ClientInfo: info,
		},
	}
}

// ID returns the current session id, or "" when none is held.
func (s *Session) ID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.id
}

// Initialized reports whether the session completed initialize (or was resumed).
func (s *Session) Initialized() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.initialized
}

// ServerInfo returns the initialize result of the last successful Connect.
func (s *Session) ServerInfo() *InitializeResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.info
}

// Resume seeds the session from storage without calling initialize. A stale
// stored id is detected on first use and recovered by the reconnect rule.
func (s *Session) Resume() (bool, error) {
	id, ok, err := s.store.Get(securestore.SessionKey)
	if err != nil {
		return false, fmt.Errorf("reading stored session: %w", err)
	}
	if !ok || id == "" {
		return false, nil
	}

	s.mu.Lock()
	s.id = id
	s.initialized = true
	s.mu.Unlock()
	log.Debug("resumed session %s", id)
	return true, nil
}

// Connect performs the initialize handshake. Callers arriving while a
// handshake is in flight share its result.
func (s *Session) Connect(ctx context.Context) (*InitializeResult, error) {
	v, err, _ := s.connecting.Do("connect", func() (any, error) {
		return s.connect(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.(*InitializeResult), nil
}

func (s *Session) connect(ctx context.Context) (*InitializeResult, error) {
	if err := checkToken(s.authToken, time.Now()); err != nil {
		return nil, err
	}

	sid := s.ID()
	if sid == "" {
		if stored, ok, err := s.store.Get(securestore.SessionKey); err != nil {
			log.Warn("reading stored session: %v", err)
		} else if ok {
			sid = stored
		}
	}

	reply, err := s.exchanger.Exchange(ctx, sid, "initialize", s.initParams)
	if errors.Is(err, ErrSessionExpired) && sid != "" {
		// The server no longer knows the id we offered; start over without one.
		log.Info("stored session %s rejected; initializing a fresh session", sid)
		s.invalidate(sid)
		if err := s.store.Delete(securestore.SessionKey); err != nil {
			log.Warn("deleting rejected session: %v", err)
		}
		sid = ""
		reply, err = s.exchanger.Exchange(ctx, "", "initialize", s.initParams)
	}
	s.capture(sid, reply.SessionID)
	if err != nil {
		return nil, fmt.Errorf("initialize: %w", err)
	}

	var result InitializeResult
	if len(reply.Result) > 0 {
		if err := json.Unmarshal(reply.Result, &result); err != nil {
			return nil, fmt.Errorf("parsing initialize result: %w", err)
		}
	}

	s.mu.Lock()
	if s.id == "" {
		// A stored id the server accepted without issuing a new one.
		s.id = sid
	}
	s.initialized = true
	s.info = &result
	s.mu.Unlock()
	return &result, nil
}

// Disconnect forgets the session in memory and in storage.
func (s *Session) Disconnect() error {
	s.mu.Lock()
	s.id = ""
	s.initialized = false
	s.info = nil
	s.mu.Unlock()

	if err := s.store.Delete(securestore.SessionKey); err != nil {
		return fmt.Errorf("deleting stored session: %w", err)
	}
	return nil
}

// Exchange sends method through the current session. When the server reports
// the session expired on an initialized session, the session is dropped,
// re-established once, and the call retried once. A second expiry surfaces
// as the TransportError.
func (s *Session) Exchange(ctx context.Context, method string, params any) (json.RawMessage, error) {
	sid := s.ID()
	result, err := s.exchangeOnce(ctx, sid, method, params)
	if err == nil || !errors.Is(err, ErrSessionExpired) || !s.Initialized() {
		return result, err
	}

	log.Info("session %s expired during %s; reconnecting", sid, method)
	if s.invalidate(sid) || !s.Initialized() {
		if _, cerr := s.Connect(ctx); cerr != nil {
			return nil, fmt.Errorf("reconnecting after expired session: %w", cerr)
		}
	}

	return s.exchangeOnce(ctx, s.ID(), method, params)
}

func (s *Session) exchangeOnce(ctx context.Context, sid, method string, params any) (json.RawMessage, error) {
	reply, err := s.exchanger.Exchange(ctx, sid, method, params)
	s.capture(sid, reply.SessionID)
	if err != nil {
		return nil, err
	}
	return reply.Result, nil
}

// capture adopts a session id issued by the server and persists it.
func (s *Session) capture(sent, issued string) {
	if issued == "" || issued == sent {
		return
	}

	s.mu.Lock()
	if s.id == issued {
		s.mu.Unlock()
		return
	}
	s.id = issued
	s.mu.Unlock()

	if err := s.store.Set(securestore.SessionKey, issued); err != nil {
		log.Warn("persisting session id: %v", err)
	}
}

// invalidate clears the session if it still holds sid. It reports whether
// this call did the clearing; false means another caller already replaced it.
func (s *Session) invalidate(sid string) bool {
	s.mu.Lock()
	if s.id != sid {
		s.mu.Unlock()
		return false
	}
	s.id = ""
	s.initialized = false
	s.mu.Unlock()

	if err := s.store.Delete(securestore.SessionKey); err != nil {
		log.Warn("deleting expired session: %v", err)
	}
	return true
}
