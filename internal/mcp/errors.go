// ABOUTME: Error taxonomy for the nanobot protocol client
// ABOUTME: TransportError (HTTP status), ProtocolError (JSON-RPC error), and sentinel errors

package mcp

import (
	"errors"
	"fmt"
	"net/http"
)

// StatusSessionExpired is the HTTP status the server answers with when the
// Mcp-Session-Id it receives is no longer valid.
const StatusSessionExpired = http.StatusNotFound

var (
	// ErrSessionExpired matches (via errors.Is) a TransportError carrying
	// StatusSessionExpired.
	ErrSessionExpired = errors.New("mcp: session expired")

	// ErrIDMismatch is returned when a response id does not correlate to the
	// request that produced it.
	ErrIDMismatch = errors.New("mcp: response id does not match request")

	// ErrStreamIdle ends a subscription that received no bytes within the
	// configured idle timeout.
	ErrStreamIdle = errors.New("mcp: event stream idle timeout")

	// ErrTokenExpired is returned by Connect when the configured bearer token
	// is a JWT whose exp claim has passed.
	ErrTokenExpired = errors.New("mcp: auth token expired")

	// ErrNoContent is returned when a tool result carries no text content to parse.
	ErrNoContent = errors.New("mcp: tool result has no text content")
)

// TransportError reports a non-success HTTP status.
type TransportError struct {
	StatusCode int
	Status     string
}

func (e *TransportError) Error() string {
	if e.Status != "" {
		return fmt.Sprintf("HTTP %s", e.Status)
	}
	return fmt.Sprintf("HTTP %d", e.StatusCode)
}

// Is reports whether the error is the session-expired signal.
func (e *TransportError) Is(target error) bool {
	return target == ErrSessionExpired && e.StatusCode == StatusSessionExpired
}

// ProtocolError is a JSON-RPC error object returned by the server.
type ProtocolError struct {
	Code    int
	Message string
	Data    any
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("RPC Error %d: %s", e.Code, e.Message)
}
