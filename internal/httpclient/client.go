// ABOUTME: HTTP client for talking to nanobot servers with bounded connect and header timeouts
// ABOUTME: No overall timeout so event streams can stay open; per-call deadlines come from contexts

package httpclient

import (
	"net"
	"net/http"
	"time"
)

// Timeouts bounds the phases of a connection. Zero fields take defaults.
type Timeouts struct {
	Dial           time.Duration
	TLSHandshake   time.Duration
	ResponseHeader time.Duration
	IdleConn       time.Duration
}

// DefaultTimeouts returns the limits used by New.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Dial:           10 * time.Second,
		TLSHandshake:   10 * time.Second,
		ResponseHeader: 30 * time.Second,
		IdleConn:       90 * time.Second,
	}
}

// New returns a client with DefaultTimeouts.
func New() *http.Client {
	return NewWithTimeouts(Timeouts{})
}

// NewWithTimeouts returns a client whose transport enforces t. The client
// itself has no Timeout: an event stream response is read for as long as
// the server keeps it open.
func NewWithTimeouts(t Timeouts) *http.Client {
	d := DefaultTimeouts()
	if t.Dial <= 0 {
		t.Dial = d.Dial
	}
	if t.TLSHandshake <= 0 {
		t.TLSHandshake = d.TLSHandshake
	}
	if t.ResponseHeader <= 0 {
		t.ResponseHeader = d.ResponseHeader
	}
	if t.IdleConn <= 0 {
		t.IdleConn = d.IdleConn
	}

	return &http.Client{
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			DialContext:           (&net.Dialer{Timeout: t.Dial, KeepAlive: 30 * time.Second}).DialContext,
			ForceAttemptHTTP2:     true,
			TLSHandshakeTimeout:   t.TLSHandshake,
			ResponseHeaderTimeout: t.ResponseHeader,
			IdleConnTimeout:       t.IdleConn,
			MaxIdleConns:          10,
			MaxIdleConnsPerHost:   4,
		},
	}
}
