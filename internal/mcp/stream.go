// ABOUTME: Event stream subscriber for server-to-client thread events
// ABOUTME: Long-lived GET read incrementally; events delivered in order on a channel until cancel or end

package mcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"
)

const readChunkSize = 32 * 1024

// Subscriber opens event streams against the protocol endpoint. It keeps no
// state between subscriptions.
type Subscriber struct {
	endpoint    string
	httpClient  *http.Client
	authToken   string
	idleTimeout time.Duration
}

// NewSubscriber creates a subscriber for endpoint. A zero idleTimeout
// disables the idle check.
func NewSubscriber(endpoint string, httpClient *http.Client, authToken string, idleTimeout time.Duration) *Subscriber {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Subscriber{
		endpoint:    endpoint,
		httpClient:  httpClient,
		authToken:   authToken,
		idleTimeout: idleTimeout,
	}
}

// Subscription is one open event stream. Consumers range over Events() and
// check Err() once the channel is closed.
type Subscription struct {
	events chan Event
	done   chan struct{}
	cancel context.CancelCauseFunc
	once   sync.Once
	err    error
}

// Subscribe opens the stream for threadID and returns once the server has
// answered with a success status. Events flow until the server closes the
// body, the read fails, ctx is done, or Cancel is called.
func (s *Subscriber) Subscribe(ctx context.Context, sessionID, threadID string) (*Subscription, error) {
	ctx, cancel := context.WithCancelCause(ctx)

	query := url.Values{"stream": {"true"}, "thread": {threadID}}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.endpoint+"?"+query.Encode(), nil)
	if err != nil {
		cancel(nil)
		return nil, fmt.Errorf("creating stream request: %w", err)
	}
	req.Header.Set(headerAccept, contentTypeSSE)
	req.Header.Set("Cache-Control", "no-cache")
	if s.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+s.authToken)
	}
	if sessionID != "" {
		req.Header.Set(headerSessionID, sessionID)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		cancel(nil)
		return nil, fmt.Errorf("opening event stream: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseSize))
		resp.Body.Close()
		cancel(nil)
		return nil, &TransportError{StatusCode: resp.StatusCode, Status: resp.Status}
	}

	sub := &Subscription{
		events: make(chan Event),
		done:   make(chan struct{}),
		cancel: cancel,
	}
	go sub.run(ctx, resp.Body, s.idleTimeout)
	return sub, nil
}

// Events returns the ordered event channel. It is closed when the
// subscription ends for any reason.
func (sub *Subscription) Events() <-chan Event {
	return sub.events
}

// Done is closed after the read loop has exited.
func (sub *Subscription) Done() <-chan struct{} {
	return sub.done
}

// Err returns the transport failure that ended the subscription, or nil when
// it ended by cancellation, by the server closing the body, or not at all yet.
func (sub *Subscription) Err() error {
	select {
	case <-sub.done:
		return sub.err
	default:
		return nil
	}
}

// Cancel aborts the connection. Safe to call any number of times, including
// after the stream has ended; it never produces an error.
func (sub *Subscription) Cancel() {
	sub.once.Do(func() {
		sub.cancel(context.Canceled)
	})
}

func (sub *Subscription) run(ctx context.Context, body io.ReadCloser, idle time.Duration) {
	defer close(sub.done)
	defer close(sub.events)
	defer body.Close()

	touch := func() {}
	if idle > 0 {
		timer := time.AfterFunc(idle, func() { sub.cancel(ErrStreamIdle) })
		defer timer.Stop()
		touch = func() { timer.Reset(idle) }
	}

	err := readEvents(body, touch, func(ev Event) bool {
		select {
		case sub.events <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	})

	if cause := context.Cause(ctx); errors.Is(cause, ErrStreamIdle) {
		sub.err = ErrStreamIdle
		return
	}
	if err != nil && ctx.Err() == nil {
		sub.err = fmt.Errorf("reading event stream: %w", err)
	}
}

// readEvents reads r chunk by chunk, framing lines and emitting decoded
// events in arrival order. It stops when emit returns false. End of body is
// a normal return. The server terminates every event line with a newline;
// this reader additionally decodes a final unterminated line at end of body
// instead of discarding it, since no more bytes can complete it. A cancelled
// stream never reaches that point, so its partial line is dropped.
func readEvents(r io.Reader, touch func(), emit func(Event) bool) error {
	var lb lineBuffer
	buf := make([]byte, readChunkSize)

	for {
		n, err := r.Read(buf)
		if n > 0 {
			touch()
			lines, lerr := lb.write(buf[:n])
			for _, line := range lines {
				if ev, ok := parseEventLine(line); ok && !emit(ev) {
					return nil
				}
			}
			if lerr != nil {
				return lerr
			}
		}

		if errors.Is(err, io.EOF) {
			if line, ok := lb.flush(); ok {
				if ev, ok := parseEventLine(line); ok {
					emit(ev)
				}
			}
			return nil
		}
		if err != nil {
			return err
		}
	}
}
