// ABOUTME: Tests for event stream framing and subscription lifecycle
// ABOUTME: Covers split lines, malformed lines, trailing data, idle timeout, and cancellation

package mcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"
)

// chunkReader returns one chunk per Read call.
type chunkReader struct {
	chunks []string
}

func (r *chunkReader) Read(p []byte) (int, error) {
	if len(r.chunks) == 0 {
		return 0, io.EOF
	}
	n := copy(p, r.chunks[0])
	r.chunks[0] = r.chunks[0][n:]
	if r.chunks[0] == "" {
		r.chunks = r.chunks[1:]
	}
	return n, nil
}

func collect(t *testing.T, chunks ...string) []Event {
	t.Helper()
	var got []Event
	err := readEvents(&chunkReader{chunks: chunks}, func() {}, func(ev Event) bool {
		got = append(got, ev)
		return true
	})
	if err != nil {
		t.Fatalf("readEvents: %v", err)
	}
	return got
}

func TestReadEvents_LineSplitAcrossChunks(t *testing.T) {
	t.Parallel()

	const line = `data: {"type":"done","data":null}` + "\n"
	for cut := 0; cut <= len(line); cut++ {
		t.Run(fmt.Sprintf("cut=%d", cut), func(t *testing.T) {
			got := collect(t, line[:cut], line[cut:])
			if len(got) != 1 || got[0].Type != EventDone {
				t.Fatalf("events = %+v; want one done", got)
			}
		})
	}
}

func TestReadEvents_ByteAtATime(t *testing.T) {
	t.Parallel()

	body := `data: {"type":"message","data":"hi"}` + "\r\n" + `data: {"type":"done","data":null}` + "\n"
	chunks := make([]string, 0, len(body))
	for i := range len(body) {
		chunks = append(chunks, body[i:i+1])
	}
	got := collect(t, chunks...)
	if len(got) != 2 || got[0].Type != EventMessage || got[1].Type != EventDone {
		t.Fatalf("events = %+v", got)
	}
}

func TestReadEvents_MalformedLineSkipped(t *testing.T) {
	t.Parallel()

	got := collect(t, "data: {bad\n"+`data: {"type":"message","data":"hi"}`+"\n")
	if len(got) != 1 || got[0].Type != EventMessage || string(got[0].Data) != `"hi"` {
		t.Fatalf("events = %+v", got)
	}
}

func TestReadEvents_IgnoresNonDataLines(t *testing.T) {
	t.Parallel()

	got := collect(t, ": comment\nevent: x\n\nid: 4\ndata:{\"type\":\"done\"}\n"+`data: {"type":"done"}`+"\r\n")
	if len(got) != 1 {
		t.Fatalf("events = %+v; want 1", got)
	}
}

func TestReadEvents_OrderAndMultibyte(t *testing.T) {
	t.Parallel()

	body := `data: {"type":"message","data":"héllo 世界"}` + "\n" + `data: {"type":"done"}` + "\n"
	// Split inside the multi-byte rune.
	cut := strings.Index(body, "世") + 1
	got := collect(t, body[:cut], body[cut:])
	if len(got) != 2 {
		t.Fatalf("events = %+v", got)
	}
	if string(got[0].Data) != `"héllo 世界"` || got[1].Type != EventDone {
		t.Errorf("events = %+v", got)
	}
}

func TestReadEvents_TrailingLineAtEOF(t *testing.T) {
	t.Parallel()

	got := collect(t, `data: {"type":"done"}`)
	if len(got) != 1 || got[0].Type != EventDone {
		t.Fatalf("events = %+v", got)
	}
}

func TestReadEvents_StopsWhenEmitDeclines(t *testing.T) {
	t.Parallel()

	var n int
	err := readEvents(strings.NewReader(strings.Repeat(`data: {"type":"message"}`+"\n", 5)), func() {}, func(Event) bool {
		n++
		return false
	})
	if err != nil || n != 1 {
		t.Errorf("n = %d err = %v; want 1, nil", n, err)
	}
}

func TestLineBuffer_RejectsOversizedLine(t *testing.T) {
	t.Parallel()

	var lb lineBuffer
	if _, err := lb.write(make([]byte, maxLineSize+1)); !errors.Is(err, errLineTooLong) {
		t.Errorf("err = %v; want errLineTooLong", err)
	}
}

func TestSubscribe_DeliversEventsAndEnds(t *testing.T) {
	t.Parallel()

	f := newFakeServer(t)
	var gotQuery, gotAccept, gotCache, gotSession string
	f.stream = func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		gotAccept = r.Header.Get("Accept")
		gotCache = r.Header.Get("Cache-Control")
		gotSession = r.Header.Get(headerSessionID)
		w.Header().Set("Content-Type", contentTypeSSE)
		fl := w.(http.Flusher)
		fmt.Fprint(w, `data: {"type":"message","data":"Hel`)
		fl.Flush()
		fmt.Fprint(w, "lo\"}\n"+`data: {"type":"done"}`+"\n")
		fl.Flush()
	}
	f.issue = "sess"
	c := newTestClient(f, nil)
	if _, err := c.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}

	sub, err := c.Subscribe(context.Background(), "t 1")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	var got []Event
	for ev := range sub.Events() {
		got = append(got, ev)
	}
	<-sub.Done()

	if err := sub.Err(); err != nil {
		t.Errorf("Err = %v; want nil on normal end", err)
	}
	if len(got) != 2 || string(got[0].Data) != `"Hello"` || got[1].Type != EventDone {
		t.Errorf("events = %+v", got)
	}
	if gotQuery != "stream=true&thread=t+1" {
		t.Errorf("query = %q", gotQuery)
	}
	if gotAccept != contentTypeSSE || gotCache != "no-cache" || gotSession != "sess" {
		t.Errorf("headers accept=%q cache=%q session=%q", gotAccept, gotCache, gotSession)
	}
	sub.Cancel()
	sub.Cancel()
}

func TestSubscribe_NonSuccessStatus(t *testing.T) {
	t.Parallel()

	f := newFakeServer(t)
	f.stream = func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}
	c := newTestClient(f, nil)

	_, err := c.Subscribe(context.Background(), "t1")
	var te *TransportError
	if !errors.As(err, &te) || te.StatusCode != http.StatusForbidden {
		t.Fatalf("err = %v", err)
	}
}

// openStream serves a stream that writes one event and then blocks until
// the client goes away.
func openStream(w http.ResponseWriter, r *http.Request) {
	fmt.Fprint(w, `data: {"type":"message","data":"x"}`+"\n")
	w.(http.Flusher).Flush()
	<-r.Context().Done()
}

func TestSubscribe_CancelEndsWithoutError(t *testing.T) {
	t.Parallel()

	f := newFakeServer(t)
	f.stream = openStream
	c := newTestClient(f, nil)

	sub, err := c.Subscribe(context.Background(), "t1")
	if err != nil {
		t.Fatal(err)
	}
	<-sub.Events()
	sub.Cancel()
	sub.Cancel()

	select {
	case <-sub.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("subscription did not end after Cancel")
	}
	if err := sub.Err(); err != nil {
		t.Errorf("Err = %v; want nil after cancel", err)
	}
}

func TestSubscribe_IdleTimeout(t *testing.T) {
	t.Parallel()

	f := newFakeServer(t)
	f.stream = openStream
	c := New(f.URL(), WithHTTPClient(f.ts.Client()), WithStreamIdleTimeout(100*time.Millisecond))

	sub, err := c.Subscribe(context.Background(), "t1")
	if err != nil {
		t.Fatal(err)
	}
	for range sub.Events() {
	}
	if !errors.Is(sub.Err(), ErrStreamIdle) {
		t.Errorf("Err = %v; want ErrStreamIdle", sub.Err())
	}
}

func TestSubscribeFunc_CancelNeverReportsError(t *testing.T) {
	t.Parallel()

	f := newFakeServer(t)
	f.stream = openStream
	c := newTestClient(f, nil)

	events := make(chan Event, 4)
	errs := make(chan error, 4)
	cancel := c.SubscribeFunc(context.Background(), "t1",
		func(ev Event) { events <- ev },
		func(err error) { errs <- err },
	)

	select {
	case <-events:
	case <-time.After(5 * time.Second):
		t.Fatal("no event delivered")
	}
	cancel()
	cancel()

	select {
	case err := <-errs:
		t.Errorf("onError called after cancel: %v", err)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestSubscribeFunc_CancelFromOnEvent(t *testing.T) {
	t.Parallel()

	f := newFakeServer(t)
	f.stream = func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `data: {"type":"message","data":"hi"}`+"\n"+`data: {"type":"done","data":null}`+"\n")
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}
	c := newTestClient(f, nil)

	returned := make(chan struct{})
	var cancel func()
	ready := make(chan struct{})
	cancel = c.SubscribeFunc(context.Background(), "t1",
		func(ev Event) {
			<-ready
			if ev.Type == EventDone {
				cancel()
				close(returned)
			}
		},
		func(err error) { t.Errorf("onError: %v", err) },
	)
	close(ready)

	select {
	case <-returned:
	case <-time.After(2 * time.Second):
		t.Fatal("cancel called from onEvent did not return")
	}
	// A second cancel from outside waits for the delivery goroutine.
	cancel()
}

func TestSubscribeFunc_CancelFromOnError(t *testing.T) {
	t.Parallel()

	f := newFakeServer(t)
	f.stream = func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}
	c := newTestClient(f, nil)

	returned := make(chan struct{})
	var cancel func()
	ready := make(chan struct{})
	cancel = c.SubscribeFunc(context.Background(), "t1", func(Event) {}, func(error) {
		<-ready
		cancel()
		close(returned)
	})
	close(ready)

	select {
	case <-returned:
	case <-time.After(2 * time.Second):
		t.Fatal("cancel called from onError did not return")
	}
}

func TestSubscribeFunc_ReportsOpenFailure(t *testing.T) {
	t.Parallel()

	f := newFakeServer(t)
	f.stream = func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}
	c := newTestClient(f, nil)

	errs := make(chan error, 1)
	cancel := c.SubscribeFunc(context.Background(), "t1", func(Event) {}, func(err error) { errs <- err })
	defer cancel()

	select {
	case err := <-errs:
		var te *TransportError
		if !errors.As(err, &te) {
			t.Errorf("err = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("onError not called")
	}
}
