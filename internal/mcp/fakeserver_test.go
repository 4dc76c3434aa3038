// ABOUTME: In-process fake nanobot server for protocol client tests
// ABOUTME: Records every JSON-RPC call and lets tests script per-method replies and stream bodies

package mcp

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

type recordedCall struct {
	Method    string
	SessionID string
	Params    map[string]any
	Raw       []byte
}

type fakeServer struct {
	t  *testing.T
	ts *httptest.Server

	mu sync.Mutex
	// issue is the session id returned on initialize; "" sends no header.
	issue string
	// handlers override the default reply for a method. Returning a status
	// other than 200 writes that status with an empty body.
	handlers map[string]func(call recordedCall) (status int, result any)
	// stream serves GET requests with the stream query.
	stream func(w http.ResponseWriter, r *http.Request)
	calls  []recordedCall
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()
	f := &fakeServer{t: t, handlers: map[string]func(recordedCall) (int, any){}}
	mux := http.NewServeMux()
	mux.HandleFunc("/mcp/ui", f.serve)
	f.ts = httptest.NewServer(mux)
	t.Cleanup(f.ts.Close)
	return f
}

func (f *fakeServer) URL() string { return f.ts.URL }

func (f *fakeServer) handle(method string, fn func(call recordedCall) (int, any)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[method] = fn
}

func (f *fakeServer) recorded() []recordedCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]recordedCall(nil), f.calls...)
}

func (f *fakeServer) methods() []string {
	var out []string
	for _, c := range f.recorded() {
		out = append(out, c.Method)
	}
	return out
}

func (f *fakeServer) serve(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet {
		f.mu.Lock()
		stream := f.stream
		f.mu.Unlock()
		if stream == nil {
			http.Error(w, "no stream", http.StatusMethodNotAllowed)
			return
		}
		stream(w, r)
		return
	}

	var req struct {
		ID     string         `json:"id"`
		Method string         `json:"method"`
		Params map[string]any `json:"params"`
	}
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := json.Unmarshal(raw, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	call := recordedCall{
		Method:    req.Method,
		SessionID: r.Header.Get(headerSessionID),
		Params:    req.Params,
		Raw:       raw,
	}

	f.mu.Lock()
	f.calls = append(f.calls, call)
	handler := f.handlers[req.Method]
	issue := f.issue
	f.mu.Unlock()

	status, result := http.StatusOK, any(map[string]any{})
	if handler != nil {
		status, result = handler(call)
	} else if req.Method == "initialize" {
		result = map[string]any{
			"protocolVersion": ProtocolVersion,
			"serverInfo":      map[string]any{"name": "fake", "version": "0.1"},
		}
	}

	if req.Method == "initialize" && issue != "" {
		w.Header().Set(headerSessionID, issue)
	}
	if status != http.StatusOK {
		w.WriteHeader(status)
		return
	}

	w.Header().Set("Content-Type", contentTypeJSON)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"jsonrpc": "2.0",
		"id":      req.ID,
		"result":  result,
	})
}

// textResult wraps s as a tool result with a single text content item.
func textResult(s string) map[string]any {
	return map[string]any{
		"content": []map[string]any{{"type": "text", "text": s}},
	}
}
