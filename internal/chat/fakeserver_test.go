// ABOUTME: Scriptable nanobot server for chat store tests
// ABOUTME: Answers the chat tools over JSON-RPC and feeds stream lines from a channel

package chat

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/mauromedda/nanobot-go/internal/mcp"
	"github.com/mauromedda/nanobot-go/internal/securestore"
)

type nanobotServer struct {
	ts *httptest.Server

	mu        sync.Mutex
	agents    string
	threads   string
	history   map[string]string
	runErr    bool
	deleteErr bool
	runs      []map[string]any
	deleted   []string
	// lines are written to the open stream, one per receive.
	lines chan string
	// streamOpen is signalled each time a stream is opened.
	streamOpen chan string
	quit       chan struct{}
}

func newNanobotServer(t *testing.T) *nanobotServer {
	t.Helper()
	n := &nanobotServer{
		agents:     `[]`,
		threads:    `[]`,
		history:    map[string]string{},
		lines:      make(chan string, 16),
		streamOpen: make(chan string, 4),
		quit:       make(chan struct{}),
	}
	n.ts = httptest.NewServer(http.HandlerFunc(n.serve))
	t.Cleanup(n.ts.Close)
	// Runs before Close so streams left open by a test end first.
	t.Cleanup(func() { close(n.quit) })
	return n
}

func (n *nanobotServer) client() *mcp.Client {
	return mcp.New(n.ts.URL, mcp.WithHTTPClient(n.ts.Client()), mcp.WithStore(securestore.NewMemory()))
}

func (n *nanobotServer) serve(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet {
		n.serveStream(w, r)
		return
	}

	var req struct {
		ID     string `json:"id"`
		Method string `json:"method"`
		Params struct {
			Name      string         `json:"name"`
			Arguments map[string]any `json:"arguments"`
		} `json:"params"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.Header().Set("Mcp-Session-Id", "sess-1")
	var result any = map[string]any{}

	n.mu.Lock()
	switch {
	case req.Method == "initialize":
		result = map[string]any{"protocolVersion": mcp.ProtocolVersion}
	case req.Method != "tools/call":
	case req.Params.Name == mcp.ToolListAgents:
		result = text(n.agents)
	case req.Params.Name == mcp.ToolListThreads:
		result = text(n.threads)
	case req.Params.Name == mcp.ToolGetThread:
		id, _ := req.Params.Arguments["thread_id"].(string)
		result = text(fmt.Sprintf(`{"messages":%s}`, orEmpty(n.history[id])))
	case req.Params.Name == mcp.ToolRun:
		n.runs = append(n.runs, req.Params.Arguments)
		if n.runErr {
			n.mu.Unlock()
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		result = text(`{"accepted":true}`)
	case req.Params.Name == mcp.ToolDeleteThread:
		id, _ := req.Params.Arguments["thread_id"].(string)
		n.deleted = append(n.deleted, id)
		if n.deleteErr {
			n.mu.Unlock()
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
	}
	n.mu.Unlock()

	_ = json.NewEncoder(w).Encode(map[string]any{"jsonrpc": "2.0", "id": req.ID, "result": result})
}

func (n *nanobotServer) serveStream(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.WriteHeader(http.StatusOK)
	fl := w.(http.Flusher)
	fl.Flush()
	n.streamOpen <- r.URL.Query().Get("thread")

	for {
		select {
		case <-r.Context().Done():
			return
		case <-n.quit:
			return
		case line, ok := <-n.lines:
			if !ok {
				return
			}
			fmt.Fprint(w, line+"\n")
			fl.Flush()
		}
	}
}

func (n *nanobotServer) set(fn func(n *nanobotServer)) {
	n.mu.Lock()
	defer n.mu.Unlock()
	fn(n)
}

func (n *nanobotServer) runArgs() []map[string]any {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]map[string]any(nil), n.runs...)
}

func text(s string) map[string]any {
	return map[string]any{"content": []map[string]any{{"type": "text", "text": s}}}
}

func orEmpty(s string) string {
	if s == "" {
		return "[]"
	}
	return s
}
