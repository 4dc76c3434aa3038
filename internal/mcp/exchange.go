// ABOUTME: Transport exchange: one JSON-RPC request/response over HTTP POST
// ABOUTME: Attaches and captures Mcp-Session-Id; maps HTTP and RPC failures to typed errors

package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	headerSessionID = "Mcp-Session-Id"
	headerAccept    = "Accept"
	acceptValue     = "application/json, text/event-stream"
	contentTypeJSON = "application/json"
	contentTypeSSE  = "text/event-stream"

	// maxResponseSize caps a single JSON-RPC response body.
	maxResponseSize = 16 << 20
)

// Reply is the outcome of one exchange. SessionID is the Mcp-Session-Id the
// server returned, or "" when the response carried none.
type Reply struct {
	Result    json.RawMessage
	SessionID string
}

// Exchanger sends single JSON-RPC requests to the protocol endpoint. It holds
// no session state: the caller passes the current session id on every call
// and decides what to do with the one returned. It never retries.
type Exchanger struct {
	endpoint   string
	httpClient *http.Client
	authToken  string
	timeout    time.Duration
	newID      func() string
}

// NewExchanger creates an exchanger posting to endpoint.
func NewExchanger(endpoint string, httpClient *http.Client, authToken string) *Exchanger {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Exchanger{
		endpoint:   endpoint,
		httpClient: httpClient,
		authToken:  authToken,
		newID:      uuid.NewString,
	}
}

// Exchange posts method/params and returns the verbatim result. The returned
// Reply carries the response session header even when err is non-nil, so the
// caller can persist a session issued alongside a failure.
func (x *Exchanger) Exchange(ctx context.Context, sessionID, method string, params any) (Reply, error) {
	if x.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, x.timeout)
		defer cancel()
	}

	req := Request{
		JSONRPC: jsonRPCVersion,
		ID:      x.newID(),
		Method:  method,
		Params:  params,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return Reply{}, fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, x.endpoint, bytes.NewReader(body))
	if err != nil {
		return Reply{}, fmt.Errorf("creating HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", contentTypeJSON)
	httpReq.Header.Set(headerAccept, acceptValue)
	x.setHeaders(httpReq, sessionID)

	httpResp, err := x.httpClient.Do(httpReq)
	if err != nil {
		return Reply{}, fmt.Errorf("HTTP POST %s: %w", method, err)
	}
	defer httpResp.Body.Close()

	reply := Reply{SessionID: httpResp.Header.Get(headerSessionID)}

	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		// Drain body to allow connection reuse.
		_, _ = io.Copy(io.Discard, io.LimitReader(httpResp.Body, maxResponseSize))
		return reply, &TransportError{StatusCode: httpResp.StatusCode, Status: httpResp.Status}
	}

	var resp Response
	if err := json.NewDecoder(io.LimitReader(httpResp.Body, maxResponseSize)).Decode(&resp); err != nil {
		return reply, fmt.Errorf("decoding %s response: %w", method, err)
	}

	if err := correlate(req.ID, resp.ID); err != nil {
		return reply, err
	}
	if resp.Error != nil {
		return reply, &ProtocolError{Code: resp.Error.Code, Message: resp.Error.Message, Data: resp.Error.Data}
	}

	reply.Result = resp.Result
	return reply, nil
}

// setHeaders sets auth and session headers on an outgoing request.
func (x *Exchanger) setHeaders(req *http.Request, sessionID string) {
	if x.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+x.authToken)
	}
	if sessionID != "" {
		req.Header.Set(headerSessionID, sessionID)
	}
}

// correlate checks that a response id, when present, echoes the request id.
func correlate(reqID string, respID json.RawMessage) error {
	raw := strings.TrimSpace(string(respID))
	if raw == "" || raw == "null" {
		return nil
	}
	var got string
	if err := json.Unmarshal(respID, &got); err != nil || got != reqID {
		return fmt.Errorf("%w: sent %q, got %s", ErrIDMismatch, reqID, raw)
	}
	return nil
}
