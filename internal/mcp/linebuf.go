// ABOUTME: Incremental newline framing for the event stream body
// ABOUTME: Buffers partial lines across reads; decodes "data: " lines as JSON events

package mcp

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"

	"github.com/mauromedda/nanobot-go/internal/log"
)

// eventPrefix marks an event-bearing line.
const eventPrefix = "data: "

// maxLineSize caps a single buffered line at 1MB.
const maxLineSize = 1 << 20

var errLineTooLong = errors.New("mcp: event stream line exceeds 1MB")

// lineBuffer accumulates raw bytes and releases only newline-terminated
// lines. Splitting on the '\n' byte is safe for UTF-8: the byte never occurs
// inside a multi-byte sequence.
type lineBuffer struct {
	buf []byte
}

// write appends chunk and returns every line completed by it, without the
// terminator (a trailing '\r' is stripped as well).
func (b *lineBuffer) write(chunk []byte) ([]string, error) {
	b.buf = append(b.buf, chunk...)

	var lines []string
	for {
		i := bytes.IndexByte(b.buf, '\n')
		if i < 0 {
			break
		}
		lines = append(lines, string(bytes.TrimSuffix(b.buf[:i], []byte{'\r'})))
		b.buf = b.buf[i+1:]
	}

	if len(b.buf) > maxLineSize {
		return lines, errLineTooLong
	}
	// Compact so the backing array does not grow without bound.
	if len(b.buf) == 0 {
		b.buf = b.buf[:0:0]
	}
	return lines, nil
}

// flush returns the unterminated remainder once the stream has ended.
func (b *lineBuffer) flush() (string, bool) {
	if len(b.buf) == 0 {
		return "", false
	}
	line := string(bytes.TrimSuffix(b.buf, []byte{'\r'}))
	b.buf = nil
	return line, true
}

// parseEventLine decodes one line. Lines without the event prefix and lines
// whose payload is not valid JSON are skipped: a frame split mid-line on the
// server side must not kill the subscription.
func parseEventLine(line string) (Event, bool) {
	payload, ok := strings.CutPrefix(line, eventPrefix)
	if !ok {
		return Event{}, false
	}

	var ev Event
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		log.Debug("dropping malformed stream line: %v", err)
		return Event{}, false
	}
	return ev, true
}
