// ABOUTME: Closed tagged variant for message content blocks
// ABOUTME: Text, Image, ToolCall, ToolResult, and Resource blocks with loose wire-shape decoding

package content

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mitchellh/mapstructure"
)

// Kind identifies the kind of content block on the wire.
type Kind string

const (
	KindText       Kind = "text"
	KindImage      Kind = "image"
	KindToolCall   Kind = "tool_use"
	KindToolResult Kind = "tool_result"
	KindResource   Kind = "resource"
)

// ErrUnknownKind is returned when a wire block carries an unrecognized type tag.
var ErrUnknownKind = errors.New("content: unknown block kind")

// Block is one typed unit of message content. The set of implementations is
// closed: Text, Image, ToolCall, ToolResult, Resource.
type Block interface {
	Kind() Kind
	isBlock()
}

// Text carries (possibly incremental) text.
type Text struct {
	Text string
}

// Image carries an inline base64 payload.
type Image struct {
	Data     string
	MimeType string
}

// ToolCall is a tool invocation requested by the assistant.
type ToolCall struct {
	Name  string
	Input map[string]any
}

// ToolResult is the structured output of a tool invocation.
type ToolResult struct {
	Name    string
	Output  any
	IsError bool
}

// Resource references a server resource, optionally with an inline payload.
type Resource struct {
	URI      string
	MimeType string
	Data     string
	Text     string
}

func (Text) Kind() Kind       { return KindText }
func (Image) Kind() Kind      { return KindImage }
func (ToolCall) Kind() Kind   { return KindToolCall }
func (ToolResult) Kind() Kind { return KindToolResult }
func (Resource) Kind() Kind   { return KindResource }

func (Text) isBlock()       {}
func (Image) isBlock()      {}
func (ToolCall) isBlock()   {}
func (ToolResult) isBlock() {}
func (Resource) isBlock()   {}

// wireBlock is the loose shape blocks arrive in. Tool and resource fields
// appear under two spellings: the server history uses name/input/content/uri,
// streamed events use toolName/toolInput/toolResult/resourceUri.
type wireBlock struct {
	Type        string         `mapstructure:"type"`
	Text        string         `mapstructure:"text"`
	Data        string         `mapstructure:"data"`
	Blob        string         `mapstructure:"blob"`
	MimeType    string         `mapstructure:"mimeType"`
	Name        string         `mapstructure:"name"`
	ToolName    string         `mapstructure:"toolName"`
	Input       map[string]any `mapstructure:"input"`
	ToolInput   map[string]any `mapstructure:"toolInput"`
	Content     any            `mapstructure:"content"`
	ToolResult  any            `mapstructure:"toolResult"`
	Output      any            `mapstructure:"output"`
	IsError     bool           `mapstructure:"isError"`
	URI         string         `mapstructure:"uri"`
	ResourceURI string         `mapstructure:"resourceUri"`
}

// Decode converts a loosely typed value (as produced by encoding/json into
// any) into a Block. A bare string decodes to Text; a map without a type tag
// is treated as text.
func Decode(v any) (Block, error) {
	switch raw := v.(type) {
	case nil:
		return nil, errors.New("content: nil block")
	case string:
		return Text{Text: raw}, nil
	case map[string]any:
		return decodeMap(raw)
	default:
		return nil, fmt.Errorf("content: unsupported block value %T", v)
	}
}

// DecodeJSON decodes a JSON-encoded block.
func DecodeJSON(data []byte) (Block, error) {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("content: parsing block: %w", err)
	}
	return Decode(v)
}

// DecodeList decodes a history content field: either an array of blocks or
// any scalar, which becomes a single text block. Blocks that fail to decode
// are skipped; the returned error joins their failures and the remaining
// blocks are still returned.
func DecodeList(v any) ([]Block, error) {
	items, ok := v.([]any)
	if !ok {
		if v == nil {
			return nil, nil
		}
		if s, isString := v.(string); isString {
			return []Block{Text{Text: s}}, nil
		}
		return []Block{Text{Text: fmt.Sprint(v)}}, nil
	}

	blocks := make([]Block, 0, len(items))
	var errs []error
	for i, item := range items {
		b, err := Decode(item)
		if err != nil {
			errs = append(errs, fmt.Errorf("block %d: %w", i, err))
			continue
		}
		blocks = append(blocks, b)
	}
	return blocks, errors.Join(errs...)
}

func decodeMap(m map[string]any) (Block, error) {
	var w wireBlock
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &w,
	})
	if err != nil {
		return nil, fmt.Errorf("content: building decoder: %w", err)
	}
	if err := dec.Decode(m); err != nil {
		return nil, fmt.Errorf("content: decoding block: %w", err)
	}

	switch Kind(strings.ToLower(w.Type)) {
	case KindText, "":
		return Text{Text: w.Text}, nil
	case KindImage:
		return Image{Data: firstNonEmpty(w.Data, w.Blob), MimeType: w.MimeType}, nil
	case KindToolCall, "tool_call":
		return ToolCall{Name: firstNonEmpty(w.ToolName, w.Name), Input: firstMap(w.ToolInput, w.Input)}, nil
	case KindToolResult:
		return ToolResult{Name: firstNonEmpty(w.ToolName, w.Name), Output: firstValue(w.ToolResult, w.Content, w.Output), IsError: w.IsError}, nil
	case KindResource:
		return Resource{
			URI:      firstNonEmpty(w.ResourceURI, w.URI),
			MimeType: w.MimeType,
			Data:     firstNonEmpty(w.Data, w.Blob),
			Text:     w.Text,
		}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, w.Type)
	}
}

// Encode returns the wire map for a block, using the streamed-event field names.
func Encode(b Block) map[string]any {
	out := map[string]any{"type": string(b.Kind())}
	switch v := b.(type) {
	case Text:
		out["text"] = v.Text
	case Image:
		out["data"] = v.Data
		out["mimeType"] = v.MimeType
	case ToolCall:
		out["toolName"] = v.Name
		if v.Input != nil {
			out["toolInput"] = v.Input
		}
	case ToolResult:
		out["toolName"] = v.Name
		out["toolResult"] = v.Output
		if v.IsError {
			out["isError"] = true
		}
	case Resource:
		out["resourceUri"] = v.URI
		if v.MimeType != "" {
			out["mimeType"] = v.MimeType
		}
		if v.Data != "" {
			out["data"] = v.Data
		}
		if v.Text != "" {
			out["text"] = v.Text
		}
	}
	return out
}

// List is an ordered sequence of blocks with a JSON encoding.
type List []Block

// MarshalJSON encodes the list as an array of wire maps.
func (l List) MarshalJSON() ([]byte, error) {
	out := make([]map[string]any, len(l))
	for i, b := range l {
		out[i] = Encode(b)
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes an array of wire blocks.
func (l *List) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	blocks, err := DecodeList(raw)
	if err != nil {
		return err
	}
	*l = blocks
	return nil
}

// PlainText concatenates the text of all Text blocks.
func PlainText(blocks []Block) string {
	var sb strings.Builder
	for _, b := range blocks {
		if t, ok := b.(Text); ok {
			sb.WriteString(t.Text)
		}
	}
	return sb.String()
}

// AppendStreamed appends b to blocks, concatenating onto the trailing block
// when both are text.
func AppendStreamed(blocks []Block, b Block) []Block {
	next, isText := b.(Text)
	if isText && len(blocks) > 0 {
		if last, ok := blocks[len(blocks)-1].(Text); ok {
			blocks[len(blocks)-1] = Text{Text: last.Text + next.Text}
			return blocks
		}
	}
	return append(blocks, b)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstMap(values ...map[string]any) map[string]any {
	for _, v := range values {
		if v != nil {
			return v
		}
	}
	return nil
}

func firstValue(values ...any) any {
	for _, v := range values {
		if v != nil {
			return v
		}
	}
	return nil
}
