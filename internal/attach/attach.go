// ABOUTME: Loads local files as message attachments (type, MIME type, base64 payload)
// ABOUTME: Images are validated by decoding their header; other files can be uploaded as resources

package attach

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif"  // register decoder
	_ "image/jpeg" // register decoder
	_ "image/png"  // register decoder
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	_ "golang.org/x/image/bmp"  // register decoder
	_ "golang.org/x/image/webp" // register decoder

	"github.com/mauromedda/nanobot-go/internal/mcp"
)

// MaxSize caps the size of a file loaded as an attachment.
const MaxSize = 20 << 20

// Attachment types understood by the run tool.
const (
	TypeImage = "image"
	TypeFile  = "file"
)

var (
	ErrTooLarge     = errors.New("attach: file exceeds size limit")
	ErrInvalidImage = errors.New("attach: file is not a decodable image")
)

// File is a loaded attachment.
type File struct {
	Name     string
	MimeType string
	Data     []byte
	// Width and Height are set for images.
	Width, Height int
}

// IsImage reports whether the file carries an image MIME type.
func (f File) IsImage() bool {
	return strings.HasPrefix(f.MimeType, "image/")
}

// Attachment returns the inline wire form of the file.
func (f File) Attachment() mcp.Attachment {
	typ := TypeFile
	if f.IsImage() {
		typ = TypeImage
	}
	return mcp.Attachment{
		Type:     typ,
		Data:     base64.StdEncoding.EncodeToString(f.Data),
		MimeType: f.MimeType,
	}
}

// Load reads path and classifies it.
func Load(path string) (File, error) {
	fh, err := os.Open(path)
	if err != nil {
		return File{}, fmt.Errorf("opening attachment: %w", err)
	}
	defer fh.Close()

	data, err := io.ReadAll(io.LimitReader(fh, MaxSize+1))
	if err != nil {
		return File{}, fmt.Errorf("reading attachment: %w", err)
	}
	if len(data) > MaxSize {
		return File{}, fmt.Errorf("%w: %s", ErrTooLarge, path)
	}
	return FromBytes(filepath.Base(path), data)
}

// FromBytes classifies data named name. The MIME type comes from content
// sniffing, falling back to the extension when sniffing is inconclusive.
func FromBytes(name string, data []byte) (File, error) {
	f := File{Name: name, Data: data, MimeType: detectType(name, data)}
	if !f.IsImage() {
		return f, nil
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return File{}, fmt.Errorf("%w: %s: %v", ErrInvalidImage, name, err)
	}
	f.Width, f.Height = cfg.Width, cfg.Height
	if f.MimeType == "application/octet-stream" || !strings.HasSuffix(f.MimeType, format) {
		f.MimeType = "image/" + format
	}
	return f, nil
}

func detectType(name string, data []byte) string {
	sniffed := http.DetectContentType(data)
	if i := strings.IndexByte(sniffed, ';'); i >= 0 {
		sniffed = sniffed[:i]
	}
	if sniffed != "application/octet-stream" && sniffed != "text/plain" {
		return sniffed
	}
	if byExt := mime.TypeByExtension(strings.ToLower(filepath.Ext(name))); byExt != "" {
		if i := strings.IndexByte(byExt, ';'); i >= 0 {
			byExt = byExt[:i]
		}
		return byExt
	}
	return sniffed
}

// ResourceCreator uploads a payload and returns its URI. *mcp.Client
// satisfies it.
type ResourceCreator interface {
	CreateResource(ctx context.Context, name, data, mimeType string) (string, error)
}

// Upload stores f on the server and returns the resource URI.
func Upload(ctx context.Context, rc ResourceCreator, f File) (string, error) {
	uri, err := rc.CreateResource(ctx, f.Name, base64.StdEncoding.EncodeToString(f.Data), f.MimeType)
	if err != nil {
		return "", fmt.Errorf("uploading %s: %w", f.Name, err)
	}
	return uri, nil
}
