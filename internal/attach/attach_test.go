// ABOUTME: Tests for attachment loading and classification
// ABOUTME: Encodes small images in-process; uses a fake resource creator for uploads

package attach

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"golang.org/x/image/bmp"
)

func testImage() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 3, 2))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	return img
}

func TestFromBytes_PNG(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	if err := png.Encode(&buf, testImage()); err != nil {
		t.Fatal(err)
	}

	f, err := FromBytes("shot.png", buf.Bytes())
	if err != nil {
		t.Fatalf("FromBytes: %v", err)
	}
	if f.MimeType != "image/png" || f.Width != 3 || f.Height != 2 {
		t.Errorf("file = %s %dx%d", f.MimeType, f.Width, f.Height)
	}

	a := f.Attachment()
	if a.Type != TypeImage || a.MimeType != "image/png" {
		t.Errorf("attachment = %+v", a)
	}
	if decoded, _ := base64.StdEncoding.DecodeString(a.Data); !bytes.Equal(decoded, buf.Bytes()) {
		t.Error("payload does not round trip")
	}
}

func TestFromBytes_BMP(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	if err := bmp.Encode(&buf, testImage()); err != nil {
		t.Fatal(err)
	}

	f, err := FromBytes("pic.bmp", buf.Bytes())
	if err != nil {
		t.Fatalf("FromBytes: %v", err)
	}
	if f.MimeType != "image/bmp" || f.Width != 3 {
		t.Errorf("file = %s %dx%d", f.MimeType, f.Width, f.Height)
	}
}

func TestFromBytes_CorruptImage(t *testing.T) {
	t.Parallel()

	data := []byte("\x89PNG\r\n\x1a\nnot really")
	if _, err := FromBytes("bad.png", data); !errors.Is(err, ErrInvalidImage) {
		t.Errorf("err = %v; want ErrInvalidImage", err)
	}
}

func TestFromBytes_TextFile(t *testing.T) {
	t.Parallel()

	f, err := FromBytes("notes.md", []byte("# hello\n"))
	if err != nil {
		t.Fatal(err)
	}
	if f.IsImage() {
		t.Error("text classified as image")
	}
	if a := f.Attachment(); a.Type != TypeFile {
		t.Errorf("type = %q", a.Type)
	}
}

func TestFromBytes_ExtensionFallback(t *testing.T) {
	t.Parallel()

	f, err := FromBytes("data.json", []byte(`{"a":1}`))
	if err != nil {
		t.Fatal(err)
	}
	if f.MimeType != "application/json" {
		t.Errorf("MimeType = %q", f.MimeType)
	}
}

func TestLoad(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	if err := os.WriteFile(path, []byte("hi"), 0o600); err != nil {
		t.Fatal(err)
	}

	f, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if f.Name != "a.txt" || string(f.Data) != "hi" {
		t.Errorf("file = %+v", f)
	}

	if _, err := Load(filepath.Join(dir, "missing")); err == nil {
		t.Error("expected error for missing file")
	}
}

type fakeCreator struct {
	name, data, mime string
}

func (f *fakeCreator) CreateResource(_ context.Context, name, data, mimeType string) (string, error) {
	f.name, f.data, f.mime = name, data, mimeType
	return "nanobot://resource/1", nil
}

func TestUpload(t *testing.T) {
	t.Parallel()

	fc := &fakeCreator{}
	uri, err := Upload(context.Background(), fc, File{Name: "a.txt", MimeType: "text/plain", Data: []byte("hi")})
	if err != nil {
		t.Fatal(err)
	}
	if uri != "nanobot://resource/1" || fc.name != "a.txt" || fc.data != "aGk=" || fc.mime != "text/plain" {
		t.Errorf("uri = %q creator = %+v", uri, fc)
	}
}
