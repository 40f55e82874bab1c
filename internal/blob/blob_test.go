package blob

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
)

func testPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, 0, color.RGBA{R: 255, A: 255})
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func TestParseDataURI(t *testing.T) {
	raw := testPNG(t, 4, 3)
	uri := "data:image/png;base64," + base64.StdEncoding.EncodeToString(raw)

	img, err := ParseDataURI(uri)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if img.Type != "png" || img.ContentType != "image/png" {
		t.Errorf("unexpected type %q / %q", img.Type, img.ContentType)
	}
	if !bytes.Equal(img.Data, raw) {
		t.Error("decoded bytes differ from input")
	}
	if img.Width != 4 || img.Height != 3 || img.Format != "png" {
		t.Errorf("unexpected config %dx%d %s", img.Width, img.Height, img.Format)
	}
}

func TestParseDataURI_Invalid(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"missing base64 marker", "data:image/png,abcd"},
		{"missing payload", "data:image/png;base64,"},
		{"not an image type", "data:text/plain;base64,aGVsbG8="},
		{"not base64", "data:image/png;base64,!!!not-base64!!!"},
		{"not image bytes", "data:image/png;base64," + base64.StdEncoding.EncodeToString([]byte("hello world"))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseDataURI(tt.in)
			if !errors.Is(err, ErrInvalidDataURI) {
				t.Errorf("expected ErrInvalidDataURI, got %v", err)
			}
		})
	}
}

func TestDecodeBase64Image(t *testing.T) {
	raw := testPNG(t, 2, 2)
	enc := base64.StdEncoding.EncodeToString(raw)

	for _, in := range []string{enc, "data:image/png;base64," + enc} {
		data, mime, err := DecodeBase64Image(in)
		if err != nil {
			t.Fatalf("unexpected error for %.30q: %v", in, err)
		}
		if mime != "image/png" {
			t.Errorf("expected image/png, got %s", mime)
		}
		if !bytes.Equal(data, raw) {
			t.Error("decoded bytes differ")
		}
	}
}

func TestIsDataURI(t *testing.T) {
	if !IsDataURI("data:image/png;base64,xx") {
		t.Error("expected data URI")
	}
	if IsDataURI("https://example.com/a.jpg") {
		t.Error("URL reported as data URI")
	}
}

func TestObjectPath(t *testing.T) {
	now := time.UnixMilli(1700000000123)
	p := ObjectPath("user-1", ".PNG", now)

	re := regexp.MustCompile(`^user-1/1700000000123-[0-9a-f]{16}\.png$`)
	if !re.MatchString(p) {
		t.Errorf("unexpected path %q", p)
	}

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		p := ObjectPath("user-1", "png", now)
		if seen[p] {
			t.Fatalf("duplicate path %q", p)
		}
		seen[p] = true
	}
}

func TestThumbnail(t *testing.T) {
	thumb, err := Thumbnail(testPNG(t, 1000, 500), 256)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(thumb))
	if err != nil {
		t.Fatalf("thumbnail is not an image: %v", err)
	}
	if format != "png" || cfg.Width != 256 || cfg.Height != 128 {
		t.Errorf("unexpected thumbnail %s %dx%d", format, cfg.Width, cfg.Height)
	}

	small, err := Thumbnail(testPNG(t, 10, 20), 256)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cfg, _, _ = image.DecodeConfig(bytes.NewReader(small))
	if cfg.Width != 10 || cfg.Height != 20 {
		t.Errorf("small image should keep its size, got %dx%d", cfg.Width, cfg.Height)
	}

	if _, err := Thumbnail([]byte("nope"), 256); err == nil {
		t.Error("expected error for non-image input")
	}
}

func TestS3Store_UploadAndDelete(t *testing.T) {
	var mu sync.Mutex
	var requests []string
	var body []byte
	var contentType string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		requests = append(requests, r.Method+" "+r.URL.Path)
		switch r.Method {
		case http.MethodPut:
			body, _ = io.ReadAll(r.Body)
			contentType = r.Header.Get("Content-Type")
			w.WriteHeader(http.StatusOK)
		case http.MethodDelete:
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	}))
	defer server.Close()

	cfg := aws.Config{Region: "us-east-1", Credentials: aws.AnonymousCredentials{}}
	store := NewS3Store(NewS3Client(cfg, server.URL), "posts", WithPublicBaseURL("https://cdn.example.com/posts/"))

	data := testPNG(t, 2, 2)
	url, err := store.Upload(context.Background(), data, "image/png", "user-1/1-abc.png")
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if url != "https://cdn.example.com/posts/user-1/1-abc.png" {
		t.Errorf("unexpected url %s", url)
	}
	if err := store.Delete(context.Background(), "user-1/1-abc.png"); err != nil {
		t.Fatalf("delete: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(requests) != 2 {
		t.Fatalf("expected 2 requests, got %v", requests)
	}
	if requests[0] != "PUT /posts/user-1/1-abc.png" {
		t.Errorf("unexpected put request %q", requests[0])
	}
	if !strings.HasPrefix(requests[1], "DELETE /posts/user-1/1-abc.png") {
		t.Errorf("unexpected delete request %q", requests[1])
	}
	if !bytes.Equal(body, data) {
		t.Error("uploaded body differs")
	}
	if contentType != "image/png" {
		t.Errorf("expected image/png content type, got %q", contentType)
	}
}

func TestS3Store_UploadError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/xml")
		w.WriteHeader(http.StatusForbidden)
		io.WriteString(w, `<?xml version="1.0"?><Error><Code>AccessDenied</Code><Message>denied</Message></Error>`)
	}))
	defer server.Close()

	cfg := aws.Config{Region: "us-east-1", Credentials: aws.AnonymousCredentials{}}
	store := NewS3Store(NewS3Client(cfg, server.URL), "posts", WithPublicBaseURL("https://cdn.example.com"))

	if _, err := store.Upload(context.Background(), []byte("x"), "image/png", "k.png"); err == nil {
		t.Fatal("expected upload error")
	}
}
