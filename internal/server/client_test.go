package server

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func TestClientRoundTrip(t *testing.T) {
	ts := setupServer(t, Options{})
	httpSrv := httptest.NewServer(ts.srv.Handler())
	defer httpSrv.Close()

	dir := t.TempDir()
	a := filepath.Join(dir, "a.txt")
	b := filepath.Join(dir, "b.txt")
	if err := os.WriteFile(a, []byte("hello"), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	if err := os.WriteFile(b, []byte("world"), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	client := NewClient(httpSrv.URL + "/")
	ctx := context.Background()

	up, err := client.Upload(ctx, "alice", []string{a, b})
	if err != nil {
		t.Fatalf("Upload failed: %v", err)
	}
	if up.FileCount != 2 {
		t.Errorf("expected 2 files, got %d", up.FileCount)
	}

	info, err := client.Validate(ctx, up.ShareCode)
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if info.SenderName != "alice" || info.TotalSize != 10 {
		t.Errorf("unexpected info %+v", info)
	}

	var buf bytes.Buffer
	n, err := client.Download(ctx, up.ShareCode, &buf)
	if err != nil {
		t.Fatalf("Download failed: %v", err)
	}
	if n != int64(buf.Len()) {
		t.Errorf("reported %d bytes, wrote %d", n, buf.Len())
	}
	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatalf("invalid zip: %v", err)
	}
	if len(zr.File) != 2 {
		t.Errorf("expected 2 archived files, got %d", len(zr.File))
	}
}

func TestClientErrors(t *testing.T) {
	ts := setupServer(t, Options{})
	httpSrv := httptest.NewServer(ts.srv.Handler())
	defer httpSrv.Close()

	client := NewClient(httpSrv.URL)
	_, err := client.Validate(context.Background(), "ZZZZ-0000")

	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if statusErr.Status != http.StatusNotFound || statusErr.Message == "" {
		t.Errorf("unexpected error %+v", statusErr)
	}

	if _, err := client.Upload(context.Background(), "alice", []string{filepath.Join(t.TempDir(), "missing")}); err == nil {
		t.Error("expected error uploading a missing file")
	}
}

func TestHTTPBase(t *testing.T) {
	tests := map[string]string{
		"ws://localhost:8080":     "http://localhost:8080",
		"wss://relay.example.org": "https://relay.example.org",
		"http://localhost:8080":   "http://localhost:8080",
	}
	for in, want := range tests {
		if got := HTTPBase(in); got != want {
			t.Errorf("HTTPBase(%q) = %q, want %q", in, got, want)
		}
	}
}
