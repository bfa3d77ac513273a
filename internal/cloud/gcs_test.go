package cloud

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
)

// mockGCSWriter is a mock io.WriteCloser for GCS upload tests.
type mockGCSWriter struct {
	buf      bytes.Buffer
	writeErr error
	closeErr error
	closed   bool
}

func (m *mockGCSWriter) Write(p []byte) (int, error) {
	if m.writeErr != nil {
		return 0, m.writeErr
	}
	return m.buf.Write(p)
}

func (m *mockGCSWriter) Close() error {
	m.closed = true
	return m.closeErr
}

func newTestGCSBackend(writer *mockGCSWriter, gotKey *string) *gcsBackend {
	return &gcsBackend{
		bucket: "test-bucket",
		newWriter: func(_ context.Context, _, key string) io.WriteCloser {
			if gotKey != nil {
				*gotKey = key
			}
			return writer
		},
	}
}

func TestGCSUpload_Success(t *testing.T) {
	w := &mockGCSWriter{}
	var key string
	b := newTestGCSBackend(w, &key)
	err := b.Upload(context.Background(), "runs/result.json", strings.NewReader("hello"), 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if w.buf.String() != "hello" {
		t.Errorf("written = %q, want %q", w.buf.String(), "hello")
	}
	if key != "runs/result.json" || !w.closed {
		t.Errorf("key = %q, closed = %v", key, w.closed)
	}
}

func TestGCSUpload_CopyError(t *testing.T) {
	w := &mockGCSWriter{writeErr: errors.New("write failed")}
	b := newTestGCSBackend(w, nil)
	err := b.Upload(context.Background(), "key.txt", strings.NewReader("hello"), 5)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "gcs upload") {
		t.Errorf("error = %q, want to contain 'gcs upload'", err)
	}
	if !w.closed {
		t.Error("writer not closed after copy error")
	}
}

func TestGCSUpload_CloseError(t *testing.T) {
	w := &mockGCSWriter{closeErr: errors.New("finalize failed")}
	b := newTestGCSBackend(w, nil)
	err := b.Upload(context.Background(), "key.txt", strings.NewReader("hello"), 5)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "gcs finalize") {
		t.Errorf("error = %q, want to contain 'gcs finalize'", err)
	}
}

func TestContentType(t *testing.T) {
	for key, want := range map[string]string{
		"a/result.json":  "application/json",
		"a/groups.jsonl": "application/x-ndjson",
		"groups.csv":     "text/csv",
		"summary.md":     "text/markdown",
		"groups.parquet": "application/vnd.apache.parquet",
	} {
		if got := contentType(key); got != want {
			t.Errorf("contentType(%q) = %q, want %q", key, got, want)
		}
	}
}

func TestNewGCSBackend_BadCredentials(t *testing.T) {
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", "/nonexistent/creds.json")
	_, err := newGCSBackend(context.Background(), "test-bucket")
	if err == nil {
		t.Skip("GCS client creation succeeded despite bad credentials path")
	}
	if !strings.Contains(err.Error(), "create GCS client") {
		t.Errorf("error = %q, want to contain 'create GCS client'", err)
	}
}
