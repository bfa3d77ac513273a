// Package cloud uploads run exports to object storage.
package cloud

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"time"
)

// Backend writes objects to a bucket.
type Backend interface {
	Upload(ctx context.Context, key string, r io.Reader, size int64) error
}

// Sharer is implemented by backends that can mint a time-limited
// download link.
type Sharer interface {
	ShareURL(ctx context.Context, key string, expiry time.Duration) (string, error)
}

// Destination is a parsed s3:// or gs:// URL.
type Destination struct {
	Scheme string
	Bucket string
	Key    string // object key or prefix, no leading or trailing slash
}

// IsURL reports whether raw names an object store rather than a local path.
func IsURL(raw string) bool {
	raw = strings.TrimSpace(raw)
	return strings.HasPrefix(raw, "s3://") || strings.HasPrefix(raw, "gs://")
}

// ParseURL extracts scheme, bucket and key from a cloud URL.
// Supported schemes: s3://, gs://
func ParseURL(raw string) (Destination, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Destination{}, fmt.Errorf("empty URL")
	}

	var d Destination
	var rest string
	switch {
	case strings.HasPrefix(raw, "s3://"):
		d.Scheme = "s3"
		rest = strings.TrimPrefix(raw, "s3://")
	case strings.HasPrefix(raw, "gs://"):
		d.Scheme = "gs"
		rest = strings.TrimPrefix(raw, "gs://")
	default:
		return Destination{}, fmt.Errorf("unsupported scheme in %q: expected s3:// or gs://", raw)
	}

	bucket, key, _ := strings.Cut(rest, "/")
	if bucket == "" {
		return Destination{}, fmt.Errorf("empty bucket in %q", raw)
	}
	d.Bucket = bucket
	d.Key = strings.Trim(key, "/")
	return d, nil
}

// Object returns the key for name: the destination key itself when it
// already names a file with an extension, otherwise name under it.
func (d Destination) Object(name string) string {
	switch {
	case d.Key == "":
		return name
	case path.Ext(d.Key) != "":
		return d.Key
	default:
		return d.Key + "/" + name
	}
}

// URL formats key in the destination's bucket.
func (d Destination) URL(key string) string {
	return d.Scheme + "://" + d.Bucket + "/" + key
}

// NewBackend creates a Backend for the given scheme and bucket.
func NewBackend(ctx context.Context, scheme, bucket string) (Backend, error) {
	switch scheme {
	case "s3":
		return newS3Backend(ctx, bucket)
	case "gs":
		return newGCSBackend(ctx, bucket)
	default:
		return nil, fmt.Errorf("unsupported scheme %q: expected s3 or gs", scheme)
	}
}

// UploadFile uploads the local file at src to key.
func UploadFile(ctx context.Context, b Backend, key, src string) error {
	f, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer func() { _ = f.Close() }()
	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", src, err)
	}
	return b.Upload(ctx, key, f, info.Size())
}

// contentType guesses the MIME type of an export from its extension.
func contentType(key string) string {
	switch path.Ext(key) {
	case ".json":
		return "application/json"
	case ".jsonl":
		return "application/x-ndjson"
	case ".csv":
		return "text/csv"
	case ".md":
		return "text/markdown"
	case ".parquet":
		return "application/vnd.apache.parquet"
	default:
		return "application/octet-stream"
	}
}
