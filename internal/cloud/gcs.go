package cloud

import (
	"context"
	"fmt"
	"io"

	gstorage "cloud.google.com/go/storage"
)

type gcsBackend struct {
	bucket    string
	newWriter func(ctx context.Context, bucket, key string) io.WriteCloser
}

func newGCSBackend(ctx context.Context, bucket string) (*gcsBackend, error) {
	client, err := gstorage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create GCS client: %w", err)
	}
	return &gcsBackend{
		bucket: bucket,
		newWriter: func(ctx context.Context, b, key string) io.WriteCloser {
			w := client.Bucket(b).Object(key).NewWriter(ctx)
			w.ContentType = contentType(key)
			return w
		},
	}, nil
}

// Upload streams r into key; the object is committed on Close.
func (b *gcsBackend) Upload(ctx context.Context, key string, r io.Reader, _ int64) error {
	w := b.newWriter(ctx, b.bucket, key)
	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return fmt.Errorf("gcs upload %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("gcs finalize %s: %w", key, err)
	}
	return nil
}
