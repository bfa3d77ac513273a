package cloud

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// mockS3Client implements s3API for testing.
type mockS3Client struct {
	putErr error
	put    *s3.PutObjectInput
	body   string
}

func (m *mockS3Client) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	m.put = in
	if in.Body != nil {
		data, _ := io.ReadAll(in.Body)
		m.body = string(data)
	}
	return &s3.PutObjectOutput{}, m.putErr
}

func newTestS3Backend(client s3API) *s3Backend {
	return &s3Backend{
		client: client,
		bucket: "test-bucket",
		presignURL: func(_ context.Context, bucket, key string, expiry time.Duration) (string, error) {
			return "https://" + bucket + ".s3.amazonaws.com/" + key + "?X-Amz-Expires=" + expiry.String(), nil
		},
	}
}

func TestS3Upload_Success(t *testing.T) {
	m := &mockS3Client{}
	b := newTestS3Backend(m)
	err := b.Upload(context.Background(), "runs/result.json", strings.NewReader("hello"), 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if *m.put.Bucket != "test-bucket" || *m.put.Key != "runs/result.json" || *m.put.ContentLength != 5 {
		t.Errorf("put = %s/%s (%d)", *m.put.Bucket, *m.put.Key, *m.put.ContentLength)
	}
	if *m.put.ContentType != "application/json" {
		t.Errorf("content type = %q", *m.put.ContentType)
	}
	if m.put.ServerSideEncryption != types.ServerSideEncryptionAes256 {
		t.Errorf("encryption = %q", m.put.ServerSideEncryption)
	}
	if m.body != "hello" {
		t.Errorf("body = %q", m.body)
	}
}

func TestS3Upload_Error(t *testing.T) {
	b := newTestS3Backend(&mockS3Client{putErr: errors.New("access denied")})
	err := b.Upload(context.Background(), "key.txt", strings.NewReader("hello"), 5)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "put s3://test-bucket/key.txt") {
		t.Errorf("error = %q", err)
	}
}

func TestS3ShareURL(t *testing.T) {
	var b Backend = newTestS3Backend(&mockS3Client{})
	sh, ok := b.(Sharer)
	if !ok {
		t.Fatal("s3 backend does not implement Sharer")
	}
	url, err := sh.ShareURL(context.Background(), "runs/result.json", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(url, "test-bucket") || !strings.Contains(url, "runs/result.json") {
		t.Errorf("url = %q", url)
	}
}

func TestS3ShareURL_Error(t *testing.T) {
	b := newTestS3Backend(&mockS3Client{})
	b.presignURL = func(context.Context, string, string, time.Duration) (string, error) {
		return "", errors.New("no credentials")
	}
	if _, err := b.ShareURL(context.Background(), "k", time.Minute); err == nil || !strings.Contains(err.Error(), "presign s3://") {
		t.Errorf("err = %v, want presign error", err)
	}
}

func TestS3ShareURL_ExpiryRange(t *testing.T) {
	b := newTestS3Backend(&mockS3Client{})
	for _, d := range []time.Duration{0, -time.Minute, 8 * 24 * time.Hour} {
		if _, err := b.ShareURL(context.Background(), "k", d); err == nil {
			t.Errorf("expiry %s accepted", d)
		}
	}
}
