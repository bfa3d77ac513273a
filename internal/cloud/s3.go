package cloud

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// s3API is the part of the S3 client exports need.
type s3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type s3Backend struct {
	client     s3API
	bucket     string
	presignURL func(ctx context.Context, bucket, key string, expiry time.Duration) (string, error)
}

// newS3Backend uses the default AWS credential chain (env, shared config,
// instance role).
func newS3Backend(ctx context.Context, bucket string) (*s3Backend, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	client := s3.NewFromConfig(cfg)
	presigner := s3.NewPresignClient(client)
	presign := func(ctx context.Context, bucket, key string, expiry time.Duration) (string, error) {
		req, err := presigner.PresignGetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(bucket),
			Key:    aws.String(key),
		}, s3.WithPresignExpires(expiry))
		if err != nil {
			return "", err
		}
		return req.URL, nil
	}
	return &s3Backend{client: client, bucket: bucket, presignURL: presign}, nil
}

// Upload writes key with SSE-S3 encryption.
func (b *s3Backend) Upload(ctx context.Context, key string, r io.Reader, size int64) error {
	in := &s3.PutObjectInput{
		Bucket:               aws.String(b.bucket),
		Key:                  aws.String(key),
		Body:                 r,
		ContentLength:        aws.Int64(size),
		ContentType:          aws.String(contentType(key)),
		ServerSideEncryption: types.ServerSideEncryptionAes256,
	}
	if _, err := b.client.PutObject(ctx, in); err != nil {
		return fmt.Errorf("put s3://%s/%s: %w", b.bucket, key, err)
	}
	return nil
}

// ShareURL presigns a GET for key.
func (b *s3Backend) ShareURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	if expiry <= 0 || expiry > maxPresign {
		return "", fmt.Errorf("presign expiry %s out of range (max %s)", expiry, maxPresign)
	}
	url, err := b.presignURL(ctx, b.bucket, key, expiry)
	if err != nil {
		return "", fmt.Errorf("presign s3://%s/%s: %w", b.bucket, key, err)
	}
	return url, nil
}

// maxPresign is the longest expiry SigV4 allows.
const maxPresign = 7 * 24 * time.Hour
