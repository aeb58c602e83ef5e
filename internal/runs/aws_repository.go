package runs

import (
	"context"
	"io"
	"time"
)

type AWSRepository interface {
	GetObject(ctx context.Context, bucket, key string, dst io.Writer) (int64, error)
	PutObject(ctx context.Context, bucket, key, contentType string, body io.Reader, size int64) error
	PresignGetObject(ctx context.Context, bucket, key string, ttl time.Duration) (string, error)
}
