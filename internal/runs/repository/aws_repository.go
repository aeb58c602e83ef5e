package repository

import (
	"context"
	"io"
	"time"

	"github.com/amankumarsingh77/studio-orchestrator/internal/runs"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/pkg/errors"
)

type awsRepository struct {
	client        *s3.Client
	preSignClient *s3.PresignClient
}

func NewAwsRepository(client *s3.Client, preSignClient *s3.PresignClient) runs.AWSRepository {
	return &awsRepository{client: client, preSignClient: preSignClient}
}

func (a *awsRepository) GetObject(ctx context.Context, bucket, key string, dst io.Writer) (int64, error) {
	out, err := a.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return 0, errors.Wrapf(err, "awsRepository.GetObject %s/%s", bucket, key)
	}
	defer out.Body.Close()
	n, err := io.Copy(dst, out.Body)
	if err != nil {
		return n, errors.Wrapf(err, "awsRepository.GetObject copy %s/%s", bucket, key)
	}
	return n, nil
}

func (a *awsRepository) PutObject(ctx context.Context, bucket, key, contentType string, body io.Reader, size int64) error {
	input := &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   body,
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	if size > 0 {
		input.ContentLength = aws.Int64(size)
	}
	if _, err := a.client.PutObject(ctx, input); err != nil {
		return errors.Wrapf(err, "awsRepository.PutObject %s/%s", bucket, key)
	}
	return nil
}

func (a *awsRepository) PresignGetObject(ctx context.Context, bucket, key string, ttl time.Duration) (string, error) {
	req, err := a.preSignClient.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", errors.Wrapf(err, "awsRepository.PresignGetObject %s/%s", bucket, key)
	}
	return req.URL, nil
}
