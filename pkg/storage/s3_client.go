package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Client stores backup objects.
type S3Client interface {
	Upload(ctx context.Context, bucket, key string, body io.Reader) error
}

type awsS3Client struct {
	client *s3.Client
}

// NewS3Client wraps an AWS S3 client built from cfg.
func NewS3Client(cfg aws.Config) S3Client {
	return &awsS3Client{client: s3.NewFromConfig(cfg)}
}

func (c *awsS3Client) Upload(ctx context.Context, bucket, key string, body io.Reader) error {
	_, err := c.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   body,
	})
	if err != nil {
		return fmt.Errorf("failed to upload s3://%s/%s: %w", bucket, key, err)
	}
	return nil
}
