package export

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// Archiver keeps a copy of every export.
type Archiver interface {
	Put(ctx context.Context, key, contentType string, body []byte) error
}

// S3API is the subset of the S3 client used by S3Archiver.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Archiver stores exports in an S3 bucket.
type S3Archiver struct {
	client S3API
	bucket string
}

// NewS3Archiver loads the default AWS credential chain for region.
func NewS3Archiver(ctx context.Context, region, bucket string) (*S3Archiver, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return &S3Archiver{client: s3.NewFromConfig(awsCfg), bucket: bucket}, nil
}

// NewS3ArchiverWithClient wraps an existing client.
func NewS3ArchiverWithClient(client S3API, bucket string) *S3Archiver {
	return &S3Archiver{client: client, bucket: bucket}
}

// Put uploads body under key with infrequent-access storage.
func (a *S3Archiver) Put(ctx context.Context, key, contentType string, body []byte) error {
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:       aws.String(a.bucket),
		Key:          aws.String(key),
		Body:         bytes.NewReader(body),
		ContentType:  aws.String(contentType),
		StorageClass: types.StorageClassStandardIa,
	})
	if err != nil {
		return fmt.Errorf("failed to upload to S3: %w", err)
	}
	return nil
}
