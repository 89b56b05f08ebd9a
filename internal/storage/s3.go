package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"yuanyue-cms/internal/config"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
)

// putObjectAPI is the part of the S3 client the store uses.
type putObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Store uploads blobs into an S3-compatible bucket.
type S3Store struct {
	client        putObjectAPI
	bucket        string
	publicBaseURL string
}

// NewS3Store builds an S3 client from the storage configuration.
// Static credentials are used when an access key is configured, otherwise the
// default AWS credential chain applies.
func NewS3Store(ctx context.Context, cfg config.StorageConfig) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3 store requires a bucket name")
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.S3.Region),
	}
	if cfg.S3.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.S3.AccessKey,
			cfg.S3.SecretKey,
			"",
		)))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3.Endpoint)
		}
		o.UsePathStyle = cfg.S3.UsePathStyle
	})

	return newS3Store(client, cfg.Bucket, publicBaseURL(cfg)), nil
}

func newS3Store(client putObjectAPI, bucket, baseURL string) *S3Store {
	return &S3Store{
		client:        client,
		bucket:        bucket,
		publicBaseURL: strings.TrimSuffix(baseURL, "/"),
	}
}

// publicBaseURL resolves the URL prefix objects are publicly reachable under.
func publicBaseURL(cfg config.StorageConfig) string {
	if cfg.S3.PublicBaseURL != "" {
		return cfg.S3.PublicBaseURL
	}
	if cfg.S3.Endpoint != "" {
		return strings.TrimSuffix(cfg.S3.Endpoint, "/") + "/" + cfg.Bucket
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com", cfg.Bucket, cfg.S3.Region)
}

// Upload puts the object only if no object with the same key exists.
func (s *S3Store) Upload(ctx context.Context, name string, body io.Reader, size int64, contentType string) error {
	input := &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(name),
		Body:        body,
		ContentType: aws.String(contentType),
		IfNoneMatch: aws.String("*"),
	}
	if size >= 0 {
		input.ContentLength = aws.Int64(size)
	}

	if _, err := s.client.PutObject(ctx, input); err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) {
			switch apiErr.ErrorCode() {
			case "PreconditionFailed", "ConditionalRequestConflict":
				return fmt.Errorf("object %s: %w", name, ErrObjectExists)
			}
		}
		return fmt.Errorf("failed to upload object %s to s3: %w", name, err)
	}
	return nil
}

// PublicURL returns the public URL of an object key.
func (s *S3Store) PublicURL(name string) string {
	return s.publicBaseURL + "/" + url.PathEscape(name)
}
