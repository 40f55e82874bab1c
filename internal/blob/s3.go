package blob

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"
)

// defaultURLExpiry bounds presigned GET URLs. The Graph API fetches the
// image while the container is created, so an hour is generous.
const defaultURLExpiry = time.Hour

// S3Store implements Store on an S3-compatible bucket.
//
// When a public base URL is configured (CloudFront, a public bucket, or a
// MinIO gateway) object URLs are base + "/" + key. Otherwise a presigned GET
// URL is returned, which the Graph API can fetch just as well.
type S3Store struct {
	client        *s3.Client
	presigner     *s3.PresignClient
	bucket        string
	publicBaseURL string
	urlExpiry     time.Duration
}

var _ Store = (*S3Store)(nil)

// S3Option configures an S3Store.
type S3Option func(*S3Store)

// WithPublicBaseURL serves objects from a fixed public origin instead of presigned URLs.
func WithPublicBaseURL(base string) S3Option {
	return func(s *S3Store) { s.publicBaseURL = strings.TrimRight(base, "/") }
}

// WithURLExpiry sets the lifetime of presigned URLs.
func WithURLExpiry(d time.Duration) S3Option {
	return func(s *S3Store) {
		if d > 0 {
			s.urlExpiry = d
		}
	}
}

// NewS3Store creates a store for bucket.
func NewS3Store(client *s3.Client, bucket string, opts ...S3Option) *S3Store {
	s := &S3Store{
		client:    client,
		presigner: s3.NewPresignClient(client),
		bucket:    bucket,
		urlExpiry: defaultURLExpiry,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewS3Client builds an S3 client from cfg. A non-empty endpoint switches to
// path-style addressing against that endpoint (MinIO, LocalStack).
func NewS3Client(cfg aws.Config, endpoint string) *s3.Client {
	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
		o.ResponseChecksumValidation = aws.ResponseChecksumValidationWhenRequired
	})
}

// Upload writes data to the bucket and returns a fetchable URL.
func (s *S3Store) Upload(ctx context.Context, data []byte, contentType, path string) (string, error) {
	start := time.Now()
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        &s.bucket,
		Key:           &path,
		Body:          bytes.NewReader(data),
		ContentType:   &contentType,
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		return "", fmt.Errorf("put object %s: %w", path, err)
	}

	log.Debug().
		Str("bucket", s.bucket).
		Str("key", path).
		Int("bytes", len(data)).
		Dur("duration", time.Since(start)).
		Msg("Object uploaded")

	return s.URL(ctx, path)
}

// Delete removes the object at path.
func (s *S3Store) Delete(ctx context.Context, path string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: &s.bucket,
		Key:    &path,
	})
	if err != nil {
		return fmt.Errorf("delete object %s: %w", path, err)
	}
	log.Debug().Str("bucket", s.bucket).Str("key", path).Msg("Object deleted")
	return nil
}

// URL returns the public or presigned URL for path.
func (s *S3Store) URL(ctx context.Context, path string) (string, error) {
	if s.publicBaseURL != "" {
		return s.publicBaseURL + "/" + escapePath(path), nil
	}
	req, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: &s.bucket,
		Key:    &path,
	}, func(opts *s3.PresignOptions) {
		opts.Expires = s.urlExpiry
	})
	if err != nil {
		return "", fmt.Errorf("presign GetObject: %w", err)
	}
	return req.URL, nil
}

func escapePath(p string) string {
	parts := strings.Split(p, "/")
	for i, part := range parts {
		parts[i] = url.PathEscape(part)
	}
	return strings.Join(parts, "/")
}
