// Package storage uploads documents to S3 for the agent's retrieval index.
package storage

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/youneslaaroussi/dealwhisperer/internal/config"
)

// Object identifies an uploaded file.
type Object struct {
	Key string `json:"key"`
	URL string `json:"url"`
}

// Uploader stores a file and returns where it landed.
type Uploader interface {
	Upload(ctx context.Context, body io.Reader, filename, contentType string) (Object, error)
}

// IsPDF reports whether a declared content type is a PDF.
func IsPDF(contentType string) bool {
	return strings.HasPrefix(contentType, "application/pdf")
}

// putObjectAPI is the slice of the S3 client we use, enabling test mocks.
type putObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3 uploads to a single bucket.
type S3 struct {
	api    putObjectAPI
	bucket string
	region string
	newKey func(filename string) string
}

var _ Uploader = (*S3)(nil)

// New creates an S3 uploader from configuration. Static credentials are used
// when both keys are set; otherwise the default AWS credential chain applies.
func New(ctx context.Context, cfg config.S3Config) (*S3, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("storage: bucket is required")
	}
	if cfg.Region == "" {
		return nil, fmt.Errorf("storage: region is required")
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			aws.NewCredentialsCache(credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("storage: load aws config: %w", err)
	}

	var clientOpts []func(*s3.Options)
	if cfg.Endpoint != "" {
		clientOpts = append(clientOpts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	}
	return newWithAPI(s3.NewFromConfig(awsCfg, clientOpts...), cfg.Bucket, cfg.Region), nil
}

func newWithAPI(api putObjectAPI, bucket, region string) *S3 {
	return &S3{
		api:    api,
		bucket: bucket,
		region: region,
		newKey: func(filename string) string { return uuid.NewString() + "-" + filename },
	}
}

// Bucket returns the target bucket name.
func (s *S3) Bucket() string { return s.bucket }

// Upload stores body under a fresh "{uuid}-{filename}" key.
func (s *S3) Upload(ctx context.Context, body io.Reader, filename, contentType string) (Object, error) {
	key := s.newKey(filename)
	_, err := s.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return Object{}, fmt.Errorf("storage: upload %s: %w", filename, err)
	}
	return Object{Key: key, URL: s.objectURL(key)}, nil
}

func (s *S3) objectURL(key string) string {
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.bucket, s.region, key)
}
