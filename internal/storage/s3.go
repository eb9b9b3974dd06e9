package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Options configures an S3Store.
type S3Options struct {
	Region string
	// Endpoint overrides the S3 endpoint for S3-compatible stores.
	Endpoint     string
	UsePathStyle bool
}

type objectPresigner interface {
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

type objectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Store presigns GET requests for S3 objects and uploads archived assets.
type S3Store struct {
	client    objectPutter
	presigner objectPresigner
}

// NewS3Store loads the default AWS credential chain.
func NewS3Store(ctx context.Context, opts S3Options) (*S3Store, error) {
	var loadOpts []func(*config.LoadOptions) error
	if region := strings.TrimSpace(opts.Region); region != "" {
		loadOpts = append(loadOpts, config.WithRegion(region))
	}
	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("storage: load aws config: %w", err)
	}
	return NewS3StoreFromConfig(cfg, opts), nil
}

// NewS3StoreFromConfig builds a store from an existing AWS config.
func NewS3StoreFromConfig(cfg aws.Config, opts S3Options) *S3Store {
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint := strings.TrimSpace(opts.Endpoint); endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
		o.UsePathStyle = opts.UsePathStyle
	})
	return &S3Store{client: client, presigner: s3.NewPresignClient(client)}
}

func objectRef(bucket, path string) (string, string, error) {
	bucket = strings.TrimSpace(bucket)
	path = strings.TrimLeft(strings.TrimSpace(path), "/")
	if bucket == "" || path == "" {
		return "", "", errors.New("storage: bucket and path are required")
	}
	return bucket, path, nil
}

// Sign presigns a GetObject request for bucket/path.
func (s *S3Store) Sign(ctx context.Context, bucket, path string, ttl time.Duration) (string, error) {
	bucket, path, err := objectRef(bucket, path)
	if err != nil {
		return "", err
	}
	if ttl <= 0 {
		return "", errors.New("storage: ttl must be positive")
	}
	req, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(path),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", fmt.Errorf("storage: presign %s/%s: %w", bucket, path, err)
	}
	return req.URL, nil
}

// Put uploads data to bucket/path.
func (s *S3Store) Put(ctx context.Context, bucket, path string, data []byte, contentType string) error {
	bucket, path, err := objectRef(bucket, path)
	if err != nil {
		return err
	}
	input := &s3.PutObjectInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(path),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	if _, err := s.client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("storage: put %s/%s: %w", bucket, path, err)
	}
	return nil
}
