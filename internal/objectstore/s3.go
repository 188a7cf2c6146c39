package objectstore

import (
	"bytes"
	"context"
	"errors"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/aifocal/akidb/internal/akidberr"
)

// S3Config configures the S3-backed Store.
type S3Config struct {
	Bucket   string
	Endpoint string // optional: non-AWS S3-compatible endpoint

	// AccessKeyID/SecretAccessKey, when both set, pin the client to static
	// credentials instead of the ambient AWS credential chain. This is the
	// usual path for S3-compatible backends (MinIO, etc.) reached through
	// Endpoint, which rarely have an IAM role or shared config profile to
	// fall back to.
	AccessKeyID     string
	SecretAccessKey string
}

// S3Store stores blobs in a single S3(-compatible) bucket.
type S3Store struct {
	bucket string
	client *s3.Client
}

// NewS3Store builds an S3Store from the ambient AWS credential chain
// (environment, shared config, container/instance role), optionally pointed
// at a custom endpoint for S3-compatible backends.
func NewS3Store(ctx context.Context, cfg S3Config) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, akidberr.New(akidberr.Validation, "objectstore: S3Config.Bucket is required")
	}
	var optFns []func(*awsconfig.LoadOptions) error
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		optFns = append(optFns, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		return nil, akidberr.Wrap(akidberr.Internal, err, "objectstore: load AWS config")
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Store{bucket: cfg.Bucket, client: client}, nil
}

func (s *S3Store) Get(ctx context.Context, key string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nske *types.NoSuchKey
		if errors.As(err, &nske) {
			return nil, errNotFound(key)
		}
		return nil, classifyS3Error(err, "get %q", key)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, akidberr.Wrap(akidberr.TransientBackend, err, "objectstore: read body for %q", key)
	}
	return data, nil
}

func (s *S3Store) Put(ctx context.Context, key string, blob []byte) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(blob),
	})
	if err != nil {
		return classifyS3Error(err, "put %q", key)
	}
	return nil
}

func (s *S3Store) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return classifyS3Error(err, "delete %q", key)
	}
	return nil
}

// classifyS3Error maps an AWS error into the §7 taxonomy: 4xx-style client
// errors are permanent (never retried by the DLQ), everything else
// (throttling, 5xx, network) is transient.
func classifyS3Error(err error, format string, args ...any) error {
	var apiErr interface{ ErrorCode() string }
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "AccessDenied", "InvalidBucketName", "InvalidAccessKeyId", "NoSuchBucket":
			return akidberr.Wrap(akidberr.PermanentBackend, err, "objectstore: "+format, args...)
		}
	}
	return akidberr.Wrap(akidberr.TransientBackend, err, "objectstore: "+format, args...)
}
