package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"barbeintiaden/photo-archive/internal/config"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsCfg "github.com/aws/aws-sdk-go-v2/config" // Alias config to avoid clash
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// S3API is the part of *s3.Client the backend calls.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

// s3Storage implements Backend on an S3-compatible bucket.
type s3Storage struct {
	client     S3API
	bucketName string
}

// NewS3Connector returns a Connector that builds the S3 client and checks
// that the bucket is reachable.
func NewS3Connector(cfg config.S3Config) Connector {
	return func(ctx context.Context) (Backend, error) {
		loadOpts := []func(*awsCfg.LoadOptions) error{awsCfg.WithRegion(cfg.Region)}
		// Static keys when given, the default credential chain otherwise.
		if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
			loadOpts = append(loadOpts, awsCfg.WithCredentialsProvider(
				credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
			))
		}

		awsSDKConfig, err := awsCfg.LoadDefaultConfig(ctx, loadOpts...)
		if err != nil {
			return nil, fmt.Errorf("loading AWS config: %w", err)
		}

		s3Client := s3.NewFromConfig(awsSDKConfig, func(o *s3.Options) {
			if cfg.Endpoint != "" {
				o.BaseEndpoint = aws.String(cfg.Endpoint)
			}
			// Most S3-compatible services (like MinIO) need path-style addressing.
			o.UsePathStyle = cfg.UsePathStyle
		})

		if _, err := s3Client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(cfg.Bucket)}); err != nil {
			return nil, fmt.Errorf("cannot access bucket %q: %w", cfg.Bucket, err)
		}

		slog.Info("S3 storage initialized", "endpoint", cfg.Endpoint, "bucket", cfg.Bucket, "region", cfg.Region)
		return NewS3Storage(cfg.Bucket, s3Client), nil
	}
}

// NewS3Storage wraps an existing client.
func NewS3Storage(bucket string, client S3API) Backend {
	return &s3Storage{client: client, bucketName: bucket}
}

func objectKey(name string) string {
	return strings.TrimPrefix(name, "/")
}

func (s *s3Storage) MakeDir(ctx context.Context, dir string) error {
	return nil
}

func (s *s3Storage) Write(ctx context.Context, name string, data []byte, contentType string) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucketName),
		Key:           aws.String(objectKey(name)),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(contentType),
	})
	return err
}

func (s *s3Storage) Read(ctx context.Context, name string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucketName),
		Key:    aws.String(objectKey(name)),
	})
	if err != nil {
		if isS3NotFound(err) {
			return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, name)
		}
		return nil, err
	}
	defer out.Body.Close()
	return io.ReadAll(out.Body)
}

// Remove deletes the object. S3 reports success for missing keys, so this
// never returns ErrObjectNotFound on AWS itself.
func (s *s3Storage) Remove(ctx context.Context, name string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucketName),
		Key:    aws.String(objectKey(name)),
	})
	if err != nil {
		if isS3NotFound(err) {
			return ErrObjectNotFound
		}
		slog.Error("failed to delete object", "key", objectKey(name), "bucket", s.bucketName, "error", err)
		return err
	}
	return nil
}

func isS3NotFound(err error) bool {
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound", "404":
			return true
		}
	}
	return false
}
