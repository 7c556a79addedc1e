package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"viralforge/internal/logging"
)

// S3Config holds configuration for an S3 or S3-compatible bucket.
type S3Config struct {
	Bucket    string
	Prefix    string
	Region    string
	Endpoint  string // custom endpoint for MinIO and friends
	AccessKey string // optional; the default credential chain applies when empty
	SecretKey string
}

// S3 stores objects in a bucket.
type S3 struct {
	client *s3.Client
	cfg    S3Config
	logger *slog.Logger
}

// NewS3 builds an S3 store.
func NewS3(ctx context.Context, cfg S3Config, logger *slog.Logger) (*S3, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, errors.New("objectstore: s3 bucket is required")
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("objectstore: load aws config: %w", err)
	}
	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	}
	logger = logging.NewComponentLogger(logger, "objectstore")
	logger.Info("s3 object store ready",
		logging.String("bucket", cfg.Bucket),
		logging.String("prefix", cfg.Prefix),
		logging.String("endpoint", cfg.Endpoint))
	return &S3{client: s3.NewFromConfig(awsCfg, s3Opts...), cfg: cfg, logger: logger}, nil
}

func (s *S3) fullKey(key string) (string, error) {
	cleaned, err := cleanKey(key)
	if err != nil {
		return "", err
	}
	if s.cfg.Prefix == "" {
		return cleaned, nil
	}
	return strings.TrimSuffix(s.cfg.Prefix, "/") + "/" + cleaned, nil
}

// PutFile uploads src to key.
func (s *S3) PutFile(ctx context.Context, key, src string) (string, error) {
	full, err := s.fullKey(key)
	if err != nil {
		return "", err
	}
	f, err := os.Open(src)
	if err != nil {
		return "", fmt.Errorf("objectstore: open source: %w", err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("objectstore: stat source: %w", err)
	}
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.cfg.Bucket),
		Key:           aws.String(full),
		Body:          f,
		ContentLength: aws.Int64(info.Size()),
		ContentType:   aws.String(contentType(key)),
	})
	if err != nil {
		return "", fmt.Errorf("objectstore: put %s: %w", full, err)
	}
	s.logger.Debug("uploaded artifact", logging.String("key", full), logging.Int64("bytes", info.Size()))
	return s.URI(key), nil
}

// Open streams the object at key.
func (s *S3) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	full, err := s.fullKey(key)
	if err != nil {
		return nil, err
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(full),
	})
	if err != nil {
		var missing *types.NoSuchKey
		if errors.As(err, &missing) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, fmt.Errorf("objectstore: get %s: %w", full, err)
	}
	return out.Body, nil
}

// Delete removes key.
func (s *S3) Delete(ctx context.Context, key string) error {
	full, err := s.fullKey(key)
	if err != nil {
		return err
	}
	if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(full),
	}); err != nil {
		return fmt.Errorf("objectstore: delete %s: %w", full, err)
	}
	return nil
}

// List returns keys under prefix, relative to the configured bucket prefix.
func (s *S3) List(ctx context.Context, prefix string) ([]string, error) {
	base := ""
	if s.cfg.Prefix != "" {
		base = strings.TrimSuffix(s.cfg.Prefix, "/") + "/"
	}
	var keys []string
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.cfg.Bucket),
		Prefix: aws.String(base + prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("objectstore: list: %w", err)
		}
		for _, obj := range page.Contents {
			keys = append(keys, strings.TrimPrefix(aws.ToString(obj.Key), base))
		}
	}
	return keys, nil
}

// URI returns the s3:// location of key.
func (s *S3) URI(key string) string {
	full, err := s.fullKey(key)
	if err != nil {
		return ""
	}
	return "s3://" + s.cfg.Bucket + "/" + full
}

func contentType(key string) string {
	switch {
	case strings.HasSuffix(key, ".mp4"):
		return "video/mp4"
	case strings.HasSuffix(key, ".mp3"):
		return "audio/mpeg"
	case strings.HasSuffix(key, ".json"):
		return "application/json"
	default:
		return "application/octet-stream"
	}
}
