package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Config holds configuration for the archive's S3 sync target.
type S3Config struct {
	// Bucket is the S3 bucket name (required).
	Bucket string
	// Prefix is the key prefix within the bucket (optional).
	Prefix string
	// Region is the AWS region (optional, uses default chain if empty).
	Region string
	// Endpoint is a custom S3 endpoint URL for S3-compatible providers
	// (e.g. Cloudflare R2, MinIO). Empty uses the default AWS endpoint.
	Endpoint string
	// UsePathStyle forces path-style addressing (bucket in path, not subdomain).
	// Required by most S3-compatible providers (R2, MinIO, etc.).
	UsePathStyle bool
}

// Validate checks that required S3 configuration is present.
func (c *S3Config) Validate() error {
	if c.Bucket == "" {
		return errors.New("S3 bucket is required")
	}
	return nil
}

// s3Putter is the slice of the S3 API the syncer uses.
type s3Putter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Syncer copies archived conversation records to an S3 bucket.
type S3Syncer struct {
	client s3Putter
	config S3Config
}

// NewS3Syncer creates a syncer using the AWS SDK default credential chain
// (env vars, shared config, IAM role).
func NewS3Syncer(ctx context.Context, cfg S3Config) (*S3Syncer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var opts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}

	awsConfig, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		endpoint := cfg.Endpoint
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = &endpoint
		})
	}
	if cfg.UsePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}

	return &S3Syncer{
		client: s3.NewFromConfig(awsConfig, s3Opts...),
		config: cfg,
	}, nil
}

// SyncRecord uploads the archived record for conversationID from the
// local archive to the bucket.
func (s *S3Syncer) SyncRecord(ctx context.Context, archive *Archive, conversationID string) error {
	local, err := archive.recordPath(conversationID)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(local)
	if err != nil {
		return fmt.Errorf("sync conversation %s: %w", conversationID, err)
	}

	key := s.objectKey(conversationID + archiveExt)
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.config.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/msgpack"),
	})
	if err != nil {
		return fmt.Errorf("sync conversation %s: put s3://%s/%s: %w", conversationID, s.config.Bucket, key, err)
	}
	return nil
}

// SyncAll uploads every record in the local archive, stopping at the
// first failure.
func (s *S3Syncer) SyncAll(ctx context.Context, archive *Archive) (int, error) {
	entries, err := os.ReadDir(archive.Dir())
	if err != nil {
		return 0, fmt.Errorf("sync archive: %w", err)
	}

	synced := 0
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != archiveExt {
			continue
		}
		id := strings.TrimSuffix(entry.Name(), archiveExt)
		if err := s.SyncRecord(ctx, archive, id); err != nil {
			return synced, err
		}
		synced++
	}
	return synced, nil
}

func (s *S3Syncer) objectKey(filename string) string {
	if s.config.Prefix == "" {
		return filename
	}
	return path.Join(s.config.Prefix, filename)
}
