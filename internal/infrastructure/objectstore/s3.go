// Package objectstore persists inbound email attachments to S3-compatible
// storage so tool output and conversation history can reference them by key
// instead of carrying raw bytes.
package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"

	"mailagent/internal/domain/agent"
)

var errStorageDisabled = errors.New("attachment storage is not configured; set MAIL_S3_* to enable uploads")

// Config carries the S3 connection settings.
type Config struct {
	Bucket       string
	Region       string
	Endpoint     string
	AccessKeyID  string
	SecretKey    string
	UsePathStyle bool
}

// S3Store handles attachment uploads and downloads. When the bucket or
// credentials are missing the store stays disabled and callers skip
// attachment persistence.
type S3Store struct {
	bucket   string
	client   *s3.Client
	log      zerolog.Logger
	disabled bool
}

var _ agent.AttachmentStore = (*S3Store)(nil)

// NewS3Store builds the S3 client, or a disabled store when unconfigured.
func NewS3Store(ctx context.Context, cfg Config, log zerolog.Logger) (*S3Store, error) {
	logger := log.With().Str("component", "objectstore").Logger()
	store := &S3Store{
		bucket: strings.TrimSpace(cfg.Bucket),
		log:    logger,
	}

	accessKey := strings.TrimSpace(cfg.AccessKeyID)
	secretKey := strings.TrimSpace(cfg.SecretKey)
	if store.bucket == "" || accessKey == "" || secretKey == "" {
		logger.Warn().Msg("MAIL_S3_BUCKET or credentials are not set; attachment storage disabled until configured")
		store.disabled = true
		return store, nil
	}

	resolver := aws.EndpointResolverWithOptionsFunc(func(service, region string, options ...interface{}) (aws.Endpoint, error) {
		if cfg.Endpoint != "" {
			return aws.Endpoint{
				URL:           cfg.Endpoint,
				PartitionID:   "aws",
				SigningRegion: cfg.Region,
			}, nil
		}
		return aws.Endpoint{}, &aws.EndpointNotFoundError{}
	})

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretKey, "")),
		awsconfig.WithEndpointResolverWithOptions(resolver),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	store.client = s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
	})
	return store, nil
}

// Enabled reports whether uploads will be persisted.
func (s *S3Store) Enabled() bool {
	return !s.disabled
}

func (s *S3Store) ensureEnabled() error {
	if s.disabled {
		return errStorageDisabled
	}
	return nil
}

// Upload stores an attachment under a fresh object key and returns the key.
func (s *S3Store) Upload(ctx context.Context, conversationID, filename, contentType string, content []byte) (string, error) {
	if err := s.ensureEnabled(); err != nil {
		return "", err
	}

	key := ObjectKey(conversationID, filename)
	input := &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(content),
		ContentType: aws.String(contentType),
	}
	if _, err := s.client.PutObject(ctx, input); err != nil {
		return "", fmt.Errorf("upload attachment %s: %w", filename, err)
	}

	s.log.Debug().
		Str("conversation_id", conversationID).
		Str("key", key).
		Int("size", len(content)).
		Msg("attachment stored")
	return key, nil
}

// Download streams a stored attachment and its content type.
func (s *S3Store) Download(ctx context.Context, key string) (io.ReadCloser, string, error) {
	if err := s.ensureEnabled(); err != nil {
		return nil, "", err
	}

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, "", fmt.Errorf("download attachment %s: %w", key, err)
	}

	mime := ""
	if out.ContentType != nil {
		mime = *out.ContentType
	}
	return out.Body, mime, nil
}

// Health checks bucket reachability. A disabled store is always healthy.
func (s *S3Store) Health(ctx context.Context) error {
	if s.disabled {
		return nil
	}
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	return err
}
