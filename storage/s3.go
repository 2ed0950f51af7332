package storage

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/docutag/pinfetch/models"
)

// S3Config contains S3 storage configuration
type S3Config struct {
	Endpoint        string `yaml:"endpoint"`          // Optional: Custom endpoint for MinIO or DigitalOcean Spaces
	Region          string `yaml:"region"`            // AWS region or DO region (e.g., "us-east-1" or "sfo3")
	Bucket          string `yaml:"bucket"`            // S3 bucket name
	Prefix          string `yaml:"prefix"`            // Key prefix, "media" when empty
	AccessKeyID     string `yaml:"access_key_id"`     // AWS access key ID
	SecretAccessKey string `yaml:"secret_access_key"` // AWS secret access key
	UsePathStyle    bool   `yaml:"use_path_style"`    // Use path-style addressing (required for MinIO)
}

// Enabled reports whether enough is configured to attempt an upload
func (c S3Config) Enabled() bool {
	return c.Bucket != ""
}

// objectPutter is the subset of the S3 client used for delivery
type objectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Storage delivers downloaded media to S3-compatible object storage
type S3Storage struct {
	client objectPutter
	bucket string
	config  S3Config
	now     func() time.Time
	onSaved SavedFunc
}

// NewS3Storage creates a new S3Storage instance
func NewS3Storage(ctx context.Context, cfg S3Config) (*S3Storage, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("S3 bucket name is required")
	}
	if cfg.Region == "" {
		return nil, fmt.Errorf("S3 region is required")
	}
	if cfg.AccessKeyID == "" || cfg.SecretAccessKey == "" {
		return nil, fmt.Errorf("S3 credentials are required")
	}

	awsConfig, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	return newS3Storage(client, cfg), nil
}

func newS3Storage(client objectPutter, cfg S3Config) *S3Storage {
	return &S3Storage{
		client: client,
		bucket: cfg.Bucket,
		config: cfg,
		now:    time.Now,
	}
}

// Key returns the object key for a file: <prefix>/YYYY/MM/<slug>-<download name><ext>
func (s *S3Storage) Key(file models.MediaFile) string {
	prefix := strings.Trim(s.config.Prefix, "/")
	if prefix == "" {
		prefix = "media"
	}
	now := s.now()
	ext := filepath.Ext(file.Path)
	name := strings.TrimSuffix(filepath.Base(file.Path), ext)
	if base := fileSlug(file); base != "" {
		name = base + "-" + name
	}
	return path.Join(prefix, fmt.Sprintf("%04d", now.Year()), fmt.Sprintf("%02d", int(now.Month())), name+ext)
}

// Save uploads a downloaded file and returns its key
func (s *S3Storage) Save(ctx context.Context, file models.MediaFile) (string, error) {
	f, err := os.Open(file.Path)
	if err != nil {
		return "", fmt.Errorf("failed to open media file: %w", err)
	}
	defer f.Close()

	key := s.Key(file)
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        f,
		ContentType: aws.String(contentTypeFromExtension(filepath.Ext(file.Path))),
		Metadata: map[string]string{
			"page-url":  file.PageURL,
			"asset-url": file.AssetURL,
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload media to S3: %w", err)
	}

	return key, nil
}

// OnSaved registers fn to receive the s3:// URL of every uploaded file
func (s *S3Storage) OnSaved(fn SavedFunc) {
	s.onSaved = fn
}

// Name identifies the delivery target in metrics
func (s *S3Storage) Name() string {
	return "s3"
}

// Deliver uploads every file in order, stopping at the first failure
func (s *S3Storage) Deliver(ctx context.Context, files []models.MediaFile) error {
	for _, f := range files {
		key, err := s.Save(ctx, f)
		if err != nil {
			return err
		}
		if s.onSaved != nil {
			s.onSaved(f, s.GetFullPath(key))
		}
	}
	return nil
}

// GetFullPath returns the s3:// URL for a key
func (s *S3Storage) GetFullPath(key string) string {
	return fmt.Sprintf("s3://%s/%s", s.bucket, key)
}
