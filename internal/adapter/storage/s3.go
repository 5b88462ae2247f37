package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	s3manager "github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/okvist/packmule/internal/config"
	"github.com/okvist/packmule/internal/domain"
)

// S3Backend stores artifacts under a key prefix in an S3 bucket.
type S3Backend struct {
	cfg      config.S3Config
	uploader *s3manager.Uploader
}

func NewS3(cfg config.S3Config) *S3Backend {
	return &S3Backend{cfg: cfg}
}

func (s *S3Backend) Name() string { return "s3" }

func (s *S3Backend) Connect(ctx context.Context) error {
	if s.cfg.Bucket == "" || s.cfg.Region == "" {
		return fmt.Errorf("%w: s3 bucket and region are required", domain.ErrBackendPrereq)
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(s.cfg.Region),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(s.cfg.AccessKey, s.cfg.SecretKey, ""),
		),
	)
	if err != nil {
		return fmt.Errorf("failed to load AWS config: %w", err)
	}

	s.uploader = s3manager.NewUploader(s3.NewFromConfig(awsCfg))

	return nil
}

func (s *S3Backend) Close() error {
	s.uploader = nil
	return nil
}

// EnsureTarget resolves to the configured key prefix. The bucket is an
// account-level concern and a prefix needs no creation, so nothing is
// touched remotely.
func (s *S3Backend) EnsureTarget(ctx context.Context, name string) (domain.Target, error) {
	return domain.Target{Locator: s.cfg.Prefix}, nil
}

func (s *S3Backend) Upload(ctx context.Context, target domain.Target, art domain.Artifact) (domain.UploadResult, error) {
	source, err := os.Open(art.Path)
	if err != nil {
		return domain.UploadResult{}, fmt.Errorf("failed to open source: %w", err)
	}
	defer source.Close()

	key := filepath.Join(target.Locator, art.Name)

	input := &s3.PutObjectInput{
		Bucket: &s.cfg.Bucket,
		Key:    &key,
		Body:   source,
	}
	if art.ContentType != "" {
		ct := art.ContentType
		input.ContentType = &ct
	}

	if _, err := s.uploader.Upload(ctx, input); err != nil {
		return domain.UploadResult{}, fmt.Errorf("failed to upload to S3: %w", err)
	}

	return domain.UploadResult{ID: key, Name: art.Name}, nil
}
