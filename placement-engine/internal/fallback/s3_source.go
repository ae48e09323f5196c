package fallback

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/ILLUVRSE/placements/placement-engine/internal/models"
)

type objectGetter = manager.DownloadAPIClient

// S3Source serves a fallback snapshot document stored at s3://<bucket>/<key>.
// The decoded document is kept for ttl; when a refresh fails the previous
// document keeps being served.
type S3Source struct {
	downloader *manager.Downloader
	bucket     string
	key        string
	ttl        time.Duration
	logger     *slog.Logger
	now        func() time.Time

	mu        sync.Mutex
	bundle    *Bundle
	fetchedAt time.Time
}

// NewS3Source loads AWS configuration from the environment (AWS_REGION,
// AWS_PROFILE, static keys) the same way the SDK default chain does.
func NewS3Source(ctx context.Context, bucket, key string, ttl time.Duration, logger *slog.Logger) (*S3Source, error) {
	if bucket == "" || key == "" {
		return nil, fmt.Errorf("bucket and key required")
	}
	cfg, err := awsConfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return newS3Source(s3.NewFromConfig(cfg), bucket, key, ttl, logger), nil
}

func newS3Source(client objectGetter, bucket, key string, ttl time.Duration, logger *slog.Logger) *S3Source {
	if logger == nil {
		logger = slog.Default()
	}
	return &S3Source{
		downloader: manager.NewDownloader(client, func(d *manager.Downloader) { d.Concurrency = 1 }),
		bucket:     bucket,
		key:        key,
		ttl:        ttl,
		logger:     logger,
		now:        time.Now,
	}
}

func (s *S3Source) FallbackCandidates(ctx context.Context, q models.Query) (models.Candidates, error) {
	b, err := s.load(ctx)
	if err != nil {
		return models.Candidates{}, err
	}
	variations, ok := b.Candidates(q.Kind, q.PlacementID)
	if !ok {
		return models.Candidates{}, fmt.Errorf("%w: %s not in s3 snapshot", ErrUnavailable, q.PlacementID)
	}
	return models.Candidates{Variations: variations, SnapshotAt: b.SnapshotAt}, nil
}

func (s *S3Source) FallbackByID(ctx context.Context, q models.Query, variationID string) (models.Variation, error) {
	b, err := s.load(ctx)
	if err != nil {
		return models.Variation{}, err
	}
	v, ok := b.VariationByID(q.Kind, q.PlacementID, variationID)
	if !ok {
		return models.Variation{}, fmt.Errorf("%w: %s/%s not in s3 snapshot", ErrUnavailable, q.PlacementID, variationID)
	}
	return v, nil
}

func (s *S3Source) load(ctx context.Context) (*Bundle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.bundle != nil && s.now().Sub(s.fetchedAt) < s.ttl {
		return s.bundle, nil
	}
	fresh, err := s.fetch(ctx)
	if err != nil {
		if s.bundle != nil {
			s.logger.Warn("s3 fallback refresh failed, serving previous snapshot",
				"bucket", s.bucket, "key", s.key, "error", err)
			return s.bundle, nil
		}
		return nil, err
	}
	s.bundle = fresh
	s.fetchedAt = s.now()
	return fresh, nil
}

func (s *S3Source) fetch(ctx context.Context) (*Bundle, error) {
	buf := manager.NewWriteAtBuffer(nil)
	if _, err := s.downloader.Download(ctx, buf, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key),
	}); err != nil {
		return nil, fmt.Errorf("s3 get %s/%s: %w", s.bucket, s.key, err)
	}
	return ParseBundle(bytes.NewReader(buf.Bytes()))
}
