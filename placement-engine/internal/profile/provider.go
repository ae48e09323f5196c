// Package profile tracks the identity and segment of the profile a resolver
// works for, refreshing it from the backend on demand.
package profile

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/ILLUVRSE/placements/placement-engine/internal/models"
)

type Fetcher interface {
	Profile(ctx context.Context, profileID string) (models.Profile, error)
}

// InfoApplier receives server-issued cross placement maps.
type InfoApplier interface {
	ApplyServer(ctx context.Context, info *models.CrossPlacementInfo) (bool, error)
}

type Provider struct {
	fetcher Fetcher
	applier InfoApplier
	logger  *slog.Logger
	group   singleflight.Group

	mu      sync.RWMutex
	current models.Profile
}

// NewProvider starts from initial; fetcher and applier may be nil, in which
// case Refresh only returns the current profile.
func NewProvider(initial models.Profile, fetcher Fetcher, applier InfoApplier, logger *slog.Logger) *Provider {
	if logger == nil {
		logger = slog.Default()
	}
	return &Provider{
		fetcher: fetcher,
		applier: applier,
		logger:  logger,
		current: initial,
	}
}

func (p *Provider) Current(ctx context.Context) (models.Profile, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.current, nil
}

// SetSegment records a segment learned out of band, e.g. from a token.
func (p *Provider) SetSegment(segmentID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.current.SegmentID = segmentID
}

// Refresh re-reads the profile from the backend. Concurrent callers share a
// single fetch.
func (p *Provider) Refresh(ctx context.Context) (models.Profile, error) {
	if p.fetcher == nil {
		return p.Current(ctx)
	}
	res, err, _ := p.group.Do("refresh", func() (interface{}, error) {
		return p.refresh(ctx)
	})
	if err != nil {
		return models.Profile{}, err
	}
	return res.(models.Profile), nil
}

func (p *Provider) refresh(ctx context.Context) (models.Profile, error) {
	prev, _ := p.Current(ctx)
	fetched, err := p.fetcher.Profile(ctx, prev.ProfileID)
	if err != nil {
		return models.Profile{}, fmt.Errorf("refresh profile %s: %w", prev.ProfileID, err)
	}
	if fetched.ProfileID == "" {
		fetched.ProfileID = prev.ProfileID
	}
	if fetched.ProfileID != prev.ProfileID {
		p.logger.Info("profile identity changed on refresh",
			"previous_profile_id", prev.ProfileID, "profile_id", fetched.ProfileID)
	}

	p.mu.Lock()
	p.current = fetched
	p.mu.Unlock()

	if p.applier != nil && fetched.CrossPlacementInfo != nil {
		if _, err := p.applier.ApplyServer(ctx, fetched.CrossPlacementInfo); err != nil {
			p.logger.Warn("apply server cross placement info failed",
				"profile_id", fetched.ProfileID, "error", err)
		}
	}
	return fetched, nil
}
