package fallback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ILLUVRSE/placements/placement-engine/internal/models"
)

// ErrUnavailable is returned when no source has data for a placement.
var ErrUnavailable = errors.New("fallback unavailable")

// Remote is a higher-availability source of fallback snapshots.
type Remote interface {
	FallbackCandidates(ctx context.Context, q models.Query) (models.Candidates, error)
	FallbackByID(ctx context.Context, q models.Query, variationID string) (models.Variation, error)
}

// Provider combines the bundled snapshot with remote sources, tried in order.
type Provider struct {
	local   *Bundle
	remotes []Remote
	logger  *slog.Logger
}

func NewProvider(local *Bundle, logger *slog.Logger, remotes ...Remote) *Provider {
	if logger == nil {
		logger = slog.Default()
	}
	return &Provider{local: local, remotes: remotes, logger: logger}
}

// LocalCandidates returns the bundled variations for a placement together
// with the bundle's snapshot time. ok is false when nothing is bundled.
func (p *Provider) LocalCandidates(kind models.Kind, placementID string) ([]models.Variation, time.Time, bool) {
	if p == nil || p.local == nil {
		return nil, time.Time{}, false
	}
	variations, ok := p.local.Candidates(kind, placementID)
	if !ok {
		return nil, time.Time{}, false
	}
	return variations, p.local.SnapshotAt, true
}

// RemoteFallback returns the candidates of the first remote that has any.
func (p *Provider) RemoteFallback(ctx context.Context, q models.Query) ([]models.Variation, error) {
	var errs []error
	for i, remote := range p.remotesOrNil() {
		c, err := remote.FallbackCandidates(ctx, q)
		if err == nil && len(c.Variations) == 0 {
			err = ErrUnavailable
		}
		if err != nil {
			p.logger.Debug("remote fallback source failed",
				"source", i, "placement_id", q.PlacementID, "error", err)
			errs = append(errs, err)
			continue
		}
		for j := range c.Variations {
			if c.Variations[j].SnapshotAt.IsZero() {
				c.Variations[j].SnapshotAt = c.SnapshotAt
			}
		}
		return c.Variations, nil
	}
	return nil, p.exhausted(q, errs)
}

// RemoteFallbackByID fetches one specific variation from the remotes.
func (p *Provider) RemoteFallbackByID(ctx context.Context, q models.Query, variationID string) (models.Variation, error) {
	var errs []error
	for i, remote := range p.remotesOrNil() {
		v, err := remote.FallbackByID(ctx, q, variationID)
		if err != nil {
			p.logger.Debug("remote fallback source failed",
				"source", i, "placement_id", q.PlacementID, "variation_id", variationID, "error", err)
			errs = append(errs, err)
			continue
		}
		return v, nil
	}
	return models.Variation{}, p.exhausted(q, errs)
}

func (p *Provider) remotesOrNil() []Remote {
	if p == nil {
		return nil
	}
	return p.remotes
}

func (p *Provider) exhausted(q models.Query, errs []error) error {
	if len(errs) == 0 {
		return fmt.Errorf("%w: no remote source for %s", ErrUnavailable, q.PlacementID)
	}
	return fmt.Errorf("%w: %s: %w", ErrUnavailable, q.PlacementID, errors.Join(errs...))
}
