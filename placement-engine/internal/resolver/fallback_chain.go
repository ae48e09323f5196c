package resolver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ILLUVRSE/placements/placement-engine/internal/cache"
	"github.com/ILLUVRSE/placements/placement-engine/internal/models"
)

type rung struct {
	source string
	try    func() (models.Variation, error)
}

// resolveFallback walks the fallback rungs for a failed network path.
//
// With no desiredID the order is cache, bundled snapshot, remote snapshot and
// each rung may pick. With a desiredID every rung only accepts that
// variation; preferRemote moves the remote rung to the front, which is what a
// timeout after assignment needs. Rung failures are logged and skipped; cause
// is returned when every rung fails.
func (r *Resolver) resolveFallback(ctx context.Context, req Request, profileID, requestID, desiredID string, preferRemote bool, cause error) (models.Variation, string, error) {
	q := r.query(req, models.Profile{ProfileID: profileID})
	bundled, bundledAt, hasBundled := r.fallback.LocalCandidates(req.Kind, req.PlacementID)

	cached := rung{sourceCachedFallback, func() (models.Variation, error) {
		v, ok := r.cache.Get(ctx, req.Kind, req.PlacementID, cache.Locales(req.Locale), nil)
		switch {
		case !ok:
			return models.Variation{}, errors.New("cache miss")
		case desiredID != "" && v.VariationID != desiredID:
			return models.Variation{}, fmt.Errorf("cached %s, want %s", v.VariationID, desiredID)
		case hasBundled && v.SnapshotAt.Before(bundledAt):
			return models.Variation{}, errors.New("cached value older than bundled snapshot")
		}
		return v, nil
	}}

	local := rung{sourceLocalFallback, func() (models.Variation, error) {
		if !hasBundled {
			return models.Variation{}, errors.New("nothing bundled")
		}
		variations := normalizeAll(req, bundled, bundledAt)
		if desiredID != "" {
			v, ok := findByID(variations, desiredID)
			if !ok {
				return models.Variation{}, fmt.Errorf("%s not bundled", desiredID)
			}
			return v, nil
		}
		return r.extract(ctx, req, profileID, requestID, variations, nil)
	}}

	remote := rung{sourceRemoteFallback, func() (models.Variation, error) {
		if desiredID != "" {
			v, err := r.fallback.RemoteFallbackByID(ctx, q, desiredID)
			if err != nil {
				return models.Variation{}, err
			}
			v = normalize(req, v, time.Time{})
			r.save(ctx, req, v)
			return v, nil
		}
		variations, err := r.fallback.RemoteFallback(ctx, q)
		if err != nil {
			return models.Variation{}, err
		}
		v, err := r.extract(ctx, req, profileID, requestID, normalizeAll(req, variations, time.Time{}),
			func(ctx context.Context, id string) (models.Variation, error) {
				return r.fallback.RemoteFallbackByID(ctx, q, id)
			})
		if err != nil {
			return models.Variation{}, err
		}
		r.save(ctx, req, v)
		return v, nil
	}}

	rungs := []rung{cached, local, remote}
	if preferRemote {
		rungs = []rung{remote, cached, local}
	}
	for _, rg := range rungs {
		v, err := rg.try()
		if err != nil {
			fallbackRungsTotal.WithLabelValues(rg.source, "miss").Inc()
			r.logger.Debug("fallback rung failed",
				"rung", rg.source, "placement_id", req.PlacementID, "desired_variation_id", desiredID, "error", err)
			continue
		}
		fallbackRungsTotal.WithLabelValues(rg.source, "hit").Inc()
		r.logger.Info("placement served from fallback",
			"rung", rg.source,
			"placement_id", req.PlacementID,
			"variation_id", v.VariationID,
			"cause", cause.Error())
		return v, rg.source, nil
	}
	return models.Variation{}, sourceNone, cause
}
