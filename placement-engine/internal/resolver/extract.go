package resolver

import (
	"context"
	"fmt"

	"github.com/ILLUVRSE/placements/placement-engine/internal/analytics"
	"github.com/ILLUVRSE/placements/placement-engine/internal/checkpoint"
	"github.com/ILLUVRSE/placements/placement-engine/internal/models"
	"github.com/ILLUVRSE/placements/placement-engine/internal/picker"
)

// lookupFunc fetches one variation by id from the source that produced the
// candidates. nil means the source cannot look variations up.
type lookupFunc func(ctx context.Context, variationID string) (models.Variation, error)

// pinned reports the variation the stored cross placement map assigns to
// placementID, read without the guard's write lock.
func (r *Resolver) pinned(ctx context.Context, placementID string) (string, bool) {
	info, err := r.guard.Current(ctx)
	if err != nil {
		r.logger.Warn("read cross placement info failed", "error", err)
		return "", false
	}
	return info.VariationFor(placementID)
}

// extract reduces a candidate set to one variation. Candidates that carry
// cross placement data are decided inside the guard so a pin written
// concurrently for another placement is observed. The checkpoint update and
// the analytics event happen after the guard is released.
func (r *Resolver) extract(ctx context.Context, req Request, profileID, requestID string, candidates []models.Variation, lookup lookupFunc) (models.Variation, error) {
	if len(candidates) == 0 {
		return models.Variation{}, fmt.Errorf("%w: no candidates for %s %s", ErrDecodingFailed, req.Kind, req.PlacementID)
	}

	choose := func(current *models.CrossPlacementInfo) (models.Variation, error) {
		if id, ok := current.VariationFor(req.PlacementID); ok {
			if v, found := findByID(candidates, id); found {
				return v, nil
			}
			if lookup == nil {
				return models.Variation{}, fmt.Errorf("%w: pinned variation %s not among candidates", ErrNotFound, id)
			}
			v, err := lookup(ctx, id)
			if err != nil {
				return models.Variation{}, fmt.Errorf("fetch pinned variation %s: %w", id, err)
			}
			return normalize(req, v, candidates[0].SnapshotAt), nil
		}
		return pickOne(candidates, profileID, req.PlacementID)
	}

	var chosen models.Variation
	if !hasCrossPlacement(candidates) {
		current, err := r.guard.Current(ctx)
		if err != nil {
			r.logger.Warn("read cross placement info failed", "error", err)
			current = nil
		}
		if chosen, err = choose(current); err != nil {
			return models.Variation{}, err
		}
	} else {
		err := r.guard.Do(ctx, func(current *models.CrossPlacementInfo) (*models.CrossPlacementInfo, error) {
			v, err := choose(current)
			if err != nil {
				return nil, err
			}
			chosen = v
			return v.CrossPlacementInfo, nil
		})
		if err != nil {
			return models.Variation{}, err
		}
	}

	r.assign(ctx, req, requestID, profileID, chosen)
	return chosen, nil
}

// assign records the decision for the request and emits variation_assigned
// the first time the request is assigned.
func (r *Resolver) assign(ctx context.Context, req Request, requestID, profileID string, v models.Variation) {
	prev := r.tracker.GetAndUpdate(requestID, checkpoint.VariationAssigned{VariationID: v.VariationID})
	if _, already := checkpoint.AssignedID(prev); already {
		return
	}
	err := r.sink.Track(ctx, analytics.EventVariationAssigned, map[string]any{
		"request_id":    requestID,
		"profile_id":    profileID,
		"kind":          string(req.Kind),
		"placement_id":  req.PlacementID,
		"variation_id":  v.VariationID,
		"ab_test_name":  v.Placement.ABTestName,
		"audience_name": v.Placement.AudienceName,
		"revision":      v.Placement.Revision,
		"untargeted":    req.Untargeted,
	})
	if err != nil {
		r.logger.Warn("track variation assigned failed",
			"placement_id", req.PlacementID, "variation_id", v.VariationID, "error", err)
	}
}

func pickOne(candidates []models.Variation, profileID, placementID string) (models.Variation, error) {
	if len(candidates) == 1 {
		return candidates[0], nil
	}
	v, ok := picker.Pick(candidates, profileID)
	if !ok {
		return models.Variation{}, fmt.Errorf("%w: candidates for %s carry no weight", ErrDecodingFailed, placementID)
	}
	return v, nil
}

func hasCrossPlacement(candidates []models.Variation) bool {
	for _, v := range candidates {
		if !v.CrossPlacementInfo.IsEmpty() {
			return true
		}
	}
	return false
}

func findByID(candidates []models.Variation, id string) (models.Variation, bool) {
	for _, v := range candidates {
		if v.VariationID == id {
			return v, true
		}
	}
	return models.Variation{}, false
}
