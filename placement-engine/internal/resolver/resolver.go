// Package resolver decides which variation a profile sees for a placement.
// It serves from the cache when the fetch policy allows, otherwise from the
// backend under a timeout, and degrades through the fallback chain when the
// backend fails.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/ILLUVRSE/placements/placement-engine/internal/analytics"
	"github.com/ILLUVRSE/placements/placement-engine/internal/cache"
	"github.com/ILLUVRSE/placements/placement-engine/internal/checkpoint"
	"github.com/ILLUVRSE/placements/placement-engine/internal/crossplacement"
	"github.com/ILLUVRSE/placements/placement-engine/internal/fallback"
	"github.com/ILLUVRSE/placements/placement-engine/internal/models"
)

const defaultTimeout = 5 * time.Second

// Network is the live variations backend.
type Network interface {
	Candidates(ctx context.Context, q models.Query) (models.Candidates, error)
	VariationByID(ctx context.Context, q models.Query, variationID string) (models.Variation, error)
}

type ProfileProvider interface {
	Current(ctx context.Context) (models.Profile, error)
	Refresh(ctx context.Context) (models.Profile, error)
}

type FallbackProvider interface {
	LocalCandidates(kind models.Kind, placementID string) ([]models.Variation, time.Time, bool)
	RemoteFallback(ctx context.Context, q models.Query) ([]models.Variation, error)
	RemoteFallbackByID(ctx context.Context, q models.Query, variationID string) (models.Variation, error)
}

type AnalyticsSink interface {
	Track(ctx context.Context, name string, attrs map[string]any) error
}

// Deps wires a Resolver. Network, Profiles and Cache are required.
type Deps struct {
	Network   Network
	Profiles  ProfileProvider
	Cache     *cache.Store
	Guard     *crossplacement.Guard
	Fallback  FallbackProvider
	Analytics AnalyticsSink
	Logger    *slog.Logger

	// DefaultTimeout applies to requests without their own timeout,
	// including every untargeted fetch.
	DefaultTimeout time.Duration
}

// Resolver serves one profile. Its guard, checkpoint table and cache are
// shared by every concurrent resolution for that profile.
type Resolver struct {
	network        Network
	profiles       ProfileProvider
	cache          *cache.Store
	guard          *crossplacement.Guard
	tracker        *checkpoint.Tracker
	fallback       FallbackProvider
	sink           AnalyticsSink
	logger         *slog.Logger
	defaultTimeout time.Duration
	newID          func() string
}

func New(d Deps) (*Resolver, error) {
	if d.Network == nil || d.Profiles == nil || d.Cache == nil {
		return nil, errors.New("resolver: network, profiles and cache are required")
	}
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	guard := d.Guard
	if guard == nil {
		guard = crossplacement.NewGuard(d.Cache, logger)
	}
	var fb FallbackProvider = fallback.NewProvider(nil, logger)
	if d.Fallback != nil {
		fb = d.Fallback
	}
	var sink AnalyticsSink = analytics.Discard{}
	if d.Analytics != nil {
		sink = d.Analytics
	}
	timeout := d.DefaultTimeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Resolver{
		network:        d.Network,
		profiles:       d.Profiles,
		cache:          d.Cache,
		guard:          guard,
		tracker:        checkpoint.NewTracker(),
		fallback:       fb,
		sink:           sink,
		logger:         logger,
		defaultTimeout: timeout,
		newID:          uuid.NewString,
	}, nil
}

type Request struct {
	Kind        models.Kind
	PlacementID string
	Locale      string
	Policy      models.FetchPolicy
	// Timeout bounds the network path; zero means the resolver default.
	Timeout    time.Duration
	Untargeted bool
}

func (r *Resolver) FetchPaywall(ctx context.Context, placementID, locale string, policy models.FetchPolicy, timeout time.Duration) (models.Variation, error) {
	return r.Resolve(ctx, Request{Kind: models.KindPaywall, PlacementID: placementID, Locale: locale, Policy: policy, Timeout: timeout})
}

func (r *Resolver) FetchOnboarding(ctx context.Context, placementID, locale string, policy models.FetchPolicy, timeout time.Duration) (models.Variation, error) {
	return r.Resolve(ctx, Request{Kind: models.KindOnboarding, PlacementID: placementID, Locale: locale, Policy: policy, Timeout: timeout})
}

// FetchUntargetedPaywall skips segment targeting and uses the default timeout.
func (r *Resolver) FetchUntargetedPaywall(ctx context.Context, placementID, locale string, policy models.FetchPolicy) (models.Variation, error) {
	return r.Resolve(ctx, Request{Kind: models.KindPaywall, PlacementID: placementID, Locale: locale, Policy: policy, Untargeted: true})
}

func (r *Resolver) FetchUntargetedOnboarding(ctx context.Context, placementID, locale string, policy models.FetchPolicy) (models.Variation, error) {
	return r.Resolve(ctx, Request{Kind: models.KindOnboarding, PlacementID: placementID, Locale: locale, Policy: policy, Untargeted: true})
}

// InFlight reports how many network resolutions still hold a checkpoint.
func (r *Resolver) InFlight() int {
	return r.tracker.Len()
}

func (r *Resolver) Resolve(ctx context.Context, req Request) (v models.Variation, err error) {
	if _, err := models.ParseKind(string(req.Kind)); err != nil {
		return models.Variation{}, err
	}
	if req.PlacementID == "" {
		return models.Variation{}, errors.New("placement id required")
	}
	if req.Policy == nil {
		req.Policy = models.DefaultFetchPolicy()
	}

	start := time.Now()
	source := sourceNone
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		resolutionsTotal.WithLabelValues(string(req.Kind), source, outcome).Inc()
		resolutionDuration.WithLabelValues(string(req.Kind)).Observe(time.Since(start).Seconds())
	}()

	cached, ok, err := r.fromCache(ctx, req)
	if err != nil {
		return models.Variation{}, err
	}
	if ok {
		source = sourceCache
		return cached, nil
	}
	v, source, err = r.fromNetwork(ctx, req)
	return v, err
}

func (r *Resolver) fromCache(ctx context.Context, req Request) (models.Variation, bool, error) {
	locales := cache.Locales(req.Locale)
	switch p := req.Policy.(type) {
	case models.ReloadRevalidatingCacheData:
		return models.Variation{}, false, nil
	case models.ReturnCacheDataElseLoad:
		v, ok := r.cache.Get(ctx, req.Kind, req.PlacementID, locales, nil)
		return v, ok, nil
	case models.ReturnCacheDataIfNotExpiredElseLoad:
		maxAge := p.MaxAge
		v, ok := r.cache.Get(ctx, req.Kind, req.PlacementID, locales, &maxAge)
		return v, ok, nil
	default:
		return models.Variation{}, false, fmt.Errorf("unsupported fetch policy %T", req.Policy)
	}
}

type networkResult struct {
	v   models.Variation
	err error
}

// fromNetwork races the network path against the timeout. The network work
// runs detached from ctx so a late result still reaches the cache; the
// checkpoint is discarded once both sides are done with it.
func (r *Resolver) fromNetwork(ctx context.Context, req Request) (models.Variation, string, error) {
	profile, err := r.profiles.Current(ctx)
	if err != nil {
		return models.Variation{}, sourceNone, fmt.Errorf("read profile: %w", err)
	}

	requestID := r.newID()
	r.tracker.Start(requestID)
	var holders atomic.Int32
	holders.Store(2)
	release := func() {
		if holders.Add(-1) == 0 {
			r.tracker.Discard(requestID)
		}
	}
	defer release()

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = r.defaultTimeout
	}

	results := make(chan networkResult, 1)
	go func() {
		defer release()
		v, err := r.loadFromNetwork(context.WithoutCancel(ctx), req, profile, requestID)
		results <- networkResult{v: v, err: err}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case res := <-results:
		if res.err == nil {
			return res.v, sourceNetwork, nil
		}
		if fatal(res.err) {
			return models.Variation{}, sourceNone, res.err
		}
		desired, _ := checkpoint.AssignedID(r.tracker.Get(requestID))
		return r.resolveFallback(ctx, req, profile.ProfileID, requestID, desired, false, res.err)

	case <-timer.C:
		prev := r.tracker.GetAndUpdate(requestID, checkpoint.TimedOut{})
		cause := fmt.Errorf("%w: %s %s after %s", ErrTimeout, req.Kind, req.PlacementID, timeout)
		if id, ok := checkpoint.AssignedID(prev); ok {
			timeoutsTotal.WithLabelValues("assigned").Inc()
			return r.resolveFallback(ctx, req, profile.ProfileID, requestID, id, true, cause)
		}
		timeoutsTotal.WithLabelValues("unspecified").Inc()
		return r.resolveFallback(ctx, req, profile.ProfileID, requestID, "", false, cause)

	case <-ctx.Done():
		return models.Variation{}, sourceNone, ctx.Err()
	}
}

// fatal errors end the request without consulting any fallback.
func fatal(err error) bool {
	return errors.Is(err, ErrDecodingFailed) || errors.Is(err, ErrProfileChanged)
}

func (r *Resolver) loadFromNetwork(ctx context.Context, req Request, profile models.Profile, requestID string) (models.Variation, error) {
	if id, ok := r.pinned(ctx, req.PlacementID); ok {
		v, err := r.network.VariationByID(ctx, r.query(req, profile), id)
		if err != nil {
			return models.Variation{}, fmt.Errorf("fetch pinned variation %s: %w", id, err)
		}
		if err := r.checkProfile(ctx, profile.ProfileID); err != nil {
			return models.Variation{}, err
		}
		v = normalize(req, v, time.Time{})
		r.save(ctx, req, v)
		r.assign(ctx, req, requestID, profile.ProfileID, v)
		return v, nil
	}

	candidates, profile, err := r.fetchCandidates(ctx, req, profile)
	if err != nil {
		return models.Variation{}, err
	}
	if err := r.checkProfile(ctx, profile.ProfileID); err != nil {
		return models.Variation{}, err
	}

	if cached, ok := r.cache.Get(ctx, req.Kind, req.PlacementID, cache.Locales(req.Locale), nil); ok &&
		cached.SnapshotAt.After(candidates.SnapshotAt) {
		r.logger.Debug("cached variation newer than candidates, keeping it",
			"placement_id", req.PlacementID,
			"variation_id", cached.VariationID,
			"cached_snapshot_at", cached.SnapshotAt,
			"candidates_snapshot_at", candidates.SnapshotAt)
		r.assign(ctx, req, requestID, profile.ProfileID, cached)
		return cached, nil
	}

	q := r.query(req, profile)
	variations := normalizeAll(req, candidates.Variations, candidates.SnapshotAt)
	v, err := r.extract(ctx, req, profile.ProfileID, requestID, variations, func(ctx context.Context, id string) (models.Variation, error) {
		return r.network.VariationByID(ctx, q, id)
	})
	if err != nil {
		return models.Variation{}, err
	}
	r.save(ctx, req, v)
	return v, nil
}

const maxSegmentRetries = 1

// fetchCandidates corrects a stale segment hash with at most one profile
// refresh. A refresh that keeps the segment, or a second mismatch, returns
// the mismatch to the caller.
func (r *Resolver) fetchCandidates(ctx context.Context, req Request, profile models.Profile) (models.Candidates, models.Profile, error) {
	for attempt := 0; ; attempt++ {
		c, err := r.network.Candidates(ctx, r.query(req, profile))
		if err == nil {
			return c, profile, nil
		}
		if !errors.Is(err, ErrSegmentMismatch) || attempt >= maxSegmentRetries {
			return models.Candidates{}, profile, err
		}
		refreshed, rerr := r.profiles.Refresh(ctx)
		if rerr != nil {
			return models.Candidates{}, profile, fmt.Errorf("%w (profile refresh failed: %v)", err, rerr)
		}
		if refreshed.ProfileID != profile.ProfileID {
			return models.Candidates{}, profile, ErrProfileChanged
		}
		if refreshed.SegmentID == profile.SegmentID {
			return models.Candidates{}, profile, err
		}
		segmentRetriesTotal.Inc()
		r.logger.Info("segment hash refreshed, retrying candidates",
			"placement_id", req.PlacementID, "segment_id", refreshed.SegmentID)
		profile = refreshed
	}
}

func (r *Resolver) checkProfile(ctx context.Context, dispatchedID string) error {
	current, err := r.profiles.Current(ctx)
	if err != nil {
		return fmt.Errorf("read profile: %w", err)
	}
	if current.ProfileID != dispatchedID {
		return fmt.Errorf("%w: dispatched for %s, now %s", ErrProfileChanged, dispatchedID, current.ProfileID)
	}
	return nil
}

func (r *Resolver) query(req Request, profile models.Profile) models.Query {
	q := models.Query{
		Kind:        req.Kind,
		PlacementID: req.PlacementID,
		Locale:      req.Locale,
		Untargeted:  req.Untargeted,
	}
	if !req.Untargeted {
		q.SegmentID = profile.SegmentID
	}
	return q
}

// save caches v and returns whatever the cache retained.
// save writes v through the cache's anti-regression rule. The caller still
// returns v: it is the variation that was checkpointed and reported.
func (r *Resolver) save(ctx context.Context, req Request, v models.Variation) {
	kept, err := r.cache.Save(ctx, req.Kind, req.PlacementID, v)
	if err != nil {
		r.logger.Warn("cache save failed",
			"placement_id", req.PlacementID, "variation_id", v.VariationID, "error", err)
		return
	}
	if kept.VariationID != v.VariationID || !kept.SnapshotAt.Equal(v.SnapshotAt) {
		r.logger.Debug("cache kept newer variation",
			"placement_id", req.PlacementID,
			"variation_id", v.VariationID,
			"cached_variation_id", kept.VariationID)
	}
}

func normalize(req Request, v models.Variation, snapshotAt time.Time) models.Variation {
	if v.Kind == "" {
		v.Kind = req.Kind
	}
	if v.Placement.ID == "" {
		v.Placement.ID = req.PlacementID
	}
	if v.SnapshotAt.IsZero() {
		v.SnapshotAt = snapshotAt
	}
	if v.Locale == "" {
		v.Locale = req.Locale
	}
	return v
}

func normalizeAll(req Request, vs []models.Variation, snapshotAt time.Time) []models.Variation {
	out := make([]models.Variation, len(vs))
	for i, v := range vs {
		out[i] = normalize(req, v, snapshotAt)
	}
	return out
}
