package resolver

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ILLUVRSE/placements/placement-engine/internal/cache"
	"github.com/ILLUVRSE/placements/placement-engine/internal/models"
	"github.com/ILLUVRSE/placements/placement-engine/internal/picker"
	"github.com/ILLUVRSE/placements/placement-engine/internal/store"
)

var (
	epoch       = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	errUpstream = errors.New("upstream 503")
)

type fakeNetwork struct {
	mu           sync.Mutex
	candidatesFn func(q models.Query) (models.Candidates, error)
	byIDFn       func(q models.Query, id string) (models.Variation, error)
	queries      []models.Query
	byIDCalls    []string
}

func (f *fakeNetwork) Candidates(ctx context.Context, q models.Query) (models.Candidates, error) {
	f.mu.Lock()
	f.queries = append(f.queries, q)
	fn := f.candidatesFn
	f.mu.Unlock()
	if fn == nil {
		return models.Candidates{}, errUpstream
	}
	return fn(q)
}

func (f *fakeNetwork) VariationByID(ctx context.Context, q models.Query, id string) (models.Variation, error) {
	f.mu.Lock()
	f.byIDCalls = append(f.byIDCalls, id)
	fn := f.byIDFn
	f.mu.Unlock()
	if fn == nil {
		return models.Variation{}, ErrNotFound
	}
	return fn(q, id)
}

func (f *fakeNetwork) candidateCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queries)
}

type fakeProfiles struct {
	mu        sync.Mutex
	current   models.Profile
	refreshFn func(models.Profile) models.Profile
	refreshes int
}

func (f *fakeProfiles) Current(context.Context) (models.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current, nil
}

func (f *fakeProfiles) Refresh(context.Context) (models.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshes++
	if f.refreshFn != nil {
		f.current = f.refreshFn(f.current)
	}
	return f.current, nil
}

func (f *fakeProfiles) set(p models.Profile) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.current = p
}

type fakeFallback struct {
	mu          sync.Mutex
	local       []models.Variation
	localAt     time.Time
	remote      []models.Variation
	remoteByID  map[string]models.Variation
	remoteCalls int
	byIDCalls   []string
}

func (f *fakeFallback) LocalCandidates(kind models.Kind, placementID string) ([]models.Variation, time.Time, bool) {
	if len(f.local) == 0 {
		return nil, time.Time{}, false
	}
	return append([]models.Variation(nil), f.local...), f.localAt, true
}

func (f *fakeFallback) RemoteFallback(ctx context.Context, q models.Query) ([]models.Variation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.remoteCalls++
	if len(f.remote) == 0 {
		return nil, errors.New("remote fallback unavailable")
	}
	return f.remote, nil
}

func (f *fakeFallback) RemoteFallbackByID(ctx context.Context, q models.Query, id string) (models.Variation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byIDCalls = append(f.byIDCalls, id)
	v, ok := f.remoteByID[id]
	if !ok {
		return models.Variation{}, errors.New("remote fallback unavailable")
	}
	return v, nil
}

type recordingSink struct {
	mu         sync.Mutex
	events     []map[string]any
	blockFirst chan struct{}
}

func (s *recordingSink) Track(ctx context.Context, name string, attrs map[string]any) error {
	s.mu.Lock()
	s.events = append(s.events, attrs)
	first := len(s.events) == 1
	s.mu.Unlock()
	if first && s.blockFirst != nil {
		<-s.blockFirst
	}
	return nil
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

type harness struct {
	resolver *Resolver
	network  *fakeNetwork
	profiles *fakeProfiles
	fallback *fakeFallback
	sink     *recordingSink
	cache    *cache.Store
	now      time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		network:  &fakeNetwork{},
		profiles: &fakeProfiles{current: models.Profile{ProfileID: "u1", SegmentID: "seg-1"}},
		fallback: &fakeFallback{},
		sink:     &recordingSink{},
		now:      epoch,
	}
	h.cache = cache.New(store.NewMemoryStore(), cache.WithClock(func() time.Time { return h.now }))
	r, err := New(Deps{
		Network:        h.network,
		Profiles:       h.profiles,
		Cache:          h.cache,
		Fallback:       h.fallback,
		Analytics:      h.sink,
		DefaultTimeout: 2 * time.Second,
	})
	require.NoError(t, err)
	h.resolver = r
	return h
}

func variation(id string, weight int, snapshot time.Time) models.Variation {
	return models.Variation{
		VariationID: id,
		Kind:        models.KindPaywall,
		Placement:   models.Placement{ID: "main_paywall", AudienceVersionID: "aud-1"},
		Weight:      weight,
		SnapshotAt:  snapshot,
		Locale:      "en",
	}
}

func serve(vs ...models.Variation) func(models.Query) (models.Candidates, error) {
	return func(models.Query) (models.Candidates, error) {
		c := models.Candidates{Variations: vs}
		if len(vs) > 0 {
			c.SnapshotAt = vs[0].SnapshotAt
		}
		return c, nil
	}
}

func (h *harness) waitIdle(t *testing.T) {
	t.Helper()
	assert.Eventually(t, func() bool { return h.resolver.InFlight() == 0 }, time.Second, 5*time.Millisecond)
}

func TestNewRequiresCollaborators(t *testing.T) {
	_, err := New(Deps{})
	assert.Error(t, err)
}

func TestEndToEndResolutionIsCachedAndStable(t *testing.T) {
	h := newHarness(t)
	candidates := []models.Variation{variation("va", 50, epoch), variation("vb", 50, epoch)}
	h.network.candidatesFn = serve(candidates...)
	want, ok := picker.Pick(candidates, "u1")
	require.True(t, ok)
	ctx := context.Background()

	first, err := h.resolver.FetchPaywall(ctx, "main_paywall", "en", models.ReloadRevalidatingCacheData{}, time.Second)
	require.NoError(t, err)
	assert.Equal(t, want.VariationID, first.VariationID)
	assert.True(t, first.SnapshotAt.Equal(epoch))

	second, err := h.resolver.FetchPaywall(ctx, "main_paywall", "en", models.ReturnCacheDataElseLoad{}, time.Second)
	require.NoError(t, err)
	assert.Equal(t, want.VariationID, second.VariationID)
	assert.Equal(t, 1, h.network.candidateCalls(), "second resolution must come from cache")

	again, err := h.resolver.FetchPaywall(ctx, "main_paywall", "en", models.ReloadRevalidatingCacheData{}, time.Second)
	require.NoError(t, err)
	assert.Equal(t, want.VariationID, again.VariationID, "reload must not re-randomize")

	assert.Equal(t, 2, h.sink.count())
	assert.Equal(t, "seg-1", h.network.queries[0].SegmentID)
	h.waitIdle(t)
}

func TestPolicyHonoursMaxAge(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.cache.Save(ctx, models.KindPaywall, "main_paywall", variation("va", 50, epoch.Add(-30*time.Second)))
	require.NoError(t, err)
	h.network.candidatesFn = serve(variation("vb", 100, epoch))
	policy := models.ReturnCacheDataIfNotExpiredElseLoad{MaxAge: time.Minute}

	got, err := h.resolver.FetchPaywall(ctx, "main_paywall", "en", policy, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "va", got.VariationID)
	assert.Equal(t, 0, h.network.candidateCalls())

	h.now = epoch.Add(60 * time.Second)
	got, err = h.resolver.FetchPaywall(ctx, "main_paywall", "en", policy, time.Second)
	require.NoError(t, err)
	assert.Equal(t, 1, h.network.candidateCalls())
	assert.Equal(t, "vb", got.VariationID)
}

func TestOlderCandidatesNeverReplaceNewerCache(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.cache.Save(ctx, models.KindPaywall, "main_paywall", variation("va", 50, epoch.Add(100*time.Second)))
	require.NoError(t, err)

	h.network.candidatesFn = serve(variation("vb", 100, epoch.Add(90*time.Second)))
	got, err := h.resolver.FetchPaywall(ctx, "main_paywall", "en", nil, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "va", got.VariationID)

	h.network.candidatesFn = serve(variation("vb", 100, epoch.Add(110*time.Second)))
	got, err = h.resolver.FetchPaywall(ctx, "main_paywall", "en", nil, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "vb", got.VariationID)

	cached, ok := h.cache.Get(ctx, models.KindPaywall, "main_paywall", []string{"en"}, nil)
	require.True(t, ok)
	assert.Equal(t, "vb", cached.VariationID)
}

func TestStoredPinBypassesPicking(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.cache.SaveCrossPlacementInfo(ctx, &models.CrossPlacementInfo{
		PlacementWithVariationMap: map[string]string{"p1": "varB"},
		Version:                   1,
	}))
	h.network.candidatesFn = serve(variation("varA", 100, epoch), variation("varB", 1, epoch))
	h.network.byIDFn = func(q models.Query, id string) (models.Variation, error) {
		return variation(id, 1, epoch), nil
	}

	got, err := h.resolver.FetchPaywall(ctx, "p1", "en", nil, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "varB", got.VariationID)
	assert.Equal(t, []string{"varB"}, h.network.byIDCalls)
	assert.Equal(t, 0, h.network.candidateCalls())
	assert.Equal(t, 1, h.sink.count())
}

func TestPinnedVariationWinsOverNewerCachedOne(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	newer := variation("varA", 1, epoch.Add(100*time.Second))
	newer.Placement.ID = "p1"
	_, err := h.cache.Save(ctx, models.KindPaywall, "p1", newer)
	require.NoError(t, err)
	require.NoError(t, h.cache.SaveCrossPlacementInfo(ctx, &models.CrossPlacementInfo{
		PlacementWithVariationMap: map[string]string{"p1": "varB"},
		Version:                   1,
	}))
	h.network.byIDFn = func(q models.Query, id string) (models.Variation, error) {
		return variation(id, 1, epoch), nil
	}

	got, err := h.resolver.FetchPaywall(ctx, "p1", "en", models.ReloadRevalidatingCacheData{}, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "varB", got.VariationID)

	h.sink.mu.Lock()
	require.Len(t, h.sink.events, 1)
	assert.Equal(t, "varB", h.sink.events[0]["variation_id"])
	h.sink.mu.Unlock()

	cached, ok := h.cache.Get(ctx, models.KindPaywall, "p1", []string{"en"}, nil)
	require.True(t, ok)
	assert.Equal(t, "varA", cached.VariationID)
}

func TestPinWrittenConcurrentlyIsHonoured(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	pinA := &models.CrossPlacementInfo{PlacementWithVariationMap: map[string]string{"p1": "varA", "p2": "x"}}
	pinB := &models.CrossPlacementInfo{PlacementWithVariationMap: map[string]string{"p1": "varB", "p2": "y"}}
	varA := variation("varA", 100, epoch)
	varA.CrossPlacementInfo = pinA
	varB := variation("varB", 1, epoch)
	varB.CrossPlacementInfo = pinB

	h.network.candidatesFn = func(models.Query) (models.Candidates, error) {
		// another placement's resolution lands first
		assert.NoError(t, h.cache.SaveCrossPlacementInfo(ctx, &models.CrossPlacementInfo{
			PlacementWithVariationMap: pinB.PlacementWithVariationMap,
			Version:                   1,
		}))
		return models.Candidates{Variations: []models.Variation{varA, varB}, SnapshotAt: epoch}, nil
	}

	got, err := h.resolver.FetchPaywall(ctx, "p1", "en", nil, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "varB", got.VariationID)

	info, err := h.cache.CrossPlacementInfo(ctx)
	require.NoError(t, err)
	assert.Equal(t, "y", info.PlacementWithVariationMap["p2"])
}

func TestPickedCrossPlacementMapIsPersisted(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	only := variation("vX", 1, epoch)
	only.CrossPlacementInfo = &models.CrossPlacementInfo{PlacementWithVariationMap: map[string]string{"main_paywall": "vX", "onboarding": "vY"}}
	h.network.candidatesFn = serve(only)

	_, err := h.resolver.FetchPaywall(ctx, "main_paywall", "en", nil, time.Second)
	require.NoError(t, err)

	info, err := h.cache.CrossPlacementInfo(ctx)
	require.NoError(t, err)
	require.NotNil(t, info)
	assert.Equal(t, int64(1), info.Version)

	h.network.byIDFn = func(q models.Query, id string) (models.Variation, error) {
		v := variation(id, 1, epoch)
		v.Kind = models.KindOnboarding
		return v, nil
	}
	got, err := h.resolver.FetchOnboarding(ctx, "onboarding", "en", nil, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "vY", got.VariationID)
	assert.Equal(t, []string{"vY"}, h.network.byIDCalls)
}

func TestTimeoutAfterAssignmentFetchesCheckpointedVariation(t *testing.T) {
	h := newHarness(t)
	release := make(chan struct{})
	h.sink.blockFirst = release
	defer close(release)

	h.network.candidatesFn = serve(variation("varX", 1, epoch))
	h.fallback.remote = []models.Variation{variation("varOther", 1, epoch)}
	h.fallback.remoteByID = map[string]models.Variation{"varX": variation("varX", 1, epoch)}
	h.fallback.local = []models.Variation{variation("varLocal", 1, epoch)}
	h.fallback.localAt = epoch

	got, err := h.resolver.FetchPaywall(context.Background(), "main_paywall", "en", nil, 50*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, "varX", got.VariationID)
	assert.Equal(t, []string{"varX"}, h.fallback.byIDCalls)
	assert.Equal(t, 0, h.fallback.remoteCalls, "must not re-pick from the remote candidate set")
	assert.Equal(t, 1, h.sink.count())
}

func TestTimeoutBeforeAssignmentWalksChain(t *testing.T) {
	h := newHarness(t)
	unblock := make(chan struct{})
	h.network.candidatesFn = func(models.Query) (models.Candidates, error) {
		<-unblock
		return models.Candidates{Variations: []models.Variation{variation("va", 1, epoch)}, SnapshotAt: epoch}, nil
	}
	h.fallback.local = []models.Variation{variation("vl", 1, time.Time{})}
	h.fallback.localAt = epoch.Add(-time.Hour)

	got, err := h.resolver.FetchPaywall(context.Background(), "main_paywall", "en", nil, 30*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, "vl", got.VariationID)
	assert.True(t, got.SnapshotAt.Equal(epoch.Add(-time.Hour)))

	close(unblock)
	h.waitIdle(t)
	assert.Equal(t, 1, h.sink.count(), "one variation_assigned per request")

	// the late network result still reaches the cache
	assert.Eventually(t, func() bool {
		v, ok := h.cache.Get(context.Background(), models.KindPaywall, "main_paywall", []string{"en"}, nil)
		return ok && v.VariationID == "va"
	}, time.Second, 5*time.Millisecond)
}

func TestTimeoutWithoutFallbackSurfacesTimeout(t *testing.T) {
	h := newHarness(t)
	unblock := make(chan struct{})
	defer close(unblock)
	h.network.candidatesFn = func(models.Query) (models.Candidates, error) {
		<-unblock
		return models.Candidates{}, errUpstream
	}

	_, err := h.resolver.FetchPaywall(context.Background(), "main_paywall", "en", nil, 20*time.Millisecond)
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestEmptyCandidatesFail(t *testing.T) {
	h := newHarness(t)
	h.network.candidatesFn = serve()

	_, err := h.resolver.FetchPaywall(context.Background(), "main_paywall", "en", nil, time.Second)
	assert.ErrorIs(t, err, ErrDecodingFailed)
	assert.Equal(t, 0, h.sink.count())
	_, ok := h.cache.Get(context.Background(), models.KindPaywall, "main_paywall", []string{"en"}, nil)
	assert.False(t, ok)
}

func TestZeroWeightsFail(t *testing.T) {
	h := newHarness(t)
	h.network.candidatesFn = serve(variation("va", 0, epoch), variation("vb", 0, epoch))
	_, err := h.resolver.FetchPaywall(context.Background(), "main_paywall", "en", nil, time.Second)
	assert.ErrorIs(t, err, ErrDecodingFailed)
}

func TestTransportErrorUsesBundledFallback(t *testing.T) {
	h := newHarness(t)
	bundled := []models.Variation{variation("va", 50, epoch), variation("vb", 50, epoch)}
	h.fallback.local = bundled
	h.fallback.localAt = epoch
	want, _ := picker.Pick(bundled, "u1")

	got, err := h.resolver.FetchPaywall(context.Background(), "main_paywall", "en", nil, time.Second)
	require.NoError(t, err)
	assert.Equal(t, want.VariationID, got.VariationID)
	assert.Equal(t, 0, h.fallback.remoteCalls)
}

func TestCachedFallbackMustNotBeOlderThanBundle(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.cache.Save(ctx, models.KindPaywall, "main_paywall", variation("stale", 1, epoch.Add(-time.Hour)))
	require.NoError(t, err)
	h.fallback.local = []models.Variation{variation("bundled", 1, epoch)}
	h.fallback.localAt = epoch

	got, err := h.resolver.FetchPaywall(ctx, "main_paywall", "en", nil, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "bundled", got.VariationID)

	_, err = h.cache.Save(ctx, models.KindPaywall, "main_paywall", variation("fresh", 1, epoch.Add(time.Hour)))
	require.NoError(t, err)
	got, err = h.resolver.FetchPaywall(ctx, "main_paywall", "en", nil, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "fresh", got.VariationID)
}

func TestRemoteFallbackIsLastRungAndCached(t *testing.T) {
	h := newHarness(t)
	h.fallback.remote = []models.Variation{variation("vr", 1, epoch)}

	got, err := h.resolver.FetchPaywall(context.Background(), "main_paywall", "en", nil, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "vr", got.VariationID)
	cached, ok := h.cache.Get(context.Background(), models.KindPaywall, "main_paywall", []string{"en"}, nil)
	require.True(t, ok)
	assert.Equal(t, "vr", cached.VariationID)
}

func TestTransportErrorWithoutFallbackIsReturned(t *testing.T) {
	h := newHarness(t)
	_, err := h.resolver.FetchPaywall(context.Background(), "main_paywall", "en", nil, time.Second)
	assert.ErrorIs(t, err, errUpstream)
	h.waitIdle(t)
}

func TestSegmentMismatchRetriesOnceWithRefreshedSegment(t *testing.T) {
	h := newHarness(t)
	h.profiles.refreshFn = func(p models.Profile) models.Profile {
		p.SegmentID = "seg-2"
		return p
	}
	h.network.candidatesFn = func(q models.Query) (models.Candidates, error) {
		if q.SegmentID != "seg-2" {
			return models.Candidates{}, ErrSegmentMismatch
		}
		return models.Candidates{Variations: []models.Variation{variation("va", 1, epoch)}, SnapshotAt: epoch}, nil
	}

	got, err := h.resolver.FetchPaywall(context.Background(), "main_paywall", "en", nil, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "va", got.VariationID)
	assert.Equal(t, 2, h.network.candidateCalls())
	assert.Equal(t, 1, h.profiles.refreshes)
}

func TestSegmentMismatchIsBounded(t *testing.T) {
	h := newHarness(t)
	n := 0
	h.profiles.refreshFn = func(p models.Profile) models.Profile {
		n++
		p.SegmentID = "seg-" + string(rune('a'+n))
		return p
	}
	h.network.candidatesFn = func(models.Query) (models.Candidates, error) {
		return models.Candidates{}, ErrSegmentMismatch
	}

	_, err := h.resolver.FetchPaywall(context.Background(), "main_paywall", "en", nil, time.Second)
	assert.ErrorIs(t, err, ErrSegmentMismatch)
	assert.Equal(t, 2, h.network.candidateCalls())
}

func TestSegmentMismatchWithUnchangedSegmentPropagates(t *testing.T) {
	h := newHarness(t)
	h.network.candidatesFn = func(models.Query) (models.Candidates, error) {
		return models.Candidates{}, ErrSegmentMismatch
	}
	_, err := h.resolver.FetchPaywall(context.Background(), "main_paywall", "en", nil, time.Second)
	assert.ErrorIs(t, err, ErrSegmentMismatch)
	assert.Equal(t, 1, h.network.candidateCalls())
	assert.Equal(t, 1, h.profiles.refreshes)
}

func TestProfileChangeMidFlightCachesNothing(t *testing.T) {
	h := newHarness(t)
	h.fallback.local = []models.Variation{variation("vl", 1, epoch)}
	h.fallback.localAt = epoch
	h.network.candidatesFn = func(models.Query) (models.Candidates, error) {
		h.profiles.set(models.Profile{ProfileID: "u2", SegmentID: "seg-9"})
		return models.Candidates{Variations: []models.Variation{variation("va", 1, epoch)}, SnapshotAt: epoch}, nil
	}

	_, err := h.resolver.FetchPaywall(context.Background(), "main_paywall", "en", nil, time.Second)
	assert.ErrorIs(t, err, ErrProfileChanged)
	_, ok := h.cache.Get(context.Background(), models.KindPaywall, "main_paywall", []string{"en"}, nil)
	assert.False(t, ok)
}

func TestUntargetedFetchSkipsSegment(t *testing.T) {
	h := newHarness(t)
	h.network.candidatesFn = serve(variation("va", 1, epoch))

	got, err := h.resolver.FetchUntargetedPaywall(context.Background(), "main_paywall", "en", nil)
	require.NoError(t, err)
	assert.Equal(t, "va", got.VariationID)
	require.Len(t, h.network.queries, 1)
	assert.True(t, h.network.queries[0].Untargeted)
	assert.Empty(t, h.network.queries[0].SegmentID)

	got, err = h.resolver.FetchUntargetedPaywall(context.Background(), "main_paywall", "en", models.ReturnCacheDataElseLoad{})
	require.NoError(t, err)
	assert.Equal(t, "va", got.VariationID)
	assert.Equal(t, 1, h.network.candidateCalls())
}

func TestResolveValidatesRequest(t *testing.T) {
	h := newHarness(t)
	_, err := h.resolver.Resolve(context.Background(), Request{Kind: "banner", PlacementID: "p"})
	assert.Error(t, err)
	_, err = h.resolver.Resolve(context.Background(), Request{Kind: models.KindPaywall})
	assert.Error(t, err)
}

func TestCallerCancellationStopsWaiting(t *testing.T) {
	h := newHarness(t)
	unblock := make(chan struct{})
	defer close(unblock)
	h.network.candidatesFn = func(models.Query) (models.Candidates, error) {
		<-unblock
		return models.Candidates{}, errUpstream
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := h.resolver.FetchPaywall(ctx, "main_paywall", "en", nil, time.Second)
	assert.ErrorIs(t, err, context.Canceled)
}
