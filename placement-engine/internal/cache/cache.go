// Package cache keeps the last resolved variation per placement and locale,
// and the profile's cross-placement assignment, on top of a store.KV.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ILLUVRSE/placements/placement-engine/internal/models"
	"github.com/ILLUVRSE/placements/placement-engine/internal/store"
)

const (
	defaultLocale         = "default"
	crossPlacementInfoKey = "cross_placement_info"
)

// Store is safe for concurrent use. Save is serialized so the snapshot
// comparison and the write happen as one step within a process.
type Store struct {
	kv     store.KV
	logger *slog.Logger
	now    func() time.Time

	writeMu sync.Mutex
}

type Option func(*Store)

// WithClock overrides the wall clock used for age checks and CachedAt.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

func New(kv store.KV, opts ...Option) *Store {
	s := &Store{
		kv:     kv,
		logger: slog.Default(),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Locales expands a requested locale into lookup order: the exact locale,
// then its base language.
func Locales(locale string) []string {
	locale = normalizeLocale(locale)
	out := []string{locale}
	if i := strings.IndexAny(locale, "-_"); i > 0 {
		out = append(out, locale[:i])
	}
	return out
}

func normalizeLocale(locale string) string {
	locale = strings.ToLower(strings.TrimSpace(locale))
	if locale == "" {
		return defaultLocale
	}
	return locale
}

func variationKey(kind models.Kind, placementID, locale string) string {
	return fmt.Sprintf("variation/%s/%s/%s", kind, placementID, normalizeLocale(locale))
}

// Get returns the first cached variation across locales. When maxAge is set,
// entries whose SnapshotAt is older than maxAge are skipped.
func (s *Store) Get(ctx context.Context, kind models.Kind, placementID string, locales []string, maxAge *time.Duration) (models.Variation, bool) {
	if len(locales) == 0 {
		locales = []string{defaultLocale}
	}
	for _, locale := range locales {
		entity, ok := s.load(ctx, variationKey(kind, placementID, locale))
		if !ok {
			continue
		}
		if maxAge != nil && s.now().Sub(entity.Value.SnapshotAt) > *maxAge {
			continue
		}
		return entity.Value, true
	}
	return models.Variation{}, false
}

// Save stores v unless the entry already cached under the same key carries a
// newer SnapshotAt. It returns the value that remains cached.
func (s *Store) Save(ctx context.Context, kind models.Kind, placementID string, v models.Variation) (models.Variation, error) {
	key := variationKey(kind, placementID, v.Locale)

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if existing, ok := s.load(ctx, key); ok && existing.Value.SnapshotAt.After(v.SnapshotAt) {
		s.logger.Debug("cache kept newer snapshot",
			"placement_id", placementID,
			"cached_variation", existing.Value.VariationID,
			"cached_snapshot_at", existing.Value.SnapshotAt,
			"offered_snapshot_at", v.SnapshotAt)
		return existing.Value, nil
	}

	raw, err := json.Marshal(models.CacheEntity[models.Variation]{Value: v, CachedAt: s.now()})
	if err != nil {
		return models.Variation{}, fmt.Errorf("marshal cache entity: %w", err)
	}
	if err := s.kv.Put(ctx, key, raw); err != nil {
		return models.Variation{}, fmt.Errorf("save variation: %w", err)
	}
	return v, nil
}

// CachedAt reports when the entry for placement and locale was written.
func (s *Store) CachedAt(ctx context.Context, kind models.Kind, placementID, locale string) (time.Time, bool) {
	entity, ok := s.load(ctx, variationKey(kind, placementID, locale))
	if !ok {
		return time.Time{}, false
	}
	return entity.CachedAt, true
}

func (s *Store) load(ctx context.Context, key string) (models.CacheEntity[models.Variation], bool) {
	var entity models.CacheEntity[models.Variation]
	raw, err := s.kv.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			s.logger.Warn("cache read failed", "key", key, "error", err)
		}
		return entity, false
	}
	if err := json.Unmarshal(raw, &entity); err != nil {
		s.logger.Warn("cache entry undecodable", "key", key, "error", err)
		return entity, false
	}
	return entity, true
}

// CrossPlacementInfo returns the stored assignment map, or nil when the
// profile has none yet.
func (s *Store) CrossPlacementInfo(ctx context.Context) (*models.CrossPlacementInfo, error) {
	raw, err := s.kv.Get(ctx, crossPlacementInfoKey)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("read cross placement info: %w", err)
	}
	var info models.CrossPlacementInfo
	if err := json.Unmarshal(raw, &info); err != nil {
		return nil, fmt.Errorf("decode cross placement info: %w", err)
	}
	return &info, nil
}

func (s *Store) SaveCrossPlacementInfo(ctx context.Context, info *models.CrossPlacementInfo) error {
	raw, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("marshal cross placement info: %w", err)
	}
	if err := s.kv.Put(ctx, crossPlacementInfoKey, raw); err != nil {
		return fmt.Errorf("save cross placement info: %w", err)
	}
	return nil
}
