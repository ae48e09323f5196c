package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Kind tags the payload a variation carries.
type Kind string

const (
	KindPaywall    Kind = "paywall"
	KindOnboarding Kind = "onboarding"
)

// ParseKind accepts the path segment used by the HTTP API.
func ParseKind(raw string) (Kind, error) {
	switch Kind(raw) {
	case KindPaywall:
		return KindPaywall, nil
	case KindOnboarding:
		return KindOnboarding, nil
	default:
		return "", fmt.Errorf("unknown variation kind %q", raw)
	}
}

type Placement struct {
	ID                  string `json:"developer_id"`
	ABTestName          string `json:"ab_test_name"`
	AudienceName        string `json:"audience_name"`
	Revision            int    `json:"revision"`
	AudienceVersionID   string `json:"placement_audience_version_id"`
	IsTrackingPurchases bool   `json:"is_tracking_purchases,omitempty"`
}

type CrossPlacementInfo struct {
	PlacementWithVariationMap map[string]string `json:"placement_with_variation_map"`
	Version                   int64             `json:"version"`
}

// IsEmpty reports whether the info pins no placement.
func (c *CrossPlacementInfo) IsEmpty() bool {
	return c == nil || len(c.PlacementWithVariationMap) == 0
}

// VariationFor returns the pinned variation id for a placement.
func (c *CrossPlacementInfo) VariationFor(placementID string) (string, bool) {
	if c.IsEmpty() {
		return "", false
	}
	id, ok := c.PlacementWithVariationMap[placementID]
	return id, ok && id != ""
}

// SameMap reports whether both infos pin the same placements to the same variations.
func (c *CrossPlacementInfo) SameMap(other *CrossPlacementInfo) bool {
	if c.IsEmpty() || other.IsEmpty() {
		return c.IsEmpty() == other.IsEmpty()
	}
	if len(c.PlacementWithVariationMap) != len(other.PlacementWithVariationMap) {
		return false
	}
	for k, v := range c.PlacementWithVariationMap {
		if other.PlacementWithVariationMap[k] != v {
			return false
		}
	}
	return true
}

// Clone returns a deep copy; nil stays nil.
func (c *CrossPlacementInfo) Clone() *CrossPlacementInfo {
	if c == nil {
		return nil
	}
	out := &CrossPlacementInfo{
		PlacementWithVariationMap: make(map[string]string, len(c.PlacementWithVariationMap)),
		Version:                   c.Version,
	}
	for k, v := range c.PlacementWithVariationMap {
		out.PlacementWithVariationMap[k] = v
	}
	return out
}

type Variation struct {
	VariationID        string              `json:"variation_id"`
	Kind               Kind                `json:"kind"`
	Placement          Placement           `json:"placement"`
	Weight             int                 `json:"weight"`
	CrossPlacementInfo *CrossPlacementInfo `json:"cross_placement_info,omitempty"`
	SnapshotAt         time.Time           `json:"snapshot_at"`
	Locale             string              `json:"locale,omitempty"`
	Payload            json.RawMessage     `json:"payload,omitempty"`
}

// Candidates is the set of variations the backend considers eligible for a placement.
type Candidates struct {
	Variations []Variation `json:"variations"`
	SnapshotAt time.Time   `json:"snapshot_at"`
}

// CacheEntity wraps a persisted value with the time it was written.
type CacheEntity[T any] struct {
	Value    T         `json:"value"`
	CachedAt time.Time `json:"cached_at"`
}

type Profile struct {
	ProfileID          string              `json:"profile_id"`
	SegmentID          string              `json:"segment_hash"`
	CrossPlacementInfo *CrossPlacementInfo `json:"cross_placement_info,omitempty"`
}

// Query addresses one placement lookup against a variations backend.
// SegmentID is empty for untargeted lookups.
type Query struct {
	Kind        Kind
	PlacementID string
	Locale      string
	SegmentID   string
	Untargeted  bool
}
