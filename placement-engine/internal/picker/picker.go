// Package picker assigns a profile to one of several weighted variations.
package picker

import (
	"crypto/sha256"
	"encoding/binary"
	"sort"

	"github.com/ILLUVRSE/placements/placement-engine/internal/models"
)

// Pick deterministically chooses a variation for profileID. The same
// candidates and profile id always produce the same result, regardless of
// the order the candidates arrive in. It returns false when there is nothing
// to choose from or every weight is zero.
func Pick(candidates []models.Variation, profileID string) (models.Variation, bool) {
	if len(candidates) == 0 {
		return models.Variation{}, false
	}
	sorted := make([]models.Variation, len(candidates))
	copy(sorted, candidates)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].VariationID < sorted[j].VariationID
	})

	var total uint64
	for _, v := range sorted {
		total += weight(v)
	}
	if total == 0 {
		return models.Variation{}, false
	}

	point := bucket(seed(sorted), profileID) % total
	var cumulative uint64
	for _, v := range sorted {
		cumulative += weight(v)
		if point < cumulative {
			return v, true
		}
	}
	// unreachable while point < total
	return sorted[len(sorted)-1], true
}

func weight(v models.Variation) uint64 {
	if v.Weight <= 0 {
		return 0
	}
	return uint64(v.Weight)
}

// seed keeps placements bucketing independently of one another.
func seed(sorted []models.Variation) string {
	for _, v := range sorted {
		if v.Placement.AudienceVersionID != "" {
			return v.Placement.AudienceVersionID
		}
	}
	return sorted[0].Placement.ID
}

func bucket(seed, profileID string) uint64 {
	sum := sha256.Sum256([]byte(seed + "-" + profileID))
	return binary.BigEndian.Uint64(sum[:8])
}
