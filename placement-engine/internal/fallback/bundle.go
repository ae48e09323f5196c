// Package fallback supplies variations when the live backend cannot: a
// bundled snapshot shipped with the service and remote snapshot sources.
package fallback

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/ILLUVRSE/placements/placement-engine/internal/models"
)

// Bundle is a fallback snapshot document:
//
//	{"snapshot_at": "...", "paywalls": {"<placement>": [...]}, "onboardings": {...}}
type Bundle struct {
	SnapshotAt  time.Time                     `json:"snapshot_at"`
	Paywalls    map[string][]models.Variation `json:"paywalls"`
	Onboardings map[string][]models.Variation `json:"onboardings"`
}

func LoadBundleFile(path string) (*Bundle, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open fallback file: %w", err)
	}
	defer f.Close()
	return ParseBundle(f)
}

// ParseBundle decodes a snapshot document and fills the fields each variation
// inherits from its section: kind, placement id and snapshot time.
func ParseBundle(r io.Reader) (*Bundle, error) {
	var b Bundle
	if err := json.NewDecoder(r).Decode(&b); err != nil {
		return nil, fmt.Errorf("decode fallback snapshot: %w", err)
	}
	b.normalize(models.KindPaywall, b.Paywalls)
	b.normalize(models.KindOnboarding, b.Onboardings)
	return &b, nil
}

func (b *Bundle) normalize(kind models.Kind, section map[string][]models.Variation) {
	for placementID, variations := range section {
		for i := range variations {
			v := &variations[i]
			v.Kind = kind
			if v.Placement.ID == "" {
				v.Placement.ID = placementID
			}
			if v.SnapshotAt.IsZero() {
				v.SnapshotAt = b.SnapshotAt
			}
		}
	}
}

func (b *Bundle) section(kind models.Kind) (map[string][]models.Variation, error) {
	switch kind {
	case models.KindPaywall:
		return b.Paywalls, nil
	case models.KindOnboarding:
		return b.Onboardings, nil
	default:
		return nil, fmt.Errorf("unknown variation kind %q", kind)
	}
}

// Candidates returns a copy of the variations listed for a placement.
func (b *Bundle) Candidates(kind models.Kind, placementID string) ([]models.Variation, bool) {
	if b == nil {
		return nil, false
	}
	section, err := b.section(kind)
	if err != nil {
		return nil, false
	}
	variations, ok := section[placementID]
	if !ok || len(variations) == 0 {
		return nil, false
	}
	return append([]models.Variation(nil), variations...), true
}

func (b *Bundle) VariationByID(kind models.Kind, placementID, variationID string) (models.Variation, bool) {
	variations, ok := b.Candidates(kind, placementID)
	if !ok {
		return models.Variation{}, false
	}
	for _, v := range variations {
		if v.VariationID == variationID {
			return v, true
		}
	}
	return models.Variation{}, false
}
