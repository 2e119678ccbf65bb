// Package bias derives a bounded confidence adjustment from a judge
// identifier. When the judge has recorded history in the profile store, the
// adjustment reflects their historical win rates; otherwise the label is a
// deterministic placeholder derived from the identifier hash. Either way the
// delta never exceeds the configured bound and Adjust never fails.
package bias

import (
	"context"

	"github.com/cespare/xxhash/v2"

	"github.com/tony-42069/precedence/internal/outcome"
)

// Label is the qualitative direction of a judge's historical tendency.
type Label string

const (
	FavorsPlaintiff Label = "plaintiff_favorable"
	FavorsDefendant Label = "defendant_favorable"
	Neutral         Label = "neutral"
)

// Adjustment is the bounded confidence shift applied by the composer.
// It shifts only the reported confidence scalar, never the distribution.
type Adjustment struct {
	Label           Label   `json:"label"`
	ConfidenceDelta float64 `json:"confidence_delta"`
}

// ProfileReader supplies historical outcome counts for a judge.
// A nil reader (or one that errors) downgrades to the hash placeholder.
type ProfileReader interface {
	Stats(ctx context.Context, judgeID string) (map[string]int, error)
}

// Adjuster computes judge-bias adjustments.
type Adjuster struct {
	profiles ProfileReader
	bound    float64
}

// New creates an adjuster. bound caps |ConfidenceDelta|; non-positive values
// fall back to 0.05.
func New(profiles ProfileReader, bound float64) *Adjuster {
	if bound <= 0 {
		bound = 0.05
	}
	return &Adjuster{profiles: profiles, bound: bound}
}

// Adjust returns the bias adjustment for an entity. It is total: an empty
// identifier, a missing profile store, or any store error all yield a valid
// adjustment rather than failing the prediction.
func (a *Adjuster) Adjust(ctx context.Context, entityID string) Adjustment {
	if entityID == "" {
		return Adjustment{Label: Neutral}
	}

	if a.profiles != nil {
		if adj, ok := a.fromProfile(ctx, entityID); ok {
			return adj
		}
	}
	return a.fromHash(entityID)
}

// fromProfile compares historical plaintiff and defendant wins. It reports
// ok=false when the judge has no usable history, letting the caller fall
// through to the placeholder.
func (a *Adjuster) fromProfile(ctx context.Context, entityID string) (Adjustment, bool) {
	stats, err := a.profiles.Stats(ctx, entityID)
	if err != nil || len(stats) == 0 {
		return Adjustment{}, false
	}

	plaintiff := stats["PLAINTIFF_WIN"]
	defendant := stats["DEFENDANT_WIN"]
	if plaintiff == 0 && defendant == 0 {
		return Adjustment{}, false
	}

	switch {
	case plaintiff > defendant:
		return Adjustment{Label: FavorsPlaintiff, ConfidenceDelta: a.bound}, true
	case defendant > plaintiff:
		return Adjustment{Label: FavorsDefendant, ConfidenceDelta: -a.bound}, true
	default:
		return Adjustment{Label: Neutral}, true
	}
}

// fromHash derives a pseudo-tendency from the identifier alone. This is a
// placeholder for judges without profiles: stable per identifier, bounded,
// and carrying no real judicial-bias meaning.
func (a *Adjuster) fromHash(entityID string) Adjustment {
	switch xxhash.Sum64String(entityID) % 3 {
	case 1:
		return Adjustment{Label: FavorsPlaintiff, ConfidenceDelta: a.bound}
	case 2:
		return Adjustment{Label: FavorsDefendant, ConfidenceDelta: -a.bound}
	default:
		return Adjustment{Label: Neutral}
	}
}

// ClampDelta bounds an externally supplied delta to the adjuster's limit.
func (a *Adjuster) ClampDelta(delta float64) float64 {
	return outcome.Clamp(delta, -a.bound, a.bound)
}
