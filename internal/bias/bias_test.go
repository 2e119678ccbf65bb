package bias

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProfiles struct {
	stats map[string]map[string]int
	err   error
}

func (f *fakeProfiles) Stats(ctx context.Context, judgeID string) (map[string]int, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.stats[judgeID], nil
}

func TestAdjustEmptyEntity(t *testing.T) {
	a := New(nil, 0.05)
	adj := a.Adjust(context.Background(), "")
	assert.Equal(t, Neutral, adj.Label)
	assert.Zero(t, adj.ConfidenceDelta)
}

func TestAdjustHashPlaceholder(t *testing.T) {
	a := New(nil, 0.05)
	ctx := context.Background()

	t.Run("deterministic per identifier", func(t *testing.T) {
		first := a.Adjust(ctx, "judge-smith")
		for i := 0; i < 10; i++ {
			assert.Equal(t, first, a.Adjust(ctx, "judge-smith"))
		}
	})

	t.Run("bounded for every identifier", func(t *testing.T) {
		for i := 0; i < 200; i++ {
			adj := a.Adjust(ctx, fmt.Sprintf("judge-%d", i))
			assert.LessOrEqual(t, math.Abs(adj.ConfidenceDelta), 0.05)
			switch adj.Label {
			case FavorsPlaintiff:
				assert.Equal(t, 0.05, adj.ConfidenceDelta)
			case FavorsDefendant:
				assert.Equal(t, -0.05, adj.ConfidenceDelta)
			case Neutral:
				assert.Zero(t, adj.ConfidenceDelta)
			default:
				t.Fatalf("unexpected label %q", adj.Label)
			}
		}
	})

	t.Run("all three labels occur", func(t *testing.T) {
		seen := make(map[Label]bool)
		for i := 0; i < 200; i++ {
			seen[a.Adjust(ctx, fmt.Sprintf("judge-%d", i)).Label] = true
		}
		require.Len(t, seen, 3)
	})
}

func TestAdjustFromProfile(t *testing.T) {
	profiles := &fakeProfiles{stats: map[string]map[string]int{
		"plaintiff-judge": {"PLAINTIFF_WIN": 30, "DEFENDANT_WIN": 10, "SETTLEMENT": 5},
		"defendant-judge": {"PLAINTIFF_WIN": 4, "DEFENDANT_WIN": 20},
		"even-judge":      {"PLAINTIFF_WIN": 10, "DEFENDANT_WIN": 10},
		"settles-only":    {"SETTLEMENT": 12},
	}}
	a := New(profiles, 0.05)
	ctx := context.Background()

	adj := a.Adjust(ctx, "plaintiff-judge")
	assert.Equal(t, FavorsPlaintiff, adj.Label)
	assert.Equal(t, 0.05, adj.ConfidenceDelta)

	adj = a.Adjust(ctx, "defendant-judge")
	assert.Equal(t, FavorsDefendant, adj.Label)
	assert.Equal(t, -0.05, adj.ConfidenceDelta)

	adj = a.Adjust(ctx, "even-judge")
	assert.Equal(t, Neutral, adj.Label)
	assert.Zero(t, adj.ConfidenceDelta)
}

func TestAdjustFallsBackWithoutHistory(t *testing.T) {
	profiles := &fakeProfiles{stats: map[string]map[string]int{
		"settles-only": {"SETTLEMENT": 12},
	}}
	a := New(profiles, 0.05)
	ctx := context.Background()

	// No win history and no profile at all both land on the hash placeholder.
	noProfile := New(nil, 0.05)
	assert.Equal(t, noProfile.Adjust(ctx, "settles-only"), a.Adjust(ctx, "settles-only"))
	assert.Equal(t, noProfile.Adjust(ctx, "unknown-judge"), a.Adjust(ctx, "unknown-judge"))
}

func TestAdjustSurvivesStoreErrors(t *testing.T) {
	a := New(&fakeProfiles{err: errors.New("db locked")}, 0.05)
	adj := a.Adjust(context.Background(), "judge-smith")
	assert.LessOrEqual(t, math.Abs(adj.ConfidenceDelta), 0.05)
}

func TestClampDelta(t *testing.T) {
	a := New(nil, 0.05)
	assert.Equal(t, 0.05, a.ClampDelta(0.4))
	assert.Equal(t, -0.05, a.ClampDelta(-0.4))
	assert.Equal(t, 0.02, a.ClampDelta(0.02))
}

func TestNewDefaultsBound(t *testing.T) {
	a := New(nil, 0)
	assert.Equal(t, 0.05, a.ClampDelta(1))
}
