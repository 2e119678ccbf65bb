package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tony-42069/precedence/internal/bias"
	"github.com/tony-42069/precedence/internal/casefile"
	"github.com/tony-42069/precedence/internal/config"
	"github.com/tony-42069/precedence/internal/heuristic"
	"github.com/tony-42069/precedence/internal/outcome"
	"github.com/tony-42069/precedence/internal/registry"
)

// stubModel is a controllable modelSource.
type stubModel struct {
	available bool
	vec       outcome.Vector
	err       error
	panics    bool
}

func (s *stubModel) Available() bool { return s.available }
func (s *stubModel) Predict(d casefile.Descriptor) (outcome.Vector, error) {
	if s.panics {
		panic("model blew up")
	}
	return s.vec, s.err
}
func (s *stubModel) ModelVersion() string { return "stub_v1" }

// failingHeuristic is a fallbackModel that always fails.
type failingHeuristic struct{ panics bool }

func (f *failingHeuristic) Predict(d casefile.Descriptor) (outcome.Vector, []outcome.Factor, error) {
	if f.panics {
		panic("heuristic blew up")
	}
	return nil, nil, errors.New("heuristic failure")
}

// stubBias returns a fixed adjustment.
type stubBias struct{ adj bias.Adjustment }

func (s *stubBias) Adjust(ctx context.Context, entityID string) bias.Adjustment { return s.adj }
func (s *stubBias) ClampDelta(delta float64) float64 {
	return outcome.Clamp(delta, -0.05, 0.05)
}

func caseHeuristic(t *testing.T) *heuristic.Model {
	t.Helper()
	m, err := heuristic.New(outcome.CaseOutcomes, heuristic.DefaultCaseTable(), 0.2, 0.01)
	require.NoError(t, err)
	return m
}

func newTestEngine(t *testing.T, model modelSource, heur fallbackModel, adj biasAdjuster) *Engine {
	t.Helper()
	return New(config.Default(), outcome.CaseOutcomes, model, heur, adj, nil)
}

func assertWellFormed(t *testing.T, p *outcome.Prediction) {
	t.Helper()
	require.NotNil(t, p)
	assert.NotEmpty(t, p.ID)
	require.NoError(t, outcome.CheckVector(outcome.CaseOutcomes, p.Probabilities, 1e-6))
	assert.True(t, outcome.CaseOutcomes.Contains(p.PredictedOutcome))
	assert.GreaterOrEqual(t, p.Confidence, 0.0)
	assert.LessOrEqual(t, p.Confidence, 0.99)
}

func TestPredictEmptyInput(t *testing.T) {
	e := newTestEngine(t, nil, caseHeuristic(t), nil)

	for _, raw := range []map[string]any{nil, {}} {
		p := e.Predict(context.Background(), raw, "")
		assertWellFormed(t, p)
		assert.Equal(t, outcome.BasisHeuristic, p.Basis)
		assert.Equal(t, heuristic.Version, p.ModelVersion)
		assert.GreaterOrEqual(t, p.Confidence, 0.01)
	}
}

func TestPredictPrefersModel(t *testing.T) {
	model := &stubModel{
		available: true,
		vec:       outcome.Vector{"PLAINTIFF_WIN": 0.6, "DEFENDANT_WIN": 0.2, "SETTLEMENT": 0.1, "DISMISSAL": 0.1},
	}
	e := newTestEngine(t, model, caseHeuristic(t), nil)

	p := e.Predict(context.Background(), map[string]any{"facts": "breach of contract"}, "")
	assertWellFormed(t, p)
	assert.Equal(t, outcome.BasisModel, p.Basis)
	assert.Equal(t, "stub_v1", p.ModelVersion)
	assert.Equal(t, "PLAINTIFF_WIN", p.PredictedOutcome)
	assert.InDelta(t, 0.6, p.Confidence, 1e-12)

	names := factorNames(p.Explanation)
	assert.Contains(t, names, "trained_model")
}

func TestModelFailureFallsBackToHeuristic(t *testing.T) {
	tests := []struct {
		name  string
		model modelSource
	}{
		{"inference error", &stubModel{available: true, err: errors.New("bad tensor")}},
		{"registry without artifact", registry.New(t.TempDir(), outcome.CaseOutcomes)},
		{"no model at all", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEngine(t, tt.model, caseHeuristic(t), nil)
			p := e.Predict(context.Background(), map[string]any{"facts": "negligence claim"}, "")
			assertWellFormed(t, p)
			assert.Equal(t, outcome.BasisHeuristic, p.Basis)
		})
	}
}

func TestEmergencyContainment(t *testing.T) {
	tests := []struct {
		name  string
		model modelSource
		heur  fallbackModel
	}{
		{"heuristic error", nil, &failingHeuristic{}},
		{"heuristic panic", nil, &failingHeuristic{panics: true}},
		{"model panic with broken fallback", &stubModel{available: true, panics: true}, &failingHeuristic{}},
		{"no tiers configured", nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEngine(t, tt.model, tt.heur, nil)
			p := e.Predict(context.Background(), map[string]any{"facts": "anything"}, "judge-1")

			require.NotNil(t, p)
			assert.Equal(t, outcome.BasisEmergency, p.Basis)
			assert.Zero(t, p.Confidence)
			require.NoError(t, outcome.CheckVector(outcome.CaseOutcomes, p.Probabilities, 1e-9))
			for _, l := range outcome.CaseOutcomes.Labels {
				assert.InDelta(t, 0.25, p.Probabilities[l], 1e-12)
			}
			assert.NotNil(t, p.Explanation)
			assert.Empty(t, p.Explanation)
		})
	}
}

func TestEmergencyKeepsRequestedMode(t *testing.T) {
	// A market request that panics mid-pipeline must get the binary uniform
	// result, not the default mode's.
	e := newTestEngine(t, nil, caseHeuristic(t), nil)
	e.RegisterMode("market", outcome.MarketOutcomes, &failingHeuristic{panics: true})

	p := e.Predict(context.Background(), map[string]any{
		"question": "Will the ruling stand?",
		"mode":     "market",
	}, "")
	assert.Equal(t, outcome.BasisEmergency, p.Basis)
	require.NoError(t, outcome.CheckVector(outcome.MarketOutcomes, p.Probabilities, 1e-9))
	assert.InDelta(t, 0.5, p.Probabilities["YES"], 1e-12)
	assert.InDelta(t, 0.5, p.Probabilities["NO"], 1e-12)
}

func TestBiasShiftsConfidenceOnly(t *testing.T) {
	vec := outcome.Vector{"PLAINTIFF_WIN": 0.6, "DEFENDANT_WIN": 0.2, "SETTLEMENT": 0.1, "DISMISSAL": 0.1}
	model := &stubModel{available: true, vec: vec}

	plain := newTestEngine(t, model, caseHeuristic(t), nil)
	biased := newTestEngine(t, model, caseHeuristic(t), &stubBias{adj: bias.Adjustment{
		Label:           bias.FavorsPlaintiff,
		ConfidenceDelta: 0.05,
	}})

	raw := map[string]any{"facts": "breach of contract"}
	base := plain.Predict(context.Background(), raw, "")
	shifted := biased.Predict(context.Background(), raw, "judge-1")

	for _, l := range outcome.CaseOutcomes.Labels {
		assert.Equal(t, base.Probabilities[l], shifted.Probabilities[l])
	}
	assert.InDelta(t, base.Confidence+0.05, shifted.Confidence, 1e-12)
	assert.Contains(t, factorNames(shifted.Explanation), "judge_bias:plaintiff_favorable")
	assert.NotContains(t, factorNames(base.Explanation), "judge_bias:plaintiff_favorable")
}

func TestBiasDeltaIsClampedAndConfidenceBounded(t *testing.T) {
	vec := outcome.Vector{"PLAINTIFF_WIN": 0.97, "DEFENDANT_WIN": 0.01, "SETTLEMENT": 0.01, "DISMISSAL": 0.01}
	model := &stubModel{available: true, vec: vec}
	e := newTestEngine(t, model, caseHeuristic(t), &stubBias{adj: bias.Adjustment{
		Label:           bias.FavorsPlaintiff,
		ConfidenceDelta: 0.4, // beyond the bound, must be clamped
	}})

	p := e.Predict(context.Background(), map[string]any{"facts": "x"}, "judge-1")
	assert.InDelta(t, 0.99, p.Confidence, 1e-12)
}

func TestNeutralBiasLeavesExplanationAlone(t *testing.T) {
	model := &stubModel{
		available: true,
		vec:       outcome.Vector{"PLAINTIFF_WIN": 0.4, "DEFENDANT_WIN": 0.3, "SETTLEMENT": 0.2, "DISMISSAL": 0.1},
	}
	e := newTestEngine(t, model, caseHeuristic(t), &stubBias{adj: bias.Adjustment{Label: bias.Neutral}})

	p := e.Predict(context.Background(), map[string]any{"facts": "x"}, "judge-1")
	for _, name := range factorNames(p.Explanation) {
		assert.NotContains(t, name, "judge_bias")
	}
}

func TestDescriptorFactors(t *testing.T) {
	e := newTestEngine(t, nil, caseHeuristic(t), nil)
	p := e.Predict(context.Background(), map[string]any{
		"facts":              "negligence claim",
		"case_type":          "civil",
		"precedent_strength": 0.8,
	}, "judge-1")

	names := factorNames(p.Explanation)
	assert.Contains(t, names, "assigned_judge")
	assert.Contains(t, names, "case_category:civil")
	assert.Contains(t, names, "precedent_strength")
}

func TestPerRequestMarketMode(t *testing.T) {
	e := newTestEngine(t, nil, caseHeuristic(t), nil)
	marketHeur, err := heuristic.New(outcome.MarketOutcomes, heuristic.DefaultMarketTable(), 0.2, 0.01)
	require.NoError(t, err)
	e.RegisterMode("market", outcome.MarketOutcomes, marketHeur)

	p := e.Predict(context.Background(), map[string]any{
		"question": "Will the appellate court overturn the ruling?",
		"mode":     "market",
	}, "")
	require.NoError(t, outcome.CheckVector(outcome.MarketOutcomes, p.Probabilities, 1e-6))
	assert.True(t, outcome.MarketOutcomes.Contains(p.PredictedOutcome))

	// Unknown modes fall back to the default tier.
	p = e.Predict(context.Background(), map[string]any{"facts": "x", "mode": "sports"}, "")
	require.NoError(t, outcome.CheckVector(outcome.CaseOutcomes, p.Probabilities, 1e-6))
}

func TestTrainAndReloadThroughEngine(t *testing.T) {
	reg := registry.New(t.TempDir(), outcome.CaseOutcomes)
	e := newTestEngine(t, reg, caseHeuristic(t), nil)

	examples := []registry.TrainingExample{
		{CaseFacts: "plaintiff won at trial on the contract claim", CaseType: "civil", Outcome: "PLAINTIFF_WIN"},
		{CaseFacts: "defendant prevailed on summary judgment", CaseType: "civil", Outcome: "DEFENDANT_WIN"},
		{CaseFacts: "parties settled at mediation", CaseType: "civil", Outcome: "SETTLEMENT"},
		{CaseFacts: "complaint dismissed for lack of jurisdiction", CaseType: "civil", Outcome: "DISMISSAL"},
	}
	report, err := e.Train(examples)
	require.NoError(t, err)
	assert.Equal(t, len(examples), report.Examples)

	p := e.Predict(context.Background(), map[string]any{"facts": "plaintiff won on the contract claim"}, "")
	assertWellFormed(t, p)
	assert.Equal(t, outcome.BasisModel, p.Basis)

	// A failed reload keeps the trained artifact live.
	assert.True(t, e.ReloadModel(t.TempDir()))
	p = e.Predict(context.Background(), map[string]any{"facts": "plaintiff won on the contract claim"}, "")
	assert.Equal(t, outcome.BasisModel, p.Basis)
}

func TestTrainWithoutRegistry(t *testing.T) {
	e := newTestEngine(t, &stubModel{}, caseHeuristic(t), nil)
	_, err := e.Train(nil)
	assert.Error(t, err)
	assert.False(t, e.ReloadModel(t.TempDir()))
}

func factorNames(factors []outcome.Factor) []string {
	names := make([]string, 0, len(factors))
	for _, f := range factors {
		names = append(names, f.Factor)
	}
	return names
}
