// Package engine composes the prediction pipeline: normalize the input, try
// the trained model, fall back to the keyword heuristic, layer the judge
// bias onto the confidence, and contain every failure. Predict never returns
// an error; the Basis field on the result records which tier produced it.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tony-42069/precedence/internal/bias"
	"github.com/tony-42069/precedence/internal/casefile"
	"github.com/tony-42069/precedence/internal/config"
	"github.com/tony-42069/precedence/internal/heuristic"
	"github.com/tony-42069/precedence/internal/logging"
	"github.com/tony-42069/precedence/internal/outcome"
	"github.com/tony-42069/precedence/internal/registry"
	"github.com/tony-42069/precedence/internal/telemetry"
)

// emergencyVersion tags results produced by the containment path.
const emergencyVersion = "emergency_v1"

// modelSource is the trained-model tier. *registry.Registry implements it.
type modelSource interface {
	Available() bool
	Predict(d casefile.Descriptor) (outcome.Vector, error)
	ModelVersion() string
}

// fallbackModel is the heuristic tier. *heuristic.Model implements it.
type fallbackModel interface {
	Predict(d casefile.Descriptor) (outcome.Vector, []outcome.Factor, error)
}

// biasAdjuster is the optional judge-bias layer.
type biasAdjuster interface {
	Adjust(ctx context.Context, entityID string) bias.Adjustment
	ClampDelta(delta float64) float64
}

// mode bundles the outcome set and prediction tiers for one prediction mode.
// Only the default mode carries a trained-model source; secondary modes are
// heuristic-only.
type mode struct {
	set   outcome.Set
	model modelSource
	heur  fallbackModel
}

// Engine is the outcome prediction engine.
type Engine struct {
	cfg         *config.Config
	defaultMode string
	modes       map[string]mode
	bias        biasAdjuster
	tel         *telemetry.Provider
}

// New wires an engine whose default mode uses the given tiers. Tests
// construct isolated engines this way; production wiring goes through Build.
func New(cfg *config.Config, set outcome.Set, model modelSource, heur fallbackModel, adj biasAdjuster, tel *telemetry.Provider) *Engine {
	if cfg == nil {
		cfg = config.Default()
	}
	return &Engine{
		cfg:         cfg,
		defaultMode: cfg.Mode,
		modes: map[string]mode{
			cfg.Mode: {set: set, model: model, heur: heur},
		},
		bias: adj,
		tel:  tel,
	}
}

// RegisterMode adds a heuristic-only secondary mode, selectable per request
// via the input's "mode" field.
func (e *Engine) RegisterMode(name string, set outcome.Set, heur fallbackModel) {
	e.modes[name] = mode{set: set, heur: heur}
}

// Predict produces a prediction for a loose input map and an optional judge
// identifier. It always returns a well-formed result: model errors downgrade
// to the heuristic, and anything that escapes both tiers becomes an
// emergency result rather than a failure.
func (e *Engine) Predict(ctx context.Context, raw map[string]any, entityID string) (result *outcome.Prediction) {
	start := time.Now()
	m := e.modes[e.defaultMode]
	defer func() {
		if r := recover(); r != nil {
			logging.Errorf("prediction pipeline panic, returning emergency result: %v", r)
			result = e.emergencyResult(m)
		}
		e.tel.RecordPrediction(string(result.Basis), float64(time.Since(start).Microseconds())/1000)
	}()

	d := casefile.Normalize(raw, e.cfg.DefaultCategory)
	if entityID != "" {
		d.EntityID = entityID
	}
	m = e.modeFor(d)

	vec, factors, basis, version, err := e.computeProbabilities(m, d)
	if err != nil {
		logging.Errorf("both prediction tiers failed: %v", err)
		return e.emergencyResult(m)
	}

	predicted := outcome.ArgMax(m.set, vec)
	confidence := vec[predicted]

	if d.EntityID != "" && e.bias != nil {
		adj := e.bias.Adjust(ctx, d.EntityID)
		// The delta shifts only the reported confidence; the distribution
		// stays internally consistent.
		confidence += e.bias.ClampDelta(adj.ConfidenceDelta)
		if adj.Label != bias.Neutral {
			factors = append(factors, outcome.Factor{Factor: "judge_bias:" + string(adj.Label), Weight: 0.1})
		}
	}
	confidence = outcome.Clamp(confidence, e.cfg.Confidence.Min, e.cfg.Confidence.Max)

	factors = append(factors, descriptorFactors(d)...)

	return &outcome.Prediction{
		ID:               uuid.NewString(),
		Probabilities:    vec,
		PredictedOutcome: predicted,
		Confidence:       confidence,
		Basis:            basis,
		Explanation:      factors,
		ModelVersion:     version,
	}
}

// modeFor selects the mode requested by the descriptor, falling back to the
// engine's default for unknown or absent modes.
func (e *Engine) modeFor(d casefile.Descriptor) mode {
	if m, ok := e.modes[d.Mode]; ok && d.Mode != "" {
		return m
	}
	return e.modes[e.defaultMode]
}

// computeProbabilities runs the MODEL-else-HEURISTIC chain. A model failure
// is logged and silently downgraded; only a heuristic failure propagates,
// and Predict converts that into the emergency result.
func (e *Engine) computeProbabilities(m mode, d casefile.Descriptor) (outcome.Vector, []outcome.Factor, outcome.Basis, string, error) {
	if m.model != nil && m.model.Available() {
		vec, err := m.model.Predict(d)
		if err == nil {
			factors := []outcome.Factor{{Factor: "trained_model", Weight: 0.8}}
			return vec, factors, outcome.BasisModel, m.model.ModelVersion(), nil
		}
		if !errors.Is(err, registry.ErrArtifactUnavailable) {
			logging.Warnf("model inference failed, falling back to heuristic: %v", err)
		}
	}

	if m.heur == nil {
		return nil, nil, "", "", errors.New("no heuristic model configured")
	}
	vec, factors, err := m.heur.Predict(d)
	if err != nil {
		return nil, nil, "", "", fmt.Errorf("heuristic prediction: %w", err)
	}
	return vec, factors, outcome.BasisHeuristic, heuristic.Version, nil
}

// descriptorFactors surfaces input-level contributors in the explanation.
func descriptorFactors(d casefile.Descriptor) []outcome.Factor {
	var factors []outcome.Factor
	if d.EntityID != "" {
		factors = append(factors, outcome.Factor{Factor: "assigned_judge", Weight: 0.1})
	}
	if d.Category != "" {
		factors = append(factors, outcome.Factor{Factor: "case_category:" + d.Category, Weight: 0.2})
	}
	if strength, ok := d.Priors["precedent_strength"]; ok {
		factors = append(factors, outcome.Factor{
			Factor: "precedent_strength",
			Weight: outcome.Clamp(strength, 0, 1),
		})
	}
	return factors
}

// emergencyResult is the terminal containment path: a uniform distribution,
// zero confidence, and no explanation. It must not be able to fail itself.
func (e *Engine) emergencyResult(m mode) *outcome.Prediction {
	set := m.set
	if set.Validate() != nil {
		set = outcome.CaseOutcomes
	}
	return &outcome.Prediction{
		ID:               uuid.NewString(),
		Probabilities:    outcome.Uniform(set),
		PredictedOutcome: set.Labels[0],
		Confidence:       0.0,
		Basis:            outcome.BasisEmergency,
		Explanation:      []outcome.Factor{},
		ModelVersion:     emergencyVersion,
	}
}

// ReloadModel swaps in the artifact at dir, keeping the previous state when
// the new artifact cannot be loaded. It reports availability afterwards.
func (e *Engine) ReloadModel(dir string) bool {
	reg, ok := e.modes[e.defaultMode].model.(*registry.Registry)
	if !ok {
		return false
	}
	available := reg.Reload(dir)
	e.tel.RecordReload(available)
	return available
}

// Train fits and publishes a new artifact from labeled examples.
func (e *Engine) Train(examples []registry.TrainingExample) (*registry.TrainingReport, error) {
	reg, ok := e.modes[e.defaultMode].model.(*registry.Registry)
	if !ok {
		return nil, errors.New("engine has no trainable model registry")
	}
	return reg.Train(examples)
}
