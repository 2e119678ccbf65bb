// Package heuristic implements the deterministic keyword model used when no
// trained classifier is available. The same descriptor always produces the
// same probabilities: all randomness is drawn from a generator seeded by a
// stable hash of the input itself.
package heuristic

import (
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/cespare/xxhash/v2"
	"gonum.org/v1/gonum/stat/distmv"

	"github.com/tony-42069/precedence/internal/casefile"
	"github.com/tony-42069/precedence/internal/outcome"
)

// Version tags predictions produced by this model.
const Version = "keyword_heuristic_v1"

// BaselineFactor is always present in heuristic explanations.
const BaselineFactor = "historical_baseline"

const baselineWeight = 0.3

// seedSalt decorrelates the second PCG stream word from the first.
const seedSalt = 0x9e3779b97f4a7c15

// Model computes outcome probabilities from category priors, keyword hits,
// and seeded Dirichlet noise.
type Model struct {
	set   outcome.Set
	table Table
	noise float64
	floor float64
}

// New builds a heuristic model for the given outcome set.
// Base weights missing from the table fall back to a uniform prior so a
// partial override cannot produce an invalid model.
func New(set outcome.Set, table Table, noise, floor float64) (*Model, error) {
	if err := set.Validate(); err != nil {
		return nil, fmt.Errorf("heuristic outcome set: %w", err)
	}
	if noise < 0 {
		return nil, fmt.Errorf("noise magnitude %v is negative", noise)
	}
	if len(table.BaseWeights) == 0 {
		table.BaseWeights = outcome.Uniform(set)
	}
	return &Model{set: set, table: table, noise: noise, floor: floor}, nil
}

// Set returns the outcome set this model predicts over.
func (m *Model) Set() outcome.Set { return m.set }

// Predict returns a normalized probability vector and the contributing
// factors for the descriptor. It is deterministic: repeated calls with an
// identical descriptor yield bit-identical vectors.
func (m *Model) Predict(d casefile.Descriptor) (outcome.Vector, []outcome.Factor, error) {
	weights := make(map[string]float64, len(m.set.Labels))
	for _, l := range m.set.Labels {
		weights[l] = m.table.BaseWeights[l]
	}

	text := strings.ToLower(d.Text)
	factors := []outcome.Factor{{Factor: BaselineFactor, Weight: baselineWeight}}
	for _, rule := range m.rulesFor(d.Category) {
		if !strings.Contains(text, rule.Match) {
			continue
		}
		var magnitude float64
		// Apply deltas in label declaration order so float accumulation
		// order, and therefore the exact result, is stable.
		for _, l := range m.set.Labels {
			delta, ok := rule.Deltas[l]
			if !ok {
				continue
			}
			weights[l] += delta
			if delta < 0 {
				delta = -delta
			}
			magnitude += delta
		}
		factors = append(factors, outcome.Factor{
			Factor: "keyword:" + rule.Match,
			Weight: outcome.Clamp(magnitude, 0, 1),
		})
	}

	noise := m.sampleNoise(d)
	for i, l := range m.set.Labels {
		weights[l] += m.noise * noise[i]
	}

	vec, err := outcome.Normalize(m.set, weights, m.floor)
	if err != nil {
		return nil, nil, fmt.Errorf("normalize heuristic weights: %w", err)
	}
	return vec, factors, nil
}

// rulesFor returns the wildcard rules followed by the category's own rules.
// Unknown categories see only the wildcard set.
func (m *Model) rulesFor(category string) []Rule {
	rules := m.table.Categories["*"]
	if category != "*" {
		rules = append(rules[:len(rules):len(rules)], m.table.Categories[category]...)
	}
	return rules
}

// sampleNoise draws one Dirichlet(1,...,1) sample from a generator seeded by
// the descriptor text and category. The components sum to 1, so the noise
// adds a fixed total mass regardless of the draw.
func (m *Model) sampleNoise(d casefile.Descriptor) []float64 {
	seed := xxhash.Sum64String(d.Text + "\x00" + d.Category)
	src := rand.NewPCG(seed, seed^seedSalt)

	alpha := make([]float64, len(m.set.Labels))
	for i := range alpha {
		alpha[i] = 1
	}
	return distmv.NewDirichlet(alpha, src).Rand(nil)
}
