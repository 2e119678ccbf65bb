package outcome

import (
	"errors"
	"fmt"
	"math"
)

// Basis identifies which tier of the pipeline produced a prediction.
type Basis string

const (
	BasisModel     Basis = "MODEL"
	BasisHeuristic Basis = "HEURISTIC"
	BasisEmergency Basis = "EMERGENCY"
)

// Set is an ordered list of mutually exclusive outcome labels.
// Declaration order is significant: argmax ties resolve to the earliest label.
type Set struct {
	Name   string
	Labels []string
}

// CaseOutcomes is the outcome set for litigation predictions.
var CaseOutcomes = Set{
	Name:   "case",
	Labels: []string{"PLAINTIFF_WIN", "DEFENDANT_WIN", "SETTLEMENT", "DISMISSAL"},
}

// MarketOutcomes is the outcome set for binary prediction-market questions.
var MarketOutcomes = Set{
	Name:   "market",
	Labels: []string{"YES", "NO"},
}

// Validate checks the structural invariants of a set.
func (s Set) Validate() error {
	if len(s.Labels) < 2 {
		return fmt.Errorf("outcome set %q needs at least 2 labels, has %d", s.Name, len(s.Labels))
	}
	seen := make(map[string]bool, len(s.Labels))
	for _, l := range s.Labels {
		if l == "" {
			return fmt.Errorf("outcome set %q contains an empty label", s.Name)
		}
		if seen[l] {
			return fmt.Errorf("outcome set %q contains duplicate label %q", s.Name, l)
		}
		seen[l] = true
	}
	return nil
}

// Contains reports whether label belongs to the set.
func (s Set) Contains(label string) bool {
	for _, l := range s.Labels {
		if l == label {
			return true
		}
	}
	return false
}

// Vector maps each label of an outcome set to a probability.
type Vector map[string]float64

// SumOver returns the total probability mass, iterating in the set's order.
func (v Vector) SumOver(s Set) float64 {
	var total float64
	for _, l := range s.Labels {
		total += v[l]
	}
	return total
}

// Uniform returns an equal-weight vector over the set.
func Uniform(s Set) Vector {
	v := make(Vector, len(s.Labels))
	p := 1.0 / float64(len(s.Labels))
	for _, l := range s.Labels {
		v[l] = p
	}
	return v
}

// Normalize clamps every weight to floor and rescales so the vector sums to 1.
// Weights for labels outside the set are discarded; missing labels get the floor.
func Normalize(s Set, weights map[string]float64, floor float64) (Vector, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	if floor < 0 || floor*float64(len(s.Labels)) >= 1 {
		return nil, fmt.Errorf("probability floor %v out of range for %d labels", floor, len(s.Labels))
	}

	v := make(Vector, len(s.Labels))
	var total float64
	for _, l := range s.Labels {
		w := weights[l]
		if w < floor || math.IsNaN(w) {
			w = floor
		}
		v[l] = w
		total += w
	}
	if total <= 0 || math.IsInf(total, 0) {
		return nil, errors.New("degenerate weight vector, cannot normalize")
	}
	for _, l := range s.Labels {
		v[l] /= total
	}
	return v, nil
}

// ArgMax returns the label with the highest probability.
// Ties resolve to the label declared first in the set.
func ArgMax(s Set, v Vector) string {
	best := s.Labels[0]
	bestP := v[best]
	for _, l := range s.Labels[1:] {
		if v[l] > bestP {
			best = l
			bestP = v[l]
		}
	}
	return best
}

// CheckVector verifies the probability-vector invariants against a set.
func CheckVector(s Set, v Vector, tol float64) error {
	if len(v) != len(s.Labels) {
		return fmt.Errorf("vector has %d entries, set %q has %d labels", len(v), s.Name, len(s.Labels))
	}
	var total float64
	for _, l := range s.Labels {
		p, ok := v[l]
		if !ok {
			return fmt.Errorf("vector missing label %q", l)
		}
		if p < 0 || p > 1 || math.IsNaN(p) {
			return fmt.Errorf("probability %v for label %q out of [0,1]", p, l)
		}
		total += p
	}
	if math.Abs(total-1) > tol {
		return fmt.Errorf("probabilities sum to %v, not 1 within %v", total, tol)
	}
	return nil
}

// Clamp bounds x to [lo, hi].
func Clamp(x, lo, hi float64) float64 {
	return math.Min(hi, math.Max(lo, x))
}

// Factor is one human-readable contributor to a prediction.
type Factor struct {
	Factor string  `json:"factor"`
	Weight float64 `json:"weight"`
}

// Prediction is the engine's result record.
type Prediction struct {
	ID               string   `json:"id"`
	Probabilities    Vector   `json:"probabilities"`
	PredictedOutcome string   `json:"predicted_outcome"`
	Confidence       float64  `json:"confidence"`
	Basis            Basis    `json:"basis"`
	Explanation      []Factor `json:"explanation"`
	ModelVersion     string   `json:"model_version"`
}
