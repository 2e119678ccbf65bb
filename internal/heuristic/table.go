package heuristic

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Rule adjusts outcome weights when its phrase appears in the case text.
// Matching is lowercase substring matching; deltas are additive and may be
// negative.
type Rule struct {
	Match  string             `yaml:"match"`
	Deltas map[string]float64 `yaml:"deltas"`
}

// Table holds the base outcome weights and the per-category keyword rules.
// The "*" category applies to every input; unknown categories fall back to
// the wildcard rules alone.
type Table struct {
	BaseWeights map[string]float64 `yaml:"base_weights"`
	Categories  map[string][]Rule  `yaml:"categories"`
}

// LoadTable reads a keyword table override from a YAML file.
func LoadTable(path string) (Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Table{}, fmt.Errorf("read keyword table: %w", err)
	}
	var t Table
	if err := yaml.Unmarshal(data, &t); err != nil {
		return Table{}, fmt.Errorf("decode keyword table: %w", err)
	}
	return t, nil
}

// DefaultCaseTable returns the built-in table for litigation outcomes.
// The phrase lists are content, not contract: they came out of reading real
// docket language and can be replaced wholesale via LoadTable.
func DefaultCaseTable() Table {
	return Table{
		BaseWeights: map[string]float64{
			"PLAINTIFF_WIN": 0.40,
			"DEFENDANT_WIN": 0.40,
			"SETTLEMENT":    0.15,
			"DISMISSAL":     0.05,
		},
		Categories: map[string][]Rule{
			"*": {
				{Match: "settle", Deltas: map[string]float64{"SETTLEMENT": 0.15, "PLAINTIFF_WIN": -0.05, "DEFENDANT_WIN": -0.05}},
				{Match: "mediation", Deltas: map[string]float64{"SETTLEMENT": 0.10}},
				{Match: "dismiss", Deltas: map[string]float64{"DISMISSAL": 0.20, "PLAINTIFF_WIN": -0.10}},
				{Match: "lack of jurisdiction", Deltas: map[string]float64{"DISMISSAL": 0.15}},
				{Match: "failure to state a claim", Deltas: map[string]float64{"DISMISSAL": 0.15}},
				{Match: "frivolous", Deltas: map[string]float64{"DISMISSAL": 0.10, "DEFENDANT_WIN": 0.05}},
				{Match: "summary judgment", Deltas: map[string]float64{"DEFENDANT_WIN": 0.10}},
				{Match: "strong precedent", Deltas: map[string]float64{"PLAINTIFF_WIN": 0.10}},
				{Match: "class action", Deltas: map[string]float64{"SETTLEMENT": 0.10}},
			},
			"civil": {
				{Match: "breach of contract", Deltas: map[string]float64{"PLAINTIFF_WIN": 0.10}},
				{Match: "negligence", Deltas: map[string]float64{"PLAINTIFF_WIN": 0.08}},
				{Match: "damages", Deltas: map[string]float64{"PLAINTIFF_WIN": 0.05}},
				{Match: "statute of limitations", Deltas: map[string]float64{"DISMISSAL": 0.10, "DEFENDANT_WIN": 0.05}},
			},
			"criminal": {
				{Match: "indictment", Deltas: map[string]float64{"PLAINTIFF_WIN": 0.08}},
				{Match: "plea", Deltas: map[string]float64{"SETTLEMENT": 0.15}},
				{Match: "suppress", Deltas: map[string]float64{"DEFENDANT_WIN": 0.08}},
				{Match: "insufficient evidence", Deltas: map[string]float64{"DEFENDANT_WIN": 0.12, "DISMISSAL": 0.05}},
			},
			"constitutional": {
				{Match: "first amendment", Deltas: map[string]float64{"PLAINTIFF_WIN": 0.08}},
				{Match: "qualified immunity", Deltas: map[string]float64{"DEFENDANT_WIN": 0.12}},
				{Match: "standing", Deltas: map[string]float64{"DISMISSAL": 0.12}},
			},
		},
	}
}

// DefaultMarketTable returns the built-in table for binary market questions.
func DefaultMarketTable() Table {
	return Table{
		BaseWeights: map[string]float64{
			"YES": 0.50,
			"NO":  0.50,
		},
		Categories: map[string][]Rule{
			"*": {
				{Match: "will not", Deltas: map[string]float64{"NO": 0.12, "YES": -0.06}},
				{Match: "unlikely", Deltas: map[string]float64{"NO": 0.12}},
				{Match: " likely", Deltas: map[string]float64{"YES": 0.08}},
				{Match: "confirmed", Deltas: map[string]float64{"YES": 0.15}},
				{Match: "overturn", Deltas: map[string]float64{"NO": 0.08}},
				{Match: "unanimous", Deltas: map[string]float64{"YES": 0.10}},
			},
			"legal": {
				{Match: "cert granted", Deltas: map[string]float64{"YES": 0.10}},
				{Match: "injunction", Deltas: map[string]float64{"YES": 0.05}},
				{Match: "appeal pending", Deltas: map[string]float64{"NO": 0.05}},
			},
		},
	}
}
