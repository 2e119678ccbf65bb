package registry

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/floats"

	"github.com/tony-42069/precedence/internal/casefile"
)

// nbayesVersion tags artifacts produced by Train.
const nbayesVersion = "outcome_nbayes_v1"

// stopwords dropped during tokenization. Deliberately small: rare filler
// words are smoothed away anyway.
var stopwords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true,
	"be": true, "by": true, "for": true, "from": true, "has": true, "he": true,
	"in": true, "is": true, "it": true, "its": true, "of": true, "on": true,
	"or": true, "that": true, "the": true, "to": true, "was": true,
	"were": true, "will": true, "with": true,
}

// tokenize lowercases the text and splits it into alphanumeric tokens,
// dropping stopwords and single characters.
func tokenize(text string) []string {
	lower := strings.ToLower(text)
	fields := strings.FieldsFunc(lower, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
	tokens := fields[:0]
	for _, f := range fields {
		if len(f) < 2 || stopwords[f] {
			continue
		}
		tokens = append(tokens, f)
	}
	return tokens
}

// descriptorTokens converts a descriptor into the token stream the
// classifier was trained on: text tokens plus a categorical marker.
func descriptorTokens(d casefile.Descriptor) []string {
	tokens := tokenize(d.Text)
	if d.Category != "" {
		tokens = append(tokens, "case_type="+d.Category)
	}
	return tokens
}

// naiveBayes is a multinomial naive Bayes classifier over case-text tokens
// and the case category. The whole model serializes to JSON, so an artifact
// on disk is a single readable file.
type naiveBayes struct {
	ModelVersion string         `json:"model_version"`
	Classes      []string       `json:"classes"`
	Vocab        map[string]int `json:"vocab"`
	ClassCounts  []float64      `json:"class_counts"`
	TokenCounts  [][]float64    `json:"token_counts"`
	TokenTotals  []float64      `json:"token_totals"`
	Alpha        float64        `json:"alpha"`
}

// fitNaiveBayes trains a classifier from labeled examples.
// Classes are fixed up front so the artifact's label set always matches the
// outcome set it was trained for, even when a class has no examples.
func fitNaiveBayes(examples []TrainingExample, classes []string) (*naiveBayes, error) {
	if len(examples) == 0 {
		return nil, fmt.Errorf("no training examples")
	}

	classIndex := make(map[string]int, len(classes))
	for i, c := range classes {
		classIndex[c] = i
	}

	nb := &naiveBayes{
		ModelVersion: nbayesVersion,
		Classes:      classes,
		Vocab:        make(map[string]int),
		ClassCounts:  make([]float64, len(classes)),
		TokenTotals:  make([]float64, len(classes)),
		Alpha:        1.0,
	}

	// First pass builds the vocabulary so token count rows can be sized once.
	type counted struct {
		class  int
		tokens []string
	}
	rows := make([]counted, 0, len(examples))
	for _, ex := range examples {
		ci, ok := classIndex[ex.Outcome]
		if !ok {
			return nil, fmt.Errorf("outcome %q is not in the label set", ex.Outcome)
		}
		tokens := descriptorTokens(casefile.Descriptor{Text: ex.CaseFacts, Category: strings.ToLower(ex.CaseType)})
		for _, t := range tokens {
			if _, ok := nb.Vocab[t]; !ok {
				nb.Vocab[t] = len(nb.Vocab)
			}
		}
		rows = append(rows, counted{class: ci, tokens: tokens})
	}

	nb.TokenCounts = make([][]float64, len(classes))
	for i := range nb.TokenCounts {
		nb.TokenCounts[i] = make([]float64, len(nb.Vocab))
	}
	for _, row := range rows {
		nb.ClassCounts[row.class]++
		for _, t := range row.tokens {
			idx := nb.Vocab[t]
			nb.TokenCounts[row.class][idx]++
			nb.TokenTotals[row.class]++
		}
	}
	return nb, nil
}

func (nb *naiveBayes) version() string { return nb.ModelVersion }

// predictProba returns per-class probabilities for the descriptor.
// Tokens outside the training vocabulary are skipped; log-space scores are
// normalized with log-sum-exp to avoid underflow on long documents.
func (nb *naiveBayes) predictProba(d casefile.Descriptor) (map[string]float64, error) {
	if len(nb.Classes) == 0 || len(nb.ClassCounts) != len(nb.Classes) {
		return nil, fmt.Errorf("malformed model: %d classes, %d class counts", len(nb.Classes), len(nb.ClassCounts))
	}

	var totalExamples float64
	for _, c := range nb.ClassCounts {
		totalExamples += c
	}
	if totalExamples == 0 {
		return nil, fmt.Errorf("malformed model: zero training examples")
	}

	tokens := descriptorTokens(d)
	vocabSize := float64(len(nb.Vocab))

	scores := make([]float64, len(nb.Classes))
	for i := range nb.Classes {
		// Laplace-smoothed class prior; a class with no examples still gets
		// nonzero mass.
		scores[i] = math.Log((nb.ClassCounts[i] + nb.Alpha) / (totalExamples + nb.Alpha*float64(len(nb.Classes))))
		denom := nb.TokenTotals[i] + nb.Alpha*vocabSize
		for _, t := range tokens {
			idx, ok := nb.Vocab[t]
			if !ok {
				continue
			}
			scores[i] += math.Log((nb.TokenCounts[i][idx] + nb.Alpha) / denom)
		}
	}

	lse := floats.LogSumExp(scores)
	probs := make(map[string]float64, len(nb.Classes))
	for i, c := range nb.Classes {
		probs[c] = math.Exp(scores[i] - lse)
	}
	return probs, nil
}
