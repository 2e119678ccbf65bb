// Package registry owns the lifecycle of the optional trained outcome
// classifier. Loading is fail-soft: a missing or incompatible artifact
// leaves the registry unavailable instead of failing the process, and the
// composer falls back to the keyword heuristic. The live artifact is an
// immutable value behind an atomic pointer; train/reload build a full
// replacement off to the side and publish it with a single swap.
package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/tony-42069/precedence/internal/casefile"
	"github.com/tony-42069/precedence/internal/logging"
	"github.com/tony-42069/precedence/internal/outcome"
)

const (
	metaFile       = "model_meta.json"
	nativeFile     = "outcome_model.json"
	onnxFile       = "outcome_model.onnx"
	onnxLabelsFile = "label_map.json"

	// defaultFeatureDim sizes hashed bag-of-words features for ONNX
	// artifacts that don't declare their own dimension.
	defaultFeatureDim = 1024
)

// ErrArtifactUnavailable indicates no usable model artifact is loaded.
var ErrArtifactUnavailable = errors.New("model artifact unavailable")

// InferenceError wraps a model failure on a specific input. The composer
// treats it as "model unavailable for this request" and falls back.
type InferenceError struct {
	Err error
}

func (e *InferenceError) Error() string { return "model inference: " + e.Err.Error() }
func (e *InferenceError) Unwrap() error { return e.Err }

// Meta describes a persisted artifact: which backend reads it and the
// outcome labels it predicts over.
type Meta struct {
	Backend    string    `json:"backend"` // "nbayes" | "onnx"
	Labels     []string  `json:"outcome_labels"`
	Version    string    `json:"model_version"`
	FeatureDim int       `json:"feature_dim,omitempty"`
	Examples   int       `json:"examples,omitempty"`
	TrainedAt  time.Time `json:"trained_at,omitempty"`
}

// TrainingExample is one labeled case for Train.
type TrainingExample struct {
	CaseFacts string `json:"case_facts"`
	CaseType  string `json:"case_type"`
	Outcome   string `json:"outcome"`
}

// TrainingReport summarizes a completed training run.
type TrainingReport struct {
	ID          string         `json:"id"`
	Examples    int            `json:"examples"`
	LabelCounts map[string]int `json:"label_counts"`
	Accuracy    float64        `json:"training_accuracy"`
	ArtifactDir string         `json:"artifact_dir"`
	Version     string         `json:"model_version"`
	TrainedAt   time.Time      `json:"trained_at"`
}

type classifier interface {
	predictProba(d casefile.Descriptor) (map[string]float64, error)
	version() string
}

type artifact struct {
	clf  classifier
	meta Meta
}

// Registry holds the process-wide trained model state.
type Registry struct {
	set     outcome.Set
	current atomic.Pointer[artifact]

	mu  sync.Mutex // serializes Train/Reload and guards dir
	dir string
}

// New creates a registry for the given artifact directory and outcome set.
// It does not touch the filesystem; call Load to pick up an existing artifact.
func New(dir string, set outcome.Set) *Registry {
	return &Registry{set: set, dir: dir}
}

// Load attempts to read the artifact from the configured directory.
// On any failure it logs a warning and leaves the registry unavailable;
// it never returns an error to the caller.
func (r *Registry) Load() {
	r.mu.Lock()
	dir := r.dir
	r.mu.Unlock()

	art, err := loadArtifact(dir, r.set)
	if err != nil {
		logging.Warnf("model registry: artifact unavailable (%s): %v", dir, err)
		return
	}
	r.current.Store(art)
	logging.Infof("model registry: loaded %s artifact %s from %s", art.meta.Backend, art.meta.Version, dir)
}

// Available reports whether a usable artifact is loaded.
func (r *Registry) Available() bool {
	return r.current.Load() != nil
}

// ModelVersion returns the loaded artifact's version, or "" when unavailable.
func (r *Registry) ModelVersion() string {
	if a := r.current.Load(); a != nil {
		return a.clf.version()
	}
	return ""
}

// Predict runs the loaded classifier and returns a normalized probability
// vector over the registry's outcome set. It returns ErrArtifactUnavailable
// when no artifact is loaded and *InferenceError when the artifact fails on
// this input.
func (r *Registry) Predict(d casefile.Descriptor) (outcome.Vector, error) {
	a := r.current.Load()
	if a == nil {
		return nil, ErrArtifactUnavailable
	}

	probs, err := a.clf.predictProba(d)
	if err != nil {
		return nil, &InferenceError{Err: err}
	}

	vec, err := outcome.Normalize(r.set, probs, 0)
	if err != nil {
		return nil, &InferenceError{Err: err}
	}
	return vec, nil
}

// Reload replaces the artifact with one loaded from dir. The new artifact is
// built fully off to the side; on any failure the previous state is kept
// untouched. It returns the registry's availability after the attempt.
func (r *Registry) Reload(dir string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	art, err := loadArtifact(dir, r.set)
	if err != nil {
		logging.Warnf("model registry: reload from %s failed, keeping previous state: %v", dir, err)
		return r.current.Load() != nil
	}

	r.dir = dir
	r.current.Store(art)
	logging.Infof("model registry: reloaded %s artifact %s from %s", art.meta.Backend, art.meta.Version, dir)
	return true
}

// Train fits a new native classifier from labeled examples, persists it to
// the configured directory, and atomically replaces the in-memory artifact.
// In-flight Predict calls keep using the old artifact until the swap.
func (r *Registry) Train(examples []TrainingExample) (*TrainingReport, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(examples) == 0 {
		return nil, fmt.Errorf("no training examples provided")
	}

	labelCounts := make(map[string]int, len(r.set.Labels))
	for _, ex := range examples {
		if !r.set.Contains(ex.Outcome) {
			return nil, fmt.Errorf("outcome %q is not in the %q label set", ex.Outcome, r.set.Name)
		}
		labelCounts[ex.Outcome]++
	}

	nb, err := fitNaiveBayes(examples, r.set.Labels)
	if err != nil {
		return nil, fmt.Errorf("fit classifier: %w", err)
	}

	correct := 0
	for _, ex := range examples {
		probs, err := nb.predictProba(casefile.Descriptor{Text: ex.CaseFacts, Category: strings.ToLower(ex.CaseType)})
		if err != nil {
			return nil, fmt.Errorf("evaluate classifier: %w", err)
		}
		if outcome.ArgMax(r.set, probs) == ex.Outcome {
			correct++
		}
	}

	meta := Meta{
		Backend:   "nbayes",
		Labels:    r.set.Labels,
		Version:   nb.ModelVersion,
		Examples:  len(examples),
		TrainedAt: time.Now().UTC(),
	}
	if err := persistArtifact(r.dir, nb, meta); err != nil {
		return nil, fmt.Errorf("persist artifact: %w", err)
	}

	r.current.Store(&artifact{clf: nb, meta: meta})

	report := &TrainingReport{
		ID:          uuid.NewString(),
		Examples:    len(examples),
		LabelCounts: labelCounts,
		Accuracy:    float64(correct) / float64(len(examples)),
		ArtifactDir: r.dir,
		Version:     meta.Version,
		TrainedAt:   meta.TrainedAt,
	}
	logging.Infof("model registry: trained %s on %d examples, accuracy %.3f", meta.Version, report.Examples, report.Accuracy)
	return report, nil
}

// loadArtifact reads and validates an artifact directory.
func loadArtifact(dir string, set outcome.Set) (*artifact, error) {
	if dir == "" {
		return nil, errors.New("artifact directory not configured")
	}

	data, err := os.ReadFile(filepath.Join(dir, metaFile))
	if err != nil {
		return nil, fmt.Errorf("read model metadata: %w", err)
	}
	var meta Meta
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("decode model metadata: %w", err)
	}
	if err := compatibleLabels(meta.Labels, set); err != nil {
		return nil, err
	}

	switch meta.Backend {
	case "nbayes":
		raw, err := os.ReadFile(filepath.Join(dir, nativeFile))
		if err != nil {
			return nil, fmt.Errorf("read model file: %w", err)
		}
		var nb naiveBayes
		if err := json.Unmarshal(raw, &nb); err != nil {
			return nil, fmt.Errorf("decode model file: %w", err)
		}
		if len(nb.Classes) != len(nb.ClassCounts) || len(nb.TokenCounts) != len(nb.Classes) {
			return nil, fmt.Errorf("model file is internally inconsistent")
		}
		return &artifact{clf: &nb, meta: meta}, nil
	case "onnx":
		clf, err := newONNXClassifier(dir, meta)
		if err != nil {
			return nil, fmt.Errorf("load onnx artifact: %w", err)
		}
		return &artifact{clf: clf, meta: meta}, nil
	default:
		return nil, fmt.Errorf("unknown artifact backend %q", meta.Backend)
	}
}

// compatibleLabels verifies the artifact predicts exactly the active set.
func compatibleLabels(labels []string, set outcome.Set) error {
	if len(labels) != len(set.Labels) {
		return fmt.Errorf("artifact has %d labels, outcome set %q has %d", len(labels), set.Name, len(set.Labels))
	}
	for _, l := range labels {
		if !set.Contains(l) {
			return fmt.Errorf("artifact label %q is not in outcome set %q", l, set.Name)
		}
	}
	return nil
}

// persistArtifact writes the model and metadata, each atomically via a temp
// file and rename, so a crash mid-write never leaves a half-written file in
// place of a good one.
func persistArtifact(dir string, nb *naiveBayes, meta Meta) error {
	if dir == "" {
		return errors.New("artifact directory not configured")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create artifact dir: %w", err)
	}

	model, err := json.MarshalIndent(nb, "", "  ")
	if err != nil {
		return fmt.Errorf("encode model: %w", err)
	}
	metaData, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}

	if err := writeFileAtomic(dir, nativeFile, model); err != nil {
		return err
	}
	return writeFileAtomic(dir, metaFile, metaData)
}

func writeFileAtomic(dir, name string, data []byte) error {
	tmp, err := os.CreateTemp(dir, name+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmp.Name(), filepath.Join(dir, name)); err != nil {
		return fmt.Errorf("replace %s: %w", name, err)
	}
	return nil
}
