package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/cespare/xxhash/v2"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/tony-42069/precedence/internal/casefile"
)

// onnxClassifier serves artifacts trained outside the process and exported
// to ONNX. Features are hashed bag-of-words counts; the session's input and
// output tensors are allocated once and reused under a lock.
type onnxClassifier struct {
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
	labels  []string
	dim     int
	ver     string

	mu sync.Mutex
}

func newONNXClassifier(dir string, meta Meta) (*onnxClassifier, error) {
	modelPath := filepath.Join(dir, onnxFile)
	if _, err := os.Stat(modelPath); err != nil {
		return nil, fmt.Errorf("model file missing at %s: %w", modelPath, err)
	}

	labels, err := loadLabelMap(filepath.Join(dir, onnxLabelsFile))
	if err != nil {
		return nil, fmt.Errorf("load label map: %w", err)
	}

	libPath := resolveSharedLibraryPath(dir)
	if libPath == "" {
		return nil, errors.New("onnxruntime shared library not found; set ONNXRUNTIME_SHARED_LIBRARY_PATH or install the runtime")
	}
	ort.SetSharedLibraryPath(libPath)
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("initialize onnxruntime: %w", err)
		}
	}

	dim := meta.FeatureDim
	if dim <= 0 {
		dim = defaultFeatureDim
	}

	input, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(dim)))
	if err != nil {
		return nil, fmt.Errorf("allocate feature tensor: %w", err)
	}
	output, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(len(labels))))
	if err != nil {
		return nil, fmt.Errorf("allocate output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(
		modelPath,
		[]string{"features"},
		[]string{"logits"},
		[]ort.Value{input},
		[]ort.Value{output},
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("create onnx session: %w", err)
	}

	ver := meta.Version
	if ver == "" {
		ver = "outcome_onnx_v1"
	}
	return &onnxClassifier{
		session: session,
		input:   input,
		output:  output,
		labels:  labels,
		dim:     dim,
		ver:     ver,
	}, nil
}

func (c *onnxClassifier) version() string { return c.ver }

func (c *onnxClassifier) predictProba(d casefile.Descriptor) (map[string]float64, error) {
	features := make([]float32, c.dim)
	for _, t := range descriptorTokens(d) {
		features[xxhash.Sum64String(t)%uint64(c.dim)]++
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	copy(c.input.GetData(), features)
	if err := c.session.Run(); err != nil {
		return nil, fmt.Errorf("onnx run: %w", err)
	}

	logits := c.output.GetData()
	if len(logits) < len(c.labels) {
		return nil, fmt.Errorf("onnx output has %d values for %d labels", len(logits), len(c.labels))
	}
	return softmax(c.labels, logits), nil
}

// softmax converts logits to probabilities, shifting by the max first so
// large logits don't overflow.
func softmax(labels []string, logits []float32) map[string]float64 {
	maxLogit := float64(logits[0])
	for _, l := range logits[1:len(labels)] {
		if float64(l) > maxLogit {
			maxLogit = float64(l)
		}
	}

	var total float64
	exps := make([]float64, len(labels))
	for i := range labels {
		exps[i] = math.Exp(float64(logits[i]) - maxLogit)
		total += exps[i]
	}

	probs := make(map[string]float64, len(labels))
	for i, label := range labels {
		probs[label] = exps[i] / total
	}
	return probs
}

// loadLabelMap reads labels as either an ordered array or an index map.
func loadLabelMap(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var arr []string
	if err := json.Unmarshal(data, &arr); err == nil && len(arr) > 0 {
		return arr, nil
	}

	var m map[string]string
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	out := make([]string, len(m))
	for k, v := range m {
		var idx int
		if _, err := fmt.Sscanf(k, "%d", &idx); err != nil {
			return nil, fmt.Errorf("invalid label index %q: %w", k, err)
		}
		if idx < 0 || idx >= len(m) {
			return nil, fmt.Errorf("label index %d out of range", idx)
		}
		out[idx] = v
	}
	return out, nil
}

// resolveSharedLibraryPath locates a platform-specific onnxruntime shared
// library. ONNXRUNTIME_SHARED_LIBRARY_PATH wins; otherwise common names and
// locations are probed.
func resolveSharedLibraryPath(artifactDir string) string {
	if env := strings.TrimSpace(os.Getenv("ONNXRUNTIME_SHARED_LIBRARY_PATH")); env != "" {
		return env
	}

	names := []string{
		"libonnxruntime.dylib",
		"onnxruntime.dylib",
		"libonnxruntime.so",
		"onnxruntime.so",
		"onnxruntime.dll",
	}
	dirs := []string{
		artifactDir,
		filepath.Join(artifactDir, "lib"),
		".",
		"/opt/homebrew/lib",
		"/usr/local/lib",
		"/usr/lib",
	}

	for _, dir := range dirs {
		for _, name := range names {
			candidate := filepath.Join(dir, name)
			if _, err := os.Stat(candidate); err == nil {
				return candidate
			}
		}
	}
	return ""
}
