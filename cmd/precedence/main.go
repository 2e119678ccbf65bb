package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/tony-42069/precedence/internal/config"
	"github.com/tony-42069/precedence/internal/engine"
	"github.com/tony-42069/precedence/internal/registry"
)

func main() {
	configPath := flag.String("config", "precedence.yaml", "Path to config file")
	inputPath := flag.String("input", "-", "Case JSON file to predict on (- for stdin)")
	judgeID := flag.String("judge", "", "Judge identifier for bias adjustment")
	trainPath := flag.String("train", "", "Train a model from a JSONL file of labeled cases")
	reloadDir := flag.String("reload", "", "Reload the model artifact from a directory")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx := context.Background()
	eng, shutdown, err := engine.Build(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to build engine: %v", err)
	}
	defer shutdown(ctx)

	switch {
	case *trainPath != "":
		report, err := train(eng, *trainPath)
		if err != nil {
			log.Fatalf("training failed: %v", err)
		}
		printJSON(report)
	case *reloadDir != "":
		if !eng.ReloadModel(*reloadDir) {
			log.Fatalf("no usable model artifact in %s", *reloadDir)
		}
		fmt.Println("model reloaded")
	default:
		raw, err := readInput(*inputPath)
		if err != nil {
			log.Fatalf("failed to read input: %v", err)
		}
		printJSON(eng.Predict(ctx, raw, *judgeID))
	}
}

func readInput(path string) (map[string]any, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, err
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode case JSON: %w", err)
	}
	return raw, nil
}

// train reads one JSON-encoded labeled example per line.
func train(eng *engine.Engine, path string) (*registry.TrainingReport, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var examples []registry.TrainingExample
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := scanner.Bytes()
		if len(text) == 0 {
			continue
		}
		var ex registry.TrainingExample
		if err := json.Unmarshal(text, &ex); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		examples = append(examples, ex)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return eng.Train(examples)
}

func printJSON(v any) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		log.Fatalf("encode output: %v", err)
	}
	fmt.Println(string(out))
}
