package engine

import (
	"context"
	"fmt"

	"github.com/tony-42069/precedence/internal/bias"
	"github.com/tony-42069/precedence/internal/config"
	"github.com/tony-42069/precedence/internal/heuristic"
	"github.com/tony-42069/precedence/internal/logging"
	"github.com/tony-42069/precedence/internal/outcome"
	"github.com/tony-42069/precedence/internal/profile"
	"github.com/tony-42069/precedence/internal/registry"
	"github.com/tony-42069/precedence/internal/telemetry"
)

// Build wires a production engine from configuration: outcome set and
// keyword table by mode, trained-model registry, judge profile store,
// bias adjuster, and telemetry. The returned shutdown function releases
// the profile store and flushes telemetry.
func Build(ctx context.Context, cfg *config.Config) (*Engine, func(context.Context), error) {
	if cfg == nil {
		cfg = config.Default()
	}

	set, table := modeDefaults(cfg.Mode)
	if cfg.Heuristic.TablePath != "" {
		loaded, err := heuristic.LoadTable(cfg.Heuristic.TablePath)
		if err != nil {
			return nil, nil, fmt.Errorf("load keyword table: %w", err)
		}
		table = loaded
	}

	heur, err := heuristic.New(set, table, cfg.Heuristic.NoiseMagnitude, cfg.Heuristic.ProbabilityFloor)
	if err != nil {
		return nil, nil, fmt.Errorf("build heuristic model: %w", err)
	}

	reg := registry.New(cfg.ModelDir, set)
	reg.Load()

	// The profile store is optional enrichment for the bias layer; a broken
	// database downgrades to the hash placeholder instead of failing startup.
	var store *profile.Store
	var profiles bias.ProfileReader
	if cfg.ProfileDB != "" {
		store, err = profile.Open(cfg.ProfileDB)
		if err != nil {
			logging.Warnf("profile store unavailable, using placeholder bias: %v", err)
		} else {
			profiles = store
		}
	}
	adj := bias.New(profiles, cfg.Bias.DeltaBound)

	tel, err := telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:  cfg.Telemetry.Enabled,
		Endpoint: cfg.Telemetry.Endpoint,
		Protocol: cfg.Telemetry.Protocol,
		Service:  "precedence",
		Version:  "dev",
	})
	if err != nil {
		return nil, nil, fmt.Errorf("configure telemetry: %w", err)
	}

	e := New(cfg, set, reg, heur, adj, tel)

	// The other mode stays reachable per request, heuristic-only.
	altSet, altTable := modeDefaults(otherMode(cfg.Mode))
	if altHeur, err := heuristic.New(altSet, altTable, cfg.Heuristic.NoiseMagnitude, cfg.Heuristic.ProbabilityFloor); err == nil {
		e.RegisterMode(altSet.Name, altSet, altHeur)
	}

	shutdown := func(ctx context.Context) {
		tel.Shutdown(ctx)
		if store != nil {
			store.Close()
		}
	}
	return e, shutdown, nil
}

func modeDefaults(mode string) (outcome.Set, heuristic.Table) {
	if mode == "market" {
		return outcome.MarketOutcomes, heuristic.DefaultMarketTable()
	}
	return outcome.CaseOutcomes, heuristic.DefaultCaseTable()
}

func otherMode(mode string) string {
	if mode == "market" {
		return "case"
	}
	return "market"
}
