// Command seed loads the default transform catalog into the database and
// writes the reference network and baseline files when they are missing.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"tremor/internal/config"
	"tremor/internal/services"
	"tremor/internal/signals"
	"tremor/internal/storage"
	"tremor/pkg/contracts/domain"
)

var defaultTransforms = []domain.SignalTransform{
	{
		Name:        "Fed Rate Surprise",
		Description: "Difference between actual and expected federal funds rate",
		EventTypes:  []string{"fed_announcement"},
		Expression:  "actual_rate - expected_rate",
		NodeMapping: "d_fed_funds",
		Unit:        "percent",
		ThresholdSD: 2.0,
	},
	{
		Name:        "CPI Surprise",
		Description: "CPI actual vs expected, surprises hit Treasury yields",
		EventTypes:  []string{"economic_data"},
		Expression:  "actual_cpi - expected_cpi",
		NodeMapping: "d_treasury_10y",
		Unit:        "percent",
		ThresholdSD: 2.0,
	},
	{
		Name:        "Earnings Beat",
		Description: "Actual EPS minus expected EPS",
		EventTypes:  []string{"earnings"},
		Expression:  "actual_eps - expected_eps",
		NodeMapping: "sp500_ret",
		Unit:        "dollars",
		ThresholdSD: 2.0,
	},
	{
		Name:        "VIX Spike",
		Description: "Change in VIX around a geopolitical event",
		EventTypes:  []string{"geopolitical"},
		Expression:  "vix_after - vix_before",
		NodeMapping: "d_vix",
		Unit:        "index_points",
		ThresholdSD: 2.0,
	},
	{
		Name:        "Credit Stress",
		Description: "Change in credit spreads around stress events",
		EventTypes:  []string{"geopolitical", "economic_data"},
		Expression:  "spread_after - spread_before",
		NodeMapping: "d_credit_spread",
		Unit:        "bps",
		ThresholdSD: 2.0,
	},
	{
		Name:        "NFP Surprise",
		Description: "Non-farm payrolls actual vs expected, surprises move yields",
		EventTypes:  []string{"economic_data"},
		Expression:  "actual_nfp - expected_nfp",
		NodeMapping: "d_treasury_10y",
		Unit:        "thousands",
		ThresholdSD: 2.0,
	},
	{
		Name:        "GDP Surprise",
		Description: "GDP actual vs expected, surprises move equities",
		EventTypes:  []string{"economic_data"},
		Expression:  "actual_gdp - expected_gdp",
		NodeMapping: "sp500_ret",
		Unit:        "percent",
		ThresholdSD: 2.0,
	},
	{
		Name:        "Treasury Yield Shock",
		Description: "Change in 10y Treasury yield around announcements",
		EventTypes:  []string{"fed_announcement", "economic_data"},
		Expression:  "yield_after - yield_before",
		NodeMapping: "d_treasury_10y",
		Unit:        "bps",
		ThresholdSD: 2.0,
	},
}

// networkCSV is the five-node reference edge table.
const networkCSV = `cause,effect,f_statistic,p_value,lag
d_fed_funds,d_treasury_10y,15.0,0.001,1
d_fed_funds,d_vix,8.0,0.010,2
d_treasury_10y,d_credit_spread,9.5,0.004,1
d_treasury_10y,sp500_ret,11.2,0.002,1
d_vix,sp500_ret,13.8,0.001,1
d_credit_spread,sp500_ret,7.4,0.015,2
`

// baselinesJSON is the reference IRF surface: expected direction and
// per-lag response magnitudes for each seeded edge.
const baselinesJSON = `{
  "d_fed_funds": {
    "d_treasury_10y": {"direction": "positive", "responses": [0, 0.32, 0.18]},
    "d_vix": {"direction": "positive", "responses": [0, 0.9, 1.4, 0.6]}
  },
  "d_treasury_10y": {
    "d_credit_spread": {"direction": "positive", "responses": [0, 0.12, 0.07]},
    "sp500_ret": {"direction": "negative", "responses": [0, -0.011, -0.004]}
  },
  "d_vix": {
    "sp500_ret": {"direction": "negative", "responses": [0, -0.016, -0.006]}
  },
  "d_credit_spread": {
    "sp500_ret": {"direction": "negative", "responses": [0, -0.008, -0.009, -0.003]}
  }
}
`

func main() {
	overwrite := flag.Bool("overwrite", false, "rewrite network and baseline files even when present")
	demo := flag.Bool("demo", false, "also ingest a handful of demo events")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if err := run(cfg, logger, *overwrite, *demo); err != nil {
		logger.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger, overwrite, demo bool) error {
	db, err := storage.Open(cfg.Paths.DatabaseFile)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	repo := storage.NewRepository(db)
	ctx := context.Background()

	added := 0
	for _, transform := range defaultTransforms {
		_, err := repo.GetTransformByName(ctx, transform.Name)
		if err == nil {
			logger.Info("transform already present", slog.String("name", transform.Name))
			continue
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("looking up transform %q: %w", transform.Name, err)
		}
		if _, err := repo.CreateTransform(ctx, transform); err != nil {
			return fmt.Errorf("creating transform %q: %w", transform.Name, err)
		}
		logger.Info("transform added", slog.String("name", transform.Name))
		added++
	}

	if err := writeFileIfMissing(cfg.Paths.NetworkCSV, networkCSV, overwrite); err != nil {
		return err
	}
	if err := writeFileIfMissing(cfg.Paths.BaselinesFile, baselinesJSON, overwrite); err != nil {
		return err
	}

	if demo {
		if err := seedDemoEvents(ctx, repo, cfg, logger); err != nil {
			return err
		}
	}

	logger.Info("seed complete",
		slog.Int("transforms_added", added),
		slog.String("network_csv", cfg.Paths.NetworkCSV),
		slog.String("baselines", cfg.Paths.BaselinesFile))
	return nil
}

// seedDemoEvents ingests sample events through the real service path so
// their signals are computed and persisted alongside them.
func seedDemoEvents(ctx context.Context, repo *storage.Repository, cfg *config.Config, logger *slog.Logger) error {
	factory := signals.NewFactory(logger).WithAbsoluteThreshold(cfg.Signals.AbsoluteShockThreshold)
	signalSvc := services.NewSignalService(repo, factory, nil, nil, nil, logger)
	eventSvc := services.NewEventService(repo, signalSvc, logger)

	demoEvents := []domain.Event{
		{
			Timestamp:   time.Date(2024, 1, 31, 19, 0, 0, 0, time.UTC),
			Type:        "fed_announcement",
			Subtype:     "fomc_decision",
			Description: "FOMC holds rates, dovish statement",
			Tags:        []string{"fomc", "rates"},
			RawData:     map[string]any{"actual_rate": 5.5, "expected_rate": 5.5},
		},
		{
			Timestamp:   time.Date(2024, 2, 13, 13, 30, 0, 0, time.UTC),
			Type:        "economic_data",
			Subtype:     "cpi",
			Description: "CPI comes in hot at 3.1% vs 2.9% expected",
			Tags:        []string{"inflation"},
			RawData:     map[string]any{"actual_cpi": 3.1, "expected_cpi": 2.9},
		},
		{
			Timestamp:   time.Date(2024, 3, 8, 13, 30, 0, 0, time.UTC),
			Type:        "economic_data",
			Subtype:     "nfp",
			Description: "Payrolls beat: 275k vs 200k expected",
			Tags:        []string{"labor"},
			RawData:     map[string]any{"actual_nfp": 275.0, "expected_nfp": 200.0},
		},
		{
			Timestamp:   time.Date(2024, 3, 20, 18, 0, 0, 0, time.UTC),
			Type:        "fed_announcement",
			Subtype:     "fomc_decision",
			Description: "FOMC surprise: rates held against a priced-in cut",
			Tags:        []string{"fomc", "rates"},
			RawData:     map[string]any{"actual_rate": 5.5, "expected_rate": 5.25},
		},
	}

	for _, event := range demoEvents {
		result, err := eventSvc.Ingest(ctx, event)
		if err != nil {
			return fmt.Errorf("ingesting demo event %q: %w", event.Description, err)
		}
		logger.Info("demo event ingested",
			slog.String("event_id", result.Event.ID),
			slog.Int("signals", len(result.Signals.Signals)))
	}
	return nil
}

func writeFileIfMissing(path, content string, overwrite bool) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); err == nil && !overwrite {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating directory for %s: %w", path, err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
