package main

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v2"

	"github.com/panbanda/connascence/internal/history"
	"github.com/panbanda/connascence/internal/output"
	"github.com/panbanda/connascence/internal/progress"
	"github.com/panbanda/connascence/internal/report"
	"github.com/panbanda/connascence/internal/scanner"
	"github.com/panbanda/connascence/pkg/analyzer/metrics"
	"github.com/panbanda/connascence/pkg/config"
	"github.com/panbanda/connascence/pkg/engine"
	"github.com/panbanda/connascence/pkg/models"
)

func analyzeCmd() *cli.Command {
	flags := append(outputFlags(),
		&cli.IntFlag{
			Name:  "workers",
			Usage: "Concurrent file workers (0 = 2x CPU count)",
		},
		&cli.DurationFlag{
			Name:  "timeout",
			Usage: "Global analysis deadline; files not finished in time are reported as skipped",
		},
		&cli.StringSliceFlag{
			Name:    "include",
			Aliases: []string{"i"},
			Usage:   "Only analyze files matching these patterns",
		},
		&cli.BoolFlag{
			Name:  "reproducible",
			Usage: "Omit run IDs and timings so identical inputs give identical output",
		},
		&cli.IntFlag{
			Name:  "top",
			Usage: "Number of violations listed in text and markdown output",
		},
		&cli.StringFlag{
			Name:  "metrics-file",
			Usage: "Write Prometheus metrics for the run to this textfile",
		},
		&cli.BoolFlag{
			Name:  "history",
			Usage: "Record the run's quality metrics in the history store",
		},
		&cli.BoolFlag{
			Name:  "no-progress",
			Usage: "Hide the progress bar",
		},
		&cli.BoolFlag{
			Name:  "no-fail",
			Usage: "Exit 0 even when quality gates fail",
		},
	)
	return &cli.Command{
		Name:      "analyze",
		Aliases:   []string{"a"},
		Usage:     "Detect connascence, NASA rule violations and duplicated algorithms",
		ArgsUsage: "[path...]",
		Flags:     flags,
		Action:    runAnalyzeCmd,
	}
}

func runAnalyzeCmd(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	logger := newLogger(c)
	if c.IsSet("workers") {
		cfg.Engine.Workers = c.Int("workers")
	}
	if c.IsSet("timeout") {
		cfg.Engine.Timeout = c.Duration("timeout")
	}
	if err := cfg.Validate(); err != nil {
		return exitf(exitConfig, "%v", err)
	}

	opts := append(engine.FromConfig(cfg), engine.WithLogger(logger))

	var registry *prometheus.Registry
	if c.String("metrics-file") != "" {
		registry = prometheus.NewRegistry()
		opts = append(opts, engine.WithRegistry(registry))
	}

	var store *history.Store
	if c.Bool("history") || cfg.History.Enabled {
		store, err = history.Open(history.Config{
			Dir:      cfg.History.Dir,
			Capacity: cfg.Policy.HistoryCapacity,
			Logger:   logger,
		})
		if err != nil {
			return err
		}
		defer store.Close()
		collector, err := loadCollector(c.Context, store, cfg.Policy)
		if err != nil {
			return err
		}
		opts = append(opts, engine.WithCollector(collector))
	}

	var tracker *progress.Tracker
	if !c.Bool("no-progress") && c.String("output") == "" {
		opts = append(opts, engine.WithProgress(func(total int) func() {
			tracker = progress.NewTrackerTo(c.App.ErrWriter, "Analyzing...", total)
			return tracker.Tick
		}))
	}

	eng := engine.New(opts...)
	res, err := analyzePaths(c.Context, eng, cfg, getPaths(c), c.StringSlice("include"))
	if tracker != nil {
		switch {
		case err != nil:
			tracker.FinishError(err)
		case res.PartialResults:
			tracker.FinishPartial(len(res.SkippedFiles))
		default:
			tracker.FinishSuccess()
		}
	}
	if err != nil {
		return err
	}

	if store != nil {
		if err := store.Append(c.Context, res.Metrics); err != nil {
			logger.Warn("could not record metrics snapshot", "error", err)
		}
	}

	if err := writeResult(c, cfg, res, logger); err != nil {
		return err
	}

	if registry != nil {
		if err := prometheus.WriteToTextfile(c.String("metrics-file"), registry); err != nil {
			return fmt.Errorf("write metrics file: %w", err)
		}
	}

	if !res.QualityGates.OverallPassing && !c.Bool("no-fail") {
		return exitf(exitGatesFailed, "quality gates failed: %s", failedGates(res))
	}
	return nil
}

// analyzePaths analyzes a single directory as a project and any other mix
// of files and directories as one combined file set.
func analyzePaths(ctx context.Context, eng *engine.Engine, cfg *config.Config, paths, include []string) (*models.AnalysisResult, error) {
	abs := make([]string, 0, len(paths))
	for _, p := range paths {
		a, err := filepath.Abs(p)
		if err != nil {
			return nil, fmt.Errorf("invalid path %s: %w", p, err)
		}
		abs = append(abs, a)
	}
	if len(abs) == 1 && isDir(abs[0]) {
		return eng.AnalyzeProject(ctx, abs[0], cfg.Policy, include)
	}

	scan := scanner.New(cfg.Exclude)
	var files []string
	for _, p := range abs {
		if !isDir(p) {
			files = append(files, p)
			continue
		}
		found, err := scan.ScanDir(p, include...)
		if err != nil {
			return nil, fmt.Errorf("failed to scan directory %s: %w", p, err)
		}
		files = append(files, found...)
	}
	slices.Sort(files)
	return eng.AnalyzeFiles(ctx, slices.Compact(files), cfg.Policy)
}

func loadCollector(ctx context.Context, store *history.Store, policy config.Policy) (*metrics.Collector, error) {
	snapshots, err := store.Load(ctx)
	if err != nil {
		return nil, err
	}
	collector := metrics.NewCollector(policy)
	collector.Load(snapshots)
	if base, err := store.Baseline(); err == nil {
		collector.SetBaseline(base)
	}
	return collector, nil
}

func writeResult(c *cli.Context, cfg *config.Config, res *models.AnalysisResult, logger *slog.Logger) error {
	f, err := newFormatter(c, cfg)
	if err != nil {
		return err
	}
	defer f.Close()

	top := cfg.Output.TopN
	if c.IsSet("top") {
		top = c.Int("top")
	}
	ropts := report.Options{
		Reproducible: c.Bool("reproducible") || cfg.Output.Reproducible,
		TopN:         top,
		ToolVersion:  version,
	}
	if f.Format() != output.FormatText && logger.Enabled(c.Context, slog.LevelDebug) {
		if data, err := report.Render(report.Format(f.Format()), res, ropts); err == nil {
			logger.Debug("report size", "format", f.Format(),
				"bytes", len(data), "tokens", output.FormatTokenCount(output.EstimateTokens(data)))
		}
	}
	return f.Result(res, ropts)
}

func failedGates(res *models.AnalysisResult) string {
	var names []string
	for _, g := range res.QualityGates.Failed() {
		names = append(names, g.Name)
	}
	return fmt.Sprint(names)
}
