package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/panbanda/connascence/internal/output"
	"github.com/panbanda/connascence/internal/report"
	"github.com/panbanda/connascence/pkg/engine"
	"github.com/panbanda/connascence/pkg/models"
	"github.com/panbanda/connascence/pkg/watch"
)

func watchCmd() *cli.Command {
	return &cli.Command{
		Name:      "watch",
		Usage:     "Watch for file changes and re-analyze",
		ArgsUsage: "[path]",
		Flags: append(outputFlags(),
			&cli.DurationFlag{
				Name:  "debounce",
				Value: watch.DefaultDebounce,
				Usage: "Quiet period before a changed file is analyzed",
			},
			&cli.BoolFlag{
				Name:  "skip-initial",
				Usage: "Do not analyze the whole project before watching",
			},
		),
		Action: runWatchCmd,
	}
}

func runWatchCmd(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	logger := newLogger(c)

	root, err := filepath.Abs(getPaths(c)[0])
	if err != nil {
		return fmt.Errorf("invalid path: %w", err)
	}

	f, err := newFormatter(c, cfg)
	if err != nil {
		return err
	}
	defer f.Close()
	ropts := report.Options{TopN: cfg.Output.TopN, ToolVersion: version, Reproducible: cfg.Output.Reproducible}

	eng := engine.New(append(engine.FromConfig(cfg), engine.WithLogger(logger))...)

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var initial *models.AnalysisResult
	if !c.Bool("skip-initial") {
		initial, err = eng.AnalyzeProject(ctx, root, cfg.Policy, nil)
		if err != nil {
			return err
		}
		if err := f.Result(initial, ropts); err != nil {
			return err
		}
	}

	w, err := watch.New(root, eng, cfg.Policy,
		watch.WithInitial(initial),
		watch.WithDebounce(c.Duration("debounce")),
		watch.WithExclude(cfg.Exclude),
		watch.WithLogger(logger),
		watch.WithHandler(func(cycle watch.Cycle) {
			if cycle.Err != nil {
				f.Error("re-analysis failed: %v", cycle.Err)
				return
			}
			for _, path := range cycle.Files {
				rel, err := filepath.Rel(root, path)
				if err != nil {
					rel = path
				}
				f.Warning("changed: %s", rel)
			}
			if f.Format() != output.FormatText {
				if err := f.Result(cycle.Result, ropts); err != nil {
					logger.Error("render result", "error", err)
				}
				return
			}
			for _, v := range cycle.Result.Violations {
				fmt.Fprintf(f.Writer(), "  %-8s %s:%d  %s\n",
					output.SeverityColor(v.Severity, strings.ToUpper(string(v.Severity))),
					v.FilePath, v.Line, v.Description)
			}
			for _, d := range cycle.Result.Diagnostics {
				f.Error("%s:%d %s", d.FilePath, d.Line, d.Description)
			}
			f.Info("%d violations in %d file(s), %d in project",
				len(cycle.Result.Violations), len(cycle.Files), len(cycle.Project))
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer w.Stop()

	f.Info("Watching for changes in %s (Ctrl+C to stop)", root)
	if err := w.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
