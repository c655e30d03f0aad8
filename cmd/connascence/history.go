package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/urfave/cli/v2"

	"github.com/panbanda/connascence/internal/history"
	"github.com/panbanda/connascence/internal/output"
	"github.com/panbanda/connascence/pkg/analyzer/metrics"
	"github.com/panbanda/connascence/pkg/models"
)

func historyCmd() *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "Show the quality trend and baseline comparison of recorded runs",
		Flags: append(outputFlags(),
			&cli.StringFlag{
				Name:  "dir",
				Usage: "History database directory (default from config)",
			},
			&cli.BoolFlag{
				Name:  "set-baseline",
				Usage: "Make the newest snapshot the baseline",
			},
		),
		Action: runHistoryCmd,
	}
}

// historyView is the machine-readable form of the history command.
type historyView struct {
	Snapshots []models.QualityMetrics    `json:"snapshots"`
	Trend     metrics.TrendReport        `json:"trend"`
	Baseline  *models.QualityMetrics     `json:"baseline,omitempty"`
	Compare   metrics.BaselineComparison `json:"baseline_comparison"`
}

func runHistoryCmd(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	dir := cfg.History.Dir
	if c.IsSet("dir") {
		dir = c.String("dir")
	}
	store, err := history.Open(history.Config{
		Dir:      dir,
		Capacity: cfg.Policy.HistoryCapacity,
		Logger:   newLogger(c),
	})
	if err != nil {
		return err
	}
	defer store.Close()

	collector, err := loadCollector(c.Context, store, cfg.Policy)
	if err != nil {
		return err
	}

	f, err := newFormatter(c, cfg)
	if err != nil {
		return err
	}
	defer f.Close()

	if c.Bool("set-baseline") {
		latest, ok := collector.Latest()
		if !ok {
			return errors.New("no recorded runs to use as baseline")
		}
		if err := store.SetBaseline(latest); err != nil {
			return fmt.Errorf("store baseline: %w", err)
		}
		collector.SetBaseline(latest)
		f.Success("Baseline set to the newest snapshot (quality %.3f)", latest.OverallQualityScore)
	}

	view := historyView{
		Snapshots: collector.History(),
		Trend:     collector.Trend(),
		Compare:   collector.CompareBaseline(),
	}
	if base, ok := collector.Baseline(); ok {
		view.Baseline = &base
	}

	switch f.Format() {
	case output.FormatJSON, output.FormatTOON, output.FormatSARIF:
		enc := json.NewEncoder(f.Writer())
		enc.SetIndent("", "  ")
		return enc.Encode(view)
	}
	return f.Output(historyReport(view))
}

func historyReport(v historyView) *output.Report {
	rows := make([][]string, 0, len(v.Snapshots))
	for i, m := range v.Snapshots {
		rows = append(rows, []string{
			strconv.Itoa(i + 1),
			m.Timestamp.Format("2006-01-02 15:04"),
			fmt.Sprintf("%.3f", m.OverallQualityScore),
			strconv.Itoa(m.TotalViolations),
			strconv.Itoa(m.Critical),
			fmt.Sprintf("%.3f", m.NASAComplianceScore),
			fmt.Sprintf("%.3f", m.DuplicationScore),
		})
	}

	t := v.Trend
	trend := &output.Section{
		Title: "Trend",
		Content: fmt.Sprintf("Trend:             %s\nQuality change:    %+.3f (%s)\nViolation change:  %+d (%s)\nSlope:             %.4f (R² %.2f)\n%s",
			t.Trend, t.QualityChange, t.Direction, t.ViolationChange, t.ViolationDirection,
			t.Stats.Slope, t.Stats.RSquared, t.Analysis),
	}

	base := &output.Section{Title: "Baseline", Content: "No baseline set. Use --set-baseline."}
	if v.Baseline != nil {
		cmp := v.Compare
		base.Content = fmt.Sprintf("Status:            %s\nQuality delta:     %+.3f\nNASA delta:        %+.3f\nDuplication delta: %+.3f\nViolation delta:   %+d",
			cmp.Status, cmp.QualityDelta, cmp.NASADelta, cmp.DuplicationDelta, cmp.ViolationDelta)
	}

	return &output.Report{
		Title: "Quality History",
		Sections: []output.Renderable{
			output.NewTable("Snapshots",
				[]string{"#", "Time", "Quality", "Violations", "Critical", "NASA", "Duplication"},
				rows, nil),
			trend,
			base,
		},
	}
}
