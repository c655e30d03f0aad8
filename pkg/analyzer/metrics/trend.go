package metrics

import (
	"gonum.org/v1/gonum/stat"

	"github.com/panbanda/connascence/pkg/models"
)

// Direction is the movement of one figure across the trend window.
type Direction string

const (
	DirectionImproving Direction = "improving"
	DirectionStable    Direction = "stable"
	DirectionDegrading Direction = "degrading"
)

// Overall trend labels.
const (
	TrendNoData           = "no_data"
	TrendInsufficientData = "insufficient_data"
	TrendExcellent        = "excellent_progress"
	TrendImproving        = "improving"
	TrendStable           = "stable"
	TrendDegrading        = "degrading"
	TrendMixed            = "mixed"
)

const (
	qualityTrendDelta   = 0.05
	violationTrendDelta = 5
)

// TrendStats holds regression statistics over the quality scores in the window.
type TrendStats struct {
	Slope       float64 `json:"slope"`
	Intercept   float64 `json:"intercept"`
	RSquared    float64 `json:"r_squared"`
	Correlation float64 `json:"correlation"`
}

// TrendReport compares the newest snapshot with the start of the window.
type TrendReport struct {
	Trend              string     `json:"trend"`
	Direction          Direction  `json:"direction"`
	ViolationDirection Direction  `json:"violation_direction"`
	QualityChange      float64    `json:"quality_change"`
	ViolationChange    int        `json:"violation_change"`
	Window             int        `json:"window"`
	Points             int        `json:"points"`
	Stats              TrendStats `json:"stats"`
	Analysis           string     `json:"analysis"`
}

// Trend analyzes the newest history_window snapshots.
func (c *Collector) Trend() TrendReport {
	window := max(c.policy.HistoryWindow, 2)
	history := c.History()
	r := TrendReport{Window: window, Direction: DirectionStable, ViolationDirection: DirectionStable}
	switch len(history) {
	case 0:
		r.Trend = TrendNoData
		r.Analysis = "No metrics recorded yet"
		return r
	case 1:
		r.Trend = TrendInsufficientData
		r.Points = 1
		r.Analysis = "At least two snapshots are needed for a trend"
		return r
	}
	recent := history[max(len(history)-window, 0):]
	first, last := recent[0], recent[len(recent)-1]
	r.Points = len(recent)

	r.QualityChange = round(last.OverallQualityScore-first.OverallQualityScore, 3)
	switch {
	case r.QualityChange > qualityTrendDelta:
		r.Direction = DirectionImproving
	case r.QualityChange < -qualityTrendDelta:
		r.Direction = DirectionDegrading
	}
	r.ViolationChange = last.TotalViolations - first.TotalViolations
	switch {
	case r.ViolationChange > violationTrendDelta:
		r.ViolationDirection = DirectionDegrading
	case r.ViolationChange < -violationTrendDelta:
		r.ViolationDirection = DirectionImproving
	}
	r.Trend = overallTrend(r.Direction, r.ViolationDirection)
	r.Analysis = trendAnalysis(r.Direction, r.ViolationDirection)
	r.Stats = ComputeTrendStats(recent)
	return r
}

func overallTrend(quality, violations Direction) string {
	switch {
	case quality == DirectionImproving && violations == DirectionImproving:
		return TrendExcellent
	case quality == DirectionStable && violations == DirectionStable:
		return TrendStable
	case quality == DirectionDegrading || violations == DirectionDegrading:
		return TrendDegrading
	case quality == DirectionImproving:
		return TrendImproving
	}
	return TrendMixed
}

func trendAnalysis(quality, violations Direction) string {
	switch {
	case quality == DirectionImproving && violations == DirectionImproving:
		return "Code quality is improving with fewer violations"
	case quality == DirectionDegrading && violations == DirectionDegrading:
		return "Code quality is degrading with more violations"
	case quality == DirectionStable && violations == DirectionStable:
		return "Code quality remains stable"
	case quality == DirectionImproving:
		return "Quality scores improving despite violation changes"
	case quality == DirectionDegrading:
		return "Quality scores degrading, requires attention"
	}
	return "Mixed trends observed, monitoring recommended"
}

// ComputeTrendStats fits a line through the overall quality scores.
// Returns zero values if fewer than 2 snapshots are provided.
func ComputeTrendStats(snapshots []models.QualityMetrics) TrendStats {
	n := len(snapshots)
	if n < 2 {
		return TrendStats{}
	}
	xs := make([]float64, n)
	ys := make([]float64, n)
	for i, m := range snapshots {
		xs[i] = float64(i)
		ys[i] = m.OverallQualityScore
	}
	intercept, slope := stat.LinearRegression(xs, ys, nil, false)
	ts := TrendStats{Slope: slope, Intercept: intercept}
	// A flat series has no variance to explain.
	if stat.Variance(ys, nil) > 0 {
		ts.RSquared = stat.RSquared(xs, ys, nil, intercept, slope)
		ts.Correlation = stat.Correlation(xs, ys, nil)
	}
	return ts
}

// BaselineStatus classifies the quality delta against the baseline.
type BaselineStatus string

const (
	BaselineNone                  BaselineStatus = "no_baseline"
	BaselineSignificantlyImproved BaselineStatus = "significantly_improved"
	BaselineImproved              BaselineStatus = "improved"
	BaselineStable                BaselineStatus = "stable"
	BaselineDegraded              BaselineStatus = "degraded"
	BaselineSignificantlyDegraded BaselineStatus = "significantly_degraded"
)

// BaselineComparison is the difference between the newest snapshot and the baseline.
type BaselineComparison struct {
	Status           BaselineStatus `json:"status"`
	QualityDelta     float64        `json:"quality_delta"`
	NASADelta        float64        `json:"nasa_delta"`
	DuplicationDelta float64        `json:"duplication_delta"`
	ViolationDelta   int            `json:"violation_delta"`
}

// SetBaseline designates m as the baseline snapshot.
func (c *Collector) SetBaseline(m models.QualityMetrics) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.baseline = &m
}

// Baseline returns the designated baseline snapshot.
func (c *Collector) Baseline() (models.QualityMetrics, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.baseline == nil {
		return models.QualityMetrics{}, false
	}
	return *c.baseline, true
}

// CompareBaseline compares the newest snapshot against the baseline.
func (c *Collector) CompareBaseline() BaselineComparison {
	base, ok := c.Baseline()
	latest, has := c.Latest()
	if !ok || !has {
		return BaselineComparison{Status: BaselineNone}
	}
	return CompareSnapshots(base, latest)
}

// CompareSnapshots computes the deltas from base to current.
func CompareSnapshots(base, current models.QualityMetrics) BaselineComparison {
	cmp := BaselineComparison{
		QualityDelta:     round(current.OverallQualityScore-base.OverallQualityScore, 3),
		NASADelta:        round(current.NASAComplianceScore-base.NASAComplianceScore, 3),
		DuplicationDelta: round(current.DuplicationScore-base.DuplicationScore, 3),
		ViolationDelta:   current.TotalViolations - base.TotalViolations,
	}
	cmp.Status = baselineStatus(cmp.QualityDelta)
	return cmp
}

func baselineStatus(delta float64) BaselineStatus {
	switch {
	case delta > 0.1:
		return BaselineSignificantlyImproved
	case delta > 0.02:
		return BaselineImproved
	case delta >= -0.02:
		return BaselineStable
	case delta >= -0.1:
		return BaselineDegraded
	}
	return BaselineSignificantlyDegraded
}
