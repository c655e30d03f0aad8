package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/panbanda/connascence/pkg/config"
	"github.com/panbanda/connascence/pkg/models"
)

var fixed = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newCollector(policy config.Policy) *Collector {
	return NewCollector(policy, WithClock(func() time.Time { return fixed }))
}

func violation(kind models.RuleKind, sev models.Severity, loc models.Locality) models.Violation {
	return models.NewViolation(kind, sev, "a.py", models.Location{Line: 1}, loc, "d", "r", nil)
}

func TestCompute_NoViolations(t *testing.T) {
	c := newCollector(config.DefaultPolicy())
	m := c.Compute(Input{
		Files:       3,
		Compliance:  models.SummarizeCompliance(nil),
		Duplication: 1,
	})
	assert.Equal(t, 0, m.TotalViolations)
	assert.Equal(t, 0.0, m.ConnascenceIndex)
	assert.Equal(t, 1.0, m.NASAComplianceScore)
	assert.Equal(t, 1.0, m.DuplicationScore)
	assert.Equal(t, 1.0, m.OverallQualityScore)
	assert.Equal(t, fixed, m.Timestamp)
	assert.Empty(t, c.History(), "Compute does not record")
}

func TestCompute_Scenario(t *testing.T) {
	c := newCollector(config.DefaultPolicy())
	vs := []models.Violation{
		violation(models.RulePosition, models.SeverityHigh, models.LocalitySameFunction),
		violation(models.RuleMeaning, models.SeverityMedium, models.LocalitySameFunction),
	}
	m := c.Collect(Input{Violations: vs, Files: 1, Compliance: models.SummarizeCompliance(nil), Duplication: 1})

	assert.Equal(t, 2, m.TotalViolations)
	assert.Equal(t, 1, m.High)
	assert.Equal(t, 1, m.Medium)
	assert.InDelta(t, 6.1, m.ConnascenceIndex, 1e-9)
	assert.InDelta(t, 0.98, m.OverallQualityScore, 1e-9)
	require.Len(t, c.History(), 1)
}

func TestConnascenceIndex_NormalizedByFiles(t *testing.T) {
	policy := config.DefaultPolicy()
	vs := []models.Violation{
		violation(models.RuleGodObject, models.SeverityHigh, models.LocalitySameClass),
		violation(models.RuleValue, models.SeverityCritical, models.LocalityCrossModule),
	}
	// 3*1.0*1.2 + 5*1.0*2.0 = 13.6
	assert.InDelta(t, 13.6, ConnascenceIndex(vs, policy, 1), 1e-9)
	assert.InDelta(t, 6.8, ConnascenceIndex(vs, policy, 2), 1e-9)
	assert.InDelta(t, 13.6, ConnascenceIndex(vs, policy, 0), 1e-9)
}

func TestQualityScore_Bounds(t *testing.T) {
	w := config.DefaultPolicy().QualityWeights
	tests := []struct {
		name                     string
		index, nasa, duplication float64
	}{
		{"perfect", 0, 1, 1},
		{"huge index", 1e6, 1, 1},
		{"everything bad", 1e6, 0, 0},
		{"out of range inputs", -50, 2, -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := QualityScore(tt.index, tt.nasa, tt.duplication, w)
			assert.GreaterOrEqual(t, s, 0.0)
			assert.LessOrEqual(t, s, 1.0)
		})
	}
	assert.Equal(t, 1.0, QualityScore(0, 1, 1, w))
	assert.Equal(t, 0.0, QualityScore(1e6, 0, 0, w))
	assert.Equal(t, 1.0, QualityScore(0, 1, 1, config.QualityWeights{}), "zero weights fall back to equal thirds")
	assert.Equal(t, 0.5, QualityScore(0, 0, 1, config.QualityWeights{NASA: 1, Duplication: 1}))
}

func TestCompute_NasaDisabled(t *testing.T) {
	c := newCollector(config.DefaultPolicy())
	m := c.Compute(Input{Files: 1, Compliance: models.ComplianceSummary{Enabled: false, Score: 0}, Duplication: 1})
	assert.Equal(t, 1.0, m.NASAComplianceScore)
}

func TestHistory_Capacity(t *testing.T) {
	policy := config.DefaultPolicy()
	policy.HistoryCapacity = 3
	c := newCollector(policy)
	for i := range 5 {
		c.Record(models.QualityMetrics{TotalViolations: i})
	}
	h := c.History()
	require.Len(t, h, 3)
	assert.Equal(t, 2, h[0].TotalViolations, "oldest evicted first")
	assert.Equal(t, 4, h[2].TotalViolations)

	c.Load([]models.QualityMetrics{{TotalViolations: 10}, {TotalViolations: 11}, {TotalViolations: 12}, {TotalViolations: 13}})
	h = c.History()
	require.Len(t, h, 3)
	assert.Equal(t, 11, h[0].TotalViolations)
	latest, ok := c.Latest()
	require.True(t, ok)
	assert.Equal(t, 13, latest.TotalViolations)
}

func snapshots(pairs ...any) []models.QualityMetrics {
	var out []models.QualityMetrics
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, models.QualityMetrics{
			OverallQualityScore: pairs[i].(float64),
			TotalViolations:     pairs[i+1].(int),
		})
	}
	return out
}

func TestTrend(t *testing.T) {
	tests := []struct {
		name      string
		history   []models.QualityMetrics
		trend     string
		direction Direction
	}{
		{"no data", nil, TrendNoData, DirectionStable},
		{"one snapshot", snapshots(0.5, 10), TrendInsufficientData, DirectionStable},
		{"excellent", snapshots(0.6, 30, 0.65, 25, 0.72, 12), TrendExcellent, DirectionImproving},
		{"stable", snapshots(0.8, 10, 0.81, 12, 0.8, 11), TrendStable, DirectionStable},
		{"degrading quality", snapshots(0.9, 10, 0.8, 10), TrendDegrading, DirectionDegrading},
		{"degrading violations", snapshots(0.8, 10, 0.8, 30), TrendDegrading, DirectionStable},
		{"improving quality only", snapshots(0.7, 10, 0.8, 12), TrendImproving, DirectionImproving},
		{"mixed", snapshots(0.8, 30, 0.8, 10), TrendMixed, DirectionStable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newCollector(config.DefaultPolicy())
			c.Load(tt.history)
			r := c.Trend()
			assert.Equal(t, tt.trend, r.Trend)
			assert.Equal(t, tt.direction, r.Direction)
			assert.NotEmpty(t, r.Analysis)
		})
	}
}

func TestTrend_WindowAndRegression(t *testing.T) {
	policy := config.DefaultPolicy()
	policy.HistoryWindow = 3
	c := newCollector(policy)
	c.Load(snapshots(0.1, 100, 0.5, 50, 0.6, 40, 0.7, 30))

	r := c.Trend()
	assert.Equal(t, 3, r.Points)
	assert.InDelta(t, 0.2, r.QualityChange, 1e-9, "window starts at the third newest snapshot")
	assert.Equal(t, -20, r.ViolationChange)
	assert.InDelta(t, 0.1, r.Stats.Slope, 1e-9)
	assert.InDelta(t, 1.0, r.Stats.RSquared, 1e-9)
	assert.InDelta(t, 1.0, r.Stats.Correlation, 1e-9)

	flat := ComputeTrendStats(snapshots(0.5, 1, 0.5, 1, 0.5, 1))
	assert.Equal(t, 0.0, flat.Slope)
	assert.Equal(t, 0.0, flat.RSquared)
	assert.Equal(t, TrendStats{}, ComputeTrendStats(nil))
}

func TestBaseline(t *testing.T) {
	c := newCollector(config.DefaultPolicy())
	assert.Equal(t, BaselineNone, c.CompareBaseline().Status)

	c.SetBaseline(models.QualityMetrics{OverallQualityScore: 0.7, TotalViolations: 20})
	c.Record(models.QualityMetrics{OverallQualityScore: 0.85, TotalViolations: 12})
	cmp := c.CompareBaseline()
	assert.Equal(t, BaselineSignificantlyImproved, cmp.Status)
	assert.InDelta(t, 0.15, cmp.QualityDelta, 1e-9)
	assert.Equal(t, -8, cmp.ViolationDelta)

	tests := []struct {
		delta float64
		want  BaselineStatus
	}{
		{0.11, BaselineSignificantlyImproved},
		{0.05, BaselineImproved},
		{0.02, BaselineStable},
		{0, BaselineStable},
		{-0.02, BaselineStable},
		{-0.05, BaselineDegraded},
		{-0.2, BaselineSignificantlyDegraded},
	}
	for _, tt := range tests {
		got := CompareSnapshots(
			models.QualityMetrics{OverallQualityScore: 0.5},
			models.QualityMetrics{OverallQualityScore: 0.5 + tt.delta},
		)
		assert.Equal(t, tt.want, got.Status, "delta %v", tt.delta)
	}
}

func TestEvaluateGates(t *testing.T) {
	gates := config.DefaultPolicy().Gates

	pass := EvaluateGates(models.QualityMetrics{
		OverallQualityScore: 1, NASAComplianceScore: 1, DuplicationScore: 1,
	}, gates)
	assert.True(t, pass.OverallPassing)
	assert.Len(t, pass.Gates, 4)
	assert.Empty(t, pass.Failed())

	fail := EvaluateGates(models.QualityMetrics{
		OverallQualityScore: 0.9, NASAComplianceScore: 0.5, DuplicationScore: 0.8, Critical: 1,
	}, gates)
	assert.False(t, fail.OverallPassing)
	assert.True(t, fail.QualityPassing)
	assert.False(t, fail.NASAPassing)
	assert.True(t, fail.DuplicationPassing, "exactly the threshold passes")
	assert.False(t, fail.CriticalPassing)
	assert.Len(t, fail.Failed(), 2)
}
