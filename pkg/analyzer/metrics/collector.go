// Package metrics turns a finalized violation set into quality figures and
// keeps a bounded history of them for trend and baseline queries.
package metrics

import (
	"math"
	"slices"
	"sync"
	"time"

	"github.com/panbanda/connascence/pkg/config"
	"github.com/panbanda/connascence/pkg/models"
)

// Input is everything a run contributes to its metrics snapshot.
type Input struct {
	Violations []models.Violation
	// Files is the number of files analyzed successfully.
	Files      int
	Compliance models.ComplianceSummary
	Clusters   []models.DuplicateCluster
	// Duplication is the duplication score of Clusters.
	Duplication float64
	// Started is when the run began. Zero leaves CollectionTimeMS at 0.
	Started time.Time
}

// Collector computes QualityMetrics and records them in a history ring.
// It is safe for concurrent use.
type Collector struct {
	policy config.Policy
	now    func() time.Time

	mu       sync.Mutex
	history  []models.QualityMetrics
	baseline *models.QualityMetrics
}

// Option configures a Collector.
type Option func(*Collector)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Collector) {
		c.now = now
	}
}

// NewCollector creates a collector for policy.
func NewCollector(policy config.Policy, opts ...Option) *Collector {
	c := &Collector{policy: policy, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compute derives a snapshot from in without recording it.
func (c *Collector) Compute(in Input) models.QualityMetrics {
	m := models.QualityMetrics{
		TotalViolations:  len(in.Violations),
		FilesAnalyzed:    in.Files,
		ConnascenceIndex: ConnascenceIndex(in.Violations, c.policy, in.Files),
		DuplicationScore: round(clamp01(in.Duplication), 3),
		Timestamp:        c.now().UTC(),
	}
	for _, v := range in.Violations {
		switch v.Severity {
		case models.SeverityCritical:
			m.Critical++
		case models.SeverityHigh:
			m.High++
		case models.SeverityMedium:
			m.Medium++
		case models.SeverityLow:
			m.Low++
		default:
			m.Info++
		}
	}
	m.NASAComplianceScore = 1
	if in.Compliance.Enabled {
		m.NASAComplianceScore = round(clamp01(in.Compliance.Score), 3)
	}
	m.OverallQualityScore = QualityScore(m.ConnascenceIndex, m.NASAComplianceScore, m.DuplicationScore, c.policy.QualityWeights)
	if !in.Started.IsZero() {
		m.CollectionTimeMS = float64(c.now().Sub(in.Started).Microseconds()) / 1000
	}
	return m
}

// Collect computes the snapshot for in and appends it to the history.
func (c *Collector) Collect(in Input) models.QualityMetrics {
	m := c.Compute(in)
	c.Record(m)
	return m
}

// Record appends m to the history, evicting the oldest snapshots beyond
// the configured capacity.
func (c *Collector) Record(m models.QualityMetrics) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.history = append(c.history, m)
	if capacity := max(c.policy.HistoryCapacity, 1); len(c.history) > capacity {
		c.history = slices.Clone(c.history[len(c.history)-capacity:])
	}
}

// Load replaces the history with snapshots, oldest first, keeping only the
// newest that fit the capacity.
func (c *Collector) Load(snapshots []models.QualityMetrics) {
	c.mu.Lock()
	c.history = nil
	c.mu.Unlock()
	for _, m := range snapshots {
		c.Record(m)
	}
}

// History returns the recorded snapshots, oldest first.
func (c *Collector) History() []models.QualityMetrics {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.history)
}

// Latest returns the newest snapshot.
func (c *Collector) Latest() (models.QualityMetrics, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.history) == 0 {
		return models.QualityMetrics{}, false
	}
	return c.history[len(c.history)-1], true
}

// ConnascenceIndex sums severity weight x type weight x locality multiplier
// over vs and divides by the number of files.
func ConnascenceIndex(vs []models.Violation, policy config.Policy, files int) float64 {
	total := 0.0
	for _, v := range vs {
		sev := policy.SeverityWeights[string(v.Severity)]
		typ, ok := policy.TypeWeights[string(v.RuleKind)]
		if !ok {
			typ = 1
		}
		total += sev * typ * v.Locality.Multiplier()
	}
	return round(total/float64(max(files, 1)), 2)
}

// QualityScore combines the inverted connascence index with the NASA and
// duplication scores. The result is always within [0, 1].
func QualityScore(index, nasa, duplication float64, w config.QualityWeights) float64 {
	connascence := clamp01(1 - index*0.01)
	sum := w.Connascence + w.NASA + w.Duplication
	if sum <= 0 {
		w = config.QualityWeights{Connascence: 1, NASA: 1, Duplication: 1}
		sum = 3
	}
	score := (connascence*w.Connascence + clamp01(nasa)*w.NASA + clamp01(duplication)*w.Duplication) / sum
	return round(clamp01(score), 3)
}

func clamp01(x float64) float64 {
	if math.IsNaN(x) {
		return 0
	}
	return math.Max(0, math.Min(1, x))
}

func round(x float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(x*p) / p
}
