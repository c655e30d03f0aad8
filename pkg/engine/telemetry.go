package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"

	"github.com/panbanda/connascence/internal/cache"
	"github.com/panbanda/connascence/pkg/models"
)

var tracer = otel.Tracer("connascence.engine")

// runMetrics are the Prometheus series an engine exports.
type runMetrics struct {
	runs          *prometheus.CounterVec
	runDuration   prometheus.Histogram
	filesAnalyzed prometheus.Counter
	filesFailed   *prometheus.CounterVec
	filesSkipped  prometheus.Counter
	violations    *prometheus.CounterVec
}

func newRunMetrics(reg prometheus.Registerer, c *cache.Cache) *runMetrics {
	factory := promauto.With(reg)
	m := &runMetrics{
		runs: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "connascence_runs_total",
			Help: "Analysis runs by outcome",
		}, []string{"outcome"}),
		runDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "connascence_run_duration_seconds",
			Help:    "Wall time of analysis runs",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
		}),
		filesAnalyzed: factory.NewCounter(prometheus.CounterOpts{
			Name: "connascence_files_analyzed_total",
			Help: "Files analyzed successfully",
		}),
		filesFailed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "connascence_files_failed_total",
			Help: "Files that could not be analyzed, by diagnostic kind",
		}, []string{"kind"}),
		filesSkipped: factory.NewCounter(prometheus.CounterOpts{
			Name: "connascence_files_skipped_total",
			Help: "Files abandoned at the run deadline",
		}),
		violations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "connascence_violations_total",
			Help: "Violations reported, by rule kind",
		}, []string{"rule_kind"}),
	}
	factory.NewCounterFunc(prometheus.CounterOpts{
		Name: "connascence_cache_hits_total",
		Help: "AST cache hits",
	}, func() float64 { return float64(c.Stats().Hits) })
	factory.NewCounterFunc(prometheus.CounterOpts{
		Name: "connascence_cache_misses_total",
		Help: "AST cache misses",
	}, func() float64 { return float64(c.Stats().Misses) })
	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "connascence_cache_bytes",
		Help: "Resident bytes held by the AST cache",
	}, func() float64 { return float64(c.Stats().Bytes) })
	return m
}

func (m *runMetrics) observe(r *models.AnalysisResult, seconds float64) {
	if m == nil {
		return
	}
	outcome := "complete"
	if r.PartialResults {
		outcome = "partial"
	}
	m.runs.WithLabelValues(outcome).Inc()
	m.runDuration.Observe(seconds)
	m.filesAnalyzed.Add(float64(r.Summary.FilesAnalyzed))
	m.filesSkipped.Add(float64(len(r.SkippedFiles)))
	for _, d := range r.Diagnostics {
		if d.RuleKind != models.RuleTimeoutAbort {
			m.filesFailed.WithLabelValues(string(d.RuleKind)).Inc()
		}
	}
	for _, v := range r.Violations {
		m.violations.WithLabelValues(string(v.RuleKind)).Inc()
	}
}
