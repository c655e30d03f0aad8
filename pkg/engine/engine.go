// Package engine runs the detectors over a set of files in parallel and
// aggregates their findings into one deterministic AnalysisResult.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/afero"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/panbanda/connascence/internal/cache"
	"github.com/panbanda/connascence/internal/fileproc"
	"github.com/panbanda/connascence/internal/scanner"
	"github.com/panbanda/connascence/pkg/analyzer"
	"github.com/panbanda/connascence/pkg/analyzer/duplicates"
	"github.com/panbanda/connascence/pkg/analyzer/metrics"
	"github.com/panbanda/connascence/pkg/analyzer/nasa"
	"github.com/panbanda/connascence/pkg/analyzer/pool"
	"github.com/panbanda/connascence/pkg/ast"
	"github.com/panbanda/connascence/pkg/config"
	"github.com/panbanda/connascence/pkg/models"
	"github.com/panbanda/connascence/pkg/parser"
	"github.com/panbanda/connascence/pkg/source"
)

// ErrTimeout marks files abandoned because the run deadline passed.
var ErrTimeout = errors.New("analysis deadline exceeded")

// State is the phase of the engine's current or last run.
type State int32

const (
	StateIdle State = iota
	StateDistributing
	StateCollecting
	StateAggregating
	StateDone
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDistributing:
		return "distributing"
	case StateCollecting:
		return "collecting"
	case StateAggregating:
		return "aggregating"
	case StateDone:
		return "done"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// Engine is the parallel orchestrator. Runs on one engine are serialized;
// the cache and detector pool persist between them.
type Engine struct {
	workers        int
	queueSize      int
	timeout        time.Duration
	cacheMaxMemory int64
	exclude        config.ExcludeConfig
	warm           bool
	warmOpts       cache.WarmOptions
	fs             afero.Fs
	cache          *cache.Cache
	collector      *metrics.Collector
	progress       func(total int) func()
	logger         *slog.Logger
	tracer         trace.Tracer
	registry       prometheus.Registerer
	metrics        *runMetrics
	now            func() time.Time

	state atomic.Int32

	runMu      sync.Mutex
	pool       *pool.Pool
	poolPolicy config.Policy
}

// New creates an engine.
func New(opts ...Option) *Engine {
	e := &Engine{
		exclude: config.DefaultConfig().Exclude,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		tracer:  tracer,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.cache == nil {
		var src source.ContentSource = source.NewFilesystem()
		if e.fs != nil {
			src = source.NewFS(e.fs)
		}
		e.cache = cache.New(
			cache.WithMaxMemory(e.cacheMaxMemory),
			cache.WithSource(src),
			cache.WithLogger(e.logger),
		)
	}
	if e.registry != nil {
		e.metrics = newRunMetrics(e.registry, e.cache)
	}
	return e
}

// Cache returns the AST cache shared by every run.
func (e *Engine) Cache() *cache.Cache { return e.cache }

// State returns the phase of the current or last run.
func (e *Engine) State() State { return State(e.state.Load()) }

func (e *Engine) setState(s State) {
	e.state.Store(int32(s))
	e.logger.Debug("engine state", "state", s.String())
}

// PoolStats returns the detector pool counters, or nil before the first run.
func (e *Engine) PoolStats() pool.Stats {
	e.runMu.Lock()
	defer e.runMu.Unlock()
	if e.pool == nil {
		return nil
	}
	return e.pool.Stats()
}

// detectorPool returns the engine's pool configured for policy. A changed
// policy swaps the pool's factory so the pool and its metrics live for the
// whole engine. Must be called with runMu held.
func (e *Engine) detectorPool(policy config.Policy) *pool.Pool {
	switch {
	case e.pool == nil:
		e.pool = pool.New(pool.NewFactory(policy), pool.WithLogger(e.logger))
		if e.registry != nil {
			e.pool.Register(e.registry, pool.AllCategories())
		}
	case !reflect.DeepEqual(e.poolPolicy, policy):
		e.pool.SetFactory(pool.NewFactory(policy))
	}
	e.poolPolicy = policy
	return e.pool
}

// AnalyzeFile analyzes a single file.
func (e *Engine) AnalyzeFile(ctx context.Context, path string, policy config.Policy) (*models.AnalysisResult, error) {
	return e.AnalyzeFiles(ctx, []string{path}, policy)
}

// AnalyzeProject discovers the source files under root and analyzes them.
// patterns, when given, restrict the files to those matching at least one
// include pattern.
func (e *Engine) AnalyzeProject(ctx context.Context, root string, policy config.Policy, patterns []string) (*models.AnalysisResult, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	opts := []scanner.Option{scanner.WithLogger(e.logger)}
	if e.fs != nil {
		opts = append(opts, scanner.WithFs(e.fs))
	}
	files, err := scanner.New(e.exclude, opts...).ScanDir(root, patterns...)
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", root, err)
	}
	e.logger.Info("discovered files", "root", root, "files", len(files))
	return e.AnalyzeFiles(ctx, files, policy)
}

// fileResult is everything one file contributes to a run.
type fileResult struct {
	violations []models.Violation
	compliance []models.FunctionCompliance
	functions  int
	classes    int
}

// AnalyzeFiles analyzes files in parallel. Per-file failures become
// diagnostics; only an invalid policy or a canceled parent context is
// returned as an error. When the run deadline passes, the result covers the
// files that finished and has PartialResults set.
func (e *Engine) AnalyzeFiles(ctx context.Context, files []string, policy config.Policy) (*models.AnalysisResult, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	e.runMu.Lock()
	defer e.runMu.Unlock()

	started := e.now()
	runID := uuid.NewString()
	ctx, span := e.tracer.Start(ctx, "engine.Analyze", trace.WithAttributes(
		attribute.String("run.id", runID),
		attribute.Int("run.files", len(files)),
	))
	defer span.End()

	runCtx := ctx
	if e.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	e.setState(StateDistributing)
	detectors := e.detectorPool(policy)
	categories := pool.Categories(policy)
	dupCfg := duplicateConfig(policy)
	registry := duplicates.NewRegistry(dupCfg)

	if e.warm {
		warmed := e.cache.Warm(runCtx, files, e.warmOpts)
		e.logger.Debug("cache warmed", "files", warmed)
	}

	procOpts := fileproc.Options{Workers: e.workers, QueueSize: e.queueSize}
	if e.progress != nil {
		procOpts.OnProgress = e.progress(len(files))
	}
	workers := procOpts.EffectiveWorkers(len(files))

	e.setState(StateCollecting)
	out := fileproc.MapFiles(runCtx, files, procOpts, func(ctx context.Context, psr *parser.Parser, path string) (fileResult, error) {
		return e.analyzeOne(ctx, psr, path, detectors, categories, registry)
	})

	e.setState(StateAggregating)
	res := e.aggregate(out, policy, registry, dupCfg, started)
	res.Run = &models.RunInfo{
		ID:         runID,
		StartedAt:  started.UTC(),
		DurationMS: float64(e.now().Sub(started).Microseconds()) / 1000,
		Workers:    workers,
	}
	e.metrics.observe(res, e.now().Sub(started).Seconds())

	span.SetAttributes(
		attribute.Int("run.violations", len(res.Violations)),
		attribute.Int("run.diagnostics", len(res.Diagnostics)),
		attribute.Bool("run.partial", res.PartialResults),
		attribute.Bool("run.gates_passing", res.QualityGates.OverallPassing),
	)
	e.logger.Info("analysis complete",
		"run_id", runID,
		"files", res.Summary.FilesAnalyzed,
		"failed", res.Summary.FilesFailed,
		"skipped", len(res.SkippedFiles),
		"violations", len(res.Violations),
		"duration_ms", res.Run.DurationMS,
	)
	e.setState(StateDone)

	if out.Interrupted() && ctx.Err() != nil {
		// The caller canceled; the deadline alone is not an error.
		span.RecordError(ctx.Err())
		span.SetStatus(codes.Error, "canceled")
		return res, ctx.Err()
	}
	span.SetStatus(codes.Ok, "")
	return res, nil
}

// analyzeOne runs every detector category over one file. Fingerprints are
// registered last so a file that fails registers none.
func (e *Engine) analyzeOne(ctx context.Context, psr *parser.Parser, path string, detectors *pool.Pool,
	categories []analyzer.Category, registry *duplicates.Registry) (fileResult, error) {
	_, span := e.tracer.Start(ctx, "engine.AnalyzeFile", trace.WithAttributes(attribute.String("file.path", path)))
	defer span.End()

	entry, err := e.cache.GetOrParse(ctx, psr, path)
	if err != nil {
		span.RecordError(err)
		return fileResult{}, err
	}

	var res fileResult
	for _, c := range categories {
		if err := ctx.Err(); err != nil {
			return fileResult{}, err
		}
		h, err := detectors.Acquire(c)
		if err != nil {
			return fileResult{}, err
		}
		if checker, ok := h.Detector.(*nasa.Checker); ok {
			vs, records := checker.Check(entry.Tree, entry.Lines)
			res.violations = append(res.violations, vs...)
			res.compliance = append(res.compliance, records...)
		} else {
			res.violations = append(res.violations, h.Detect(entry.Tree, entry.Lines)...)
		}
		detectors.Release(h)
	}
	res.functions = len(ast.Functions(entry.Tree))
	res.classes = len(ast.Classes(entry.Tree))

	if _, err := registry.Register(entry.Tree); err != nil {
		return fileResult{}, err
	}
	span.SetAttributes(attribute.Int("file.violations", len(res.violations)))
	return res, nil
}

func duplicateConfig(policy config.Policy) duplicates.Config {
	cfg := duplicates.DefaultConfig()
	cfg.SimilarityThreshold = policy.DuplicationSimilarityThreshold
	cfg.MinStatements = policy.DuplicationMinStatements
	return cfg
}

// aggregate merges the per-file outcomes, runs the global duplication pass
// and computes metrics and gates.
func (e *Engine) aggregate(out *fileproc.Outcome[fileResult], policy config.Policy, registry *duplicates.Registry,
	dupCfg duplicates.Config, started time.Time) *models.AnalysisResult {
	var (
		violations []models.Violation
		compliance []models.FunctionCompliance
		summary    models.Summary
		accepted   = make(map[string]bool, len(out.Results))
		functions  int
		classes    int
	)
	for _, r := range out.Results {
		accepted[r.Path] = true
		violations = append(violations, r.Value.violations...)
		compliance = append(compliance, r.Value.compliance...)
		functions += r.Value.functions
		classes += r.Value.classes
	}

	// Abandoned files may still finish in the background; only fingerprints
	// of accepted files take part in the global pass.
	fragments := registry.Freeze()
	kept := fragments[:0]
	for _, f := range fragments {
		if accepted[f.Location.File] {
			kept = append(kept, f)
		}
	}
	dup := duplicates.New(duplicates.WithConfig(dupCfg)).Analyze(kept)
	violations = append(violations, dup.Violations...)

	for i := range violations {
		violations[i] = withWeight(violations[i], policy)
	}
	violations = models.AssignIDs(violations)
	models.SortCanonical(violations)

	diagnostics := e.diagnostics(out)

	models.SortComplianceRecords(compliance)
	cs := models.ComplianceSummary{Enabled: false, Score: 1}
	if policy.NasaRulesEnabled {
		cs = models.SummarizeCompliance(compliance)
	}

	in := metrics.Input{
		Violations:  violations,
		Files:       len(out.Results),
		Compliance:  cs,
		Clusters:    dup.Clusters,
		Duplication: dup.Score,
		Started:     started,
	}
	var m models.QualityMetrics
	if e.collector != nil {
		m = e.collector.Collect(in)
	} else {
		m = metrics.NewCollector(policy, metrics.WithClock(e.now)).Compute(in)
	}

	summary = models.NewSummary(violations)
	summary.FilesAnalyzed = len(out.Results)
	summary.FilesFailed = len(out.Errors.Sorted())
	summary.FunctionsAnalyzed = functions
	summary.ClassesAnalyzed = classes
	summary.DuplicateClusters = len(dup.Clusters)

	return &models.AnalysisResult{
		Violations:     violations,
		Diagnostics:    diagnostics,
		Summary:        summary,
		Metrics:        m,
		QualityGates:   metrics.EvaluateGates(m, policy.Gates),
		Compliance:     cs,
		Duplicates:     dup.Clusters,
		PartialResults: out.Interrupted(),
		SkippedFiles:   out.Skipped,
		Policy:         policy,
	}
}

// withWeight records severity weight x locality multiplier in the context.
func withWeight(v models.Violation, policy config.Policy) models.Violation {
	ctx := make(map[string]any, len(v.Context)+1)
	for k, val := range v.Context {
		ctx[k] = val
	}
	ctx["weight"] = v.Weight(policy.SeverityWeights)
	v.Context = ctx
	return v
}

// diagnostics turns per-file failures and skipped files into diagnostic
// entries, in canonical order.
func (e *Engine) diagnostics(out *fileproc.Outcome[fileResult]) []models.Violation {
	var diags []models.Violation
	for _, pe := range out.Errors.Sorted() {
		diags = append(diags, diagnosticFor(pe.Path, pe.Err))
		e.logger.Warn("file analysis failed", "path", pe.Path, "error", pe.Err)
	}
	for _, path := range out.Skipped {
		diags = append(diags, models.NewDiagnostic(models.RuleTimeoutAbort, path, 1, 1,
			fmt.Sprintf("%v: file skipped", ErrTimeout)))
	}
	if len(out.Skipped) > 0 {
		e.logger.Warn("run deadline passed", "skipped", len(out.Skipped))
	}
	diags = models.AssignIDs(diags)
	models.SortCanonical(diags)
	return diags
}

func diagnosticFor(path string, err error) models.Violation {
	var pe *parser.ParseError
	if errors.As(err, &pe) {
		return models.NewDiagnostic(models.RuleParseError, path, pe.Line, pe.Column, pe.Msg)
	}
	if cache.IsIOError(err) || errors.Is(err, os.ErrNotExist) || errors.Is(err, os.ErrPermission) {
		return models.NewDiagnostic(models.RuleIOError, path, 1, 1, err.Error())
	}
	return models.NewDiagnostic(models.RuleParseError, path, 1, 1, err.Error())
}
