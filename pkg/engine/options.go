package engine

import (
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/afero"
	"go.opentelemetry.io/otel/trace"

	"github.com/panbanda/connascence/internal/cache"
	"github.com/panbanda/connascence/pkg/analyzer/metrics"
	"github.com/panbanda/connascence/pkg/config"
)

// Option configures an Engine.
type Option func(*Engine)

// WithWorkers sets the number of concurrent file workers. Zero uses 2x NumCPU.
func WithWorkers(n int) Option {
	return func(e *Engine) { e.workers = n }
}

// WithQueueSize bounds the files waiting for a worker. Zero uses 2x workers.
func WithQueueSize(n int) Option {
	return func(e *Engine) { e.queueSize = n }
}

// WithTimeout sets the global deadline of a run. Zero means none.
func WithTimeout(d time.Duration) Option {
	return func(e *Engine) { e.timeout = d }
}

// WithCache shares an existing AST cache, for example across watch cycles.
func WithCache(c *cache.Cache) Option {
	return func(e *Engine) { e.cache = c }
}

// WithCacheMaxMemory sets the byte budget of the engine's own cache.
func WithCacheMaxMemory(n int64) Option {
	return func(e *Engine) { e.cacheMaxMemory = n }
}

// WithFs reads and scans files from fs instead of the operating system.
func WithFs(fs afero.Fs) Option {
	return func(e *Engine) { e.fs = fs }
}

// WithExclude sets the file selection rules used by AnalyzeProject.
func WithExclude(cfg config.ExcludeConfig) Option {
	return func(e *Engine) { e.exclude = cfg }
}

// WithWarm pre-parses a ranked subset of files before the main pass.
func WithWarm(opts cache.WarmOptions) Option {
	return func(e *Engine) {
		e.warm = true
		e.warmOpts = opts
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithRegistry exports run, cache and pool counters on reg.
func WithRegistry(reg prometheus.Registerer) Option {
	return func(e *Engine) { e.registry = reg }
}

// WithTracer replaces the global otel tracer.
func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) { e.tracer = t }
}

// WithCollector records every run's metrics in c, so trend and baseline
// queries see them. Without it metrics are computed but not recorded.
func WithCollector(c *metrics.Collector) Option {
	return func(e *Engine) { e.collector = c }
}

// WithProgress is called with the file count when distribution starts; the
// returned function is called once per finished file.
func WithProgress(start func(total int) func()) Option {
	return func(e *Engine) { e.progress = start }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// FromConfig translates the engine and exclude sections of cfg into options.
func FromConfig(cfg *config.Config) []Option {
	opts := []Option{
		WithWorkers(cfg.Engine.Workers),
		WithQueueSize(cfg.Engine.QueueSize),
		WithTimeout(cfg.Engine.Timeout),
		WithCacheMaxMemory(cfg.Engine.CacheMaxMemory),
		WithExclude(cfg.Exclude),
	}
	if cfg.Engine.WarmCache {
		opts = append(opts, WithWarm(cache.WarmOptions{
			MaxFileSize: cfg.Engine.WarmMaxFileSize,
			MaxFiles:    cfg.Engine.WarmMaxFiles,
		}))
	}
	return opts
}
