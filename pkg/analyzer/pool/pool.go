// Package pool keeps reusable detector instances, one small freelist per
// detector category.
package pool

import (
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/panbanda/connascence/pkg/analyzer"
	"github.com/panbanda/connascence/pkg/analyzer/connascence"
	"github.com/panbanda/connascence/pkg/analyzer/nasa"
	"github.com/panbanda/connascence/pkg/config"
	"github.com/panbanda/connascence/pkg/models"
)

// DefaultSize is the number of idle instances kept per category.
const DefaultSize = 2

// Factory creates a fresh detector for a category.
type Factory func(analyzer.Category) (analyzer.Detector, error)

// Resetter is implemented by detectors that hold reusable scratch state.
// Reset is called when an instance returns to the pool.
type Resetter interface {
	Reset()
}

// NewFactory returns the factory for every detector category configured by policy.
func NewFactory(policy config.Policy) Factory {
	return func(c analyzer.Category) (analyzer.Detector, error) {
		if c == analyzer.CategoryNASA {
			return nasa.New(policy), nil
		}
		return connascence.New(models.RuleKind(c), policy)
	}
}

// Categories returns the categories a run with policy executes, in order.
func Categories(policy config.Policy) []analyzer.Category {
	out := AllCategories()
	if !policy.NasaRulesEnabled {
		out = out[:len(out)-1]
	}
	return out
}

// AllCategories returns every category any policy can execute.
func AllCategories() []analyzer.Category {
	kinds := connascence.Kinds()
	out := make([]analyzer.Category, 0, len(kinds)+1)
	for _, k := range kinds {
		out = append(out, analyzer.CategoryFor(k))
	}
	return append(out, analyzer.CategoryNASA)
}

// CategoryStats counts pool activity for one category.
type CategoryStats struct {
	Acquisitions int64 `json:"acquisitions"`
	Hits         int64 `json:"hits"`
	Misses       int64 `json:"misses"`
	Releases     int64 `json:"releases"`
	Size         int   `json:"size"`
}

// Stats is a snapshot of every category the pool has seen.
type Stats map[analyzer.Category]CategoryStats

// Total sums the counters over all categories.
func (s Stats) Total() CategoryStats {
	var t CategoryStats
	for _, c := range s {
		t.Acquisitions += c.Acquisitions
		t.Hits += c.Hits
		t.Misses += c.Misses
		t.Releases += c.Releases
		t.Size += c.Size
	}
	return t
}

type freelist struct {
	idle  []analyzer.Detector
	stats CategoryStats
}

// Pool hands out detectors. Exhaustion allocates a new instance instead of
// blocking; the freelist only bounds how many idle instances are retained.
type Pool struct {
	factory Factory
	size    int
	logger  *slog.Logger

	mu    sync.Mutex
	gen   int
	lists map[analyzer.Category]*freelist
}

// Option configures a Pool.
type Option func(*Pool)

// WithSize sets the number of idle instances kept per category.
func WithSize(n int) Option {
	return func(p *Pool) {
		if n >= 0 {
			p.size = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pool) {
		if l != nil {
			p.logger = l
		}
	}
}

// New creates a pool backed by factory.
func New(factory Factory, opts ...Option) *Pool {
	p := &Pool{
		factory: factory,
		size:    DefaultSize,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		lists:   make(map[analyzer.Category]*freelist),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Handle is a checked-out detector. It must be released exactly once.
type Handle struct {
	analyzer.Detector
	category analyzer.Category
	pool     *Pool
	gen      int
	released bool
}

func (p *Pool) list(c analyzer.Category) *freelist {
	l, ok := p.lists[c]
	if !ok {
		l = &freelist{}
		p.lists[c] = l
	}
	return l
}

// Acquire checks out a detector for category c.
func (p *Pool) Acquire(c analyzer.Category) (*Handle, error) {
	p.mu.Lock()
	l := p.list(c)
	l.stats.Acquisitions++
	if n := len(l.idle); n > 0 {
		d := l.idle[n-1]
		l.idle = l.idle[:n-1]
		l.stats.Hits++
		l.stats.Size = len(l.idle)
		gen := p.gen
		p.mu.Unlock()
		return &Handle{Detector: d, category: c, pool: p, gen: gen}, nil
	}
	l.stats.Misses++
	factory, gen := p.factory, p.gen
	p.mu.Unlock()

	d, err := factory(c)
	if err != nil {
		return nil, fmt.Errorf("creating %s detector: %w", c, err)
	}
	p.logger.Debug("allocated detector", "category", c.String())
	return &Handle{Detector: d, category: c, pool: p, gen: gen}, nil
}

// SetFactory replaces the factory and drops every idle instance, so later
// checkouts see detectors built by factory. Counters are kept. Handles
// acquired before the swap are not pooled again on release.
func (p *Pool) SetFactory(factory Factory) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.factory = factory
	p.gen++
	for _, l := range p.lists {
		l.idle = nil
		l.stats.Size = 0
	}
	p.logger.Debug("detector factory replaced", "generation", p.gen)
}

// Release returns h to its freelist. Releasing a handle twice is a no-op.
func (p *Pool) Release(h *Handle) {
	if h == nil || h.released || h.pool != p {
		return
	}
	h.released = true
	if r, ok := h.Detector.(Resetter); ok {
		r.Reset()
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	l := p.list(h.category)
	l.stats.Releases++
	if h.gen == p.gen && len(l.idle) < p.size {
		l.idle = append(l.idle, h.Detector)
	}
	l.stats.Size = len(l.idle)
}

// Stats returns a snapshot of the pool counters.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(Stats, len(p.lists))
	for c, l := range p.lists {
		out[c] = l.stats
	}
	return out
}

// Register exposes the pool counters for categories on reg. Values are read
// from the pool at scrape time.
func (p *Pool) Register(reg prometheus.Registerer, categories []analyzer.Category) {
	factory := promauto.With(reg)
	cats := slices.Clone(categories)
	slices.Sort(cats)
	for _, c := range cats {
		labels := prometheus.Labels{"category": c.String()}
		read := func(f func(CategoryStats) float64) func() float64 {
			return func() float64 {
				p.mu.Lock()
				defer p.mu.Unlock()
				return f(p.list(c).stats)
			}
		}
		factory.NewCounterFunc(prometheus.CounterOpts{
			Name:        "connascence_pool_acquisitions_total",
			Help:        "Detector checkouts from the pool",
			ConstLabels: labels,
		}, read(func(s CategoryStats) float64 { return float64(s.Acquisitions) }))
		factory.NewCounterFunc(prometheus.CounterOpts{
			Name:        "connascence_pool_hits_total",
			Help:        "Checkouts served by an idle instance",
			ConstLabels: labels,
		}, read(func(s CategoryStats) float64 { return float64(s.Hits) }))
		factory.NewCounterFunc(prometheus.CounterOpts{
			Name:        "connascence_pool_misses_total",
			Help:        "Checkouts that allocated a new instance",
			ConstLabels: labels,
		}, read(func(s CategoryStats) float64 { return float64(s.Misses) }))
		factory.NewGaugeFunc(prometheus.GaugeOpts{
			Name:        "connascence_pool_idle",
			Help:        "Idle instances in the freelist",
			ConstLabels: labels,
		}, read(func(s CategoryStats) float64 { return float64(s.Size) }))
	}
}
