// Package watch re-analyzes source files as they change on disk.
package watch

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/panbanda/connascence/internal/scanner"
	"github.com/panbanda/connascence/pkg/config"
	"github.com/panbanda/connascence/pkg/engine"
	"github.com/panbanda/connascence/pkg/models"
)

// DefaultDebounce is how long a file must stay quiet before it is analyzed.
const DefaultDebounce = 500 * time.Millisecond

// Cycle is the outcome of one re-analysis.
type Cycle struct {
	// Files are the changed files, sorted.
	Files   []string
	Result  *models.AnalysisResult
	// Project holds every known violation after this cycle in canonical
	// order: the fresh findings of Files plus the earlier findings of all
	// other files.
	Project []models.Violation
	Err     error
}

// Watcher monitors a project for changes and re-analyzes changed files.
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	engine    *engine.Engine
	policy    config.Policy
	exclude   config.ExcludeConfig
	scanner   *scanner.Scanner
	debounce  time.Duration
	path      string
	handler   func(Cycle)
	logger    *slog.Logger
	now       func() time.Time
	mu        sync.Mutex
	pending   map[string]time.Time
	runMu     sync.Mutex
	projMu    sync.Mutex
	project   []models.Violation
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce sets the quiet period. Non-positive values keep the default.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithExclude sets the rules deciding which changed files are analyzed.
func WithExclude(cfg config.ExcludeConfig) Option {
	return func(w *Watcher) { w.exclude = cfg }
}

// WithHandler is called after every re-analysis.
func WithHandler(h func(Cycle)) Option {
	return func(w *Watcher) { w.handler = h }
}

// WithInitial seeds the project view with a full analysis, usually the
// one run before watching starts.
func WithInitial(res *models.AnalysisResult) Option {
	return func(w *Watcher) {
		if res != nil {
			w.project = slices.Clone(res.Violations)
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(w *Watcher) {
		if l != nil {
			w.logger = l
		}
	}
}

// New creates a watcher over path that analyzes with eng under policy.
func New(path string, eng *engine.Engine, policy config.Policy, opts ...Option) (*Watcher, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		fsWatcher: fsWatcher,
		engine:    eng,
		policy:    policy,
		exclude:   config.DefaultConfig().Exclude,
		debounce:  DefaultDebounce,
		path:      path,
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:       time.Now,
		pending:   make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.scanner = scanner.New(w.exclude, scanner.WithLogger(w.logger))
	return w, nil
}

// Start watches until ctx ends. It returns ctx.Err() on cancellation.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.addTree(w.path); err != nil {
		return err
	}
	w.logger.Info("watching for changes", "path", w.path, "dirs", len(w.fsWatcher.WatchList()))

	go w.processDebounced(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return nil
			}
			w.handleEvent(event)

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("watch error", "error", err)
		}
	}
}

// addTree watches dir and every directory below it that is not excluded.
func (w *Watcher) addTree(dir string) error {
	return filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if !info.IsDir() {
			return nil
		}
		if path != w.path && w.excludedDir(info.Name()) {
			return filepath.SkipDir
		}
		return w.fsWatcher.Add(path)
	})
}

func (w *Watcher) excludedDir(name string) bool {
	return name == ".git" || slices.Contains(w.exclude.Dirs, name)
}

// handleEvent records changed source files and drops removed ones.
func (w *Watcher) handleEvent(event fsnotify.Event) {
	path := event.Name

	if event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
		w.engine.Cache().Invalidate(path)
		w.mu.Lock()
		delete(w.pending, path)
		w.mu.Unlock()
		w.projMu.Lock()
		w.project = mergeProject(w.project, []string{path}, nil)
		w.projMu.Unlock()
		return
	}
	if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
		return
	}

	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			if !w.excludedDir(info.Name()) {
				if err := w.addTree(path); err != nil {
					w.logger.Warn("watch new directory", "path", path, "error", err)
				}
			}
			return
		}
	}

	if !w.scanner.Accept(w.path, path) {
		return
	}

	w.mu.Lock()
	w.pending[path] = w.now()
	w.mu.Unlock()
}

// processDebounced analyzes pending changes after the debounce period.
func (w *Watcher) processDebounced(ctx context.Context) {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.processPending(ctx)
		}
	}
}

// ready removes and returns the files that have been quiet for the
// debounce period, sorted.
func (w *Watcher) ready() []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	var ready []string
	for path, lastMod := range w.pending {
		if now.Sub(lastMod) >= w.debounce {
			ready = append(ready, path)
		}
	}
	for _, path := range ready {
		delete(w.pending, path)
	}
	slices.Sort(ready)
	return ready
}

// processPending invalidates and re-analyzes the files that are ready.
func (w *Watcher) processPending(ctx context.Context) {
	files := w.ready()
	if len(files) == 0 {
		return
	}
	w.runMu.Lock()
	defer w.runMu.Unlock()

	cache := w.engine.Cache()
	for _, path := range files {
		cache.Invalidate(path)
	}
	res, err := w.engine.AnalyzeFiles(ctx, files, w.policy)
	cycle := Cycle{Files: files, Result: res, Err: err}
	if err != nil {
		w.logger.Error("re-analysis failed", "files", len(files), "error", err)
		cycle.Project = w.Project()
	} else {
		w.projMu.Lock()
		w.project = mergeProject(w.project, files, res.Violations)
		cycle.Project = slices.Clone(w.project)
		w.projMu.Unlock()
		w.logger.Info("re-analyzed changed files",
			"files", len(files),
			"violations", len(res.Violations),
			"diagnostics", len(res.Diagnostics),
			"project_violations", len(cycle.Project),
		)
	}
	if w.handler != nil {
		w.handler(cycle)
	}
}

// mergeProject replaces the findings of the changed files with fresh ones
// and keeps the rest. Findings sharing an ID are reported once.
func mergeProject(prev []models.Violation, changed []string, fresh []models.Violation) []models.Violation {
	kept := slices.DeleteFunc(slices.Clone(prev), func(v models.Violation) bool {
		_, found := slices.BinarySearch(changed, v.FilePath)
		return found
	})
	merged := models.Merge(fresh, kept)
	models.SortCanonical(merged)
	return merged
}

// Project returns the current project-wide violations in canonical order.
func (w *Watcher) Project() []models.Violation {
	w.projMu.Lock()
	defer w.projMu.Unlock()
	return slices.Clone(w.project)
}

// Stop stops the watcher.
func (w *Watcher) Stop() error {
	return w.fsWatcher.Close()
}

// WatchedDirs returns the watched directories.
func (w *Watcher) WatchedDirs() []string {
	return w.fsWatcher.WatchList()
}
