// Package fileproc provides concurrent file processing with a bounded work
// queue and all-or-nothing per-file results.
package fileproc

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"runtime"
	"slices"
	"sync"

	"github.com/sourcegraph/conc/pool"

	"github.com/panbanda/connascence/pkg/parser"
)

// ProcessingError represents an error that occurred while processing a file.
type ProcessingError struct {
	Path string
	Err  error
}

func (e ProcessingError) Error() string {
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

func (e ProcessingError) Unwrap() error { return e.Err }

// ProcessingErrors collects multiple file processing errors.
type ProcessingErrors struct {
	Errors []ProcessingError
	mu     sync.Mutex
}

// Add appends an error to the collection (thread-safe).
func (e *ProcessingErrors) Add(path string, err error) {
	e.mu.Lock()
	e.Errors = append(e.Errors, ProcessingError{Path: path, Err: err})
	e.mu.Unlock()
}

// HasErrors returns true if any errors were collected.
func (e *ProcessingErrors) HasErrors() bool {
	if e == nil {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.Errors) > 0
}

// Sorted returns the collected errors ordered by path.
func (e *ProcessingErrors) Sorted() []ProcessingError {
	if e == nil {
		return nil
	}
	e.mu.Lock()
	out := slices.Clone(e.Errors)
	e.mu.Unlock()
	slices.SortStableFunc(out, func(a, b ProcessingError) int { return cmp.Compare(a.Path, b.Path) })
	return out
}

// Error implements the error interface.
func (e *ProcessingErrors) Error() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.Errors) == 0 {
		return "no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	return fmt.Sprintf("%d files failed to process (first: %v)", len(e.Errors), e.Errors[0])
}

// DefaultWorkerMultiplier is the multiplier applied to NumCPU for worker count.
// 2x is optimal for mixed I/O and CGO workloads.
const DefaultWorkerMultiplier = 2

// ProgressFunc is called after each file is processed.
type ProgressFunc func()

// Options configures a run.
type Options struct {
	// Workers is the number of concurrent workers. <= 0 uses 2x NumCPU.
	Workers int
	// QueueSize bounds the files waiting for a worker. <= 0 uses 2x workers.
	QueueSize  int
	OnProgress ProgressFunc
}

// EffectiveWorkers returns the worker count a run over n files uses.
func (o Options) EffectiveWorkers(n int) int {
	w := o.Workers
	if w <= 0 {
		w = runtime.NumCPU() * DefaultWorkerMultiplier
	}
	return max(min(w, n), 1)
}

func (o Options) queueSize(workers int) int {
	if o.QueueSize > 0 {
		return o.QueueSize
	}
	return workers * 2
}

// Func analyzes one file with the worker's dedicated parser.
type Func[T any] func(ctx context.Context, psr *parser.Parser, path string) (T, error)

// Result is the value produced for one file.
type Result[T any] struct {
	Index int
	Path  string
	Value T
}

// Outcome is everything a run produced. A file appears in exactly one of
// Results, Errors or Skipped.
type Outcome[T any] struct {
	// Results holds completed files in input order.
	Results []Result[T]
	// Errors holds files whose processing failed. Nil when none did.
	Errors *ProcessingErrors
	// Skipped lists, in input order, files abandoned because the context
	// ended first. Their partial work is discarded.
	Skipped []string
	// Err is the context error when any file was skipped.
	Err error
}

// Interrupted reports whether the context ended before every file finished.
func (o *Outcome[T]) Interrupted() bool {
	return o.Err != nil
}

type job struct {
	index int
	path  string
}

type reply[T any] struct {
	value T
	err   error
}

type fileState int

const (
	statePending fileState = iota
	stateDone
	stateFailed
)

// MapFiles runs fn over files on a fixed set of workers fed through a
// bounded queue. The producer blocks while the queue is full. When ctx ends,
// queued files are skipped and in-flight files are abandoned: fn keeps
// running in the background but its result is dropped.
func MapFiles[T any](ctx context.Context, files []string, opts Options, fn Func[T]) *Outcome[T] {
	out := &Outcome[T]{}
	if len(files) == 0 {
		return out
	}

	workers := opts.EffectiveWorkers(len(files))
	queue := make(chan job, opts.queueSize(workers))
	values := make([]T, len(files))
	states := make([]fileState, len(files))
	errs := &ProcessingErrors{}
	var mu sync.Mutex

	finish := func(j job, r reply[T]) {
		mu.Lock()
		if r.err != nil {
			states[j.index] = stateFailed
		} else {
			states[j.index] = stateDone
			values[j.index] = r.value
		}
		mu.Unlock()
		if r.err != nil {
			errs.Add(j.path, r.err)
		}
		if opts.OnProgress != nil {
			opts.OnProgress()
		}
	}

	p := pool.New().WithMaxGoroutines(workers)
	for range workers {
		p.Go(func() {
			psr := parser.New()
			owned := true
			defer func() {
				if owned {
					psr.Close()
				}
			}()
			for j := range queue {
				if ctx.Err() != nil {
					continue
				}
				r, ok := runOne(ctx, psr, j.path, fn)
				if !ok {
					// The abandoned call still holds the parser and closes it.
					owned = false
					continue
				}
				if r.err != nil && ctx.Err() != nil && errors.Is(r.err, ctx.Err()) {
					continue
				}
				finish(j, r)
			}
		})
	}

feed:
	for i, path := range files {
		select {
		case queue <- job{index: i, path: path}:
		case <-ctx.Done():
			break feed
		}
	}
	close(queue)
	p.Wait()

	for i, path := range files {
		switch states[i] {
		case stateDone:
			out.Results = append(out.Results, Result[T]{Index: i, Path: path, Value: values[i]})
		case statePending:
			out.Skipped = append(out.Skipped, path)
		}
	}
	if errs.HasErrors() {
		out.Errors = errs
	}
	if len(out.Skipped) > 0 {
		out.Err = ctx.Err()
		if out.Err == nil {
			out.Err = context.Canceled
		}
	}
	return out
}

// runOne calls fn on its own goroutine so the worker can walk away when ctx
// ends. It reports false when the call was abandoned; the parser then
// belongs to the background call, which closes it when fn returns.
func runOne[T any](ctx context.Context, psr *parser.Parser, path string, fn Func[T]) (reply[T], bool) {
	ch := make(chan reply[T], 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				ch <- reply[T]{err: fmt.Errorf("panic while processing %s: %v", path, rec)}
			}
		}()
		v, err := fn(ctx, psr, path)
		ch <- reply[T]{value: v, err: err}
	}()
	select {
	case r := <-ch:
		return r, true
	case <-ctx.Done():
		go func() {
			<-ch
			psr.Close()
		}()
		return reply[T]{}, false
	}
}
