// Package cache memoizes parsed syntax trees and source lines per file,
// bounded by a memory budget with least-recently-used eviction.
package cache

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang/groupcache/lru"
	"github.com/panbanda/connascence/pkg/ast"
	"github.com/panbanda/connascence/pkg/parser"
	"github.com/panbanda/connascence/pkg/source"
	"github.com/zeebo/blake3"
)

// DefaultMaxMemory is the default resident byte budget.
const DefaultMaxMemory int64 = 100 << 20

// IOError reports a file that could not be read or stat'ed.
type IOError struct {
	Path string
	Op   string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// Entry is one cached file. Entries are never modified after insertion apart
// from the access timestamp, so callers may keep using an entry after it has
// been evicted.
type Entry struct {
	Path    string
	Hash    string
	Size    int64
	ModTime time.Time
	Tree    *ast.Tree
	Lines   []string
	// Bytes is the estimated resident size of the tree plus the source.
	Bytes int64

	lastAccess atomic.Int64
}

// LastAccess returns when the entry was last served.
func (e *Entry) LastAccess() time.Time {
	return time.Unix(0, e.lastAccess.Load())
}

func (e *Entry) touch() {
	e.lastAccess.Store(time.Now().UnixNano())
}

// Stats is a snapshot of cache counters.
type Stats struct {
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Evictions int64 `json:"evictions"`
	Entries   int   `json:"entries"`
	Bytes     int64 `json:"bytes"`
	MaxBytes  int64 `json:"max_bytes"`
}

// HitRate returns hits / lookups, or 0 before the first lookup.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// Cache is the AST/content cache. It is safe for concurrent use.
type Cache struct {
	src       source.ContentSource
	logger    *slog.Logger
	maxMemory int64

	mu        sync.Mutex
	lru       *lru.Cache
	bytes     int64
	evictions int64

	hits   atomic.Int64
	misses atomic.Int64
}

// Option configures a Cache.
type Option func(*Cache)

// WithMaxMemory sets the resident byte budget. Values <= 0 use the default.
func WithMaxMemory(n int64) Option {
	return func(c *Cache) {
		if n > 0 {
			c.maxMemory = n
		}
	}
}

// WithSource sets where file content is read from.
func WithSource(src source.ContentSource) Option {
	return func(c *Cache) { c.src = src }
}

// WithLogger sets the logger used for recoverable failures.
func WithLogger(l *slog.Logger) Option {
	return func(c *Cache) { c.logger = l }
}

// New creates an empty cache.
func New(opts ...Option) *Cache {
	c := &Cache{
		src:       source.NewFilesystem(),
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		maxMemory: DefaultMaxMemory,
		lru:       lru.New(0),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.lru.OnEvicted = func(_ lru.Key, value any) {
		c.bytes -= value.(*Entry).Bytes
	}
	return c
}

// HashBytes computes a BLAKE3 hash of bytes and returns it as a hex string.
func HashBytes(data []byte) string {
	hash := blake3.Sum256(data)
	return hex.EncodeToString(hash[:])
}

func key(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return filepath.Clean(path)
}

// GetOrParse returns the cached tree and lines for path, parsing with psr on a
// miss. A hit requires the file's current content hash to equal the cached
// one; a stale entry is replaced. Read failures return *IOError and syntax
// errors return *parser.ParseError.
func (c *Cache) GetOrParse(ctx context.Context, psr *parser.Parser, path string) (*Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	info, err := c.src.Stat(path)
	if err != nil {
		return nil, &IOError{Path: path, Op: "stat", Err: err}
	}
	content, err := c.src.Read(path)
	if err != nil {
		return nil, &IOError{Path: path, Op: "read", Err: err}
	}
	hash := HashBytes(content)
	k := key(path)

	if e := c.lookup(k, hash); e != nil {
		c.hits.Add(1)
		e.touch()
		return e, nil
	}
	c.misses.Add(1)

	lang := parser.DetectLanguage(path)
	if lang == ast.LangUnknown {
		return nil, fmt.Errorf("%s: %w", path, ast.ErrUnsupportedLanguage)
	}
	tree, err := psr.ParseContext(ctx, content, lang, path)
	if err != nil {
		return nil, err
	}

	e := &Entry{
		Path:    path,
		Hash:    hash,
		Size:    info.Size,
		ModTime: info.ModTime,
		Tree:    tree,
		Lines:   splitLines(content),
		Bytes:   tree.Bytes + int64(len(content)),
	}
	e.touch()
	c.insert(k, e)
	return e, nil
}

func (c *Cache) lookup(k, hash string) *Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.lru.Get(k)
	if !ok {
		return nil
	}
	e := v.(*Entry)
	if e.Hash != hash {
		c.lru.Remove(k)
		return nil
	}
	return e
}

func (c *Cache) insert(k string, e *Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	// Add on an existing key replaces the value without firing OnEvicted.
	if old, ok := c.lru.Get(k); ok {
		c.bytes -= old.(*Entry).Bytes
	}
	c.lru.Add(k, e)
	c.bytes += e.Bytes
	for c.bytes > c.maxMemory && c.lru.Len() > 1 {
		c.lru.RemoveOldest()
		c.evictions++
	}
}

// Get returns the cached entry for path without touching the file.
func (c *Cache) Get(path string) (*Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.lru.Get(key(path))
	if !ok {
		return nil, false
	}
	return v.(*Entry), true
}

// Invalidate drops the entry for path.
func (c *Cache) Invalidate(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Remove(key(path))
}

// ClearAll drops every entry and resets the counters.
func (c *Cache) ClearAll() {
	c.mu.Lock()
	c.lru.Clear()
	c.bytes = 0
	c.evictions = 0
	c.mu.Unlock()
	c.ResetStats()
}

// ResetStats zeroes the hit and miss counters.
func (c *Cache) ResetStats() {
	c.hits.Store(0)
	c.misses.Store(0)
}

// HitRate returns the fraction of lookups served from the cache.
func (c *Cache) HitRate() float64 {
	return c.Stats().HitRate()
}

// Stats returns a snapshot of the counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions,
		Entries:   c.lru.Len(),
		Bytes:     c.bytes,
		MaxBytes:  c.maxMemory,
	}
}

func splitLines(content []byte) []string {
	s := strings.ReplaceAll(string(content), "\r\n", "\n")
	s = strings.TrimSuffix(s, "\n")
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}

// IsIOError reports whether err is or wraps an *IOError.
func IsIOError(err error) bool {
	var ioe *IOError
	return errors.As(err, &ioe)
}
