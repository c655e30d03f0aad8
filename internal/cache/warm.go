package cache

import (
	"cmp"
	"context"
	"path/filepath"
	"slices"
	"strings"

	"github.com/panbanda/connascence/pkg/parser"
)

// WarmOptions bounds cache warming.
type WarmOptions struct {
	MaxFileSize int64
	MaxFiles    int
}

// entryPointNames are file stems that usually anchor a project.
var entryPointNames = map[string]bool{
	"main": true, "__init__": true, "__main__": true, "index": true,
	"app": true, "cli": true, "server": true, "setup": true, "manage": true,
}

type warmCandidate struct {
	path  string
	score float64
}

// rankForWarm orders files by a heuristic priority: recently modified files
// and entry points first. Files over the size bound are dropped.
func (c *Cache) rankForWarm(files []string, opts WarmOptions) []warmCandidate {
	type statted struct {
		path string
		mod  int64
	}
	var kept []statted
	for _, path := range files {
		info, err := c.src.Stat(path)
		if err != nil {
			c.logger.Warn("cache warm stat failed", "path", path, "error", err)
			continue
		}
		if opts.MaxFileSize > 0 && info.Size > opts.MaxFileSize {
			continue
		}
		kept = append(kept, statted{path: path, mod: info.ModTime.UnixNano()})
	}

	// recency is the rank among modification times, scaled to [0,1]
	byMod := slices.Clone(kept)
	slices.SortStableFunc(byMod, func(a, b statted) int { return cmp.Compare(a.mod, b.mod) })
	recency := make(map[string]float64, len(byMod))
	for i, s := range byMod {
		if len(byMod) > 1 {
			recency[s.path] = float64(i) / float64(len(byMod)-1)
		} else {
			recency[s.path] = 1
		}
	}

	out := make([]warmCandidate, 0, len(kept))
	for _, s := range kept {
		score := recency[s.path]
		stem := strings.TrimSuffix(filepath.Base(s.path), filepath.Ext(s.path))
		if entryPointNames[strings.ToLower(stem)] {
			score += 1
		}
		out = append(out, warmCandidate{path: s.path, score: score})
	}
	slices.SortStableFunc(out, func(a, b warmCandidate) int {
		if c := cmp.Compare(b.score, a.score); c != 0 {
			return c
		}
		return strings.Compare(a.path, b.path)
	})
	if opts.MaxFiles > 0 && len(out) > opts.MaxFiles {
		out = out[:opts.MaxFiles]
	}
	return out
}

// Warm pre-parses a priority-ranked subset of files. Failures are logged and
// skipped; the main pass reads those files again directly. It returns the
// number of files now cached.
func (c *Cache) Warm(ctx context.Context, files []string, opts WarmOptions) int {
	psr := parser.New()
	defer psr.Close()

	warmed := 0
	for _, cand := range c.rankForWarm(files, opts) {
		if ctx.Err() != nil {
			break
		}
		if _, err := c.GetOrParse(ctx, psr, cand.path); err != nil {
			c.logger.Warn("cache warm skipped file", "path", cand.path, "error", err)
			continue
		}
		warmed++
	}
	// warming lookups would otherwise distort the main pass hit rate
	c.ResetStats()
	return warmed
}
