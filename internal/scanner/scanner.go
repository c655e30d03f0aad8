// Package scanner discovers the source files of a project, honoring
// .gitignore files, configured exclusions and include patterns.
package scanner

import (
	"bufio"
	"bytes"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-git/v5/plumbing/format/gitignore"
	ignore "github.com/sabhiram/go-gitignore"
	"github.com/spf13/afero"

	"github.com/panbanda/connascence/pkg/ast"
	"github.com/panbanda/connascence/pkg/config"
	"github.com/panbanda/connascence/pkg/parser"
)

// Scanner finds source files in a directory.
type Scanner struct {
	config config.ExcludeConfig
	fs     afero.Fs
	logger *slog.Logger
}

// Option configures a Scanner.
type Option func(*Scanner)

// WithFs scans fs instead of the operating system filesystem.
func WithFs(fsys afero.Fs) Option {
	return func(s *Scanner) { s.fs = fsys }
}

// WithLogger sets the logger for skipped entries.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scanner) { s.logger = l }
}

// New creates a scanner for the given exclusion settings.
func New(cfg config.ExcludeConfig, opts ...Option) *Scanner {
	s := &Scanner{
		config: cfg,
		fs:     afero.NewOsFs(),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// rules is the compiled filter for one scan.
type rules struct {
	// gitBase is the directory .gitignore patterns are relative to.
	gitBase string
	git     gitignore.Matcher
	exclude *ignore.GitIgnore
	include *ignore.GitIgnore
}

func (s *Scanner) isOS() bool {
	_, ok := s.fs.(*afero.OsFs)
	return ok
}

// findGitRoot finds the root of the git repository by looking for .git directory.
// Returns empty string if not in a git repository.
func findGitRoot(start string) string {
	dir := start
	for {
		if info, err := os.Stat(filepath.Join(dir, ".git")); err == nil && info.IsDir() {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

func (s *Scanner) compile(root string, include []string) *rules {
	r := &rules{gitBase: root}

	excludes := slices.Clone(s.config.Patterns)
	for _, d := range s.config.Dirs {
		excludes = append(excludes, strings.TrimSuffix(d, "/")+"/")
	}
	if len(excludes) > 0 {
		r.exclude = ignore.CompileIgnoreLines(excludes...)
	}
	if len(include) == 0 {
		include = s.config.Include
	}
	if len(include) > 0 {
		r.include = ignore.CompileIgnoreLines(include...)
	}

	if !s.config.Gitignore {
		return r
	}
	var patterns []gitignore.Pattern
	if s.isOS() {
		if gitRoot := findGitRoot(root); gitRoot != "" {
			r.gitBase = gitRoot
		}
		// ReadPatterns recursively reads every .gitignore below the base.
		ps, err := gitignore.ReadPatterns(osfs.New(r.gitBase), nil)
		if err != nil {
			s.logger.Warn("reading .gitignore failed", "path", r.gitBase, "error", err)
		}
		patterns = ps
	} else {
		patterns = s.readPatterns(root)
	}
	if len(patterns) > 0 {
		r.git = gitignore.NewMatcher(patterns)
	}
	return r
}

// readPatterns collects .gitignore patterns from an in-memory tree.
func (s *Scanner) readPatterns(root string) []gitignore.Pattern {
	var patterns []gitignore.Pattern
	_ = afero.Walk(s.fs, root, func(path string, info fs.FileInfo, err error) error {
		if err != nil || info.IsDir() || info.Name() != ".gitignore" {
			return nil
		}
		data, err := afero.ReadFile(s.fs, path)
		if err != nil {
			s.logger.Warn("reading .gitignore failed", "path", path, "error", err)
			return nil
		}
		var domain []string
		if rel, err := filepath.Rel(root, filepath.Dir(path)); err == nil && rel != "." {
			domain = splitPath(rel)
		}
		sc := bufio.NewScanner(bytes.NewReader(data))
		for sc.Scan() {
			line := strings.TrimSpace(sc.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			patterns = append(patterns, gitignore.ParsePattern(line, domain))
		}
		return nil
	})
	return patterns
}

func splitPath(rel string) []string {
	return strings.Split(filepath.ToSlash(rel), "/")
}

func (r *rules) excluded(path, rel string, isDir bool) bool {
	if r.exclude != nil {
		name := filepath.ToSlash(rel)
		if isDir {
			name += "/"
		}
		if r.exclude.MatchesPath(name) {
			return true
		}
	}
	if r.git != nil {
		gitRel, err := filepath.Rel(r.gitBase, path)
		if err == nil && gitRel != "." && !strings.HasPrefix(gitRel, "..") {
			if r.git.Match(splitPath(gitRel), isDir) {
				return true
			}
		}
	}
	return false
}

func (r *rules) included(rel string) bool {
	return r.include == nil || r.include.MatchesPath(filepath.ToSlash(rel))
}

// ScanDir recursively scans root for analyzable source files. include, when
// non-empty, replaces the configured include patterns. Results are sorted.
func (s *Scanner) ScanDir(root string, include ...string) ([]string, error) {
	info, err := s.fs.Stat(root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, &fs.PathError{Op: "scan", Path: root, Err: fs.ErrInvalid}
	}

	var absRoot string
	if s.isOS() {
		// Resolve root so symlinks can be checked against it.
		if absRoot, err = filepath.Abs(root); err != nil {
			return nil, err
		}
		if absRoot, err = filepath.EvalSymlinks(absRoot); err != nil {
			return nil, err
		}
	}

	r := s.compile(root, include)
	files := make([]string, 0, 256)
	walkErr := afero.Walk(s.fs, root, func(path string, info fs.FileInfo, err error) error {
		if err != nil {
			s.logger.Debug("skipping unreadable entry", "path", path, "error", err)
			return nil
		}
		rel, _ := filepath.Rel(root, path)
		if rel == "." {
			return nil
		}

		if absRoot != "" && info.Mode()&fs.ModeSymlink != 0 {
			resolved, err := filepath.EvalSymlinks(path)
			if err != nil || !isWithinRoot(resolved, absRoot) {
				return nil
			}
		}

		if info.IsDir() {
			if r.excluded(path, rel, true) {
				return filepath.SkipDir
			}
			return nil
		}
		if r.excluded(path, rel, false) || !r.included(rel) {
			return nil
		}
		if parser.DetectLanguage(path) != ast.LangUnknown {
			files = append(files, path)
		}
		return nil
	})
	slices.Sort(files)
	return files, walkErr
}

// isWithinRoot checks if a path is contained within the root directory.
// Returns false if the path escapes via symlinks or relative paths.
func isWithinRoot(path, root string) bool {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	absPath = filepath.Clean(absPath)
	root = filepath.Clean(root)
	// The separator keeps "/root2" from matching "/root".
	return absPath == root || strings.HasPrefix(absPath, root+string(filepath.Separator))
}

// Accept reports whether a single file below root would be part of a scan.
// The watch loop uses it to filter change events.
func (s *Scanner) Accept(root, path string) bool {
	if parser.DetectLanguage(path) == ast.LangUnknown {
		return false
	}
	rel, err := filepath.Rel(root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return false
	}
	r := s.compile(root, nil)
	dir := filepath.Dir(rel)
	for dir != "." && dir != string(filepath.Separator) {
		if r.excluded(filepath.Join(root, dir), dir, true) {
			return false
		}
		dir = filepath.Dir(dir)
	}
	return !r.excluded(path, rel, false) && r.included(rel)
}
