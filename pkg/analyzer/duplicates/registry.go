package duplicates

import (
	"cmp"
	"errors"
	"slices"
	"strings"
	"sync"

	"github.com/panbanda/connascence/pkg/ast"
)

// ErrFrozen is returned when registering after the global pass has started.
var ErrFrozen = errors.New("fingerprint registry is frozen")

// Registry collects function fingerprints from every worker. Registration
// is concurrent; Freeze ends it and hands out the canonical snapshot.
type Registry struct {
	cfg       Config
	mu        sync.Mutex
	fragments []Fragment
	frozen    bool
}

// NewRegistry creates an empty registry.
func NewRegistry(cfg Config) *Registry {
	return &Registry{cfg: cfg}
}

// Register fingerprints every function in tree large enough to count and
// returns how many were added.
func (r *Registry) Register(tree *ast.Tree) (int, error) {
	var batch []Fragment
	for _, fn := range ast.Functions(tree) {
		if f, ok := NewFragment(tree.Path, fn, r.cfg); ok {
			batch = append(batch, f)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen {
		return 0, ErrFrozen
	}
	r.fragments = append(r.fragments, batch...)
	return len(batch), nil
}

// Freeze stops registration and returns the fragments ordered by file,
// line and function name, independent of registration order.
func (r *Registry) Freeze() []Fragment {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frozen = true
	out := slices.Clone(r.fragments)
	slices.SortStableFunc(out, compareFragments)
	return out
}

func compareFragments(a, b Fragment) int {
	if c := strings.Compare(a.Location.File, b.Location.File); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Location.Line, b.Location.Line); c != 0 {
		return c
	}
	return strings.Compare(a.Location.Function, b.Location.Function)
}
