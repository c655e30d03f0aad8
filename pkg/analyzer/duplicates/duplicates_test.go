package duplicates

import (
	"sync"
	"testing"

	"github.com/panbanda/connascence/pkg/ast"
	"github.com/panbanda/connascence/pkg/models"
	"github.com/panbanda/connascence/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const totalA = `def total(items):
    result = 0
    for item in items:
        result += item.price
    if result > 100:
        result = result - 10
    return result
`

// same algorithm, different names and literals
const totalB = `import os


def sum_prices(rows):
    acc = 0
    for r in rows:
        acc += r.cost
    if acc > 500:
        acc = acc - 25
    return acc
`

const unrelated = `def greet(name):
    print("hello", name)
    log(name)
    return None
`

func register(t *testing.T, r *Registry, files map[string]string, order []string) {
	t.Helper()
	for _, path := range order {
		tree, _ := testutil.Parse(t, path, files[path])
		_, err := r.Register(tree)
		require.NoError(t, err)
	}
}

func TestFingerprint_IgnoresNamesAndLiterals(t *testing.T) {
	a, _ := testutil.Parse(t, "a.py", totalA)
	b, _ := testutil.Parse(t, "b.py", totalB)
	c, _ := testutil.Parse(t, "c.py", unrelated)

	fa, fb, fc := ast.Functions(a)[0], ast.Functions(b)[0], ast.Functions(c)[0]
	assert.Equal(t, Fingerprint(fa), Fingerprint(fb))
	assert.NotEqual(t, Fingerprint(fa), Fingerprint(fc))
	assert.Equal(t, Tokens(fa), Tokens(fb))
	assert.Len(t, StatementKinds(fa), 6)
}

func TestFragment_Similarity(t *testing.T) {
	short, _ := testutil.Parse(t, "s.py", "def f(a):\n    x = a\n    y = a\n    z = a\n")
	long, _ := testutil.Parse(t, "l.py", "def g(a):\n    x = a\n    y = a\n    z = a\n    if a:\n        raise ValueError(a)\n")
	cfg := DefaultConfig()

	fs, ok := NewFragment("s.py", ast.Functions(short)[0], cfg)
	require.True(t, ok)
	fl, ok := NewFragment("l.py", ast.Functions(long)[0], cfg)
	require.True(t, ok)

	assert.Equal(t, 1.0, fs.Similarity(fs))
	sim := fs.Similarity(fl)
	assert.Greater(t, sim, 0.0)
	assert.Less(t, sim, 1.0)
	assert.Equal(t, sim, fl.Similarity(fs))
}

func TestNewFragment_MinStatements(t *testing.T) {
	tree, _ := testutil.Parse(t, "a.py", "def tiny(x):\n    return x\n")
	_, ok := NewFragment("a.py", ast.Functions(tree)[0], DefaultConfig())
	assert.False(t, ok)

	cfg := DefaultConfig()
	cfg.MinStatements = 1
	f, ok := NewFragment("a.py", ast.Functions(tree)[0], cfg)
	require.True(t, ok)
	assert.Equal(t, "tiny", f.Location.Function)
	assert.Equal(t, 1, f.Location.Line)
}

func TestAnalyze_ExactDuplicateAcrossFiles(t *testing.T) {
	files := map[string]string{"a.py": totalA, "b.py": totalB, "c.py": unrelated}
	r := NewRegistry(DefaultConfig())
	register(t, r, files, []string{"a.py", "b.py", "c.py"})

	res := New().Analyze(r.Freeze())
	require.Len(t, res.Clusters, 1)
	cluster := res.Clusters[0]
	assert.Equal(t, 1.0, cluster.Similarity)
	assert.Equal(t, "a.py", cluster.Primary().File)
	require.Len(t, cluster.Members, 2)

	require.Len(t, res.Violations, 1)
	v := res.Violations[0]
	assert.Equal(t, models.RuleDuplicateAlgorithm, v.RuleKind)
	assert.Equal(t, "b.py", v.FilePath)
	assert.Equal(t, 4, v.Line)
	assert.Equal(t, models.LocalityCrossModule, v.Locality)
	assert.Equal(t, models.SeverityHigh, v.Severity)
	sim, ok := v.ContextFloat("similarity_score")
	require.True(t, ok)
	assert.Equal(t, 1.0, sim)
	assert.Equal(t, "a.py:1", v.Context["primary"])

	assert.InDelta(t, 0.98, res.Score, 1e-9)
}

func TestAnalyze_OrderIndependent(t *testing.T) {
	files := map[string]string{"a.py": totalA, "b.py": totalB, "c.py": unrelated}

	forward := NewRegistry(DefaultConfig())
	register(t, forward, files, []string{"a.py", "b.py", "c.py"})
	backward := NewRegistry(DefaultConfig())
	register(t, backward, files, []string{"c.py", "b.py", "a.py"})

	a := New().Analyze(forward.Freeze())
	b := New().Analyze(backward.Freeze())
	assert.Equal(t, a.Clusters, b.Clusters)
	assert.Equal(t, a.Violations, b.Violations)
}

func TestAnalyze_NoDuplicates(t *testing.T) {
	files := map[string]string{"a.py": totalA, "c.py": unrelated}
	r := NewRegistry(DefaultConfig())
	register(t, r, files, []string{"a.py", "c.py"})

	res := New().Analyze(r.Freeze())
	assert.Empty(t, res.Clusters)
	assert.Empty(t, res.Violations)
	assert.Equal(t, 1.0, res.Score)
}

func TestAnalyze_ThreeMembersSameFile(t *testing.T) {
	src := totalA + "\n\n" + totalA[:4] + "total2" + totalA[9:] + "\n\n" + totalA[:4] + "total3" + totalA[9:]
	r := NewRegistry(DefaultConfig())
	register(t, r, map[string]string{"m.py": src}, []string{"m.py"})

	res := New().Analyze(r.Freeze())
	require.Len(t, res.Clusters, 1)
	assert.Len(t, res.Clusters[0].Members, 3)
	require.Len(t, res.Violations, 2)
	for _, v := range res.Violations {
		assert.Equal(t, models.LocalitySameModule, v.Locality)
		assert.Greater(t, v.Line, 1)
		size, _ := v.ContextInt("cluster_size")
		assert.Equal(t, 3, size)
	}
}

func TestRegistry_ConcurrentAndFrozen(t *testing.T) {
	r := NewRegistry(DefaultConfig())
	trees := make([]*ast.Tree, 8)
	for i := range trees {
		trees[i], _ = testutil.Parse(t, "f.py", totalA)
		trees[i].Path = string(rune('a'+i)) + ".py"
	}

	var wg sync.WaitGroup
	for _, tree := range trees {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := r.Register(tree)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	frozen := r.Freeze()
	require.Len(t, frozen, 8)
	assert.Equal(t, "a.py", frozen[0].Location.File)
	assert.Equal(t, "h.py", frozen[7].Location.File)

	_, err := r.Register(trees[0])
	assert.ErrorIs(t, err, ErrFrozen)
}

func TestScore(t *testing.T) {
	assert.Equal(t, 1.0, Score(nil))

	big := models.DuplicateCluster{Similarity: 1.0, Members: make([]models.FunctionLocation, 20)}
	// size factor caps at 2
	assert.InDelta(t, 0.9, Score([]models.DuplicateCluster{big}), 1e-9)

	many := make([]models.DuplicateCluster, 40)
	for i := range many {
		many[i] = big
	}
	assert.Equal(t, 0.0, Score(many))
}
