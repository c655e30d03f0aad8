package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/panbanda/connascence/pkg/parser"
	"github.com/panbanda/connascence/pkg/source"
	"github.com/panbanda/connascence/pkg/testutil"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMemCache(t *testing.T, files map[string]string, opts ...Option) (*Cache, afero.Fs) {
	t.Helper()
	fs := testutil.MemFS()
	testutil.CreateFileTree(t, fs, "/p", files)
	return New(append([]Option{WithSource(source.NewFS(fs))}, opts...)...), fs
}

func TestHashBytes(t *testing.T) {
	h := HashBytes([]byte("abc"))
	assert.Len(t, h, 64)
	assert.Equal(t, h, HashBytes([]byte("abc")))
	assert.NotEqual(t, h, HashBytes([]byte("abd")))
}

func TestGetOrParse_HitAfterMiss(t *testing.T) {
	c, _ := newMemCache(t, map[string]string{"a.py": "def f(x):\n    return x\n"})
	psr := parser.New()
	defer psr.Close()
	ctx := context.Background()

	first, err := c.GetOrParse(ctx, psr, "/p/a.py")
	require.NoError(t, err)
	assert.Equal(t, []string{"def f(x):", "    return x"}, first.Lines)
	assert.NotNil(t, first.Tree)
	assert.False(t, first.LastAccess().IsZero())

	second, err := c.GetOrParse(ctx, psr, "/p/a.py")
	require.NoError(t, err)
	assert.Same(t, first, second)

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, 0.5, c.HitRate())
	assert.Equal(t, 1, stats.Entries)
	assert.Equal(t, first.Bytes, stats.Bytes)
}

func TestGetOrParse_StaleEntryReplaced(t *testing.T) {
	c, fs := newMemCache(t, map[string]string{"a.py": "x = 1\n"})
	psr := parser.New()
	defer psr.Close()
	ctx := context.Background()

	first, err := c.GetOrParse(ctx, psr, "/p/a.py")
	require.NoError(t, err)

	testutil.WriteFile(t, fs, "/p/a.py", "x = 2\ny = 3\n")
	second, err := c.GetOrParse(ctx, psr, "/p/a.py")
	require.NoError(t, err)

	assert.NotSame(t, first, second)
	assert.NotEqual(t, first.Hash, second.Hash)
	assert.Len(t, second.Lines, 2)
	assert.Equal(t, int64(2), c.Stats().Misses)
	assert.Equal(t, 1, c.Stats().Entries)
	assert.Equal(t, second.Bytes, c.Stats().Bytes)
	// the replaced entry is still usable by whoever holds it
	assert.Equal(t, []string{"x = 1"}, first.Lines)
}

func TestGetOrParse_Errors(t *testing.T) {
	c, _ := newMemCache(t, map[string]string{
		"broken.py": "def broken(:\n    return\n",
		"notes.txt": "hello\n",
	})
	psr := parser.New()
	defer psr.Close()
	ctx := context.Background()

	_, err := c.GetOrParse(ctx, psr, "/p/missing.py")
	require.Error(t, err)
	assert.True(t, IsIOError(err))

	_, err = c.GetOrParse(ctx, psr, "/p/broken.py")
	var pe *parser.ParseError
	require.True(t, errors.As(err, &pe))
	_, cached := c.Get("/p/broken.py")
	assert.False(t, cached)

	_, err = c.GetOrParse(ctx, psr, "/p/notes.txt")
	require.Error(t, err)

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = c.GetOrParse(canceled, psr, "/p/broken.py")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEviction_RespectsBudget(t *testing.T) {
	files := make(map[string]string)
	for i := range 5 {
		files[fmt.Sprintf("f%d.py", i)] = strings.Repeat(fmt.Sprintf("v%d = %d\n", i, i), 20)
	}
	c, _ := newMemCache(t, files)
	psr := parser.New()
	defer psr.Close()
	ctx := context.Background()

	one, err := c.GetOrParse(ctx, psr, "/p/f0.py")
	require.NoError(t, err)

	// room for roughly two entries
	c.maxMemory = one.Bytes*2 + one.Bytes/2
	for i := 1; i < 5; i++ {
		_, err := c.GetOrParse(ctx, psr, fmt.Sprintf("/p/f%d.py", i))
		require.NoError(t, err)
	}

	stats := c.Stats()
	assert.LessOrEqual(t, stats.Bytes, c.maxMemory)
	assert.Positive(t, stats.Evictions)
	_, ok := c.Get("/p/f0.py")
	assert.False(t, ok, "least recently used entry should be evicted")
	_, ok = c.Get("/p/f4.py")
	assert.True(t, ok)
	// the evicted entry is still intact for a holder
	assert.NotNil(t, one.Tree)
}

func TestInvalidateAndClearAll(t *testing.T) {
	c, _ := newMemCache(t, map[string]string{"a.py": "x = 1\n", "b.py": "y = 2\n"})
	psr := parser.New()
	defer psr.Close()
	ctx := context.Background()

	_, err := c.GetOrParse(ctx, psr, "/p/a.py")
	require.NoError(t, err)
	_, err = c.GetOrParse(ctx, psr, "/p/b.py")
	require.NoError(t, err)

	c.Invalidate("/p/a.py")
	_, ok := c.Get("/p/a.py")
	assert.False(t, ok)
	assert.Equal(t, 1, c.Stats().Entries)

	c.ClearAll()
	stats := c.Stats()
	assert.Equal(t, 0, stats.Entries)
	assert.Zero(t, stats.Bytes)
	assert.Zero(t, stats.Hits+stats.Misses)
}

func TestWarm(t *testing.T) {
	c, _ := newMemCache(t, map[string]string{
		"main.py":   "x = 1\n",
		"util.py":   "y = 2\n",
		"big.py":    strings.Repeat("z = 3\n", 100),
		"broken.py": "def broken(:\n",
	})
	files := []string{"/p/big.py", "/p/broken.py", "/p/main.py", "/p/util.py", "/p/gone.py"}

	ranked := c.rankForWarm(files, WarmOptions{MaxFileSize: 100})
	require.Len(t, ranked, 3)
	assert.Equal(t, "/p/main.py", ranked[0].path)

	warmed := c.Warm(context.Background(), files, WarmOptions{MaxFileSize: 100, MaxFiles: 10})
	assert.Equal(t, 2, warmed)
	assert.Zero(t, c.Stats().Hits+c.Stats().Misses)

	psr := parser.New()
	defer psr.Close()
	_, err := c.GetOrParse(context.Background(), psr, "/p/main.py")
	require.NoError(t, err)
	assert.Equal(t, 1.0, c.HitRate())
}

func TestGetOrParse_Concurrent(t *testing.T) {
	files := make(map[string]string)
	for i := range 8 {
		files[fmt.Sprintf("f%d.py", i)] = fmt.Sprintf("def f%d(a):\n    return a + %d\n", i, i)
	}
	c, _ := newMemCache(t, files)

	var wg sync.WaitGroup
	for w := range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			psr := parser.New()
			defer psr.Close()
			for i := range 8 {
				path := fmt.Sprintf("/p/f%d.py", (i+w)%8)
				e, err := c.GetOrParse(context.Background(), psr, path)
				assert.NoError(t, err)
				assert.Equal(t, path, e.Path)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 8, c.Stats().Entries)
	assert.Equal(t, int64(32), c.Stats().Hits+c.Stats().Misses)
}
