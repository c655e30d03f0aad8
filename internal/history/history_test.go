package history

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/panbanda/connascence/pkg/models"
)

func openMemory(t *testing.T, capacity int) *Store {
	t.Helper()
	s, err := Open(Config{InMemory: true, Capacity: capacity})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestOpen_RequiresDir(t *testing.T) {
	_, err := Open(Config{})
	require.Error(t, err)
}

func TestAppendAndLoad(t *testing.T) {
	ctx := context.Background()
	s := openMemory(t, 10)

	empty, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, empty)

	for i := range 3 {
		require.NoError(t, s.Append(ctx, models.QualityMetrics{TotalViolations: i, OverallQualityScore: 0.5}))
	}
	got, err := s.Load(ctx)
	require.NoError(t, err)
	require.Len(t, got, 3)
	for i, m := range got {
		assert.Equal(t, i, m.TotalViolations, "oldest first")
		assert.Equal(t, 0.5, m.OverallQualityScore)
	}
}

func TestAppend_TrimsToCapacity(t *testing.T) {
	ctx := context.Background()
	s := openMemory(t, 3)
	for i := range 12 {
		require.NoError(t, s.Append(ctx, models.QualityMetrics{TotalViolations: i}))
	}
	got, err := s.Load(ctx)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, 9, got[0].TotalViolations)
	assert.Equal(t, 11, got[2].TotalViolations)
}

func TestPersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s, err := Open(Config{Dir: dir, Capacity: 5})
	require.NoError(t, err)
	require.NoError(t, s.Append(ctx, models.QualityMetrics{TotalViolations: 1}))
	require.NoError(t, s.Append(ctx, models.QualityMetrics{TotalViolations: 2}))
	require.NoError(t, s.Close())

	s, err = Open(Config{Dir: dir, Capacity: 5})
	require.NoError(t, err)
	defer s.Close()
	assert.Equal(t, uint64(2), s.next, "sequence resumes after the newest key")
	require.NoError(t, s.Append(ctx, models.QualityMetrics{TotalViolations: 3}))

	got, err := s.Load(ctx)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, 3, got[2].TotalViolations)
}

func TestBaseline(t *testing.T) {
	s := openMemory(t, 5)
	_, err := s.Baseline()
	require.ErrorIs(t, err, ErrNoBaseline)

	require.NoError(t, s.SetBaseline(models.QualityMetrics{OverallQualityScore: 0.7}))
	base, err := s.Baseline()
	require.NoError(t, err)
	assert.Equal(t, 0.7, base.OverallQualityScore)

	got, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, got, "baseline is not part of the ring")
}

func TestAppend_CanceledContext(t *testing.T) {
	s := openMemory(t, 5)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, s.Append(ctx, models.QualityMetrics{}), context.Canceled)
}
