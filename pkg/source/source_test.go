package source

import (
	"testing"

	"github.com/panbanda/connascence/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilesystemSource(t *testing.T) {
	src := NewFilesystem()

	content, err := src.Read("../../go.mod")
	require.NoError(t, err)
	assert.Contains(t, string(content), "module github.com/panbanda/connascence")

	info, err := src.Stat("../../go.mod")
	require.NoError(t, err)
	assert.Equal(t, int64(len(content)), info.Size)
	assert.False(t, info.ModTime.IsZero())

	_, err = src.Read("nonexistent.txt")
	assert.Error(t, err)
	_, err = src.Stat("nonexistent.txt")
	assert.Error(t, err)
}

func TestFSSource(t *testing.T) {
	fs := testutil.MemFS()
	testutil.WriteFile(t, fs, "/project/app.py", "x = 1\n")

	src := NewFS(fs)
	content, err := src.Read("/project/app.py")
	require.NoError(t, err)
	assert.Equal(t, "x = 1\n", string(content))

	info, err := src.Stat("/project/app.py")
	require.NoError(t, err)
	assert.Equal(t, int64(6), info.Size)
	assert.Same(t, fs, src.Fs())

	_, err = src.Read("/project/missing.py")
	assert.Error(t, err)
}

func TestContentSourceImplementations(t *testing.T) {
	var _ ContentSource = (*FilesystemSource)(nil)
	var _ ContentSource = (*FSSource)(nil)
}
