package testutil

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/panbanda/connascence/pkg/ast"
	"github.com/panbanda/connascence/pkg/parser"
	"github.com/spf13/afero"
)

// MemFS creates an in-memory filesystem for testing.
func MemFS() afero.Fs {
	return afero.NewMemMapFs()
}

// WriteFile writes content to a file in the given filesystem.
func WriteFile(t *testing.T, fs afero.Fs, path, content string) {
	t.Helper()
	dir := filepath.Dir(path)
	if err := fs.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("MkdirAll(%s) error: %v", dir, err)
	}
	if err := afero.WriteFile(fs, path, []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile(%s) error: %v", path, err)
	}
}

// ReadFile reads content from a file in the given filesystem.
func ReadFile(t *testing.T, fs afero.Fs, path string) string {
	t.Helper()
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		t.Fatalf("ReadFile(%s) error: %v", path, err)
	}
	return string(data)
}

// FileExists checks if a file exists in the filesystem.
func FileExists(fs afero.Fs, path string) bool {
	exists, _ := afero.Exists(fs, path)
	return exists
}

// CreateFileTree creates multiple files from a map of path -> content.
func CreateFileTree(t *testing.T, fs afero.Fs, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(root, name)
		WriteFile(t, fs, path, content)
	}
}

// Parse parses src in the language implied by path and returns the tree
// together with its source lines.
func Parse(t *testing.T, path, src string) (*ast.Tree, []string) {
	t.Helper()
	p := parser.New()
	defer p.Close()
	tree, err := p.Parse([]byte(src), parser.DetectLanguage(path), path)
	if err != nil {
		t.Fatalf("Parse(%s) error: %v", path, err)
	}
	return tree, strings.Split(strings.TrimSuffix(src, "\n"), "\n")
}
