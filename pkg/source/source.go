// Package source abstracts where file content comes from, so the engine can
// analyze files on disk or in an in-memory filesystem.
package source

import (
	"os"
	"time"

	"github.com/spf13/afero"
)

// Info is the identity of a file's current content as seen by the cache.
type Info struct {
	Size    int64
	ModTime time.Time
}

// ContentSource provides file content from a specific source.
type ContentSource interface {
	// Read returns the content of the file at path.
	Read(path string) ([]byte, error)
	// Stat returns size and modification time without reading the file.
	Stat(path string) (Info, error)
}

// FilesystemSource reads files from the local filesystem.
type FilesystemSource struct{}

// NewFilesystem creates a source that reads from the filesystem.
func NewFilesystem() *FilesystemSource {
	return &FilesystemSource{}
}

// Read implements ContentSource.
func (f *FilesystemSource) Read(path string) ([]byte, error) {
	return os.ReadFile(path)
}

// Stat implements ContentSource.
func (f *FilesystemSource) Stat(path string) (Info, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return Info{}, err
	}
	return Info{Size: fi.Size(), ModTime: fi.ModTime()}, nil
}

// FSSource reads files from an afero filesystem.
// It is safe for concurrent use when the underlying filesystem is.
type FSSource struct {
	fs afero.Fs
}

// NewFS creates a source backed by fs.
func NewFS(fs afero.Fs) *FSSource {
	return &FSSource{fs: fs}
}

// Read implements ContentSource.
func (s *FSSource) Read(path string) ([]byte, error) {
	return afero.ReadFile(s.fs, path)
}

// Stat implements ContentSource.
func (s *FSSource) Stat(path string) (Info, error) {
	fi, err := s.fs.Stat(path)
	if err != nil {
		return Info{}, err
	}
	return Info{Size: fi.Size(), ModTime: fi.ModTime()}, nil
}

// Fs returns the underlying filesystem.
func (s *FSSource) Fs() afero.Fs {
	return s.fs
}
