// Package storage provides the resource store that registry files are read
// from and written to.
package storage

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/spf13/afero"
)

// ResourceStore opens named resources for reading and writing.
// Names are slash-separated and relative to the store root.
type ResourceStore interface {
	// Open opens a resource for reading. It returns ErrNotFound when the
	// resource does not exist.
	Open(name string) (io.ReadCloser, error)

	// Create opens a resource for writing, replacing any previous content.
	// The new content becomes visible when the returned writer is closed.
	Create(name string) (io.WriteCloser, error)

	// Path returns the location of a resource for display.
	Path(name string) string
}

// FS is a ResourceStore backed by an afero filesystem rooted at a directory.
type FS struct {
	fs   afero.Fs
	root string
}

// NewFS creates a store rooted at root on the given filesystem.
// A nil filesystem means the host filesystem.
func NewFS(fsys afero.Fs, root string) *FS {
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	return &FS{fs: fsys, root: root}
}

// NewOSStore creates a store rooted at root on the host filesystem.
func NewOSStore(root string) *FS {
	return NewFS(afero.NewOsFs(), root)
}

// Path returns the filesystem path of a resource.
func (s *FS) Path(name string) string {
	return filepath.Join(s.root, filepath.FromSlash(path.Clean("/" + name)))
}

// Open opens a resource for reading.
func (s *FS) Open(name string) (io.ReadCloser, error) {
	p := s.Path(name)
	f, err := s.fs.Open(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) || os.IsNotExist(err) {
			return nil, fmt.Errorf("%s: %w", name, ErrNotFound)
		}
		return nil, fmt.Errorf("open %s: %w", p, err)
	}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("stat %s: %w", p, err)
	}
	if info.IsDir() {
		_ = f.Close()
		return nil, fmt.Errorf("open %s: is a directory", p)
	}

	return f, nil
}

// Create opens a resource for writing. Content is staged in a temporary
// file in the same directory and renamed into place on Close.
func (s *FS) Create(name string) (io.WriteCloser, error) {
	p := s.Path(name)
	dir := filepath.Dir(p)
	if err := s.fs.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create directory %s: %w", dir, err)
	}

	tmp, err := afero.TempFile(s.fs, dir, "."+filepath.Base(p)+".tmp-*")
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", p, err)
	}

	return &atomicWriter{fs: s.fs, file: tmp, target: p}, nil
}

// atomicWriter renames its temporary file onto the target on Close.
type atomicWriter struct {
	fs     afero.Fs
	file   afero.File
	target string
	failed bool
}

func (w *atomicWriter) Write(p []byte) (int, error) {
	n, err := w.file.Write(p)
	if err != nil {
		w.failed = true
	}
	return n, err
}

func (w *atomicWriter) Close() error {
	tmpName := w.file.Name()
	if err := w.file.Close(); err != nil {
		_ = w.fs.Remove(tmpName)
		return fmt.Errorf("close %s: %w", w.target, err)
	}
	if w.failed {
		_ = w.fs.Remove(tmpName)
		return fmt.Errorf("write %s: incomplete content discarded", w.target)
	}
	if err := w.fs.Chmod(tmpName, 0644); err != nil {
		_ = w.fs.Remove(tmpName)
		return fmt.Errorf("chmod %s: %w", w.target, err)
	}
	if err := w.fs.Rename(tmpName, w.target); err != nil {
		_ = w.fs.Remove(tmpName)
		return fmt.Errorf("rename into %s: %w", w.target, err)
	}
	return nil
}
