package storage

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeResource(t *testing.T, s ResourceStore, name, content string) {
	t.Helper()
	w, err := s.Create(name)
	require.NoError(t, err)
	_, err = io.WriteString(w, content)
	require.NoError(t, err)
	require.NoError(t, w.Close())
}

func readResource(t *testing.T, s ResourceStore, name string) string {
	t.Helper()
	r, err := s.Open(name)
	require.NoError(t, err)
	defer r.Close()
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	return string(data)
}

func TestFS_OpenMissing(t *testing.T) {
	s := NewFS(afero.NewMemMapFs(), "/out")

	_, err := s.Open("META-INF/services/com.example.Codec")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestFS_CreateThenOpen(t *testing.T) {
	s := NewFS(afero.NewMemMapFs(), "/out")

	writeResource(t, s, "META-INF/services/com.example.Codec", "com.example.JSON\n")
	assert.Equal(t, "com.example.JSON\n", readResource(t, s, "META-INF/services/com.example.Codec"))

	// A second write replaces the content entirely.
	writeResource(t, s, "META-INF/services/com.example.Codec", "com.example.XML\n")
	assert.Equal(t, "com.example.XML\n", readResource(t, s, "META-INF/services/com.example.Codec"))
}

func TestFS_CreateLeavesNoTempFiles(t *testing.T) {
	mem := afero.NewMemMapFs()
	s := NewFS(mem, "/out")
	writeResource(t, s, "META-INF/services/a.B", "x.Y\n")

	entries, err := afero.ReadDir(mem, "/out/META-INF/services")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "a.B", entries[0].Name())
}

func TestFS_CreateReadOnly(t *testing.T) {
	s := NewFS(afero.NewReadOnlyFs(afero.NewMemMapFs()), "/out")

	_, err := s.Create("META-INF/services/a.B")
	assert.Error(t, err)
}

func TestFS_OpenDirectory(t *testing.T) {
	mem := afero.NewMemMapFs()
	require.NoError(t, mem.MkdirAll("/out/META-INF/services/a.B", 0755))
	s := NewFS(mem, "/out")

	_, err := s.Open("META-INF/services/a.B")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrNotFound))
}

func TestFS_PathStaysUnderRoot(t *testing.T) {
	s := NewFS(afero.NewMemMapFs(), "/out")
	assert.Equal(t, filepath.Join("/out", "etc", "passwd"), s.Path("../../etc/passwd"))
}

func TestNewOSStore(t *testing.T) {
	dir := t.TempDir()
	s := NewOSStore(dir)

	writeResource(t, s, "META-INF/services/a.B", "x.Y\n")

	data, err := os.ReadFile(filepath.Join(dir, "META-INF", "services", "a.B"))
	require.NoError(t, err)
	assert.Equal(t, "x.Y\n", string(data))
}
