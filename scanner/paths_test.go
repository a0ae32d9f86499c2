package scanner

import (
	"os"
	"path/filepath"
	"testing"
)

func TestResolvePaths_NonGlob(t *testing.T) {
	tmpDir := t.TempDir()
	subDir := filepath.Join(tmpDir, "subdir")
	if err := os.Mkdir(subDir, 0755); err != nil {
		t.Fatal(err)
	}

	paths, err := ResolvePaths([]string{subDir})
	if err != nil {
		t.Fatalf("ResolvePaths failed: %v", err)
	}

	if len(paths) != 1 {
		t.Fatalf("expected 1 path, got %d", len(paths))
	}

	absSubDir, _ := filepath.Abs(subDir)
	if paths[0] != absSubDir {
		t.Errorf("expected %q, got %q", absSubDir, paths[0])
	}
}

func TestResolvePaths_NonGlob_NotDirectory(t *testing.T) {
	tmpDir := t.TempDir()
	filePath := filepath.Join(tmpDir, "Service.java")
	if err := os.WriteFile(filePath, []byte("class Service {}"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := ResolvePaths([]string{filePath}); err == nil {
		t.Error("expected error for non-directory path")
	}
}

func TestResolvePaths_SingleLevelGlob(t *testing.T) {
	// tmpDir/
	//   modules/
	//     api/
	//     impl/
	//     README.md
	tmpDir := t.TempDir()
	modulesDir := filepath.Join(tmpDir, "modules")
	for _, name := range []string{"api", "impl"} {
		if err := os.MkdirAll(filepath.Join(modulesDir, name), 0755); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.WriteFile(filepath.Join(modulesDir, "README.md"), []byte("test"), 0644); err != nil {
		t.Fatal(err)
	}

	paths, err := ResolvePaths([]string{filepath.Join(modulesDir, "*")})
	if err != nil {
		t.Fatalf("ResolvePaths failed: %v", err)
	}

	if len(paths) != 2 {
		t.Fatalf("expected 2 paths, got %d: %v", len(paths), paths)
	}
	for _, p := range paths {
		if base := filepath.Base(p); base != "api" && base != "impl" {
			t.Errorf("unexpected path %q", p)
		}
	}
}

func TestResolvePaths_DoubleStarGlob(t *testing.T) {
	tmpDir := t.TempDir()
	for _, dir := range []string{
		filepath.Join(tmpDir, "a", "plugins"),
		filepath.Join(tmpDir, "a", "b", "plugins"),
		filepath.Join(tmpDir, "c"),
	} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			t.Fatal(err)
		}
	}

	paths, err := ResolvePaths([]string{filepath.Join(tmpDir, "**", "plugins")})
	if err != nil {
		t.Fatalf("ResolvePaths failed: %v", err)
	}

	if len(paths) != 2 {
		t.Errorf("expected 2 plugin directories, got %d: %v", len(paths), paths)
	}
}

func TestResolvePaths_RelativeGlob(t *testing.T) {
	tmpDir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(tmpDir, "src", "one"), 0755); err != nil {
		t.Fatal(err)
	}
	t.Chdir(tmpDir)

	paths, err := ResolvePaths([]string{"src/*"})
	if err != nil {
		t.Fatalf("ResolvePaths failed: %v", err)
	}
	if len(paths) != 1 || !filepath.IsAbs(paths[0]) || filepath.Base(paths[0]) != "one" {
		t.Errorf("unexpected paths: %v", paths)
	}
}

func TestResolvePaths_Deduplication(t *testing.T) {
	tmpDir := t.TempDir()
	subDir := filepath.Join(tmpDir, "sub")
	if err := os.Mkdir(subDir, 0755); err != nil {
		t.Fatal(err)
	}

	paths, err := ResolvePaths([]string{subDir, subDir, subDir})
	if err != nil {
		t.Fatalf("ResolvePaths failed: %v", err)
	}

	if len(paths) != 1 {
		t.Errorf("expected 1 deduplicated path, got %d", len(paths))
	}
}

func TestResolvePaths_NoMatch(t *testing.T) {
	tmpDir := t.TempDir()
	pattern := filepath.Join(tmpDir, "nonexistent", "*")

	if _, err := ResolvePaths([]string{pattern}); err == nil {
		t.Error("expected error for no-match pattern")
	}
}

func TestContainsGlob(t *testing.T) {
	tests := []struct {
		pattern string
		want    bool
	}{
		{"./simple/path", false},
		{"./path/*", true},
		{"./path/**", true},
		{"./path/?.txt", true},
		{"./path/[abc]", true},
		{"./path/{a,b}", true},
		{"", false},
	}

	for _, tc := range tests {
		if got := containsGlob(tc.pattern); got != tc.want {
			t.Errorf("containsGlob(%q) = %v, want %v", tc.pattern, got, tc.want)
		}
	}
}

func TestExcluder(t *testing.T) {
	excluder, err := NewExcluder([]string{"vendor", "testdata", "*_gen.go", "build/**", "internal/legacy/*.java"})
	if err != nil {
		t.Fatalf("NewExcluder failed: %v", err)
	}

	tests := []struct {
		path  string
		isDir bool
		want  bool
	}{
		{".", true, false},
		{"vendor", true, true},
		{"a/b/vendor", true, true},
		{"a/testdata", true, true},
		{".git", true, true},
		{"src/.cache", true, true},
		{"src", true, false},
		{"model_gen.go", false, true},
		{"pkg/model_gen.go", false, true},
		{"pkg/model.go", false, false},
		{"build/classes", true, true},
		{"internal/legacy/Old.java", false, true},
		{"internal/legacy/sub/Old.java", false, false},
		{".hidden.go", false, false},
	}

	for _, tc := range tests {
		if got := excluder.Excluded(filepath.FromSlash(tc.path), tc.isDir); got != tc.want {
			t.Errorf("Excluded(%q, %v) = %v, want %v", tc.path, tc.isDir, got, tc.want)
		}
	}
}

func TestNewExcluder_InvalidPattern(t *testing.T) {
	if _, err := NewExcluder([]string{"[unclosed"}); err == nil {
		t.Error("expected error for invalid pattern")
	}
}
