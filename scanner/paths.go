package scanner

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// ResolvePaths expands glob patterns to concrete directories.
// Supports both single-level wildcards (*) and recursive wildcards (**).
//
// Examples:
//   - "./services/*" → ["./services/auth", "./services/users", ...]
//   - "./src/main/java" → ["./src/main/java"]
//   - "./**/plugins" → every plugins directory in the tree
//
// Returns only directories, not files.
func ResolvePaths(patterns []string) ([]string, error) {
	var resolved []string
	seen := make(map[string]bool)

	for _, pattern := range patterns {
		paths, err := resolvePattern(pattern)
		if err != nil {
			return nil, fmt.Errorf("resolve pattern %q: %w", pattern, err)
		}

		for _, p := range paths {
			if !seen[p] {
				seen[p] = true
				resolved = append(resolved, p)
			}
		}
	}

	return resolved, nil
}

// resolvePattern expands a single glob pattern to directories.
func resolvePattern(pattern string) ([]string, error) {
	if !containsGlob(pattern) {
		absPath, err := filepath.Abs(pattern)
		if err != nil {
			return nil, err
		}

		info, err := os.Stat(absPath)
		if err != nil {
			return nil, err
		}

		if !info.IsDir() {
			return nil, fmt.Errorf("path is not a directory: %s", absPath)
		}

		return []string{absPath}, nil
	}

	absPattern, err := makeAbsolutePattern(pattern)
	if err != nil {
		return nil, err
	}

	// Use doublestar for ** support
	matches, err := doublestar.FilepathGlob(absPattern)
	if err != nil {
		return nil, fmt.Errorf("glob error: %w", err)
	}

	var dirs []string
	for _, match := range matches {
		info, err := os.Stat(match)
		if err != nil {
			continue // Skip paths that can't be stat'd
		}
		if info.IsDir() {
			dirs = append(dirs, match)
		}
	}

	if len(dirs) == 0 {
		return nil, fmt.Errorf("no directories match pattern: %s", pattern)
	}

	return dirs, nil
}

// containsGlob checks if a pattern contains glob characters.
func containsGlob(pattern string) bool {
	return strings.ContainsAny(pattern, "*?[{")
}

// makeAbsolutePattern converts a relative pattern to absolute.
// Preserves glob characters in the pattern.
func makeAbsolutePattern(pattern string) (string, error) {
	globIdx := strings.IndexAny(pattern, "*?[{")
	if globIdx == -1 {
		return filepath.Abs(pattern)
	}

	// Split at the last separator before the first glob character
	dirPart, globPart := ".", pattern
	if lastSep := strings.LastIndexAny(pattern[:globIdx], "/"+string(filepath.Separator)); lastSep >= 0 {
		dirPart, globPart = pattern[:lastSep], pattern[lastSep+1:]
		if dirPart == "" {
			dirPart = string(filepath.Separator)
		}
	}

	absDir, err := filepath.Abs(dirPart)
	if err != nil {
		return "", err
	}

	return filepath.Join(absDir, filepath.FromSlash(globPart)), nil
}

// Excluder decides which directories and files a scan skips.
// Patterns without a slash match a single path element (any directory or
// file name); patterns with a slash match the slash-separated path
// relative to the scan base. Hidden directories are always skipped.
type Excluder struct {
	patterns []string
}

// NewExcluder validates and stores exclude patterns.
func NewExcluder(patterns []string) (*Excluder, error) {
	for _, p := range patterns {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("invalid exclude pattern: %q", p)
		}
	}
	return &Excluder{patterns: patterns}, nil
}

// Excluded reports whether the root-relative path should be skipped.
func (e *Excluder) Excluded(relPath string, isDir bool) bool {
	rel := filepath.ToSlash(relPath)
	base := filepath.Base(relPath)
	if isDir && rel != "." && strings.HasPrefix(base, ".") {
		return true
	}
	for _, p := range e.patterns {
		target := rel
		if !strings.Contains(p, "/") {
			target = base
		}
		if ok, _ := doublestar.Match(p, target); ok {
			return true
		}
	}
	return false
}
