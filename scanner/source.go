package scanner

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"

	"github.com/c360studio/metainf/diag"
)

// SourceConfig configures a Source.
type SourceConfig struct {
	// Base is the directory results are reported relative to.
	// Defaults to the current directory.
	Base string

	// Paths are the directories (or doublestar patterns) to scan.
	// Defaults to Base.
	Paths []string

	// Languages restricts scanning to these registered scanners.
	// Empty means every registered scanner.
	Languages []string

	// Excludes are skipped paths; see Excluder.
	Excludes []string

	// Registry provides the language scanners. Defaults to DefaultRegistry.
	Registry *Registry

	// Logger for logging events
	Logger *slog.Logger
}

// Source walks source directories and scans every file a registered
// language scanner accepts.
type Source struct {
	base      string
	paths     []string
	languages map[string]bool
	excluder  *Excluder
	registry  *Registry
	logger    *slog.Logger
	scanners  map[string]FileScanner
}

// NewSource validates the configuration and creates a Source.
func NewSource(cfg SourceConfig) (*Source, error) {
	registry := cfg.Registry
	if registry == nil {
		registry = DefaultRegistry
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	base := cfg.Base
	if base == "" {
		base = "."
	}
	absBase, err := filepath.Abs(base)
	if err != nil {
		return nil, fmt.Errorf("resolve base: %w", err)
	}

	paths := cfg.Paths
	if len(paths) == 0 {
		paths = []string{absBase}
	}

	languages := cfg.Languages
	if len(languages) == 0 {
		languages = registry.Languages()
	}
	enabled := make(map[string]bool, len(languages))
	for _, lang := range languages {
		if !registry.Has(lang) {
			return nil, fmt.Errorf("scanner not registered: %s", lang)
		}
		enabled[lang] = true
	}

	excluder, err := NewExcluder(cfg.Excludes)
	if err != nil {
		return nil, err
	}

	return &Source{
		base:      absBase,
		paths:     paths,
		languages: enabled,
		excluder:  excluder,
		registry:  registry,
		logger:    logger,
		scanners:  make(map[string]FileScanner),
	}, nil
}

// Base returns the absolute base directory.
func (s *Source) Base() string {
	return s.base
}

// Roots resolves the configured paths to absolute directories.
func (s *Source) Roots() ([]string, error) {
	patterns := make([]string, len(s.paths))
	for i, p := range s.paths {
		if filepath.IsAbs(p) {
			patterns[i] = p
		} else {
			patterns[i] = filepath.Join(s.base, p)
		}
	}
	return ResolvePaths(patterns)
}

// Accepts reports whether a file would be scanned.
func (s *Source) Accepts(path string) bool {
	lang, ok := s.registry.LanguageFor(path)
	if !ok || !s.languages[lang] {
		return false
	}
	return !s.excluder.Excluded(s.rel(path), false)
}

// SkipDir reports whether a directory is excluded from scanning.
func (s *Source) SkipDir(path string) bool {
	return s.excluder.Excluded(s.rel(path), true)
}

// Scan walks every root and scans the accepted files. Files that fail to
// scan are reported as warnings and skipped.
func (s *Source) Scan(ctx context.Context, sink diag.Sink) ([]*ScanResult, error) {
	roots, err := s.Roots()
	if err != nil {
		return nil, err
	}

	var results []*ScanResult
	for _, root := range roots {
		rootResults, err := s.ScanRoot(ctx, root, sink)
		if err != nil {
			return nil, err
		}
		results = append(results, rootResults...)
	}
	return dedupe(results), nil
}

// ScanRoot walks a single directory.
func (s *Source) ScanRoot(ctx context.Context, root string, sink diag.Sink) ([]*ScanResult, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		// Check context cancellation
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if d.IsDir() {
			if path != root && s.SkipDir(path) {
				return filepath.SkipDir
			}
			return nil
		}
		if s.Accepts(path) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk directory: %w", err)
	}

	slices.Sort(files)
	return s.ScanFiles(ctx, files, sink), nil
}

// ScanFiles scans the given files. Files without a registered scanner are
// ignored and scan failures are reported as warnings.
func (s *Source) ScanFiles(ctx context.Context, files []string, sink diag.Sink) []*ScanResult {
	var results []*ScanResult
	for _, path := range files {
		if ctx.Err() != nil {
			break
		}

		lang, ok := s.registry.LanguageFor(path)
		if !ok || !s.languages[lang] {
			continue
		}

		fsc, err := s.scannerFor(lang)
		if err != nil {
			diag.Warnf(sink, diag.Location{File: s.rel(path)}, "skipping file: %v", err)
			continue
		}

		result, err := fsc.ScanFile(ctx, path)
		if err != nil {
			// Report and continue with other files
			diag.Warnf(sink, diag.Location{File: s.rel(path)}, "skipping file: %v", err)
			continue
		}
		result.Language = lang

		s.logger.Debug("Scanned file",
			"path", result.Path,
			"language", lang,
			"declarations", len(result.Declarations))

		results = append(results, result)
	}
	return results
}

func (s *Source) scannerFor(lang string) (FileScanner, error) {
	if fsc, ok := s.scanners[lang]; ok {
		return fsc, nil
	}
	fsc, err := s.registry.Create(lang, s.base)
	if err != nil {
		return nil, err
	}
	s.scanners[lang] = fsc
	return fsc, nil
}

func (s *Source) rel(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	rel, err := filepath.Rel(s.base, abs)
	if err != nil {
		return path
	}
	return rel
}

// dedupe drops repeated results for the same file, which happens when
// configured paths overlap.
func dedupe(results []*ScanResult) []*ScanResult {
	seen := make(map[string]bool, len(results))
	out := results[:0]
	for _, r := range results {
		if seen[r.Path] {
			continue
		}
		seen[r.Path] = true
		out = append(out, r)
	}
	return out
}

// exists reports whether path exists.
func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
