package scanner

import (
	"fmt"
	"path/filepath"
	"slices"
	"sync"
)

// Factory creates a FileScanner for a specific language.
// The factory receives the scan root so results carry root-relative paths.
type Factory func(root string) FileScanner

// Registry maintains a registry of language scanners.
// Scanners are registered by name with their supported file extensions.
// Thread-safe for concurrent access.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory // name → factory
	extMap    map[string]string  // extension → scanner name
}

// NewRegistry creates a new empty scanner registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
		extMap:    make(map[string]string),
	}
}

// Register adds a scanner factory for the given extensions.
// The first registration wins if there's an extension conflict.
// Extensions should include the leading dot (e.g., ".go", ".java").
func (r *Registry) Register(name string, extensions []string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.factories[name] = factory

	for _, ext := range extensions {
		if _, exists := r.extMap[ext]; !exists {
			r.extMap[ext] = name
		}
	}
}

// LanguageFor returns the scanner name registered for a file's extension.
func (r *Registry) LanguageFor(path string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	name, ok := r.extMap[filepath.Ext(path)]
	return name, ok
}

// Create instantiates a scanner by name.
// Returns an error if the scanner name is not registered.
func (r *Registry) Create(name, root string) (FileScanner, error) {
	r.mu.RLock()
	factory, ok := r.factories[name]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("scanner not registered: %s", name)
	}

	return factory(root), nil
}

// Languages returns all registered scanner names, sorted.
func (r *Registry) Languages() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Extensions returns the extensions mapped to a scanner name, sorted.
func (r *Registry) Extensions(name string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var extensions []string
	for ext, scannerName := range r.extMap {
		if scannerName == name {
			extensions = append(extensions, ext)
		}
	}
	slices.Sort(extensions)
	return extensions
}

// Has returns true if a scanner with the given name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.factories[name]
	return ok
}

// DefaultRegistry is the global scanner registry.
// Language scanners register themselves via init() functions.
var DefaultRegistry = NewRegistry()
