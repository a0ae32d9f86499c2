package registry

import (
	"errors"
	"fmt"
	"path"

	"github.com/c360studio/metainf/storage"
)

// DefaultPrefix is the directory, relative to the output root, that holds
// one registry file per contract.
const DefaultPrefix = "META-INF/services"

// Store reads and writes the registry file of each contract.
type Store struct {
	resources storage.ResourceStore
	prefix    string
}

// NewStore creates a store over resources. An empty prefix means
// DefaultPrefix.
func NewStore(resources storage.ResourceStore, prefix string) *Store {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Store{resources: resources, prefix: prefix}
}

// ResourceName returns the resource name of a contract's registry file.
func (s *Store) ResourceName(contract string) string {
	return path.Join(s.prefix, contract)
}

// Path returns the display location of a contract's registry file.
func (s *Store) Path(contract string) string {
	return s.resources.Path(s.ResourceName(contract))
}

// Load reads the registry file of a contract. A missing file is an empty
// registry and not an error. Any other failure returns an empty registry
// together with a *ReadError, so callers can report it and carry on.
func (s *Store) Load(contract string) (Registrations, error) {
	name := s.ResourceName(contract)

	r, err := s.resources.Open(name)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return Registrations{}, nil
		}
		return Registrations{}, &ReadError{Contract: contract, Path: name, err: err}
	}
	defer r.Close()

	regs, err := Parse(r)
	if err != nil {
		return Registrations{}, &ReadError{Contract: contract, Path: name, err: err}
	}
	return regs, nil
}

// Write replaces the registry file of a contract with regs.
func (s *Store) Write(contract string, regs Registrations) error {
	name := s.ResourceName(contract)

	w, err := s.resources.Create(name)
	if err != nil {
		return &WriteError{Contract: contract, Path: name, err: err}
	}

	if err := Encode(w, regs); err != nil {
		_ = w.Close()
		return &WriteError{Contract: contract, Path: name, err: fmt.Errorf("encode: %w", err)}
	}
	if err := w.Close(); err != nil {
		return &WriteError{Contract: contract, Path: name, err: err}
	}
	return nil
}
