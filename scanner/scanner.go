// Package scanner finds service declarations in source files.
//
// A FileScanner turns one source file into a ScanResult: the annotated
// declarations it contains plus the type facts (supertypes, interfaces,
// methods) needed to infer and check contracts. Scanners for each
// language register themselves with DefaultRegistry from init().
package scanner

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	"github.com/c360studio/metainf/diag"
)

// FileScanner scans a single source file.
type FileScanner interface {
	ScanFile(ctx context.Context, filePath string) (*ScanResult, error)
}

// ContractRef is a contract named explicitly in an annotation.
type ContractRef struct {
	// Name is the resolved fully-qualified binary name.
	Name string

	// Expr is the contract as written in the source.
	Expr string

	// Declared is false when the expression does not denote a declared
	// (named, reference) type, e.g. a primitive, array or pointer type.
	Declared bool
}

// Declaration is one type declaration annotated as a service
// implementation.
type Declaration struct {
	// Name is the fully-qualified binary name of the implementation.
	Name string

	// Contract is the explicit contract, nil when the annotation omits it.
	Contract *ContractRef

	// Priority is the declared priority, 0 when absent.
	Priority int

	// Supertype is the non-trivial supertype, empty when there is none.
	Supertype string

	// Interfaces are the directly implemented interfaces in source order.
	Interfaces []string

	// Malformed is set when the annotation itself could not be decoded.
	Malformed error

	// Location is where the declaration appears.
	Location diag.Location
}

// TypeInfo describes a type declared in the scanned sources, annotated
// or not.
type TypeInfo struct {
	Name       string
	Interface  bool
	Supertype  string
	Interfaces []string

	// Embeds lists every embedded type (Go only); methods of known
	// embedded types are promoted.
	Embeds []string

	// Methods holds the method names of an interface type.
	Methods []string

	// Structural marks types that satisfy interfaces implicitly by method
	// set (Go) instead of by declaration (Java).
	Structural bool
}

// Method is a method declared on a named type.
type Method struct {
	Receiver string
	Name     string
}

// Assertion records a compile-time interface assertion such as
// `var _ Codec = (*JSON)(nil)`.
type Assertion struct {
	Type      string
	Interface string
	Location  diag.Location
}

// ScanResult holds everything found in one file.
type ScanResult struct {
	// Path is the file path relative to the scan root.
	Path string

	// Hash is the content hash, used to skip unchanged files.
	Hash string

	// Language is the registered scanner name.
	Language string

	// Package is the package (Go import path or Java package name).
	Package string

	Declarations []Declaration
	Types        []TypeInfo
	Methods      []Method
	Assertions   []Assertion
}

// ComputeHash computes a SHA256 hash of the given content
func ComputeHash(content []byte) string {
	h := sha256.Sum256(content)
	return hex.EncodeToString(h[:8]) // First 8 bytes for brevity
}
