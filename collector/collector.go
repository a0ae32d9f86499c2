// Package collector groups service declarations by contract.
//
// A declaration with an explicit contract is checked for a usable contract
// type and assignability. A declaration without one has its contract
// inferred from exactly one of its supertype or its interfaces. Rejected
// declarations are reported to a diag.Sink and left out; they never stop
// the others from being collected.
package collector

import (
	"log/slog"

	"github.com/c360studio/metainf/diag"
	"github.com/c360studio/metainf/registry"
	"github.com/c360studio/metainf/scanner"
)

// Rejection is a declaration the collector refused.
type Rejection struct {
	Declaration scanner.Declaration
	Err         error
}

// Collector accumulates registrations over one or more batches of
// declarations.
type Collector struct {
	sink     diag.Sink
	logger   *slog.Logger
	registry registry.Registry
	rejected []Rejection
}

// New creates an empty collector.
func New(sink diag.Sink, logger *slog.Logger) *Collector {
	if sink == nil {
		sink = diag.Discard
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Collector{
		sink:     sink,
		logger:   logger,
		registry: make(registry.Registry),
	}
}

// Collect adds a batch of declarations. model answers assignability
// questions for explicit contracts; nil means nothing can be checked.
// It returns the number of accepted declarations.
func (c *Collector) Collect(decls []scanner.Declaration, model scanner.TypeModel) int {
	accepted := 0
	for _, decl := range decls {
		contract, err := c.contractOf(decl, model)
		if err != nil {
			c.reject(decl, err)
			continue
		}
		// Later declarations of the same name replace earlier ones
		c.registry.Add(contract, decl.Name, decl.Priority)
		accepted++
	}
	return accepted
}

// Registry returns the registrations collected so far.
func (c *Collector) Registry() registry.Registry {
	return c.registry
}

// Rejected returns every rejection so far.
func (c *Collector) Rejected() []Rejection {
	return c.rejected
}

// Reset forgets everything collected.
func (c *Collector) Reset() {
	c.registry = make(registry.Registry)
	c.rejected = nil
}

func (c *Collector) contractOf(decl scanner.Declaration, model scanner.TypeModel) (string, error) {
	if decl.Malformed != nil {
		return "", &InvalidContractError{Implementation: decl.Name, Err: decl.Malformed}
	}
	if decl.Contract != nil {
		return c.explicit(decl, model)
	}
	return infer(decl)
}

// explicit validates an explicitly named contract.
func (c *Collector) explicit(decl scanner.Declaration, model scanner.TypeModel) (string, error) {
	contract := decl.Contract
	if !contract.Declared {
		return "", &InvalidContractError{
			Implementation: decl.Name,
			Contract:       contract.Expr,
			Err:            ErrNotDeclaredType,
		}
	}

	check := scanner.Unknown
	if model != nil {
		check = model.Assignable(decl.Name, contract.Name)
	}
	switch check {
	case scanner.NotAssignable:
		return "", &InvalidContractError{
			Implementation: decl.Name,
			Contract:       contract.Name,
			Err:            ErrNotAssignable,
		}
	case scanner.Unknown:
		c.logger.Debug("Assignability not verified",
			"implementation", decl.Name,
			"contract", contract.Name)
	}
	return contract.Name, nil
}

// infer picks the contract of a declaration without an explicit one.
func infer(decl scanner.Declaration) (string, error) {
	hasSupertype := decl.Supertype != ""
	hasInterfaces := len(decl.Interfaces) > 0
	if hasSupertype == hasInterfaces {
		return "", &ContractInferenceError{
			Implementation: decl.Name,
			Supertype:      decl.Supertype,
			Interfaces:     decl.Interfaces,
		}
	}
	if hasSupertype {
		return decl.Supertype, nil
	}
	return decl.Interfaces[0], nil
}

func (c *Collector) reject(decl scanner.Declaration, err error) {
	c.rejected = append(c.rejected, Rejection{Declaration: decl, Err: err})
	diag.Errorf(c.sink, decl.Location, "%v", err)
}

// Collect is a convenience wrapper that collects one batch into a fresh
// registry.
func Collect(decls []scanner.Declaration, model scanner.TypeModel, sink diag.Sink) (registry.Registry, []Rejection) {
	c := New(sink, nil)
	c.Collect(decls, model)
	return c.Registry(), c.Rejected()
}
