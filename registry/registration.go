// Package registry implements the service registry files: the in-memory
// registration model, the line-oriented file format with priority markers,
// and the merge of freshly discovered registrations into existing ones.
package registry

import (
	"cmp"
	"slices"
)

// Registration is one implementation registered under a contract.
// Registrations are identified by Name alone; Priority is an attribute.
type Registration struct {
	// Name is the fully-qualified binary name of the implementation.
	Name string

	// Priority orders registrations; higher values come first.
	Priority int
}

// Registrations maps implementation name to its registration for one contract.
type Registrations map[string]Registration

// Registry maps contract name to the registrations for that contract.
type Registry map[string]Registrations

// Compare orders registrations by descending priority, then by ascending
// name. It is the order registry files are written in.
func Compare(a, b Registration) int {
	if c := cmp.Compare(b.Priority, a.Priority); c != 0 {
		return c
	}
	return cmp.Compare(a.Name, b.Name)
}

// Sorted returns the registrations in Compare order.
func Sorted(regs Registrations) []Registration {
	out := make([]Registration, 0, len(regs))
	for _, r := range regs {
		out = append(out, r)
	}
	slices.SortFunc(out, Compare)
	return out
}

// Add records a registration, replacing any previous one with the same name.
func (r Registrations) Add(name string, priority int) {
	r[name] = Registration{Name: name, Priority: priority}
}

// Clone returns a shallow copy.
func (r Registrations) Clone() Registrations {
	out := make(Registrations, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Add records a registration under a contract, creating the contract's
// entry on first use. A later registration with the same name wins.
func (r Registry) Add(contract, name string, priority int) {
	regs, ok := r[contract]
	if !ok {
		regs = make(Registrations)
		r[contract] = regs
	}
	regs.Add(name, priority)
}

// Contracts returns the contract names in ascending order.
func (r Registry) Contracts() []string {
	names := make([]string, 0, len(r))
	for name := range r {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
