package scanner

import (
	"slices"
)

// Assignability is the answer a TypeModel gives about whether an
// implementation can be used where a contract is expected.
type Assignability int

const (
	// Unknown means the model cannot decide, typically because part of
	// the type hierarchy lies outside the scanned sources.
	Unknown Assignability = iota
	Assignable
	NotAssignable
)

func (a Assignability) String() string {
	switch a {
	case Assignable:
		return "assignable"
	case NotAssignable:
		return "not assignable"
	default:
		return "unknown"
	}
}

// TypeModel answers type questions about the scanned sources.
type TypeModel interface {
	Assignable(impl, contract string) Assignability
}

// Index joins the results of scanning many files: type facts that span
// files (Go methods and interface assertions) are attached to the types
// they belong to, and the declarations are completed with them.
type Index struct {
	types   map[string]*TypeInfo
	methods map[string][]string
	decls   []Declaration
}

// BuildIndex indexes scan results. Results are processed in path order so
// the interface order of a declaration does not depend on the caller.
func BuildIndex(results []*ScanResult) *Index {
	sorted := make([]*ScanResult, 0, len(results))
	for _, r := range results {
		if r != nil {
			sorted = append(sorted, r)
		}
	}
	slices.SortStableFunc(sorted, func(a, b *ScanResult) int {
		if a.Path < b.Path {
			return -1
		}
		if a.Path > b.Path {
			return 1
		}
		return 0
	})

	ix := &Index{
		types:   make(map[string]*TypeInfo),
		methods: make(map[string][]string),
	}

	for _, r := range sorted {
		for i := range r.Types {
			t := r.Types[i]
			if _, exists := ix.types[t.Name]; exists {
				continue
			}
			t.Interfaces = slices.Clone(t.Interfaces)
			ix.types[t.Name] = &t
		}
		for _, m := range r.Methods {
			ix.methods[m.Receiver] = append(ix.methods[m.Receiver], m.Name)
		}
	}

	for _, r := range sorted {
		for _, a := range r.Assertions {
			t, ok := ix.types[a.Type]
			if !ok || slices.Contains(t.Interfaces, a.Interface) {
				continue
			}
			t.Interfaces = append(t.Interfaces, a.Interface)
		}
	}

	for _, r := range sorted {
		for _, d := range r.Declarations {
			if t, ok := ix.types[d.Name]; ok {
				d.Supertype = t.Supertype
				d.Interfaces = slices.Clone(t.Interfaces)
			}
			ix.decls = append(ix.decls, d)
		}
	}

	return ix
}

// Declarations returns the completed declarations in path order.
func (ix *Index) Declarations() []Declaration {
	return ix.decls
}

// DeclarationsIn returns the declarations located in the given files,
// completed with facts from every indexed file.
func (ix *Index) DeclarationsIn(paths []string) []Declaration {
	want := make(map[string]bool, len(paths))
	for _, p := range paths {
		want[p] = true
	}
	var out []Declaration
	for _, d := range ix.decls {
		if want[d.Location.File] {
			out = append(out, d)
		}
	}
	return out
}

// Assignable reports whether impl can stand in for contract. A declared
// path (supertype, interfaces, embedded types) from impl to contract
// proves it. For structural types the method set is compared against an
// interface contract. Anything that reaches outside the index is Unknown.
func (ix *Index) Assignable(impl, contract string) Assignability {
	if impl == contract {
		return Assignable
	}
	implType, ok := ix.types[impl]
	if !ok {
		return Unknown
	}

	incomplete := false
	seen := map[string]bool{}
	queue := []string{impl}
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		if seen[name] {
			continue
		}
		seen[name] = true
		if name == contract {
			return Assignable
		}

		t, ok := ix.types[name]
		if !ok {
			incomplete = true
			continue
		}
		if t.Supertype != "" {
			queue = append(queue, t.Supertype)
		}
		queue = append(queue, t.Interfaces...)
		queue = append(queue, t.Embeds...)
	}

	contractType, ok := ix.types[contract]
	if !ok {
		return Unknown
	}

	if contractType.Interface && implType.Structural {
		required, reqComplete := ix.interfaceMethods(contract, map[string]bool{})
		have, haveComplete := ix.methodSet(impl, map[string]bool{})
		missing := false
		for _, m := range required {
			if !have[m] {
				missing = true
				break
			}
		}
		switch {
		case !missing && reqComplete:
			return Assignable
		case !reqComplete || !haveComplete:
			return Unknown
		default:
			return NotAssignable
		}
	}

	if incomplete {
		return Unknown
	}
	return NotAssignable
}

// methodSet returns the method names of a concrete type including those
// promoted from known embedded types. complete is false when some
// embedded type is outside the index.
func (ix *Index) methodSet(name string, seen map[string]bool) (map[string]bool, bool) {
	set := map[string]bool{}
	if seen[name] {
		return set, true
	}
	seen[name] = true

	t, ok := ix.types[name]
	if !ok {
		return set, false
	}

	complete := true
	for _, m := range ix.methods[name] {
		set[m] = true
	}
	if t.Interface {
		for _, m := range t.Methods {
			set[m] = true
		}
	}
	for _, e := range t.Embeds {
		promoted, ok := ix.methodSet(e, seen)
		if !ok {
			complete = false
		}
		for m := range promoted {
			set[m] = true
		}
	}
	return set, complete
}

// interfaceMethods returns the full method list of an interface,
// following embedded interfaces.
func (ix *Index) interfaceMethods(name string, seen map[string]bool) ([]string, bool) {
	if seen[name] {
		return nil, true
	}
	seen[name] = true

	t, ok := ix.types[name]
	if !ok || !t.Interface {
		return nil, false
	}

	complete := true
	methods := slices.Clone(t.Methods)
	for _, e := range t.Interfaces {
		more, ok := ix.interfaceMethods(e, seen)
		if !ok {
			complete = false
		}
		methods = append(methods, more...)
	}
	return methods, complete
}
