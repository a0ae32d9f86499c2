// Package golang scans Go source files for service directives.
//
// A type is declared as a service implementation with a directive comment:
//
//	//metainf:service contract=codec.Codec priority=10
//	type JSON struct{}
//
// The contract may be a local type, an import-qualified type or a full
// import path followed by the type name. Without a contract it is inferred
// from the type's single embedded type or from its interface assertions
// (var _ codec.Codec = (*JSON)(nil)).
package golang

import (
	"context"
	"errors"
	"fmt"
	goast "go/ast"
	"go/parser"
	"go/token"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/mod/modfile"

	"github.com/c360studio/metainf/diag"
	"github.com/c360studio/metainf/scanner"
)

// Directive is the comment prefix marking a service implementation.
const Directive = "//metainf:service"

func init() {
	scanner.DefaultRegistry.Register("go", []string{".go"},
		func(root string) scanner.FileScanner {
			return NewScanner(root)
		})
}

// predeclared types never name a contract, with the exception of error.
var predeclared = map[string]bool{
	"any": true, "bool": true, "byte": true, "comparable": true,
	"complex64": true, "complex128": true, "float32": true, "float64": true,
	"int": true, "int8": true, "int16": true, "int32": true, "int64": true,
	"rune": true, "string": true, "uint": true, "uint8": true, "uint16": true,
	"uint32": true, "uint64": true, "uintptr": true,
}

// Scanner extracts service declarations and type facts from Go files.
type Scanner struct {
	// root is the directory paths are reported relative to
	root string

	// modules caches the module of each directory seen so far
	mu      sync.Mutex
	modules map[string]module
}

type module struct {
	path string // module path, empty when no go.mod was found
	dir  string // directory holding go.mod
}

// NewScanner creates a new Go scanner
func NewScanner(root string) *Scanner {
	return &Scanner{
		root:    root,
		modules: make(map[string]module),
	}
}

// fileScope holds per-file state used while resolving type expressions.
type fileScope struct {
	pkgPath string
	imports map[string]string // local name → import path
	fset    *token.FileSet
	relPath string
}

// ScanFile parses a single Go file.
func (s *Scanner) ScanFile(ctx context.Context, filePath string) (*scanner.ScanResult, error) {
	content, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	relPath, err := filepath.Rel(s.root, filePath)
	if err != nil {
		relPath = filePath
	}

	result := &scanner.ScanResult{
		Path: relPath,
		Hash: scanner.ComputeHash(content),
	}

	// Test files never contribute registrations.
	if strings.HasSuffix(filePath, "_test.go") {
		return result, nil
	}

	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, filePath, content, parser.ParseComments)
	if err != nil {
		return nil, fmt.Errorf("parse file: %w", err)
	}

	scope := &fileScope{
		pkgPath: s.importPath(filepath.Dir(filePath), file.Name.Name),
		imports: make(map[string]string),
		fset:    fset,
		relPath: relPath,
	}
	result.Package = scope.pkgPath

	for _, imp := range file.Imports {
		importPath, err := strconv.Unquote(imp.Path.Value)
		if err != nil {
			continue
		}
		var localName string
		if imp.Name != nil {
			if imp.Name.Name == "_" || imp.Name.Name == "." {
				continue
			}
			localName = imp.Name.Name
		} else {
			localName = path.Base(importPath)
		}
		scope.imports[localName] = importPath
	}

	for _, decl := range file.Decls {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		switch d := decl.(type) {
		case *goast.FuncDecl:
			if m, ok := scope.method(d); ok {
				result.Methods = append(result.Methods, m)
			}
		case *goast.GenDecl:
			switch d.Tok {
			case token.TYPE:
				for _, spec := range d.Specs {
					ts, ok := spec.(*goast.TypeSpec)
					if !ok {
						continue
					}
					doc := ts.Doc
					if doc == nil && len(d.Specs) == 1 {
						doc = d.Doc
					}
					info := scope.typeInfo(ts)
					result.Types = append(result.Types, info)
					result.Declarations = append(result.Declarations, scope.declarations(ts, doc, info)...)
				}
			case token.VAR:
				for _, spec := range d.Specs {
					if vs, ok := spec.(*goast.ValueSpec); ok {
						result.Assertions = append(result.Assertions, scope.assertions(vs)...)
					}
				}
			}
		}
	}

	return result, nil
}

// typeInfo records the facts needed for contract inference and
// assignability.
func (f *fileScope) typeInfo(ts *goast.TypeSpec) scanner.TypeInfo {
	info := scanner.TypeInfo{
		Name:       f.qualify(ts.Name.Name),
		Structural: true,
	}

	switch t := ts.Type.(type) {
	case *goast.StructType:
		for _, field := range t.Fields.List {
			if len(field.Names) > 0 {
				continue
			}
			embed := field.Type
			if star, ok := embed.(*goast.StarExpr); ok {
				embed = star.X
			}
			if name, ok := f.resolve(embed); ok {
				info.Embeds = append(info.Embeds, name)
			}
		}
		if len(info.Embeds) == 1 {
			info.Supertype = info.Embeds[0]
		}

	case *goast.InterfaceType:
		info.Interface = true
		for _, field := range t.Methods.List {
			if len(field.Names) > 0 {
				for _, n := range field.Names {
					info.Methods = append(info.Methods, n.Name)
				}
				continue
			}
			// Embedded interface; type set unions and ~T terms are skipped
			if name, ok := f.resolve(field.Type); ok {
				info.Embeds = append(info.Embeds, name)
				info.Interfaces = append(info.Interfaces, name)
			}
		}
	}

	return info
}

// declarations parses the service directives attached to a type.
func (f *fileScope) declarations(ts *goast.TypeSpec, doc *goast.CommentGroup, info scanner.TypeInfo) []scanner.Declaration {
	if doc == nil {
		return nil
	}

	var decls []scanner.Declaration
	for _, c := range doc.List {
		args, ok := directiveArgs(c.Text)
		if !ok {
			continue
		}
		decl := scanner.Declaration{
			Name:       info.Name,
			Supertype:  info.Supertype,
			Interfaces: info.Interfaces,
			Location: diag.Location{
				File: f.relPath,
				Line: f.fset.Position(ts.Name.Pos()).Line,
			},
		}
		if err := f.applyArgs(&decl, args); err != nil {
			decl.Malformed = err
		}
		decls = append(decls, decl)
	}
	return decls
}

// directiveArgs returns the argument text of a directive comment.
func directiveArgs(comment string) (string, bool) {
	rest, ok := strings.CutPrefix(comment, Directive)
	if !ok {
		return "", false
	}
	// Reject longer names such as //metainf:services
	if rest != "" && rest[0] != ' ' && rest[0] != '\t' {
		return "", false
	}
	return strings.TrimSpace(rest), true
}

// applyArgs decodes `key=value` directive arguments into decl.
func (f *fileScope) applyArgs(decl *scanner.Declaration, args string) error {
	seen := make(map[string]bool)
	for _, field := range strings.Fields(args) {
		key, value, ok := strings.Cut(field, "=")
		if !ok || value == "" {
			return fmt.Errorf("invalid directive argument %q, expected key=value", field)
		}
		if seen[key] {
			return fmt.Errorf("duplicate directive argument %q", key)
		}
		seen[key] = true

		switch key {
		case "contract":
			ref, err := f.contract(value)
			if err != nil {
				return err
			}
			decl.Contract = ref
		case "priority":
			p, err := strconv.ParseInt(value, 0, 0)
			if err != nil {
				return fmt.Errorf("invalid priority %q: %w", value, errors.Unwrap(err))
			}
			decl.Priority = int(p)
		default:
			return fmt.Errorf("unknown directive argument %q", key)
		}
	}
	return nil
}

// contract resolves the contract named in a directive.
func (f *fileScope) contract(expr string) (*scanner.ContractRef, error) {
	// Full import path: github.com/acme/codec.Codec
	if strings.Contains(expr, "/") {
		dot := strings.LastIndex(expr, ".")
		slash := strings.LastIndex(expr, "/")
		if dot < slash || dot == len(expr)-1 {
			return nil, fmt.Errorf("invalid contract %q", expr)
		}
		return &scanner.ContractRef{Name: expr, Expr: expr, Declared: true}, nil
	}

	x, err := parser.ParseExpr(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid contract %q", expr)
	}
	name, declared := f.resolve(x)
	if name == "" {
		name = expr
	}
	return &scanner.ContractRef{Name: name, Expr: expr, Declared: declared}, nil
}

// resolve returns the qualified name of a named type expression. declared
// is false for predeclared and composite types.
func (f *fileScope) resolve(expr goast.Expr) (name string, declared bool) {
	switch t := expr.(type) {
	case *goast.Ident:
		if t.Name == "error" {
			return "error", true
		}
		if predeclared[t.Name] {
			return t.Name, false
		}
		return f.qualify(t.Name), true
	case *goast.SelectorExpr:
		x, ok := t.X.(*goast.Ident)
		if !ok {
			return "", false
		}
		if importPath, ok := f.imports[x.Name]; ok {
			return importPath + "." + t.Sel.Name, true
		}
		// Unresolved package; keep the qualifier as written
		return x.Name + "." + t.Sel.Name, true
	case *goast.ParenExpr:
		return f.resolve(t.X)
	case *goast.IndexExpr:
		// Generic instantiation: Codec[T]
		return f.resolve(t.X)
	case *goast.IndexListExpr:
		return f.resolve(t.X)
	}
	return "", false
}

// qualify turns a package-local type name into a qualified name.
func (f *fileScope) qualify(name string) string {
	if f.pkgPath == "" {
		return name
	}
	return f.pkgPath + "." + name
}

// method records a method and its receiver type.
func (f *fileScope) method(fn *goast.FuncDecl) (scanner.Method, bool) {
	if fn.Recv == nil || len(fn.Recv.List) == 0 {
		return scanner.Method{}, false
	}
	recv := fn.Recv.List[0].Type
	if star, ok := recv.(*goast.StarExpr); ok {
		recv = star.X
	}
	name, ok := f.resolve(recv)
	if !ok {
		return scanner.Method{}, false
	}
	return scanner.Method{Receiver: name, Name: fn.Name.Name}, true
}

// assertions extracts interface assertions of the form
// `var _ I = T{}`, `&T{}`, `(*T)(nil)` or `new(T)`.
func (f *fileScope) assertions(vs *goast.ValueSpec) []scanner.Assertion {
	if vs.Type == nil || len(vs.Values) != len(vs.Names) {
		return nil
	}
	iface, ok := f.resolve(vs.Type)
	if !ok {
		return nil
	}

	var out []scanner.Assertion
	for i, n := range vs.Names {
		if n.Name != "_" {
			continue
		}
		typ, ok := f.assertedType(vs.Values[i])
		if !ok {
			continue
		}
		out = append(out, scanner.Assertion{
			Type:      typ,
			Interface: iface,
			Location: diag.Location{
				File: f.relPath,
				Line: f.fset.Position(n.Pos()).Line,
			},
		})
	}
	return out
}

func (f *fileScope) assertedType(value goast.Expr) (string, bool) {
	switch v := value.(type) {
	case *goast.CompositeLit:
		return f.resolve(v.Type)
	case *goast.UnaryExpr:
		if lit, ok := v.X.(*goast.CompositeLit); ok && v.Op == token.AND {
			return f.resolve(lit.Type)
		}
	case *goast.CallExpr:
		if len(v.Args) != 1 {
			return "", false
		}
		// new(T)
		if id, ok := v.Fun.(*goast.Ident); ok && id.Name == "new" {
			return f.resolve(v.Args[0])
		}
		// (*T)(nil)
		if paren, ok := v.Fun.(*goast.ParenExpr); ok {
			if star, ok := paren.X.(*goast.StarExpr); ok {
				return f.resolve(star.X)
			}
		}
	}
	return "", false
}

// importPath computes the import path of the package in dir from the
// nearest go.mod. Without one it falls back to the directory relative to
// the scan root, or the package name.
func (s *Scanner) importPath(dir, pkgName string) string {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return pkgName
	}

	mod := s.moduleFor(dir)
	if mod.path != "" {
		rel, err := filepath.Rel(mod.dir, dir)
		if err != nil || rel == "." {
			return mod.path
		}
		return mod.path + "/" + filepath.ToSlash(rel)
	}

	root, err := filepath.Abs(s.root)
	if err != nil {
		return pkgName
	}
	rel, err := filepath.Rel(root, dir)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return pkgName
	}
	return filepath.ToSlash(rel)
}

// moduleFor finds the module containing dir, walking up to the
// filesystem root.
func (s *Scanner) moduleFor(dir string) module {
	s.mu.Lock()
	defer s.mu.Unlock()

	var visited []string
	mod := module{}
	for d := dir; ; d = filepath.Dir(d) {
		if cached, ok := s.modules[d]; ok {
			mod = cached
			break
		}
		visited = append(visited, d)

		data, err := os.ReadFile(filepath.Join(d, "go.mod"))
		if err == nil {
			if modPath := modfile.ModulePath(data); modPath != "" {
				mod = module{path: modPath, dir: d}
				break
			}
		}

		if parent := filepath.Dir(d); parent == d {
			break
		}
	}

	for _, d := range visited {
		s.modules[d] = mod
	}
	return mod
}
