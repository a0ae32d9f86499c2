// Package java scans Java source files for @MetaInfServices annotations
// using tree-sitter.
package java

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"unicode"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/java"

	"github.com/c360studio/metainf/diag"
	"github.com/c360studio/metainf/scanner"
)

// Annotation is the qualified name of the service annotation.
const Annotation = "org.kohsuke.MetaInfServices"

func init() {
	scanner.DefaultRegistry.Register("java", []string{".java"},
		func(root string) scanner.FileScanner {
			return NewScanner(root)
		})
}

// javaLang lists the java.lang types resolvable without an import.
var javaLang = map[string]bool{
	"Object": true, "String": true, "Runnable": true, "Comparable": true,
	"Iterable": true, "AutoCloseable": true, "Cloneable": true,
	"CharSequence": true, "Enum": true, "Record": true, "Thread": true,
	"Number": true, "Throwable": true, "Exception": true, "Error": true,
	"RuntimeException": true, "Readable": true, "Appendable": true,
	"Integer": true, "Long": true, "Short": true, "Byte": true,
	"Character": true, "Boolean": true, "Double": true, "Float": true,
	"Void": true, "Class": true, "ClassLoader": true, "Process": true,
}

// trivial supertypes never serve as an inferred contract.
var trivial = map[string]bool{
	"java.lang.Object": true,
	"java.lang.Enum":   true,
	"java.lang.Record": true,
}

// Scanner extracts service declarations from Java source files.
type Scanner struct {
	root   string
	parser *sitter.Parser
}

// NewScanner creates a new Java scanner.
func NewScanner(root string) *Scanner {
	p := sitter.NewParser()
	p.SetLanguage(java.GetLanguage())
	return &Scanner{
		root:   root,
		parser: p,
	}
}

// unit holds the per-file state used to resolve type names.
type unit struct {
	content  []byte
	relPath  string
	pkg      string
	imports  map[string]string // simple name → binary name
	declared map[string]string // simple name → binary name of types in this file
	result   *scanner.ScanResult
}

// ScanFile parses a single Java file.
func (s *Scanner) ScanFile(ctx context.Context, filePath string) (*scanner.ScanResult, error) {
	content, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	relPath, err := filepath.Rel(s.root, filePath)
	if err != nil {
		relPath = filePath
	}

	tree, err := s.parser.ParseCtx(ctx, nil, content)
	if err != nil {
		return nil, fmt.Errorf("parse file: %w", err)
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.HasError() {
		return nil, fmt.Errorf("parse file: syntax error")
	}

	u := &unit{
		content:  content,
		relPath:  relPath,
		imports:  make(map[string]string),
		declared: make(map[string]string),
		result: &scanner.ScanResult{
			Path: relPath,
			Hash: scanner.ComputeHash(content),
		},
	}

	for i := 0; i < int(root.NamedChildCount()); i++ {
		child := root.NamedChild(i)
		switch child.Type() {
		case "package_declaration":
			u.pkg = u.packageName(child)
		case "import_declaration":
			u.addImport(child)
		}
	}
	u.result.Package = u.pkg

	// Declared names first, so references to types declared later in the
	// file resolve.
	u.eachType(root, u.binaryPrefix(), func(n *sitter.Node, name string) {
		simple := u.text(n.ChildByFieldName("name"))
		if _, ok := u.declared[simple]; !ok {
			u.declared[simple] = name
		}
	})

	u.eachType(root, u.binaryPrefix(), func(n *sitter.Node, name string) {
		info := u.typeInfo(n, name)
		u.result.Types = append(u.result.Types, info)
		if decl, ok := u.declaration(n, info); ok {
			u.result.Declarations = append(u.result.Declarations, decl)
		}
	})

	return u.result, nil
}

func (u *unit) text(n *sitter.Node) string {
	if n == nil {
		return ""
	}
	return string(u.content[n.StartByte():n.EndByte()])
}

func (u *unit) binaryPrefix() string {
	if u.pkg == "" {
		return ""
	}
	return u.pkg + "."
}

func (u *unit) packageName(n *sitter.Node) string {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		if child.Type() == "scoped_identifier" || child.Type() == "identifier" {
			return u.text(child)
		}
	}
	return ""
}

// addImport records single-type imports. Static and on-demand imports are
// ignored.
func (u *unit) addImport(n *sitter.Node) {
	for i := 0; i < int(n.ChildCount()); i++ {
		switch n.Child(i).Type() {
		case "static", "asterisk":
			return
		}
	}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		if child.Type() != "scoped_identifier" {
			continue
		}
		qualified := u.text(child)
		simple := qualified[strings.LastIndex(qualified, ".")+1:]
		u.imports[simple] = binaryName(qualified)
	}
}

// eachType calls fn for every type declaration under n, nested ones
// included, with its binary name.
func (u *unit) eachType(n *sitter.Node, prefix string, fn func(*sitter.Node, string)) {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		switch child.Type() {
		case "class_declaration", "interface_declaration", "enum_declaration",
			"record_declaration", "annotation_type_declaration":
			nameNode := child.ChildByFieldName("name")
			if nameNode == nil {
				continue
			}
			name := prefix + u.text(nameNode)
			fn(child, name)
			if body := child.ChildByFieldName("body"); body != nil {
				u.eachType(body, name+"$", fn)
			}
		case "enum_body_declarations":
			u.eachType(child, prefix, fn)
		}
	}
}

// typeInfo collects the declared supertype and interfaces of a type.
func (u *unit) typeInfo(n *sitter.Node, name string) scanner.TypeInfo {
	info := scanner.TypeInfo{Name: name}

	switch n.Type() {
	case "class_declaration":
		if sc := n.ChildByFieldName("superclass"); sc != nil && sc.NamedChildCount() > 0 {
			super, _ := u.resolve(sc.NamedChild(0))
			if !trivial[super] {
				info.Supertype = super
			}
		}
		info.Interfaces = u.typeList(n.ChildByFieldName("interfaces"))

	case "interface_declaration":
		info.Interface = true
		for i := 0; i < int(n.NamedChildCount()); i++ {
			if child := n.NamedChild(i); child.Type() == "extends_interfaces" {
				info.Interfaces = u.typeList(child)
			}
		}

	case "enum_declaration", "record_declaration":
		info.Interfaces = u.typeList(n.ChildByFieldName("interfaces"))

	case "annotation_type_declaration":
		info.Interface = true
		info.Interfaces = []string{"java.lang.annotation.Annotation"}
	}

	return info
}

// typeList resolves the types of an implements or extends clause.
func (u *unit) typeList(n *sitter.Node) []string {
	if n == nil {
		return nil
	}
	var out []string
	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		if child.Type() == "type_list" {
			out = append(out, u.typeList(child)...)
			continue
		}
		if name, ok := u.resolve(child); ok {
			out = append(out, name)
		}
	}
	return out
}

// resolve returns the binary name of a type node. declared is false for
// primitive, array and void types.
func (u *unit) resolve(n *sitter.Node) (name string, declared bool) {
	switch n.Type() {
	case "type_identifier":
		return u.resolveSimple(u.text(n)), true
	case "scoped_type_identifier":
		return u.resolveQualified(u.text(n)), true
	case "generic_type":
		if n.NamedChildCount() > 0 {
			return u.resolve(n.NamedChild(0))
		}
	case "annotated_type":
		// @Nullable Foo: the type is the last named child
		if c := n.NamedChildCount(); c > 0 {
			return u.resolve(n.NamedChild(int(c) - 1))
		}
	}
	return u.text(n), false
}

// resolveSimple resolves an unqualified type name.
func (u *unit) resolveSimple(simple string) string {
	if name, ok := u.declared[simple]; ok {
		return name
	}
	if name, ok := u.imports[simple]; ok {
		return name
	}
	if javaLang[simple] {
		return "java.lang." + simple
	}
	return u.binaryPrefix() + simple
}

// resolveQualified resolves a dotted type name such as Outer.Inner or
// java.util.Map.Entry.
func (u *unit) resolveQualified(qualified string) string {
	qualified = strings.Join(strings.Fields(qualified), "")
	first, rest, _ := strings.Cut(qualified, ".")
	if startsLower(first) {
		return binaryName(qualified)
	}
	return u.resolveSimple(first) + "$" + strings.ReplaceAll(rest, ".", "$")
}

// binaryName converts a canonical name to a binary name, assuming package
// segments are lower case: a.b.Outer.Inner → a.b.Outer$Inner.
func binaryName(qualified string) string {
	parts := strings.Split(qualified, ".")
	var b strings.Builder
	inType := false
	for i, p := range parts {
		if i > 0 {
			if inType {
				b.WriteByte('$')
			} else {
				b.WriteByte('.')
			}
		}
		b.WriteString(p)
		if !startsLower(p) {
			inType = true
		}
	}
	return b.String()
}

func startsLower(s string) bool {
	for _, r := range s {
		return unicode.IsLower(r)
	}
	return false
}

// declaration returns the service declaration of a type annotated with
// @MetaInfServices.
func (u *unit) declaration(n *sitter.Node, info scanner.TypeInfo) (scanner.Declaration, bool) {
	ann := u.annotation(n)
	if ann == nil {
		return scanner.Declaration{}, false
	}

	decl := scanner.Declaration{
		Name:       info.Name,
		Supertype:  info.Supertype,
		Interfaces: info.Interfaces,
		Location: diag.Location{
			File: u.relPath,
			Line: int(n.StartPoint().Row) + 1,
		},
	}
	if err := u.applyArguments(&decl, ann.ChildByFieldName("arguments")); err != nil {
		decl.Malformed = err
	}
	return decl, true
}

// annotation finds the service annotation among the modifiers of n.
func (u *unit) annotation(n *sitter.Node) *sitter.Node {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		mods := n.NamedChild(i)
		if mods.Type() != "modifiers" {
			continue
		}
		for j := 0; j < int(mods.NamedChildCount()); j++ {
			ann := mods.NamedChild(j)
			if ann.Type() != "annotation" && ann.Type() != "marker_annotation" {
				continue
			}
			if u.isServiceAnnotation(u.text(ann.ChildByFieldName("name"))) {
				return ann
			}
		}
	}
	return nil
}

func (u *unit) isServiceAnnotation(name string) bool {
	if name == Annotation {
		return true
	}
	if name != "MetaInfServices" {
		return false
	}
	imported, ok := u.imports[name]
	return !ok || imported == Annotation
}

// applyArguments decodes `(X.class)`, `(value = X.class, priority = N)`.
func (u *unit) applyArguments(decl *scanner.Declaration, args *sitter.Node) error {
	if args == nil {
		return nil
	}
	for i := 0; i < int(args.NamedChildCount()); i++ {
		arg := args.NamedChild(i)
		switch arg.Type() {
		case "line_comment", "block_comment":
			continue
		}
		if arg.Type() != "element_value_pair" {
			ref, err := u.contract(arg)
			if err != nil {
				return err
			}
			decl.Contract = ref
			continue
		}

		key := u.text(arg.ChildByFieldName("key"))
		value := arg.ChildByFieldName("value")
		if value == nil {
			return fmt.Errorf("missing value for %s", key)
		}
		switch key {
		case "value":
			ref, err := u.contract(value)
			if err != nil {
				return err
			}
			decl.Contract = ref
		case "priority":
			p, err := parseInt(u.text(value))
			if err != nil {
				return fmt.Errorf("invalid priority %q: must be an integer literal", u.text(value))
			}
			decl.Priority = p
		default:
			return fmt.Errorf("unknown annotation element %q", key)
		}
	}
	return nil
}

// contract resolves a class literal.
func (u *unit) contract(n *sitter.Node) (*scanner.ContractRef, error) {
	if n.Type() != "class_literal" || n.NamedChildCount() == 0 {
		return nil, fmt.Errorf("contract %q is not a class literal", u.text(n))
	}
	name, declared := u.resolve(n.NamedChild(0))
	return &scanner.ContractRef{
		Name:     name,
		Expr:     u.text(n),
		Declared: declared,
	}, nil
}

// parseInt parses a Java int literal, with an optional sign.
func parseInt(lit string) (int, error) {
	lit = strings.Map(func(r rune) rune {
		if r == '_' || unicode.IsSpace(r) {
			return -1
		}
		return r
	}, lit)
	lit = strings.TrimSuffix(strings.TrimSuffix(lit, "L"), "l")
	v, err := strconv.ParseInt(lit, 0, 32)
	if err != nil {
		return 0, err
	}
	return int(v), nil
}
