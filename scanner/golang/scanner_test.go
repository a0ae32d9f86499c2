package golang

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/metainf/scanner"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0644))
	return p
}

func scan(t *testing.T, root, file string) *scanner.ScanResult {
	t.Helper()
	result, err := NewScanner(root).ScanFile(context.Background(), file)
	require.NoError(t, err)
	return result
}

func TestScanFile_Directive(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "go.mod", "module example.com/shop\n\ngo 1.22\n")
	file := writeFile(t, root, "payment/card.go", `package payment

import (
	"io"

	pay "example.com/shop/api"
)

//metainf:service contract=pay.Processor priority=10
type Card struct{}

// Cash pays in cash.
//
//metainf:service
type Cash struct {
	Base
}

type Base struct{}

//metainf:service contract=io.Reader
type Stream struct{}

//metainf:service contract=example.com/shop/api.Refunder priority=-3
type Refund struct{}
`)

	result := scan(t, root, file)
	assert.Equal(t, "payment/card.go", result.Path)
	assert.Equal(t, "example.com/shop/payment", result.Package)
	assert.NotEmpty(t, result.Hash)
	require.Len(t, result.Declarations, 4)

	card := result.Declarations[0]
	assert.Equal(t, "example.com/shop/payment.Card", card.Name)
	require.NotNil(t, card.Contract)
	assert.Equal(t, "example.com/shop/api.Processor", card.Contract.Name)
	assert.Equal(t, "pay.Processor", card.Contract.Expr)
	assert.True(t, card.Contract.Declared)
	assert.Equal(t, 10, card.Priority)
	assert.Equal(t, 10, card.Location.Line)
	assert.Equal(t, "payment/card.go", card.Location.File)
	assert.NoError(t, card.Malformed)

	cash := result.Declarations[1]
	assert.Equal(t, "example.com/shop/payment.Cash", cash.Name)
	assert.Nil(t, cash.Contract)
	assert.Equal(t, 0, cash.Priority)
	assert.Equal(t, "example.com/shop/payment.Base", cash.Supertype)

	stream := result.Declarations[2]
	assert.Equal(t, "io.Reader", stream.Contract.Name)

	refund := result.Declarations[3]
	assert.Equal(t, "example.com/shop/api.Refunder", refund.Contract.Name)
	assert.Equal(t, -3, refund.Priority)
}

func TestScanFile_GroupedTypes(t *testing.T) {
	root := t.TempDir()
	file := writeFile(t, root, "a.go", `package a

type (
	//metainf:service contract=Codec
	JSON struct{}

	XML struct{}
)

//metainf:service contract=Codec
type (
	Ignored struct{}
	AlsoIgnored struct{}
)
`)

	result := scan(t, root, file)
	require.Len(t, result.Declarations, 1)
	assert.Equal(t, "a.JSON", result.Declarations[0].Name)
	assert.Equal(t, "a.Codec", result.Declarations[0].Contract.Name)
}

func TestScanFile_Malformed(t *testing.T) {
	root := t.TempDir()
	file := writeFile(t, root, "a.go", `package a

//metainf:service priority=high
type BadPriority struct{}

//metainf:service color=blue
type UnknownKey struct{}

//metainf:service contract
type MissingValue struct{}

//metainf:service priority=1 priority=2
type Duplicate struct{}

//metainf:service contract=[
type BadContract struct{}

//metainf:services
type NotADirective struct{}
`)

	result := scan(t, root, file)
	require.Len(t, result.Declarations, 5)
	for _, d := range result.Declarations {
		assert.Error(t, d.Malformed, d.Name)
	}
}

func TestScanFile_NonDeclaredContracts(t *testing.T) {
	root := t.TempDir()
	file := writeFile(t, root, "a.go", `package a

//metainf:service contract=int
type A struct{}

//metainf:service contract=*Codec
type B struct{}

//metainf:service contract=[]Codec
type C struct{}

//metainf:service contract=error
type D struct{}
`)

	result := scan(t, root, file)
	require.Len(t, result.Declarations, 4)
	assert.False(t, result.Declarations[0].Contract.Declared)
	assert.Equal(t, "int", result.Declarations[0].Contract.Name)
	assert.False(t, result.Declarations[1].Contract.Declared)
	assert.Equal(t, "*Codec", result.Declarations[1].Contract.Name)
	assert.False(t, result.Declarations[2].Contract.Declared)
	assert.True(t, result.Declarations[3].Contract.Declared)
	assert.Equal(t, "error", result.Declarations[3].Contract.Name)
}

func TestScanFile_TypeFacts(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "go.mod", "module example.com/m\n")
	file := writeFile(t, root, "codec/codec.go", `package codec

import "io"

type Codec interface {
	io.Closer
	Encode(v any) ([]byte, error)
	Decode(data []byte, v any) error
}

type Pair struct {
	io.Reader
	io.Writer
	name string
}

type JSON struct{}

func (j *JSON) Encode(v any) ([]byte, error) { return nil, nil }
func (j JSON) Decode(data []byte, v any) error { return nil }
func helper() {}

type Box[T any] struct{}

func (b *Box[T]) Get() T { var zero T; return zero }

var _ Codec = (*JSON)(nil)
var _ io.Closer = &JSON{}
var _ Codec = JSON{}
var _ io.Reader = new(Pair)
var notAssertion Codec = JSON{}
`)

	result := scan(t, root, file)
	require.Len(t, result.Types, 4)

	codec := result.Types[0]
	assert.Equal(t, "example.com/m/codec.Codec", codec.Name)
	assert.True(t, codec.Interface)
	assert.Equal(t, []string{"Encode", "Decode"}, codec.Methods)
	assert.Equal(t, []string{"io.Closer"}, codec.Interfaces)
	assert.Equal(t, []string{"io.Closer"}, codec.Embeds)

	pair := result.Types[1]
	assert.Equal(t, []string{"io.Reader", "io.Writer"}, pair.Embeds)
	assert.Empty(t, pair.Supertype, "two embedded types leave no unique supertype")
	assert.True(t, pair.Structural)

	assert.Equal(t, []scanner.Method{
		{Receiver: "example.com/m/codec.JSON", Name: "Encode"},
		{Receiver: "example.com/m/codec.JSON", Name: "Decode"},
		{Receiver: "example.com/m/codec.Box", Name: "Get"},
	}, result.Methods)

	require.Len(t, result.Assertions, 4)
	assert.Equal(t, "example.com/m/codec.JSON", result.Assertions[0].Type)
	assert.Equal(t, "example.com/m/codec.Codec", result.Assertions[0].Interface)
	assert.Equal(t, "io.Closer", result.Assertions[1].Interface)
	assert.Equal(t, "example.com/m/codec.JSON", result.Assertions[2].Type)
	assert.Equal(t, "example.com/m/codec.Pair", result.Assertions[3].Type)
}

func TestScanFile_PointerEmbeds(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "go.mod", "module example.com/shop\n")
	file := writeFile(t, root, "p/impl.go", `package p

import "io"

type Api interface{ Serve() }

type Base struct{}

func (b *Base) Serve() {}

//metainf:service
type Impl struct{ *Base }

//metainf:service contract=Api
type Wrapped struct {
	*Base
	name string
}

type Stream struct{ *io.PipeReader }
`)

	result := scan(t, root, file)
	require.Len(t, result.Declarations, 2)

	impl := result.Declarations[0]
	assert.Equal(t, "example.com/shop/p.Impl", impl.Name)
	assert.Equal(t, "example.com/shop/p.Base", impl.Supertype)

	var stream scanner.TypeInfo
	for _, ti := range result.Types {
		if ti.Name == "example.com/shop/p.Stream" {
			stream = ti
		}
	}
	assert.Equal(t, []string{"io.PipeReader"}, stream.Embeds)

	ix := scanner.BuildIndex([]*scanner.ScanResult{result})
	assert.Equal(t, scanner.Assignable, ix.Assignable("example.com/shop/p.Impl", "example.com/shop/p.Api"))
	assert.Equal(t, scanner.Assignable, ix.Assignable("example.com/shop/p.Wrapped", "example.com/shop/p.Api"))
}

func TestScanFile_SkipsTestFiles(t *testing.T) {
	root := t.TempDir()
	file := writeFile(t, root, "a_test.go", `package a

//metainf:service contract=Codec
type Fake struct{}
`)

	result := scan(t, root, file)
	assert.Empty(t, result.Declarations)
	assert.NotEmpty(t, result.Hash)
}

func TestScanFile_ParseError(t *testing.T) {
	root := t.TempDir()
	file := writeFile(t, root, "broken.go", "package a\n\ntype {\n")

	_, err := NewScanner(root).ScanFile(context.Background(), file)
	assert.Error(t, err)
}

func TestImportPath(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "go.mod", "module example.com/outer\n")
	writeFile(t, root, "inner/go.mod", "module example.com/inner\n")

	s := NewScanner(root)
	assert.Equal(t, "example.com/outer", s.importPath(root, "outer"))
	assert.Equal(t, "example.com/outer/pkg/util", s.importPath(filepath.Join(root, "pkg", "util"), "util"))
	assert.Equal(t, "example.com/inner", s.importPath(filepath.Join(root, "inner"), "inner"))
	assert.Equal(t, "example.com/inner/x", s.importPath(filepath.Join(root, "inner", "x"), "x"))
}

func TestImportPath_NoModule(t *testing.T) {
	// Only meaningful when no go.mod exists above the temp directory
	root := t.TempDir()
	s := NewScanner(root)
	if s.moduleFor(root).path != "" {
		t.Skip("temp directory is inside a Go module")
	}
	assert.Equal(t, "main", s.importPath(root, "main"))
	assert.Equal(t, "pkg/util", s.importPath(filepath.Join(root, "pkg", "util"), "util"))
}

func TestDefaultRegistry(t *testing.T) {
	assert.True(t, scanner.DefaultRegistry.Has("go"))
	lang, ok := scanner.DefaultRegistry.LanguageFor("x/y/main.go")
	assert.True(t, ok)
	assert.Equal(t, "go", lang)
}
