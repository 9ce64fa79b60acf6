package parser

import (
	"os"
	"path/filepath"
	"testing"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectLanguage(t *testing.T) {
	tests := []struct {
		path string
		want Language
	}{
		{"main.c", LangC},
		{"header.h", LangC},
		{"main.cpp", LangCPP},
		{"main.cc", LangCPP},
		{"main.cxx", LangCPP},
		{"main.c++", LangCPP},
		{"header.hpp", LangCPP},
		{"header.hxx", LangCPP},
		{"header.hh", LangCPP},
		{"MAIN.C", LangC},
		{"script.py", LangUnknown},
		{"Makefile", LangUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectLanguage(tt.path))
		})
	}
}

func TestParseC(t *testing.T) {
	p := New()
	defer p.Close()

	src := []byte(`int main(void)
{
    return 0;
}
`)
	res, err := p.Parse(src, LangC, "main.c")
	require.NoError(t, err)
	require.NotNil(t, res.Tree)
	assert.Equal(t, LangC, res.Language)
	assert.Equal(t, "main.c", res.Path)
	assert.Equal(t, "translation_unit", res.Tree.RootNode().Type())
}

func TestParseUnsupportedLanguage(t *testing.T) {
	p := New()
	defer p.Close()

	_, err := p.Parse([]byte("x"), LangUnknown, "x.bin")
	require.Error(t, err)
}

func TestParseFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f.c")
	require.NoError(t, os.WriteFile(path, []byte("int x;\n"), 0o644))

	p := New()
	defer p.Close()

	res, err := p.ParseFile(path)
	require.NoError(t, err)
	assert.Equal(t, LangC, res.Language)

	_, err = p.ParseFile(filepath.Join(dir, "missing.c"))
	require.Error(t, err)

	unknown := filepath.Join(dir, "f.py")
	require.NoError(t, os.WriteFile(unknown, []byte("pass\n"), 0o644))
	_, err = p.ParseFile(unknown)
	require.Error(t, err)
}

func TestFindNodesByType(t *testing.T) {
	p := New()
	defer p.Close()

	src := []byte(`int a;
int b;
int f(void) { return 1; }
`)
	res, err := p.Parse(src, LangC, "t.c")
	require.NoError(t, err)

	decls := FindNodesByType(res.Tree.RootNode(), src, "declaration")
	assert.Len(t, decls, 2)

	defs := FindNodesByType(res.Tree.RootNode(), src, "function_definition")
	require.Len(t, defs, 1)
	assert.Equal(t, "f", FunctionName(defs[0], src))
}

func TestWalkStopsOnFalse(t *testing.T) {
	p := New()
	defer p.Close()

	src := []byte("int f(void) { return 1; }\n")
	res, err := p.Parse(src, LangC, "t.c")
	require.NoError(t, err)

	visited := 0
	Walk(res.Tree.RootNode(), src, func(node *sitter.Node, source []byte) bool {
		visited++
		return false
	})
	assert.Equal(t, 1, visited)
}

func TestLineColumnAreOneBased(t *testing.T) {
	p := New()
	defer p.Close()

	src := []byte("int x;\nint y;\n")
	res, err := p.Parse(src, LangC, "t.c")
	require.NoError(t, err)

	decls := FindNodesByType(res.Tree.RootNode(), src, "declaration")
	require.Len(t, decls, 2)
	assert.Equal(t, uint32(1), Line(decls[0]))
	assert.Equal(t, uint32(1), Column(decls[0]))
	assert.Equal(t, uint32(2), Line(decls[1]))

	assert.Equal(t, uint32(0), Line(nil))
}

func TestUnwrapDeclarator(t *testing.T) {
	tests := []struct {
		name        string
		src         string
		lang        Language
		wantName    string
		wantPointer int
		wantArray   bool
		wantRef     bool
	}{
		{name: "plain", src: "int x;", lang: LangC, wantName: "x"},
		{name: "pointer", src: "int *p;", lang: LangC, wantName: "p", wantPointer: 1},
		{name: "double pointer", src: "char **argv;", lang: LangC, wantName: "argv", wantPointer: 2},
		{name: "array", src: "int buf[16];", lang: LangC, wantName: "buf", wantArray: true},
		{name: "init", src: "int n = 3;", lang: LangC, wantName: "n"},
		{name: "reference", src: "int &r = n;", lang: LangCPP, wantName: "r", wantRef: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New()
			defer p.Close()

			src := []byte(tt.src)
			res, err := p.Parse(src, tt.lang, "t.c")
			require.NoError(t, err)

			decls := FindNodesByType(res.Tree.RootNode(), src, "declaration")
			require.Len(t, decls, 1)
			decl := decls[0].ChildByFieldName("declarator")
			require.NotNil(t, decl)

			info := UnwrapDeclarator(decl, src)
			assert.Equal(t, tt.wantName, info.Name)
			assert.Equal(t, tt.wantPointer, info.PointerDepth)
			assert.Equal(t, tt.wantArray, info.IsArray)
			assert.Equal(t, tt.wantRef, info.IsReference)
			require.NotNil(t, info.NameNode)
		})
	}
}

func TestFunctionDeclarator(t *testing.T) {
	p := New()
	defer p.Close()

	src := []byte("char *dup(const char *s) { return 0; }\n")
	res, err := p.Parse(src, LangC, "t.c")
	require.NoError(t, err)

	defs := FindNodesByType(res.Tree.RootNode(), src, "function_definition")
	require.Len(t, defs, 1)

	fd := FunctionDeclarator(defs[0])
	require.NotNil(t, fd)
	assert.Equal(t, "function_declarator", fd.Type())
	assert.Equal(t, "dup", FunctionName(defs[0], src))
}

func TestGetNodeTextBounds(t *testing.T) {
	assert.Equal(t, "", GetNodeText(nil, []byte("abc")))
}
