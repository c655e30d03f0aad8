package parser

import (
	"errors"
	"testing"

	"github.com/panbanda/connascence/pkg/ast"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	p := New()
	if p == nil {
		t.Fatal("New() returned nil")
	}
	if p.parser == nil {
		t.Error("parser field is nil")
	}
	p.Close()
}

func TestDetectLanguage(t *testing.T) {
	tests := []struct {
		path string
		want ast.Language
	}{
		{"main.go", ast.LangGo},
		{"pkg/parser/parser.go", ast.LangGo},
		{"script.py", ast.LangPython},
		{"module.pyw", ast.LangPython},
		{"types.pyi", ast.LangPython},
		{"app.ts", ast.LangTypeScript},
		{"component.tsx", ast.LangTSX},
		{"component.jsx", ast.LangTSX},
		{"script.js", ast.LangJavaScript},
		{"module.mjs", ast.LangJavaScript},
		{"common.cjs", ast.LangJavaScript},
		{"main.rs", ast.LangUnknown},
		{"file.txt", ast.LangUnknown},
		{"file", ast.LangUnknown},
		{"Main.GO", ast.LangGo},
		{"SCRIPT.PY", ast.LangPython},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := DetectLanguage(tt.path); got != tt.want {
				t.Errorf("DetectLanguage(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}

func TestGetTreeSitterLanguage(t *testing.T) {
	for _, lang := range []ast.Language{ast.LangGo, ast.LangPython, ast.LangJavaScript, ast.LangTypeScript, ast.LangTSX} {
		t.Run(string(lang), func(t *testing.T) {
			tsLang, err := GetTreeSitterLanguage(lang)
			require.NoError(t, err)
			assert.NotNil(t, tsLang)
		})
	}

	_, err := GetTreeSitterLanguage(ast.LangUnknown)
	assert.ErrorIs(t, err, ast.ErrUnsupportedLanguage)
}

func parsePython(t *testing.T, src string) *ast.Tree {
	t.Helper()
	p := New()
	defer p.Close()
	tree, err := p.Parse([]byte(src), ast.LangPython, "test.py")
	require.NoError(t, err)
	return tree
}

func paramNames(params []*ast.Node) []string {
	names := make([]string, len(params))
	for i, p := range params {
		names[i] = p.Name
	}
	return names
}

func TestParse_PythonParameters(t *testing.T) {
	tree := parsePython(t, "def process(a, b: int, c=1, *args, d, **kw):\n    return a\n")

	require.Equal(t, ast.KindModule, tree.Root.Kind)
	fns := ast.Functions(tree)
	require.Len(t, fns, 1)

	fn := fns[0]
	assert.Equal(t, "process", fn.Name)
	assert.Equal(t, []string{"a", "b", "c", "args", "d", "kw"}, paramNames(fn.Params))
	assert.True(t, fn.Params[1].Flags.Has(ast.FlagTyped))
	assert.Equal(t, "int", fn.Params[1].Text)
	assert.True(t, fn.Params[2].Flags.Has(ast.FlagDefault))
	assert.True(t, fn.Params[3].Flags.Has(ast.FlagVariadic))
	assert.True(t, fn.Params[4].Flags.Has(ast.FlagKeywordOnly))
	assert.True(t, fn.Params[5].Flags.Has(ast.FlagKeywordVariadic))
	assert.Equal(t, []string{"a", "b", "c"}, paramNames(fn.PositionalParams()))
	assert.True(t, fn.Annotated())
	assert.Equal(t, 1, fn.Span().StartLine)
	assert.Equal(t, 2, fn.Span().EndLine)
}

func TestParse_PythonKeywordSeparator(t *testing.T) {
	tree := parsePython(t, "def f(a, *, b, c):\n    pass\n")
	fn := ast.Functions(tree)[0]
	assert.Equal(t, []string{"a"}, paramNames(fn.PositionalParams()))
}

func TestParse_PythonClass(t *testing.T) {
	src := `class Account:
    kind = "basic"

    def __init__(self, owner):
        self.owner = owner
        self.balance = 0

    def deposit(self, amount):
        self.balance += amount
`
	tree := parsePython(t, src)

	classes := ast.Classes(tree)
	require.Len(t, classes, 1)
	cls := classes[0]
	assert.Equal(t, "Account", cls.Name)
	require.Len(t, cls.Methods, 2)
	assert.Equal(t, "Account.deposit", cls.Methods[1].QualifiedName())
	assert.Equal(t, []string{"amount"}, paramNames(cls.Methods[1].PositionalParams()))
	assert.Equal(t, []string{"balance", "kind", "owner"}, cls.Attributes)
}

func TestParse_PythonComparison(t *testing.T) {
	tree := parsePython(t, "def check(x):\n    if x == 42:\n        return x is not None\n")

	compares := ast.Collect(tree.Root, ast.KindCompare)
	require.Len(t, compares, 2)
	assert.Equal(t, "==", compares[0].Operator())
	ops := ast.Operands(compares[0])
	require.Len(t, ops, 2)
	assert.Equal(t, ast.KindNumber, ops[1].Kind)
	assert.Equal(t, "42", ops[1].Text)
	assert.Equal(t, "is not", compares[1].Operator())

	ifs := ast.Collect(tree.Root, ast.KindIf)
	require.Len(t, ifs, 1)
	assert.NotNil(t, ifs[0].Child(ast.FieldCond))
	assert.Equal(t, 2, ifs[0].Span.StartLine)
	assert.Equal(t, 5, ifs[0].Span.StartCol)
}

func TestParse_PythonAsyncAndCalls(t *testing.T) {
	tree := parsePython(t, "async def fetch(session):\n    data = await session.get('/x')\n    return data\n")
	fn := ast.Functions(tree)[0]
	assert.True(t, fn.IsAsync())

	calls := ast.Collect(tree.Root, ast.KindCall)
	require.Len(t, calls, 1)
	assert.Equal(t, "session.get", ast.CallName(calls[0]))
	args := ast.CallArgs(calls[0])
	require.Len(t, args, 1)
	assert.Equal(t, ast.KindString, args[0].Kind)
	assert.Equal(t, "/x", ast.StringValue(args[0].Text))
	assert.Len(t, ast.Collect(tree.Root, ast.KindAwait), 1)
}

func TestParse_PythonNegativeLiteral(t *testing.T) {
	tree := parsePython(t, "x = -1\n")
	assigns := ast.Collect(tree.Root, ast.KindAssign)
	require.Len(t, assigns, 1)
	v, ok := ast.LiteralValue(assigns[0].Child(ast.FieldRight))
	require.True(t, ok)
	assert.Equal(t, "-1", v)
}

func TestParse_SyntaxError(t *testing.T) {
	p := New()
	defer p.Close()

	_, err := p.Parse([]byte("def broken(:\n    return\n"), ast.LangPython, "broken.py")
	require.Error(t, err)

	var pe *ParseError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "broken.py", pe.Path)
	assert.Equal(t, 1, pe.Line)
	assert.Contains(t, pe.Error(), "broken.py:1:")
}

func TestParse_Go(t *testing.T) {
	src := `package main

func add(a, b int, rest ...string) int {
	for {
		break
	}
	for i := 0; i < 3; i++ {
	}
	return a + b
}
`
	p := New()
	defer p.Close()
	tree, err := p.Parse([]byte(src), ast.LangGo, "main.go")
	require.NoError(t, err)

	fns := ast.Functions(tree)
	require.Len(t, fns, 1)
	fn := fns[0]
	assert.Equal(t, "add", fn.Name)
	assert.Equal(t, []string{"a", "b", "rest"}, paramNames(fn.Params))
	assert.Equal(t, "int", fn.Params[0].Text)
	assert.True(t, fn.Params[2].Flags.Has(ast.FlagVariadic))
	assert.Equal(t, []string{"a", "b"}, paramNames(fn.PositionalParams()))

	whiles := ast.Collect(tree.Root, ast.KindWhile)
	require.Len(t, whiles, 1)
	assert.Nil(t, whiles[0].Child(ast.FieldCond))
	assert.Len(t, ast.Collect(tree.Root, ast.KindFor), 1)
}

func TestParse_GoStructAsClass(t *testing.T) {
	src := `package store

type Base struct{}

type Store[T any] struct {
	Base
	*sync.Mutex
	items, spare []T
	name string ` + "`json:\"name\"`" + `
}

type ID int

func (s *Store[T]) Add(item T) {
	s.items = append(s.items, item)
	s.count = len(s.items)
}

func (s Store[T]) Len() int { return len(s.items) }

func (id ID) String() string { return "" }

func helper() {}
`
	p := New()
	defer p.Close()
	tree, err := p.Parse([]byte(src), ast.LangGo, "store.go")
	require.NoError(t, err)

	classes := ast.Classes(tree)
	require.Len(t, classes, 2)
	assert.Equal(t, "Base", classes[0].Name)
	assert.Empty(t, classes[0].Methods)

	store := classes[1]
	assert.Equal(t, "Store", store.Name)
	assert.Equal(t, 5, store.Node.Span.StartLine)
	var methods []string
	for _, m := range store.Methods {
		methods = append(methods, m.QualifiedName())
	}
	assert.Equal(t, []string{"Store.Add", "Store.Len"}, methods)
	assert.Equal(t, []string{"Base", "Mutex", "count", "items", "name", "spare"}, store.Attributes)

	byName := map[string]*ast.Function{}
	for _, fn := range ast.Functions(tree) {
		byName[fn.Name] = fn
	}
	require.Len(t, byName, 4)
	assert.Equal(t, "Store", byName["Add"].ReceiverType())
	assert.Equal(t, "s", byName["Add"].SelfName())
	assert.True(t, byName["Add"].IsMethod())
	assert.Equal(t, "ID", byName["String"].ReceiverType())
	assert.False(t, byName["String"].IsMethod(), "methods on non-struct types stay free functions")
	assert.Empty(t, byName["helper"].ReceiverType())
}

func TestParse_JavaScript(t *testing.T) {
	src := `function pick(a, b = 2, ...rest) {
  if (a === 1) {
    return b;
  }
  return rest;
}
`
	p := New()
	defer p.Close()
	tree, err := p.Parse([]byte(src), ast.LangJavaScript, "pick.js")
	require.NoError(t, err)

	fns := ast.Functions(tree)
	require.Len(t, fns, 1)
	assert.Equal(t, "pick", fns[0].Name)
	assert.Equal(t, []string{"a", "b", "rest"}, paramNames(fns[0].Params))
	assert.Equal(t, []string{"a", "b"}, paramNames(fns[0].PositionalParams()))

	compares := ast.Collect(tree.Root, ast.KindCompare)
	require.Len(t, compares, 1)
	assert.Equal(t, "===", compares[0].Operator())
}

func TestParse_TreeBytes(t *testing.T) {
	tree := parsePython(t, "x = 1\n")
	assert.Greater(t, tree.Bytes, int64(len("x = 1\n")))
	assert.Equal(t, "test.py", tree.Path)
	assert.Equal(t, ast.LangPython, tree.Language)
}
