package parser

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/panbanda/connascence/pkg/ast"
	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// Parser wraps tree-sitter and adapts its trees into ast.Tree.
// A Parser is not safe for concurrent use; create one per worker.
type Parser struct {
	parser *sitter.Parser
}

// ParseError reports a syntactically invalid source file.
type ParseError struct {
	Path   string
	Line   int
	Column int
	Msg    string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s:%d:%d: %s", e.Path, e.Line, e.Column, e.Msg)
}

// New creates a new parser instance.
func New() *Parser {
	return &Parser{
		parser: sitter.NewParser(),
	}
}

// Parse parses source code with a specified language.
func (p *Parser) Parse(source []byte, lang ast.Language, path string) (*ast.Tree, error) {
	return p.ParseContext(context.Background(), source, lang, path)
}

// ParseContext parses source code, aborting when ctx is cancelled.
func (p *Parser) ParseContext(ctx context.Context, source []byte, lang ast.Language, path string) (*ast.Tree, error) {
	tsLang, err := GetTreeSitterLanguage(lang)
	if err != nil {
		return nil, err
	}
	g := grammarFor(lang)

	p.parser.SetLanguage(tsLang)
	tree, err := p.parser.ParseCtx(ctx, nil, source)
	if err != nil {
		return nil, fmt.Errorf("failed to parse: %w", err)
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.HasError() {
		return nil, syntaxError(root, path)
	}

	converted := convert(root, source, g, "")
	return &ast.Tree{
		Root:     converted,
		Language: lang,
		Path:     path,
		Bytes:    ast.EstimateBytes(converted) + int64(len(source)),
	}, nil
}

// syntaxError locates the first ERROR or MISSING node in the tree.
func syntaxError(root *sitter.Node, path string) *ParseError {
	var bad *sitter.Node
	var find func(n *sitter.Node)
	find = func(n *sitter.Node) {
		if bad != nil || n == nil {
			return
		}
		if n.IsError() || n.IsMissing() {
			bad = n
			return
		}
		if !n.HasError() {
			return
		}
		for i := range int(n.ChildCount()) {
			find(n.Child(i))
		}
	}
	find(root)

	pe := &ParseError{Path: path, Line: 1, Column: 1, Msg: "syntax error"}
	if bad != nil {
		pe.Line = int(bad.StartPoint().Row) + 1
		pe.Column = int(bad.StartPoint().Column) + 1
		if bad.IsMissing() {
			pe.Msg = fmt.Sprintf("syntax error: missing %q", bad.Type())
		}
	}
	return pe
}

// GetTreeSitterLanguage returns the tree-sitter language for a Language enum.
func GetTreeSitterLanguage(lang ast.Language) (*sitter.Language, error) {
	switch lang {
	case ast.LangGo:
		return golang.GetLanguage(), nil
	case ast.LangPython:
		return python.GetLanguage(), nil
	case ast.LangTypeScript:
		return typescript.GetLanguage(), nil
	case ast.LangTSX:
		return tsx.GetLanguage(), nil
	case ast.LangJavaScript:
		return javascript.GetLanguage(), nil
	default:
		return nil, fmt.Errorf("%w: %s", ast.ErrUnsupportedLanguage, lang)
	}
}

// DetectLanguage determines the language from a file path.
func DetectLanguage(path string) ast.Language {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".go":
		return ast.LangGo
	case ".py", ".pyw", ".pyi":
		return ast.LangPython
	case ".ts", ".mts", ".cts":
		return ast.LangTypeScript
	case ".tsx", ".jsx":
		return ast.LangTSX
	case ".js", ".mjs", ".cjs":
		return ast.LangJavaScript
	default:
		return ast.LangUnknown
	}
}

// Close releases parser resources.
func (p *Parser) Close() {
	p.parser.Close()
}
