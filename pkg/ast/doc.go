// Package ast defines the language-neutral syntax tree that every detector
// in this module operates on.
//
// Native parsers (see pkg/parser) adapt their own trees into ast.Tree: each
// node carries a normalized Kind, the normalized field role it plays in its
// parent, a 1-based source Span and, for leaves, its source text. Detectors
// never see language-specific node types except through Node.Type, which is
// kept for diagnostics only.
//
// Usage:
//
//	p := parser.New()
//	defer p.Close()
//
//	tree, err := p.Parse(src, ast.LangPython, "app.py")
//	if err != nil {
//	    return err
//	}
//
//	for _, fn := range ast.Functions(tree) {
//	    fmt.Printf("%s at line %d\n", fn.Name, fn.Span().StartLine)
//	}
package ast
