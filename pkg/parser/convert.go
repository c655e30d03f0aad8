package parser

import (
	"github.com/panbanda/connascence/pkg/ast"
	sitter "github.com/smacker/go-tree-sitter"
)

// grammar maps one tree-sitter grammar onto the common tree.
type grammar struct {
	kinds  map[string]ast.Kind
	fields map[string]string
	// leaves are named node types whose text is kept and whose children are dropped.
	leaves map[string]bool
	// finish runs bottom-up on every converted named node.
	finish func(n *ast.Node)
}

// punctuation tokens carry no meaning for any detector and are dropped.
var punctuation = map[string]bool{
	"(": true, ")": true, "[": true, "]": true, "{": true, "}": true,
	",": true, ":": true, ";": true, ".": true, "=": true, ":=": true,
	"\"": true, "'": true, "`": true, "->": true, "=>": true,
}

// operatorWords are alphabetic tokens that act as operators.
var operatorWords = map[string]bool{
	"is": true, "is not": true, "in": true, "not in": true, "not": true,
	"and": true, "or": true, "instanceof": true, "typeof": true,
}

func grammarFor(lang ast.Language) *grammar {
	switch lang {
	case ast.LangPython:
		return pythonGrammar
	case ast.LangGo:
		return goGrammar
	default:
		return javascriptGrammar
	}
}

func span(n *sitter.Node) ast.Span {
	start, end := n.StartPoint(), n.EndPoint()
	return ast.Span{
		StartLine: int(start.Row) + 1,
		StartCol:  int(start.Column) + 1,
		EndLine:   int(end.Row) + 1,
		EndCol:    int(end.Column) + 1,
	}
}

func nodeText(n *sitter.Node, source []byte) string {
	start, end := n.StartByte(), n.EndByte()
	if start > end || end > uint32(len(source)) {
		return ""
	}
	return string(source[start:end])
}

// convert builds the common tree for n. It returns nil for dropped tokens.
func convert(n *sitter.Node, source []byte, g *grammar, field string) *ast.Node {
	typ := n.Type()
	out := &ast.Node{Type: typ, Span: span(n)}
	if field != "" {
		if mapped, ok := g.fields[field]; ok {
			out.Field = mapped
		} else {
			out.Field = field
		}
	}

	if !n.IsNamed() {
		if punctuation[typ] {
			return nil
		}
		out.Text = typ
		out.Kind = ast.KindOperator
		if isWord(typ) && !operatorWords[typ] {
			out.Kind = ast.KindKeyword
		}
		return out
	}

	if n.IsError() {
		out.Kind = ast.KindError
	} else {
		out.Kind = g.kinds[typ]
	}

	count := int(n.ChildCount())
	if count == 0 || g.leaves[typ] {
		out.Text = nodeText(n, source)
	} else {
		out.Children = make([]*ast.Node, 0, count)
		for i := range count {
			child := n.Child(i)
			if child == nil {
				continue
			}
			if c := convert(child, source, g, n.FieldNameForChild(i)); c != nil {
				out.Children = append(out.Children, c)
			}
		}
	}

	if g.finish != nil {
		g.finish(out)
	}
	return out
}

func isWord(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !(r == ' ' || r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')) {
			return false
		}
	}
	return true
}

// refineBinary splits a generic binary expression by its operator.
func refineBinary(n *ast.Node) {
	switch n.Operator() {
	case "==", "!=", "===", "!==", "<", ">", "<=", ">=", "is", "is not", "in", "not in", "instanceof":
		n.Kind = ast.KindCompare
	case "&&", "||", "??", "and", "or":
		n.Kind = ast.KindBoolOp
	}
}

// refineUnary turns logical negation into KindNot.
func refineUnary(n *ast.Node) {
	if n.Operator() == "!" {
		n.Kind = ast.KindNot
	}
}

// nameFromField copies the text of the name child onto the node.
func nameFromField(n *ast.Node) {
	if name := n.Child(ast.FieldName); name != nil {
		n.Name = name.Text
	}
}

// markKeywordOnly flags parameters following a bare separator or a variadic.
func markKeywordOnly(params *ast.Node) {
	keywordOnly := false
	for _, p := range params.Children {
		switch {
		case p.Kind == ast.KindParamSeparator:
			keywordOnly = true
		case p.Kind == ast.KindParam && p.Flags.Has(ast.FlagVariadic):
			keywordOnly = true
		case p.Kind == ast.KindParam && keywordOnly && !p.Flags.Has(ast.FlagKeywordVariadic):
			p.Flags |= ast.FlagKeywordOnly
		}
	}
}

// renameField rewrites a child's field role.
func renameField(n *ast.Node, from, to string) {
	for _, c := range n.Children {
		if c.Field == from {
			c.Field = to
		}
	}
}
