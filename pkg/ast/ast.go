package ast

import (
	"errors"
	"strings"
)

// ErrUnsupportedLanguage is returned when parsing a file with an unsupported language.
var ErrUnsupportedLanguage = errors.New("unsupported language")

// Language represents a programming language.
type Language string

const (
	LangGo         Language = "go"
	LangPython     Language = "python"
	LangJavaScript Language = "javascript"
	LangTypeScript Language = "typescript"
	LangTSX        Language = "tsx"
	LangUnknown    Language = "unknown"
)

// Kind is the normalized node kind shared by all languages.
type Kind uint8

const (
	KindOther Kind = iota
	KindModule
	KindClass
	KindFunction
	KindLambda
	KindDecorator
	KindBlock
	KindParams
	KindParam
	KindParamSeparator
	KindExprStmt
	KindAssign
	KindAugAssign
	KindIf
	KindElseIf
	KindElse
	KindWhile
	KindFor
	KindTry
	KindExcept
	KindFinally
	KindWith
	KindReturn
	KindAssert
	KindRaise
	KindBreak
	KindContinue
	KindPass
	KindGlobal
	KindImport
	KindSpawn
	KindCall
	KindArgs
	KindKeywordArg
	KindAttribute
	KindIdentifier
	KindCompare
	KindBoolOp
	KindBinaryOp
	KindUnaryOp
	KindNot
	KindSubscript
	KindAwait
	KindConditional
	KindParen
	KindNumber
	KindString
	KindTrue
	KindFalse
	KindNone
	KindList
	KindDict
	KindSet
	KindTuple
	KindComprehension
	KindTypeAnnotation
	KindField
	KindComment
	KindOperator
	KindKeyword
	KindError
)

var kindNames = [...]string{
	KindOther:          "other",
	KindModule:         "module",
	KindClass:          "class",
	KindFunction:       "function",
	KindLambda:         "lambda",
	KindDecorator:      "decorator",
	KindBlock:          "block",
	KindParams:         "params",
	KindParam:          "param",
	KindParamSeparator: "param_separator",
	KindExprStmt:       "expr_stmt",
	KindAssign:         "assign",
	KindAugAssign:      "aug_assign",
	KindIf:             "if",
	KindElseIf:         "else_if",
	KindElse:           "else",
	KindWhile:          "while",
	KindFor:            "for",
	KindTry:            "try",
	KindExcept:         "except",
	KindFinally:        "finally",
	KindWith:           "with",
	KindReturn:         "return",
	KindAssert:         "assert",
	KindRaise:          "raise",
	KindBreak:          "break",
	KindContinue:       "continue",
	KindPass:           "pass",
	KindGlobal:         "global",
	KindImport:         "import",
	KindSpawn:          "spawn",
	KindCall:           "call",
	KindArgs:           "args",
	KindKeywordArg:     "keyword_arg",
	KindAttribute:      "attribute",
	KindIdentifier:     "identifier",
	KindCompare:        "compare",
	KindBoolOp:         "bool_op",
	KindBinaryOp:       "binary_op",
	KindUnaryOp:        "unary_op",
	KindNot:            "not",
	KindSubscript:      "subscript",
	KindAwait:          "await",
	KindConditional:    "conditional",
	KindParen:          "paren",
	KindNumber:         "number",
	KindString:         "string",
	KindTrue:           "true",
	KindFalse:          "false",
	KindNone:           "none",
	KindList:           "list",
	KindDict:           "dict",
	KindSet:            "set",
	KindTuple:          "tuple",
	KindComprehension:  "comprehension",
	KindTypeAnnotation: "type_annotation",
	KindField:          "field",
	KindComment:        "comment",
	KindOperator:       "operator",
	KindKeyword:        "keyword",
	KindError:          "error",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// IsStatement reports whether nodes of this kind are statements for the
// purpose of structural fingerprints and statement counts.
func (k Kind) IsStatement() bool {
	switch k {
	case KindExprStmt, KindAssign, KindAugAssign, KindIf, KindWhile, KindFor,
		KindTry, KindWith, KindReturn, KindAssert, KindRaise, KindBreak,
		KindContinue, KindPass, KindGlobal, KindImport, KindSpawn,
		KindFunction, KindClass:
		return true
	}
	return false
}

// IsLoop reports whether the kind is a loop statement.
func (k Kind) IsLoop() bool {
	return k == KindWhile || k == KindFor
}

// IsLiteral reports whether the kind is a scalar literal.
func (k Kind) IsLiteral() bool {
	switch k {
	case KindNumber, KindString, KindTrue, KindFalse, KindNone:
		return true
	}
	return false
}

// Flag carries per-node attributes that the normalized Kind alone cannot express.
type Flag uint16

const (
	FlagAsync Flag = 1 << iota
	FlagTyped
	FlagDefault
	FlagVariadic
	FlagKeywordVariadic
	FlagKeywordOnly
	FlagReceiver
)

// Has reports whether all bits in f are set.
func (fl Flag) Has(f Flag) bool { return fl&f == f }

// Normalized field roles. Adapters map each grammar's field names onto these.
const (
	FieldName       = "name"
	FieldParams     = "params"
	FieldBody       = "body"
	FieldReturnType = "return_type"
	FieldBases      = "bases"
	FieldCond       = "cond"
	FieldThen       = "then"
	FieldElse       = "else"
	FieldLeft       = "left"
	FieldRight      = "right"
	FieldFunc       = "func"
	FieldArgs       = "args"
	FieldObject     = "object"
	FieldAttr       = "attr"
	FieldType       = "type"
	FieldValue      = "value"
	FieldOperator   = "operator"
	FieldOperand    = "operand"
	FieldDefinition = "definition"
	FieldIndex      = "index"
	FieldReceiver   = "receiver"
)

// Span is a 1-based source range.
type Span struct {
	StartLine int `json:"start_line"`
	StartCol  int `json:"start_col"`
	EndLine   int `json:"end_line"`
	EndCol    int `json:"end_col"`
}

// Lines returns the number of source lines the span covers.
func (s Span) Lines() int {
	if s.EndLine < s.StartLine {
		return 0
	}
	return s.EndLine - s.StartLine + 1
}

// Node is one element of the common syntax tree.
// Nodes are immutable once a Tree has been built.
type Node struct {
	Kind     Kind
	Type     string // native grammar type, kept for diagnostics
	Field    string // normalized role in the parent, empty if none
	Name     string // declared name for functions, classes and params
	Text     string // source text for leaves; operator or keyword spelling for anonymous tokens
	Flags    Flag
	Span     Span
	Children []*Node
}

// Child returns the first child playing the given field role.
func (n *Node) Child(field string) *Node {
	if n == nil {
		return nil
	}
	for _, c := range n.Children {
		if c.Field == field {
			return c
		}
	}
	return nil
}

// ChildrenByField returns all children playing the given field role.
func (n *Node) ChildrenByField(field string) []*Node {
	if n == nil {
		return nil
	}
	var out []*Node
	for _, c := range n.Children {
		if c.Field == field {
			out = append(out, c)
		}
	}
	return out
}

// FirstOfKind returns the first direct child of the given kind.
func (n *Node) FirstOfKind(k Kind) *Node {
	if n == nil {
		return nil
	}
	for _, c := range n.Children {
		if c.Kind == k {
			return c
		}
	}
	return nil
}

// HasKeyword reports whether a direct anonymous child spells the keyword.
func (n *Node) HasKeyword(word string) bool {
	if n == nil {
		return false
	}
	for _, c := range n.Children {
		if (c.Kind == KindKeyword || c.Kind == KindOperator) && c.Text == word {
			return true
		}
	}
	return false
}

// Operator returns the spelling of the node's operator child, if any.
func (n *Node) Operator() string {
	if n == nil {
		return ""
	}
	if op := n.Child(FieldOperator); op != nil {
		return op.Text
	}
	for _, c := range n.Children {
		if c.Kind == KindOperator {
			return c.Text
		}
	}
	return ""
}

// Tree is a parsed file in common-tree form.
type Tree struct {
	Root     *Node
	Language Language
	Path     string
	// Bytes is an estimate of the tree's resident size, used for cache budgeting.
	Bytes int64
}

// EstimateBytes computes an approximate resident size of the subtree.
func EstimateBytes(n *Node) int64 {
	if n == nil {
		return 0
	}
	const nodeOverhead = 128
	size := int64(nodeOverhead + len(n.Type) + len(n.Name) + len(n.Text) + len(n.Field))
	for _, c := range n.Children {
		size += EstimateBytes(c)
	}
	return size
}

// Unparen strips any enclosing parenthesized expressions.
func Unparen(n *Node) *Node {
	for n != nil && n.Kind == KindParen {
		var inner *Node
		for _, c := range n.Children {
			if c.Kind != KindOperator && c.Kind != KindKeyword && c.Kind != KindComment {
				inner = c
				break
			}
		}
		if inner == nil {
			return n
		}
		n = inner
	}
	return n
}

// DottedName renders identifier and attribute chains as "a.b.c".
// Any other node yields the empty string.
func DottedName(n *Node) string {
	n = Unparen(n)
	if n == nil {
		return ""
	}
	switch n.Kind {
	case KindIdentifier:
		return n.Text
	case KindAttribute:
		obj := DottedName(n.Child(FieldObject))
		attr := n.Child(FieldAttr)
		if attr == nil {
			return obj
		}
		if obj == "" {
			return attr.Text
		}
		return obj + "." + attr.Text
	}
	return ""
}

// CallName returns the dotted callee name of a call node.
func CallName(call *Node) string {
	if call == nil || call.Kind != KindCall {
		return ""
	}
	return DottedName(call.Child(FieldFunc))
}

// LastSegment returns the part after the final dot of a dotted name.
func LastSegment(name string) string {
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		return name[i+1:]
	}
	return name
}

// CallArgs returns the argument expressions of a call, excluding punctuation.
func CallArgs(call *Node) []*Node {
	args := call.Child(FieldArgs)
	if args == nil {
		return nil
	}
	out := make([]*Node, 0, len(args.Children))
	for _, c := range args.Children {
		if c.Kind == KindOperator || c.Kind == KindKeyword || c.Kind == KindComment {
			continue
		}
		out = append(out, c)
	}
	return out
}

// Operands returns the non-operator children of an expression node.
func Operands(n *Node) []*Node {
	if n == nil {
		return nil
	}
	out := make([]*Node, 0, len(n.Children))
	for _, c := range n.Children {
		if c.Kind == KindOperator || c.Kind == KindKeyword || c.Kind == KindComment {
			continue
		}
		out = append(out, c)
	}
	return out
}
