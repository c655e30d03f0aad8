package ast

import (
	"sort"
	"strings"
)

// Function is a function or method definition with its surrounding context.
type Function struct {
	Node   *Node
	Name   string
	Class  *Node     // enclosing class, nil for free functions
	Parent *Function // enclosing function for nested definitions
	Params []*Node
	Body   *Node
}

// Span returns the definition's source range.
func (f *Function) Span() Span { return f.Node.Span }

// QualifiedName returns Class.name for methods and name otherwise.
func (f *Function) QualifiedName() string {
	if f.Class != nil && f.Class.Name != "" {
		return f.Class.Name + "." + f.Name
	}
	return f.Name
}

// IsMethod reports whether the function is defined directly in a class body.
func (f *Function) IsMethod() bool { return f.Class != nil && f.Parent == nil }

// IsAsync reports whether the function was declared async.
func (f *Function) IsAsync() bool { return f.Node.Flags.Has(FlagAsync) }

// PositionalParams returns the parameters callers must pass by position:
// receivers (self, cls), keyword-only and variadic parameters are excluded.
func (f *Function) PositionalParams() []*Node {
	out := make([]*Node, 0, len(f.Params))
	for i, p := range f.Params {
		if p.Kind != KindParam {
			continue
		}
		if p.Flags.Has(FlagReceiver) || p.Flags.Has(FlagKeywordOnly) ||
			p.Flags.Has(FlagVariadic) || p.Flags.Has(FlagKeywordVariadic) {
			continue
		}
		if i == 0 && f.IsMethod() && (p.Name == "self" || p.Name == "cls") {
			continue
		}
		out = append(out, p)
	}
	return out
}

// Annotated reports whether any parameter or the return value carries a type.
func (f *Function) Annotated() bool {
	if f.Node.Child(FieldReturnType) != nil {
		return true
	}
	for _, p := range f.Params {
		if p.Flags.Has(FlagTyped) {
			return true
		}
	}
	return false
}

// Statements returns the direct statements of the function body.
func (f *Function) Statements() []*Node {
	return Statements(f.Body)
}

// Statements returns the statement children of a block, skipping comments.
func Statements(block *Node) []*Node {
	if block == nil || block.Kind != KindBlock {
		return nil
	}
	out := make([]*Node, 0, len(block.Children))
	for _, c := range block.Children {
		if c.Kind.IsStatement() {
			out = append(out, c)
			continue
		}
		// decorated definitions wrap the function or class they decorate
		if def := c.Child(FieldDefinition); def != nil && def.Kind.IsStatement() {
			out = append(out, def)
		}
	}
	return out
}

// IsDocstring reports whether a statement is a bare string expression.
func IsDocstring(stmt *Node) bool {
	if stmt == nil || stmt.Kind != KindExprStmt {
		return false
	}
	ops := Operands(stmt)
	return len(ops) == 1 && ops[0].Kind == KindString
}

// Functions returns every function and method in the tree in source order.
func Functions(t *Tree) []*Function {
	if t == nil || t.Root == nil {
		return nil
	}
	var out []*Function
	var visit func(n *Node, class *Node, parent *Function)
	visit = func(n *Node, class *Node, parent *Function) {
		for _, c := range n.Children {
			switch c.Kind {
			case KindFunction:
				fn := newFunction(c, class, parent)
				out = append(out, fn)
				visit(c, class, fn)
			case KindClass:
				visit(c, c, nil)
			default:
				visit(c, class, parent)
			}
		}
	}
	visit(t.Root, nil, nil)
	linkReceivers(t.Root, out)
	return out
}

// linkReceivers attaches methods declared outside a type body, as Go
// methods are, to the struct type their receiver names.
func linkReceivers(root *Node, funcs []*Function) {
	var types map[string]*Node
	for _, fn := range funcs {
		if fn.Class != nil || fn.Parent != nil {
			continue
		}
		name := fn.ReceiverType()
		if name == "" {
			continue
		}
		if types == nil {
			types = make(map[string]*Node)
			Walk(root, func(n *Node) bool {
				if n.Kind == KindClass && n.Name != "" {
					if _, ok := types[n.Name]; !ok {
						types[n.Name] = n
					}
				}
				return true
			})
		}
		fn.Class = types[name]
	}
}

// ReceiverType returns the base type of a Go method receiver without
// pointer stars or type arguments. It is empty for other functions.
func (f *Function) ReceiverType() string {
	recv := f.Node.Child(FieldReceiver)
	if recv == nil {
		return ""
	}
	for _, p := range recv.Children {
		if p.Kind == KindParam {
			t := strings.TrimLeft(p.Text, "*")
			if i := strings.IndexByte(t, '['); i >= 0 {
				t = t[:i]
			}
			return t
		}
	}
	return ""
}

// SelfName returns the name a method uses for its own instance: the Go
// receiver name, self or cls, or this.
func (f *Function) SelfName() string {
	if recv := f.Node.Child(FieldReceiver); recv != nil {
		for _, p := range recv.Children {
			if p.Kind == KindParam {
				return p.Name
			}
		}
	}
	if f.Class == nil {
		return ""
	}
	if len(f.Params) > 0 && (f.Params[0].Name == "self" || f.Params[0].Name == "cls") {
		return f.Params[0].Name
	}
	return "this"
}

// SelfAttribute reports whether n is an attribute of the function's own
// instance, including attributes reached through a Go receiver.
func (f *Function) SelfAttribute(n *Node) (string, bool) {
	if name, ok := SelfAttribute(n); ok {
		return name, true
	}
	self := f.SelfName()
	if self == "" || self == "_" {
		return "", false
	}
	n = Unparen(n)
	if n == nil || n.Kind != KindAttribute {
		return "", false
	}
	obj := Unparen(n.Child(FieldObject))
	attr := n.Child(FieldAttr)
	if obj == nil || attr == nil || obj.Kind != KindIdentifier || obj.Text != self {
		return "", false
	}
	return attr.Text, true
}

func newFunction(n *Node, class *Node, parent *Function) *Function {
	fn := &Function{Node: n, Name: n.Name, Class: class, Parent: parent, Body: n.Child(FieldBody)}
	if params := n.Child(FieldParams); params != nil {
		for _, p := range params.Children {
			if p.Kind == KindParam {
				fn.Params = append(fn.Params, p)
			}
		}
	}
	return fn
}

// Class is a class definition with its directly defined methods.
type Class struct {
	Node       *Node
	Name       string
	Methods    []*Function
	Attributes []string
}

// Classes returns every class in the tree in source order.
func Classes(t *Tree) []*Class {
	if t == nil || t.Root == nil {
		return nil
	}
	byNode := make(map[*Node]*Class)
	var out []*Class
	Walk(t.Root, func(n *Node) bool {
		if n.Kind == KindClass {
			c := &Class{Node: n, Name: n.Name}
			byNode[n] = c
			out = append(out, c)
		}
		return true
	})
	for _, fn := range Functions(t) {
		if fn.IsMethod() {
			if c := byNode[fn.Class]; c != nil {
				c.Methods = append(c.Methods, fn)
			}
		}
	}
	for _, c := range out {
		c.Attributes = classAttributes(c)
	}
	return out
}

// classAttributes collects declared struct fields, names assigned in the
// class body and attributes assigned through the instance inside methods.
func classAttributes(c *Class) []string {
	seen := make(map[string]struct{})
	Walk(c.Node, func(n *Node) bool {
		if n.Kind == KindField {
			if n.Name != "" {
				seen[n.Name] = struct{}{}
			}
			return false
		}
		return true
	})
	for _, stmt := range Statements(c.Node.Child(FieldBody)) {
		for _, a := range assignTargets(stmt) {
			if a.Kind == KindIdentifier {
				seen[a.Text] = struct{}{}
			}
		}
	}
	for _, m := range c.Methods {
		WalkLocal(m.Body, func(n *Node) bool {
			if n.Kind != KindAssign && n.Kind != KindAugAssign {
				return true
			}
			for _, t := range assignTargets(n) {
				if name, ok := m.SelfAttribute(t); ok {
					seen[name] = struct{}{}
				}
			}
			return true
		})
	}
	attrs := make([]string, 0, len(seen))
	for name := range seen {
		attrs = append(attrs, name)
	}
	sort.Strings(attrs)
	return attrs
}

// assignTargets unwraps expression statements and returns assignment targets.
func assignTargets(stmt *Node) []*Node {
	if stmt == nil {
		return nil
	}
	if stmt.Kind == KindExprStmt {
		var out []*Node
		for _, c := range stmt.Children {
			out = append(out, assignTargets(c)...)
		}
		return out
	}
	if stmt.Kind != KindAssign && stmt.Kind != KindAugAssign {
		return nil
	}
	left := Unparen(stmt.Child(FieldLeft))
	if left == nil {
		return nil
	}
	switch left.Kind {
	case KindTuple, KindList, KindOther:
		return Operands(left)
	}
	return []*Node{left}
}

// AssignTargets returns the assignment targets of an assignment statement.
func AssignTargets(stmt *Node) []*Node { return assignTargets(stmt) }

// SelfAttribute reports whether n is self.<name> or this.<name>.
func SelfAttribute(n *Node) (string, bool) {
	n = Unparen(n)
	if n == nil || n.Kind != KindAttribute {
		return "", false
	}
	obj := Unparen(n.Child(FieldObject))
	attr := n.Child(FieldAttr)
	if obj == nil || attr == nil {
		return "", false
	}
	if obj.Kind == KindIdentifier && (obj.Text == "self" || obj.Text == "this") {
		return attr.Text, true
	}
	if obj.Kind == KindKeyword && obj.Text == "this" {
		return attr.Text, true
	}
	return "", false
}

// LiteralValue returns the canonical spelling of a literal node, folding a
// unary minus into numbers. ok is false for non-literals.
func LiteralValue(n *Node) (string, bool) {
	n = Unparen(n)
	if n == nil {
		return "", false
	}
	switch n.Kind {
	case KindNumber:
		return strings.ReplaceAll(strings.ToLower(n.Text), "_", ""), true
	case KindString:
		return n.Text, true
	case KindTrue, KindFalse, KindNone:
		return n.Kind.String(), true
	case KindUnaryOp:
		ops := Operands(n)
		if len(ops) == 1 && ops[0].Kind == KindNumber && n.Operator() == "-" {
			v, _ := LiteralValue(ops[0])
			return "-" + v, true
		}
	}
	return "", false
}

// StringValue strips prefixes and quotes from a string literal.
func StringValue(raw string) string {
	s := strings.TrimLeft(raw, "rRbBuUfF")
	for _, q := range []string{`"""`, `'''`, `"`, `'`, "`"} {
		if len(s) >= 2*len(q) && strings.HasPrefix(s, q) && strings.HasSuffix(s, q) {
			return s[len(q) : len(s)-len(q)]
		}
	}
	return s
}

// Identifiers returns the text of every identifier in the subtree.
func Identifiers(n *Node) []string {
	var out []string
	Walk(n, func(c *Node) bool {
		if c.Kind == KindIdentifier {
			out = append(out, c.Text)
		}
		return true
	})
	return out
}
