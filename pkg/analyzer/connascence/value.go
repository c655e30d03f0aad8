package connascence

import (
	"fmt"
	"strings"

	"github.com/panbanda/connascence/pkg/analyzer"
	"github.com/panbanda/connascence/pkg/ast"
	"github.com/panbanda/connascence/pkg/config"
	"github.com/panbanda/connascence/pkg/models"
)

// ValueDetector flags mutable state shared between functions, where every
// writer and reader must agree on the value at all times.
type ValueDetector struct {
	policy config.Policy
}

var (
	mutatingMethods = map[string]bool{
		"append": true, "extend": true, "insert": true, "add": true, "update": true,
		"pop": true, "remove": true, "clear": true, "setdefault": true, "discard": true,
		"push": true, "splice": true, "set": true, "delete": true,
	}
	constructorNames = map[string]bool{"__init__": true, "__new__": true, "constructor": true, "setUp": true}
)

func (d *ValueDetector) Category() analyzer.Category {
	return analyzer.Category(models.RuleValue)
}

func (d *ValueDetector) Detect(tree *ast.Tree, lines []string) []models.Violation {
	f := newFile(tree, lines)
	var out []models.Violation

	shared := moduleCollections(tree.Root)
	for _, name := range sortedKeys(shared) {
		var writers []string
		for _, fn := range f.funcs {
			if mutates(fn, name) {
				writers = append(writers, functionName(fn))
			}
		}
		if len(writers) == 0 {
			continue
		}
		out = append(out, f.violation(models.RuleValue, models.SeverityMedium, shared[name].Span,
			models.LocalitySameModule,
			fmt.Sprintf("Module-level collection '%s' is mutated by %s", name, strings.Join(writers, ", ")),
			"Keep the collection inside an object that owns its mutations, or pass it explicitly",
			map[string]any{
				"name":    name,
				"writers": strings.Join(writers, ", "),
			}))
	}

	for _, fn := range f.funcs {
		for _, g := range globalAssignments(fn) {
			out = append(out, f.violation(models.RuleValue, models.SeverityHigh, g.Span,
				models.LocalitySameModule,
				fmt.Sprintf("Function '%s' rebinds global '%s'", functionName(fn), g.Text),
				"Return the new value or hold it in an explicitly shared object",
				map[string]any{
					"function": functionName(fn),
					"name":     g.Text,
				}))
		}
	}

	for _, c := range ast.Classes(tree) {
		writers := make(map[string][]string)
		first := make(map[string]*ast.Node)
		for _, m := range c.Methods {
			if constructorNames[m.Name] {
				continue
			}
			written := make(map[string]bool)
			ast.WalkLocal(m.Body, func(n *ast.Node) bool {
				if n.Kind != ast.KindAssign && n.Kind != ast.KindAugAssign {
					return true
				}
				for _, t := range ast.AssignTargets(n) {
					if attr, ok := m.SelfAttribute(t); ok && !written[attr] {
						written[attr] = true
						writers[attr] = append(writers[attr], m.Name)
						if first[attr] == nil {
							first[attr] = t
						}
					}
				}
				return true
			})
		}
		for _, attr := range sortedKeys(writers) {
			if len(writers[attr]) < 2 {
				continue
			}
			out = append(out, f.violation(models.RuleValue, models.SeverityMedium, first[attr].Span,
				models.LocalitySameClass,
				fmt.Sprintf("Attribute '%s' of class '%s' is written by %d methods", attr, c.Name, len(writers[attr])),
				"Give the attribute a single writer so its invariants live in one place",
				map[string]any{
					"class":     c.Name,
					"attribute": attr,
					"writers":   strings.Join(writers[attr], ", "),
				}))
		}
	}
	return out
}

// moduleCollections returns names bound at module scope to list, dict or
// set literals, excluding UPPER_CASE constants.
func moduleCollections(root *ast.Node) map[string]*ast.Node {
	out := make(map[string]*ast.Node)
	for _, stmt := range root.Children {
		var assigns []*ast.Node
		switch stmt.Kind {
		case ast.KindAssign:
			assigns = []*ast.Node{stmt}
		case ast.KindExprStmt:
			for _, c := range stmt.Children {
				if c.Kind == ast.KindAssign {
					assigns = append(assigns, c)
				}
			}
		}
		for _, a := range assigns {
			right := unwrapSingle(a.Child(ast.FieldRight))
			if right == nil {
				continue
			}
			switch right.Kind {
			case ast.KindList, ast.KindDict, ast.KindSet:
			default:
				continue
			}
			for _, t := range ast.AssignTargets(a) {
				if t.Kind == ast.KindIdentifier && !isUpperConstant(t.Text) {
					if _, ok := out[t.Text]; !ok {
						out[t.Text] = t
					}
				}
			}
		}
	}
	return out
}

// mutates reports whether fn changes the module collection name in place.
func mutates(fn *ast.Function, name string) bool {
	local := localNames(fn)
	if local[name] && !declaresGlobal(fn, name) {
		return false
	}
	isName := func(n *ast.Node) bool {
		n = ast.Unparen(n)
		return n != nil && n.Kind == ast.KindIdentifier && n.Text == name
	}
	found := false
	ast.WalkLocal(fn.Body, func(n *ast.Node) bool {
		if found {
			return false
		}
		switch n.Kind {
		case ast.KindCall:
			callee := ast.Unparen(n.Child(ast.FieldFunc))
			if callee != nil && callee.Kind == ast.KindAttribute && isName(callee.Child(ast.FieldObject)) {
				if attr := callee.Child(ast.FieldAttr); attr != nil && mutatingMethods[strings.ToLower(attr.Text)] {
					found = true
				}
			}
		case ast.KindAssign, ast.KindAugAssign:
			for _, t := range ast.AssignTargets(n) {
				if t.Kind == ast.KindSubscript && (isName(t.Child(ast.FieldValue)) || isName(t.Child(ast.FieldObject))) {
					found = true
				}
			}
		}
		return true
	})
	return found
}

func declaresGlobal(fn *ast.Function, name string) bool {
	found := false
	ast.WalkLocal(fn.Body, func(n *ast.Node) bool {
		if n.Kind == ast.KindGlobal && n.HasKeyword("global") {
			for _, id := range ast.Identifiers(n) {
				if id == name {
					found = true
				}
			}
		}
		return !found
	})
	return found
}

// globalAssignments returns the assignment targets in fn that rebind names
// declared global in the same function.
func globalAssignments(fn *ast.Function) []*ast.Node {
	globals := make(map[string]bool)
	ast.WalkLocal(fn.Body, func(n *ast.Node) bool {
		if n.Kind == ast.KindGlobal && n.HasKeyword("global") {
			for _, id := range ast.Identifiers(n) {
				globals[id] = true
			}
		}
		return true
	})
	if len(globals) == 0 {
		return nil
	}
	var out []*ast.Node
	reported := make(map[string]bool)
	ast.WalkLocal(fn.Body, func(n *ast.Node) bool {
		if n.Kind != ast.KindAssign && n.Kind != ast.KindAugAssign {
			return true
		}
		for _, t := range ast.AssignTargets(n) {
			if t.Kind == ast.KindIdentifier && globals[t.Text] && !reported[t.Text] {
				reported[t.Text] = true
				out = append(out, t)
			}
		}
		return true
	})
	return out
}
