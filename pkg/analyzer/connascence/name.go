package connascence

import (
	"fmt"
	"strings"

	"github.com/panbanda/connascence/pkg/analyzer"
	"github.com/panbanda/connascence/pkg/ast"
	"github.com/panbanda/connascence/pkg/config"
	"github.com/panbanda/connascence/pkg/models"
)

// NameDetector flags module names that many function scopes depend on by
// name, so renaming one forces edits across all of them.
type NameDetector struct {
	policy config.Policy
}

var builtinNames = map[string]bool{
	"self": true, "cls": true, "this": true, "super": true,
	"print": true, "len": true, "range": true, "str": true, "int": true, "float": true,
	"bool": true, "list": true, "dict": true, "set": true, "tuple": true, "object": true,
	"isinstance": true, "issubclass": true, "getattr": true, "setattr": true, "hasattr": true,
	"enumerate": true, "zip": true, "map": true, "filter": true, "sorted": true, "reversed": true,
	"min": true, "max": true, "sum": true, "any": true, "all": true, "abs": true, "open": true,
	"type": true, "id": true, "repr": true, "iter": true, "next": true, "round": true,
	"Exception": true, "ValueError": true, "TypeError": true, "KeyError": true, "RuntimeError": true,
	"NotImplementedError": true, "None": true, "True": true, "False": true,
	"console": true, "undefined": true, "Promise": true, "Object": true, "Array": true,
	"JSON": true, "Math": true, "Error": true, "require": true, "module": true, "exports": true,
	"nil": true, "err": true, "make": true, "new": true, "append": true, "cap": true,
	"panic": true, "string": true, "error": true,
}

type nameUse struct {
	scopes map[*ast.Function]bool
	first  *ast.Node
}

func (d *NameDetector) Category() analyzer.Category {
	return analyzer.Category(models.RuleName)
}

func (d *NameDetector) Detect(tree *ast.Tree, lines []string) []models.Violation {
	f := newFile(tree, lines)
	threshold := d.policy.NameFanoutThreshold
	imported := importedNames(tree.Root)

	uses := make(map[string]*nameUse)
	for _, fn := range f.funcs {
		local := localNames(fn)
		ast.WalkLocal(fn.Body, func(n *ast.Node) bool {
			switch n.Kind {
			case ast.KindKeywordArg:
				// the keyword itself names a parameter of the callee
				if v := n.Child(ast.FieldValue); v != nil {
					ast.WalkLocal(v, func(c *ast.Node) bool { return visitName(c, fn, local, imported, uses) })
				}
				return false
			case ast.KindTypeAnnotation:
				return false
			}
			return visitName(n, fn, local, imported, uses)
		})
	}

	defs := moduleDefinitions(tree.Root)
	var out []models.Violation
	for _, name := range sortedKeys(uses) {
		u := uses[name]
		if len(u.scopes) < threshold {
			continue
		}
		site := u.first
		if def, ok := defs[name]; ok {
			site = def
		}
		out = append(out, f.violation(models.RuleName, models.SeverityMedium, site.Span,
			models.LocalitySameModule,
			fmt.Sprintf("Name '%s' is referenced from %d functions (threshold %d)", name, len(u.scopes), threshold),
			"Reduce direct references by passing the value in or hiding it behind one accessor",
			map[string]any{
				"name":        name,
				"scope_count": len(u.scopes),
				"threshold":   threshold,
			}))
	}
	return out
}

func visitName(n *ast.Node, fn *ast.Function, local, imported map[string]bool, uses map[string]*nameUse) bool {
	if n.Kind != ast.KindIdentifier || n.Field == ast.FieldAttr {
		return true
	}
	name := n.Text
	switch {
	case len(name) <= 1, strings.HasPrefix(name, "_"), builtinNames[name],
		local[name], imported[name], n.Type == "package_identifier", n.Type == "type_identifier":
		return true
	}
	u := uses[name]
	if u == nil {
		u = &nameUse{scopes: make(map[*ast.Function]bool), first: n}
		uses[name] = u
	}
	u.scopes[fn] = true
	return true
}

// localNames returns the parameters and names bound inside fn.
func localNames(fn *ast.Function) map[string]bool {
	local := make(map[string]bool)
	if self := fn.SelfName(); self != "" {
		local[self] = true
	}
	for _, p := range fn.Params {
		if p.Name != "" {
			local[p.Name] = true
		}
	}
	if fn.Body == nil {
		return local
	}
	ast.WalkLocal(fn.Body, func(n *ast.Node) bool {
		switch n.Kind {
		case ast.KindAssign, ast.KindAugAssign:
			for _, t := range ast.AssignTargets(n) {
				if t.Kind == ast.KindIdentifier {
					local[t.Text] = true
				}
			}
		case ast.KindFunction, ast.KindClass:
			if n.Name != "" {
				local[n.Name] = true
			}
		default:
			// loop, comprehension and with/except targets
			if left := n.Child(ast.FieldLeft); left != nil && n.Kind != ast.KindBinaryOp && n.Kind != ast.KindCompare && n.Kind != ast.KindBoolOp {
				for _, id := range ast.Identifiers(left) {
					local[id] = true
				}
			}
			if (n.Type == "as_pattern_target" || n.Type == "as_pattern") && len(n.Children) > 0 {
				for _, id := range ast.Identifiers(n.Children[len(n.Children)-1]) {
					local[id] = true
				}
			}
		}
		return true
	})
	return local
}

// importedNames collects names bound by import statements anywhere in the file.
func importedNames(root *ast.Node) map[string]bool {
	out := make(map[string]bool)
	for _, imp := range ast.Collect(root, ast.KindImport) {
		for _, id := range ast.Identifiers(imp) {
			out[id] = true
		}
	}
	return out
}

// moduleDefinitions maps top-level function, class and variable names to
// the node naming them.
func moduleDefinitions(root *ast.Node) map[string]*ast.Node {
	defs := make(map[string]*ast.Node)
	record := func(name string, n *ast.Node) {
		if _, ok := defs[name]; !ok && name != "" {
			defs[name] = n
		}
	}
	for _, c := range root.Children {
		stmt := c
		if def := c.Child(ast.FieldDefinition); def != nil {
			stmt = def
		}
		switch stmt.Kind {
		case ast.KindFunction, ast.KindClass:
			if name := stmt.Child(ast.FieldName); name != nil {
				record(stmt.Name, name)
			} else {
				record(stmt.Name, stmt)
			}
		case ast.KindExprStmt, ast.KindAssign:
			for _, t := range ast.AssignTargets(stmt) {
				if t.Kind == ast.KindIdentifier {
					record(t.Text, t)
				}
			}
		}
	}
	return defs
}
