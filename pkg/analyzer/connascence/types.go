package connascence

import (
	"fmt"
	"strings"

	"github.com/panbanda/connascence/pkg/analyzer"
	"github.com/panbanda/connascence/pkg/ast"
	"github.com/panbanda/connascence/pkg/config"
	"github.com/panbanda/connascence/pkg/models"
)

// TypeDetector flags untyped parameters whose use implies a concrete type,
// and isinstance checks over wide unions that have no fallback branch.
type TypeDetector struct {
	policy config.Policy
}

var stringMethods = map[string]bool{
	"upper": true, "lower": true, "strip": true, "lstrip": true, "rstrip": true,
	"split": true, "startswith": true, "endswith": true, "replace": true,
	"format": true, "join": true, "encode": true, "capitalize": true,
	"touppercase": true, "tolowercase": true, "trim": true,
}

func (d *TypeDetector) Category() analyzer.Category {
	return analyzer.Category(models.RuleType)
}

func (d *TypeDetector) Detect(tree *ast.Tree, lines []string) []models.Violation {
	f := newFile(tree, lines)
	var out []models.Violation

	for _, fn := range f.funcs {
		if fn.Annotated() || fn.Body == nil {
			continue
		}
		for _, p := range fn.PositionalParams() {
			if p.Name == "" || p.Flags.Has(ast.FlagDefault) {
				continue
			}
			usage := impliedType(fn.Body, p.Name)
			if usage == "" {
				continue
			}
			out = append(out, f.violation(models.RuleType, models.SeverityLow, p.Span,
				models.LocalitySameFunction,
				fmt.Sprintf("Parameter '%s' of '%s' is used as %s but declares no type", p.Name, functionName(fn), usage),
				"Annotate the parameter so callers and tools agree on its type",
				map[string]any{
					"function":      functionName(fn),
					"parameter":     p.Name,
					"implied_usage": usage,
				}))
		}
	}

	ast.WalkStack(tree.Root, func(n *ast.Node, stack []*ast.Node) bool {
		if n.Kind != ast.KindCall || ast.CallName(n) != "isinstance" {
			return true
		}
		args := ast.CallArgs(n)
		if len(args) != 2 {
			return true
		}
		union := ast.Unparen(args[1])
		if union.Kind != ast.KindTuple || len(ast.Operands(union)) < 3 {
			return true
		}
		if guardedByElse(stack) {
			return true
		}
		fn := f.enclosing(stack)
		count := len(ast.Operands(union))
		out = append(out, f.violation(models.RuleType, models.SeverityLow, n.Span, localityOf(fn),
			fmt.Sprintf("isinstance check accepts %d unrelated types without a fallback branch", count),
			"Handle the remaining types explicitly or narrow the accepted types",
			map[string]any{
				"function":   functionName(fn),
				"type_count": count,
			}))
		return true
	})
	return out
}

// impliedType describes how the body uses name in a type-specific way, or
// returns the empty string.
func impliedType(body *ast.Node, name string) string {
	isParam := func(n *ast.Node) bool {
		n = ast.Unparen(n)
		return n != nil && n.Kind == ast.KindIdentifier && n.Text == name
	}
	var usage string
	ast.WalkLocal(body, func(n *ast.Node) bool {
		if usage != "" {
			return false
		}
		switch n.Kind {
		case ast.KindBinaryOp:
			ops := ast.Operands(n)
			if len(ops) != 2 {
				return true
			}
			l, r := ast.Unparen(ops[0]), ast.Unparen(ops[1])
			if (isParam(l) && r.Kind == ast.KindNumber) || (isParam(r) && l.Kind == ast.KindNumber) {
				usage = "a number"
			}
		case ast.KindCall:
			callee := ast.Unparen(n.Child(ast.FieldFunc))
			if callee == nil || callee.Kind != ast.KindAttribute {
				return true
			}
			attr := callee.Child(ast.FieldAttr)
			if isParam(callee.Child(ast.FieldObject)) && attr != nil && stringMethods[strings.ToLower(attr.Text)] {
				usage = "a string"
			}
		case ast.KindSubscript:
			obj := n.Child(ast.FieldValue)
			if obj == nil {
				obj = n.Child(ast.FieldObject)
			}
			idx := ast.Unparen(n.Child(ast.FieldIndex))
			if isParam(obj) && idx != nil && idx.Kind == ast.KindNumber {
				usage = "a sequence"
			}
		}
		return true
	})
	return usage
}

// guardedByElse reports whether the innermost conditional around the node
// has an else branch.
func guardedByElse(stack []*ast.Node) bool {
	for i := len(stack) - 1; i >= 0; i-- {
		n := stack[i]
		switch n.Kind {
		case ast.KindFunction, ast.KindLambda:
			return false
		case ast.KindIf, ast.KindElseIf:
			for _, c := range n.Children {
				if c.Kind == ast.KindElse {
					return true
				}
			}
			if n.Kind == ast.KindIf {
				return false
			}
		}
	}
	return false
}
