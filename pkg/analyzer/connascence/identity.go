package connascence

import (
	"fmt"

	"github.com/panbanda/connascence/pkg/analyzer"
	"github.com/panbanda/connascence/pkg/ast"
	"github.com/panbanda/connascence/pkg/config"
	"github.com/panbanda/connascence/pkg/models"
)

// IdentityDetector flags comparisons of object identity where value
// equality was meant. Only intra-procedural literal cases are considered.
type IdentityDetector struct {
	policy config.Policy
}

func (d *IdentityDetector) Category() analyzer.Category {
	return analyzer.Category(models.RuleIdentity)
}

func (d *IdentityDetector) Detect(tree *ast.Tree, lines []string) []models.Violation {
	f := newFile(tree, lines)
	var out []models.Violation

	fresh := make(map[*ast.Function]map[string]bool)
	freshIn := func(fn *ast.Function) map[string]bool {
		if fn == nil {
			return nil
		}
		if m, ok := fresh[fn]; ok {
			return m
		}
		m := freshBindings(fn)
		fresh[fn] = m
		return m
	}

	ast.WalkStack(tree.Root, func(n *ast.Node, stack []*ast.Node) bool {
		if n.Kind != ast.KindCompare {
			return true
		}
		ops := ast.Operands(n)
		if len(ops) != 2 {
			return true
		}
		l, r := ast.Unparen(ops[0]), ast.Unparen(ops[1])
		fn := f.enclosing(stack)

		switch op := n.Operator(); op {
		case "is", "is not":
			reason := identityReason(l, r, freshIn(fn))
			if reason == "" {
				return true
			}
			out = append(out, f.violation(models.RuleIdentity, models.SeverityHigh, n.Span, localityOf(fn),
				fmt.Sprintf("'%s' compares object identity %s", op, reason),
				"Compare with == unless the code really needs the same object",
				map[string]any{
					"function": functionName(fn),
					"operator": op,
				}))
		case "==", "!=", "===", "!==":
			if isIDCall(l) && isIDCall(r) {
				out = append(out, f.violation(models.RuleIdentity, models.SeverityMedium, n.Span, localityOf(fn),
					"Comparison of id() results couples the code to object identity",
					"Compare the objects with 'is', or compare their values",
					map[string]any{
						"function": functionName(fn),
						"operator": op,
					}))
			}
		}
		return true
	})
	return out
}

// identityReason explains why an is-comparison between l and r depends on
// interning or allocation details, or returns "".
func identityReason(l, r *ast.Node, fresh map[string]bool) string {
	singleton := func(n *ast.Node) bool {
		return n.Kind == ast.KindNone || n.Kind == ast.KindTrue || n.Kind == ast.KindFalse
	}
	if singleton(l) || singleton(r) {
		return ""
	}
	literal := func(n *ast.Node) bool {
		_, ok := ast.LiteralValue(n)
		return ok || n.Kind == ast.KindList || n.Kind == ast.KindDict || n.Kind == ast.KindSet || n.Kind == ast.KindTuple
	}
	switch {
	case literal(l) || literal(r):
		return "against a literal"
	case l.Kind == ast.KindCall && r.Kind == ast.KindCall:
		return "between two call results"
	case l.Kind == ast.KindIdentifier && r.Kind == ast.KindIdentifier &&
		l.Text != r.Text && fresh[l.Text] && fresh[r.Text]:
		return "between two freshly built values"
	}
	return ""
}

// freshBindings returns the names in fn bound only to literal values.
func freshBindings(fn *ast.Function) map[string]bool {
	out := make(map[string]bool)
	rebound := make(map[string]bool)
	ast.WalkLocal(fn.Body, func(n *ast.Node) bool {
		if n.Kind != ast.KindAssign {
			return true
		}
		right := unwrapSingle(n.Child(ast.FieldRight))
		isLiteral := false
		if right != nil {
			_, isLiteral = ast.LiteralValue(right)
			switch right.Kind {
			case ast.KindList, ast.KindDict, ast.KindSet, ast.KindTuple:
				isLiteral = true
			}
		}
		for _, t := range ast.AssignTargets(n) {
			if t.Kind != ast.KindIdentifier {
				continue
			}
			if isLiteral && !rebound[t.Text] {
				out[t.Text] = true
			} else {
				delete(out, t.Text)
				rebound[t.Text] = true
			}
		}
		return true
	})
	return out
}

func isIDCall(n *ast.Node) bool {
	return n != nil && n.Kind == ast.KindCall && ast.CallName(n) == "id" && len(ast.CallArgs(n)) == 1
}
