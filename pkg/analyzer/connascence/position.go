package connascence

import (
	"fmt"

	"github.com/panbanda/connascence/pkg/analyzer"
	"github.com/panbanda/connascence/pkg/ast"
	"github.com/panbanda/connascence/pkg/config"
	"github.com/panbanda/connascence/pkg/models"
)

// PositionDetector flags functions and call sites that depend on the order of
// many positional values.
type PositionDetector struct {
	policy config.Policy
}

func (d *PositionDetector) Category() analyzer.Category {
	return analyzer.Category(models.RulePosition)
}

func (d *PositionDetector) Detect(tree *ast.Tree, lines []string) []models.Violation {
	f := newFile(tree, lines)
	limit := d.policy.MaxPositionalParams
	var out []models.Violation

	for _, fn := range f.funcs {
		params := fn.PositionalParams()
		if len(params) <= limit {
			continue
		}
		out = append(out, f.violation(models.RulePosition, models.SeverityHigh, fn.Span(),
			models.LocalitySameFunction,
			fmt.Sprintf("Function '%s' takes %d positional parameters (maximum %d)", functionName(fn), len(params), limit),
			"Group related parameters into an object or make them keyword-only",
			map[string]any{
				"function":        functionName(fn),
				"parameter_count": len(params),
				"threshold":       limit,
			}))
	}

	ast.WalkStack(tree.Root, func(n *ast.Node, stack []*ast.Node) bool {
		if n.Kind != ast.KindCall {
			return true
		}
		count := positionalArgCount(n)
		if count <= limit {
			return true
		}
		out = append(out, f.violation(models.RulePosition, models.SeverityMedium, n.Span,
			models.LocalitySameModule,
			fmt.Sprintf("Call to '%s' passes %d positional arguments (maximum %d)", ast.CallName(n), count, limit),
			"Pass arguments by keyword so callers do not depend on parameter order",
			map[string]any{
				"callee":         ast.CallName(n),
				"argument_count": count,
				"threshold":      limit,
			}))
		return true
	})
	return out
}

func positionalArgCount(call *ast.Node) int {
	count := 0
	for _, a := range ast.CallArgs(call) {
		switch a.Kind {
		case ast.KindKeywordArg:
			continue
		case ast.KindOther:
			// splats such as *args and **kwargs
			if a.Type == "list_splat" || a.Type == "dictionary_splat" || a.Type == "spread_element" {
				continue
			}
		}
		count++
	}
	return count
}
