package connascence

import (
	"fmt"

	"github.com/panbanda/connascence/pkg/analyzer"
	"github.com/panbanda/connascence/pkg/ast"
	"github.com/panbanda/connascence/pkg/config"
	"github.com/panbanda/connascence/pkg/models"
)

// GodObjectDetector flags classes with more methods or attributes than the
// policy allows. The configured thresholds are always honored as given.
type GodObjectDetector struct {
	policy config.Policy
}

func (d *GodObjectDetector) Category() analyzer.Category {
	return analyzer.Category(models.RuleGodObject)
}

func (d *GodObjectDetector) Detect(tree *ast.Tree, lines []string) []models.Violation {
	f := newFile(tree, lines)
	methodLimit := d.policy.GodObjectMethodThreshold
	attrLimit := d.policy.GodObjectAttributeThreshold

	var out []models.Violation
	for _, c := range ast.Classes(tree) {
		methods, attrs := len(c.Methods), len(c.Attributes)
		if methods <= methodLimit && attrs <= attrLimit {
			continue
		}
		var desc string
		switch {
		case methods > methodLimit && attrs > attrLimit:
			desc = fmt.Sprintf("Class '%s' has %d methods and %d attributes (limits %d and %d)",
				c.Name, methods, attrs, methodLimit, attrLimit)
		case methods > methodLimit:
			desc = fmt.Sprintf("Class '%s' has %d methods (limit %d)", c.Name, methods, methodLimit)
		default:
			desc = fmt.Sprintf("Class '%s' has %d attributes (limit %d)", c.Name, attrs, attrLimit)
		}
		out = append(out, f.violation(models.RuleGodObject, models.SeverityHigh, c.Node.Span,
			models.LocalitySameClass, desc,
			"Split the class along its responsibilities",
			map[string]any{
				"class":               c.Name,
				"method_count":        methods,
				"attribute_count":     attrs,
				"method_threshold":    methodLimit,
				"attribute_threshold": attrLimit,
			}))
	}
	return out
}
