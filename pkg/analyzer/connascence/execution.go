package connascence

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/panbanda/connascence/pkg/analyzer"
	"github.com/panbanda/connascence/pkg/ast"
	"github.com/panbanda/connascence/pkg/config"
	"github.com/panbanda/connascence/pkg/models"
)

// ExecutionDetector flags code whose correctness depends on operations
// running in a particular order.
type ExecutionDetector struct {
	policy config.Policy
}

var (
	setupMethods = map[string]bool{
		"setup": true, "set_up": true, "setUp": true, "initialize": true, "init": true,
		"connect": true, "start": true, "open": true, "begin": true,
	}
	teardownMethods = map[string]bool{
		"teardown": true, "tear_down": true, "tearDown": true, "cleanup": true, "clean_up": true,
		"disconnect": true, "stop": true, "close": true, "shutdown": true,
	}
	transactionalCalls = map[string]bool{
		"begin": true, "commit": true, "rollback": true,
		"connect": true, "send": true, "sendall": true, "recv": true, "receive": true,
	}
	fileCalls = map[string]bool{"open": true, "write": true, "read": true}
)

func (d *ExecutionDetector) Category() analyzer.Category {
	return analyzer.Category(models.RuleExecution)
}

func (d *ExecutionDetector) Detect(tree *ast.Tree, lines []string) []models.Violation {
	f := newFile(tree, lines)
	var out []models.Violation

	for _, c := range ast.Classes(tree) {
		var setup, teardown string
		for _, m := range c.Methods {
			name := lowerFirst(m.Name)
			switch {
			case setup == "" && setupMethods[name]:
				setup = m.Name
			case teardown == "" && teardownMethods[name]:
				teardown = m.Name
			}
		}
		if setup == "" || teardown == "" {
			continue
		}
		out = append(out, f.violation(models.RuleExecution, models.SeverityMedium, c.Node.Span,
			models.LocalitySameClass,
			fmt.Sprintf("Class '%s' requires '%s' before and '%s' after use", c.Name, setup, teardown),
			"Expose the lifecycle through a context manager or a single scoped helper",
			map[string]any{
				"class":    c.Name,
				"setup":    setup,
				"teardown": teardown,
			}))
	}

	for _, fn := range f.funcs {
		var transactional, files []*ast.Node
		ast.WalkStack(fn.Body, func(n *ast.Node, stack []*ast.Node) bool {
			switch n.Kind {
			case ast.KindFunction, ast.KindLambda, ast.KindClass:
				return false
			case ast.KindTry:
				return false
			case ast.KindCall:
				seg := callSegment(n)
				switch {
				case transactionalCalls[seg]:
					transactional = append(transactional, n)
				case fileCalls[seg] && !inTry(stack):
					files = append(files, n)
				}
			}
			return true
		})
		if len(transactional) >= 2 {
			out = append(out, d.sequence(f, fn, transactional, models.SeverityHigh,
				"transactional or network"))
		}
		if len(files) >= 2 {
			out = append(out, d.sequence(f, fn, files, models.SeverityMedium, "file"))
		}
	}
	return out
}

func (d *ExecutionDetector) sequence(f *file, fn *ast.Function, calls []*ast.Node, sev models.Severity, what string) models.Violation {
	names := make([]string, len(calls))
	for i, c := range calls {
		names[i] = ast.CallName(c)
	}
	return f.violation(models.RuleExecution, sev, calls[0].Span, models.LocalitySameFunction,
		fmt.Sprintf("Function '%s' runs %d %s operations in sequence without error handling", functionName(fn), len(calls), what),
		"Wrap the sequence in try/finally or a context manager so partial failures are cleaned up",
		map[string]any{
			"function":   functionName(fn),
			"operations": strings.Join(names, ", "),
			"count":      len(calls),
		})
}

// lowerFirst folds an exported Go name such as Close onto close.
func lowerFirst(name string) string {
	r, size := utf8.DecodeRuneInString(name)
	if r == utf8.RuneError || !unicode.IsUpper(r) {
		return name
	}
	return string(unicode.ToLower(r)) + name[size:]
}
