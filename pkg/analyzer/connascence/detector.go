// Package connascence implements the nine connascence detectors and the
// God-Object detector. Every detector is a pure function of a parsed file.
package connascence

import (
	"fmt"
	"slices"
	"strings"

	"github.com/panbanda/connascence/pkg/analyzer"
	"github.com/panbanda/connascence/pkg/ast"
	"github.com/panbanda/connascence/pkg/config"
	"github.com/panbanda/connascence/pkg/models"
)

// Kinds lists the rule kinds this package detects, in execution order.
func Kinds() []models.RuleKind {
	return append(models.ConnascenceKinds(), models.RuleGodObject)
}

// New returns the detector for kind configured by policy.
func New(kind models.RuleKind, policy config.Policy) (analyzer.Detector, error) {
	switch kind {
	case models.RuleName:
		return &NameDetector{policy: policy}, nil
	case models.RuleType:
		return &TypeDetector{policy: policy}, nil
	case models.RuleMeaning:
		return &MeaningDetector{policy: policy}, nil
	case models.RulePosition:
		return &PositionDetector{policy: policy}, nil
	case models.RuleAlgorithm:
		return &AlgorithmDetector{policy: policy}, nil
	case models.RuleExecution:
		return &ExecutionDetector{policy: policy}, nil
	case models.RuleTiming:
		return &TimingDetector{policy: policy}, nil
	case models.RuleValue:
		return &ValueDetector{policy: policy}, nil
	case models.RuleIdentity:
		return &IdentityDetector{policy: policy}, nil
	case models.RuleGodObject:
		return &GodObjectDetector{policy: policy}, nil
	}
	return nil, fmt.Errorf("no connascence detector for rule kind %q", kind)
}

// file bundles a parsed file with lookups shared by the detectors. It lives
// for a single Detect call.
type file struct {
	tree   *ast.Tree
	lines  []string
	funcs  []*ast.Function
	byNode map[*ast.Node]*ast.Function
}

func newFile(tree *ast.Tree, lines []string) *file {
	f := &file{tree: tree, lines: lines, funcs: ast.Functions(tree)}
	f.byNode = make(map[*ast.Node]*ast.Function, len(f.funcs))
	for _, fn := range f.funcs {
		f.byNode[fn.Node] = fn
	}
	return f
}

// enclosing returns the innermost function on the ancestor stack.
func (f *file) enclosing(stack []*ast.Node) *ast.Function {
	for i := len(stack) - 1; i >= 0; i-- {
		if fn, ok := f.byNode[stack[i]]; ok {
			return fn
		}
	}
	return nil
}

// snippet returns the trimmed source line, if available.
func (f *file) snippet(line int) string {
	if line < 1 || line > len(f.lines) {
		return ""
	}
	return strings.TrimSpace(f.lines[line-1])
}

func (f *file) violation(kind models.RuleKind, sev models.Severity, span ast.Span, loc models.Locality,
	description, recommendation string, context map[string]any) models.Violation {
	if context == nil {
		context = map[string]any{}
	}
	if s := f.snippet(span.StartLine); s != "" {
		context["snippet"] = s
	}
	return models.NewViolation(kind, sev, f.tree.Path,
		models.Location{Line: span.StartLine, Column: span.StartCol, EndLine: span.EndLine},
		loc, description, recommendation, context)
}

// localityOf returns same_function inside a function and same_module otherwise.
func localityOf(fn *ast.Function) models.Locality {
	if fn != nil {
		return models.LocalitySameFunction
	}
	return models.LocalitySameModule
}

// functionName is the display name of fn, or "<module>" at top level.
func functionName(fn *ast.Function) string {
	if fn == nil {
		return "<module>"
	}
	if fn.Node.Kind == ast.KindLambda || fn.Name == "" {
		return "<anonymous>"
	}
	return fn.QualifiedName()
}

// inLoop reports whether the stack contains a loop inside the current function.
func inLoop(stack []*ast.Node) bool {
	return ast.NearestWithin(stack, ast.KindWhile, ast.KindFor) != nil
}

// inTry reports whether the stack contains a try or with block inside the current function.
func inTry(stack []*ast.Node) bool {
	return ast.NearestWithin(stack, ast.KindTry, ast.KindWith) != nil
}

// callSegment returns the lower-cased last segment of the callee name.
func callSegment(call *ast.Node) string {
	return strings.ToLower(ast.LastSegment(ast.CallName(call)))
}

func isUpperConstant(name string) bool {
	hasLetter := false
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z':
			return false
		case r >= 'A' && r <= 'Z':
			hasLetter = true
		}
	}
	return hasLetter
}

// sortedKeys returns the keys of m in sorted order.
func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// unwrapSingle strips parentheses and one-element expression lists, such as
// the right-hand side of a Go short variable declaration.
func unwrapSingle(n *ast.Node) *ast.Node {
	n = ast.Unparen(n)
	if n != nil && n.Kind == ast.KindOther {
		if ops := ast.Operands(n); len(ops) == 1 {
			return ast.Unparen(ops[0])
		}
	}
	return n
}
