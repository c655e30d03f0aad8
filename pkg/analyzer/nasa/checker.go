// Package nasa checks functions against a ten-rule, NASA-style set of
// safety constraints and records a per-function compliance outcome for
// every rule.
package nasa

import (
	"fmt"
	"slices"
	"strings"

	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"

	"github.com/panbanda/connascence/pkg/analyzer"
	"github.com/panbanda/connascence/pkg/ast"
	"github.com/panbanda/connascence/pkg/config"
	"github.com/panbanda/connascence/pkg/models"
)

var (
	growthMethods = map[string]bool{
		"append": true, "extend": true, "insert": true, "add": true, "update": true, "push": true,
	}
	setupMethods = map[string]bool{
		"__init__": true, "__new__": true, "constructor": true, "setup": true, "setUp": true, "init": true,
	}
	fallibleCalls = map[string]bool{
		"open": true, "read": true, "write": true, "send": true, "sendall": true, "recv": true,
		"connect": true, "remove": true, "unlink": true, "rmdir": true, "rename": true,
		"removeall": true, "removedirs": true, "writefile": true, "readfile": true,
	}
	assertionCalls = map[string]bool{"panic": true, "invariant": true}
	suppressMarkers = []string{"nolint", "noqa", "nasa:ignore"}
)

// Checker evaluates the NASA-style rules. It is safe to reuse across files:
// every finding is derived from the arguments of a single call.
type Checker struct {
	policy config.Policy
}

// New returns a checker configured by policy.
func New(policy config.Policy) *Checker {
	return &Checker{policy: policy}
}

func (c *Checker) Category() analyzer.Category {
	return analyzer.CategoryNASA
}

// Detect implements analyzer.Detector.
func (c *Checker) Detect(tree *ast.Tree, lines []string) []models.Violation {
	vs, _ := c.Check(tree, lines)
	return vs
}

// Check evaluates every rule for every function in tree. It returns the
// violations to surface and one compliance record per function.
func (c *Checker) Check(tree *ast.Tree, lines []string) ([]models.Violation, []models.FunctionCompliance) {
	chk := &check{
		policy: c.policy,
		tree:   tree,
		lines:  lines,
		funcs:  ast.Functions(tree),
	}
	recursive := chk.recursion()

	records := make([]models.FunctionCompliance, 0, len(chk.funcs))
	for i, fn := range chk.funcs {
		rec := models.FunctionCompliance{
			File:     tree.Path,
			Function: fn.QualifiedName(),
			Line:     fn.Node.Span.StartLine,
		}
		rec.Outcomes[0] = chk.ruleRecursion(fn, recursive[i])
		rec.Outcomes[1] = chk.ruleLoops(fn)
		rec.Outcomes[2] = chk.ruleGrowth(fn)
		rec.Outcomes[3] = chk.ruleLength(fn)
		rec.Outcomes[4] = chk.ruleAssertions(fn)
		rec.Outcomes[5] = chk.ruleParams(fn)
		rec.Outcomes[6] = chk.ruleUnchecked(fn)
		rec.Outcomes[7] = chk.ruleScope(fn)
		rec.Outcomes[8] = chk.ruleIndirection(fn)
		rec.Outcomes[9] = models.OutcomeNotApplicable
		records = append(records, rec)
	}
	chk.moduleGlobals()
	return chk.out, records
}

// check holds the state of one Check call.
type check struct {
	policy    config.Policy
	tree      *ast.Tree
	lines     []string
	funcs     []*ast.Function
	out       []models.Violation
	unchecked int
}

func (k *check) add(n int, sev models.Severity, span ast.Span, loc models.Locality,
	description, recommendation string, context map[string]any) {
	if context == nil {
		context = map[string]any{}
	}
	if s := k.snippet(span.StartLine); s != "" {
		context["snippet"] = s
	}
	k.out = append(k.out, models.NewViolation(models.NasaRule(n), sev, k.tree.Path,
		models.Location{Line: span.StartLine, Column: span.StartCol, EndLine: span.EndLine},
		loc, description, recommendation, context))
}

func (k *check) snippet(line int) string {
	if line < 1 || line > len(k.lines) {
		return ""
	}
	return strings.TrimSpace(k.lines[line-1])
}

// suppressed reports whether the source line carries an explicit discard marker.
func (k *check) suppressed(line int) bool {
	if line < 1 || line > len(k.lines) {
		return false
	}
	text := k.lines[line-1]
	for _, m := range suppressMarkers {
		if strings.Contains(text, m) {
			return true
		}
	}
	return false
}

// cycle describes how a function takes part in recursion.
type cycle struct {
	self    bool
	members []string
}

// recursion builds the file's call graph and finds direct recursion as self
// edges and mutual recursion as strongly connected components.
func (k *check) recursion() []cycle {
	out := make([]cycle, len(k.funcs))
	g := simple.NewDirectedGraph()
	for i := range k.funcs {
		g.AddNode(simple.Node(int64(i)))
	}
	for i, fn := range k.funcs {
		for _, j := range k.callees(fn) {
			if j == i {
				out[i].self = true
				continue
			}
			g.SetEdge(simple.Edge{F: simple.Node(int64(i)), T: simple.Node(int64(j))})
		}
	}
	for _, scc := range topo.TarjanSCC(g) {
		if len(scc) < 2 {
			continue
		}
		names := make([]string, 0, len(scc))
		ids := make([]int, 0, len(scc))
		for _, n := range scc {
			id := int(n.ID())
			ids = append(ids, id)
		}
		slices.Sort(ids)
		for _, id := range ids {
			names = append(names, k.funcs[id].QualifiedName())
		}
		for _, id := range ids {
			out[id].members = names
		}
	}
	return out
}

// callees resolves the calls in fn to functions of the same file.
func (k *check) callees(fn *ast.Function) []int {
	var out []int
	seen := make(map[int]bool)
	self := fn.SelfName()
	ast.WalkLocal(fn.Body, func(n *ast.Node) bool {
		if n.Kind != ast.KindCall {
			return true
		}
		callee := ast.Unparen(n.Child(ast.FieldFunc))
		if callee == nil {
			return true
		}
		for j, target := range k.funcs {
			if seen[j] || !resolves(callee, fn, self, target) {
				continue
			}
			seen[j] = true
			out = append(out, j)
		}
		return true
	})
	return out
}

// resolves reports whether callee, written inside caller, names target.
func resolves(callee *ast.Node, caller *ast.Function, self string, target *ast.Function) bool {
	switch callee.Kind {
	case ast.KindIdentifier:
		if callee.Text != target.Name || target.IsMethod() {
			return false
		}
		// Nested functions are only visible from their parent or siblings.
		return target.Parent == nil || target.Parent == caller || target.Parent == caller.Parent || target == caller
	case ast.KindAttribute:
		obj := ast.Unparen(callee.Child(ast.FieldObject))
		attr := callee.Child(ast.FieldAttr)
		if obj == nil || attr == nil || obj.Kind != ast.KindIdentifier || attr.Text != target.Name {
			return false
		}
		if obj.Text == self && self != "" {
			if caller.Class != nil {
				return target.Class == caller.Class
			}
			return caller.ReceiverType() != "" && caller.ReceiverType() == target.ReceiverType()
		}
	}
	return false
}

func (k *check) ruleRecursion(fn *ast.Function, c cycle) models.RuleOutcome {
	switch {
	case c.self:
		k.add(1, models.SeverityCritical, fn.Node.Span, models.LocalitySameFunction,
			fmt.Sprintf("Function '%s' calls itself", fn.QualifiedName()),
			"Rewrite the recursion as a loop with an explicit bound",
			map[string]any{"function": fn.QualifiedName(), "cycle": fn.QualifiedName()})
		return models.OutcomeViolated
	case len(c.members) > 0:
		k.add(1, models.SeverityCritical, fn.Node.Span, models.LocalitySameModule,
			fmt.Sprintf("Function '%s' is part of a recursive call cycle", fn.QualifiedName()),
			"Break the cycle so every call chain terminates without recursion",
			map[string]any{"function": fn.QualifiedName(), "cycle": strings.Join(c.members, " -> ")})
		return models.OutcomeViolated
	}
	return models.OutcomeSatisfied
}

func (k *check) ruleLoops(fn *ast.Function) models.RuleOutcome {
	loops := 0
	outcome := models.OutcomeSatisfied
	ast.WalkLocal(fn.Body, func(n *ast.Node) bool {
		if !n.Kind.IsLoop() {
			return true
		}
		loops++
		if !unbounded(n) || hasExit(n) {
			return true
		}
		outcome = models.OutcomeViolated
		k.add(2, models.SeverityCritical, n.Span, models.LocalitySameFunction,
			fmt.Sprintf("Loop in '%s' has no bound and no reachable break", fn.QualifiedName()),
			"Give the loop an explicit iteration limit or a reachable exit",
			map[string]any{"function": fn.QualifiedName()})
		return true
	})
	if loops == 0 {
		return models.OutcomeNotApplicable
	}
	return outcome
}

// unbounded reports whether a loop's condition can never become false.
func unbounded(loop *ast.Node) bool {
	cond := ast.Unparen(loop.Child(ast.FieldCond))
	switch loop.Kind {
	case ast.KindWhile:
	case ast.KindFor:
		// Only C-style for loops carry a condition field; for (;;) leaves it empty.
		if loop.Child("initializer") == nil && loop.Child("increment") == nil && cond == nil {
			return false
		}
		if cond != nil && cond.Kind == ast.KindExprStmt && len(cond.Children) > 0 {
			cond = ast.Unparen(cond.Children[0])
		} else if cond != nil && cond.Kind == ast.KindPass {
			cond = nil
		}
	default:
		return false
	}
	if cond == nil {
		return true
	}
	switch cond.Kind {
	case ast.KindTrue:
		return true
	case ast.KindNumber:
		return strings.Trim(cond.Text, "0.") != ""
	}
	return false
}

// hasExit reports whether the loop body contains a break that leaves this
// loop, or a return or raise.
func hasExit(loop *ast.Node) bool {
	found := false
	ast.Walk(loop.Child(ast.FieldBody), func(n *ast.Node) bool {
		if found {
			return false
		}
		switch n.Kind {
		case ast.KindBreak, ast.KindReturn, ast.KindRaise:
			found = true
			return false
		case ast.KindWhile, ast.KindFor:
			// Breaks inside nested loops leave only those loops.
			found = ast.Contains(n, func(c *ast.Node) bool {
				return c.Kind == ast.KindReturn || c.Kind == ast.KindRaise
			})
			return false
		case ast.KindFunction, ast.KindLambda, ast.KindClass:
			return false
		}
		return true
	})
	return found
}

func (k *check) ruleGrowth(fn *ast.Function) models.RuleOutcome {
	whiles := 0
	outcome := models.OutcomeSatisfied
	setup := setupMethods[fn.Name] || strings.HasPrefix(strings.ToLower(fn.Name), "setup")
	ast.WalkStack(fn.Body, func(n *ast.Node, stack []*ast.Node) bool {
		switch n.Kind {
		case ast.KindFunction, ast.KindLambda, ast.KindClass:
			return false
		case ast.KindWhile:
			whiles++
		}
		if setup || ast.Nearest(stack, ast.KindWhile) == nil {
			return true
		}
		var what string
		switch n.Kind {
		case ast.KindCall:
			if seg := strings.ToLower(ast.LastSegment(ast.CallName(n))); growthMethods[seg] {
				what = ast.CallName(n)
			}
		case ast.KindAugAssign:
			if right := ast.Unparen(n.Child(ast.FieldRight)); right != nil && right.Kind == ast.KindList && n.Operator() == "+=" {
				what = "+="
			}
		}
		if what == "" {
			return true
		}
		outcome = models.OutcomeViolated
		k.add(3, models.SeverityHigh, n.Span, models.LocalitySameFunction,
			fmt.Sprintf("Collection grows inside a long-lived loop in '%s'", fn.QualifiedName()),
			"Preallocate the collection during initialization or bound its size",
			map[string]any{"function": fn.QualifiedName(), "operation": what})
		return true
	})
	if whiles == 0 {
		return models.OutcomeNotApplicable
	}
	return outcome
}

// logicalLines counts the non-blank, non-comment source lines of fn.
func (k *check) logicalLines(fn *ast.Function) int {
	span := fn.Node.Span
	if len(k.lines) == 0 {
		return span.Lines()
	}
	count := 0
	for line := span.StartLine; line <= span.EndLine && line <= len(k.lines); line++ {
		text := strings.TrimSpace(k.lines[line-1])
		if text == "" || strings.HasPrefix(text, "#") || strings.HasPrefix(text, "//") {
			continue
		}
		count++
	}
	return count
}

func (k *check) ruleLength(fn *ast.Function) models.RuleOutcome {
	n := k.logicalLines(fn)
	if n <= k.policy.MaxFunctionLines {
		return models.OutcomeSatisfied
	}
	k.add(4, models.SeverityHigh, fn.Node.Span, models.LocalitySameFunction,
		fmt.Sprintf("Function '%s' has %d logical lines (limit %d)", fn.QualifiedName(), n, k.policy.MaxFunctionLines),
		"Split the function into smaller units",
		map[string]any{"function": fn.QualifiedName(), "lines": n, "threshold": k.policy.MaxFunctionLines})
	return models.OutcomeViolated
}

func (k *check) ruleAssertions(fn *ast.Function) models.RuleOutcome {
	if k.logicalLines(fn) < k.policy.AssertionMinFunctionLines {
		return models.OutcomeNotApplicable
	}
	asserts := 0
	ast.WalkLocal(fn.Body, func(n *ast.Node) bool {
		switch n.Kind {
		case ast.KindAssert:
			asserts++
		case ast.KindCall:
			seg := strings.ToLower(ast.LastSegment(ast.CallName(n)))
			if strings.HasPrefix(seg, "assert") || assertionCalls[seg] {
				asserts++
			}
		}
		return true
	})
	if asserts >= k.policy.MinAssertions {
		return models.OutcomeSatisfied
	}
	k.add(5, models.SeverityMedium, fn.Node.Span, models.LocalitySameFunction,
		fmt.Sprintf("Function '%s' has %d assertions (minimum %d)", fn.QualifiedName(), asserts, k.policy.MinAssertions),
		"Assert the function's preconditions and invariants",
		map[string]any{"function": fn.QualifiedName(), "assertions": asserts, "minimum": k.policy.MinAssertions})
	return models.OutcomeViolated
}

// paramCount counts every declared parameter except the receiver.
func paramCount(fn *ast.Function) int {
	n := 0
	for i, p := range fn.Params {
		if p.Flags.Has(ast.FlagReceiver) {
			continue
		}
		if i == 0 && fn.IsMethod() && (p.Name == "self" || p.Name == "cls") {
			continue
		}
		n++
	}
	return n
}

func (k *check) ruleParams(fn *ast.Function) models.RuleOutcome {
	n := paramCount(fn)
	if n <= k.policy.MaxNasaParams {
		return models.OutcomeSatisfied
	}
	// The Position detector already reports functions over its own limit.
	if len(fn.PositionalParams()) <= k.policy.MaxPositionalParams {
		k.add(6, models.SeverityMedium, fn.Node.Span, models.LocalitySameFunction,
			fmt.Sprintf("Function '%s' takes %d parameters (limit %d)", fn.QualifiedName(), n, k.policy.MaxNasaParams),
			"Group related parameters into a single value",
			map[string]any{"function": fn.QualifiedName(), "parameter_count": n, "threshold": k.policy.MaxNasaParams})
	}
	return models.OutcomeViolated
}

func (k *check) ruleUnchecked(fn *ast.Function) models.RuleOutcome {
	outcome := models.OutcomeSatisfied
	ast.WalkLocal(fn.Body, func(n *ast.Node) bool {
		if n.Kind != ast.KindExprStmt || n.Type == "defer_statement" {
			return true
		}
		call := bareCall(n)
		if call == nil || k.suppressed(call.Span.StartLine) {
			return true
		}
		name := ast.CallName(call)
		if !fallible(name) {
			return true
		}
		outcome = models.OutcomeViolated
		k.unchecked++
		if k.unchecked > k.policy.MaxUncheckedCalls {
			return true
		}
		k.add(7, models.SeverityMedium, call.Span, models.LocalitySameFunction,
			fmt.Sprintf("Result of fallible call '%s' is ignored", name),
			"Check the result or discard it explicitly",
			map[string]any{"function": fn.QualifiedName(), "call": name})
		return true
	})
	return outcome
}

// bareCall returns the call an expression statement consists of.
func bareCall(stmt *ast.Node) *ast.Node {
	var call *ast.Node
	for _, c := range stmt.Children {
		switch c.Kind {
		case ast.KindComment, ast.KindKeyword, ast.KindOperator:
		case ast.KindCall:
			if call != nil {
				return nil
			}
			call = c
		default:
			return nil
		}
	}
	return call
}

func fallible(name string) bool {
	lower := strings.ToLower(name)
	if strings.HasPrefix(lower, "subprocess.") {
		return true
	}
	return fallibleCalls[ast.LastSegment(lower)]
}

func (k *check) ruleScope(fn *ast.Function) models.RuleOutcome {
	if k.tree.Language != ast.LangPython {
		return models.OutcomeNotApplicable
	}
	outcome := models.OutcomeSatisfied
	ast.WalkLocal(fn.Body, func(n *ast.Node) bool {
		if n.Kind != ast.KindGlobal || !n.HasKeyword("global") {
			return true
		}
		outcome = models.OutcomeViolated
		names := ast.Identifiers(n)
		k.add(8, models.SeverityMedium, n.Span, models.LocalitySameFunction,
			fmt.Sprintf("Function '%s' declares module state global: %s", fn.QualifiedName(), strings.Join(names, ", ")),
			"Pass the value in and return the result instead of widening its scope",
			map[string]any{"function": fn.QualifiedName(), "names": strings.Join(names, ", ")})
		return true
	})
	return outcome
}

// moduleGlobals reports a module that binds more names at top level than
// the policy allows.
func (k *check) moduleGlobals() {
	if k.tree.Language != ast.LangPython || k.tree.Root == nil {
		return
	}
	names := make(map[string]bool)
	for _, stmt := range k.tree.Root.Children {
		var assigns []*ast.Node
		switch stmt.Kind {
		case ast.KindAssign, ast.KindAugAssign:
			assigns = append(assigns, stmt)
		case ast.KindExprStmt:
			for _, c := range stmt.Children {
				if c.Kind == ast.KindAssign || c.Kind == ast.KindAugAssign {
					assigns = append(assigns, c)
				}
			}
		}
		for _, a := range assigns {
			for _, t := range ast.AssignTargets(a) {
				if t.Kind == ast.KindIdentifier {
					names[t.Text] = true
				}
			}
		}
	}
	if len(names) <= k.policy.MaxGlobals {
		return
	}
	k.add(8, models.SeverityMedium, k.tree.Root.Span, models.LocalitySameModule,
		fmt.Sprintf("Module binds %d global names (limit %d)", len(names), k.policy.MaxGlobals),
		"Move state into the functions or objects that use it",
		map[string]any{"global_count": len(names), "threshold": k.policy.MaxGlobals})
}

func (k *check) ruleIndirection(fn *ast.Function) models.RuleOutcome {
	if k.tree.Language != ast.LangGo {
		return models.OutcomeNotApplicable
	}
	outcome := models.OutcomeSatisfied
	for _, p := range fn.Params {
		if !strings.Contains(p.Text, "**") {
			continue
		}
		outcome = models.OutcomeViolated
		k.add(9, models.SeverityHigh, p.Span, models.LocalitySameFunction,
			fmt.Sprintf("Parameter '%s' of '%s' is a pointer to a pointer", p.Name, fn.QualifiedName()),
			"Use a single level of indirection",
			map[string]any{"function": fn.QualifiedName(), "parameter": p.Name, "type": p.Text})
	}
	if rt := fn.Node.Child(ast.FieldReturnType); rt != nil && strings.Contains(typeText(rt), "**") {
		outcome = models.OutcomeViolated
		k.add(9, models.SeverityHigh, rt.Span, models.LocalitySameFunction,
			fmt.Sprintf("Function '%s' returns a pointer to a pointer", fn.QualifiedName()),
			"Use a single level of indirection",
			map[string]any{"function": fn.QualifiedName(), "type": typeText(rt)})
	}
	return outcome
}

func typeText(n *ast.Node) string {
	if n.Text != "" || len(n.Children) == 0 {
		return n.Text
	}
	var b strings.Builder
	for _, c := range n.Children {
		b.WriteString(typeText(c))
	}
	return b.String()
}
