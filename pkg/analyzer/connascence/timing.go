package connascence

import (
	"fmt"

	"github.com/panbanda/connascence/pkg/analyzer"
	"github.com/panbanda/connascence/pkg/ast"
	"github.com/panbanda/connascence/pkg/config"
	"github.com/panbanda/connascence/pkg/models"
)

// TimingDetector flags code that only works if things happen within, or
// after, a certain amount of time.
type TimingDetector struct {
	policy config.Policy
}

var (
	spawnCalls = map[string]bool{"thread": true, "process": true, "spawn": true, "fork": true}
	syncCalls  = map[string]bool{
		"join": true, "acquire": true, "lock": true, "wait": true, "rlock": true,
		"semaphore": true, "event": true, "barrier": true, "waitgroup": true, "done": true,
	}
	timeoutCalls = map[string]bool{"wait_for": true, "timeout": true, "withtimeout": true, "race": true}
)

func (d *TimingDetector) Category() analyzer.Category {
	return analyzer.Category(models.RuleTiming)
}

func (d *TimingDetector) Detect(tree *ast.Tree, lines []string) []models.Violation {
	f := newFile(tree, lines)
	var out []models.Violation

	ast.WalkStack(tree.Root, func(n *ast.Node, stack []*ast.Node) bool {
		if n.Kind != ast.KindCall || callSegment(n) != "sleep" {
			return true
		}
		fn := f.enclosing(stack)
		sev, desc := models.SeverityMedium, "Call to sleep makes correctness depend on timing"
		if inLoop(stack) {
			sev, desc = models.SeverityHigh, "Sleep inside a loop is a busy-wait on timing"
		}
		out = append(out, f.violation(models.RuleTiming, sev, n.Span, localityOf(fn),
			desc,
			"Wait on an event, condition or future instead of a fixed delay",
			map[string]any{
				"function": functionName(fn),
				"call":     ast.CallName(n),
				"in_loop":  sev == models.SeverityHigh,
			}))
		return true
	})

	for _, fn := range f.funcs {
		var spawned []*ast.Node
		synchronized := false
		var firstAwait *ast.Node
		guarded := false
		ast.WalkLocal(fn.Body, func(n *ast.Node) bool {
			switch n.Kind {
			case ast.KindSpawn:
				spawned = append(spawned, n)
			case ast.KindCall:
				seg := callSegment(n)
				switch {
				case spawnCalls[seg]:
					spawned = append(spawned, n)
				case syncCalls[seg]:
					synchronized = true
				case timeoutCalls[seg]:
					guarded = true
				}
			case ast.KindAwait:
				if firstAwait == nil {
					firstAwait = n
				}
			case ast.KindKeywordArg:
				if name := n.Child(ast.FieldName); name != nil && name.Text == "timeout" {
					guarded = true
				}
			}
			return true
		})

		if len(spawned) > 0 && !synchronized {
			out = append(out, f.violation(models.RuleTiming, models.SeverityHigh, spawned[0].Span,
				models.LocalitySameFunction,
				fmt.Sprintf("Function '%s' starts %d concurrent tasks without joining or synchronizing them", functionName(fn), len(spawned)),
				"Join the started tasks or protect shared state with a lock",
				map[string]any{
					"function": functionName(fn),
					"spawned":  len(spawned),
				}))
		}
		if fn.IsAsync() && firstAwait != nil && !guarded {
			out = append(out, f.violation(models.RuleTiming, models.SeverityMedium, firstAwait.Span,
				models.LocalitySameFunction,
				fmt.Sprintf("Async function '%s' awaits without a timeout", functionName(fn)),
				"Bound the wait with a timeout so a stalled peer cannot hang the caller",
				map[string]any{
					"function": functionName(fn),
				}))
		}
	}
	return out
}
