package connascence

import (
	"encoding/binary"
	"fmt"
	"slices"

	"github.com/cespare/xxhash/v2"
	"github.com/panbanda/connascence/pkg/analyzer"
	"github.com/panbanda/connascence/pkg/analyzer/duplicates"
	"github.com/panbanda/connascence/pkg/ast"
	"github.com/panbanda/connascence/pkg/config"
	"github.com/panbanda/connascence/pkg/models"
)

// AlgorithmDetector flags functions in one file that follow the same
// statement sequence without being exact structural copies, and functions
// whose branching makes the algorithm hard to keep in sync.
type AlgorithmDetector struct {
	policy config.Policy
}

func (d *AlgorithmDetector) Category() analyzer.Category {
	return analyzer.Category(models.RuleAlgorithm)
}

func (d *AlgorithmDetector) Detect(tree *ast.Tree, lines []string) []models.Violation {
	f := newFile(tree, lines)
	var out []models.Violation

	type shaped struct {
		fn          *ast.Function
		fingerprint uint64
	}
	seen := make(map[uint64][]shaped)
	for _, fn := range f.funcs {
		kinds := duplicates.StatementKinds(fn)
		if len(kinds) < max(d.policy.DuplicationMinStatements, 1) {
			continue
		}
		key := statementHash(kinds)
		fp := duplicates.Fingerprint(fn)
		prior := seen[key]
		seen[key] = append(prior, shaped{fn: fn, fingerprint: fp})
		if len(prior) == 0 || slices.ContainsFunc(prior, func(s shaped) bool { return s.fingerprint == fp }) {
			// exact copies belong to the duplication analysis
			continue
		}
		prev := prior[0].fn
		span := prev.Span()
		out = append(out, f.violation(models.RuleAlgorithm, models.SeverityMedium, fn.Span(),
			models.LocalitySameModule,
			fmt.Sprintf("Function '%s' repeats the statement sequence of '%s' (line %d)",
				functionName(fn), functionName(prev), span.StartLine),
			"Keep one implementation of the algorithm and parameterize the differences",
			map[string]any{
				"function":        functionName(fn),
				"similar_to":      functionName(prev),
				"similar_line":    span.StartLine,
				"statement_count": len(kinds),
			}))
	}

	limit := d.policy.MaxCyclomaticComplexity
	for _, fn := range f.funcs {
		cc := CyclomaticComplexity(fn)
		if cc <= limit {
			continue
		}
		out = append(out, f.violation(models.RuleAlgorithm, models.SeverityHigh, fn.Span(),
			models.LocalitySameFunction,
			fmt.Sprintf("Function '%s' has cyclomatic complexity %d (maximum %d)", functionName(fn), cc, limit),
			"Split the function so each branch structure can be understood and changed on its own",
			map[string]any{
				"function":   functionName(fn),
				"complexity": cc,
				"threshold":  limit,
			}))
	}
	return out
}

func statementHash(kinds []ast.Kind) uint64 {
	buf := make([]byte, 0, len(kinds))
	for _, k := range kinds {
		buf = binary.AppendUvarint(buf, uint64(k))
	}
	return xxhash.Sum64(buf)
}

// CyclomaticComplexity returns 1 plus the number of decision points in the
// function body, nested definitions excluded.
func CyclomaticComplexity(fn *ast.Function) int {
	cc := 1
	ast.WalkLocal(fn.Body, func(n *ast.Node) bool {
		switch n.Kind {
		case ast.KindIf, ast.KindElseIf, ast.KindWhile, ast.KindFor, ast.KindExcept,
			ast.KindConditional, ast.KindComprehension, ast.KindBoolOp:
			cc++
		case ast.KindOther:
			// switch cases
			switch n.Type {
			case "expression_case", "type_case", "communication_case", "switch_case", "case_clause":
				cc++
			}
		}
		return true
	})
	return cc
}
