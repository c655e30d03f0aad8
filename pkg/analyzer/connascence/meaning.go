package connascence

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/panbanda/connascence/pkg/analyzer"
	"github.com/panbanda/connascence/pkg/ast"
	"github.com/panbanda/connascence/pkg/config"
	"github.com/panbanda/connascence/pkg/models"
)

// MeaningDetector flags magic literals in comparisons and assignments.
// Each occurrence is reported, not each distinct value.
type MeaningDetector struct {
	policy config.Policy
}

// securityWords are matched against whole identifier segments, so "api_key"
// and "authToken" count while "monkey" does not.
var securityWords = map[string]bool{
	"password": true, "passwords": true, "passwd": true, "secret": true, "secrets": true,
	"token": true, "tokens": true, "key": true, "keys": true, "apikey": true,
	"auth": true, "authn": true, "authz": true, "credential": true, "credentials": true,
}

var securityPrefixes = []string{"authent", "authoriz", "crypt", "encrypt", "decrypt"}

// safeStrings are string values that never carry domain meaning.
var safeStrings = map[string]bool{
	" ": true, "\\n": true, "\\t": true, "utf-8": true, "utf8": true, "ascii": true,
}

func (d *MeaningDetector) Category() analyzer.Category {
	return analyzer.Category(models.RuleMeaning)
}

func (d *MeaningDetector) Detect(tree *ast.Tree, lines []string) []models.Violation {
	f := newFile(tree, lines)
	var out []models.Violation

	report := func(lit *ast.Node, stmt *ast.Node, stack []*ast.Node, where string) {
		value, ok := d.magicValue(lit)
		if !ok {
			return
		}
		fn := f.enclosing(stack)
		sev := models.SeverityMedium
		if strings.HasPrefix(value, "'") || strings.HasPrefix(value, "\"") {
			if raw := ast.StringValue(value); strings.Contains(raw, "/") || strings.Contains(raw, "://") {
				sev = models.SeverityLow
			}
		}
		if mentionsSecurity(f.snippet(stmt.Span.StartLine)) {
			sev = models.SeverityCritical
		}
		out = append(out, f.violation(models.RuleMeaning, sev, lit.Span, localityOf(fn),
			fmt.Sprintf("Magic literal %s used in %s", value, where),
			"Replace the literal with a named constant that explains its meaning",
			map[string]any{
				"value":    value,
				"context":  where,
				"function": functionName(fn),
			}))
	}

	ast.WalkStack(tree.Root, func(n *ast.Node, stack []*ast.Node) bool {
		switch n.Kind {
		case ast.KindParam, ast.KindKeywordArg, ast.KindDecorator, ast.KindTypeAnnotation:
			return false
		case ast.KindCompare:
			for _, op := range ast.Operands(n) {
				report(ast.Unparen(op), n, stack, "comparison")
			}
		case ast.KindAssign:
			if constantAssignment(n) {
				return true
			}
			if right := unwrapSingle(n.Child(ast.FieldRight)); right != nil {
				report(right, n, stack, "assignment")
			}
		case ast.KindAugAssign:
			if right := unwrapSingle(n.Child(ast.FieldRight)); right != nil {
				report(right, n, stack, "assignment")
			}
		}
		return true
	})
	return out
}

// magicValue returns the spelling of a literal that is not allowed.
func (d *MeaningDetector) magicValue(n *ast.Node) (string, bool) {
	if n == nil {
		return "", false
	}
	value, ok := ast.LiteralValue(n)
	if !ok {
		return "", false
	}
	n = ast.Unparen(n)
	switch {
	case n.Kind == ast.KindNumber || n.Kind == ast.KindUnaryOp:
		return value, !d.policy.AllowsLiteral(value)
	case n.Kind == ast.KindString:
		raw := ast.StringValue(value)
		if d.policy.AllowsLiteral(raw) || !isMagicString(raw) {
			return "", false
		}
		return value, true
	}
	return "", false
}

func isMagicString(s string) bool {
	if len(s) <= 1 || safeStrings[strings.ToLower(s)] {
		return false
	}
	// file extensions
	if len(s) <= 5 && s[0] == '.' && isAlnum(s[1:]) {
		return false
	}
	// separators such as "----"
	if strings.Count(s, s[:1]) == len(s) && strings.ContainsAny(s[:1], " -_=*#") {
		return false
	}
	// f-strings and templates are formatting, not values
	if strings.ContainsAny(s, "{}") || strings.Contains(s, "${") {
		return false
	}
	return true
}

func isAlnum(s string) bool {
	for _, r := range s {
		if !((r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')) {
			return false
		}
	}
	return s != ""
}

// constantAssignment reports whether an assignment binds a named constant.
func constantAssignment(n *ast.Node) bool {
	if n.Type == "const_spec" {
		return true
	}
	targets := ast.AssignTargets(n)
	if len(targets) == 0 {
		return false
	}
	for _, t := range targets {
		if t.Kind != ast.KindIdentifier || !isUpperConstant(t.Text) {
			return false
		}
	}
	return true
}

func mentionsSecurity(line string) bool {
	for _, seg := range wordSegments(line) {
		if securityWords[seg] {
			return true
		}
		for _, p := range securityPrefixes {
			if strings.HasPrefix(seg, p) {
				return true
			}
		}
	}
	return false
}

// wordSegments splits a line into lowercase identifier segments, breaking on
// non-alphanumerics, underscores and camelCase humps ("HTTPAuthToken" gives
// http, auth, token).
func wordSegments(line string) []string {
	var out []string
	runes := []rune(line)
	start := -1
	flush := func(end int) {
		if start >= 0 && end > start {
			out = append(out, strings.ToLower(string(runes[start:end])))
		}
		start = -1
	}
	for i, r := range runes {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			flush(i)
			continue
		}
		if start < 0 {
			start = i
			continue
		}
		prev := runes[i-1]
		if unicode.IsUpper(r) && (unicode.IsLower(prev) || unicode.IsDigit(prev) ||
			(unicode.IsUpper(prev) && i+1 < len(runes) && unicode.IsLower(runes[i+1]))) {
			flush(i)
			start = i
		}
	}
	flush(len(runes))
	return out
}
