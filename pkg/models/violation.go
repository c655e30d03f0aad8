package models

import (
	"encoding/hex"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/zeebo/blake3"
)

// Severity represents how serious a finding is.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
	SeverityInfo     Severity = "info"
)

// Severities lists all severities from most to least serious.
func Severities() []Severity {
	return []Severity{SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow, SeverityInfo}
}

// String implements fmt.Stringer.
func (s Severity) String() string { return string(s) }

// Rank orders severities; lower is more serious.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 0
	case SeverityHigh:
		return 1
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 3
	default:
		return 4
	}
}

// Valid reports whether s is a known severity.
func (s Severity) Valid() bool {
	return slices.Contains(Severities(), s)
}

// DefaultSeverityWeights returns the default weight per severity.
func DefaultSeverityWeights() map[string]float64 {
	return map[string]float64{
		string(SeverityCritical): 5,
		string(SeverityHigh):     3,
		string(SeverityMedium):   2,
		string(SeverityLow):      1,
		string(SeverityInfo):     0.5,
	}
}

// DefaultTypeWeights returns the default weight per rule kind. Kinds not
// listed weigh 1.0.
func DefaultTypeWeights() map[string]float64 {
	return map[string]float64{
		string(RuleName):      0.9,
		string(RuleType):      0.8,
		string(RuleMeaning):   1.1,
		string(RulePosition):  1.3,
		string(RuleAlgorithm): 1.4,
		string(RuleIdentity):  1.5,
	}
}

// Locality is the lexical distance between coupled code sites.
type Locality string

const (
	LocalitySameFunction Locality = "same_function"
	LocalitySameClass    Locality = "same_class"
	LocalitySameModule   Locality = "same_module"
	LocalityCrossModule  Locality = "cross_module"
)

// String implements fmt.Stringer.
func (l Locality) String() string { return string(l) }

// Multiplier returns the weighting factor for the locality. Wider coupling weighs more.
func (l Locality) Multiplier() float64 {
	switch l {
	case LocalitySameClass:
		return 1.2
	case LocalitySameModule:
		return 1.5
	case LocalityCrossModule:
		return 2.0
	default:
		return 1.0
	}
}

// Violation is a single finding. Violations are values: detectors build them
// with NewViolation and nothing modifies them afterwards.
type Violation struct {
	ID             string         `json:"id"`
	RuleKind       RuleKind       `json:"rule_kind"`
	RuleID         string         `json:"rule_id"`
	Severity       Severity       `json:"severity"`
	FilePath       string         `json:"file_path"`
	Line           int            `json:"line"`
	Column         int            `json:"column"`
	EndLine        int            `json:"end_line,omitempty"`
	Description    string         `json:"description"`
	Recommendation string         `json:"recommendation"`
	Locality       Locality       `json:"locality"`
	Context        map[string]any `json:"context,omitempty"`
}

// Location identifies where a violation was found.
type Location struct {
	Line    int
	Column  int
	EndLine int
}

// NewViolation builds a violation. The context map is copied so callers may
// reuse theirs. The ID is left empty until AssignIDs runs.
func NewViolation(kind RuleKind, sev Severity, path string, loc Location, locality Locality,
	description, recommendation string, context map[string]any) Violation {
	v := Violation{
		RuleKind:       kind,
		RuleID:         kind.RuleID(),
		Severity:       sev,
		FilePath:       path,
		Line:           max(loc.Line, 1),
		Column:         max(loc.Column, 1),
		EndLine:        loc.EndLine,
		Description:    description,
		Recommendation: recommendation,
		Locality:       locality,
	}
	if len(context) > 0 {
		v.Context = maps.Clone(context)
	}
	return v
}

// NewDiagnostic builds a diagnostic entry for a file that could not be analyzed.
func NewDiagnostic(kind RuleKind, path string, line, column int, message string) Violation {
	rec := "Fix the file so it can be analyzed."
	switch kind {
	case RuleIOError:
		rec = "Check that the file exists and is readable."
	case RuleTimeoutAbort:
		rec = "Raise the analysis timeout or analyze fewer files."
	}
	return NewViolation(kind, SeverityInfo, path, Location{Line: line, Column: column},
		LocalitySameModule, message, rec, nil)
}

// Weight returns the severity weight of v multiplied by its locality factor.
func (v Violation) Weight(severityWeights map[string]float64) float64 {
	return severityWeights[string(v.Severity)] * v.Locality.Multiplier()
}

// ContextInt returns an integer context value.
func (v Violation) ContextInt(key string) (int, bool) {
	switch n := v.Context[key].(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	}
	return 0, false
}

// ContextFloat returns a floating-point context value.
func (v Violation) ContextFloat(key string) (float64, bool) {
	switch n := v.Context[key].(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	}
	return 0, false
}

// ViolationID derives the stable identifier for a finding.
func ViolationID(path, ruleID string, line, column, ordinal int) string {
	sum := blake3.Sum256(fmt.Appendf(nil, "%s\x00%s\x00%d\x00%d\x00%d", path, ruleID, line, column, ordinal))
	return hex.EncodeToString(sum[:8])
}

// AssignIDs returns a copy of vs with stable IDs. Findings sharing a
// (file, rule, line, column) get increasing ordinals in description order so
// the result does not depend on emission order.
func AssignIDs(vs []Violation) []Violation {
	out := slices.Clone(vs)
	slices.SortStableFunc(out, func(a, b Violation) int {
		if c := compareLocation(a, b); c != 0 {
			return c
		}
		if c := strings.Compare(a.RuleID, b.RuleID); c != 0 {
			return c
		}
		return strings.Compare(a.Description, b.Description)
	})
	type slot struct {
		path, rule   string
		line, column int
	}
	seen := make(map[slot]int)
	for i := range out {
		s := slot{out[i].FilePath, out[i].RuleID, out[i].Line, out[i].Column}
		ordinal := seen[s]
		seen[s] = ordinal + 1
		out[i].ID = ViolationID(s.path, s.rule, s.line, s.column, ordinal)
	}
	return out
}

// Merge combines two violation sets, dropping only entries whose ID already
// appeared. Entries without an ID are always kept.
func Merge(a, b []Violation) []Violation {
	out := make([]Violation, 0, len(a)+len(b))
	seen := make(map[string]bool, len(a)+len(b))
	for _, set := range [][]Violation{a, b} {
		for _, v := range set {
			if v.ID != "" {
				if seen[v.ID] {
					continue
				}
				seen[v.ID] = true
			}
			out = append(out, v)
		}
	}
	return out
}
