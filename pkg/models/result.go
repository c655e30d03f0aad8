package models

import (
	"slices"
	"time"
)

// AnalysisResult is the aggregated outcome of one analysis run.
type AnalysisResult struct {
	Violations   []Violation        `json:"violations"`
	Diagnostics  []Violation        `json:"diagnostics"`
	Summary      Summary            `json:"summary"`
	Metrics      QualityMetrics     `json:"metrics"`
	QualityGates QualityGates       `json:"quality_gates"`
	Compliance   ComplianceSummary  `json:"nasa_compliance"`
	Duplicates   []DuplicateCluster `json:"duplicate_clusters"`
	// PartialResults is set when the deadline expired before every file was analyzed.
	PartialResults bool     `json:"partial_results"`
	SkippedFiles   []string `json:"skipped_files,omitempty"`
	Policy         any      `json:"policy"`
	Run            *RunInfo `json:"run,omitempty"`
}

// RunInfo carries per-invocation details that differ between otherwise identical runs.
type RunInfo struct {
	ID         string    `json:"id"`
	StartedAt  time.Time `json:"started_at"`
	DurationMS float64   `json:"duration_ms"`
	Workers    int       `json:"workers"`
}

// Summary holds counts over the violation set.
type Summary struct {
	TotalViolations   int              `json:"total_violations"`
	BySeverity        map[Severity]int `json:"by_severity"`
	ByRuleKind        map[RuleKind]int `json:"by_rule_kind"`
	FilesAnalyzed     int              `json:"files_analyzed"`
	FilesFailed       int              `json:"files_failed"`
	FunctionsAnalyzed int              `json:"functions_analyzed"`
	ClassesAnalyzed   int              `json:"classes_analyzed"`
	DuplicateClusters int              `json:"duplicate_clusters"`
}

// NewSummary counts vs by severity and rule kind. Every severity appears in
// BySeverity, including zero counts.
func NewSummary(vs []Violation) Summary {
	s := Summary{
		TotalViolations: len(vs),
		BySeverity:      make(map[Severity]int, 5),
		ByRuleKind:      make(map[RuleKind]int),
	}
	for _, sev := range Severities() {
		s.BySeverity[sev] = 0
	}
	for _, v := range vs {
		s.BySeverity[v.Severity]++
		s.ByRuleKind[v.RuleKind]++
	}
	return s
}

// Reproducible returns a copy without the fields that change between runs
// over the same input.
func (r AnalysisResult) Reproducible() AnalysisResult {
	r.Run = nil
	r.Metrics.Timestamp = time.Time{}
	r.Metrics.CollectionTimeMS = 0
	return r
}

// FunctionLocation identifies a function definition.
type FunctionLocation struct {
	File     string `json:"file"`
	Function string `json:"function"`
	Line     int    `json:"line"`
	EndLine  int    `json:"end_line"`
}

// DuplicateCluster is a group of functions implementing the same algorithm.
// Members are ordered by (file, line); the first member is the primary.
type DuplicateCluster struct {
	ID         int                `json:"id"`
	Similarity float64            `json:"similarity"`
	Members    []FunctionLocation `json:"members"`
}

// Primary returns the member that is not flagged.
func (c DuplicateCluster) Primary() FunctionLocation {
	return c.Members[0]
}

// RuleOutcome is the result of one NASA rule for one function.
type RuleOutcome string

const (
	OutcomeSatisfied     RuleOutcome = "satisfied"
	OutcomeViolated      RuleOutcome = "violated"
	OutcomeNotApplicable RuleOutcome = "not_applicable"
)

// String implements fmt.Stringer.
func (o RuleOutcome) String() string { return string(o) }

// FunctionCompliance records NASA rule outcomes for one function.
type FunctionCompliance struct {
	File     string                     `json:"file"`
	Function string                     `json:"function"`
	Line     int                        `json:"line"`
	Outcomes [NasaRuleCount]RuleOutcome `json:"outcomes"`
}

// Score returns satisfied / applicable for the function. A function with no
// applicable rules scores 1.
func (f FunctionCompliance) Score() float64 {
	applicable, satisfied := 0, 0
	for _, o := range f.Outcomes {
		switch o {
		case OutcomeSatisfied:
			applicable++
			satisfied++
		case OutcomeViolated:
			applicable++
		}
	}
	if applicable == 0 {
		return 1
	}
	return float64(satisfied) / float64(applicable)
}

// RuleTally counts outcomes of one rule across functions.
type RuleTally struct {
	Satisfied     int `json:"satisfied"`
	Violated      int `json:"violated"`
	NotApplicable int `json:"not_applicable"`
}

// ComplianceSummary aggregates function compliance records for a run.
type ComplianceSummary struct {
	Enabled   bool                 `json:"enabled"`
	Functions int                  `json:"functions"`
	Score     float64              `json:"score"`
	Rules     map[string]RuleTally `json:"rules"`
}

// SummarizeCompliance computes the project score as the unweighted mean of
// function scores. No functions means full compliance.
func SummarizeCompliance(records []FunctionCompliance) ComplianceSummary {
	s := ComplianceSummary{
		Enabled:   true,
		Functions: len(records),
		Score:     1,
		Rules:     make(map[string]RuleTally, NasaRuleCount),
	}
	for i := 1; i <= NasaRuleCount; i++ {
		s.Rules[NasaRule(i).RuleID()] = RuleTally{}
	}
	if len(records) == 0 {
		return s
	}
	var total float64
	for _, r := range records {
		total += r.Score()
		for i, o := range r.Outcomes {
			key := NasaRule(i + 1).RuleID()
			t := s.Rules[key]
			switch o {
			case OutcomeSatisfied:
				t.Satisfied++
			case OutcomeViolated:
				t.Violated++
			default:
				t.NotApplicable++
			}
			s.Rules[key] = t
		}
	}
	s.Score = total / float64(len(records))
	return s
}

// SortComplianceRecords orders records by file then line.
func SortComplianceRecords(records []FunctionCompliance) {
	slices.SortStableFunc(records, func(a, b FunctionCompliance) int {
		if a.File != b.File {
			if a.File < b.File {
				return -1
			}
			return 1
		}
		return a.Line - b.Line
	})
}
