package models

import "time"

// QualityMetrics is a snapshot of run-level quality figures.
type QualityMetrics struct {
	TotalViolations     int       `json:"total_violations"`
	Critical            int       `json:"critical"`
	High                int       `json:"high"`
	Medium              int       `json:"medium"`
	Low                 int       `json:"low"`
	Info                int       `json:"info"`
	FilesAnalyzed       int       `json:"files_analyzed"`
	ConnascenceIndex    float64   `json:"connascence_index"`
	NASAComplianceScore float64   `json:"nasa_compliance_score"`
	DuplicationScore    float64   `json:"duplication_score"`
	OverallQualityScore float64   `json:"overall_quality_score"`
	CollectionTimeMS    float64   `json:"collection_time_ms"`
	Timestamp           time.Time `json:"timestamp"`
}

// CountFor returns the violation count for a severity.
func (m QualityMetrics) CountFor(s Severity) int {
	switch s {
	case SeverityCritical:
		return m.Critical
	case SeverityHigh:
		return m.High
	case SeverityMedium:
		return m.Medium
	case SeverityLow:
		return m.Low
	default:
		return m.Info
	}
}

// GateResult is the verdict of one quality gate.
type GateResult struct {
	Name      string  `json:"name"`
	Threshold float64 `json:"threshold"`
	Actual    float64 `json:"actual"`
	Passed    bool    `json:"passed"`
}

// QualityGates is the pass/fail verdict consumed by CI collaborators.
type QualityGates struct {
	OverallPassing     bool         `json:"overall_passing"`
	QualityPassing     bool         `json:"quality_passing"`
	NASAPassing        bool         `json:"nasa_passing"`
	DuplicationPassing bool         `json:"duplication_passing"`
	CriticalPassing    bool         `json:"critical_passing"`
	Gates              []GateResult `json:"gates"`
}

// Failed returns the gates that did not pass.
func (g QualityGates) Failed() []GateResult {
	var out []GateResult
	for _, r := range g.Gates {
		if !r.Passed {
			out = append(out, r)
		}
	}
	return out
}
