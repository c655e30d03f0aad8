package metrics

import (
	"github.com/panbanda/connascence/pkg/config"
	"github.com/panbanda/connascence/pkg/models"
)

// EvaluateGates checks m against the configured gate thresholds. Every gate
// is reported, passing or not.
func EvaluateGates(m models.QualityMetrics, g config.GatesConfig) models.QualityGates {
	atLeast := func(name string, actual, min float64) models.GateResult {
		return models.GateResult{Name: name, Threshold: min, Actual: actual, Passed: actual >= min}
	}
	gates := models.QualityGates{
		Gates: []models.GateResult{
			atLeast("overall_quality_score", m.OverallQualityScore, g.MinQualityScore),
			atLeast("nasa_compliance_score", m.NASAComplianceScore, g.MinNASACompliance),
			atLeast("duplication_score", m.DuplicationScore, g.MinDuplicationScore),
			{
				Name:      "critical_violations",
				Threshold: float64(g.MaxCritical),
				Actual:    float64(m.Critical),
				Passed:    m.Critical <= g.MaxCritical,
			},
		},
	}
	gates.QualityPassing = gates.Gates[0].Passed
	gates.NASAPassing = gates.Gates[1].Passed
	gates.DuplicationPassing = gates.Gates[2].Passed
	gates.CriticalPassing = gates.Gates[3].Passed
	gates.OverallPassing = gates.QualityPassing && gates.NASAPassing &&
		gates.DuplicationPassing && gates.CriticalPassing
	return gates
}
