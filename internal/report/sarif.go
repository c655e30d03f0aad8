package report

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/panbanda/connascence/pkg/models"
)

// sarifLevel maps severities onto SARIF result levels.
func sarifLevel(s models.Severity) string {
	switch s {
	case models.SeverityCritical, models.SeverityHigh:
		return "error"
	case models.SeverityMedium:
		return "warning"
	}
	return "note"
}

func ruleCategory(k models.RuleKind) string {
	switch {
	case k.IsConnascence():
		return "connascence"
	case k == models.RuleGodObject:
		return "structure"
	case k == models.RuleDuplicateAlgorithm:
		return "duplication"
	case k.IsDiagnostic():
		return "diagnostic"
	}
	return "nasa"
}

// sarifRules lists every rule kind, so a rule keeps its index across runs
// whether or not it fired.
func sarifRules() ([]sarifRule, map[models.RuleKind]int) {
	kinds := models.AllRuleKinds()
	rules := make([]sarifRule, 0, len(kinds))
	index := make(map[models.RuleKind]int, len(kinds))
	for i, k := range kinds {
		category := ruleCategory(k)
		tags := []string{category}
		if n, ok := k.NasaNumber(); ok {
			tags = append(tags, fmt.Sprintf("power-of-ten-%d", n))
		}
		rules = append(rules, sarifRule{
			ID:               k.RuleID(),
			Name:             strings.ReplaceAll(k.Title(), " ", ""),
			ShortDescription: sarifMessage{Text: k.Title()},
			FullDescription:  sarifMessage{Text: k.Description()},
			Help:             sarifMessage{Text: fmt.Sprintf("%s: %s", k.Title(), k.Description())},
			Properties:       sarifRuleProperties{Category: category, Tags: tags},
		})
		index[k] = i
	}
	return rules, index
}

func sarifLocations(v models.Violation) []sarifLocation {
	return []sarifLocation{{
		PhysicalLocation: sarifPhysicalLocation{
			ArtifactLocation: sarifArtifactLocation{URI: v.FilePath},
			Region: sarifRegion{
				StartLine:   v.Line,
				StartColumn: v.Column,
				EndLine:     v.EndLine,
			},
		},
	}}
}

// ToSARIF renders r as a SARIF 2.1.0 log with a single run.
func ToSARIF(r *models.AnalysisResult, opts Options) ([]byte, error) {
	res := opts.prepare(r)
	rules, index := sarifRules()

	results := make([]sarifResult, 0, len(res.Violations))
	for _, v := range res.Violations {
		props := map[string]any{
			"rule_kind": string(v.RuleKind),
			"severity":  string(v.Severity),
			"locality":  string(v.Locality),
		}
		if len(v.Context) > 0 {
			props["context"] = v.Context
		}
		results = append(results, sarifResult{
			RuleID:    v.RuleID,
			RuleIndex: index[v.RuleKind],
			Level:     sarifLevel(v.Severity),
			Message:   sarifMessage{Text: v.Description + " " + v.Recommendation},
			Locations: sarifLocations(v),
			PartialFingerprints: map[string]string{
				"connascenceViolationId/v1": v.ID,
			},
			Properties: props,
		})
	}

	inv := sarifInvocation{ExecutionSuccessful: !res.PartialResults}
	for _, d := range res.Diagnostics {
		level := "error"
		if d.RuleKind == models.RuleTimeoutAbort {
			level = "warning"
		}
		inv.ToolExecutionNotifications = append(inv.ToolExecutionNotifications, sarifNotification{
			Descriptor: sarifDescriptor{ID: d.RuleID},
			Level:      level,
			Message:    sarifMessage{Text: d.Description},
			Locations:  sarifLocations(d),
		})
	}
	if res.Run != nil {
		inv.StartTimeUTC = res.Run.StartedAt.UTC().Format(time.RFC3339)
	}

	runProps := map[string]any{
		"metrics":         res.Metrics,
		"quality_gates":   res.QualityGates,
		"partial_results": res.PartialResults,
	}
	if res.Run != nil {
		runProps["run_id"] = res.Run.ID
	}

	log := sarifLog{
		Schema:  sarifSchema,
		Version: sarifVersion,
		Runs: []sarifRun{{
			Tool: sarifTool{Driver: sarifDriver{
				Name:           toolName,
				Version:        opts.version(),
				InformationURI: toolInfoURI,
				Rules:          rules,
			}},
			Invocations: []sarifInvocation{inv},
			Results:     results,
			Properties:  runProps,
		}},
	}
	out, err := json.MarshalIndent(log, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode sarif report: %w", err)
	}
	return append(out, '\n'), nil
}
