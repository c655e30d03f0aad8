package report

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/panbanda/connascence/pkg/models"
)

func sampleResult() *models.AnalysisResult {
	vs := models.AssignIDs([]models.Violation{
		models.NewViolation(models.RuleMeaning, models.SeverityMedium, "b.py", models.Location{Line: 3, Column: 8},
			models.LocalitySameFunction, "Magic literal 42 in comparison", "Replace 42 with a named constant.", map[string]any{"literal": "42"}),
		models.NewViolation(models.RulePosition, models.SeverityHigh, "a.py", models.Location{Line: 1, Column: 1},
			models.LocalitySameFunction, "Parameters a | b exceed the positional limit", "Group parameters into an object.", nil),
		models.NewViolation(models.NasaRule(1), models.SeverityCritical, "a.py", models.Location{Line: 9, Column: 1},
			models.LocalitySameFunction, "Function g calls itself", "Replace recursion with iteration.", nil),
	})
	models.SortCanonical(vs)
	diag := models.AssignIDs([]models.Violation{
		models.NewDiagnostic(models.RuleParseError, "broken.py", 2, 5, "syntax error"),
	})
	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	summary := models.NewSummary(vs)
	summary.FilesAnalyzed = 2
	summary.FilesFailed = 1
	return &models.AnalysisResult{
		Violations:  vs,
		Diagnostics: diag,
		Summary:     summary,
		Metrics: models.QualityMetrics{
			TotalViolations: 3, Critical: 1, High: 1, Medium: 1, FilesAnalyzed: 2,
			ConnascenceIndex: 5.05, NASAComplianceScore: 0.9, DuplicationScore: 1,
			OverallQualityScore: 0.95, CollectionTimeMS: 12.5, Timestamp: started,
		},
		QualityGates: models.QualityGates{
			OverallPassing: false, QualityPassing: true, NASAPassing: true, DuplicationPassing: true,
			Gates: []models.GateResult{
				{Name: "overall_quality_score", Threshold: 0.7, Actual: 0.95, Passed: true},
				{Name: "critical_violations", Threshold: 0, Actual: 1, Passed: false},
			},
		},
		Compliance: models.ComplianceSummary{Enabled: true, Functions: 2, Score: 0.9},
		Duplicates: []models.DuplicateCluster{{
			ID: 1, Similarity: 1,
			Members: []models.FunctionLocation{{File: "a.py", Function: "f", Line: 1}, {File: "b.py", Function: "h", Line: 10}},
		}},
		Policy: map[string]any{"max_positional_params": 4},
		Run:    &models.RunInfo{ID: "run-1", StartedAt: started, DurationMS: 12.5, Workers: 4},
	}
}

func TestParseFormat(t *testing.T) {
	tests := map[string]Format{"json": FormatJSON, "SARIF": FormatSARIF, "md": FormatMarkdown, "markdown": FormatMarkdown, " toon ": FormatTOON}
	for in, want := range tests {
		got, err := ParseFormat(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}
	_, err := ParseFormat("html")
	require.Error(t, err)
}

func TestToJSON_MatchesSchema(t *testing.T) {
	data, err := ToJSON(sampleResult(), Options{})
	require.NoError(t, err)
	require.NoError(t, ValidateJSON(data))

	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	for _, key := range []string{"violations", "summary", "metrics", "quality_gates", "policy"} {
		assert.Contains(t, doc, key)
	}
	assert.Contains(t, doc, "run")
}

func TestToJSON_Reproducible(t *testing.T) {
	a := sampleResult()
	b := sampleResult()
	b.Run.ID = "run-2"
	b.Metrics.Timestamp = b.Metrics.Timestamp.Add(time.Hour)
	b.Metrics.CollectionTimeMS = 99

	ja, err := ToJSON(a, Options{Reproducible: true})
	require.NoError(t, err)
	jb, err := ToJSON(b, Options{Reproducible: true})
	require.NoError(t, err)
	assert.Equal(t, string(ja), string(jb))
	assert.NotContains(t, string(ja), `"run"`)
}

func TestValidateJSON_RejectsInvalid(t *testing.T) {
	require.Error(t, ValidateJSON([]byte(`{"violations": []}`)))
	require.Error(t, ValidateJSON([]byte(`not json`)))

	data, err := ToJSON(sampleResult(), Options{})
	require.NoError(t, err)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	doc["metrics"].(map[string]any)["overall_quality_score"] = 1.5
	bad, err := json.Marshal(doc)
	require.NoError(t, err)
	require.Error(t, ValidateJSON(bad))
}

func TestReports_KeepCanonicalOrder(t *testing.T) {
	r := sampleResult()
	// Reverse the violations; every format must still emit canonical order.
	for i, j := 0, len(r.Violations)-1; i < j; i, j = i+1, j-1 {
		r.Violations[i], r.Violations[j] = r.Violations[j], r.Violations[i]
	}

	data, err := ToJSON(r, Options{})
	require.NoError(t, err)
	var doc struct {
		Violations []models.Violation `json:"violations"`
	}
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.True(t, models.IsCanonical(doc.Violations))

	sarif, err := ToSARIF(r, Options{})
	require.NoError(t, err)
	var log sarifLog
	require.NoError(t, json.Unmarshal(sarif, &log))
	var ids []string
	for _, res := range log.Runs[0].Results {
		ids = append(ids, res.PartialFingerprints["connascenceViolationId/v1"])
	}
	var want []string
	for _, v := range doc.Violations {
		want = append(want, v.ID)
	}
	assert.Equal(t, want, ids)
}

func TestToSARIF(t *testing.T) {
	data, err := ToSARIF(sampleResult(), Options{ToolVersion: "1.2.3"})
	require.NoError(t, err)

	var log sarifLog
	require.NoError(t, json.Unmarshal(data, &log))
	assert.Equal(t, "2.1.0", log.Version)
	require.Len(t, log.Runs, 1)
	run := log.Runs[0]

	assert.Equal(t, "connascence", run.Tool.Driver.Name)
	assert.Equal(t, "1.2.3", run.Tool.Driver.Version)
	assert.Len(t, run.Tool.Driver.Rules, len(models.AllRuleKinds()))
	seen := map[string]bool{}
	for _, rule := range run.Tool.Driver.Rules {
		assert.False(t, seen[rule.ID], "duplicate rule id %s", rule.ID)
		seen[rule.ID] = true
		assert.NotEmpty(t, rule.ShortDescription.Text)
		assert.NotEmpty(t, rule.Properties.Tags)
	}

	require.Len(t, run.Results, 3)
	levels := map[string]string{}
	for _, res := range run.Results {
		levels[res.RuleID] = res.Level
		assert.Equal(t, res.RuleID, run.Tool.Driver.Rules[res.RuleIndex].ID)
		assert.NotEmpty(t, res.PartialFingerprints["connascenceViolationId/v1"])
		require.Len(t, res.Locations, 1)
	}
	assert.Equal(t, "error", levels["CoP"])
	assert.Equal(t, "warning", levels["CoM"])
	assert.Equal(t, "error", levels["NASA-R1"])

	require.Len(t, run.Invocations, 1)
	notes := run.Invocations[0].ToolExecutionNotifications
	require.Len(t, notes, 1)
	assert.Equal(t, "DIAG-PARSE", notes[0].Descriptor.ID)
	assert.Equal(t, "broken.py", notes[0].Locations[0].PhysicalLocation.ArtifactLocation.URI)
	assert.Equal(t, "run-1", run.Properties["run_id"])
}

func TestSarifLevel(t *testing.T) {
	assert.Equal(t, "error", sarifLevel(models.SeverityCritical))
	assert.Equal(t, "error", sarifLevel(models.SeverityHigh))
	assert.Equal(t, "warning", sarifLevel(models.SeverityMedium))
	assert.Equal(t, "note", sarifLevel(models.SeverityLow))
	assert.Equal(t, "note", sarifLevel(models.SeverityInfo))
}

func TestToMarkdown(t *testing.T) {
	data, err := ToMarkdown(sampleResult(), Options{TopN: 2})
	require.NoError(t, err)
	md := string(data)

	assert.Contains(t, md, "# Connascence Analysis Report")
	assert.Contains(t, md, "**Overall Quality Score:** 95.0%")
	assert.Contains(t, md, "**Overall:** ❌ failing")
	assert.Contains(t, md, "**Critical:** 1")
	assert.Contains(t, md, "## Top 2 Violations")
	assert.Contains(t, md, "`NASA-R1` | `a.py:9`")
	assert.NotContains(t, md, "`b.py:3`", "medium violation falls outside the top 2")
	assert.Contains(t, md, `Parameters a \| b exceed`, "pipes are escaped in table cells")
	assert.Contains(t, md, "## Duplicate Algorithms")
	assert.Contains(t, md, "`DIAG-PARSE` `broken.py`: syntax error")
	assert.Contains(t, md, "## Recommendations")
	assert.Equal(t, 1, strings.Count(md, "- Replace recursion with iteration."))
	assert.Contains(t, md, "**Generated:** 2026-03-01T12:00:00Z")
}

func TestToMarkdown_NoViolations(t *testing.T) {
	r := &models.AnalysisResult{
		Summary:      models.NewSummary(nil),
		Metrics:      models.QualityMetrics{OverallQualityScore: 1, NASAComplianceScore: 1, DuplicationScore: 1},
		QualityGates: models.QualityGates{OverallPassing: true},
	}
	data, err := ToMarkdown(r, Options{Reproducible: true})
	require.NoError(t, err)
	md := string(data)
	assert.Contains(t, md, "## No Violations Found")
	assert.NotContains(t, md, "**Generated:**")
	assert.NotContains(t, md, "## Severity Breakdown")
}

func TestToTOON(t *testing.T) {
	data, err := ToTOON(sampleResult(), Options{Reproducible: true})
	require.NoError(t, err)
	assert.NotEmpty(t, data)
	assert.Contains(t, string(data), "a.py")
}

func TestWrite(t *testing.T) {
	var sb strings.Builder
	require.NoError(t, Write(&sb, FormatMarkdown, sampleResult(), Options{}))
	assert.True(t, strings.HasPrefix(sb.String(), "# Connascence Analysis Report"))
	require.Error(t, Write(&sb, Format("pdf"), sampleResult(), Options{}))
}
