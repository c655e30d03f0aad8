package output

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/fatih/color"

	"github.com/panbanda/connascence/pkg/models"
)

// gateLine renders the pass/fail verdict of a run.
type gateLine struct {
	gates models.QualityGates
}

func (g gateLine) verdict() string {
	if g.gates.OverallPassing {
		return "PASSED"
	}
	return "FAILED"
}

func (g gateLine) RenderText(w io.Writer, colored bool) error {
	v := g.verdict()
	if colored {
		c := color.New(color.Bold, color.FgGreen)
		if !g.gates.OverallPassing {
			c = color.New(color.Bold, color.FgRed)
		}
		c.Fprintf(w, "Quality gates: %s\n", v)
		return nil
	}
	fmt.Fprintf(w, "Quality gates: %s\n", v)
	return nil
}

func (g gateLine) RenderMarkdown(w io.Writer) error {
	fmt.Fprintf(w, "**Quality gates:** %s\n\n", g.verdict())
	return nil
}

func score(f float64) string {
	return fmt.Sprintf("%.1f%%", f*100)
}

// ResultReport builds the terminal view of an analysis result. At most topN
// violations are listed; zero lists ten.
func ResultReport(r *models.AnalysisResult, topN int) *Report {
	if topN <= 0 {
		topN = 10
	}
	m := r.Metrics
	summary := &Section{
		Title: "Summary",
		Content: strings.Join([]string{
			fmt.Sprintf("Files analyzed:   %d (%d failed)", r.Summary.FilesAnalyzed, r.Summary.FilesFailed),
			fmt.Sprintf("Violations:       %d", r.Summary.TotalViolations),
			fmt.Sprintf("Overall quality:  %s", score(m.OverallQualityScore)),
			fmt.Sprintf("NASA compliance:  %s", score(m.NASAComplianceScore)),
			fmt.Sprintf("Duplication:      %s", score(m.DuplicationScore)),
			fmt.Sprintf("Connascence index: %.2f", m.ConnascenceIndex),
		}, "\n"),
	}
	if r.PartialResults {
		summary.Content += fmt.Sprintf("\nPartial results: %d files skipped", len(r.SkippedFiles))
	}

	sections := []Renderable{summary}

	sevRows := make([][]string, 0, len(models.Severities()))
	for _, s := range models.Severities() {
		if n := r.Summary.BySeverity[s]; n > 0 {
			sevRows = append(sevRows, []string{string(s), strconv.Itoa(n)})
		}
	}
	if len(sevRows) > 0 {
		sections = append(sections, NewTable("By Severity", []string{"Severity", "Count"}, sevRows, nil))
	}

	if len(r.Violations) > 0 {
		top := models.TopN(r.Violations, topN)
		rows := make([][]string, 0, len(top))
		for _, v := range top {
			rows = append(rows, []string{
				string(v.Severity),
				v.RuleID,
				fmt.Sprintf("%s:%d", v.FilePath, v.Line),
				v.Description,
			})
		}
		var footer []string
		if rest := len(r.Violations) - len(top); rest > 0 {
			footer = []string{"", "", "", fmt.Sprintf("%d more", rest)}
		}
		sections = append(sections, NewTable(fmt.Sprintf("Top %d Violations", len(top)),
			[]string{"Severity", "Rule", "Location", "Description"}, rows, footer))
	}

	if len(r.Duplicates) > 0 {
		rows := make([][]string, 0, len(r.Duplicates))
		for _, c := range r.Duplicates {
			members := make([]string, 0, len(c.Members))
			for _, fn := range c.Members {
				members = append(members, fmt.Sprintf("%s:%s", fn.File, fn.Function))
			}
			rows = append(rows, []string{strconv.Itoa(c.ID), fmt.Sprintf("%.2f", c.Similarity), strings.Join(members, ", ")})
		}
		sections = append(sections, NewTable("Duplicate Algorithms", []string{"Cluster", "Similarity", "Functions"}, rows, nil))
	}

	if len(r.Diagnostics) > 0 {
		rows := make([][]string, 0, len(r.Diagnostics))
		for _, d := range r.Diagnostics {
			rows = append(rows, []string{d.RuleID, fmt.Sprintf("%s:%d", d.FilePath, d.Line), d.Description})
		}
		sections = append(sections, NewTable("Diagnostics", []string{"Kind", "Location", "Message"}, rows, nil))
	}

	if failed := r.QualityGates.Failed(); len(failed) > 0 {
		rows := make([][]string, 0, len(failed))
		for _, g := range failed {
			rows = append(rows, []string{g.Name, strconv.FormatFloat(g.Actual, 'f', 2, 64), strconv.FormatFloat(g.Threshold, 'f', 2, 64)})
		}
		sections = append(sections, NewTable("Failed Gates", []string{"Gate", "Actual", "Threshold"}, rows, nil))
	}
	sections = append(sections, gateLine{gates: r.QualityGates})

	return &Report{Title: "Connascence Analysis", Sections: sections}
}
