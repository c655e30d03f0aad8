package report

import (
	"bytes"
	"cmp"
	"embed"
	"fmt"
	"slices"
	"strings"
	"sync"
	"text/template"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/panbanda/connascence/pkg/models"
)

//go:embed markdown.tmpl
var templateFS embed.FS

// markdownData contains all data needed to render the Markdown report.
type markdownData struct {
	Version         string
	Generated       string
	Result          models.AnalysisResult
	TopN            int
	Top             []models.Violation
	Severities      []severityRow
	RuleKinds       []ruleKindRow
	Recommendations []string
	FailedGates     []models.GateResult
}

type severityRow struct {
	Severity models.Severity
	Count    int
}

type ruleKindRow struct {
	Kind  models.RuleKind
	Title string
	Count int
}

var (
	markdownOnce sync.Once
	markdownTmpl *template.Template
	markdownErr  error
)

func severityIcon(s models.Severity) string {
	switch s {
	case models.SeverityCritical:
		return "🔴"
	case models.SeverityHigh:
		return "🟠"
	case models.SeverityMedium:
		return "🟡"
	case models.SeverityLow:
		return "🔵"
	}
	return "⚪"
}

func loadMarkdownTemplate() (*template.Template, error) {
	markdownOnce.Do(func() {
		printer := message.NewPrinter(language.English)
		funcMap := template.FuncMap{
			"title": cases.Title(language.English).String,
			"icon":  severityIcon,
			"num": func(n int) string {
				return printer.Sprintf("%d", n)
			},
			"pct": func(f float64) string {
				return printer.Sprintf("%.1f%%", f*100)
			},
			"float": func(f float64) string {
				return printer.Sprintf("%.2f", f)
			},
			"cell": func(s string) string {
				s = strings.ReplaceAll(s, "|", `\|`)
				return strings.ReplaceAll(s, "\n", " ")
			},
			"verdict": func(ok bool) string {
				if ok {
					return "✅ passing"
				}
				return "❌ failing"
			},
			"sev": func(s models.Severity) string { return string(s) },
		}
		content, err := templateFS.ReadFile("markdown.tmpl")
		if err != nil {
			markdownErr = err
			return
		}
		markdownTmpl, markdownErr = template.New("report").Funcs(funcMap).Parse(string(content))
	})
	return markdownTmpl, markdownErr
}

func newMarkdownData(r *models.AnalysisResult, opts Options) markdownData {
	res := opts.prepare(r)
	d := markdownData{
		Version:     opts.version(),
		Result:      res,
		TopN:        opts.topN(),
		Top:         models.TopN(res.Violations, opts.topN()),
		FailedGates: res.QualityGates.Failed(),
	}
	if res.Run != nil {
		d.Generated = res.Run.StartedAt.UTC().Format(time.RFC3339)
	}
	for _, s := range models.Severities() {
		if n := res.Summary.BySeverity[s]; n > 0 {
			d.Severities = append(d.Severities, severityRow{Severity: s, Count: n})
		}
	}
	for k, n := range res.Summary.ByRuleKind {
		d.RuleKinds = append(d.RuleKinds, ruleKindRow{Kind: k, Title: k.Title(), Count: n})
	}
	slices.SortFunc(d.RuleKinds, func(a, b ruleKindRow) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}
		return strings.Compare(string(a.Kind), string(b.Kind))
	})
	seen := make(map[string]bool)
	for _, v := range models.TopN(res.Violations, -1) {
		if v.Recommendation == "" || seen[v.Recommendation] {
			continue
		}
		seen[v.Recommendation] = true
		d.Recommendations = append(d.Recommendations, v.Recommendation)
	}
	return d
}

// ToMarkdown renders r as a Markdown summary.
func ToMarkdown(r *models.AnalysisResult, opts Options) ([]byte, error) {
	tmpl, err := loadMarkdownTemplate()
	if err != nil {
		return nil, fmt.Errorf("load markdown template: %w", err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, newMarkdownData(r, opts)); err != nil {
		return nil, fmt.Errorf("render markdown report: %w", err)
	}
	return buf.Bytes(), nil
}
