// Package report serializes an AnalysisResult as JSON, SARIF 2.1.0,
// Markdown or TOON. Every format preserves the canonical violation order.
package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	toon "github.com/toon-format/toon-go"

	"github.com/panbanda/connascence/pkg/models"
)

// Format is a report serialization.
type Format string

const (
	FormatJSON     Format = "json"
	FormatSARIF    Format = "sarif"
	FormatMarkdown Format = "markdown"
	FormatTOON     Format = "toon"
)

// ParseFormat maps a user-supplied name to a Format.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "json":
		return FormatJSON, nil
	case "sarif":
		return FormatSARIF, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	case "toon":
		return FormatTOON, nil
	}
	return "", fmt.Errorf("unknown report format %q", s)
}

// Options controls report generation.
type Options struct {
	// Reproducible drops run IDs, timestamps and timings.
	Reproducible bool
	// TopN limits the Markdown violation table. Zero uses 10.
	TopN int
	// ToolVersion is reported in the SARIF driver and Markdown header.
	ToolVersion string
}

func (o Options) topN() int {
	if o.TopN <= 0 {
		return 10
	}
	return o.TopN
}

func (o Options) version() string {
	if o.ToolVersion == "" {
		return "dev"
	}
	return o.ToolVersion
}

func (o Options) prepare(r *models.AnalysisResult) models.AnalysisResult {
	out := *r
	if o.Reproducible {
		out = out.Reproducible()
	}
	// Reports never reorder violations, whatever the caller passed in.
	if !models.IsCanonical(out.Violations) {
		vs := append([]models.Violation(nil), out.Violations...)
		models.SortCanonical(vs)
		out.Violations = vs
	}
	if out.Violations == nil {
		out.Violations = []models.Violation{}
	}
	if out.Diagnostics == nil {
		out.Diagnostics = []models.Violation{}
	}
	if out.Duplicates == nil {
		out.Duplicates = []models.DuplicateCluster{}
	}
	return out
}

// ToJSON renders r as indented JSON and checks it against the report schema.
func ToJSON(r *models.AnalysisResult, opts Options) ([]byte, error) {
	res := opts.prepare(r)
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		return nil, fmt.Errorf("encode json report: %w", err)
	}
	if err := ValidateJSON(buf.Bytes()); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ToTOON renders r in Token-Oriented Object Notation.
func ToTOON(r *models.AnalysisResult, opts Options) ([]byte, error) {
	res := opts.prepare(r)
	out, err := toon.Marshal(res, toon.WithIndent(2))
	if err != nil {
		return nil, fmt.Errorf("encode toon report: %w", err)
	}
	return out, nil
}

// Render produces the report for f.
func Render(f Format, r *models.AnalysisResult, opts Options) ([]byte, error) {
	switch f {
	case FormatJSON:
		return ToJSON(r, opts)
	case FormatSARIF:
		return ToSARIF(r, opts)
	case FormatMarkdown:
		return ToMarkdown(r, opts)
	case FormatTOON:
		return ToTOON(r, opts)
	}
	return nil, fmt.Errorf("unknown report format %q", f)
}

// Write renders the report for f to w.
func Write(w io.Writer, f Format, r *models.AnalysisResult, opts Options) error {
	data, err := Render(f, r, opts)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}
