// Package analyzer defines the capability shared by every per-file detector.
package analyzer

import (
	"github.com/panbanda/connascence/pkg/ast"
	"github.com/panbanda/connascence/pkg/models"
)

// Category names a detector family. Each category is pooled separately.
type Category string

// String implements fmt.Stringer.
func (c Category) String() string { return string(c) }

// CategoryNASA is the NASA-style compliance checker's category. Connascence
// and God-Object detectors use their rule kind as category.
const CategoryNASA Category = "NASA"

// CategoryFor returns the pooling category of a rule kind.
func CategoryFor(kind models.RuleKind) Category {
	if _, ok := kind.NasaNumber(); ok {
		return CategoryNASA
	}
	return Category(kind)
}

// Detector finds one family of violations in a parsed file.
//
// Implementations keep every per-file finding on the call stack. An instance
// returns identical output for identical input no matter how often, or on
// which files, it was used before.
type Detector interface {
	Category() Category
	Detect(tree *ast.Tree, lines []string) []models.Violation
}
