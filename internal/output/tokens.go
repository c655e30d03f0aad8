package output

import (
	"fmt"
	"unicode/utf8"
)

// CharsPerToken approximates the character-to-token ratio of report text.
// Structured formats such as JSON and TOON sit close to 4.
const CharsPerToken = 4.0

// EstimateTokens returns an approximate token count for a rendered report.
func EstimateTokens(data []byte) int {
	if len(data) == 0 {
		return 0
	}
	tokens := float64(utf8.RuneCount(data)) / CharsPerToken
	return int(tokens + 0.5)
}

// FormatTokenCount formats a token count for display.
// Counts >= 1000 are formatted as "X.Xk".
func FormatTokenCount(tokens int) string {
	if tokens < 1000 {
		return fmt.Sprintf("%d", tokens)
	}
	return fmt.Sprintf("%.1fk", float64(tokens)/1000)
}
