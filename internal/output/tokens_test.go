package output

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEstimateTokens(t *testing.T) {
	tests := []struct {
		name string
		text string
		want int
	}{
		{"empty", "", 0},
		{"short", "abcd", 1},
		{"rounds", "abcdef", 2},
		{"multibyte runes count once", strings.Repeat("é", 8), 2},
		{"1000 chars", strings.Repeat("x", 1000), 250},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EstimateTokens([]byte(tt.text)))
		})
	}
}

func TestFormatTokenCount(t *testing.T) {
	assert.Equal(t, "0", FormatTokenCount(0))
	assert.Equal(t, "999", FormatTokenCount(999))
	assert.Equal(t, "1.0k", FormatTokenCount(1000))
	assert.Equal(t, "12.3k", FormatTokenCount(12345))
}
