package text

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSentences(t *testing.T) {
	cases := []struct {
		name     string
		input    string
		expected []string
	}{
		{
			name:     "simple split",
			input:    "Hi there! How can I help you today?",
			expected: []string{"Hi there!", "How can I help you today?"},
		},
		{
			name:     "button block stays whole",
			input:    "What bedroom size are you looking for? [1 BR|2 BR|3 BR]",
			expected: []string{"What bedroom size are you looking for?", "[1 BR|2 BR|3 BR]"},
		},
		{
			name:     "decimal not split",
			input:    "The unit is 2.5 miles from downtown. Want a tour?",
			expected: []string{"The unit is 2.5 miles from downtown.", "Want a tour?"},
		},
		{
			name:     "newline splits",
			input:    "First line\nSecond line",
			expected: []string{"First line", "Second line"},
		},
		{
			name:     "trailing fragment kept",
			input:    "Done. And one more",
			expected: []string{"Done.", "And one more"},
		},
		{
			name:     "empty input",
			input:    "",
			expected: nil,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, Sentences(tc.input))
		})
	}
}

func TestTruncate(t *testing.T) {
	long := "One. Two. Three. Four. Five. Six. Seven."

	assert.Equal(t, "One. Two. Three.", Truncate(long, 3))
	assert.Equal(t, "One. Two.", Truncate("One. Two.", 5))
}
