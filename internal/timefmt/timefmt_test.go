package timefmt

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected int
		hasError bool
	}{
		{
			name:     "Full clock time",
			input:    "08:30:15",
			expected: 8*3600 + 30*60 + 15,
		},
		{
			name:     "Midnight",
			input:    "00:00:00",
			expected: 0,
		},
		{
			name:     "Next day service",
			input:    "25:10:00",
			expected: 25*3600 + 10*60,
		},
		{
			name:     "Hours and minutes only",
			input:    "08:30",
			expected: 8*3600 + 30*60,
		},
		{
			name:     "Duration syntax",
			input:    "10H 30M 00S",
			expected: 10*3600 + 30*60,
		},
		{
			name:     "Duration syntax with seconds",
			input:    "1H 2M 3S",
			expected: 3600 + 120 + 3,
		},
		{
			name:     "Empty string",
			input:    "",
			hasError: true,
		},
		{
			name:     "Too many colons",
			input:    "1:02:03:04",
			hasError: true,
		},
		{
			name:     "Short clock without padding",
			input:    "8:30:15",
			hasError: true,
		},
		{
			name:     "Plain number",
			input:    "3600",
			hasError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := Parse(tt.input)
			if tt.hasError {
				assert.ErrorIs(t, err, ErrUnrecognizedTimeFormat)
			} else {
				assert.NoError(t, err)
				assert.Equal(t, tt.expected, result)
			}
		})
	}
}
