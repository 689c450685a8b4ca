package csa

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/transitiq/transitiq_core/internal/models"
)

func TestBetterPredecessor(t *testing.T) {
	tests := []struct {
		name          string
		objective     models.Objective
		thisInitial   int
		bestInitial   int
		thisTransfers int
		bestTransfers int
		expected      bool
	}{
		{
			name:      "min duration prefers later initial",
			objective: models.MinDuration,
			thisInitial: 3700, bestInitial: 3600,
			thisTransfers: 3, bestTransfers: 0,
			expected: true,
		},
		{
			name:      "min duration rejects earlier initial",
			objective: models.MinDuration,
			thisInitial: 3500, bestInitial: 3600,
			thisTransfers: 0, bestTransfers: 3,
			expected: false,
		},
		{
			name:      "min duration breaks ties on transfers",
			objective: models.MinDuration,
			thisInitial: 3600, bestInitial: 3600,
			thisTransfers: 1, bestTransfers: 2,
			expected: true,
		},
		{
			name:      "min duration keeps incumbent on full tie",
			objective: models.MinDuration,
			thisInitial: 3600, bestInitial: 3600,
			thisTransfers: 2, bestTransfers: 2,
			expected: false,
		},
		{
			name:      "min transfers prefers fewer boardings",
			objective: models.MinTransfers,
			thisInitial: 3000, bestInitial: 3600,
			thisTransfers: 0, bestTransfers: 1,
			expected: true,
		},
		{
			name:      "min transfers rejects more boardings",
			objective: models.MinTransfers,
			thisInitial: 3700, bestInitial: 3600,
			thisTransfers: 2, bestTransfers: 1,
			expected: false,
		},
		{
			name:      "min transfers breaks ties on initial",
			objective: models.MinTransfers,
			thisInitial: 3700, bestInitial: 3600,
			thisTransfers: 1, bestTransfers: 1,
			expected: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := betterPredecessor(tt.objective,
				tt.thisInitial, tt.bestInitial, tt.thisTransfers, tt.bestTransfers)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestParseObjective(t *testing.T) {
	assert.Equal(t, models.MinTransfers, models.ParseObjective("min_transfers"))
	assert.Equal(t, models.MinDuration, models.ParseObjective("min_duration"))
	assert.Equal(t, models.MinDuration, models.ParseObjective(""))
	assert.Equal(t, models.MinDuration, models.ParseObjective("fastest"))
}
