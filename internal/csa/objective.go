package csa

import "github.com/transitiq/transitiq_core/internal/models"

// betterPredecessor reports whether a candidate predecessor beats the
// incumbent under the active objective. Both the forward scan and the
// back-trace run their label comparisons through this single comparator;
// the two objectives differ only in which dimension breaks ties.
func betterPredecessor(obj models.Objective, thisInitial, bestInitial, thisTransfers, bestTransfers int) bool {
	if obj == models.MinTransfers {
		if thisTransfers < bestTransfers {
			return true
		}
		return thisTransfers == bestTransfers && thisInitial > bestInitial
	}

	// min-duration: a later initial departure means a shorter journey to the
	// same connection, so the larger initial wins outright.
	if thisInitial > bestInitial {
		return true
	}
	return thisInitial == bestInitial && thisTransfers < bestTransfers
}
