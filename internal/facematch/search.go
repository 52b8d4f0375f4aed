package facematch

import (
	"math"

	"github.com/kozaktomas/face-attendance/internal/database"
)

// MatchResult is the outcome of a single identification attempt.
// IdentityID and DisplayName are empty unless Matched.
type MatchResult struct {
	Matched     bool
	IdentityID  string
	DisplayName string
	Distance    float64 // closest distance seen, +Inf when there were no candidates
}

// Search finds the candidate closest to probe by cosine distance.
//
// Candidates are scanned in the order given and the first one wins ties,
// so callers must pass them in insertion order for deterministic results.
// A match requires a distance strictly below threshold. An empty candidate
// set is not an error: it yields an unmatched result with infinite distance.
func Search(probe []float32, candidates []database.EnrollmentRecord, threshold float64) (MatchResult, error) {
	result := MatchResult{Distance: math.Inf(1)}
	best := -1

	for i := range candidates {
		dist, err := database.CosineDistance(probe, candidates[i].Embedding)
		if err != nil {
			return MatchResult{}, err
		}
		if dist < result.Distance {
			result.Distance = dist
			best = i
		}
	}

	if best < 0 || result.Distance >= threshold {
		return result, nil
	}

	result.Matched = true
	result.IdentityID = candidates[best].IdentityID
	result.DisplayName = candidates[best].DisplayName
	return result, nil
}
