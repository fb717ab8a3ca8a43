package detection

import (
	"github.com/google/uuid"
)

// Provenance labels for the fusion result
const (
	ProvenanceRuleEngine = "rule_engine"
	ProvenanceClassifier = "classifier"
	ProvenanceBehavioral = "behavioral"
)

// FusionResult is the combined verdict for one review with the layers
// that produced it
type FusionResult struct {
	IsFakeFinal bool     `json:"is_fake_final"`
	Provenance  []string `json:"provenance"`
}

// Fuse combines the three independent verdicts. The final label is their
// logical OR; provenance records which layers fired so a verdict can be
// explained or appealed.
func Fuse(ruleVerdict, mlVerdict, behavioralVerdict bool) FusionResult {
	result := FusionResult{Provenance: make([]string, 0, 3)}
	if ruleVerdict {
		result.Provenance = append(result.Provenance, ProvenanceRuleEngine)
	}
	if mlVerdict {
		result.Provenance = append(result.Provenance, ProvenanceClassifier)
	}
	if behavioralVerdict {
		result.Provenance = append(result.Provenance, ProvenanceBehavioral)
	}
	result.IsFakeFinal = len(result.Provenance) > 0
	return result
}

// Summarize produces the corpus-level aggregates for a completed run
func Summarize(mode BatchMode, reviews []*Review) *BatchSummary {
	summary := &BatchSummary{
		Mode:           mode,
		TotalAnalyzed:  len(reviews),
		FlaggedReviews: make([]uuid.UUID, 0),
		FlaggedUsers:   make([]uuid.UUID, 0),
	}

	flaggedUsers := make(map[uuid.UUID]struct{})
	for _, r := range reviews {
		if r.IsFakeFinal == nil || !*r.IsFakeFinal {
			continue
		}
		summary.FakeCount++
		summary.FlaggedReviews = append(summary.FlaggedReviews, r.ID)
		flaggedUsers[r.UserID] = struct{}{}
	}
	for userID := range flaggedUsers {
		summary.FlaggedUsers = append(summary.FlaggedUsers, userID)
	}

	return summary
}
