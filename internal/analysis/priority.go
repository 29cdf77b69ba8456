package analysis

import "sort"

// AssignPriorities scores each rebuild spec from business importance ×
// feature confidence × inverse complexity, then buckets into high /
// medium / low. Ties prefer specs referencing interactive elements over
// purely informational features; ordering is deterministic.
func AssignPriorities(f *FeatureAnalysis, s *ContentSummary) {
	type scored struct {
		idx   int
		score float64
	}
	scores := make([]scored, len(f.RebuildSpecs))
	for i, spec := range f.RebuildSpecs {
		complexity := spec.Complexity
		if complexity < 1 {
			complexity = 1
		}
		inverse := 1.0 / float64(complexity)
		score := s.BusinessImportance * f.OverallConfidence * inverse
		if spec.Interactive {
			// Interactive tie-break: a nudge too small to jump buckets on
			// its own but decisive between equals.
			score += 0.001
		}
		scores[i] = scored{idx: i, score: score}
	}

	for _, sc := range scores {
		switch {
		case sc.score >= 0.25:
			f.RebuildSpecs[sc.idx].Priority = PriorityHigh
		case sc.score >= 0.08:
			f.RebuildSpecs[sc.idx].Priority = PriorityMedium
		default:
			f.RebuildSpecs[sc.idx].Priority = PriorityLow
		}
	}

	// Stable ordering: by score descending, original order on exact ties.
	sort.SliceStable(f.RebuildSpecs, func(i, j int) bool {
		return specScore(f, s, i) > specScore(f, s, j)
	})
}

func specScore(f *FeatureAnalysis, s *ContentSummary, i int) float64 {
	spec := f.RebuildSpecs[i]
	complexity := spec.Complexity
	if complexity < 1 {
		complexity = 1
	}
	score := s.BusinessImportance * f.OverallConfidence / float64(complexity)
	if spec.Interactive {
		score += 0.001
	}
	return score
}
