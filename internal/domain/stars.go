package domain

// defaultMaxScore is the assumed per-level maximum when the true
// question count is unknown to the scoring path. Levels are nominally
// 20 points, so any raw score below that caps at 20.
const defaultMaxScore = 20

// MaxAttainableScore returns the best score an attempt could have
// reached. When the real per-level maximum is unknown it degrades to
// max(rawScore, 20); a score at or above 20 is therefore treated as a
// full board.
func MaxAttainableScore(rawScore int) int {
	if rawScore > defaultMaxScore {
		return rawScore
	}
	return defaultMaxScore
}

// StarsForAttempt maps a single attempt to 0-4 stars. The ladder is
// evaluated top to bottom and the first match wins: a flawless attempt
// earns 4 stars even when the completion percentage sits below 80.
func StarsForAttempt(rawScore, completionPct int) int {
	switch {
	case rawScore == MaxAttainableScore(rawScore):
		return 4
	case completionPct >= 80:
		return 3
	case completionPct >= 65:
		return 2
	case completionPct >= 50:
		return 1
	default:
		return 0
	}
}

// CompletionThreshold is the completion percentage at which a level
// counts as completed for unlocks and milestone bands.
const CompletionThreshold = 50

// Completed reports whether a level score clears the completion bar.
func (ls LevelScore) Completed() bool {
	return ls.CompletionPct >= CompletionThreshold
}

// TotalBestScore sums best scores across level records. Player lifetime
// points are always recomputed from this sum rather than incremented,
// which keeps the points invariant self-healing under retries.
func TotalBestScore(scores []LevelScore) int {
	total := 0
	for _, ls := range scores {
		total += ls.BestScore
	}
	return total
}

// HighestCompletedLevel returns the highest level with completion at or
// above the threshold, or 0 when no level qualifies.
func HighestCompletedLevel(scores []LevelScore) int {
	highest := 0
	for _, ls := range scores {
		if ls.Completed() && ls.Level > highest {
			highest = ls.Level
		}
	}
	return highest
}

// CompletedLevelSet collects the level numbers cleared so far.
func CompletedLevelSet(scores []LevelScore) map[int]bool {
	completed := make(map[int]bool, len(scores))
	for _, ls := range scores {
		if ls.Completed() {
			completed[ls.Level] = true
		}
	}
	return completed
}
