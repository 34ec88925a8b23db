package domain

// BadgeTier is one of six ordered badge ranks.
type BadgeTier string

const (
	TierNone     BadgeTier = "NO_BADGE"
	TierBronze   BadgeTier = "BRONZE"
	TierSilver   BadgeTier = "SILVER"
	TierGold     BadgeTier = "GOLD"
	TierPlatinum BadgeTier = "PLATINUM"
	TierDiamond  BadgeTier = "DIAMOND"
)

// BadgeType identifies one of the five independently derived badges.
type BadgeType string

const (
	BadgeScore    BadgeType = "SCORE"
	BadgeStreak   BadgeType = "STREAK"
	BadgePerfect  BadgeType = "PERFECT"
	BadgeProgress BadgeType = "PROGRESS"
	BadgeSection  BadgeType = "SECTION"
)

// Badge is derived on read from aggregated player stats, never persisted.
type Badge struct {
	Type        BadgeType `json:"type"`
	Tier        BadgeTier `json:"tier"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Progress    int       `json:"progress"`
	Total       int       `json:"total"`
}

// TierFor maps a stat value onto a tier using descending thresholds
// ordered DIAMOND, PLATINUM, GOLD, SILVER, BRONZE. The first threshold
// met wins.
func TierFor(value float64, thresholds [5]float64) BadgeTier {
	switch {
	case value >= thresholds[0]:
		return TierDiamond
	case value >= thresholds[1]:
		return TierPlatinum
	case value >= thresholds[2]:
		return TierGold
	case value >= thresholds[3]:
		return TierSilver
	case value >= thresholds[4]:
		return TierBronze
	default:
		return TierNone
	}
}

var (
	scoreThresholds   = [5]float64{1000, 750, 500, 250, 100}
	streakThresholds  = [5]float64{30, 20, 14, 7, 3}
	perfectThresholds = [5]float64{20, 15, 10, 5, 1}
	percentThresholds = [5]float64{100, 80, 60, 40, 20}
	sectionThresholds = [5]float64{10, 8, 6, 4, 2}
)

// CalculateBadges derives all five badges from a stats snapshot.
// PROGRESS is graded on the share of the catalog completed; the other
// badges grade raw counts.
func CalculateBadges(stats PlayerStats) []Badge {
	progressPct := 0.0
	if stats.TotalLevels > 0 {
		progressPct = float64(stats.CompletedLevels) / float64(stats.TotalLevels) * 100
	}

	return []Badge{
		{
			Type:        BadgeScore,
			Tier:        TierFor(float64(stats.TotalPoints), scoreThresholds),
			Name:        "Score Master",
			Description: "Earn points from completing quizzes",
			Progress:    stats.TotalPoints,
			Total:       int(scoreThresholds[0]),
		},
		{
			Type:        BadgeStreak,
			Tier:        TierFor(float64(stats.Streak), streakThresholds),
			Name:        "Streak Champion",
			Description: "Keep scoring 80% or better",
			Progress:    stats.Streak,
			Total:       int(streakThresholds[0]),
		},
		{
			Type:        BadgePerfect,
			Tier:        TierFor(float64(stats.PerfectLevels), perfectThresholds),
			Name:        "Perfect Score",
			Description: "Finish levels at 100%",
			Progress:    stats.PerfectLevels,
			Total:       int(perfectThresholds[0]),
		},
		{
			Type:        BadgeProgress,
			Tier:        TierFor(progressPct, percentThresholds),
			Name:        "Quiz Progress",
			Description: "Complete quiz levels",
			Progress:    stats.CompletedLevels,
			Total:       stats.TotalLevels,
		},
		{
			Type:        BadgeSection,
			Tier:        TierFor(float64(stats.SectionLevels), sectionThresholds),
			Name:        "Section Master",
			Description: "Master levels in your current section",
			Progress:    stats.SectionLevels,
			Total:       int(sectionThresholds[0]),
		},
	}
}

// QualifyingRun returns the longest consecutive run of levels scored
// at 80% or better, walking level records in catalog order. The STREAK
// badge grades whichever is longer, this run or the daily login streak.
func QualifyingRun(scores []LevelScore) int {
	longest, run := 0, 0
	for _, ls := range scores {
		if ls.CompletionPct >= 80 {
			run++
			if run > longest {
				longest = run
			}
		} else {
			run = 0
		}
	}
	return longest
}
