package domain

import "time"

// Player holds the denormalized progression state for one player.
type Player struct {
	ID        int               `json:"id"`
	Name      string            `json:"name"`
	Points    int               `json:"points"`
	Level     int               `json:"level"`
	Milestone MilestoneProgress `json:"milestone"`
	Streak    int               `json:"streak"`
	LastLogin time.Time         `json:"lastLogin"`
}

// LevelScore is the per-player record for a single level. Best fields
// only ever grow; a freshly unlocked level starts with everything zero.
type LevelScore struct {
	PlayerID      int `json:"playerId"`
	Level         int `json:"level"`
	LatestScore   int `json:"latestScore"`
	BestScore     int `json:"bestScore"`
	CompletionPct int `json:"completionPct"`
	Stars         int `json:"stars"`
}

// LevelCatalogEntry describes one playable level in the static catalog.
type LevelCatalogEntry struct {
	Number int    `json:"number"`
	Title  string `json:"title"`
}

// Milestone is static reference data for one 10-level band reward.
type Milestone struct {
	ID            int    `json:"id"`
	Title         string `json:"title"`
	Description   string `json:"description"`
	UnlockLevel   int    `json:"unlockLevel"`
	Bonus         int    `json:"bonus"`
	RewardMessage string `json:"rewardMessage"`
	ButtonCTA     string `json:"buttonCta"`
	Link          string `json:"link"`
}

// MilestoneRange is the catalog view of a milestone with its level window.
type MilestoneRange struct {
	ID            int    `json:"id"`
	Title         string `json:"title"`
	Description   string `json:"description"`
	Range         [2]int `json:"range"`
	RewardMessage string `json:"rewardMessage"`
	ButtonCTA     string `json:"buttonCta"`
	Link          string `json:"link"`
}

// HistoryEntry is one append-only ledger row: a scoring event or a
// milestone claim. Rows are never mutated after insertion.
type HistoryEntry struct {
	ID             int       `json:"id"`
	PlayerID       int       `json:"playerId"`
	LevelCompleted int       `json:"levelCompleted"`
	PointsGained   int       `json:"pointsGained"`
	RecordedAt     time.Time `json:"recordedAt"`
}

// LeaderboardEntry is a snapshot-friendly view of a ranked player.
type LeaderboardEntry struct {
	PlayerID int    `json:"playerId"`
	Name     string `json:"name"`
	Points   int    `json:"points"`
	Level    int    `json:"level"`
	Streak   int    `json:"streak"`
}

// ProgressionUpdate is the notification value emitted after a committed
// progression change. The engine only returns/publishes it; how it
// reaches clients is the transport layer's concern.
type ProgressionUpdate struct {
	PlayerID     int         `json:"playerId"`
	Player       Player      `json:"player"`
	LevelScore   *LevelScore `json:"levelScore,omitempty"`
	UnlockedNext bool        `json:"unlockedNext"`
	Milestone    *Milestone  `json:"milestone,omitempty"`
	Events       []string    `json:"events"`
	At           time.Time   `json:"at"`
}

// PlayerStats aggregates the scalar inputs for badge derivation.
type PlayerStats struct {
	TotalPoints     int
	Streak          int
	PerfectLevels   int
	CompletedLevels int
	TotalLevels     int
	SectionLevels   int
}
