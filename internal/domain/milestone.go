package domain

// BandSize is the fixed width of a milestone band: band k covers levels
// 10(k-1)+1 .. 10k. This windowing is the canonical definition; the
// catalog's unlock levels are display metadata, not band boundaries.
const BandSize = 10

// BandForLevel returns the milestone band containing a level.
func BandForLevel(level int) int {
	if level < 1 {
		return 1
	}
	return (level + BandSize - 1) / BandSize
}

// BandRange returns the inclusive level window of a band.
func BandRange(band int) (start, end int) {
	if band < 1 {
		band = 1
	}
	return BandSize*(band-1) + 1, BandSize * band
}

// BandCleared reports whether every level in the band's window is in
// the completed set. Removing any single level breaks the band.
func BandCleared(band int, completed map[int]bool) bool {
	start, end := BandRange(band)
	for level := start; level <= end; level++ {
		if !completed[level] {
			return false
		}
	}
	return true
}

// milestoneBonuses is the fixed, non-formulaic bonus schedule keyed by
// milestone id.
var milestoneBonuses = map[int]int{
	1: 100,
	2: 150,
	3: 200,
	4: 250,
	5: 300,
}

// MilestoneBonus returns the one-time bonus for a milestone id, or 0
// for ids outside the schedule.
func MilestoneBonus(id int) int {
	return milestoneBonuses[id]
}

// MilestoneStatus is the claim state of the milestone a player holds.
type MilestoneStatus string

const (
	// MilestonePending means the held milestone's reward is still open.
	MilestonePending MilestoneStatus = "pending"
	// MilestoneClaimed means the held milestone's reward was granted.
	MilestoneClaimed MilestoneStatus = "claimed"
)

// MilestoneProgress is the explicit per-player milestone state machine.
// It replaces an incidental pointer-equality check with a first-class
// transition: a milestone id can be granted at most once.
type MilestoneProgress struct {
	Band   int             `json:"band"`
	Status MilestoneStatus `json:"status"`
}

// NewMilestoneProgress is the starting state for a fresh player.
func NewMilestoneProgress() MilestoneProgress {
	return MilestoneProgress{Band: 1, Status: MilestonePending}
}

// Claimable reports whether granting the given milestone id would not
// be a duplicate.
func (p MilestoneProgress) Claimable(id int) bool {
	return !(p.Band == id && p.Status == MilestoneClaimed)
}

// Claim transitions the state machine to claimed(id). Claiming an
// already claimed id fails with ErrMilestoneClaimed and leaves the
// state unchanged.
func (p MilestoneProgress) Claim(id int) (MilestoneProgress, error) {
	if !p.Claimable(id) {
		return p, ErrMilestoneClaimed
	}
	return MilestoneProgress{Band: id, Status: MilestoneClaimed}, nil
}

// MilestoneRanges derives the level window view served by the catalog
// endpoint: each milestone spans from its unlock level up to the next
// milestone's unlock level, the last one covering a full band.
func MilestoneRanges(milestones []Milestone) []MilestoneRange {
	ranges := make([]MilestoneRange, 0, len(milestones))
	for i, m := range milestones {
		end := m.UnlockLevel + BandSize - 1
		if i+1 < len(milestones) {
			end = milestones[i+1].UnlockLevel - 1
		}
		ranges = append(ranges, MilestoneRange{
			ID:            m.ID,
			Title:         m.Title,
			Description:   m.Description,
			Range:         [2]int{m.UnlockLevel, end},
			RewardMessage: m.RewardMessage,
			ButtonCTA:     m.ButtonCTA,
			Link:          m.Link,
		})
	}
	return ranges
}
