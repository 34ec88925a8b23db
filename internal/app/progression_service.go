package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"quiz-progression-service/internal/domain"
)

// PlayerStore abstracts how player progression records are persisted
// (in-memory, Postgres, etc). Per-record atomicity is the store's
// concern; the engine never holds locks across calls.
type PlayerStore interface {
	GetPlayer(ctx context.Context, id int) (domain.Player, error)
	CreatePlayer(ctx context.Context, name string) (domain.Player, error)
	UpdatePlayer(ctx context.Context, player domain.Player) (domain.Player, error)
	GetLevelScore(ctx context.Context, playerID, level int) (domain.LevelScore, bool, error)
	UpsertLevelScore(ctx context.Context, score domain.LevelScore) (domain.LevelScore, error)
	ListLevelScores(ctx context.Context, playerID int) ([]domain.LevelScore, error)
	AppendHistory(ctx context.Context, playerID, levelCompleted, pointsGained int) error
	ListHistory(ctx context.Context, playerID int) ([]domain.HistoryEntry, error)
	ListPlayers(ctx context.Context) ([]domain.Player, error)
}

// CatalogRepository loads static level and milestone reference data
// (from cache/backing store).
type CatalogRepository interface {
	ListLevels(ctx context.Context) ([]domain.LevelCatalogEntry, error)
	ListMilestones(ctx context.Context) ([]domain.Milestone, error)
	GetMilestone(ctx context.Context, id int) (domain.Milestone, error)
}

// LeaderboardProjection mirrors player standings into a fast read path.
// Writes are best-effort; the store remains the source of truth.
type LeaderboardProjection interface {
	Record(ctx context.Context, player domain.Player) error
	Top(ctx context.Context, limit int) ([]domain.LeaderboardEntry, error)
}

// Events carried on progression updates.
const (
	EventScoreUpdated        = "scoreUpdated"
	EventLevelCompleted      = "levelCompleted"
	EventLevelUnlocked       = "levelUnlocked"
	EventMilestoneAchievable = "milestoneAchievable"
	EventMilestoneClaimed    = "milestoneClaimed"
)

// ProgressionService contains the progression and rewards use cases.
type ProgressionService struct {
	store       PlayerStore
	catalog     CatalogRepository
	hub         *UpdateHub
	leaderboard LeaderboardProjection
	now         func() time.Time
}

func NewProgressionService(store PlayerStore, catalog CatalogRepository, hub *UpdateHub, leaderboard LeaderboardProjection) *ProgressionService {
	return NewProgressionServiceWithClock(store, catalog, hub, leaderboard, time.Now)
}

// NewProgressionServiceWithClock is test-only for deterministic timestamps.
func NewProgressionServiceWithClock(store PlayerStore, catalog CatalogRepository, hub *UpdateHub, leaderboard LeaderboardProjection, now func() time.Time) *ProgressionService {
	if hub == nil {
		hub = NewUpdateHub()
	}
	return &ProgressionService{
		store:       store,
		catalog:     catalog,
		hub:         hub,
		leaderboard: leaderboard,
		now:         now,
	}
}

// SubmitResult is the outcome of one finished level attempt.
type SubmitResult struct {
	Player       domain.Player     `json:"player"`
	LevelScore   domain.LevelScore `json:"levelScore"`
	UnlockedNext bool              `json:"unlockedNext"`
	Milestone    *domain.Milestone `json:"milestone,omitempty"`
	TotalPoints  int               `json:"totalPoints"`
}

// ClaimResult is the outcome of a milestone claim.
type ClaimResult struct {
	Player      domain.Player `json:"player"`
	BonusPoints int           `json:"bonusPoints"`
}

// ValidateResult confirms a player may attempt a level.
type ValidateResult struct {
	PlayerID     int `json:"playerId"`
	Level        int `json:"level"`
	PreviousBest int `json:"previousBest"`
}

// CreatePlayer registers a new player with level 1 unlocked.
func (s *ProgressionService) CreatePlayer(ctx context.Context, name string) (domain.Player, error) {
	if name == "" {
		return domain.Player{}, fmt.Errorf("%w: empty player name", domain.ErrInvalidInput)
	}
	player, err := s.store.CreatePlayer(ctx, name)
	if err != nil {
		return domain.Player{}, err
	}
	if _, err := s.store.UpsertLevelScore(ctx, domain.LevelScore{PlayerID: player.ID, Level: 1}); err != nil {
		return domain.Player{}, err
	}
	return player, nil
}

// GetPlayer returns the current player snapshot.
func (s *ProgressionService) GetPlayer(ctx context.Context, id int) (domain.Player, error) {
	return s.store.GetPlayer(ctx, id)
}

// SubmitAttempt is the externally observable operation for a finished
// level attempt: score aggregation, unlock resolution, milestone
// detection, then one progression-changed notification. Steps commit
// independently; each is idempotent, so a client retry after a partial
// failure converges to the same state.
func (s *ProgressionService) SubmitAttempt(ctx context.Context, playerID, level, rawScore, completionPct int) (SubmitResult, error) {
	if level < 1 {
		return SubmitResult{}, fmt.Errorf("%w: level %d", domain.ErrInvalidInput, level)
	}
	if rawScore < 0 {
		return SubmitResult{}, fmt.Errorf("%w: negative score", domain.ErrInvalidInput)
	}
	if completionPct < 0 || completionPct > 100 {
		return SubmitResult{}, fmt.Errorf("%w: completion %d%% out of range", domain.ErrInvalidInput, completionPct)
	}

	if _, err := s.store.GetPlayer(ctx, playerID); err != nil {
		return SubmitResult{}, err
	}
	levels, err := s.catalog.ListLevels(ctx)
	if err != nil {
		return SubmitResult{}, err
	}
	if !levelExists(levels, level) {
		return SubmitResult{}, fmt.Errorf("%w: level %d", domain.ErrLevelNotFound, level)
	}

	score, err := s.recordAttempt(ctx, playerID, level, rawScore, completionPct)
	if err != nil {
		return SubmitResult{}, err
	}

	scores, err := s.store.ListLevelScores(ctx, playerID)
	if err != nil {
		return SubmitResult{}, err
	}

	unlockedNext := false
	if completionPct >= domain.CompletionThreshold {
		unlockedNext, err = s.unlockNext(ctx, playerID, scores, levels)
		if err != nil {
			return SubmitResult{}, err
		}
		if unlockedNext {
			if scores, err = s.store.ListLevelScores(ctx, playerID); err != nil {
				return SubmitResult{}, err
			}
		}
	}

	// Lifetime points and the level pointer are recomputed from all
	// rows, not incremented, so a half-applied earlier run heals here.
	player, err := s.store.GetPlayer(ctx, playerID)
	if err != nil {
		return SubmitResult{}, err
	}
	player.Points = domain.TotalBestScore(scores)
	if next := domain.HighestCompletedLevel(scores) + 1; next > player.Level {
		player.Level = next
	}
	player, err = s.store.UpdatePlayer(ctx, player)
	if err != nil {
		return SubmitResult{}, err
	}

	if err := s.store.AppendHistory(ctx, playerID, level, rawScore); err != nil {
		return SubmitResult{}, err
	}

	milestone, err := s.pendingMilestone(ctx, player, level, scores)
	if err != nil {
		return SubmitResult{}, err
	}

	events := []string{EventScoreUpdated}
	if completionPct >= domain.CompletionThreshold {
		events = append(events, EventLevelCompleted)
	}
	if unlockedNext {
		events = append(events, EventLevelUnlocked)
	}
	if milestone != nil {
		events = append(events, EventMilestoneAchievable)
	}
	s.publish(ctx, domain.ProgressionUpdate{
		PlayerID:     playerID,
		Player:       player,
		LevelScore:   &score,
		UnlockedNext: unlockedNext,
		Milestone:    milestone,
		Events:       events,
		At:           s.now(),
	})

	return SubmitResult{
		Player:       player,
		LevelScore:   score,
		UnlockedNext: unlockedNext,
		Milestone:    milestone,
		TotalPoints:  player.Points,
	}, nil
}

// recordAttempt applies the keep-max merge for one attempt. The merge
// is commutative and idempotent, which makes duplicate submissions and
// reordered retries converge.
func (s *ProgressionService) recordAttempt(ctx context.Context, playerID, level, rawScore, completionPct int) (domain.LevelScore, error) {
	stars := domain.StarsForAttempt(rawScore, completionPct)

	existing, ok, err := s.store.GetLevelScore(ctx, playerID, level)
	if err != nil {
		return domain.LevelScore{}, err
	}
	if !ok {
		existing = domain.LevelScore{PlayerID: playerID, Level: level}
	}
	existing.LatestScore = rawScore
	existing.BestScore = max(existing.BestScore, rawScore)
	existing.CompletionPct = max(existing.CompletionPct, completionPct)
	existing.Stars = max(existing.Stars, stars)

	return s.store.UpsertLevelScore(ctx, existing)
}

// unlockNext creates the zero-valued record for the level after the
// highest completed one, if it exists in the catalog and has no record
// yet. Reports whether a new record was created.
func (s *ProgressionService) unlockNext(ctx context.Context, playerID int, scores []domain.LevelScore, levels []domain.LevelCatalogEntry) (bool, error) {
	next := domain.HighestCompletedLevel(scores) + 1
	if !levelExists(levels, next) {
		return false, nil
	}
	if _, ok, err := s.store.GetLevelScore(ctx, playerID, next); err != nil {
		return false, err
	} else if ok {
		return false, nil
	}
	if _, err := s.store.UpsertLevelScore(ctx, domain.LevelScore{PlayerID: playerID, Level: next}); err != nil {
		return false, err
	}
	return true, nil
}

// CheckMilestone reports the milestone newly claimable after playing a
// level, or nil when there is none. Detection never mutates state;
// granting is a separate, separately retriable step.
func (s *ProgressionService) CheckMilestone(ctx context.Context, playerID, level int) (*domain.Milestone, error) {
	if level < 1 {
		return nil, fmt.Errorf("%w: level %d", domain.ErrInvalidInput, level)
	}
	player, err := s.store.GetPlayer(ctx, playerID)
	if err != nil {
		return nil, err
	}
	scores, err := s.store.ListLevelScores(ctx, playerID)
	if err != nil {
		return nil, err
	}
	return s.pendingMilestone(ctx, player, level, scores)
}

func (s *ProgressionService) pendingMilestone(ctx context.Context, player domain.Player, level int, scores []domain.LevelScore) (*domain.Milestone, error) {
	band := domain.BandForLevel(level)
	if !domain.BandCleared(band, domain.CompletedLevelSet(scores)) {
		return nil, nil
	}
	next := band + 1
	if !player.Milestone.Claimable(next) {
		return nil, nil
	}
	milestone, err := s.catalog.GetMilestone(ctx, next)
	if errors.Is(err, domain.ErrMilestoneNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &milestone, nil
}

// ClaimMilestone grants a milestone's bonus: lifetime points become the
// fresh best-score sum plus the bonus, the milestone state machine
// transitions to claimed, the level pointer is raised to the unlock
// level, and a ledger row is appended. A structurally unreached or
// already claimed milestone is rejected without any state change.
func (s *ProgressionService) ClaimMilestone(ctx context.Context, playerID, milestoneID int) (ClaimResult, error) {
	if milestoneID < 1 {
		return ClaimResult{}, fmt.Errorf("%w: milestone %d", domain.ErrInvalidInput, milestoneID)
	}
	player, err := s.store.GetPlayer(ctx, playerID)
	if err != nil {
		return ClaimResult{}, err
	}
	milestone, err := s.catalog.GetMilestone(ctx, milestoneID)
	if err != nil {
		return ClaimResult{}, err
	}
	scores, err := s.store.ListLevelScores(ctx, playerID)
	if err != nil {
		return ClaimResult{}, err
	}

	if milestoneID > 1 && !domain.BandCleared(milestoneID-1, domain.CompletedLevelSet(scores)) {
		return ClaimResult{}, fmt.Errorf("%w: band %d incomplete", domain.ErrMilestoneNotReached, milestoneID-1)
	}
	progress, err := player.Milestone.Claim(milestoneID)
	if err != nil {
		return ClaimResult{}, err
	}

	bonus := domain.MilestoneBonus(milestoneID)
	player.Points = domain.TotalBestScore(scores) + bonus
	player.Milestone = progress
	if milestone.UnlockLevel > player.Level {
		player.Level = milestone.UnlockLevel
	}
	player, err = s.store.UpdatePlayer(ctx, player)
	if err != nil {
		return ClaimResult{}, err
	}

	completedCount := len(domain.CompletedLevelSet(scores))
	if err := s.store.AppendHistory(ctx, playerID, completedCount, bonus); err != nil {
		return ClaimResult{}, err
	}

	s.publish(ctx, domain.ProgressionUpdate{
		PlayerID:  playerID,
		Player:    player,
		Milestone: &milestone,
		Events:    []string{EventMilestoneClaimed},
		At:        s.now(),
	})

	return ClaimResult{Player: player, BonusPoints: bonus}, nil
}

// GetBadges derives the five badges from a fresh snapshot of player and
// level aggregates. No persistence side effects.
func (s *ProgressionService) GetBadges(ctx context.Context, playerID int) ([]domain.Badge, error) {
	player, err := s.store.GetPlayer(ctx, playerID)
	if err != nil {
		return nil, err
	}
	scores, err := s.store.ListLevelScores(ctx, playerID)
	if err != nil {
		return nil, err
	}
	levels, err := s.catalog.ListLevels(ctx)
	if err != nil {
		return nil, err
	}

	perfect := 0
	for _, ls := range scores {
		if ls.CompletionPct == 100 {
			perfect++
		}
	}

	start, end := domain.BandRange(domain.BandForLevel(player.Level))
	section := 0
	for _, ls := range scores {
		if ls.Level >= start && ls.Level <= end && ls.CompletionPct >= 80 {
			section++
		}
	}

	streak := player.Streak
	if run := domain.QualifyingRun(scores); run > streak {
		streak = run
	}

	return domain.CalculateBadges(domain.PlayerStats{
		TotalPoints:     player.Points,
		Streak:          streak,
		PerfectLevels:   perfect,
		CompletedLevels: len(domain.CompletedLevelSet(scores)),
		TotalLevels:     len(levels),
		SectionLevels:   section,
	}), nil
}

// ValidateAttempt checks that a player may play a level and returns the
// previous best for display. Replaying an already unlocked level is
// allowed; levels beyond the pointer are locked.
func (s *ProgressionService) ValidateAttempt(ctx context.Context, playerID, level int) (ValidateResult, error) {
	if level < 1 {
		return ValidateResult{}, fmt.Errorf("%w: level %d", domain.ErrInvalidInput, level)
	}
	player, err := s.store.GetPlayer(ctx, playerID)
	if err != nil {
		return ValidateResult{}, err
	}
	if level > player.Level {
		return ValidateResult{}, fmt.Errorf("%w: level %d, player at %d", domain.ErrLevelLocked, level, player.Level)
	}
	best := 0
	if score, ok, err := s.store.GetLevelScore(ctx, playerID, level); err != nil {
		return ValidateResult{}, err
	} else if ok {
		best = score.BestScore
	}
	return ValidateResult{PlayerID: playerID, Level: level, PreviousBest: best}, nil
}

// UnlockLevel makes a level playable by creating its zero-valued record
// and raising the player's pointer. Granting points is out of scope
// here; the record starts all-zero.
func (s *ProgressionService) UnlockLevel(ctx context.Context, playerID, level int) ([]domain.LevelScore, error) {
	if level < 1 {
		return nil, fmt.Errorf("%w: level %d", domain.ErrInvalidInput, level)
	}
	levels, err := s.catalog.ListLevels(ctx)
	if err != nil {
		return nil, err
	}
	if !levelExists(levels, level) {
		return nil, fmt.Errorf("%w: level %d", domain.ErrLevelNotFound, level)
	}
	player, err := s.store.GetPlayer(ctx, playerID)
	if err != nil {
		return nil, err
	}
	if _, ok, err := s.store.GetLevelScore(ctx, playerID, level); err != nil {
		return nil, err
	} else if !ok {
		if _, err := s.store.UpsertLevelScore(ctx, domain.LevelScore{PlayerID: playerID, Level: level}); err != nil {
			return nil, err
		}
	}
	if level > player.Level {
		player.Level = level
		if _, err := s.store.UpdatePlayer(ctx, player); err != nil {
			return nil, err
		}
	}
	return s.store.ListLevelScores(ctx, playerID)
}

// RecordLogin maintains the daily login streak: consecutive days extend
// it, a gap resets it, repeated same-day logins leave it alone.
func (s *ProgressionService) RecordLogin(ctx context.Context, playerID int) (domain.Player, error) {
	player, err := s.store.GetPlayer(ctx, playerID)
	if err != nil {
		return domain.Player{}, err
	}
	now := s.now()
	switch {
	case player.LastLogin.IsZero():
		player.Streak = 1
	case sameDay(player.LastLogin, now):
		// streak unchanged
	case sameDay(player.LastLogin.AddDate(0, 0, 1), now):
		player.Streak++
	default:
		player.Streak = 1
	}
	player.LastLogin = now
	return s.store.UpdatePlayer(ctx, player)
}

// ListLevelScores returns the player's level records in level order.
func (s *ProgressionService) ListLevelScores(ctx context.Context, playerID int) ([]domain.LevelScore, error) {
	if _, err := s.store.GetPlayer(ctx, playerID); err != nil {
		return nil, err
	}
	return s.store.ListLevelScores(ctx, playerID)
}

// History returns the player's ledger, newest first.
func (s *ProgressionService) History(ctx context.Context, playerID int) ([]domain.HistoryEntry, error) {
	if _, err := s.store.GetPlayer(ctx, playerID); err != nil {
		return nil, err
	}
	return s.store.ListHistory(ctx, playerID)
}

// Leaderboard returns the top players by lifetime points, preferring
// the projection and falling back to the store.
func (s *ProgressionService) Leaderboard(ctx context.Context, limit int) ([]domain.LeaderboardEntry, error) {
	if limit <= 0 {
		limit = 10
	}
	if s.leaderboard != nil {
		entries, err := s.leaderboard.Top(ctx, limit)
		if err == nil && len(entries) > 0 {
			return entries, nil
		}
		if err != nil {
			log.Printf("leaderboard projection read failed, using store: %v", err)
		}
	}

	players, err := s.store.ListPlayers(ctx)
	if err != nil {
		return nil, err
	}
	sort.Slice(players, func(i, j int) bool {
		if players[i].Points != players[j].Points {
			return players[i].Points > players[j].Points
		}
		return players[i].Name < players[j].Name
	})
	if len(players) > limit {
		players = players[:limit]
	}
	entries := make([]domain.LeaderboardEntry, 0, len(players))
	for _, p := range players {
		entries = append(entries, domain.LeaderboardEntry{
			PlayerID: p.ID,
			Name:     p.Name,
			Points:   p.Points,
			Level:    p.Level,
			Streak:   p.Streak,
		})
	}
	return entries, nil
}

// Levels returns the static level catalog in level order.
func (s *ProgressionService) Levels(ctx context.Context) ([]domain.LevelCatalogEntry, error) {
	return s.catalog.ListLevels(ctx)
}

// Milestones returns the milestone catalog as level-range views.
func (s *ProgressionService) Milestones(ctx context.Context) ([]domain.MilestoneRange, error) {
	milestones, err := s.catalog.ListMilestones(ctx)
	if err != nil {
		return nil, err
	}
	return domain.MilestoneRanges(milestones), nil
}

// Subscribe returns a channel of progression updates for one player.
// The caller must invoke the returned cancel function to avoid leaks.
func (s *ProgressionService) Subscribe(playerID int) (<-chan domain.ProgressionUpdate, func()) {
	return s.hub.Subscribe(playerID)
}

func (s *ProgressionService) publish(ctx context.Context, update domain.ProgressionUpdate) {
	if s.leaderboard != nil {
		// best-effort projection refresh
		if err := s.leaderboard.Record(ctx, update.Player); err != nil {
			log.Printf("leaderboard projection update failed: %v", err)
		}
	}
	s.hub.Publish(update)
}

func levelExists(levels []domain.LevelCatalogEntry, number int) bool {
	for _, entry := range levels {
		if entry.Number == number {
			return true
		}
	}
	return false
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}
