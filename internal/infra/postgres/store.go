package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"quiz-progression-service/internal/domain"

	"github.com/uptrace/bun"
)

type playerRow struct {
	bun.BaseModel `bun:"table:players"`

	ID              int            `bun:"id,pk,autoincrement"`
	Name            string         `bun:"name"`
	Points          int            `bun:"points"`
	Level           int            `bun:"level"`
	MilestoneBand   int            `bun:"milestone_band"`
	MilestoneStatus string         `bun:"milestone_status"`
	Streak          int            `bun:"streak"`
	LastLogin       sql.NullTime   `bun:"last_login"`
}

type levelScoreRow struct {
	bun.BaseModel `bun:"table:level_scores"`

	PlayerID      int `bun:"player_id,pk"`
	LevelNumber   int `bun:"level_number,pk"`
	LatestScore   int `bun:"latest_score"`
	BestScore     int `bun:"best_score"`
	CompletionPct int `bun:"completion_pct"`
	Stars         int `bun:"stars"`
}

type historyRow struct {
	bun.BaseModel `bun:"table:player_history"`

	ID             int       `bun:"id,pk,autoincrement"`
	PlayerID       int       `bun:"player_id"`
	LevelCompleted int       `bun:"level_completed"`
	PointsGained   int       `bun:"points_gained"`
	RecordedAt     time.Time `bun:"recorded_at"`
}

// PlayerStore persists players, per-level scores and the history ledger
// in Postgres.
type PlayerStore struct {
	db *bun.DB
}

func NewPlayerStore(db *bun.DB) *PlayerStore {
	return &PlayerStore{db: db}
}

func (s *PlayerStore) GetPlayer(ctx context.Context, id int) (domain.Player, error) {
	row := new(playerRow)
	err := s.db.NewSelect().Model(row).Where("id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Player{}, domain.ErrPlayerNotFound
	}
	if err != nil {
		return domain.Player{}, fmt.Errorf("get player: %w", err)
	}
	return row.toDomain(), nil
}

func (s *PlayerStore) CreatePlayer(ctx context.Context, name string) (domain.Player, error) {
	progress := domain.NewMilestoneProgress()
	row := &playerRow{
		Name:            name,
		Level:           1,
		MilestoneBand:   progress.Band,
		MilestoneStatus: string(progress.Status),
	}
	if _, err := s.db.NewInsert().Model(row).Returning("id").Exec(ctx); err != nil {
		return domain.Player{}, fmt.Errorf("create player: %w", err)
	}
	return row.toDomain(), nil
}

func (s *PlayerStore) UpdatePlayer(ctx context.Context, player domain.Player) (domain.Player, error) {
	row := fromDomainPlayer(player)
	res, err := s.db.NewUpdate().Model(row).WherePK().Exec(ctx)
	if err != nil {
		return domain.Player{}, fmt.Errorf("update player: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.Player{}, domain.ErrPlayerNotFound
	}
	return player, nil
}

func (s *PlayerStore) GetLevelScore(ctx context.Context, playerID, level int) (domain.LevelScore, bool, error) {
	row := new(levelScoreRow)
	err := s.db.NewSelect().Model(row).
		Where("player_id = ?", playerID).
		Where("level_number = ?", level).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.LevelScore{}, false, nil
	}
	if err != nil {
		return domain.LevelScore{}, false, fmt.Errorf("get level score: %w", err)
	}
	return row.toDomain(), true, nil
}

func (s *PlayerStore) UpsertLevelScore(ctx context.Context, score domain.LevelScore) (domain.LevelScore, error) {
	row := &levelScoreRow{
		PlayerID:      score.PlayerID,
		LevelNumber:   score.Level,
		LatestScore:   score.LatestScore,
		BestScore:     score.BestScore,
		CompletionPct: score.CompletionPct,
		Stars:         score.Stars,
	}
	// Best fields merge with GREATEST so a replay can never lower them,
	// even when two submissions race.
	_, err := s.db.NewInsert().Model(row).
		On("CONFLICT (player_id, level_number) DO UPDATE").
		Set("latest_score = EXCLUDED.latest_score").
		Set("best_score = GREATEST(level_scores.best_score, EXCLUDED.best_score)").
		Set("completion_pct = GREATEST(level_scores.completion_pct, EXCLUDED.completion_pct)").
		Set("stars = GREATEST(level_scores.stars, EXCLUDED.stars)").
		Exec(ctx)
	if err != nil {
		return domain.LevelScore{}, fmt.Errorf("upsert level score: %w", err)
	}
	merged, _, err := s.GetLevelScore(ctx, score.PlayerID, score.Level)
	if err != nil {
		return domain.LevelScore{}, err
	}
	return merged, nil
}

func (s *PlayerStore) ListLevelScores(ctx context.Context, playerID int) ([]domain.LevelScore, error) {
	var rows []levelScoreRow
	err := s.db.NewSelect().Model(&rows).
		Where("player_id = ?", playerID).
		Order("level_number ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list level scores: %w", err)
	}
	scores := make([]domain.LevelScore, 0, len(rows))
	for _, r := range rows {
		scores = append(scores, r.toDomain())
	}
	return scores, nil
}

func (s *PlayerStore) AppendHistory(ctx context.Context, playerID, levelCompleted, pointsGained int) error {
	row := &historyRow{
		PlayerID:       playerID,
		LevelCompleted: levelCompleted,
		PointsGained:   pointsGained,
		RecordedAt:     time.Now().UTC(),
	}
	if _, err := s.db.NewInsert().Model(row).Exec(ctx); err != nil {
		return fmt.Errorf("append history: %w", err)
	}
	return nil
}

func (s *PlayerStore) ListHistory(ctx context.Context, playerID int) ([]domain.HistoryEntry, error) {
	var rows []historyRow
	err := s.db.NewSelect().Model(&rows).
		Where("player_id = ?", playerID).
		Order("recorded_at DESC", "id DESC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	entries := make([]domain.HistoryEntry, 0, len(rows))
	for _, r := range rows {
		entries = append(entries, domain.HistoryEntry{
			ID:             r.ID,
			PlayerID:       r.PlayerID,
			LevelCompleted: r.LevelCompleted,
			PointsGained:   r.PointsGained,
			RecordedAt:     r.RecordedAt,
		})
	}
	return entries, nil
}

func (s *PlayerStore) ListPlayers(ctx context.Context) ([]domain.Player, error) {
	var rows []playerRow
	if err := s.db.NewSelect().Model(&rows).Scan(ctx); err != nil {
		return nil, fmt.Errorf("list players: %w", err)
	}
	players := make([]domain.Player, 0, len(rows))
	for _, r := range rows {
		players = append(players, r.toDomain())
	}
	return players, nil
}

func (r *playerRow) toDomain() domain.Player {
	p := domain.Player{
		ID:     r.ID,
		Name:   r.Name,
		Points: r.Points,
		Level:  r.Level,
		Milestone: domain.MilestoneProgress{
			Band:   r.MilestoneBand,
			Status: domain.MilestoneStatus(r.MilestoneStatus),
		},
		Streak: r.Streak,
	}
	if r.LastLogin.Valid {
		p.LastLogin = r.LastLogin.Time
	}
	return p
}

func fromDomainPlayer(p domain.Player) *playerRow {
	row := &playerRow{
		ID:              p.ID,
		Name:            p.Name,
		Points:          p.Points,
		Level:           p.Level,
		MilestoneBand:   p.Milestone.Band,
		MilestoneStatus: string(p.Milestone.Status),
		Streak:          p.Streak,
	}
	if !p.LastLogin.IsZero() {
		row.LastLogin = sql.NullTime{Time: p.LastLogin, Valid: true}
	}
	return row
}

func (r *levelScoreRow) toDomain() domain.LevelScore {
	return domain.LevelScore{
		PlayerID:      r.PlayerID,
		Level:         r.LevelNumber,
		LatestScore:   r.LatestScore,
		BestScore:     r.BestScore,
		CompletionPct: r.CompletionPct,
		Stars:         r.Stars,
	}
}
