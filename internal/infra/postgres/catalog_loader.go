package postgres

import (
	"context"
	"fmt"

	"quiz-progression-service/internal/domain"

	"github.com/jackc/pgx/v4/pgxpool"
)

// CatalogLoader reads the level and milestone catalogs from Postgres.
type CatalogLoader struct {
	pool *pgxpool.Pool
}

func NewCatalogLoader(pool *pgxpool.Pool) *CatalogLoader {
	return &CatalogLoader{pool: pool}
}

func (l *CatalogLoader) LoadLevels(ctx context.Context) ([]domain.LevelCatalogEntry, error) {
	rows, err := l.pool.Query(ctx, `SELECT level_number, title FROM levels ORDER BY level_number`)
	if err != nil {
		return nil, fmt.Errorf("load levels: %w", err)
	}
	defer rows.Close()

	var levels []domain.LevelCatalogEntry
	for rows.Next() {
		var entry domain.LevelCatalogEntry
		if err := rows.Scan(&entry.Number, &entry.Title); err != nil {
			return nil, fmt.Errorf("scan level: %w", err)
		}
		levels = append(levels, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load levels: %w", err)
	}
	return levels, nil
}

func (l *CatalogLoader) LoadMilestones(ctx context.Context) ([]domain.Milestone, error) {
	rows, err := l.pool.Query(ctx, `
		SELECT id, title, description, unlock_level, bonus, reward_message, button_cta, link
		FROM milestones ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("load milestones: %w", err)
	}
	defer rows.Close()

	var milestones []domain.Milestone
	for rows.Next() {
		var m domain.Milestone
		if err := rows.Scan(&m.ID, &m.Title, &m.Description, &m.UnlockLevel, &m.Bonus,
			&m.RewardMessage, &m.ButtonCTA, &m.Link); err != nil {
			return nil, fmt.Errorf("scan milestone: %w", err)
		}
		milestones = append(milestones, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load milestones: %w", err)
	}
	return milestones, nil
}
