package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"time"

	"quiz-progression-service/internal/domain"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// CatalogLoader fetches the static level/milestone catalog from a
// backing store (e.g., Postgres).
type CatalogLoader interface {
	LoadLevels(ctx context.Context) ([]domain.LevelCatalogEntry, error)
	LoadMilestones(ctx context.Context) ([]domain.Milestone, error)
}

// CatalogRepository caches the catalog in Redis as JSON blobs and falls
// back to a loader on cache miss:
//
//	SET catalog:levels     <json> EX ttl
//	SET catalog:milestones <json> EX ttl
type CatalogRepository struct {
	client *redis.Client
	loader CatalogLoader
	ttl    time.Duration
	sf     singleflight.Group
	rnd    *rand.Rand
}

func NewCatalogRepository(client *redis.Client, loader CatalogLoader, ttl time.Duration) *CatalogRepository {
	return &CatalogRepository{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

const (
	levelsKey     = "catalog:levels"
	milestonesKey = "catalog:milestones"
)

func (r *CatalogRepository) ListLevels(ctx context.Context) ([]domain.LevelCatalogEntry, error) {
	var levels []domain.LevelCatalogEntry
	if ok := r.readCached(ctx, levelsKey, &levels); ok {
		return levels, nil
	}
	levels, _, err := r.fill(ctx)
	return levels, err
}

func (r *CatalogRepository) ListMilestones(ctx context.Context) ([]domain.Milestone, error) {
	var milestones []domain.Milestone
	if ok := r.readCached(ctx, milestonesKey, &milestones); ok {
		return milestones, nil
	}
	_, milestones, err := r.fill(ctx)
	return milestones, err
}

func (r *CatalogRepository) GetMilestone(ctx context.Context, id int) (domain.Milestone, error) {
	milestones, err := r.ListMilestones(ctx)
	if err != nil {
		return domain.Milestone{}, err
	}
	for _, m := range milestones {
		if m.ID == id {
			return m, nil
		}
	}
	return domain.Milestone{}, domain.ErrMilestoneNotFound
}

func (r *CatalogRepository) readCached(ctx context.Context, key string, out interface{}) bool {
	raw, err := r.client.Get(ctx, key).Bytes()
	if err != nil || len(raw) == 0 {
		return false
	}
	return json.Unmarshal(raw, out) == nil
}

type catalogPair struct {
	levels     []domain.LevelCatalogEntry
	milestones []domain.Milestone
}

func (r *CatalogRepository) fill(ctx context.Context) ([]domain.LevelCatalogEntry, []domain.Milestone, error) {
	result, err, _ := r.sf.Do("catalog", func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		var levels []domain.LevelCatalogEntry
		var milestones []domain.Milestone
		if r.readCached(ctx, levelsKey, &levels) && r.readCached(ctx, milestonesKey, &milestones) {
			return catalogPair{levels, milestones}, nil
		}

		levels, err := r.loader.LoadLevels(ctx)
		if err != nil {
			return catalogPair{}, fmt.Errorf("load levels: %w", err)
		}
		milestones, err = r.loader.LoadMilestones(ctx)
		if err != nil {
			return catalogPair{}, fmt.Errorf("load milestones: %w", err)
		}

		ttl := r.ttlWithJitter()
		levelsJSON, _ := json.Marshal(levels)
		milestonesJSON, _ := json.Marshal(milestones)
		pipe := r.client.Pipeline()
		pipe.Set(ctx, levelsKey, levelsJSON, ttl)
		pipe.Set(ctx, milestonesKey, milestonesJSON, ttl)
		_, _ = pipe.Exec(ctx)

		return catalogPair{levels, milestones}, nil
	})
	if err != nil {
		return nil, nil, err
	}
	pair := result.(catalogPair)
	return pair.levels, pair.milestones, nil
}

func (r *CatalogRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
