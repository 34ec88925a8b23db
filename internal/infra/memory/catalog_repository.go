package memory

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"quiz-progression-service/internal/domain"
	"golang.org/x/sync/singleflight"
)

// CatalogLoader fetches the static level/milestone catalog from a
// backing store (e.g., Postgres).
type CatalogLoader interface {
	LoadLevels(ctx context.Context) ([]domain.LevelCatalogEntry, error)
	LoadMilestones(ctx context.Context) ([]domain.Milestone, error)
}

// CatalogRepository caches the catalog with TTL to avoid repeated DB
// hits. The catalog is reference data and changes rarely.
type CatalogRepository struct {
	loader CatalogLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group
	rnd    *rand.Rand

	mu        sync.RWMutex
	cached    cachedCatalog
	populated bool
}

type cachedCatalog struct {
	levels     []domain.LevelCatalogEntry
	milestones []domain.Milestone
	expiresAt  time.Time
}

func NewCatalogRepository(loader CatalogLoader, ttl time.Duration) *CatalogRepository {
	return &CatalogRepository{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *CatalogRepository) ListLevels(ctx context.Context) ([]domain.LevelCatalogEntry, error) {
	catalog, err := r.get(ctx)
	if err != nil {
		return nil, err
	}
	return catalog.levels, nil
}

func (r *CatalogRepository) ListMilestones(ctx context.Context) ([]domain.Milestone, error) {
	catalog, err := r.get(ctx)
	if err != nil {
		return nil, err
	}
	return catalog.milestones, nil
}

func (r *CatalogRepository) GetMilestone(ctx context.Context, id int) (domain.Milestone, error) {
	catalog, err := r.get(ctx)
	if err != nil {
		return domain.Milestone{}, err
	}
	for _, m := range catalog.milestones {
		if m.ID == id {
			return m, nil
		}
	}
	return domain.Milestone{}, domain.ErrMilestoneNotFound
}

func (r *CatalogRepository) get(ctx context.Context) (cachedCatalog, error) {
	now := r.clock()

	r.mu.RLock()
	if r.populated && r.cached.expiresAt.After(now) {
		catalog := r.cached
		r.mu.RUnlock()
		return catalog, nil
	}
	r.mu.RUnlock()

	result, err, _ := r.sf.Do("catalog", func() (interface{}, error) {
		now := r.clock()
		r.mu.RLock()
		if r.populated && r.cached.expiresAt.After(now) {
			catalog := r.cached
			r.mu.RUnlock()
			return catalog, nil
		}
		r.mu.RUnlock()

		levels, err := r.loader.LoadLevels(ctx)
		if err != nil {
			return cachedCatalog{}, fmt.Errorf("load levels: %w", err)
		}
		milestones, err := r.loader.LoadMilestones(ctx)
		if err != nil {
			return cachedCatalog{}, fmt.Errorf("load milestones: %w", err)
		}

		catalog := cachedCatalog{
			levels:     levels,
			milestones: milestones,
			expiresAt:  now.Add(r.ttlWithJitter()),
		}
		r.mu.Lock()
		r.cached = catalog
		r.populated = true
		r.mu.Unlock()
		return catalog, nil
	})
	if err != nil {
		return cachedCatalog{}, err
	}
	return result.(cachedCatalog), nil
}

func (r *CatalogRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}

// StaticCatalogLoader serves a fixed catalog from memory (useful for
// tests/demos and running without Postgres).
type StaticCatalogLoader struct {
	levels     []domain.LevelCatalogEntry
	milestones []domain.Milestone
}

func NewStaticCatalogLoader(levels []domain.LevelCatalogEntry, milestones []domain.Milestone) *StaticCatalogLoader {
	return &StaticCatalogLoader{levels: levels, milestones: milestones}
}

func (l *StaticCatalogLoader) LoadLevels(_ context.Context) ([]domain.LevelCatalogEntry, error) {
	return l.levels, nil
}

func (l *StaticCatalogLoader) LoadMilestones(_ context.Context) ([]domain.Milestone, error) {
	return l.milestones, nil
}

// DefaultLevels is the stock 50-level catalog, titled by difficulty band.
func DefaultLevels() []domain.LevelCatalogEntry {
	levels := make([]domain.LevelCatalogEntry, 0, 50)
	for n := 1; n <= 50; n++ {
		var title string
		switch {
		case n <= 10:
			title = fmt.Sprintf("Beginner Level %d", n)
		case n <= 20:
			title = fmt.Sprintf("Elementary Level %d", n)
		case n <= 30:
			title = fmt.Sprintf("Intermediate Level %d", n)
		case n <= 40:
			title = fmt.Sprintf("Advanced Level %d", n)
		default:
			title = fmt.Sprintf("Expert Level %d", n)
		}
		levels = append(levels, domain.LevelCatalogEntry{Number: n, Title: title})
	}
	return levels
}

// DefaultMilestones is the stock 5-milestone catalog with the fixed
// bonus schedule applied.
func DefaultMilestones() []domain.Milestone {
	return []domain.Milestone{
		{
			ID:            1,
			Title:         "Beginner",
			Description:   "Complete your first quiz",
			UnlockLevel:   1,
			Bonus:         domain.MilestoneBonus(1),
			RewardMessage: "Congratulations on starting your journey!",
			ButtonCTA:     "Claim Reward",
			Link:          "/rewards/beginner",
		},
		{
			ID:            2,
			Title:         "Elementary",
			Description:   "Complete 10 quizzes",
			UnlockLevel:   10,
			Bonus:         domain.MilestoneBonus(2),
			RewardMessage: "You're making great progress!",
			ButtonCTA:     "Claim Reward",
			Link:          "/rewards/elementary",
		},
		{
			ID:            3,
			Title:         "Intermediate",
			Description:   "Complete 25 quizzes",
			UnlockLevel:   25,
			Bonus:         domain.MilestoneBonus(3),
			RewardMessage: "You're becoming a quiz master!",
			ButtonCTA:     "Claim Reward",
			Link:          "/rewards/intermediate",
		},
		{
			ID:            4,
			Title:         "Advanced",
			Description:   "Complete 40 quizzes",
			UnlockLevel:   40,
			Bonus:         domain.MilestoneBonus(4),
			RewardMessage: "You're almost at expert level!",
			ButtonCTA:     "Claim Reward",
			Link:          "/rewards/advanced",
		},
		{
			ID:            5,
			Title:         "Expert",
			Description:   "Complete all 50 quizzes",
			UnlockLevel:   50,
			Bonus:         domain.MilestoneBonus(5),
			RewardMessage: "You've mastered all the quizzes!",
			ButtonCTA:     "Claim Reward",
			Link:          "/rewards/expert",
		},
	}
}
