package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"quiz-progression-service/internal/domain"
)

// PlayerStore is an in-memory implementation of app.PlayerStore,
// useful for tests and demo runs without Postgres.
type PlayerStore struct {
	mu      sync.RWMutex
	nextID  int
	players map[int]domain.Player
	scores  map[int]map[int]domain.LevelScore
	history map[int][]domain.HistoryEntry
	clock   func() time.Time
}

func NewPlayerStore() *PlayerStore {
	return NewPlayerStoreWithClock(time.Now)
}

// NewPlayerStoreWithClock allows deterministic history timestamps in tests.
func NewPlayerStoreWithClock(now func() time.Time) *PlayerStore {
	return &PlayerStore{
		nextID:  1,
		players: make(map[int]domain.Player),
		scores:  make(map[int]map[int]domain.LevelScore),
		history: make(map[int][]domain.HistoryEntry),
		clock:   now,
	}
}

func (s *PlayerStore) CreatePlayer(_ context.Context, name string) (domain.Player, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	player := domain.Player{
		ID:        s.nextID,
		Name:      name,
		Level:     1,
		Milestone: domain.NewMilestoneProgress(),
	}
	s.nextID++
	s.players[player.ID] = player
	return player, nil
}

func (s *PlayerStore) GetPlayer(_ context.Context, id int) (domain.Player, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	player, ok := s.players[id]
	if !ok {
		return domain.Player{}, domain.ErrPlayerNotFound
	}
	return player, nil
}

func (s *PlayerStore) UpdatePlayer(_ context.Context, player domain.Player) (domain.Player, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.players[player.ID]; !ok {
		return domain.Player{}, domain.ErrPlayerNotFound
	}
	s.players[player.ID] = player
	return player, nil
}

func (s *PlayerStore) GetLevelScore(_ context.Context, playerID, level int) (domain.LevelScore, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	score, ok := s.scores[playerID][level]
	return score, ok, nil
}

func (s *PlayerStore) UpsertLevelScore(_ context.Context, score domain.LevelScore) (domain.LevelScore, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.scores[score.PlayerID] == nil {
		s.scores[score.PlayerID] = make(map[int]domain.LevelScore)
	}
	s.scores[score.PlayerID][score.Level] = score
	return score, nil
}

func (s *PlayerStore) ListLevelScores(_ context.Context, playerID int) ([]domain.LevelScore, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	scores := make([]domain.LevelScore, 0, len(s.scores[playerID]))
	for _, score := range s.scores[playerID] {
		scores = append(scores, score)
	}
	sort.Slice(scores, func(i, j int) bool { return scores[i].Level < scores[j].Level })
	return scores, nil
}

func (s *PlayerStore) AppendHistory(_ context.Context, playerID, levelCompleted, pointsGained int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry := domain.HistoryEntry{
		ID:             len(s.history[playerID]) + 1,
		PlayerID:       playerID,
		LevelCompleted: levelCompleted,
		PointsGained:   pointsGained,
		RecordedAt:     s.clock(),
	}
	s.history[playerID] = append(s.history[playerID], entry)
	return nil
}

func (s *PlayerStore) ListHistory(_ context.Context, playerID int) ([]domain.HistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries := make([]domain.HistoryEntry, len(s.history[playerID]))
	copy(entries, s.history[playerID])
	// newest first
	sort.Slice(entries, func(i, j int) bool { return entries[i].ID > entries[j].ID })
	return entries, nil
}

func (s *PlayerStore) ListPlayers(_ context.Context) ([]domain.Player, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	players := make([]domain.Player, 0, len(s.players))
	for _, player := range s.players {
		players = append(players, player)
	}
	sort.Slice(players, func(i, j int) bool { return players[i].ID < players[j].ID })
	return players, nil
}
