package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"quiz-progression-service/internal/domain"
	"github.com/redis/go-redis/v9"
)

// Leaderboard projects player standings into a Redis sorted set so the
// ranking read path never scans the primary store:
//
//	ZADD leaderboard:points  {points} {playerID}
//	HSET leaderboard:players {playerID} {json display fields}
type Leaderboard struct {
	client *redis.Client
}

func NewLeaderboard(client *redis.Client) *Leaderboard {
	return &Leaderboard{client: client}
}

const (
	pointsKey  = "leaderboard:points"
	playersKey = "leaderboard:players"
)

type leaderboardFields struct {
	Name   string `json:"name"`
	Level  int    `json:"level"`
	Streak int    `json:"streak"`
}

// Record upserts one player's standing. Last write wins; points only
// ever grow, so replays are harmless.
func (l *Leaderboard) Record(ctx context.Context, player domain.Player) error {
	fields, err := json.Marshal(leaderboardFields{
		Name:   player.Name,
		Level:  player.Level,
		Streak: player.Streak,
	})
	if err != nil {
		return err
	}
	member := strconv.Itoa(player.ID)
	pipe := l.client.Pipeline()
	pipe.ZAdd(ctx, pointsKey, redis.Z{Score: float64(player.Points), Member: member})
	pipe.HSet(ctx, playersKey, member, fields)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("record standing: %w", err)
	}
	return nil
}

// Top returns the highest-ranked players, best first.
func (l *Leaderboard) Top(ctx context.Context, limit int) ([]domain.LeaderboardEntry, error) {
	if limit <= 0 {
		limit = 10
	}
	ranked, err := l.client.ZRevRangeWithScores(ctx, pointsKey, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("read standings: %w", err)
	}
	if len(ranked) == 0 {
		return nil, nil
	}

	members := make([]string, 0, len(ranked))
	for _, z := range ranked {
		members = append(members, z.Member.(string))
	}
	rawFields, err := l.client.HMGet(ctx, playersKey, members...).Result()
	if err != nil {
		return nil, fmt.Errorf("read display fields: %w", err)
	}

	entries := make([]domain.LeaderboardEntry, 0, len(ranked))
	for i, z := range ranked {
		id, err := strconv.Atoi(members[i])
		if err != nil {
			continue
		}
		entry := domain.LeaderboardEntry{
			PlayerID: id,
			Points:   int(z.Score),
		}
		if raw, ok := rawFields[i].(string); ok {
			var fields leaderboardFields
			if json.Unmarshal([]byte(raw), &fields) == nil {
				entry.Name = fields.Name
				entry.Level = fields.Level
				entry.Streak = fields.Streak
			}
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
