package app_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"quiz-progression-service/internal/app"
	"quiz-progression-service/internal/domain"
	"quiz-progression-service/internal/infra/memory"
)

func TestFirstAttemptUnlocksNextLevel(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(t)
	player := newTestPlayer(t, service)

	result, err := service.SubmitAttempt(ctx, player.ID, 1, 20, 100)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if result.LevelScore.BestScore != 20 || result.LevelScore.Stars != 4 {
		t.Fatalf("expected best 20 with 4 stars, got %+v", result.LevelScore)
	}
	if result.Player.Level != 2 {
		t.Fatalf("expected level pointer 2, got %d", result.Player.Level)
	}
	if !result.UnlockedNext {
		t.Fatalf("expected next level unlocked")
	}
	if result.TotalPoints != 20 {
		t.Fatalf("expected 20 lifetime points, got %d", result.TotalPoints)
	}

	scores, err := service.ListLevelScores(ctx, player.ID)
	if err != nil {
		t.Fatalf("list scores: %v", err)
	}
	if len(scores) != 2 {
		t.Fatalf("expected 2 level records, got %d", len(scores))
	}
	next := scores[1]
	if next.Level != 2 || next.BestScore != 0 || next.Stars != 0 || next.CompletionPct != 0 {
		t.Fatalf("expected zero-valued unlock record, got %+v", next)
	}
}

func TestKeepMaxMergeIsMonotonic(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(t)
	player := newTestPlayer(t, service)

	if _, err := service.SubmitAttempt(ctx, player.ID, 1, 18, 90); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	// A worse retry must not lower any best field.
	result, err := service.SubmitAttempt(ctx, player.ID, 1, 12, 40)
	if err != nil {
		t.Fatalf("second submit: %v", err)
	}
	if result.LevelScore.BestScore != 18 {
		t.Fatalf("best regressed to %d", result.LevelScore.BestScore)
	}
	if result.LevelScore.CompletionPct != 90 {
		t.Fatalf("completion regressed to %d", result.LevelScore.CompletionPct)
	}
	if result.LevelScore.Stars != 3 {
		t.Fatalf("stars regressed to %d", result.LevelScore.Stars)
	}
	if result.LevelScore.LatestScore != 12 {
		t.Fatalf("expected latest 12, got %d", result.LevelScore.LatestScore)
	}
	// Pointer does not regress either.
	if result.Player.Level != 2 {
		t.Fatalf("level pointer regressed to %d", result.Player.Level)
	}
	if result.TotalPoints != 18 {
		t.Fatalf("expected points to stay at best sum 18, got %d", result.TotalPoints)
	}
}

func TestLifetimePointsEqualSumOfBest(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(t)
	player := newTestPlayer(t, service)

	submits := []struct{ level, score, pct int }{
		{1, 20, 100},
		{2, 15, 75},
		{2, 15, 75}, // duplicate submission
		{3, 10, 50},
		{1, 5, 25}, // stale replay
	}
	want := 20 + 15 + 10
	for _, sub := range submits {
		if _, err := service.SubmitAttempt(ctx, player.ID, sub.level, sub.score, sub.pct); err != nil {
			t.Fatalf("submit level %d: %v", sub.level, err)
		}
	}
	got, err := service.GetPlayer(ctx, player.ID)
	if err != nil {
		t.Fatalf("get player: %v", err)
	}
	if got.Points != want {
		t.Fatalf("lifetime points %d, want sum of best %d", got.Points, want)
	}
}

func TestMilestoneFlow(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(t)
	player := newTestPlayer(t, service)

	for level := 1; level <= 9; level++ {
		if _, err := service.SubmitAttempt(ctx, player.ID, level, 20, 100); err != nil {
			t.Fatalf("submit level %d: %v", level, err)
		}
		if milestone, err := service.CheckMilestone(ctx, player.ID, level); err != nil || milestone != nil {
			t.Fatalf("expected no milestone before band cleared, got %+v err=%v", milestone, err)
		}
	}

	result, err := service.SubmitAttempt(ctx, player.ID, 10, 20, 100)
	if err != nil {
		t.Fatalf("submit level 10: %v", err)
	}
	if result.Milestone == nil || result.Milestone.ID != 2 {
		t.Fatalf("expected milestone 2 pending after clearing band 1, got %+v", result.Milestone)
	}

	milestone, err := service.CheckMilestone(ctx, player.ID, 10)
	if err != nil {
		t.Fatalf("check milestone: %v", err)
	}
	if milestone == nil || milestone.ID != 2 || milestone.Bonus != 150 {
		t.Fatalf("expected milestone 2 with bonus 150, got %+v", milestone)
	}

	claim, err := service.ClaimMilestone(ctx, player.ID, 2)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if claim.BonusPoints != 150 {
		t.Fatalf("expected bonus 150, got %d", claim.BonusPoints)
	}
	wantPoints := 10*20 + 150
	if claim.Player.Points != wantPoints {
		t.Fatalf("expected points %d, got %d", wantPoints, claim.Player.Points)
	}
	if claim.Player.Milestone.Band != 2 || claim.Player.Milestone.Status != domain.MilestoneClaimed {
		t.Fatalf("expected claimed(2), got %+v", claim.Player.Milestone)
	}

	// Detection is now idempotent: the guard suppresses a second offer.
	milestone, err = service.CheckMilestone(ctx, player.ID, 10)
	if err != nil {
		t.Fatalf("re-check milestone: %v", err)
	}
	if milestone != nil {
		t.Fatalf("expected no milestone after claim, got %+v", milestone)
	}

	// A direct duplicate grant is rejected without changing points.
	if _, err := service.ClaimMilestone(ctx, player.ID, 2); !errors.Is(err, domain.ErrMilestoneClaimed) {
		t.Fatalf("expected ErrMilestoneClaimed, got %v", err)
	}
	got, _ := service.GetPlayer(ctx, player.ID)
	if got.Points != wantPoints {
		t.Fatalf("duplicate claim changed points to %d", got.Points)
	}

	// The claim landed in the ledger: 10 completed levels, 150 bonus.
	history, err := service.History(ctx, player.ID)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) == 0 || history[0].LevelCompleted != 10 || history[0].PointsGained != 150 {
		t.Fatalf("expected claim ledger row first, got %+v", history)
	}
}

func TestMilestoneRequiresEveryLevelInBand(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(t)
	player := newTestPlayer(t, service)

	// Complete the whole band except level 7.
	for level := 1; level <= 10; level++ {
		pct := 100
		if level == 7 {
			pct = 49
		}
		if _, err := service.SubmitAttempt(ctx, player.ID, level, 10, pct); err != nil {
			t.Fatalf("submit level %d: %v", level, err)
		}
	}

	milestone, err := service.CheckMilestone(ctx, player.ID, 10)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if milestone != nil {
		t.Fatalf("expected no milestone with level 7 missing, got %+v", milestone)
	}
	if _, err := service.ClaimMilestone(ctx, player.ID, 2); !errors.Is(err, domain.ErrMilestoneNotReached) {
		t.Fatalf("expected ErrMilestoneNotReached, got %v", err)
	}
}

func TestSubmitAttemptValidation(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(t)
	player := newTestPlayer(t, service)

	cases := []struct {
		name                       string
		playerID, level, score, pct int
		want                       error
	}{
		{"zero level", player.ID, 0, 10, 50, domain.ErrInvalidInput},
		{"negative score", player.ID, 1, -1, 50, domain.ErrInvalidInput},
		{"completion above 100", player.ID, 1, 10, 101, domain.ErrInvalidInput},
		{"unknown player", 999, 1, 10, 50, domain.ErrPlayerNotFound},
		{"level beyond catalog", player.ID, 51, 10, 50, domain.ErrLevelNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := service.SubmitAttempt(ctx, tc.playerID, tc.level, tc.score, tc.pct)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestPointerNeverRegresses(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(t)
	player := newTestPlayer(t, service)

	for level := 1; level <= 3; level++ {
		if _, err := service.SubmitAttempt(ctx, player.ID, level, 20, 100); err != nil {
			t.Fatalf("submit level %d: %v", level, err)
		}
	}
	got, _ := service.GetPlayer(ctx, player.ID)
	if got.Level != 4 {
		t.Fatalf("expected pointer 4, got %d", got.Level)
	}

	// Replaying level 1 badly cannot pull the pointer back.
	if _, err := service.SubmitAttempt(ctx, player.ID, 1, 2, 10); err != nil {
		t.Fatalf("replay: %v", err)
	}
	got, _ = service.GetPlayer(ctx, player.ID)
	if got.Level != 4 {
		t.Fatalf("pointer regressed to %d", got.Level)
	}

	// A failed attempt on a fresh player leaves the pointer at 1.
	fresh := newTestPlayer(t, service)
	if _, err := service.SubmitAttempt(ctx, fresh.ID, 1, 2, 10); err != nil {
		t.Fatalf("failed attempt: %v", err)
	}
	got, _ = service.GetPlayer(ctx, fresh.ID)
	if got.Level != 1 {
		t.Fatalf("expected pointer to stay 1, got %d", got.Level)
	}
}

func TestValidateAttempt(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(t)
	player := newTestPlayer(t, service)

	if _, err := service.ValidateAttempt(ctx, player.ID, 5); !errors.Is(err, domain.ErrLevelLocked) {
		t.Fatalf("expected ErrLevelLocked, got %v", err)
	}

	if _, err := service.SubmitAttempt(ctx, player.ID, 1, 16, 80); err != nil {
		t.Fatalf("submit: %v", err)
	}
	result, err := service.ValidateAttempt(ctx, player.ID, 1)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if result.PreviousBest != 16 {
		t.Fatalf("expected previous best 16, got %d", result.PreviousBest)
	}
	// Level 2 is now the pointer and has no score yet.
	result, err = service.ValidateAttempt(ctx, player.ID, 2)
	if err != nil {
		t.Fatalf("validate unlocked: %v", err)
	}
	if result.PreviousBest != 0 {
		t.Fatalf("expected previous best 0, got %d", result.PreviousBest)
	}
}

func TestUnlockLevelExplicit(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(t)
	player := newTestPlayer(t, service)

	scores, err := service.UnlockLevel(ctx, player.ID, 3)
	if err != nil {
		t.Fatalf("unlock: %v", err)
	}
	found := false
	for _, score := range scores {
		if score.Level == 3 {
			found = true
			if score.BestScore != 0 || score.Stars != 0 {
				t.Fatalf("unlock granted points: %+v", score)
			}
		}
	}
	if !found {
		t.Fatalf("expected level 3 record, got %+v", scores)
	}
	got, _ := service.GetPlayer(ctx, player.ID)
	if got.Level != 3 {
		t.Fatalf("expected pointer raised to 3, got %d", got.Level)
	}

	if _, err := service.UnlockLevel(ctx, player.ID, 99); !errors.Is(err, domain.ErrLevelNotFound) {
		t.Fatalf("expected ErrLevelNotFound, got %v", err)
	}
}

func TestRecordLoginStreak(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	store := memory.NewPlayerStore()
	catalog := memory.NewCatalogRepository(memory.NewStaticCatalogLoader(memory.DefaultLevels(), memory.DefaultMilestones()), time.Minute)
	service := app.NewProgressionServiceWithClock(store, catalog, nil, nil, clock)

	player, err := service.CreatePlayer(ctx, "Alice")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	player, err = service.RecordLogin(ctx, player.ID)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if player.Streak != 1 {
		t.Fatalf("expected streak 1, got %d", player.Streak)
	}

	// Same-day repeat is a no-op.
	now = now.Add(4 * time.Hour)
	if player, _ = service.RecordLogin(ctx, player.ID); player.Streak != 1 {
		t.Fatalf("same-day login changed streak to %d", player.Streak)
	}

	// Next day extends.
	now = now.AddDate(0, 0, 1)
	if player, _ = service.RecordLogin(ctx, player.ID); player.Streak != 2 {
		t.Fatalf("expected streak 2, got %d", player.Streak)
	}

	// A gap resets.
	now = now.AddDate(0, 0, 3)
	if player, _ = service.RecordLogin(ctx, player.ID); player.Streak != 1 {
		t.Fatalf("expected streak reset to 1, got %d", player.Streak)
	}
}

func TestGetBadgesScoreTier(t *testing.T) {
	ctx := context.Background()
	service, store := newTestService(t)
	player := newTestPlayer(t, service)

	player, err := store.GetPlayer(ctx, player.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	player.Points = 260
	if _, err := store.UpdatePlayer(ctx, player); err != nil {
		t.Fatalf("update: %v", err)
	}

	badges, err := service.GetBadges(ctx, player.ID)
	if err != nil {
		t.Fatalf("badges: %v", err)
	}
	if len(badges) != 5 {
		t.Fatalf("expected 5 badges, got %d", len(badges))
	}
	for _, badge := range badges {
		if badge.Type == domain.BadgeScore && badge.Tier != domain.TierSilver {
			t.Fatalf("expected SILVER score badge for 260 points, got %s", badge.Tier)
		}
	}
}

func TestLeaderboardFromStore(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(t)

	alice := newTestPlayer(t, service)
	bob, err := service.CreatePlayer(ctx, "Bob")
	if err != nil {
		t.Fatalf("create bob: %v", err)
	}

	if _, err := service.SubmitAttempt(ctx, alice.ID, 1, 10, 50); err != nil {
		t.Fatalf("alice submit: %v", err)
	}
	if _, err := service.SubmitAttempt(ctx, bob.ID, 1, 20, 100); err != nil {
		t.Fatalf("bob submit: %v", err)
	}

	entries, err := service.Leaderboard(ctx, 10)
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	if len(entries) != 2 || entries[0].Name != "Bob" || entries[0].Points != 20 {
		t.Fatalf("expected Bob leading with 20, got %+v", entries)
	}
}

func TestSubscribeReceivesUpdates(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService(t)
	player := newTestPlayer(t, service)

	updates, cancel := service.Subscribe(player.ID)
	defer cancel()

	if _, err := service.SubmitAttempt(ctx, player.ID, 1, 20, 100); err != nil {
		t.Fatalf("submit: %v", err)
	}

	select {
	case update := <-updates:
		if update.PlayerID != player.ID || update.Player.Points != 20 {
			t.Fatalf("unexpected update %+v", update)
		}
		if !containsEvent(update.Events, app.EventScoreUpdated) || !containsEvent(update.Events, app.EventLevelCompleted) {
			t.Fatalf("expected score and completion events, got %v", update.Events)
		}
	case <-time.After(time.Second):
		t.Fatalf("no update received")
	}
}

func containsEvent(events []string, want string) bool {
	for _, event := range events {
		if event == want {
			return true
		}
	}
	return false
}

func newTestService(t *testing.T) (*app.ProgressionService, *memory.PlayerStore) {
	t.Helper()
	store := memory.NewPlayerStore()
	catalog := memory.NewCatalogRepository(memory.NewStaticCatalogLoader(memory.DefaultLevels(), memory.DefaultMilestones()), 5*time.Minute)
	return app.NewProgressionService(store, catalog, nil, nil), store
}

func newTestPlayer(t *testing.T, service *app.ProgressionService) domain.Player {
	t.Helper()
	player, err := service.CreatePlayer(context.Background(), "Alice")
	if err != nil {
		t.Fatalf("create player: %v", err)
	}
	return player
}
