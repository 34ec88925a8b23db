package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"quiz-progression-service/internal/app"
	"quiz-progression-service/internal/domain"
)

func newTestServer(t *testing.T) (*httptest.Server, *app.ProgressionService) {
	t.Helper()
	service := newTestService()
	handler := NewHandler(service)
	mux := http.NewServeMux()
	handler.Register(mux)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server, service
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("post %s: %v", url, err)
	}
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var out T
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return out
}

func TestCreateAndGetPlayer(t *testing.T) {
	server, _ := newTestServer(t)

	resp := postJSON(t, server.URL+"/players", map[string]string{"name": "Alice"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	created := decodeBody[domain.Player](t, resp)
	if created.ID == 0 || created.Level != 1 {
		t.Fatalf("unexpected created player: %+v", created)
	}

	getResp, err := http.Get(fmt.Sprintf("%s/players/%d", server.URL, created.ID))
	if err != nil {
		t.Fatalf("get player: %v", err)
	}
	fetched := decodeBody[domain.Player](t, getResp)
	if fetched.Name != "Alice" {
		t.Fatalf("expected Alice, got %+v", fetched)
	}
}

func TestSubmitAttemptEndpoint(t *testing.T) {
	server, service := newTestServer(t)
	player, err := service.CreatePlayer(context.Background(), "Bob")
	if err != nil {
		t.Fatalf("create player: %v", err)
	}

	resp := postJSON(t, server.URL+"/attempts", map[string]int{
		"playerId":      player.ID,
		"level":         1,
		"score":         20,
		"completionPct": 100,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	result := decodeBody[app.SubmitResult](t, resp)
	if result.LevelScore.Stars != 4 {
		t.Fatalf("expected flawless run to earn 4 stars, got %d", result.LevelScore.Stars)
	}
	if !result.UnlockedNext {
		t.Fatalf("expected next level to unlock")
	}
}

func TestValidateAttemptLockedLevel(t *testing.T) {
	server, service := newTestServer(t)
	player, err := service.CreatePlayer(context.Background(), "Carol")
	if err != nil {
		t.Fatalf("create player: %v", err)
	}

	resp := postJSON(t, server.URL+"/attempts/validate", map[string]int{
		"playerId": player.ID,
		"level":    5,
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 for locked level, got %d", resp.StatusCode)
	}
}

func TestGetPlayerNotFound(t *testing.T) {
	server, _ := newTestServer(t)

	resp, err := http.Get(server.URL + "/players/42")
	if err != nil {
		t.Fatalf("get player: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestClaimMilestoneEndpoint(t *testing.T) {
	server, service := newTestServer(t)
	ctx := context.Background()
	player, err := service.CreatePlayer(ctx, "Dave")
	if err != nil {
		t.Fatalf("create player: %v", err)
	}
	for level := 1; level <= 10; level++ {
		if _, err := service.SubmitAttempt(ctx, player.ID, level, 20, 100); err != nil {
			t.Fatalf("submit level %d: %v", level, err)
		}
	}

	resp := postJSON(t, server.URL+"/milestones/claim", map[string]int{
		"playerId":    player.ID,
		"milestoneId": 2,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	result := decodeBody[app.ClaimResult](t, resp)
	if result.BonusPoints != 150 {
		t.Fatalf("expected bonus 150, got %d", result.BonusPoints)
	}

	again := postJSON(t, server.URL+"/milestones/claim", map[string]int{
		"playerId":    player.ID,
		"milestoneId": 2,
	})
	defer again.Body.Close()
	if again.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 on duplicate claim, got %d", again.StatusCode)
	}
}

func TestCatalogEndpoints(t *testing.T) {
	server, _ := newTestServer(t)

	resp, err := http.Get(server.URL + "/levels")
	if err != nil {
		t.Fatalf("get levels: %v", err)
	}
	levels := decodeBody[[]domain.LevelCatalogEntry](t, resp)
	if len(levels) != 50 {
		t.Fatalf("expected 50 levels, got %d", len(levels))
	}

	mResp, err := http.Get(server.URL + "/milestones")
	if err != nil {
		t.Fatalf("get milestones: %v", err)
	}
	milestones := decodeBody[[]domain.MilestoneRange](t, mResp)
	if len(milestones) != 5 {
		t.Fatalf("expected 5 milestones, got %d", len(milestones))
	}
	if milestones[0].Range != [2]int{1, 9} {
		t.Fatalf("unexpected first milestone range: %v", milestones[0].Range)
	}
}

func TestLeaderboardEndpoint(t *testing.T) {
	server, service := newTestServer(t)
	ctx := context.Background()
	for _, name := range []string{"Eve", "Frank"} {
		player, err := service.CreatePlayer(ctx, name)
		if err != nil {
			t.Fatalf("create player: %v", err)
		}
		score := 10
		if name == "Frank" {
			score = 20
		}
		if _, err := service.SubmitAttempt(ctx, player.ID, 1, score, 100); err != nil {
			t.Fatalf("submit: %v", err)
		}
	}

	resp, err := http.Get(server.URL + "/leaderboard?limit=10")
	if err != nil {
		t.Fatalf("get leaderboard: %v", err)
	}
	entries := decodeBody[[]domain.LeaderboardEntry](t, resp)
	if len(entries) != 2 || entries[0].Name != "Frank" {
		t.Fatalf("expected Frank leading, got %+v", entries)
	}
}
