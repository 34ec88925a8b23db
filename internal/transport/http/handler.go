package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"quiz-progression-service/internal/app"
	"quiz-progression-service/internal/domain"
)

// Handler exposes the progression engine over JSON endpoints.
type Handler struct {
	service *app.ProgressionService
}

func NewHandler(service *app.ProgressionService) *Handler {
	return &Handler{service: service}
}

// Register attaches all routes to the mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /players", h.createPlayer)
	mux.HandleFunc("GET /players/{id}", h.getPlayer)
	mux.HandleFunc("POST /attempts", h.submitAttempt)
	mux.HandleFunc("POST /attempts/validate", h.validateAttempt)
	mux.HandleFunc("GET /players/{id}/milestone", h.checkMilestone)
	mux.HandleFunc("POST /milestones/claim", h.claimMilestone)
	mux.HandleFunc("GET /players/{id}/badges", h.getBadges)
	mux.HandleFunc("GET /players/{id}/scores", h.listLevelScores)
	mux.HandleFunc("GET /players/{id}/history", h.history)
	mux.HandleFunc("POST /players/{id}/login", h.recordLogin)
	mux.HandleFunc("POST /players/{id}/unlock", h.unlockLevel)
	mux.HandleFunc("GET /levels", h.listLevels)
	mux.HandleFunc("GET /milestones", h.listMilestones)
	mux.HandleFunc("GET /leaderboard", h.leaderboard)
}

type createPlayerRequest struct {
	Name string `json:"name"`
}

type submitAttemptRequest struct {
	PlayerID      int `json:"playerId"`
	Level         int `json:"level"`
	Score         int `json:"score"`
	CompletionPct int `json:"completionPct"`
}

type validateAttemptRequest struct {
	PlayerID int `json:"playerId"`
	Level    int `json:"level"`
}

type claimMilestoneRequest struct {
	PlayerID    int `json:"playerId"`
	MilestoneID int `json:"milestoneId"`
}

type unlockLevelRequest struct {
	Level int `json:"level"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *Handler) createPlayer(w http.ResponseWriter, r *http.Request) {
	var req createPlayerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	player, err := h.service.CreatePlayer(r.Context(), req.Name)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, player)
}

func (h *Handler) getPlayer(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	player, err := h.service.GetPlayer(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, player)
}

func (h *Handler) submitAttempt(w http.ResponseWriter, r *http.Request) {
	var req submitAttemptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	result, err := h.service.SubmitAttempt(r.Context(), req.PlayerID, req.Level, req.Score, req.CompletionPct)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) validateAttempt(w http.ResponseWriter, r *http.Request) {
	var req validateAttemptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	result, err := h.service.ValidateAttempt(r.Context(), req.PlayerID, req.Level)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) checkMilestone(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	level, err := queryInt(r, "level")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid level")
		return
	}
	milestone, err := h.service.CheckMilestone(r.Context(), id, level)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if milestone == nil {
		writeJSON(w, http.StatusOK, map[string]any{"milestone": nil})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"milestone": milestone})
}

func (h *Handler) claimMilestone(w http.ResponseWriter, r *http.Request) {
	var req claimMilestoneRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	result, err := h.service.ClaimMilestone(r.Context(), req.PlayerID, req.MilestoneID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) getBadges(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	badges, err := h.service.GetBadges(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, badges)
}

func (h *Handler) listLevelScores(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	scores, err := h.service.ListLevelScores(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, scores)
}

func (h *Handler) history(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	entries, err := h.service.History(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *Handler) recordLogin(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	player, err := h.service.RecordLogin(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, player)
}

func (h *Handler) unlockLevel(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req unlockLevelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	scores, err := h.service.UnlockLevel(r.Context(), id, req.Level)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, scores)
}

func (h *Handler) listLevels(w http.ResponseWriter, r *http.Request) {
	levels, err := h.service.Levels(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, levels)
}

func (h *Handler) listMilestones(w http.ResponseWriter, r *http.Request) {
	milestones, err := h.service.Milestones(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, milestones)
}

func (h *Handler) leaderboard(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = parsed
	}
	entries, err := h.service.Leaderboard(r.Context(), limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	id, err := strconv.Atoi(r.PathValue(name))
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid player id")
		return 0, false
	}
	return id, true
}

func queryInt(r *http.Request, name string) (int, error) {
	return strconv.Atoi(r.URL.Query().Get(name))
}

func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrPlayerNotFound),
		errors.Is(err, domain.ErrLevelNotFound),
		errors.Is(err, domain.ErrMilestoneNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrLevelLocked),
		errors.Is(err, domain.ErrMilestoneNotReached),
		errors.Is(err, domain.ErrMilestoneClaimed):
		writeError(w, http.StatusConflict, err.Error())
	default:
		log.Printf("internal error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("write response: %v", err)
	}
}
