package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"

	"leaderboardAPI/internal/config"
	"leaderboardAPI/internal/types/leaderboard"
	"leaderboardAPI/middleware"
	"leaderboardAPI/services"
)

const maxBodyBytes = 64 << 10

type LeaderboardHandler struct {
	leaderboardService *services.LeaderboardService
	storeConfigured    bool
}

func NewLeaderboardHandler(leaderboardService *services.LeaderboardService, storeCfg config.Store) *LeaderboardHandler {
	return &LeaderboardHandler{
		leaderboardService: leaderboardService,
		storeConfigured:    storeCfg.Configured(),
	}
}

// Scores serves GET (read the leaderboard) and POST (submit a run) on a
// single route. Missing store credentials short-circuit every method.
func (h *LeaderboardHandler) Scores(w http.ResponseWriter, r *http.Request) {
	if !h.storeConfigured {
		respondWithError(w, http.StatusInternalServerError, "Missing KV environment variables.")
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.GetLeaderboard(w, r)
	case http.MethodPost:
		h.SubmitScore(w, r)
	default:
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed.")
	}
}

func (h *LeaderboardHandler) GetLeaderboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	limit := parseLimit(q.Get("limit"))

	board, err := h.leaderboardService.GetLeaderboard(ctx, limit, q.Get("exclude"), q.Get("name"))
	if err != nil {
		log.Printf("[%s] GetLeaderboard failed: %v", middleware.GetRequestID(ctx), err)
		respondWithError(w, http.StatusInternalServerError, "Server error.")
		return
	}

	respondWithJSON(w, http.StatusOK, board)
}

func (h *LeaderboardHandler) SubmitScore(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid payload.")
		return
	}
	if len(bytes.TrimSpace(body)) == 0 {
		body = []byte("{}")
	}

	var req leaderboard.SubmitRequest
	if err := json.Unmarshal(body, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid payload.")
		return
	}
	if req.Name == "" || !req.TimeValid {
		respondWithError(w, http.StatusBadRequest, "Invalid payload.")
		return
	}

	submission, err := h.leaderboardService.SubmitScore(ctx, req.Name, req.Time)
	if err != nil {
		if errors.Is(err, services.ErrInvalidPayload) {
			respondWithError(w, http.StatusBadRequest, "Invalid payload.")
			return
		}
		log.Printf("[%s] SubmitScore failed for %q: %v", middleware.GetRequestID(ctx), req.Name, err)
		respondWithError(w, http.StatusInternalServerError, "Server error.")
		return
	}

	respondWithJSON(w, http.StatusOK, submission)
}

// parseLimit falls back to the default for anything that is not a
// positive integer.
func parseLimit(v string) int {
	if v == "" {
		return services.DefaultLimit
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return services.DefaultLimit
	}
	return n
}
