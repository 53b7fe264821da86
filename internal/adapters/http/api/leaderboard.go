package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	service "github.com/okian/flaggy/internal/app"
	"github.com/okian/flaggy/internal/domain/model"
)

// LeaderboardDependencies defines the interface for leaderboard operations.
type LeaderboardDependencies interface {
	Leaderboard(ctx context.Context, req service.LeaderboardRequest) ([]model.Ranked, error)
	Subscribe(ctx context.Context, req service.LeaderboardRequest) (<-chan []model.Ranked, func(), error)
	Position(ctx context.Context, req service.LeaderboardRequest, submissionID string) (int, error)
}

// LeaderboardHandler handles leaderboard requests.
type LeaderboardHandler struct {
	deps LeaderboardDependencies
}

// NewLeaderboardHandler creates a new leaderboard handler.
func NewLeaderboardHandler(deps LeaderboardDependencies) *LeaderboardHandler {
	return &LeaderboardHandler{deps: deps}
}

type leaderboardResponse struct {
	Difficulty string  `json:"difficulty"`
	TimeFrame  string  `json:"timeframe"`
	Scope      string  `json:"scope"`
	Entries    []Entry `json:"entries"`
}

type positionResponse struct {
	ID       string `json:"id"`
	Position int    `json:"position"`
}

// leaderboardRequest reads the view selectors shared by every leaderboard
// route: difficulty, timeframe, scope, country and limit.
func leaderboardRequest(r *http.Request) (service.LeaderboardRequest, error) {
	q := r.URL.Query()
	req := service.LeaderboardRequest{
		Difficulty: q.Get("difficulty"),
		TimeFrame:  q.Get("timeframe"),
		Scope:      q.Get("scope"),
		Country:    q.Get("country"),
		ClientIP:   clientIP(r),
	}
	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			return req, fmt.Errorf("%w: limit must be a positive integer", ErrBadRequest)
		}
		req.Limit = n
	}
	return req, nil
}

// HandleGetLeaderboard handles GET /leaderboard requests.
func (h *LeaderboardHandler) HandleGetLeaderboard(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_leaderboard"
	req, err := leaderboardRequest(r)
	if err != nil {
		writeServiceError(w, Wrap(op, err))
		return
	}
	entries, err := h.deps.Leaderboard(r.Context(), req)
	if err != nil {
		writeServiceError(w, Wrap(op, err))
		return
	}
	if entries == nil {
		entries = []model.Ranked{}
	}
	writeJSON(w, http.StatusOK, leaderboardResponse{
		Difficulty: orDefault(req.Difficulty, "beginner"),
		TimeFrame:  orDefault(req.TimeFrame, "all"),
		Scope:      orDefault(req.Scope, service.ScopeGlobal),
		Entries:    entries,
	})
}

// HandleGetPosition handles GET /leaderboard/position/{id} requests.
func (h *LeaderboardHandler) HandleGetPosition(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_position"
	id := r.PathValue("id")
	if id == "" {
		writeServiceError(w, NewKind(op, ErrBadRequest))
		return
	}
	req, err := leaderboardRequest(r)
	if err != nil {
		writeServiceError(w, Wrap(op, err))
		return
	}
	pos, err := h.deps.Position(r.Context(), req, id)
	if err != nil {
		writeServiceError(w, Wrap(op, err))
		return
	}
	if pos == 0 {
		writeError(w, http.StatusNotFound, "not_found", fmt.Errorf("%s: submission %q is not in this view", op, id))
		return
	}
	writeJSON(w, http.StatusOK, positionResponse{ID: id, Position: pos})
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
