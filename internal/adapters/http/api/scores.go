package api

import (
	"context"
	"net/http"

	service "github.com/okian/flaggy/internal/app"
)

// ScoreDependencies defines the score submission operation.
type ScoreDependencies interface {
	SubmitScore(ctx context.Context, in service.ScoreInput) (service.SubmitResult, error)
}

// ScoresHandler handles score submissions.
type ScoresHandler struct {
	deps ScoreDependencies
}

// NewScoresHandler creates a new scores handler.
func NewScoresHandler(deps ScoreDependencies) *ScoresHandler {
	return &ScoresHandler{deps: deps}
}

type submitRequest struct {
	SubmissionID string   `json:"submission_id"`
	Score        *int     `json:"score"`
	Accuracy     *float64 `json:"accuracy"`
	AverageTime  *float64 `json:"averageTime"`
	Difficulty   string   `json:"difficulty"`
	Country      string   `json:"country"`
}

type submitResponse struct {
	Status    string `json:"status"`
	ID        string `json:"id"`
	Duplicate bool   `json:"duplicate"`
}

// HandleSubmit handles POST /scores. The submission is queued, so success
// is reported as 202 before it shows on the leaderboard.
func (h *ScoresHandler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	const op = "api.submit_score"
	var req submitRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	if req.Score == nil || req.Accuracy == nil || req.AverageTime == nil || req.Difficulty == "" {
		writeServiceError(w, NewKind(op, ErrBadRequest))
		return
	}
	res, err := h.deps.SubmitScore(r.Context(), service.ScoreInput{
		SubmissionID: req.SubmissionID,
		Score:        *req.Score,
		Accuracy:     *req.Accuracy,
		AverageTime:  *req.AverageTime,
		Difficulty:   req.Difficulty,
		Country:      req.Country,
		ClientIP:     clientIP(r),
	})
	if err != nil {
		writeServiceError(w, Wrap(op, err))
		return
	}
	status := "accepted"
	if res.Duplicate {
		status = "duplicate"
	}
	writeJSON(w, http.StatusAccepted, submitResponse{Status: status, ID: res.ID, Duplicate: res.Duplicate})
}
