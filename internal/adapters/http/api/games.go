package api

import (
	"context"
	"net/http"
	"time"

	service "github.com/okian/flaggy/internal/app"
	"github.com/okian/flaggy/internal/domain/country"
	"github.com/okian/flaggy/internal/domain/session"
)

// GameDependencies defines the game lifecycle operations.
type GameDependencies interface {
	StartGame(ctx context.Context, player string, settings session.Settings) (service.Game, error)
	Question(ctx context.Context, gameID string) (session.Round, error)
	Next(ctx context.Context, gameID string) (session.Round, error)
	Answer(ctx context.Context, player, gameID, cca3 string) (session.Outcome, error)
	Progress(ctx context.Context, gameID string) (session.Progress, session.Settings, error)
	FinishGame(ctx context.Context, gameID string, opts service.FinishOptions) (service.FinishResult, error)
}

// GamesHandler serves /games routes.
type GamesHandler struct {
	deps GameDependencies
	now  func() time.Time
}

// NewGamesHandler creates a new games handler.
func NewGamesHandler(deps GameDependencies) *GamesHandler {
	return &GamesHandler{deps: deps, now: time.Now}
}

type startRequest struct {
	Difficulty string `json:"difficulty"`
	Region     string `json:"region"`
	Subregion  string `json:"subregion"`
}

type answerRequest struct {
	CCA3 string `json:"cca3"`
}

type finishRequest struct {
	Country      string `json:"country"`
	SubmissionID string `json:"submission_id"`
}

// HandleStart handles POST /games.
func (h *GamesHandler) HandleStart(w http.ResponseWriter, r *http.Request) {
	const op = "api.start_game"
	var req startRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	settings := session.Settings{
		Difficulty: country.Difficulty(req.Difficulty),
		Region:     req.Region,
		Subregion:  req.Subregion,
	}
	g, err := h.deps.StartGame(r.Context(), playerID(r), settings)
	if err != nil {
		writeServiceError(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusCreated, toGame(g, h.now()))
}

// HandleProgress handles GET /games/{id}.
func (h *GamesHandler) HandleProgress(w http.ResponseWriter, r *http.Request) {
	const op = "api.game_progress"
	id := r.PathValue("id")
	p, st, err := h.deps.Progress(r.Context(), id)
	if err != nil {
		writeServiceError(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, toProgress(id, p, st))
}

// HandleQuestion handles GET /games/{id}/question.
func (h *GamesHandler) HandleQuestion(w http.ResponseWriter, r *http.Request) {
	const op = "api.game_question"
	round, err := h.deps.Question(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, toQuestion(round, h.now()))
}

// HandleNext handles POST /games/{id}/next.
func (h *GamesHandler) HandleNext(w http.ResponseWriter, r *http.Request) {
	const op = "api.game_next"
	round, err := h.deps.Next(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, toQuestion(round, h.now()))
}

// HandleAnswer handles POST /games/{id}/answer.
func (h *GamesHandler) HandleAnswer(w http.ResponseWriter, r *http.Request) {
	const op = "api.game_answer"
	var req answerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	if req.CCA3 == "" {
		writeServiceError(w, NewKind(op, ErrBadRequest))
		return
	}
	out, err := h.deps.Answer(r.Context(), playerID(r), r.PathValue("id"), req.CCA3)
	if err != nil {
		writeServiceError(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, toOutcome(out))
}

// HandleFinish handles POST /games/{id}/finish. Signed-in players get their
// result submitted to the leaderboard.
func (h *GamesHandler) HandleFinish(w http.ResponseWriter, r *http.Request) {
	const op = "api.game_finish"
	var req finishRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	res, err := h.deps.FinishGame(r.Context(), r.PathValue("id"), service.FinishOptions{
		Country:      req.Country,
		ClientIP:     clientIP(r),
		SubmissionID: req.SubmissionID,
	})
	if err != nil {
		writeServiceError(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, finishDTO{
		Summary:      res.Summary,
		Submitted:    res.Submitted,
		Duplicate:    res.Duplicate,
		SubmissionID: res.SubmissionID,
	})
}
