// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/okian/flaggy/internal/adapters/auth"
	"github.com/okian/flaggy/internal/adapters/countries"
	"github.com/okian/flaggy/internal/adapters/geo"
	"github.com/okian/flaggy/internal/adapters/mq/queue"
	"github.com/okian/flaggy/internal/adapters/repository"
	service "github.com/okian/flaggy/internal/app"
	"github.com/okian/flaggy/internal/domain/country"
	"github.com/okian/flaggy/internal/domain/model"
	"github.com/okian/flaggy/internal/domain/session"
	"github.com/okian/flaggy/pkg/logger"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to the service implementation.
type Dependencies interface {
	GameDependencies
	ScoreDependencies
	LeaderboardDependencies
	CatalogDependencies
	StatsProvider
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler      *HealthHandler
	statsHandler       *StatsHandler
	gamesHandler       *GamesHandler
	scoresHandler      *ScoresHandler
	leaderboardHandler *LeaderboardHandler
	liveHandler        *LiveHandler
	catalogHandler     *CatalogHandler

	verifier    *auth.Verifier
	proxies     *geo.Proxies
	allowOrigin string
	logger      logger.Logger
}

// Option configures the Server.
type Option func(*Server)

// WithVerifier enables bearer token authentication.
func WithVerifier(v *auth.Verifier) Option {
	return func(s *Server) { s.verifier = v }
}

// WithTrustedProxies lets the listed peers report the client address
// through X-Forwarded-For or X-Real-IP.
func WithTrustedProxies(p *geo.Proxies) Option {
	return func(s *Server) { s.proxies = p }
}

// WithAllowOrigin sets the CORS allowed origin; "*" by default.
func WithAllowOrigin(origin string) Option {
	return func(s *Server) { s.allowOrigin = origin }
}

// WithLogger sets the logger used by handlers.
func WithLogger(l logger.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, opts ...Option) *Server {
	s := &Server{logger: logger.Nop()}
	for _, opt := range opts {
		opt(s)
	}
	s.healthHandler = NewHealthHandler()
	s.statsHandler = NewStatsHandler(deps)
	s.gamesHandler = NewGamesHandler(deps)
	s.scoresHandler = NewScoresHandler(deps)
	s.leaderboardHandler = NewLeaderboardHandler(deps)
	s.liveHandler = NewLiveHandler(deps, s.logger.Named("live"))
	s.catalogHandler = NewCatalogHandler(deps)
	return s
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	route := func(pattern, endpoint string, h http.HandlerFunc) {
		mux.Handle(pattern, s.wrap(MetricsMiddleware(h, endpoint)))
	}

	route("GET /healthz", "healthz", s.healthHandler.HandleHealth)
	route("GET /metrics", "metrics", s.healthHandler.HandleMetrics)
	route("GET /stats", "stats", s.statsHandler.HandleStats)

	route("POST /games", "games_start", s.gamesHandler.HandleStart)
	route("GET /games/{id}", "games_progress", s.gamesHandler.HandleProgress)
	route("GET /games/{id}/question", "games_question", s.gamesHandler.HandleQuestion)
	route("POST /games/{id}/answer", "games_answer", s.gamesHandler.HandleAnswer)
	route("POST /games/{id}/next", "games_next", s.gamesHandler.HandleNext)
	route("POST /games/{id}/finish", "games_finish", s.gamesHandler.HandleFinish)

	route("POST /scores", "scores", s.scoresHandler.HandleSubmit)
	route("GET /leaderboard", "leaderboard", s.leaderboardHandler.HandleGetLeaderboard)
	route("GET /leaderboard/position/{id}", "leaderboard_position", s.leaderboardHandler.HandleGetPosition)
	route("GET /leaderboard/live", "leaderboard_live", s.liveHandler.HandleLive)

	route("GET /countries", "countries", s.catalogHandler.HandleCountries)
	route("GET /regions", "regions", s.catalogHandler.HandleRegions)
	route("GET /geo", "geo", s.catalogHandler.HandleGeo)

	mux.Handle("OPTIONS /", s.wrap(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})))
}

func (s *Server) wrap(h http.Handler) http.Handler {
	h = auth.Middleware(s.verifier, func(w http.ResponseWriter, _ *http.Request, err error) {
		writeError(w, http.StatusUnauthorized, "unauthorized", err)
	})(h)
	h = ClientIPMiddleware(s.proxies)(h)
	h = CORSMiddleware(s.allowOrigin)(h)
	return RecoverMiddleware(s.logger)(h)
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// errorStatus classifies errors from the service and its collaborators.
var errorStatus = []struct {
	err    error
	status int
	code   string
}{
	{ErrBadRequest, http.StatusBadRequest, "bad_request"},
	{country.ErrUnknownDifficulty, http.StatusBadRequest, "bad_request"},
	{repository.ErrInvalidTimeFrame, http.StatusBadRequest, "bad_request"},
	{repository.ErrInvalidLimit, http.StatusBadRequest, "bad_request"},
	{service.ErrInvalidScope, http.StatusBadRequest, "bad_request"},
	{service.ErrInvalidSubmission, http.StatusBadRequest, "bad_request"},
	{session.ErrInvalidOption, http.StatusBadRequest, "invalid_option"},
	{auth.ErrMissingToken, http.StatusUnauthorized, "unauthorized"},
	{auth.ErrInvalidToken, http.StatusUnauthorized, "unauthorized"},
	{service.ErrNotOwner, http.StatusForbidden, "forbidden"},
	{session.ErrNotFound, http.StatusNotFound, "not_found"},
	{session.ErrClosed, http.StatusNotFound, "not_found"},
	{session.ErrAlreadyResolved, http.StatusConflict, "already_resolved"},
	{session.ErrRoundInProgress, http.StatusConflict, "round_in_progress"},
	{session.ErrNoActiveRound, http.StatusConflict, "no_active_round"},
	{service.ErrNoQuestion, http.StatusConflict, "no_active_round"},
	{country.ErrNotEnoughCountries, http.StatusUnprocessableEntity, "not_enough_countries"},
	{ErrBackpressure, http.StatusTooManyRequests, "backpressure"},
	{queue.ErrFull, http.StatusTooManyRequests, "backpressure"},
	{ErrUnsupported, http.StatusNotImplemented, "not_implemented"},
	{service.ErrPositionUnsupported, http.StatusNotImplemented, "not_implemented"},
	{countries.ErrUnavailable, http.StatusBadGateway, "countries_unavailable"},
	{queue.ErrClosed, http.StatusServiceUnavailable, "unavailable"},
	{service.ErrNotStarted, http.StatusServiceUnavailable, "unavailable"},
}

// writeServiceError maps err to a status and code, defaulting to 500.
func writeServiceError(w http.ResponseWriter, err error) {
	for _, e := range errorStatus {
		if errors.Is(err, e.err) {
			writeError(w, e.status, e.code, err)
			return
		}
	}
	writeError(w, http.StatusInternalServerError, "internal_error", err)
}

func decodeJSON(r *http.Request, v any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 64<<10))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}
	return nil
}

// playerID identifies the caller for analytics: the uid when signed in,
// else the client-provided X-Player-ID, else the client address.
func playerID(r *http.Request) string {
	if id, ok := auth.FromContext(r.Context()); ok {
		return id.UID
	}
	if p := strings.TrimSpace(r.Header.Get("X-Player-ID")); p != "" {
		return p
	}
	if ip := clientIP(r); ip != "" {
		return ip
	}
	return "anonymous"
}

// Compile-time check that the service satisfies the handler contracts.
var _ Dependencies = (*service.Service)(nil)

// Entry mirrors the read shape returned by leaderboard queries.
type Entry = model.Ranked
