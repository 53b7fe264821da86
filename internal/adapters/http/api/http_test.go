package api_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/flaggy/internal/adapters/auth"
	"github.com/okian/flaggy/internal/adapters/geo"
	"github.com/okian/flaggy/internal/adapters/http/api"
	"github.com/okian/flaggy/internal/adapters/mq/queue"
	service "github.com/okian/flaggy/internal/app"
	"github.com/okian/flaggy/internal/domain/country"
	"github.com/okian/flaggy/internal/domain/model"
	"github.com/okian/flaggy/internal/domain/question"
	"github.com/okian/flaggy/internal/domain/session"
	"github.com/okian/flaggy/pkg/logger"
)

const secret = "test-secret"

func flagOf(code string) country.Country {
	return country.Country{
		CCA3:   code,
		Name:   country.Name{Common: "Name " + code},
		Flags:  country.Flags{PNG: "https://flags.test/" + code + ".png", Alt: "The flag of Name " + code},
		Region: "Europe",
	}
}

type mockDeps struct {
	mu sync.Mutex

	startErr    error
	answerErr   error
	submitErr   error
	positionErr error
	position    int
	resolved    bool
	board       []model.Ranked
	updates     chan []model.Ranked

	lastPlayer string
	lastScore  service.ScoreInput
	lastReq    service.LeaderboardRequest
	lastFinish service.FinishOptions
	submitUID  string
}

func (m *mockDeps) round() session.Round {
	now := time.Now()
	r := session.Round{
		Number:    1,
		Question:  question.Question{Correct: flagOf("FRA"), Options: []country.Country{flagOf("DEU"), flagOf("FRA"), flagOf("ITA")}},
		StartedAt: now,
		Deadline:  now.Add(15 * time.Second),
	}
	if m.resolved {
		r.Outcome = &session.Outcome{Round: 1, TimedOut: true, Answer: flagOf("FRA")}
	}
	return r
}

func (m *mockDeps) StartGame(_ context.Context, player string, st session.Settings) (service.Game, error) {
	m.mu.Lock()
	m.lastPlayer = player
	m.mu.Unlock()
	if m.startErr != nil {
		return service.Game{}, m.startErr
	}
	return service.Game{ID: "g1", Settings: st, PoolSize: 3, TimeLimit: 15 * time.Second, Round: m.round()}, nil
}

func (m *mockDeps) Question(_ context.Context, id string) (session.Round, error) {
	if id != "g1" {
		return session.Round{}, fmt.Errorf("game %q: %w", id, session.ErrNotFound)
	}
	return m.round(), nil
}

func (m *mockDeps) Next(_ context.Context, _ string) (session.Round, error) {
	return session.Round{}, session.ErrRoundInProgress
}

func (m *mockDeps) Answer(_ context.Context, _, _, cca3 string) (session.Outcome, error) {
	if m.answerErr != nil {
		return session.Outcome{}, m.answerErr
	}
	return session.Outcome{Round: 1, Correct: cca3 == "FRA", Selected: cca3, Answer: flagOf("FRA"), Elapsed: 2500 * time.Millisecond, Score: 1, Answered: 1}, nil
}

func (m *mockDeps) Progress(_ context.Context, _ string) (session.Progress, session.Settings, error) {
	return session.Progress{Seen: 1, PoolSize: 3, Score: 1, Answered: 1, Accuracy: 100, TimeLimit: 15 * time.Second, Remaining: 4 * time.Second},
		session.Settings{Difficulty: country.Beginner, Region: "all"}, nil
}

func (m *mockDeps) FinishGame(_ context.Context, _ string, opts service.FinishOptions) (service.FinishResult, error) {
	m.mu.Lock()
	m.lastFinish = opts
	m.mu.Unlock()
	return service.FinishResult{
		Summary:      session.Summary{Difficulty: country.Beginner, Score: 3, Total: 3, Accuracy: 100, Passed: true, NextLevel: country.Medium},
		Submitted:    true,
		SubmissionID: opts.SubmissionID,
	}, nil
}

func (m *mockDeps) SubmitScore(ctx context.Context, in service.ScoreInput) (service.SubmitResult, error) {
	id, err := auth.RequireIdentity(ctx)
	if err != nil {
		return service.SubmitResult{}, err
	}
	m.mu.Lock()
	m.lastScore = in
	m.submitUID = id.UID
	m.mu.Unlock()
	if m.submitErr != nil {
		return service.SubmitResult{}, m.submitErr
	}
	return service.SubmitResult{ID: in.SubmissionID, Duplicate: in.SubmissionID == "seen"}, nil
}

func (m *mockDeps) Leaderboard(_ context.Context, req service.LeaderboardRequest) ([]model.Ranked, error) {
	m.mu.Lock()
	m.lastReq = req
	m.mu.Unlock()
	if req.Scope != "" && req.Scope != service.ScopeGlobal && req.Scope != service.ScopeCountry {
		return nil, service.ErrInvalidScope
	}
	return m.board, nil
}

func (m *mockDeps) Subscribe(ctx context.Context, _ service.LeaderboardRequest) (<-chan []model.Ranked, func(), error) {
	out := make(chan []model.Ranked)
	stop := make(chan struct{})
	var once sync.Once
	cancel := func() { once.Do(func() { close(stop) }) }
	go func() {
		defer close(out)
		for {
			select {
			case snap := <-m.updates:
				select {
				case out <- snap:
				case <-stop:
					return
				case <-ctx.Done():
					return
				}
			case <-stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, cancel, nil
}

func (m *mockDeps) Position(_ context.Context, _ service.LeaderboardRequest, id string) (int, error) {
	if m.positionErr != nil {
		return 0, m.positionErr
	}
	if id == "e1" {
		return m.position, nil
	}
	return 0, nil
}

func (m *mockDeps) Countries(_ context.Context, st session.Settings) ([]country.Country, error) {
	if _, err := country.ParseDifficulty(string(st.Difficulty)); st.Difficulty != "" && err != nil {
		return nil, err
	}
	return []country.Country{flagOf("FRA"), flagOf("DEU")}, nil
}

func (m *mockDeps) Regions() []country.Region {
	return []country.Region{{ID: "all", Label: "All regions"}, {ID: "Europe", Label: "Europe"}}
}

func (m *mockDeps) DetectCountry(_ context.Context, ip string) string {
	if ip == "203.0.113.7" {
		return "GB"
	}
	return "NG"
}

func (m *mockDeps) GetStats() map[string]any {
	return map[string]any{"started": true, "activeSessions": 2}
}

func newServer(t *testing.T, deps *mockDeps) *httptest.Server {
	t.Helper()
	v, err := auth.NewVerifier(secret)
	if err != nil {
		t.Fatalf("verifier: %v", err)
	}
	proxies, err := geo.ParseProxies("127.0.0.0/8, ::1, 10.0.0.0/8")
	if err != nil {
		t.Fatalf("proxies: %v", err)
	}
	mux := http.NewServeMux()
	api.NewServer(deps, api.WithVerifier(v), api.WithTrustedProxies(proxies)).Register(context.Background(), mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func token(t *testing.T, uid string) string {
	t.Helper()
	iss, err := auth.NewIssuer(secret, time.Hour)
	if err != nil {
		t.Fatalf("issuer: %v", err)
	}
	tok, err := iss.Issue(auth.Identity{UID: uid, DisplayName: "Ada"})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	return tok
}

type call struct {
	method, path, body, token string
	header                    map[string]string
}

func do(t *testing.T, srv *httptest.Server, c call) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(c.method, srv.URL+c.path, strings.NewReader(c.body))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if c.body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	for k, v := range c.header {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	defer resp.Body.Close()
	var out map[string]any
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		var raw any
		_ = json.NewDecoder(resp.Body).Decode(&raw)
		if m, ok := raw.(map[string]any); ok {
			out = m
		} else {
			out = map[string]any{"_": raw}
		}
	}
	return resp, out
}

func TestGames(t *testing.T) {
	Convey("Given the API over a mock game service", t, func() {
		deps := &mockDeps{}
		srv := newServer(t, deps)

		Convey("When a game is started", func() {
			resp, body := do(t, srv, call{method: "POST", path: "/games", body: `{"difficulty":"beginner","region":"Europe"}`,
				header: map[string]string{"X-Player-ID": "p-42"}})

			Convey("Then the first question is returned without its answer", func() {
				So(resp.StatusCode, ShouldEqual, http.StatusCreated)
				So(body["id"], ShouldEqual, "g1")
				So(body["timeLimitMs"], ShouldEqual, 15000.0)
				q := body["question"].(map[string]any)
				So(q["options"], ShouldHaveLength, 3)
				So(q, ShouldNotContainKey, "correctCountry")
				So(q["flag"].(map[string]any)["png"], ShouldEqual, "https://flags.test/FRA.png")
				So(q["flag"], ShouldNotContainKey, "alt")
				So(q["remainingMs"], ShouldBeGreaterThan, 0.0)
				So(deps.lastPlayer, ShouldEqual, "p-42")
			})
		})

		Convey("When the body has unknown fields", func() {
			resp, body := do(t, srv, call{method: "POST", path: "/games", body: `{"level":"hard"}`})
			So(resp.StatusCode, ShouldEqual, http.StatusBadRequest)
			So(body["code"], ShouldEqual, "bad_request")
		})

		Convey("When the service rejects the selection", func() {
			deps.startErr = fmt.Errorf("start: %w", country.ErrNotEnoughCountries)
			resp, body := do(t, srv, call{method: "POST", path: "/games", body: `{"region":"Antarctic"}`})
			So(resp.StatusCode, ShouldEqual, http.StatusUnprocessableEntity)
			So(body["code"], ShouldEqual, "not_enough_countries")
		})

		Convey("When an unknown difficulty is requested", func() {
			deps.startErr = country.ErrUnknownDifficulty
			resp, _ := do(t, srv, call{method: "POST", path: "/games", body: `{"difficulty":"legendary"}`})
			So(resp.StatusCode, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When the current question is fetched", func() {
			resp, body := do(t, srv, call{method: "GET", path: "/games/g1/question"})
			So(resp.StatusCode, ShouldEqual, http.StatusOK)
			So(body["round"], ShouldEqual, 1.0)
			So(body["resolved"], ShouldBeFalse)

			So(body["flag"], ShouldNotContainKey, "alt")

			resp, body = do(t, srv, call{method: "GET", path: "/games/nope/question"})
			So(resp.StatusCode, ShouldEqual, http.StatusNotFound)
			So(body["code"], ShouldEqual, "not_found")
		})

		Convey("When a resolved question is fetched", func() {
			deps.resolved = true
			_, body := do(t, srv, call{method: "GET", path: "/games/g1/question"})

			Convey("Then the flag description is revealed with the outcome", func() {
				So(body["resolved"], ShouldBeTrue)
				So(body["flag"].(map[string]any)["alt"], ShouldEqual, "The flag of Name FRA")
				So(body["outcome"].(map[string]any)["timedOut"], ShouldBeTrue)
			})
		})

		Convey("When another player answers a signed-in game", func() {
			deps.answerErr = fmt.Errorf("answer: %w", service.ErrNotOwner)
			resp, body := do(t, srv, call{method: "POST", path: "/games/g1/answer", body: `{"cca3":"FRA"}`})
			So(resp.StatusCode, ShouldEqual, http.StatusForbidden)
			So(body["code"], ShouldEqual, "forbidden")
		})

		Convey("When an answer is posted", func() {
			resp, body := do(t, srv, call{method: "POST", path: "/games/g1/answer", body: `{"cca3":"FRA"}`})

			Convey("Then the outcome reveals the answer", func() {
				So(resp.StatusCode, ShouldEqual, http.StatusOK)
				So(body["correct"], ShouldBeTrue)
				So(body["elapsedMs"], ShouldEqual, 2500.0)
				So(body["answer"].(map[string]any)["cca3"], ShouldEqual, "FRA")
			})
		})

		Convey("When an answer is missing its code", func() {
			resp, _ := do(t, srv, call{method: "POST", path: "/games/g1/answer", body: `{}`})
			So(resp.StatusCode, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When the round was already resolved by the timer", func() {
			deps.answerErr = session.ErrAlreadyResolved
			resp, body := do(t, srv, call{method: "POST", path: "/games/g1/answer", body: `{"cca3":"FRA"}`})
			So(resp.StatusCode, ShouldEqual, http.StatusConflict)
			So(body["code"], ShouldEqual, "already_resolved")
		})

		Convey("When the next question is requested mid-round", func() {
			resp, body := do(t, srv, call{method: "POST", path: "/games/g1/next"})
			So(resp.StatusCode, ShouldEqual, http.StatusConflict)
			So(body["code"], ShouldEqual, "round_in_progress")
		})

		Convey("When progress is fetched", func() {
			resp, body := do(t, srv, call{method: "GET", path: "/games/g1"})
			So(resp.StatusCode, ShouldEqual, http.StatusOK)
			So(body["seen"], ShouldEqual, 1.0)
			So(body["remainingMs"], ShouldEqual, 4000.0)
			So(body["settings"].(map[string]any)["difficulty"], ShouldEqual, "beginner")
		})

		Convey("When the game is finished", func() {
			resp, body := do(t, srv, call{method: "POST", path: "/games/g1/finish", body: `{"submission_id":"sub-1","country":"GB"}`,
				header: map[string]string{"X-Forwarded-For": "203.0.113.7"}})

			Convey("Then the summary is returned and the caller context forwarded", func() {
				So(resp.StatusCode, ShouldEqual, http.StatusOK)
				So(body["submitted"], ShouldBeTrue)
				So(body["submissionId"], ShouldEqual, "sub-1")
				So(body["summary"].(map[string]any)["nextLevel"], ShouldEqual, "medium")
				So(deps.lastFinish.ClientIP, ShouldEqual, "203.0.113.7")
				So(deps.lastFinish.Country, ShouldEqual, "GB")
			})
		})
	})
}

func TestScores(t *testing.T) {
	Convey("Given the API with authentication enabled", t, func() {
		deps := &mockDeps{}
		srv := newServer(t, deps)
		payload := `{"submission_id":"s1","score":7,"accuracy":87.5,"averageTime":3.2,"difficulty":"hard"}`

		Convey("When an anonymous caller submits a score", func() {
			resp, body := do(t, srv, call{method: "POST", path: "/scores", body: payload})
			So(resp.StatusCode, ShouldEqual, http.StatusUnauthorized)
			So(body["code"], ShouldEqual, "unauthorized")
		})

		Convey("When the token is forged", func() {
			resp, _ := do(t, srv, call{method: "POST", path: "/scores", body: payload, token: "not.a.jwt"})
			So(resp.StatusCode, ShouldEqual, http.StatusUnauthorized)
		})

		Convey("When a signed-in player submits", func() {
			resp, body := do(t, srv, call{method: "POST", path: "/scores", body: payload, token: token(t, "uid-1")})

			Convey("Then it is accepted for processing", func() {
				So(resp.StatusCode, ShouldEqual, http.StatusAccepted)
				So(body["status"], ShouldEqual, "accepted")
				So(body["id"], ShouldEqual, "s1")
				So(deps.submitUID, ShouldEqual, "uid-1")
				So(deps.lastScore.Score, ShouldEqual, 7)
				So(deps.lastScore.Difficulty, ShouldEqual, "hard")
			})
		})

		Convey("When the same submission is retried", func() {
			resp, body := do(t, srv, call{method: "POST", path: "/scores", token: token(t, "uid-1"),
				body: `{"submission_id":"seen","score":1,"accuracy":10,"averageTime":1,"difficulty":"hard"}`})
			So(resp.StatusCode, ShouldEqual, http.StatusAccepted)
			So(body["status"], ShouldEqual, "duplicate")
			So(body["duplicate"], ShouldBeTrue)
		})

		Convey("When fields are missing", func() {
			resp, _ := do(t, srv, call{method: "POST", path: "/scores", token: token(t, "uid-1"), body: `{"score":1}`})
			So(resp.StatusCode, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When the queue is full", func() {
			deps.submitErr = fmt.Errorf("enqueue submission: %w", queue.ErrFull)
			resp, body := do(t, srv, call{method: "POST", path: "/scores", body: payload, token: token(t, "uid-1")})
			So(resp.StatusCode, ShouldEqual, http.StatusTooManyRequests)
			So(body["code"], ShouldEqual, "backpressure")
		})

		Convey("When the service is not running", func() {
			deps.submitErr = service.ErrNotStarted
			resp, _ := do(t, srv, call{method: "POST", path: "/scores", body: payload, token: token(t, "uid-1")})
			So(resp.StatusCode, ShouldEqual, http.StatusServiceUnavailable)
		})
	})
}

func TestLeaderboard(t *testing.T) {
	Convey("Given a leaderboard with two players", t, func() {
		deps := &mockDeps{position: 3, board: []model.Ranked{
			{Rank: 1, Entry: model.Entry{ID: "e2", UID: "bob", DisplayName: "Bob", Score: 12, Difficulty: "beginner"}},
			{Rank: 2, Entry: model.Entry{ID: "e1", UID: "ada", DisplayName: "Ada", Score: 9, Difficulty: "beginner"}},
		}}
		srv := newServer(t, deps)

		Convey("When it is read with filters", func() {
			resp, body := do(t, srv, call{method: "GET", path: "/leaderboard?difficulty=beginner&timeframe=daily&scope=country&country=NG&limit=5"})

			Convey("Then entries come back ranked and the view is echoed", func() {
				So(resp.StatusCode, ShouldEqual, http.StatusOK)
				So(body["entries"], ShouldHaveLength, 2)
				So(body["timeframe"], ShouldEqual, "daily")
				So(body["scope"], ShouldEqual, "country")
				first := body["entries"].([]any)[0].(map[string]any)
				So(first["rank"], ShouldEqual, 1.0)
				So(deps.lastReq.Limit, ShouldEqual, 5)
				So(deps.lastReq.Country, ShouldEqual, "NG")
			})
		})

		Convey("When the limit is not a positive integer", func() {
			for _, l := range []string{"0", "-2", "ten"} {
				resp, _ := do(t, srv, call{method: "GET", path: "/leaderboard?limit=" + l})
				So(resp.StatusCode, ShouldEqual, http.StatusBadRequest)
			}
		})

		Convey("When the scope is unknown", func() {
			resp, _ := do(t, srv, call{method: "GET", path: "/leaderboard?scope=galaxy"})
			So(resp.StatusCode, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When an entry's position is requested", func() {
			resp, body := do(t, srv, call{method: "GET", path: "/leaderboard/position/e1"})
			So(resp.StatusCode, ShouldEqual, http.StatusOK)
			So(body["position"], ShouldEqual, 3.0)

			resp, _ = do(t, srv, call{method: "GET", path: "/leaderboard/position/missing"})
			So(resp.StatusCode, ShouldEqual, http.StatusNotFound)
		})

		Convey("When the store cannot rank entries", func() {
			deps.positionErr = service.ErrPositionUnsupported
			resp, _ := do(t, srv, call{method: "GET", path: "/leaderboard/position/e1"})
			So(resp.StatusCode, ShouldEqual, http.StatusNotImplemented)
		})
	})
}

func TestLive(t *testing.T) {
	Convey("Given a live leaderboard subscription", t, func() {
		deps := &mockDeps{updates: make(chan []model.Ranked)}
		srv := newServer(t, deps)

		conn, resp, err := websocket.DefaultDialer.Dial("ws"+srv.URL[len("http"):]+"/leaderboard/live?difficulty=beginner", nil)
		So(err, ShouldBeNil)
		So(resp.StatusCode, ShouldEqual, http.StatusSwitchingProtocols)
		defer conn.Close()

		Convey("When the board changes", func() {
			deps.updates <- []model.Ranked{{Rank: 1, Entry: model.Entry{ID: "e9", UID: "cyd", Score: 4}}}

			Convey("Then the client receives the snapshot", func() {
				_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
				var msg struct {
					Type    string         `json:"type"`
					Payload []model.Ranked `json:"payload"`
				}
				So(conn.ReadJSON(&msg), ShouldBeNil)
				So(msg.Type, ShouldEqual, "leaderboard")
				So(msg.Payload, ShouldHaveLength, 1)
				So(msg.Payload[0].ID, ShouldEqual, "e9")
			})
		})
	})

	Convey("Given a live request with a bad limit", t, func() {
		srv := newServer(t, &mockDeps{})
		_, resp, err := websocket.DefaultDialer.Dial("ws"+srv.URL[len("http"):]+"/leaderboard/live?limit=nope", nil)

		Convey("Then the upgrade is refused", func() {
			So(err, ShouldNotBeNil)
			So(resp.StatusCode, ShouldEqual, http.StatusBadRequest)
		})
	})
}

func TestCatalogAndOps(t *testing.T) {
	Convey("Given the API", t, func() {
		srv := newServer(t, &mockDeps{})

		Convey("Then countries are listed in the public shape", func() {
			resp, body := do(t, srv, call{method: "GET", path: "/countries?difficulty=beginner"})
			So(resp.StatusCode, ShouldEqual, http.StatusOK)
			list := body["_"].([]any)
			So(list, ShouldHaveLength, 2)
			So(list[0].(map[string]any)["name"], ShouldEqual, "Name FRA")
		})

		Convey("Then a bad difficulty is rejected", func() {
			resp, _ := do(t, srv, call{method: "GET", path: "/countries?difficulty=impossible"})
			So(resp.StatusCode, ShouldEqual, http.StatusBadRequest)
		})

		Convey("Then regions are listed", func() {
			resp, body := do(t, srv, call{method: "GET", path: "/regions"})
			So(resp.StatusCode, ShouldEqual, http.StatusOK)
			So(body["_"], ShouldHaveLength, 2)
		})

		Convey("Then the caller's country is detected", func() {
			_, body := do(t, srv, call{method: "GET", path: "/geo", header: map[string]string{"X-Forwarded-For": "203.0.113.7, 10.0.0.1"}})
			So(body["country"], ShouldEqual, "GB")
		})

		Convey("Then health, stats and metrics respond", func() {
			resp, body := do(t, srv, call{method: "GET", path: "/healthz"})
			So(resp.StatusCode, ShouldEqual, http.StatusOK)
			So(body["status"], ShouldEqual, "ok")

			resp, body = do(t, srv, call{method: "GET", path: "/stats"})
			So(resp.StatusCode, ShouldEqual, http.StatusOK)
			So(body["started"], ShouldBeTrue)

			resp, _ = do(t, srv, call{method: "GET", path: "/metrics"})
			So(resp.StatusCode, ShouldEqual, http.StatusOK)
		})

		Convey("Then CORS preflight is answered", func() {
			resp, _ := do(t, srv, call{method: "OPTIONS", path: "/scores"})
			So(resp.StatusCode, ShouldEqual, http.StatusNoContent)
			So(resp.Header.Get("Access-Control-Allow-Origin"), ShouldEqual, "*")
		})
	})
}

func TestMiddleware(t *testing.T) {
	Convey("Given a handler that panics", t, func() {
		h := api.RecoverMiddleware(logger.Nop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
			panic("boom")
		}))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		Convey("Then a 500 is written instead of crashing", func() {
			So(rec.Code, ShouldEqual, http.StatusInternalServerError)
		})
	})

	Convey("Given a server with no trusted proxies", t, func() {
		mux := http.NewServeMux()
		api.NewServer(&mockDeps{}).Register(context.Background(), mux)
		srv := httptest.NewServer(mux)
		defer srv.Close()

		Convey("Then a forged X-Forwarded-For does not pick the country", func() {
			_, body := do(t, srv, call{method: "GET", path: "/geo", header: map[string]string{"X-Forwarded-For": "203.0.113.7"}})
			So(body["country"], ShouldEqual, "NG")
		})
	})

	Convey("Given operation errors", t, func() {
		err := api.WrapKind("api.x", api.ErrBadRequest, fmt.Errorf("boom"))
		So(err.Error(), ShouldEqual, "api.x: bad request: boom")
		So(api.Wrap("api.x", nil), ShouldBeNil)
		So(api.NewKind("api.y", api.ErrUnsupported).Error(), ShouldContainSubstring, "api.y")
	})
}
