package loadtest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// client is a thin JSON-over-HTTP client bound to one player.
type client struct {
	http    *http.Client
	baseURL string
	token   string
	player  string
}

func newClient(hc *http.Client, baseURL, token, player string) *client {
	return &client{http: hc, baseURL: baseURL, token: token, player: player}
}

// statusError carries the status of an unexpected response.
type statusError struct {
	Method string
	Path   string
	Status int
	Body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.Status, e.Body)
}

func (c *client) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		rd = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.player != "" {
		req.Header.Set("X-Player-ID", c.player)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &statusError{Method: method, Path: path, Status: resp.StatusCode, Body: string(bytes.TrimSpace(b))}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

type option struct {
	CCA3 string `json:"cca3"`
	Name string `json:"name"`
}

type question struct {
	Round int `json:"round"`
	Flag  struct {
		PNG string `json:"png"`
	} `json:"flag"`
	Options     []option `json:"options"`
	RemainingMs int64    `json:"remainingMs"`
}

type game struct {
	ID          string   `json:"id"`
	PoolSize    int      `json:"poolSize"`
	TimeLimitMs int64    `json:"timeLimitMs"`
	Question    question `json:"question"`
}

type outcome struct {
	Correct       bool `json:"correct"`
	TimedOut      bool `json:"timedOut"`
	CycleComplete bool `json:"cycleComplete"`
	Answer        struct {
		CCA3 string `json:"cca3"`
	} `json:"answer"`
}

type finish struct {
	Summary struct {
		Score       int     `json:"score"`
		Total       int     `json:"total"`
		Accuracy    float64 `json:"accuracy"`
		AverageTime float64 `json:"averageTime"`
	} `json:"summary"`
	Submitted    bool   `json:"submitted"`
	Duplicate    bool   `json:"duplicate"`
	SubmissionID string `json:"submissionId"`
}

// Entry is a leaderboard row as served by the API.
type Entry struct {
	Rank        int     `json:"rank"`
	ID          string  `json:"id"`
	UID         string  `json:"uid"`
	Score       int     `json:"score"`
	AverageTime float64 `json:"averageTime"`
}

type leaderboard struct {
	Entries []Entry `json:"entries"`
}

func newHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}
