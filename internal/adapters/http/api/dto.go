package api

import (
	"time"

	service "github.com/okian/flaggy/internal/app"
	"github.com/okian/flaggy/internal/domain/country"
	"github.com/okian/flaggy/internal/domain/session"
)

// Durations are sent as integer milliseconds.

type optionDTO struct {
	CCA3 string `json:"cca3"`
	Name string `json:"name"`
}

type countryDTO struct {
	CCA3       string        `json:"cca3"`
	Name       string        `json:"name"`
	Official   string        `json:"official,omitempty"`
	Flag       country.Flags `json:"flag"`
	Region     string        `json:"region,omitempty"`
	Subregion  string        `json:"subregion,omitempty"`
	Population int64         `json:"population,omitempty"`
}

type questionDTO struct {
	Round       int           `json:"round"`
	Flag        country.Flags `json:"flag"`
	Options     []optionDTO   `json:"options"`
	StartedAt   time.Time     `json:"startedAt"`
	Deadline    time.Time     `json:"deadline"`
	RemainingMs int64         `json:"remainingMs"`
	Resolved    bool          `json:"resolved"`
	Outcome     *outcomeDTO   `json:"outcome,omitempty"`
}

type outcomeDTO struct {
	Round         int              `json:"round"`
	Correct       bool             `json:"correct"`
	TimedOut      bool             `json:"timedOut"`
	Selected      string           `json:"selected,omitempty"`
	Answer        countryDTO       `json:"answer"`
	ElapsedMs     int64            `json:"elapsedMs"`
	Score         int              `json:"score"`
	Answered      int              `json:"answered"`
	CycleComplete bool             `json:"cycleComplete"`
	Summary       *session.Summary `json:"summary,omitempty"`
}

type progressDTO struct {
	ID          string           `json:"id"`
	Settings    session.Settings `json:"settings"`
	Seen        int              `json:"seen"`
	PoolSize    int              `json:"poolSize"`
	Score       int              `json:"score"`
	Answered    int              `json:"answered"`
	Accuracy    int              `json:"accuracy"`
	TimeLimitMs int64            `json:"timeLimitMs"`
	RemainingMs int64            `json:"remainingMs"`
}

type gameDTO struct {
	ID          string           `json:"id"`
	Settings    session.Settings `json:"settings"`
	PoolSize    int              `json:"poolSize"`
	TimeLimitMs int64            `json:"timeLimitMs"`
	Question    questionDTO      `json:"question"`
}

type finishDTO struct {
	Summary      session.Summary `json:"summary"`
	Submitted    bool            `json:"submitted"`
	Duplicate    bool            `json:"duplicate,omitempty"`
	SubmissionID string          `json:"submissionId,omitempty"`
}

func toCountry(c country.Country) countryDTO {
	return countryDTO{
		CCA3:       c.CCA3,
		Name:       c.Name.Common,
		Official:   c.Name.Official,
		Flag:       c.Flags,
		Region:     c.Region,
		Subregion:  c.Subregion,
		Population: c.Population,
	}
}

// toQuestion never exposes which option is correct, or the flag's alt
// text, while the round is open.
func toQuestion(r session.Round, now time.Time) questionDTO {
	q := questionDTO{
		Round:     r.Number,
		Flag:      r.Question.Correct.Flags,
		Options:   make([]optionDTO, 0, len(r.Question.Options)),
		StartedAt: r.StartedAt,
		Deadline:  r.Deadline,
		Resolved:  r.Outcome != nil,
	}
	for _, o := range r.Question.Options {
		q.Options = append(q.Options, optionDTO{CCA3: o.CCA3, Name: o.Name.Common})
	}
	if r.Outcome != nil {
		out := toOutcome(*r.Outcome)
		q.Outcome = &out
	} else {
		// the alt text names the country
		q.Flag.Alt = ""
		if rem := r.Deadline.Sub(now); rem > 0 {
			q.RemainingMs = rem.Milliseconds()
		}
	}
	return q
}

func toOutcome(o session.Outcome) outcomeDTO {
	return outcomeDTO{
		Round:         o.Round,
		Correct:       o.Correct,
		TimedOut:      o.TimedOut,
		Selected:      o.Selected,
		Answer:        toCountry(o.Answer),
		ElapsedMs:     o.Elapsed.Milliseconds(),
		Score:         o.Score,
		Answered:      o.Answered,
		CycleComplete: o.CycleComplete,
		Summary:       o.Summary,
	}
}

func toProgress(id string, p session.Progress, st session.Settings) progressDTO {
	return progressDTO{
		ID:          id,
		Settings:    st,
		Seen:        p.Seen,
		PoolSize:    p.PoolSize,
		Score:       p.Score,
		Answered:    p.Answered,
		Accuracy:    p.Accuracy,
		TimeLimitMs: p.TimeLimit.Milliseconds(),
		RemainingMs: p.Remaining.Milliseconds(),
	}
}

func toGame(g service.Game, now time.Time) gameDTO {
	return gameDTO{
		ID:          g.ID,
		Settings:    g.Settings,
		PoolSize:    g.PoolSize,
		TimeLimitMs: g.TimeLimit.Milliseconds(),
		Question:    toQuestion(g.Round, now),
	}
}
