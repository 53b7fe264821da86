package loadtest

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// knowledge maps a flag image to the country it belongs to, learned from
// revealed answers and shared by every simulated player.
type knowledge struct {
	m sync.Map
}

func (k *knowledge) learn(flag, cca3 string) {
	if flag != "" && cca3 != "" {
		k.m.Store(flag, cca3)
	}
}

func (k *knowledge) recall(flag string) (string, bool) {
	v, ok := k.m.Load(flag)
	if !ok {
		return "", false
	}
	return v.(string), true
}

type player struct {
	id    string
	cl    *client
	cfg   *Config
	rng   *rand.Rand
	known *knowledge
	stats *Stats
}

func (p *player) pick(q question) string {
	if cca3, ok := p.known.recall(q.Flag.PNG); ok && p.rng.Float64() < p.cfg.Accuracy {
		return cca3
	}
	if len(q.Options) == 0 {
		return ""
	}
	return q.Options[p.rng.IntN(len(q.Options))].CCA3
}

func isConflict(err error) bool {
	var se *statusError
	return errors.As(err, &se) && se.Status == http.StatusConflict
}

// play runs one game of cfg.Rounds questions and finishes it.
func (p *player) play(ctx context.Context) error {
	var g game
	err := p.cl.do(ctx, http.MethodPost, "/games", map[string]string{
		"difficulty": p.cfg.Difficulty,
		"region":     p.cfg.Region,
	}, &g)
	if err != nil {
		return fmt.Errorf("player %s: start: %w", p.id, err)
	}
	atomic.AddInt64(&p.stats.PlayersStarted, 1)

	q := g.Question
	for round := 1; round <= p.cfg.Rounds; round++ {
		var out outcome
		err := p.cl.do(ctx, http.MethodPost, "/games/"+g.ID+"/answer", map[string]string{"cca3": p.pick(q)}, &out)
		switch {
		case isConflict(err):
			atomic.AddInt64(&p.stats.Conflicts, 1)
		case err != nil:
			return fmt.Errorf("player %s: answer: %w", p.id, err)
		default:
			atomic.AddInt64(&p.stats.Answers, 1)
			if out.Correct {
				atomic.AddInt64(&p.stats.Correct, 1)
			}
			p.known.learn(q.Flag.PNG, out.Answer.CCA3)
		}
		if round == p.cfg.Rounds {
			break
		}
		if err := p.cl.do(ctx, http.MethodPost, "/games/"+g.ID+"/next", nil, &q); err != nil {
			return fmt.Errorf("player %s: next: %w", p.id, err)
		}
	}

	var res finish
	if err := p.cl.do(ctx, http.MethodPost, "/games/"+g.ID+"/finish", map[string]string{
		"submission_id": uuid.NewString(),
	}, &res); err != nil {
		return fmt.Errorf("player %s: finish: %w", p.id, err)
	}
	atomic.AddInt64(&p.stats.PlayersFinished, 1)
	if res.Submitted {
		atomic.AddInt64(&p.stats.Submitted, 1)
	}
	if res.Duplicate {
		atomic.AddInt64(&p.stats.Duplicates, 1)
	}
	return nil
}
