// Package question builds multiple-choice flag questions. Distractors are
// drawn from the correct country's subregion, widened to its region and
// then to anywhere when the narrower pool is too small.
package question

import (
	"math/rand/v2"
	"sync"

	"github.com/okian/flaggy/internal/domain/country"
)

// distractorCount is the number of wrong options per question.
const distractorCount = 2

// Question is one round's prompt: the flag of Correct and the options to
// pick from. Correct appears exactly once in Options.
type Question struct {
	Correct country.Country   `json:"correctCountry"`
	Options []country.Country `json:"options"`
}

// Generator builds questions. It is safe for concurrent use.
type Generator struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// Option configures a Generator.
type Option func(*Generator)

// WithSeed makes the generator deterministic.
func WithSeed(seed uint64) Option {
	return func(g *Generator) {
		g.rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)) //nolint:gosec // game randomness
	}
}

// NewGenerator returns a generator seeded from the runtime unless WithSeed is given.
func NewGenerator(opts ...Option) *Generator {
	g := &Generator{}
	for _, opt := range opts {
		opt(g)
	}
	if g.rng == nil {
		g.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())) //nolint:gosec // game randomness
	}
	return g
}

// Generate returns a question for correct using pool for distractors.
// The candidate pool starts with the same subregion and is widened to the
// region, then to everything, only while it holds fewer than two
// countries. Both distractors are then drawn uniformly from that pool.
// correct is included even when pool lacks it; when fewer than two
// distractors exist the question has fewer options.
func (g *Generator) Generate(pool []country.Country, correct country.Country) Question {
	eligible := widen(candidates(pool, correct))

	g.mu.Lock()
	defer g.mu.Unlock()

	chosen := g.sample(eligible, distractorCount)
	options := make([]country.Country, 0, len(chosen)+1)
	options = append(options, correct)
	options = append(options, chosen...)
	g.shuffle(options)
	return Question{Correct: correct, Options: options}
}

// widen concatenates tiers until the result can supply every distractor.
func widen(tiers [3][]country.Country) []country.Country {
	var out []country.Country
	for _, tier := range tiers {
		if len(out) >= distractorCount {
			break
		}
		out = append(out, tier...)
	}
	return out
}

// candidates splits pool into the three distractor tiers: same subregion,
// same region, anything else. Each cca3 appears in at most one tier and
// never equals the correct country. Empty region names are never shared.
func candidates(pool []country.Country, correct country.Country) [3][]country.Country {
	var tiers [3][]country.Country
	seen := map[string]struct{}{correct.CCA3: {}}
	for _, c := range pool {
		if _, dup := seen[c.CCA3]; dup {
			continue
		}
		seen[c.CCA3] = struct{}{}
		switch {
		case correct.Subregion != "" && c.Subregion == correct.Subregion:
			tiers[0] = append(tiers[0], c)
		case correct.Region != "" && c.Region == correct.Region:
			tiers[1] = append(tiers[1], c)
		default:
			tiers[2] = append(tiers[2], c)
		}
	}
	return tiers
}

// sample picks up to n items uniformly without replacement using a
// partial Fisher-Yates shuffle on a copy. Caller holds g.mu.
func (g *Generator) sample(items []country.Country, n int) []country.Country {
	if n > len(items) {
		n = len(items)
	}
	if n == 0 {
		return nil
	}
	tmp := make([]country.Country, len(items))
	copy(tmp, items)
	for i := 0; i < n; i++ {
		j := i + g.rng.IntN(len(tmp)-i)
		tmp[i], tmp[j] = tmp[j], tmp[i]
	}
	return tmp[:n]
}

// shuffle is a uniform Fisher-Yates shuffle. Caller holds g.mu.
func (g *Generator) shuffle(items []country.Country) {
	g.rng.Shuffle(len(items), func(i, j int) { items[i], items[j] = items[j], items[i] })
}

// Shuffle returns a uniformly shuffled copy of countries.
func (g *Generator) Shuffle(countries []country.Country) []country.Country {
	out := make([]country.Country, len(countries))
	copy(out, countries)
	g.mu.Lock()
	g.shuffle(out)
	g.mu.Unlock()
	return out
}
