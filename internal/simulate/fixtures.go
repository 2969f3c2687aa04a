// Package simulate plays out the remaining fixtures of a season and turns
// many simulated seasons into position odds.
package simulate

import (
	"cmp"
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"
	"time"

	"github.com/utakatalp/league-forecaster/internal/league"
	"github.com/utakatalp/league-forecaster/internal/predict"
)

var (
	// ErrEmptyDistribution is returned when a sampled category never
	// happened in the history the score table was built from.
	ErrEmptyDistribution = errors.New("no scores for category")
	// ErrUnsortedFixtures is returned for fixtures out of date order.
	ErrUnsortedFixtures = errors.New("fixtures not sorted by date")
)

// ScoreWeight is the share of a score within its category.
type ScoreWeight struct {
	Score       league.Score
	Probability float64
}

// ScoreTable maps every observed category to the empirical frequencies of
// its scores, ordered by score.
type ScoreTable map[league.Category][]ScoreWeight

// CategoryToScore counts the scores of history per category.
func CategoryToScore(history []league.Match) ScoreTable {
	counters := make(map[league.Category]map[league.Score]int)
	for _, m := range history {
		score := m.Score()
		category := league.CategoryFromScore(score)
		counter, ok := counters[category]
		if !ok {
			counter = make(map[league.Score]int)
			counters[category] = counter
		}
		counter[score]++
	}

	table := make(ScoreTable, len(counters))
	for category, counter := range counters {
		total := 0
		for _, count := range counter {
			total += count
		}
		weights := make([]ScoreWeight, 0, len(counter))
		for score, count := range counter {
			weights = append(weights, ScoreWeight{Score: score, Probability: float64(count) / float64(total)})
		}
		slices.SortFunc(weights, func(a, b ScoreWeight) int {
			return cmp.Or(cmp.Compare(a.Score.Home, b.Score.Home), cmp.Compare(a.Score.Away, b.Score.Away))
		})
		table[category] = weights
	}
	return table
}

// SimulateFixtures samples a score for every fixture and feeds the results
// back into p. Fixtures of one day are all predicted before any of them is
// fed, so they see the same predictor state. fixtures must be sorted by
// date.
func SimulateFixtures(fixtures []league.Fixture, p predict.Predictor, scores ScoreTable, rng *rand.Rand) ([]league.Match, error) {
	for i := 1; i < len(fixtures); i++ {
		if fixtures[i].Date.Before(fixtures[i-1].Date) {
			return nil, fmt.Errorf("%w: %s after %s", ErrUnsortedFixtures,
				fixtures[i].Date.Format(time.DateOnly), fixtures[i-1].Date.Format(time.DateOnly))
		}
	}

	simulated := make([]league.Match, 0, len(fixtures))
	for i := 0; i < len(fixtures); {
		j := i
		for j < len(fixtures) && fixtures[j].Date.Equal(fixtures[i].Date) {
			j++
		}

		today := make([]league.Match, 0, j-i)
		for _, f := range fixtures[i:j] {
			score, err := sampleScore(p.Predict(f), scores, rng)
			if err != nil {
				return nil, fmt.Errorf("%s vs %s on %s: %w", f.Home, f.Away, f.Date.Format(time.DateOnly), err)
			}
			today = append(today, f.Play(score))
		}
		for _, m := range today {
			p.FeedMatch(m)
		}
		simulated = append(simulated, today...)
		i = j
	}
	return simulated, nil
}

func sampleScore(dist predict.Distribution, scores ScoreTable, rng *rand.Rand) (league.Score, error) {
	categories := league.Categories()
	weights := make([]float64, len(categories))
	for i, c := range categories {
		weights[i] = dist[c]
	}
	idx, ok := choose(weights, rng)
	if !ok {
		return league.Score{}, predict.ErrInvalidDistribution
	}
	category := categories[idx]

	candidates := scores[category]
	weights = weights[:0]
	for _, w := range candidates {
		weights = append(weights, w.Probability)
	}
	idx, ok = choose(weights, rng)
	if !ok {
		return league.Score{}, fmt.Errorf("%w %s", ErrEmptyDistribution, category)
	}
	return candidates[idx].Score, nil
}

// choose picks an index with probability proportional to its weight.
func choose(weights []float64, rng *rand.Rand) (int, bool) {
	total := 0.0
	last := -1
	for i, w := range weights {
		if w > 0 {
			total += w
			last = i
		}
	}
	if last < 0 {
		return 0, false
	}
	u := rng.Float64() * total
	cumulative := 0.0
	for i, w := range weights {
		if w <= 0 {
			continue
		}
		cumulative += w
		if u < cumulative {
			return i, true
		}
	}
	return last, true
}
