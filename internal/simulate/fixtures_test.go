package simulate

import (
	"errors"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utakatalp/league-forecaster/internal/league"
	"github.com/utakatalp/league-forecaster/internal/predict"
)

func newRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, 0))
}

// coverage returns one match per category so that a score table built from
// it can serve any sampled category.
func coverage(region string) []league.Match {
	var matches []league.Match
	for i, c := range league.Categories() {
		matches = append(matches, league.Match{
			Competition: league.Competition{Region: region, Name: "friendlies"},
			Date:        league.Date(2010, time.January, 1).AddDate(0, 0, i),
			Home:        "Home XI",
			Away:        "Away XI",
			HomeGoals:   c.Home,
			AwayGoals:   c.Away,
		})
	}
	return matches
}

// recorder predicts 1:0 for everything and notes how many matches it had
// been fed at each prediction.
type recorder struct {
	fed  int
	seen []int
}

func (r *recorder) Name() string { return "recorder" }

func (r *recorder) FeedMatch(league.Match) { r.fed++ }

func (r *recorder) Predict(league.Fixture) predict.Distribution {
	r.seen = append(r.seen, r.fed)
	return predict.Distribution{{Home: 1, Away: 0}: 1}
}

func fixtureOn(day int, home, away string) league.Fixture {
	return league.Fixture{
		Competition: league.EnglandPremier,
		Date:        league.Date(2024, time.March, day),
		Home:        home,
		Away:        away,
	}
}

func TestCategoryToScore(t *testing.T) {
	history := []league.Match{
		{HomeGoals: 1, AwayGoals: 0},
		{HomeGoals: 1, AwayGoals: 0},
		{HomeGoals: 5, AwayGoals: 4},
		{HomeGoals: 6, AwayGoals: 5},
		{HomeGoals: 4, AwayGoals: 5},
	}
	table := CategoryToScore(history)

	require.Len(t, table, 3)
	assert.Equal(t, []ScoreWeight{{Score: league.Score{Home: 1, Away: 0}, Probability: 1}}, table[league.Category{Home: 1, Away: 0}])

	bucket := table[league.CategoryFromScore(league.Score{Home: 5, Away: 4})]
	require.Len(t, bucket, 2)
	assert.Equal(t, league.Score{Home: 5, Away: 4}, bucket[0].Score)
	assert.Equal(t, league.Score{Home: 6, Away: 5}, bucket[1].Score)
	assert.InDelta(t, 0.5, bucket[0].Probability, 1e-12)

	away := table[league.CategoryFromScore(league.Score{Home: 4, Away: 5})]
	assert.Equal(t, league.Score{Home: 4, Away: 5}, away[0].Score)
}

func TestSimulateFixturesDayProtocol(t *testing.T) {
	fixtures := []league.Fixture{
		fixtureOn(1, "Arsenal", "Chelsea"),
		fixtureOn(1, "Everton", "Fulham"),
		fixtureOn(8, "Chelsea", "Everton"),
		fixtureOn(8, "Fulham", "Arsenal"),
		fixtureOn(15, "Arsenal", "Everton"),
	}
	scores := CategoryToScore([]league.Match{{HomeGoals: 1, AwayGoals: 0}})
	p := &recorder{}

	matches, err := SimulateFixtures(fixtures, p, scores, newRand(1))
	require.NoError(t, err)

	assert.Equal(t, []int{0, 0, 2, 2, 4}, p.seen)
	assert.Equal(t, 5, p.fed)
	require.Len(t, matches, len(fixtures))
	for i, m := range matches {
		assert.Equal(t, fixtures[i].Home, m.Home)
		assert.Equal(t, fixtures[i].Date, m.Date)
		assert.Equal(t, league.Score{Home: 1, Away: 0}, m.Score())
	}
}

func TestSimulateFixturesReproducible(t *testing.T) {
	history := coverage("england")
	scores := CategoryToScore(history)
	fixtures := []league.Fixture{
		fixtureOn(1, "Arsenal", "Chelsea"),
		fixtureOn(1, "Everton", "Fulham"),
		fixtureOn(8, "Chelsea", "Everton"),
	}

	simulate := func() []league.Match {
		p := predict.NewFrequencyPredictor()
		for _, m := range history {
			p.FeedMatch(m)
		}
		matches, err := SimulateFixtures(fixtures, p, scores, newRand(42))
		require.NoError(t, err)
		return matches
	}
	assert.Equal(t, simulate(), simulate())
}

func TestSimulateFixturesErrors(t *testing.T) {
	scores := CategoryToScore([]league.Match{{HomeGoals: 2, AwayGoals: 2}})

	_, err := SimulateFixtures([]league.Fixture{
		fixtureOn(8, "Arsenal", "Chelsea"),
		fixtureOn(1, "Everton", "Fulham"),
	}, &recorder{}, scores, newRand(1))
	assert.True(t, errors.Is(err, ErrUnsortedFixtures))

	_, err = SimulateFixtures([]league.Fixture{fixtureOn(1, "Arsenal", "Chelsea")}, &recorder{}, scores, newRand(1))
	assert.True(t, errors.Is(err, ErrEmptyDistribution))
}

func TestChoose(t *testing.T) {
	rng := newRand(3)
	counts := make([]int, 3)
	for i := 0; i < 3000; i++ {
		idx, ok := choose([]float64{0.2, 0, 0.8}, rng)
		require.True(t, ok)
		counts[idx]++
	}
	assert.Zero(t, counts[1])
	assert.Greater(t, counts[2], counts[0])

	_, ok := choose([]float64{0, 0}, rng)
	assert.False(t, ok)
}
