package simulate

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utakatalp/league-forecaster/internal/league"
	"github.com/utakatalp/league-forecaster/internal/predict"
)

var leagueTeams = []string{"Arsenal", "Chelsea", "Everton", "Fulham", "Luton", "Watford"}

func leagueSeason(start int) []league.Fixture {
	return league.Flatten(league.GenerateFullSeason(leagueTeams, league.ScheduleOptions{
		Competition: league.EnglandPremier,
		Season:      league.Season{Start: start, EndsFollowingYear: true},
		Start:       league.Date(start, time.August, 12),
		Interval:    7 * 24 * time.Hour,
	}))
}

// leagueInput has two finished seasons of history and the current season
// played up to its halfway point.
func leagueInput() Input {
	rng := newRand(99)
	history := coverage("england")
	var played []league.Match
	for _, start := range []int{2021, 2022, 2023} {
		fixtures := leagueSeason(start)
		if start == 2023 {
			fixtures = fixtures[:15]
		}
		for _, f := range fixtures {
			m := f.Play(league.Score{Home: rng.IntN(4), Away: rng.IntN(3)})
			history = append(history, m)
			if start == 2023 {
				played = append(played, m)
			}
		}
	}
	return Input{
		History:     history,
		Fixtures:    leagueSeason(2023)[15:],
		Played:      played,
		Competition: league.EnglandPremier,
		Season:      league.Season{Start: 2023, EndsFollowingYear: true},
		Format:      league.Format{Teams: 6, Matches: 30},
	}
}

type runCounter struct {
	mu     sync.Mutex
	runs   int
	failed int
}

func (c *runCounter) ObserveRun(_ league.Competition, _ time.Duration, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.runs++
	if err != nil {
		c.failed++
	}
}

func TestForecastIndependentOfWorkers(t *testing.T) {
	in := leagueInput()
	factory, err := predict.NewFactory(predict.KindStrength)
	require.NoError(t, err)

	forecast := func(workers int) *Odds {
		f := &Forecaster{Factory: factory, Runs: 12, Workers: workers, Seed: 2024}
		odds, err := f.Forecast(context.Background(), in)
		require.NoError(t, err)
		return odds
	}

	sequential := forecast(1)
	assert.Equal(t, sequential, forecast(4))
	assert.Equal(t, sequential, forecast(12))

	require.Len(t, sequential.Ranking, len(leagueTeams))
	require.Len(t, sequential.Teams, len(leagueTeams))
	for i, r := range sequential.Ranking {
		assert.Equal(t, i+1, r.Position)
		assert.Equal(t, r.Team, sequential.Teams[i].Team)
	}

	// every position is filled once per run
	for position := 0; position < len(leagueTeams); position++ {
		total := 0.0
		for _, team := range sequential.Teams {
			total += team.Positions[position]
		}
		assert.InDelta(t, 1, total, 1e-9)
	}

	champion := 0.0
	for _, p := range sequential.Champion {
		champion += p.Probability
	}
	assert.InDelta(t, 100, champion, 0.1)
	for i := 1; i < len(sequential.Champion); i++ {
		assert.GreaterOrEqual(t, sequential.Champion[i-1].Probability, sequential.Champion[i].Probability)
	}
}

func TestForecastSeedChangesOutcome(t *testing.T) {
	in := leagueInput()
	factory, err := predict.NewFactory(predict.KindFrequency)
	require.NoError(t, err)

	tables := make(map[string]bool)
	for seed := uint64(0); seed < 4; seed++ {
		f := &Forecaster{Factory: factory, Runs: 1, Workers: 1, Seed: seed}
		odds, err := f.Forecast(context.Background(), in)
		require.NoError(t, err)
		key := ""
		for _, r := range odds.Ranking {
			key += r.Team + ","
		}
		tables[key] = true
	}
	assert.Greater(t, len(tables), 1)
}

func TestForecastObservesRuns(t *testing.T) {
	in := leagueInput()
	counter := &runCounter{}
	f := &Forecaster{Factory: func() predict.Predictor { return predict.NewFrequencyPredictor() }, Runs: 5, Workers: 2, Observer: counter}
	_, err := f.Forecast(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, 5, counter.runs)
	assert.Zero(t, counter.failed)
}

func TestForecastFailedRunAbortsBatch(t *testing.T) {
	in := leagueInput()
	in.Format.Teams = 7
	counter := &runCounter{}
	f := &Forecaster{Factory: func() predict.Predictor { return predict.NewFrequencyPredictor() }, Runs: 50, Workers: 3, Observer: counter}

	_, err := f.Forecast(context.Background(), in)
	require.Error(t, err)
	assert.True(t, errors.Is(err, league.ErrValidation))
	assert.Less(t, counter.runs, 50)
	assert.Equal(t, counter.runs, counter.failed)
}

func TestForecastCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	f := &Forecaster{Factory: func() predict.Predictor { return predict.NewFrequencyPredictor() }, Runs: 1000, Workers: 2}
	_, err := f.Forecast(ctx, leagueInput())
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestForecastRejectsNoRuns(t *testing.T) {
	f := &Forecaster{Factory: func() predict.Predictor { return predict.NewFrequencyPredictor() }}
	_, err := f.Forecast(context.Background(), leagueInput())
	assert.True(t, errors.Is(err, league.ErrValidation))
}

func TestForecastCup(t *testing.T) {
	fixtures := groupFixtures()
	played := playGroups(fixtures[:80])
	in := cupInput(played, fixtures[80:])

	f := &Forecaster{Factory: func() predict.Predictor { return predict.NewFrequencyPredictor() }, Runs: 4, Workers: 2, Seed: 1}
	odds, err := f.Forecast(context.Background(), in)
	require.NoError(t, err)
	assert.Len(t, odds.Ranking, 32)

	groups, err := f.GroupOdds(context.Background(), in)
	require.NoError(t, err)
	require.Len(t, groups, 8)
	for i, g := range groups {
		assert.Equal(t, groupNames[i], g.Group)
		assert.Len(t, g.Ranking, 4)
		assert.Len(t, g.Teams, 4)
	}
}

func TestForecastCupSharesTiedPlaces(t *testing.T) {
	in := cupInput(playGroups(groupFixtures()), nil)
	f := &Forecaster{Factory: func() predict.Predictor { return predict.NewFrequencyPredictor() }, Runs: 6, Workers: 2, Seed: 3}
	odds, err := f.Forecast(context.Background(), in)
	require.NoError(t, err)
	require.Len(t, odds.Teams, 32)

	positions := make(map[string][]float64, len(odds.Teams))
	for _, team := range odds.Teams {
		positions[team.Team] = team.Positions
	}
	for _, group := range groupNames {
		third := positions[group+"3"]
		fourth := positions[group+"4"]
		require.Len(t, third, 32)
		for place := 0; place < 32; place++ {
			wantThird, wantFourth := 0.0, 0.0
			if place >= 16 && place < 24 {
				wantThird = 1.0 / 8
			}
			if place >= 24 {
				wantFourth = 1.0 / 8
			}
			assert.InDelta(t, wantThird, third[place], 1e-9, "%s3 place %d", group, place+1)
			assert.InDelta(t, wantFourth, fourth[place], 1e-9, "%s4 place %d", group, place+1)
		}
	}

	// losing semi-finalists share third and fourth place
	for _, team := range odds.Teams {
		assert.InDelta(t, team.Positions[2], team.Positions[3], 1e-9, team.Team)
	}
	for place := 0; place < 32; place++ {
		total := 0.0
		for _, team := range odds.Teams {
			total += team.Positions[place]
		}
		assert.InDelta(t, 1, total, 1e-9)
	}
}

func TestCountPositionsSplitsTies(t *testing.T) {
	counts := countPositions([][]league.RankedTeam{
		{{Team: "A", Position: 1}, {Team: "B", Position: 2}, {Team: "C", Position: 2}, {Team: "D", Position: 4}},
		{{Team: "B", Position: 1}, {Team: "A", Position: 2}, {Team: "C", Position: 3}, {Team: "D", Position: 4}},
	})
	assert.InDeltaSlice(t, []float64{1, 1, 0, 0}, counts["A"], 1e-9)
	assert.InDeltaSlice(t, []float64{1, 0.5, 0.5, 0}, counts["B"], 1e-9)
	assert.InDeltaSlice(t, []float64{0, 0.5, 1.5, 0}, counts["C"], 1e-9)
	assert.InDeltaSlice(t, []float64{0, 0, 0, 2}, counts["D"], 1e-9)
}

func TestGroupOddsRequiresCup(t *testing.T) {
	f := &Forecaster{Factory: func() predict.Predictor { return predict.NewFrequencyPredictor() }, Runs: 1}
	_, err := f.GroupOdds(context.Background(), leagueInput())
	assert.True(t, errors.Is(err, league.ErrUnsupported))
}

func TestConsensus(t *testing.T) {
	counts := map[string][]float64{
		"A": {6, 3, 1},
		"B": {4, 5, 1},
		"C": {0, 2, 8},
	}
	ranking := consensus(counts, 0)
	assert.Equal(t, []league.RankedTeam{
		{Team: "A", Position: 1},
		{Team: "B", Position: 2},
		{Team: "C", Position: 3},
	}, ranking)
}
