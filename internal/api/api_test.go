package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utakatalp/league-forecaster/internal/league"
	"github.com/utakatalp/league-forecaster/internal/metrics"
	"github.com/utakatalp/league-forecaster/internal/predict"
	"github.com/utakatalp/league-forecaster/internal/simulate"
)

var (
	testCompetition = league.Competition{Region: "testland", Name: "first"}
	testTeams       = []string{"East", "North", "South", "West"}
)

type fakeSource struct {
	matches  []league.Match
	fixtures []league.Fixture
	odds     *simulate.Odds
	err      error
}

func (f *fakeSource) LoadMatches(context.Context) ([]league.Match, error) {
	return f.matches, f.err
}

func (f *fakeSource) LoadSeasonMatches(_ context.Context, c league.Competition, season league.Season) ([]league.Match, error) {
	var matches []league.Match
	for _, m := range f.matches {
		if m.Competition == c && m.Season == season {
			matches = append(matches, m)
		}
	}
	return matches, f.err
}

func (f *fakeSource) LoadFixtures(_ context.Context, c league.Competition, season league.Season) ([]league.Fixture, error) {
	var fixtures []league.Fixture
	for _, fx := range f.fixtures {
		if fx.Competition == c && fx.Season == season {
			fixtures = append(fixtures, fx)
		}
	}
	return fixtures, f.err
}

func (f *fakeSource) SaveOdds(_ context.Context, odds *simulate.Odds) error {
	f.odds = odds
	return f.err
}

func (f *fakeSource) LoadOdds(context.Context, league.Competition, league.Season) (*simulate.Odds, error) {
	return f.odds, f.err
}

func season(start int) []league.Fixture {
	return league.Flatten(league.GenerateFullSeason(testTeams, league.ScheduleOptions{
		Competition: testCompetition,
		Season:      league.Season{Start: start, EndsFollowingYear: true},
		Start:       league.Date(start, time.August, 10),
		Interval:    7 * 24 * time.Hour,
	}))
}

// newSource holds one category-covering friendly per category, two full
// seasons and the first half of the current one.
func newSource() *fakeSource {
	src := &fakeSource{}
	for i, c := range league.Categories() {
		src.matches = append(src.matches, league.Match{
			Competition: league.Competition{Region: "testland", Name: "friendlies"},
			Date:        league.Date(2022, time.January, 1).AddDate(0, 0, i),
			Home:        "Home XI",
			Away:        "Away XI",
			HomeGoals:   c.Home,
			AwayGoals:   c.Away,
		})
	}
	for _, start := range []int{2022, 2023, 2024} {
		fixtures := season(start)
		if start == 2024 {
			src.fixtures = fixtures[6:]
			fixtures = fixtures[:6]
		}
		for i, f := range fixtures {
			src.matches = append(src.matches, f.Play(league.Score{Home: i % 3, Away: i % 2}))
		}
	}
	return src
}

func newTestServer(t *testing.T, src Source) *Server {
	t.Helper()
	factory, err := predict.NewFactory(predict.KindStrength)
	require.NoError(t, err)
	formats := league.DefaultFormats()
	formats[testCompetition] = league.Format{Teams: 4, Matches: 12}
	return NewServer(src, Options{
		Formats: formats,
		Factory: factory,
		Runs:    8,
		Workers: 2,
		Seed:    1,
		Metrics: metrics.New(prometheus.NewRegistry()),
	})
}

func do(t *testing.T, s *Server, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, newSource())
	rec := do(t, s, http.MethodGet, "/api/health")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestStandings(t *testing.T) {
	s := newTestServer(t, newSource())
	rec := do(t, s, http.MethodGet, "/api/competitions/testland/first/seasons/2024-25/standings")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Played int                 `json:"played"`
		Season string              `json:"season"`
		Table  []*league.TableEntry `json:"table"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 6, body.Played)
	assert.Equal(t, "2024-25", body.Season)
	assert.Len(t, body.Table, 4)

	rec = do(t, s, http.MethodGet, "/api/competitions/testland/first/seasons/2024-26/standings")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPredict(t *testing.T) {
	s := newTestServer(t, newSource())
	resp := do(t, s, http.MethodGet, "/api/competitions/testland/first/predict?home=North&away=South&date=2024-12-01")
	require.Equal(t, http.StatusOK, resp.Code)

	var body predictionResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	assert.Equal(t, "strength model", body.Predictor)
	assert.Len(t, body.Categories, league.NumCategories())
	total := body.Results["1"] + body.Results["X"] + body.Results["2"]
	assert.InDelta(t, 1, total, 1e-9)
	assert.Equal(t, "North", body.Fixture.Home)

	metricsResp := do(t, s, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, metricsResp.Code)
	assert.Contains(t, metricsResp.Body.String(), `forecaster_predictions_total{competition="testland/first"} 1`)
}

func TestPredictRejects(t *testing.T) {
	s := newTestServer(t, newSource())
	tests := []struct {
		name   string
		target string
		status int
	}{
		{"unknown competition", "/api/competitions/mars/first/predict?home=A&away=B&date=2024-01-01", http.StatusNotFound},
		{"same team", "/api/competitions/testland/first/predict?home=North&away=North&date=2024-01-01", http.StatusBadRequest},
		{"missing team", "/api/competitions/testland/first/predict?home=North&date=2024-01-01", http.StatusBadRequest},
		{"bad date", "/api/competitions/testland/first/predict?home=North&away=South&date=01/01/2024", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, s, http.MethodGet, tt.target)
			assert.Equal(t, tt.status, rec.Code)
			var body errorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.NotEmpty(t, body.Error)
		})
	}
}

func TestForecastAndOdds(t *testing.T) {
	src := newSource()
	s := newTestServer(t, src)

	rec := do(t, s, http.MethodGet, "/api/competitions/testland/first/seasons/2024-25/odds")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, s, http.MethodPost, "/api/competitions/testland/first/seasons/2024-25/forecast?runs=6")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var odds simulate.Odds
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &odds))
	assert.Equal(t, 6, odds.Runs)
	assert.Len(t, odds.Ranking, 4)
	require.NotNil(t, src.odds)
	assert.Equal(t, testCompetition, src.odds.Competition)

	rec = do(t, s, http.MethodGet, "/api/competitions/testland/first/seasons/2024-25/odds")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestForecastErrors(t *testing.T) {
	src := newSource()
	s := newTestServer(t, src)

	rec := do(t, s, http.MethodPost, "/api/competitions/testland/first/seasons/2024-25/forecast?runs=0")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, s, http.MethodPost, "/api/competitions/mars/first/seasons/2024-25/forecast")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// a season whose stored matches do not add up to the format
	src.fixtures = src.fixtures[1:]
	rec = do(t, s, http.MethodPost, "/api/competitions/testland/first/seasons/2024-25/forecast")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	src.err = errors.New("connection reset")
	rec = do(t, s, http.MethodPost, "/api/competitions/testland/first/seasons/2024-25/forecast")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
