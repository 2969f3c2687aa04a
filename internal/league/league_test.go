package league

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSeason(t *testing.T) {
	tests := []struct {
		in      string
		want    Season
		wantErr bool
	}{
		{"2023-24", Season{Start: 2023, EndsFollowingYear: true}, false},
		{"1999-00", Season{Start: 1999, EndsFollowingYear: true}, false},
		{"2024", Season{Start: 2024}, false},
		{"2023-25", Season{}, true},
		{"twenty", Season{}, true},
	}
	for _, tt := range tests {
		got, err := ParseSeason(tt.in)
		if tt.wantErr {
			assert.Error(t, err, "ParseSeason(%q)", tt.in)
			continue
		}
		require.NoError(t, err, "ParseSeason(%q)", tt.in)
		assert.Equal(t, tt.want, got)
		assert.Equal(t, tt.in, got.String())
	}
}

func TestResultOf(t *testing.T) {
	assert.Equal(t, ResultHome, ResultOf(Score{2, 1}))
	assert.Equal(t, ResultDraw, ResultOf(Score{1, 1}))
	assert.Equal(t, ResultAway, ResultOf(Score{0, 3}))
	assert.Equal(t, "X", ResultDraw.String())
}

func TestGenerateScheduleOddTeams(t *testing.T) {
	teams := []string{"A", "B", "C", "D", "E"}
	rounds := GenerateSchedule(teams)
	require.Len(t, rounds, 5)

	pairs := make(map[[2]string]int)
	for _, rnd := range rounds {
		require.Len(t, rnd, 2)
		playing := make(map[string]bool)
		for _, f := range rnd {
			require.False(t, playing[f.Home] || playing[f.Away], "team plays twice in a round")
			playing[f.Home], playing[f.Away] = true, true
			key := [2]string{min(f.Home, f.Away), max(f.Home, f.Away)}
			pairs[key]++
		}
	}
	assert.Len(t, pairs, 10)
	for pair, n := range pairs {
		assert.Equal(t, 1, n, "pair %v", pair)
	}
	assert.Equal(t, []string{"A", "B", "C", "D", "E"}, teams, "input must not be rotated")
}

func TestGenerateFullSeasonDates(t *testing.T) {
	start := Date(2024, time.August, 17)
	rounds := GenerateFullSeason([]string{"A", "B", "C", "D"}, ScheduleOptions{
		Competition: GermanyBundesliga,
		Season:      Season{Start: 2024, EndsFollowingYear: true},
		Start:       start,
		Interval:    7 * 24 * time.Hour,
	})
	require.Len(t, rounds, 6)
	assert.Equal(t, start, rounds[0][0].Date)
	assert.Equal(t, start.AddDate(0, 0, 35), rounds[5][0].Date)
	assert.Equal(t, GermanyBundesliga, rounds[3][1].Competition)

	first := rounds[0][0]
	mirrored := rounds[3][0]
	assert.Equal(t, first.Home, mirrored.Away)
	assert.Equal(t, first.Away, mirrored.Home)
}

func TestFormatsLookup(t *testing.T) {
	formats := DefaultFormats()

	f, err := formats.Lookup(EuropeChampions)
	require.NoError(t, err)
	assert.Equal(t, 125, f.Matches)
	assert.True(t, formats.IsCup(EuropeChampions))
	assert.False(t, formats.IsCup(EnglandPremier))

	_, err = formats.Lookup(Competition{Region: "spain", Name: "segunda"})
	assert.True(t, errors.Is(err, ErrUnsupported))
}

func TestFixturePlay(t *testing.T) {
	kickoff := time.Date(2024, time.May, 1, 19, 0, 0, 0, time.UTC)
	f := Fixture{Competition: EnglandPremier, Date: Date(2024, time.May, 1), Home: "Arsenal", Away: "Chelsea", Kickoff: &kickoff}
	m := f.Play(Score{Home: 5, Away: 0})
	assert.Equal(t, "Arsenal 5 - 0 Chelsea", m.ScoreLine())
	assert.Equal(t, f, FixtureFromMatch(m))
	assert.Equal(t, 30, DaysBetween(Date(2024, time.April, 1), m.Date))
}

func TestDaysBetweenRoundsDown(t *testing.T) {
	target := Date(2024, time.March, 10)
	tests := []struct {
		name string
		date time.Time
		want int
	}{
		{"same day", target, 0},
		{"a day before", Date(2024, time.March, 9), 1},
		{"half a day before", target.Add(-12 * time.Hour), 0},
		{"half a day after", target.Add(12 * time.Hour), -1},
		{"a day and a half after", target.Add(36 * time.Hour), -2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DaysBetween(tt.date, target))
		})
	}
}
