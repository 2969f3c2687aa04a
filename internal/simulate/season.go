package simulate

import (
	"context"
	"fmt"
	"math/rand/v2"

	"github.com/utakatalp/league-forecaster/internal/league"
	"github.com/utakatalp/league-forecaster/internal/predict"
)

// Input is the read-only data shared by every run of a season simulation.
type Input struct {
	// History holds every known match, sorted by date. Played matches of
	// the season are part of it.
	History []league.Match
	// Fixtures are the remaining fixtures of the season, sorted by date.
	Fixtures    []league.Fixture
	Played      []league.Match
	Competition league.Competition
	Season      league.Season
	Format      league.Format
}

// Source provides stored matches and the fixtures still to be played.
type Source interface {
	LoadMatches(ctx context.Context) ([]league.Match, error)
	LoadSeasonMatches(ctx context.Context, c league.Competition, season league.Season) ([]league.Match, error)
	LoadFixtures(ctx context.Context, c league.Competition, season league.Season) ([]league.Fixture, error)
}

// LoadInput gathers the simulation input of a competition season.
func LoadInput(ctx context.Context, src Source, formats league.Formats, c league.Competition, season league.Season) (Input, error) {
	format, err := formats.Lookup(c)
	if err != nil {
		return Input{}, err
	}
	history, err := src.LoadMatches(ctx)
	if err != nil {
		return Input{}, err
	}
	played, err := src.LoadSeasonMatches(ctx, c, season)
	if err != nil {
		return Input{}, err
	}
	fixtures, err := src.LoadFixtures(ctx, c, season)
	if err != nil {
		return Input{}, err
	}
	return Input{
		History:     history,
		Fixtures:    fixtures,
		Played:      played,
		Competition: c,
		Season:      season,
		Format:      format,
	}, nil
}

// SimulateSeason feeds the history to p and simulates the remaining
// fixtures. Cups are completed with their knockout stages unless restrict
// is set.
func SimulateSeason(in Input, p predict.Predictor, scores ScoreTable, rng *rand.Rand, restrict bool) ([]league.Match, error) {
	for _, m := range in.History {
		p.FeedMatch(m)
	}

	simulated, err := SimulateFixtures(in.Fixtures, p, scores, rng)
	if err != nil {
		return nil, err
	}
	if restrict || !in.Format.Cup {
		return simulated, nil
	}

	resolver := &CupResolver{
		Competition: in.Competition,
		Season:      in.Season,
		Predictor:   p,
		Scores:      scores,
		Rand:        rng,
	}
	return resolver.Complete(in.Played, simulated)
}

// Table simulates the season and returns its final ranking.
func Table(in Input, p predict.Predictor, scores ScoreTable, rng *rand.Rand) ([]league.RankedTeam, error) {
	simulated, err := SimulateSeason(in, p, scores, rng, false)
	if err != nil {
		return nil, fmt.Errorf("simulating %s %s: %w", in.Competition, in.Season, err)
	}

	matches := make([]league.Match, 0, len(in.Played)+len(simulated))
	matches = append(matches, in.Played...)
	matches = append(matches, simulated...)

	if in.Format.Cup {
		ranking, err := RankCup(matches, in.Format.Matches, in.Format.Teams, rng)
		if err != nil {
			return nil, fmt.Errorf("ranking %s %s: %w", in.Competition, in.Season, err)
		}
		return ranking, nil
	}

	teams, err := league.BuildTable(matches, in.Format.Matches, in.Format.Teams, false, rng)
	if err != nil {
		return nil, fmt.Errorf("ranking %s %s: %w", in.Competition, in.Season, err)
	}
	return league.Ranking(teams), nil
}

// GroupTables simulates the remaining group fixtures of a cup and returns
// the table of every group, keyed by group name.
func GroupTables(in Input, p predict.Predictor, scores ScoreTable, rng *rand.Rand) (map[string][]string, error) {
	simulated, err := SimulateSeason(in, p, scores, rng, true)
	if err != nil {
		return nil, fmt.Errorf("simulating %s %s: %w", in.Competition, in.Season, err)
	}

	matches := append(append([]league.Match(nil), in.Played...), simulated...)
	groups, _, err := orderCupMatches(matches)
	if err != nil {
		return nil, err
	}
	tables := make(map[string][]string, len(groups))
	for _, group := range sortedGroups(groups) {
		table, err := GroupTable(groups[group], rng)
		if err != nil {
			return nil, fmt.Errorf("group %s: %w", group, err)
		}
		tables[group] = table
	}
	return tables, nil
}
