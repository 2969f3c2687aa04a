package simulate

import (
	"fmt"
	"math/rand/v2"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/utakatalp/league-forecaster/internal/league"
	"github.com/utakatalp/league-forecaster/internal/predict"
)

// Knockout stages of the Champions League, in order.
var (
	KOStages          = []string{"Round of 16", "Quarter-finals", "Semi-finals", "Final"}
	KOStageNumMatches = []int{16, 8, 4, 1}
)

const (
	BreakBetweenStages = 7 * 7 * 24 * time.Hour
	BreakBetweenLegs   = 7 * 24 * time.Hour

	groupMatches = 12
	groupTeams   = 4
	groupPrefix  = "Group"
)

// CupResolver plays the knockout rounds of a cup once its group stage is
// known. It shares the predictor and random stream of the season it
// completes.
type CupResolver struct {
	Competition league.Competition
	Season      league.Season
	Predictor   predict.Predictor
	Scores      ScoreTable
	Rand        *rand.Rand
}

// Complete returns simulated extended with every knockout stage that is
// neither played nor simulated yet.
func (c *CupResolver) Complete(played, simulated []league.Match) ([]league.Match, error) {
	if c.Competition != league.EuropeChampions {
		return nil, fmt.Errorf("%w: cannot complete %s", league.ErrUnsupported, c.Competition)
	}

	simulated = slices.Clone(simulated)
	groups, stages, err := orderCupMatches(append(slices.Clone(played), simulated...))
	if err != nil {
		return nil, err
	}

	for stage, expected := range KOStageNumMatches {
		if n := len(stages[stage]); n > 0 {
			if n != expected {
				return nil, fmt.Errorf("%w: %d matches in %s (expected %d)", league.ErrValidation, n, KOStages[stage], expected)
			}
			continue
		}

		var matchups [][2]string
		var previous []league.Match
		if stage == 0 {
			matchups, err = c.firstMatchups(groups)
			for _, matches := range groups {
				previous = append(previous, matches...)
			}
		} else {
			previous = stages[stage-1]
			matchups, err = c.laterMatchups(previous)
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %w", KOStages[stage], err)
		}

		fixtures := c.fixtures(matchups, previous, stage)
		matches, err := SimulateFixtures(fixtures, c.Predictor, c.Scores, c.Rand)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", KOStages[stage], err)
		}
		stages[stage] = matches
		simulated = append(simulated, matches...)
	}
	return simulated, nil
}

// firstMatchups draws every group winner against a runner-up of another
// random group, either side at home first.
func (c *CupResolver) firstMatchups(groups map[string][]league.Match) ([][2]string, error) {
	var winners, seconds []string
	for _, group := range sortedGroups(groups) {
		table, err := GroupTable(groups[group], c.Rand)
		if err != nil {
			return nil, fmt.Errorf("group %s: %w", group, err)
		}
		winners = append(winners, table[0])
		seconds = append(seconds, table[1])
	}

	shuffle(c.Rand, winners)
	shuffle(c.Rand, seconds)
	matchups := make([][2]string, len(winners))
	for i := range winners {
		pair := []string{winners[i], seconds[i]}
		shuffle(c.Rand, pair)
		matchups[i] = [2]string{pair[0], pair[1]}
	}
	return matchups, nil
}

// laterMatchups pairs the winners of the previous two-legged stage at
// random.
func (c *CupResolver) laterMatchups(previous []league.Match) ([][2]string, error) {
	ties := make(map[[2]string][]league.Match)
	for _, m := range previous {
		key := tieKey(m.Home, m.Away)
		ties[key] = append(ties[key], m)
	}
	keys := make([][2]string, 0, len(ties))
	for key := range ties {
		keys = append(keys, key)
	}
	slices.SortFunc(keys, func(a, b [2]string) int {
		return slices.Compare(a[:], b[:])
	})

	winners := make([]string, 0, len(keys))
	for _, key := range keys {
		winner, err := aggregateWinner(ties[key], c.Rand)
		if err != nil {
			return nil, err
		}
		winners = append(winners, winner)
	}
	if len(winners)%2 != 0 {
		return nil, fmt.Errorf("%w: odd number of winners: %d", league.ErrValidation, len(winners))
	}

	shuffle(c.Rand, winners)
	matchups := make([][2]string, 0, len(winners)/2)
	for i := 0; i < len(winners); i += 2 {
		matchups = append(matchups, [2]string{winners[i], winners[i+1]})
	}
	return matchups, nil
}

// aggregateWinner decides a two-legged tie by aggregate goals, then away
// goals, then a coin flip.
func aggregateWinner(legs []league.Match, rng *rand.Rand) (string, error) {
	if len(legs) != 2 {
		return "", fmt.Errorf("%w: %s vs %s has %d legs (expected 2)", league.ErrValidation, legs[0].Home, legs[0].Away, len(legs))
	}
	homeGoals := make(map[string]int, 2)
	awayGoals := make(map[string]int, 2)
	for _, m := range legs {
		homeGoals[m.Home] += m.HomeGoals
		awayGoals[m.Away] += m.AwayGoals
	}

	a, b := legs[1].Home, legs[1].Away
	if legs[0].Home != b || legs[0].Away != a {
		return "", fmt.Errorf("%w: legs of %s vs %s do not mirror", league.ErrValidation, a, b)
	}

	flip := rng.IntN(2)
	key := func(team string, coin int) []int {
		return []int{homeGoals[team] + awayGoals[team], awayGoals[team], coin}
	}
	if slices.Compare(key(a, flip), key(b, 1-flip)) > 0 {
		return a, nil
	}
	return b, nil
}

// fixtures schedules matchups after the latest of previous. The final has a
// single leg.
func (c *CupResolver) fixtures(matchups [][2]string, previous []league.Match, stage int) []league.Fixture {
	latestDate, latestKickoff := latest(previous)
	firstDate := latestDate.Add(BreakBetweenStages)
	secondDate := firstDate.Add(BreakBetweenLegs)
	var firstKickoff, secondKickoff *time.Time
	if latestKickoff != nil {
		first := latestKickoff.Add(BreakBetweenStages)
		second := first.Add(BreakBetweenLegs)
		firstKickoff, secondKickoff = &first, &second
	}

	fixture := func(home, away string, date time.Time, kickoff *time.Time) league.Fixture {
		return league.Fixture{
			Competition: c.Competition,
			Date:        date,
			Season:      c.Season,
			Home:        home,
			Away:        away,
			Kickoff:     kickoff,
			Stage:       KOStages[stage],
		}
	}

	fixtures := make([]league.Fixture, 0, 2*len(matchups))
	for _, m := range matchups {
		fixtures = append(fixtures, fixture(m[0], m[1], firstDate, firstKickoff))
	}
	if stage == len(KOStages)-1 {
		return fixtures
	}
	for _, m := range matchups {
		fixtures = append(fixtures, fixture(m[1], m[0], secondDate, secondKickoff))
	}
	return fixtures
}

// latest returns the last date of matches and the latest kickoff on it.
func latest(matches []league.Match) (time.Time, *time.Time) {
	var date time.Time
	var kickoff *time.Time
	for _, m := range matches {
		switch {
		case m.Date.After(date):
			date, kickoff = m.Date, m.Kickoff
		case m.Date.Equal(date) && m.Kickoff != nil && (kickoff == nil || m.Kickoff.After(*kickoff)):
			kickoff = m.Kickoff
		}
	}
	return date, kickoff
}

// GroupTable ranks the teams of one cup group with head-to-head rules.
func GroupTable(matches []league.Match, rng *rand.Rand) ([]string, error) {
	return league.BuildTable(matches, groupMatches, groupTeams, true, rng)
}

// RankCup ranks every participant of a finished cup. Teams eliminated in
// the same round share a position and are listed alphabetically.
func RankCup(matches []league.Match, expMatches, expTeams int, rng *rand.Rand) ([]league.RankedTeam, error) {
	if len(matches) != expMatches {
		return nil, fmt.Errorf("%w: unexpected number of matches: %d (expected %d)", league.ErrValidation, len(matches), expMatches)
	}
	groups, stages, err := orderCupMatches(matches)
	if err != nil {
		return nil, err
	}

	var ranking []league.RankedTeam
	appendTied := func(teams []string) {
		sort.Strings(teams)
		position := len(ranking) + 1
		for _, team := range teams {
			ranking = append(ranking, league.RankedTeam{Team: team, Position: position})
		}
	}

	var previousTeams map[string]bool
	for stage := len(KOStages) - 1; stage >= 0; stage-- {
		stageMatches := stages[stage]
		if len(stageMatches) != KOStageNumMatches[stage] {
			return nil, fmt.Errorf("%w: %d matches in %s (expected %d)", league.ErrValidation, len(stageMatches), KOStages[stage], KOStageNumMatches[stage])
		}

		stageTeams := make(map[string]bool)
		for _, m := range stageMatches {
			stageTeams[m.Home] = true
			stageTeams[m.Away] = true
		}

		if len(stageMatches) == 1 {
			winner, loser := finalResult(stageMatches[0], rng)
			ranking = append(ranking,
				league.RankedTeam{Team: winner, Position: 1},
				league.RankedTeam{Team: loser, Position: 2},
			)
		} else {
			var losers []string
			for team := range stageTeams {
				if !previousTeams[team] {
					losers = append(losers, team)
				}
			}
			appendTied(losers)
		}
		previousTeams = stageTeams
	}

	var thirds, fourths []string
	for _, group := range sortedGroups(groups) {
		table, err := GroupTable(groups[group], rng)
		if err != nil {
			return nil, fmt.Errorf("group %s: %w", group, err)
		}
		var out []string
		for _, team := range table {
			if !previousTeams[team] {
				out = append(out, team)
			}
		}
		if len(out) < 2 {
			return nil, fmt.Errorf("%w: group %s has %d teams out of the knockout stage", league.ErrValidation, group, len(out))
		}
		thirds = append(thirds, out[len(out)-2])
		fourths = append(fourths, out[len(out)-1])
	}
	appendTied(thirds)
	appendTied(fourths)

	seen := make(map[string]bool, len(ranking))
	for _, r := range ranking {
		if seen[r.Team] {
			return nil, fmt.Errorf("%w: %s ranked twice", league.ErrValidation, r.Team)
		}
		seen[r.Team] = true
	}
	if len(ranking) != expTeams {
		return nil, fmt.Errorf("%w: bad number of teams: %d (expected %d)", league.ErrValidation, len(ranking), expTeams)
	}
	return ranking, nil
}

// finalResult decides the single-leg final by goals, at random on a draw.
func finalResult(m league.Match, rng *rand.Rand) (winner, loser string) {
	switch league.ResultOf(m.Score()) {
	case league.ResultHome:
		return m.Home, m.Away
	case league.ResultAway:
		return m.Away, m.Home
	}
	if rng.IntN(2) == 0 {
		return m.Home, m.Away
	}
	return m.Away, m.Home
}

// orderCupMatches splits cup matches into groups keyed by letter and
// knockout stages indexed like KOStages.
func orderCupMatches(matches []league.Match) (map[string][]league.Match, [][]league.Match, error) {
	groups := make(map[string][]league.Match)
	stages := make([][]league.Match, len(KOStages))
	for _, m := range matches {
		if name, ok := strings.CutPrefix(m.Stage, groupPrefix); ok {
			group := strings.TrimSpace(name)
			groups[group] = append(groups[group], m)
			continue
		}
		stage := slices.Index(KOStages, m.Stage)
		if stage < 0 {
			return nil, nil, fmt.Errorf("%w: unknown cup stage %q in %s", league.ErrValidation, m.Stage, m.ScoreLine())
		}
		stages[stage] = append(stages[stage], m)
	}
	return groups, stages, nil
}

func sortedGroups(groups map[string][]league.Match) []string {
	names := make([]string, 0, len(groups))
	for name := range groups {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func tieKey(a, b string) [2]string {
	if b < a {
		a, b = b, a
	}
	return [2]string{a, b}
}

func shuffle[T any](rng *rand.Rand, s []T) {
	rng.Shuffle(len(s), func(i, j int) {
		s[i], s[j] = s[j], s[i]
	})
}
