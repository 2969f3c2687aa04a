package league

import (
	"fmt"
	"io"
	"math/rand/v2"
	"slices"
	"sort"
)

// TableEntry holds the standings info for one team.
type TableEntry struct {
	Team                        string
	Played, Wins, Draws, Losses int
	GoalsFor, GoalsAgainst      int
	GoalDiff, Points            int
}

// tally is the per-team accumulator of one table computation. Every call of
// partialTable owns its own tallies.
type tally struct {
	points, scored, conceded, scoredAway, wins, awayWins int
}

// BuildTable returns the teams of a finished round-robin ranked from first
// to last. Teams that cannot be separated by the rules are ordered randomly.
// groupRules switches on the head-to-head tie-break used in cup groups.
func BuildTable(matches []Match, expMatches, expTeams int, groupRules bool, rng *rand.Rand) ([]string, error) {
	positions, err := partialTable(matches, expMatches, expTeams, groupRules, false)
	if err != nil {
		return nil, err
	}

	teams := make([]string, 0, len(positions))
	for team := range positions {
		teams = append(teams, team)
	}
	sort.Strings(teams)
	tiebreakers := rng.Perm(len(teams))
	tiebreaker := make(map[string]int, len(teams))
	for i, team := range teams {
		tiebreaker[team] = tiebreakers[i]
	}

	sort.Slice(teams, func(i, j int) bool {
		a, b := teams[i], teams[j]
		if positions[a] != positions[b] {
			return positions[a] < positions[b]
		}
		return tiebreaker[a] < tiebreaker[b]
	})

	if len(teams) != expTeams {
		return nil, fmt.Errorf("%w: broke the number of teams: %d (expected %d)", ErrValidation, len(teams), expTeams)
	}
	return teams, nil
}

// Ranking numbers an ordered list of teams from 1.
func Ranking(teams []string) []RankedTeam {
	ranking := make([]RankedTeam, len(teams))
	for i, team := range teams {
		ranking[i] = RankedTeam{Team: team, Position: i + 1}
	}
	return ranking
}

// partialTable maps teams to dense ranks (0 is best, equal keys share a
// rank). inside is true when building a head-to-head sub-table.
func partialTable(matches []Match, expMatches, expTeams int, groupRules, inside bool) (map[string]int, error) {
	if len(matches) != expMatches {
		return nil, fmt.Errorf("%w: unexpected number of matches: %d (expected %d)", ErrValidation, len(matches), expMatches)
	}

	tallies := make(map[string]*tally)
	get := func(team string) *tally {
		t, ok := tallies[team]
		if !ok {
			t = &tally{}
			tallies[team] = t
		}
		return t
	}
	for _, m := range matches {
		home, away := get(m.Home), get(m.Away)
		switch ResultOf(m.Score()) {
		case ResultHome:
			home.points += 3
			home.wins++
		case ResultAway:
			away.points += 3
			away.wins++
			away.awayWins++
		default:
			home.points++
			away.points++
		}
		home.scored += m.HomeGoals
		away.scored += m.AwayGoals
		away.scoredAway += m.AwayGoals
		home.conceded += m.AwayGoals
		away.conceded += m.HomeGoals
	}

	teams := make([]string, 0, len(tallies))
	for team := range tallies {
		teams = append(teams, team)
	}
	sort.Strings(teams)
	if len(teams) != expTeams {
		return nil, fmt.Errorf("%w: unexpected number of teams: %d (expected %d)", ErrValidation, len(teams), expTeams)
	}

	keys := make(map[string][]int, len(teams))
	if !groupRules {
		for _, team := range teams {
			t := tallies[team]
			keys[team] = []int{t.points, t.scored - t.conceded, t.scored}
		}
		return denseRank(teams, keys), nil
	}

	teamsByPoints := make(map[int][]string)
	for _, team := range teams {
		p := tallies[team].points
		teamsByPoints[p] = append(teamsByPoints[p], team)
	}
	for _, tied := range teamsByPoints {
		positions, err := tiedPositions(matches, tied, len(teams))
		if err != nil {
			return nil, err
		}
		for _, team := range tied {
			t := tallies[team]
			goalDiff := t.scored - t.conceded
			if inside {
				keys[team] = []int{t.points, goalDiff, t.scored, t.scoredAway, -positions[team]}
			} else {
				keys[team] = []int{t.points, -positions[team], goalDiff, t.scored, t.scoredAway, t.wins, t.awayWins}
			}
		}
	}
	return denseRank(teams, keys), nil
}

// tiedPositions resolves a group of teams level on points by a mini-league
// of the matches played among them.
func tiedPositions(matches []Match, tied []string, numTeams int) (map[string]int, error) {
	positions := make(map[string]int, len(tied))
	if len(tied) == 1 || len(tied) == numTeams {
		for _, team := range tied {
			positions[team] = 0
		}
		return positions, nil
	}

	inGroup := make(map[string]bool, len(tied))
	for _, team := range tied {
		inGroup[team] = true
	}
	var mutual []Match
	for _, m := range matches {
		if inGroup[m.Home] && inGroup[m.Away] {
			mutual = append(mutual, m)
		}
	}
	n := len(tied)
	positions, err := partialTable(mutual, n*(n-1), n, true, true)
	if err != nil {
		return nil, fmt.Errorf("head-to-head table of %v: %w", tied, err)
	}
	return positions, nil
}

func denseRank(teams []string, keys map[string][]int) map[string]int {
	ordered := slices.Clone(teams)
	sort.SliceStable(ordered, func(i, j int) bool {
		return slices.Compare(keys[ordered[i]], keys[ordered[j]]) > 0
	})
	positions := make(map[string]int, len(ordered))
	rank := 0
	for i, team := range ordered {
		if i > 0 && slices.Compare(keys[ordered[i-1]], keys[team]) != 0 {
			rank++
		}
		positions[team] = rank
	}
	return positions
}

// Standings computes the current table of a set of played matches without
// any validation. Ties are ordered by name.
func Standings(matches []Match) []*TableEntry {
	entriesMap := make(map[string]*TableEntry)
	for _, m := range matches {
		for _, t := range []string{m.Home, m.Away} {
			if _, ok := entriesMap[t]; !ok {
				entriesMap[t] = &TableEntry{Team: t}
			}
		}
		home, away := entriesMap[m.Home], entriesMap[m.Away]

		home.Played++
		away.Played++

		home.GoalsFor += m.HomeGoals
		home.GoalsAgainst += m.AwayGoals
		away.GoalsFor += m.AwayGoals
		away.GoalsAgainst += m.HomeGoals

		switch ResultOf(m.Score()) {
		case ResultHome:
			home.Wins++
			away.Losses++
			home.Points += 3
		case ResultAway:
			away.Wins++
			home.Losses++
			away.Points += 3
		default:
			home.Draws++
			away.Draws++
			home.Points++
			away.Points++
		}
	}

	entries := make([]*TableEntry, 0, len(entriesMap))
	for _, e := range entriesMap {
		e.GoalDiff = e.GoalsFor - e.GoalsAgainst
		entries = append(entries, e)
	}

	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.Points != b.Points {
			return a.Points > b.Points
		}
		if a.GoalDiff != b.GoalDiff {
			return a.GoalDiff > b.GoalDiff
		}
		if a.GoalsFor != b.GoalsFor {
			return a.GoalsFor > b.GoalsFor
		}
		return a.Team < b.Team
	})

	return entries
}

func WriteTable(w io.Writer, label string, table []*TableEntry) {
	fmt.Fprintln(w, label)
	fmt.Fprintf(w, "%-20s %2s %2s %2s %2s %3s %3s %3s %3s\n",
		"Team", "P", "W", "D", "L", "GF", "GA", "GD", "Pts")
	for _, entry := range table {
		fmt.Fprintf(w, "%-20s %2d %2d %2d %2d %3d %3d %3d %3d\n",
			entry.Team,
			entry.Played,
			entry.Wins,
			entry.Draws,
			entry.Losses,
			entry.GoalsFor,
			entry.GoalsAgainst,
			entry.GoalDiff,
			entry.Points,
		)
	}
}

// WriteRanking prints a ranking, one team per line.
func WriteRanking(w io.Writer, ranking []RankedTeam) {
	for _, r := range ranking {
		fmt.Fprintf(w, "%2d %s\n", r.Position, r.Team)
	}
}
