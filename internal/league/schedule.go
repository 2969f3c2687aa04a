package league

import "time"

// ScheduleOptions places generated rounds on the calendar.
type ScheduleOptions struct {
	Competition Competition
	Season      Season
	Start       time.Time
	Interval    time.Duration
}

// GenerateFullSeason returns a double round-robin: every team hosts every
// other team once. The second half mirrors the first with home and away
// swapped.
func GenerateFullSeason(teams []string, opts ScheduleOptions) [][]Fixture {
	firstHalf := GenerateSchedule(teams)
	secondHalf := make([][]Fixture, len(firstHalf))
	for i, rnd := range firstHalf {
		swapped := make([]Fixture, len(rnd))
		for j, f := range rnd {
			swapped[j] = Fixture{Home: f.Away, Away: f.Home}
		}
		secondHalf[i] = swapped
	}

	season := append(firstHalf, secondHalf...)
	for week, rnd := range season {
		date := opts.Start.Add(time.Duration(week) * opts.Interval)
		for j := range rnd {
			rnd[j].Competition = opts.Competition
			rnd[j].Season = opts.Season
			rnd[j].Date = date
		}
	}
	return season
}

// GenerateSchedule returns a single round-robin schedule for the provided
// teams using the circle method. Teams with an odd count get a bye each
// round.
func GenerateSchedule(teams []string) [][]Fixture {
	circle := make([]string, len(teams), len(teams)+1)
	copy(circle, teams)
	odd := len(circle)%2 != 0
	if odd {
		// "" marks the bye
		circle = append(circle, "")
	}
	n := len(circle)
	if n < 2 {
		return nil
	}

	rounds := make([][]Fixture, n-1)
	for i := 0; i < n-1; i++ {
		round := make([]Fixture, 0, n/2)
		for j := 0; j < n/2; j++ {
			home := circle[j]
			away := circle[n-1-j]
			if home != "" && away != "" {
				round = append(round, Fixture{Home: home, Away: away})
			}
		}
		rounds[i] = round

		// rotate everyone but the first
		last := circle[n-1]
		copy(circle[2:], circle[1:n-1])
		circle[1] = last
	}
	return rounds
}

// Flatten concatenates rounds into one chronological fixture list.
func Flatten(rounds [][]Fixture) []Fixture {
	var fixtures []Fixture
	for _, rnd := range rounds {
		fixtures = append(fixtures, rnd...)
	}
	return fixtures
}
