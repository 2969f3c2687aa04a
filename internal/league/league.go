package league

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrValidation marks match or team counts that diverge from what a
	// competition format expects.
	ErrValidation = errors.New("validation failed")
	// ErrUnsupported marks competitions or formats that are not modelled.
	ErrUnsupported = errors.New("unsupported competition")
)

// Competition identifies a football competition within a region.
type Competition struct {
	Region string `json:"region"`
	Name   string `json:"name"`
}

func (c Competition) String() string {
	return c.Region + "/" + c.Name
}

// Season of a competition. Summer-to-summer seasons end the following year.
type Season struct {
	Start             int  `json:"start"`
	EndsFollowingYear bool `json:"ends_following_year"`
}

// End is the year the season ends.
func (s Season) End() int {
	if s.EndsFollowingYear {
		return s.Start + 1
	}
	return s.Start
}

func (s Season) String() string {
	if !s.EndsFollowingYear {
		return strconv.Itoa(s.Start)
	}
	return fmt.Sprintf("%d-%02d", s.Start, s.End()%100)
}

// ParseSeason parses "2023" or "2023-24".
func ParseSeason(str string) (Season, error) {
	startStr, endStr, found := strings.Cut(str, "-")
	start, err := strconv.Atoi(startStr)
	if err != nil {
		return Season{}, fmt.Errorf("parsing season %q: %w", str, err)
	}
	if !found {
		return Season{Start: start}, nil
	}
	end, err := strconv.Atoi(endStr)
	if err != nil {
		return Season{}, fmt.Errorf("parsing season %q: %w", str, err)
	}
	if end != (start+1)%100 {
		return Season{}, fmt.Errorf("weird season string %q", str)
	}
	return Season{Start: start, EndsFollowingYear: true}, nil
}

// Score is a full-time score.
type Score struct {
	Home int `json:"home"`
	Away int `json:"away"`
}

// Result is the 1/X/2 outcome of a match.
type Result int

const (
	ResultHome Result = iota
	ResultDraw
	ResultAway
)

func (r Result) String() string {
	switch r {
	case ResultHome:
		return "1"
	case ResultDraw:
		return "X"
	case ResultAway:
		return "2"
	}
	return "?"
}

// ResultOf returns 1, X or 2 for a score.
func ResultOf(s Score) Result {
	switch {
	case s.Home > s.Away:
		return ResultHome
	case s.Home < s.Away:
		return ResultAway
	default:
		return ResultDraw
	}
}

// Match represents a played fixture. Date is the local calendar date at
// UTC midnight; Kickoff and Stage are optional.
type Match struct {
	Competition Competition `json:"competition"`
	Date        time.Time   `json:"date"`
	Season      Season      `json:"season"`
	Home        string      `json:"home"`
	Away        string      `json:"away"`
	HomeGoals   int         `json:"home_goals"`
	AwayGoals   int         `json:"away_goals"`
	Kickoff     *time.Time  `json:"kickoff,omitempty"`
	Stage       string      `json:"stage,omitempty"`
}

// Score returns the full-time score of the match.
func (m Match) Score() Score {
	return Score{Home: m.HomeGoals, Away: m.AwayGoals}
}

func (m Match) ScoreLine() string {
	return fmt.Sprintf("%s %d - %d %s",
		m.Home, m.HomeGoals,
		m.AwayGoals, m.Away,
	)
}

// Fixture is a scheduled match without a known outcome.
type Fixture struct {
	Competition Competition `json:"competition"`
	Date        time.Time   `json:"date"`
	Season      Season      `json:"season"`
	Home        string      `json:"home"`
	Away        string      `json:"away"`
	Kickoff     *time.Time  `json:"kickoff,omitempty"`
	Stage       string      `json:"stage,omitempty"`
}

// FixtureFromMatch drops the outcome of a match.
func FixtureFromMatch(m Match) Fixture {
	return Fixture{
		Competition: m.Competition,
		Date:        m.Date,
		Season:      m.Season,
		Home:        m.Home,
		Away:        m.Away,
		Kickoff:     m.Kickoff,
		Stage:       m.Stage,
	}
}

// Play returns the match resulting from the fixture ending with score s.
func (f Fixture) Play(s Score) Match {
	return Match{
		Competition: f.Competition,
		Date:        f.Date,
		Season:      f.Season,
		Home:        f.Home,
		Away:        f.Away,
		HomeGoals:   s.Home,
		AwayGoals:   s.Away,
		Kickoff:     f.Kickoff,
		Stage:       f.Stage,
	}
}

// Date truncates t to its calendar day at UTC midnight.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// DaysBetween returns the whole number of days from a to b, rounded down.
func DaysBetween(a, b time.Time) int {
	return int(math.Floor(b.Sub(a).Hours() / 24))
}

// RankedTeam is one row of a final ranking. Teams whose relative order is
// unknown share a Position.
type RankedTeam struct {
	Team     string `json:"team"`
	Position int    `json:"position"`
}

// Prediction is the estimated probability of a team finishing at a
// position, or of a result.
type Prediction struct {
	Team        string  `json:"team"`
	Probability float64 `json:"probability"`
}
