package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/utakatalp/league-forecaster/internal/league"
	"github.com/utakatalp/league-forecaster/internal/simulate"
)

// Store wraps a Postgres connection and persists matches, fixtures and
// computed odds.
type Store struct {
	DB *sql.DB
}

// NewStore opens a Postgres connection using the given connection string.
func NewStore(connStr string) (*Store, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// verify early
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return &Store{DB: db}, nil
}

func (s *Store) Close() error {
	return s.DB.Close()
}

// Migrate creates the necessary tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS matches (
		    id            SERIAL PRIMARY KEY,
		    region        TEXT    NOT NULL,
		    competition   TEXT    NOT NULL,
		    season_start  INT     NOT NULL,
		    season_split  BOOLEAN NOT NULL,
		    date          DATE    NOT NULL,
		    kickoff       TIMESTAMPTZ,
		    stage         TEXT    NOT NULL DEFAULT '',
		    home_team     TEXT    NOT NULL,
		    away_team     TEXT    NOT NULL,
		    home_goals    INT     NOT NULL,
		    away_goals    INT     NOT NULL,
		    UNIQUE (region, competition, date, home_team, away_team)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_matches_date ON matches (date, id);`,
		`CREATE TABLE IF NOT EXISTS fixtures (
		    id            SERIAL PRIMARY KEY,
		    region        TEXT    NOT NULL,
		    competition   TEXT    NOT NULL,
		    season_start  INT     NOT NULL,
		    season_split  BOOLEAN NOT NULL,
		    date          DATE    NOT NULL,
		    kickoff       TIMESTAMPTZ,
		    stage         TEXT    NOT NULL DEFAULT '',
		    home_team     TEXT    NOT NULL,
		    away_team     TEXT    NOT NULL,
		    UNIQUE (region, competition, date, home_team, away_team)
		);`,
		`CREATE TABLE IF NOT EXISTS odds (
		    region        TEXT    NOT NULL,
		    competition   TEXT    NOT NULL,
		    season_start  INT     NOT NULL,
		    season_split  BOOLEAN NOT NULL,
		    rank          INT     NOT NULL,
		    team          TEXT    NOT NULL,
		    positions     DOUBLE PRECISION[] NOT NULL,
		    runs          INT     NOT NULL,
		    computed_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		    PRIMARY KEY (region, competition, season_start, season_split, team)
		);`,
	}
	for _, q := range queries {
		if _, err := s.DB.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("migrating: %w", err)
		}
	}
	return nil
}

// SaveMatches upserts played matches in one transaction. A stored result of
// the same fixture is overwritten.
func (s *Store) SaveMatches(ctx context.Context, matches []league.Match) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin SaveMatches tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO matches (region, competition, season_start, season_split, date, kickoff, stage, home_team, away_team, home_goals, away_goals)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
ON CONFLICT (region, competition, date, home_team, away_team) DO UPDATE SET
    home_goals = EXCLUDED.home_goals,
    away_goals = EXCLUDED.away_goals,
    kickoff    = EXCLUDED.kickoff,
    stage      = EXCLUDED.stage
`)
	if err != nil {
		return fmt.Errorf("preparing match insert: %w", err)
	}
	defer stmt.Close()

	for _, m := range matches {
		if _, err := stmt.ExecContext(ctx,
			m.Competition.Region, m.Competition.Name,
			m.Season.Start, m.Season.EndsFollowingYear,
			m.Date, m.Kickoff, m.Stage,
			m.Home, m.Away,
			m.HomeGoals, m.AwayGoals,
		); err != nil {
			return fmt.Errorf("saving match %s: %w", m.ScoreLine(), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit SaveMatches tx: %w", err)
	}
	return nil
}

// SaveFixtures upserts scheduled fixtures in one transaction.
func (s *Store) SaveFixtures(ctx context.Context, fixtures []league.Fixture) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin SaveFixtures tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO fixtures (region, competition, season_start, season_split, date, kickoff, stage, home_team, away_team)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (region, competition, date, home_team, away_team) DO UPDATE SET
    kickoff = EXCLUDED.kickoff,
    stage   = EXCLUDED.stage
`)
	if err != nil {
		return fmt.Errorf("preparing fixture insert: %w", err)
	}
	defer stmt.Close()

	for _, f := range fixtures {
		if _, err := stmt.ExecContext(ctx,
			f.Competition.Region, f.Competition.Name,
			f.Season.Start, f.Season.EndsFollowingYear,
			f.Date, f.Kickoff, f.Stage,
			f.Home, f.Away,
		); err != nil {
			return fmt.Errorf("saving fixture %s vs %s: %w", f.Home, f.Away, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit SaveFixtures tx: %w", err)
	}
	return nil
}

const matchColumns = `region, competition, season_start, season_split, date, kickoff, stage, home_team, away_team, home_goals, away_goals`

// LoadMatches fetches every stored match ordered by date.
func (s *Store) LoadMatches(ctx context.Context) ([]league.Match, error) {
	return s.queryMatches(ctx, `SELECT `+matchColumns+` FROM matches ORDER BY date, id`)
}

// LoadSeasonMatches fetches the played matches of one competition season.
func (s *Store) LoadSeasonMatches(ctx context.Context, c league.Competition, season league.Season) ([]league.Match, error) {
	return s.queryMatches(ctx, `
SELECT `+matchColumns+`
FROM matches
WHERE region = $1 AND competition = $2 AND season_start = $3 AND season_split = $4
ORDER BY date, id`,
		c.Region, c.Name, season.Start, season.EndsFollowingYear,
	)
}

func (s *Store) queryMatches(ctx context.Context, query string, args ...any) ([]league.Match, error) {
	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying matches: %w", err)
	}
	defer rows.Close()

	var matches []league.Match
	for rows.Next() {
		var m league.Match
		var kickoff sql.NullTime
		if err := rows.Scan(
			&m.Competition.Region,
			&m.Competition.Name,
			&m.Season.Start,
			&m.Season.EndsFollowingYear,
			&m.Date,
			&kickoff,
			&m.Stage,
			&m.Home,
			&m.Away,
			&m.HomeGoals,
			&m.AwayGoals,
		); err != nil {
			return nil, fmt.Errorf("scanning match: %w", err)
		}
		m.Date = calendarDay(m.Date)
		m.Kickoff = timePtr(kickoff)
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating match rows: %w", err)
	}
	return matches, nil
}

// LoadFixtures fetches the fixtures of a competition season that have no
// stored result yet, ordered by date.
func (s *Store) LoadFixtures(ctx context.Context, c league.Competition, season league.Season) ([]league.Fixture, error) {
	const q = `
SELECT f.region, f.competition, f.season_start, f.season_split, f.date, f.kickoff, f.stage, f.home_team, f.away_team
FROM fixtures f
LEFT JOIN matches m
  ON m.region = f.region AND m.competition = f.competition
 AND m.season_start = f.season_start AND m.season_split = f.season_split
 AND m.home_team = f.home_team AND m.away_team = f.away_team
 AND m.stage = f.stage
WHERE f.region = $1 AND f.competition = $2 AND f.season_start = $3 AND f.season_split = $4
  AND m.id IS NULL
ORDER BY f.date, f.id`

	rows, err := s.DB.QueryContext(ctx, q, c.Region, c.Name, season.Start, season.EndsFollowingYear)
	if err != nil {
		return nil, fmt.Errorf("querying fixtures: %w", err)
	}
	defer rows.Close()

	var fixtures []league.Fixture
	for rows.Next() {
		var f league.Fixture
		var kickoff sql.NullTime
		if err := rows.Scan(
			&f.Competition.Region,
			&f.Competition.Name,
			&f.Season.Start,
			&f.Season.EndsFollowingYear,
			&f.Date,
			&kickoff,
			&f.Stage,
			&f.Home,
			&f.Away,
		); err != nil {
			return nil, fmt.Errorf("scanning fixture: %w", err)
		}
		f.Date = calendarDay(f.Date)
		f.Kickoff = timePtr(kickoff)
		fixtures = append(fixtures, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating fixture rows: %w", err)
	}
	return fixtures, nil
}

// SaveOdds replaces the stored odds of the forecast's season.
func (s *Store) SaveOdds(ctx context.Context, odds *simulate.Odds) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin SaveOdds tx: %w", err)
	}
	defer tx.Rollback()

	c, season := odds.Competition, odds.Season
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM odds WHERE region = $1 AND competition = $2 AND season_start = $3 AND season_split = $4`,
		c.Region, c.Name, season.Start, season.EndsFollowingYear,
	); err != nil {
		return fmt.Errorf("deleting old odds: %w", err)
	}

	for rank, team := range odds.Teams {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO odds (region, competition, season_start, season_split, rank, team, positions, runs)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			c.Region, c.Name, season.Start, season.EndsFollowingYear,
			rank+1, team.Team, pq.Array(team.Positions), odds.Runs,
		); err != nil {
			return fmt.Errorf("saving odds of %s: %w", team.Team, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit SaveOdds tx: %w", err)
	}
	return nil
}

// LoadOdds returns the stored odds of a season in consensus order, or nil
// when none were saved.
func (s *Store) LoadOdds(ctx context.Context, c league.Competition, season league.Season) (*simulate.Odds, error) {
	const q = `
SELECT rank, team, positions, runs
FROM odds
WHERE region = $1 AND competition = $2 AND season_start = $3 AND season_split = $4
ORDER BY rank`

	rows, err := s.DB.QueryContext(ctx, q, c.Region, c.Name, season.Start, season.EndsFollowingYear)
	if err != nil {
		return nil, fmt.Errorf("querying odds: %w", err)
	}
	defer rows.Close()

	odds := &simulate.Odds{Competition: c, Season: season}
	for rows.Next() {
		var rank int
		var team simulate.TeamOdds
		if err := rows.Scan(&rank, &team.Team, pq.Array(&team.Positions), &odds.Runs); err != nil {
			return nil, fmt.Errorf("scanning odds row: %w", err)
		}
		odds.Teams = append(odds.Teams, team)
		odds.Ranking = append(odds.Ranking, league.RankedTeam{Team: team.Team, Position: rank})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating odds rows: %w", err)
	}
	if len(odds.Teams) == 0 {
		return nil, nil
	}
	odds.Champion = simulate.ChampionOdds(odds.Teams)
	return odds, nil
}

// DeleteSeason removes every match, fixture and odds row of a season.
func (s *Store) DeleteSeason(ctx context.Context, c league.Competition, season league.Season) error {
	for _, table := range []string{"matches", "fixtures", "odds"} {
		_, err := s.DB.ExecContext(ctx,
			`DELETE FROM `+table+` WHERE region = $1 AND competition = $2 AND season_start = $3 AND season_split = $4`,
			c.Region, c.Name, season.Start, season.EndsFollowingYear,
		)
		if err != nil {
			return fmt.Errorf("deleting %s of %s %s: %w", table, c, season, err)
		}
	}
	return nil
}

func calendarDay(t time.Time) time.Time {
	return league.Date(t.Year(), t.Month(), t.Day())
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}
