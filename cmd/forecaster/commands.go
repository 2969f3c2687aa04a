package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/utakatalp/league-forecaster/internal/api"
	"github.com/utakatalp/league-forecaster/internal/config"
	"github.com/utakatalp/league-forecaster/internal/league"
	"github.com/utakatalp/league-forecaster/internal/logger"
	"github.com/utakatalp/league-forecaster/internal/metrics"
	"github.com/utakatalp/league-forecaster/internal/predict"
	"github.com/utakatalp/league-forecaster/internal/simulate"
	"github.com/utakatalp/league-forecaster/internal/store"
)

var _ api.Source = (*store.Store)(nil)

type app struct {
	cfg   *config.Config
	store *store.Store
	log   *logger.Logger
	opts  []predict.Option
	flags flags
}

func (a *app) serve(ctx context.Context) error {
	factory, err := predict.NewFactory(a.cfg.Simulation.Predictor, a.opts...)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	server := api.NewServer(a.store, api.Options{
		Formats: a.cfg.Formats(),
		Factory: factory,
		Runs:    a.cfg.Simulation.Runs,
		Workers: a.cfg.Simulation.Workers,
		Seed:    a.cfg.Simulation.Seed,
		Log:     a.log,
		Metrics: metrics.New(reg),
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:      server.Router(),
		ReadTimeout:  a.cfg.Server.ReadTimeout,
		WriteTimeout: a.cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.Info("http server listening", logger.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	a.log.Info("shutdown signal received")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	a.log.Info("shutdown complete")
	return nil
}

func (a *app) competitionSeason() (league.Competition, league.Season, error) {
	c := league.Competition{Region: a.flags.region, Name: a.flags.competition}
	if a.flags.season == "" {
		return c, league.Season{}, errors.New("-season is required")
	}
	season, err := league.ParseSeason(a.flags.season)
	return c, season, err
}

func (a *app) forecast(ctx context.Context) error {
	c, season, err := a.competitionSeason()
	if err != nil {
		return err
	}
	factory, err := predict.NewFactory(a.cfg.Simulation.Predictor, a.opts...)
	if err != nil {
		return err
	}
	in, err := simulate.LoadInput(ctx, a.store, a.cfg.Formats(), c, season)
	if err != nil {
		return err
	}

	runs := a.cfg.Simulation.Runs
	if a.flags.runs > 0 {
		runs = a.flags.runs
	}
	forecaster := &simulate.Forecaster{
		Factory: factory,
		Runs:    runs,
		Workers: a.cfg.Simulation.Workers,
		Seed:    a.cfg.Simulation.Seed,
		Log:     a.log,
	}
	odds, err := forecaster.Forecast(ctx, in)
	if err != nil {
		return err
	}
	if err := a.store.SaveOdds(ctx, odds); err != nil {
		return err
	}

	fmt.Printf("# %s %s after %d runs #\n\n", c, season, odds.Runs)
	league.WriteRanking(os.Stdout, odds.Ranking)
	fmt.Println()
	for _, p := range odds.Champion {
		fmt.Printf("%-24s %6.2f%%\n", p.Team, p.Probability)
	}

	if !in.Format.Cup || !groupStageOpen(in.Fixtures) {
		return nil
	}
	groups, err := forecaster.GroupOdds(ctx, in)
	if err != nil {
		return err
	}
	for _, g := range groups {
		fmt.Printf("\n%s\n", g.Group)
		league.WriteRanking(os.Stdout, g.Ranking)
	}
	return nil
}

func groupStageOpen(fixtures []league.Fixture) bool {
	for _, f := range fixtures {
		if strings.HasPrefix(f.Stage, "Group") {
			return true
		}
	}
	return false
}

func (a *app) evaluate(ctx context.Context) error {
	var start time.Time
	if a.flags.since != "" {
		var err error
		start, err = time.Parse(time.DateOnly, a.flags.since)
		if err != nil {
			return fmt.Errorf("parsing -since: %w", err)
		}
	}
	matches, err := a.store.LoadMatches(ctx)
	if err != nil {
		return err
	}
	for _, p := range predict.All(a.opts...) {
		if err := ctx.Err(); err != nil {
			return err
		}
		ev, err := predict.Evaluate(p, matches, start)
		if err != nil {
			return err
		}
		predict.WriteEvaluation(os.Stdout, ev)
	}
	return nil
}

func (a *app) standings(ctx context.Context) error {
	c, season, err := a.competitionSeason()
	if err != nil {
		return err
	}
	matches, err := a.store.LoadSeasonMatches(ctx, c, season)
	if err != nil {
		return err
	}
	league.WriteTable(os.Stdout, fmt.Sprintf("%s %s", c, season), league.Standings(matches))
	return nil
}

// schedule stores a generated double round-robin with one matchday a week.
func (a *app) schedule(ctx context.Context) error {
	c, season, err := a.competitionSeason()
	if err != nil {
		return err
	}
	if a.flags.teams == "" {
		return errors.New("-teams is required")
	}
	start, err := time.Parse(time.DateOnly, a.flags.start)
	if err != nil {
		return fmt.Errorf("parsing -start: %w", err)
	}
	teams := strings.Split(a.flags.teams, ",")
	for i := range teams {
		teams[i] = strings.TrimSpace(teams[i])
	}

	if a.flags.reset {
		if err := a.store.DeleteSeason(ctx, c, season); err != nil {
			return err
		}
	}
	fixtures := league.Flatten(league.GenerateFullSeason(teams, league.ScheduleOptions{
		Competition: c,
		Season:      season,
		Start:       start,
		Interval:    7 * 24 * time.Hour,
	}))
	if err := a.store.SaveFixtures(ctx, fixtures); err != nil {
		return err
	}
	a.log.Info("schedule stored",
		logger.String("competition", c.String()),
		logger.String("season", season.String()),
		logger.Strings("teams", teams),
		logger.Int("fixtures", len(fixtures)),
	)
	return nil
}

// importMatches stores the matches of a JSON array file.
func (a *app) importMatches(ctx context.Context) error {
	if a.flags.file == "" {
		return errors.New("-file is required")
	}
	b, err := os.ReadFile(a.flags.file)
	if err != nil {
		return err
	}
	var matches []league.Match
	if err := json.Unmarshal(b, &matches); err != nil {
		return fmt.Errorf("parsing %s: %w", a.flags.file, err)
	}
	for i, m := range matches {
		utc := m.Date.UTC()
		matches[i].Date = league.Date(utc.Year(), utc.Month(), utc.Day())
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Date.Before(matches[j].Date)
	})
	if err := a.store.SaveMatches(ctx, matches); err != nil {
		return err
	}
	a.log.Info("matches imported", logger.String("file", a.flags.file), logger.Int("matches", len(matches)))
	return nil
}
